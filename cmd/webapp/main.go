//go:build js && wasm

package main

import (
	"github.com/drummonds/dtools/webapp"
	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

func main() {
	// Same routes as the server side handler so links resolve without a reload
	webapp.RegisterRoutes()

	// This main function is for the WASM build only
	app.RunWhenOnBrowser()
}
