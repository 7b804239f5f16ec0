package webapp

import (
	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// Routes are the client side pages, each rendered by App
var Routes = []string{"/", "/pdftopng", "/jobs", "/about"}

// RegisterRoutes points every page route at App. Any other path also gets
// App, which shows the NotFoundPage for it. Both the server handler and the
// wasm binary must call it.
func RegisterRoutes() {
	for _, path := range Routes {
		app.Route(path, func() app.Composer { return &App{} })
	}
	app.RouteWithRegexp("^/.*", func() app.Composer { return &App{} })
}

// App is the root component of the application
type App struct {
	app.Compo
}

// Render renders the app
func (a *App) Render() app.UI {
	return app.Div().
		Class("app-container").
		Body(
			app.Header().Body(
				&NavBar{},
			),
			app.Div().Class("app-layout").Body(
				&Sidebar{},
				app.Main().Class("main-content").Body(
					app.Div().Class("content").Body(
						pageFor(app.Window().URL().Path),
					),
				),
			),
		)
}

// pageFor picks the page component for a path
func pageFor(path string) app.UI {
	switch path {
	case "/":
		return &HomePage{}
	case "/pdftopng":
		return &PDFToPNGPage{}
	case "/jobs":
		return &JobsPage{}
	case "/about":
		return &AboutPage{}
	default:
		return &NotFoundPage{}
	}
}
