package webapp

import (
	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// NotFoundPage displays a 404 error message
type NotFoundPage struct {
	app.Compo
}

// Render renders the 404 page
func (p *NotFoundPage) Render() app.UI {
	links := []app.UI{
		app.A().Href("/").Class("not-found-home-link").Text("🏠 Go to Home Page"),
	}
	for _, t := range tools {
		links = append(links, app.A().Href(t.Path).Class("not-found-tool-link").Text(t.Icon+" "+t.Name))
	}

	return app.Div().
		Class("not-found-page").
		Body(
			app.Div().
				Class("not-found-container").
				Body(
					app.H1().Class("not-found-title").Text("404"),
					app.H2().Class("not-found-subtitle").Text("Page Not Found"),
					app.P().
						Class("not-found-message").
						Text("There is no tool at this address."),
					app.Div().Class("not-found-actions").Body(links...),
				),
		)
}
