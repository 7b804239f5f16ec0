package webapp

import (
	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// Tool is one utility offered by the app
type Tool struct {
	Name        string
	Icon        string
	Path        string
	Description string
}

var tools = []Tool{
	{
		Name:        "PDF → PNG",
		Icon:        "🖼️",
		Path:        "/pdftopng",
		Description: "Turn every page of a PDF into a PNG image. Download pages one at a time or all together as a ZIP.",
	},
}

// HomePage lists the available tools
type HomePage struct {
	app.Compo
}

// Render renders the home page
func (h *HomePage) Render() app.UI {
	return app.Div().
		Class("home-page").
		Body(
			app.H2().Text("Document Tools"),
			app.P().Class("page-info").Text("Pick a tool to get started. Files stay on this machine."),
			app.Div().Class("tool-grid").Body(
				app.Range(tools).Slice(func(i int) app.UI {
					return &ToolCard{Tool: tools[i]}
				}),
			),
		)
}

// ToolCard links to a single tool
type ToolCard struct {
	app.Compo
	Tool Tool
}

// Render renders the tool card
func (t *ToolCard) Render() app.UI {
	return app.A().
		Class("tool-card").
		Href(t.Tool.Path).
		Body(
			app.Div().Class("tool-icon").Text(t.Tool.Icon),
			app.Div().Class("tool-info").Body(
				app.H3().Text(t.Tool.Name),
				app.P().Text(t.Tool.Description),
			),
		)
}
