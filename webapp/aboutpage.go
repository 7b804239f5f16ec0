package webapp

import (
	"encoding/json"
	"fmt"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// AboutInfo represents the about information from the API
type AboutInfo struct {
	Version        string  `json:"version"`
	GoVersion      string  `json:"goVersion"`
	RenderBackend  string  `json:"renderBackend"`
	RenderScale    float64 `json:"renderScale"`
	MaxUploadBytes int64   `json:"maxUploadBytes"`
	SessionTTL     string  `json:"sessionTTL"`
	DatabaseType   string  `json:"databaseType"`
	DatabaseHost   string  `json:"databaseHost"`
	DatabasePort   string  `json:"databasePort"`
	DatabaseName   string  `json:"databaseName"`
	Workspaces     int     `json:"workspaces"`
}

// AboutPage displays information about the application
type AboutPage struct {
	app.Compo
	aboutInfo AboutInfo
	loading   bool
	error     string
}

// OnMount is called when the component is mounted
func (a *AboutPage) OnMount(ctx app.Context) {
	a.loading = true
	a.fetchAboutInfo(ctx)
}

// fetchAboutInfo fetches the about information from the API
func (a *AboutPage) fetchAboutInfo(ctx app.Context) {
	fetchText(ctx, BuildAPIURL("/api/about"), nil,
		func(ctx app.Context, status int, body string) {
			if err := json.Unmarshal([]byte(body), &a.aboutInfo); err != nil {
				a.error = fmt.Sprintf("Failed to parse response: %v", err)
			}
			a.loading = false
		},
		func(ctx app.Context) {
			a.error = "Network error"
			a.loading = false
		})
}

// Render renders the about page
func (a *AboutPage) Render() app.UI {
	if a.loading {
		return app.Div().Class("about-page").Body(
			app.H2().Text("About dtools"),
			app.Div().Class("loading").Body(app.Text("Loading...")),
		)
	}

	if a.error != "" {
		return app.Div().Class("about-page").Body(
			app.H2().Text("About dtools"),
			app.Div().Class("error").Body(app.Text("Error: "+a.error)),
		)
	}

	return app.Div().Class("about-page").Body(
		app.H2().Text("About dtools"),
		app.Div().Class("about-content").Body(
			app.Div().Class("about-section").Body(
				app.H3().Text("Application Information"),
				app.Div().Class("info-grid").Body(
					a.renderInfoItem("Version", a.aboutInfo.Version),
					a.renderInfoItem("Go", a.aboutInfo.GoVersion),
					a.renderInfoItem("Open workspaces", fmt.Sprintf("%d", a.aboutInfo.Workspaces)),
				),
			),
			app.Div().Class("about-section").Body(
				app.H3().Text("Rendering"),
				app.Div().Class("config-details").Body(
					app.P().Body(
						app.Strong().Text("Engine: "),
						app.Text(a.getBackendDisplay()),
					),
					app.P().Body(
						app.Strong().Text("Scale: "),
						app.Text(a.getScaleDisplay()),
					),
					app.P().Body(
						app.Strong().Text("Largest upload: "),
						app.Text(formatBytes(a.aboutInfo.MaxUploadBytes)),
					),
					app.P().Body(
						app.Strong().Text("Pages kept for: "),
						app.Text(a.aboutInfo.SessionTTL),
					),
				),
			),
			app.Div().Class("about-section").Body(
				app.H3().Text("Job Log Database"),
				app.Div().Class("config-details").Body(
					app.P().Body(
						app.Strong().Text("Database Type: "),
						app.Text(a.getDatabaseDisplay()),
					),
					app.If(a.hasDatabaseServer(), func() app.UI {
						return app.P().Body(
							app.Strong().Text("Server: "),
							app.Text(fmt.Sprintf("%s:%s/%s", a.aboutInfo.DatabaseHost, a.aboutInfo.DatabasePort, a.aboutInfo.DatabaseName)),
						)
					}),
				),
			),
			app.Div().Class("about-section").Body(
				app.H3().Text("About dtools"),
				app.P().Text("dtools is a set of document utilities built with Go and WebAssembly."),
				app.P().Text("PDF pages are rendered on this machine and held in memory only until you reset or the workspace expires."),
			),
		),
	)
}

// renderInfoItem creates an info item display
func (a *AboutPage) renderInfoItem(label, value string) app.UI {
	return app.Div().Class("info-item").Body(
		app.Div().Class("info-label").Body(app.Text(label)),
		app.Div().Class("info-value").Body(app.Text(value)),
	)
}

// getDatabaseDisplay returns a user-friendly database display name
func (a *AboutPage) getDatabaseDisplay() string {
	switch a.aboutInfo.DatabaseType {
	case "postgres":
		return "PostgreSQL"
	case "cockroachdb":
		return "CockroachDB"
	case "sqlite":
		return "SQLite"
	case "memory", "":
		return "In memory (SQLite)"
	case "ephemeral":
		return "Ephemeral PostgreSQL"
	default:
		return a.aboutInfo.DatabaseType
	}
}

// hasDatabaseServer reports whether the job log lives on a database server
func (a *AboutPage) hasDatabaseServer() bool {
	switch a.aboutInfo.DatabaseType {
	case "postgres", "cockroachdb":
		return true
	default:
		return false
	}
}

// getBackendDisplay names the rendering engine
func (a *AboutPage) getBackendDisplay() string {
	switch a.aboutInfo.RenderBackend {
	case "pdfium", "":
		return "PDFium (WebAssembly)"
	case "fitz":
		return "MuPDF"
	default:
		return a.aboutInfo.RenderBackend
	}
}

// getScaleDisplay shows the scale with the resolution it gives
func (a *AboutPage) getScaleDisplay() string {
	return fmt.Sprintf("%gx (%.0f DPI)", a.aboutInfo.RenderScale, a.aboutInfo.RenderScale*72)
}
