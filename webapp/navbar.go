package webapp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/drummonds/dtools/internal/build"
	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// NavBar is the navigation bar component
type NavBar struct {
	app.Compo
	activeJobCount int
	refreshTicker  *time.Ticker
}

// Render renders the navigation bar
func (n *NavBar) Render() app.UI {
	return app.Nav().
		Class("navbar").
		Body(
			app.Button().
				Class("hamburger-menu").
				ID("menu-toggle").
				OnClick(n.onMenuToggle).
				Body(
					// Three horizontal lines for hamburger menu
					app.Span().Class("hamburger-line"),
					app.Span().Class("hamburger-line"),
					app.Span().Class("hamburger-line"),
				),
			app.Div().Class("navbar-brand").Body(
				app.H1().Text("dtools"),
				app.Span().Class("version-info").Body(
					app.Text(n.getVersionInfo()),
				),
			),
			app.Div().Class("navbar-menu").Body(n.renderMenu()...),
		)
}

// renderMenu links home, each tool, and the job log
func (n *NavBar) renderMenu() []app.UI {
	items := []app.UI{
		app.A().Href("/").Class("navbar-item").Body(app.Text("Home")),
	}
	for _, t := range tools {
		items = append(items, app.A().Href(t.Path).Class("navbar-item").Body(app.Text(t.Name)))
	}
	return append(items,
		app.A().Href("/jobs").Class("navbar-item").Body(app.Text("Jobs")),
		app.A().Href("/about").Class("navbar-item").Body(app.Text("About")),
	)
}

// onMenuToggle handles the hamburger menu click
func (n *NavBar) onMenuToggle(ctx app.Context, e app.Event) {
	// Dispatch a custom event to toggle the sidebar
	ctx.Dispatch(func(ctx app.Context) {
		ctx.LocalStorage().Set("sidebar-open", !n.isSidebarOpen(ctx))
		ctx.Reload()
	})
}

// isSidebarOpen checks if the sidebar is currently open
func (n *NavBar) isSidebarOpen(ctx app.Context) bool {
	var isOpen bool
	ctx.LocalStorage().Get("sidebar-open", &isOpen)
	return isOpen
}

// OnMount is called when the component is mounted
func (n *NavBar) OnMount(ctx app.Context) {
	n.loadActiveJobCount(ctx)

	// Start auto-refresh every 5 seconds
	ctx.Async(func() {
		n.refreshTicker = time.NewTicker(5 * time.Second)
		for range n.refreshTicker.C {
			n.loadActiveJobCount(ctx)
		}
	})
}

// OnDismount is called when the component is unmounted
func (n *NavBar) OnDismount() {
	if n.refreshTicker != nil {
		n.refreshTicker.Stop()
	}
}

// getVersionInfo returns formatted version and date information with job count
func (n *NavBar) getVersionInfo() string {
	date := build.BuildDate
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}

	return versionInfo(build.Version, date, n.activeJobCount)
}

// versionInfo formats the navbar tag line
func versionInfo(version, date string, activeJobs int) string {
	jobInfo := ""
	if activeJobs > 0 {
		jobInfo = fmt.Sprintf(" | %d converting", activeJobs)
	}
	return fmt.Sprintf("%s | %s%s", version, date, jobInfo)
}

// loadActiveJobCount fetches the count of running conversions from the API
func (n *NavBar) loadActiveJobCount(ctx app.Context) {
	fetchText(ctx, BuildAPIURL("/api/jobs/active"), nil,
		func(ctx app.Context, status int, body string) {
			var jobs []Job
			if status < 200 || status >= 300 || json.Unmarshal([]byte(body), &jobs) != nil {
				n.activeJobCount = 0
				return
			}
			n.activeJobCount = len(jobs)
		},
		func(ctx app.Context) {
			// Silently fail - keep the last count on network error
		})
}
