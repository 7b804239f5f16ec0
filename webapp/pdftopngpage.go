package webapp

import (
	"fmt"
	"net/url"
	"time"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

const pollInterval = 500 * time.Millisecond

// PDFToPNGPage converts a PDF into one PNG per page
type PDFToPNGPage struct {
	app.Compo
	workspace string
	view      WorkspaceView
	loaded    bool

	// name of the file being sent, shown until the server has a session
	uploadName string
	uploading  bool
	error      string

	stopPoll chan struct{}

	// generation is bumped by reset and upload so that snapshot requests
	// sent before them are dropped when they answer
	generation uint64
}

// OnMount is called when the component is mounted
func (p *PDFToPNGPage) OnMount(ctx app.Context) {
	p.workspace = workspaceID(ctx)
	p.loadWorkspace(ctx)
}

// OnDismount is called when the component is unmounted
func (p *PDFToPNGPage) OnDismount() {
	p.stopPolling()
}

func (p *PDFToPNGPage) workspaceURL(suffix string) string {
	return BuildAPIURL("/api/workspaces/" + p.workspace + suffix)
}

// loadWorkspace fetches the current snapshot, picking up a conversion that
// was started before a reload
func (p *PDFToPNGPage) loadWorkspace(ctx app.Context) {
	fetchText(ctx, p.workspaceURL(""), nil,
		p.onWorkspaceReply(p.generation),
		func(ctx app.Context) {
			p.loaded = true
			p.error = "Network error: Could not connect to server"
		})
}

// onWorkspaceReply handles a snapshot requested during generation gen
func (p *PDFToPNGPage) onWorkspaceReply(gen uint64) func(ctx app.Context, status int, body string) {
	return func(ctx app.Context, status int, body string) {
		if gen != p.generation {
			return
		}
		p.loaded = true
		if status < 200 || status >= 300 {
			p.error = fmt.Sprintf("Failed to load conversion (status: %d)", status)
			return
		}
		view, err := decodeWorkspace(body)
		if err != nil {
			p.error = "Failed to parse conversion: " + err.Error()
			return
		}
		p.apply(ctx, view)
	}
}

// apply takes a snapshot, ignoring a late reply for the session already shown
func (p *PDFToPNGPage) apply(ctx app.Context, view WorkspaceView) {
	if isOlder(view, p.view) {
		return
	}
	p.view = view
	p.error = ""
	if p.uploading || (view.Session != nil && !view.Session.Finished) {
		p.startPolling(ctx)
	} else {
		p.stopPolling()
	}
}

// isOlder reports whether next is an earlier snapshot of the session in cur.
// A workspace evicted by the server restarts its versions, so only the same
// session is compared.
func isOlder(next, cur WorkspaceView) bool {
	if next.Session == nil || cur.Session == nil || next.Session.ID != cur.Session.ID {
		return false
	}
	return next.Version < cur.Version
}

func (p *PDFToPNGPage) startPolling(ctx app.Context) {
	if p.stopPoll != nil {
		return
	}
	stop := make(chan struct{})
	p.stopPoll = stop
	ctx.Async(func() {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				p.loadWorkspace(ctx)
			}
		}
	})
}

func (p *PDFToPNGPage) stopPolling() {
	if p.stopPoll != nil {
		close(p.stopPoll)
		p.stopPoll = nil
	}
}

// onFiles sends the chosen file to the server. A file that does not claim to
// be a PDF is announced without its contents so the server records the
// rejection.
func (p *PDFToPNGPage) onFiles(ctx app.Context, files []app.Value) {
	if len(files) == 0 || p.uploading {
		return
	}
	file := files[0]
	name := file.Get("name").String()
	fileType := file.Get("type").String()

	headers := map[string]string{"X-File-Name": url.PathEscape(name)}
	if fileType != "" {
		headers["Content-Type"] = fileType
	}
	var body app.Value
	if looksLikePDF(fileType) {
		body = file
	}

	p.generation++
	p.uploading = true
	p.uploadName = displayName(name)
	p.error = ""
	p.startPolling(ctx)

	fetchText(ctx, p.workspaceURL("/document"), newRequestInit("POST", headers, body),
		func(ctx app.Context, status int, body string) {
			p.uploading = false
			view, err := decodeWorkspace(body)
			if err != nil {
				p.error = fmt.Sprintf("Upload failed (status: %d)", status)
				p.stopPolling()
				return
			}
			p.apply(ctx, view)
		},
		func(ctx app.Context) {
			p.uploading = false
			p.error = "Network error: Could not connect to server"
			p.stopPolling()
		})
}

// onReset clears the pages after confirmation
func (p *PDFToPNGPage) onReset(ctx app.Context, e app.Event) {
	if p.view.Session == nil {
		return
	}
	if !app.Window().Call("confirm", "Reset? This will clear the pages you currently have.").Bool() {
		return
	}
	p.reset(ctx)
}

func (p *PDFToPNGPage) reset(ctx app.Context) {
	p.stopPolling()
	p.generation++
	fetchText(ctx, p.workspaceURL(""), newRequestInit("DELETE", nil, nil),
		func(ctx app.Context, status int, body string) {
			view, err := decodeWorkspace(body)
			if err != nil {
				p.error = fmt.Sprintf("Reset failed (status: %d)", status)
				return
			}
			p.view = view
			p.error = ""
		},
		func(ctx app.Context) {
			p.error = "Network error: Could not connect to server"
		})
}

// Render renders the converter
func (p *PDFToPNGPage) Render() app.UI {
	sess := p.view.Session
	showPicker := p.loaded && sess == nil && !p.uploading

	return app.Div().
		Class("pdf-to-png").
		Body(
			app.H2().Text("PDF → PNGs"),

			app.If(showPicker, func() app.UI {
				return &FileDrop{
					FileTypes: pdfFileTypes,
					OnFiles:   p.onFiles,
				}
			}),

			app.If(!p.loaded, func() app.UI {
				return app.Div().Class("loading").Body(app.Text("Loading..."))
			}),

			app.If(sess == nil && p.uploading, func() app.UI {
				return &ProgressBar{Text: p.uploadName + " (uploading)", Max: 100}
			}),

			app.If(sess != nil, func() app.UI {
				return &ProgressBar{
					Text:         statusText(sess),
					ErrorMessage: sess.Error,
					Value:        sess.Progress,
					Max:          100,
					OnClick:      p.onReset,
				}
			}),

			app.If(p.error != "", func() app.UI {
				return app.Div().Class("error").Body(app.Text("Error: " + p.error))
			}),

			app.If(sess != nil && len(sess.Pages) > 0, func() app.UI {
				return p.renderPages(sess)
			}),

			app.If(sess != nil && sess.Finished, func() app.UI {
				return p.renderActions(sess)
			}),
		)
}

func (p *PDFToPNGPage) renderPages(sess *SessionView) app.UI {
	return app.Div().Class("page-grid").Body(
		app.Range(sess.Pages).Slice(func(i int) app.UI {
			return p.renderPage(sess.Pages[i])
		}),
	)
}

func (p *PDFToPNGPage) renderPage(page PageView) app.UI {
	badge := app.Span().Class("page-badge").Text(formatBytes(int64(page.SizeBytes)))
	thumb := app.Div().Class("page-thumb")
	link := app.A().Class("page-tile")

	if page.URL == "" {
		badge = app.Span().Class("page-badge page-badge-error").Text(page.Error)
	} else {
		thumb = thumb.Style("background-image", fmt.Sprintf("url(%q)", BuildAPIURL(page.ThumbnailURL)))
		link = link.
			Href(BuildAPIURL(page.URL)).
			Attr("download", page.FileName).
			Title(fmt.Sprintf("Click to download page %d as a PNG", page.PageNumber))
	}

	return link.Body(
		thumb.Body(badge),
		app.Text(fmt.Sprintf("Page %d", page.PageNumber)),
	)
}

func (p *PDFToPNGPage) renderActions(sess *SessionView) app.UI {
	return app.Div().Class("pdf-actions").Body(
		app.Button().
			Class("btn-link").
			Title("Clear the current pages and start again.").
			OnClick(func(ctx app.Context, e app.Event) { p.reset(ctx) }).
			Body(app.Text("Reset")),
		app.If(sess.ArchiveURL != "", func() app.UI {
			return app.A().
				Class("btn-link").
				Href(BuildAPIURL(sess.ArchiveURL)).
				Attr("download", sess.ArchiveName).
				Title(fmt.Sprintf("Download all %d pages in a ZIP file.", sess.PageCount)).
				Body(app.Text("Download All"))
		}),
	)
}
