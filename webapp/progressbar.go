package webapp

import (
	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

// ProgressBar shows the document name over an animated fill
type ProgressBar struct {
	app.Compo
	Text         string
	ErrorMessage string
	Value        float64
	Max          float64
	OnClick      app.EventHandler
}

// Render renders the progress bar
func (p *ProgressBar) Render() app.UI {
	class := "progress-pill"
	if p.ErrorMessage != "" {
		class += " progress-pill-error"
	}
	if p.OnClick != nil {
		class += " progress-pill-clickable"
	}

	return app.Div().Class("progress-container").Body(
		app.Div().
			Class(class).
			OnClick(p.onClick).
			Body(
				app.Div().Class("progress-track"),
				app.Div().
					Class("progress-fill").
					Style("width", progressPercent(p.Value, p.Max)),
				app.Div().Class("progress-label").Text(p.Text),
			),
		app.If(p.ErrorMessage != "", func() app.UI {
			return app.P().Class("progress-error").Text(p.ErrorMessage)
		}),
	)
}

func (p *ProgressBar) onClick(ctx app.Context, e app.Event) {
	if p.OnClick != nil {
		p.OnClick(ctx, e)
	}
}
