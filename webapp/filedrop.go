package webapp

import (
	"slices"
	"strings"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
)

const fileDropInputID = "file-drop-input"

// FileDrop is a click or drag and drop target for choosing files
type FileDrop struct {
	app.Compo
	FileTypes []string
	Multiple  bool
	OnFiles   func(ctx app.Context, files []app.Value)

	draggingOver bool
}

// Render renders the drop zone
func (d *FileDrop) Render() app.UI {
	class := "file-drop"
	label := "Click here OR drag files here to start"
	if d.draggingOver {
		class += " file-drop-active"
		label = "Drop files here to start"
	}

	return app.Div().
		Class(class).
		OnDragOver(d.onDragOver).
		OnDragEnter(d.onDragEnter).
		OnDragLeave(d.onDragLeave).
		OnDrop(d.onDrop).
		OnClick(d.onClick).
		Body(
			app.Input().
				ID(fileDropInputID).
				Type("file").
				Class("hidden").
				Accept(strings.Join(d.FileTypes, ", ")).
				Multiple(d.Multiple).
				OnChange(d.onInputChange),
			app.Span().Text(label),
		)
}

func (d *FileDrop) onDragOver(ctx app.Context, e app.Event) {
	e.PreventDefault()
	d.draggingOver = true
	if dt := e.Get("dataTransfer"); dt.Truthy() {
		dt.Set("dropEffect", "copy")
	}
}

func (d *FileDrop) onDragEnter(ctx app.Context, e app.Event) {
	d.draggingOver = true
}

func (d *FileDrop) onDragLeave(ctx app.Context, e app.Event) {
	d.draggingOver = false
}

func (d *FileDrop) onClick(ctx app.Context, e app.Event) {
	if input := app.Window().GetElementByID(fileDropInputID); input.Truthy() {
		input.Call("click")
	}
}

func (d *FileDrop) onDrop(ctx app.Context, e app.Event) {
	// keep the browser from opening the file
	e.Call("stopPropagation")
	e.PreventDefault()
	d.draggingOver = false

	dt := e.Get("dataTransfer")
	if !dt.Truthy() {
		return
	}

	var files []app.Value
	if items := dt.Get("items"); items.Truthy() && items.Length() > 0 {
		for i := 0; i < items.Length(); i++ {
			item := items.Index(i)
			if item.Get("kind").String() != "file" {
				continue
			}
			if f := item.Call("getAsFile"); f.Truthy() {
				files = append(files, f)
			}
		}
	} else if list := dt.Get("files"); list.Truthy() {
		for i := 0; i < list.Length(); i++ {
			files = append(files, list.Index(i))
		}
	}
	d.emit(ctx, files)
}

func (d *FileDrop) onInputChange(ctx app.Context, e app.Event) {
	input := ctx.JSSrc()
	list := input.Get("files")
	if !list.Truthy() {
		return
	}
	var files []app.Value
	for i := 0; i < list.Length(); i++ {
		files = append(files, list.Index(i))
	}
	// so the same file can be picked again
	input.Set("value", "")
	d.emit(ctx, files)
}

// emit prefers files of an accepted type. When none match they are all
// passed on so the caller can report the wrong type.
func (d *FileDrop) emit(ctx app.Context, files []app.Value) {
	if len(files) == 0 || d.OnFiles == nil {
		return
	}
	var types []string
	for _, f := range files {
		types = append(types, f.Get("type").String())
	}
	if keep := acceptedFiles(types, d.FileTypes); len(keep) > 0 {
		matching := make([]app.Value, 0, len(keep))
		for _, i := range keep {
			matching = append(matching, files[i])
		}
		files = matching
	}
	if !d.Multiple {
		files = files[:1]
	}
	d.OnFiles(ctx, files)
}

// acceptedFiles returns the indexes of types found in accepted
func acceptedFiles(types, accepted []string) []int {
	var keep []int
	for i, t := range types {
		if slices.Contains(accepted, t) {
			keep = append(keep, i)
		}
	}
	return keep
}
