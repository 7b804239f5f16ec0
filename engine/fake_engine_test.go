package engine

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/drummonds/dtools/engine/pdfrenderer"
)

// fakeEngine opens anything starting with "%PDF" as a document of pages
// square pages, 10*scale pixels a side
type fakeEngine struct {
	pages     int
	failPages map[int]bool
	gate      chan struct{}
}

func (e *fakeEngine) Open(ctx context.Context, data []byte) (pdfrenderer.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(data) < 4 || string(data[:4]) != "%PDF" {
		return nil, fmt.Errorf("%w: missing header", pdfrenderer.ErrInvalidDocument)
	}
	return &fakeDocument{engine: e}, nil
}

func (e *fakeEngine) Close() error { return nil }

type fakeDocument struct {
	engine *fakeEngine
}

func (d *fakeDocument) PageCount() int { return d.engine.pages }

func (d *fakeDocument) RenderPage(ctx context.Context, pageNumber int, scale float64) (image.Image, error) {
	if d.engine.gate != nil {
		select {
		case <-d.engine.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.engine.failPages[pageNumber] {
		return nil, fmt.Errorf("%w: page %d", pdfrenderer.ErrPageRender, pageNumber)
	}
	size := int(10 * scale)
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	img.Set(0, 0, color.RGBA{G: uint8(pageNumber), A: 255})
	return img, nil
}

func (d *fakeDocument) Close() error { return nil }
