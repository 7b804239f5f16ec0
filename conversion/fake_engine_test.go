package conversion

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"

	"github.com/drummonds/dtools/engine/pdfrenderer"
)

// fakeEngine opens any buffer starting with "%PDF" as a document of pages pages
type fakeEngine struct {
	pages     int
	failPages map[int]bool

	// blankPages render as 0x0 images, which the PNG encoder rejects
	blankPages map[int]bool

	// gate, when set, is received from before each page renders
	gate chan struct{}

	mu       sync.Mutex
	rendered []int
	scales   []float64
	closed   int
}

func (e *fakeEngine) Open(ctx context.Context, data []byte) (pdfrenderer.Document, error) {
	if len(data) < 4 || string(data[:4]) != "%PDF" {
		return nil, fmt.Errorf("%w: missing header", pdfrenderer.ErrInvalidDocument)
	}
	return &fakeDocument{engine: e}, nil
}

func (e *fakeEngine) Close() error { return nil }

func (e *fakeEngine) renderedPages() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int(nil), e.rendered...)
}

type fakeDocument struct {
	engine *fakeEngine
}

func (d *fakeDocument) PageCount() int { return d.engine.pages }

func (d *fakeDocument) RenderPage(ctx context.Context, pageNumber int, scale float64) (image.Image, error) {
	e := d.engine
	if e.gate != nil {
		select {
		case <-e.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	e.mu.Lock()
	e.rendered = append(e.rendered, pageNumber)
	e.scales = append(e.scales, scale)
	e.mu.Unlock()

	if e.failPages[pageNumber] {
		return nil, fmt.Errorf("%w: page %d is broken", pdfrenderer.ErrPageRender, pageNumber)
	}
	if e.blankPages[pageNumber] {
		return image.NewRGBA(image.Rectangle{}), nil
	}
	size := int(10 * scale)
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	img.Set(0, 0, color.RGBA{R: uint8(pageNumber), A: 255})
	return img, nil
}

func (d *fakeDocument) Close() error {
	d.engine.mu.Lock()
	defer d.engine.mu.Unlock()
	d.engine.closed++
	return nil
}
