package pdfrenderer

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/gen2brain/go-fitz"
)

// FitzEngine implements PDF rendering using go-fitz (requires CGo and MuPDF)
type FitzEngine struct{}

// NewFitzEngine creates a new Fitz-based PDF engine
func NewFitzEngine() (*FitzEngine, error) {
	return &FitzEngine{}, nil
}

// Open parses the PDF bytes with MuPDF
func (e *FitzEngine) Open(ctx context.Context, data []byte) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	return &fitzDocument{doc: doc, pages: doc.NumPage()}, nil
}

// Close is a no-op for the Fitz engine as documents are closed individually
func (e *FitzEngine) Close() error {
	return nil
}

type fitzDocument struct {
	mu    sync.Mutex
	doc   *fitz.Document
	pages int
}

func (d *fitzDocument) PageCount() int {
	return d.pages
}

func (d *fitzDocument) RenderPage(ctx context.Context, pageNumber int, scale float64) (image.Image, error) {
	if err := checkPage(pageNumber, d.pages); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	img, err := d.doc.ImageDPI(pageNumber-1, ScaleToDPI(scale))
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %w", ErrPageRender, pageNumber, err)
	}
	return img, nil
}

func (d *fitzDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Close()
}
