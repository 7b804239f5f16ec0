package pdfrenderer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"
)

var (
	// ErrInvalidDocument is returned by Engine.Open when the bytes are not a readable PDF
	ErrInvalidDocument = errors.New("invalid PDF document")
	// ErrPageRender is returned by Document.RenderPage when a single page cannot be rasterised
	ErrPageRender = errors.New("page render failed")
	// ErrPageOutOfRange is returned for page numbers outside 1..PageCount
	ErrPageOutOfRange = errors.New("page number out of range")
)

// Backend names accepted by New
const (
	BackendPDFium = "pdfium"
	BackendFitz   = "fitz"
)

// pointsPerInch is the PDF user space unit, so scale 1 renders at 72 DPI
const pointsPerInch = 72.0

// Engine opens PDF byte buffers as documents
type Engine interface {
	// Open parses data as a PDF. Parse failures wrap ErrInvalidDocument.
	Open(ctx context.Context, data []byte) (Document, error)

	// Close cleans up any resources used by the engine
	Close() error
}

// Document is an opened PDF
type Document interface {
	PageCount() int

	// RenderPage rasterises the 1-based pageNumber at the given linear scale.
	// A failure affects only that page and wraps ErrPageRender or ErrPageOutOfRange.
	RenderPage(ctx context.Context, pageNumber int, scale float64) (image.Image, error)

	Close() error
}

// Config is handed to New instead of living in package state, so several
// engines (or test doubles) can coexist
type Config struct {
	Backend         string
	MaxInstances    int
	InstanceTimeout time.Duration
}

// New creates the engine selected by cfg.Backend
func New(cfg Config) (Engine, error) {
	switch cfg.Backend {
	case "", BackendPDFium:
		return NewPDFiumEngine(cfg)
	case BackendFitz:
		return NewFitzEngine()
	default:
		return nil, fmt.Errorf("unknown render backend %q (supported: %s, %s)", cfg.Backend, BackendPDFium, BackendFitz)
	}
}

// ScaleToDPI converts a linear magnification into the DPI the rasterisers expect
func ScaleToDPI(scale float64) float64 {
	return pointsPerInch * scale
}

// checkPage validates a 1-based page number against the page count
func checkPage(pageNumber, pageCount int) error {
	if pageNumber < 1 || pageNumber > pageCount {
		return fmt.Errorf("%w: page %d of %d", ErrPageOutOfRange, pageNumber, pageCount)
	}
	return nil
}
