package pdfrenderer

import (
	"context"
	"fmt"
	"image"
	"math"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/references"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/webassembly"
)

// PDFiumEngine implements PDF rendering using go-pdfium with WebAssembly (pure Go, no CGo)
type PDFiumEngine struct {
	pool    pdfium.Pool
	timeout time.Duration
}

// NewPDFiumEngine initialises the WebAssembly worker pool described by cfg
func NewPDFiumEngine(cfg Config) (*PDFiumEngine, error) {
	maxTotal := cfg.MaxInstances
	if maxTotal < 1 {
		maxTotal = 1
	}
	timeout := cfg.InstanceTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	pool, err := webassembly.Init(webassembly.Config{
		MinIdle:  1,
		MaxIdle:  maxTotal,
		MaxTotal: maxTotal,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PDFium WebAssembly: %w", err)
	}

	return &PDFiumEngine{pool: pool, timeout: timeout}, nil
}

// Open checks out a PDFium instance for the lifetime of the document
func (e *PDFiumEngine) Open(ctx context.Context, data []byte) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	instance, err := e.pool.GetInstance(e.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to get PDFium instance: %w", err)
	}

	doc, err := instance.OpenDocument(&requests.OpenDocument{
		File: &data,
	})
	if err != nil {
		instance.Close()
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	pageCountResp, err := instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{
		Document: doc.Document,
	})
	if err != nil {
		instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: doc.Document})
		instance.Close()
		return nil, fmt.Errorf("%w: unable to get page count: %w", ErrInvalidDocument, err)
	}

	return &pdfiumDocument{
		instance: instance,
		document: doc.Document,
		pages:    pageCountResp.PageCount,
	}, nil
}

// Close cleans up resources used by the PDFium engine
func (e *PDFiumEngine) Close() error {
	if e.pool != nil {
		err := e.pool.Close()
		e.pool = nil
		return err
	}
	return nil
}

type pdfiumDocument struct {
	mu       sync.Mutex
	instance pdfium.Pdfium
	document references.FPDF_DOCUMENT
	pages    int
	closed   bool
}

func (d *pdfiumDocument) PageCount() int {
	return d.pages
}

func (d *pdfiumDocument) RenderPage(ctx context.Context, pageNumber int, scale float64) (image.Image, error) {
	if err := checkPage(pageNumber, d.pages); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("%w: page %d: document closed", ErrPageRender, pageNumber)
	}

	pageRender, err := d.instance.RenderPageInDPI(&requests.RenderPageInDPI{
		DPI: int(math.Round(ScaleToDPI(scale))),
		Page: requests.Page{
			ByIndex: &requests.PageByIndex{
				Document: d.document,
				Index:    pageNumber - 1,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %w", ErrPageRender, pageNumber, err)
	}
	defer pageRender.Cleanup()

	// The bitmap belongs to the WebAssembly runtime until Cleanup, so copy it out
	return imaging.Clone(pageRender.Result.Image), nil
}

func (d *pdfiumDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	_, err := d.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: d.document})
	if closeErr := d.instance.Close(); err == nil {
		err = closeErr
	}
	return err
}
