package conversion

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"sync"

	"github.com/drummonds/dtools/engine/pdfrenderer"
	"github.com/oklog/ulid/v2"
)

// DefaultScale renders pages at three times their natural size
const DefaultScale = 3.0

// Pipeline renders the pages of one document strictly one after another,
// encoding each to PNG and appending the result to the session.
type Pipeline struct {
	Scale float64

	encoder png.Encoder
}

// NewPipeline returns a pipeline rendering at scale
func NewPipeline(scale float64) *Pipeline {
	if scale <= 0 {
		scale = DefaultScale
	}
	return &Pipeline{
		Scale: scale,
		encoder: png.Encoder{
			CompressionLevel: png.DefaultCompression,
			BufferPool:       &encoderPool{},
		},
	}
}

// Run converts pages 1..PageCount of doc into session id. Page failures are
// recorded and do not stop the run. It returns ErrStale if the session is
// replaced, or the context error if the run is cancelled.
func (p *Pipeline) Run(ctx context.Context, state *State, id ulid.ULID, doc pdfrenderer.Document) error {
	pageCount := doc.PageCount()
	for pageNumber := 1; pageNumber <= pageCount; pageNumber++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		result := p.convertPage(ctx, doc, pageNumber)
		if result.Err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			Logger.Warn("Page conversion failed", "session", id, "page", pageNumber, "error", result.Err)
		} else {
			Logger.Debug("Page converted", "session", id, "page", pageNumber, "bytes", result.SizeBytes)
		}

		if !state.Update(id, func(s Session) Session { return s.withPage(result) }) {
			return ErrStale
		}
	}
	return nil
}

func (p *Pipeline) convertPage(ctx context.Context, doc pdfrenderer.Document, pageNumber int) (result PageResult) {
	result.PageNumber = pageNumber
	defer func() {
		if r := recover(); r != nil {
			result = PageResult{PageNumber: pageNumber, Err: fmt.Errorf("%w: page %d: panic: %v", ErrPageRender, pageNumber, r)}
		}
	}()

	img, err := doc.RenderPage(ctx, pageNumber, p.Scale)
	if err != nil {
		result.Err = err
		return result
	}

	var buf bytes.Buffer
	if err := p.encoder.Encode(&buf, img); err != nil {
		result.Err = fmt.Errorf("%w: page %d: %w", ErrEncode, pageNumber, err)
		return result
	}
	result.Data = buf.Bytes()
	result.SizeBytes = buf.Len()
	return result
}

// encoderPool lets consecutive pages reuse the encoder's scratch buffers
type encoderPool struct {
	pool sync.Pool
}

func (ep *encoderPool) Get() *png.EncoderBuffer {
	b, _ := ep.pool.Get().(*png.EncoderBuffer)
	return b
}

func (ep *encoderPool) Put(b *png.EncoderBuffer) {
	ep.pool.Put(b)
}
