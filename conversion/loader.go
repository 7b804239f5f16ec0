package conversion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

const (
	loadChunkSize = 64 << 10
	// a declared size is only a hint, so never trust it for more than this
	maxPrealloc = 256 << 20
)

// ProgressFunc receives the fraction of bytes loaded so far
type ProgressFunc func(fraction float64)

// Load reads r into memory. When total is known (> 0) onProgress is called as
// chunks arrive with a non-decreasing fraction; on success it is always
// called with 1. A limit > 0 caps the number of bytes accepted.
func Load(ctx context.Context, r io.Reader, total, limit int64, onProgress ProgressFunc) ([]byte, error) {
	if onProgress == nil {
		onProgress = func(float64) {}
	}
	if limit > 0 && total > limit {
		return nil, fmt.Errorf("%w: file is %d bytes, limit is %d", ErrIO, total, limit)
	}

	var buf bytes.Buffer
	if total > 0 {
		buf.Grow(int(min(total, maxPrealloc)))
	}

	chunk := make([]byte, loadChunkSize)
	var reported float64
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n, err := r.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
			if limit > 0 && int64(buf.Len()) > limit {
				return nil, fmt.Errorf("%w: file exceeds the %d byte limit", ErrIO, limit)
			}
			if total > 0 {
				if f := min(float64(buf.Len())/float64(total), 1); f > reported {
					reported = f
					onProgress(f)
				}
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrIO, err)
		}
	}

	if reported < 1 {
		onProgress(1)
	}
	return buf.Bytes(), nil
}
