package pdfrenderer

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Info is the document metadata shown alongside a conversion
type Info struct {
	Title     string
	Author    string
	PageCount int
}

// ReadInfo extracts the info dictionary of a PDF. It is best effort: the
// parser is stricter than the rasterisers, so callers should not fail a
// conversion because of an error here.
func ReadInfo(data []byte) (info Info, err error) {
	// The parser panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			info = Info{}
			err = fmt.Errorf("%w: %v", ErrInvalidDocument, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Info{}, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	dict := reader.Trailer().Key("Info")
	info.Title = strings.TrimSpace(dict.Key("Title").Text())
	info.Author = strings.TrimSpace(dict.Key("Author").Text())
	info.PageCount = reader.NumPage()
	return info, nil
}
