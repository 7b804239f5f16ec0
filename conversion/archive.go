package conversion

import (
	"archive/zip"
	"fmt"
	"io"
)

// WriteArchive writes a ZIP of every converted page of s to w. Failed pages
// are left out. It returns the number of entries written.
func WriteArchive(w io.Writer, s *Session) (int, error) {
	if s == nil {
		return 0, fmt.Errorf("%w: no document", ErrArchive)
	}

	zw := zip.NewWriter(w)
	entries := 0
	for _, page := range s.Pages {
		if !page.OK() {
			continue
		}
		// PNG data is already compressed
		f, err := zw.CreateHeader(&zip.FileHeader{
			Name:     PageFileName(s.Name, page.PageNumber),
			Method:   zip.Store,
			Modified: s.CreatedAt,
		})
		if err != nil {
			return entries, fmt.Errorf("%w: %w", ErrArchive, err)
		}
		if _, err := f.Write(page.Data); err != nil {
			return entries, fmt.Errorf("%w: %w", ErrArchive, err)
		}
		entries++
	}
	if err := zw.Close(); err != nil {
		return entries, fmt.Errorf("%w: %w", ErrArchive, err)
	}
	return entries, nil
}
