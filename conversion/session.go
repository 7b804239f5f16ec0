package conversion

import (
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Logger is injected by main
var Logger = slog.Default()

// Progress weights, summing to 100
const (
	uploadWeight = 25
	pagesWeight  = 75
)

// PageResult is one converted or failed page. After processing exactly one
// of Data and Err is set.
type PageResult struct {
	PageNumber int
	Data       []byte // encoded PNG
	SizeBytes  int
	Err        error
}

// OK reports whether the page converted
func (p PageResult) OK() bool {
	return p.Err == nil && p.Data != nil
}

// Session is one document conversion. Values are never changed after they
// are published to a State; every change produces a new Session.
type Session struct {
	ID        ulid.ULID
	Name      string
	Title     string // from the document info dictionary, may be empty
	CreatedAt time.Time

	PageCount      int
	UploadProgress float64
	Err            error
	Pages          []PageResult
}

// NewSession starts an empty session for the uploaded filename
func NewSession(filename string) *Session {
	return &Session{
		ID:        ulid.Make(),
		Name:      DocumentName(filename),
		CreatedAt: time.Now(),
	}
}

func (s Session) withUploadProgress(fraction float64) Session {
	if fraction > s.UploadProgress {
		s.UploadProgress = min(fraction, 1)
	}
	return s
}

func (s Session) withDocument(pageCount int, title string) Session {
	s.PageCount = pageCount
	s.Title = title
	return s
}

func (s Session) withError(err error) Session {
	s.Err = err
	return s
}

// withPage appends, always copying so earlier snapshots keep their slice
func (s Session) withPage(p PageResult) Session {
	s.Pages = append(s.Pages[:len(s.Pages):len(s.Pages)], p)
	return s
}

// Done reports whether every page has a result and the document did not fail
func (s *Session) Done() bool {
	return s != nil && s.Err == nil && s.PageCount > 0 && len(s.Pages) == s.PageCount
}

// Finished reports whether no more changes will come from the conversion run
func (s *Session) Finished() bool {
	return s != nil && (s.Err != nil || (s.PageCount > 0 && len(s.Pages) == s.PageCount))
}

// Page returns the result for a 1-based page number
func (s *Session) Page(pageNumber int) (PageResult, bool) {
	if s == nil || pageNumber < 1 || pageNumber > len(s.Pages) {
		return PageResult{}, false
	}
	return s.Pages[pageNumber-1], true
}

// Counts returns how many pages converted and how many failed
func (s *Session) Counts() (succeeded, failed int) {
	if s == nil {
		return 0, 0
	}
	for _, p := range s.Pages {
		if p.OK() {
			succeeded++
		} else if p.Err != nil {
			failed++
		}
	}
	return succeeded, failed
}

// Progress is the overall completion percentage shown to the user. Upload
// counts for a quarter, rendered pages for the rest.
func Progress(s *Session) float64 {
	if s == nil {
		return 0
	}
	p := s.UploadProgress * uploadWeight
	if s.PageCount > 0 {
		p += float64(len(s.Pages)) / float64(s.PageCount) * pagesWeight
	}
	return p
}

// DocumentName strips the directory and the last extension from filename.
// A name with no extension is kept whole.
func DocumentName(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	if base == "." || base == "/" {
		return "document"
	}
	if ext := filepath.Ext(base); ext != "" && ext != base {
		base = strings.TrimSuffix(base, ext)
	}
	return base
}

// LooksLikePDF is the fast pre-check on a declared media type. An absent
// type passes, the document engine has the final word.
func LooksLikePDF(declaredType string) bool {
	declaredType = strings.TrimSpace(declaredType)
	if declaredType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(declaredType)
	if err != nil {
		mediaType = strings.ToLower(declaredType)
	}
	return strings.HasSuffix(mediaType, "pdf")
}

// PageFileName names the PNG for one page
func PageFileName(name string, pageNumber int) string {
	return fmt.Sprintf("%s-page-%d.png", name, pageNumber)
}

// ArchiveName names the ZIP holding every page
func ArchiveName(name string) string {
	return name + "-pages.zip"
}
