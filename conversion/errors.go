package conversion

import (
	"errors"

	"github.com/drummonds/dtools/engine/pdfrenderer"
)

// Document level failures end a session, page level failures are recorded on
// the PageResult and the run carries on.
var (
	ErrWrongFileType   = errors.New("declared file type is not PDF")
	ErrInvalidDocument = pdfrenderer.ErrInvalidDocument
	ErrPageRender      = pdfrenderer.ErrPageRender
	ErrEncode          = errors.New("png encode failed")
	ErrArchive         = errors.New("archive failed")
	ErrIO              = errors.New("read failed")

	// ErrStale is returned when a run finds its session has been replaced or reset
	ErrStale = errors.New("session no longer current")
)

// Error kinds reported to clients
const (
	KindWrongFileType     = "WrongFileType"
	KindInvalidDocument   = "InvalidDocument"
	KindPageRenderFailure = "PageRenderFailure"
	KindEncodeFailure     = "EncodeFailure"
	KindArchiveFailure    = "ArchiveFailure"
	KindIOFailure         = "IOFailure"
	KindUnknown           = "Unknown"
)

// Kind names the taxonomy entry err belongs to, or "" for nil
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrWrongFileType):
		return KindWrongFileType
	case errors.Is(err, ErrInvalidDocument):
		return KindInvalidDocument
	case errors.Is(err, ErrPageRender), errors.Is(err, pdfrenderer.ErrPageOutOfRange):
		return KindPageRenderFailure
	case errors.Is(err, ErrEncode):
		return KindEncodeFailure
	case errors.Is(err, ErrArchive):
		return KindArchiveFailure
	case errors.Is(err, ErrIO):
		return KindIOFailure
	default:
		return KindUnknown
	}
}

// Message is the text shown to the user for err
func Message(err error) string {
	switch Kind(err) {
	case "":
		return ""
	case KindWrongFileType:
		return "File is not a PDF! Please select a PDF."
	case KindInvalidDocument:
		return "Invalid PDF. Please try another."
	case KindPageRenderFailure, KindEncodeFailure:
		return "error converting"
	case KindArchiveFailure:
		return "Could not build the archive. Please try again."
	case KindIOFailure:
		return "Could not read the file. Please try again."
	default:
		return err.Error()
	}
}
