package engine

import (
	"fmt"
	"time"

	"github.com/drummonds/dtools/conversion"
	"github.com/oklog/ulid/v2"
)

// WorkspaceView is the snapshot the UI polls
type WorkspaceView struct {
	Workspace string       `json:"workspace"`
	Version   uint64       `json:"version"`
	Session   *SessionView `json:"session"`
}

// SessionView is a conversion session without its page data
type SessionView struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Title          string     `json:"title,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	PageCount      int        `json:"pageCount"`
	UploadProgress float64    `json:"uploadProgress"`
	Progress       float64    `json:"progress"` // 0-100
	Error          string     `json:"error,omitempty"`
	ErrorKind      string     `json:"errorKind,omitempty"`
	Done           bool       `json:"done"`
	Finished       bool       `json:"finished"`
	ArchiveName    string     `json:"archiveName"`
	ArchiveURL     string     `json:"archiveUrl,omitempty"`
	Pages          []PageView `json:"pages"`
}

// PageView describes one page result and where to fetch it
type PageView struct {
	PageNumber   int    `json:"pageNumber"`
	FileName     string `json:"fileName"`
	SizeBytes    int    `json:"sizeBytes"`
	Error        string `json:"error,omitempty"`
	ErrorKind    string `json:"errorKind,omitempty"`
	URL          string `json:"url,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

// newWorkspaceView renders a snapshot. Download URLs carry the session ID so
// links from a discarded session stop resolving.
func newWorkspaceView(ws ulid.ULID, s *conversion.Session, version uint64) WorkspaceView {
	view := WorkspaceView{Workspace: ws.String(), Version: version}
	if s == nil {
		return view
	}

	base := fmt.Sprintf("/api/workspaces/%s", ws)
	sv := &SessionView{
		ID:             s.ID.String(),
		Name:           s.Name,
		Title:          s.Title,
		CreatedAt:      s.CreatedAt,
		PageCount:      s.PageCount,
		UploadProgress: s.UploadProgress,
		Progress:       conversion.Progress(s),
		Error:          conversion.Message(s.Err),
		ErrorKind:      conversion.Kind(s.Err),
		Done:           s.Done(),
		Finished:       s.Finished(),
		ArchiveName:    conversion.ArchiveName(s.Name),
		Pages:          make([]PageView, 0, len(s.Pages)),
	}
	if sv.Done {
		sv.ArchiveURL = fmt.Sprintf("%s/archive?s=%s", base, s.ID)
	}
	for _, p := range s.Pages {
		pv := PageView{
			PageNumber: p.PageNumber,
			FileName:   conversion.PageFileName(s.Name, p.PageNumber),
			SizeBytes:  p.SizeBytes,
			Error:      conversion.Message(p.Err),
			ErrorKind:  conversion.Kind(p.Err),
		}
		if p.OK() {
			pv.URL = fmt.Sprintf("%s/pages/%d?s=%s", base, p.PageNumber, s.ID)
			pv.ThumbnailURL = fmt.Sprintf("%s/pages/%d/thumbnail?s=%s", base, p.PageNumber, s.ID)
		}
		sv.Pages = append(sv.Pages, pv)
	}
	view.Session = sv
	return view
}
