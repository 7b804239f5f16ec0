package engine

import (
	"encoding/json"
	"fmt"

	"github.com/drummonds/dtools/conversion"
	"github.com/drummonds/dtools/database"
	"github.com/oklog/ulid/v2"
)

// JobTracker records every conversion session in the job log
type JobTracker struct {
	DB database.Repository
}

// Observe is registered as a conversion state watcher
func (jt *JobTracker) Observe(change conversion.Change) {
	if jt == nil || jt.DB == nil {
		return
	}
	prev, cur := change.Previous, change.Current

	// a session that stops being current before finishing was abandoned
	if prev != nil && (cur == nil || cur.ID != prev.ID) && !prev.Finished() {
		jt.cancelled(prev)
	}
	if cur == nil {
		return
	}

	if prev == nil || prev.ID != cur.ID {
		if _, err := jt.DB.CreateJob(cur.ID, database.JobTypePDFToPNG, cur.Name); err != nil {
			Logger.Warn("Failed to create conversion job", "session", cur.ID, "error", err)
			return
		}
		if cur.Err != nil {
			jt.failed(cur)
		}
		return
	}

	switch {
	case cur.Err != nil && prev.Err == nil:
		jt.failed(cur)
	case cur.PageCount > 0 && prev.PageCount == 0:
		jt.update(cur.ID, func() error {
			return jt.DB.UpdateJobStatus(cur.ID, database.JobStatusRunning, cur.Name)
		})
		jt.progress(cur)
	case len(cur.Pages) != len(prev.Pages):
		if cur.Done() {
			jt.completed(cur)
		} else {
			jt.progress(cur)
		}
	}
}

func (jt *JobTracker) progress(s *conversion.Session) {
	step := fmt.Sprintf("Page %d of %d", len(s.Pages), s.PageCount)
	jt.update(s.ID, func() error {
		return jt.DB.UpdateJobProgress(s.ID, int(conversion.Progress(s)), step, s.PageCount)
	})
}

func (jt *JobTracker) completed(s *conversion.Session) {
	ok, failed := s.Counts()
	summary := database.ConversionSummary{Pages: s.PageCount, Converted: ok, Failed: failed}
	for _, p := range s.Pages {
		summary.Bytes += int64(p.SizeBytes)
	}
	result, _ := json.Marshal(summary)

	jt.progress(s)
	jt.update(s.ID, func() error { return jt.DB.CompleteJob(s.ID, string(result)) })
}

func (jt *JobTracker) failed(s *conversion.Session) {
	jt.update(s.ID, func() error {
		return jt.DB.UpdateJobError(s.ID, conversion.Kind(s.Err)+": "+conversion.Message(s.Err))
	})
}

func (jt *JobTracker) cancelled(s *conversion.Session) {
	jt.update(s.ID, func() error {
		return jt.DB.UpdateJobStatus(s.ID, database.JobStatusCancelled, s.Name)
	})
}

func (jt *JobTracker) update(id ulid.ULID, fn func() error) {
	if err := fn(); err != nil {
		Logger.Warn("Failed to update conversion job", "session", id, "error", err)
	}
}
