package conversion

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/drummonds/dtools/engine/pdfrenderer"
	"github.com/oklog/ulid/v2"
)

// Upload is a file handed to the converter
type Upload struct {
	Name         string
	DeclaredType string
	Size         int64 // 0 or less when unknown
	Body         io.Reader
}

// Converter ties the loader, the document engine and the pipeline together
type Converter struct {
	Engine   pdfrenderer.Engine
	Scale    float64
	MaxBytes int64 // 0 for no limit
}

// Accept starts a fresh session in state for up. A declared type that is not
// PDF-like is recorded on the session and returned as ErrWrongFileType.
// The returned context belongs to the new run and is cancelled when the
// state is reset or another session begins.
func (c *Converter) Accept(parent context.Context, state *State, up Upload) (*Session, context.Context, error) {
	sess := NewSession(up.Name)
	var err error
	if !LooksLikePDF(up.DeclaredType) {
		err = fmt.Errorf("%w: %q", ErrWrongFileType, up.DeclaredType)
		sess.Err = err
	}
	ctx := state.Begin(parent, sess)
	Logger.Info("Conversion session started", "session", sess.ID, "name", sess.Name, "size", up.Size, "type", up.DeclaredType)
	return sess, ctx, err
}

// Ingest loads the upload body, publishing upload progress to the session
func (c *Converter) Ingest(ctx context.Context, state *State, id ulid.ULID, up Upload) ([]byte, error) {
	data, err := Load(ctx, up.Body, up.Size, c.MaxBytes, func(f float64) {
		state.Update(id, func(s Session) Session { return s.withUploadProgress(f) })
	})
	if err != nil {
		c.fail(state, id, err)
		return nil, err
	}
	return data, nil
}

// Process opens data and renders every page into the session
func (c *Converter) Process(ctx context.Context, state *State, id ulid.ULID, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrInvalidDocument, r)
			Logger.Error("Panic recovered in conversion", "session", id, "panic", r)
			c.fail(state, id, err)
		}
	}()

	doc, err := c.Engine.Open(ctx, data)
	if err != nil {
		c.fail(state, id, err)
		return err
	}
	defer doc.Close()

	pageCount := doc.PageCount()
	if pageCount < 1 {
		err = fmt.Errorf("%w: document has no pages", ErrInvalidDocument)
		c.fail(state, id, err)
		return err
	}

	var title string
	if info, infoErr := pdfrenderer.ReadInfo(data); infoErr != nil {
		Logger.Debug("No document metadata", "session", id, "error", infoErr)
	} else {
		title = info.Title
	}

	if !state.Update(id, func(s Session) Session { return s.withDocument(pageCount, title) }) {
		return ErrStale
	}
	Logger.Info("Document opened", "session", id, "pages", pageCount, "title", title)

	pipeline := NewPipeline(c.Scale)
	if err := pipeline.Run(ctx, state, id, doc); err != nil {
		Logger.Info("Conversion stopped", "session", id, "reason", err)
		return err
	}

	sess, _ := state.Snapshot()
	if sess != nil && sess.ID == id {
		ok, failed := sess.Counts()
		Logger.Info("Conversion finished", "session", id, "converted", ok, "failed", failed)
	}
	return nil
}

// Convert runs the whole workflow for up and returns the final session.
// The returned error is the document level failure, if any.
func (c *Converter) Convert(ctx context.Context, state *State, up Upload) (*Session, error) {
	sess, runCtx, err := c.Accept(ctx, state, up)
	if err != nil {
		return sess, err
	}
	data, err := c.Ingest(runCtx, state, sess.ID, up)
	if err == nil {
		err = c.Process(runCtx, state, sess.ID, data)
	}
	final, _ := state.Snapshot()
	if final == nil || final.ID != sess.ID {
		return nil, ErrStale
	}
	return final, err
}

// fail records a document level error unless the run was cancelled
func (c *Converter) fail(state *State, id ulid.ULID, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrStale) {
		return
	}
	Logger.Warn("Conversion failed", "session", id, "kind", Kind(err), "error", err)
	state.Update(id, func(s Session) Session { return s.withError(err) })
}
