package engine

import (
	"context"
	"errors"
	"io"
	"net/url"

	"github.com/drummonds/dtools/config"
	"github.com/drummonds/dtools/conversion"
	"github.com/drummonds/dtools/database"
	"github.com/drummonds/dtools/engine/pdfrenderer"
	"github.com/labstack/echo/v4"
	"github.com/oklog/ulid/v2"
)

// ServerHandler will inject the variables needed into routes
type ServerHandler struct {
	DB           database.Repository
	Echo         *echo.Echo
	ServerConfig config.ServerConfig

	Renderer   pdfrenderer.Engine
	Converter  *conversion.Converter
	Workspaces *Workspaces
	Jobs       *JobTracker

	// runs outlive the upload request, they stop when this is cancelled
	baseCtx context.Context
}

// NewServerHandler wires a conversion service around renderer. Conversions
// run under ctx.
func NewServerHandler(ctx context.Context, db database.Repository, e *echo.Echo, serverConfig config.ServerConfig, renderer pdfrenderer.Engine) *ServerHandler {
	jobs := &JobTracker{DB: db}
	return &ServerHandler{
		DB:           db,
		Echo:         e,
		ServerConfig: serverConfig,
		Renderer:     renderer,
		Converter: &conversion.Converter{
			Engine:   renderer,
			Scale:    serverConfig.Scale,
			MaxBytes: serverConfig.MaxUploadBytes,
		},
		Workspaces: NewWorkspaces(func(_ ulid.ULID, state *conversion.State) {
			state.Watch(jobs.Observe)
		}),
		Jobs:    jobs,
		baseCtx: ctx,
	}
}

// Close stops every running conversion
func (serverHandler *ServerHandler) Close() {
	n := serverHandler.Workspaces.ResetAll()
	Logger.Info("Stopped conversions", "workspaces", n)
}

// uploadFromRequest reads the file description the UI sends alongside a raw body
func uploadFromRequest(c echo.Context) conversion.Upload {
	req := c.Request()
	name := req.Header.Get("X-File-Name")
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	if name == "" {
		name = c.QueryParam("name")
	}
	return conversion.Upload{
		Name:         name,
		DeclaredType: req.Header.Get(echo.HeaderContentType),
		Size:         req.ContentLength,
		Body:         req.Body,
	}
}

// startConversion accepts and loads the upload, then renders in the
// background. The returned error is the document level failure, if any.
func (serverHandler *ServerHandler) startConversion(state *conversion.State, up conversion.Upload) error {
	ctx := serverHandler.baseCtx
	if ctx == nil {
		ctx = context.Background()
	}

	sess, runCtx, err := serverHandler.Converter.Accept(ctx, state, up)
	if err != nil {
		// drain so the client sees the response rather than a reset connection
		io.Copy(io.Discard, io.LimitReader(up.Body, serverHandler.ServerConfig.MaxUploadBytes))
		return err
	}

	data, err := serverHandler.Converter.Ingest(runCtx, state, sess.ID, up)
	if err != nil {
		return err
	}

	go func() {
		err := serverHandler.Converter.Process(runCtx, state, sess.ID, data)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, conversion.ErrStale) {
			Logger.Debug("Background conversion ended with error", "session", sess.ID, "error", err)
		}
	}()
	return nil
}
