package engine

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"

	"github.com/disintegration/imaging"
	"github.com/drummonds/dtools/conversion"
	"github.com/drummonds/dtools/internal/build"
	"github.com/labstack/echo/v4"
	"github.com/oklog/ulid/v2"
)

const (
	defaultThumbnailWidth = 300
	minThumbnailWidth     = 32
	maxThumbnailWidth     = 1024
)

// RegisterRoutes adds the conversion, job and admin API under /api
func (serverHandler *ServerHandler) RegisterRoutes() {
	api := serverHandler.Echo.Group("/api")

	// Conversion workspaces
	api.GET("/workspaces/:ws", serverHandler.GetWorkspace)
	api.DELETE("/workspaces/:ws", serverHandler.ResetWorkspace)
	api.POST("/workspaces/:ws/document", serverHandler.UploadDocument)
	api.GET("/workspaces/:ws/pages/:page", serverHandler.GetPage)
	api.GET("/workspaces/:ws/pages/:page/thumbnail", serverHandler.GetThumbnail)
	api.GET("/workspaces/:ws/archive", serverHandler.GetArchive)

	// Job tracking
	api.GET("/jobs", serverHandler.GetRecentJobs)
	api.GET("/jobs/active", serverHandler.GetActiveJobs)
	api.GET("/jobs/:id", serverHandler.GetJob)

	// Admin
	api.GET("/about", serverHandler.GetAboutInfo)
	api.GET("/health", serverHandler.GetHealth)
}

func errorJSON(c echo.Context, code int, err error, msg string) error {
	body := map[string]interface{}{"error": msg}
	if kind := conversion.Kind(err); kind != "" && kind != conversion.KindUnknown {
		body["kind"] = kind
	}
	return c.JSON(code, body)
}

func workspaceID(c echo.Context) (ulid.ULID, error) {
	return ulid.Parse(c.Param("ws"))
}

// currentSession returns the workspace's session, checking the optional
// ?s= session tag against it
func (serverHandler *ServerHandler) currentSession(c echo.Context) (*conversion.Session, error) {
	ws, err := workspaceID(c)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "Invalid workspace ID format")
	}
	state, ok := serverHandler.Workspaces.Get(ws)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusNotFound, "No document in this workspace")
	}
	sess, _ := state.Snapshot()
	if sess == nil {
		return nil, echo.NewHTTPError(http.StatusNotFound, "No document in this workspace")
	}
	if tag := c.QueryParam("s"); tag != "" && tag != sess.ID.String() {
		return nil, echo.NewHTTPError(http.StatusNotFound, "That document has been replaced")
	}
	return sess, nil
}

func httpErrorJSON(c echo.Context, err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return c.JSON(he.Code, map[string]interface{}{"error": he.Message})
	}
	return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
}

// GetWorkspace returns the current conversion snapshot
// @Summary Get workspace snapshot
// @Description Returns the conversion session of a workspace, or a null session
// @Tags Conversion
// @Produce json
// @Param ws path string true "Workspace ULID"
// @Success 200 {object} WorkspaceView "Snapshot"
// @Failure 400 {object} map[string]interface{} "Invalid workspace ID"
// @Router /workspaces/{ws} [get]
func (serverHandler *ServerHandler) GetWorkspace(c echo.Context) error {
	ws, err := workspaceID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "Invalid workspace ID format"})
	}
	state, ok := serverHandler.Workspaces.Get(ws)
	if !ok {
		return c.JSON(http.StatusOK, newWorkspaceView(ws, nil, 0))
	}
	sess, version := state.Snapshot()
	return c.JSON(http.StatusOK, newWorkspaceView(ws, sess, version))
}

// ResetWorkspace discards the workspace's document and stops its conversion
// @Summary Reset workspace
// @Description Clears the pages of the workspace and cancels any running conversion
// @Tags Conversion
// @Produce json
// @Param ws path string true "Workspace ULID"
// @Success 200 {object} WorkspaceView "Empty snapshot"
// @Failure 400 {object} map[string]interface{} "Invalid workspace ID"
// @Router /workspaces/{ws} [delete]
func (serverHandler *ServerHandler) ResetWorkspace(c echo.Context) error {
	ws, err := workspaceID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "Invalid workspace ID format"})
	}
	var version uint64
	if state, ok := serverHandler.Workspaces.Get(ws); ok {
		if prev := state.Reset(); prev != nil {
			Logger.Info("Workspace reset", "workspace", ws, "session", prev.ID, "pages", len(prev.Pages))
		}
		_, version = state.Snapshot()
	}
	return c.JSON(http.StatusOK, newWorkspaceView(ws, nil, version))
}

// UploadDocument starts converting the PDF in the request body
// @Summary Upload a PDF for conversion
// @Description The raw file is the request body. Content-Type carries the declared type and X-File-Name the URL encoded file name. Pages render in the background, poll the workspace for progress.
// @Tags Conversion
// @Accept application/pdf
// @Produce json
// @Param ws path string true "Workspace ULID"
// @Param X-File-Name header string true "File name"
// @Success 202 {object} WorkspaceView "Conversion started"
// @Failure 400 {object} WorkspaceView "Upload could not be read"
// @Failure 415 {object} WorkspaceView "Not a PDF"
// @Router /workspaces/{ws}/document [post]
func (serverHandler *ServerHandler) UploadDocument(c echo.Context) error {
	ws, err := workspaceID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{"error": "Invalid workspace ID format"})
	}
	state := serverHandler.Workspaces.GetOrCreate(ws)
	up := uploadFromRequest(c)

	err = serverHandler.startConversion(state, up)
	sess, version := state.Snapshot()
	view := newWorkspaceView(ws, sess, version)

	switch {
	case err == nil:
		return c.JSON(http.StatusAccepted, view)
	case errors.Is(err, conversion.ErrWrongFileType):
		return c.JSON(http.StatusUnsupportedMediaType, view)
	case errors.Is(err, conversion.ErrIO):
		return c.JSON(http.StatusBadRequest, view)
	default:
		Logger.Warn("Upload not accepted", "workspace", ws, "error", err)
		return c.JSON(http.StatusConflict, view)
	}
}

// GetPage downloads one converted page
// @Summary Download a page
// @Description Returns the PNG for a converted page as an attachment
// @Tags Conversion
// @Produce png
// @Param ws path string true "Workspace ULID"
// @Param page path int true "1-based page number"
// @Param s query string false "Session ID the link was issued for"
// @Success 200 {file} file "PNG image"
// @Failure 404 {object} map[string]interface{} "No such page"
// @Failure 422 {object} map[string]interface{} "Page failed to convert"
// @Router /workspaces/{ws}/pages/{page} [get]
func (serverHandler *ServerHandler) GetPage(c echo.Context) error {
	sess, page, err := serverHandler.lookupPage(c)
	if err != nil {
		return httpErrorJSON(c, err)
	}
	if !page.OK() {
		return errorJSON(c, http.StatusUnprocessableEntity, page.Err, conversion.Message(page.Err))
	}

	fileName := conversion.PageFileName(sess.Name, page.PageNumber)
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", fileName))
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=3600")
	return c.Blob(http.StatusOK, "image/png", page.Data)
}

// GetThumbnail returns a downscaled copy of a converted page
// @Summary Page thumbnail
// @Tags Conversion
// @Produce png
// @Param ws path string true "Workspace ULID"
// @Param page path int true "1-based page number"
// @Param w query int false "Width in pixels (default 300)"
// @Success 200 {file} file "PNG image"
// @Failure 404 {object} map[string]interface{} "No such page"
// @Router /workspaces/{ws}/pages/{page}/thumbnail [get]
func (serverHandler *ServerHandler) GetThumbnail(c echo.Context) error {
	_, page, err := serverHandler.lookupPage(c)
	if err != nil {
		return httpErrorJSON(c, err)
	}
	if !page.OK() {
		return errorJSON(c, http.StatusUnprocessableEntity, page.Err, conversion.Message(page.Err))
	}

	width := defaultThumbnailWidth
	if w, err := strconv.Atoi(c.QueryParam("w")); err == nil {
		width = min(max(w, minThumbnailWidth), maxThumbnailWidth)
	}

	img, err := imaging.Decode(bytes.NewReader(page.Data))
	if err != nil {
		Logger.Error("Stored page is not decodable", "page", page.PageNumber, "error", err)
		return errorJSON(c, http.StatusInternalServerError, nil, "Unable to read page image")
	}
	thumb := imaging.Fit(img, width, width*4, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.PNG); err != nil {
		return errorJSON(c, http.StatusInternalServerError, nil, "Unable to build thumbnail")
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=3600")
	return c.Blob(http.StatusOK, "image/png", buf.Bytes())
}

func (serverHandler *ServerHandler) lookupPage(c echo.Context) (*conversion.Session, conversion.PageResult, error) {
	sess, err := serverHandler.currentSession(c)
	if err != nil {
		return nil, conversion.PageResult{}, err
	}
	pageNumber, err := strconv.Atoi(c.Param("page"))
	if err != nil {
		return nil, conversion.PageResult{}, echo.NewHTTPError(http.StatusBadRequest, "Invalid page number")
	}
	page, ok := sess.Page(pageNumber)
	if !ok {
		return nil, conversion.PageResult{}, echo.NewHTTPError(http.StatusNotFound, "Page not converted")
	}
	return sess, page, nil
}

// GetArchive downloads every converted page as one ZIP
// @Summary Download all pages
// @Description ZIP of every successfully converted page. Failed pages are left out.
// @Tags Conversion
// @Produce application/zip
// @Param ws path string true "Workspace ULID"
// @Param s query string false "Session ID the link was issued for"
// @Success 200 {file} file "ZIP archive"
// @Failure 404 {object} map[string]interface{} "No document"
// @Failure 409 {object} map[string]interface{} "Conversion not finished or failed"
// @Failure 500 {object} map[string]interface{} "Archive failed"
// @Router /workspaces/{ws}/archive [get]
func (serverHandler *ServerHandler) GetArchive(c echo.Context) error {
	sess, err := serverHandler.currentSession(c)
	if err != nil {
		return httpErrorJSON(c, err)
	}
	if !sess.Done() {
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error": "The document has not finished converting",
		})
	}

	var buf bytes.Buffer
	entries, err := conversion.WriteArchive(&buf, sess)
	if err != nil {
		Logger.Error("Archive failed", "session", sess.ID, "error", err)
		return errorJSON(c, http.StatusInternalServerError, err, conversion.Message(err))
	}
	Logger.Info("Archive built", "session", sess.ID, "entries", entries, "bytes", buf.Len())

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", conversion.ArchiveName(sess.Name)))
	return c.Blob(http.StatusOK, "application/zip", buf.Bytes())
}

// GetAboutInfo returns information about the service
// @Summary Get system information
// @Description Retrieve version, renderer and database configuration
// @Tags Admin
// @Produce json
// @Success 200 {object} map[string]interface{} "System information"
// @Router /about [get]
func (serverHandler *ServerHandler) GetAboutInfo(c echo.Context) error {
	cfg := serverHandler.ServerConfig
	aboutInfo := map[string]interface{}{
		"version":        build.Version,
		"goVersion":      runtime.Version(),
		"renderBackend":  cfg.Backend,
		"renderScale":    cfg.Scale,
		"maxUploadBytes": cfg.MaxUploadBytes,
		"sessionTTL":     cfg.SessionTTL.String(),
		"databaseType":   cfg.DatabaseType,
		"databaseHost":   cfg.DatabaseHost,
		"databasePort":   cfg.DatabasePort,
		"databaseName":   cfg.DatabaseDbname,
		"workspaces":     serverHandler.Workspaces.Len(),
	}
	return c.JSON(http.StatusOK, aboutInfo)
}

// GetHealth reports whether the service can take work
// @Summary Health check
// @Tags Admin
// @Produce json
// @Success 200 {object} map[string]interface{} "Healthy"
// @Failure 503 {object} map[string]interface{} "Database unavailable"
// @Router /health [get]
func (serverHandler *ServerHandler) GetHealth(c echo.Context) error {
	if _, err := serverHandler.DB.GetActiveJobs(); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"status": "ok"})
}
