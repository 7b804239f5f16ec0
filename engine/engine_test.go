package engine

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/drummonds/dtools/config"
	"github.com/drummonds/dtools/conversion"
	"github.com/drummonds/dtools/database"
	"github.com/labstack/echo/v4"
	"github.com/oklog/ulid/v2"
)

const samplePDF = "%PDF-1.4 not really a pdf but the fake engine does not mind"

func setupLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	database.Logger = logger
	Logger = logger
}

func testServerConfig() config.ServerConfig {
	return config.ServerConfig{
		DatabaseType: "memory",
		RenderConfig: config.RenderConfig{
			Backend: "fake",
			Scale:   2,
		},
		MaxUploadBytes: 1 << 20,
		SessionTTL:     time.Hour,
		JobRetention:   24 * time.Hour,
	}
}

// newTestServer wires a handler with an in-memory job database around renderer
func newTestServer(t *testing.T, renderer *fakeEngine) *ServerHandler {
	t.Helper()
	setupLogger()

	cfg := testServerConfig()
	db, err := database.NewRepository(cfg)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	e := echo.New()
	serverHandler := NewServerHandler(ctx, db, e, cfg, renderer)
	serverHandler.RegisterRoutes()
	t.Cleanup(serverHandler.Close)
	return serverHandler
}

func doRequest(t *testing.T, serverHandler *ServerHandler, method, target string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	serverHandler.Echo.ServeHTTP(rec, req)
	return rec
}

func upload(t *testing.T, serverHandler *ServerHandler, ws ulid.ULID, name, contentType string, body []byte) (*httptest.ResponseRecorder, WorkspaceView) {
	t.Helper()
	rec := doRequest(t, serverHandler, http.MethodPost, "/api/workspaces/"+ws.String()+"/document", body, map[string]string{
		echo.HeaderContentType: contentType,
		"X-File-Name":          url.PathEscape(name),
	})
	var view WorkspaceView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("Upload response is not a workspace view: %v: %s", err, rec.Body.String())
	}
	return rec, view
}

func getWorkspace(t *testing.T, serverHandler *ServerHandler, ws ulid.ULID) WorkspaceView {
	t.Helper()
	rec := doRequest(t, serverHandler, http.MethodGet, "/api/workspaces/"+ws.String(), nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET workspace: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var view WorkspaceView
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("Failed to decode workspace: %v", err)
	}
	return view
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func waitForDone(t *testing.T, serverHandler *ServerHandler, ws ulid.ULID) WorkspaceView {
	t.Helper()
	var view WorkspaceView
	waitFor(t, "conversion to finish", func() bool {
		view = getWorkspace(t, serverHandler, ws)
		return view.Session != nil && view.Session.Finished
	})
	return view
}

func TestUploadConvertAndDownload(t *testing.T) {
	serverHandler := newTestServer(t, &fakeEngine{pages: 3})
	ws := ulid.Make()

	rec, view := upload(t, serverHandler, ws, "Annual Report.pdf", "application/pdf", []byte(samplePDF))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if view.Session == nil || view.Session.Name != "Annual Report" {
		t.Fatalf("Expected session named Annual Report, got %+v", view.Session)
	}
	if view.Session.UploadProgress != 1 {
		t.Errorf("Expected upload complete in the response, got %v", view.Session.UploadProgress)
	}

	view = waitForDone(t, serverHandler, ws)
	sess := view.Session
	if !sess.Done || sess.Error != "" {
		t.Fatalf("Expected a clean finish, got %+v", sess)
	}
	if sess.Progress != 100 {
		t.Errorf("Expected progress 100, got %v", sess.Progress)
	}
	if len(sess.Pages) != 3 {
		t.Fatalf("Expected 3 pages, got %d", len(sess.Pages))
	}
	for i, p := range sess.Pages {
		if p.PageNumber != i+1 {
			t.Errorf("Page %d reported as %d", i+1, p.PageNumber)
		}
	}

	// page download
	page := sess.Pages[1]
	if page.FileName != "Annual Report-page-2.png" {
		t.Errorf("Unexpected file name %q", page.FileName)
	}
	rec = doRequest(t, serverHandler, http.MethodGet, page.URL, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Page download: expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "image/png" {
		t.Errorf("Expected image/png, got %q", ct)
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(cd, "Annual Report-page-2.png") {
		t.Errorf("Content-Disposition does not name the page: %q", cd)
	}
	img, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatalf("Page is not a PNG: %v", err)
	}
	if w := img.Bounds().Dx(); w != 20 {
		t.Errorf("Expected 20px page at scale 2, got %d", w)
	}

	// thumbnail
	rec = doRequest(t, serverHandler, http.MethodGet, page.ThumbnailURL+"&w=8", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Thumbnail: expected 200, got %d", rec.Code)
	}
	thumb, err := png.Decode(rec.Body)
	if err != nil {
		t.Fatalf("Thumbnail is not a PNG: %v", err)
	}
	// the requested width is clamped up to the minimum, and small pages are never enlarged
	if w := thumb.Bounds().Dx(); w != 20 {
		t.Errorf("Thumbnail width %d, expected the 20px source width", w)
	}

	// archive
	rec = doRequest(t, serverHandler, http.MethodGet, sess.ArchiveURL, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Archive: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if cd := rec.Header().Get(echo.HeaderContentDisposition); !strings.Contains(cd, "Annual Report-pages.zip") {
		t.Errorf("Content-Disposition does not name the archive: %q", cd)
	}
	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("Archive is not a zip: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	expected := []string{"Annual Report-page-1.png", "Annual Report-page-2.png", "Annual Report-page-3.png"}
	if strings.Join(names, ",") != strings.Join(expected, ",") {
		t.Errorf("Archive entries %v, expected %v", names, expected)
	}

	// job log
	sessionID, err := ulid.Parse(sess.ID)
	if err != nil {
		t.Fatalf("Session ID is not a ULID: %v", err)
	}
	waitFor(t, "job to complete", func() bool {
		job, err := serverHandler.DB.GetJob(sessionID)
		return err == nil && job.Status == database.JobStatusCompleted
	})
	job, _ := serverHandler.DB.GetJob(sessionID)
	var summary database.ConversionSummary
	if err := json.Unmarshal([]byte(job.Result), &summary); err != nil {
		t.Fatalf("Job result is not a summary: %v", err)
	}
	if summary.Pages != 3 || summary.Converted != 3 || summary.Failed != 0 {
		t.Errorf("Unexpected summary %+v", summary)
	}
}

func TestUploadWrongFileType(t *testing.T) {
	serverHandler := newTestServer(t, &fakeEngine{pages: 1})
	ws := ulid.Make()

	rec, view := upload(t, serverHandler, ws, "notes.txt", "text/plain", []byte("hello"))
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("Expected 415, got %d", rec.Code)
	}
	if view.Session == nil || view.Session.ErrorKind != conversion.KindWrongFileType {
		t.Fatalf("Expected WrongFileType on the session, got %+v", view.Session)
	}
	if view.Session.Error != "File is not a PDF! Please select a PDF." {
		t.Errorf("Unexpected message %q", view.Session.Error)
	}
	if len(view.Session.Pages) != 0 {
		t.Errorf("Expected no pages, got %d", len(view.Session.Pages))
	}

	rec = doRequest(t, serverHandler, http.MethodGet, "/api/workspaces/"+ws.String()+"/archive", nil, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("Archive of a failed document: expected 409, got %d", rec.Code)
	}
}

func TestUploadInvalidDocument(t *testing.T) {
	serverHandler := newTestServer(t, &fakeEngine{pages: 1})
	ws := ulid.Make()

	rec, _ := upload(t, serverHandler, ws, "broken.pdf", "application/pdf", []byte("definitely not a pdf"))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", rec.Code)
	}
	view := waitForDone(t, serverHandler, ws)
	if view.Session.ErrorKind != conversion.KindInvalidDocument {
		t.Fatalf("Expected InvalidDocument, got %+v", view.Session)
	}
	if view.Session.Error != "Invalid PDF. Please try another." {
		t.Errorf("Unexpected message %q", view.Session.Error)
	}
	if view.Session.ArchiveURL != "" {
		t.Errorf("Failed document should not offer an archive")
	}

	sessionID := ulid.MustParse(view.Session.ID)
	waitFor(t, "job to fail", func() bool {
		job, err := serverHandler.DB.GetJob(sessionID)
		return err == nil && job.Status == database.JobStatusFailed
	})
}

func TestUploadTooLarge(t *testing.T) {
	serverHandler := newTestServer(t, &fakeEngine{pages: 1})
	serverHandler.Converter.MaxBytes = 8
	ws := ulid.Make()

	rec, view := upload(t, serverHandler, ws, "big.pdf", "application/pdf", []byte(samplePDF))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
	if view.Session == nil || view.Session.ErrorKind != conversion.KindIOFailure {
		t.Fatalf("Expected IOFailure, got %+v", view.Session)
	}
}

func TestFailedPageIsReportedAndSkipped(t *testing.T) {
	serverHandler := newTestServer(t, &fakeEngine{pages: 3, failPages: map[int]bool{2: true}})
	ws := ulid.Make()

	upload(t, serverHandler, ws, "mixed.pdf", "application/pdf", []byte(samplePDF))
	view := waitForDone(t, serverHandler, ws)

	bad := view.Session.Pages[1]
	if bad.ErrorKind != conversion.KindPageRenderFailure || bad.URL != "" {
		t.Fatalf("Expected page 2 to fail without a link, got %+v", bad)
	}
	rec := doRequest(t, serverHandler, http.MethodGet, "/api/workspaces/"+ws.String()+"/pages/2", nil, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("Failed page: expected 422, got %d", rec.Code)
	}

	rec = doRequest(t, serverHandler, http.MethodGet, view.Session.ArchiveURL, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Archive: expected 200, got %d", rec.Code)
	}
	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("Archive is not a zip: %v", err)
	}
	if len(zr.File) != 2 {
		t.Errorf("Expected 2 archive entries, got %d", len(zr.File))
	}
}

func TestReplacedSessionLinksStopResolving(t *testing.T) {
	serverHandler := newTestServer(t, &fakeEngine{pages: 1})
	ws := ulid.Make()

	upload(t, serverHandler, ws, "first.pdf", "application/pdf", []byte(samplePDF))
	first := waitForDone(t, serverHandler, ws)
	oldURL := first.Session.Pages[0].URL

	upload(t, serverHandler, ws, "second.pdf", "application/pdf", []byte(samplePDF))
	second := waitForDone(t, serverHandler, ws)
	if second.Session.ID == first.Session.ID {
		t.Fatalf("Expected a new session")
	}

	rec := doRequest(t, serverHandler, http.MethodGet, oldURL, nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Old page link: expected 404, got %d", rec.Code)
	}
	rec = doRequest(t, serverHandler, http.MethodGet, second.Session.Pages[0].URL, nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("New page link: expected 200, got %d", rec.Code)
	}
}

func TestResetWorkspaceMidConversion(t *testing.T) {
	gate := make(chan struct{})
	serverHandler := newTestServer(t, &fakeEngine{pages: 5, gate: gate})
	ws := ulid.Make()

	rec, view := upload(t, serverHandler, ws, "slow.pdf", "application/pdf", []byte(samplePDF))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", rec.Code)
	}
	sessionID := ulid.MustParse(view.Session.ID)

	gate <- struct{}{}
	waitFor(t, "first page", func() bool {
		v := getWorkspace(t, serverHandler, ws)
		return v.Session != nil && len(v.Session.Pages) == 1
	})

	rec = doRequest(t, serverHandler, http.MethodGet, "/api/workspaces/"+ws.String()+"/archive", nil, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("Archive before finishing: expected 409, got %d", rec.Code)
	}

	rec = doRequest(t, serverHandler, http.MethodDelete, "/api/workspaces/"+ws.String(), nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Reset: expected 200, got %d", rec.Code)
	}
	if v := getWorkspace(t, serverHandler, ws); v.Session != nil {
		t.Fatalf("Expected no session after reset, got %+v", v.Session)
	}

	waitFor(t, "job to be cancelled", func() bool {
		job, err := serverHandler.DB.GetJob(sessionID)
		return err == nil && job.Status == database.JobStatusCancelled
	})

	rec = doRequest(t, serverHandler, http.MethodGet, "/api/workspaces/"+ws.String()+"/pages/1", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Page after reset: expected 404, got %d", rec.Code)
	}
}

func TestWorkspaceRequestValidation(t *testing.T) {
	serverHandler := newTestServer(t, &fakeEngine{pages: 1})

	rec := doRequest(t, serverHandler, http.MethodGet, "/api/workspaces/not-a-ulid", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Bad workspace ID: expected 400, got %d", rec.Code)
	}

	ws := ulid.Make()
	view := getWorkspace(t, serverHandler, ws)
	if view.Session != nil || view.Workspace != ws.String() {
		t.Errorf("Unknown workspace should have a null session, got %+v", view)
	}
	if serverHandler.Workspaces.Len() != 0 {
		t.Errorf("Reading a workspace should not create it")
	}

	rec = doRequest(t, serverHandler, http.MethodGet, "/api/workspaces/"+ws.String()+"/pages/x", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Page of unknown workspace: expected 404, got %d", rec.Code)
	}
}

func TestJobRoutes(t *testing.T) {
	serverHandler := newTestServer(t, &fakeEngine{pages: 2})
	ws := ulid.Make()
	upload(t, serverHandler, ws, "jobs.pdf", "application/pdf", []byte(samplePDF))
	view := waitForDone(t, serverHandler, ws)

	waitFor(t, "job to complete", func() bool {
		job, err := serverHandler.DB.GetJob(ulid.MustParse(view.Session.ID))
		return err == nil && job.Status == database.JobStatusCompleted
	})

	rec := doRequest(t, serverHandler, http.MethodGet, "/api/jobs?type=pdftopng", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Jobs: expected 200, got %d", rec.Code)
	}
	var jobs []database.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &jobs); err != nil {
		t.Fatalf("Failed to decode jobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Message != "jobs" {
		t.Fatalf("Expected the conversion job, got %+v", jobs)
	}

	rec = doRequest(t, serverHandler, http.MethodGet, "/api/jobs?type=cleanup", nil, nil)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("Expected no cleanup jobs, got %s", rec.Body.String())
	}

	rec = doRequest(t, serverHandler, http.MethodGet, "/api/jobs/"+view.Session.ID, nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("Job by ID: expected 200, got %d", rec.Code)
	}
	rec = doRequest(t, serverHandler, http.MethodGet, "/api/jobs/active", nil, nil)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("Expected no active jobs, got %s", rec.Body.String())
	}
}

func TestAboutAndHealth(t *testing.T) {
	serverHandler := newTestServer(t, &fakeEngine{pages: 1})

	rec := doRequest(t, serverHandler, http.MethodGet, "/api/about", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("About: expected 200, got %d", rec.Code)
	}
	var about map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &about); err != nil {
		t.Fatalf("Failed to decode about: %v", err)
	}
	if about["renderBackend"] != "fake" || about["databaseType"] != "memory" {
		t.Errorf("Unexpected about info %v", about)
	}

	rec = doRequest(t, serverHandler, http.MethodGet, "/api/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("Health: expected 200, got %d", rec.Code)
	}
}

func TestJanitorEvictsIdleWorkspaces(t *testing.T) {
	serverHandler := newTestServer(t, &fakeEngine{pages: 1})
	ws := ulid.Make()
	upload(t, serverHandler, ws, "idle.pdf", "application/pdf", []byte(samplePDF))
	waitForDone(t, serverHandler, ws)

	if summary := serverHandler.janitorJobFunc(); summary.Workspaces != 0 {
		t.Fatalf("Fresh workspace should survive, evicted %d", summary.Workspaces)
	}
	rec := doRequest(t, serverHandler, http.MethodGet, "/api/jobs?type=cleanup", nil, nil)
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("An idle janitor pass should not be recorded, got %s", rec.Body.String())
	}

	time.Sleep(20 * time.Millisecond)
	serverHandler.ServerConfig.SessionTTL = 10 * time.Millisecond
	summary := serverHandler.janitorJobFunc()
	if summary.Workspaces != 1 {
		t.Fatalf("Expected 1 workspace evicted, got %d", summary.Workspaces)
	}
	if serverHandler.Workspaces.Len() != 0 {
		t.Errorf("Workspace still registered after eviction")
	}
	if view := getWorkspace(t, serverHandler, ws); view.Session != nil {
		t.Errorf("Evicted workspace still has a session")
	}

	jobs, err := serverHandler.DB.GetRecentJobs(10, 0)
	if err != nil {
		t.Fatalf("Failed to list jobs: %v", err)
	}
	var cleanups int
	for _, job := range jobs {
		if job.Type == database.JobTypeCleanup && job.Status == database.JobStatusCompleted {
			cleanups++
		}
	}
	if cleanups != 1 {
		t.Errorf("Expected one completed cleanup job, got %d", cleanups)
	}
}

func TestStartupChecks(t *testing.T) {
	serverHandler := newTestServer(t, &fakeEngine{pages: 1})

	// a job left running by a previous process
	orphan := ulid.Make()
	if _, err := serverHandler.DB.CreateJob(orphan, database.JobTypePDFToPNG, "orphan"); err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}

	if err := serverHandler.StartupChecks(context.Background()); err != nil {
		t.Fatalf("Startup checks failed: %v", err)
	}
	job, err := serverHandler.DB.GetJob(orphan)
	if err != nil {
		t.Fatalf("Failed to get job: %v", err)
	}
	if job.Status != database.JobStatusFailed {
		t.Errorf("Expected orphaned job to be failed, got %s", job.Status)
	}

	serverHandler.Renderer = &fakeEngine{pages: 1, failPages: map[int]bool{1: true}}
	if err := serverHandler.StartupChecks(context.Background()); err == nil {
		t.Errorf("Expected a broken renderer to fail the checks")
	}
}
