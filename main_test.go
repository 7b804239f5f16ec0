package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	config "github.com/drummonds/dtools/config"
	"github.com/labstack/echo/v4"
)

func setupLogger() {
	injectGlobals(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// newFrontendServer wires only the UI routes
func newFrontendServer(t *testing.T, cfg config.ServerConfig) *echo.Echo {
	t.Helper()
	setupLogger()
	e := newEcho(cfg)
	registerFrontend(e, cfg)
	return e
}

func get(e *echo.Echo, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestConfigJS(t *testing.T) {
	cfg := config.ServerConfig{FrontEndConfig: config.FrontEndConfig{ServerAPIURL: "http://localhost:9000"}}
	e := newFrontendServer(t, cfg)

	rec := get(e, "/config.js")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, "application/javascript") {
		t.Errorf("Unexpected Content-Type %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "window.dtoolsConfig") || !strings.Contains(body, `apiURL: "http://localhost:9000"`) {
		t.Errorf("Unexpected config.js:\n%s", body)
	}
}

func TestStylesheetIsEmbedded(t *testing.T) {
	e := newFrontendServer(t, config.ServerConfig{})

	rec := get(e, "/webapp/webapp.css")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), ".page-grid") {
		t.Error("Stylesheet is missing the page grid rules")
	}
}

func TestRootServesAppShell(t *testing.T) {
	e := newFrontendServer(t, config.ServerConfig{})

	for _, path := range []string{"/", "/pdftopng", "/about", "/no-such-tool"} {
		rec := get(e, path)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", path, rec.Code)
			continue
		}
		if !strings.Contains(rec.Body.String(), "<html") {
			t.Errorf("%s: response is not HTML", path)
		}
	}
}

func TestUnknownAPIRouteIsJSON(t *testing.T) {
	e := newFrontendServer(t, config.ServerConfig{})

	rec := get(e, "/api/nothing-here")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rec.Code)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, echo.MIMEApplicationJSON) {
		t.Errorf("Expected JSON, got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), `"path":"/api/nothing-here"`) {
		t.Errorf("Unexpected body %s", rec.Body.String())
	}
}

func TestCORSOnlyAllowsOwnOrigins(t *testing.T) {
	cfg := config.ServerConfig{
		ListenAddrIP:   "127.0.0.1",
		ListenAddrPort: "8000",
		FrontEndConfig: config.FrontEndConfig{ServerAPIURL: "https://tools.example.com/dtools/"},
	}
	e := newFrontendServer(t, cfg)

	tests := []struct {
		origin  string
		allowed bool
	}{
		{"http://127.0.0.1:8000", true},
		{"http://localhost:8000", true},
		{"https://tools.example.com", true},
		{"http://localhost:9999", false},
		{"https://evil.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/config.js", nil)
			req.Header.Set(echo.HeaderOrigin, tt.origin)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			got := rec.Header().Get(echo.HeaderAccessControlAllowOrigin)
			if tt.allowed && got != tt.origin {
				t.Errorf("Expected %s to be allowed, got %q", tt.origin, got)
			}
			if !tt.allowed && got != "" {
				t.Errorf("Expected %s to be refused, got %q", tt.origin, got)
			}
		})
	}
}

func TestIsAddressInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer ln.Close()

	_, err = net.Listen("tcp", ln.Addr().String())
	if err == nil {
		t.Fatal("Expected the second listen to fail")
	}
	if !isAddressInUse(err) {
		t.Errorf("isAddressInUse(%v) = false", err)
	}

	if isAddressInUse(nil) {
		t.Error("isAddressInUse(nil) = true")
	}
	if isAddressInUse(errors.New("permission denied")) {
		t.Error("isAddressInUse(permission denied) = true")
	}
}

// TestStartWithRetryMovesToNextPort occupies a port and checks the server
// comes up on a later one
func TestStartWithRetryMovesToNextPort(t *testing.T) {
	setupLogger()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer ln.Close()
	busyPort := ln.Addr().(*net.TCPAddr).Port

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	cfg := config.ServerConfig{ListenAddrIP: "127.0.0.1", ListenAddrPort: fmt.Sprint(busyPort)}

	done := make(chan error, 1)
	go func() { done <- startWithRetry(e, &cfg) }()

	var addr net.Addr
	deadline := time.Now().Add(5 * time.Second)
	for addr == nil && time.Now().Before(deadline) {
		select {
		case err := <-done:
			t.Skipf("Could not find a free port near %d: %v", busyPort, err)
		default:
		}
		addr = e.ListenerAddr()
		time.Sleep(10 * time.Millisecond)
	}
	if addr == nil {
		t.Fatal("Server did not start")
	}
	if got := addr.(*net.TCPAddr).Port; got <= busyPort {
		t.Errorf("Expected a port after %d, got %d", busyPort, got)
	}

	if err := e.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("startWithRetry should return nil after shutdown, got %v", err)
	}
}

// TestPDFToPNGPageWithChromedp loads the converter page in a headless browser.
// It needs the wasm binary built into web/app.wasm.
func TestPDFToPNGPageWithChromedp(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if _, err := os.Stat("web/app.wasm"); err != nil {
		t.Skip("web/app.wasm not built, skipping browser test")
	}
	browserFound := false
	for _, browser := range []string{"chromium", "chromium-browser", "google-chrome", "chrome"} {
		if _, err := exec.LookPath(browser); err == nil {
			browserFound = true
			break
		}
	}
	if !browserFound {
		t.Skip("No Chrome/Chromium browser found, skipping chromedp test")
	}

	e := newAPIServer(t)
	srv := httptest.NewServer(e)
	defer srv.Close()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(),
		append(chromedp.DefaultExecAllocatorOptions[:], chromedp.Flag("headless", true))...)
	defer cancelAlloc()
	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()
	ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var label string
	err := chromedp.Run(ctx,
		chromedp.Navigate(srv.URL+"/pdftopng"),
		chromedp.WaitVisible(".file-drop", chromedp.ByQuery),
		chromedp.Text(".progress-label", &label, chromedp.ByQuery),
	)
	if err != nil {
		t.Fatalf("Browser run failed: %v", err)
	}
	if !strings.Contains(label, "Select PDF to Start") {
		t.Errorf("Unexpected progress label %q", label)
	}
}
