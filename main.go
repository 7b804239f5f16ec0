package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"

	config "github.com/drummonds/dtools/config"
	"github.com/drummonds/dtools/conversion"
	database "github.com/drummonds/dtools/database"
	engine "github.com/drummonds/dtools/engine"
	"github.com/drummonds/dtools/engine/pdfrenderer"
	"github.com/drummonds/dtools/webapp"
)

//go:embed webapp/webapp.css
var webappFS embed.FS

// Logger is global since we will need it everywhere
var Logger *slog.Logger

const (
	maxPortRetries  = 5
	shutdownTimeout = 10 * time.Second
)

// injectGlobals injects all of our globals into their packages
func injectGlobals(logger *slog.Logger) {
	Logger = logger
	database.Logger = Logger
	config.Logger = Logger
	engine.Logger = Logger
	conversion.Logger = Logger
}

func main() {
	serverConfig, logger := config.SetupServer()
	injectGlobals(logger) //inject the logger into all of the packages

	// Show info banner if using ephemeral database
	if serverConfig.DatabaseType == "ephemeral" {
		fmt.Println("\n" + strings.Repeat("=", 50))
		fmt.Println("🚀  EPHEMERAL DATABASE MODE")
		fmt.Println(strings.Repeat("=", 50))
		fmt.Println("• Job history will be destroyed on exit")
		fmt.Println("• Perfect for testing and development")
		fmt.Println(strings.Repeat("=", 50) + "\n")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, serverConfig); err != nil {
		Logger.Error("Server stopped with error", "error", err)
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	Logger.Info("Server stopped")
}

// run wires the server together and serves until ctx is cancelled
func run(ctx context.Context, serverConfig config.ServerConfig) error {
	// Setup database (handles memory, sqlite, ephemeral, postgres, cockroachdb)
	Logger.Info("Setting up database", "type", serverConfig.DatabaseType)
	db, err := database.NewRepository(serverConfig)
	if err != nil {
		return fmt.Errorf("database setup: %w", err)
	}
	defer db.Close()
	Logger.Info("Database setup complete")

	renderer, err := pdfrenderer.New(pdfrenderer.Config{
		Backend:         serverConfig.Backend,
		MaxInstances:    serverConfig.MaxInstances,
		InstanceTimeout: serverConfig.InstanceTimeout,
	})
	if err != nil {
		return fmt.Errorf("renderer setup: %w", err)
	}
	defer renderer.Close()

	e := newEcho(serverConfig)
	serverHandler := engine.NewServerHandler(ctx, db, e, serverConfig, renderer)
	defer serverHandler.Close()

	if err := serverHandler.StartupChecks(ctx); err != nil { //Run all the sanity checks
		return fmt.Errorf("startup checks: %w", err)
	}
	Logger.Info("Startup checks complete")

	scheduler := serverHandler.InitializeSchedules() //initialize the janitor
	defer func() { <-scheduler.Stop().Done() }()

	serverHandler.RegisterRoutes()
	registerFrontend(e, serverConfig)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return startWithRetry(e, &serverConfig)
	})
	g.Go(func() error {
		<-gctx.Done()
		Logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newEcho creates the echo instance with middleware and the custom 404 handler
func newEcho(serverConfig config.ServerConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
		}

		// API misses answer in JSON, page paths never get here since the
		// UI handles its own 404s
		if code == http.StatusNotFound && strings.HasPrefix(c.Request().URL.Path, "/api/") {
			c.JSON(http.StatusNotFound, map[string]string{
				"error":   "Not Found",
				"message": "The requested API endpoint does not exist",
				"path":    c.Request().URL.Path,
			})
			return
		}

		// For other errors, use default handler
		e.DefaultHTTPErrorHandler(err, c)
	}

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins(serverConfig),
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
	}))
	Logger.Info("Echo created", "maxUploadBytes", serverConfig.MaxUploadBytes)
	return e
}

// allowedOrigins is the server's own origin and that of SERVER_API_URL.
// Other sites must not read the job log or converted pages.
func allowedOrigins(serverConfig config.ServerConfig) []string {
	hosts := []string{"localhost", "127.0.0.1"}
	if ip := serverConfig.ListenAddrIP; ip != "" && ip != "localhost" && ip != "127.0.0.1" {
		hosts = append(hosts, ip)
	}
	var origins []string
	for _, host := range hosts {
		origins = append(origins, "http://"+net.JoinHostPort(host, serverConfig.ListenAddrPort))
	}
	if apiURL, err := url.Parse(serverConfig.ServerAPIURL); err == nil && apiURL.Scheme != "" && apiURL.Host != "" {
		origins = append(origins, apiURL.Scheme+"://"+apiURL.Host)
	}
	return origins
}

// registerFrontend serves the stylesheet, the runtime config and the go-app
// UI. Must be called after the API routes since the UI catches everything else.
func registerFrontend(e *echo.Echo, serverConfig config.ServerConfig) {
	Logger.Info("Setting up go-app WASM UI")
	appHandler := webapp.Handler()

	e.GET("/webapp/webapp.css", func(c echo.Context) error {
		data, err := webappFS.ReadFile("webapp/webapp.css")
		if err != nil {
			return c.String(http.StatusNotFound, "webapp.css not found")
		}
		return c.Blob(http.StatusOK, "text/css", data)
	})

	// Inject backend API URL into the page
	e.GET("/config.js", func(c echo.Context) error {
		configJS := fmt.Sprintf(`
// dtools Frontend Configuration
window.dtoolsConfig = {
    apiURL: %q
};
`, serverConfig.ServerAPIURL)
		c.Response().Header().Set("Content-Type", "application/javascript")
		return c.String(http.StatusOK, configJS)
	})

	// Keep unknown API paths away from the UI catch-all below
	e.Any("/api/*", func(c echo.Context) error {
		return echo.ErrNotFound
	})

	// go-app serves app.js, wasm_exec.js, the manifest and /web/app.wasm
	// (built by `GOARCH=wasm GOOS=js go build -o web/app.wasm ./cmd/webapp`)
	// itself, and the WASM app handles its own client side routing and 404s
	e.Any("/*", echo.WrapHandler(appHandler))
}

// startWithRetry starts the server, moving to the next port when the
// configured one is taken. Returns nil once the server is shut down.
func startWithRetry(e *echo.Echo, serverConfig *config.ServerConfig) error {
	startPort := serverConfig.ListenAddrPort

	for attempt := 0; attempt < maxPortRetries; attempt++ {
		addr := fmt.Sprintf("%s:%s", serverConfig.ListenAddrIP, serverConfig.ListenAddrPort)
		Logger.Info("Attempting to start server", "address", addr, "attempt", attempt+1)
		fmt.Printf("Open http://%s/ in your browser\n", displayAddr(serverConfig))

		err := e.Start(addr)
		switch {
		case err == nil, errors.Is(err, http.ErrServerClosed):
			return nil
		case isAddressInUse(err):
			Logger.Warn("Port already in use, trying next port",
				"port", serverConfig.ListenAddrPort,
				"attempt", attempt+1,
				"max_attempts", maxPortRetries)
			portNum := 0
			fmt.Sscanf(serverConfig.ListenAddrPort, "%d", &portNum)
			serverConfig.ListenAddrPort = fmt.Sprintf("%d", portNum+1)
		default:
			return fmt.Errorf("starting server: %w", err)
		}
	}

	return fmt.Errorf("no free port found between %s and %s", startPort, serverConfig.ListenAddrPort)
}

func displayAddr(serverConfig *config.ServerConfig) string {
	host := serverConfig.ListenAddrIP
	if host == "" {
		host = "localhost"
	}
	return host + ":" + serverConfig.ListenAddrPort
}

// isAddressInUse checks if the error is due to address already in use
func isAddressInUse(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.EADDRINUSE) || strings.Contains(err.Error(), "address already in use")
}
