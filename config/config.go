package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

const (
	minRenderScale = 0.5
	maxRenderScale = 8.0
)

// ServerConfig contains all of the server settings
type ServerConfig struct {
	ListenAddrIP   string
	ListenAddrPort string

	DatabaseType     string
	DatabaseHost     string
	DatabasePort     string
	DatabaseUser     string
	DatabasePassword string
	DatabaseDbname   string
	DatabaseSslmode  string

	RenderConfig

	MaxUploadBytes  int64
	SessionTTL      time.Duration
	JanitorInterval time.Duration
	JobRetention    time.Duration

	FrontEndConfig
}

// RenderConfig selects and tunes the PDF rendering backend
type RenderConfig struct {
	Backend         string  // pdfium or fitz
	Scale           float64 // linear magnification applied to every page
	MaxInstances    int     // pdfium worker pool size
	InstanceTimeout time.Duration
}

// FrontEndConfig stores all of the frontend settings
type FrontEndConfig struct {
	ServerAPIURL string
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolVal
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intVal
}

// getEnvFloat gets a float environment variable with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return floatVal
}

// ClampScale keeps the render scale inside a range the rasterisers handle
func ClampScale(scale float64) float64 {
	switch {
	case scale < minRenderScale:
		return minRenderScale
	case scale > maxRenderScale:
		return maxRenderScale
	}
	return scale
}

// LoadRenderConfig reads the renderer settings shared by the server and the CLI
func LoadRenderConfig() RenderConfig {
	return RenderConfig{
		Backend:         getEnv("RENDER_BACKEND", "pdfium"),
		Scale:           ClampScale(getEnvFloat("RENDER_SCALE", 3.0)),
		MaxInstances:    getEnvInt("PDFIUM_MAX_INSTANCES", 1),
		InstanceTimeout: time.Duration(getEnvInt("PDFIUM_INSTANCE_TIMEOUT_SECONDS", 30)) * time.Second,
	}
}

// SetupServer loads configuration and returns ServerConfig and Logger
func SetupServer() (ServerConfig, *slog.Logger) {
	serverConfigLive := ServerConfig{}

	// Load .env file (silently ignore if doesn't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")

	logger := setupLogging()
	Logger = logger

	// Conversion happens in this process, so only listen locally unless told otherwise
	serverConfigLive.ListenAddrPort = getEnv("SERVER_PORT", "8000")
	serverConfigLive.ListenAddrIP = getEnv("SERVER_ADDR", "127.0.0.1")

	serverConfigLive.DatabaseType = getEnv("DATABASE_TYPE", "memory")
	serverConfigLive.DatabaseHost = getEnv("DATABASE_HOST", "localhost")
	serverConfigLive.DatabasePort = getEnv("DATABASE_PORT", "5432")
	serverConfigLive.DatabaseUser = getEnv("DATABASE_USER", "dtools")
	serverConfigLive.DatabasePassword = getEnv("DATABASE_PASSWORD", "")
	serverConfigLive.DatabaseDbname = getEnv("DATABASE_NAME", "dtools")
	serverConfigLive.DatabaseSslmode = getEnv("DATABASE_SSLMODE", "disable")

	logger.Info("Database configuration loaded", "type", serverConfigLive.DatabaseType)

	serverConfigLive.RenderConfig = LoadRenderConfig()
	logger.Info("Renderer configuration loaded",
		"backend", serverConfigLive.Backend,
		"scale", serverConfigLive.Scale,
		"maxInstances", serverConfigLive.MaxInstances)

	serverConfigLive.MaxUploadBytes = int64(getEnvInt("MAX_UPLOAD_MB", 200)) << 20
	serverConfigLive.SessionTTL = time.Duration(getEnvInt("SESSION_TTL_MINUTES", 60)) * time.Minute
	serverConfigLive.JanitorInterval = time.Duration(getEnvInt("JANITOR_INTERVAL_MINUTES", 5)) * time.Minute
	serverConfigLive.JobRetention = time.Duration(getEnvInt("JOB_RETENTION_HOURS", 24)) * time.Hour

	serverConfigLive.FrontEndConfig.ServerAPIURL = getEnv("SERVER_API_URL", "")

	fmt.Println("\n========================================")
	fmt.Println("   dtools - PDF to PNG converter")
	fmt.Println("========================================")
	fmt.Printf("Server will start on: %s:%s\n", serverConfigLive.ListenAddrIP, serverConfigLive.ListenAddrPort)
	if serverConfigLive.ListenAddrIP == "" {
		fmt.Println("(Listening on all network interfaces)")
	}
	fmt.Printf("Detailed logs: %s\n", getEnv("LOG_FILE", "dtools.log"))
	fmt.Println("Initializing...")

	return serverConfigLive, logger
}

// SetupCLI loads configuration for the command line converter, which always logs to stderr
func SetupCLI() (RenderConfig, *slog.Logger) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("config.env")

	level := parseLevel(getEnv("LOG_LEVEL", "warn"))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	Logger = logger

	return LoadRenderConfig(), logger
}

// parseLevel maps a LOG_LEVEL value onto a slog level, defaulting to debug
func parseLevel(logLevel string) slog.Level {
	switch logLevel {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}

// setupLogging configures the application logger
func setupLogging() *slog.Logger {
	handlerOptions := &slog.HandlerOptions{Level: parseLevel(getEnv("LOG_LEVEL", "debug"))}

	logOutput := getEnv("LOG_OUTPUT", "file")
	var logWriter io.Writer

	if logOutput == "stdout" {
		logWriter = os.Stdout
	} else {
		logPath, err := filepath.Abs(filepath.ToSlash(getEnv("LOG_FILE", "dtools.log")))
		if err != nil {
			fmt.Printf("Error creating log file path: %v\n", err)
			logWriter = os.Stdout
		} else {
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err != nil {
				fmt.Printf("Failed to open log file: %v\n", err)
				logWriter = os.Stdout
			} else {
				logWriter = logFile
				fmt.Println("Logging to file: ", logPath)
			}
		}
	}

	if getEnvBool("LOG_JSON", false) {
		return slog.New(slog.NewJSONHandler(logWriter, handlerOptions))
	}
	return slog.New(slog.NewTextHandler(logWriter, handlerOptions))
}
