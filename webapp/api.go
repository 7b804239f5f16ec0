package webapp

import (
	"encoding/json"

	"github.com/maxence-charriere/go-app/v10/pkg/app"
	"github.com/oklog/ulid/v2"
)

const workspaceStorageKey = "dtools-workspace"

// GetAPIBaseURL returns the configured API base URL
// It reads from window.dtoolsConfig.apiURL if available,
// otherwise falls back to empty string (relative URLs)
func GetAPIBaseURL() string {
	// Check if config is available in browser
	if !app.IsClient {
		return "" // Server-side rendering - use relative URLs
	}

	config := app.Window().Get("dtoolsConfig")
	if config.Truthy() {
		apiURL := config.Get("apiURL")
		if apiURL.Truthy() {
			url := apiURL.String()
			if len(url) > 0 && url[len(url)-1] == '/' {
				return url[:len(url)-1]
			}
			return url
		}
	}
	return ""
}

// BuildAPIURL constructs a full API URL from a path
// Example: BuildAPIURL("/api/jobs") -> "http://backend:8000/api/jobs"
// or just "/api/jobs" if using relative URLs
func BuildAPIURL(path string) string {
	baseURL := GetAPIBaseURL()
	if baseURL == "" {
		return path // Relative URL
	}
	return baseURL + path
}

// workspaceID returns this browser's workspace, creating one on first use.
// It survives reloads so a running conversion can be picked up again.
func workspaceID(ctx app.Context) string {
	var id string
	ctx.LocalStorage().Get(workspaceStorageKey, &id)
	if _, err := ulid.Parse(id); err == nil {
		return id
	}
	id = ulid.Make().String()
	if err := ctx.LocalStorage().Set(workspaceStorageKey, id); err != nil {
		app.Log("unable to store workspace id:", err)
	}
	return id
}

// fetchText calls fetch(url, init) and hands the status and body text to
// onResult on the UI goroutine. init may be nil.
func fetchText(ctx app.Context, url string, init app.Value, onResult func(ctx app.Context, status int, body string), onNetworkError func(ctx app.Context)) {
	ctx.Async(func() {
		var res app.Value
		if init == nil {
			res = app.Window().Call("fetch", url)
		} else {
			res = app.Window().Call("fetch", url, init)
		}

		res.Call("then", app.FuncOf(func(this app.Value, args []app.Value) any {
			if len(args) == 0 {
				return nil
			}
			response := args[0]
			status := response.Get("status").Int()

			response.Call("text").Call("then", app.FuncOf(func(this app.Value, args []app.Value) any {
				body := ""
				if len(args) > 0 {
					body = args[0].String()
				}
				ctx.Dispatch(func(ctx app.Context) {
					onResult(ctx, status, body)
				})
				return nil
			}))
			return nil
		})).Call("catch", app.FuncOf(func(this app.Value, args []app.Value) any {
			ctx.Dispatch(func(ctx app.Context) {
				onNetworkError(ctx)
			})
			return nil
		}))
	})
}

// newRequestInit builds a fetch init object
func newRequestInit(method string, headers map[string]string, body app.Value) app.Value {
	init := app.Window().Get("Object").New()
	init.Set("method", method)
	h := app.Window().Get("Object").New()
	for k, v := range headers {
		h.Set(k, v)
	}
	init.Set("headers", h)
	if body != nil {
		init.Set("body", body)
	}
	return init
}

// decodeWorkspace parses a workspace snapshot
func decodeWorkspace(body string) (WorkspaceView, error) {
	var view WorkspaceView
	err := json.Unmarshal([]byte(body), &view)
	return view, err
}

// WorkspaceView is the conversion snapshot served by /api/workspaces/:ws
type WorkspaceView struct {
	Workspace string       `json:"workspace"`
	Version   uint64       `json:"version"`
	Session   *SessionView `json:"session"`
}

// SessionView is one document's conversion
type SessionView struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Title          string     `json:"title,omitempty"`
	CreatedAt      string     `json:"createdAt"`
	PageCount      int        `json:"pageCount"`
	UploadProgress float64    `json:"uploadProgress"`
	Progress       float64    `json:"progress"`
	Error          string     `json:"error,omitempty"`
	ErrorKind      string     `json:"errorKind,omitempty"`
	Done           bool       `json:"done"`
	Finished       bool       `json:"finished"`
	ArchiveName    string     `json:"archiveName"`
	ArchiveURL     string     `json:"archiveUrl,omitempty"`
	Pages          []PageView `json:"pages"`
}

// PageView is one converted page
type PageView struct {
	PageNumber   int    `json:"pageNumber"`
	FileName     string `json:"fileName"`
	SizeBytes    int    `json:"sizeBytes"`
	Error        string `json:"error,omitempty"`
	ErrorKind    string `json:"errorKind,omitempty"`
	URL          string `json:"url,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
}

// Job represents a background job
type Job struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	CurrentStep string `json:"currentStep"`
	TotalSteps  int    `json:"totalSteps"`
	Message     string `json:"message"`
	Error       string `json:"error,omitempty"`
	Result      string `json:"result,omitempty"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
	StartedAt   string `json:"startedAt,omitempty"`
	CompletedAt string `json:"completedAt,omitempty"`
}
