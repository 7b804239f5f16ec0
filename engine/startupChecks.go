package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/drummonds/dtools/engine/pdfrenderer"
)

const startupCheckTimeout = 30 * time.Second

// StartupChecks performs all the checks to make sure everything works
func (serverHandler *ServerHandler) StartupChecks(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, startupCheckTimeout)
	defer cancel()

	if err := rendererChecks(ctx, serverHandler.Renderer, serverHandler.ServerConfig.Scale); err != nil {
		return err
	}
	return databaseChecks(serverHandler)
}

// rendererChecks renders a generated one page document so a broken engine
// is caught before the first upload
func rendererChecks(ctx context.Context, renderer pdfrenderer.Engine, scale float64) error {
	if renderer == nil {
		return fmt.Errorf("no renderer configured")
	}
	start := time.Now()
	doc, err := renderer.Open(ctx, pdfrenderer.SampleDocument(1, "startup check"))
	if err != nil {
		Logger.Error("Renderer failed to open sample document", "error", err)
		return err
	}
	defer doc.Close()

	img, err := doc.RenderPage(ctx, 1, scale)
	if err != nil {
		Logger.Error("Renderer failed to render sample page", "error", err)
		return err
	}
	b := img.Bounds()
	Logger.Info("Renderer ready", "scale", scale, "width", b.Dx(), "height", b.Dy(), "took", time.Since(start))
	return nil
}

func databaseChecks(serverHandler *ServerHandler) error {
	if serverHandler.DB == nil {
		Logger.Warn("No database configured, jobs will not be recorded")
		return nil
	}
	active, err := serverHandler.DB.GetActiveJobs()
	if err != nil {
		Logger.Error("Database check failed", "error", err)
		return err
	}
	if len(active) > 0 {
		// conversions held in memory did not survive the restart
		for _, job := range active {
			if err := serverHandler.DB.UpdateJobError(job.ID, "interrupted by restart"); err != nil {
				Logger.Warn("Unable to mark interrupted job", "job", job.ID, "error", err)
			}
		}
		Logger.Info("Marked interrupted jobs as failed", "count", len(active))
	}
	return nil
}
