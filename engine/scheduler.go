package engine

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/drummonds/dtools/database"
	"github.com/robfig/cron/v3"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// CleanupSummary is stored as the result of a cleanup job
type CleanupSummary struct {
	Workspaces  int `json:"workspaces"`
	JobsDeleted int `json:"jobsDeleted"`
}

// InitializeSchedules starts the janitor, which frees idle workspaces and
// prunes the job log. Stop the returned scheduler on shutdown.
func (serverHandler *ServerHandler) InitializeSchedules() *cron.Cron {
	interval := serverHandler.ServerConfig.JanitorInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	c := cron.New()
	var janitorJob cron.Job
	janitorJob = cron.FuncJob(func() { serverHandler.janitorJobFunc() })
	janitorJob = cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).Then(janitorJob) //ensure we don't kick off another if old one is still running
	if _, err := c.AddJob(fmt.Sprintf("@every %s", interval), janitorJob); err != nil {
		Logger.Error("Unable to schedule janitor", "interval", interval, "error", err)
		return c
	}
	Logger.Info("Adding janitor job scheduler", "interval", interval)
	c.Start()
	return c
}

// janitorJobFunc runs one cleanup pass. A job is only recorded when there was
// something to clean so the log is not flooded.
func (serverHandler *ServerHandler) janitorJobFunc() CleanupSummary {
	defer func() {
		if r := recover(); r != nil {
			Logger.Error("Panic recovered in janitor", "panic", r)
		}
	}()

	cfg := serverHandler.ServerConfig
	var summary CleanupSummary
	if cfg.SessionTTL > 0 {
		summary.Workspaces = serverHandler.Workspaces.Evict(cfg.SessionTTL)
	}
	if cfg.JobRetention > 0 && serverHandler.DB != nil {
		deleted, err := serverHandler.DB.DeleteOldJobs(cfg.JobRetention)
		if err != nil {
			Logger.Warn("Failed to prune job log", "error", err)
		}
		summary.JobsDeleted = deleted
	}

	if summary.Workspaces == 0 && summary.JobsDeleted == 0 {
		Logger.Debug("Janitor found nothing to clean")
		return summary
	}
	Logger.Info("Janitor cleaned up", "workspaces", summary.Workspaces, "jobs", summary.JobsDeleted)
	serverHandler.recordCleanup(summary)
	return summary
}

func (serverHandler *ServerHandler) recordCleanup(summary CleanupSummary) {
	if serverHandler.DB == nil {
		return
	}
	jobID, err := database.CalculateUUID(time.Now())
	if err != nil {
		Logger.Warn("Unable to create cleanup job ID", "error", err)
		return
	}
	msg := fmt.Sprintf("Evicted %d workspaces, deleted %d jobs", summary.Workspaces, summary.JobsDeleted)
	if _, err := serverHandler.DB.CreateJob(jobID, database.JobTypeCleanup, msg); err != nil {
		Logger.Warn("Unable to record cleanup job", "error", err)
		return
	}
	result, _ := json.Marshal(summary)
	if err := serverHandler.DB.CompleteJob(jobID, string(result)); err != nil {
		Logger.Warn("Unable to complete cleanup job", "error", err)
	}
}
