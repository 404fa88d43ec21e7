package main

import (
	"context"
	"errors"
	"log"
	"log/slog"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/samirrijal/fieldsync/internal/pkg/config"
	"github.com/samirrijal/fieldsync/internal/pkg/logging"
	"github.com/samirrijal/fieldsync/internal/workflows"
)

const cronWorkflowID = "fieldsync-snapshot-cron"

func main() {
	cfg, err := config.Load("fieldsync-snapshotter")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	c, err := client.Dial(client.Options{
		HostPort: cfg.Snapshot.TemporalHost,
		Logger:   slog.Default(),
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Snapshot.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.SnapshotWorkflow)
	w.RegisterActivity(workflows.NewSnapshotActivities(cfg.Snapshot.APIURL))

	// One cron workflow per deployment; restarts attach to the running one.
	_, err = c.ExecuteWorkflow(context.Background(), client.StartWorkflowOptions{
		ID:           cronWorkflowID,
		TaskQueue:    cfg.Snapshot.TaskQueue,
		CronSchedule: cfg.Snapshot.Cron,
	}, workflows.SnapshotWorkflow, workflows.SnapshotInput{})
	var alreadyStarted *serviceerror.WorkflowExecutionAlreadyStarted
	if err != nil && !errors.As(err, &alreadyStarted) {
		log.Fatalf("schedule snapshot workflow: %v", err)
	}

	slog.Info("snapshot worker started", "queue", cfg.Snapshot.TaskQueue, "cron", cfg.Snapshot.Cron, "api", cfg.Snapshot.APIURL)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
