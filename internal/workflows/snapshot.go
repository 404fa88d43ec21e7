package workflows

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	TargetCache    = "cache"
	TargetProjects = "projects"
)

// SnapshotInput lists what to persist. Empty means both the cached site set
// and the project collection.
type SnapshotInput struct {
	Targets []string
}

// SnapshotResult maps each target to the save outcome the API reported.
type SnapshotResult struct {
	Outcomes map[string]string
}

// SnapshotWorkflow asks the API to persist each target in turn. A failing
// target does not stop the others; failures are joined and returned once
// every target was tried.
func SnapshotWorkflow(ctx workflow.Context, input SnapshotInput) (SnapshotResult, error) {
	logger := workflow.GetLogger(ctx)

	targets := input.Targets
	if len(targets) == 0 {
		targets = []string{TargetCache, TargetProjects}
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 2 * time.Second,
			MaximumAttempts: 3,
		},
	})

	result := SnapshotResult{Outcomes: make(map[string]string, len(targets))}
	var errs []error
	for _, target := range targets {
		var outcome string
		if err := workflow.ExecuteActivity(ctx, "TriggerSave", target).Get(ctx, &outcome); err != nil {
			logger.Warn("snapshot target failed", "target", target, "error", err)
			result.Outcomes[target] = "failed"
			errs = append(errs, err)
			continue
		}
		result.Outcomes[target] = outcome
	}

	if err := errors.Join(errs...); err != nil {
		return result, err
	}
	logger.Info("snapshot complete", "outcomes", result.Outcomes)
	return result, nil
}
