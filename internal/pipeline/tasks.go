package pipeline

import (
	"context"

	"github.com/bardlex/stobixd/pkg/errors"
	"github.com/bardlex/stobixd/pkg/log"
)

// TaskSummary counts what happened to each task in the list
type TaskSummary struct {
	Claimed     int
	AlreadyDone int
	Skipped     int
	Failed      int
}

// TaskClaimer claims every eligible, unclaimed task
type TaskClaimer struct {
	api      API
	excluded map[string]struct{}
	logger   *log.Logger
}

// NewTaskClaimer creates a TaskClaimer that never claims the excluded ids
func NewTaskClaimer(api API, excluded []string, logger *log.Logger) *TaskClaimer {
	set := make(map[string]struct{}, len(excluded))
	for _, id := range excluded {
		set[id] = struct{}{}
	}
	return &TaskClaimer{api: api, excluded: set, logger: logger}
}

// Excluded reports whether id is in the exclusion set
func (c *TaskClaimer) Excluded(id string) bool {
	_, ok := c.excluded[id]
	return ok
}

// Run fetches the task list and claims tasks in order. A failed claim is
// logged and counted; only a failure to fetch the list is returned.
func (c *TaskClaimer) Run(ctx context.Context, token string) (TaskSummary, error) {
	var summary TaskSummary

	loyalty, err := c.api.Loyalty(ctx, token)
	if err != nil {
		return summary, errors.Wrap(err, errors.ErrorTypeTaskClaim, "list_tasks", "failed to fetch task list")
	}
	c.logger.Info("task list received", "tasks", len(loyalty.Tasks))

	for _, task := range loyalty.Tasks {
		logger := c.logger.WithTask(task.ID)

		switch {
		case c.Excluded(task.ID):
			summary.Skipped++
			logger.Debug("task excluded")

		case task.ClaimedAt.IsSet():
			summary.AlreadyDone++
			logger.Info("task already done")

		default:
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			claim, err := c.api.ClaimTask(ctx, token, task.ID)
			if err != nil {
				summary.Failed++
				logger.WithError(errors.Wrap(err, errors.ErrorTypeTaskClaim, "claim_task", "claim failed")).
					Warn("failed completing task")
				continue
			}
			summary.Claimed++
			logger.Info("task completed", "points", claim.Points)
		}
	}

	return summary, nil
}
