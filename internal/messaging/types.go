package messaging

import (
	"time"

	"github.com/bardlex/stobixd/internal/orchestrator"
	"github.com/bardlex/stobixd/internal/pipeline"
	"github.com/bardlex/stobixd/pkg/errors"
)

// AccountResultMessage is published after every account run
type AccountResultMessage struct {
	Service       string    `json:"service"`
	Cycle         int       `json:"cycle"`
	Account       int       `json:"account"`
	Accounts      int       `json:"accounts"`
	Wallet        string    `json:"wallet"`
	Proxy         string    `json:"proxy"`
	IP            string    `json:"ip,omitempty"`
	Success       bool      `json:"success"`
	Stage         string    `json:"stage"`
	ErrorType     string    `json:"error_type,omitempty"`
	Error         string    `json:"error,omitempty"`
	TasksClaimed  int       `json:"tasks_claimed"`
	TasksDone     int       `json:"tasks_already_done"`
	TasksSkipped  int       `json:"tasks_skipped"`
	TasksFailed   int       `json:"tasks_failed"`
	MiningState   string    `json:"mining_state"`
	MiningStarted bool      `json:"mining_started"`
	MinedAmount   float64   `json:"mined_amount"`
	Points        *float64  `json:"points"`
	DurationMs    int64     `json:"duration_ms"`
	ProcessedAt   time.Time `json:"processed_at"`
}

// CycleReportMessage is published after every cycle
type CycleReportMessage struct {
	Service     string    `json:"service"`
	Cycle       int       `json:"cycle"`
	Accounts    int       `json:"accounts"`
	Succeeded   int       `json:"succeeded"`
	Failed      int       `json:"failed"`
	Skipped     bool      `json:"skipped"`
	LeaseLost   bool      `json:"lease_lost"`
	StartedAt   time.Time `json:"started_at"`
	DurationMs  int64     `json:"duration_ms"`
	TotalPoints float64   `json:"total_points"`
}

// NewAccountResultMessage converts a pipeline result into its wire form
func NewAccountResultMessage(service string, r pipeline.AccountResult, at time.Time) AccountResultMessage {
	msg := AccountResultMessage{
		Service:       service,
		Cycle:         r.Cycle,
		Account:       r.Index + 1,
		Accounts:      r.Total,
		Wallet:        r.Wallet,
		Proxy:         r.Proxy,
		IP:            r.IP,
		Success:       r.Succeeded(),
		Stage:         string(r.Stage),
		TasksClaimed:  r.Tasks.Claimed,
		TasksDone:     r.Tasks.AlreadyDone,
		TasksSkipped:  r.Tasks.Skipped,
		TasksFailed:   r.Tasks.Failed,
		MiningState:   r.Mining.State.String(),
		MiningStarted: r.Mining.Started,
		MinedAmount:   r.Mining.Amount,
		DurationMs:    r.Duration.Milliseconds(),
		ProcessedAt:   at.UTC(),
	}
	if r.Err != nil {
		msg.ErrorType = string(errors.TypeOf(r.Err))
		msg.Error = r.Err.Error()
	}
	if r.PointsKnown {
		points := r.Points
		msg.Points = &points
	}
	return msg
}

// NewCycleReportMessage converts a cycle report into its wire form
func NewCycleReportMessage(service string, report orchestrator.CycleReport) CycleReportMessage {
	msg := CycleReportMessage{
		Service:    service,
		Cycle:      report.Cycle,
		Accounts:   report.Total,
		Succeeded:  report.Succeeded,
		Failed:     report.Failed,
		Skipped:    report.Skipped,
		LeaseLost:  report.LeaseLost,
		StartedAt:  report.Started.UTC(),
		DurationMs: report.Duration.Milliseconds(),
	}
	for _, r := range report.Results {
		if r.PointsKnown {
			msg.TotalPoints += r.Points
		}
	}
	return msg
}
