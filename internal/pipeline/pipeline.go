// Package pipeline runs the per-account sequence: login, task claims,
// mining and the points report.
package pipeline

import (
	"context"
	"time"

	"github.com/bardlex/stobixd/internal/stobix"
)

// API is the subset of the Stobix client the pipeline needs
type API interface {
	Nonce(ctx context.Context, address string) (*stobix.NonceResponse, error)
	Verify(ctx context.Context, nonce, signature string) (*stobix.VerifyResponse, error)
	Loyalty(ctx context.Context, token string) (*stobix.Loyalty, error)
	ClaimTask(ctx context.Context, token, taskID string) (*stobix.ClaimResponse, error)
	Mine(ctx context.Context, token string) (*stobix.MineResponse, error)
	PublicIP(ctx context.Context) (string, error)
	VisitInvite(ctx context.Context, code string) error
}

// Stage names the step an account run stopped at
type Stage string

const (
	StageWallet Stage = "wallet"
	StageProxy  Stage = "proxy"
	StageInvite Stage = "invite"
	StageAuth   Stage = "authenticate"
	StageDone   Stage = "done"
)

// AccountResult is the outcome of one account run
type AccountResult struct {
	Cycle    int
	Index    int
	Total    int
	Wallet   string
	Proxy    string
	IP       string
	Stage    Stage
	Err      error
	Tasks    TaskSummary
	TasksErr error
	Mining   MiningOutcome
	Points   float64
	// PointsKnown is false when the balance could not be fetched
	PointsKnown bool
	Duration    time.Duration
}

// Succeeded reports whether the account got past authentication
func (r AccountResult) Succeeded() bool {
	return r.Err == nil
}
