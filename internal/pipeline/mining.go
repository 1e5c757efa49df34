package pipeline

import (
	"context"
	"time"

	"github.com/bardlex/stobixd/internal/stobix"
	"github.com/bardlex/stobixd/pkg/errors"
	"github.com/bardlex/stobixd/pkg/log"
)

// MiningState is the mining phase derived from the user's timestamps
type MiningState int

const (
	// MiningUnknown means the status could not be fetched
	MiningUnknown MiningState = iota
	// MiningNotStarted means no mining period was ever started
	MiningNotStarted
	// MiningActive means a period is running and its claim time is in the future
	MiningActive
	// MiningClaimable means the last period has ended
	MiningClaimable
)

// String returns a log-friendly name
func (s MiningState) String() string {
	switch s {
	case MiningNotStarted:
		return "not_started"
	case MiningActive:
		return "active"
	case MiningClaimable:
		return "claimable"
	default:
		return "unknown"
	}
}

// EvaluateMining classifies a user's mining timestamps at now. A claim time
// that could not be read never counts as active.
func EvaluateMining(user stobix.User, now time.Time) MiningState {
	switch {
	case user.MiningStartedAt.IsSet() && user.MiningClaimAt.Known() && user.MiningClaimAt.Time().After(now):
		return MiningActive
	case !user.MiningStartedAt.IsSet():
		return MiningNotStarted
	default:
		return MiningClaimable
	}
}

// MiningOutcome describes what the miner did
type MiningOutcome struct {
	State   MiningState
	Started bool
	Amount  float64
	Err     error
}

// Miner starts a mining period unless one is already running
type Miner struct {
	api    API
	logger *log.Logger
	now    func() time.Time
}

// NewMiner creates a Miner
func NewMiner(api API, logger *log.Logger) *Miner {
	return &Miner{api: api, logger: logger, now: time.Now}
}

// Run checks the mining status and starts mining when it is not active.
// A failed status check is treated as eligible.
func (m *Miner) Run(ctx context.Context, token string) (MiningOutcome, error) {
	var outcome MiningOutcome

	loyalty, err := m.api.Loyalty(ctx, token)
	if err != nil {
		m.logger.WithError(err).Warn("error checking mining status")
	} else {
		outcome.State = EvaluateMining(loyalty.User, m.now())
		if outcome.State == MiningActive {
			m.logger.Info("mining already started", "claim_at", loyalty.User.MiningClaimAt.String())
			return outcome, nil
		}
		m.logger.Info("mining not started, ready to start mining", "state", outcome.State.String())
	}

	mined, err := m.api.Mine(ctx, token)
	if err != nil {
		outcome.Err = errors.Wrap(err, errors.ErrorTypeMining, "start_mining", "failed to start mining")
		return outcome, outcome.Err
	}

	outcome.Started = true
	outcome.Amount = mined.Amount
	m.logger.Info("mining started successfully",
		"amount", mined.Amount,
		"claim_at", mined.ClaimAt.String(),
	)
	return outcome, nil
}
