// Package referral registers new accounts through an invite code and adds
// them to the accounts file.
package referral

import (
	"context"
	"io/fs"
	"math/rand"
	"time"

	"github.com/bardlex/stobixd/internal/accounts"
	"github.com/bardlex/stobixd/internal/pipeline"
	"github.com/bardlex/stobixd/internal/wallet"
	"github.com/bardlex/stobixd/pkg/errors"
	"github.com/bardlex/stobixd/pkg/log"
)

// AccountRunner processes one account; *pipeline.Runner is the implementation
type AccountRunner interface {
	Process(ctx context.Context, job pipeline.Job) (pipeline.AccountResult, error)
}

// Config holds registration settings
type Config struct {
	Count        int
	InviteCode   string
	AccountsFile string
	Proxies      []string
	UseProxy     bool
	MinDelay     time.Duration
	MaxDelay     time.Duration
}

// Summary counts registration outcomes
type Summary struct {
	Requested  int
	Registered int
	Failed     int
	Accounts   []accounts.Account
}

// Registrar creates wallets and runs each through the invite pipeline
type Registrar struct {
	runner AccountRunner
	config Config
	logger *log.Logger

	generate func() (*wallet.Wallet, error)
	wait     func(ctx context.Context, d time.Duration) error
	jitter   func(n int64) int64
}

// New creates a Registrar
func New(runner AccountRunner, config Config, logger *log.Logger) *Registrar {
	return &Registrar{
		runner:   runner,
		config:   config,
		logger:   logger.WithComponent("referral"),
		generate: wallet.Generate,
		wait:     sleep,
		jitter:   rand.Int63n,
	}
}

// Register creates Count accounts. Failed registrations are counted and
// skipped; only invalid settings return an error. Cancellation stops early.
func (r *Registrar) Register(ctx context.Context) (Summary, error) {
	summary := Summary{Requested: r.config.Count}
	if r.config.Count < 1 {
		return summary, errors.New(errors.ErrorTypeValidation, "register", "count must be positive").
			WithContext("count", r.config.Count)
	}
	if r.config.InviteCode == "" {
		return summary, errors.New(errors.ErrorTypeValidation, "register", "invite code is required")
	}
	if _, err := accounts.Load(r.config.AccountsFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return summary, err
	}
	if r.config.UseProxy && len(r.config.Proxies) == 0 {
		r.logger.Warn("proxy enabled but no proxies loaded, continuing without proxy")
	}

	for i := 0; i < r.config.Count; i++ {
		if ctx.Err() != nil {
			break
		}

		if acct, ok := r.registerOne(ctx, i); ok {
			summary.Registered++
			summary.Accounts = append(summary.Accounts, acct)
		} else {
			summary.Failed++
		}

		if i < r.config.Count-1 {
			d := r.delay()
			r.logger.Info("waiting before next registration", "delay", d.Round(time.Second).String())
			if err := r.wait(ctx, d); err != nil {
				break
			}
		}
	}

	r.logger.Info("registration finished",
		"requested", summary.Requested,
		"registered", summary.Registered,
		"failed", summary.Failed,
	)
	return summary, nil
}

func (r *Registrar) registerOne(ctx context.Context, i int) (accounts.Account, bool) {
	w, err := r.generate()
	if err != nil {
		r.logger.WithError(err).Error("failed to generate wallet", "account", i+1)
		return accounts.Account{}, false
	}
	acct := accounts.Account{
		WalletAddress: w.Address(),
		PrivateKey:    w.PrivateKeyHex(),
	}
	logger := r.logger.WithAccount(i, r.config.Count, acct.WalletAddress)
	logger.Info("registering new wallet")

	job := pipeline.Job{
		Cycle:      1,
		Index:      i,
		Total:      r.config.Count,
		Account:    acct,
		Proxy:      r.ProxyFor(i),
		InviteCode: r.config.InviteCode,
	}
	if _, err := r.runner.Process(ctx, job); err != nil {
		logger.WithError(err).Error("registration failed")
		return accounts.Account{}, false
	}

	if err := accounts.Append(r.config.AccountsFile, acct); err != nil {
		logger.WithError(err).Error("failed to save account")
		return accounts.Account{}, false
	}
	logger.Info("account registered and saved", "path", r.config.AccountsFile)
	return acct, true
}

// ProxyFor returns the proxy for registration i, or "" for a direct connection
func (r *Registrar) ProxyFor(i int) string {
	if !r.config.UseProxy || len(r.config.Proxies) == 0 {
		return ""
	}
	return r.config.Proxies[i%len(r.config.Proxies)]
}

// delay picks a pause uniformly in [MinDelay, MaxDelay]
func (r *Registrar) delay() time.Duration {
	lo, hi := r.config.MinDelay, r.config.MaxDelay
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(r.jitter(int64(hi-lo)+1))
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
