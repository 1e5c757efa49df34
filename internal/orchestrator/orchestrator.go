// Package orchestrator runs every account through the pipeline in turn and
// repeats the batch on a fixed interval.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/bardlex/stobixd/internal/accounts"
	"github.com/bardlex/stobixd/internal/pipeline"
	"github.com/bardlex/stobixd/pkg/errors"
	"github.com/bardlex/stobixd/pkg/log"
)

// AccountRunner processes one account; *pipeline.Runner is the implementation
type AccountRunner interface {
	Process(ctx context.Context, job pipeline.Job) (pipeline.AccountResult, error)
}

// Observer is told about every account result and every finished cycle
type Observer interface {
	AccountDone(ctx context.Context, result pipeline.AccountResult)
	CycleDone(ctx context.Context, report CycleReport)
}

// Lease guards a cycle against a second instance working the same accounts.
// Renew extends a held lease and reports false once it has been lost.
type Lease interface {
	Acquire(ctx context.Context) (bool, error)
	Renew(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Config holds scheduling settings
type Config struct {
	Interval time.Duration
	UseProxy bool
	// Once stops Run after the first cycle
	Once bool
}

// CycleReport summarises one pass over the accounts
type CycleReport struct {
	Cycle     int
	Total     int
	Succeeded int
	Failed    int
	// Skipped is set when the cycle lease was held elsewhere
	Skipped bool
	// LeaseLost is set when the lease expired mid-cycle and the rest was abandoned
	LeaseLost bool
	Started   time.Time
	Duration  time.Duration
	Results   []pipeline.AccountResult
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithObserver adds an observer
func WithObserver(observer Observer) Option {
	return func(o *Orchestrator) {
		if observer != nil {
			o.observers = append(o.observers, observer)
		}
	}
}

// WithLease makes every cycle take lease first
func WithLease(lease Lease) Option {
	return func(o *Orchestrator) {
		o.lease = lease
	}
}

// Orchestrator sequences accounts and cycles
type Orchestrator struct {
	runner    AccountRunner
	accounts  []accounts.Account
	proxies   []string
	config    Config
	observers []Observer
	lease     Lease
	logger    *log.Logger

	now   func() time.Time
	wait  func(ctx context.Context, d time.Duration) error
	cycle int
}

// New creates an Orchestrator over an immutable account and proxy list
func New(runner AccountRunner, accts []accounts.Account, proxies []string, config Config, logger *log.Logger, opts ...Option) *Orchestrator {
	if config.Interval <= 0 {
		config.Interval = 8 * time.Hour
	}

	o := &Orchestrator{
		runner:   runner,
		accounts: append([]accounts.Account(nil), accts...),
		proxies:  append([]string(nil), proxies...),
		config:   config,
		logger:   logger.WithComponent("orchestrator"),
		now:      time.Now,
		wait:     sleep,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ProxyFor returns the proxy for account i, or "" for a direct connection
func (o *Orchestrator) ProxyFor(i int) string {
	if !o.config.UseProxy || len(o.proxies) == 0 {
		return ""
	}
	return o.proxies[i%len(o.proxies)]
}

// Run executes cycles until ctx is cancelled, waiting Interval between them.
// Cancellation is the only way out unless Once is set.
func (o *Orchestrator) Run(ctx context.Context) error {
	if len(o.accounts) == 0 {
		return errors.New(errors.ErrorTypeValidation, "run", "no accounts to process")
	}
	if o.config.UseProxy && len(o.proxies) == 0 {
		o.logger.Warn("proxy enabled but no proxies loaded, continuing without proxy")
	}

	for {
		report := o.RunCycle(ctx)
		if ctx.Err() != nil {
			o.logger.Info("shutdown requested, stopping", "cycle", report.Cycle)
			return nil
		}
		if o.config.Once {
			o.logger.LogCycle(report.Cycle, report.Total, report.Succeeded, report.Failed, report.Duration, 0)
			return nil
		}

		o.logger.LogCycle(report.Cycle, report.Total, report.Succeeded, report.Failed, report.Duration, o.config.Interval)
		if err := o.wait(ctx, o.config.Interval); err != nil {
			o.logger.Info("shutdown requested during wait", "cycle", report.Cycle)
			return nil
		}
	}
}

// RunCycle processes every account once. Failures and panics of one account
// are logged and counted; they never stop the cycle.
func (o *Orchestrator) RunCycle(ctx context.Context) CycleReport {
	o.cycle++
	report := CycleReport{
		Cycle:   o.cycle,
		Total:   len(o.accounts),
		Started: o.now(),
	}
	ctx = log.ContextWithCycle(ctx, report.Cycle)
	logger := o.logger.WithContext(ctx)

	holding := false
	if o.lease != nil {
		held, err := o.lease.Acquire(ctx)
		switch {
		case err != nil:
			logger.WithError(err).Warn("cycle lease unavailable, running without it")
		case !held:
			logger.Warn("cycle lease held by another instance, skipping cycle")
			report.Skipped = true
			report.Duration = o.now().Sub(report.Started)
			o.notifyCycle(ctx, report)
			return report
		default:
			holding = true
			defer func() {
				if err := o.lease.Release(context.WithoutCancel(ctx)); err != nil {
					logger.WithError(err).Warn("failed to release cycle lease")
				}
			}()
		}
	}

	logger.Info("cycle started", "accounts", report.Total)

	for i, acct := range o.accounts {
		if ctx.Err() != nil {
			break
		}
		if holding && i > 0 && !o.renewLease(ctx, logger) {
			report.LeaseLost = true
			break
		}

		job := pipeline.Job{
			Cycle:   report.Cycle,
			Index:   i,
			Total:   report.Total,
			Account: acct,
			Proxy:   o.ProxyFor(i),
		}

		result, err := o.process(ctx, job)
		if err != nil {
			report.Failed++
			logger.WithAccount(i, report.Total, acct.WalletAddress).WithError(err).
				Error("account failed", "stage", string(result.Stage))
		} else {
			report.Succeeded++
		}
		report.Results = append(report.Results, result)

		for _, observer := range o.observers {
			observer.AccountDone(ctx, result)
		}
	}

	report.Duration = o.now().Sub(report.Started)
	o.notifyCycle(ctx, report)
	return report
}

func (o *Orchestrator) process(ctx context.Context, job pipeline.Job) (result pipeline.AccountResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New(errors.ErrorTypeInternal, "process_account", fmt.Sprintf("panic: %v", r)).
				WithContext("account", job.Index+1)
			result = pipeline.AccountResult{
				Cycle:  job.Cycle,
				Index:  job.Index,
				Total:  job.Total,
				Wallet: job.Account.WalletAddress,
				Err:    err,
			}
		}
	}()

	result, err = o.runner.Process(ctx, job)
	if err != nil && result.Err == nil {
		result.Err = err
	}
	return result, err
}

// renewLease extends the lease before the next account. A backend error keeps
// the cycle going; a lease taken over by another instance stops it.
func (o *Orchestrator) renewLease(ctx context.Context, logger *log.Logger) bool {
	held, err := o.lease.Renew(ctx)
	switch {
	case err != nil:
		logger.WithError(err).Warn("failed to renew cycle lease, continuing")
		return true
	case !held:
		logger.Warn("cycle lease lost to another instance, stopping cycle")
		return false
	}
	return true
}

func (o *Orchestrator) notifyCycle(ctx context.Context, report CycleReport) {
	for _, observer := range o.observers {
		observer.CycleDone(ctx, report)
	}
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
