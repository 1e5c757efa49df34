package pipeline

import (
	"context"
	"time"

	"github.com/bardlex/stobixd/internal/accounts"
	"github.com/bardlex/stobixd/internal/httpclient"
	"github.com/bardlex/stobixd/internal/proxy"
	"github.com/bardlex/stobixd/internal/stobix"
	"github.com/bardlex/stobixd/pkg/log"
)

// Job is one account run
type Job struct {
	Cycle   int
	Index   int
	Total   int
	Account accounts.Account
	// Proxy is the raw proxy URI; empty connects directly
	Proxy string
	// InviteCode, when set, is visited before login
	InviteCode string
}

// APIFactory builds an API client whose traffic goes through adapter
type APIFactory func(adapter *proxy.Adapter, logger *log.Logger) API

// HTTPAPIFactory returns a factory building a Stobix client per adapter
func HTTPAPIFactory(httpConfig httpclient.Config, endpoints stobix.Endpoints) APIFactory {
	return func(adapter *proxy.Adapter, logger *log.Logger) API {
		return stobix.New(httpclient.New(httpConfig, adapter, logger), endpoints)
	}
}

// Runner executes the full pipeline for one account at a time
type Runner struct {
	newAPI   APIFactory
	excluded []string
	logger   *log.Logger
	now      func() time.Time
}

// NewRunner creates a Runner
func NewRunner(newAPI APIFactory, excluded []string, logger *log.Logger) *Runner {
	return &Runner{
		newAPI:   newAPI,
		excluded: excluded,
		logger:   logger.WithComponent("pipeline"),
		now:      time.Now,
	}
}

// Process runs wallet check, IP lookup, login, task claims, mining and the
// points report. Only wallet, proxy, invite and login failures end the run
// early and are returned; later stage failures are recorded in the result.
func (r *Runner) Process(ctx context.Context, job Job) (AccountResult, error) {
	start := r.now()
	result := AccountResult{
		Cycle:  job.Cycle,
		Index:  job.Index,
		Total:  job.Total,
		Wallet: job.Account.WalletAddress,
		Proxy:  "direct",
	}
	logger := r.logger.WithAccount(job.Index, job.Total, job.Account.WalletAddress)

	fail := func(stage Stage, err error) (AccountResult, error) {
		result.Stage = stage
		result.Err = err
		result.Duration = r.now().Sub(start)
		logger.WithError(err).Error("account run failed", "stage", string(stage))
		return result, err
	}

	w, err := job.Account.Open()
	if err != nil {
		return fail(StageWallet, err)
	}

	adapter := proxy.Direct()
	if job.Proxy != "" {
		if adapter, err = proxy.NewAdapter(proxy.Parse(job.Proxy)); err != nil {
			result.Proxy = proxy.Parse(job.Proxy).String()
			return fail(StageProxy, err)
		}
	}
	result.Proxy = adapter.String()

	api := r.newAPI(adapter, logger)

	if ip, err := api.PublicIP(ctx); err != nil {
		logger.WithError(err).Warn("public ip lookup failed")
		result.IP = "unknown"
	} else {
		result.IP = ip
	}
	logger.Info("processing account", "ip", result.IP, "proxy", result.Proxy)

	if job.InviteCode != "" {
		if err := api.VisitInvite(ctx, job.InviteCode); err != nil {
			return fail(StageInvite, err)
		}
		logger.Info("invite link connected")
	}

	token, err := NewAuthenticator(api, logger).Authenticate(ctx, w)
	if err != nil {
		return fail(StageAuth, err)
	}

	summary, err := NewTaskClaimer(api, r.excluded, logger).Run(ctx, token)
	result.Tasks = summary
	if err != nil {
		result.TasksErr = err
		logger.WithError(err).Warn("failed receiving task list")
	}

	miner := NewMiner(api, logger)
	miner.now = r.now
	outcome, err := miner.Run(ctx, token)
	result.Mining = outcome
	if err != nil {
		logger.WithError(err).Warn("mining error, skipping mining")
	}

	result.Points, result.PointsKnown = NewPointsReporter(api, logger).Fetch(ctx, token)

	result.Stage = StageDone
	result.Duration = r.now().Sub(start)
	logger.Info("account processed",
		"tasks_claimed", summary.Claimed,
		"tasks_failed", summary.Failed,
		"mining", outcome.State.String(),
		"duration", result.Duration.Round(time.Millisecond).String(),
	)
	return result, nil
}
