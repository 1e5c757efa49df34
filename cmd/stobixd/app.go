package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bardlex/stobixd/internal/accounts"
	"github.com/bardlex/stobixd/internal/config"
	"github.com/bardlex/stobixd/internal/httpclient"
	"github.com/bardlex/stobixd/internal/lease"
	"github.com/bardlex/stobixd/internal/messaging"
	"github.com/bardlex/stobixd/internal/metrics/influx"
	"github.com/bardlex/stobixd/internal/orchestrator"
	"github.com/bardlex/stobixd/internal/pipeline"
	"github.com/bardlex/stobixd/internal/referral"
	"github.com/bardlex/stobixd/internal/stobix"
	"github.com/bardlex/stobixd/pkg/log"
	"github.com/bardlex/stobixd/pkg/retry"
)

// app wires configuration into the pipeline and its optional sinks
type app struct {
	cfg    *config.Config
	logger *log.Logger
}

func (a *app) httpConfig() httpclient.Config {
	hc := httpclient.DefaultConfig()
	hc.Timeout = a.cfg.RequestTimeout
	hc.Origin = a.cfg.AppOrigin
	hc.Referer = a.cfg.AppOrigin + "/"
	hc.Retry = &retry.Config{
		MaxAttempts: a.cfg.RetryMaxAttempts,
		BaseDelay:   a.cfg.RetryBaseDelay,
		Multiplier:  a.cfg.RetryMultiplier,
	}
	return hc
}

func (a *app) endpoints() stobix.Endpoints {
	return stobix.Endpoints{
		BaseURL:       a.cfg.APIBaseURL,
		InviteBaseURL: a.cfg.InviteBaseURL,
		IPLookupURL:   a.cfg.IPLookupURL,
		ChainID:       a.cfg.ChainID,
	}
}

func (a *app) runner() *pipeline.Runner {
	return pipeline.NewRunner(
		pipeline.HTTPAPIFactory(a.httpConfig(), a.endpoints()),
		a.cfg.ExcludedTasks,
		a.logger,
	)
}

// loadAccounts returns an empty list when the file is missing or malformed
func (a *app) loadAccounts() []accounts.Account {
	list, err := accounts.Load(a.cfg.AccountsFile)
	if err != nil {
		a.logger.WithError(err).Error("failed to load accounts", "path", a.cfg.AccountsFile)
		return nil
	}
	a.logger.Info("accounts loaded", "count", len(list), "path", a.cfg.AccountsFile)
	return list
}

// loadProxies reads the proxy list only when proxies are enabled
func (a *app) loadProxies() []string {
	if !a.cfg.UseProxy {
		return nil
	}
	list, err := accounts.LoadProxies(a.cfg.ProxyFile)
	if err != nil {
		a.logger.WithError(err).Error("failed to load proxies", "path", a.cfg.ProxyFile)
		return nil
	}
	a.logger.Info("proxies loaded", "count", len(list), "path", a.cfg.ProxyFile)
	return list
}

// sinks are the optional Kafka, InfluxDB and Redis integrations
type sinks struct {
	observers []orchestrator.Observer
	lease     orchestrator.Lease
	closers   []func()
}

func (s *sinks) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openSinks connects every configured sink. A sink that cannot connect is
// logged and left out; it never stops the bot.
func (a *app) openSinks() *sinks {
	s := &sinks{}

	if len(a.cfg.KafkaBrokers) > 0 {
		client := messaging.NewKafkaClient(a.cfg.KafkaBrokers, a.logger)
		s.observers = append(s.observers, messaging.NewPublisher(
			client, a.cfg.ServiceName, a.cfg.KafkaTopic, messaging.Format(a.cfg.EventFormat), a.logger))
		s.closers = append(s.closers, func() {
			if err := client.Close(); err != nil {
				a.logger.WithError(err).Warn("failed to close Kafka client")
			}
		})
		a.logger.Info("publishing run events", "brokers", a.cfg.KafkaBrokers, "format", a.cfg.EventFormat)
	}

	if a.cfg.InfluxURL != "" {
		client, err := influx.NewClient(&influx.Config{
			URL:    a.cfg.InfluxURL,
			Token:  a.cfg.InfluxToken,
			Org:    a.cfg.InfluxOrg,
			Bucket: a.cfg.InfluxBucket,
		}, a.cfg.ServiceName, a.logger)
		if err != nil {
			a.logger.WithError(err).Error("InfluxDB unavailable, points telemetry disabled")
		} else {
			s.observers = append(s.observers, client)
			s.closers = append(s.closers, client.Close)
			a.logger.Info("recording points telemetry", "url", a.cfg.InfluxURL, "bucket", a.cfg.InfluxBucket)
		}
	}

	if a.cfg.RedisURL != "" {
		l, err := lease.New(&lease.Config{URL: a.cfg.RedisURL, Key: a.cfg.LeaseKey, TTL: a.cfg.LeaseTTL}, a.logger)
		if err != nil {
			a.logger.WithError(err).Error("Redis unavailable, running without cycle lease")
		} else {
			s.lease = l
			s.closers = append(s.closers, func() { _ = l.Close() })
			a.logger.Info("cycle lease enabled", "key", a.cfg.LeaseKey, "ttl", a.cfg.LeaseTTL)
		}
	}

	return s
}

func (a *app) run(ctx context.Context, oc orchestrator.Config) error {
	a.logger.Info("starting stobixd", "version", a.cfg.Version, "use_proxy", oc.UseProxy)

	accts := a.loadAccounts()
	if len(accts) == 0 {
		a.logger.Error("no accounts to process, exiting", "path", a.cfg.AccountsFile)
		return nil
	}

	s := a.openSinks()
	defer s.close()

	opts := make([]orchestrator.Option, 0, len(s.observers)+1)
	for _, observer := range s.observers {
		opts = append(opts, orchestrator.WithObserver(observer))
	}
	if s.lease != nil {
		opts = append(opts, orchestrator.WithLease(s.lease))
	}

	o := orchestrator.New(a.runner(), accts, a.loadProxies(), oc, a.logger, opts...)
	if err := o.Run(ctx); err != nil {
		return err
	}
	a.logger.Info("stobixd stopped")
	return nil
}

func (a *app) register(ctx context.Context, rc referral.Config) error {
	rc.Proxies = a.loadProxies()
	a.logger.Info("starting registration", "count", rc.Count, "use_proxy", rc.UseProxy)

	summary, err := referral.New(a.runner(), rc, a.logger).Register(ctx)
	if err != nil {
		return err
	}
	if summary.Registered == 0 && summary.Requested > 0 && ctx.Err() == nil {
		a.logger.Warn("no accounts were registered")
	}
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext(parent context.Context, logger *log.Logger) (context.Context, func()) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
