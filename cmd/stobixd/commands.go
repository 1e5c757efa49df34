package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/bardlex/stobixd/internal/config"
	"github.com/bardlex/stobixd/internal/orchestrator"
	"github.com/bardlex/stobixd/internal/referral"
	"github.com/bardlex/stobixd/pkg/log"
)

// flags holds command line overrides of the loaded configuration
type flags struct {
	accountsFile string
	proxyFile    string
	useProxy     bool
	logLevel     string

	once     bool
	interval time.Duration

	count      int
	inviteCode string
}

func newRootCmd() *cobra.Command {
	f := &flags{}
	a := &app{}

	root := &cobra.Command{
		Use:           "stobixd",
		Short:         "Run Stobix accounts through login, task claims and mining",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			applyFlags(cmd, cfg, f)
			a.cfg = cfg
			a.logger = log.NewWithWriter(cmd.ErrOrStderr(), cfg.ServiceName, cfg.Version, cfg.LogLevel, cfg.LogFormat)
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.accountsFile, "accounts", "", "accounts file (default from ACCOUNTS_FILE)")
	pf.StringVar(&f.proxyFile, "proxies", "", "proxy list file (default from PROXY_FILE)")
	pf.BoolVar(&f.useProxy, "use-proxy", false, "route each account through a proxy from the list")
	pf.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")

	run := &cobra.Command{
		Use:   "run",
		Short: "Process every account, then repeat on the cycle interval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context(), a.logger)
			defer stop()
			return a.run(ctx, orchestrator.Config{
				Interval: a.cfg.CycleInterval,
				UseProxy: a.cfg.UseProxy,
				Once:     f.once,
			})
		},
	}
	run.Flags().BoolVar(&f.once, "once", false, "run a single cycle and exit")
	run.Flags().DurationVar(&f.interval, "interval", 0, "pause between cycles (default from CYCLE_INTERVAL)")

	register := &cobra.Command{
		Use:   "register",
		Short: "Create new wallets through an invite code and save them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext(cmd.Context(), a.logger)
			defer stop()
			return a.register(ctx, referral.Config{
				Count:        f.count,
				InviteCode:   f.inviteCode,
				AccountsFile: a.cfg.AccountsFile,
				UseProxy:     a.cfg.UseProxy,
				MinDelay:     a.cfg.RegisterMinDelay,
				MaxDelay:     a.cfg.RegisterMaxDelay,
			})
		},
	}
	register.Flags().IntVar(&f.count, "count", 1, "number of accounts to register")
	register.Flags().StringVar(&f.inviteCode, "ref", "", "invite code")
	_ = register.MarkFlagRequired("ref")

	root.AddCommand(run, register)
	return root
}

// applyFlags overrides configuration with flags the user set explicitly
func applyFlags(cmd *cobra.Command, cfg *config.Config, f *flags) {
	if f.accountsFile != "" {
		cfg.AccountsFile = f.accountsFile
	}
	if f.proxyFile != "" {
		cfg.ProxyFile = f.proxyFile
	}
	if cmd.Flags().Changed("use-proxy") {
		cfg.UseProxy = f.useProxy
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.interval > 0 {
		cfg.CycleInterval = f.interval
	}
}
