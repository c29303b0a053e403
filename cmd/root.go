// Package cmd provides the phaseline command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/catalog"
	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/challenge"
	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/config"
	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/events"
	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/phase"
	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/store"
	"github.com/topcoder-platform/challenge-api-v6-sub000/internal/ui"
)

var rootCmd = &cobra.Command{
	Use:   "phaseline",
	Short: "Challenge phase timeline engine",
	Long: `Phaseline builds and maintains the phase timelines of challenges: it
derives scheduled dates from timeline templates, reconciles them as
challenges change, and guards manual phase edits.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure. Client
// errors exit with 2, everything else with 1.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.New(os.Stdout, os.Stderr).Error(err.Error())
		if phase.KindOf(err) != "" {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default .phaseline.yaml)")
	pf.String("db", "", "SQLite database path (default phaseline.db)")
	pf.String("catalog", "", "catalog directory (default catalog)")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("log-format", "", "log format: text or json")
	pf.Bool("json", false, "print results as JSON")

	_ = viper.BindPFlag("db_path", pf.Lookup("db"))
	_ = viper.BindPFlag("catalog_dir", pf.Lookup("catalog"))
	_ = viper.BindPFlag("log_level", pf.Lookup("log-level"))
	_ = viper.BindPFlag("log_format", pf.Lookup("log-format"))
}

func initConfig() {
	if cfgFile, _ := rootCmd.Flags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".phaseline")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
	}

	config.Bind(viper.GetViper())

	// It's fine if no config file is found; we use defaults.
	_ = viper.ReadInConfig()
}

// loadConfig resolves configuration and builds the process logger.
func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to load config: %w", err)
	}
	level, err := cfg.Level()
	if err != nil {
		return config.Config{}, nil, err
	}
	hopts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, hopts)
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stderr, hopts)
	}
	return cfg, slog.New(h), nil
}

// app is the wired object graph behind commands that touch the database.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	store   *store.Store
	catalog *catalog.Cache
	service *challenge.Service
	printer *ui.Printer

	closers []func() error
}

// openApp opens the store and wires the catalog cache, event publishers and
// challenge service over it.
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(cmd.Context(), cfg.DBPath)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		catalog: catalog.New(st, st, catalog.WithLogger(logger)),
		printer: ui.New(cmd.OutOrStdout(), cmd.ErrOrStderr()),
		closers: []func() error{st.Close},
	}

	pub, err := a.publishers()
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.service = challenge.New(st, a.catalog,
		challenge.WithLogger(logger),
		challenge.WithPublisher(pub),
		challenge.WithPostMortemAnchor(cfg.PostMortemAnchor),
	)
	return a, nil
}

// publishers assembles the configured event sinks.
func (a *app) publishers() (events.Publisher, error) {
	var pubs events.Multi
	if path := a.cfg.Events.JSONLPath; path != "" {
		j, err := events.NewJSONL(path, a.logger)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, j)
		a.closers = append(a.closers, j.Close)
	}
	if url := a.cfg.Events.NATSURL; url != "" {
		n, err := events.DialNATS(url, a.cfg.Events.SubjectPrefix, a.logger)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, n)
		a.closers = append(a.closers, func() error { n.Close(); return nil })
	}
	switch len(pubs) {
	case 0:
		return events.Nop{}, nil
	case 1:
		return pubs[0], nil
	default:
		return pubs, nil
	}
}

// Close releases everything openApp acquired, newest first.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// withApp runs fn against a freshly opened app and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

// jsonOutput reports whether --json was given.
func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}
