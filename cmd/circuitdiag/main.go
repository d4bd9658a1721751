// Copyright (c) 2026 ToeiRei
// Circuitdiag - circuit diagnostics over SSH
// This source code is licensed under the MIT license found in the LICENSE file.

// main.go sets up the command-line interface of circuitdiag using Cobra. It
// loads configuration, builds the logger, metrics and store shared by the
// subcommands, and tears them down after the command finishes.

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/toeirei/circuitdiag/buildvars"
	"github.com/toeirei/circuitdiag/internal/config"
	"github.com/toeirei/circuitdiag/internal/db"
	"github.com/toeirei/circuitdiag/internal/i18n"
	"github.com/toeirei/circuitdiag/internal/logging"
	"github.com/toeirei/circuitdiag/internal/metrics"
	"github.com/toeirei/circuitdiag/internal/session"
	"go.uber.org/zap"
)

// main is the entry point of the application.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()
	stop()
	if err != nil {
		// Cobra has already printed the error.
		os.Exit(1)
	}
}

// app holds what PersistentPreRunE builds for the subcommands.
type app struct {
	cfgFile string
	cfg     config.Config
	log     *zap.Logger

	registry   *prometheus.Registry
	metrics    *metrics.Collectors
	metricsSrv *http.Server
	metricsLn  net.Listener

	store *db.BunStore
}

// newRootCmd creates the root command. Tests build a fresh one per run.
func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "circuitdiag",
		Short: "Run diagnostic commands for a circuit on every mapped device.",
		Long: `circuitdiag looks up the devices mapped to a circuit identifier,
logs into each of them over SSH with the requesting user's credentials and
runs the configured diagnostic commands, collecting one result per command.

A failure on one device never stops the others.`,
		SilenceUsage:  true,
		Version:       buildvars.Describe(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is circuitdiag.yaml in the user config dir, /etc/circuitdiag or .)")
	cmd.PersistentFlags().String("db-type", "sqlite", "Database type (sqlite, postgres, mysql)")
	cmd.PersistentFlags().String("db-dsn", "./circuitdiag.db", "Database connection string (DSN)")
	cmd.PersistentFlags().String("lang", "en", `Message language ("en", "de")`)
	cmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("metrics-listen", "", "Serve Prometheus metrics on this address, e.g. :9310")

	cmd.AddCommand(
		newDispatchCmd(a),
		newProbeCmd(a),
		newMappingsCmd(a),
		newSeedCmd(a),
		newMockDeviceCmd(a),
		newKeygenCmd(),
		newConfigCmd(a),
	)
	return cmd
}

// setup loads configuration and initializes logging, i18n and metrics.
// The store is opened lazily by the commands that need it.
func (a *app) setup(cmd *cobra.Command) error {
	path, err := configPathFromFlag(cmd, a.cfgFile)
	if err != nil {
		return err
	}
	cfg, err := config.LoadConfig[config.Config](cmd, config.Defaults(), path)
	if err != nil {
		return errors.New(i18n.T("config.error_load", err))
	}
	if err := cfg.Validate(); err != nil {
		return errors.New(i18n.T("config.error_load", err))
	}
	a.cfg = cfg

	log, term, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.log = log
	logging.SetLogger(term)
	i18n.Init(cfg.Language)

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = metrics.New(a.registry)
	if cfg.Metrics.Listen != "" {
		if err := a.serveMetrics(cfg.Metrics.Listen); err != nil {
			return err
		}
	}
	return nil
}

// configPathFromFlag returns the --config path when one was given, after
// checking that it exists.
func configPathFromFlag(cmd *cobra.Command, path string) (*string, error) {
	if !cmd.Flags().Changed("config") || path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file specified via --config flag not found or is not accessible: %w", err)
	}
	return &path, nil
}

// serveMetrics exposes the registry on addr until close is called.
func (a *app) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))
	a.metricsLn = ln
	a.metricsSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.metricsSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Errorf("metrics server: %v", err)
		}
	}()
	logging.Infof("serving metrics on http://%s/metrics", ln.Addr())
	return nil
}

// openStore opens the configured database once per run.
func (a *app) openStore() (*db.BunStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	st, err := db.New(a.cfg.Database.Type, a.cfg.Database.Dsn, db.WithLogger(a.log))
	if err != nil {
		return nil, errors.New(i18n.T("config.error_init_db", err))
	}
	a.store = st
	return st, nil
}

// connector builds a session connector recording host keys in hostKeys.
func (a *app) connector(hostKeys db.HostKeyStore) *session.Connector {
	opts := []session.Option{session.WithLogger(a.log), session.WithMetrics(a.metrics)}
	if hostKeys != nil {
		opts = append(opts, session.WithHostKeyStore(hostKeys))
	}
	return session.NewConnector(a.cfg.SessionConfig(), opts...)
}

// close releases everything setup and openStore acquired.
func (a *app) close() {
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = a.metricsSrv.Shutdown(ctx)
		cancel()
		a.metricsSrv = nil
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logging.Warnf("closing database: %v", err)
		}
		a.store = nil
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}
