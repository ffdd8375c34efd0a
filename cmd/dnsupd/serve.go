// ABOUTME: serve subcommand: wires config, logging, backend, engine and both front ends.
// ABOUTME: Runs until SIGINT/SIGTERM with graceful shutdown of every listener.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mauromedda/dnsupd/internal/backend"
	"github.com/mauromedda/dnsupd/internal/config"
	"github.com/mauromedda/dnsupd/internal/dnsfront"
	"github.com/mauromedda/dnsupd/internal/engine"
	"github.com/mauromedda/dnsupd/internal/httpfront"
	"github.com/mauromedda/dnsupd/internal/logging"
)

func newServeCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the update server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cfgPath)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "dnsupd.yaml", "path to the config file")
	return cmd
}

func serve(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.Configure(cfg.Log.Level, cfg.Log.Env)

	be, cleanup, err := openBackend(cfg)
	if err != nil {
		return fmt.Errorf("opening backend: %w", err)
	}
	defer cleanup()

	eng := engine.New(be,
		engine.WithApplyTimeout(cfg.Timeout),
		engine.WithMinTTL(cfg.TTL.Minimum),
		engine.WithLogger(logger),
	)

	var dnsSrv *dnsfront.Server
	if cfg.DNSEnabled() {
		dnsSrv = dnsfront.New(eng, be, dnsfront.Config{
			Addr: cfg.DNSAddr(),
			UDP:  cfg.DNSUDP(),
			TCP:  cfg.DNSTCP(),
		}, logger)
		if err := dnsSrv.Start(); err != nil {
			return fmt.Errorf("starting dns front end: %w", err)
		}
	}

	httpSrv := httpfront.New(eng, httpfront.Config{
		Addr:       cfg.HTTPAddr(),
		Simple:     cfg.HTTPSimple(),
		Updates:    cfg.HTTPUpdates(),
		Welcome:    cfg.HTTPWelcome(),
		DefaultTTL: cfg.TTL.Default,
	}, logger)
	if err := httpSrv.Start(); err != nil {
		return fmt.Errorf("starting http front end: %w", err)
	}

	logger.Info("dnsupd started",
		"dns", cfg.DNSAddr(),
		"http", cfg.HTTPAddr(),
		"backend", cfg.Backend.URL)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if dnsSrv != nil {
		dnsSrv.Stop(ctx)
	}
	httpSrv.Stop(ctx)
	logger.Info("shutdown complete")
	return nil
}

func openBackend(cfg *config.Config) (backend.Backend, func(), error) {
	url := cfg.Backend.URL
	switch {
	case strings.HasPrefix(url, "sqlite:"):
		be, err := backend.OpenSQL(url)
		if err != nil {
			return nil, nil, err
		}
		return be, func() {}, nil
	case strings.HasPrefix(url, "file:"):
		path := strings.TrimPrefix(url, "file:")
		opts := []backend.MemoryOption{}
		if cfg.Backend.Reload > 0 {
			opts = append(opts, backend.WithReload(cfg.Backend.Reload))
		}
		be, err := backend.NewMemory(path, opts...)
		if err != nil {
			return nil, nil, err
		}
		return be, be.Stop, nil
	default:
		return nil, nil, fmt.Errorf("unsupported backend url: %s", url)
	}
}
