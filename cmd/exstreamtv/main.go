// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/roto31/exstreamtv/internal/boundary"
	"github.com/roto31/exstreamtv/internal/breaker"
	"github.com/roto31/exstreamtv/internal/catalogread"
	"github.com/roto31/exstreamtv/internal/channels"
	"github.com/roto31/exstreamtv/internal/clock"
	"github.com/roto31/exstreamtv/internal/config"
	"github.com/roto31/exstreamtv/internal/governor"
	xglog "github.com/roto31/exstreamtv/internal/log"
	"github.com/roto31/exstreamtv/internal/middleware"
	"github.com/roto31/exstreamtv/internal/pool"
	"github.com/roto31/exstreamtv/internal/resolver"
	"github.com/roto31/exstreamtv/internal/session"
	"github.com/roto31/exstreamtv/internal/throttle"
	"github.com/roto31/exstreamtv/internal/version"
)

// shutdownGrace bounds how long in-flight .ts streams and the HTTP server
// get to wind down once a shutdown signal arrives, per spec §5.
const shutdownGrace = 15 * time.Second

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "/etc/exstreamtv/config.yaml", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("exstreamtv %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	xglog.Configure(xglog.Config{Level: "info", Service: "exstreamtv", Version: version.Version})
	logger := xglog.WithComponent("main")

	holder, err := config.NewHolder(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", *configPath).Msg("failed to load configuration")
	}
	cfg := holder.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runDaemon(ctx, cfg, holder); err != nil {
		logger.Fatal().Err(err).Msg("exstreamtv exited with error")
	}
	logger.Info().Msg("exstreamtv exited cleanly")
}

func runDaemon(ctx context.Context, cfg config.AppConfig, holder *config.Holder) error {
	logger := xglog.WithComponent("daemon")
	c := clock.System()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir %s: %w", cfg.DataDir, err)
	}

	p := pool.New(pool.Config{
		CapacityMax:          cfg.Pool.CapacityMax,
		SpawnsPerSecond:      rate.Limit(cfg.Pool.SpawnsPerSecond),
		MemoryGuardThreshold: cfg.Pool.MemoryGuardThreshold,
		FdGuardReserve:       cfg.Pool.FdGuardReserve,
	}, c, nil, nil)

	brMgr := breaker.NewManager(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		FailureWindow:    cfg.Breaker.FailureWindow,
		Cooldown:         cfg.Breaker.Cooldown,
		ProbeUpSeconds:   time.Duration(cfg.Breaker.ProbeUpSeconds) * time.Second,
	}, c)

	gov := governor.New(governor.Config{
		GlobalRestartsPerWindow: cfg.Governor.GlobalRestartsPerWindow,
		GlobalWindow:            cfg.Governor.GlobalWindow,
		ChannelCooldown:         cfg.Governor.ChannelCooldown,
	}, c, brMgr)

	channelIDs := make([]string, 0, len(cfg.Channels))
	for _, chCfg := range cfg.Channels {
		channelIDs = append(channelIDs, chCfg.ID)
	}
	cm := channels.NewManager(cfg.DataDir, channelIDs...)
	if err := cm.Load(); err != nil {
		logger.Warn().Err(err).Msg("no existing channel store, starting empty")
	}

	sm := session.New(session.Config{
		MaxSessionsPerChannel: cfg.Session.MaxSessionsPerChannel,
		IdleTimeout:           cfg.Session.IdleTimeout,
	}, c)

	var sessionMirror *session.RedisMirror
	if cfg.Session.RedisAddr != "" {
		mirror, mirrorErr := session.NewRedisMirror(session.RedisMirrorConfig{Addr: cfg.Session.RedisAddr}, *xglog.L())
		if mirrorErr != nil {
			logger.Warn().Err(mirrorErr).Str("addr", cfg.Session.RedisAddr).Msg("session redis mirror unavailable, falling back to per-process counts")
		} else {
			sessionMirror = mirror
			defer sessionMirror.Close()
		}
	}

	resolv := resolver.New()
	resolv.Register(resolver.Local, localBackend{})

	var catalog *catalogread.Store
	if cfg.CatalogDBPath != "" {
		catalog, err = catalogread.Open(cfg.CatalogDBPath)
		if err != nil {
			return fmt.Errorf("opening catalog database: %w", err)
		}
		defer catalog.Close()
	}

	reg, err := buildRegistry(ctx, cfg, c, p, gov, cm, resolv, catalog)
	if err != nil {
		return fmt.Errorf("building channel registry: %w", err)
	}

	throttleCfg := throttle.Config{
		Mode:                 throttle.Mode(cfg.Throttle.Mode),
		TargetBytesPerSecond: cfg.Throttle.TargetBytesPerSecond,
		BurstFactor:          cfg.Throttle.BurstFactor,
	}
	newThrottler := func() *throttle.Throttler { return throttle.New(throttleCfg, c) }

	boundaryCfg := boundary.Config{
		BaseURL:      "",
		DeviceID:     cfg.DeviceID,
		FriendlyName: cfg.FriendlyName,
		TunerCount:   cfg.TunerCount,
		SSDPEnabled:  false,
	}
	srv := boundary.NewServer(boundaryCfg, reg, cm, p, brMgr, sm, newThrottler)

	stackCfg := middleware.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		EnableLogging:         true,
		EnableRateLimit:       true,
		RateLimitRPS:          200,
	}
	router := boundary.NewRouter(srv, stackCfg)

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	startAll(gctx, reg, g)

	g.Go(func() error {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := sm.ReapIdle(gctx); n > 0 {
					logger.Debug().Int("count", n).Msg("reaped idle sessions")
				}
			}
		}
	})

	if sessionMirror != nil {
		g.Go(func() error {
			ticker := time.NewTicker(5 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					for _, id := range reg.order {
						sessionMirror.SetCount(id, len(sm.ListByChannel(id)))
					}
				}
			}
		})
	}

	if err := holder.StartWatcher(gctx); err != nil {
		logger.Warn().Err(err).Msg("config file watcher not started")
	}

	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				logger.Info().Msg("SIGHUP received, reloading configuration")
				if err := holder.Reload(); err != nil {
					logger.Warn().Err(err).Msg("config reload failed")
				}
			}
		}
	})

	g.Go(func() error {
		logger.Info().Str("addr", cfg.ListenAddr).Msg("starting boundary HTTP server")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		logger.Info().Dur("grace", shutdownGrace).Msg("shutting down")
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("http server shutdown error")
		}
		for _, entry := range reg.entries {
			entry.Runtime.RequestStop()
		}
		_ = srv.Shutdown(shutdownCtx)
		return nil
	})

	return g.Wait()
}
