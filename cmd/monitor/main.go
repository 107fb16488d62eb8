// Package main runs the geyser transaction monitor.
//
// It opens one subscription to a Yellowstone gRPC endpoint, records every
// matching transaction signature, and fans it out to websocket clients and
// an optional redis channel. A stream failure ends the process with a
// non-zero exit code; restarting is left to the supervisor.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"google.golang.org/grpc"

	"solana-tx-monitor/internal/api"
	"solana-tx-monitor/internal/bus"
	"solana-tx-monitor/internal/config"
	"solana-tx-monitor/internal/domain"
	"solana-tx-monitor/internal/feed"
	"solana-tx-monitor/internal/geyser"
	"solana-tx-monitor/internal/logging"
	"solana-tx-monitor/internal/monitor"
	"solana-tx-monitor/internal/observability"
	"solana-tx-monitor/internal/relay"
	"solana-tx-monitor/internal/state"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	started := time.Now()

	var flags config.Flags
	flagSet := pflag.NewFlagSet("monitor", pflag.ContinueOnError)
	flags.AddFlags(flagSet)

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := flags.Load(flagSet, os.LookupEnv)
	if err != nil {
		return err
	}

	logger, closeLog, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	offCurve, err := cfg.Validate()
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for _, acct := range offCurve {
		logger.Info("target account is off curve (program derived)", "account", acct)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig.String())
			cancel()
		case <-done:
			return
		}

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Error("received second signal, forcing exit", "signal", sig.String())
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Error("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	metrics := observability.DefaultMetrics
	shared := state.New(cfg, nil)
	txBus := bus.New[domain.TransactionInfo](cfg.BusCapacity)

	var wg sync.WaitGroup
	defer wg.Wait()
	defer txBus.Close()

	if cfg.RedisURL != "" {
		pub, err := relay.NewRedisPublisher(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer pub.Close()

		r := relay.New(txBus.Subscribe(), pub, cfg.RedisChannel, logger, metrics)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("relay stopped", "error", err)
			}
		}()
		logger.Info("redis relay enabled", "channel", cfg.RedisChannel)
	}

	logger.Info("connecting", "endpoint", cfg.Endpoint)
	client, err := geyser.Connect(ctx, cfg.ConnectionConfig(),
		grpc.WithChainUnaryInterceptor(metrics.UnaryClientInterceptor()))
	if err != nil {
		return err
	}
	defer client.Close()
	logger.Info("connected", "endpoint", client.Endpoint(), "version", client.Version())

	if slot, err := client.GetSlot(ctx, geyser.CommitmentLevel(cfg.Commitment)); err != nil {
		logger.Warn("get slot failed", "error", err)
	} else {
		logger.Info("current slot", "slot", slot)
	}

	mon := monitor.New(monitor.Options{
		State:   shared,
		Bus:     txBus,
		PingID:  cfg.PingID,
		Logger:  logger,
		Metrics: metrics,
	})

	var httpServer *http.Server
	if cfg.ListenAddr != "" {
		httpServer = &http.Server{
			Addr: cfg.ListenAddr,
			Handler: api.NewHandler(api.Options{
				State:    shared,
				Status:   api.StatusFunc(func() string { return mon.State().String() }),
				Feed:     feed.NewServer(txBus, feed.DefaultConfig(), logger, metrics),
				Endpoint: cfg.Endpoint,
				Version:  client.Version(),
				Started:  started,
				Logger:   logger,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("starting HTTP server", "addr", cfg.ListenAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "error", err)
			}
		}()
	}

	logger.Info("monitoring",
		"targets", cfg.TargetAccounts,
		"required_program", cfg.RequiredProgram,
		"exclude_failed", cfg.ExcludeFailed,
	)
	runErr := mon.Run(ctx, client, cfg.Subscription())
	cancel()

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP server shutdown", "error", err)
		}
		shutdownCancel()
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("monitor failed", "error", runErr)
		return runErr
	}

	logger.Info("shutdown complete")
	return nil
}
