// Command worker runs the single queue consumer (§4.4): it owns the
// authoritative Config and is the only process that ever writes the
// snapshot, the indexes, or the three on-disk xDS files.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kaiyote/envoycfgd/internal/config"
	"github.com/kaiyote/envoycfgd/internal/store"
	"github.com/kaiyote/envoycfgd/internal/worker"
)

func main() {
	root := &cobra.Command{
		Use:   "worker",
		Short: "Queue consumer that reconciles the envoy config state machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load config", "error", err)
		return err
	}
	log.Info("config loaded", "redis_addr", cfg.RedisAddr(), "lds_path", cfg.LDSPath, "cds_path", cfg.CDSPath, "eds_path", cfg.EDSPath)

	st := store.New(cfg)

	w, err := worker.New(cfg, st, log)
	if err != nil {
		log.Error("worker bootstrap failed", "error", err)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info("received shutdown signal")
		cancel()
	}()

	log.Info("worker starting")
	if err := w.Run(ctx); err != nil && err != context.Canceled {
		log.Error("worker exited with error", "error", err)
		return err
	}
	return nil
}
