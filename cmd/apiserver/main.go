// Command apiserver runs the HTTP management surface (§4.3, §6.1): it
// validates and enqueues mutation requests and serves read-only
// projections of the current snapshot. It never touches the Config or the
// on-disk xDS files directly.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kaiyote/envoycfgd/internal/api"
	"github.com/kaiyote/envoycfgd/internal/config"
	"github.com/kaiyote/envoycfgd/internal/store"
)

func main() {
	var addrOverride string

	root := &cobra.Command{
		Use:   "apiserver",
		Short: "HTTP management API for the envoy config control plane",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(addrOverride)
		},
	}
	root.Flags().StringVar(&addrOverride, "addr", "", "override API_ADDR (listen address)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(addrOverride string) error {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		log.Error("failed to load config", "error", err)
		return err
	}
	if addrOverride != "" {
		cfg.APIAddr = addrOverride
	}
	log.Info("config loaded", "api_addr", cfg.APIAddr, "redis_addr", cfg.RedisAddr())

	st := store.New(cfg)
	a := api.New(st, log)

	server := &http.Server{Addr: cfg.APIAddr, Handler: a.Router()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Info("received shutdown signal")
		_ = server.Shutdown(ctx) //nolint:errcheck
		cancel()
	}()

	log.Info("management API listening", "addr", cfg.APIAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("management API failed", "error", err)
		return err
	}
	return nil
}
