// Command fixctl is a thin example harness wiring config loading,
// logging, metrics, and an Engine start/stop, in the shape of the
// teacher's internal/fix-acceptor cobra command (Cmd/RunE/quickfix.NewAcceptor).
// It is not itself part of the engine's CORE — a real embedder links
// the fixengine package directly.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	fixengine "github.com/kprime/fixengine"
	"github.com/kprime/fixengine/internal/config"
	"github.com/kprime/fixengine/internal/logging"
	"github.com/kprime/fixengine/internal/metrics"
	"github.com/kprime/fixengine/session"
)

const (
	usage = "fixctl"
	short = "Run a FIX engine from a settings file"
	long  = "Run a FIX engine from a settings file, starting every configured session."
)

var cfgPath string

// rootCmd mirrors the teacher's ordermatch.Cmd shape: a cobra.Command
// with RunE doing the actual work.
var rootCmd = &cobra.Command{
	Use:     usage,
	Short:   short,
	Long:    long,
	Example: "fixctl --config ./config/fixctl.yaml",
	RunE:    run,
}

func init() {
	rootCmd.Flags().StringVar(&cfgPath, "config", "./config/fixctl.yaml", "path to the engine settings file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	settings, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("fixctl: %w", err)
	}

	sessionConfigs, err := settings.SessionConfigs()
	if err != nil {
		return fmt.Errorf("fixctl: %w", err)
	}

	logger, err := logging.New(logging.Config{
		Directory:   settings.LogDirectory,
		Level:       settings.LogLevel,
		LogEvents:   settings.LogEvents,
		LogMessages: settings.LogMessages,
	})
	if err != nil {
		return fmt.Errorf("fixctl: init logger: %w", err)
	}

	reg := metrics.New(prometheus.NewRegistry())

	app := session.NopApplication{}

	e := fixengine.New(fixengine.EngineConfig{
		StoreDirectory: settings.StoreDirectory,
		ListenAddr:     settings.ListenAddr,
		Sessions:       sessionConfigs,
	}, app, logger, reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := e.Start(ctx); err != nil {
		return fmt.Errorf("fixctl: start: %w", err)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt

	return e.Stop(ctx)
}
