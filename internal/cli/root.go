package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/partsync/internal/control"
	"github.com/vietddude/partsync/internal/core/config"
)

var (
	cfgPath    string
	isDebug    bool
	namespace  string
	outputPath string
)

var rootCmd = &cobra.Command{
	Use:   "partsync",
	Short: "Partitioned incremental sync",
	Long:  `partsync reads partitioned streams incrementally, tracking one cursor per partition and persisting resumable state.`,
	RunE:  runSync,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&namespace, "namespace", "", "namespace for streams that do not set one")
	rootCmd.PersistentFlags().StringVar(&outputPath, "output", "-", "JSONL record output file, - for stdout")
	rootCmd.SilenceUsage = true
}

// loadConfig loads .env and the config file, then sets up logging.
func loadConfig() (*config.AppConfig, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		return nil, err
	}

	slogLevel := slog.LevelInfo
	switch {
	case isDebug || cfg.Logging.Level == "debug":
		slogLevel = slog.LevelDebug
	case cfg.Logging.Level == "warn":
		slogLevel = slog.LevelWarn
	case cfg.Logging.Level == "error":
		slogLevel = slog.LevelError
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
	return cfg, nil
}

func openOutput() (io.Writer, func() error, error) {
	if outputPath == "" || outputPath == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open output: %w", err)
	}
	return f, f.Close, nil
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out, closeOut, err := openOutput()
	if err != nil {
		return err
	}
	defer func() {
		_ = closeOut()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := control.NewSyncer(ctx, cfg, control.Options{
		Namespace: namespace,
		Output:    out,
	})
	if err != nil {
		slog.Error("Failed to initialize Syncer", "error", err)
		return err
	}

	slog.Info("Sync started", "config", cfgPath, "run_id", app.RunID(), "streams", len(cfg.Streams))
	runErr := app.Run(ctx)
	if errors.Is(runErr, context.Canceled) {
		slog.Info("Received signal, shutting down...")
	} else if runErr != nil {
		slog.Error("Sync failed", "error", runErr)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		return errors.Join(runErr, err)
	}
	return runErr
}
