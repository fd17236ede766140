package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vietddude/partsync/internal/control"
	"github.com/vietddude/partsync/internal/infra/storage"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect or reset persisted stream state",
}

var stateShowCmd = &cobra.Command{
	Use:   "show [stream]",
	Short: "Print the persisted state of a stream",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateShow,
}

var stateResetCmd = &cobra.Command{
	Use:   "reset [stream]",
	Short: "Delete the persisted state of a stream so the next sync starts over",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateReset,
}

func init() {
	stateCmd.AddCommand(stateShowCmd, stateResetCmd)
	rootCmd.AddCommand(stateCmd)
}

func newStateSyncer(ctx context.Context) (*control.Syncer, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	// state commands never serve health or publish
	cfg.Server.Port = 0
	cfg.AMQP.URL = ""

	app, err := control.NewSyncer(ctx, cfg, control.Options{Namespace: namespace})
	if err != nil {
		slog.Error("Failed to open state storage", "error", err)
		return nil, err
	}
	return app, nil
}

func runStateShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	app, err := newStateSyncer(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = app.Stop(ctx)
	}()

	state, err := app.State(ctx, args[0])
	if err != nil {
		return err
	}
	if state == nil {
		fmt.Printf("No state for %s\n", args[0])
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "STREAM\tGLOBAL\tPARTITIONS\tLOOKBACK")
	partitions, _ := state["states"].([]any)
	_, _ = fmt.Fprintf(w, "%s\t%v\t%d\t%v\n", args[0], state["use_global_cursor"], len(partitions), state["lookback_window"])
	_ = w.Flush()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(state)
}

func runStateReset(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	app, err := newStateSyncer(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = app.Stop(ctx)
	}()

	err = app.ResetState(ctx, args[0])
	if errors.Is(err, storage.ErrStateNotFound) {
		fmt.Printf("No state for %s\n", args[0])
		return nil
	}
	if err != nil {
		slog.Error("Failed to reset state", "error", err)
		return err
	}

	fmt.Printf("Successfully reset state for %s\n", args[0])
	return nil
}
