// Command embarques creates return shipments in the TMS from a workbook and writes the
// resulting protocol and shipment ids back into it.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rafagois03/EmbarquesTMSLincros/internal/common"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var verbose bool

	root := &cobra.Command{
		Use:   "embarques",
		Short: "Create return shipments in the TMS from a workbook",
		Long: `embarques reads a workbook of shipment returns, submits every row that has no
protocol yet in a single batch, waits, then resolves the shipment id of each protocol
and writes both back into the workbook.

Configuration comes from the environment (or a .env file). Run "embarques run" for a
one-shot batch or "embarques serve" for the upload form.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.cfg = common.LoadConfig()
			if verbose {
				a.cfg.LogLevel = "debug"
			}
			a.logger = newLogger(cmd.ErrOrStderr(), a.cfg.LogLevel)
			slog.SetDefault(a.logger)
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(newRunCmd(a), newServeCmd(a), newHistoryCmd(a))
	return root
}

func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}
