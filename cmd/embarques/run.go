package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rafagois03/EmbarquesTMSLincros/internal/progress"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/store"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/workflow"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		file    string
		profile string
		sheet   string
		plain   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Submit pending rows and resolve their shipment ids",
		Long: `Runs one batch against the workbook: rows without a protocol are submitted together,
the protocols are saved, and after the configured wait every row holding a protocol
but no shipment id is resolved. Rows the TMS has not finished stay pending and are
retried by the next run. Exits non-zero when the run aborts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			path := a.cfg.Input.Path
			if file != "" {
				path = file
			}
			storeOpts, err := a.storeOptions(profile, sheet)
			if err != nil {
				return err
			}

			unlock, err := store.Lock(path)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			defer func() {
				if err := unlock(); err != nil {
					a.logger.Warn("store.unlock.failed", "path", path, "error", err)
				}
			}()

			ctx := cmd.Context()
			j := a.openJournal(ctx)
			if j != nil {
				defer j.Close()
			}

			styles := progress.DefaultStyles()
			if plain {
				styles = progress.PlainStyles()
			}
			out := cmd.OutOrStdout()
			observer := workflow.Observers{
				progress.NewConsole(out, styles),
				progress.Logger{L: a.logger},
			}

			report, err := a.orchestrator(observer, j).RunFile(ctx, path, storeOpts)
			fmt.Fprint(out, progress.RenderReport(report, styles))
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "workbook to process (default $INPUT_FILE or embarques.xlsx)")
	cmd.Flags().StringVar(&profile, "profile", "", "YAML column profile (default $COLUMN_PROFILE)")
	cmd.Flags().StringVar(&sheet, "sheet", "", "worksheet name (default: first sheet)")
	cmd.Flags().BoolVar(&plain, "plain", false, "disable colors")
	return cmd
}
