package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/rafagois03/EmbarquesTMSLincros/internal/journal"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit    int
		asJSON   bool
		protocol int64
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs from the journal",
		Long: `Lists recent runs. With --protocol, tells which run and row a TMS protocol was
created for, e.g. to put it back in a workbook whose save failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.Journal.DSN == "" {
				return errors.New("journal is disabled (JOURNAL_DSN=off)")
			}
			ctx := cmd.Context()
			j, err := journal.Open(ctx, journal.Config{DSN: a.cfg.Journal.DSN}, a.logger)
			if err != nil {
				return err
			}
			defer j.Close()

			if cmd.Flags().Changed("protocol") {
				sub, err := j.FindSubmission(ctx, protocol)
				if errors.Is(err, journal.ErrNoSubmission) {
					return fmt.Errorf("protocol %d was not submitted by any journaled run", protocol)
				}
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), sub)
				}
				printSubmission(cmd.OutOrStdout(), sub)
				return nil
			}

			runs, err := j.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), runs)
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().Int64Var(&protocol, "protocol", 0, "look up the run and row of a TMS protocol")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSubmission(w io.Writer, s journal.Submission) {
	fmt.Fprintf(w, "protocolo %d\n", s.Protocol)
	fmt.Fprintf(w, "  execução:      %s\n", s.RunID)
	fmt.Fprintf(w, "  linha:         %d\n", s.Row)
	fmt.Fprintf(w, "  identificador: %s\n", s.ExternalID)
	fmt.Fprintf(w, "  enviado em:    %s\n", s.CreatedAt.Local().Format(time.DateTime))
}

func printRuns(w io.Writer, runs []journal.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return
	}
	header := []string{"STARTED", "STATUS", "SUBMITTED", "RESOLVED", "UNRESOLVED", "MALFORMED", "SOURCE"}
	rows := [][]string{header}
	for _, r := range runs {
		rows = append(rows, []string{
			r.StartedAt.Local().Format(time.DateTime),
			r.Status,
			fmt.Sprint(r.Submitted),
			fmt.Sprint(r.Resolved),
			fmt.Sprint(r.Unresolved),
			fmt.Sprint(r.Malformed),
			r.Source,
		})
	}

	widths := make([]int, len(header))
	for _, row := range rows {
		for i, cell := range row {
			if cw := lipgloss.Width(cell); cw > widths[i] {
				widths[i] = cw
			}
		}
	}
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = lipgloss.NewStyle().Width(widths[i] + 2).Render(cell)
		}
		fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
}
