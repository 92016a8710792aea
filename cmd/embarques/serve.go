package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rafagois03/EmbarquesTMSLincros/internal/async"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/progress"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/server"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/workflow"
)

func newServeCmd(a *app) *cobra.Command {
	var profile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the upload form",
		Long: `Serves a form where a workbook can be uploaded. Each upload runs the full batch, then
shows the summary and offers the updated workbook for download. Uploads are processed
one at a time. Failures are shown on the page; the server keeps running.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			storeOpts, err := a.storeOptions(profile, "")
			if err != nil {
				return err
			}
			if err := os.MkdirAll(a.cfg.Server.WorkDir, 0o755); err != nil {
				return fmt.Errorf("create work dir: %w", err)
			}

			ctx := cmd.Context()
			j := a.openJournal(ctx)
			if j != nil {
				defer j.Close()
			}

			orch := a.orchestrator(progress.Logger{L: a.logger}, j)
			queue := async.NewRunQueue(async.RunnerFunc(func(ctx context.Context, path string) (*workflow.Report, error) {
				return orch.RunFile(ctx, path, storeOpts)
			}), a.logger)

			var history server.History
			if j != nil {
				history = j
			}
			srv, err := server.New(server.Config{
				MaxUploadBytes: a.cfg.Server.MaxUploadBytes,
				WorkDir:        a.cfg.Server.WorkDir,
				RunTTL:         a.cfg.Server.RunTTL,
				MaxRuns:        a.cfg.Server.MaxRuns,
			}, queue, history, a.logger)
			if err != nil {
				return err
			}

			// the health endpoint outlives the HTTP listener so health checks see NOT_SERVING while runs drain
			healthCtx, stopHealth := context.WithCancel(context.WithoutCancel(ctx))
			defer stopHealth()
			var hs *server.HealthServer
			if a.cfg.Server.HealthAddr != "" {
				lis, err := net.Listen("tcp", a.cfg.Server.HealthAddr)
				if err != nil {
					return fmt.Errorf("listen health: %w", err)
				}
				hs = server.NewHealthServer(a.logger)
				go func() {
					if err := hs.Serve(healthCtx, lis); err != nil {
						a.logger.Error("health.serve.failed", "error", err)
					}
				}()
			}

			httpSrv := &http.Server{
				Addr:              a.cfg.Server.Addr,
				Handler:           srv.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
				IdleTimeout:       time.Minute,
			}

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("http.serve", "addr", a.cfg.Server.Addr)
				errCh <- httpSrv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-ctx.Done():
				a.logger.Info("http.shutdown", "reason", context.Cause(ctx))
			}

			if hs != nil {
				hs.Draining()
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("http.shutdown.failed", "error", err)
			}
			queue.Shutdown(shutdownCtx)
			stopHealth()
			return nil
		},
	}

	cmd.Flags().StringVar(&profile, "profile", "", "YAML column profile (default $COLUMN_PROFILE)")
	return cmd
}
