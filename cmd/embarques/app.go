package main

import (
	"context"
	"log/slog"

	"github.com/rafagois03/EmbarquesTMSLincros/internal/common"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/journal"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/store"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/tms"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/workflow"
)

// app carries what every subcommand shares once flags and environment are read.
type app struct {
	cfg    *common.Config
	logger *slog.Logger
}

// openJournal returns nil when the journal is disabled or unreachable; runs go on without it.
func (a *app) openJournal(ctx context.Context) *journal.Journal {
	if a.cfg.Journal.DSN == "" {
		return nil
	}
	j, err := journal.Open(ctx, journal.Config{DSN: a.cfg.Journal.DSN}, a.logger)
	if err != nil {
		a.logger.Warn("journal.open.failed", "error", err)
		return nil
	}
	return j
}

func (a *app) orchestrator(observer workflow.Observer, j *journal.Journal) *workflow.Orchestrator {
	client := tms.NewClient(tms.Config{
		BaseURL: a.cfg.TMS.BaseURL,
		Timeout: a.cfg.TMS.Timeout,
	}, a.logger)
	tokens := tms.NewTokenSource(client, tms.Credentials{
		Login:    a.cfg.TMS.Login,
		Password: a.cfg.TMS.Password,
		Token:    a.cfg.TMS.Token,
	})

	opts := workflow.Options{
		Wait: workflow.WaitPolicy{
			Base:   a.cfg.Workflow.WaitBase,
			PerRow: a.cfg.Workflow.WaitPerRow,
			Max:    a.cfg.Workflow.WaitMax,
		},
		MalformedPolicy: a.cfg.Workflow.MalformedPolicy,
		ReauthPerPhase:  a.cfg.TMS.ReauthPerPhase,
		Observer:        observer,
		Logger:          a.logger,
	}
	if j != nil {
		opts.Journal = j
	}
	return workflow.NewOrchestrator(client, tokens, opts)
}

func (a *app) storeOptions(profilePath, sheet string) (store.Options, error) {
	opts := store.Options{Sheet: a.cfg.Input.Sheet, Logger: a.logger}
	if sheet != "" {
		opts.Sheet = sheet
	}
	if profilePath == "" {
		profilePath = a.cfg.Input.ProfilePath
	}
	if profilePath != "" {
		p, err := store.LoadProfile(profilePath)
		if err != nil {
			return opts, err
		}
		opts.Profile = p
	}
	return opts, nil
}
