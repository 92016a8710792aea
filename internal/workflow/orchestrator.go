// Package workflow drives one shipment-return run: select the rows that still need a
// shipment, submit them in one batch, persist the protocols, wait, then resolve the
// shipment ids and persist again.
package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rafagois03/EmbarquesTMSLincros/constants"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/common"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/entity"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/journal"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/payload"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/store"
	"github.com/rafagois03/EmbarquesTMSLincros/internal/tms"
)

// RecordStore is the loaded sheet. Save writes the control columns back.
type RecordStore interface {
	Records() []*entity.Record
	Save() error
}

// Journal keeps an audit trail of runs. Its failures never fail a run.
type Journal interface {
	StartRun(ctx context.Context, run journal.Run) error
	RecordSubmission(ctx context.Context, sub journal.Submission) error
	RecordResolution(ctx context.Context, runID uuid.UUID, row int, protocol int64, shipmentID *int64, failure string) error
	FinishRun(ctx context.Context, run journal.Run) error
}

// Options configure an Orchestrator. The zero value is usable.
type Options struct {
	Wait            WaitPolicy
	MalformedPolicy constants.MalformedPolicy
	ReauthPerPhase  bool
	Journal         Journal
	Observer        Observer
	Logger          *slog.Logger
}

// Report summarizes a run. Phase is DONE or ABORT.
type Report struct {
	RunID            uuid.UUID                      `json:"run_id"`
	Source           string                         `json:"source"`
	Phase            constants.Phase                `json:"phase"`
	Total            int                            `json:"total"`
	AlreadyProcessed int                            `json:"already_processed"`
	Eligible         int                            `json:"eligible"`
	Submitted        int                            `json:"submitted"`
	Pending          int                            `json:"pending"`
	Resolved         int                            `json:"resolved"`
	Malformed        []*common.MalformedRecordError `json:"-"`
	Unresolved       []*common.ResolutionError      `json:"-"`
	StartedAt        time.Time                      `json:"started_at"`
	Duration         time.Duration                  `json:"duration"`
	Err              error                          `json:"-"`
}

// Succeeded reports whether the run reached DONE.
func (r *Report) Succeeded() bool {
	return r.Phase == constants.PhaseDone
}

type Orchestrator struct {
	tokens    tms.TokenSource
	submitter *Submitter
	poller    *Poller
	opts      Options
	logger    *slog.Logger
	observer  Observer
	sleep     func(context.Context, time.Duration) error
	now       func() time.Time
}

func NewOrchestrator(api ShipmentAPI, tokens tms.TokenSource, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var observer Observer = nopObserver{}
	if opts.Observer != nil {
		observer = opts.Observer
	}
	if opts.MalformedPolicy == "" {
		opts.MalformedPolicy = constants.MalformedSkip
	}
	return &Orchestrator{
		tokens:    tokens,
		submitter: NewSubmitter(api, logger),
		poller:    NewPoller(api, logger),
		opts:      opts,
		logger:    logger,
		observer:  observer,
		sleep:     sleepContext,
		now:       time.Now,
	}
}

// RunFile loads the workbook at path and executes a run against it. A load failure
// returns an ABORT report; the file is left untouched.
func (o *Orchestrator) RunFile(ctx context.Context, path string, storeOpts store.Options) (*Report, error) {
	if storeOpts.Logger == nil {
		storeOpts.Logger = o.logger
	}
	r := o.newRun(ctx, path)
	r.enter(constants.PhaseLoad)

	st, err := store.Open(path, storeOpts)
	if err != nil {
		return r.abort(err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			o.logger.Warn("workflow.store.close_failed", "run_id", r.report.RunID, "error", cerr)
		}
	}()
	return r.execute(st)
}

// Execute runs every phase after LOAD against an already loaded store.
func (o *Orchestrator) Execute(ctx context.Context, st RecordStore, source string) (*Report, error) {
	r := o.newRun(ctx, source)
	return r.execute(st)
}

// run carries the state of a single execution, including the token shared by its phases.
type run struct {
	o      *Orchestrator
	ctx    context.Context
	report *Report
	token  string
}

func (o *Orchestrator) newRun(ctx context.Context, source string) *run {
	id := uuid.New()
	ctx = common.WithRunID(ctx, id.String())
	r := &run{
		o:   o,
		ctx: ctx,
		report: &Report{
			RunID:     id,
			Source:    source,
			StartedAt: o.now(),
		},
	}
	o.logger.Info("workflow.run.start", "run_id", id, "source", source)
	if o.opts.Journal != nil {
		err := o.opts.Journal.StartRun(context.WithoutCancel(ctx), journal.Run{
			ID:        id,
			Source:    source,
			StartedAt: r.report.StartedAt,
			Status:    "RUNNING",
		})
		r.journalFailed("start", err)
	}
	return r
}

func (r *run) execute(st RecordStore) (*Report, error) {
	o := r.o
	records := st.Records()
	r.report.Total = len(records)

	r.enter(constants.PhaseSelectEligible)
	var eligible []*entity.Record
	for _, rec := range records {
		if rec.EligibleForSubmission() {
			eligible = append(eligible, rec)
			continue
		}
		r.report.AlreadyProcessed++
		r.emit(Event{Kind: EventRowSkipped, Row: rec.Row})
	}
	r.report.Eligible = len(eligible)

	r.enter(constants.PhaseBuildPayloads)
	batch := make([]BatchItem, 0, len(eligible))
	for _, rec := range eligible {
		p, err := payload.Build(rec)
		if err != nil {
			if o.opts.MalformedPolicy == constants.MalformedAbort {
				return r.abort(err)
			}
			var me *common.MalformedRecordError
			if errors.As(err, &me) {
				r.report.Malformed = append(r.report.Malformed, me)
			}
			o.logger.Warn("workflow.row.malformed", "run_id", r.report.RunID, "row", rec.Row, "error", err)
			r.emit(Event{Kind: EventRowMalformed, Row: rec.Row, Err: err})
			continue
		}
		batch = append(batch, BatchItem{Record: rec, Payload: p})
	}

	if len(batch) > 0 {
		r.enter(constants.PhaseSubmit)
		token, err := r.acquireToken()
		if err != nil {
			return r.abort(err)
		}
		protocols, err := o.submitter.Submit(r.ctx, token, batch)
		if err != nil {
			return r.abort(err)
		}
		r.report.Submitted = len(protocols)
		for i, item := range batch {
			r.recordSubmission(item.Record, protocols[i])
			r.emit(Event{Kind: EventRowSubmitted, Row: item.Record.Row, Protocol: protocols[i]})
		}

		r.enter(constants.PhasePersist)
		if err := save(st); err != nil {
			return r.abort(err)
		}

		r.enter(constants.PhaseWait)
		delay := o.opts.Wait.Delay(len(batch))
		r.emit(Event{Kind: EventWaiting, Delay: delay, Count: len(batch)})
		o.logger.Info("workflow.wait", "run_id", r.report.RunID, "delay_ms", delay.Milliseconds())
		if err := o.sleep(r.ctx, delay); err != nil {
			return r.abort(err)
		}
	}

	var pending []*entity.Record
	for _, rec := range records {
		if rec.EligibleForResolution() {
			pending = append(pending, rec)
		}
	}
	r.report.Pending = len(pending)

	if len(pending) > 0 {
		r.enter(constants.PhasePollResolve)
		if o.opts.ReauthPerPhase {
			r.token = ""
		}
		token, err := r.acquireToken()
		if err != nil {
			return r.abort(err)
		}
		res := o.poller.Resolve(r.ctx, token, pending, r.onResolved)
		r.report.Resolved = len(res.Resolved)
		r.report.Unresolved = res.Unresolved

		if len(res.Resolved) > 0 {
			r.enter(constants.PhasePersist)
			if err := save(st); err != nil {
				return r.abort(err)
			}
		}
	}

	return r.finish(constants.PhaseDone, nil)
}

// acquireToken fetches a token on first use and reuses it for the rest of the run.
func (r *run) acquireToken() (string, error) {
	if r.token != "" {
		return r.token, nil
	}
	tok, err := r.o.tokens.Token(r.ctx)
	if err == nil && tok == "" {
		err = tms.ErrEmptyToken
	}
	if err != nil {
		return "", common.NewCredentialError(err)
	}
	r.token = tok
	return tok, nil
}

func (r *run) onResolved(rec *entity.Record, err error) {
	var shipmentID int64
	failure := ""
	if err != nil {
		failure = err.Error()
		r.emit(Event{Kind: EventRowUnresolved, Row: rec.Row, Protocol: *rec.Protocol, Err: err})
	} else {
		shipmentID = *rec.ShipmentID
		r.emit(Event{Kind: EventRowResolved, Row: rec.Row, Protocol: *rec.Protocol, ShipmentID: shipmentID})
	}
	if j := r.o.opts.Journal; j != nil {
		jerr := j.RecordResolution(context.WithoutCancel(r.ctx), r.report.RunID, rec.Row, *rec.Protocol, rec.ShipmentID, failure)
		r.journalFailed("resolution", jerr)
	}
}

func (r *run) recordSubmission(rec *entity.Record, protocol int64) {
	j := r.o.opts.Journal
	if j == nil {
		return
	}
	err := j.RecordSubmission(context.WithoutCancel(r.ctx), journal.Submission{
		RunID:      r.report.RunID,
		Row:        rec.Row,
		ExternalID: rec.Text(constants.ColExternalID),
		Protocol:   protocol,
		CreatedAt:  r.o.now(),
	})
	r.journalFailed("submission", err)
}

func (r *run) enter(p constants.Phase) {
	r.report.Phase = p
	r.o.logger.Debug("workflow.phase", "run_id", r.report.RunID, "phase", p)
	r.emit(Event{Kind: EventPhase})
}

func (r *run) emit(e Event) {
	e.RunID = r.report.RunID.String()
	if e.Phase == "" {
		e.Phase = r.report.Phase
	}
	if e.At.IsZero() {
		e.At = r.o.now()
	}
	r.o.observer.Observe(e)
}

func (r *run) abort(err error) (*Report, error) {
	r.o.logger.Error("workflow.run.abort",
		"run_id", r.report.RunID,
		"phase", r.report.Phase,
		"error", err,
	)
	return r.finish(constants.PhaseAbort, err)
}

func (r *run) finish(phase constants.Phase, err error) (*Report, error) {
	failedIn := r.report.Phase
	r.report.Phase = phase
	r.report.Err = err
	r.report.Duration = r.o.now().Sub(r.report.StartedAt)

	if err != nil {
		r.emit(Event{Kind: EventAborted, Phase: failedIn, Err: err})
	} else {
		r.emit(Event{Kind: EventFinished, Count: r.report.Submitted})
		r.o.logger.Info("workflow.run.done",
			"run_id", r.report.RunID,
			"total", r.report.Total,
			"already_processed", r.report.AlreadyProcessed,
			"submitted", r.report.Submitted,
			"malformed", len(r.report.Malformed),
			"resolved", r.report.Resolved,
			"unresolved", len(r.report.Unresolved),
			"elapsed_ms", r.report.Duration.Milliseconds(),
		)
	}

	if j := r.o.opts.Journal; j != nil {
		finished := r.report.StartedAt.Add(r.report.Duration)
		jr := journal.Run{
			ID:         r.report.RunID,
			Source:     r.report.Source,
			StartedAt:  r.report.StartedAt,
			FinishedAt: &finished,
			Status:     string(phase),
			Submitted:  r.report.Submitted,
			Resolved:   r.report.Resolved,
			Unresolved: len(r.report.Unresolved),
			Malformed:  len(r.report.Malformed),
		}
		if err != nil {
			jr.Error = err.Error()
		}
		r.journalFailed("finish", j.FinishRun(context.WithoutCancel(r.ctx), jr))
	}
	return r.report, err
}

func (r *run) journalFailed(op string, err error) {
	if err != nil {
		r.o.logger.Warn("workflow.journal.failed", "run_id", r.report.RunID, "op", op, "error", err)
	}
}

func save(st RecordStore) error {
	err := st.Save()
	if err == nil || errors.Is(err, common.ErrPersistence) {
		return err
	}
	return common.NewPersistenceError("save workbook", err)
}
