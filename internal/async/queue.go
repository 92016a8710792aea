package async

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/rafagois03/EmbarquesTMSLincros/internal/workflow"
)

// ErrClosed is returned by Enqueue once Shutdown has begun.
var ErrClosed = errors.New("run queue is shutting down")

// Job is one workbook waiting for a workflow run.
type Job struct {
	ID          uuid.UUID
	InputPath   string
	SubmittedAt time.Time
	RequestID   string
}

// Result is delivered exactly once per enqueued job.
type Result struct {
	Job    Job
	Report *workflow.Report
	Err    error
}

// Runner executes a run against a workbook on disk.
type Runner interface {
	RunFile(ctx context.Context, path string) (*workflow.Report, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, path string) (*workflow.Report, error)

func (f RunnerFunc) RunFile(ctx context.Context, path string) (*workflow.Report, error) {
	return f(ctx, path)
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) (<-chan Result, error)
	Shutdown(ctx context.Context)
}
