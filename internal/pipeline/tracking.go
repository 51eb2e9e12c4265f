package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"covid-pipeline/internal/logger"
	"covid-pipeline/internal/model"
)

// Recorder persists run status, stage progress and log lines.
type Recorder interface {
	UpdateJobStatus(ctx context.Context, jobID, status string) error
	SaveJobError(ctx context.Context, jobID string, err error) error
	SaveStageProgress(ctx context.Context, p model.StageProgress) error
	SavePipelineLog(ctx context.Context, entry model.PipelineLog) error
}

// Tracker records the progress of one run to the logger and, when set, a Recorder.
// Persistence failures are logged and never fail the run.
type Tracker struct {
	JobID string

	rec    Recorder
	mu     sync.Mutex
	stages []model.StageProgress
	status string
	failure error // error of the last failed stage
}

// NewTracker creates a tracker for jobID. rec may be nil.
func NewTracker(jobID string, rec Recorder) *Tracker {
	return &Tracker{JobID: jobID, rec: rec, status: model.StatusPending}
}

// SetStatus moves the run to status.
func (t *Tracker) SetStatus(ctx context.Context, status string) {
	t.mu.Lock()
	t.status = status
	t.mu.Unlock()

	logger.Debug("job %s: status %s", t.JobID, status)
	if t.rec == nil {
		return
	}
	if err := t.rec.UpdateJobStatus(ctx, t.JobID, status); err != nil {
		logger.Warn("job %s: failed to save status %s: %v", t.JobID, status, err)
	}
}

// Status returns the last status set.
func (t *Tracker) Status() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// StartStage marks the start of a pipeline stage
func (t *Tracker) StartStage(ctx context.Context, stage string) {
	now := time.Now().UTC()
	p := model.StageProgress{JobID: t.JobID, Stage: stage, Status: "started", StartedAt: &now}

	t.mu.Lock()
	t.stages = append(t.stages, p)
	t.mu.Unlock()

	logger.Info("job %s: stage %s started", t.JobID, stage)
	t.saveProgress(ctx, p)
}

// EndStage marks the end of a pipeline stage
func (t *Tracker) EndStage(ctx context.Context, stage string, records int) {
	p := t.finish(stage, "completed", records, 0)
	logger.Info("job %s: stage %s completed: %d records in %v", t.JobID, stage, records, p.Duration())
	t.saveProgress(ctx, p)
	t.Log(ctx, stage, "info", fmt.Sprintf("Stage %s completed", stage), map[string]interface{}{
		"records":     records,
		"duration_ms": p.Duration().Milliseconds(),
	})
}

// FailStage marks a stage as failed and records err against the run.
func (t *Tracker) FailStage(ctx context.Context, stage string, err error) {
	p := t.finish(stage, "failed", 0, 1)
	t.mu.Lock()
	t.failure = err
	t.mu.Unlock()
	logger.Error("job %s: stage %s failed: %v", t.JobID, stage, err)
	t.saveProgress(ctx, p)
	t.Log(ctx, stage, "error", err.Error(), nil)
	t.RecordError(ctx, fmt.Errorf("[%s] %w", stage, err))
}

// FailedWith reports whether err is the error of the last failed stage.
func (t *Tracker) FailedWith(err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failure != nil && errors.Is(err, t.failure)
}

// RecordError saves err against the run without changing its status.
func (t *Tracker) RecordError(ctx context.Context, err error) {
	if t.rec == nil || err == nil {
		return
	}
	if e := t.rec.SaveJobError(ctx, t.JobID, err); e != nil {
		logger.Warn("job %s: failed to save error: %v", t.JobID, e)
	}
}

// Log persists a log line for the run.
func (t *Tracker) Log(ctx context.Context, stage, level, message string, details map[string]interface{}) {
	if level == "warning" {
		logger.Warn("job %s: %s: %s", t.JobID, stage, message)
	}
	if t.rec == nil {
		return
	}
	entry := model.PipelineLog{
		JobID:     t.JobID,
		Stage:     stage,
		Level:     level,
		Message:   message,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
	if err := t.rec.SavePipelineLog(ctx, entry); err != nil {
		logger.Warn("job %s: failed to save log line: %v", t.JobID, err)
	}
}

// Stages returns a copy of the stage progress recorded so far.
func (t *Tracker) Stages() []model.StageProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]model.StageProgress(nil), t.stages...)
}

func (t *Tracker) finish(stage, status string, records, errs int) model.StageProgress {
	now := time.Now().UTC()

	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.stages) - 1; i >= 0; i-- {
		if t.stages[i].Stage == stage {
			t.stages[i].Status = status
			t.stages[i].EndedAt = &now
			t.stages[i].Records = records
			t.stages[i].Errors = errs
			return t.stages[i]
		}
	}
	p := model.StageProgress{JobID: t.JobID, Stage: stage, Status: status, StartedAt: &now, EndedAt: &now, Records: records, Errors: errs}
	t.stages = append(t.stages, p)
	return p
}

func (t *Tracker) saveProgress(ctx context.Context, p model.StageProgress) {
	if t.rec == nil {
		return
	}
	if err := t.rec.SaveStageProgress(ctx, p); err != nil {
		logger.Warn("job %s: failed to save progress for %s: %v", t.JobID, p.Stage, err)
	}
}
