package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"covid-pipeline/internal/model"

	"github.com/Masterminds/squirrel"
	"github.com/bytedance/sonic"
)

var (
	jobColumns      = []string{"id", "spec", "status", "created_at", "updated_at"}
	progressColumns = []string{"job_id", "stage", "status", "started_at", "ended_at", "records_processed", "error_count"}
	logColumns      = []string{"id", "job_id", "stage", "level", "message", "details", "created_at"}
	fileColumns     = []string{"id", "job_id", "file_name", "file_path", "file_type", "file_size", "download_url", "created_at"}
)

// SaveJob stores a new pipeline job in the pending state
func (s *Store) SaveJob(ctx context.Context, jobID string, spec model.PipelineJobSpec) error {
	specJSON, err := sonic.Marshal(spec)
	if err != nil {
		return fmt.Errorf("encode job spec: %w", err)
	}

	now := time.Now().UTC()
	_, err = execx(ctx, s.db, s.builder().Insert(tableJobs).
		Columns(jobColumns...).
		Values(jobID, string(specJSON), model.StatusPending, now, now))
	return err
}

// ListJobs returns all jobs, newest first
func (s *Store) ListJobs(ctx context.Context) ([]model.Job, error) {
	rows, err := queryx(ctx, s.db, s.builder().Select(jobColumns...).
		From(tableJobs).
		OrderBy("created_at DESC"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []model.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// GetJob fetches a job with its spec and status
func (s *Store) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	query, args, err := s.builder().Select(jobColumns...).
		From(tableJobs).
		Where(squirrel.Eq{"id": jobID}).
		ToSql()
	if err != nil {
		return nil, err
	}
	job, err := scanJob(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, wrapErr(err)
	}
	return job, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row scanner) (*model.Job, error) {
	var (
		job      model.Job
		specJSON string
	)
	if err := row.Scan(&job.ID, &specJSON, &job.Status, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return nil, err
	}
	if err := sonic.UnmarshalString(specJSON, &job.Spec); err != nil {
		return nil, fmt.Errorf("decode spec of job %s: %w", job.ID, err)
	}
	return &job, nil
}

// UpdateJobStatus updates job status
func (s *Store) UpdateJobStatus(ctx context.Context, jobID, status string) error {
	res, err := execx(ctx, s.db, s.builder().Update(tableJobs).
		Set("status", status).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": jobID}))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveJobError records an error for a job
func (s *Store) SaveJobError(ctx context.Context, jobID string, jobErr error) error {
	if jobErr == nil {
		return nil
	}
	_, err := execx(ctx, s.db, s.builder().Insert(tableJobErrors).
		Columns("job_id", "error_message", "created_at").
		Values(jobID, jobErr.Error(), time.Now().UTC()))
	return err
}

// ListJobErrors returns the errors recorded for a job, oldest first
func (s *Store) ListJobErrors(ctx context.Context, jobID string) ([]model.JobError, error) {
	rows, err := queryx(ctx, s.db, s.builder().
		Select("id", "job_id", "error_message", "created_at").
		From(tableJobErrors).
		Where(squirrel.Eq{"job_id": jobID}).
		OrderBy("id"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.JobError{}
	for rows.Next() {
		var e model.JobError
		if err := rows.Scan(&e.ID, &e.JobID, &e.Message, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SaveStageProgress inserts or replaces the progress row of a stage
func (s *Store) SaveStageProgress(ctx context.Context, p model.StageProgress) error {
	_, err := execx(ctx, s.db, s.builder().Insert(tableStageProgress).
		Columns(progressColumns...).
		Values(p.JobID, p.Stage, p.Status, nullTime(p.StartedAt), nullTime(p.EndedAt), p.Records, p.Errors).
		Suffix(`ON CONFLICT (job_id, stage) DO UPDATE SET
			status = excluded.status,
			started_at = excluded.started_at,
			ended_at = excluded.ended_at,
			records_processed = excluded.records_processed,
			error_count = excluded.error_count`))
	return err
}

// ListStageProgress returns the stage rows of a job in the order they started
func (s *Store) ListStageProgress(ctx context.Context, jobID string) ([]model.StageProgress, error) {
	rows, err := queryx(ctx, s.db, s.builder().Select(progressColumns...).
		From(tableStageProgress).
		Where(squirrel.Eq{"job_id": jobID}).
		OrderBy("started_at", "stage"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.StageProgress{}
	for rows.Next() {
		var (
			p              model.StageProgress
			started, ended sql.NullTime
		)
		if err := rows.Scan(&p.JobID, &p.Stage, &p.Status, &started, &ended, &p.Records, &p.Errors); err != nil {
			return nil, err
		}
		p.StartedAt = timePtr(started)
		p.EndedAt = timePtr(ended)
		out = append(out, p)
	}
	return out, rows.Err()
}

// SavePipelineLog persists one log line of a run
func (s *Store) SavePipelineLog(ctx context.Context, l model.PipelineLog) error {
	var details interface{}
	if len(l.Details) > 0 {
		b, err := sonic.Marshal(l.Details)
		if err != nil {
			return fmt.Errorf("encode log details: %w", err)
		}
		details = string(b)
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	_, err := execx(ctx, s.db, s.builder().Insert(tablePipelineLogs).
		Columns(logColumns[1:]...).
		Values(l.JobID, l.Stage, l.Level, l.Message, details, l.CreatedAt))
	return err
}

// ListPipelineLogs returns the log lines of a job, oldest first
func (s *Store) ListPipelineLogs(ctx context.Context, jobID string) ([]model.PipelineLog, error) {
	rows, err := queryx(ctx, s.db, s.builder().Select(logColumns...).
		From(tablePipelineLogs).
		Where(squirrel.Eq{"job_id": jobID}).
		OrderBy("id"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.PipelineLog{}
	for rows.Next() {
		var (
			l       model.PipelineLog
			details sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.JobID, &l.Stage, &l.Level, &l.Message, &details, &l.CreatedAt); err != nil {
			return nil, err
		}
		if details.Valid && details.String != "" {
			if err := sonic.UnmarshalString(details.String, &l.Details); err != nil {
				return nil, fmt.Errorf("decode log details: %w", err)
			}
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// SaveOutputFile records a file produced by a run
func (s *Store) SaveOutputFile(ctx context.Context, f model.OutputFile) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	_, err := execx(ctx, s.db, s.builder().Insert(tableOutputFiles).
		Columns(fileColumns[1:]...).
		Values(f.JobID, f.FileName, f.FilePath, f.FileType, f.FileSize, f.DownloadURL, f.CreatedAt))
	return err
}

// ListOutputFiles returns the files a job produced
func (s *Store) ListOutputFiles(ctx context.Context, jobID string) ([]model.OutputFile, error) {
	rows, err := queryx(ctx, s.db, s.builder().Select(fileColumns...).
		From(tableOutputFiles).
		Where(squirrel.Eq{"job_id": jobID}).
		OrderBy("id"))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.OutputFile{}
	for rows.Next() {
		var f model.OutputFile
		if err := rows.Scan(&f.ID, &f.JobID, &f.FileName, &f.FilePath, &f.FileType, &f.FileSize, &f.DownloadURL, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
