package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/policywatch/policywatch/internal/errors"
	"github.com/policywatch/policywatch/internal/model"
)

type postgresJobStorage struct {
	db *pgxpool.Pool
}

func NewPostgresJobStorage(pool *pgxpool.Pool) JobStorage {
	return &postgresJobStorage{pool}
}

func (ps *postgresJobStorage) Save(ctx context.Context, job *model.MonitoringJob) error {
	const query = `
		INSERT INTO monitoring_jobs (
			id, job_type, status, documents_checked, changes_detected,
			errors_encountered, started_at, completed_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := ps.db.Exec(ctx, query,
		job.ID, job.JobType, job.Status,
		job.DocumentsChecked, job.ChangesDetected, job.ErrorsEncountered,
		job.StartedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (ps *postgresJobStorage) UpdateStatus(ctx context.Context, id, status string) error {
	const query = `UPDATE monitoring_jobs SET status = $2 WHERE id = $1`

	cmdTag, err := ps.db.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.NewNotFound("job %s", id)
	}
	return nil
}

func (ps *postgresJobStorage) Finalize(ctx context.Context, job *model.MonitoringJob) error {
	const query = `
		UPDATE monitoring_jobs
		SET status = $2, documents_checked = $3, changes_detected = $4,
		    errors_encountered = $5, completed_at = $6
		WHERE id = $1
	`

	cmdTag, err := ps.db.Exec(ctx, query,
		job.ID, job.Status, job.DocumentsChecked, job.ChangesDetected,
		job.ErrorsEncountered, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize job: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.NewNotFound("job %s", job.ID)
	}
	return nil
}

func (ps *postgresJobStorage) FindByID(ctx context.Context, id string) (model.MonitoringJob, error) {
	const query = `
		SELECT id, job_type, status, documents_checked, changes_detected,
		       errors_encountered, started_at, completed_at
		FROM monitoring_jobs
		WHERE id = $1
	`

	var job model.MonitoringJob
	err := ps.db.QueryRow(ctx, query, id).Scan(
		&job.ID, &job.JobType, &job.Status,
		&job.DocumentsChecked, &job.ChangesDetected, &job.ErrorsEncountered,
		&job.StartedAt, &job.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.MonitoringJob{}, apperrors.NewNotFound("job %s", id)
		}
		return model.MonitoringJob{}, fmt.Errorf("find job failed: %w", err)
	}
	return job, nil
}
