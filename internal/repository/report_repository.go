package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushub/institute-api/internal/models"
)

// ReportRepository handles persistence for report jobs.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository creates a new repository instance.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Create persists a new report job.
func (r *ReportRepository) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = models.ReportPending
	}

	const query = `INSERT INTO report_jobs (id, class_id, format, status, file_path, error, requested_by, created_at, updated_at)
		VALUES (:id, :class_id, :format, :status, :file_path, :error, :requested_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create report job: %w", err)
	}
	return nil
}

// FindByID returns a report job by id.
func (r *ReportRepository) FindByID(ctx context.Context, id string) (*models.ReportJob, error) {
	const query = `SELECT id, class_id, format, status, file_path, error, requested_by, created_at, updated_at FROM report_jobs WHERE id = $1 LIMIT 1`
	var job models.ReportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateStatus transitions a job, recording the result file or error.
func (r *ReportRepository) UpdateStatus(ctx context.Context, id string, status models.ReportStatus, filePath, errMsg *string) error {
	const query = `UPDATE report_jobs SET status = $2, file_path = $3, error = $4, updated_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, string(status), filePath, errMsg, time.Now().UTC()); err != nil {
		return fmt.Errorf("update report job: %w", err)
	}
	return nil
}
