package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/campushub/institute-api/internal/models"
	appErrors "github.com/campushub/institute-api/pkg/errors"
	"github.com/campushub/institute-api/pkg/export"
	"github.com/campushub/institute-api/pkg/jobs"
	"github.com/campushub/institute-api/pkg/storage"
)

type reportRepository interface {
	Create(ctx context.Context, job *models.ReportJob) error
	FindByID(ctx context.Context, id string) (*models.ReportJob, error)
	UpdateStatus(ctx context.Context, id string, status models.ReportStatus, filePath, errMsg *string) error
}

type reportAttendanceRepository interface {
	ListByClass(ctx context.Context, classID string) ([]models.AttendanceRecord, error)
}

// CreateReportRequest asks for an attendance report of one class.
type CreateReportRequest struct {
	ClassID string              `json:"class_id" validate:"required,uuid"`
	Format  models.ReportFormat `json:"format" validate:"required"`
}

// ReportStatusResponse describes a report job, including a signed download
// link once the export has completed.
type ReportStatusResponse struct {
	models.ReportJob
	DownloadURL string `json:"download_url,omitempty"`
}

// ReportService queues attendance exports and renders them in the background.
type ReportService struct {
	repo       reportRepository
	attendance reportAttendanceRepository
	classes    attendanceClassRepository
	store      *storage.LocalStorage
	signer     *storage.Signer
	queue      *jobs.Queue
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewReportService constructs the report service and its worker queue. The
// queue must be started via Start before reports are requested.
func NewReportService(repo reportRepository, attendance reportAttendanceRepository, classes attendanceClassRepository, store *storage.LocalStorage, signer *storage.Signer, queueCfg jobs.QueueConfig, validate *validator.Validate, logger *zap.Logger) *ReportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ReportService{
		repo:       repo,
		attendance: attendance,
		classes:    classes,
		store:      store,
		signer:     signer,
		validator:  validate,
		logger:     logger,
	}
	s.queue = jobs.NewQueue("attendance-reports", s.handleJob, queueCfg)
	return s
}

// Start launches the background workers.
func (s *ReportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the background workers.
func (s *ReportService) Stop() {
	s.queue.Stop()
}

// Request queues a new attendance export for a class.
func (s *ReportService) Request(ctx context.Context, requestedBy string, req CreateReportRequest) (*models.ReportJob, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report payload")
	}
	if !req.Format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported report format")
	}

	if _, err := s.classes.FindByID(ctx, req.ClassID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	job := &models.ReportJob{
		ID:          uuid.NewString(),
		ClassID:     req.ClassID,
		Format:      req.Format,
		Status:      models.ReportPending,
		RequestedBy: requestedBy,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "attendance-report", Payload: job.ID}); err != nil {
		msg := err.Error()
		if uerr := s.repo.UpdateStatus(ctx, job.ID, models.ReportFailed, nil, &msg); uerr != nil {
			s.logger.Warn("failed to mark report job failed", zap.Error(uerr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report job")
	}
	return job, nil
}

// Status returns the current state of a report job with a signed download
// link when completed.
func (s *ReportService) Status(ctx context.Context, id string) (*ReportStatusResponse, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}

	resp := &ReportStatusResponse{ReportJob: *job}
	if job.Status == models.ReportCompleted && job.FilePath != nil {
		expires, sig := s.signer.Sign(*job.FilePath)
		resp.DownloadURL = fmt.Sprintf("/api/reports/%s/download?expires=%d&sig=%s", job.ID, expires, sig)
	}
	return resp, nil
}

// Open validates a signed download request and returns the stored filename.
func (s *ReportService) Open(ctx context.Context, id string, expires int64, sig string) (string, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if job.Status != models.ReportCompleted || job.FilePath == nil {
		return "", appErrors.Clone(appErrors.ErrNotFound, "report not ready")
	}
	if err := s.signer.Verify(*job.FilePath, expires, sig); err != nil {
		return "", appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download link")
	}
	return s.store.Path(*job.FilePath), nil
}

func (s *ReportService) handleJob(ctx context.Context, job jobs.Job) error {
	jobID, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}

	if err := s.repo.UpdateStatus(ctx, jobID, models.ReportProcessing, nil, nil); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	report, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load report job: %w", err)
	}

	filename, err := s.render(ctx, report)
	if err != nil {
		msg := err.Error()
		if uerr := s.repo.UpdateStatus(ctx, jobID, models.ReportFailed, nil, &msg); uerr != nil {
			s.logger.Warn("failed to mark report job failed", zap.Error(uerr))
		}
		return err
	}

	if err := s.repo.UpdateStatus(ctx, jobID, models.ReportCompleted, &filename, nil); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	s.logger.Info("report generated", zap.String("job_id", jobID), zap.String("file", filename))
	return nil
}

func (s *ReportService) render(ctx context.Context, report *models.ReportJob) (string, error) {
	records, err := s.attendance.ListByClass(ctx, report.ClassID)
	if err != nil {
		return "", fmt.Errorf("load attendance: %w", err)
	}

	table := export.Table{
		Title:   fmt.Sprintf("Attendance Report %s", report.ClassID),
		Headers: []string{"Campus ID", "Student", "Date", "Slot", "Status", "Marked By"},
	}
	for _, rec := range records {
		slot := ""
		if rec.SlotTime != nil {
			slot = *rec.SlotTime
		}
		table.Rows = append(table.Rows, []string{
			rec.StudentCampusID,
			rec.StudentName,
			rec.Date.Format("2006-01-02"),
			slot,
			string(rec.Status),
			rec.MarkedByID,
		})
	}

	var data []byte
	switch report.Format {
	case models.ReportPDF:
		data, err = export.RenderPDF(table)
	default:
		data, err = export.RenderCSV(table)
	}
	if err != nil {
		return "", fmt.Errorf("render %s: %w", report.Format, err)
	}

	filename := fmt.Sprintf("attendance-%s.%s", report.ID, report.Format)
	if _, err := s.store.Save(filename, data); err != nil {
		return "", fmt.Errorf("store report: %w", err)
	}
	return filename, nil
}
