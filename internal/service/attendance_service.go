package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campushub/institute-api/internal/models"
	"github.com/campushub/institute-api/internal/repository"
	appErrors "github.com/campushub/institute-api/pkg/errors"
)

type attendanceRepository interface {
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error)
	FindByID(ctx context.Context, id string) (*models.Attendance, error)
	CreateBulk(ctx context.Context, records []*models.Attendance) error
	Update(ctx context.Context, record *models.Attendance) error
	Delete(ctx context.Context, id string) error
}

type attendanceClassRepository interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

// AttendanceEntry is one student's status in a bulk marking request.
type AttendanceEntry struct {
	StudentID string                  `json:"student_id" validate:"required,uuid"`
	Status    models.AttendanceStatus `json:"status" validate:"required"`
}

// MarkAttendanceRequest records attendance for a class session in bulk.
type MarkAttendanceRequest struct {
	ClassID  string            `json:"class_id" validate:"required,uuid"`
	Date     time.Time         `json:"date" validate:"required"`
	SlotTime *string           `json:"slot_time"`
	Entries  []AttendanceEntry `json:"entries" validate:"required,min=1,dive"`
}

// UpdateAttendanceRequest corrects one attendance record.
type UpdateAttendanceRequest struct {
	Status models.AttendanceStatus `json:"status" validate:"required"`
}

// AttendanceService handles attendance use-cases.
type AttendanceService struct {
	repo      attendanceRepository
	classes   attendanceClassRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(repo attendanceRepository, classes attendanceClassRepository, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{repo: repo, classes: classes, validator: validate, logger: logger}
}

// List returns attendance records matching the filter.
func (s *AttendanceService) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, *models.Pagination, error) {
	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return records, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// ListByStudent returns a student's attendance history. An empty history for
// an unknown student id yields not found.
func (s *AttendanceService) ListByStudent(ctx context.Context, studentID string, filter models.AttendanceFilter) ([]models.AttendanceRecord, *models.Pagination, error) {
	filter.StudentID = studentID
	records, pagination, err := s.List(ctx, filter)
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "no attendance records for student")
	}
	return records, pagination, nil
}

// Mark records attendance for multiple students of one class session. The
// whole batch is rejected when any entry duplicates an existing record.
func (s *AttendanceService) Mark(ctx context.Context, markedByID string, req MarkAttendanceRequest) ([]*models.Attendance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	for _, entry := range req.Entries {
		if !entry.Status.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported attendance status")
		}
	}

	class, err := s.classes.FindByID(ctx, req.ClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	enrolled := make(map[string]struct{}, len(class.Students))
	for _, id := range class.Students {
		enrolled[id] = struct{}{}
	}
	seen := make(map[string]struct{}, len(req.Entries))
	for _, entry := range req.Entries {
		if _, ok := enrolled[entry.StudentID]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, "student is not enrolled in this class")
		}
		if _, dup := seen[entry.StudentID]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, "duplicate student in attendance payload")
		}
		seen[entry.StudentID] = struct{}{}
	}

	date := req.Date.UTC().Truncate(24 * time.Hour)
	records := make([]*models.Attendance, 0, len(req.Entries))
	for _, entry := range req.Entries {
		records = append(records, &models.Attendance{
			ClassID:    req.ClassID,
			StudentID:  entry.StudentID,
			Date:       date,
			Status:     entry.Status,
			MarkedByID: markedByID,
			SlotTime:   req.SlotTime,
		})
	}

	if err := s.repo.CreateBulk(ctx, records); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "attendance already recorded for this session")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}
	return records, nil
}

// Update corrects the status of one attendance record.
func (s *AttendanceService) Update(ctx context.Context, id string, req UpdateAttendanceRequest) (*models.Attendance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	if !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported attendance status")
	}
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
	}

	record.Status = req.Status
	if err := s.repo.Update(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendance record")
	}
	return record, nil
}

// Delete removes one attendance record.
func (s *AttendanceService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete attendance record")
	}
	return nil
}
