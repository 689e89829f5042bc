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

type classRepository interface {
	List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error)
	FindByID(ctx context.Context, id string) (*models.Class, error)
	Create(ctx context.Context, class *models.Class) error
	Update(ctx context.Context, class *models.Class, replaceSchedule bool) error
	Delete(ctx context.Context, id string) error
	EnrollStudents(ctx context.Context, classID string, studentIDs []string) error
	UnenrollStudents(ctx context.Context, classID string, studentIDs []string) error
}

// ScheduleSlotRequest describes one recurring meeting in class payloads.
type ScheduleSlotRequest struct {
	DayOfWeek         string  `json:"day_of_week" validate:"required,oneof=Monday Tuesday Wednesday Thursday Friday Saturday Sunday"`
	StartTime         string  `json:"start_time" validate:"required"`
	EndTime           string  `json:"end_time" validate:"required"`
	Room              string  `json:"room"`
	AssignedTeacherID *string `json:"assigned_teacher_id" validate:"omitempty,uuid"`
}

// CreateClassRequest holds payload for creating class offerings.
type CreateClassRequest struct {
	SubjectID        string                `json:"subject_id" validate:"required,uuid"`
	ProgramID        string                `json:"program_id" validate:"required,uuid"`
	SectionName      string                `json:"section_name" validate:"required"`
	PrimaryTeacherID string                `json:"primary_teacher_id" validate:"required,uuid"`
	AcademicYear     string                `json:"academic_year" validate:"required"`
	Semester         models.Semester       `json:"semester" validate:"required"`
	StartDate        time.Time             `json:"start_date" validate:"required"`
	EndDate          time.Time             `json:"end_date" validate:"required"`
	Students         []string              `json:"students" validate:"omitempty,dive,uuid"`
	Schedule         []ScheduleSlotRequest `json:"schedule" validate:"omitempty,dive"`
}

// UpdateClassRequest holds payload for updating class offerings. A nil
// Schedule leaves the existing slots untouched.
type UpdateClassRequest struct {
	SubjectID        string                `json:"subject_id" validate:"required,uuid"`
	ProgramID        string                `json:"program_id" validate:"required,uuid"`
	SectionName      string                `json:"section_name" validate:"required"`
	PrimaryTeacherID string                `json:"primary_teacher_id" validate:"required,uuid"`
	AcademicYear     string                `json:"academic_year" validate:"required"`
	Semester         models.Semester       `json:"semester" validate:"required"`
	StartDate        time.Time             `json:"start_date" validate:"required"`
	EndDate          time.Time             `json:"end_date" validate:"required"`
	Schedule         []ScheduleSlotRequest `json:"schedule" validate:"omitempty,dive"`
}

// EnrollmentRequest lists student ids to enroll or unenroll.
type EnrollmentRequest struct {
	StudentIDs []string `json:"student_ids" validate:"required,min=1,dive,uuid"`
}

// ClassService handles class offering use-cases.
type ClassService struct {
	repo      classRepository
	subjects  programExistenceRepository
	programs  programExistenceRepository
	users     roleCountRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService constructs the class service.
func NewClassService(repo classRepository, subjects, programs programExistenceRepository, users roleCountRepository, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{repo: repo, subjects: subjects, programs: programs, users: users, validator: validate, logger: logger}
}

// List returns class offerings and pagination metadata.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, *models.Pagination, error) {
	classes, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return classes, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one class offering with schedule and enrollment.
func (s *ClassService) Get(ctx context.Context, id string) (*models.Class, error) {
	class, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

// Create registers a new class offering with optional schedule and initial
// enrollment.
func (s *ClassService) Create(ctx context.Context, req CreateClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	if !req.Semester.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported semester")
	}
	if !req.EndDate.After(req.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date must be after start date")
	}
	if err := s.validateReferences(ctx, req.SubjectID, req.ProgramID, req.PrimaryTeacherID); err != nil {
		return nil, err
	}
	if err := s.validateStudents(ctx, req.Students); err != nil {
		return nil, err
	}
	if err := s.validateSlotTeachers(ctx, req.Schedule); err != nil {
		return nil, err
	}

	class := &models.Class{
		SubjectID:        req.SubjectID,
		ProgramID:        req.ProgramID,
		SectionName:      req.SectionName,
		PrimaryTeacherID: req.PrimaryTeacherID,
		AcademicYear:     req.AcademicYear,
		Semester:         req.Semester,
		StartDate:        req.StartDate,
		EndDate:          req.EndDate,
		Students:         req.Students,
		Schedule:         slotsFromRequests(req.Schedule),
	}
	if err := s.repo.Create(ctx, class); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "class offering already exists for this subject, program, section, year and semester")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	return s.Get(ctx, class.ID)
}

// Update modifies an existing class offering.
func (s *ClassService) Update(ctx context.Context, id string, req UpdateClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	if !req.Semester.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported semester")
	}
	if !req.EndDate.After(req.StartDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end date must be after start date")
	}
	class, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.validateReferences(ctx, req.SubjectID, req.ProgramID, req.PrimaryTeacherID); err != nil {
		return nil, err
	}
	if err := s.validateSlotTeachers(ctx, req.Schedule); err != nil {
		return nil, err
	}

	class.SubjectID = req.SubjectID
	class.ProgramID = req.ProgramID
	class.SectionName = req.SectionName
	class.PrimaryTeacherID = req.PrimaryTeacherID
	class.AcademicYear = req.AcademicYear
	class.Semester = req.Semester
	class.StartDate = req.StartDate
	class.EndDate = req.EndDate

	replaceSchedule := req.Schedule != nil
	if replaceSchedule {
		class.Schedule = slotsFromRequests(req.Schedule)
	}
	if err := s.repo.Update(ctx, class, replaceSchedule); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "class offering already exists for this subject, program, section, year and semester")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}
	return s.Get(ctx, id)
}

// Delete removes a class offering.
func (s *ClassService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete class")
	}
	return nil
}

// Enroll adds students to a class offering. Re-enrolling an already enrolled
// student is a no-op.
func (s *ClassService) Enroll(ctx context.Context, classID string, req EnrollmentRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	if _, err := s.Get(ctx, classID); err != nil {
		return nil, err
	}
	if err := s.validateStudents(ctx, req.StudentIDs); err != nil {
		return nil, err
	}
	if err := s.repo.EnrollStudents(ctx, classID, req.StudentIDs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll students")
	}
	return s.Get(ctx, classID)
}

// Unenroll removes students from a class offering. Ids not currently
// enrolled are ignored.
func (s *ClassService) Unenroll(ctx context.Context, classID string, req EnrollmentRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}
	if _, err := s.Get(ctx, classID); err != nil {
		return nil, err
	}
	if err := s.repo.UnenrollStudents(ctx, classID, req.StudentIDs); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unenroll students")
	}
	return s.Get(ctx, classID)
}

func (s *ClassService) validateReferences(ctx context.Context, subjectID, programID, teacherID string) error {
	exists, err := s.subjects.Exists(ctx, subjectID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate subject")
	}
	if !exists {
		return appErrors.Clone(appErrors.ErrValidation, "subject does not exist")
	}
	exists, err = s.programs.Exists(ctx, programID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate program")
	}
	if !exists {
		return appErrors.Clone(appErrors.ErrValidation, "program does not exist")
	}
	count, err := s.users.CountByIDsAndRole(ctx, []string{teacherID}, models.RoleTeacher)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate teacher")
	}
	if count != 1 {
		return appErrors.Clone(appErrors.ErrValidation, "primary teacher must be an existing teacher")
	}
	return nil
}

func (s *ClassService) validateStudents(ctx context.Context, studentIDs []string) error {
	if len(studentIDs) == 0 {
		return nil
	}
	unique := dedupe(studentIDs)
	count, err := s.users.CountByIDsAndRole(ctx, unique, models.RoleStudent)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate students")
	}
	if count != len(unique) {
		return appErrors.Clone(appErrors.ErrValidation, "all enrolled ids must belong to existing students")
	}
	return nil
}

func (s *ClassService) validateSlotTeachers(ctx context.Context, slots []ScheduleSlotRequest) error {
	ids := make([]string, 0, len(slots))
	for _, slot := range slots {
		if slot.AssignedTeacherID != nil {
			ids = append(ids, *slot.AssignedTeacherID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	unique := dedupe(ids)
	count, err := s.users.CountByIDsAndRole(ctx, unique, models.RoleTeacher)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate slot teachers")
	}
	if count != len(unique) {
		return appErrors.Clone(appErrors.ErrValidation, "all assigned teachers must be existing teachers")
	}
	return nil
}

func slotsFromRequests(reqs []ScheduleSlotRequest) []models.ScheduleSlot {
	slots := make([]models.ScheduleSlot, 0, len(reqs))
	for _, req := range reqs {
		slots = append(slots, models.ScheduleSlot{
			DayOfWeek:         req.DayOfWeek,
			StartTime:         req.StartTime,
			EndTime:           req.EndTime,
			Room:              req.Room,
			AssignedTeacherID: req.AssignedTeacherID,
		})
	}
	return slots
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
