package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campushub/institute-api/internal/models"
	appErrors "github.com/campushub/institute-api/pkg/errors"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	ExistsByName(ctx context.Context, name string, excludeID string) (bool, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
}

type roleCountRepository interface {
	CountByIDsAndRole(ctx context.Context, ids []string, role models.UserRole) (int, error)
}

// CreateCourseRequest holds payload for creating courses.
type CreateCourseRequest struct {
	Name          string  `json:"name" validate:"required"`
	Description   string  `json:"description"`
	Duration      string  `json:"duration" validate:"required"`
	CoordinatorID *string `json:"coordinator_id" validate:"omitempty,uuid"`
}

// UpdateCourseRequest holds payload for updating courses.
type UpdateCourseRequest struct {
	Name          string  `json:"name" validate:"required"`
	Description   string  `json:"description"`
	Duration      string  `json:"duration" validate:"required"`
	CoordinatorID *string `json:"coordinator_id" validate:"omitempty,uuid"`
}

// CourseService handles course use-cases.
type CourseService struct {
	repo      courseRepository
	users     roleCountRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs the course service.
func NewCourseService(repo courseRepository, users roleCountRepository, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, users: users, validator: validate, logger: logger}
}

// List returns courses and pagination metadata.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return courses, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one course by id.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// Create registers a new course.
func (s *CourseService) Create(ctx context.Context, req CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	exists, err := s.repo.ExistsByName(ctx, req.Name, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate course name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course name already used")
	}
	if err := s.validateCoordinator(ctx, req.CoordinatorID); err != nil {
		return nil, err
	}

	course := &models.Course{
		Name:          req.Name,
		Description:   req.Description,
		Duration:      req.Duration,
		CoordinatorID: req.CoordinatorID,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	return course, nil
}

// Update modifies an existing course.
func (s *CourseService) Update(ctx context.Context, id string, req UpdateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	exists, err := s.repo.ExistsByName(ctx, req.Name, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate course name")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course name already used")
	}
	if err := s.validateCoordinator(ctx, req.CoordinatorID); err != nil {
		return nil, err
	}

	course.Name = req.Name
	course.Description = req.Description
	course.Duration = req.Duration
	course.CoordinatorID = req.CoordinatorID
	if err := s.repo.Update(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update course")
	}
	return course, nil
}

// Delete removes a course by id.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete course")
	}
	return nil
}

func (s *CourseService) validateCoordinator(ctx context.Context, coordinatorID *string) error {
	if coordinatorID == nil {
		return nil
	}
	count, err := s.users.CountByIDsAndRole(ctx, []string{*coordinatorID}, models.RoleTeacher)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate coordinator")
	}
	if count != 1 {
		return appErrors.Clone(appErrors.ErrValidation, "coordinator must be an existing teacher")
	}
	return nil
}
