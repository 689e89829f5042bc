package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campushub/institute-api/internal/models"
	appErrors "github.com/campushub/institute-api/pkg/errors"
)

type mockCourseRepo struct {
	courses map[string]*models.Course
	names   map[string]string
}

func newMockCourseRepo() *mockCourseRepo {
	return &mockCourseRepo{courses: make(map[string]*models.Course), names: make(map[string]string)}
}

func (m *mockCourseRepo) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	out := make([]models.Course, 0, len(m.courses))
	for _, c := range m.courses {
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (m *mockCourseRepo) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := m.courses[id]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCourseRepo) ExistsByName(ctx context.Context, name string, excludeID string) (bool, error) {
	id, ok := m.names[name]
	return ok && id != excludeID, nil
}

func (m *mockCourseRepo) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = "course-1"
	}
	stored := *course
	m.courses[course.ID] = &stored
	m.names[course.Name] = course.ID
	return nil
}

func (m *mockCourseRepo) Update(ctx context.Context, course *models.Course) error {
	stored := *course
	m.courses[course.ID] = &stored
	m.names[course.Name] = course.ID
	return nil
}

func (m *mockCourseRepo) Delete(ctx context.Context, id string) error {
	if c, ok := m.courses[id]; ok {
		delete(m.names, c.Name)
	}
	delete(m.courses, id)
	return nil
}

func newTestCourseService(repo *mockCourseRepo) *CourseService {
	users := &mockRoleCounter{roles: map[string]models.UserRole{testTeacherID: models.RoleTeacher}}
	return NewCourseService(repo, users, validator.New(), zap.NewNop())
}

func TestCourseServiceCreate(t *testing.T) {
	repo := newMockCourseRepo()
	svc := newTestCourseService(repo)

	course, err := svc.Create(context.Background(), CreateCourseRequest{Name: "BE CSE", Duration: "4 years"})
	require.NoError(t, err)
	assert.Equal(t, "BE CSE", course.Name)
}

func TestCourseServiceCreateDuplicateName(t *testing.T) {
	repo := newMockCourseRepo()
	svc := newTestCourseService(repo)

	_, err := svc.Create(context.Background(), CreateCourseRequest{Name: "BE CSE", Duration: "4 years"})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateCourseRequest{Name: "BE CSE", Duration: "4 years"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceCreateCoordinatorMustBeTeacher(t *testing.T) {
	repo := newMockCourseRepo()
	svc := newTestCourseService(repo)

	student := testStudentA
	_, err := svc.Create(context.Background(), CreateCourseRequest{Name: "BE ECE", Duration: "4 years", CoordinatorID: &student})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	teacher := testTeacherID
	course, err := svc.Create(context.Background(), CreateCourseRequest{Name: "BE ECE", Duration: "4 years", CoordinatorID: &teacher})
	require.NoError(t, err)
	require.NotNil(t, course.CoordinatorID)
	assert.Equal(t, teacher, *course.CoordinatorID)
}

func TestCourseServiceUpdateKeepsOwnName(t *testing.T) {
	repo := newMockCourseRepo()
	svc := newTestCourseService(repo)

	course, err := svc.Create(context.Background(), CreateCourseRequest{Name: "BE CSE", Duration: "4 years"})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), course.ID, UpdateCourseRequest{Name: "BE CSE", Duration: "3 years"})
	require.NoError(t, err)
	assert.Equal(t, "3 years", updated.Duration)
}

func TestCourseServiceDeleteNotFound(t *testing.T) {
	repo := newMockCourseRepo()
	svc := newTestCourseService(repo)

	err := svc.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
