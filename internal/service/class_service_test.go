package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/campushub/institute-api/internal/models"
	"github.com/campushub/institute-api/internal/repository"
	appErrors "github.com/campushub/institute-api/pkg/errors"
)

type mockClassRepo struct {
	classes      map[string]*models.Class
	createErr    error
	updateErr    error
	enrollCalls  [][]string
	removedCalls [][]string
}

func newMockClassRepo() *mockClassRepo {
	return &mockClassRepo{classes: make(map[string]*models.Class)}
}

func (m *mockClassRepo) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error) {
	out := make([]models.Class, 0, len(m.classes))
	for _, c := range m.classes {
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (m *mockClassRepo) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if c, ok := m.classes[id]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockClassRepo) Create(ctx context.Context, class *models.Class) error {
	if m.createErr != nil {
		return m.createErr
	}
	if class.ID == "" {
		class.ID = "class-1"
	}
	stored := *class
	m.classes[class.ID] = &stored
	return nil
}

func (m *mockClassRepo) Update(ctx context.Context, class *models.Class, replaceSchedule bool) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	stored := *class
	m.classes[class.ID] = &stored
	return nil
}

func (m *mockClassRepo) Delete(ctx context.Context, id string) error {
	delete(m.classes, id)
	return nil
}

func (m *mockClassRepo) EnrollStudents(ctx context.Context, classID string, studentIDs []string) error {
	m.enrollCalls = append(m.enrollCalls, studentIDs)
	class := m.classes[classID]
	existing := make(map[string]struct{}, len(class.Students))
	for _, id := range class.Students {
		existing[id] = struct{}{}
	}
	for _, id := range studentIDs {
		if _, ok := existing[id]; !ok {
			class.Students = append(class.Students, id)
		}
	}
	return nil
}

func (m *mockClassRepo) UnenrollStudents(ctx context.Context, classID string, studentIDs []string) error {
	m.removedCalls = append(m.removedCalls, studentIDs)
	class := m.classes[classID]
	drop := make(map[string]struct{}, len(studentIDs))
	for _, id := range studentIDs {
		drop[id] = struct{}{}
	}
	kept := class.Students[:0]
	for _, id := range class.Students {
		if _, ok := drop[id]; !ok {
			kept = append(kept, id)
		}
	}
	class.Students = kept
	return nil
}

type mockExistsRepo struct {
	existing map[string]bool
}

func (m *mockExistsRepo) Exists(ctx context.Context, id string) (bool, error) {
	return m.existing[id], nil
}

type mockRoleCounter struct {
	roles map[string]models.UserRole
}

func (m *mockRoleCounter) CountByIDsAndRole(ctx context.Context, ids []string, role models.UserRole) (int, error) {
	count := 0
	for _, id := range ids {
		if m.roles[id] == role {
			count++
		}
	}
	return count, nil
}

const (
	testSubjectID = "7b0b3f1e-0000-4000-8000-000000000001"
	testProgramID = "7b0b3f1e-0000-4000-8000-000000000002"
	testTeacherID = "7b0b3f1e-0000-4000-8000-000000000003"
	testStudentA  = "7b0b3f1e-0000-4000-8000-000000000004"
	testStudentB  = "7b0b3f1e-0000-4000-8000-000000000005"
)

func newTestClassService(repo *mockClassRepo) *ClassService {
	subjects := &mockExistsRepo{existing: map[string]bool{testSubjectID: true}}
	programs := &mockExistsRepo{existing: map[string]bool{testProgramID: true}}
	users := &mockRoleCounter{roles: map[string]models.UserRole{
		testTeacherID: models.RoleTeacher,
		testStudentA:  models.RoleStudent,
		testStudentB:  models.RoleStudent,
	}}
	return NewClassService(repo, subjects, programs, users, validator.New(), zap.NewNop())
}

func validCreateClassRequest() CreateClassRequest {
	return CreateClassRequest{
		SubjectID:        testSubjectID,
		ProgramID:        testProgramID,
		SectionName:      "A",
		PrimaryTeacherID: testTeacherID,
		AcademicYear:     "2026-27",
		Semester:         models.SemesterFall,
		StartDate:        time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		EndDate:          time.Date(2026, 12, 20, 0, 0, 0, 0, time.UTC),
		Students:         []string{testStudentA},
	}
}

func TestClassServiceCreateSuccess(t *testing.T) {
	repo := newMockClassRepo()
	svc := newTestClassService(repo)

	class, err := svc.Create(context.Background(), validCreateClassRequest())
	require.NoError(t, err)
	assert.Equal(t, "A", class.SectionName)
	assert.Equal(t, []string{testStudentA}, class.Students)
}

func TestClassServiceCreateDuplicateOffering(t *testing.T) {
	repo := newMockClassRepo()
	repo.createErr = repository.ErrDuplicate
	svc := newTestClassService(repo)

	_, err := svc.Create(context.Background(), validCreateClassRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestClassServiceCreateRejectsNonTeacher(t *testing.T) {
	repo := newMockClassRepo()
	svc := newTestClassService(repo)

	req := validCreateClassRequest()
	req.PrimaryTeacherID = testStudentA
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestClassServiceCreateRejectsNonStudentEnrollment(t *testing.T) {
	repo := newMockClassRepo()
	svc := newTestClassService(repo)

	req := validCreateClassRequest()
	req.Students = []string{testTeacherID}
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestClassServiceCreateRejectsInvertedDates(t *testing.T) {
	repo := newMockClassRepo()
	svc := newTestClassService(repo)

	req := validCreateClassRequest()
	req.StartDate, req.EndDate = req.EndDate, req.StartDate
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestClassServiceEnrollIsIdempotent(t *testing.T) {
	repo := newMockClassRepo()
	svc := newTestClassService(repo)

	class, err := svc.Create(context.Background(), validCreateClassRequest())
	require.NoError(t, err)

	updated, err := svc.Enroll(context.Background(), class.ID, EnrollmentRequest{StudentIDs: []string{testStudentA, testStudentB}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{testStudentA, testStudentB}, updated.Students)

	again, err := svc.Enroll(context.Background(), class.ID, EnrollmentRequest{StudentIDs: []string{testStudentB}})
	require.NoError(t, err)
	assert.Len(t, again.Students, 2)
}

func TestClassServiceUnenrollIgnoresUnknownIDs(t *testing.T) {
	repo := newMockClassRepo()
	svc := newTestClassService(repo)

	class, err := svc.Create(context.Background(), validCreateClassRequest())
	require.NoError(t, err)

	updated, err := svc.Unenroll(context.Background(), class.ID, EnrollmentRequest{StudentIDs: []string{testStudentA, testStudentB}})
	require.NoError(t, err)
	assert.Empty(t, updated.Students)
}

func TestClassServiceGetNotFound(t *testing.T) {
	repo := newMockClassRepo()
	svc := newTestClassService(repo)

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
