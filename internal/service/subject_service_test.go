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

type mockSubjectRepo struct {
	subjects map[string]*models.Subject
	codes    map[string]string
}

func newMockSubjectRepo() *mockSubjectRepo {
	return &mockSubjectRepo{subjects: make(map[string]*models.Subject), codes: make(map[string]string)}
}

func (m *mockSubjectRepo) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error) {
	out := make([]models.Subject, 0, len(m.subjects))
	for _, s := range m.subjects {
		out = append(out, *s)
	}
	return out, len(out), nil
}

func (m *mockSubjectRepo) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	if s, ok := m.subjects[id]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSubjectRepo) ExistsByCode(ctx context.Context, code string, excludeID string) (bool, error) {
	id, ok := m.codes[code]
	return ok && id != excludeID, nil
}

func (m *mockSubjectRepo) Create(ctx context.Context, subject *models.Subject) error {
	if subject.ID == "" {
		subject.ID = "subject-1"
	}
	stored := *subject
	m.subjects[subject.ID] = &stored
	m.codes[subject.Code] = subject.ID
	return nil
}

func (m *mockSubjectRepo) Update(ctx context.Context, subject *models.Subject) error {
	stored := *subject
	m.subjects[subject.ID] = &stored
	m.codes[subject.Code] = subject.ID
	return nil
}

func (m *mockSubjectRepo) Delete(ctx context.Context, id string) error {
	if s, ok := m.subjects[id]; ok {
		delete(m.codes, s.Code)
	}
	delete(m.subjects, id)
	return nil
}

func newTestSubjectService(repo *mockSubjectRepo) *SubjectService {
	programs := &mockExistsRepo{existing: map[string]bool{testProgramID: true}}
	return NewSubjectService(repo, programs, validator.New(), zap.NewNop())
}

func validCreateSubjectRequest() CreateSubjectRequest {
	return CreateSubjectRequest{
		Name:      "Data Structures",
		Code:      "CS201",
		ProgramID: testProgramID,
		Type:      models.SubjectTheory,
	}
}

func TestSubjectServiceCreate(t *testing.T) {
	repo := newMockSubjectRepo()
	svc := newTestSubjectService(repo)

	subject, err := svc.Create(context.Background(), validCreateSubjectRequest())
	require.NoError(t, err)
	assert.Equal(t, "CS201", subject.Code)
}

func TestSubjectServiceCreateDuplicateCode(t *testing.T) {
	repo := newMockSubjectRepo()
	svc := newTestSubjectService(repo)

	_, err := svc.Create(context.Background(), validCreateSubjectRequest())
	require.NoError(t, err)

	req := validCreateSubjectRequest()
	req.Name = "Algorithms"
	_, err = svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestSubjectServiceCreateUnknownProgram(t *testing.T) {
	repo := newMockSubjectRepo()
	svc := newTestSubjectService(repo)

	req := validCreateSubjectRequest()
	req.ProgramID = testSubjectID
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSubjectServiceCreateBadType(t *testing.T) {
	repo := newMockSubjectRepo()
	svc := newTestSubjectService(repo)

	req := validCreateSubjectRequest()
	req.Type = models.SubjectType("Seminar")
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSubjectServiceCreateCreditsOutOfRange(t *testing.T) {
	repo := newMockSubjectRepo()
	svc := newTestSubjectService(repo)

	credits := 12
	req := validCreateSubjectRequest()
	req.Credits = &credits
	_, err := svc.Create(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSubjectServiceUpdateKeepsOwnCode(t *testing.T) {
	repo := newMockSubjectRepo()
	svc := newTestSubjectService(repo)

	subject, err := svc.Create(context.Background(), validCreateSubjectRequest())
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), subject.ID, UpdateSubjectRequest{
		Name:      "Data Structures II",
		Code:      "CS201",
		ProgramID: testProgramID,
		Type:      models.SubjectLab,
	})
	require.NoError(t, err)
	assert.Equal(t, models.SubjectLab, updated.Type)
}
