package service

import (
	"context"
	"database/sql"
	"fmt"
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

type mockAttendanceRepo struct {
	records   map[string]*models.Attendance
	sessions  map[string]bool
	listed    []models.AttendanceRecord
	createErr error
}

func newMockAttendanceRepo() *mockAttendanceRepo {
	return &mockAttendanceRepo{
		records:  make(map[string]*models.Attendance),
		sessions: make(map[string]bool),
	}
}

// sessionKey mirrors the storage-layer unique index, which coalesces an
// absent slot to the empty string.
func sessionKey(rec *models.Attendance) string {
	slot := ""
	if rec.SlotTime != nil {
		slot = *rec.SlotTime
	}
	return rec.ClassID + "|" + rec.StudentID + "|" + rec.Date.Format("2006-01-02") + "|" + slot
}

func (m *mockAttendanceRepo) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	out := make([]models.AttendanceRecord, 0, len(m.listed))
	for _, rec := range m.listed {
		if filter.StudentID != "" && rec.StudentID != filter.StudentID {
			continue
		}
		out = append(out, rec)
	}
	return out, len(out), nil
}

func (m *mockAttendanceRepo) FindByID(ctx context.Context, id string) (*models.Attendance, error) {
	if rec, ok := m.records[id]; ok {
		copied := *rec
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAttendanceRepo) CreateBulk(ctx context.Context, records []*models.Attendance) error {
	if m.createErr != nil {
		return m.createErr
	}
	for _, rec := range records {
		if m.sessions[sessionKey(rec)] {
			return repository.ErrDuplicate
		}
	}
	for _, rec := range records {
		if rec.ID == "" {
			rec.ID = fmt.Sprintf("rec-%d", len(m.records))
		}
		stored := *rec
		m.records[rec.ID] = &stored
		m.sessions[sessionKey(rec)] = true
	}
	return nil
}

func (m *mockAttendanceRepo) Update(ctx context.Context, record *models.Attendance) error {
	stored := *record
	m.records[record.ID] = &stored
	return nil
}

func (m *mockAttendanceRepo) Delete(ctx context.Context, id string) error {
	delete(m.records, id)
	return nil
}

type mockClassFinder struct {
	class *models.Class
}

func (m *mockClassFinder) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if m.class == nil || m.class.ID != id {
		return nil, sql.ErrNoRows
	}
	copied := *m.class
	return &copied, nil
}

const testClassID = "7b0b3f1e-0000-4000-8000-00000000000a"
const testMarkerID = "7b0b3f1e-0000-4000-8000-00000000000b"

func newTestAttendanceService(repo *mockAttendanceRepo) *AttendanceService {
	classes := &mockClassFinder{class: &models.Class{
		ID:       testClassID,
		Students: []string{testStudentA, testStudentB},
	}}
	return NewAttendanceService(repo, classes, validator.New(), zap.NewNop())
}

func validMarkRequest() MarkAttendanceRequest {
	return MarkAttendanceRequest{
		ClassID: testClassID,
		Date:    time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		Entries: []AttendanceEntry{
			{StudentID: testStudentA, Status: models.AttendancePresent},
			{StudentID: testStudentB, Status: models.AttendanceAbsent},
		},
	}
}

func TestAttendanceServiceMarkSuccess(t *testing.T) {
	repo := newMockAttendanceRepo()
	svc := newTestAttendanceService(repo)

	records, err := svc.Mark(context.Background(), testMarkerID, validMarkRequest())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, testMarkerID, records[0].MarkedByID)
	assert.Equal(t, models.AttendancePresent, records[0].Status)
}

func TestAttendanceServiceMarkDuplicateSession(t *testing.T) {
	repo := newMockAttendanceRepo()
	repo.createErr = repository.ErrDuplicate
	svc := newTestAttendanceService(repo)

	_, err := svc.Mark(context.Background(), testMarkerID, validMarkRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAttendanceServiceMarkTwiceWithoutSlotConflicts(t *testing.T) {
	repo := newMockAttendanceRepo()
	svc := newTestAttendanceService(repo)

	records, err := svc.Mark(context.Background(), testMarkerID, validMarkRequest())
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Re-marking the same class and date with no slot must collide even
	// though slot_time is absent on both sides.
	_, err = svc.Mark(context.Background(), testMarkerID, validMarkRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Len(t, repo.records, 2)
}

func TestAttendanceServiceMarkDistinctSlotsDoNotConflict(t *testing.T) {
	repo := newMockAttendanceRepo()
	svc := newTestAttendanceService(repo)

	morning := "09:00"
	req := validMarkRequest()
	req.SlotTime = &morning
	_, err := svc.Mark(context.Background(), testMarkerID, req)
	require.NoError(t, err)

	afternoon := "14:00"
	req = validMarkRequest()
	req.SlotTime = &afternoon
	_, err = svc.Mark(context.Background(), testMarkerID, req)
	require.NoError(t, err)
	assert.Len(t, repo.records, 4)
}

func TestAttendanceServiceMarkRejectsUnenrolledStudent(t *testing.T) {
	repo := newMockAttendanceRepo()
	svc := newTestAttendanceService(repo)

	req := validMarkRequest()
	req.Entries = append(req.Entries, AttendanceEntry{StudentID: testTeacherID, Status: models.AttendanceLate})
	_, err := svc.Mark(context.Background(), testMarkerID, req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAttendanceServiceMarkRejectsDuplicateEntry(t *testing.T) {
	repo := newMockAttendanceRepo()
	svc := newTestAttendanceService(repo)

	req := validMarkRequest()
	req.Entries = append(req.Entries, AttendanceEntry{StudentID: testStudentA, Status: models.AttendanceLate})
	_, err := svc.Mark(context.Background(), testMarkerID, req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAttendanceServiceMarkRejectsBadStatus(t *testing.T) {
	repo := newMockAttendanceRepo()
	svc := newTestAttendanceService(repo)

	req := validMarkRequest()
	req.Entries[0].Status = "vanished"
	_, err := svc.Mark(context.Background(), testMarkerID, req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAttendanceServiceMarkUnknownClass(t *testing.T) {
	repo := newMockAttendanceRepo()
	svc := newTestAttendanceService(repo)

	req := validMarkRequest()
	req.ClassID = "7b0b3f1e-0000-4000-8000-0000000000ff"
	_, err := svc.Mark(context.Background(), testMarkerID, req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAttendanceServiceListByStudentEmptyIsNotFound(t *testing.T) {
	repo := newMockAttendanceRepo()
	svc := newTestAttendanceService(repo)

	_, _, err := svc.ListByStudent(context.Background(), testStudentA, models.AttendanceFilter{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAttendanceServiceListByStudentFilters(t *testing.T) {
	repo := newMockAttendanceRepo()
	repo.listed = []models.AttendanceRecord{
		{Attendance: models.Attendance{ID: "1", StudentID: testStudentA, Status: models.AttendancePresent}},
		{Attendance: models.Attendance{ID: "2", StudentID: testStudentB, Status: models.AttendanceAbsent}},
	}
	svc := newTestAttendanceService(repo)

	records, pagination, err := svc.ListByStudent(context.Background(), testStudentA, models.AttendanceFilter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, testStudentA, records[0].StudentID)
	assert.Equal(t, 1, pagination.TotalCount)
}

func TestAttendanceServiceUpdateStatus(t *testing.T) {
	repo := newMockAttendanceRepo()
	repo.records["rec-1"] = &models.Attendance{ID: "rec-1", Status: models.AttendanceAbsent}
	svc := newTestAttendanceService(repo)

	record, err := svc.Update(context.Background(), "rec-1", UpdateAttendanceRequest{Status: models.AttendanceExcused})
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceExcused, record.Status)
}

func TestAttendanceServiceUpdateNotFound(t *testing.T) {
	repo := newMockAttendanceRepo()
	svc := newTestAttendanceService(repo)

	_, err := svc.Update(context.Background(), "missing", UpdateAttendanceRequest{Status: models.AttendancePresent})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestAttendanceServiceDelete(t *testing.T) {
	repo := newMockAttendanceRepo()
	repo.records["rec-1"] = &models.Attendance{ID: "rec-1"}
	svc := newTestAttendanceService(repo)

	require.NoError(t, svc.Delete(context.Background(), "rec-1"))
	assert.Empty(t, repo.records)

	err := svc.Delete(context.Background(), "rec-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
