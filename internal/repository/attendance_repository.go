package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushub/institute-api/internal/models"
)

// AttendanceRepository handles persistence for attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository creates a new repository instance.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// List returns attendance records matching filters with pagination metadata.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, int, error) {
	base := `FROM attendance a JOIN users u ON u.id = a.student_id WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("a.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("a.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, string(*filter.Status))
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("a.date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("a.date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"date":         "a.date",
		"status":       "a.status",
		"student_name": "u.name",
		"created_at":   "a.created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "a.date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT a.id, a.class_id, a.student_id, a.date, a.status, a.marked_by_id, a.slot_time, a.created_at, a.updated_at,
		u.name AS student_name, u.campus_id AS student_campus_id
		%s ORDER BY %s %s LIMIT %d OFFSET %d`, base, orderBy, order, size, offset)
	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}

	return records, total, nil
}

// FindByID returns an attendance row by id.
func (r *AttendanceRepository) FindByID(ctx context.Context, id string) (*models.Attendance, error) {
	const query = `SELECT id, class_id, student_id, date, status, marked_by_id, slot_time, created_at, updated_at FROM attendance WHERE id = $1 LIMIT 1`
	var record models.Attendance
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// CreateBulk inserts one row per record inside a transaction. A duplicate
// (class, student, date, slot) tuple aborts the whole batch with
// ErrDuplicate; nothing is persisted.
func (r *AttendanceRepository) CreateBulk(ctx context.Context, records []*models.Attendance) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin mark attendance: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for _, record := range records {
		if record.ID == "" {
			record.ID = uuid.NewString()
		}
		record.CreatedAt = now
		record.UpdatedAt = now

		const query = `INSERT INTO attendance (id, class_id, student_id, date, status, marked_by_id, slot_time, created_at, updated_at)
			VALUES (:id, :class_id, :student_id, :date, :status, :marked_by_id, :slot_time, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, query, record); err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("create attendance: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit mark attendance: %w", err)
	}
	return nil
}

// Update modifies status and slot of an attendance row.
func (r *AttendanceRepository) Update(ctx context.Context, record *models.Attendance) error {
	record.UpdatedAt = time.Now().UTC()
	const query = `UPDATE attendance SET status = :status, slot_time = :slot_time, date = :date, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("update attendance: %w", err)
	}
	return nil
}

// Delete removes an attendance row.
func (r *AttendanceRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM attendance WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete attendance: %w", err)
	}
	return nil
}

// ListByClass returns all rows for a class ordered by date then student,
// used by report generation.
func (r *AttendanceRepository) ListByClass(ctx context.Context, classID string) ([]models.AttendanceRecord, error) {
	const query = `SELECT a.id, a.class_id, a.student_id, a.date, a.status, a.marked_by_id, a.slot_time, a.created_at, a.updated_at,
		u.name AS student_name, u.campus_id AS student_campus_id
		FROM attendance a JOIN users u ON u.id = a.student_id
		WHERE a.class_id = $1 ORDER BY a.date, u.name`
	var records []models.AttendanceRecord
	if err := r.db.SelectContext(ctx, &records, query, classID); err != nil {
		return nil, fmt.Errorf("list class attendance: %w", err)
	}
	return records, nil
}
