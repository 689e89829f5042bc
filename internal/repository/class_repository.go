package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campushub/institute-api/internal/models"
)

const classColumns = `id, subject_id, program_id, section_name, primary_teacher_id, academic_year, semester, start_date, end_date, created_at, updated_at`

// ClassRepository handles persistence for class offerings, their schedule
// slots and the class_students enrollment junction.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository creates a new repository instance.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

// List returns class offerings matching filters with pagination metadata.
// Students and schedule slots are loaded per returned row.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassFilter) ([]models.Class, int, error) {
	base := "FROM classes WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.ProgramID != "" {
		conditions = append(conditions, fmt.Sprintf("program_id = $%d", len(args)+1))
		args = append(args, filter.ProgramID)
	}
	if filter.TeacherID != "" {
		conditions = append(conditions, fmt.Sprintf("primary_teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.AcademicYear != "" {
		conditions = append(conditions, fmt.Sprintf("academic_year = $%d", len(args)+1))
		args = append(args, filter.AcademicYear)
	}
	if filter.Semester != "" {
		conditions = append(conditions, fmt.Sprintf("semester = $%d", len(args)+1))
		args = append(args, filter.Semester)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{"section_name": true, "academic_year": true, "start_date": true, "created_at": true}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", classColumns, base, sortBy, order, size, offset)
	var classes []models.Class
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}

	for i := range classes {
		if err := r.hydrate(ctx, &classes[i]); err != nil {
			return nil, 0, err
		}
	}

	return classes, total, nil
}

// FindByID returns a class offering with students and schedule loaded.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.Class, error) {
	query := fmt.Sprintf(`SELECT %s FROM classes WHERE id = $1 LIMIT 1`, classColumns)
	var class models.Class
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	if err := r.hydrate(ctx, &class); err != nil {
		return nil, err
	}
	return &class, nil
}

// Create persists a class offering with its schedule slots and initial
// enrollment in one transaction.
func (r *ClassRepository) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if class.CreatedAt.IsZero() {
		class.CreatedAt = now
	}
	class.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create class: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `INSERT INTO classes (id, subject_id, program_id, section_name, primary_teacher_id, academic_year, semester, start_date, end_date, created_at, updated_at)
		VALUES (:id, :subject_id, :program_id, :section_name, :primary_teacher_id, :academic_year, :semester, :start_date, :end_date, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, class); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create class: %w", err)
	}

	if err := insertSlots(ctx, tx, class.ID, class.Schedule); err != nil {
		return err
	}
	if err := insertStudents(ctx, tx, class.ID, class.Students); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create class: %w", err)
	}
	return nil
}

// Update modifies a class offering, replacing its schedule when provided.
func (r *ClassRepository) Update(ctx context.Context, class *models.Class, replaceSchedule bool) error {
	class.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update class: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `UPDATE classes SET subject_id = :subject_id, program_id = :program_id, section_name = :section_name, primary_teacher_id = :primary_teacher_id,
		academic_year = :academic_year, semester = :semester, start_date = :start_date, end_date = :end_date, updated_at = :updated_at WHERE id = :id`
	if _, err := tx.NamedExecContext(ctx, query, class); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("update class: %w", err)
	}

	if replaceSchedule {
		if _, err := tx.ExecContext(ctx, `DELETE FROM class_schedule_slots WHERE class_id = $1`, class.ID); err != nil {
			return fmt.Errorf("clear class schedule: %w", err)
		}
		if err := insertSlots(ctx, tx, class.ID, class.Schedule); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update class: %w", err)
	}
	return nil
}

// Delete removes a class offering. Slots, enrollments and attendance cascade
// at the schema level.
func (r *ClassRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM classes WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete class: %w", err)
	}
	return nil
}

// Exists reports whether a class id is present.
func (r *ClassRepository) Exists(ctx context.Context, id string) (bool, error) {
	var exists int
	if err := r.db.GetContext(ctx, &exists, `SELECT 1 FROM classes WHERE id = $1 LIMIT 1`, id); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check class: %w", err)
	}
	return true, nil
}

// EnrollStudents adds the given student ids to the class. Already-enrolled
// ids are skipped, making the operation idempotent.
func (r *ClassRepository) EnrollStudents(ctx context.Context, classID string, studentIDs []string) error {
	if len(studentIDs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, studentID := range studentIDs {
		const query = `INSERT INTO class_students (class_id, student_id, enrolled_at) VALUES ($1, $2, $3)
			ON CONFLICT (class_id, student_id) DO NOTHING`
		if _, err := r.db.ExecContext(ctx, query, classID, studentID, now); err != nil {
			return fmt.Errorf("enroll student %s: %w", studentID, err)
		}
	}
	return nil
}

// UnenrollStudents removes the given student ids from the class.
func (r *ClassRepository) UnenrollStudents(ctx context.Context, classID string, studentIDs []string) error {
	if len(studentIDs) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`DELETE FROM class_students WHERE class_id = ? AND student_id IN (?)`, classID, studentIDs)
	if err != nil {
		return fmt.Errorf("build unenroll query: %w", err)
	}
	query = r.db.Rebind(query)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("unenroll students: %w", err)
	}
	return nil
}

func (r *ClassRepository) hydrate(ctx context.Context, class *models.Class) error {
	students := []string{}
	if err := r.db.SelectContext(ctx, &students, `SELECT student_id FROM class_students WHERE class_id = $1 ORDER BY enrolled_at`, class.ID); err != nil {
		return fmt.Errorf("load class students: %w", err)
	}
	class.Students = students

	slots := []models.ScheduleSlot{}
	if err := r.db.SelectContext(ctx, &slots, `SELECT id, class_id, day_of_week, start_time, end_time, room, assigned_teacher_id, created_at FROM class_schedule_slots WHERE class_id = $1 ORDER BY created_at`, class.ID); err != nil {
		return fmt.Errorf("load class schedule: %w", err)
	}
	class.Schedule = slots
	return nil
}

func insertSlots(ctx context.Context, tx *sqlx.Tx, classID string, slots []models.ScheduleSlot) error {
	now := time.Now().UTC()
	for i := range slots {
		slot := &slots[i]
		if slot.ID == "" {
			slot.ID = uuid.NewString()
		}
		slot.ClassID = classID
		slot.CreatedAt = now
		const query = `INSERT INTO class_schedule_slots (id, class_id, day_of_week, start_time, end_time, room, assigned_teacher_id, created_at)
			VALUES (:id, :class_id, :day_of_week, :start_time, :end_time, :room, :assigned_teacher_id, :created_at)`
		if _, err := tx.NamedExecContext(ctx, query, slot); err != nil {
			return fmt.Errorf("create schedule slot: %w", err)
		}
	}
	return nil
}

func insertStudents(ctx context.Context, tx *sqlx.Tx, classID string, studentIDs []string) error {
	now := time.Now().UTC()
	for _, studentID := range studentIDs {
		const query = `INSERT INTO class_students (class_id, student_id, enrolled_at) VALUES ($1, $2, $3)
			ON CONFLICT (class_id, student_id) DO NOTHING`
		if _, err := tx.ExecContext(ctx, query, classID, studentID, now); err != nil {
			return fmt.Errorf("enroll student %s: %w", studentID, err)
		}
	}
	return nil
}
