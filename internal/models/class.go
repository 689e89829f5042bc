package models

import "time"

// Semester enumerates the supported semester labels.
type Semester string

const (
	SemesterFall   Semester = "Fall"
	SemesterSpring Semester = "Spring"
	SemesterSummer Semester = "Summer"
	SemesterOdd    Semester = "Odd"
	SemesterEven   Semester = "Even"
	SemesterYearly Semester = "Yearly"
)

// Valid returns true when the semester is a supported value.
func (s Semester) Valid() bool {
	switch s {
	case SemesterFall, SemesterSpring, SemesterSummer, SemesterOdd, SemesterEven, SemesterYearly:
		return true
	default:
		return false
	}
}

// ScheduleSlot is one recurring meeting of a class offering. The assigned
// teacher, when set, overrides the class primary teacher for that slot.
type ScheduleSlot struct {
	ID                string    `db:"id" json:"id"`
	ClassID           string    `db:"class_id" json:"-"`
	DayOfWeek         string    `db:"day_of_week" json:"day_of_week"`
	StartTime         string    `db:"start_time" json:"start_time"`
	EndTime           string    `db:"end_time" json:"end_time"`
	Room              string    `db:"room" json:"room"`
	AssignedTeacherID *string   `db:"assigned_teacher_id" json:"assigned_teacher_id,omitempty"`
	CreatedAt         time.Time `db:"created_at" json:"-"`
}

// Class represents one offering of a subject for a section within a program.
type Class struct {
	ID               string    `db:"id" json:"id"`
	SubjectID        string    `db:"subject_id" json:"subject_id"`
	ProgramID        string    `db:"program_id" json:"program_id"`
	SectionName      string    `db:"section_name" json:"section_name"`
	PrimaryTeacherID string    `db:"primary_teacher_id" json:"primary_teacher_id"`
	AcademicYear     string    `db:"academic_year" json:"academic_year"`
	Semester         Semester  `db:"semester" json:"semester"`
	StartDate        time.Time `db:"start_date" json:"start_date"`
	EndDate          time.Time `db:"end_date" json:"end_date"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`

	Students []string       `db:"-" json:"students"`
	Schedule []ScheduleSlot `db:"-" json:"schedule"`
}

// ClassFilter captures supported filters for listing class offerings.
type ClassFilter struct {
	SubjectID    string
	ProgramID    string
	TeacherID    string
	AcademicYear string
	Semester     string
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
