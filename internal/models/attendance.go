package models

import "time"

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLate    AttendanceStatus = "late"
	AttendanceExcused AttendanceStatus = "excused"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceLate, AttendanceExcused:
		return true
	default:
		return false
	}
}

// Attendance represents a single attendance row. One row exists per
// (class, student, date, slot_time) tuple, enforced by a unique index.
type Attendance struct {
	ID         string           `db:"id" json:"id"`
	ClassID    string           `db:"class_id" json:"class_id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	Date       time.Time        `db:"date" json:"date"`
	Status     AttendanceStatus `db:"status" json:"status"`
	MarkedByID string           `db:"marked_by_id" json:"marked_by_id"`
	SlotTime   *string          `db:"slot_time" json:"slot_time,omitempty"`
	CreatedAt  time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time        `db:"updated_at" json:"updated_at"`
}

// AttendanceRecord extends the row with student metadata for listings.
type AttendanceRecord struct {
	Attendance
	StudentName     string `db:"student_name" json:"student_name"`
	StudentCampusID string `db:"student_campus_id" json:"student_campus_id"`
}

// AttendanceFilter scopes listing queries.
type AttendanceFilter struct {
	ClassID   string
	StudentID string
	Status    *AttendanceStatus
	DateFrom  *time.Time
	DateTo    *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
