package models

import "time"

// SubjectType classifies how a subject is delivered.
type SubjectType string

const (
	SubjectTheory   SubjectType = "Theory"
	SubjectLab      SubjectType = "Lab"
	SubjectTutorial SubjectType = "Tutorial"
	SubjectProject  SubjectType = "Project"
)

// Valid returns true when the type is a supported value.
func (t SubjectType) Valid() bool {
	switch t {
	case SubjectTheory, SubjectLab, SubjectTutorial, SubjectProject:
		return true
	default:
		return false
	}
}

// Subject represents an academic subject belonging to a program.
type Subject struct {
	ID          string      `db:"id" json:"id"`
	Name        string      `db:"name" json:"name"`
	Code        string      `db:"code" json:"code"`
	Description *string     `db:"description" json:"description,omitempty"`
	ProgramID   string      `db:"program_id" json:"program_id"`
	Type        SubjectType `db:"type" json:"type"`
	Credits     *int        `db:"credits" json:"credits,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}

// SubjectFilter captures supported filters for listing subjects.
type SubjectFilter struct {
	ProgramID string
	Type      string
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
