package models

import "time"

// ReportStatus tracks the lifecycle of a queued report job.
type ReportStatus string

const (
	ReportPending    ReportStatus = "pending"
	ReportProcessing ReportStatus = "processing"
	ReportCompleted  ReportStatus = "completed"
	ReportFailed     ReportStatus = "failed"
)

// ReportFormat enumerates supported export formats.
type ReportFormat string

const (
	ReportCSV ReportFormat = "csv"
	ReportPDF ReportFormat = "pdf"
)

// Valid returns true when the format is a supported value.
func (f ReportFormat) Valid() bool {
	return f == ReportCSV || f == ReportPDF
}

// ReportJob is one queued attendance report export.
type ReportJob struct {
	ID          string       `db:"id" json:"id"`
	ClassID     string       `db:"class_id" json:"class_id"`
	Format      ReportFormat `db:"format" json:"format"`
	Status      ReportStatus `db:"status" json:"status"`
	FilePath    *string      `db:"file_path" json:"-"`
	Error       *string      `db:"error" json:"error,omitempty"`
	RequestedBy string       `db:"requested_by" json:"requested_by"`
	CreatedAt   time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at" json:"updated_at"`
}
