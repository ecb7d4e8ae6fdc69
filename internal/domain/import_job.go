package domain

import "time"

// ImportStatus is the lifecycle state of an import job.
type ImportStatus string

const (
	StatusPending    ImportStatus = "PENDING"
	StatusProcessing ImportStatus = "PROCESSING"
	StatusProcessed  ImportStatus = "PROCESSED"
	StatusError      ImportStatus = "ERROR"
)

// Statuses lists every ImportStatus in lifecycle order.
var Statuses = []ImportStatus{StatusPending, StatusProcessing, StatusProcessed, StatusError}

// Terminal reports whether no further transition is allowed.
func (s ImportStatus) Terminal() bool {
	return s == StatusProcessed || s == StatusError
}

// CanTransition reports whether s → next is a legal move.
// PENDING → PROCESSING → {PROCESSED | ERROR}; PENDING may also fail directly.
func (s ImportStatus) CanTransition(next ImportStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusError
	case StatusProcessing:
		return next == StatusProcessed || next == StatusError
	}
	return false
}

// ActiveStatuses returns the non-terminal statuses: jobs a live worker owns.
func ActiveStatuses() []ImportStatus {
	var out []ImportStatus
	for _, s := range Statuses {
		if !s.Terminal() {
			out = append(out, s)
		}
	}
	return out
}

// SourcesOf returns the statuses from which next may be entered. SQL
// guards are built from it so the database enforces the same rules.
func SourcesOf(next ImportStatus) []ImportStatus {
	var out []ImportStatus
	for _, s := range Statuses {
		if s.CanTransition(next) {
			out = append(out, s)
		}
	}
	return out
}

// ImportJob tracks one uploaded file through the pipeline.
type ImportJob struct {
	ID               string       `json:"id" db:"id"`
	Filename         string       `json:"filename" db:"filename"`
	Status           ImportStatus `json:"status" db:"status"`
	TotalRecords     int          `json:"total_records" db:"total_records"`
	ProcessedRecords int          `json:"processed_records" db:"processed_records"`
	ErrorMessage     string       `json:"error_message,omitempty" db:"error_message"`
	CreatedAt        time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at" db:"updated_at"`
}

// Progress is the status-polling view of a job.
type Progress struct {
	Status           ImportStatus `json:"status"`
	TotalRecords     int          `json:"total_records"`
	ProcessedRecords int          `json:"processed_records"`
	ErrorMessage     string       `json:"error_message,omitempty"`
}

// Progress returns the polling view of j.
func (j *ImportJob) Progress() Progress {
	return Progress{
		Status:           j.Status,
		TotalRecords:     j.TotalRecords,
		ProcessedRecords: j.ProcessedRecords,
		ErrorMessage:     j.ErrorMessage,
	}
}
