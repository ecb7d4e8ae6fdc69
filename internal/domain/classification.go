package domain

import (
	"errors"
	"math"
	"strings"
	"time"
)

// ClassificationResult is a verdict returned by the external classifier for
// one record. RecordID is the upsert key.
type ClassificationResult struct {
	RecordID      string    `json:"record_id" db:"record_id"`
	Status        string    `json:"status_label" db:"status"`
	Justification string    `json:"justification" db:"justification"`
	Score         float64   `json:"score" db:"score"`
	UpdatedAt     time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// Validate checks the fields a result must carry to be stored.
func (r ClassificationResult) Validate() error {
	if strings.TrimSpace(r.RecordID) == "" {
		return errors.New("record_id is required")
	}
	if strings.TrimSpace(r.Status) == "" {
		return errors.New("status_label is required")
	}
	if math.IsNaN(r.Score) || r.Score < 0 || r.Score > 1 {
		return errors.New("score must be within [0, 1]")
	}
	return nil
}

// QueueItem is a valid, unclassified record with the fields the classifier
// asked for. A nil value means the column is NULL for this record.
type QueueItem struct {
	RecordID string             `json:"record_id"`
	Fields   map[string]*string `json:"fields"`
}

// Rejection explains why one submitted result was not stored.
type Rejection struct {
	RecordID string `json:"record_id"`
	Reason   string `json:"reason"`
}

// UpsertSummary reports the outcome of a results submission.
type UpsertSummary struct {
	Accepted int         `json:"accepted"`
	Rejected []Rejection `json:"rejected"`
}
