package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestImportStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to ImportStatus
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusError, true},
		{StatusPending, StatusProcessed, false},
		{StatusProcessing, StatusProcessed, true},
		{StatusProcessing, StatusError, true},
		{StatusProcessing, StatusPending, false},
		{StatusProcessed, StatusError, false},
		{StatusError, StatusProcessing, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
	assert.True(t, StatusProcessed.Terminal())
	assert.True(t, StatusError.Terminal())
	assert.False(t, StatusPending.Terminal())
}

func TestStatusSets(t *testing.T) {
	assert.Equal(t, []ImportStatus{StatusPending, StatusProcessing}, ActiveStatuses())
	assert.Equal(t, []ImportStatus{StatusPending}, SourcesOf(StatusProcessing))
	assert.Equal(t, []ImportStatus{StatusProcessing}, SourcesOf(StatusProcessed))
	assert.Equal(t, []ImportStatus{StatusPending, StatusProcessing}, SourcesOf(StatusError))
	assert.Empty(t, SourcesOf(StatusPending))
}

func TestClassificationResultValidate(t *testing.T) {
	ok := ClassificationResult{RecordID: "r1", Status: "accident", Score: 0.7}
	assert.NoError(t, ok.Validate())

	for name, r := range map[string]ClassificationResult{
		"missing id":     {Status: "x", Score: 0.5},
		"missing status": {RecordID: "r1", Score: 0.5},
		"negative score": {RecordID: "r1", Status: "x", Score: -0.1},
		"score above 1":  {RecordID: "r1", Status: "x", Score: 1.01},
		"nan score":      {RecordID: "r1", Status: "x", Score: math.NaN()},
	} {
		assert.Error(t, r.Validate(), name)
	}

	edge := ClassificationResult{RecordID: "r1", Status: "x", Score: 1}
	assert.NoError(t, edge.Validate())
}
