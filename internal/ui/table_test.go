package ui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"medallion/pkg/models"
)

func TestRenderRunSummary(t *testing.T) {
	var buf bytes.Buffer
	RenderRunSummary(&buf, models.RunSummary{
		RunID:       "run-1",
		Source:      "apex",
		BatchID:     "apex-20251101T063000-abcd1234",
		Duration:    1500 * time.Millisecond,
		Inserted:    3,
		Updated:     1,
		Quarantined: 2,
	})

	out := buf.String()
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "apex")
	assert.Contains(t, out, "Inserted")
	assert.Contains(t, out, "3")
	assert.Contains(t, out, "Quarantined")
	assert.Contains(t, out, "1.5s")
}

func TestRenderQuarantine(t *testing.T) {
	var buf bytes.Buffer
	RenderQuarantine(&buf, []models.QuarantinedRecord{
		{
			RunID:  "run-1",
			Source: "apex",
			Line:   4,
			Column: "quantity",
			Value:  "-2",
			Reason: models.ReasonNonPositiveQuantity,
			Detail: "quantity must be positive",
		},
	})

	out := buf.String()
	assert.Contains(t, out, "non_positive_quantity")
	assert.Contains(t, out, "quantity must be positive")
	assert.Contains(t, out, "1 quarantined record(s)")
}

func TestRenderQuarantineEmpty(t *testing.T) {
	var buf bytes.Buffer
	RenderQuarantine(&buf, nil)
	assert.Contains(t, buf.String(), "No quarantined records.")
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{500 * time.Millisecond, "500ms"},
		{2 * time.Second, "2.0s"},
		{90 * time.Second, "1m30s"},
		{2*time.Hour + 5*time.Minute, "2h5m"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.in))
	}
}
