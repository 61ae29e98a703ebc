package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medallion/pkg/models"
)

func TestNewSentinelMap(t *testing.T) {
	m := NewSentinelMap([]models.SentinelRule{
		{Column: "unit_price", Values: []string{"unknown", "N/A", " - "}, Default: "0"},
		{Column: "quantity", Values: []string{"unknown"}},
	})

	out, ok := m.apply("unit_price", "UNKNOWN")
	assert.True(t, ok)
	assert.Equal(t, "0", out)

	out, ok = m.apply("unit_price", "n/a")
	assert.True(t, ok)
	assert.Equal(t, "0", out)

	// empty default falls back to zero
	out, ok = m.apply("quantity", "unknown")
	assert.True(t, ok)
	assert.Equal(t, "0", out)

	// non-sentinel values pass through untouched
	out, ok = m.apply("unit_price", "3.50")
	assert.False(t, ok)
	assert.Equal(t, "3.50", out)

	// unmapped columns pass through
	out, ok = m.apply("customer_id", "unknown")
	assert.False(t, ok)
	assert.Equal(t, "unknown", out)
}

func TestValidateRecordTrimsKeyFields(t *testing.T) {
	engine := newTestEngine(t)
	batch := newBatch("apex")

	v := engine.validateRecord(models.RawRecord{
		Line: 2,
		Values: map[string]string{
			models.ColDate:       " 2025-11-01 ",
			models.ColCustomerID: "  C1 ",
			models.ColProductID:  "P1",
			models.ColQuantity:   "5",
		},
	}, batch, "run-1")

	require.Nil(t, v.quarantine)
	assert.Equal(t, "C1", v.record.CustomerID)
	assert.Equal(t, "2025-11-01", v.record.Date.Format(dateLayout))
}

func TestValidateRecordNullLiteralKey(t *testing.T) {
	engine := newTestEngine(t)
	batch := newBatch("apex")

	v := engine.validateRecord(models.RawRecord{
		Line: 3,
		Values: map[string]string{
			models.ColDate:       "2025-11-01",
			models.ColCustomerID: "NULL",
			models.ColProductID:  "P1",
			models.ColQuantity:   "5",
		},
	}, batch, "run-1")

	require.NotNil(t, v.quarantine)
	assert.Equal(t, models.ReasonNullKey, v.quarantine.Reason)
	assert.Equal(t, models.ColCustomerID, v.quarantine.Column)
	assert.Equal(t, 3, v.quarantine.Line)
	assert.Equal(t, "run-1", v.quarantine.RunID)
}

func TestValidateRecordBadPrice(t *testing.T) {
	engine := newTestEngine(t)
	batch := newBatch("apex")

	v := engine.validateRecord(models.RawRecord{
		Line: 2,
		Values: map[string]string{
			models.ColDate:       "2025-11-01",
			models.ColCustomerID: "C1",
			models.ColProductID:  "P1",
			models.ColQuantity:   "5",
			models.ColUnitPrice:  "free",
		},
	}, batch, "run-1")

	require.NotNil(t, v.quarantine)
	assert.Equal(t, models.ReasonBadPrice, v.quarantine.Reason)
}

func TestValidateRecordMissingPriceIsZero(t *testing.T) {
	engine := newTestEngine(t)
	batch := newBatch("apex")

	v := engine.validateRecord(models.RawRecord{
		Line: 2,
		Values: map[string]string{
			models.ColDate:       "2025-11-01",
			models.ColCustomerID: "C1",
			models.ColProductID:  "P1",
			models.ColQuantity:   "5",
		},
	}, batch, "run-1")

	require.Nil(t, v.quarantine)
	assert.True(t, v.record.UnitPrice.IsZero())
}

func TestValidateRecordFractionalQuantity(t *testing.T) {
	engine := newTestEngine(t)
	batch := newBatch("apex")

	v := engine.validateRecord(models.RawRecord{
		Line: 2,
		Values: map[string]string{
			models.ColDate:       "2025-11-01",
			models.ColCustomerID: "C1",
			models.ColProductID:  "P1",
			models.ColQuantity:   "2.5",
		},
	}, batch, "run-1")

	require.NotNil(t, v.quarantine)
	assert.Equal(t, models.ReasonBadQuantity, v.quarantine.Reason)
}
