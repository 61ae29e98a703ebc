package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "medallion/pkg/errors"
	"medallion/pkg/models"
)

func TestReadCSVBatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apex.csv")
	content := strings.Join([]string{
		"date,customer_id,product_id,quantity,unit_price",
		"2025-11-01,C1,P1,5,9.99",
		"2025-11-02,C2,P2,3,4.50",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	batch, err := ReadCSVBatch(path, "apex", models.LoadModeIncremental)
	require.NoError(t, err)

	assert.Equal(t, "apex", batch.Source)
	assert.Equal(t, models.LoadModeIncremental, batch.Mode)
	assert.Equal(t, []string{"date", "customer_id", "product_id", "quantity", "unit_price"}, batch.Columns)
	require.Len(t, batch.Records, 2)

	assert.Equal(t, "2025-11-01", batch.Records[0].Values["date"])
	assert.Equal(t, "C1", batch.Records[0].Values["customer_id"])
	assert.Equal(t, 2, batch.Records[0].Line)
	assert.Equal(t, 3, batch.Records[1].Line)
	assert.NotEmpty(t, batch.ID)
}

func TestReadCSVBatchNormalizesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.csv")
	content := "Date, Customer_ID ,PRODUCT_ID,Quantity,Unit_Price\n2025-11-01,C1,P1,5,1.00\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	batch, err := ReadCSVBatch(path, "apex", models.LoadModeFull)
	require.NoError(t, err)
	assert.Equal(t, []string{"date", "customer_id", "product_id", "quantity", "unit_price"}, batch.Columns)
	assert.Equal(t, models.LoadModeFull, batch.Mode)
}

func TestReadCSVBatchMissingFile(t *testing.T) {
	_, err := ReadCSVBatch(filepath.Join(t.TempDir(), "absent.csv"), "apex", models.LoadModeIncremental)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeBatchUnreadable, apperrors.GetErrorCode(err))
}

func TestReadCSVBatchEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(path, []byte("date,customer_id,product_id,quantity\n"), 0644))

	_, err := ReadCSVBatch(path, "apex", models.LoadModeIncremental)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeBatchEmpty, apperrors.GetErrorCode(err))
}

func TestReadCSVBatchMalformedRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	content := "date,customer_id,product_id,quantity\n2025-11-01,C1,P1,5\n\"unterminated\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := ReadCSVBatch(path, "apex", models.LoadModeIncremental)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeBatchUnreadable, apperrors.GetErrorCode(err))
}

func TestNewBatchID(t *testing.T) {
	at := time.Date(2025, 11, 1, 6, 30, 0, 0, time.UTC)
	id := NewBatchID("apex", at)

	assert.Contains(t, id, "apex-20251101T063000-")
	assert.Equal(t, id, NewBatchID("apex", at), "same inputs produce the same id")
	assert.NotEqual(t, id, NewBatchID("borealis", at))
}
