package warehouse

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "medallion/pkg/errors"
	"medallion/pkg/models"
)

var stagingRef = TableRef{Database: "ANALYTICS", Schema: "GOLD", Table: "STG_APEX_SALES"}

func TestReadStagingBatch(t *testing.T) {
	service, mock := newMockService(t)

	rows := sqlmock.NewRows([]string{"DATE", "CUSTOMER_ID", "PRODUCT_ID", "QUANTITY", "UNIT_PRICE"}).
		AddRow("2025-11-01", "C1", "P1", "5", "9.99").
		AddRow("2025-11-02", "C2", "P2", "3", nil)

	mock.ExpectQuery(`SELECT \* FROM ANALYTICS\.GOLD\.STG_APEX_SALES`).WillReturnRows(rows)

	batch, err := service.ReadStagingBatch(context.Background(), stagingRef, "apex", models.LoadModeIncremental)
	require.NoError(t, err)

	assert.Equal(t, "apex", batch.Source)
	assert.Equal(t, []string{"date", "customer_id", "product_id", "quantity", "unit_price"}, batch.Columns)
	require.Len(t, batch.Records, 2)

	assert.Equal(t, "C1", batch.Records[0].Values["customer_id"])
	assert.Equal(t, 1, batch.Records[0].Line)

	// NULL columns are simply absent from the record.
	_, present := batch.Records[1].Values["unit_price"]
	assert.False(t, present)

	assert.NotEmpty(t, batch.ID)
}

func TestReadStagingBatchEmpty(t *testing.T) {
	service, mock := newMockService(t)

	mock.ExpectQuery(`SELECT \* FROM ANALYTICS\.GOLD\.STG_APEX_SALES`).
		WillReturnRows(sqlmock.NewRows([]string{"DATE", "CUSTOMER_ID"}))

	_, err := service.ReadStagingBatch(context.Background(), stagingRef, "apex", models.LoadModeIncremental)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeBatchEmpty, apperrors.GetErrorCode(err))
}

func TestReadStagingBatchQueryFailure(t *testing.T) {
	service, mock := newMockService(t)

	mock.ExpectQuery(`SELECT \* FROM ANALYTICS\.GOLD\.STG_APEX_SALES`).
		WillReturnError(assert.AnError)

	_, err := service.ReadStagingBatch(context.Background(), stagingRef, "apex", models.LoadModeIncremental)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeBatchUnreadable, apperrors.GetErrorCode(err))
}
