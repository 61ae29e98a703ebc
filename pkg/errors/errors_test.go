package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeBatchSchema, "missing required column")

	assert.Equal(t, ErrCodeBatchSchema, err.Code)
	assert.Equal(t, "missing required column", err.Message)
	assert.Equal(t, SeverityError, err.Severity)
	assert.False(t, err.Recoverable)
	assert.NotNil(t, err.Context)
}

func TestWrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, ErrCodeConnectionFailed, "failed to reach warehouse")

	assert.Equal(t, ErrCodeConnectionFailed, err.Code)
	assert.Equal(t, cause, err.Unwrap())

	// Context is inherited when wrapping an AppError
	inner := New(ErrCodeSQLTimeout, "query timed out").WithContext("table", "FACT_SALES")
	outer := Wrap(inner, ErrCodeMergeFailed, "merge failed")
	assert.Equal(t, "FACT_SALES", outer.Context["table"])
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "ignored"))
}

func TestErrorString(t *testing.T) {
	err := New(ErrCodeBatchUnreadable, "cannot read batch file").
		WithSuggestions("Check the file path", "Verify file permissions")

	msg := err.Error()
	assert.Contains(t, msg, "MDLN6001")
	assert.Contains(t, msg, "cannot read batch file")
	assert.Contains(t, msg, "1. Check the file path")
	assert.Contains(t, msg, "2. Verify file permissions")
}

func TestIsMatchesByCode(t *testing.T) {
	err := New(ErrCodeRunInProgress, "another reconciliation is running")
	target := New(ErrCodeRunInProgress, "different message")

	assert.True(t, errors.Is(err, target))
	assert.False(t, errors.Is(err, New(ErrCodeInternal, "x")))
}

func TestIsRecoverable(t *testing.T) {
	assert.False(t, IsRecoverable(New(ErrCodeBatchSchema, "fatal")))
	assert.True(t, IsRecoverable(New(ErrCodeConnectionFailed, "transient").AsRecoverable()))
	assert.False(t, IsRecoverable(errors.New("plain error")))
}

func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, ErrCodeSQLPermission, GetErrorCode(New(ErrCodeSQLPermission, "denied")))
	assert.Equal(t, ErrCodeInternal, GetErrorCode(errors.New("plain")))

	wrapped := fmt.Errorf("outer: %w", New(ErrCodeStagingFailed, "staging"))
	assert.Equal(t, ErrCodeStagingFailed, GetErrorCode(wrapped))
}

func TestSQLErrorRefinesCode(t *testing.T) {
	err := SQLError("statement failed", "MERGE INTO FACT_SALES", errors.New("access denied to object"))
	assert.Equal(t, ErrCodeSQLPermission, err.Code)

	err = SQLError("statement failed", "SELECT 1", errors.New("query timeout exceeded"))
	assert.Equal(t, ErrCodeSQLTimeout, err.Code)
}

func TestStructuralErrorIsCritical(t *testing.T) {
	err := StructuralError(ErrCodeBatchSchema, "missing column quantity", nil)
	assert.Equal(t, SeverityCritical, err.Severity)
	assert.False(t, err.Recoverable)
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	config := &RetryConfig{
		MaxRetries:     3,
		InitialDelay:   time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		Multiplier:     2.0,
		RetryableError: func(error) bool { return true },
	}

	attempts := 0
	err := Retry(context.Background(), config, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return New(ErrCodeConnectionTimeout, "timeout").AsRecoverable()
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), DefaultRetryConfig(), func(ctx context.Context) error {
		attempts++
		return StructuralError(ErrCodeBatchSchema, "schema mismatch", nil)
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, ErrCodeBatchSchema, GetErrorCode(err))
}

func TestRetryExhaustsAttempts(t *testing.T) {
	config := &RetryConfig{
		MaxRetries:     2,
		InitialDelay:   time.Millisecond,
		MaxDelay:       2 * time.Millisecond,
		Multiplier:     1.0,
		RetryableError: func(error) bool { return true },
	}

	attempts := 0
	err := Retry(context.Background(), config, func(ctx context.Context) error {
		attempts++
		return New(ErrCodeServiceUnavailable, "down").AsRecoverable()
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, ErrCodeResourceExhausted, GetErrorCode(err))
}

func TestCircuitBreakerOpensAfterFailures(t *testing.T) {
	cb := NewCircuitBreaker("warehouse", 2, time.Minute)
	fail := func() error { return New(ErrCodeConnectionFailed, "down") }

	for i := 0; i < 2; i++ {
		_ = cb.Execute(context.Background(), fail)
	}
	assert.Equal(t, "open", cb.State())

	err := cb.Execute(context.Background(), func() error { return nil })
	require.Error(t, err)
	assert.Equal(t, ErrCodeServiceUnavailable, GetErrorCode(err))
}

func TestCircuitBreakerRecovers(t *testing.T) {
	cb := NewCircuitBreaker("warehouse", 1, 10*time.Millisecond)
	_ = cb.Execute(context.Background(), func() error { return New(ErrCodeConnectionFailed, "down") })
	assert.Equal(t, "open", cb.State())

	time.Sleep(20 * time.Millisecond)

	err := cb.Execute(context.Background(), func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, "closed", cb.State())
}

func TestTransactionHandlerRollsBackOnError(t *testing.T) {
	handler := &ErrorHandler{logWriter: io.Discard, config: ErrorHandlerConfig{MaxLogEntries: 10}}

	rolledBack := false
	th := handler.NewTransactionHandler(func() error {
		rolledBack = true
		return nil
	})

	err := th.Execute(func() error { return New(ErrCodeMergeFailed, "merge failed") })
	require.Error(t, err)
	assert.True(t, rolledBack)
}

func TestTransactionHandlerCommits(t *testing.T) {
	handler := &ErrorHandler{logWriter: io.Discard, config: ErrorHandlerConfig{MaxLogEntries: 10}}

	rolledBack := false
	th := handler.NewTransactionHandler(func() error {
		rolledBack = true
		return nil
	})

	err := th.Execute(func() error { return nil })
	require.NoError(t, err)
	assert.False(t, rolledBack)
}
