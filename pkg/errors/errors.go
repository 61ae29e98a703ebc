package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode categorizes errors for reporting and retry decisions.
type ErrorCode string

const (
	// Connection errors (1xxx)
	ErrCodeConnectionFailed     ErrorCode = "MDLN1001"
	ErrCodeConnectionTimeout    ErrorCode = "MDLN1002"
	ErrCodeAuthenticationFailed ErrorCode = "MDLN1003"
	ErrCodeNetworkUnavailable   ErrorCode = "MDLN1004"

	// Configuration errors (2xxx)
	ErrCodeConfigNotFound ErrorCode = "MDLN2001"
	ErrCodeConfigInvalid  ErrorCode = "MDLN2002"
	ErrCodeSourceUnknown  ErrorCode = "MDLN2003"

	// View repository errors (3xxx)
	ErrCodeRepoNotFound     ErrorCode = "MDLN3001"
	ErrCodeRepoAccessDenied ErrorCode = "MDLN3002"
	ErrCodeRepoSyncFailed   ErrorCode = "MDLN3003"

	// SQL execution errors (4xxx)
	ErrCodeSQLSyntax         ErrorCode = "MDLN4001"
	ErrCodeSQLPermission     ErrorCode = "MDLN4002"
	ErrCodeSQLTimeout        ErrorCode = "MDLN4003"
	ErrCodeSQLTransaction    ErrorCode = "MDLN4004"
	ErrCodeSQLObjectNotFound ErrorCode = "MDLN4005"
	ErrCodeMergeFailed       ErrorCode = "MDLN4006"
	ErrCodeStagingFailed     ErrorCode = "MDLN4007"

	// File system errors (5xxx)
	ErrCodeFileNotFound   ErrorCode = "MDLN5001"
	ErrCodeFilePermission ErrorCode = "MDLN5002"

	// Batch errors (6xxx). Structural problems with a batch are fatal for the
	// run; per-record problems are quarantined, not raised as errors.
	ErrCodeBatchUnreadable   ErrorCode = "MDLN6001"
	ErrCodeBatchSchema       ErrorCode = "MDLN6002"
	ErrCodeBatchEmpty        ErrorCode = "MDLN6003"
	ErrCodeRunInProgress     ErrorCode = "MDLN6004"
	ErrCodeValidationFailed  ErrorCode = "MDLN6005"
	ErrCodeRunCancelled      ErrorCode = "MDLN6006"

	// Security errors (7xxx)
	ErrCodeCredentialStore  ErrorCode = "MDLN7001"
	ErrCodeEncryptionFailed ErrorCode = "MDLN7002"

	// System errors (9xxx)
	ErrCodeInternal           ErrorCode = "MDLN9001"
	ErrCodeTimeout            ErrorCode = "MDLN9002"
	ErrCodeResourceExhausted  ErrorCode = "MDLN9003"
	ErrCodeServiceUnavailable ErrorCode = "MDLN9004"
)

// ErrorSeverity is the severity level of an error.
type ErrorSeverity string

const (
	SeverityCritical ErrorSeverity = "CRITICAL"
	SeverityError    ErrorSeverity = "ERROR"
	SeverityWarning  ErrorSeverity = "WARNING"
	SeverityInfo     ErrorSeverity = "INFO"
)

// AppError is a structured application error with context and suggestions.
type AppError struct {
	Code        ErrorCode
	Message     string
	Severity    ErrorSeverity
	Context     map[string]interface{}
	Cause       error
	Stack       string
	Timestamp   time.Time
	Recoverable bool
	Suggestions []string
}

func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[%s] %s: %s", e.Code, e.Severity, e.Message))

	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\nCaused by: %v", e.Cause))
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\nSuggestions:")
		for i, s := range e.Suggestions {
			b.WriteString(fmt.Sprintf("\n  %d. %s", i+1, s))
		}
	}

	return b.String()
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches errors by code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Severity:  SeverityError,
		Context:   make(map[string]interface{}),
		Stack:     captureStack(),
		Timestamp: time.Now(),
	}
}

// Wrap wraps an existing error. Context from a wrapped AppError is inherited.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}

	appErr := New(code, message)
	appErr.Cause = err

	if ae, ok := err.(*AppError); ok {
		for k, v := range ae.Context {
			appErr.Context[k] = v
		}
	}

	return appErr
}

// WithContext adds a key/value pair to the error context.
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSeverity sets the error severity.
func (e *AppError) WithSeverity(severity ErrorSeverity) *AppError {
	e.Severity = severity
	return e
}

// WithSuggestions adds recovery suggestions.
func (e *AppError) WithSuggestions(suggestions ...string) *AppError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// AsRecoverable marks the error as retryable.
func (e *AppError) AsRecoverable() *AppError {
	e.Recoverable = true
	return e
}

func captureStack() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var b strings.Builder
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			b.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}

	return b.String()
}

// Common constructors

// ConnectionError creates a warehouse connection error.
func ConnectionError(message string, cause error) *AppError {
	return Wrap(cause, ErrCodeConnectionFailed, message).
		WithSuggestions(
			"Check your network connection",
			"Verify the Snowflake account endpoint is reachable",
			"Check firewall and proxy settings",
		)
}

// ConfigError creates a configuration error for a specific field.
func ConfigError(message string, field string) *AppError {
	return New(ErrCodeConfigInvalid, message).
		WithContext("field", field).
		WithSuggestions(
			fmt.Sprintf("Check the '%s' configuration value", field),
			"Run 'medallion setup' to reconfigure",
		)
}

// SQLError creates an SQL execution error, refining the code from the
// underlying driver message where possible.
func SQLError(message string, query string, cause error) *AppError {
	err := Wrap(cause, ErrCodeSQLSyntax, message).
		WithContext("query", truncateString(query, 200))

	if cause != nil {
		errStr := cause.Error()
		if strings.Contains(errStr, "permission") || strings.Contains(errStr, "access denied") {
			err.Code = ErrCodeSQLPermission
			_ = err.WithSuggestions(
				"Verify the role has the required privileges",
				"Check grants on the target database and schema",
			)
		} else if strings.Contains(errStr, "timeout") {
			err.Code = ErrCodeSQLTimeout
			_ = err.WithSuggestions(
				"Increase the query timeout setting",
				"Check the warehouse size",
			)
		}
	}

	return err
}

// StructuralError creates a fatal batch error. Runs failing structurally must
// not partially commit.
func StructuralError(code ErrorCode, message string, cause error) *AppError {
	e := Wrap(cause, code, message)
	if e == nil {
		e = New(code, message)
	}
	return e.WithSeverity(SeverityCritical).
		WithSuggestions(
			"Verify the batch file or staging table matches the expected schema",
			"No changes were committed for this run",
		)
}

// IsRecoverable reports whether an error is retryable.
func IsRecoverable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Recoverable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
