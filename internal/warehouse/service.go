// Package warehouse wraps the Snowflake connection used for staging, merging
// and querying the unified sales tables. Versioning, time travel and the
// change data feed are platform features; this package only issues the SQL.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/snowflakedb/gosnowflake"

	"medallion/pkg/errors"
)

// TableRef names a table with its full catalog path. Every service call takes
// an explicit ref; there is no ambient database or schema state.
type TableRef struct {
	Database string
	Schema   string
	Table    string
}

// FQN returns the fully qualified table name.
func (r TableRef) FQN() string {
	return fmt.Sprintf("%s.%s.%s", r.Database, r.Schema, r.Table)
}

// Config holds Snowflake connection configuration.
type Config struct {
	Account   string
	Username  string
	Password  string
	Database  string
	Schema    string
	Warehouse string
	Role      string
	Timeout   time.Duration
}

// ValidateConfig checks the fields a connection cannot do without.
func ValidateConfig(config Config) error {
	if config.Account == "" {
		return fmt.Errorf("account is required")
	}
	if config.Username == "" {
		return fmt.Errorf("username is required")
	}
	if config.Password == "" {
		return fmt.Errorf("password is required")
	}
	if config.Warehouse == "" {
		return fmt.Errorf("warehouse is required")
	}
	if config.Role == "" {
		return fmt.Errorf("role is required")
	}
	return nil
}

// Service provides Snowflake database operations.
type Service struct {
	db             *sql.DB
	config         Config
	connected      bool
	errorHandler   *errors.ErrorHandler
	circuitBreaker *errors.CircuitBreaker
}

// NewService creates a new warehouse service.
func NewService(config Config) *Service {
	return &Service{
		config:         config,
		errorHandler:   errors.GetGlobalErrorHandler(),
		circuitBreaker: errors.NewCircuitBreaker("warehouse", 5, 30*time.Second),
	}
}

// Connect establishes the connection, retrying transient failures behind a
// circuit breaker.
func (s *Service) Connect() error {
	if s.connected {
		return nil
	}

	return s.circuitBreaker.Execute(context.Background(), func() error {
		return errors.RetryWithBackoff(context.Background(), func(ctx context.Context) error {
			dsn := fmt.Sprintf("%s:%s@%s/%s/%s?warehouse=%s&role=%s",
				s.config.Username,
				s.config.Password,
				s.config.Account,
				s.config.Database,
				s.config.Schema,
				s.config.Warehouse,
				s.config.Role,
			)

			db, err := sql.Open("snowflake", dsn)
			if err != nil {
				return errors.ConnectionError("Failed to open Snowflake connection", err).
					WithContext("account", s.config.Account).
					WithContext("warehouse", s.config.Warehouse)
			}

			db.SetMaxOpenConns(10)
			db.SetMaxIdleConns(5)
			db.SetConnMaxLifetime(10 * time.Minute)

			connCtx, cancel := s.getContext()
			defer cancel()

			if err := db.PingContext(connCtx); err != nil {
				db.Close()

				if strings.Contains(err.Error(), "authentication") {
					return errors.New(errors.ErrCodeAuthenticationFailed, "Authentication failed").
						WithContext("user", s.config.Username).
						WithSuggestions(
							"Verify your username and password",
							"Check if your account is locked",
						)
				}

				return errors.ConnectionError("Failed to connect to Snowflake", err).
					WithContext("account", s.config.Account).
					AsRecoverable()
			}

			s.db = db
			s.connected = true
			return nil
		})
	})
}

// Close closes the database connection.
func (s *Service) Close() error {
	if !s.connected {
		return nil
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}

	s.connected = false
	return nil
}

// TestConnection connects if needed and pings the warehouse.
func (s *Service) TestConnection() error {
	if !s.connected {
		if err := s.Connect(); err != nil {
			return err
		}
	}

	ctx, cancel := s.getContext()
	defer cancel()

	return s.db.PingContext(ctx)
}

// ExecuteSQL executes one or more statements in a single transaction against
// the given database and schema.
func (s *Service) ExecuteSQL(sqlText, database, schema string) error {
	if !s.connected {
		return errors.New(errors.ErrCodeConnectionFailed, "Not connected to warehouse").
			WithSuggestions("Call Connect() before executing SQL")
	}

	ctx, cancel := s.getContext()
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSQLTransaction, "Failed to begin transaction")
	}

	txHandler := s.errorHandler.NewTransactionHandler(tx.Rollback)

	return txHandler.Execute(func() error {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("USE DATABASE %s", database)); err != nil {
			return errors.SQLError(
				fmt.Sprintf("Failed to use database %s", database),
				fmt.Sprintf("USE DATABASE %s", database), err,
			).WithContext("database", database)
		}

		if _, err := tx.ExecContext(ctx, fmt.Sprintf("USE SCHEMA %s", schema)); err != nil {
			return errors.SQLError(
				fmt.Sprintf("Failed to use schema %s", schema),
				fmt.Sprintf("USE SCHEMA %s", schema), err,
			).WithContext("schema", schema)
		}

		statements := splitStatements(sqlText)

		for i, stmt := range statements {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}

			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				sqlErr := errors.SQLError(
					fmt.Sprintf("Failed to execute statement %d", i+1), stmt, err).
					WithContext("statement_index", i+1).
					WithContext("total_statements", len(statements))

				if strings.Contains(err.Error(), "does not exist") || strings.Contains(err.Error(), "not found") {
					sqlErr.Code = errors.ErrCodeSQLObjectNotFound
					sqlErr.WithSuggestions(
						"Verify the object exists in the target database/schema",
						"Check for typos in object names",
					)
				}

				return sqlErr
			}
		}

		if err := tx.Commit(); err != nil {
			return errors.Wrap(err, errors.ErrCodeSQLTransaction, "Failed to commit transaction")
		}

		return nil
	})
}

// ExecuteFile executes SQL statements from a file.
func (s *Service) ExecuteFile(path, database, schema string) error {
	if !s.connected {
		return fmt.Errorf("not connected to warehouse")
	}

	content, err := os.ReadFile(path) // #nosec G304 - path is validated by the caller
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", path, err)
	}

	return s.ExecuteSQL(string(content), database, schema)
}

// ExecuteDirectory executes the SQL files in a directory, in name order, so
// view definitions deploy deterministically.
func (s *Service) ExecuteDirectory(dir, database, schema, pattern string) error {
	if !s.connected {
		return fmt.Errorf("not connected to warehouse")
	}

	if pattern == "" {
		pattern = "*.sql"
	}

	files, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return fmt.Errorf("failed to list files: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		if err := s.ExecuteFile(file, database, schema); err != nil {
			return fmt.Errorf("failed to execute %s: %w", file, err)
		}
	}

	return nil
}

// Query runs a query and returns the rows.
func (s *Service) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if !s.connected {
		return nil, fmt.Errorf("not connected to warehouse")
	}
	return s.db.QueryContext(ctx, query, args...)
}

func (s *Service) getContext() (context.Context, context.CancelFunc) {
	timeout := s.config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}

// splitStatements splits SQL on semicolons outside string literals.
func splitStatements(sqlText string) []string {
	var statements []string
	var current strings.Builder
	inString := false
	stringChar := rune(0)

	for i, char := range sqlText {
		if !inString {
			if char == '\'' || char == '"' {
				inString = true
				stringChar = char
			} else if char == ';' {
				if i == 0 || sqlText[i-1] != '\\' {
					statements = append(statements, current.String())
					current.Reset()
					continue
				}
			}
		} else {
			if char == stringChar && (i == 0 || sqlText[i-1] != '\\') {
				inString = false
			}
		}
		current.WriteRune(char)
	}

	if current.Len() > 0 {
		statements = append(statements, current.String())
	}

	return statements
}
