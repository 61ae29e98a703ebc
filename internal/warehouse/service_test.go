package warehouse

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "medallion/pkg/errors"
)

func TestTableRefFQN(t *testing.T) {
	ref := TableRef{Database: "ANALYTICS", Schema: "GOLD", Table: "FACT_SALES"}
	assert.Equal(t, "ANALYTICS.GOLD.FACT_SALES", ref.FQN())
}

func TestValidateConfig(t *testing.T) {
	valid := Config{
		Account:   "xy12345",
		Username:  "loader",
		Password:  "secret",
		Warehouse: "LOAD_WH",
		Role:      "LOADER",
	}
	assert.NoError(t, ValidateConfig(valid))

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing account", func(c *Config) { c.Account = "" }},
		{"missing username", func(c *Config) { c.Username = "" }},
		{"missing password", func(c *Config) { c.Password = "" }},
		{"missing warehouse", func(c *Config) { c.Warehouse = "" }},
		{"missing role", func(c *Config) { c.Role = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid
			tt.mutate(&config)
			assert.Error(t, ValidateConfig(config))
		})
	}
}

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int
	}{
		{"single statement", "SELECT 1", 1},
		{"two statements", "SELECT 1; SELECT 2", 2},
		{"semicolon inside string", "SELECT 'a;b'; SELECT 2", 2},
		{"trailing semicolon", "SELECT 1;", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := splitStatements(tt.input)
			var nonEmpty int
			for _, p := range parts {
				if len(p) > 0 && p != " " {
					nonEmpty++
				}
			}
			assert.Equal(t, tt.want, nonEmpty)
		})
	}
}

func TestExecuteSQL(t *testing.T) {
	service, mock := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectExec("USE DATABASE ANALYTICS").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("USE SCHEMA GOLD").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE VIEW V_SALES AS SELECT 1").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("GRANT SELECT ON V_SALES TO ROLE ANALYST").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := service.ExecuteSQL(
		"CREATE VIEW V_SALES AS SELECT 1;\nGRANT SELECT ON V_SALES TO ROLE ANALYST",
		"ANALYTICS", "GOLD")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteSQLRollsBackOnFailure(t *testing.T) {
	service, mock := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectExec("USE DATABASE ANALYTICS").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("USE SCHEMA GOLD").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SELECT \\* FROM MISSING").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := service.ExecuteSQL("SELECT * FROM MISSING", "ANALYTICS", "GOLD")
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteSQLNotConnected(t *testing.T) {
	service := &Service{}
	err := service.ExecuteSQL("SELECT 1", "DB", "SCHEMA")
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeConnectionFailed, apperrors.GetErrorCode(err))
}

func TestExecuteDirectoryOrdersFiles(t *testing.T) {
	service, mock := newMockService(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "02_grants.sql"), []byte("GRANT B"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "01_views.sql"), []byte("CREATE A"), 0644))

	for _, stmt := range []string{"CREATE A", "GRANT B"} {
		mock.ExpectBegin()
		mock.ExpectExec("USE DATABASE ANALYTICS").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec("USE SCHEMA GOLD").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(stmt).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()
	}

	require.NoError(t, service.ExecuteDirectory(dir, "ANALYTICS", "GOLD", ""))
	assert.NoError(t, mock.ExpectationsWereMet())
}
