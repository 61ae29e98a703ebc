package warehouse

import (
	"context"
	"fmt"
	"time"

	"medallion/pkg/errors"
)

// RowCount returns the current number of rows in a table.
func (s *Service) RowCount(ctx context.Context, table TableRef) (int64, error) {
	if !s.connected {
		return 0, fmt.Errorf("not connected to warehouse")
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", table.FQN())
	var count int64
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, errors.SQLError("Failed to count rows", query, err).
			WithContext("table", table.FQN())
	}
	return count, nil
}

// RowCountAt returns the number of rows in a table as of a past moment,
// using Snowflake time travel.
func (s *Service) RowCountAt(ctx context.Context, table TableRef, at time.Time) (int64, error) {
	if !s.connected {
		return 0, fmt.Errorf("not connected to warehouse")
	}

	query := fmt.Sprintf("SELECT COUNT(*) FROM %s AT(TIMESTAMP => ?::TIMESTAMP_LTZ)", table.FQN())
	var count int64
	if err := s.db.QueryRowContext(ctx, query, at.Format("2006-01-02 15:04:05")).Scan(&count); err != nil {
		return 0, errors.SQLError("Failed to count rows with time travel", query, err).
			WithContext("table", table.FQN()).
			WithSuggestions("Check the table's DATA_RETENTION_TIME_IN_DAYS covers the requested moment")
	}
	return count, nil
}

// ChangeCounts summarizes the change feed of a table since a past moment.
type ChangeCounts struct {
	Inserted int64
	Updated  int64
	Deleted  int64
}

// ChangesSince reads the table's change feed from the given moment and counts
// inserts, updates and deletes. Requires CHANGE_TRACKING on the table.
func (s *Service) ChangesSince(ctx context.Context, table TableRef, since time.Time) (ChangeCounts, error) {
	var counts ChangeCounts
	if !s.connected {
		return counts, fmt.Errorf("not connected to warehouse")
	}

	query := fmt.Sprintf(
		"SELECT METADATA$ACTION, METADATA$ISUPDATE, COUNT(*) FROM %s "+
			"CHANGES(INFORMATION => DEFAULT) AT(TIMESTAMP => ?::TIMESTAMP_LTZ) "+
			"GROUP BY METADATA$ACTION, METADATA$ISUPDATE", table.FQN())

	rows, err := s.db.QueryContext(ctx, query, since.Format("2006-01-02 15:04:05"))
	if err != nil {
		return counts, errors.SQLError("Failed to read change feed", query, err).
			WithContext("table", table.FQN()).
			WithSuggestions("Enable change tracking: ALTER TABLE ... SET CHANGE_TRACKING = TRUE")
	}
	defer rows.Close()

	for rows.Next() {
		var action string
		var isUpdate bool
		var n int64
		if err := rows.Scan(&action, &isUpdate, &n); err != nil {
			return counts, errors.Wrap(err, errors.ErrCodeSQLSyntax, "Failed to scan change feed row")
		}
		switch {
		case isUpdate && action == "INSERT":
			counts.Updated += n
		case action == "INSERT":
			counts.Inserted += n
		case action == "DELETE" && !isUpdate:
			counts.Deleted += n
		}
	}

	return counts, rows.Err()
}
