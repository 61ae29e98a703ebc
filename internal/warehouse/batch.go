package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"medallion/internal/pipeline"
	"medallion/pkg/errors"
	"medallion/pkg/models"
)

// ReadStagingBatch reads a landed batch from a staging table. Column names
// are lowercased so feeds with uppercase headers reconcile the same way as
// CSV batches.
func (s *Service) ReadStagingBatch(ctx context.Context, staging TableRef, source string, mode models.LoadMode) (models.Batch, error) {
	var batch models.Batch
	if !s.connected {
		return batch, fmt.Errorf("not connected to warehouse")
	}

	query := fmt.Sprintf("SELECT * FROM %s", staging.FQN())
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return batch, errors.StructuralError(errors.ErrCodeBatchUnreadable,
			fmt.Sprintf("Failed to read staging table %s", staging.FQN()), err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return batch, errors.StructuralError(errors.ErrCodeBatchUnreadable,
			"Failed to inspect staging table columns", err)
	}

	lowered := make([]string, len(columns))
	for i, col := range columns {
		lowered[i] = strings.ToLower(strings.TrimSpace(col))
	}

	ingestedAt := time.Now().UTC()
	batch = models.Batch{
		Source:     source,
		Mode:       mode,
		IngestedAt: ingestedAt,
		Columns:    lowered,
	}

	line := 1
	for rows.Next() {
		raw := make([]sql.NullString, len(columns))
		dest := make([]interface{}, len(columns))
		for i := range raw {
			dest[i] = &raw[i]
		}

		if err := rows.Scan(dest...); err != nil {
			return batch, errors.StructuralError(errors.ErrCodeBatchUnreadable,
				fmt.Sprintf("Failed to scan staging row %d", line), err)
		}

		values := make(map[string]string, len(columns))
		for i, col := range lowered {
			if raw[i].Valid {
				values[col] = raw[i].String
			}
		}

		batch.Records = append(batch.Records, models.RawRecord{Values: values, Line: line})
		line++
	}
	if err := rows.Err(); err != nil {
		return batch, errors.StructuralError(errors.ErrCodeBatchUnreadable,
			"Failed while reading staging table", err)
	}

	if len(batch.Records) == 0 {
		return batch, errors.StructuralError(errors.ErrCodeBatchEmpty,
			fmt.Sprintf("Staging table %s contains no rows", staging.FQN()), nil)
	}

	batch.ID = pipeline.NewBatchID(source, ingestedAt)
	return batch, nil
}
