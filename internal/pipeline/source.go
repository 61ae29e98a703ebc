package pipeline

import (
	"crypto/sha256"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"medallion/internal/common"
	"medallion/pkg/errors"
	"medallion/pkg/models"
)

// NewBatchID generates a batch identifier from the source name and ingestion
// time. The short hash keeps ids unique across rapid re-ingestion.
func NewBatchID(source string, ingestedAt time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", source, ingestedAt.UnixNano())))
	return fmt.Sprintf("%s-%s-%x", source, ingestedAt.Format("20060102T150405"), sum[:4])
}

// ReadCSVBatch reads a batch file into raw records. The header row defines
// the column schema; a file that cannot be opened or parsed is a structural
// failure for the run.
func ReadCSVBatch(path, source string, mode models.LoadMode) (models.Batch, error) {
	cleaned, err := common.CleanPath(path)
	if err != nil {
		return models.Batch{}, errors.StructuralError(errors.ErrCodeBatchUnreadable,
			fmt.Sprintf("invalid batch file path %s", path), err)
	}

	f, err := os.Open(cleaned) // #nosec G304 - path is validated
	if err != nil {
		return models.Batch{}, errors.StructuralError(errors.ErrCodeBatchUnreadable,
			fmt.Sprintf("cannot open batch file %s", path), err).
			WithContext("source", source)
	}
	defer f.Close()

	return readCSV(f, source, mode)
}

func readCSV(r io.Reader, source string, mode models.LoadMode) (models.Batch, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return models.Batch{}, errors.StructuralError(errors.ErrCodeBatchUnreadable,
			"batch file has no header row", err).
			WithContext("source", source)
	}

	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.ToLower(strings.TrimSpace(h))
	}

	ingestedAt := time.Now()
	batch := models.Batch{
		ID:         NewBatchID(source, ingestedAt),
		Source:     source,
		Mode:       mode,
		IngestedAt: ingestedAt,
		Columns:    columns,
	}

	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return models.Batch{}, errors.StructuralError(errors.ErrCodeBatchUnreadable,
				fmt.Sprintf("malformed CSV at line %d", line), err).
				WithContext("source", source)
		}

		values := make(map[string]string, len(columns))
		for i, col := range columns {
			if i < len(row) {
				values[col] = row[i]
			}
		}
		batch.Records = append(batch.Records, models.RawRecord{Values: values, Line: line})
	}

	if len(batch.Records) == 0 {
		return models.Batch{}, errors.StructuralError(errors.ErrCodeBatchEmpty,
			"batch file contains no records", nil).
			WithContext("source", source)
	}

	return batch, nil
}
