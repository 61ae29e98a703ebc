package warehouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"medallion/pkg/errors"
	"medallion/pkg/models"
)

// factColumns is the column order used for staging and merging. Key columns
// first, matching the reconciliation key.
var factColumns = []string{
	models.ColDate, models.ColCustomerID, models.ColProductID, models.ColSource,
	models.ColQuantity, models.ColUnitPrice,
	"granularity", "customer_key", "product_key", "batch_id",
}

// factKeyColumns is the natural key the MERGE joins on.
var factKeyColumns = []string{
	models.ColDate, models.ColCustomerID, models.ColProductID, models.ColSource,
}

// MergeBuilder renders the MERGE statement that upserts staged records into
// the fact table. The staged subquery uses SELECT DISTINCT as a guardrail
// against duplicate staged rows.
type MergeBuilder struct {
	Target  TableRef
	Staging string
}

// Render produces the MERGE INTO statement.
func (b *MergeBuilder) Render() string {
	on := make([]string, 0, len(factKeyColumns))
	for _, col := range factKeyColumns {
		on = append(on, fmt.Sprintf("dst.%s = src.%s", col, col))
	}

	keySet := make(map[string]bool, len(factKeyColumns))
	for _, col := range factKeyColumns {
		keySet[col] = true
	}

	var updates []string
	for _, col := range factColumns {
		if keySet[col] {
			continue
		}
		updates = append(updates, fmt.Sprintf("dst.%s = src.%s", col, col))
	}

	insertCols := strings.Join(factColumns, ", ")
	var insertVals []string
	for _, col := range factColumns {
		insertVals = append(insertVals, "src."+col)
	}

	return fmt.Sprintf(
		"MERGE INTO %s AS dst USING (SELECT DISTINCT %s FROM %s) AS src ON %s "+
			"WHEN MATCHED THEN UPDATE SET %s "+
			"WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s)",
		b.Target.FQN(),
		insertCols,
		b.Staging,
		strings.Join(on, " AND "),
		strings.Join(updates, ", "),
		insertCols,
		strings.Join(insertVals, ", "),
	)
}

// EnsureTables creates the fact and quarantine tables if they do not exist.
func (s *Service) EnsureTables(ctx context.Context, fact, quarantine TableRef) error {
	if !s.connected {
		return fmt.Errorf("not connected to warehouse")
	}

	factDDL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		date DATE NOT NULL,
		customer_id VARCHAR NOT NULL,
		product_id VARCHAR NOT NULL,
		source VARCHAR NOT NULL,
		quantity NUMBER NOT NULL,
		unit_price NUMBER(18,4) NOT NULL,
		granularity VARCHAR NOT NULL,
		customer_key VARCHAR(64) NOT NULL,
		product_key VARCHAR(64) NOT NULL,
		batch_id VARCHAR NOT NULL
	)`, fact.FQN())

	quarantineDDL := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		run_id VARCHAR NOT NULL,
		source VARCHAR NOT NULL,
		line NUMBER NOT NULL,
		column_name VARCHAR NOT NULL,
		value VARCHAR,
		reason VARCHAR NOT NULL,
		detail VARCHAR,
		quarantined_at TIMESTAMP_NTZ DEFAULT CURRENT_TIMESTAMP()
	)`, quarantine.FQN())

	for _, ddl := range []string{factDDL, quarantineDDL} {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return errors.SQLError("Failed to create table", ddl, err)
		}
	}
	return nil
}

// LoadFacts reads the current base dataset for one source from the fact
// table. The base is read-only input to the reconciliation engine.
func (s *Service) LoadFacts(ctx context.Context, fact TableRef, source string) ([]models.FactRecord, error) {
	if !s.connected {
		return nil, fmt.Errorf("not connected to warehouse")
	}

	query := fmt.Sprintf(
		"SELECT date, customer_id, product_id, source, quantity, unit_price, granularity, customer_key, product_key, batch_id "+
			"FROM %s WHERE source = ? ORDER BY date, customer_id, product_id", fact.FQN())

	rows, err := s.db.QueryContext(ctx, query, source)
	if err != nil {
		return nil, errors.SQLError("Failed to load base dataset", query, err).
			WithContext("table", fact.FQN())
	}
	defer rows.Close()

	var records []models.FactRecord
	for rows.Next() {
		var rec models.FactRecord
		var price string
		var gran string
		if err := rows.Scan(&rec.Date, &rec.CustomerID, &rec.ProductID, &rec.Source,
			&rec.Quantity, &price, &gran, &rec.CustomerKey, &rec.ProductKey, &rec.BatchID); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSQLSyntax, "Failed to scan fact row")
		}
		rec.UnitPrice, err = decimal.NewFromString(price)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSQLSyntax, "Invalid unit_price in fact table")
		}
		rec.Granularity = models.Granularity(gran)
		records = append(records, rec)
	}

	return records, rows.Err()
}

// CommitRun applies one reconciliation result atomically: staged insert,
// MERGE into the fact table, and the quarantine append all commit together
// or not at all.
func (s *Service) CommitRun(ctx context.Context, fact, quarantine TableRef, records []models.FactRecord, quarantined []models.QuarantinedRecord) error {
	if !s.connected {
		return fmt.Errorf("not connected to warehouse")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSQLTransaction, "Failed to begin merge transaction")
	}

	txHandler := s.errorHandler.NewTransactionHandler(tx.Rollback)

	return txHandler.Execute(func() error {
		staging := fmt.Sprintf("%s.%s.STG_%s_%d", fact.Database, fact.Schema, fact.Table, time.Now().UnixNano())

		createStaging := fmt.Sprintf("CREATE TEMPORARY TABLE %s LIKE %s", staging, fact.FQN())
		if _, err := tx.ExecContext(ctx, createStaging); err != nil {
			return errors.Wrap(err, errors.ErrCodeStagingFailed, "Failed to create staging table").
				WithContext("staging", staging)
		}

		insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			staging, strings.Join(factColumns, ", "))
		for _, rec := range records {
			if _, err := tx.ExecContext(ctx, insert,
				rec.Date.Format("2006-01-02"), rec.CustomerID, rec.ProductID, rec.Source,
				rec.Quantity, rec.UnitPrice.String(), string(rec.Granularity),
				rec.CustomerKey, rec.ProductKey, rec.BatchID,
			); err != nil {
				return errors.Wrap(err, errors.ErrCodeStagingFailed, "Failed to stage record").
					WithContext("staging", staging)
			}
		}

		builder := &MergeBuilder{Target: fact, Staging: staging}
		mergeSQL := builder.Render()
		if _, err := tx.ExecContext(ctx, mergeSQL); err != nil {
			return errors.Wrap(err, errors.ErrCodeMergeFailed, "Merge into fact table failed").
				WithContext("table", fact.FQN()).
				WithContext("query", mergeSQL[:min(len(mergeSQL), 200)])
		}

		insertQuarantine := fmt.Sprintf(
			"INSERT INTO %s (run_id, source, line, column_name, value, reason, detail) VALUES (?, ?, ?, ?, ?, ?, ?)",
			quarantine.FQN())
		for _, q := range quarantined {
			if _, err := tx.ExecContext(ctx, insertQuarantine,
				q.RunID, q.Source, q.Line, q.Column, q.Value, string(q.Reason), q.Detail,
			); err != nil {
				return errors.Wrap(err, errors.ErrCodeStagingFailed, "Failed to record quarantined row").
					WithContext("table", quarantine.FQN())
			}
		}

		if err := tx.Commit(); err != nil {
			return errors.Wrap(err, errors.ErrCodeSQLTransaction, "Failed to commit merge transaction")
		}

		return nil
	})
}

// LoadQuarantine reads quarantined rows, optionally filtered by run id.
func (s *Service) LoadQuarantine(ctx context.Context, quarantine TableRef, runID string) ([]models.QuarantinedRecord, error) {
	if !s.connected {
		return nil, fmt.Errorf("not connected to warehouse")
	}

	query := fmt.Sprintf(
		"SELECT run_id, source, line, column_name, value, reason, detail FROM %s", quarantine.FQN())
	args := []interface{}{}
	if runID != "" {
		query += " WHERE run_id = ?"
		args = append(args, runID)
	}
	query += " ORDER BY run_id, line"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.SQLError("Failed to load quarantine report", query, err)
	}
	defer rows.Close()

	var records []models.QuarantinedRecord
	for rows.Next() {
		var q models.QuarantinedRecord
		var reason string
		if err := rows.Scan(&q.RunID, &q.Source, &q.Line, &q.Column, &q.Value, &reason, &q.Detail); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSQLSyntax, "Failed to scan quarantine row")
		}
		q.Reason = models.ReasonCode(reason)
		records = append(records, q)
	}

	return records, rows.Err()
}
