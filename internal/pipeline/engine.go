// Package pipeline implements the incremental reconciliation engine that
// merges a batch of incoming sales records into the accumulated base dataset.
// The merge is keyed on the natural key (date, customer, product, source),
// idempotent, and never mutates the base outside a reconciliation run.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"medallion/pkg/errors"
	"medallion/pkg/models"
)

// Policy is the reconciliation policy, passed in explicitly; the engine holds
// no ambient catalog or schema state.
type Policy struct {
	// KeyFields is the ordered natural key. Supported fields: date,
	// customer_id, product_id, source.
	KeyFields []string

	// MonthlyAlignment controls price precision when rolling daily rows up to
	// monthly: "truncate" keeps full precision, "round" rounds to cents.
	MonthlyAlignment string

	Sentinels []models.SentinelRule
}

// Engine applies insert-or-update semantics between a base dataset and an
// incoming batch. One engine may serve many targets, but only one
// reconciliation may be in flight per target at a time.
type Engine struct {
	keyFields []string
	alignment string
	sentinels SentinelMap

	mu       sync.Mutex
	inFlight map[string]bool
}

// Result is the outcome of one reconciliation: the updated base dataset, the
// quarantine set, and run counters. Base and Quarantined are disjoint.
type Result struct {
	Base        []models.FactRecord
	Quarantined []models.QuarantinedRecord
	Summary     models.RunSummary
}

var supportedKeyFields = map[string]bool{
	models.ColDate:       true,
	models.ColCustomerID: true,
	models.ColProductID:  true,
	models.ColSource:     true,
}

// NewEngine validates the policy and creates an engine.
func NewEngine(policy Policy) (*Engine, error) {
	if len(policy.KeyFields) == 0 {
		return nil, errors.ConfigError("key_fields must not be empty", "reconciliation.key_fields")
	}
	for _, f := range policy.KeyFields {
		if !supportedKeyFields[f] {
			return nil, errors.ConfigError(
				fmt.Sprintf("unsupported key field %q", f), "reconciliation.key_fields")
		}
	}
	switch policy.MonthlyAlignment {
	case "", "truncate", "round":
	default:
		return nil, errors.ConfigError(
			fmt.Sprintf("unsupported monthly alignment %q", policy.MonthlyAlignment),
			"reconciliation.monthly_alignment")
	}

	return &Engine{
		keyFields: policy.KeyFields,
		alignment: policy.MonthlyAlignment,
		sentinels: NewSentinelMap(policy.Sentinels),
		inFlight:  make(map[string]bool),
	}, nil
}

// Reconcile merges batch into base and returns the updated base dataset.
// The source describes the feed the batch came from; a daily feed aligned to
// monthly is rolled up before merging. Per-record failures land in the
// quarantine set; only structural problems return an error, and an error
// means base is untouched.
//
// target names the base dataset for single-writer enforcement. A second call
// for the same target while one is running fails with ErrCodeRunInProgress.
func (e *Engine) Reconcile(ctx context.Context, target string, base []models.FactRecord, batch models.Batch, source models.Source) (*Result, error) {
	if err := e.acquire(target); err != nil {
		return nil, err
	}
	defer e.release(target)

	started := time.Now()

	if err := checkSchema(batch); err != nil {
		return nil, err
	}

	runID := batch.ID

	// Validation pass. Rows are independent; malformed rows are quarantined,
	// never fatal.
	summary := models.RunSummary{
		RunID:     runID,
		Source:    batch.Source,
		BatchID:   batch.ID,
		Mode:      batch.Mode,
		StartedAt: started,
	}

	valid := make([]models.FactRecord, 0, len(batch.Records))
	var quarantined []models.QuarantinedRecord

	for _, raw := range batch.Records {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeRunCancelled, "reconciliation cancelled before commit")
		}

		v := e.validateRecord(raw, batch, runID)
		if v.quarantine != nil {
			quarantined = append(quarantined, *v.quarantine)
			continue
		}
		if v.coerced {
			summary.Coerced++
		}
		if v.defaulted {
			summary.Defaulted++
		}
		rec := v.record
		rec.Granularity = models.Granularity(source.Granularity)
		valid = append(valid, rec)
	}
	summary.Quarantined = len(quarantined)

	// In-batch dedupe, last-write-wins. This must run before the monthly
	// rollup: a re-sent daily row replaces its earlier version, it is not
	// summed into the total.
	deduped, dropped := e.dedupe(valid)
	summary.Deduplicated = dropped

	// Roll daily rows up to monthly totals when the feed reports finer than
	// the unified schema expects for it. The rollup only merges distinct
	// daily keys, so the second dedupe is a guardrail and drops nothing.
	if models.Granularity(source.Align) == models.GranularityMonthly &&
		models.Granularity(source.Granularity) == models.GranularityDaily {
		deduped, dropped = e.dedupe(e.rollUpMonthly(deduped))
		summary.Deduplicated += dropped
	}

	// Partition into matches and new rows, then build the updated base in one
	// pass. The original slice is never modified.
	index := make(map[string]int, len(base))
	for i, rec := range base {
		index[e.keyOf(rec)] = i
	}

	updated := make([]models.FactRecord, len(base))
	copy(updated, base)

	for _, rec := range deduped {
		key := e.keyOf(rec)
		if i, ok := index[key]; ok {
			if updated[i].SameAttributes(rec) {
				summary.Unchanged++
			} else {
				summary.Updated++
			}
			updated[i] = rec
		} else {
			index[key] = len(updated)
			updated = append(updated, rec)
			summary.Inserted++
		}
	}

	summary.Duration = time.Since(started)

	return &Result{
		Base:        updated,
		Quarantined: quarantined,
		Summary:     summary,
	}, nil
}

// dedupe collapses duplicate keys within a batch, keeping the last-seen
// record per key. Returns the surviving records in first-seen key order and
// the number of dropped duplicates.
func (e *Engine) dedupe(records []models.FactRecord) ([]models.FactRecord, int) {
	order := make([]string, 0, len(records))
	last := make(map[string]models.FactRecord, len(records))

	for _, rec := range records {
		key := e.keyOf(rec)
		if _, seen := last[key]; !seen {
			order = append(order, key)
		}
		last[key] = rec
	}

	out := make([]models.FactRecord, 0, len(order))
	for _, key := range order {
		out = append(out, last[key])
	}
	return out, len(records) - len(out)
}

// keyOf renders the natural key of a record per the configured key fields.
func (e *Engine) keyOf(rec models.FactRecord) string {
	parts := make([]string, 0, len(e.keyFields))
	for _, f := range e.keyFields {
		switch f {
		case models.ColDate:
			parts = append(parts, rec.Date.Format(dateLayout))
		case models.ColCustomerID:
			parts = append(parts, rec.CustomerID)
		case models.ColProductID:
			parts = append(parts, rec.ProductID)
		case models.ColSource:
			parts = append(parts, rec.Source)
		}
	}
	return strings.Join(parts, "\x1f")
}

// checkSchema verifies the batch carries every required column. A missing
// column is structural: the run fails with nothing committed.
func checkSchema(batch models.Batch) error {
	required := []string{models.ColDate, models.ColCustomerID, models.ColProductID, models.ColQuantity}

	present := make(map[string]bool, len(batch.Columns))
	for _, c := range batch.Columns {
		present[strings.ToLower(strings.TrimSpace(c))] = true
	}

	var missing []string
	for _, c := range required {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return errors.StructuralError(errors.ErrCodeBatchSchema,
			fmt.Sprintf("batch is missing required columns: %s", strings.Join(missing, ", ")), nil).
			WithContext("batch_id", batch.ID).
			WithContext("source", batch.Source)
	}
	return nil
}

func (e *Engine) acquire(target string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight[target] {
		return errors.New(errors.ErrCodeRunInProgress,
			fmt.Sprintf("a reconciliation is already running for %s", target)).
			WithSuggestions("Wait for the current run to finish")
	}
	e.inFlight[target] = true
	return nil
}

func (e *Engine) release(target string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, target)
}
