package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Granularity is the reporting cadence of a fact row.
type Granularity string

const (
	GranularityDaily   Granularity = "daily"
	GranularityMonthly Granularity = "monthly"
)

// LoadMode distinguishes a historical backfill from a periodic feed.
type LoadMode string

const (
	LoadModeFull        LoadMode = "full"
	LoadModeIncremental LoadMode = "incremental"
)

// Column names of the unified fact schema. Key columns come first, in the
// order used for key comparison.
const (
	ColDate       = "date"
	ColCustomerID = "customer_id"
	ColProductID  = "product_id"
	ColSource     = "source"
	ColQuantity   = "quantity"
	ColUnitPrice  = "unit_price"
)

// RawRecord is one unvalidated row from a batch source, keyed by column name.
// Line is the 1-based position in the source, kept for quarantine reports.
type RawRecord struct {
	Values map[string]string
	Line   int
}

// Batch is an immutable set of incoming records. It is created by an
// ingestion step, consumed exactly once by a reconciliation run, and
// superseded by the updated base dataset.
type Batch struct {
	ID         string
	Source     string
	Mode       LoadMode
	IngestedAt time.Time
	Columns    []string
	Records    []RawRecord
}

// FactRecord is one validated transaction in the unified fact table.
// (Date, CustomerID, ProductID, Source) is the natural key; CustomerKey and
// ProductKey are surrogate keys into the dimension tables.
type FactRecord struct {
	Date        time.Time
	CustomerID  string
	ProductID   string
	Source      string
	Quantity    int64
	UnitPrice   decimal.Decimal
	Granularity Granularity
	CustomerKey string
	ProductKey  string
	BatchID     string
}

// SameAttributes reports whether the non-key attributes of two records match.
// Used to distinguish an overwrite from a no-op during merging.
func (r FactRecord) SameAttributes(other FactRecord) bool {
	return r.Quantity == other.Quantity &&
		r.UnitPrice.Equal(other.UnitPrice) &&
		r.Granularity == other.Granularity
}

// ReasonCode classifies why a record was quarantined.
type ReasonCode string

const (
	ReasonNullKey             ReasonCode = "null_key"
	ReasonBadDate             ReasonCode = "bad_date"
	ReasonBadQuantity         ReasonCode = "bad_quantity"
	ReasonNonPositiveQuantity ReasonCode = "non_positive_quantity"
	ReasonBadPrice            ReasonCode = "bad_price"
)

// QuarantinedRecord is a rejected row, kept with enough context to explain
// and replay it. Quarantined rows are reported, never silently dropped.
type QuarantinedRecord struct {
	RunID  string
	Source string
	Line   int
	Column string
	Value  string
	Reason ReasonCode
	Detail string
}

// RunSummary is the outcome of one reconciliation run.
type RunSummary struct {
	RunID        string
	Source       string
	BatchID      string
	Mode         LoadMode
	StartedAt    time.Time
	Duration     time.Duration
	Inserted     int
	Updated      int
	Unchanged    int
	Deduplicated int
	Coerced      int
	Defaulted    int
	Quarantined  int
}
