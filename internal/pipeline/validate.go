package pipeline

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"medallion/internal/dimension"
	"medallion/pkg/models"
)

// dateLayout is the wire format both feeds use for transaction dates.
const dateLayout = "2006-01-02"

// SentinelMap maps column -> placeholder value -> typed default. Feeds use
// strings like "unknown" or "n/a" where a number is expected; the mapping
// substitutes a defined default instead of failing the row.
type SentinelMap map[string]map[string]string

// NewSentinelMap builds a SentinelMap from configuration rules. Placeholder
// matching is case-insensitive.
func NewSentinelMap(rules []models.SentinelRule) SentinelMap {
	m := make(SentinelMap, len(rules))
	for _, rule := range rules {
		col := m[rule.Column]
		if col == nil {
			col = make(map[string]string, len(rule.Values))
			m[rule.Column] = col
		}
		def := rule.Default
		if def == "" {
			def = "0"
		}
		for _, v := range rule.Values {
			col[strings.ToLower(strings.TrimSpace(v))] = def
		}
	}
	return m
}

// apply returns the default for a sentinel value, or the value unchanged.
// The second result reports whether a substitution happened.
func (m SentinelMap) apply(column, value string) (string, bool) {
	col, ok := m[column]
	if !ok {
		return value, false
	}
	def, ok := col[strings.ToLower(strings.TrimSpace(value))]
	if !ok {
		return value, false
	}
	return def, true
}

// validation is the outcome of validating one raw record: either a fact
// record, or a quarantine entry. Never both.
type validation struct {
	record     models.FactRecord
	quarantine *models.QuarantinedRecord
	coerced    bool
	defaulted  bool
}

// validateRecord converts one raw row into a typed fact record, applying the
// documented data-quality policy: null key fields and non-positive quantities
// are quarantined, negative prices are coerced to their absolute value, and
// sentinel "unknown" values take their configured default.
func (e *Engine) validateRecord(raw models.RawRecord, batch models.Batch, runID string) validation {
	reject := func(column string, reason models.ReasonCode, detail string) validation {
		return validation{quarantine: &models.QuarantinedRecord{
			RunID:  runID,
			Source: batch.Source,
			Line:   raw.Line,
			Column: column,
			Value:  raw.Values[column],
			Reason: reason,
			Detail: detail,
		}}
	}

	for _, col := range []string{models.ColDate, models.ColCustomerID, models.ColProductID} {
		v := strings.TrimSpace(raw.Values[col])
		if v == "" || strings.EqualFold(v, "null") {
			return reject(col, models.ReasonNullKey, "key field is null or empty")
		}
	}

	date, err := time.Parse(dateLayout, strings.TrimSpace(raw.Values[models.ColDate]))
	if err != nil {
		return reject(models.ColDate, models.ReasonBadDate, "expected YYYY-MM-DD")
	}

	v := validation{}

	qtyRaw, qtyDefaulted := e.sentinels.apply(models.ColQuantity, raw.Values[models.ColQuantity])
	quantity, err := decimal.NewFromString(strings.TrimSpace(qtyRaw))
	if err != nil || !quantity.IsInteger() {
		return reject(models.ColQuantity, models.ReasonBadQuantity, "expected a whole number")
	}
	if !quantity.IsPositive() {
		return reject(models.ColQuantity, models.ReasonNonPositiveQuantity, "quantity must be positive")
	}
	v.defaulted = v.defaulted || qtyDefaulted

	price := decimal.Zero
	if priceRaw, ok := raw.Values[models.ColUnitPrice]; ok && strings.TrimSpace(priceRaw) != "" {
		substituted, priceDefaulted := e.sentinels.apply(models.ColUnitPrice, priceRaw)
		price, err = decimal.NewFromString(strings.TrimSpace(substituted))
		if err != nil {
			return reject(models.ColUnitPrice, models.ReasonBadPrice, "expected a decimal number")
		}
		if price.IsNegative() {
			price = price.Abs()
			v.coerced = true
		}
		v.defaulted = v.defaulted || priceDefaulted
	}

	customerID := strings.TrimSpace(raw.Values[models.ColCustomerID])
	productID := strings.TrimSpace(raw.Values[models.ColProductID])

	v.record = models.FactRecord{
		Date:        date,
		CustomerID:  customerID,
		ProductID:   productID,
		Source:      batch.Source,
		Quantity:    quantity.IntPart(),
		UnitPrice:   price,
		Granularity: models.GranularityDaily,
		CustomerKey: dimension.Key(customerID, batch.Source),
		ProductKey:  dimension.Key(productID, batch.Source),
		BatchID:     batch.ID,
	}
	return v
}
