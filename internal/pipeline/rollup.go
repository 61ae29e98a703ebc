package pipeline

import (
	"time"

	"github.com/shopspring/decimal"

	"medallion/pkg/models"
)

// monthlyGroup accumulates one (month, customer, product, source) bucket.
type monthlyGroup struct {
	record   models.FactRecord
	quantity int64
	// weighted price accumulator: sum(quantity * unit_price)
	weighted decimal.Decimal
}

// rollUpMonthly rolls daily records up to monthly totals: quantities are
// summed and the first of the month becomes the representative date key.
// The unit price becomes the quantity-weighted average; under the "round"
// alignment policy it is rounded to cents, under "truncate" (the default)
// full precision is kept. Groups come out in first-occurrence order so the
// rollup is deterministic.
func (e *Engine) rollUpMonthly(records []models.FactRecord) []models.FactRecord {
	groups := make(map[string]*monthlyGroup)
	var order []string

	for _, rec := range records {
		monthly := rec
		monthly.Date = firstOfMonth(rec.Date)
		monthly.Granularity = models.GranularityMonthly

		key := e.keyOf(monthly)
		g, ok := groups[key]
		if !ok {
			g = &monthlyGroup{record: monthly}
			groups[key] = g
			order = append(order, key)
		}

		qty := decimal.NewFromInt(rec.Quantity)
		g.quantity += rec.Quantity
		g.weighted = g.weighted.Add(qty.Mul(rec.UnitPrice))
	}

	out := make([]models.FactRecord, 0, len(order))
	for _, key := range order {
		g := groups[key]
		g.record.Quantity = g.quantity
		if g.quantity > 0 {
			price := g.weighted.Div(decimal.NewFromInt(g.quantity))
			if e.alignment == "round" {
				price = price.Round(2)
			}
			g.record.UnitPrice = price
		}
		out = append(out, g.record)
	}
	return out
}

func firstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
