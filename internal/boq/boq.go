// Package boq totals bill-of-quantities line items, either from
// structured JSON records or from an uploaded CSV table.
package boq

import "math"

// Line is one bill-of-quantities row.
type Line struct {
	Item      string  `json:"item"`
	Qty       float64 `json:"qty"`
	UnitPrice float64 `json:"unit_price"`
}

// Cost is the per-item slice of a Summary breakdown.
type Cost struct {
	Item string  `json:"item"`
	Cost float64 `json:"cost"`
}

// Summary is the structured-mode result. Breakdown order mirrors the
// input order.
type Summary struct {
	Total     float64 `json:"total"`
	Breakdown []Cost  `json:"breakdown"`
}

// Total sums qty*unit_price across items. Costs are rounded to two
// decimals for reporting; negative values flow through unchecked.
func Total(items []Line) Summary {
	total := 0.0
	breakdown := make([]Cost, 0, len(items))
	for _, it := range items {
		cost := it.Qty * it.UnitPrice
		total += cost
		breakdown = append(breakdown, Cost{Item: it.Item, Cost: round2(cost)})
	}
	return Summary{Total: round2(total), Breakdown: breakdown}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func round6(v float64) float64 { return math.Round(v*1e6) / 1e6 }
