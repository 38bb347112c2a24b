package record

import (
	"math"
	"sort"
)

// CategoryTotal is the expense total of one category.
type CategoryTotal struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
}

// Summary aggregates a finance collection.
type Summary struct {
	Balance    float64         `json:"balance"`
	Expense    float64         `json:"expense"`
	Income     float64         `json:"income"`
	Count      int             `json:"count"`
	ByCategory []CategoryTotal `json:"by_category"`
	Recent     []FinanceEntry  `json:"recent"`
}

// Summarize totals entries. Expense and the per-category figures are positive
// magnitudes; Balance keeps its sign. Recent holds the entries newest first.
func Summarize(entries []FinanceEntry) Summary {
	s := Summary{Count: len(entries), ByCategory: []CategoryTotal{}}

	byCat := make(map[string]float64)
	for _, e := range entries {
		s.Balance += e.Amount
		switch {
		case e.Amount < 0:
			s.Expense += -e.Amount
			cat := e.Category
			if cat == "" {
				cat = DefaultCategory
			}
			byCat[cat] += -e.Amount
		case e.Amount > 0:
			s.Income += e.Amount
		}
	}

	s.Balance = cents(s.Balance)
	s.Expense = cents(s.Expense)
	s.Income = cents(s.Income)

	for cat, amount := range byCat {
		s.ByCategory = append(s.ByCategory, CategoryTotal{Category: cat, Amount: cents(amount)})
	}
	sort.Slice(s.ByCategory, func(i, j int) bool {
		a, b := s.ByCategory[i], s.ByCategory[j]
		if a.Amount != b.Amount {
			return a.Amount > b.Amount
		}
		return a.Category < b.Category
	})

	s.Recent = make([]FinanceEntry, len(entries))
	copy(s.Recent, entries)
	sort.SliceStable(s.Recent, func(i, j int) bool {
		return s.Recent[i].Date.After(s.Recent[j].Date.Time)
	})
	return s
}

func cents(v float64) float64 {
	return math.Round(v*100) / 100
}
