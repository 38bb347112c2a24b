package record

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSummarize(t *testing.T) {
	entries := []FinanceEntry{
		{Item: "salary", Amount: 2000, Category: "work", Date: mustDate(t, "2025-03-01")},
		{Item: "coffee", Amount: -3.1, Category: "food", Date: mustDate(t, "2025-03-03")},
		{Item: "rent", Amount: -900, Category: "housing", Date: mustDate(t, "2025-03-02")},
		{Item: "lunch", Amount: -12.2, Category: "food", Date: mustDate(t, "2025-03-04")},
		{Item: "misc", Amount: -1, Date: mustDate(t, "2025-02-28")},
	}
	s := Summarize(entries)

	if s.Count != 5 {
		t.Errorf("Count = %d", s.Count)
	}
	if s.Income != 2000 {
		t.Errorf("Income = %v", s.Income)
	}
	if s.Expense != 916.3 {
		t.Errorf("Expense = %v", s.Expense)
	}
	if s.Balance != 1083.7 {
		t.Errorf("Balance = %v", s.Balance)
	}

	wantCats := []CategoryTotal{
		{Category: "housing", Amount: 900},
		{Category: "food", Amount: 15.3},
		{Category: DefaultCategory, Amount: 1},
	}
	if diff := cmp.Diff(wantCats, s.ByCategory); diff != "" {
		t.Errorf("ByCategory (-want +got):\n%s", diff)
	}

	var order []string
	for _, e := range s.Recent {
		order = append(order, e.Item)
	}
	if diff := cmp.Diff([]string{"lunch", "coffee", "rent", "salary", "misc"}, order); diff != "" {
		t.Errorf("Recent order (-want +got):\n%s", diff)
	}
	if entries[0].Item != "salary" {
		t.Error("Summarize reordered its input")
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	if s.Count != 0 || s.Balance != 0 || s.ByCategory == nil {
		t.Errorf("Summarize(nil) = %+v", s)
	}
}

func TestSearchNotes(t *testing.T) {
	notes := []Note{
		{Content: "buy milk", Tags: []string{"shopping"}},
		{Content: "call mom", Tags: []string{"family", "todo"}},
		{Content: "todo list review", Tags: nil},
	}
	got := SearchNotes(notes, "todo")
	if len(got) != 2 || got[0].Content != "call mom" || got[1].Content != "todo list review" {
		t.Errorf("SearchNotes(todo) = %+v", got)
	}
	if got := SearchNotes(notes, "Milk"); len(got) != 0 {
		t.Errorf("search should be case sensitive, got %+v", got)
	}
	if got := SearchNotes(notes, ""); len(got) != 3 {
		t.Errorf("empty query returned %d notes", len(got))
	}
}
