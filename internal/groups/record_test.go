package groups

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dividi/internal/core"
)

func TestDecodeLegacyRecord(t *testing.T) {
	// numeric ids and amounts as written by the browser client
	data := []byte(`{
		"people": ["Alex", "Jordan", "Sam"],
		"expenses": [
			{"id": 1712345678901, "description": "Dinner", "amount": 45.5, "paidBy": "Alex", "splitAmong": ["Alex", "Jordan", "Sam"]}
		],
		"lastUpdated": "2024-04-05T10:00:00.000Z"
	}`)

	g, err := Decode("group_1", data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if g.ID != "group_1" || len(g.Roster) != 3 || len(g.Expenses) != 1 {
		t.Fatalf("unexpected group: %+v", g)
	}
	e := g.Expenses[0]
	if e.ID != "1712345678901" || !e.Amount.Equal(decimal.RequireFromString("45.5")) || e.Payer != "Alex" {
		t.Fatalf("unexpected expense: %+v", e)
	}
	if g.UpdatedAt.Year() != 2024 {
		t.Fatalf("lastUpdated not decoded: %v", g.UpdatedAt)
	}
}

func TestEncodeDecodeKeepsPrecision(t *testing.T) {
	g, _ := core.NewGroupState("g", []string{"A", "B"})
	g.UpdatedAt = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	g, err := g.AddExpense(core.Expense{
		ID:            "e1",
		Description:   "Taxi",
		Amount:        decimal.RequireFromString("10.333333333333333333"),
		Payer:         "A",
		Beneficiaries: []string{"A", "B"},
		CreatedAt:     g.UpdatedAt,
	})
	if err != nil {
		t.Fatalf("AddExpense: %v", err)
	}

	data, err := Encode(g)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(string(data), `"amount":"10.333333333333333333"`) {
		t.Fatalf("amount not encoded as exact string: %s", data)
	}
	if !strings.Contains(string(data), `"people":["A","B"]`) {
		t.Fatalf("people missing: %s", data)
	}

	back, err := Decode("g", data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.Revision != g.Revision || !back.Expenses[0].Amount.Equal(g.Expenses[0].Amount) || !back.Expenses[0].CreatedAt.Equal(g.UpdatedAt) {
		t.Fatalf("round trip mismatch: %+v vs %+v", back, g)
	}
}

func TestDecodeRejectsBadInput(t *testing.T) {
	cases := []string{
		`not json`,
		`{"people":["A"],"expenses":[{"description":"x","amount":1,"paidBy":"A","splitAmong":["A"]}]}`,
		`{"people":["A"],"expenses":[{"id":{"x":1},"amount":1}]}`,
	}
	for i, in := range cases {
		if _, err := Decode("g", []byte(in)); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestKeys(t *testing.T) {
	if Key("group_1") != "expenses_group_1" {
		t.Fatalf("unexpected key %q", Key("group_1"))
	}
	id, ok := IDFromKey("expenses_group_1")
	if !ok || id != "group_1" {
		t.Fatalf("IDFromKey = %q, %v", id, ok)
	}
	if _, ok := IDFromKey("other"); ok {
		t.Fatalf("expected prefix mismatch")
	}
}

func TestNewGroupID(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	id := NewGroupID(now)
	parts := strings.Split(id, "_")
	if len(parts) != 3 || parts[0] != "group" || parts[1] != "1700000000000" || len(parts[2]) != 9 {
		t.Fatalf("unexpected id %q", id)
	}
	if NewGroupID(now) == id {
		t.Fatalf("ids should differ")
	}
}

func TestShareLink(t *testing.T) {
	got := ShareLink("https://split.example.com/app", "group_1_abc")
	if got != "https://split.example.com/app?group=group_1_abc" {
		t.Fatalf("unexpected link %q", got)
	}
}
