package core

import (
	"fmt"
	"math/rand/v2"
	"testing"
)

func assertSettlements(t *testing.T, got []Settlement, want []Settlement) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d settlements, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i].From != want[i].From || got[i].To != want[i].To || !got[i].Amount.Equal(want[i].Amount) {
			t.Fatalf("settlement %d = %s->%s %s, want %s->%s %s", i,
				got[i].From, got[i].To, got[i].Amount, want[i].From, want[i].To, want[i].Amount)
		}
	}
}

func TestComputeSettlements_AllSettled(t *testing.T) {
	got := ComputeSettlements(Balances{"A": dec("0"), "B": dec("0.004"), "C": dec("-0.004")})
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", got)
	}
	if got := ComputeSettlements(Balances{}); len(got) != 0 {
		t.Fatalf("expected no settlements for empty balances, got %v", got)
	}
}

func TestComputeSettlements_SinglePayerEqualSplit(t *testing.T) {
	got := ComputeSettlements(Balances{"A": dec("20"), "B": dec("-10"), "C": dec("-10")})
	assertSettlements(t, got, []Settlement{
		{From: "B", To: "A", Amount: dec("10")},
		{From: "C", To: "A", Amount: dec("10")},
	})
}

func TestComputeSettlements_TwoPeople(t *testing.T) {
	got := ComputeSettlements(Balances{"A": dec("30"), "B": dec("-30")})
	assertSettlements(t, got, []Settlement{{From: "B", To: "A", Amount: dec("30")}})
}

func TestComputeSettlements_LargestFirst(t *testing.T) {
	got := ComputeSettlements(Balances{
		"A": dec("50"),
		"B": dec("10"),
		"C": dec("-40"),
		"D": dec("-20"),
	})
	assertSettlements(t, got, []Settlement{
		{From: "C", To: "A", Amount: dec("40")},
		{From: "D", To: "A", Amount: dec("10")},
		{From: "D", To: "B", Amount: dec("10")},
	})
}

func TestComputeSettlements_TieBreakByName(t *testing.T) {
	balances := Balances{"Zed": dec("-5"), "Amy": dec("-5"), "Kim": dec("5"), "Bob": dec("5")}
	for i := 0; i < 20; i++ {
		got := ComputeSettlements(balances)
		assertSettlements(t, got, []Settlement{
			{From: "Amy", To: "Bob", Amount: dec("5")},
			{From: "Zed", To: "Kim", Amount: dec("5")},
		})
	}
}

func TestComputeSettlements_NearZeroBoundary(t *testing.T) {
	got := ComputeSettlements(Balances{"A": dec("10.005"), "B": dec("-10"), "C": dec("-0.005")})
	assertSettlements(t, got, []Settlement{{From: "B", To: "A", Amount: dec("10")}})

	// exactly one cent is not strictly beyond the tolerance
	got = ComputeSettlements(Balances{"A": dec("0.01"), "B": dec("-0.01")})
	if len(got) != 0 {
		t.Fatalf("expected no settlements at the tolerance boundary, got %v", got)
	}
}

func TestComputeSettlements_UnevenThreeWaySplit(t *testing.T) {
	b, err := ComputeBalances([]string{"A", "B", "C"}, []Expense{expense("e1", "10", "A", "A", "B", "C")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := ComputeSettlements(b)
	if len(got) != 2 {
		t.Fatalf("expected 2 settlements, got %+v", got)
	}
	for _, s := range got {
		if s.To != "A" || FormatAmount(s.Amount) != "3.33" {
			t.Fatalf("unexpected settlement %+v", s)
		}
	}
	assertDrained(t, b, got)
}

// assertDrained applies every settlement and checks that nobody is left
// beyond the tolerance.
func assertDrained(t *testing.T, b Balances, settlements []Settlement) {
	t.Helper()
	remaining := make(Balances, len(b))
	for k, v := range b {
		remaining[k] = v
	}
	for _, s := range settlements {
		if !s.Amount.IsPositive() {
			t.Fatalf("non-positive settlement %+v", s)
		}
		remaining[s.From] = remaining[s.From].Add(s.Amount)
		remaining[s.To] = remaining[s.To].Sub(s.Amount)
	}
	for name, v := range remaining {
		if v.Abs().GreaterThan(Tolerance()) {
			t.Fatalf("%s still at %s after settlements %+v", name, v, settlements)
		}
	}
}

func TestSettlementProperties_RandomGroups(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	for round := 0; round < 200; round++ {
		size := 2 + rng.IntN(6)
		roster := make([]string, size)
		for i := range roster {
			roster[i] = fmt.Sprintf("p%d", i)
		}

		var expenses []Expense
		for n := rng.IntN(12); n > 0; n-- {
			var beneficiaries []string
			for _, p := range roster {
				if rng.IntN(2) == 0 {
					beneficiaries = append(beneficiaries, p)
				}
			}
			if len(beneficiaries) == 0 {
				beneficiaries = roster[:1]
			}
			// whole-unit multiples of the split size keep every share exact
			amount := fmt.Sprintf("%d", (1+rng.IntN(50))*len(beneficiaries))
			expenses = append(expenses, expense(fmt.Sprintf("e%d", n), amount, roster[rng.IntN(size)], beneficiaries...))
		}

		b, err := ComputeBalances(roster, expenses)
		if err != nil {
			t.Fatalf("round %d: unexpected error: %v", round, err)
		}
		if !b.Sum().IsZero() {
			t.Fatalf("round %d: balances do not sum to zero: %s", round, b.Sum())
		}

		first := ComputeSettlements(b)
		assertSettlements(t, ComputeSettlements(b), first)
		assertDrained(t, b, first)
		if len(first) > size-1 {
			t.Fatalf("round %d: %d settlements for %d participants", round, len(first), size)
		}
	}
}

func TestOutstanding(t *testing.T) {
	got := Outstanding([]Settlement{{Amount: dec("1.5")}, {Amount: dec("2.25")}})
	if !got.Equal(dec("3.75")) {
		t.Fatalf("Outstanding = %s, want 3.75", got)
	}
}
