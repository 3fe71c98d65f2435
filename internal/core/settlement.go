package core

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

type position struct {
	name   string
	amount decimal.Decimal // magnitude, always positive
}

// ComputeSettlements plans the payments that clear the given balances.
//
// Participants within Tolerance of zero are left out. Debtors and creditors
// are each sorted by descending magnitude, ties broken by name, and matched
// greedily: the current debtor pays the current creditor the smaller of the
// two remaining amounts, and a cursor moves on once its remaining amount drops
// below Tolerance. The greedy match keeps the number of payments low but is
// not a minimum-transaction solver.
//
// The returned order is the emission order and is stable for equal input.
func ComputeSettlements(balances Balances) []Settlement {
	negTolerance := tolerance.Neg()

	var debtors, creditors []position
	for name, b := range balances {
		switch {
		case b.LessThan(negTolerance):
			debtors = append(debtors, position{name: name, amount: b.Neg()})
		case b.GreaterThan(tolerance):
			creditors = append(creditors, position{name: name, amount: b})
		}
	}
	sortPositions(debtors)
	sortPositions(creditors)

	settlements := make([]Settlement, 0, max(len(debtors), len(creditors)))
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		payment := decimal.Min(debtors[i].amount, creditors[j].amount)
		settlements = append(settlements, Settlement{
			From:   debtors[i].name,
			To:     creditors[j].name,
			Amount: payment,
		})

		debtors[i].amount = debtors[i].amount.Sub(payment)
		creditors[j].amount = creditors[j].amount.Sub(payment)

		if debtors[i].amount.LessThan(tolerance) {
			i++
		}
		if creditors[j].amount.LessThan(tolerance) {
			j++
		}
	}

	return settlements
}

func sortPositions(ps []position) {
	slices.SortFunc(ps, func(a, b position) int {
		if c := b.amount.Cmp(a.amount); c != 0 {
			return c
		}
		return strings.Compare(a.name, b.name)
	})
}

// Outstanding is the total money moved by the settlements.
func Outstanding(settlements []Settlement) decimal.Decimal {
	total := decimal.Zero
	for _, s := range settlements {
		total = total.Add(s.Amount)
	}
	return total
}
