package core

import "github.com/shopspring/decimal"

// Summary is everything a presentation layer needs for one group.
type Summary struct {
	TotalExpenses decimal.Decimal
	Balances      []ParticipantBalance
	Settlements   []Settlement
}

// Summarize recomputes balances and settlements from scratch.
func Summarize(g GroupState) (Summary, error) {
	balances, err := ComputeBalances(g.Roster, g.Expenses)
	if err != nil {
		return Summary{}, err
	}
	total := decimal.Zero
	for _, e := range g.Expenses {
		total = total.Add(e.Amount)
	}
	return Summary{
		TotalExpenses: total,
		Balances:      balances.Ordered(g.Roster),
		Settlements:   ComputeSettlements(balances),
	}, nil
}
