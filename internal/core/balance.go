package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Balances maps a participant to its signed net position: positive means the
// participant is owed money, negative means it owes money.
type Balances map[string]decimal.Decimal

// ComputeBalances reduces the expense list over the roster.
//
// Every roster member starts at zero. Each expense credits its full amount to
// the payer and debits amount/len(beneficiaries) from each distinct
// beneficiary. Shares are not rounded, so a split that does not divide evenly
// leaves a sub-cent residue.
//
// An invalid expense fails the whole computation and no balances are returned.
func ComputeBalances(roster []string, expenses []Expense) (Balances, error) {
	members := memberSet(roster)
	balances := make(Balances, len(roster))
	for _, p := range roster {
		balances[p] = decimal.Zero
	}

	for _, e := range expenses {
		if !e.Amount.IsPositive() {
			return nil, fmt.Errorf("expense %q: %w", e.ID, ErrInvalidAmount)
		}
		if len(e.Beneficiaries) == 0 {
			return nil, fmt.Errorf("expense %q: %w", e.ID, ErrEmptySplit)
		}
		if err := e.checkMembership(members); err != nil {
			return nil, err
		}

		beneficiaries := uniqueNames(e.Beneficiaries)
		share := e.Amount.Div(decimal.NewFromInt(int64(len(beneficiaries))))

		balances[e.Payer] = balances[e.Payer].Add(e.Amount)
		for _, b := range beneficiaries {
			balances[b] = balances[b].Sub(share)
		}
	}

	return balances, nil
}

// Sum adds all balances. For balances produced by ComputeBalances it is zero
// up to division residue.
func (b Balances) Sum() decimal.Decimal {
	sum := decimal.Zero
	for _, v := range b {
		sum = sum.Add(v)
	}
	return sum
}

// Ordered lists the balances in roster order. Names missing from b are
// reported at zero.
func (b Balances) Ordered(roster []string) []ParticipantBalance {
	out := make([]ParticipantBalance, 0, len(roster))
	for _, name := range roster {
		amount, ok := b[name]
		if !ok {
			amount = decimal.Zero
		}
		out = append(out, ParticipantBalance{Name: name, Amount: amount})
	}
	return out
}
