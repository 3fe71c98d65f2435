// Package groups defines the persistence ports for group state and the
// record format shared by the key/value style stores.
package groups

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"dividi/internal/core"
)

// KeyPrefix is prepended to the group ID to form the storage key.
const KeyPrefix = "expenses_"

// Record is the serialized form of a group:
//
//	{"people": [...], "expenses": [...], "lastUpdated": "..."}
type Record struct {
	ID          string          `json:"id,omitempty"`
	People      []string        `json:"people"`
	Expenses    []RecordExpense `json:"expenses"`
	Revision    int64           `json:"revision,omitempty"`
	LastUpdated time.Time       `json:"lastUpdated"`
}

// RecordExpense is the serialized form of an expense. Amount decodes from a
// JSON number or string and encodes as a string.
type RecordExpense struct {
	ID          json.RawMessage `json:"id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	PaidBy      string          `json:"paidBy"`
	SplitAmong  []string        `json:"splitAmong"`
	CreatedAt   *time.Time      `json:"createdAt,omitempty"`
}

// Key returns the storage key for a group ID.
func Key(id string) string {
	return KeyPrefix + id
}

// IDFromKey strips KeyPrefix from a storage key.
func IDFromKey(key string) (string, bool) {
	return strings.CutPrefix(key, KeyPrefix)
}

// ToRecord converts a group into its serialized form.
func ToRecord(g core.GroupState) Record {
	rec := Record{
		ID:          g.ID,
		People:      append([]string{}, g.Roster...),
		Expenses:    make([]RecordExpense, 0, len(g.Expenses)),
		Revision:    g.Revision,
		LastUpdated: g.UpdatedAt.UTC(),
	}
	for _, e := range g.Expenses {
		id, _ := json.Marshal(e.ID)
		re := RecordExpense{
			ID:          id,
			Description: e.Description,
			Amount:      e.Amount,
			PaidBy:      e.Payer,
			SplitAmong:  append([]string{}, e.Beneficiaries...),
		}
		if !e.CreatedAt.IsZero() {
			created := e.CreatedAt.UTC()
			re.CreatedAt = &created
		}
		rec.Expenses = append(rec.Expenses, re)
	}
	return rec
}

// FromRecord converts a serialized record back into a group. Expense IDs may
// be JSON strings or numbers (millisecond timestamps).
func FromRecord(id string, rec Record) (core.GroupState, error) {
	g := core.GroupState{
		ID:        id,
		Roster:    append([]string{}, rec.People...),
		Expenses:  make([]core.Expense, 0, len(rec.Expenses)),
		Revision:  rec.Revision,
		UpdatedAt: rec.LastUpdated,
	}
	for i, re := range rec.Expenses {
		expenseID, err := decodeExpenseID(re.ID)
		if err != nil {
			return core.GroupState{}, fmt.Errorf("expense %d: %w", i, err)
		}
		e := core.Expense{
			ID:            expenseID,
			Description:   re.Description,
			Amount:        re.Amount,
			Payer:         re.PaidBy,
			Beneficiaries: append([]string{}, re.SplitAmong...),
		}
		if re.CreatedAt != nil {
			e.CreatedAt = *re.CreatedAt
		}
		g.Expenses = append(g.Expenses, e)
	}
	return g, nil
}

// Encode marshals a group as record JSON.
func Encode(g core.GroupState) ([]byte, error) {
	return json.Marshal(ToRecord(g))
}

// Decode unmarshals record JSON into a group with the given ID.
func Decode(id string, data []byte) (core.GroupState, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return core.GroupState{}, fmt.Errorf("decode group record: %w", err)
	}
	return FromRecord(id, rec)
}

func decodeExpenseID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("missing id")
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("invalid id %s", string(raw))
	}
	return n.String(), nil
}
