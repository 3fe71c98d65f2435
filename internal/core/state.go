package core

import (
	"slices"
	"strings"
	"time"
)

// GroupState is the durable state of a group: its roster and its expenses.
// Commands never modify the receiver; they return the updated state.
type GroupState struct {
	ID        string
	Roster    []string
	Expenses  []Expense
	Revision  int64
	UpdatedAt time.Time
}

// NewGroupState builds a group with a normalized, validated roster.
func NewGroupState(id string, roster []string) (GroupState, error) {
	names := make([]string, 0, len(roster))
	seen := make(map[string]struct{}, len(roster))
	for _, raw := range roster {
		name := NormalizeName(raw)
		if name == "" {
			return GroupState{}, ErrEmptyName
		}
		if _, ok := seen[name]; ok {
			return GroupState{}, ErrDuplicateParticipant
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	if len(names) < MinRosterSize {
		return GroupState{}, ErrRosterTooSmall
	}
	return GroupState{ID: id, Roster: names, Expenses: []Expense{}, Revision: 1}, nil
}

// Clone returns a deep copy of g.
func (g GroupState) Clone() GroupState {
	out := g
	out.Roster = slices.Clone(g.Roster)
	out.Expenses = make([]Expense, len(g.Expenses))
	for i, e := range g.Expenses {
		e.Beneficiaries = slices.Clone(e.Beneficiaries)
		out.Expenses[i] = e
	}
	return out
}

// HasParticipant reports whether name is in the roster.
func (g GroupState) HasParticipant(name string) bool {
	return slices.Contains(g.Roster, name)
}

// AddParticipant appends a new participant to the roster.
func (g GroupState) AddParticipant(name string) (GroupState, error) {
	name = NormalizeName(name)
	if name == "" {
		return g, ErrEmptyName
	}
	if g.HasParticipant(name) {
		return g, ErrDuplicateParticipant
	}
	next := g.Clone()
	next.Roster = append(next.Roster, name)
	next.Revision++
	return next, nil
}

// RemoveParticipant drops name from the roster. Participants referenced by
// any expense cannot be removed, so expenses never point outside the roster.
func (g GroupState) RemoveParticipant(name string) (GroupState, error) {
	idx := slices.Index(g.Roster, name)
	if idx < 0 {
		return g, ErrUnknownParticipant
	}
	if len(g.Roster) <= MinRosterSize {
		return g, ErrRosterTooSmall
	}
	for _, e := range g.Expenses {
		if e.References(name) {
			return g, ErrParticipantInUse
		}
	}
	next := g.Clone()
	next.Roster = slices.Delete(next.Roster, idx, idx+1)
	next.Revision++
	return next, nil
}

// AddExpense validates e against the roster and appends it. Duplicate
// beneficiaries are collapsed.
func (g GroupState) AddExpense(e Expense) (GroupState, error) {
	e.Description = strings.TrimSpace(e.Description)
	if err := e.Validate(); err != nil {
		return g, err
	}
	e.Beneficiaries = uniqueNames(e.Beneficiaries)
	if err := e.checkMembership(memberSet(g.Roster)); err != nil {
		return g, err
	}
	if _, ok := g.findExpense(e.ID); ok {
		return g, ErrDuplicateExpense
	}
	next := g.Clone()
	next.Expenses = append(next.Expenses, e)
	next.Revision++
	return next, nil
}

// DeleteExpense removes the expense with the given id.
func (g GroupState) DeleteExpense(id string) (GroupState, error) {
	idx, ok := g.findExpense(id)
	if !ok {
		return g, ErrExpenseNotFound
	}
	next := g.Clone()
	next.Expenses = slices.Delete(next.Expenses, idx, idx+1)
	next.Revision++
	return next, nil
}

func (g GroupState) findExpense(id string) (int, bool) {
	idx := slices.IndexFunc(g.Expenses, func(e Expense) bool { return e.ID == id })
	return idx, idx >= 0
}
