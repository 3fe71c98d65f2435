package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

const (
	ActionGroupCreated       = "group.created"
	ActionParticipantAdded   = "participant.added"
	ActionParticipantRemoved = "participant.removed"
	ActionExpenseAdded       = "expense.added"
	ActionExpenseDeleted     = "expense.deleted"
)

const (
	// MinRosterSize is the smallest roster a group may have.
	MinRosterSize = 2

	MaxDescriptionLength = 200
)

type (
	// Expense is a single shared cost: Payer paid Amount on behalf of Beneficiaries.
	Expense struct {
		ID            string
		Description   string
		Amount        decimal.Decimal
		Payer         string
		Beneficiaries []string
		CreatedAt     time.Time
	}

	// Settlement is one recommended payment from a debtor to a creditor.
	Settlement struct {
		From   string
		To     string
		Amount decimal.Decimal
	}

	// ParticipantBalance pairs a participant with its net balance.
	ParticipantBalance struct {
		Name   string
		Amount decimal.Decimal
	}

	// Activity is a derived snapshot recorded after each change to a group.
	Activity struct {
		GroupID         string
		Revision        int64
		Action          string
		TotalExpenses   decimal.Decimal
		OpenSettlements int
		Outstanding     decimal.Decimal
		RecordedAt      time.Time
	}
)

var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrEmptyDescription     = errors.New("empty description")
	ErrDescriptionTooLong   = fmt.Errorf("description too long (max %d characters)", MaxDescriptionLength)
	ErrEmptySplit           = errors.New("expense has no beneficiaries")
	ErrEmptyName            = errors.New("empty participant name")
	ErrUnknownParticipant   = errors.New("unknown participant")
	ErrDuplicateParticipant = errors.New("participant already in roster")
	ErrRosterTooSmall       = errors.New("roster needs at least 2 participants")
	ErrParticipantInUse     = errors.New("participant is referenced by an expense")
	ErrExpenseNotFound      = errors.New("expense not found")
	ErrDuplicateExpense     = errors.New("duplicate expense id")
)

// ReferentialIntegrityError reports an expense that references a participant
// outside the roster.
type ReferentialIntegrityError struct {
	ExpenseID   string
	Participant string
	Role        string // "payer" or "beneficiary"
}

func (e *ReferentialIntegrityError) Error() string {
	return fmt.Sprintf("expense %q: %s %q is not in the roster", e.ExpenseID, e.Role, e.Participant)
}

func (e *ReferentialIntegrityError) Unwrap() error {
	return ErrUnknownParticipant
}

// Validate checks the expense in isolation; roster membership is checked by
// the callers that know the roster.
func (e Expense) Validate() error {
	if len(strings.TrimSpace(e.Description)) == 0 {
		return ErrEmptyDescription
	}
	if utf8.RuneCountInString(e.Description) > MaxDescriptionLength {
		return ErrDescriptionTooLong
	}
	if !e.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if len(e.Beneficiaries) == 0 {
		return ErrEmptySplit
	}
	if strings.TrimSpace(e.Payer) == "" {
		return ErrEmptyName
	}
	return nil
}

// checkMembership returns a ReferentialIntegrityError for the first payer or
// beneficiary missing from members.
func (e Expense) checkMembership(members map[string]struct{}) error {
	if _, ok := members[e.Payer]; !ok {
		return &ReferentialIntegrityError{ExpenseID: e.ID, Participant: e.Payer, Role: "payer"}
	}
	for _, b := range e.Beneficiaries {
		if _, ok := members[b]; !ok {
			return &ReferentialIntegrityError{ExpenseID: e.ID, Participant: b, Role: "beneficiary"}
		}
	}
	return nil
}

// References reports whether name is the payer or a beneficiary of e.
func (e Expense) References(name string) bool {
	if e.Payer == name {
		return true
	}
	for _, b := range e.Beneficiaries {
		if b == name {
			return true
		}
	}
	return false
}

// NormalizeName trims a participant name and puts it in Unicode NFC form, so
// composed and decomposed spellings of the same name compare equal.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// uniqueNames collapses duplicates, keeping first-seen order.
func uniqueNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func memberSet(roster []string) map[string]struct{} {
	set := make(map[string]struct{}, len(roster))
	for _, p := range roster {
		set[p] = struct{}{}
	}
	return set
}
