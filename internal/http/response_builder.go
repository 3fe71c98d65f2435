package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"dividi/internal/core"
	"dividi/internal/groups"
	applog "dividi/internal/log"
	"dividi/internal/services"
)

// Balance statuses as shown to clients.
const (
	statusCreditor = "creditor"
	statusDebtor   = "debtor"
	statusSettled  = "settled"
)

type moneyJSON struct {
	Value   string `json:"value"`
	Display string `json:"display"`
}

func newMoney(d decimal.Decimal) moneyJSON {
	return moneyJSON{Value: d.String(), Display: core.FormatAmount(d)}
}

type expenseJSON struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Amount      moneyJSON  `json:"amount"`
	PaidBy      string     `json:"paidBy"`
	SplitAmong  []string   `json:"splitAmong"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
}

type balanceJSON struct {
	Name    string    `json:"name"`
	Balance moneyJSON `json:"balance"`
	Status  string    `json:"status"`
}

type settlementJSON struct {
	From   string    `json:"from"`
	To     string    `json:"to"`
	Amount moneyJSON `json:"amount"`
}

type summaryJSON struct {
	TotalExpenses moneyJSON        `json:"totalExpenses"`
	Balances      []balanceJSON    `json:"balances"`
	Settlements   []settlementJSON `json:"settlements"`
	Settled       bool             `json:"settled"`
}

type groupJSON struct {
	ID          string        `json:"id"`
	People      []string      `json:"people"`
	Expenses    []expenseJSON `json:"expenses"`
	Revision    int64         `json:"revision"`
	LastUpdated time.Time     `json:"lastUpdated"`
	Summary     *summaryJSON  `json:"summary,omitempty"`
}

type activityJSON struct {
	Revision        int64     `json:"revision"`
	Action          string    `json:"action"`
	TotalExpenses   moneyJSON `json:"totalExpenses"`
	OpenSettlements int       `json:"openSettlements"`
	Outstanding     moneyJSON `json:"outstanding"`
	RecordedAt      time.Time `json:"recordedAt"`
}

type errorJSON struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func toExpenseJSON(e core.Expense) expenseJSON {
	out := expenseJSON{
		ID:          e.ID,
		Description: e.Description,
		Amount:      newMoney(e.Amount),
		PaidBy:      e.Payer,
		SplitAmong:  e.Beneficiaries,
	}
	if !e.CreatedAt.IsZero() {
		t := e.CreatedAt
		out.CreatedAt = &t
	}
	return out
}

func toBalancesJSON(balances []core.ParticipantBalance) []balanceJSON {
	out := make([]balanceJSON, 0, len(balances))
	for _, b := range balances {
		status := statusSettled
		switch {
		case core.IsSettled(b.Amount):
		case b.Amount.IsPositive():
			status = statusCreditor
		default:
			status = statusDebtor
		}
		out = append(out, balanceJSON{Name: b.Name, Balance: newMoney(b.Amount), Status: status})
	}
	return out
}

func toSettlementsJSON(settlements []core.Settlement) []settlementJSON {
	out := make([]settlementJSON, 0, len(settlements))
	for _, s := range settlements {
		out = append(out, settlementJSON{From: s.From, To: s.To, Amount: newMoney(s.Amount)})
	}
	return out
}

func toSummaryJSON(s core.Summary) *summaryJSON {
	return &summaryJSON{
		TotalExpenses: newMoney(s.TotalExpenses),
		Balances:      toBalancesJSON(s.Balances),
		Settlements:   toSettlementsJSON(s.Settlements),
		Settled:       len(s.Settlements) == 0,
	}
}

func toGroupJSON(g core.GroupState, sum *core.Summary) groupJSON {
	out := groupJSON{
		ID:          g.ID,
		People:      g.Roster,
		Expenses:    make([]expenseJSON, 0, len(g.Expenses)),
		Revision:    g.Revision,
		LastUpdated: g.UpdatedAt,
	}
	for _, e := range g.Expenses {
		out.Expenses = append(out.Expenses, toExpenseJSON(e))
	}
	if sum != nil {
		out.Summary = toSummaryJSON(*sum)
	}
	return out
}

func toActivityJSON(entries []core.Activity) []activityJSON {
	out := make([]activityJSON, 0, len(entries))
	for _, a := range entries {
		out = append(out, activityJSON{
			Revision:        a.Revision,
			Action:          a.Action,
			TotalExpenses:   newMoney(a.TotalExpenses),
			OpenSettlements: a.OpenSettlements,
			Outstanding:     newMoney(a.Outstanding),
			RecordedAt:      a.RecordedAt,
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError maps err onto a status code and a stable error code. Unknown
// errors are logged and reported as a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classifyError(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		applog.LogError(r.Context(), "Request failed", err, r.Method+" "+r.URL.Path, nil)
		msg = "internal server error"
	}
	writeJSON(w, status, errorJSON{Error: errorBody{Code: code, Message: msg}})
}

func classifyError(err error) (int, string) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return reqErr.status, "bad_request"
	}

	switch {
	case errors.Is(err, groups.ErrGroupNotFound),
		errors.Is(err, core.ErrExpenseNotFound),
		errors.Is(err, services.ErrActivityUnavailable):
		return http.StatusNotFound, applog.ErrorTypeNotFound

	case errors.Is(err, core.ErrRosterTooSmall),
		errors.Is(err, core.ErrParticipantInUse),
		errors.Is(err, core.ErrDuplicateExpense):
		return http.StatusConflict, applog.ErrorTypeConflict

	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrEmptyDescription),
		errors.Is(err, core.ErrDescriptionTooLong),
		errors.Is(err, core.ErrEmptySplit),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrUnknownParticipant),
		errors.Is(err, core.ErrDuplicateParticipant):
		return http.StatusUnprocessableEntity, applog.ErrorTypeValidation
	}
	return http.StatusInternalServerError, applog.ErrorTypeInternal
}
