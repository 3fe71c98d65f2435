package http

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"dividi/internal/core"
	"dividi/internal/groups"
	"dividi/internal/services"
)

// GroupService is the application surface the handlers need.
type GroupService interface {
	CreateGroup(ctx context.Context, roster []string) (core.GroupState, error)
	GetGroup(ctx context.Context, id string) (core.GroupState, error)
	AddParticipant(ctx context.Context, id, name string) (core.GroupState, error)
	RemoveParticipant(ctx context.Context, id, name string) (core.GroupState, error)
	AddExpense(ctx context.Context, id string, in services.ExpenseInput) (core.GroupState, core.Expense, error)
	DeleteExpense(ctx context.Context, id, expenseID string) (core.GroupState, error)
	Summary(ctx context.Context, id string) (core.GroupState, core.Summary, error)
	Balances(ctx context.Context, id string) ([]core.ParticipantBalance, error)
	Settlements(ctx context.Context, id string) ([]core.Settlement, error)
	Activity(ctx context.Context, id string, limit int) ([]core.Activity, error)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	m := s.trace.GetMetrics()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"requests":          m.TotalRequests,
		"avgResponseMicros": m.AverageResponseTime.Microseconds(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	failures := map[string]string{}
	for name, check := range s.readyChecks {
		if err := check(r.Context()); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": failures})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	g, err := s.groups.CreateGroup(r.Context(), sanitizeNames(req.People))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/groups/"+g.ID)
	s.writeGroup(w, r, http.StatusCreated, g)
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	g, sum, err := s.groups.Summary(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGroupJSON(g, &sum))
}

func (s *Server) handleAddParticipant(w http.ResponseWriter, r *http.Request) {
	var req addParticipantRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	g, err := s.groups.AddParticipant(r.Context(), mux.Vars(r)["id"], sanitizeInput(req.Name))
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeGroup(w, r, http.StatusOK, g)
}

func (s *Server) handleRemoveParticipant(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	g, err := s.groups.RemoveParticipant(r.Context(), vars["id"], vars["name"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeGroup(w, r, http.StatusOK, g)
}

func (s *Server) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	var req addExpenseRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	g, e, err := s.groups.AddExpense(r.Context(), mux.Vars(r)["id"], services.ExpenseInput{
		Description: sanitizeInput(req.Description),
		Amount:      string(req.Amount),
		PaidBy:      sanitizeInput(req.PaidBy),
		SplitAmong:  sanitizeNames(req.SplitAmong),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	sum, err := core.Summarize(g)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"expense": toExpenseJSON(e),
		"group":   toGroupJSON(g, &sum),
	})
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	g, err := s.groups.DeleteExpense(r.Context(), vars["id"], vars["expenseID"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.writeGroup(w, r, http.StatusOK, g)
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := s.groups.Balances(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balances": toBalancesJSON(balances)})
}

func (s *Server) handleSettlements(w http.ResponseWriter, r *http.Request) {
	settlements, err := s.groups.Settlements(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"settlements": toSettlementsJSON(settlements),
		"settled":     len(settlements) == 0,
	})
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.groups.GetGroup(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	base := s.publicBaseURL
	if base == "" {
		base = requestBaseURL(r)
	}
	writeJSON(w, http.StatusOK, map[string]string{"link": groups.ShareLink(base, id)})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	entries, err := s.groups.Activity(r.Context(), mux.Vars(r)["id"], parseLimit(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": toActivityJSON(entries)})
}

func (s *Server) writeGroup(w http.ResponseWriter, r *http.Request, status int, g core.GroupState) {
	sum, err := core.Summarize(g)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, status, toGroupJSON(g, &sum))
}
