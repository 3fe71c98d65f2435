package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dividi/internal/amqp"
	"dividi/internal/core"
	"dividi/internal/groups"
	applog "dividi/internal/log"
)

// ErrActivityUnavailable is returned when the backend keeps no activity log.
var ErrActivityUnavailable = errors.New("activity log not available")

// Publisher announces that a group changed.
type Publisher interface {
	PublishGroupChanged(ctx context.Context, msg amqp.GroupChangedMessage) error
}

// ExpenseInput is an expense as submitted by a client, before validation.
type ExpenseInput struct {
	Description string
	Amount      string
	PaidBy      string
	SplitAmong  []string
}

// GroupService orchestrates group commands across storage and notifications.
type GroupService struct {
	store         groups.Store
	activity      groups.ActivityLister
	publisher     Publisher
	defaultRoster []string

	now          func() time.Time
	newGroupID   func(time.Time) string
	newExpenseID func() string

	locks groupLocks
}

type Option func(*GroupService)

// WithPublisher sends a GroupChanged message after every successful mutation.
func WithPublisher(p Publisher) Option {
	return func(s *GroupService) { s.publisher = p }
}

func WithActivityLister(l groups.ActivityLister) Option {
	return func(s *GroupService) { s.activity = l }
}

// WithDefaultRoster sets the roster used when a group is created without one.
func WithDefaultRoster(names []string) Option {
	return func(s *GroupService) { s.defaultRoster = append([]string(nil), names...) }
}

func WithClock(now func() time.Time) Option {
	return func(s *GroupService) { s.now = now }
}

func WithIDGenerators(groupID func(time.Time) string, expenseID func() string) Option {
	return func(s *GroupService) {
		s.newGroupID = groupID
		s.newExpenseID = expenseID
	}
}

func NewGroupService(store groups.Store, opts ...Option) *GroupService {
	s := &GroupService{
		store:         store,
		defaultRoster: []string{"Alex", "Jordan"},
		now:           time.Now,
		newGroupID:    groups.NewGroupID,
		newExpenseID:  groups.NewExpenseID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateGroup starts a new group. An empty roster falls back to the default one.
func (s *GroupService) CreateGroup(ctx context.Context, roster []string) (core.GroupState, error) {
	if len(roster) == 0 {
		roster = s.defaultRoster
	}
	now := s.now().UTC()
	g, err := core.NewGroupState(s.newGroupID(now), roster)
	if err != nil {
		return core.GroupState{}, err
	}
	g.UpdatedAt = now

	if err := s.store.Save(ctx, g); err != nil {
		return core.GroupState{}, fmt.Errorf("save group: %w", err)
	}

	applog.FromContext(ctx).InfoContext(ctx, "Group created",
		append(applog.NewFields().WithGroup(g.ID, g.Revision).ToSlice(), "participants", len(g.Roster))...)
	s.publish(ctx, g, core.ActionGroupCreated)
	return g, nil
}

func (s *GroupService) GetGroup(ctx context.Context, id string) (core.GroupState, error) {
	return s.store.Load(ctx, id)
}

func (s *GroupService) AddParticipant(ctx context.Context, id, name string) (core.GroupState, error) {
	return s.mutate(ctx, id, core.ActionParticipantAdded, func(g core.GroupState) (core.GroupState, error) {
		return g.AddParticipant(name)
	})
}

func (s *GroupService) RemoveParticipant(ctx context.Context, id, name string) (core.GroupState, error) {
	return s.mutate(ctx, id, core.ActionParticipantRemoved, func(g core.GroupState) (core.GroupState, error) {
		return g.RemoveParticipant(core.NormalizeName(name))
	})
}

// AddExpense validates in and appends it to the group with a fresh id.
func (s *GroupService) AddExpense(ctx context.Context, id string, in ExpenseInput) (core.GroupState, core.Expense, error) {
	amount, err := core.ParseAmount(in.Amount)
	if err != nil {
		return core.GroupState{}, core.Expense{}, err
	}
	e := core.Expense{
		ID:            s.newExpenseID(),
		Description:   in.Description,
		Amount:        amount,
		Payer:         core.NormalizeName(in.PaidBy),
		Beneficiaries: normalizeAll(in.SplitAmong),
		CreatedAt:     s.now().UTC(),
	}

	g, err := s.mutate(ctx, id, core.ActionExpenseAdded, func(g core.GroupState) (core.GroupState, error) {
		return g.AddExpense(e)
	})
	if err != nil {
		return core.GroupState{}, core.Expense{}, err
	}
	added := g.Expenses[len(g.Expenses)-1]
	applog.FromContext(ctx).DebugContext(ctx, "Expense added",
		applog.NewFields().WithGroup(g.ID, g.Revision).WithExpense(added.ID, added.Amount.String()).ToSlice()...)
	return g, added, nil
}

func (s *GroupService) DeleteExpense(ctx context.Context, id, expenseID string) (core.GroupState, error) {
	return s.mutate(ctx, id, core.ActionExpenseDeleted, func(g core.GroupState) (core.GroupState, error) {
		return g.DeleteExpense(expenseID)
	})
}

// Summary loads the group and derives its balances and settlements.
func (s *GroupService) Summary(ctx context.Context, id string) (core.GroupState, core.Summary, error) {
	g, err := s.store.Load(ctx, id)
	if err != nil {
		return core.GroupState{}, core.Summary{}, err
	}
	sum, err := core.Summarize(g)
	if err != nil {
		return core.GroupState{}, core.Summary{}, fmt.Errorf("summarize group %s: %w", id, err)
	}
	return g, sum, nil
}

func (s *GroupService) Balances(ctx context.Context, id string) ([]core.ParticipantBalance, error) {
	_, sum, err := s.Summary(ctx, id)
	if err != nil {
		return nil, err
	}
	return sum.Balances, nil
}

func (s *GroupService) Settlements(ctx context.Context, id string) ([]core.Settlement, error) {
	_, sum, err := s.Summary(ctx, id)
	if err != nil {
		return nil, err
	}
	return sum.Settlements, nil
}

// Activity lists the group's recorded snapshots, newest first.
func (s *GroupService) Activity(ctx context.Context, id string, limit int) ([]core.Activity, error) {
	if s.activity == nil {
		return nil, ErrActivityUnavailable
	}
	if _, err := s.store.Load(ctx, id); err != nil {
		return nil, err
	}
	return s.activity.ListActivity(ctx, id, limit)
}

// mutate runs one load-command-save cycle while holding the group's lock.
func (s *GroupService) mutate(ctx context.Context, id, action string, cmd func(core.GroupState) (core.GroupState, error)) (core.GroupState, error) {
	next, err := s.apply(ctx, id, cmd)
	if err != nil {
		return core.GroupState{}, err
	}

	applog.FromContext(ctx).InfoContext(ctx, "Group updated",
		applog.NewFields().WithGroup(id, next.Revision).WithOperation(action).ToSlice()...)
	// Published after the group lock is released so a slow broker never
	// blocks other writers of the same group.
	s.publish(ctx, next, action)
	return next, nil
}

// apply runs cmd against the stored group under the per-group lock.
func (s *GroupService) apply(ctx context.Context, id string, cmd func(core.GroupState) (core.GroupState, error)) (core.GroupState, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	g, err := s.store.Load(ctx, id)
	if err != nil {
		return core.GroupState{}, err
	}

	next, err := cmd(g)
	if err != nil {
		return core.GroupState{}, err
	}
	next.UpdatedAt = s.now().UTC()

	if err := s.store.Save(ctx, next); err != nil {
		return core.GroupState{}, fmt.Errorf("save group: %w", err)
	}
	return next, nil
}

func (s *GroupService) publish(ctx context.Context, g core.GroupState, action string) {
	if s.publisher == nil {
		return
	}
	msg := amqp.NewGroupChangedMessage(g.ID, g.Revision, action)
	if err := s.publisher.PublishGroupChanged(ctx, msg); err != nil {
		// The change is already stored; a lost notification only delays the activity log.
		applog.LogError(ctx, "Failed to publish group changed message", err, action,
			applog.NewFields().WithGroup(g.ID, g.Revision))
	}
}

func normalizeAll(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, core.NormalizeName(n))
	}
	return out
}
