package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dividi/internal/amqp"
	"dividi/internal/core"
	"dividi/internal/groups"
	"dividi/internal/groups/memory"
)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []amqp.GroupChangedMessage
	err  error
}

func (p *recordingPublisher) PublishGroupChanged(_ context.Context, msg amqp.GroupChangedMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
	return p.err
}

func (p *recordingPublisher) actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.msgs))
	for i, m := range p.msgs {
		out[i] = m.Action
	}
	return out
}

type stubActivity struct {
	entries []core.Activity
}

func (s stubActivity) ListActivity(_ context.Context, groupID string, limit int) ([]core.Activity, error) {
	var out []core.Activity
	for _, a := range s.entries {
		if a.GroupID == groupID {
			out = append(out, a)
		}
	}
	return out, nil
}

func newTestService(t *testing.T, opts ...Option) (*GroupService, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	n := 0
	base := []Option{
		WithPublisher(pub),
		WithClock(func() time.Time { return now }),
		WithIDGenerators(
			func(time.Time) string { return "g1" },
			func() string { n++; return fmt.Sprintf("e%d", n) },
		),
	}
	return NewGroupService(memory.New(), append(base, opts...)...), pub
}

func TestGroupService_CreateGroup(t *testing.T) {
	ctx := context.Background()

	t.Run("explicit roster", func(t *testing.T) {
		s, pub := newTestService(t)
		g, err := s.CreateGroup(ctx, []string{" Ana ", "Ben"})
		if err != nil {
			t.Fatalf("CreateGroup: %v", err)
		}
		if g.ID != "g1" || g.Revision != 1 || g.Roster[0] != "Ana" || g.UpdatedAt.IsZero() {
			t.Errorf("unexpected group %+v", g)
		}
		if got := pub.actions(); len(got) != 1 || got[0] != core.ActionGroupCreated {
			t.Errorf("published %v", got)
		}
	})

	t.Run("default roster", func(t *testing.T) {
		s, _ := newTestService(t)
		g, err := s.CreateGroup(ctx, nil)
		if err != nil {
			t.Fatalf("CreateGroup: %v", err)
		}
		if len(g.Roster) != 2 || g.Roster[0] != "Alex" || g.Roster[1] != "Jordan" {
			t.Errorf("roster = %v", g.Roster)
		}
	})

	t.Run("configured default roster", func(t *testing.T) {
		s, _ := newTestService(t, WithDefaultRoster([]string{"X", "Y", "Z"}))
		g, _ := s.CreateGroup(ctx, []string{})
		if len(g.Roster) != 3 {
			t.Errorf("roster = %v", g.Roster)
		}
	})

	t.Run("too small", func(t *testing.T) {
		s, pub := newTestService(t)
		if _, err := s.CreateGroup(ctx, []string{"Solo"}); !errors.Is(err, core.ErrRosterTooSmall) {
			t.Errorf("err = %v", err)
		}
		if len(pub.actions()) != 0 {
			t.Error("failed commands must not publish")
		}
	})
}

func TestGroupService_ExpenseLifecycle(t *testing.T) {
	ctx := context.Background()
	s, pub := newTestService(t)
	if _, err := s.CreateGroup(ctx, []string{"Alex", "Jordan"}); err != nil {
		t.Fatal(err)
	}

	g, e, err := s.AddExpense(ctx, "g1", ExpenseInput{
		Description: "Dinner",
		Amount:      "60,00",
		PaidBy:      "Alex",
		SplitAmong:  []string{"Alex", " Jordan"},
	})
	if err != nil {
		t.Fatalf("AddExpense: %v", err)
	}
	if e.ID != "e1" || !e.Amount.Equal(decimal.NewFromInt(60)) || e.CreatedAt.IsZero() {
		t.Errorf("unexpected expense %+v", e)
	}
	if g.Revision != 2 {
		t.Errorf("revision = %d, want 2", g.Revision)
	}

	settlements, err := s.Settlements(ctx, "g1")
	if err != nil {
		t.Fatalf("Settlements: %v", err)
	}
	if len(settlements) != 1 || settlements[0].From != "Jordan" || settlements[0].To != "Alex" ||
		!settlements[0].Amount.Equal(decimal.NewFromInt(30)) {
		t.Errorf("settlements = %+v", settlements)
	}

	balances, err := s.Balances(ctx, "g1")
	if err != nil {
		t.Fatalf("Balances: %v", err)
	}
	if balances[0].Name != "Alex" || !balances[0].Amount.Equal(decimal.NewFromInt(30)) {
		t.Errorf("balances = %+v", balances)
	}

	if _, err := s.RemoveParticipant(ctx, "g1", "Jordan"); !errors.Is(err, core.ErrRosterTooSmall) {
		t.Errorf("remove from minimal roster: %v", err)
	}
	if _, err := s.AddParticipant(ctx, "g1", "Sam"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RemoveParticipant(ctx, "g1", "Jordan"); !errors.Is(err, core.ErrParticipantInUse) {
		t.Errorf("remove referenced participant: %v", err)
	}
	if _, err := s.RemoveParticipant(ctx, "g1", " Sam "); err != nil {
		t.Errorf("remove unreferenced participant: %v", err)
	}

	g, err = s.DeleteExpense(ctx, "g1", "e1")
	if err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}
	if len(g.Expenses) != 0 {
		t.Errorf("expenses = %v", g.Expenses)
	}
	if _, err := s.DeleteExpense(ctx, "g1", "e1"); !errors.Is(err, core.ErrExpenseNotFound) {
		t.Errorf("second delete: %v", err)
	}

	_, sum, err := s.Summary(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.Settlements) != 0 || !sum.TotalExpenses.IsZero() {
		t.Errorf("summary after delete = %+v", sum)
	}

	want := []string{
		core.ActionGroupCreated,
		core.ActionExpenseAdded,
		core.ActionParticipantAdded,
		core.ActionParticipantRemoved,
		core.ActionExpenseDeleted,
	}
	got := pub.actions()
	if len(got) != len(want) {
		t.Fatalf("published %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("action[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestGroupService_AddExpenseValidation(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	s.CreateGroup(ctx, []string{"Alex", "Jordan"})

	tests := []struct {
		name string
		in   ExpenseInput
		want error
	}{
		{"bad amount", ExpenseInput{Description: "x", Amount: "abc", PaidBy: "Alex", SplitAmong: []string{"Alex"}}, core.ErrInvalidAmount},
		{"zero amount", ExpenseInput{Description: "x", Amount: "0", PaidBy: "Alex", SplitAmong: []string{"Alex"}}, core.ErrInvalidAmount},
		{"no description", ExpenseInput{Description: "  ", Amount: "5", PaidBy: "Alex", SplitAmong: []string{"Alex"}}, core.ErrEmptyDescription},
		{"no split", ExpenseInput{Description: "x", Amount: "5", PaidBy: "Alex"}, core.ErrEmptySplit},
		{"unknown payer", ExpenseInput{Description: "x", Amount: "5", PaidBy: "Zoe", SplitAmong: []string{"Alex"}}, core.ErrUnknownParticipant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := s.AddExpense(ctx, "g1", tt.in); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}

	g, _ := s.GetGroup(ctx, "g1")
	if g.Revision != 1 {
		t.Errorf("rejected expenses must not change the group, revision = %d", g.Revision)
	}
}

func TestGroupService_NotFound(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t, WithActivityLister(stubActivity{}))

	if _, err := s.GetGroup(ctx, "nope"); !errors.Is(err, groups.ErrGroupNotFound) {
		t.Errorf("GetGroup: %v", err)
	}
	if _, err := s.AddParticipant(ctx, "nope", "Sam"); !errors.Is(err, groups.ErrGroupNotFound) {
		t.Errorf("AddParticipant: %v", err)
	}
	if _, err := s.Settlements(ctx, "nope"); !errors.Is(err, groups.ErrGroupNotFound) {
		t.Errorf("Settlements: %v", err)
	}
	if _, err := s.Activity(ctx, "nope", 10); !errors.Is(err, groups.ErrGroupNotFound) {
		t.Errorf("Activity: %v", err)
	}
}

func TestGroupService_Activity(t *testing.T) {
	ctx := context.Background()

	s, _ := newTestService(t)
	s.CreateGroup(ctx, nil)
	if _, err := s.Activity(ctx, "g1", 10); !errors.Is(err, ErrActivityUnavailable) {
		t.Errorf("without lister: %v", err)
	}

	lister := stubActivity{entries: []core.Activity{{GroupID: "g1", Revision: 1}, {GroupID: "other", Revision: 4}}}
	s, _ = newTestService(t, WithActivityLister(lister))
	s.CreateGroup(ctx, nil)
	got, err := s.Activity(ctx, "g1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Revision != 1 {
		t.Errorf("activity = %+v", got)
	}
}

func TestGroupService_PublishFailureDoesNotFailCommand(t *testing.T) {
	ctx := context.Background()
	s, pub := newTestService(t)
	pub.err = errors.New("broker down")

	if _, err := s.CreateGroup(ctx, nil); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if _, err := s.AddParticipant(ctx, "g1", "Sam"); err != nil {
		t.Fatalf("AddParticipant: %v", err)
	}
}

func TestGroupService_ConcurrentMutationsAreSerialized(t *testing.T) {
	ctx := context.Background()
	s := NewGroupService(memory.New(), WithIDGenerators(
		func(time.Time) string { return "g1" },
		groups.NewExpenseID,
	))
	if _, err := s.CreateGroup(ctx, nil); err != nil {
		t.Fatal(err)
	}

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := s.AddExpense(ctx, "g1", ExpenseInput{
				Description: "Coffee",
				Amount:      "3",
				PaidBy:      "Alex",
				SplitAmong:  []string{"Alex", "Jordan"},
			})
			if err != nil {
				t.Errorf("AddExpense: %v", err)
			}
		}()
	}
	wg.Wait()

	g, err := s.GetGroup(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Expenses) != workers || g.Revision != workers+1 {
		t.Errorf("expenses = %d, revision = %d", len(g.Expenses), g.Revision)
	}
	if s.locks.len() != 0 {
		t.Errorf("idle locks retained: %d", s.locks.len())
	}
}

// stallingPublisher blocks the first publish until released.
type stallingPublisher struct {
	once     sync.Once
	entered  chan struct{}
	released chan struct{}
}

func (p *stallingPublisher) PublishGroupChanged(ctx context.Context, _ amqp.GroupChangedMessage) error {
	first := false
	p.once.Do(func() { first = true })
	if !first {
		return nil
	}
	close(p.entered)
	select {
	case <-p.released:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestGroupService_SlowPublishDoesNotHoldGroupLock(t *testing.T) {
	ctx := context.Background()
	pub := &stallingPublisher{entered: make(chan struct{}), released: make(chan struct{})}
	s := NewGroupService(memory.New(), WithIDGenerators(
		func(time.Time) string { return "g1" },
		groups.NewExpenseID,
	))
	if _, err := s.CreateGroup(ctx, nil); err != nil {
		t.Fatal(err)
	}
	s.publisher = pub

	firstDone := make(chan error, 1)
	go func() {
		_, err := s.AddParticipant(ctx, "g1", "Sam")
		firstDone <- err
	}()
	<-pub.entered

	secondDone := make(chan error, 1)
	go func() {
		_, err := s.AddParticipant(ctx, "g1", "Kim")
		secondDone <- err
	}()
	select {
	case err := <-secondDone:
		if err != nil {
			t.Fatalf("second AddParticipant: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second mutation blocked behind a stalled publish")
	}

	close(pub.released)
	if err := <-firstDone; err != nil {
		t.Fatalf("first AddParticipant: %v", err)
	}

	g, err := s.GetGroup(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if g.Revision != 3 {
		t.Errorf("revision = %d, want 3", g.Revision)
	}
}
