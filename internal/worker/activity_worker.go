// Package worker turns group change notifications into activity log entries.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dividi/internal/amqp"
	"dividi/internal/core"
	"dividi/internal/groups"
)

// ActivityWorker recomputes a group's summary after each change and records
// a snapshot of it.
type ActivityWorker struct {
	store    groups.Store
	activity groups.ActivityWriter
	now      func() time.Time
}

func NewActivityWorker(store groups.Store, activity groups.ActivityWriter) *ActivityWorker {
	return &ActivityWorker{
		store:    store,
		activity: activity,
		now:      time.Now,
	}
}

// HandleGroupChanged records an activity entry for msg. Messages for groups
// that no longer exist, or that a newer revision has overtaken, are dropped
// without error so the broker does not redeliver them.
func (w *ActivityWorker) HandleGroupChanged(ctx context.Context, msg amqp.GroupChangedMessage) error {
	slog.InfoContext(ctx, "Processing group changed message",
		"group_id", msg.GroupID,
		"revision", msg.Revision,
		"action", msg.Action)

	g, err := w.store.Load(ctx, msg.GroupID)
	if errors.Is(err, groups.ErrGroupNotFound) {
		slog.WarnContext(ctx, "Group not found, skipping activity", "group_id", msg.GroupID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load group: %w", err)
	}

	if g.Revision > msg.Revision {
		slog.DebugContext(ctx, "Stale group changed message",
			"group_id", msg.GroupID,
			"message_revision", msg.Revision,
			"current_revision", g.Revision)
		return nil
	}

	a, err := w.snapshot(g, msg.Action)
	if err != nil {
		return err
	}
	if err := w.activity.RecordActivity(ctx, a); err != nil {
		return fmt.Errorf("record activity: %w", err)
	}

	slog.InfoContext(ctx, "Activity recorded",
		"group_id", a.GroupID,
		"revision", a.Revision,
		"open_settlements", a.OpenSettlements,
		"outstanding", core.FormatAmount(a.Outstanding))
	return nil
}

func (w *ActivityWorker) snapshot(g core.GroupState, action string) (core.Activity, error) {
	sum, err := core.Summarize(g)
	if err != nil {
		return core.Activity{}, fmt.Errorf("summarize group %s: %w", g.ID, err)
	}
	return core.Activity{
		GroupID:         g.ID,
		Revision:        g.Revision,
		Action:          action,
		TotalExpenses:   sum.TotalExpenses,
		OpenSettlements: len(sum.Settlements),
		Outstanding:     core.Outstanding(sum.Settlements),
		RecordedAt:      w.now().UTC(),
	}, nil
}
