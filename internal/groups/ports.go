package groups

import (
	"context"
	"errors"

	"dividi/internal/core"
)

var ErrGroupNotFound = errors.New("group not found")

// Ports for outbound adapters.
type (
	// Store loads and saves the durable state of a group. Save overwrites
	// whatever is stored: the last writer wins.
	Store interface {
		Load(ctx context.Context, id string) (core.GroupState, error)
		Save(ctx context.Context, g core.GroupState) error
	}

	// ActivityWriter appends derived snapshots to a group's activity log.
	ActivityWriter interface {
		RecordActivity(ctx context.Context, a core.Activity) error
	}

	// ActivityLister returns the most recent activity entries, newest first.
	ActivityLister interface {
		ListActivity(ctx context.Context, groupID string, limit int) ([]core.Activity, error)
	}
)
