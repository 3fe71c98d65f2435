// Package backend assembles the storage, cache and notification adapters
// selected by configuration.
package backend

import (
	"context"
	"time"

	"dividi/internal/amqp"
	"dividi/internal/groups"
)

type CleanupFunc func() error

// ActivityLog is implemented by backends that keep the derived activity log.
type ActivityLog interface {
	groups.ActivityWriter
	groups.ActivityLister
}

// Result is everything a process needs from the selected backend.
type Result struct {
	Store groups.Store
	// Activity is nil when the backend keeps no activity log.
	Activity ActivityLog
	// Publisher is nil when AMQP is not configured or unreachable.
	Publisher   *amqp.Client
	ReadyChecks map[string]func(context.Context) error
	Cleanup     CleanupFunc
}

type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*Result, error)
}

type Config struct {
	Type BackendType

	SeedDir      string
	SQLiteDBPath string
	DatabaseURL  string
	MySQLDSN     string

	CacheSize int
	CacheTTL  time.Duration

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

type BackendType string

const (
	MemoryBackend   BackendType = "memory"
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	MySQLBackend    BackendType = "mysql"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend, PostgresBackend, MySQLBackend:
		return true
	}
	return false
}
