package backend

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"dividi/internal/cache"
	"dividi/internal/config"
	"dividi/internal/core"
	"dividi/internal/groups/memory"
	"dividi/internal/storage"
)

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("nil config should fail")
	}

	cfg, err := FromAppConfig(&config.Config{DataBackend: "sqlite", SQLiteDBPath: "x.db", CacheSize: 5, CacheTTL: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Type != SQLiteBackend || cfg.CacheSize != 5 {
		t.Errorf("cfg = %+v", cfg)
	}

	if _, err := FromAppConfig(&config.Config{DataBackend: "csv"}); err == nil {
		t.Error("unknown backend should fail")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"postgres without url", Config{Type: PostgresBackend}, true},
		{"mysql without dsn", Config{Type: MySQLBackend}, true},
		{"mysql", Config{Type: MySQLBackend, MySQLDSN: "u:p@tcp(db:3306)/dividi"}, false},
		{"cache without ttl", Config{Type: MemoryBackend, CacheSize: 10}, true},
		{"invalid type", Config{Type: "csv"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestCreateBackend_Memory(t *testing.T) {
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: MemoryBackend})
	if err != nil {
		t.Fatal(err)
	}
	defer res.Close()

	if _, ok := res.Store.(*memory.Store); !ok {
		t.Errorf("store = %T", res.Store)
	}
	if res.Activity != nil || res.Publisher != nil {
		t.Error("memory backend has no activity log or publisher")
	}
}

func TestCreateBackend_SQLiteWithCache(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dividi.db")
	res, err := NewFactory(nil).CreateBackend(ctx, Config{
		Type:         SQLiteBackend,
		SQLiteDBPath: path,
		CacheSize:    10,
		CacheTTL:     time.Minute,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := res.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	}()

	if _, ok := res.Store.(*cache.Store); !ok {
		t.Errorf("store = %T, want cache decorator", res.Store)
	}
	if _, ok := res.Activity.(*storage.SQLiteRepository); !ok {
		t.Errorf("activity = %T", res.Activity)
	}
	if err := res.ReadyChecks["sqlite"](ctx); err != nil {
		t.Errorf("ready check: %v", err)
	}

	g, _ := core.NewGroupState("g1", []string{"Alex", "Jordan"})
	if err := res.Store.Save(ctx, g); err != nil {
		t.Fatal(err)
	}
	if _, err := res.Store.Load(ctx, "g1"); err != nil {
		t.Fatal(err)
	}
}

func TestChain(t *testing.T) {
	calls := 0
	errA := errors.New("a")
	fn := chain(
		func() error { calls++; return errA },
		nil,
		func() error { calls++; return nil },
	)
	if err := fn(); !errors.Is(err, errA) || calls != 2 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}
}

func TestCreateBackend_MemorySeeded(t *testing.T) {
	dir := t.TempDir()
	rec := `{"people":["A","B"],"expenses":[],"lastUpdated":"2024-05-01T10:00:00Z"}`
	if err := os.WriteFile(filepath.Join(dir, "expenses_seeded.json"), []byte(rec), 0o600); err != nil {
		t.Fatal(err)
	}

	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: MemoryBackend, SeedDir: dir})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := res.Store.Load(context.Background(), "seeded"); err != nil {
		t.Errorf("seeded group: %v", err)
	}
}
