package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"dividi/internal/core"
	"dividi/internal/groups"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Load implements groups.Store
func (r *SQLiteRepository) Load(ctx context.Context, id string) (core.GroupState, error) {
	g := core.GroupState{ID: id}

	var updatedAt string
	err := r.db.QueryRowContext(ctx,
		`SELECT revision, updated_at FROM expense_groups WHERE id = ?`, id,
	).Scan(&g.Revision, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return core.GroupState{}, groups.ErrGroupNotFound
	}
	if err != nil {
		return core.GroupState{}, fmt.Errorf("get group: %w", err)
	}
	if g.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return core.GroupState{}, fmt.Errorf("parse updated_at: %w", err)
	}

	if g.Roster, err = r.loadRoster(ctx, id); err != nil {
		return core.GroupState{}, err
	}
	if g.Expenses, err = r.loadExpenses(ctx, id); err != nil {
		return core.GroupState{}, err
	}

	return g, nil
}

func (r *SQLiteRepository) loadRoster(ctx context.Context, id string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT name FROM participants WHERE group_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	roster := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		roster = append(roster, name)
	}
	return roster, rows.Err()
}

func (r *SQLiteRepository) loadExpenses(ctx context.Context, id string) ([]core.Expense, error) {
	beneficiaries, err := r.loadBeneficiaries(ctx, id)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, description, amount, payer, created_at
		FROM expenses WHERE group_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	expenses := []core.Expense{}
	for rows.Next() {
		var (
			e         core.Expense
			amount    string
			createdAt sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Description, &amount, &e.Payer, &createdAt); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		if e.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("parse amount of expense %s: %w", e.ID, err)
		}
		if createdAt.Valid && createdAt.String != "" {
			if e.CreatedAt, err = parseTime(createdAt.String); err != nil {
				return nil, fmt.Errorf("parse created_at of expense %s: %w", e.ID, err)
			}
		}
		e.Beneficiaries = beneficiaries[e.ID]
		expenses = append(expenses, e)
	}
	return expenses, rows.Err()
}

func (r *SQLiteRepository) loadBeneficiaries(ctx context.Context, id string) (map[string][]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT expense_id, name FROM expense_beneficiaries
		WHERE group_id = ? ORDER BY expense_id, position`, id)
	if err != nil {
		return nil, fmt.Errorf("list beneficiaries: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]string)
	for rows.Next() {
		var expenseID, name string
		if err := rows.Scan(&expenseID, &name); err != nil {
			return nil, fmt.Errorf("scan beneficiary: %w", err)
		}
		out[expenseID] = append(out[expenseID], name)
	}
	return out, rows.Err()
}

// Save implements groups.Store. The group's rows are replaced in a single
// transaction.
func (r *SQLiteRepository) Save(ctx context.Context, g core.GroupState) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO expense_groups (id, revision, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET revision = excluded.revision, updated_at = excluded.updated_at`,
		g.ID, g.Revision, formatTime(g.UpdatedAt)); err != nil {
		return fmt.Errorf("upsert group: %w", err)
	}

	for _, table := range []string{"expense_beneficiaries", "expenses", "participants"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE group_id = ?`, g.ID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for i, name := range g.Roster {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO participants (group_id, position, name) VALUES (?, ?, ?)`,
			g.ID, i, name); err != nil {
			return fmt.Errorf("insert participant %q: %w", name, err)
		}
	}

	for i, e := range g.Expenses {
		var createdAt sql.NullString
		if !e.CreatedAt.IsZero() {
			createdAt = sql.NullString{String: formatTime(e.CreatedAt), Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO expenses (group_id, id, position, description, amount, payer, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			g.ID, e.ID, i, e.Description, e.Amount.String(), e.Payer, createdAt); err != nil {
			return fmt.Errorf("insert expense %s: %w", e.ID, err)
		}
		for j, name := range e.Beneficiaries {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO expense_beneficiaries (group_id, expense_id, position, name)
				VALUES (?, ?, ?, ?)`,
				g.ID, e.ID, j, name); err != nil {
				return fmt.Errorf("insert beneficiary %q of expense %s: %w", name, e.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	slog.DebugContext(ctx, "Group saved to SQLite",
		"group_id", g.ID,
		"revision", g.Revision,
		"participants", len(g.Roster),
		"expenses", len(g.Expenses))

	return nil
}

// RecordActivity implements groups.ActivityWriter. Recording the same
// revision twice is a no-op, so redelivered messages are harmless.
func (r *SQLiteRepository) RecordActivity(ctx context.Context, a core.Activity) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO group_activity
			(group_id, revision, action, total_expenses, open_settlements, outstanding, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(group_id, revision) DO NOTHING`,
		a.GroupID, a.Revision, a.Action, a.TotalExpenses.String(), a.OpenSettlements,
		a.Outstanding.String(), formatTime(a.RecordedAt))
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

// ListActivity implements groups.ActivityLister.
func (r *SQLiteRepository) ListActivity(ctx context.Context, groupID string, limit int) ([]core.Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT revision, action, total_expenses, open_settlements, outstanding, recorded_at
		FROM group_activity WHERE group_id = ?
		ORDER BY revision DESC LIMIT ?`, groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	out := []core.Activity{}
	for rows.Next() {
		a := core.Activity{GroupID: groupID}
		var total, outstanding, recordedAt string
		if err := rows.Scan(&a.Revision, &a.Action, &total, &a.OpenSettlements, &outstanding, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if a.TotalExpenses, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("parse total_expenses: %w", err)
		}
		if a.Outstanding, err = decimal.NewFromString(outstanding); err != nil {
			return nil, fmt.Errorf("parse outstanding: %w", err)
		}
		if a.RecordedAt, err = parseTime(recordedAt); err != nil {
			return nil, fmt.Errorf("parse recorded_at: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
