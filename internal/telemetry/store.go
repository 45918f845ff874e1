package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS routing_calls (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at   TEXT NOT NULL,
	agent_name   TEXT NOT NULL,
	provider     TEXT NOT NULL,
	model_name   TEXT NOT NULL,
	actual_model TEXT NOT NULL,
	tokens_in    INTEGER NOT NULL,
	tokens_out   INTEGER NOT NULL,
	cost_usd     REAL NOT NULL,
	latency_ms   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS budget_periods (
	period_start TEXT NOT NULL,
	provider     TEXT NOT NULL,
	spent_usd    REAL NOT NULL DEFAULT 0,
	calls        INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (period_start, provider)
);
`

// Store is the local fallback ledger for routing telemetry, used when
// the command center is unreachable.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the SQLite ledger at path.
func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure telemetry dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert appends a routing call and rolls its cost into the budget row
// for the call's month.
func (s *Store) Insert(ctx context.Context, call RoutingCall) error {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO routing_calls
			(created_at, agent_name, provider, model_name, actual_model,
			 tokens_in, tokens_out, cost_usd, latency_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		now.Format(time.RFC3339), call.AgentName, call.Provider,
		call.ModelName, call.ActualModel,
		call.TokensIn, call.TokensOut, call.CostUSD, call.LatencyMs,
	)
	if err != nil {
		return fmt.Errorf("insert routing call: %w", err)
	}

	periodStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO budget_periods (period_start, provider, spent_usd, calls)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(period_start, provider) DO UPDATE SET
			spent_usd = spent_usd + excluded.spent_usd,
			calls     = calls + 1`,
		periodStart.Format("2006-01-02"), call.Provider, call.CostUSD,
	)
	if err != nil {
		return fmt.Errorf("upsert budget period: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// BudgetPeriod is one provider's accumulated spend for a month.
type BudgetPeriod struct {
	PeriodStart string
	Provider    string
	SpentUSD    float64
	Calls       int
}

// Periods returns all budget rows, newest period first.
func (s *Store) Periods(ctx context.Context) ([]BudgetPeriod, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT period_start, provider, spent_usd, calls
		FROM budget_periods
		ORDER BY period_start DESC, provider ASC`)
	if err != nil {
		return nil, fmt.Errorf("query budget periods: %w", err)
	}
	defer rows.Close()

	var periods []BudgetPeriod
	for rows.Next() {
		var p BudgetPeriod
		if err := rows.Scan(&p.PeriodStart, &p.Provider, &p.SpentUSD, &p.Calls); err != nil {
			return nil, fmt.Errorf("scan budget period: %w", err)
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// CallCount returns the number of recorded routing calls.
func (s *Store) CallCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM routing_calls`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count routing calls: %w", err)
	}
	return n, nil
}
