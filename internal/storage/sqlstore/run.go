package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"jobharvest/internal/domain"
)

// RunStore keeps one row per harvest run.
type RunStore struct {
	db *sqlx.DB
}

func NewRunStore(db *sqlx.DB) *RunStore {
	return &RunStore{db: db}
}

func (s *RunStore) Record(ctx context.Context, stats *domain.HarvestStats) error {
	exec := GetExecutor(ctx, s.db)
	query := `
		INSERT INTO harvest_runs (
			run_id, mode, started_at, duration_ms, pages, fetched, inserted, skipped,
			errors, companies_inserted, companies_hidden, published, truncated
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := exec.ExecContext(ctx, exec.Rebind(query),
		stats.RunID,
		string(stats.Mode),
		stats.StartedAt.UTC(),
		stats.Duration.Milliseconds(),
		stats.Pages,
		stats.Fetched,
		stats.Inserted,
		stats.Skipped,
		stats.Errors,
		stats.CompaniesInserted,
		stats.CompaniesHidden,
		stats.Published,
		stats.Truncated,
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", stats.RunID, err)
	}
	return nil
}

// Count returns how many runs have been recorded.
func (s *RunStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &count, "SELECT COUNT(*) FROM harvest_runs")
	return count, err
}
