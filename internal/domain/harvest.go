package domain

import "time"

// HarvestMode is chosen once per run from the state of the store.
type HarvestMode string

const (
	// ModeBackfill enumerates every available posting into an empty store.
	ModeBackfill HarvestMode = "backfill"
	// ModeIncremental fetches only postings newer than the last stored one.
	ModeIncremental HarvestMode = "incremental"
)

// HarvestStats holds statistics about a harvest run.
type HarvestStats struct {
	RunID             string      `db:"run_id"`
	Mode              HarvestMode `db:"mode"`
	StartedAt         time.Time   `db:"started_at"`
	Pages             int         `db:"pages"`
	Fetched           int         `db:"fetched"`
	Inserted          int         `db:"inserted"`
	Skipped           int         `db:"skipped"`
	Errors            int         `db:"errors"`
	CompaniesInserted int         `db:"companies_inserted"`
	CompaniesHidden   int         `db:"companies_hidden"`
	Published         int         `db:"published"`
	// Truncated marks a run cut short by a failed page fetch; what was
	// collected before the failure is still stored.
	Truncated bool          `db:"truncated"`
	Duration  time.Duration `db:"duration"`
}
