package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Open connects to the store and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if driver == DriverSQLite {
		// one writer; the harvest runs on a single connection anyway
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{
			"PRAGMA journal_mode=WAL",
			"PRAGMA busy_timeout=5000",
			"PRAGMA foreign_keys=ON",
		} {
			if _, err := db.ExecContext(ctx, pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("exec %s: %w", pragma, err)
			}
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// Migrate creates the tables when they do not exist yet.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	identity := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if db.DriverName() == DriverPostgres {
		identity = "BIGSERIAL PRIMARY KEY"
	}

	if _, err := db.ExecContext(ctx, strings.ReplaceAll(schema, "{{identity}}", identity)); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS address (
	row_id       {{identity}},
	street1      TEXT NOT NULL DEFAULT '',
	street2      TEXT NOT NULL DEFAULT '',
	city         TEXT NOT NULL DEFAULT '',
	city_de      TEXT NOT NULL DEFAULT '',
	city_en      TEXT NOT NULL DEFAULT '',
	city_fr      TEXT NOT NULL DEFAULT '',
	zip_code     TEXT NOT NULL DEFAULT '',
	country_code TEXT NOT NULL DEFAULT '',
	tel_1        TEXT NOT NULL DEFAULT '',
	tel_2        TEXT NOT NULL DEFAULT '',
	fax          TEXT NOT NULL DEFAULT '',
	firstname    TEXT NOT NULL DEFAULT '',
	lastname     TEXT NOT NULL DEFAULT '',
	email        TEXT NOT NULL DEFAULT '',
	latitude     DOUBLE PRECISION NOT NULL DEFAULT 0,
	longitude    DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS company (
	id                 TEXT PRIMARY KEY,
	description_de     TEXT NOT NULL DEFAULT '',
	description_fr     TEXT NOT NULL DEFAULT '',
	description_en     TEXT NOT NULL DEFAULT '',
	slug               TEXT NOT NULL DEFAULT '',
	is_visible         BOOLEAN NOT NULL DEFAULT FALSE,
	datapool_id        TEXT NOT NULL DEFAULT '',
	name               TEXT NOT NULL DEFAULT '',
	last_modified      TEXT NOT NULL DEFAULT '',
	industry           TEXT NOT NULL DEFAULT '',
	founding_year      TEXT NOT NULL DEFAULT '',
	url                TEXT NOT NULL DEFAULT '',
	phone              TEXT NOT NULL DEFAULT '',
	address_id         BIGINT REFERENCES address (row_id),
	contact_address_id BIGINT REFERENCES address (row_id),
	ratings_total      BIGINT NOT NULL DEFAULT 0,
	ratings_average    DOUBLE PRECISION NOT NULL DEFAULT 0,
	social_facebook    TEXT NOT NULL DEFAULT '',
	social_twitter     TEXT NOT NULL DEFAULT '',
	social_linkedin    TEXT NOT NULL DEFAULT '',
	social_youtube     TEXT NOT NULL DEFAULT '',
	social_instagram   TEXT NOT NULL DEFAULT '',
	social_xing        TEXT NOT NULL DEFAULT '',
	social_viadeo      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS jobs (
	row_id                         {{identity}},
	job_id                         TEXT NOT NULL UNIQUE,
	detail_de                      TEXT NOT NULL DEFAULT '',
	detail_fr                      TEXT NOT NULL DEFAULT '',
	detail_en                      TEXT NOT NULL DEFAULT '',
	title                          TEXT NOT NULL DEFAULT '',
	raw_template                   TEXT NOT NULL DEFAULT '',
	slug                           TEXT NOT NULL DEFAULT '',
	company_slug                   TEXT NOT NULL DEFAULT '',
	application_method             TEXT NOT NULL DEFAULT '',
	job_source_type                TEXT NOT NULL DEFAULT '',
	last_online_date               TEXT NOT NULL DEFAULT '',
	datapool_id                    BIGINT NOT NULL DEFAULT 0,
	company_name                   TEXT NOT NULL DEFAULT '',
	company_id                     TEXT NOT NULL DEFAULT '',
	industry_id                    BIGINT NOT NULL DEFAULT 0,
	publication_date               TEXT NOT NULL DEFAULT '',
	initial_publication_date       TEXT NOT NULL DEFAULT '',
	place                          TEXT NOT NULL DEFAULT '',
	street                         TEXT NOT NULL DEFAULT '',
	external_url                   TEXT NOT NULL DEFAULT '',
	application_url                TEXT NOT NULL DEFAULT '',
	zipcode                        TEXT NOT NULL DEFAULT '',
	source_platform_id             TEXT NOT NULL DEFAULT '',
	synonym                        TEXT NOT NULL DEFAULT '',
	template_profession            TEXT NOT NULL DEFAULT '',
	template_text                  TEXT NOT NULL DEFAULT '',
	template_lead_text             TEXT NOT NULL DEFAULT '',
	template_contact_address       TEXT NOT NULL DEFAULT '',
	offer_id                       TEXT NOT NULL DEFAULT '',
	is_active                      BOOLEAN NOT NULL DEFAULT FALSE,
	is_responsive                  BOOLEAN NOT NULL DEFAULT FALSE,
	is_paid                        BOOLEAN NOT NULL DEFAULT FALSE,
	is_highlighted                 BOOLEAN NOT NULL DEFAULT FALSE,
	coordinates_lon                DOUBLE PRECISION NOT NULL DEFAULT 0,
	coordinates_lat                DOUBLE PRECISION NOT NULL DEFAULT 0,
	source_hostname                TEXT NOT NULL DEFAULT '',
	headhunter_application_allowed BOOLEAN NOT NULL DEFAULT FALSE,
	contact_first_name             TEXT NOT NULL DEFAULT '',
	contact_last_name              TEXT NOT NULL DEFAULT '',
	contact_gender                 TEXT NOT NULL DEFAULT '',
	contact_city                   TEXT NOT NULL DEFAULT '',
	contact_street                 TEXT NOT NULL DEFAULT '',
	contact_country_code           TEXT NOT NULL DEFAULT '',
	contact_postal_code            TEXT NOT NULL DEFAULT '',
	contact_lat                    DOUBLE PRECISION NOT NULL DEFAULT 0,
	contact_lon                    DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_jobs_company_id ON jobs (company_id);

CREATE TABLE IF NOT EXISTS harvest_runs (
	run_id             TEXT PRIMARY KEY,
	mode               TEXT NOT NULL,
	started_at         TIMESTAMP NOT NULL,
	duration_ms        BIGINT NOT NULL DEFAULT 0,
	pages              INTEGER NOT NULL DEFAULT 0,
	fetched            INTEGER NOT NULL DEFAULT 0,
	inserted           INTEGER NOT NULL DEFAULT 0,
	skipped            INTEGER NOT NULL DEFAULT 0,
	errors             INTEGER NOT NULL DEFAULT 0,
	companies_inserted INTEGER NOT NULL DEFAULT 0,
	companies_hidden   INTEGER NOT NULL DEFAULT 0,
	published          INTEGER NOT NULL DEFAULT 0,
	truncated          BOOLEAN NOT NULL DEFAULT FALSE
);
`

// insertQuery builds a named INSERT for columns.
func insertQuery(table string, columns []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (:%s)",
		table,
		strings.Join(columns, ", "),
		strings.Join(columns, ", :"),
	)
}
