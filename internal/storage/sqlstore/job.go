package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"jobharvest/internal/domain"
)

var jobColumns = []string{
	"job_id", "detail_de", "detail_fr", "detail_en", "title", "raw_template", "slug",
	"company_slug", "application_method", "job_source_type", "last_online_date",
	"datapool_id", "company_name", "company_id", "industry_id", "publication_date",
	"initial_publication_date", "place", "street", "external_url", "application_url",
	"zipcode", "source_platform_id", "synonym", "template_profession", "template_text",
	"template_lead_text", "template_contact_address", "offer_id", "is_active",
	"is_responsive", "is_paid", "is_highlighted", "coordinates_lon", "coordinates_lat",
	"source_hostname", "headhunter_application_allowed", "contact_first_name",
	"contact_last_name", "contact_gender", "contact_city", "contact_street",
	"contact_country_code", "contact_postal_code", "contact_lat", "contact_lon",
}

var insertJobQuery = insertQuery("jobs", jobColumns) + " ON CONFLICT (job_id) DO NOTHING RETURNING row_id"

type JobStore struct {
	db *sqlx.DB
}

func NewJobStore(db *sqlx.DB) *JobStore {
	return &JobStore{db: db}
}

func (s *JobStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &count, "SELECT COUNT(*) FROM jobs")
	return count, err
}

func (s *JobStore) Exists(ctx context.Context, jobID string) (bool, error) {
	exec := GetExecutor(ctx, s.db)
	var exists bool
	err := sqlx.GetContext(ctx, exec, &exists,
		exec.Rebind("SELECT EXISTS (SELECT 1 FROM jobs WHERE job_id = ?)"), jobID)
	return exists, err
}

// Insert stores job and returns its surrogate id. A job whose job_id is
// already stored is left untouched and its existing id returned.
func (s *JobStore) Insert(ctx context.Context, job *domain.Job) (int64, error) {
	exec := GetExecutor(ctx, s.db)

	id, err := insertReturningID(ctx, exec, insertJobQuery, job)
	if errors.Is(err, sql.ErrNoRows) {
		err = sqlx.GetContext(ctx, exec, &id,
			exec.Rebind("SELECT row_id FROM jobs WHERE job_id = ?"), job.JobID)
	}
	if err != nil {
		return 0, fmt.Errorf("insert job %s: %w", job.JobID, err)
	}

	job.RowID = id
	return id, nil
}

// LatestJobID returns the job_id inserted last, or "" for an empty store.
// Jobs are inserted oldest first, so this is the newest posting known.
func (s *JobStore) LatestJobID(ctx context.Context) (string, error) {
	var jobID string
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &jobID,
		"SELECT job_id FROM jobs ORDER BY row_id DESC LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return jobID, err
}

// ClearCompanyID detaches every job from a company that cannot be fetched.
func (s *JobStore) ClearCompanyID(ctx context.Context, companyID string) (int64, error) {
	exec := GetExecutor(ctx, s.db)
	res, err := exec.ExecContext(ctx,
		exec.Rebind("UPDATE jobs SET company_id = '' WHERE company_id = ?"), companyID)
	if err != nil {
		return 0, fmt.Errorf("clear company %s: %w", companyID, err)
	}
	return res.RowsAffected()
}

func (s *JobStore) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	exec := GetExecutor(ctx, s.db)
	var job domain.Job
	err := sqlx.GetContext(ctx, exec, &job, exec.Rebind("SELECT * FROM jobs WHERE job_id = ?"), jobID)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// insertReturningID runs a named INSERT ... RETURNING and scans the id.
// sql.ErrNoRows means the insert was skipped by ON CONFLICT.
func insertReturningID(ctx context.Context, exec sqlx.ExtContext, query string, arg any) (int64, error) {
	rows, err := sqlx.NamedQueryContext(ctx, exec, query, arg)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, err
		}
		return 0, sql.ErrNoRows
	}

	var id int64
	if err := rows.Scan(&id); err != nil {
		return 0, err
	}
	return id, rows.Err()
}
