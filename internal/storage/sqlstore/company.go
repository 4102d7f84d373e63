package sqlstore

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"jobharvest/internal/domain"
)

var companyColumns = []string{
	"id", "description_de", "description_fr", "description_en", "slug", "is_visible",
	"datapool_id", "name", "last_modified", "industry", "founding_year", "url", "phone",
	"address_id", "contact_address_id", "ratings_total", "ratings_average",
	"social_facebook", "social_twitter", "social_linkedin", "social_youtube",
	"social_instagram", "social_xing", "social_viadeo",
}

var insertCompanyQuery = insertQuery("company", companyColumns)

type CompanyStore struct {
	db        *sqlx.DB
	addresses *AddressStore
}

func NewCompanyStore(db *sqlx.DB) *CompanyStore {
	return &CompanyStore{db: db, addresses: NewAddressStore(db)}
}

func (s *CompanyStore) Exists(ctx context.Context, id string) (bool, error) {
	exec := GetExecutor(ctx, s.db)
	var exists bool
	err := sqlx.GetContext(ctx, exec, &exists,
		exec.Rebind("SELECT EXISTS (SELECT 1 FROM company WHERE id = ?)"), id)
	return exists, err
}

// Insert stores the company after its owned addresses. It reports false when
// the company was already stored.
func (s *CompanyStore) Insert(ctx context.Context, company *domain.Company) (bool, error) {
	exists, err := s.Exists(ctx, company.ID)
	if err != nil {
		return false, fmt.Errorf("check company %s: %w", company.ID, err)
	}
	if exists {
		return false, nil
	}

	if company.Address != nil {
		id, err := s.addresses.Insert(ctx, company.Address)
		if err != nil {
			return false, fmt.Errorf("company %s: %w", company.ID, err)
		}
		company.AddressID = &id
	}
	if company.ContactAddress != nil {
		id, err := s.addresses.Insert(ctx, company.ContactAddress)
		if err != nil {
			return false, fmt.Errorf("company %s contact: %w", company.ID, err)
		}
		company.ContactAddressID = &id
	}

	if _, err := sqlx.NamedExecContext(ctx, GetExecutor(ctx, s.db), insertCompanyQuery, company); err != nil {
		return false, fmt.Errorf("insert company %s: %w", company.ID, err)
	}
	return true, nil
}

// MissingIDs lists the company ids referenced by jobs but not stored yet.
func (s *CompanyStore) MissingIDs(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT company_id
		FROM jobs
		WHERE company_id <> ''
		  AND company_id NOT IN (SELECT id FROM company)
		ORDER BY company_id`

	var ids []string
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &ids, query)
	return ids, err
}

func (s *CompanyStore) Get(ctx context.Context, id string) (*domain.Company, error) {
	exec := GetExecutor(ctx, s.db)
	var company domain.Company
	err := sqlx.GetContext(ctx, exec, &company, exec.Rebind("SELECT * FROM company WHERE id = ?"), id)
	if err != nil {
		return nil, err
	}
	return &company, nil
}
