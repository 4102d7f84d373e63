package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"jobharvest/internal/domain"
)

type JobStore interface {
	Count(ctx context.Context) (int64, error)
	Exists(ctx context.Context, jobID string) (bool, error)
	Insert(ctx context.Context, job *domain.Job) (int64, error)
	LatestJobID(ctx context.Context) (string, error)
	ClearCompanyID(ctx context.Context, companyID string) (int64, error)
}

type CompanyStore interface {
	Insert(ctx context.Context, company *domain.Company) (bool, error)
	MissingIDs(ctx context.Context) ([]string, error)
}

type RunStore interface {
	Record(ctx context.Context, stats *domain.HarvestStats) error
}

type Source interface {
	ID() string
	SearchPage(ctx context.Context, page, rows int) ([]string, error)
	LatestJobID(ctx context.Context) (string, error)
	FetchJob(ctx context.Context, jobID string) (*domain.Job, error)
	FetchCompany(ctx context.Context, companyID string) (*domain.Company, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, job *domain.Job) error
	Close() error
}
