package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"jobharvest/internal/config"
	"jobharvest/internal/domain"
	"jobharvest/internal/source/jobup"
)

// ErrGatewayRetriesExhausted is returned when a search page keeps failing
// with a bad gateway beyond the configured number of retries.
var ErrGatewayRetriesExhausted = errors.New("bad gateway retries exhausted")

type HarvestService struct {
	source    Source
	jobs      JobStore
	companies CompanyStore
	runs      RunStore
	txManager TransactionManager
	publisher Publisher
	logger    *slog.Logger
	config    config.HarvestConfig
	rows      int

	// sleep paces consecutive API calls.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewHarvestService(
	source Source,
	jobs JobStore,
	companies CompanyStore,
	runs RunStore,
	txManager TransactionManager,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.HarvestConfig,
	rows int,
) *HarvestService {
	return &HarvestService{
		source:    source,
		jobs:      jobs,
		companies: companies,
		runs:      runs,
		txManager: txManager,
		publisher: publisher,
		logger:    logger.With("source", source.ID()),
		config:    cfg,
		rows:      rows,
		sleep:     sleepContext,
	}
}

// Harvest runs one backfill or incremental pass, chosen by whether the store
// already holds jobs, followed by the company post-pass.
func (s *HarvestService) Harvest(ctx context.Context) (*domain.HarvestStats, error) {
	stats := &domain.HarvestStats{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}

	count, err := s.jobs.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	stats.Mode = domain.ModeIncremental
	if count == 0 {
		stats.Mode = domain.ModeBackfill
	}

	logger := s.logger.With("run_id", stats.RunID, "mode", stats.Mode)
	logger.Info("starting harvest", "stored_jobs", count)

	switch stats.Mode {
	case domain.ModeBackfill:
		err = s.backfill(ctx, logger, stats)
	default:
		err = s.incremental(ctx, logger, stats)
	}
	if err != nil {
		return stats, err
	}

	if err := s.resolveCompanies(ctx, logger, stats); err != nil {
		return stats, fmt.Errorf("resolve companies: %w", err)
	}

	stats.Duration = time.Since(stats.StartedAt)

	if err := s.runs.Record(ctx, stats); err != nil {
		return stats, fmt.Errorf("record run: %w", err)
	}

	logger.Info("harvest completed",
		"pages", stats.Pages,
		"fetched", stats.Fetched,
		"inserted", stats.Inserted,
		"skipped", stats.Skipped,
		"errors", stats.Errors,
		"companies_inserted", stats.CompaniesInserted,
		"companies_hidden", stats.CompaniesHidden,
		"published", stats.Published,
		"truncated", stats.Truncated,
		"duration", stats.Duration,
	)

	return stats, nil
}

func (s *HarvestService) backfill(ctx context.Context, logger *slog.Logger, stats *domain.HarvestStats) error {
	pages, err := s.collectPages(ctx, logger, stats)
	if err != nil {
		return err
	}

	// oldest page first, oldest job first within a page
	slices.Reverse(pages)
	for i, ids := range pages {
		slices.Reverse(ids)

		if i > 0 {
			if err := s.sleep(ctx, s.config.PageDelay); err != nil {
				return err
			}
		}
		if err := s.storeBatch(ctx, logger, stats, ids); err != nil {
			return fmt.Errorf("store batch %d of %d: %w", i+1, len(pages), err)
		}
	}
	return nil
}

// collectPages walks the search until the API signals the end of results.
// Pages are returned in API order, newest first.
func (s *HarvestService) collectPages(ctx context.Context, logger *slog.Logger, stats *domain.HarvestStats) ([][]string, error) {
	var (
		pages   [][]string
		retries int
	)

	for page := 1; s.config.MaxPages == 0 || page <= s.config.MaxPages; {
		ids, err := s.source.SearchPage(ctx, page, s.rows)
		switch outcome := jobup.OutcomeOf(err); {
		case err == nil:
		case outcome == jobup.OutcomeSearchLimit:
			logger.Info("search limit reached", "page", page)
			return pages, nil
		case outcome == jobup.OutcomeBadGateway:
			retries++
			if s.config.MaxGatewayRetries > 0 && retries > s.config.MaxGatewayRetries {
				return nil, fmt.Errorf("search page %d: %w", page, ErrGatewayRetriesExhausted)
			}
			logger.Warn("bad gateway, retrying page", "page", page, "attempt", retries, "backoff", s.config.GatewayBackoff)
			if err := s.sleep(ctx, s.config.GatewayBackoff); err != nil {
				return nil, err
			}
			continue
		case isFatal(ctx, err):
			return nil, err
		default:
			logger.Error("search page failed, keeping collected pages", "page", page, "outcome", outcome, "error", err)
			stats.Truncated = true
			return pages, nil
		}

		retries = 0
		stats.Pages++
		if len(ids) == 0 {
			return pages, nil
		}
		pages = append(pages, ids)
		logger.Debug("collected search page", "page", page, "jobs", len(ids))

		page++
		if err := s.sleep(ctx, s.config.SearchDelay); err != nil {
			return nil, err
		}
	}

	logger.Warn("stopped at max pages", "max_pages", s.config.MaxPages)
	return pages, nil
}

func (s *HarvestService) incremental(ctx context.Context, logger *slog.Logger, stats *domain.HarvestStats) error {
	newest, err := s.source.LatestJobID(ctx)
	if err != nil {
		return fmt.Errorf("fetch latest job id: %w", err)
	}

	exists, err := s.jobs.Exists(ctx, newest)
	if err != nil {
		return fmt.Errorf("check job %s: %w", newest, err)
	}
	// nothing new; Harvest still runs the company post-pass so companies
	// missed by an earlier run get resolved
	if exists {
		logger.Info("no new jobs", "latest_job_id", newest)
		return nil
	}

	cutoff, err := s.jobs.LatestJobID(ctx)
	if err != nil {
		return fmt.Errorf("read cutoff: %w", err)
	}

	ids, err := s.collectSince(ctx, logger, stats, cutoff)
	if err != nil {
		return err
	}

	slices.Reverse(ids)
	if err := s.storeBatch(ctx, logger, stats, ids); err != nil {
		return fmt.Errorf("store new jobs: %w", err)
	}
	return nil
}

// collectSince returns every job ID listed before cutoff, newest first.
func (s *HarvestService) collectSince(ctx context.Context, logger *slog.Logger, stats *domain.HarvestStats, cutoff string) ([]string, error) {
	var collected []string

	for page := 1; s.config.MaxPages == 0 || page <= s.config.MaxPages; page++ {
		if page > 1 {
			if err := s.sleep(ctx, s.config.SearchDelay); err != nil {
				return nil, err
			}
		}

		ids, err := s.source.SearchPage(ctx, page, s.rows)
		if err != nil {
			if isFatal(ctx, err) {
				return nil, err
			}
			if outcome := jobup.OutcomeOf(err); outcome == jobup.OutcomeSearchLimit {
				logger.Info("search limit reached before cutoff", "page", page, "cutoff", cutoff)
				return collected, nil
			}
			logger.Error("search page failed, keeping collected jobs", "page", page, "collected", len(collected), "error", err)
			stats.Truncated = true
			return collected, nil
		}

		stats.Pages++
		if len(ids) == 0 {
			return collected, nil
		}

		for _, id := range ids {
			if id == cutoff {
				logger.Debug("reached cutoff", "page", page, "cutoff", cutoff)
				return collected, nil
			}
			collected = append(collected, id)
		}
	}

	logger.Warn("stopped at max pages", "max_pages", s.config.MaxPages)
	return collected, nil
}

// storeBatch fetches and inserts ids in order and commits them together.
// Jobs that cannot be fetched or mapped are logged and skipped.
func (s *HarvestService) storeBatch(ctx context.Context, logger *slog.Logger, stats *domain.HarvestStats, ids []string) error {
	var inserted []*domain.Job

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		attempts := 0
		for _, id := range ids {
			exists, err := s.jobs.Exists(txCtx, id)
			if err != nil {
				return fmt.Errorf("check job %s: %w", id, err)
			}
			if exists {
				stats.Skipped++
				continue
			}

			if attempts > 0 {
				if err := s.sleep(ctx, s.config.JobDelay); err != nil {
					return err
				}
			}
			attempts++

			job, err := s.source.FetchJob(ctx, id)
			if err != nil {
				if isFatal(ctx, err) {
					return err
				}
				stats.Errors++
				logger.Warn("skipping job", "job_id", id, "outcome", jobup.OutcomeOf(err), "error", err)
				continue
			}
			stats.Fetched++

			if _, err := s.jobs.Insert(txCtx, job); err != nil {
				return err
			}
			inserted = append(inserted, job)
		}
		return nil
	})
	if err != nil {
		return err
	}

	stats.Inserted += len(inserted)
	logger.Info("stored batch", "jobs", len(ids), "inserted", len(inserted))

	s.publish(ctx, logger, stats, inserted)
	return nil
}

func (s *HarvestService) publish(ctx context.Context, logger *slog.Logger, stats *domain.HarvestStats, jobs []*domain.Job) {
	if s.publisher == nil {
		return
	}
	for _, job := range jobs {
		if err := s.publisher.Publish(ctx, job); err != nil {
			stats.Errors++
			logger.Error("failed to publish job", "job_id", job.JobID, "error", err)
			continue
		}
		stats.Published++
	}
}

// resolveCompanies fetches every company referenced by a stored job but not
// stored itself. Companies the API no longer serves are detached from their
// jobs.
func (s *HarvestService) resolveCompanies(ctx context.Context, logger *slog.Logger, stats *domain.HarvestStats) error {
	return s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		missing, err := s.companies.MissingIDs(txCtx)
		if err != nil {
			return fmt.Errorf("list missing companies: %w", err)
		}
		logger.Info("resolving companies", "missing", len(missing))

		for i, id := range missing {
			if i > 0 {
				if err := s.sleep(ctx, s.config.JobDelay); err != nil {
					return err
				}
			}

			company, fetchErr := s.source.FetchCompany(ctx, id)
			if fetchErr != nil {
				if isFatal(ctx, fetchErr) {
					return fetchErr
				}
				cleared, err := s.jobs.ClearCompanyID(txCtx, id)
				if err != nil {
					return err
				}
				stats.CompaniesHidden++
				logger.Info("company hidden", "company_id", id, "jobs", cleared,
					"outcome", jobup.OutcomeOf(fetchErr), "error", fetchErr)
				continue
			}

			ok, err := s.companies.Insert(txCtx, company)
			if err != nil {
				return err
			}
			if ok {
				stats.CompaniesInserted++
			}
		}
		return nil
	})
}

// isFatal reports whether err must abort the run instead of skipping an item.
func isFatal(ctx context.Context, err error) bool {
	return errors.Is(err, jobup.ErrMalformedPayload) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		ctx.Err() != nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
