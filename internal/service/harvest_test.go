package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"jobharvest/internal/config"
	"jobharvest/internal/domain"
	"jobharvest/internal/service/mocks"
	"jobharvest/internal/source/jobup"
)

type HarvestServiceTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	source    *mocks.MockSource
	jobs      *mocks.MockJobStore
	companies *mocks.MockCompanyStore
	runs      *mocks.MockRunStore
	txManager *mocks.MockTransactionManager
	publisher *mocks.MockPublisher

	service *HarvestService
	cfg     config.HarvestConfig
	logger  *slog.Logger

	sleeps   []time.Duration
	inserted []string
	recorded *domain.HarvestStats
}

func (s *HarvestServiceTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.source = mocks.NewMockSource(s.ctrl)
	s.jobs = mocks.NewMockJobStore(s.ctrl)
	s.companies = mocks.NewMockCompanyStore(s.ctrl)
	s.runs = mocks.NewMockRunStore(s.ctrl)
	s.txManager = mocks.NewMockTransactionManager(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)

	s.cfg = config.HarvestConfig{
		SearchDelay:    500 * time.Millisecond,
		JobDelay:       200 * time.Millisecond,
		PageDelay:      2 * time.Second,
		GatewayBackoff: 10 * time.Second,
	}

	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s.sleeps = nil
	s.inserted = nil
	s.recorded = nil

	s.source.EXPECT().ID().Return("jobup").AnyTimes()

	s.txManager.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	).AnyTimes()

	s.service = s.newService(s.publisher)
}

func (s *HarvestServiceTestSuite) newService(publisher Publisher) *HarvestService {
	svc := NewHarvestService(
		s.source,
		s.jobs,
		s.companies,
		s.runs,
		s.txManager,
		publisher,
		s.logger,
		s.cfg,
		20,
	)
	svc.sleep = func(_ context.Context, d time.Duration) error {
		s.sleeps = append(s.sleeps, d)
		return nil
	}
	return svc
}

func (s *HarvestServiceTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestHarvestServiceTestSuite(t *testing.T) {
	suite.Run(t, new(HarvestServiceTestSuite))
}

func statusErr(outcome jobup.Outcome) error {
	return fmt.Errorf("fetch search page: %w", &jobup.StatusError{URL: "https://api.test", Outcome: outcome})
}

func (s *HarvestServiceTestSuite) expectFetchJobs() {
	s.source.EXPECT().FetchJob(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, id string) (*domain.Job, error) {
			return &domain.Job{JobID: id, CompanyID: "c-" + id}, nil
		},
	).AnyTimes()
}

func (s *HarvestServiceTestSuite) expectInserts() {
	s.jobs.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, job *domain.Job) (int64, error) {
			s.inserted = append(s.inserted, job.JobID)
			return int64(len(s.inserted)), nil
		},
	).AnyTimes()
}

func (s *HarvestServiceTestSuite) expectNoMissingCompanies() {
	s.companies.EXPECT().MissingIDs(gomock.Any()).Return(nil, nil)
}

func (s *HarvestServiceTestSuite) expectRecord() {
	s.runs.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, stats *domain.HarvestStats) error {
			s.recorded = stats
			return nil
		},
	)
}

func (s *HarvestServiceTestSuite) TestHarvest_BackfillOldestFirst() {
	ctx := context.Background()

	s.jobs.EXPECT().Count(ctx).Return(int64(0), nil)
	gomock.InOrder(
		s.source.EXPECT().SearchPage(ctx, 1, 20).Return([]string{"j6", "j5", "j4"}, nil),
		s.source.EXPECT().SearchPage(ctx, 2, 20).Return([]string{"j3", "j2", "j1"}, nil),
		s.source.EXPECT().SearchPage(ctx, 3, 20).Return(nil, statusErr(jobup.OutcomeSearchLimit)),
	)
	s.jobs.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(false, nil).Times(6)
	s.expectFetchJobs()
	s.expectInserts()
	s.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil).Times(6)
	s.expectNoMissingCompanies()
	s.expectRecord()

	stats, err := s.service.Harvest(ctx)

	s.Require().NoError(err)
	s.Equal([]string{"j1", "j2", "j3", "j4", "j5", "j6"}, s.inserted)
	s.Equal(domain.ModeBackfill, stats.Mode)
	s.NotEmpty(stats.RunID)
	s.Equal(2, stats.Pages)
	s.Equal(6, stats.Fetched)
	s.Equal(6, stats.Inserted)
	s.Equal(6, stats.Published)
	s.False(stats.Truncated)
	s.Same(stats, s.recorded)
	s.Contains(s.sleeps, s.cfg.PageDelay)
	s.Contains(s.sleeps, s.cfg.JobDelay)
}

func (s *HarvestServiceTestSuite) TestHarvest_BackfillRetriesBadGatewayOnSamePage() {
	ctx := context.Background()

	s.jobs.EXPECT().Count(ctx).Return(int64(0), nil)
	gomock.InOrder(
		s.source.EXPECT().SearchPage(ctx, 1, 20).Return(nil, statusErr(jobup.OutcomeBadGateway)),
		s.source.EXPECT().SearchPage(ctx, 1, 20).Return(nil, statusErr(jobup.OutcomeBadGateway)),
		s.source.EXPECT().SearchPage(ctx, 1, 20).Return([]string{"j2", "j1"}, nil),
		s.source.EXPECT().SearchPage(ctx, 2, 20).Return(nil, statusErr(jobup.OutcomeSearchLimit)),
	)
	s.jobs.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(false, nil).Times(2)
	s.expectFetchJobs()
	s.expectInserts()
	s.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil).Times(2)
	s.expectNoMissingCompanies()
	s.expectRecord()

	stats, err := s.service.Harvest(ctx)

	s.Require().NoError(err)
	s.Equal([]string{"j1", "j2"}, s.inserted)
	s.Equal(1, stats.Pages)
	s.Equal(s.cfg.GatewayBackoff, s.sleeps[0])
	s.Equal(s.cfg.GatewayBackoff, s.sleeps[1])
}

func (s *HarvestServiceTestSuite) TestHarvest_BackfillBoundedGatewayRetries() {
	ctx := context.Background()
	s.cfg.MaxGatewayRetries = 2
	s.service = s.newService(s.publisher)

	s.jobs.EXPECT().Count(ctx).Return(int64(0), nil)
	s.source.EXPECT().SearchPage(ctx, 1, 20).Return(nil, statusErr(jobup.OutcomeBadGateway)).Times(3)

	_, err := s.service.Harvest(ctx)

	s.ErrorIs(err, ErrGatewayRetriesExhausted)
	s.Nil(s.inserted)
}

func (s *HarvestServiceTestSuite) TestHarvest_BackfillSkipsFailedAndExistingJobs() {
	ctx := context.Background()

	s.jobs.EXPECT().Count(ctx).Return(int64(0), nil)
	s.source.EXPECT().SearchPage(ctx, 1, 20).Return([]string{"j4", "j3", "j2", "j1"}, nil)
	s.source.EXPECT().SearchPage(ctx, 2, 20).Return(nil, statusErr(jobup.OutcomeSearchLimit))

	s.jobs.EXPECT().Exists(gomock.Any(), "j3").Return(true, nil)
	s.jobs.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(false, nil).Times(3)
	s.source.EXPECT().FetchJob(gomock.Any(), "j2").Return(nil, statusErr(jobup.OutcomeNotFound))
	s.source.EXPECT().FetchJob(gomock.Any(), "j1").Return(&domain.Job{JobID: "j1"}, nil)
	s.source.EXPECT().FetchJob(gomock.Any(), "j4").Return(&domain.Job{JobID: "j4"}, nil)
	s.expectInserts()
	s.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil).Times(2)
	s.expectNoMissingCompanies()
	s.expectRecord()

	stats, err := s.service.Harvest(ctx)

	s.Require().NoError(err)
	s.Equal([]string{"j1", "j4"}, s.inserted)
	s.Equal(1, stats.Errors)
	s.Equal(1, stats.Skipped)
	s.Equal(2, stats.Inserted)
}

func (s *HarvestServiceTestSuite) TestHarvest_MalformedPayloadAborts() {
	ctx := context.Background()

	s.jobs.EXPECT().Count(ctx).Return(int64(0), nil)
	s.source.EXPECT().SearchPage(ctx, 1, 20).Return([]string{"j1"}, nil)
	s.source.EXPECT().SearchPage(ctx, 2, 20).Return(nil, statusErr(jobup.OutcomeSearchLimit))
	s.jobs.EXPECT().Exists(gomock.Any(), "j1").Return(false, nil)
	s.source.EXPECT().FetchJob(gomock.Any(), "j1").Return(nil, fmt.Errorf("fetch job j1: %w", jobup.ErrMalformedPayload))

	_, err := s.service.Harvest(ctx)

	s.ErrorIs(err, jobup.ErrMalformedPayload)
	s.Nil(s.inserted)
}

func (s *HarvestServiceTestSuite) TestHarvest_IncrementalNothingNewFetchesNoPagesButRunsCompanyPostPass() {
	ctx := context.Background()

	s.jobs.EXPECT().Count(ctx).Return(int64(10), nil)
	s.source.EXPECT().LatestJobID(ctx).Return("j9", nil)
	s.jobs.EXPECT().Exists(ctx, "j9").Return(true, nil)
	s.expectNoMissingCompanies()
	s.expectRecord()

	stats, err := s.service.Harvest(ctx)

	s.Require().NoError(err)
	s.Equal(domain.ModeIncremental, stats.Mode)
	s.Zero(stats.Pages)
	s.Zero(stats.Inserted)
	s.Empty(s.sleeps)
}

func (s *HarvestServiceTestSuite) TestHarvest_IncrementalStopsAtCutoff() {
	ctx := context.Background()

	s.jobs.EXPECT().Count(ctx).Return(int64(10), nil)
	s.source.EXPECT().LatestJobID(ctx).Return("j9", nil)
	s.jobs.EXPECT().Exists(ctx, "j9").Return(false, nil)
	s.jobs.EXPECT().LatestJobID(ctx).Return("j6", nil)
	gomock.InOrder(
		s.source.EXPECT().SearchPage(ctx, 1, 20).Return([]string{"j9", "j8"}, nil),
		s.source.EXPECT().SearchPage(ctx, 2, 20).Return([]string{"j7", "j6", "j5"}, nil),
	)
	s.jobs.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(false, nil).Times(3)
	s.expectFetchJobs()
	s.expectInserts()
	s.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil).Times(3)
	s.expectNoMissingCompanies()
	s.expectRecord()

	stats, err := s.service.Harvest(ctx)

	s.Require().NoError(err)
	s.Equal([]string{"j7", "j8", "j9"}, s.inserted)
	s.Equal(2, stats.Pages)
	s.Equal(3, stats.Inserted)
	s.False(stats.Truncated)
}

func (s *HarvestServiceTestSuite) TestHarvest_IncrementalCutoffNotFoundEndsOnSearchLimit() {
	ctx := context.Background()

	s.jobs.EXPECT().Count(ctx).Return(int64(10), nil)
	s.source.EXPECT().LatestJobID(ctx).Return("j9", nil)
	s.jobs.EXPECT().Exists(ctx, "j9").Return(false, nil)
	s.jobs.EXPECT().LatestJobID(ctx).Return("gone", nil)
	gomock.InOrder(
		s.source.EXPECT().SearchPage(ctx, 1, 20).Return([]string{"j9", "j8"}, nil),
		s.source.EXPECT().SearchPage(ctx, 2, 20).Return([]string{"j7"}, nil),
		s.source.EXPECT().SearchPage(ctx, 3, 20).Return(nil, statusErr(jobup.OutcomeSearchLimit)),
	)
	s.jobs.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(false, nil).Times(3)
	s.expectFetchJobs()
	s.expectInserts()
	s.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil).Times(3)
	s.expectNoMissingCompanies()
	s.expectRecord()

	stats, err := s.service.Harvest(ctx)

	s.Require().NoError(err)
	s.Equal([]string{"j7", "j8", "j9"}, s.inserted)
	s.Equal(2, stats.Pages)
	s.False(stats.Truncated)
}

func (s *HarvestServiceTestSuite) TestHarvest_IncrementalPageFailureKeepsPartial() {
	ctx := context.Background()

	s.jobs.EXPECT().Count(ctx).Return(int64(10), nil)
	s.source.EXPECT().LatestJobID(ctx).Return("j9", nil)
	s.jobs.EXPECT().Exists(ctx, "j9").Return(false, nil)
	s.jobs.EXPECT().LatestJobID(ctx).Return("j1", nil)
	gomock.InOrder(
		s.source.EXPECT().SearchPage(ctx, 1, 20).Return([]string{"j9", "j8"}, nil),
		s.source.EXPECT().SearchPage(ctx, 2, 20).Return(nil, statusErr(jobup.OutcomeServerError)),
	)
	s.jobs.EXPECT().Exists(gomock.Any(), gomock.Any()).Return(false, nil).Times(2)
	s.expectFetchJobs()
	s.expectInserts()
	s.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil).Times(2)
	s.expectNoMissingCompanies()
	s.expectRecord()

	stats, err := s.service.Harvest(ctx)

	s.Require().NoError(err)
	s.Equal([]string{"j8", "j9"}, s.inserted)
	s.True(stats.Truncated)
	s.True(s.recorded.Truncated)
}

func (s *HarvestServiceTestSuite) TestHarvest_CompanyPostPass() {
	ctx := context.Background()

	s.jobs.EXPECT().Count(ctx).Return(int64(10), nil)
	s.source.EXPECT().LatestJobID(ctx).Return("j9", nil)
	s.jobs.EXPECT().Exists(ctx, "j9").Return(true, nil)

	company := &domain.Company{ID: "c2", Name: "Acme"}
	s.companies.EXPECT().MissingIDs(ctx).Return([]string{"c1", "c2"}, nil)
	gomock.InOrder(
		s.source.EXPECT().FetchCompany(ctx, "c1").Return(nil, statusErr(jobup.OutcomeNotFound)),
		s.jobs.EXPECT().ClearCompanyID(ctx, "c1").Return(int64(2), nil),
		s.source.EXPECT().FetchCompany(ctx, "c2").Return(company, nil),
		s.companies.EXPECT().Insert(ctx, company).Return(true, nil),
	)
	s.expectRecord()

	stats, err := s.service.Harvest(ctx)

	s.Require().NoError(err)
	s.Equal(1, stats.CompaniesHidden)
	s.Equal(1, stats.CompaniesInserted)
	s.Equal([]time.Duration{s.cfg.JobDelay}, s.sleeps)
}

func (s *HarvestServiceTestSuite) TestHarvest_WithoutPublisher() {
	ctx := context.Background()
	s.service = s.newService(nil)

	s.jobs.EXPECT().Count(ctx).Return(int64(0), nil)
	s.source.EXPECT().SearchPage(ctx, 1, 20).Return([]string{"j1"}, nil)
	s.source.EXPECT().SearchPage(ctx, 2, 20).Return([]string{}, nil)
	s.jobs.EXPECT().Exists(gomock.Any(), "j1").Return(false, nil)
	s.expectFetchJobs()
	s.expectInserts()
	s.expectNoMissingCompanies()
	s.expectRecord()

	stats, err := s.service.Harvest(ctx)

	s.Require().NoError(err)
	s.Equal([]string{"j1"}, s.inserted)
	s.Zero(stats.Published)
	s.Equal(2, stats.Pages)
}

func (s *HarvestServiceTestSuite) TestHarvest_PublishFailureCounted() {
	ctx := context.Background()

	s.jobs.EXPECT().Count(ctx).Return(int64(0), nil)
	s.source.EXPECT().SearchPage(ctx, 1, 20).Return([]string{"j1"}, nil)
	s.source.EXPECT().SearchPage(ctx, 2, 20).Return(nil, statusErr(jobup.OutcomeSearchLimit))
	s.jobs.EXPECT().Exists(gomock.Any(), "j1").Return(false, nil)
	s.expectFetchJobs()
	s.expectInserts()
	s.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(fmt.Errorf("channel closed"))
	s.expectNoMissingCompanies()
	s.expectRecord()

	stats, err := s.service.Harvest(ctx)

	s.Require().NoError(err)
	s.Equal(1, stats.Inserted)
	s.Equal(1, stats.Errors)
	s.Zero(stats.Published)
}

func (s *HarvestServiceTestSuite) TestHarvest_CountError() {
	ctx := context.Background()

	s.jobs.EXPECT().Count(ctx).Return(int64(0), fmt.Errorf("database is locked"))

	stats, err := s.service.Harvest(ctx)

	s.Error(err)
	s.Nil(stats)
}

func TestSleepContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := sleepContext(ctx, time.Hour); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
