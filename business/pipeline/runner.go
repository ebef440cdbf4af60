package pipeline

import (
	"context"
	"fmt"
	"time"

	"cartlift/business/performance"
	"cartlift/business/profile"
	"cartlift/business/similarity"
	"cartlift/domain"
	"cartlift/pkg/logger"
	"cartlift/pkg/metrics"

	"github.com/google/uuid"
)

// ShopSource discovers which shops have activity worth processing.
type ShopSource interface {
	DistinctShops(ctx context.Context, since time.Time) ([]string, error)
}

// StatusStore is the per-shop, per-job status feed the dashboard reads.
type StatusStore interface {
	PutStatus(ctx context.Context, status domain.JobStatus) error
}

type SimilarityService interface {
	ComputeSimilarities(ctx context.Context, shop string, asOf time.Time) (similarity.Stats, error)
}

type PerformanceService interface {
	ScoreProducts(ctx context.Context, shop string, asOf time.Time) (performance.Report, error)
}

type ProfileService interface {
	UpdateProfiles(ctx context.Context, shop string, asOf time.Time, privacyLevel string) (profile.Report, error)
}

// ShopRunSummary reports one shop's outcome for one job.
type ShopRunSummary struct {
	Shop       string `json:"shop"`
	Job        string `json:"job"`
	Status     string `json:"status"`
	ErrorCount int    `json:"error_count"`
	Message    string `json:"message,omitempty"`
}

type Runner struct {
	shops        ShopSource
	statusStore  StatusStore
	simService   SimilarityService
	perfService  PerformanceService
	profService  ProfileService
	privacyLevel string
	// shop discovery looks back this far for activity
	discoveryWindowDays int
}

func NewRunner(
	shops ShopSource,
	statusStore StatusStore,
	simService SimilarityService,
	perfService PerformanceService,
	profService ProfileService,
	privacyLevel string,
) *Runner {
	return &Runner{
		shops:               shops,
		statusStore:         statusStore,
		simService:          simService,
		perfService:         perfService,
		profService:         profService,
		privacyLevel:        privacyLevel,
		discoveryWindowDays: 90,
	}
}

// RunDaily runs the performance scorer and profile builder. An empty
// shop means every shop with recent activity; one shop's failure never
// aborts the others.
func (r *Runner) RunDaily(ctx context.Context, shop string) ([]ShopRunSummary, error) {
	shops, err := r.resolveShops(ctx, shop)
	if err != nil {
		return nil, err
	}

	summaries := make([]ShopRunSummary, 0, len(shops)*2)
	for _, sh := range shops {
		summaries = append(summaries, r.runJob(ctx, sh, domain.JobPerformance))
		summaries = append(summaries, r.runJob(ctx, sh, domain.JobProfiles))
	}
	return summaries, nil
}

// RunWeekly runs the similarity engine, same shop semantics as RunDaily.
func (r *Runner) RunWeekly(ctx context.Context, shop string) ([]ShopRunSummary, error) {
	shops, err := r.resolveShops(ctx, shop)
	if err != nil {
		return nil, err
	}

	summaries := make([]ShopRunSummary, 0, len(shops))
	for _, sh := range shops {
		summaries = append(summaries, r.runJob(ctx, sh, domain.JobSimilarity))
	}
	return summaries, nil
}

func (r *Runner) resolveShops(ctx context.Context, shop string) ([]string, error) {
	if shop != "" {
		return []string{shop}, nil
	}

	since := time.Now().AddDate(0, 0, -r.discoveryWindowDays)
	shops, err := r.shops.DistinctShops(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("discover shops: %w", err)
	}
	return shops, nil
}

func (r *Runner) runJob(ctx context.Context, shop, job string) ShopRunSummary {
	runID := uuid.NewString()
	asOf := time.Now()
	started := time.Now()

	var errCount int
	var runErr error

	switch job {
	case domain.JobSimilarity:
		_, runErr = r.simService.ComputeSimilarities(ctx, shop, asOf)
	case domain.JobPerformance:
		var report performance.Report
		report, runErr = r.perfService.ScoreProducts(ctx, shop, asOf)
		errCount = len(report.Skipped)
	case domain.JobProfiles:
		var report profile.Report
		report, runErr = r.profService.UpdateProfiles(ctx, shop, asOf, r.privacyLevel)
		errCount = len(report.Skipped)
	default:
		runErr = fmt.Errorf("unknown job %q", job)
	}

	summary := ShopRunSummary{Shop: shop, Job: job, ErrorCount: errCount}
	switch {
	case runErr != nil:
		summary.Status = domain.JobStatusFailed
		summary.Message = runErr.Error()
		logger.Error("pipeline_job_failed", "run_id", runID, "shop", shop, "job", job, "error", runErr)
	case errCount > 0:
		summary.Status = domain.JobStatusPartial
	default:
		summary.Status = domain.JobStatusSuccess
	}

	metrics.JobDuration.WithLabelValues(job).Observe(time.Since(started).Seconds())
	metrics.JobRunsTotal.WithLabelValues(job, summary.Status).Inc()

	status := domain.JobStatus{
		Shop:       shop,
		Job:        job,
		Status:     summary.Status,
		ErrorCount: errCount,
		Message:    summary.Message,
		RunID:      runID,
		RanAt:      started,
	}
	if err := r.statusStore.PutStatus(ctx, status); err != nil {
		logger.Warn("pipeline_status_write_failed", "run_id", runID, "shop", shop, "job", job, "error", err)
	}

	logger.Info("pipeline_job_done",
		"run_id", runID,
		"shop", shop,
		"job", job,
		"status", summary.Status,
		"error_count", errCount,
		"duration", time.Since(started).String(),
	)

	return summary
}
