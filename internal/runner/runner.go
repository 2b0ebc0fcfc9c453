// Package runner orchestrates one monitoring cycle: claim the due batch,
// check every document with bounded concurrency, persist detected changes
// and keep the job bookkeeping honest about partial failure.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/policywatch/policywatch/internal/analyzer"
	apperrors "github.com/policywatch/policywatch/internal/errors"
	"github.com/policywatch/policywatch/internal/fetcher"
	"github.com/policywatch/policywatch/internal/metrics"
	"github.com/policywatch/policywatch/internal/model"
	"github.com/policywatch/policywatch/internal/storage"
)

// NotificationSink receives a change notification when a change clears the
// notifiable threshold. Fire-and-forget: a rejected enqueue is logged, never
// retried here.
type NotificationSink interface {
	Enqueue(ctx context.Context, notif model.ChangeNotification) error
}

// Config bounds one cycle.
type Config struct {
	BatchSize       int
	WorkerCount     int
	NotifyThreshold int
	ClaimLease      time.Duration
}

// Runner executes monitoring cycles. It never self-schedules; callers
// trigger RunCycle from a timer, cron entry or HTTP request.
type Runner struct {
	documents     storage.DocumentStorage
	changes       storage.ChangeStorage
	jobs          storage.JobStorage
	notifications storage.NotificationStorage
	fetch         fetcher.ContentFetcher
	sink          NotificationSink
	logger        *slog.Logger
	tracer        trace.Tracer
	cfg           Config
}

func New(
	documents storage.DocumentStorage,
	changes storage.ChangeStorage,
	jobs storage.JobStorage,
	notifications storage.NotificationStorage,
	fetch fetcher.ContentFetcher,
	sink NotificationSink,
	logger *slog.Logger,
	cfg Config,
) *Runner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 10
	}
	if cfg.NotifyThreshold <= 0 {
		cfg.NotifyThreshold = 50
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = 5 * time.Minute
	}
	return &Runner{
		documents:     documents,
		changes:       changes,
		jobs:          jobs,
		notifications: notifications,
		fetch:         fetch,
		sink:          sink,
		logger:        logger.With("layer", "runner", "component", "monitoringCycle"),
		tracer:        otel.Tracer("monitoring-runner"),
		cfg:           cfg,
	}
}

// cycleCounters aggregates per-document outcomes across the worker pool.
type cycleCounters struct {
	checked atomic.Int64
	changed atomic.Int64
	errored atomic.Int64
}

// RunCycle executes one batch pass. Per-document failures are isolated and
// counted; only infrastructure failures (store unreachable) abort the cycle
// and mark the job failed.
func (r *Runner) RunCycle(ctx context.Context) (*model.MonitoringMetrics, error) {
	ctx, span := r.tracer.Start(ctx, "RunCycle")
	defer span.End()

	start := time.Now().UTC()
	job := &model.MonitoringJob{
		ID:        uuid.New().String(),
		JobType:   model.JobTypeMonitoringCycle,
		Status:    model.JobPending,
		StartedAt: start,
	}
	if err := r.jobs.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create monitoring job: %w", err)
	}
	if err := r.jobs.UpdateStatus(ctx, job.ID, model.JobRunning); err != nil {
		return nil, fmt.Errorf("failed to start monitoring job: %w", err)
	}
	job.Status = model.JobRunning

	r.logger.Info("Monitoring cycle started", slog.String("job_id", job.ID))
	span.SetAttributes(attribute.String("job.id", job.ID))

	docs, err := r.documents.ClaimDue(ctx, start, r.cfg.BatchSize, r.cfg.ClaimLease)
	if err != nil {
		return r.finalize(ctx, span, job, nil, start, err)
	}
	span.SetAttributes(attribute.Int("job.batch_size", len(docs)))

	counters := &cycleCounters{}
	fatal := r.processBatch(ctx, docs, counters)

	return r.finalize(ctx, span, job, counters, start, fatal)
}

// processBatch runs the worker pool over the claimed documents. The first
// persistence failure cancels the remaining work and is returned as fatal.
func (r *Runner) processBatch(ctx context.Context, docs []model.MonitoredDocument, counters *cycleCounters) error {
	poolCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var fatalOnce sync.Once
	var fatalErr error

	var wg sync.WaitGroup
	sem := make(chan struct{}, r.cfg.WorkerCount)

	for _, doc := range docs {
		if poolCtx.Err() != nil {
			// cancelled mid-batch: already-processed documents keep their
			// persisted results, the rest stay claimed until the lease expires
			break
		}
		wg.Add(1)
		go func(doc model.MonitoredDocument) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if poolCtx.Err() != nil {
				return
			}

			counters.checked.Add(1)
			if err := r.checkDocument(poolCtx, doc, counters); err != nil {
				fatalOnce.Do(func() {
					fatalErr = err
					cancel()
				})
			}
		}(doc)
	}
	wg.Wait()

	return fatalErr
}

// checkDocument fetches, analyzes and reschedules one document. The returned
// error is fatal for the cycle (persistence failure); fetch and analysis
// failures only bump the error counter.
func (r *Runner) checkDocument(ctx context.Context, doc model.MonitoredDocument, counters *cycleCounters) error {
	start := time.Now()
	checkedAt := start.UTC()

	content, err := r.fetch.Fetch(ctx, doc.URL)
	if err != nil {
		counters.errored.Add(1)
		r.logger.Warn("Document fetch failed",
			slog.String("document_id", doc.ID),
			slog.String("url", doc.URL),
			slog.Any("error", err))
		r.observeCheck(metrics.CheckOutcomeError, start)
		// a failed fetch still reschedules at the normal cadence
		return r.reschedule(ctx, doc.ID, checkedAt, nil, nil)
	}

	res, err := analyzer.Compare(doc.BaselineContent, content, doc.DocumentType)
	if err != nil {
		counters.errored.Add(1)
		r.logger.Warn("Document analysis failed",
			slog.String("document_id", doc.ID),
			slog.Any("error", err))
		r.observeCheck(metrics.CheckOutcomeError, start)
		return r.reschedule(ctx, doc.ID, checkedAt, nil, nil)
	}

	if !res.Changed {
		r.observeCheck(metrics.CheckOutcomeUnchanged, start)
		return r.reschedule(ctx, doc.ID, checkedAt, nil, nil)
	}

	change := &model.DocumentChange{
		ID:                uuid.New().String(),
		DocumentID:        doc.ID,
		ChangeType:        res.ChangeType(),
		OldHash:           doc.BaselineHash,
		NewHash:           res.NewHash,
		OldContent:        doc.BaselineContent,
		NewContent:        content,
		ChangeSummary:     res.Summary,
		SignificanceScore: res.SignificanceScore,
		SignificanceLevel: res.SignificanceLevel,
		AffectedSections:  res.AffectedSections,
		ChangeDetails:     res.Details,
		DetectedAt:        checkedAt,
	}
	if err := r.changes.Save(ctx, change); err != nil {
		return fmt.Errorf("failed to persist change for document %s: %w", doc.ID, err)
	}

	counters.changed.Add(1)
	metrics.ChangesDetected.WithLabelValues(res.SignificanceLevel).Inc()
	r.observeCheck(metrics.CheckOutcomeChanged, start)
	r.logger.Info("Document change detected",
		slog.String("document_id", doc.ID),
		slog.String("change_id", change.ID),
		slog.Int("score", change.SignificanceScore),
		slog.String("level", change.SignificanceLevel))

	if err := r.reschedule(ctx, doc.ID, checkedAt, &res.NewHash, &content); err != nil {
		return err
	}

	if err := r.notify(ctx, doc, change); err != nil {
		return err
	}

	if err := r.changes.MarkProcessed(ctx, change.ID); err != nil {
		return fmt.Errorf("failed to mark change %s processed: %w", change.ID, err)
	}
	return nil
}

// notify creates and enqueues a ChangeNotification when the change clears
// the threshold for a notifiable document with an owner. Sink rejection is
// logged and never fails the check.
func (r *Runner) notify(ctx context.Context, doc model.MonitoredDocument, change *model.DocumentChange) error {
	if change.SignificanceScore < r.cfg.NotifyThreshold || !doc.NotificationEnabled || doc.UserID == "" {
		return nil
	}

	notif := model.ChangeNotification{
		ID:         uuid.New().String(),
		UserID:     doc.UserID,
		DocumentID: doc.ID,
		ChangeID:   change.ID,
		Title:      fmt.Sprintf("%s changed (%s)", doc.Title, change.SignificanceLevel),
		Message:    fmt.Sprintf("%s See %s", change.ChangeSummary, doc.URL),
		URL:        doc.URL,
		CreatedAt:  time.Now().UTC(),
	}
	if err := r.notifications.Save(ctx, &notif); err != nil {
		return fmt.Errorf("failed to persist notification for change %s: %w", change.ID, err)
	}

	if err := r.sink.Enqueue(ctx, notif); err != nil {
		r.logger.Error("Notification enqueue rejected",
			slog.String("change_id", change.ID),
			slog.Any("error", apperrors.NewDispatchError(change.ID, err)))
		return nil
	}

	if err := r.changes.MarkNotificationSent(ctx, change.ID); err != nil {
		return fmt.Errorf("failed to mark notification sent for change %s: %w", change.ID, err)
	}
	return nil
}

func (r *Runner) reschedule(ctx context.Context, id string, checkedAt time.Time, newHash, newContent *string) error {
	if err := r.documents.RecordCheckResult(ctx, id, checkedAt, newHash, newContent); err != nil {
		return fmt.Errorf("failed to reschedule document %s: %w", id, err)
	}
	return nil
}

// finalize stamps the terminal job state and builds the cycle summary.
// A nil fatal error means completed, counters included even when the batch
// was cut short by cancellation.
func (r *Runner) finalize(
	ctx context.Context,
	span trace.Span,
	job *model.MonitoringJob,
	counters *cycleCounters,
	start time.Time,
	fatal error,
) (*model.MonitoringMetrics, error) {
	now := time.Now().UTC()
	job.CompletedAt = &now
	if counters != nil {
		job.DocumentsChecked = int(counters.checked.Load())
		job.ChangesDetected = int(counters.changed.Load())
		job.ErrorsEncountered = int(counters.errored.Load())
	}
	if fatal != nil {
		job.Status = model.JobFailed
	} else {
		job.Status = model.JobCompleted
	}

	// finalize with a fresh context so a cancelled cycle still records its
	// terminal state
	finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := r.jobs.Finalize(finalizeCtx, job); err != nil {
		r.logger.Error("Failed to finalize monitoring job",
			slog.String("job_id", job.ID), slog.Any("error", err))
		if fatal == nil {
			fatal = fmt.Errorf("failed to finalize job %s: %w", job.ID, err)
		}
	}

	duration := now.Sub(start)
	metrics.CycleDuration.WithLabelValues(job.Status).Observe(duration.Seconds())
	span.SetAttributes(
		attribute.String("job.status", job.Status),
		attribute.Int("job.documents_checked", job.DocumentsChecked),
		attribute.Int("job.changes_detected", job.ChangesDetected),
		attribute.Int("job.errors_encountered", job.ErrorsEncountered),
	)
	r.logger.Info("Monitoring cycle finished",
		slog.String("job_id", job.ID),
		slog.String("status", job.Status),
		slog.Int("documents_checked", job.DocumentsChecked),
		slog.Int("changes_detected", job.ChangesDetected),
		slog.Int("errors_encountered", job.ErrorsEncountered),
		slog.Duration("duration", duration))

	summary := &model.MonitoringMetrics{
		JobID:             job.ID,
		Status:            job.Status,
		DocumentsChecked:  job.DocumentsChecked,
		ChangesDetected:   job.ChangesDetected,
		ErrorsEncountered: job.ErrorsEncountered,
		Duration:          duration,
	}
	return summary, fatal
}

func (r *Runner) observeCheck(outcome string, start time.Time) {
	metrics.DocumentCheckStatus.WithLabelValues(outcome).Inc()
	metrics.DocumentCheckDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}
