package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/policywatch/policywatch/internal/errors"
	"github.com/policywatch/policywatch/internal/model"
	"github.com/policywatch/policywatch/internal/storage"
)

// Reporting windows and cutoffs.
const (
	reportRecentScoreCutoff = 60
	reportRecentLimit       = 10
)

// MonitoringReport is the read-side aggregate served to dashboards.
type MonitoringReport struct {
	TotalDocuments    int                    `json:"total_documents"`
	ActiveDocuments   int                    `json:"active_documents"`
	ChangesLast24h    int                    `json:"changes_last_24h"`
	ChangesLast7d     int                    `json:"changes_last_7d"`
	AverageScore30d   float64                `json:"average_score_30d"`
	ChangesByType30d  map[string]int         `json:"changes_by_type_30d"`
	RecentSignificant []model.DocumentChange `json:"recent_significant"`
}

// ReportService aggregates accumulated change history. Pure reads, no
// mutation.
type ReportService interface {
	Report(ctx context.Context) (*MonitoringReport, error)
}

type reportService struct {
	documents storage.DocumentStorage
	changes   storage.ChangeStorage
	logger    *slog.Logger
	tracer    trace.Tracer
}

func NewReportService(
	documents storage.DocumentStorage,
	changes storage.ChangeStorage,
	logger *slog.Logger,
) ReportService {
	l := logger.With("layer", "service", "component", "reportService")
	return &reportService{
		documents: documents,
		changes:   changes,
		logger:    l,
		tracer:    otel.Tracer("report-service"),
	}
}

func (s *reportService) Report(ctx context.Context) (*MonitoringReport, error) {
	ctx, span := s.tracer.Start(ctx, "Report")
	defer span.End()

	now := time.Now().UTC()
	report := &MonitoringReport{}

	var err error
	if report.TotalDocuments, err = s.documents.CountAll(ctx); err != nil {
		return nil, s.fail(span, "count documents", err)
	}
	if report.ActiveDocuments, err = s.documents.CountActive(ctx); err != nil {
		return nil, s.fail(span, "count active documents", err)
	}
	if report.ChangesLast24h, err = s.changes.CountSince(ctx, now.Add(-24*time.Hour)); err != nil {
		return nil, s.fail(span, "count 24h changes", err)
	}
	if report.ChangesLast7d, err = s.changes.CountSince(ctx, now.Add(-7*24*time.Hour)); err != nil {
		return nil, s.fail(span, "count 7d changes", err)
	}

	since30d := now.Add(-30 * 24 * time.Hour)
	if report.AverageScore30d, err = s.changes.AverageScoreSince(ctx, since30d); err != nil {
		return nil, s.fail(span, "average score", err)
	}
	if report.ChangesByType30d, err = s.changes.CountByTypeSince(ctx, since30d); err != nil {
		return nil, s.fail(span, "count changes by type", err)
	}
	if report.RecentSignificant, err = s.changes.RecentSignificant(ctx, reportRecentScoreCutoff, reportRecentLimit); err != nil {
		return nil, s.fail(span, "recent significant changes", err)
	}

	return report, nil
}

func (s *reportService) fail(span trace.Span, op string, err error) error {
	s.logger.Error("report query failed", slog.String("op", op), slog.String("error", err.Error()))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return apperrors.NewInternal("%s: %v", op, err)
}
