package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/policywatch/policywatch/internal/model"
	"github.com/policywatch/policywatch/internal/service"
	"github.com/policywatch/policywatch/pkg/tracing"
)

// CycleRunner triggers one monitoring pass on demand.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*model.MonitoringMetrics, error)
}

type MonitoringHandler struct {
	runner  CycleRunner
	reports service.ReportService
	logger  *slog.Logger
}

func NewMonitoringHandler(runner CycleRunner, reports service.ReportService, logger *slog.Logger) *MonitoringHandler {
	return &MonitoringHandler{runner: runner, reports: reports, logger: logger}
}

// Run executes a monitoring cycle synchronously and returns its summary. The
// cycle counters are reported even when the job ends in the failed state.
func (h *MonitoringHandler) Run(w http.ResponseWriter, r *http.Request) {
	tracer := tracing.NewTracer(tracing.GetTracer("monitoring-handler"))
	ctx, span := tracer.StartServerSpan(r.Context(), "Run")
	defer span.End()

	summary, err := h.runner.RunCycle(ctx)
	if err != nil {
		tracer.RecordError(span, err)
		h.logger.Error("Monitoring cycle failed", slog.Any("error", err))
		if summary == nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(summary)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

func (h *MonitoringHandler) Report(w http.ResponseWriter, r *http.Request) {
	tracer := tracing.NewTracer(tracing.GetTracer("monitoring-handler"))
	ctx, span := tracer.StartServerSpan(r.Context(), "Report")
	defer span.End()

	report, err := h.reports.Report(ctx)
	if err != nil {
		tracer.RecordError(span, err)
		h.logger.Error("Report failed", slog.Any("error", err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}
