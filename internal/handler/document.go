package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/policywatch/policywatch/internal/errors"
	"github.com/policywatch/policywatch/internal/model"
	"github.com/policywatch/policywatch/internal/service"
	"github.com/policywatch/policywatch/pkg/tracing"
)

const defaultChangesLimit = 50

type DocumentHandler struct {
	svc    service.DocumentService
	logger *slog.Logger
}

func NewDocumentHandler(s service.DocumentService, logger *slog.Logger) *DocumentHandler {
	return &DocumentHandler{svc: s, logger: logger}
}

func (h *DocumentHandler) Add(w http.ResponseWriter, r *http.Request) {
	tracer := tracing.NewTracer(tracing.GetTracer("document-handler"))
	ctx, span := tracer.StartServerSpan(r.Context(), "Add")
	defer span.End()

	var req service.AddDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		tracer.RecordError(span, err)
		h.logger.Warn("Invalid request body for Add")
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	doc, err := h.svc.Add(ctx, req)
	if err != nil {
		switch {
		case apperrors.IsConflict(err):
			h.logger.Warn("Duplicate or invalid Add", "url", req.URL, "error", err)
			http.Error(w, err.Error(), http.StatusConflict)
		case apperrors.IsFetchError(err):
			h.logger.Warn("Seed fetch failed for Add", "url", req.URL, "error", err)
			http.Error(w, err.Error(), http.StatusBadGateway)
		default:
			tracer.RecordError(span, err)
			h.logger.Error("Add failed", "url", req.URL, "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(doc)
}

func (h *DocumentHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	tracer := tracing.NewTracer(tracing.GetTracer("document-handler"))
	ctx, span := tracer.StartServerSpan(r.Context(), "GetAll")
	defer span.End()

	docs, err := h.svc.GetAll(ctx)
	if err != nil {
		tracer.RecordError(span, err)
		h.logger.Error("GetAll failed", slog.Any("error", err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(docs)
}

func (h *DocumentHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	tracer := tracing.NewTracer(tracing.GetTracer("document-handler"))
	ctx, span := tracer.StartServerSpan(r.Context(), "GetByID")
	defer span.End()

	id := chi.URLParam(r, "id")
	doc, err := h.svc.GetByID(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			h.logger.Warn("Document not found", "id", id)
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			tracer.RecordError(span, err)
			h.logger.Error("GetByID failed", "id", id, "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

func (h *DocumentHandler) GetChanges(w http.ResponseWriter, r *http.Request) {
	tracer := tracing.NewTracer(tracing.GetTracer("document-handler"))
	ctx, span := tracer.StartServerSpan(r.Context(), "GetChanges")
	defer span.End()

	id := chi.URLParam(r, "id")
	limit := defaultChangesLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	changes, err := h.svc.GetChanges(ctx, id, limit)
	if err != nil {
		if apperrors.IsNotFound(err) {
			h.logger.Warn("Document not found for changes", "id", id)
			http.Error(w, err.Error(), http.StatusNotFound)
		} else {
			tracer.RecordError(span, err)
			h.logger.Error("GetChanges failed", "id", id, "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	if changes == nil {
		changes = []model.DocumentChange{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(changes)
}

func (h *DocumentHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	tracer := tracing.NewTracer(tracing.GetTracer("document-handler"))
	ctx, span := tracer.StartServerSpan(r.Context(), "UpdateSettings")
	defer span.End()

	id := chi.URLParam(r, "id")

	var settings model.DocumentSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		tracer.RecordError(span, err)
		h.logger.Warn("Invalid request body for UpdateSettings", "id", id)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.svc.UpdateSettings(ctx, id, settings); err != nil {
		switch {
		case apperrors.IsNotFound(err):
			h.logger.Warn("Document not found for settings update", "id", id)
			http.Error(w, err.Error(), http.StatusNotFound)
		case apperrors.IsConflict(err):
			h.logger.Warn("Invalid settings update", "id", id, "error", err)
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		default:
			tracer.RecordError(span, err)
			h.logger.Error("UpdateSettings failed", "id", id, "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusOK)
}
