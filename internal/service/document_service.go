package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/policywatch/policywatch/internal/analyzer"
	apperrors "github.com/policywatch/policywatch/internal/errors"
	"github.com/policywatch/policywatch/internal/fetcher"
	"github.com/policywatch/policywatch/internal/model"
	"github.com/policywatch/policywatch/internal/storage"
)

// AddDocumentRequest carries everything needed to put a document under
// monitoring. CheckFrequency of zero means "use the configured default".
type AddDocumentRequest struct {
	URL            string `json:"url"`
	DocumentType   string `json:"document_type"`
	UserID         string `json:"user_id,omitempty"`
	CheckFrequency int    `json:"check_frequency,omitempty"`
}

// DocumentService is the registry of monitored documents: adding, reading,
// and settings mutation. Scheduling-state writes during a cycle go through
// the runner instead.
type DocumentService interface {
	Add(ctx context.Context, req AddDocumentRequest) (*model.MonitoredDocument, error)
	GetAll(ctx context.Context) ([]model.MonitoredDocument, error)
	GetByID(ctx context.Context, id string) (*model.MonitoredDocument, error)
	GetChanges(ctx context.Context, id string, limit int) ([]model.DocumentChange, error)
	UpdateSettings(ctx context.Context, id string, settings model.DocumentSettings) error
}

type documentService struct {
	store            storage.DocumentStorage
	changes          storage.ChangeStorage
	fetch            fetcher.ContentFetcher
	logger           *slog.Logger
	tracer           trace.Tracer
	defaultFrequency int
}

func NewDocumentService(
	store storage.DocumentStorage,
	changes storage.ChangeStorage,
	fetch fetcher.ContentFetcher,
	logger *slog.Logger,
	defaultFrequency int,
) DocumentService {
	l := logger.With("layer", "service", "component", "documentService")
	return &documentService{
		store:            store,
		changes:          changes,
		fetch:            fetch,
		logger:           l,
		tracer:           otel.Tracer("document-service"),
		defaultFrequency: defaultFrequency,
	}
}

// Add performs the seed fetch, derives title and domain from the URL and
// stores the new document with its first baseline. No record is created when
// the seed fetch fails.
func (s *documentService) Add(ctx context.Context, req AddDocumentRequest) (*model.MonitoredDocument, error) {
	ctx, span := s.tracer.Start(ctx, "Add")
	defer span.End()

	span.SetAttributes(
		attribute.String("document.url", req.URL),
		attribute.String("document.type", req.DocumentType),
	)
	s.logger.Info("Add document called", slog.String("url", req.URL))

	parsed, err := url.Parse(req.URL)
	if err != nil || parsed.Hostname() == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, apperrors.NewConflict("invalid document url %q", req.URL)
	}
	if !model.ValidDocumentType(req.DocumentType) {
		return nil, apperrors.NewConflict("invalid document type %q", req.DocumentType)
	}

	if _, err := s.store.FindByURL(ctx, req.UserID, req.URL); err == nil {
		s.logger.Warn("Document already monitored",
			slog.String("url", req.URL),
			slog.String("user_id", req.UserID))
		return nil, apperrors.NewConflict("document %s is already monitored", req.URL)
	} else if !apperrors.IsNotFound(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, apperrors.NewInternal("failed to check document uniqueness: %v", err)
	}

	content, err := s.fetch.Fetch(ctx, req.URL)
	if err != nil {
		s.logger.Warn("Seed fetch failed", slog.String("url", req.URL), slog.Any("error", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	frequency := req.CheckFrequency
	if frequency <= 0 {
		frequency = s.defaultFrequency
	}

	now := time.Now().UTC()
	doc := &model.MonitoredDocument{
		ID:                  uuid.New().String(),
		UserID:              req.UserID,
		URL:                 req.URL,
		Domain:              parsed.Hostname(),
		DocumentType:        req.DocumentType,
		Title:               deriveTitle(parsed.Hostname(), req.DocumentType),
		BaselineHash:        analyzer.ComputeHash(content),
		BaselineContent:     content,
		CheckFrequency:      frequency,
		LastCheckedAt:       now,
		NextCheckAt:         now.Add(time.Duration(frequency) * time.Second),
		MonitoringActive:    true,
		NotificationEnabled: true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.store.Save(ctx, doc); err != nil {
		s.logger.Error("failed to add document",
			slog.String("url", req.URL), slog.String("error", err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if apperrors.IsConflict(err) {
			return nil, err
		}
		return nil, apperrors.NewInternal("failed to add document: %v", err)
	}

	span.SetAttributes(attribute.String("document.id", doc.ID))
	s.logger.Info("Add succeeded", slog.String("id", doc.ID), slog.String("domain", doc.Domain))
	return doc, nil
}

func (s *documentService) GetAll(ctx context.Context) ([]model.MonitoredDocument, error) {
	ctx, span := s.tracer.Start(ctx, "GetAll")
	defer span.End()

	docs, err := s.store.FindAll(ctx)
	if err != nil {
		s.logger.Error("failed to fetch documents", slog.String("error", err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, apperrors.NewInternal("failed to fetch documents: %v", err)
	}

	span.SetAttributes(attribute.Int("document.count", len(docs)))
	return docs, nil
}

func (s *documentService) GetByID(ctx context.Context, id string) (*model.MonitoredDocument, error) {
	ctx, span := s.tracer.Start(ctx, "GetByID")
	defer span.End()

	span.SetAttributes(attribute.String("document.id", id))

	doc, err := s.store.FindByID(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			s.logger.Warn("Document not found", slog.String("id", id))
			return nil, err
		}
		s.logger.Error("failed to fetch document",
			slog.String("id", id), slog.String("error", err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, apperrors.NewInternal("failed to fetch document: %v", err)
	}
	return &doc, nil
}

func (s *documentService) GetChanges(ctx context.Context, id string, limit int) ([]model.DocumentChange, error) {
	ctx, span := s.tracer.Start(ctx, "GetChanges")
	defer span.End()

	span.SetAttributes(attribute.String("document.id", id))

	if _, err := s.store.FindByID(ctx, id); err != nil {
		return nil, err
	}

	changes, err := s.changes.FindByDocument(ctx, id, limit)
	if err != nil {
		s.logger.Error("failed to fetch changes",
			slog.String("id", id), slog.String("error", err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, apperrors.NewInternal("failed to fetch changes: %v", err)
	}
	return changes, nil
}

// UpdateSettings applies a partial settings patch. A check-frequency change
// recomputes the next check from now rather than from the old schedule.
func (s *documentService) UpdateSettings(ctx context.Context, id string, settings model.DocumentSettings) error {
	ctx, span := s.tracer.Start(ctx, "UpdateSettings")
	defer span.End()

	span.SetAttributes(attribute.String("document.id", id))
	s.logger.Info("UpdateSettings called", slog.String("id", id))

	if settings.CheckFrequency != nil && *settings.CheckFrequency <= 0 {
		return apperrors.NewConflict("check frequency must be positive, got %d", *settings.CheckFrequency)
	}

	if err := s.store.UpdateSettings(ctx, id, settings, time.Now().UTC()); err != nil {
		if apperrors.IsNotFound(err) {
			s.logger.Warn("Document not found for settings update", slog.String("id", id))
			return err
		}
		s.logger.Error("failed to update settings",
			slog.String("id", id), slog.String("error", err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return apperrors.NewInternal("failed to update settings: %v", err)
	}

	s.logger.Info("UpdateSettings succeeded", slog.String("id", id))
	return nil
}

var documentTypeTitles = map[string]string{
	model.DocTypeTerms:   "Terms of Service",
	model.DocTypePrivacy: "Privacy Policy",
	model.DocTypeCookie:  "Cookie Policy",
	model.DocTypeEULA:    "End User License Agreement",
}

func deriveTitle(domain, documentType string) string {
	title, ok := documentTypeTitles[documentType]
	if !ok {
		title = strings.ToUpper(documentType)
	}
	return fmt.Sprintf("%s (%s)", title, domain)
}
