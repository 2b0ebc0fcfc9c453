package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/policywatch/policywatch/internal/errors"
	"github.com/policywatch/policywatch/internal/model"
)

type postgresDocumentStorage struct {
	db *pgxpool.Pool
}

func NewPostgresDocumentStorage(pool *pgxpool.Pool) DocumentStorage {
	return &postgresDocumentStorage{pool}
}

const documentColumns = `
	id, user_id, url, domain, document_type, title,
	baseline_hash, baseline_content, check_frequency,
	last_checked_at, next_check_at, monitoring_active, notification_enabled,
	claimed_until, created_at, updated_at
`

func (ps *postgresDocumentStorage) Ping(ctx context.Context) error {
	return ps.db.Ping(ctx)
}

func (ps *postgresDocumentStorage) Save(ctx context.Context, doc *model.MonitoredDocument) error {
	const query = `
		INSERT INTO monitored_documents (
			id, user_id, url, domain, document_type, title,
			baseline_hash, baseline_content, check_frequency,
			last_checked_at, next_check_at, monitoring_active, notification_enabled,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := ps.db.Exec(ctx, query,
		doc.ID, nullable(doc.UserID), doc.URL, doc.Domain, doc.DocumentType, doc.Title,
		doc.BaselineHash, doc.BaselineContent, doc.CheckFrequency,
		doc.LastCheckedAt, doc.NextCheckAt, doc.MonitoringActive, doc.NotificationEnabled,
		doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

func (ps *postgresDocumentStorage) FindByID(ctx context.Context, id string) (model.MonitoredDocument, error) {
	query := `SELECT ` + documentColumns + ` FROM monitored_documents WHERE id = $1`

	doc, err := scanDocument(ps.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.MonitoredDocument{}, apperrors.NewNotFound("document %s", id)
		}
		return model.MonitoredDocument{}, fmt.Errorf("find by id failed: %w", err)
	}
	return doc, nil
}

func (ps *postgresDocumentStorage) FindByURL(ctx context.Context, userID, url string) (model.MonitoredDocument, error) {
	query := `SELECT ` + documentColumns + `
		FROM monitored_documents
		WHERE url = $1 AND user_id IS NOT DISTINCT FROM $2`

	doc, err := scanDocument(ps.db.QueryRow(ctx, query, url, nullable(userID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.MonitoredDocument{}, apperrors.NewNotFound("document for url %s", url)
		}
		return model.MonitoredDocument{}, fmt.Errorf("find by url failed: %w", err)
	}
	return doc, nil
}

func (ps *postgresDocumentStorage) FindAll(ctx context.Context) ([]model.MonitoredDocument, error) {
	query := `SELECT ` + documentColumns + ` FROM monitored_documents ORDER BY created_at`

	rows, err := ps.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	return collectDocuments(rows)
}

// ClaimDue selects and leases the due batch in one statement so that two
// concurrent cycles can never pick up the same document.
func (ps *postgresDocumentStorage) ClaimDue(
	ctx context.Context,
	now time.Time,
	limit int,
	lease time.Duration,
) ([]model.MonitoredDocument, error) {
	query := `
		UPDATE monitored_documents
		SET claimed_until = $1, updated_at = $2
		WHERE id IN (
			SELECT id FROM monitored_documents
			WHERE monitoring_active
			  AND next_check_at <= $2
			  AND (claimed_until IS NULL OR claimed_until <= $2)
			ORDER BY next_check_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + documentColumns

	rows, err := ps.db.Query(ctx, query, now.Add(lease), now, limit)
	if err != nil {
		return nil, fmt.Errorf("claim due failed: %w", err)
	}
	defer rows.Close()

	docs, err := collectDocuments(rows)
	if err != nil {
		return nil, err
	}
	// RETURNING does not honor the inner ORDER BY
	sortByNextCheck(docs)
	return docs, nil
}

func (ps *postgresDocumentStorage) RecordCheckResult(
	ctx context.Context,
	id string,
	checkedAt time.Time,
	newHash, newContent *string,
) error {
	const query = `
		UPDATE monitored_documents
		SET last_checked_at = $2,
		    next_check_at = $2 + make_interval(secs => check_frequency),
		    baseline_hash = COALESCE($3, baseline_hash),
		    baseline_content = COALESCE($4, baseline_content),
		    claimed_until = NULL,
		    updated_at = $2
		WHERE id = $1
	`

	cmdTag, err := ps.db.Exec(ctx, query, id, checkedAt, newHash, newContent)
	if err != nil {
		return fmt.Errorf("failed to record check result: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.NewNotFound("document %s", id)
	}
	return nil
}

func (ps *postgresDocumentStorage) UpdateSettings(
	ctx context.Context,
	id string,
	settings model.DocumentSettings,
	now time.Time,
) error {
	const query = `
		UPDATE monitored_documents
		SET check_frequency = COALESCE($2, check_frequency),
		    next_check_at = CASE WHEN $2::int IS NULL THEN next_check_at
		                         ELSE $3 + make_interval(secs => $2) END,
		    notification_enabled = COALESCE($4, notification_enabled),
		    monitoring_active = COALESCE($5, monitoring_active),
		    updated_at = $3
		WHERE id = $1
	`

	cmdTag, err := ps.db.Exec(ctx, query, id,
		settings.CheckFrequency, now, settings.NotificationEnabled, settings.MonitoringActive)
	if err != nil {
		return fmt.Errorf("failed to update settings: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.NewNotFound("document %s", id)
	}
	return nil
}

func (ps *postgresDocumentStorage) CountAll(ctx context.Context) (int, error) {
	var count int
	err := ps.db.QueryRow(ctx, `SELECT COUNT(*) FROM monitored_documents`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return count, nil
}

func (ps *postgresDocumentStorage) CountActive(ctx context.Context) (int, error) {
	var count int
	err := ps.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM monitored_documents WHERE monitoring_active`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active failed: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (model.MonitoredDocument, error) {
	var doc model.MonitoredDocument
	var userID *string
	err := row.Scan(
		&doc.ID, &userID, &doc.URL, &doc.Domain, &doc.DocumentType, &doc.Title,
		&doc.BaselineHash, &doc.BaselineContent, &doc.CheckFrequency,
		&doc.LastCheckedAt, &doc.NextCheckAt, &doc.MonitoringActive, &doc.NotificationEnabled,
		&doc.ClaimedUntil, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return model.MonitoredDocument{}, err
	}
	if userID != nil {
		doc.UserID = *userID
	}
	return doc, nil
}

func collectDocuments(rows pgx.Rows) ([]model.MonitoredDocument, error) {
	var docs []model.MonitoredDocument
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}
	return docs, nil
}

func sortByNextCheck(docs []model.MonitoredDocument) {
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].NextCheckAt.Before(docs[j].NextCheckAt)
	})
}

// nullable maps an empty string onto SQL NULL.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
