package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/policywatch/policywatch/internal/errors"
	"github.com/policywatch/policywatch/internal/model"
)

type postgresChangeStorage struct {
	db *pgxpool.Pool
}

func NewPostgresChangeStorage(pool *pgxpool.Pool) ChangeStorage {
	return &postgresChangeStorage{pool}
}

const changeColumns = `
	id, document_id, change_type, old_hash, new_hash, old_content, new_content,
	change_summary, significance_score, significance_level, affected_sections,
	change_details, detected_at, processed, notification_sent
`

func (ps *postgresChangeStorage) Save(ctx context.Context, change *model.DocumentChange) error {
	const query = `
		INSERT INTO document_changes (
			id, document_id, change_type, old_hash, new_hash, old_content, new_content,
			change_summary, significance_score, significance_level, affected_sections,
			change_details, detected_at, processed, notification_sent
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	sections := change.AffectedSections
	if sections == nil {
		sections = []string{}
	}

	_, err := ps.db.Exec(ctx, query,
		change.ID, change.DocumentID, change.ChangeType,
		change.OldHash, change.NewHash, change.OldContent, change.NewContent,
		change.ChangeSummary, change.SignificanceScore, change.SignificanceLevel,
		sections, change.ChangeDetails, change.DetectedAt,
		change.Processed, change.NotificationSent,
	)
	if err != nil {
		return fmt.Errorf("failed to save change: %w", err)
	}
	return nil
}

func (ps *postgresChangeStorage) FindByDocument(
	ctx context.Context,
	documentID string,
	limit int,
) ([]model.DocumentChange, error) {
	query := `SELECT ` + changeColumns + `
		FROM document_changes
		WHERE document_id = $1
		ORDER BY detected_at DESC
		LIMIT $2`

	rows, err := ps.db.Query(ctx, query, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	return collectChanges(rows)
}

func (ps *postgresChangeStorage) CountSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := ps.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM document_changes WHERE detected_at >= $1`, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count since failed: %w", err)
	}
	return count, nil
}

func (ps *postgresChangeStorage) AverageScoreSince(ctx context.Context, since time.Time) (float64, error) {
	var avg *float64
	err := ps.db.QueryRow(ctx,
		`SELECT AVG(significance_score) FROM document_changes WHERE detected_at >= $1`,
		since).Scan(&avg)
	if err != nil {
		return 0, fmt.Errorf("average score failed: %w", err)
	}
	if avg == nil {
		return 0, nil
	}
	return *avg, nil
}

func (ps *postgresChangeStorage) CountByTypeSince(
	ctx context.Context,
	since time.Time,
) (map[string]int, error) {
	const query = `
		SELECT d.document_type, COUNT(*)
		FROM document_changes c
		JOIN monitored_documents d ON d.id = c.document_id
		WHERE c.detected_at >= $1
		GROUP BY d.document_type
	`

	rows, err := ps.db.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("count by type failed: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var docType string
		var count int
		if err := rows.Scan(&docType, &count); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		counts[docType] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}
	return counts, nil
}

func (ps *postgresChangeStorage) RecentSignificant(
	ctx context.Context,
	minScore, limit int,
) ([]model.DocumentChange, error) {
	query := `SELECT ` + changeColumns + `
		FROM document_changes
		WHERE significance_score >= $1
		ORDER BY detected_at DESC
		LIMIT $2`

	rows, err := ps.db.Query(ctx, query, minScore, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	return collectChanges(rows)
}

func (ps *postgresChangeStorage) MarkProcessed(ctx context.Context, id string) error {
	return ps.setFlag(ctx, id, "processed")
}

func (ps *postgresChangeStorage) MarkNotificationSent(ctx context.Context, id string) error {
	return ps.setFlag(ctx, id, "notification_sent")
}

func (ps *postgresChangeStorage) setFlag(ctx context.Context, id, column string) error {
	// column is one of two compile-time constants, never user input
	query := fmt.Sprintf(`UPDATE document_changes SET %s = TRUE WHERE id = $1`, column)

	cmdTag, err := ps.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", column, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.NewNotFound("change %s", id)
	}
	return nil
}

func collectChanges(rows pgx.Rows) ([]model.DocumentChange, error) {
	var changes []model.DocumentChange
	for rows.Next() {
		var c model.DocumentChange
		err := rows.Scan(
			&c.ID, &c.DocumentID, &c.ChangeType, &c.OldHash, &c.NewHash,
			&c.OldContent, &c.NewContent, &c.ChangeSummary,
			&c.SignificanceScore, &c.SignificanceLevel, &c.AffectedSections,
			&c.ChangeDetails, &c.DetectedAt, &c.Processed, &c.NotificationSent,
		)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration failed: %w", err)
	}
	return changes, nil
}
