package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/policywatch/policywatch/internal/model"
)

type postgresNotificationStorage struct {
	db *pgxpool.Pool
}

func NewPostgresNotificationStorage(pool *pgxpool.Pool) NotificationStorage {
	return &postgresNotificationStorage{pool}
}

func (ps *postgresNotificationStorage) Save(ctx context.Context, notif *model.ChangeNotification) error {
	const query = `
		INSERT INTO change_notifications (
			id, user_id, document_id, change_id, title, message, url, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := ps.db.Exec(ctx, query,
		notif.ID, notif.UserID, notif.DocumentID, notif.ChangeID,
		notif.Title, notif.Message, notif.URL, notif.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}
	return nil
}
