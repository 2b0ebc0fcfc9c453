package storage

import (
	"context"
	"time"

	"github.com/policywatch/policywatch/internal/model"
)

// DocumentStorage owns MonitoredDocument rows: registry reads/writes,
// batch claiming and scheduling-state updates.
type DocumentStorage interface {
	Ping(ctx context.Context) error
	Save(ctx context.Context, doc *model.MonitoredDocument) error
	FindByID(ctx context.Context, id string) (model.MonitoredDocument, error)
	FindByURL(ctx context.Context, userID, url string) (model.MonitoredDocument, error)
	FindAll(ctx context.Context) ([]model.MonitoredDocument, error)

	// ClaimDue atomically selects up to limit active documents whose
	// next_check_at has passed and are not already claimed, marking each as
	// claimed until now+lease. A claimed document is invisible to concurrent
	// callers until RecordCheckResult clears the claim or the lease expires.
	ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]model.MonitoredDocument, error)

	// RecordCheckResult stamps a completed check: last_checked_at=checkedAt,
	// next_check_at=checkedAt+check_frequency, claim cleared. When newHash
	// and newContent are non-nil the baseline snapshot is replaced.
	RecordCheckResult(ctx context.Context, id string, checkedAt time.Time, newHash, newContent *string) error

	// UpdateSettings applies a partial settings patch. A check-frequency
	// change recomputes next_check_at from now, not from the old schedule.
	UpdateSettings(ctx context.Context, id string, settings model.DocumentSettings, now time.Time) error

	CountAll(ctx context.Context) (int, error)
	CountActive(ctx context.Context) (int, error)
}

// ChangeStorage persists detected changes and serves the read queries behind
// the monitoring report.
type ChangeStorage interface {
	Save(ctx context.Context, change *model.DocumentChange) error
	FindByDocument(ctx context.Context, documentID string, limit int) ([]model.DocumentChange, error)
	CountSince(ctx context.Context, since time.Time) (int, error)
	AverageScoreSince(ctx context.Context, since time.Time) (float64, error)
	CountByTypeSince(ctx context.Context, since time.Time) (map[string]int, error)
	RecentSignificant(ctx context.Context, minScore, limit int) ([]model.DocumentChange, error)
	MarkProcessed(ctx context.Context, id string) error
	MarkNotificationSent(ctx context.Context, id string) error
}

// JobStorage persists monitoring-job lifecycle rows.
type JobStorage interface {
	Save(ctx context.Context, job *model.MonitoringJob) error
	UpdateStatus(ctx context.Context, id, status string) error
	Finalize(ctx context.Context, job *model.MonitoringJob) error
	FindByID(ctx context.Context, id string) (model.MonitoringJob, error)
}

// NotificationStorage persists created change notifications.
type NotificationStorage interface {
	Save(ctx context.Context, notif *model.ChangeNotification) error
}
