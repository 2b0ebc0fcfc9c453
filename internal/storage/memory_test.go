package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/policywatch/policywatch/internal/errors"
	"github.com/policywatch/policywatch/internal/model"
)

func newDoc(id string, nextCheckAt time.Time) *model.MonitoredDocument {
	return &model.MonitoredDocument{
		ID:               id,
		URL:              "https://example.com/" + id,
		DocumentType:     model.DocTypeTerms,
		BaselineHash:     "hash-" + id,
		BaselineContent:  "content " + id,
		CheckFrequency:   3600,
		NextCheckAt:      nextCheckAt,
		MonitoringActive: true,
	}
}

func TestClaimDueSelectsOnlyDueActiveUnclaimed(t *testing.T) {
	store := NewMemoryStore()
	docs := store.Documents()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, docs.Save(ctx, newDoc("due", now.Add(-time.Minute))))
	require.NoError(t, docs.Save(ctx, newDoc("future", now.Add(time.Hour))))

	paused := newDoc("paused", now.Add(-time.Minute))
	paused.MonitoringActive = false
	require.NoError(t, docs.Save(ctx, paused))

	claimed, err := docs.ClaimDue(ctx, now, 10, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "due", claimed[0].ID)

	// a second claim within the lease window sees nothing
	again, err := docs.ClaimDue(ctx, now, 10, 5*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, again)

	// once the lease expires the document is claimable again
	later, err := docs.ClaimDue(ctx, now.Add(6*time.Minute), 10, 5*time.Minute)
	require.NoError(t, err)
	assert.Len(t, later, 1)
}

func TestClaimDueOrdersByNextCheckAndHonorsLimit(t *testing.T) {
	store := NewMemoryStore()
	docs := store.Documents()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, docs.Save(ctx, newDoc("newest", now.Add(-time.Minute))))
	require.NoError(t, docs.Save(ctx, newDoc("oldest", now.Add(-time.Hour))))
	require.NoError(t, docs.Save(ctx, newDoc("middle", now.Add(-30*time.Minute))))

	claimed, err := docs.ClaimDue(ctx, now, 2, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, "oldest", claimed[0].ID)
	assert.Equal(t, "middle", claimed[1].ID)
}

func TestRecordCheckResultReschedulesFromCheckTime(t *testing.T) {
	store := NewMemoryStore()
	docs := store.Documents()
	ctx := context.Background()
	now := time.Now().UTC()

	doc := newDoc("d1", now.Add(-time.Minute))
	require.NoError(t, docs.Save(ctx, doc))

	_, err := docs.ClaimDue(ctx, now, 1, 5*time.Minute)
	require.NoError(t, err)

	checkedAt := now.Add(2 * time.Second)
	require.NoError(t, docs.RecordCheckResult(ctx, doc.ID, checkedAt, nil, nil))

	got, err := docs.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, checkedAt, got.LastCheckedAt)
	assert.Equal(t, checkedAt.Add(got.CheckInterval()), got.NextCheckAt)
	assert.Nil(t, got.ClaimedUntil)
	// baseline untouched when no new snapshot is passed
	assert.Equal(t, doc.BaselineHash, got.BaselineHash)
	assert.Equal(t, doc.BaselineContent, got.BaselineContent)
}

func TestRecordCheckResultSwapsBaseline(t *testing.T) {
	store := NewMemoryStore()
	docs := store.Documents()
	ctx := context.Background()
	now := time.Now().UTC()

	doc := newDoc("d1", now.Add(-time.Minute))
	require.NoError(t, docs.Save(ctx, doc))

	newHash, newContent := "hash-v2", "content v2"
	require.NoError(t, docs.RecordCheckResult(ctx, doc.ID, now, &newHash, &newContent))

	got, err := docs.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, newHash, got.BaselineHash)
	assert.Equal(t, newContent, got.BaselineContent)
}

func TestUpdateSettingsRecomputesSchedule(t *testing.T) {
	store := NewMemoryStore()
	docs := store.Documents()
	ctx := context.Background()
	now := time.Now().UTC()

	doc := newDoc("d1", now.Add(time.Hour))
	require.NoError(t, docs.Save(ctx, doc))

	freq := 120
	require.NoError(t, docs.UpdateSettings(ctx, doc.ID, model.DocumentSettings{CheckFrequency: &freq}, now))

	got, err := docs.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 120, got.CheckFrequency)
	assert.Equal(t, now.Add(2*time.Minute), got.NextCheckAt)

	// toggles leave the schedule alone
	enabled := false
	before := got.NextCheckAt
	require.NoError(t, docs.UpdateSettings(ctx, doc.ID, model.DocumentSettings{NotificationEnabled: &enabled}, now.Add(time.Minute)))
	got, err = docs.FindByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, before, got.NextCheckAt)
	assert.False(t, got.NotificationEnabled)
}

func TestFindByURLScopedToUser(t *testing.T) {
	store := NewMemoryStore()
	docs := store.Documents()
	ctx := context.Background()
	now := time.Now().UTC()

	doc := newDoc("d1", now)
	doc.UserID = "u1"
	require.NoError(t, docs.Save(ctx, doc))

	_, err := docs.FindByURL(ctx, "u1", doc.URL)
	require.NoError(t, err)

	_, err = docs.FindByURL(ctx, "u2", doc.URL)
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestChangeFlagsAndReportQueries(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	doc := newDoc("d1", now)
	doc.DocumentType = model.DocTypePrivacy
	require.NoError(t, store.Documents().Save(ctx, doc))

	change := &model.DocumentChange{
		ID:                "c1",
		DocumentID:        doc.ID,
		ChangeType:        model.ChangeContentModified,
		SignificanceScore: 70,
		SignificanceLevel: model.LevelSignificant,
		DetectedAt:        now,
	}
	require.NoError(t, store.Changes().Save(ctx, change))

	require.NoError(t, store.Changes().MarkProcessed(ctx, "c1"))
	require.NoError(t, store.Changes().MarkNotificationSent(ctx, "c1"))

	got, err := store.Changes().FindByDocument(ctx, doc.ID, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Processed)
	assert.True(t, got[0].NotificationSent)

	count, err := store.Changes().CountSince(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	avg, err := store.Changes().AverageScoreSince(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 70.0, avg, 0.001)

	byType, err := store.Changes().CountByTypeSince(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{model.DocTypePrivacy: 1}, byType)

	significant, err := store.Changes().RecentSignificant(ctx, 60, 10)
	require.NoError(t, err)
	assert.Len(t, significant, 1)
}

func TestJobLifecycle(t *testing.T) {
	store := NewMemoryStore()
	jobs := store.Jobs()
	ctx := context.Background()
	now := time.Now().UTC()

	job := &model.MonitoringJob{
		ID:        "j1",
		JobType:   model.JobTypeMonitoringCycle,
		Status:    model.JobPending,
		StartedAt: now,
	}
	require.NoError(t, jobs.Save(ctx, job))
	require.NoError(t, jobs.UpdateStatus(ctx, "j1", model.JobRunning))

	completed := now.Add(time.Second)
	job.Status = model.JobCompleted
	job.DocumentsChecked = 5
	job.ChangesDetected = 2
	job.ErrorsEncountered = 1
	job.CompletedAt = &completed
	require.NoError(t, jobs.Finalize(ctx, job))

	got, err := jobs.FindByID(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, got.Status)
	assert.Equal(t, 5, got.DocumentsChecked)
	assert.Equal(t, 2, got.ChangesDetected)
	assert.Equal(t, 1, got.ErrorsEncountered)
	require.NotNil(t, got.CompletedAt)
}
