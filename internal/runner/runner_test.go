package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/policywatch/policywatch/internal/analyzer"
	"github.com/policywatch/policywatch/internal/model"
	"github.com/policywatch/policywatch/internal/storage"
)

type fakeFetcher struct {
	mu      sync.Mutex
	content map[string]string
	errs    map[string]error
	calls   int
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.errs[url]; ok {
		return "", err
	}
	return f.content[url], nil
}

type fakeSink struct {
	mu   sync.Mutex
	sent []model.ChangeNotification
	err  error
}

func (s *fakeSink) Enqueue(_ context.Context, notif model.ChangeNotification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, notif)
	return nil
}

func (s *fakeSink) delivered() []model.ChangeNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ChangeNotification, len(s.sent))
	copy(out, s.sent)
	return out
}

func newTestRunner(store *storage.MemoryStore, fetch *fakeFetcher, sink *fakeSink) *Runner {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(
		store.Documents(),
		store.Changes(),
		store.Jobs(),
		store.NotificationLog(),
		fetch,
		sink,
		logger,
		Config{BatchSize: 100, WorkerCount: 4, NotifyThreshold: 50, ClaimLease: 5 * time.Minute},
	)
}

func seedDocument(t *testing.T, store *storage.MemoryStore, doc model.MonitoredDocument) model.MonitoredDocument {
	t.Helper()
	now := time.Now().UTC()
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.DocumentType == "" {
		doc.DocumentType = model.DocTypeTerms
	}
	if doc.CheckFrequency == 0 {
		doc.CheckFrequency = 3600
	}
	if doc.BaselineContent == "" {
		doc.BaselineContent = "hello world"
	}
	if doc.BaselineHash == "" {
		doc.BaselineHash = hashOf(doc.BaselineContent)
	}
	if doc.NextCheckAt.IsZero() {
		doc.NextCheckAt = now.Add(-time.Minute)
	}
	doc.MonitoringActive = true
	doc.CreatedAt = now
	doc.UpdatedAt = now
	require.NoError(t, store.Documents().Save(context.Background(), &doc))
	return doc
}

func hashOf(content string) string {
	return analyzer.ComputeHash(content)
}

func TestRunCycleIsolatesFetchFailures(t *testing.T) {
	store := storage.NewMemoryStore()
	okA := seedDocument(t, store, model.MonitoredDocument{URL: "https://a.example/terms"})
	okB := seedDocument(t, store, model.MonitoredDocument{URL: "https://b.example/terms"})
	broken := seedDocument(t, store, model.MonitoredDocument{URL: "https://down.example/terms"})

	fetch := &fakeFetcher{
		content: map[string]string{
			okA.URL: "hello world updated edition",
			okB.URL: "hello world updated edition",
		},
		errs: map[string]error{broken.URL: errors.New("connection refused")},
	}
	sink := &fakeSink{}
	r := newTestRunner(store, fetch, sink)

	summary, err := r.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.JobCompleted, summary.Status)
	assert.Equal(t, 3, summary.DocumentsChecked)
	assert.Equal(t, 2, summary.ChangesDetected)
	assert.Equal(t, 1, summary.ErrorsEncountered)

	job, err := store.Jobs().FindByID(context.Background(), summary.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, job.Status)
	assert.Equal(t, 3, job.DocumentsChecked)
	assert.NotNil(t, job.CompletedAt)

	// the failed fetch still reschedules, with the baseline untouched
	got, err := store.Documents().FindByID(context.Background(), broken.ID)
	require.NoError(t, err)
	assert.Equal(t, broken.BaselineHash, got.BaselineHash)
	assert.True(t, got.NextCheckAt.After(broken.NextCheckAt))
	assert.Nil(t, got.ClaimedUntil)
	changes, err := store.Changes().FindByDocument(context.Background(), broken.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, changes)

	// successful checks swap their baseline to the new snapshot
	got, err = store.Documents().FindByID(context.Background(), okA.ID)
	require.NoError(t, err)
	assert.Equal(t, hashOf("hello world updated edition"), got.BaselineHash)
	assert.Equal(t, "hello world updated edition", got.BaselineContent)
}

func TestRunCycleUnchangedContent(t *testing.T) {
	store := storage.NewMemoryStore()
	doc := seedDocument(t, store, model.MonitoredDocument{URL: "https://stable.example/terms"})

	fetch := &fakeFetcher{content: map[string]string{doc.URL: doc.BaselineContent}}
	sink := &fakeSink{}
	r := newTestRunner(store, fetch, sink)

	summary, err := r.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.DocumentsChecked)
	assert.Equal(t, 0, summary.ChangesDetected)
	assert.Equal(t, 0, summary.ErrorsEncountered)

	got, err := store.Documents().FindByID(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.BaselineHash, got.BaselineHash)
	assert.True(t, got.NextCheckAt.After(doc.NextCheckAt))

	changes, err := store.Changes().FindByDocument(context.Background(), doc.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Empty(t, sink.delivered())
}

func TestRunCycleEmptyFetchCountsAsAnalysisError(t *testing.T) {
	store := storage.NewMemoryStore()
	doc := seedDocument(t, store, model.MonitoredDocument{URL: "https://blank.example/terms"})

	fetch := &fakeFetcher{content: map[string]string{doc.URL: "   "}}
	r := newTestRunner(store, fetch, &fakeSink{})

	summary, err := r.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, model.JobCompleted, summary.Status)
	assert.Equal(t, 1, summary.ErrorsEncountered)
	assert.Equal(t, 0, summary.ChangesDetected)

	got, err := store.Documents().FindByID(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.True(t, got.NextCheckAt.After(doc.NextCheckAt))
	assert.Equal(t, doc.BaselineHash, got.BaselineHash)
}

func TestRunCycleNotificationThreshold(t *testing.T) {
	store := storage.NewMemoryStore()

	// major rewrite of a privacy policy: length +153%, sell and consent
	// keyword counts change, GDPR appears, privacy document bump. Score 65.
	highOld := "We store information. You can reach us anytime."
	highNew := highOld + " We may sell information to partners. GDPR applies. Consent is required."
	high := seedDocument(t, store, model.MonitoredDocument{
		URL:                 "https://high.example/privacy",
		DocumentType:        model.DocTypePrivacy,
		UserID:              "user-1",
		NotificationEnabled: true,
		BaselineContent:     highOld,
	})

	// small terms tweak: moderate length change plus one keyword. Score 20.
	lowOld := "Service terms. Billing occurs monthly. Questions go to support."
	lowNew := lowOld + " Refund window is thirty days."
	low := seedDocument(t, store, model.MonitoredDocument{
		URL:                 "https://low.example/terms",
		UserID:              "user-1",
		NotificationEnabled: true,
		BaselineContent:     lowOld,
	})

	// same rewrite as high, but the owner muted notifications
	muted := seedDocument(t, store, model.MonitoredDocument{
		URL:                 "https://muted.example/privacy",
		DocumentType:        model.DocTypePrivacy,
		UserID:              "user-2",
		NotificationEnabled: false,
		BaselineContent:     highOld,
	})

	fetch := &fakeFetcher{content: map[string]string{
		high.URL:  highNew,
		low.URL:   lowNew,
		muted.URL: highNew,
	}}
	sink := &fakeSink{}
	r := newTestRunner(store, fetch, sink)

	summary, err := r.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.ChangesDetected)

	delivered := sink.delivered()
	require.Len(t, delivered, 1)
	assert.Equal(t, "user-1", delivered[0].UserID)
	assert.Equal(t, high.ID, delivered[0].DocumentID)
	assert.Contains(t, delivered[0].Title, high.Title)
	assert.Contains(t, delivered[0].Message, high.URL)

	logged := store.Notifications()
	require.Len(t, logged, 1)
	assert.Equal(t, delivered[0].ChangeID, logged[0].ChangeID)

	highChanges, err := store.Changes().FindByDocument(context.Background(), high.ID, 10)
	require.NoError(t, err)
	require.Len(t, highChanges, 1)
	assert.GreaterOrEqual(t, highChanges[0].SignificanceScore, 50)
	assert.True(t, highChanges[0].Processed)
	assert.True(t, highChanges[0].NotificationSent)

	lowChanges, err := store.Changes().FindByDocument(context.Background(), low.ID, 10)
	require.NoError(t, err)
	require.Len(t, lowChanges, 1)
	assert.Less(t, lowChanges[0].SignificanceScore, 50)
	assert.True(t, lowChanges[0].Processed)
	assert.False(t, lowChanges[0].NotificationSent)

	mutedChanges, err := store.Changes().FindByDocument(context.Background(), muted.ID, 10)
	require.NoError(t, err)
	require.Len(t, mutedChanges, 1)
	assert.False(t, mutedChanges[0].NotificationSent)
}

func TestRunCycleSinkFailureDoesNotFailCycle(t *testing.T) {
	store := storage.NewMemoryStore()
	old := "We store information. You can reach us anytime."
	doc := seedDocument(t, store, model.MonitoredDocument{
		URL:                 "https://high.example/privacy",
		DocumentType:        model.DocTypePrivacy,
		UserID:              "user-1",
		NotificationEnabled: true,
		BaselineContent:     old,
	})

	fetch := &fakeFetcher{content: map[string]string{
		doc.URL: old + " We may sell information to partners. GDPR applies. Consent is required.",
	}}
	sink := &fakeSink{err: errors.New("broker unavailable")}
	r := newTestRunner(store, fetch, sink)

	summary, err := r.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, summary.Status)

	// the notification row is written before the enqueue attempt, but the
	// change is never marked sent
	require.Len(t, store.Notifications(), 1)
	changes, err := store.Changes().FindByDocument(context.Background(), doc.ID, 10)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.True(t, changes[0].Processed)
	assert.False(t, changes[0].NotificationSent)
}

func TestConcurrentCyclesClaimEachDocumentOnce(t *testing.T) {
	store := storage.NewMemoryStore()
	doc := seedDocument(t, store, model.MonitoredDocument{URL: "https://a.example/terms"})

	fetch := &fakeFetcher{content: map[string]string{doc.URL: "hello world updated edition"}}
	sink := &fakeSink{}
	r1 := newTestRunner(store, fetch, sink)
	r2 := newTestRunner(store, fetch, sink)

	var wg sync.WaitGroup
	summaries := make([]*model.MonitoringMetrics, 2)
	errs := make([]error, 2)
	for i, r := range []*Runner{r1, r2} {
		wg.Add(1)
		go func(i int, r *Runner) {
			defer wg.Done()
			summaries[i], errs[i] = r.RunCycle(context.Background())
		}(i, r)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	assert.Equal(t, 1, summaries[0].DocumentsChecked+summaries[1].DocumentsChecked)

	changes, err := store.Changes().FindByDocument(context.Background(), doc.ID, 10)
	require.NoError(t, err)
	assert.Len(t, changes, 1)
}

func TestRunCycleNothingDue(t *testing.T) {
	store := storage.NewMemoryStore()
	seedDocument(t, store, model.MonitoredDocument{
		URL:         "https://future.example/terms",
		NextCheckAt: time.Now().UTC().Add(time.Hour),
	})

	fetch := &fakeFetcher{}
	r := newTestRunner(store, fetch, &fakeSink{})

	summary, err := r.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, summary.Status)
	assert.Equal(t, 0, summary.DocumentsChecked)
	assert.Equal(t, 0, fetch.calls)
}
