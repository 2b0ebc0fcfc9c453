package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "github.com/policywatch/policywatch/internal/errors"
	"github.com/policywatch/policywatch/internal/model"
)

// MemoryStore is an in-memory implementation of every storage interface,
// exposed through per-entity views sharing one lock. It mirrors the Postgres
// claim semantics (a claimed document is skipped until its lease expires or
// the claim is cleared) and backs the service and runner tests.
type MemoryStore struct {
	mu            sync.Mutex
	documents     map[string]*model.MonitoredDocument
	changes       map[string]*model.DocumentChange
	jobs          map[string]*model.MonitoringJob
	notifications []model.ChangeNotification
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents: make(map[string]*model.MonitoredDocument),
		changes:   make(map[string]*model.DocumentChange),
		jobs:      make(map[string]*model.MonitoringJob),
	}
}

// Documents returns the DocumentStorage view of the store.
func (ms *MemoryStore) Documents() DocumentStorage { return &memoryDocuments{ms} }

// Changes returns the ChangeStorage view of the store.
func (ms *MemoryStore) Changes() ChangeStorage { return &memoryChanges{ms} }

// Jobs returns the JobStorage view of the store.
func (ms *MemoryStore) Jobs() JobStorage { return &memoryJobs{ms} }

// NotificationLog returns the NotificationStorage view of the store.
func (ms *MemoryStore) NotificationLog() NotificationStorage { return &memoryNotifications{ms} }

// Notifications returns a copy of everything saved through the
// NotificationStorage view; test helper.
func (ms *MemoryStore) Notifications() []model.ChangeNotification {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	out := make([]model.ChangeNotification, len(ms.notifications))
	copy(out, ms.notifications)
	return out
}

type memoryDocuments struct{ ms *MemoryStore }

var _ DocumentStorage = (*memoryDocuments)(nil)

func (s *memoryDocuments) Ping(_ context.Context) error { return nil }

func (s *memoryDocuments) Save(_ context.Context, doc *model.MonitoredDocument) error {
	s.ms.mu.Lock()
	defer s.ms.mu.Unlock()
	if _, ok := s.ms.documents[doc.ID]; ok {
		return apperrors.NewConflict("document %s already exists", doc.ID)
	}
	cp := *doc
	s.ms.documents[doc.ID] = &cp
	return nil
}

func (s *memoryDocuments) FindByID(_ context.Context, id string) (model.MonitoredDocument, error) {
	s.ms.mu.Lock()
	defer s.ms.mu.Unlock()
	doc, ok := s.ms.documents[id]
	if !ok {
		return model.MonitoredDocument{}, apperrors.NewNotFound("document %s", id)
	}
	return *doc, nil
}

func (s *memoryDocuments) FindByURL(_ context.Context, userID, url string) (model.MonitoredDocument, error) {
	s.ms.mu.Lock()
	defer s.ms.mu.Unlock()
	for _, doc := range s.ms.documents {
		if doc.URL == url && doc.UserID == userID {
			return *doc, nil
		}
	}
	return model.MonitoredDocument{}, apperrors.NewNotFound("document for url %s", url)
}

func (s *memoryDocuments) FindAll(_ context.Context) ([]model.MonitoredDocument, error) {
	s.ms.mu.Lock()
	defer s.ms.mu.Unlock()
	docs := make([]model.MonitoredDocument, 0, len(s.ms.documents))
	for _, doc := range s.ms.documents {
		docs = append(docs, *doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].CreatedAt.Before(docs[j].CreatedAt) })
	return docs, nil
}

func (s *memoryDocuments) ClaimDue(
	_ context.Context,
	now time.Time,
	limit int,
	lease time.Duration,
) ([]model.MonitoredDocument, error) {
	s.ms.mu.Lock()
	defer s.ms.mu.Unlock()

	var due []*model.MonitoredDocument
	for _, doc := range s.ms.documents {
		if !doc.MonitoringActive || doc.NextCheckAt.After(now) {
			continue
		}
		if doc.ClaimedUntil != nil && doc.ClaimedUntil.After(now) {
			continue
		}
		due = append(due, doc)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextCheckAt.Before(due[j].NextCheckAt) })
	if len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]model.MonitoredDocument, 0, len(due))
	until := now.Add(lease)
	for _, doc := range due {
		doc.ClaimedUntil = &until
		claimed = append(claimed, *doc)
	}
	return claimed, nil
}

func (s *memoryDocuments) RecordCheckResult(
	_ context.Context,
	id string,
	checkedAt time.Time,
	newHash, newContent *string,
) error {
	s.ms.mu.Lock()
	defer s.ms.mu.Unlock()
	doc, ok := s.ms.documents[id]
	if !ok {
		return apperrors.NewNotFound("document %s", id)
	}
	doc.LastCheckedAt = checkedAt
	doc.NextCheckAt = checkedAt.Add(doc.CheckInterval())
	if newHash != nil {
		doc.BaselineHash = *newHash
	}
	if newContent != nil {
		doc.BaselineContent = *newContent
	}
	doc.ClaimedUntil = nil
	doc.UpdatedAt = checkedAt
	return nil
}

func (s *memoryDocuments) UpdateSettings(
	_ context.Context,
	id string,
	settings model.DocumentSettings,
	now time.Time,
) error {
	s.ms.mu.Lock()
	defer s.ms.mu.Unlock()
	doc, ok := s.ms.documents[id]
	if !ok {
		return apperrors.NewNotFound("document %s", id)
	}
	if settings.CheckFrequency != nil {
		doc.CheckFrequency = *settings.CheckFrequency
		doc.NextCheckAt = now.Add(doc.CheckInterval())
	}
	if settings.NotificationEnabled != nil {
		doc.NotificationEnabled = *settings.NotificationEnabled
	}
	if settings.MonitoringActive != nil {
		doc.MonitoringActive = *settings.MonitoringActive
	}
	doc.UpdatedAt = now
	return nil
}

func (s *memoryDocuments) CountAll(_ context.Context) (int, error) {
	s.ms.mu.Lock()
	defer s.ms.mu.Unlock()
	return len(s.ms.documents), nil
}

func (s *memoryDocuments) CountActive(_ context.Context) (int, error) {
	s.ms.mu.Lock()
	defer s.ms.mu.Unlock()
	count := 0
	for _, doc := range s.ms.documents {
		if doc.MonitoringActive {
			count++
		}
	}
	return count, nil
}

type memoryChanges struct{ ms *MemoryStore }

var _ ChangeStorage = (*memoryChanges)(nil)

func (s *memoryChanges) Save(_ context.Context, change *model.DocumentChange) error {
	s.ms.mu.Lock()
	defer s.ms.mu.Unlock()
	if _, ok := s.ms.changes[change.ID]; ok {
		return apperrors.NewConflict("change %s already exists", change.ID)
	}
	cp := *change
	s.ms.changes[change.ID] = &cp
	return nil
}

func (s *memoryChanges) FindByDocument(_ context.Context, documentID string, limit int) ([]model.DocumentChange, error) {
	s.ms.mu.Lock()
	defer s.ms.mu.Unlock()
	var changes []model.DocumentChange
	for _, c := range s.ms.changes {
		if c.DocumentID == documentID {
			changes = append(changes, *c)
		}
	}
	sortByDetectedAtDesc(changes)
	if len(changes) > limit {
		changes = changes[:limit]
	}
	return changes, nil
}

func (s *memoryChanges) CountSince(_ context.Context, since time.Time) (int, error) {
	s.ms.mu.Lock()
	defer s.ms.mu.Unlock()
	count := 0
	for _, c := range s.ms.changes {
		if !c.DetectedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *memoryChanges) AverageScoreSince(_ context.Context, since time.Time) (float64, error) {
	s.ms.mu.Lock()
	defer s.ms.mu.Unlock()
	sum, count := 0, 0
	for _, c := range s.ms.changes {
		if !c.DetectedAt.Before(since) {
			sum += c.SignificanceScore
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}
	return float64(sum) / float64(count), nil
}

func (s *memoryChanges) CountByTypeSince(_ context.Context, since time.Time) (map[string]int, error) {
	s.ms.mu.Lock()
	defer s.ms.mu.Unlock()
	counts := make(map[string]int)
	for _, c := range s.ms.changes {
		if c.DetectedAt.Before(since) {
			continue
		}
		doc, ok := s.ms.documents[c.DocumentID]
		if !ok {
			continue
		}
		counts[doc.DocumentType]++
	}
	return counts, nil
}

func (s *memoryChanges) RecentSignificant(_ context.Context, minScore, limit int) ([]model.DocumentChange, error) {
	s.ms.mu.Lock()
	defer s.ms.mu.Unlock()
	var changes []model.DocumentChange
	for _, c := range s.ms.changes {
		if c.SignificanceScore >= minScore {
			changes = append(changes, *c)
		}
	}
	sortByDetectedAtDesc(changes)
	if len(changes) > limit {
		changes = changes[:limit]
	}
	return changes, nil
}

func (s *memoryChanges) MarkProcessed(_ context.Context, id string) error {
	return s.setFlag(id, func(c *model.DocumentChange) { c.Processed = true })
}

func (s *memoryChanges) MarkNotificationSent(_ context.Context, id string) error {
	return s.setFlag(id, func(c *model.DocumentChange) { c.NotificationSent = true })
}

func (s *memoryChanges) setFlag(id string, apply func(*model.DocumentChange)) error {
	s.ms.mu.Lock()
	defer s.ms.mu.Unlock()
	c, ok := s.ms.changes[id]
	if !ok {
		return apperrors.NewNotFound("change %s", id)
	}
	apply(c)
	return nil
}

type memoryJobs struct{ ms *MemoryStore }

var _ JobStorage = (*memoryJobs)(nil)

func (s *memoryJobs) Save(_ context.Context, job *model.MonitoringJob) error {
	s.ms.mu.Lock()
	defer s.ms.mu.Unlock()
	if _, ok := s.ms.jobs[job.ID]; ok {
		return apperrors.NewConflict("job %s already exists", job.ID)
	}
	cp := *job
	s.ms.jobs[job.ID] = &cp
	return nil
}

func (s *memoryJobs) UpdateStatus(_ context.Context, id, status string) error {
	s.ms.mu.Lock()
	defer s.ms.mu.Unlock()
	job, ok := s.ms.jobs[id]
	if !ok {
		return apperrors.NewNotFound("job %s", id)
	}
	job.Status = status
	return nil
}

func (s *memoryJobs) Finalize(_ context.Context, job *model.MonitoringJob) error {
	s.ms.mu.Lock()
	defer s.ms.mu.Unlock()
	stored, ok := s.ms.jobs[job.ID]
	if !ok {
		return apperrors.NewNotFound("job %s", job.ID)
	}
	stored.Status = job.Status
	stored.DocumentsChecked = job.DocumentsChecked
	stored.ChangesDetected = job.ChangesDetected
	stored.ErrorsEncountered = job.ErrorsEncountered
	stored.CompletedAt = job.CompletedAt
	return nil
}

func (s *memoryJobs) FindByID(_ context.Context, id string) (model.MonitoringJob, error) {
	s.ms.mu.Lock()
	defer s.ms.mu.Unlock()
	job, ok := s.ms.jobs[id]
	if !ok {
		return model.MonitoringJob{}, apperrors.NewNotFound("job %s", id)
	}
	return *job, nil
}

type memoryNotifications struct{ ms *MemoryStore }

var _ NotificationStorage = (*memoryNotifications)(nil)

func (s *memoryNotifications) Save(_ context.Context, notif *model.ChangeNotification) error {
	s.ms.mu.Lock()
	defer s.ms.mu.Unlock()
	s.ms.notifications = append(s.ms.notifications, *notif)
	return nil
}

func sortByDetectedAtDesc(changes []model.DocumentChange) {
	sort.Slice(changes, func(i, j int) bool { return changes[i].DetectedAt.After(changes[j].DetectedAt) })
}
