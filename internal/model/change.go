package model

import "time"

// Change type values for DocumentChange.ChangeType.
const (
	ChangeContentModified = "content_modified"
	ChangeDocumentAdded   = "document_added"
	ChangeDocumentRemoved = "document_removed"
	ChangeStructureChange = "structure_changed"
)

// Significance levels, derived from the significance score.
const (
	LevelMinor       = "minor"
	LevelModerate    = "moderate"
	LevelSignificant = "significant"
	LevelMajor       = "major"
)

// LevelForScore maps a 0-100 significance score onto its level.
func LevelForScore(score int) string {
	switch {
	case score >= 80:
		return LevelMajor
	case score >= 60:
		return LevelSignificant
	case score >= 30:
		return LevelModerate
	default:
		return LevelMinor
	}
}

// ChangeDetails carries the audit-only findings of an analysis. These never
// contribute to the significance score.
type ChangeDetails struct {
	NewRiskPhrases   []string       `json:"new_risk_phrases,omitempty"`
	ComplianceDeltas map[string]int `json:"compliance_deltas,omitempty"` // keyword -> new count minus old count
}

// DocumentChange records one detected content transition of a monitored
// document. Rows are write-once; only the Processed and NotificationSent
// flags are toggled afterwards.
type DocumentChange struct {
	ID                string        `json:"id"`
	DocumentID        string        `json:"document_id"`
	ChangeType        string        `json:"change_type"`
	OldHash           string        `json:"old_hash"`
	NewHash           string        `json:"new_hash"`
	OldContent        string        `json:"-"`
	NewContent        string        `json:"-"`
	ChangeSummary     string        `json:"change_summary"`
	SignificanceScore int           `json:"significance_score"`
	SignificanceLevel string        `json:"significance_level"`
	AffectedSections  []string      `json:"affected_sections,omitempty"`
	ChangeDetails     ChangeDetails `json:"change_details"`
	DetectedAt        time.Time     `json:"detected_at"`
	Processed         bool          `json:"processed"`
	NotificationSent  bool          `json:"notification_sent"`
}
