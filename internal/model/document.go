package model

import "time"

// Document type values for MonitoredDocument.DocumentType.
const (
	DocTypeTerms   = "terms"
	DocTypePrivacy = "privacy"
	DocTypeCookie  = "cookie"
	DocTypeEULA    = "eula"
)

// DefaultCheckFrequency is the per-document check cadence applied when the
// caller does not supply one (24h, in seconds).
const DefaultCheckFrequency = 86400

// MonitoredDocument is a legal document (terms, privacy policy, ...) under
// periodic change monitoring. BaselineHash/BaselineContent hold the last
// confirmed snapshot; NextCheckAt drives batch selection and must always equal
// LastCheckedAt + CheckFrequency after a check.
type MonitoredDocument struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"user_id,omitempty"`
	URL                 string     `json:"url"`
	Domain              string     `json:"domain"`
	DocumentType        string     `json:"document_type"`
	Title               string     `json:"title"`
	BaselineHash        string     `json:"baseline_hash"`
	BaselineContent     string     `json:"-"`
	CheckFrequency      int        `json:"check_frequency"` // seconds
	LastCheckedAt       time.Time  `json:"last_checked_at"`
	NextCheckAt         time.Time  `json:"next_check_at"`
	MonitoringActive    bool       `json:"monitoring_active"`
	NotificationEnabled bool       `json:"notification_enabled"`
	ClaimedUntil        *time.Time `json:"-"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// CheckInterval returns CheckFrequency as a duration.
func (d *MonitoredDocument) CheckInterval() time.Duration {
	return time.Duration(d.CheckFrequency) * time.Second
}

// ValidDocumentType reports whether t is one of the supported document types.
func ValidDocumentType(t string) bool {
	switch t {
	case DocTypeTerms, DocTypePrivacy, DocTypeCookie, DocTypeEULA:
		return true
	}
	return false
}

// DocumentSettings is a partial settings update; nil fields are left as-is.
// A CheckFrequency change recomputes NextCheckAt from the moment of the update.
type DocumentSettings struct {
	CheckFrequency      *int  `json:"check_frequency,omitempty"`
	NotificationEnabled *bool `json:"notification_enabled,omitempty"`
	MonitoringActive    *bool `json:"monitoring_active,omitempty"`
}
