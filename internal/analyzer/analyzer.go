// Package analyzer compares two snapshots of a legal document and scores how
// behaviorally significant the drift between them is. Everything in here is
// pure: identical inputs always produce identical output.
package analyzer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	apperrors "github.com/policywatch/policywatch/internal/errors"
	"github.com/policywatch/policywatch/internal/model"
)

// Additive score weights and thresholds. These constants are the scoring
// contract; tests pin them down.
const (
	majorLengthDelta    = 0.5
	moderateLengthDelta = 0.2
	majorLengthWeight   = 30
	moderateLengthWeight = 15
	keywordWeight       = 5
	rightsPhraseWeight  = 20
	complianceWeight    = 15
	privacyDocWeight    = 10
	maxScore            = 100

	// sectionWindow is the context width extracted around a section heading
	// when deciding whether that section changed.
	sectionWindow = 100
)

// highImpactKeywords bump the score when their occurrence count differs
// between snapshots.
var highImpactKeywords = []string{
	"data", "privacy", "collect", "share", "sell", "consent", "rights",
	"delete", "opt-out", "cookie", "tracking", "third party", "retention",
	"liability", "arbitration", "terminate", "suspend", "refund",
}

// rightsPhrases bump the score when their presence flips between snapshots.
var rightsPhrases = []string{
	"right to", "you may", "you can", "entitled to", "opt-out", "unsubscribe",
}

// complianceFrameworks bump the score when a framework mention appears or
// disappears.
var complianceFrameworks = []string{"gdpr", "ccpa", "pipeda", "hipaa", "coppa"}

// riskPhrases are recorded for audit when newly introduced; they do not score.
var riskPhrases = []string{
	"unlimited retention", "may sell", "binding arbitration", "waive rights",
	"automatic renewal", "no refund", "may terminate without notice",
}

// complianceKeywords have their occurrence-count deltas recorded for audit;
// they do not score.
var complianceKeywords = []string{
	"consent", "opt-out", "data subject rights", "lawful basis",
	"data controller", "data processor", "privacy notice",
}

type sectionPattern struct {
	name string
	re   *regexp.Regexp
}

var sectionPatterns = []sectionPattern{
	{"data collection", regexp.MustCompile(`(?i)data collection`)},
	{"information we collect", regexp.MustCompile(`(?i)information we collect`)},
	{"how we use", regexp.MustCompile(`(?i)how we use`)},
	{"data sharing", regexp.MustCompile(`(?i)data sharing`)},
	{"third parties", regexp.MustCompile(`(?i)third parties`)},
	{"cookies", regexp.MustCompile(`(?i)cookies`)},
	{"your rights", regexp.MustCompile(`(?i)your rights`)},
	{"contact", regexp.MustCompile(`(?i)contact`)},
	{"changes to", regexp.MustCompile(`(?i)changes to`)},
	{"liability", regexp.MustCompile(`(?i)liability`)},
	{"termination", regexp.MustCompile(`(?i)termination`)},
	{"dispute resolution", regexp.MustCompile(`(?i)dispute resolution`)},
}

// Result is the outcome of comparing two snapshots. When Changed is false
// only the hashes are meaningful.
type Result struct {
	Changed           bool
	OldHash           string
	NewHash           string
	SignificanceScore int
	SignificanceLevel string
	Reasons           []string
	AffectedSections  []string
	Details           model.ChangeDetails
	LengthDelta       float64
	Summary           string
}

// ChangeType classifies the detected change for the change record.
func (r *Result) ChangeType() string {
	if len(r.AffectedSections) > 0 {
		return model.ChangeStructureChange
	}
	return model.ChangeContentModified
}

// ComputeHash returns the hex-encoded SHA-256 of content.
func ComputeHash(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}

// Compare analyzes the drift between a baseline snapshot and a freshly
// fetched one. It returns an AnalysisError when either snapshot is empty.
func Compare(oldContent, newContent, documentType string) (*Result, error) {
	if strings.TrimSpace(oldContent) == "" {
		return nil, apperrors.NewAnalysisError("baseline content is empty")
	}
	if strings.TrimSpace(newContent) == "" {
		return nil, apperrors.NewAnalysisError("fetched content is empty")
	}

	res := &Result{
		OldHash: ComputeHash(oldContent),
		NewHash: ComputeHash(newContent),
	}
	if res.OldHash == res.NewHash {
		return res, nil
	}
	res.Changed = true

	oldLower := strings.ToLower(oldContent)
	newLower := strings.ToLower(newContent)

	score := 0

	res.LengthDelta = lengthDelta(oldContent, newContent)
	switch {
	case res.LengthDelta > majorLengthDelta:
		score += majorLengthWeight
		res.Reasons = append(res.Reasons, "major content length change")
	case res.LengthDelta > moderateLengthDelta:
		score += moderateLengthWeight
		res.Reasons = append(res.Reasons, "moderate content length change")
	}

	for _, kw := range highImpactKeywords {
		oldCount := strings.Count(oldLower, kw)
		newCount := strings.Count(newLower, kw)
		if oldCount != newCount {
			score += keywordWeight
			res.Reasons = append(res.Reasons,
				fmt.Sprintf("keyword %q occurrences changed (%d -> %d)", kw, oldCount, newCount))
		}
	}

	for _, phrase := range rightsPhrases {
		if strings.Contains(oldLower, phrase) != strings.Contains(newLower, phrase) {
			score += rightsPhraseWeight
			res.Reasons = append(res.Reasons,
				fmt.Sprintf("affected user rights: %q", phrase))
		}
	}

	for _, fw := range complianceFrameworks {
		if strings.Contains(oldLower, fw) != strings.Contains(newLower, fw) {
			score += complianceWeight
			res.Reasons = append(res.Reasons,
				fmt.Sprintf("compliance impact: %q", fw))
		}
	}

	if documentType == model.DocTypePrivacy {
		score += privacyDocWeight
		res.Reasons = append(res.Reasons, "privacy policy document")
	}

	if score > maxScore {
		score = maxScore
	}
	if score < 0 {
		score = 0
	}
	res.SignificanceScore = score
	res.SignificanceLevel = model.LevelForScore(score)

	res.AffectedSections = affectedSections(oldContent, newContent)
	res.Details = auditDetails(oldLower, newLower)
	res.Summary = summarize(res)

	return res, nil
}

// lengthDelta is |len(new)-len(old)| relative to the baseline length.
func lengthDelta(oldContent, newContent string) float64 {
	diff := len(newContent) - len(oldContent)
	if diff < 0 {
		diff = -diff
	}
	return float64(diff) / float64(len(oldContent))
}

// affectedSections marks a section when both snapshots contain its heading
// but the text around the heading differs.
func affectedSections(oldContent, newContent string) []string {
	var sections []string
	for _, sp := range sectionPatterns {
		oldWindow, oldOK := headingWindow(sp.re, oldContent)
		newWindow, newOK := headingWindow(sp.re, newContent)
		if oldOK && newOK && oldWindow != newWindow {
			sections = append(sections, sp.name)
		}
	}
	return sections
}

// headingWindow extracts +-sectionWindow characters around the first heading
// match in content.
func headingWindow(re *regexp.Regexp, content string) (string, bool) {
	loc := re.FindStringIndex(content)
	if loc == nil {
		return "", false
	}
	start := loc[0] - sectionWindow
	if start < 0 {
		start = 0
	}
	end := loc[1] + sectionWindow
	if end > len(content) {
		end = len(content)
	}
	return content[start:end], true
}

// auditDetails collects the informational findings that never score: newly
// introduced risk phrases and compliance-keyword count deltas.
func auditDetails(oldLower, newLower string) model.ChangeDetails {
	var details model.ChangeDetails
	for _, phrase := range riskPhrases {
		if strings.Contains(newLower, phrase) && !strings.Contains(oldLower, phrase) {
			details.NewRiskPhrases = append(details.NewRiskPhrases, phrase)
		}
	}
	for _, kw := range complianceKeywords {
		delta := strings.Count(newLower, kw) - strings.Count(oldLower, kw)
		if delta != 0 {
			if details.ComplianceDeltas == nil {
				details.ComplianceDeltas = make(map[string]int)
			}
			details.ComplianceDeltas[kw] = delta
		}
	}
	return details
}

// summarize builds the one-sentence human summary: level, score, length delta
// when it exceeds 20%, and up to three leading reasons.
func summarize(res *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s change detected (score %d)",
		titleCase(res.SignificanceLevel), res.SignificanceScore)

	if res.LengthDelta > moderateLengthDelta {
		fmt.Fprintf(&b, ", content length changed by %.0f%%", res.LengthDelta*100)
	}

	if len(res.Reasons) > 0 {
		leading := res.Reasons
		if len(leading) > 3 {
			leading = leading[:3]
		}
		b.WriteString(": ")
		b.WriteString(strings.Join(leading, "; "))
	}
	b.WriteString(".")
	return b.String()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
