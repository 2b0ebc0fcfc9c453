package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/policywatch/policywatch/internal/errors"
	"github.com/policywatch/policywatch/internal/model"
)

func TestComputeHash_SingleCharacterSensitivity(t *testing.T) {
	a := ComputeHash("We keep your data safe.")
	b := ComputeHash("We keep your data safe!")

	assert.NotEqual(t, a, b)
	assert.Equal(t, a, ComputeHash("We keep your data safe."))
	assert.Len(t, a, 64)
}

func TestCompare_IdenticalContentIsNoChange(t *testing.T) {
	content := "We keep your data safe."

	res, err := Compare(content, content, model.DocTypePrivacy)

	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, res.OldHash, res.NewHash)
	assert.Zero(t, res.SignificanceScore)
}

func TestCompare_Deterministic(t *testing.T) {
	oldContent := "You may contact us. We process data under GDPR with your consent."
	newContent := "You may contact us. We may sell data and you can opt-out of tracking."

	first, err := Compare(oldContent, newContent, model.DocTypePrivacy)
	require.NoError(t, err)
	second, err := Compare(oldContent, newContent, model.DocTypePrivacy)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCompare_EmptyContent(t *testing.T) {
	tests := []struct {
		name       string
		oldContent string
		newContent string
	}{
		{name: "empty baseline", oldContent: "", newContent: "some terms"},
		{name: "whitespace baseline", oldContent: "   \n", newContent: "some terms"},
		{name: "empty fetched content", oldContent: "some terms", newContent: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compare(tt.oldContent, tt.newContent, model.DocTypeTerms)

			require.Error(t, err)
			assert.True(t, apperrors.IsAnalysisError(err))
		})
	}
}

// Scenario: a short addition that changes the "data" occurrence count and
// introduces "sell" scores 10 and stays minor; "may sell" lands in the audit
// details without affecting the score.
func TestCompare_MinorChangeScenario(t *testing.T) {
	oldContent := "We keep your data. Data is safe. This agreement explains, in plain language, " +
		"how our product behaves and what visitors should expect from us while using any of our " +
		"websites, applications, or related offerings."
	newContent := oldContent + " We may sell your data to affiliates."

	res, err := Compare(oldContent, newContent, model.DocTypeTerms)

	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, 10, res.SignificanceScore)
	assert.Equal(t, model.LevelMinor, res.SignificanceLevel)
	assert.Contains(t, res.Reasons, `keyword "data" occurrences changed (2 -> 3)`)
	assert.Contains(t, res.Reasons, `keyword "sell" occurrences changed (0 -> 1)`)
	assert.Contains(t, res.Details.NewRiskPhrases, "may sell")
	assert.Less(t, res.LengthDelta, 0.2)
}

// Scenario: introducing an opt-out mechanism in a privacy policy flips a
// rights phrase (+20), moves two keyword counts (+10) and picks up the
// privacy-document bonus (+10) for a moderate 40; adding a GDPR mention and a
// consent keyword on top pushes the change into significant.
func TestCompare_OptOutScenario(t *testing.T) {
	oldContent := "Our privacy practices are described here. You may contact us at any time with " +
		"questions about this policy, and we answer every message within a few business days. We " +
		"describe below how the service operates, what the service stores on our side, and which " +
		"choices are available to account holders throughout the lifetime of an account."
	newContent := oldContent + " You may opt-out of cookie-based marketing communications."

	res, err := Compare(oldContent, newContent, model.DocTypePrivacy)
	require.NoError(t, err)
	assert.Equal(t, 40, res.SignificanceScore)
	assert.Equal(t, model.LevelModerate, res.SignificanceLevel)
	assert.Contains(t, res.Reasons, `affected user rights: "opt-out"`)
	assert.Contains(t, res.Reasons, "privacy policy document")

	newContent += " Processing is performed as required by GDPR, with your consent recorded."

	res, err = Compare(oldContent, newContent, model.DocTypePrivacy)
	require.NoError(t, err)
	assert.Equal(t, model.LevelSignificant, res.SignificanceLevel)
	assert.GreaterOrEqual(t, res.SignificanceScore, 60)
	assert.Contains(t, res.Reasons, `compliance impact: "gdpr"`)
}

func TestCompare_ScoreClampedAt100(t *testing.T) {
	oldContent := "A plain agreement with nothing remarkable in it at all, kept deliberately dull."
	newContent := "We collect data, share and sell it under consent, honor rights, delete on request, " +
		"set every cookie, run tracking, involve any third party, keep unlimited retention, accept no " +
		"liability, force binding arbitration, may terminate without notice, suspend accounts, give no " +
		"refund; you may opt-out, you can unsubscribe, you are entitled to the right to privacy under " +
		"GDPR, CCPA, PIPEDA, HIPAA and COPPA."

	res, err := Compare(oldContent, newContent, model.DocTypePrivacy)

	require.NoError(t, err)
	assert.Equal(t, 100, res.SignificanceScore)
	assert.Equal(t, model.LevelMajor, res.SignificanceLevel)
}

func TestLevelForScore_Boundaries(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{score: 100, want: model.LevelMajor},
		{score: 80, want: model.LevelMajor},
		{score: 79, want: model.LevelSignificant},
		{score: 60, want: model.LevelSignificant},
		{score: 59, want: model.LevelModerate},
		{score: 30, want: model.LevelModerate},
		{score: 29, want: model.LevelMinor},
		{score: 0, want: model.LevelMinor},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, model.LevelForScore(tt.score), "score %d", tt.score)
	}
}

func TestCompare_AffectedSections(t *testing.T) {
	oldContent := "Introduction. Your Rights: you may ask us for a copy of records we hold about you " +
		"at any point during the life of this agreement and the years that follow its termination date."
	newContent := "Introduction. Your Rights: you may ask us to erase records we hold about you " +
		"at any point during the life of this agreement and the years that follow its termination date."

	res, err := Compare(oldContent, newContent, model.DocTypeTerms)

	require.NoError(t, err)
	assert.Contains(t, res.AffectedSections, "your rights")
	assert.Equal(t, model.ChangeStructureChange, res.ChangeType())
}

func TestCompare_SummaryMentionsLevelAndScore(t *testing.T) {
	oldContent := "We keep your data. Data is safe. This agreement explains, in plain language, " +
		"how our product behaves and what visitors should expect from us while using any of our " +
		"websites, applications, or related offerings."
	newContent := oldContent + " We may sell your data to affiliates."

	res, err := Compare(oldContent, newContent, model.DocTypeTerms)

	require.NoError(t, err)
	assert.Contains(t, res.Summary, "Minor change detected (score 10)")
	assert.Contains(t, res.Summary, `keyword "data"`)
}

func TestCompare_LengthDeltaBonuses(t *testing.T) {
	base := "This agreement covers the essentials of using our product and nothing beyond that scope."

	tests := []struct {
		name      string
		factor    int
		wantScore int
		reason    string
	}{
		// doubling the text is a major length change
		{name: "major growth", factor: 2, wantScore: 30, reason: "major content length change"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			newContent := base
			for i := 0; i < tt.factor; i++ {
				newContent += " Nothing in this appended filler mentions anything notable whatsoever."
			}

			res, err := Compare(base, newContent, model.DocTypeTerms)

			require.NoError(t, err)
			assert.Equal(t, tt.wantScore, res.SignificanceScore)
			assert.Contains(t, res.Reasons, tt.reason)
		})
	}
}
