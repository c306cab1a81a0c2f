package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikey/antispam/internal/core"
)

func TestParseAnalysisDirectJSON(t *testing.T) {
	a, err := ParseAnalysis(`{"is_spam": true, "score": 0.92, "confidence": 0.85, "explanation": "lottery scam"}`)
	require.NoError(t, err)
	assert.True(t, a.IsSpam)
	assert.Equal(t, 0.92, a.Score)
	assert.Equal(t, 0.85, a.Confidence)
	assert.Equal(t, "lottery scam", a.Explanation)
}

func TestParseAnalysisWrappedJSON(t *testing.T) {
	wrapped := "Here is my assessment:\n```json\n" +
		`{"is_spam": false, "score": 0.1, "confidence": 0.9, "explanation": "routine notification"}` +
		"\n```\nLet me know if you need anything else."

	a, err := ParseAnalysis(wrapped)
	require.NoError(t, err)
	assert.False(t, a.IsSpam)
	assert.Equal(t, 0.9, a.Confidence)
}

func TestParseAnalysisNoJSON(t *testing.T) {
	_, err := ParseAnalysis("I cannot analyze this email.")
	assert.Error(t, err)

	_, err = ParseAnalysis("")
	assert.Error(t, err)
}

func TestParseAnalysisMalformedJSON(t *testing.T) {
	_, err := ParseAnalysis(`prose {"is_spam": tru} prose`)
	assert.Error(t, err)
}

func TestDecisionMapping(t *testing.T) {
	spam := &Analysis{IsSpam: true, Score: 0.9, Confidence: 0.8, Explanation: "phishing"}
	d := spam.Decision("llm_test")
	assert.Equal(t, core.ActionSpam, d.Action)
	assert.Equal(t, 0.8, d.Confidence)
	assert.Equal(t, "phishing", d.Reason)
	assert.Equal(t, "llm_test", d.Method)

	ham := &Analysis{IsSpam: false, Score: 0.2, Confidence: 0.7}
	assert.Equal(t, core.ActionKeep, ham.Decision("llm_test").Action)
}

func TestDecisionConfidenceFallsBackToScore(t *testing.T) {
	a := &Analysis{IsSpam: true, Score: 0.75}
	assert.Equal(t, 0.75, a.Decision("llm_test").Confidence)
}

func TestBuildPromptIncludesMessageFields(t *testing.T) {
	email := core.NewEmail("winner@lottery.tk", "You won!", "ignored", nil, time.Now())
	prompt := BuildPrompt(email, "Claim your prize now.")
	assert.Contains(t, prompt, "From: winner@lottery.tk")
	assert.Contains(t, prompt, "Subject: You won!")
	assert.Contains(t, prompt, "Claim your prize now.")
}
