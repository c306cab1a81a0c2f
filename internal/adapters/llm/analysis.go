package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mikey/antispam/internal/core"
)

// SystemPrompt frames every provider call. Providers that support a
// dedicated system role pass it there; others prepend it to the user
// prompt.
const SystemPrompt = "You are a spam detection system. Respond only with JSON."

const promptFormat = `You are a spam detection system. Analyze the following email and determine if it's spam.
Consider phishing attempts, scams, unsolicited marketing, and brand impersonation
(a sender domain that does not match the brand the message claims to be from).
Respond with a JSON object containing:
- is_spam: boolean (true if spam, false if not)
- score: number between 0 and 1 (higher means more likely to be spam)
- confidence: number between 0 and 1 (how confident you are in your assessment)
- explanation: string (brief explanation of why you think it's spam or not)

Email:
From: %s
Subject: %s
Body:
%s

Respond only with the JSON object and nothing else.`

// BuildPrompt renders the classification prompt for one message. The
// body is expected to be truncated and sanitized by the caller.
func BuildPrompt(email *core.Email, body string) string {
	return fmt.Sprintf(promptFormat, email.SenderEmail, email.Subject, body)
}

// Analysis is the structured verdict every provider is asked to return.
type Analysis struct {
	IsSpam      bool    `json:"is_spam"`
	Score       float64 `json:"score"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// ParseAnalysis decodes a provider response. Models sometimes wrap the
// JSON object in prose or code fences, so a failed direct parse falls
// back to the outermost brace pair.
func ParseAnalysis(text string) (*Analysis, error) {
	var analysis Analysis
	if err := json.Unmarshal([]byte(text), &analysis); err == nil {
		return &analysis, nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response %q", snippet(text))
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &analysis); err != nil {
		return nil, fmt.Errorf("failed to parse response as JSON: %w", err)
	}
	return &analysis, nil
}

// Decision converts an analysis into a pipeline decision tagged with the
// provider's method name.
func (a *Analysis) Decision(method string) *core.Decision {
	action := core.ActionKeep
	if a.IsSpam {
		action = core.ActionSpam
	}
	confidence := a.Confidence
	if confidence <= 0 {
		confidence = a.Score
	}
	return &core.Decision{
		Action:     action,
		Reason:     a.Explanation,
		Confidence: confidence,
		Method:     method,
	}
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}
