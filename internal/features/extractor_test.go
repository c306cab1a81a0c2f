package features

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikey/antispam/internal/core"
)

type fixedHistory struct {
	stats map[string]core.SenderStats
}

func (h *fixedHistory) StatsFor(sender string) core.SenderStats {
	return h.stats[sender]
}

func (h *fixedHistory) RecordFeedback(_, _ string, _ bool, _ time.Time) error {
	return nil
}

func spamEmail() *core.Email {
	return core.NewEmail(
		"winner@lottery-scam.tk",
		"URGENT! You WON a FREE prize!!!",
		"Act now! Click here to claim your money: http://claim.prize-now.tk/win Limited time offer, 100% guaranteed!",
		nil,
		time.Date(2026, 3, 14, 3, 0, 0, 0, time.UTC),
	)
}

func TestExtractDeterministic(t *testing.T) {
	x := NewExtractor(nil)
	email := spamEmail()

	first := x.Extract(email)
	second := x.Extract(email)
	assert.Equal(t, first, second)
}

func TestFeatureNamesMatchExtractKeys(t *testing.T) {
	x := NewExtractor(nil)
	names := x.FeatureNames()

	require.NotEmpty(t, names)
	assert.True(t, sort.StringsAreSorted(names))

	vector := x.Extract(spamEmail())
	assert.Len(t, vector, len(names))
	for _, name := range names {
		_, ok := vector[name]
		assert.True(t, ok, "missing feature %q", name)
	}
}

func TestEmptyEmailYieldsFullVector(t *testing.T) {
	x := NewExtractor(nil)
	empty := core.NewEmail("", "", "", nil, time.Time{})

	vector := x.Extract(empty)
	assert.Len(t, vector, len(x.FeatureNames()), "every feature must be present even for an empty message")
}

func TestSubjectAndContentSignals(t *testing.T) {
	x := NewExtractor(nil)
	f := x.Extract(spamEmail())

	assert.Greater(t, f["subject_urgency_keywords"], 0.0)
	assert.Greater(t, f["subject_exclamation_count"], 2.0)
	assert.Greater(t, f["content_url_count"], 0.0)
	assert.Greater(t, f["content_suspicious_tld_count"], 0.0)
	assert.Equal(t, 1.0, f["sender_suspicious_tld"])
	assert.Equal(t, 0.0, f["sender_legitimate_domain"])
}

func TestHeaderAuthFeatures(t *testing.T) {
	x := NewExtractor(nil)
	headers := map[string][]string{
		"Authentication-Results": {"mx.example.com; spf=pass; dkim=pass header.d=example.com; dmarc=pass"},
		"List-Unsubscribe":       {"<mailto:unsub@example.com>"},
		"Message-Id":             {"<abc123@example.com>"},
		"Received":               {"hop1", "hop2", "hop3"},
	}
	email := core.NewEmail("news@example.com", "Weekly digest", "content", headers, time.Now())

	f := x.Extract(email)
	assert.Equal(t, 1.0, f["auth_spf_pass"])
	assert.Equal(t, 1.0, f["auth_dkim_pass"])
	assert.Equal(t, 1.0, f["auth_dmarc_pass"])
	assert.Equal(t, 1.0, f["from_dkim_domain_match"])
	assert.Equal(t, 1.0, f["has_list_unsubscribe"])
	assert.Equal(t, 1.0, f["message_id_domain_match"])
	assert.Equal(t, 3.0, f["received_hops"])
}

func TestHistoryFeatures(t *testing.T) {
	firstSeen := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	history := &fixedHistory{stats: map[string]core.SenderStats{
		"repeat@offender.tk": {SpamCount: 4, HamCount: 1, FirstSeen: firstSeen},
	}}
	x := NewExtractor(history)

	email := core.NewEmail("repeat@offender.tk", "hi", "hello", nil, firstSeen.AddDate(0, 0, 10))
	f := x.Extract(email)

	assert.InDelta(t, 0.8, f["sender_spam_ratio"], 1e-9)
	assert.Equal(t, 5.0, f["sender_feedback_count"])
	assert.Equal(t, 1.0, f["sender_recurring_spammer"])
	assert.Equal(t, 0.0, f["sender_recurring_ham"])
	assert.InDelta(t, 10.0, f["sender_days_known"], 1e-6)
}

func TestTemporalFeatures(t *testing.T) {
	x := NewExtractor(nil)

	night := core.NewEmail("a@b.com", "s", "b", nil,
		time.Date(2026, 3, 14, 23, 30, 0, 0, time.UTC)) // Saturday night
	f := x.Extract(night)
	assert.Equal(t, 23.0, f["hour_of_day"])
	assert.Equal(t, 1.0, f["is_weekend"])
	assert.Equal(t, 1.0, f["is_night_hours"])
	assert.Equal(t, 0.0, f["is_business_hours"])

	office := x.Extract(core.NewEmail("a@b.com", "s", "b", nil,
		time.Date(2026, 3, 17, 10, 0, 0, 0, time.UTC))) // Tuesday morning
	assert.Equal(t, 1.0, office["is_business_hours"])
	assert.Equal(t, 0.0, office["is_night_hours"])
}

func TestInteractionFeatures(t *testing.T) {
	x := NewExtractor(nil)

	shouting := core.NewEmail("caps@example.com",
		"WIN FREE MONEY NOW!!!",
		"URGENT!!! Claim your cash prize immediately!",
		nil, time.Now())
	f := x.Extract(shouting)
	assert.Equal(t, 1.0, f["shouting_combo"])
	assert.Equal(t, 1.0, f["urgency_money_combo"])

	calm := x.Extract(core.NewEmail("a@b.com", "Meeting notes", "See attached notes from today.", nil, time.Now()))
	assert.Equal(t, 0.0, calm["shouting_combo"])
	assert.Equal(t, 0.0, calm["urgency_money_combo"])
}

func TestRichContentFeatures(t *testing.T) {
	x := NewExtractor(nil)
	html := core.NewEmail("promo@shop.example",
		"Sale",
		`<html><body><img src="http://x.test/pixel.gif"><p>Big sale today</p><form action="/buy"></form></body></html>`,
		nil, time.Now())

	f := x.Extract(html)
	assert.Equal(t, 1.0, f["has_image_tags"])
	assert.Equal(t, 1.0, f["has_form_tags"])
	assert.Equal(t, 0.0, f["has_script_tags"])
	assert.Greater(t, f["html_text_ratio"], 1.0)
}

func TestFreeMailAndTLDHelpers(t *testing.T) {
	assert.True(t, IsFreeMailProvider("gmail.com"))
	assert.False(t, IsFreeMailProvider("example.com"))
	assert.True(t, HasSuspiciousTLD("cheap-meds.tk"))
	assert.False(t, HasSuspiciousTLD("example.org"))
}
