package features

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/k3a/html2text"

	"github.com/mikey/antispam/internal/core"
)

var (
	urlRe    = regexp.MustCompile(`https?://[^\s<>"{}|\\^\x60\[\]]+|www\.[^\s<>"{}|\\^\x60\[\]]+`)
	emailRe  = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phoneRe  = regexp.MustCompile(`(\+?1[-.\s]?)?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}`)
	numberRe = regexp.MustCompile(`\b\d+\b`)
	htmlRe   = regexp.MustCompile(`<[^>]+>`)
	dkimRe   = regexp.MustCompile(`d=([^;\s]+)`)

	trackingRes = compileAll(
		`utm_source=`, `utm_medium=`, `utm_campaign=`, `utm_content=`,
		`tracking=`, `track=`, `source=`, `campaign=`,
	)
	imageRes = compileAll(
		`<img[^>]*>`, `src=['"][^>]*['"]`, `alt=['"][^>]*['"]`,
		`\[image\]`, `\[logo\]`, `\[banner\]`,
	)
	socialRes = compileAll(
		`facebook\.com`, `twitter\.com`, `linkedin\.com`, `instagram\.com`,
		`youtube\.com`, `social`, `follow us`,
	)
	priceRes = compileAll(
		`\d+%\s*off`, `\$\d+`, `€\d+`, `£\d+`, `price`, `cost`,
		`save \$`, `discount`, `% discount`,
	)
)

func compileAll(patterns ...string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		res[i] = regexp.MustCompile(p)
	}
	return res
}

// Extractor derives a fixed-schema numeric feature vector from a message.
// Extraction is deterministic for a given message and sender-history
// snapshot, and never fails: missing fields contribute zeros.
type Extractor struct {
	history core.SenderHistory

	namesOnce sync.Once
	names     []string
}

// NewExtractor creates an extractor. history may be nil, in which case all
// sender-history features are zero.
func NewExtractor(history core.SenderHistory) *Extractor {
	return &Extractor{history: history}
}

// FeatureNames returns the full ordered feature-name list, sorted
// lexicographically. The list is part of the persisted-model contract:
// a trained artifact records it, and a length mismatch against the
// current extractor invalidates the artifact.
func (x *Extractor) FeatureNames() []string {
	x.namesOnce.Do(func() {
		probe := core.NewEmail("", "", "", nil, time.Time{})
		vector := x.Extract(probe)
		names := make([]string, 0, len(vector))
		for name := range vector {
			names = append(names, name)
		}
		sort.Strings(names)
		x.names = names
	})
	return x.names
}

// Extract computes the feature vector for one message. Every feature name
// is always present in the result.
func (x *Extractor) Extract(email *core.Email) map[string]float64 {
	features := make(map[string]float64, 96)

	x.metadataFeatures(features, email)
	x.subjectFeatures(features, email.Subject)
	x.contentFeatures(features, email.Body)
	x.headerFeatures(features, email)
	x.senderFeatures(features, email)
	x.historyFeatures(features, email)
	x.temporalFeatures(features, email.ReceivedAt)
	x.textStatFeatures(features, email.Subject, email.Body)
	x.richContentFeatures(features, email.Body)

	// Interaction features are derived from the groups above, so they are
	// computed last.
	x.interactionFeatures(features)

	return features
}

func (x *Extractor) metadataFeatures(f map[string]float64, email *core.Email) {
	f["subject_length"] = float64(len(email.Subject))
	f["subject_word_count"] = float64(len(strings.Fields(email.Subject)))
	f["content_length"] = float64(len(email.Body))
	f["content_word_count"] = float64(len(strings.Fields(email.Body)))
	if len(email.Body) > 0 {
		f["subject_to_content_ratio"] = float64(len(email.Subject)) / float64(len(email.Body))
	} else {
		f["subject_to_content_ratio"] = 0
	}
}

func (x *Extractor) subjectFeatures(f map[string]float64, subject string) {
	lower := strings.ToLower(subject)

	f["subject_caps_ratio"] = capsRatio(subject)
	f["subject_exclamation_count"] = float64(strings.Count(subject, "!"))
	f["subject_question_count"] = float64(strings.Count(subject, "?"))

	for _, category := range keywordCategories {
		hits := 0
		for _, keyword := range spamKeywords[category] {
			if strings.Contains(lower, keyword) {
				hits++
			}
		}
		f["subject_"+category+"_keywords"] = float64(hits)
	}

	punct := 0
	for _, r := range subject {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			punct++
		}
	}
	f["subject_special_chars"] = float64(punct)

	f["subject_has_re"] = boolFeature(strings.HasPrefix(lower, "re:") || strings.HasPrefix(lower, "fwd:"))
	f["subject_has_brackets"] = boolFeature(strings.ContainsAny(subject, "[]"))
}

func (x *Extractor) contentFeatures(f map[string]float64, body string) {
	lower := strings.ToLower(body)

	if body == "" {
		f["content_caps_ratio"] = 0
		f["content_exclamation_count"] = 0
		f["content_question_count"] = 0
		f["content_url_count"] = 0
		f["content_suspicious_tld_count"] = 0
		f["content_email_count"] = 0
		f["content_phone_count"] = 0
		f["content_number_count"] = 0
		f["content_line_count"] = 0
		f["content_avg_line_length"] = 0
		f["content_html_tag_count"] = 0
		for _, category := range keywordCategories {
			f["content_"+category+"_keywords"] = 0
		}
		x.newsletterFeatures(f, "")
		return
	}

	f["content_caps_ratio"] = capsRatio(body)
	f["content_exclamation_count"] = float64(strings.Count(body, "!"))
	f["content_question_count"] = float64(strings.Count(body, "?"))

	urls := urlRe.FindAllString(lower, -1)
	f["content_url_count"] = float64(len(urls))

	suspicious := 0
	for _, url := range urls {
		for _, tld := range suspiciousTLDs {
			if strings.Contains(url, tld) {
				suspicious++
				break
			}
		}
	}
	f["content_suspicious_tld_count"] = float64(suspicious)

	f["content_email_count"] = float64(len(emailRe.FindAllString(body, -1)))
	f["content_phone_count"] = float64(len(phoneRe.FindAllString(body, -1)))
	f["content_number_count"] = float64(len(numberRe.FindAllString(body, -1)))

	lines := strings.Split(body, "\n")
	f["content_line_count"] = float64(len(lines))
	total := 0
	for _, line := range lines {
		total += len(line)
	}
	f["content_avg_line_length"] = float64(total) / float64(len(lines))

	for _, category := range keywordCategories {
		count := 0
		for _, keyword := range spamKeywords[category] {
			count += strings.Count(lower, keyword)
		}
		f["content_"+category+"_keywords"] = float64(count)
	}

	f["content_html_tag_count"] = float64(len(htmlRe.FindAllString(body, -1)))

	x.newsletterFeatures(f, lower)
}

func (x *Extractor) newsletterFeatures(f map[string]float64, lower string) {
	f["content_tracking_urls"] = float64(countMatches(trackingRes, lower))
	f["content_image_count"] = float64(countMatches(imageRes, lower))
	f["content_social_links"] = float64(countMatches(socialRes, lower))
	f["content_price_indicators"] = float64(countMatches(priceRes, lower))

	phrases := 0
	for _, phrase := range newsletterPhrases {
		phrases += strings.Count(lower, phrase)
	}
	f["content_newsletter_phrases"] = float64(phrases)

	cta := 0
	for _, phrase := range ctaPhrases {
		cta += strings.Count(lower, phrase)
	}
	f["content_cta_count"] = float64(cta)
}

func (x *Extractor) headerFeatures(f map[string]float64, email *core.Email) {
	ar := strings.ToLower(email.Header("Authentication-Results"))
	f["auth_spf_pass"] = boolFeature(strings.Contains(ar, "spf=pass"))
	f["auth_dkim_pass"] = boolFeature(strings.Contains(ar, "dkim=pass"))
	f["auth_dmarc_pass"] = boolFeature(strings.Contains(ar, "dmarc=pass"))

	fromDomain := strings.ToLower(email.SenderDomain)
	dkimDomain := ""
	if m := dkimRe.FindStringSubmatch(ar); m != nil {
		dkimDomain = strings.ToLower(m[1])
	}
	aligned := dkimDomain != "" && fromDomain != "" &&
		(dkimDomain == fromDomain ||
			strings.HasSuffix(dkimDomain, "."+fromDomain) ||
			strings.HasSuffix(fromDomain, "."+dkimDomain))
	f["from_dkim_domain_match"] = boolFeature(aligned)

	f["has_list_unsubscribe"] = boolFeature(email.Header("List-Unsubscribe") != "")

	replyTo := strings.ToLower(email.Header("Reply-To"))
	f["replyto_from_mismatch"] = boolFeature(replyTo != "" && !strings.Contains(replyTo, email.SenderEmail))

	msgID := email.Header("Message-ID")
	msgDomain := ""
	if at := strings.LastIndex(msgID, "@"); at >= 0 {
		msgDomain = strings.ToLower(strings.TrimRight(msgID[at+1:], ">"))
	}
	f["message_id_domain_match"] = boolFeature(msgDomain != "" && fromDomain != "" && strings.HasSuffix(msgDomain, fromDomain))

	hops := 0
	if email.Headers != nil {
		hops = len(email.Headers["Received"])
	}
	f["received_hops"] = float64(hops)
}

func (x *Extractor) senderFeatures(f map[string]float64, email *core.Email) {
	sender := strings.ToLower(email.SenderEmail)
	domain := strings.ToLower(email.SenderDomain)

	f["sender_suspicious_tld"] = boolFeature(HasSuspiciousTLD(domain))

	if at := strings.Index(sender, "@"); at >= 0 {
		local := sender[:at]
		f["sender_local_length"] = float64(len(local))
		f["sender_has_numbers"] = boolFeature(strings.ContainsAny(local, "0123456789"))
		f["sender_has_special_chars"] = boolFeature(strings.ContainsAny(local, "._-+"))
	} else {
		f["sender_local_length"] = 0
		f["sender_has_numbers"] = 0
		f["sender_has_special_chars"] = 0
	}

	f["sender_domain_length"] = float64(len(domain))
	f["sender_legitimate_domain"] = boolFeature(IsFreeMailProvider(domain))
}

func (x *Extractor) historyFeatures(f map[string]float64, email *core.Email) {
	var stats core.SenderStats
	if x.history != nil {
		stats = x.history.StatsFor(email.SenderEmail)
	}

	f["sender_spam_ratio"] = stats.SpamRatio()
	f["sender_feedback_count"] = float64(stats.Total())
	f["sender_recurring_spammer"] = boolFeature(stats.SpamCount >= 3)
	f["sender_recurring_ham"] = boolFeature(stats.HamCount >= 3)

	daysKnown := 0.0
	if !stats.FirstSeen.IsZero() && !email.ReceivedAt.IsZero() {
		if d := email.ReceivedAt.Sub(stats.FirstSeen); d > 0 {
			daysKnown = d.Hours() / 24
		}
	}
	f["sender_days_known"] = daysKnown
}

func (x *Extractor) temporalFeatures(f map[string]float64, at time.Time) {
	if at.IsZero() {
		f["hour_of_day"] = 0
		f["day_of_week"] = 0
		f["is_weekend"] = 0
		f["is_night_hours"] = 0
		f["is_business_hours"] = 0
		return
	}

	hour := at.Hour()
	weekday := at.Weekday()
	f["hour_of_day"] = float64(hour)
	f["day_of_week"] = float64(weekday)
	f["is_weekend"] = boolFeature(weekday == time.Saturday || weekday == time.Sunday)
	f["is_night_hours"] = boolFeature(hour >= 22 || hour < 6)
	f["is_business_hours"] = boolFeature(hour >= 9 && hour < 17 && weekday != time.Saturday && weekday != time.Sunday)
}

func (x *Extractor) textStatFeatures(f map[string]float64, subject, body string) {
	words := tokenize(subject + " " + body)
	if len(words) == 0 {
		f["text_entropy"] = 0
		f["unique_word_ratio"] = 0
		f["avg_word_length"] = 0
		f["lexical_diversity"] = 0
		f["repeated_word_count"] = 0
		return
	}

	counts := make(map[string]int, len(words))
	totalLen := 0
	for _, word := range words {
		counts[word]++
		totalLen += len(word)
	}

	total := float64(len(words))
	entropy := 0.0
	repeated := 0
	for _, count := range counts {
		p := float64(count) / total
		entropy -= p * math.Log2(p)
		if count > 3 {
			repeated++
		}
	}

	unique := float64(len(counts))
	f["text_entropy"] = entropy
	f["unique_word_ratio"] = unique / total
	f["avg_word_length"] = float64(totalLen) / total
	// Root type-token ratio: stays comparable across very different
	// message lengths, unlike the plain unique/total ratio.
	f["lexical_diversity"] = unique / math.Sqrt(2*total)
	f["repeated_word_count"] = float64(repeated)
}

func (x *Extractor) richContentFeatures(f map[string]float64, body string) {
	lower := strings.ToLower(body)

	f["has_image_tags"] = boolFeature(strings.Contains(lower, "<img"))
	f["has_form_tags"] = boolFeature(strings.Contains(lower, "<form"))
	f["has_script_tags"] = boolFeature(strings.Contains(lower, "<script"))

	ratio := 0.0
	if f["content_html_tag_count"] > 0 {
		text := html2text.HTML2Text(body)
		if len(text) > 0 {
			ratio = float64(len(body)) / float64(len(text))
		}
	}
	f["html_text_ratio"] = ratio

	density := 0.0
	if len(body) > 0 {
		density = f["content_url_count"] * 100 / float64(len(body))
	}
	f["link_density"] = density
}

func (x *Extractor) interactionFeatures(f map[string]float64) {
	f["marketing_newsletter_combo"] = boolFeature(
		f["content_marketing_keywords"] > 0 && f["content_newsletter_phrases"] > 0)

	suspiciousContent := f["subject_suspicious_keywords"] > 0 || f["content_suspicious_keywords"] > 0
	noAuth := f["auth_spf_pass"] == 0 && f["auth_dkim_pass"] == 0
	f["suspicious_no_auth"] = boolFeature(suspiciousContent && noAuth)

	f["urgency_money_combo"] = boolFeature(
		f["subject_urgency_keywords"]+f["content_urgency_keywords"] > 0 &&
			f["subject_money_keywords"]+f["content_money_keywords"] > 0)

	f["recurring_spammer_suspicious"] = boolFeature(
		f["sender_recurring_spammer"] == 1 &&
			(f["sender_suspicious_tld"] == 1 || f["content_suspicious_tld_count"] > 0))

	f["shouting_combo"] = boolFeature(
		f["subject_caps_ratio"] > 0.5 &&
			f["subject_exclamation_count"]+f["content_exclamation_count"] >= 3)
}

func capsRatio(s string) float64 {
	if len(s) == 0 {
		return 0
	}
	upper := 0
	for _, r := range s {
		if unicode.IsUpper(r) {
			upper++
		}
	}
	return float64(upper) / float64(len(s))
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func countMatches(res []*regexp.Regexp, s string) int {
	total := 0
	for _, re := range res {
		total += len(re.FindAllString(s, -1))
	}
	return total
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
