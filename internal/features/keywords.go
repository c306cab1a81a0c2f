package features

// Keyword dictionaries and pattern lists used by the extractor. The
// category names feed directly into feature names (subject_<cat>_keywords,
// content_<cat>_keywords), so renaming a category is a schema change.

var spamKeywords = map[string][]string{
	"urgency":    {"urgent", "immediate", "act now", "limited time", "expires", "deadline"},
	"money":      {"free", "money", "cash", "prize", "winner", "lottery", "million", "reward"},
	"suspicious": {"click here", "verify", "confirm", "suspended", "locked", "update"},
	"phishing":   {"login", "password", "account", "security", "verify", "suspended"},
	"marketing": {
		"offer", "deal", "discount", "sale", "promotion", "limited", "subscribe",
		"newsletter", "unsubscribe", "campaign", "advertising", "special offer",
		"best price", "save money", "exclusive", "voucher", "coupon", "clearance",
		"black friday", "cyber monday", "flash sale", "promotional", "marketing",
		"commercial", "advertisement", "sponsor", "affiliate", "bulk", "blast",
	},
	"scam": {"nigerian", "inheritance", "beneficiary", "transfer", "funds"},
}

// keywordCategories lists the dictionary keys in a fixed order so feature
// vectors do not depend on map iteration.
var keywordCategories = []string{"urgency", "money", "suspicious", "phishing", "marketing", "scam"}

var suspiciousTLDs = []string{".tk", ".ml", ".ga", ".cf", ".top", ".click", ".download"}

// Major free-mail providers. Whole-provider domains are never added to the
// whitelist by sender feedback, and senders on them score differently.
var freeMailProviders = map[string]bool{
	"gmail.com":   true,
	"yahoo.com":   true,
	"hotmail.com": true,
	"outlook.com": true,
	"aol.com":     true,
}

var newsletterPhrases = []string{
	"unsubscribe", "opt out", "manage preferences", "email preferences",
	"view in browser", "web version", "forward to friend", "share this",
	"newsletter", "mailing list", "subscription", "opt-in",
}

var ctaPhrases = []string{
	"buy now", "shop now", "order now", "download now", "get started",
	"sign up", "register", "learn more", "read more", "click here",
}

// IsFreeMailProvider reports whether the domain belongs to a major
// free-mail provider.
func IsFreeMailProvider(domain string) bool {
	return freeMailProviders[domain]
}

// HasSuspiciousTLD reports whether the domain ends in a TLD from the
// suspicious list.
func HasSuspiciousTLD(domain string) bool {
	for _, tld := range suspiciousTLDs {
		if len(domain) > len(tld) && domain[len(domain)-len(tld):] == tld {
			return true
		}
	}
	return false
}
