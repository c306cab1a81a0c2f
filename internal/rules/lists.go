package rules

import (
	"encoding/json"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Lists holds the whitelist and blacklist: per list an exact-match email
// set and a domain set. Entries are validated and normalized before
// insertion, and both lists persist as whole JSON files.
type Lists struct {
	mu            sync.Mutex
	whitelist     listSet
	blacklist     listSet
	whitelistPath string
	blacklistPath string
	logger        *zap.Logger
}

type listSet struct {
	Emails  map[string]bool
	Domains map[string]bool
}

// listFile is the on-disk shape of one list.
type listFile struct {
	Emails  []string `json:"emails"`
	Domains []string `json:"domains"`
}

func newListSet() listSet {
	return listSet{Emails: make(map[string]bool), Domains: make(map[string]bool)}
}

// NewLists loads the rule lists from dataDir, starting empty when a file
// is missing or unreadable.
func NewLists(dataDir string, logger *zap.Logger) *Lists {
	l := &Lists{
		whitelist:     newListSet(),
		blacklist:     newListSet(),
		whitelistPath: filepath.Join(dataDir, "whitelist.json"),
		blacklistPath: filepath.Join(dataDir, "blacklist.json"),
		logger:        logger,
	}
	l.loadFile(l.whitelistPath, &l.whitelist)
	l.loadFile(l.blacklistPath, &l.blacklist)
	return l
}

func (l *Lists) loadFile(path string, target *listSet) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			l.logger.Warn("Failed to read rule list", zap.String("path", path), zap.Error(err))
		}
		return
	}
	var file listFile
	if err := json.Unmarshal(data, &file); err != nil {
		l.logger.Error("Failed to parse rule list", zap.String("path", path), zap.Error(err))
		return
	}
	for _, email := range file.Emails {
		target.Emails[strings.ToLower(email)] = true
	}
	for _, domain := range file.Domains {
		target.Domains[strings.ToLower(domain)] = true
	}
}

func (l *Lists) saveFile(path string, source listSet) error {
	file := listFile{
		Emails:  sortedKeys(source.Emails),
		Domains: sortedKeys(source.Domains),
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal rule list: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create list directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write rule list: %w", err)
	}
	return nil
}

// NormalizeEmail validates an email address and returns it lowercased.
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return "", fmt.Errorf("invalid email address %q: %w", email, err)
	}
	normalized := strings.ToLower(addr.Address)
	at := strings.LastIndex(normalized, "@")
	if at <= 0 || !strings.Contains(normalized[at+1:], ".") {
		return "", fmt.Errorf("invalid email address %q: missing domain", email)
	}
	return normalized, nil
}

// NormalizeDomain strips any scheme and path, lowercases, and requires at
// least one dot.
func NormalizeDomain(domain string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(domain))
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}
	if i := strings.Index(d, "/"); i >= 0 {
		d = d[:i]
	}
	if d == "" || !strings.Contains(d, ".") {
		return "", fmt.Errorf("invalid domain %q", domain)
	}
	return d, nil
}

func (l *Lists) add(set *listSet, item string) (string, error) {
	if strings.Contains(item, "@") {
		email, err := NormalizeEmail(item)
		if err != nil {
			return "", err
		}
		set.Emails[email] = true
		return "email:" + email, nil
	}
	domain, err := NormalizeDomain(item)
	if err != nil {
		return "", err
	}
	set.Domains[domain] = true
	return "domain:" + domain, nil
}

func (l *Lists) remove(set *listSet, item string) (bool, error) {
	if strings.Contains(item, "@") {
		email, err := NormalizeEmail(item)
		if err != nil {
			return false, err
		}
		if !set.Emails[email] {
			return false, nil
		}
		delete(set.Emails, email)
		return true, nil
	}
	domain, err := NormalizeDomain(item)
	if err != nil {
		return false, err
	}
	if !set.Domains[domain] {
		return false, nil
	}
	delete(set.Domains, domain)
	return true, nil
}

// AddToWhitelist adds an email address or domain to the whitelist.
func (l *Lists) AddToWhitelist(item string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	added, err := l.add(&l.whitelist, item)
	if err != nil {
		return err
	}
	if err := l.saveFile(l.whitelistPath, l.whitelist); err != nil {
		return err
	}
	l.logger.Info("Added to whitelist", zap.String("item", added))
	return nil
}

// AddToBlacklist adds an email address or domain to the blacklist.
func (l *Lists) AddToBlacklist(item string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	added, err := l.add(&l.blacklist, item)
	if err != nil {
		return err
	}
	if err := l.saveFile(l.blacklistPath, l.blacklist); err != nil {
		return err
	}
	l.logger.Info("Added to blacklist", zap.String("item", added))
	return nil
}

// RemoveFromWhitelist removes an entry; removing a non-member is reported
// as false, not an error.
func (l *Lists) RemoveFromWhitelist(item string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed, err := l.remove(&l.whitelist, item)
	if err != nil || !removed {
		return removed, err
	}
	return true, l.saveFile(l.whitelistPath, l.whitelist)
}

// RemoveFromBlacklist removes an entry; removing a non-member is reported
// as false, not an error.
func (l *Lists) RemoveFromBlacklist(item string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed, err := l.remove(&l.blacklist, item)
	if err != nil || !removed {
		return removed, err
	}
	return true, l.saveFile(l.blacklistPath, l.blacklist)
}

// IsWhitelisted reports whether the sender address or its domain is on
// the whitelist.
func (l *Lists) IsWhitelisted(senderEmail, senderDomain string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.match(l.whitelist, senderEmail, senderDomain, "whitelisted")
}

// IsBlacklisted reports whether the sender address or its domain is on
// the blacklist.
func (l *Lists) IsBlacklisted(senderEmail, senderDomain string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.match(l.blacklist, senderEmail, senderDomain, "blacklisted")
}

func (l *Lists) match(set listSet, senderEmail, senderDomain, verb string) (string, bool) {
	email := strings.ToLower(senderEmail)
	if set.Emails[email] {
		return fmt.Sprintf("email %q is %s", email, verb), true
	}
	domain := strings.ToLower(senderDomain)
	if domain == "" {
		if at := strings.LastIndex(email, "@"); at >= 0 {
			domain = email[at+1:]
		}
	}
	if domain != "" && set.Domains[domain] {
		return fmt.Sprintf("domain %q is %s", domain, verb), true
	}
	return "", false
}

// Snapshot returns the sorted contents of one list for display.
func (l *Lists) Snapshot(whitelist bool) (emails, domains []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	set := l.blacklist
	if whitelist {
		set = l.whitelist
	}
	return sortedKeys(set.Emails), sortedKeys(set.Domains)
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
