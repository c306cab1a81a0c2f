package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestLists(t *testing.T) *Lists {
	t.Helper()
	return NewLists(t.TempDir(), zap.NewNop())
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"Alice@Example.COM", "alice@example.com", false},
		{"  bob@example.org  ", "bob@example.org", false},
		{"Display Name <carol@example.net>", "carol@example.net", false},
		{"no-at-sign", "", true},
		{"user@nodot", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeEmail(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"Example.COM", "example.com", false},
		{"https://shop.example.com/path?x=1", "shop.example.com", false},
		{"nodot", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeDomain(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestAddAndMatch(t *testing.T) {
	l := newTestLists(t)

	require.NoError(t, l.AddToWhitelist("Friend@Example.com"))
	require.NoError(t, l.AddToWhitelist("trusted.org"))
	require.NoError(t, l.AddToBlacklist("spammer@junk.tk"))
	require.NoError(t, l.AddToBlacklist("junk-domain.ml"))

	reason, ok := l.IsWhitelisted("friend@example.com", "example.com")
	assert.True(t, ok)
	assert.Contains(t, reason, "friend@example.com")

	_, ok = l.IsWhitelisted("other@example.com", "example.com")
	assert.False(t, ok, "email entries must not match the whole domain")

	reason, ok = l.IsWhitelisted("anyone@trusted.org", "trusted.org")
	assert.True(t, ok)
	assert.Contains(t, reason, "trusted.org")

	_, ok = l.IsBlacklisted("spammer@junk.tk", "junk.tk")
	assert.True(t, ok)
	_, ok = l.IsBlacklisted("x@junk-domain.ml", "junk-domain.ml")
	assert.True(t, ok)
	_, ok = l.IsBlacklisted("x@clean.org", "clean.org")
	assert.False(t, ok)
}

func TestMatchDerivesDomainFromEmail(t *testing.T) {
	l := newTestLists(t)
	require.NoError(t, l.AddToBlacklist("junk.tk"))

	_, ok := l.IsBlacklisted("someone@junk.tk", "")
	assert.True(t, ok, "domain must be derived from the address when absent")
}

func TestInvalidEntriesRejected(t *testing.T) {
	l := newTestLists(t)

	assert.Error(t, l.AddToWhitelist("not an address @"))
	assert.Error(t, l.AddToWhitelist("nodot"))
	assert.Error(t, l.AddToBlacklist(""))

	emails, domains := l.Snapshot(true)
	assert.Empty(t, emails)
	assert.Empty(t, domains)
}

func TestRemove(t *testing.T) {
	l := newTestLists(t)
	require.NoError(t, l.AddToWhitelist("friend@example.com"))

	removed, err := l.RemoveFromWhitelist("FRIEND@example.com")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = l.RemoveFromWhitelist("friend@example.com")
	require.NoError(t, err)
	assert.False(t, removed, "removing a non-member is not an error")

	_, ok := l.IsWhitelisted("friend@example.com", "example.com")
	assert.False(t, ok)
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	logger := zap.NewNop()

	l := NewLists(dir, logger)
	require.NoError(t, l.AddToWhitelist("friend@example.com"))
	require.NoError(t, l.AddToBlacklist("junk.tk"))

	reloaded := NewLists(dir, logger)
	_, ok := reloaded.IsWhitelisted("friend@example.com", "example.com")
	assert.True(t, ok)
	_, ok = reloaded.IsBlacklisted("x@junk.tk", "junk.tk")
	assert.True(t, ok)
}
