package core

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintDeterministic(t *testing.T) {
	now := time.Now()
	a := NewEmail("alice@example.com", "Hello", "body text", nil, now)
	b := NewEmail("alice@example.com", "Hello", "body text", nil, now.Add(time.Hour))

	assert.Equal(t, a.Fingerprint(), b.Fingerprint(), "fingerprint must not depend on receive time")
	assert.Len(t, a.Fingerprint(), 32, "128-bit digest rendered as hex")
}

func TestFingerprintBodyPrefixOnly(t *testing.T) {
	prefix := strings.Repeat("x", 200)
	a := NewEmail("alice@example.com", "Hello", prefix+"tail one", nil, time.Time{})
	b := NewEmail("alice@example.com", "Hello", prefix+"completely different tail", nil, time.Time{})

	assert.Equal(t, a.Fingerprint(), b.Fingerprint(), "bytes past the body prefix must not matter")

	c := NewEmail("alice@example.com", "Hello", "y"+prefix, nil, time.Time{})
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestFingerprintFieldSensitivity(t *testing.T) {
	base := NewEmail("alice@example.com", "Hello", "body", nil, time.Time{})

	otherSender := NewEmail("bob@example.com", "Hello", "body", nil, time.Time{})
	otherSubject := NewEmail("alice@example.com", "Hi", "body", nil, time.Time{})
	otherBody := NewEmail("alice@example.com", "Hello", "different", nil, time.Time{})

	assert.NotEqual(t, base.Fingerprint(), otherSender.Fingerprint())
	assert.NotEqual(t, base.Fingerprint(), otherSubject.Fingerprint())
	assert.NotEqual(t, base.Fingerprint(), otherBody.Fingerprint())
}

func TestFingerprintFieldBoundaries(t *testing.T) {
	// The null separator keeps adjacent fields from bleeding into each
	// other.
	a := NewEmail("a@example.com", "bc", "d", nil, time.Time{})
	b := NewEmail("a@example.com", "b", "cd", nil, time.Time{})
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}
