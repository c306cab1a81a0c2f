package core

import (
	"encoding/hex"

	"lukechampine.com/blake3"
)

// fingerprintBodyLimit bounds how much of the body participates in the
// fingerprint. Two messages that share sender, subject, and opening text
// collide on purpose: the fingerprint is a dedup key, not a full content
// hash, and existing cache files depend on this scope.
const fingerprintBodyLimit = 200

// Fingerprint returns the 128-bit identity digest of a message, computed
// over the sender address, the subject, and the first 200 characters of
// the body. All other fields are deliberately ignored.
func (e *Email) Fingerprint() string {
	body := e.Body
	if len(body) > fingerprintBodyLimit {
		body = body[:fingerprintBodyLimit]
	}
	h := blake3.New(16, nil)
	h.Write([]byte(e.SenderEmail))
	h.Write([]byte{0})
	h.Write([]byte(e.Subject))
	h.Write([]byte{0})
	h.Write([]byte(body))
	return hex.EncodeToString(h.Sum(nil))
}
