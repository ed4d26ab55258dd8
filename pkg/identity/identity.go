package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashIdentifier returns the hex-encoded SHA-256 digest of a raw identifier.
// Raw user and session identifiers are never stored; only their digests are.
// An empty identifier hashes to the empty string.
func HashIdentifier(raw string) string {
	if raw == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// ResolveVisitorKey derives the stable visitor key for an event. A non-empty
// user id wins, then a non-empty session id; otherwise the event's own id is
// used, making the event its own singleton visitor. The same resolution is
// applied at admission, during rollup rebuild and on realtime reads, so one
// visitor always counts once across all paths.
func ResolveVisitorKey(userID, sessionID, eventID string) string {
	if userID != "" {
		return HashIdentifier(userID)
	}
	if sessionID != "" {
		return HashIdentifier(sessionID)
	}
	return eventID
}

// DeriveIdempotencyKey computes a deterministic fingerprint for an event that
// arrived without an explicit idempotency key. Resubmitting the identical
// logical event therefore maps to the same key and is skipped on insert.
func DeriveIdempotencyKey(occurredAt, pageURL, path, visitorKey, funnelID, stepKey string) string {
	payload := strings.Join([]string{occurredAt, pageURL, path, visitorKey, funnelID, stepKey}, "\x1f")
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}
