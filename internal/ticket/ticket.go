// Package ticket holds WSAA authentication tickets and their cache.
//
// A ticket is usable only while now < expiration - SafetyMargin. The cache
// is advisory: concurrent writers for the same key may race, and last-writer
// -wins is safe because the authority issues equivalent tickets for a given
// identity/service/environment.
package ticket

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// SafetyMargin is subtracted from the ticket expiration when judging
// validity, so a ticket is never used in its final minutes.
const SafetyMargin = 5 * time.Minute

// Ticket is a short-lived WSAA credential: the token/sign pair is the bearer
// credential for every subsequent authority call.
type Ticket struct {
	Token      string    `json:"token"`
	Sign       string    `json:"sign"`
	Expiration time.Time `json:"expiration"`
	// ScopeKey identifies the (identity, service, environment) the ticket
	// was issued for.
	ScopeKey string `json:"scope_key"`
}

// ValidAt reports whether the ticket is usable at the given instant.
func (t *Ticket) ValidAt(now time.Time) bool {
	if t == nil || t.Token == "" || t.Sign == "" {
		return false
	}
	return now.Before(t.Expiration.Add(-SafetyMargin))
}

// Valid reports whether the ticket is usable now.
func (t *Ticket) Valid() bool {
	return t.ValidAt(time.Now())
}

// CacheKey derives the stable cache key for an identity/service/environment
// triple.
func CacheKey(identityRef, service, environment string) string {
	sum := sha256.Sum256([]byte(identityRef + "|" + service + "|" + environment))
	return hex.EncodeToString(sum[:])
}
