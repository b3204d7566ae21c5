package checkout

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	canonicaljson "github.com/gibson042/canonicaljson-go"
	"golang.org/x/sync/singleflight"
)

// fingerprintInput is the identity tuple a billing session is keyed by.
// Canonical JSON keeps the derived key stable across field ordering.
type fingerprintInput struct {
	OrgID      string `json:"org_id"`
	PriceID    string `json:"price_id"`
	ExternalID string `json:"external_id"`
	Email      string `json:"email"`
}

// sessionFingerprint derives the cache key for a session request.
func sessionFingerprint(orgID, priceID, externalID, email string) string {
	payload, err := canonicaljson.Marshal(fingerprintInput{
		OrgID:      orgID,
		PriceID:    priceID,
		ExternalID: externalID,
		Email:      email,
	})
	if err != nil {
		// The input is a flat struct of strings; canonical encoding cannot
		// fail for it. Fall back to the raw tuple if it somehow does.
		payload = []byte(orgID + "|" + priceID + "|" + externalID + "|" + email)
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// sessionCache stores billing sessions shared across checkout instances.
// GetOrCreate is atomic per key: interleaved calls for the same fingerprint
// share one in-flight creation instead of creating duplicate sessions.
type sessionCache struct {
	mu      sync.Mutex
	entries map[string]*Session
	group   singleflight.Group
}

func newSessionCache() *sessionCache {
	return &sessionCache{entries: make(map[string]*Session)}
}

// sharedSessions is the process-wide cache used unless a client overrides it.
var sharedSessions = newSessionCache()

// GetOrCreate returns the cached session for key, or runs create exactly
// once to populate it while concurrent callers wait on the same result.
func (c *sessionCache) GetOrCreate(key string, create func() (*Session, error)) (*Session, error) {
	result, err, _ := c.group.Do(key, func() (any, error) {
		c.mu.Lock()
		cached, ok := c.entries[key]
		c.mu.Unlock()
		if ok {
			return cached, nil
		}
		session, err := create()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = session
		c.mu.Unlock()
		return session, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Session), nil
}

// Invalidate drops the cached session for key, if any.
func (c *sessionCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
