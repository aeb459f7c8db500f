package tts

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Catalog caches a provider's voice listing so repeated API and CLI lookups
// do not hammer the provider. Entries expire after the configured TTL; a
// forced refresh bypasses the cache.
type Catalog struct {
	provider Provider
	ttl      time.Duration
	now      func() time.Time

	mu        sync.Mutex
	voices    []Voice
	fetchedAt time.Time
}

// NewCatalog wraps a provider with a TTL voice cache. A non-positive TTL
// disables caching.
func NewCatalog(provider Provider, ttl time.Duration) *Catalog {
	return &Catalog{provider: provider, ttl: ttl, now: time.Now}
}

// Voices returns the provider's voices, served from cache while fresh.
func (c *Catalog) Voices(ctx context.Context, forceRefresh bool) ([]Voice, error) {
	c.mu.Lock()
	if !forceRefresh && c.ttl > 0 && c.voices != nil && c.now().Sub(c.fetchedAt) < c.ttl {
		cached := append([]Voice(nil), c.voices...)
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	voices, err := c.provider.Voices(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.voices = append([]Voice(nil), voices...)
	c.fetchedAt = c.now()
	c.mu.Unlock()
	return voices, nil
}

// HasVoice reports whether the provider offers the named voice.
func (c *Catalog) HasVoice(ctx context.Context, voiceID string) (bool, error) {
	voiceID = strings.TrimSpace(voiceID)
	if voiceID == "" {
		return false, nil
	}
	voices, err := c.Voices(ctx, false)
	if err != nil {
		return false, err
	}
	for _, voice := range voices {
		if voice.ID == voiceID {
			return true, nil
		}
	}
	return false, nil
}
