package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	. "github.com/helmsman-ai/helmsman/internal/logging"
	"github.com/helmsman-ai/helmsman/internal/config"
	"github.com/helmsman-ai/helmsman/internal/metrics"
	"github.com/helmsman-ai/helmsman/internal/types"
)

// HealthCache caches provider health probes for a TTL. Concurrent checks for
// the same provider share one underlying probe; the cache key includes a
// credential hash so rotated keys invalidate stale results.
type HealthCache struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]healthEntry
	group   singleflight.Group
}

type healthEntry struct {
	err     error
	checked time.Time
}

// NewHealthCache builds a cache with the given TTL (60s default upstream).
func NewHealthCache(ttl time.Duration) *HealthCache {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &HealthCache{
		ttl:     ttl,
		entries: make(map[string]healthEntry),
	}
}

// Check returns the provider's health, probing at most once per TTL.
func (h *HealthCache) Check(ctx context.Context, client Client) error {
	key := h.key(client.Provider())

	h.mu.Lock()
	if entry, ok := h.entries[key]; ok && time.Since(entry.checked) < h.ttl {
		h.mu.Unlock()
		return entry.err
	}
	h.mu.Unlock()

	result, err, _ := h.group.Do(key, func() (any, error) {
		probeErr := client.HealthCheck(ctx)

		h.mu.Lock()
		h.entries[key] = healthEntry{err: probeErr, checked: time.Now()}
		h.mu.Unlock()

		outcome := "ok"
		if probeErr != nil {
			outcome = "fail"
			L_warn("provider health probe failed", "provider", client.Provider(), "error", probeErr)
		}
		metrics.HealthProbes.WithLabelValues(string(client.Provider()), outcome).Inc()
		return probeErr, nil
	})
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if probeErr, ok := result.(error); ok {
		return probeErr
	}
	return nil
}

// Invalidate drops the cached result for a provider.
func (h *HealthCache) Invalidate(p types.Provider) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.entries, h.key(p))
}

// key combines the provider tag with a hash of its credential material.
func (h *HealthCache) key(p types.Provider) string {
	hash := fnv.New64a()
	for _, env := range config.RequiredEnv(p) {
		hash.Write([]byte(os.Getenv(env)))
		hash.Write([]byte{0})
	}
	return fmt.Sprintf("%s/%x", p, hash.Sum64())
}
