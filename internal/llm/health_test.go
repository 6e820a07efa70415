package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/helmsman-ai/helmsman/internal/types"
)

type probeClient struct {
	provider types.Provider
	probes   atomic.Int64
	fail     atomic.Bool
}

func (c *probeClient) Provider() types.Provider { return c.provider }
func (c *probeClient) ValidateConfig() error    { return nil }
func (c *probeClient) HealthCheck(ctx context.Context) error {
	c.probes.Add(1)
	if c.fail.Load() {
		return errors.New("probe failed")
	}
	return nil
}
func (c *probeClient) ChatCompletion(ctx context.Context, req *types.APIRequest) (*types.APIResponse, error) {
	return nil, errors.New("not implemented")
}
func (c *probeClient) Close() error { return nil }

func TestHealthCacheTTL(t *testing.T) {
	cache := NewHealthCache(time.Hour)
	client := &probeClient{provider: types.ProviderLocal}

	for i := 0; i < 5; i++ {
		if err := cache.Check(context.Background(), client); err != nil {
			t.Fatalf("Check %d: %v", i, err)
		}
	}
	if got := client.probes.Load(); got != 1 {
		t.Errorf("probes = %d, want 1 within TTL", got)
	}
}

func TestHealthCacheCachesFailures(t *testing.T) {
	cache := NewHealthCache(time.Hour)
	client := &probeClient{provider: types.ProviderLocal}
	client.fail.Store(true)

	if err := cache.Check(context.Background(), client); err == nil {
		t.Fatal("first check should fail")
	}
	// The failure is cached too; recovery waits for the TTL or Invalidate.
	client.fail.Store(false)
	if err := cache.Check(context.Background(), client); err == nil {
		t.Errorf("cached failure should still be reported")
	}
	if got := client.probes.Load(); got != 1 {
		t.Errorf("probes = %d, want 1", got)
	}
}

func TestHealthCacheInvalidate(t *testing.T) {
	cache := NewHealthCache(time.Hour)
	client := &probeClient{provider: types.ProviderLocal}

	if err := cache.Check(context.Background(), client); err != nil {
		t.Fatal(err)
	}
	cache.Invalidate(types.ProviderLocal)
	if err := cache.Check(context.Background(), client); err != nil {
		t.Fatal(err)
	}
	if got := client.probes.Load(); got != 2 {
		t.Errorf("probes = %d, want 2 after Invalidate", got)
	}
}

func TestHealthCacheExpiry(t *testing.T) {
	cache := NewHealthCache(10 * time.Millisecond)
	client := &probeClient{provider: types.ProviderLocal}

	if err := cache.Check(context.Background(), client); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if err := cache.Check(context.Background(), client); err != nil {
		t.Fatal(err)
	}
	if got := client.probes.Load(); got != 2 {
		t.Errorf("probes = %d, want 2 after TTL expiry", got)
	}
}
