// Package pool owns provider clients: lazy construction, credential
// gating, and shutdown.
package pool

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	. "github.com/helmsman-ai/helmsman/internal/logging"
	"github.com/helmsman-ai/helmsman/internal/config"
	"github.com/helmsman-ai/helmsman/internal/llm"
	"github.com/helmsman-ai/helmsman/internal/types"
)

// Factory constructs a client for a provider. Overridable in tests.
type Factory func(types.Provider, llm.Options) (llm.Client, error)

// Pool lazily instantiates one client per provider and owns their
// lifecycle. Construction is single-flight per provider.
type Pool struct {
	opts    llm.Options
	factory Factory

	mu      sync.Mutex
	clients map[types.Provider]llm.Client
	closed  bool

	group    singleflight.Group
	snapshot atomic.Pointer[map[types.Provider]bool]
}

// New builds a pool. factory may be nil to use the real constructors.
func New(opts llm.Options, factory Factory) *Pool {
	if factory == nil {
		factory = llm.New
	}
	p := &Pool{
		opts:    opts,
		factory: factory,
		clients: make(map[types.Provider]llm.Client),
	}
	p.RefreshAvailability()
	return p
}

// RefreshAvailability recomputes the credential snapshot from the
// environment. Swapped atomically so readers never block.
func (p *Pool) RefreshAvailability() {
	snap := make(map[types.Provider]bool, len(types.AllProviders))
	for _, provider := range types.AllProviders {
		snap[provider] = config.CredentialsPresent(provider)
	}
	p.snapshot.Store(&snap)
}

// Available reports whether the provider's required credentials exist.
// Local always has credentials.
func (p *Pool) Available(provider types.Provider) bool {
	snap := p.snapshot.Load()
	if snap == nil {
		return false
	}
	return (*snap)[provider]
}

// Get returns the provider's client, constructing it on first use.
// Concurrent calls for the same provider share one construction; all of
// them receive the same instance.
func (p *Pool) Get(provider types.Provider) (llm.Client, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, llm.Ef(llm.KindProviderUnavailable, "pool is shut down")
	}
	if client, ok := p.clients[provider]; ok {
		p.mu.Unlock()
		return client, nil
	}
	p.mu.Unlock()

	if !p.Available(provider) {
		return nil, &llm.Error{
			Kind:        llm.KindProviderUnavailable,
			Provider:    provider,
			Err:         fmt.Errorf("missing credentials"),
			Remediation: remediation(provider),
		}
	}

	result, err, _ := p.group.Do(string(provider), func() (any, error) {
		// Re-check under the lock: a racing Shutdown must win.
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, llm.Ef(llm.KindProviderUnavailable, "pool is shut down")
		}
		if client, ok := p.clients[provider]; ok {
			p.mu.Unlock()
			return client, nil
		}
		p.mu.Unlock()

		client, err := p.factory(provider, p.opts)
		if err != nil {
			return nil, err
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed {
			client.Close()
			return nil, llm.Ef(llm.KindProviderUnavailable, "pool is shut down")
		}
		p.clients[provider] = client
		L_info("provider client created", "provider", provider)
		return client, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(llm.Client), nil
}

// Shutdown closes every client and refuses further Get calls. Idempotent.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	clients := make([]llm.Client, 0, len(p.clients))
	for _, c := range p.clients {
		clients = append(clients, c)
	}
	p.clients = make(map[types.Provider]llm.Client)
	p.mu.Unlock()

	for _, c := range clients {
		if err := c.Close(); err != nil {
			L_warn("client close failed", "provider", c.Provider(), "error", err)
		}
	}
	L_debug("pool shut down", "clients", len(clients))
}

func remediation(provider types.Provider) string {
	missing := config.MissingEnv(provider)
	if len(missing) == 0 {
		return ""
	}
	out := "set "
	for i, v := range missing {
		if i > 0 {
			out += ", "
		}
		out += v
	}
	return out
}
