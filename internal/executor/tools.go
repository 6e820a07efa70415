package executor

import (
	"crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/helmsman-ai/helmsman/internal/types"
)

// ToolRegistry holds the tool handlers supplied by the embedding
// application. Safe for concurrent use.
type ToolRegistry struct {
	mu       sync.RWMutex
	handlers map[string]types.ToolHandler
}

// NewToolRegistry builds an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{handlers: make(map[string]types.ToolHandler)}
}

// Register binds a handler to a tool name, replacing any previous binding.
func (r *ToolRegistry) Register(name string, handler types.ToolHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = handler
}

// Get looks up a handler by tool name.
func (r *ToolRegistry) Get(name string) (types.ToolHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// newToolCallID synthesizes a 96-bit identifier for providers that do not
// echo a call id.
func newToolCallID() string {
	var b [12]byte
	rand.Read(b[:])
	return "call_" + hex.EncodeToString(b[:])
}
