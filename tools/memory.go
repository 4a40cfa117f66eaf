package tools

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// MemoryRegistry keeps tools in process so they can be listed and called
// directly.
type MemoryRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

var _ Registry = (*MemoryRegistry)(nil)

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{tools: make(map[string]Tool)}
}

func (r *MemoryRegistry) Register(t Tool) error {
	if err := t.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name] = t
	return nil
}

func (r *MemoryRegistry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	delete(r.tools, name)
	return nil
}

// Get returns the named tool.
func (r *MemoryRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names in order.
func (r *MemoryRegistry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Call runs the named tool.
func (r *MemoryRegistry) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return t.Handler(ctx, args)
}
