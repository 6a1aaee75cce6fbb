package withdrawal

import (
	"strings"
	"sync"
)

type claim struct {
	key        string
	superseded func()
}

// Registry keeps at most one open withdrawal per (vault, recipient) across transfers. A
// newer claim supersedes the older one, whose holder is told through its callback.
type Registry struct {
	mu   sync.Mutex
	open map[string]claim
}

func NewRegistry() *Registry {
	return &Registry{open: make(map[string]claim)}
}

func registryKey(vault, recipient string) string {
	return strings.ToLower(vault) + "/" + strings.ToLower(recipient)
}

// Open claims (vault, recipient) for the transfer key and returns the key it took the claim
// from, if any. onSuperseded runs, outside the registry lock, when a later Open by another
// key takes the claim away. Claiming twice with the same key keeps the first callback.
func (r *Registry) Open(vault, recipient, key string, onSuperseded func()) (string, bool) {
	r.mu.Lock()
	k := registryKey(vault, recipient)
	prev, held := r.open[k]
	if held && prev.key == key {
		r.mu.Unlock()
		return "", false
	}
	r.open[k] = claim{key: key, superseded: onSuperseded}
	r.mu.Unlock()

	if !held {
		return "", false
	}
	if prev.superseded != nil {
		prev.superseded()
	}
	return prev.key, true
}

// Close drops the claim if key holds it.
func (r *Registry) Close(vault, recipient, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := registryKey(vault, recipient)
	if r.open[k].key == key {
		delete(r.open, k)
	}
}

// Holder returns the transfer key holding (vault, recipient).
func (r *Registry) Holder(vault, recipient string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.open[registryKey(vault, recipient)]
	return c.key, ok
}
