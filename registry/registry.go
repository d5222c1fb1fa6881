// Package registry implements the package-manager collaborator: the
// shell's external-command lookup path queries it by name before
// giving up with "command not found".
package registry

import (
	"fmt"
	"strings"
	"sync"
)

// Module is a registered WASI binary: its bytes and the source URL it
// was installed from (recorded for audit, never re-fetched).
type Module struct {
	Name  string
	Bytes []byte
	URL   string
}

// ErrSizeCapExceeded is returned by Install when bytes exceeds the
// registry's per-module size cap.
type ErrSizeCapExceeded struct{ Limit int }

func (e *ErrSizeCapExceeded) Error() string {
	return fmt.Sprintf("module exceeds size cap of %d bytes", e.Limit)
}

// Registry is an in-memory map from tool name to installed module,
// guarded by a mutex since install/list can race with the shell's
// lookup path during pipeline execution.
type Registry struct {
	mu        sync.RWMutex
	modules   map[string]*Module
	sizeCap   int
	allowHost func(url string) bool
}

// New constructs an empty registry. allowHost may be nil to permit any
// source URL; sizeCap <= 0 means unlimited.
func New(sizeCap int, allowHost func(url string) bool) *Registry {
	return &Registry{modules: map[string]*Module{}, sizeCap: sizeCap, allowHost: allowHost}
}

// Install registers a module after a URL-host check and a size cap.
func (r *Registry) Install(name string, data []byte, url string) error {
	if r.allowHost != nil && !r.allowHost(url) {
		return fmt.Errorf("registry: source host not allowed: %s", url)
	}
	if r.sizeCap > 0 && len(data) > r.sizeCap {
		return &ErrSizeCapExceeded{Limit: r.sizeCap}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.modules[name] = &Module{Name: name, Bytes: data, URL: url}
	return nil
}

// Remove deregisters a module; it is not an error to remove an unknown name.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.modules, name)
}

// List returns registered module names in no particular order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.modules))
	for n := range r.modules {
		names = append(names, n)
	}
	return names
}

// Lookup returns the module registered under name, if any.
func (r *Registry) Lookup(name string) (*Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	return m, ok
}

// ParseSourceHost extracts the host portion of a module source URL for
// allowlist checks, tolerating URLs without a scheme.
func ParseSourceHost(rawURL string) string {
	u := strings.TrimPrefix(rawURL, "https://")
	u = strings.TrimPrefix(u, "http://")
	if i := strings.IndexAny(u, "/:"); i >= 0 {
		return u[:i]
	}
	return u
}
