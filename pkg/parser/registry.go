package parser

import (
	"fmt"
	"sort"
	"sync"

	"github.com/inlethq/inlet/pkg/errors"
)

// Registry manages parser registration and lookup
type Registry struct {
	parsers map[string]Parser
	infos   map[string]Info
	mu      sync.RWMutex
}

// Global registry instance
var globalRegistry = NewRegistry()

// NewRegistry creates a new parser registry
func NewRegistry() *Registry {
	return &Registry{
		parsers: make(map[string]Parser),
		infos:   make(map[string]Info),
	}
}

// Register registers a parser under its name
func (r *Registry) Register(p Parser) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.parsers[name]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("parser %s already registered", name))
	}

	r.parsers[name] = p
	return nil
}

// RegisterInfo records descriptive metadata for a parser
func (r *Registry) RegisterInfo(info Info) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infos[info.Name] = info
}

// Get returns the parser registered under name
func (r *Registry) Get(name string) (Parser, error) {
	r.mu.RLock()
	p, exists := r.parsers[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("parser %s not found", name))
	}
	return p, nil
}

// Has checks whether a parser is registered under name
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.parsers[name]
	return exists
}

// List returns the names of registered parsers, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.parsers))
	for name := range r.parsers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns metadata for a registered parser, when present
func (r *Registry) Describe(name string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.infos[name]
	return info, ok
}

// Register registers a parser in the global registry
func Register(p Parser) error {
	return globalRegistry.Register(p)
}

// RegisterInfo records parser metadata in the global registry
func RegisterInfo(info Info) {
	globalRegistry.RegisterInfo(info)
}

// Get returns a parser from the global registry
func Get(name string) (Parser, error) {
	return globalRegistry.Get(name)
}

// Has checks the global registry for a parser
func Has(name string) bool {
	return globalRegistry.Has(name)
}

// List returns registered parser names from the global registry
func List() []string {
	return globalRegistry.List()
}

// Describe returns parser metadata from the global registry
func Describe(name string) (Info, bool) {
	return globalRegistry.Describe(name)
}
