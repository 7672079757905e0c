package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps provider names to gateway factories
type Registry struct {
	factories map[string]GatewayFactory
	mu        sync.RWMutex
}

// NewRegistry creates an empty gateway registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]GatewayFactory),
	}
}

// Register adds a gateway factory to the registry
func (r *Registry) Register(name string, factory GatewayFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Build creates a gateway value for the named provider from tenant config
func (r *Registry) Build(name string, cfg GatewayConfig) (PaymentGateway, error) {
	r.mu.RLock()
	factory, exists := r.factories[name]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("payment provider '%s' is not registered", name)
	}

	return factory(cfg)
}

// Names returns all registered provider names in stable order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global default gateway registry
var DefaultRegistry = NewRegistry()

// Register registers a factory with the default registry
func Register(name string, factory GatewayFactory) {
	DefaultRegistry.Register(name, factory)
}

// Build creates a gateway from the default registry
func Build(name string, cfg GatewayConfig) (PaymentGateway, error) {
	return DefaultRegistry.Build(name, cfg)
}
