package source

import "github.com/rotisserie/eris"

// Registry maps source keys to their modules. It is constructed explicitly
// and passed to whatever needs it.
type Registry struct {
	modules map[string]Module
	order   []string // insertion order for deterministic iteration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		modules: make(map[string]Module),
	}
}

// Register validates a module against the contract and adds it.
func (r *Registry) Register(m Module) error {
	if err := ValidateModule(m); err != nil {
		return err
	}
	key := m.Key()
	if _, dup := r.modules[key]; dup {
		return eris.Errorf("source: duplicate module %q", key)
	}
	r.modules[key] = m
	r.order = append(r.order, key)
	return nil
}

// Get returns a module by key.
func (r *Registry) Get(key string) (Module, error) {
	m, ok := r.modules[key]
	if !ok {
		return nil, eris.Errorf("source: unknown module %q", key)
	}
	return m, nil
}

// Select returns the named modules, or all of them when keys is empty.
func (r *Registry) Select(keys []string) ([]Module, error) {
	if len(keys) == 0 {
		return r.All(), nil
	}
	out := make([]Module, 0, len(keys))
	for _, k := range keys {
		m, err := r.Get(k)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// All returns all modules in registration order.
func (r *Registry) All() []Module {
	out := make([]Module, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.modules[k])
	}
	return out
}

// Keys returns all registered keys in registration order.
func (r *Registry) Keys() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered modules.
func (r *Registry) Len() int { return len(r.order) }
