package method

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor creates a Method with default parameters.
type Constructor func() Method

// Registry maps method identifiers to constructors.
type Registry struct {
	mx    sync.RWMutex
	ctors map[string]Constructor
}

// Default holds the built-in methods.
var Default = NewRegistry()

func init() {
	Default.Register("cv", NewCyclicVoltammetry)
	Default.Register("cc", NewConstantCurrent)
	Default.Register("diagnostic", NewDiagnostic)
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register adds a method. It panics if id is empty or already registered.
func (r *Registry) Register(id string, ctor Constructor) {
	r.mx.Lock()
	defer r.mx.Unlock()
	if id == "" || ctor == nil {
		panic("method: invalid registration")
	}
	if _, ok := r.ctors[id]; ok {
		panic("method: duplicate registration of " + id)
	}
	r.ctors[id] = ctor
}

// IDs returns the registered identifiers in sorted order.
func (r *Registry) IDs() []string {
	r.mx.RLock()
	defer r.mx.RUnlock()
	ids := make([]string, 0, len(r.ctors))
	for id := range r.ctors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// New creates a fresh instance of the method registered as id.
func (r *Registry) New(id string) (Method, error) {
	r.mx.RLock()
	ctor, ok := r.ctors[id]
	r.mx.RUnlock()
	if !ok {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("unknown method %q", id)}
	}
	return ctor(), nil
}

// Build creates the method registered as id and binds values to it.
func (r *Registry) Build(id string, values map[string]any) (Method, error) {
	m, err := r.New(id)
	if err != nil {
		return nil, err
	}
	if err := m.SetParams(values); err != nil {
		return nil, err
	}
	return m, nil
}

// Info describes a method for listings.
type Info struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Mode       string        `json:"mode"`
	XLabel     string        `json:"x_label"`
	YLabel     string        `json:"y_label"`
	Parameters ParameterSpec `json:"parameters"`
}

// Describe lists every registered method.
func (r *Registry) Describe() []Info {
	ids := r.IDs()
	infos := make([]Info, 0, len(ids))
	for _, id := range ids {
		m, err := r.New(id)
		if err != nil {
			continue
		}
		infos = append(infos, Info{
			ID:         id,
			Name:       m.Name(),
			Mode:       m.Mode().String(),
			XLabel:     m.XLabel(),
			YLabel:     m.YLabel(),
			Parameters: m.Parameters(),
		})
	}
	return infos
}
