package event

import "github.com/puzpuzpuz/xsync/v4"

// Registry holds properties attached to every captured event: regular
// registered ("super") properties and set-once properties that keep their
// first value. Reads happen on every capture from any goroutine, writes are
// rare, so it sits on a concurrent map instead of a mutex.
type Registry struct {
	props *xsync.Map[string, any]
	once  *xsync.Map[string, any]
}

func NewRegistry() *Registry {
	return &Registry{
		props: xsync.NewMap[string, any](),
		once:  xsync.NewMap[string, any](),
	}
}

// Register sets a property on every future event, overwriting any prior value.
func (r *Registry) Register(key string, value any) {
	r.props.Store(key, value)
}

// RegisterOnce sets a property only if it has not been set before.
// Returns false when an earlier value already existed.
func (r *Registry) RegisterOnce(key string, value any) bool {
	_, loaded := r.once.LoadOrStore(key, value)
	return !loaded
}

// Unregister removes a registered property.
func (r *Registry) Unregister(key string) {
	r.props.Delete(key)
}

// Apply merges the registered properties into props. Explicit event
// properties win over registered ones.
func (r *Registry) Apply(props Properties) {
	r.once.Range(func(k string, v any) bool {
		if _, ok := props[k]; !ok {
			props[k] = v
		}
		return true
	})
	r.props.Range(func(k string, v any) bool {
		if _, ok := props[k]; !ok {
			props[k] = v
		}
		return true
	})
}
