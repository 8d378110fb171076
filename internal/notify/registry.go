package notify

// Registry holds sinks in registration order.
type Registry struct {
	order []string
	sinks map[string]Sink
}

func NewRegistry() *Registry {
	return &Registry{sinks: make(map[string]Sink)}
}

// Register adds s under its name, replacing any sink of the same name.
func (r *Registry) Register(s Sink) {
	if _, ok := r.sinks[s.Name()]; !ok {
		r.order = append(r.order, s.Name())
	}
	r.sinks[s.Name()] = s
}

func (r *Registry) Get(name string) (Sink, bool) {
	s, ok := r.sinks[name]
	return s, ok
}

// All returns the sinks in registration order.
func (r *Registry) All() []Sink {
	out := make([]Sink, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.sinks[name])
	}
	return out
}
