package source

import (
	"sort"
	"time"

	"jobradar/internal/config"

	"github.com/cockroachdb/errors"
)

// Registry holds one Adapter per configured source.
type Registry struct {
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: map[string]Adapter{}}
}

// BuildRegistry creates an adapter for every enabled source.
func BuildRegistry(sources []config.SourceConfig, timeout time.Duration) (*Registry, error) {
	r := NewRegistry()
	client := newHTTPClient(timeout)
	for _, s := range sources {
		if s.Disabled {
			continue
		}
		switch s.Kind {
		case config.SourceKindAPI:
			r.Register(NewAPIAdapter(s, client))
		case config.SourceKindHTML:
			r.Register(NewHTMLAdapter(s, timeout))
		case config.SourceKindHeadless:
			r.Register(NewHeadlessAdapter(s, timeout))
		default:
			return nil, errors.Newf("source %q: unknown kind %q", s.Name, s.Kind)
		}
	}
	return r, nil
}

func (r *Registry) Register(a Adapter) {
	r.adapters[a.Name()] = a
}

func (r *Registry) Get(name string) (Adapter, bool) {
	a, ok := r.adapters[name]
	return a, ok
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
