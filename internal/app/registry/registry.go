package registry

import (
	"reflect"
	"sort"

	"go.uber.org/multierr"

	"github.com/DJune12138/Collection3/internal/adapters/observability"
	"github.com/DJune12138/Collection3/internal/app/plugin"
	"github.com/DJune12138/Collection3/internal/domain"
	"github.com/DJune12138/Collection3/internal/ports"
)

// BusinessOptions are per-business switches read from configuration.
type BusinessOptions struct {
	AutoCollect bool `yaml:"auto_collect"`
}

// Set is the result of a Build: every map is keyed by business name and holds
// an entry for every registered business.
type Set struct {
	Builders              map[string]ports.Builder
	Pipelines             map[string]ports.Pipeline
	BuilderMiddlewares    map[string]ports.BuilderMiddleware
	DownloaderMiddlewares map[string]ports.DownloaderMiddleware
	Options               map[string]BusinessOptions
	// Skipped holds one classified error per business that was left out.
	Skipped []error
}

func newSet() *Set {
	return &Set{
		Builders:              make(map[string]ports.Builder),
		Pipelines:             make(map[string]ports.Pipeline),
		BuilderMiddlewares:    make(map[string]ports.BuilderMiddleware),
		DownloaderMiddlewares: make(map[string]ports.DownloaderMiddleware),
		Options:               make(map[string]BusinessOptions),
	}
}

func (s *Set) Len() int { return len(s.Builders) }

// Names lists registered businesses, sorted.
func (s *Set) Names() []string {
	out := make([]string, 0, len(s.Builders))
	for n := range s.Builders {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Err combines the skip errors, nil when every selected business registered.
func (s *Set) Err() error { return multierr.Combine(s.Skipped...) }

// Registry builds Sets from a Catalog.
type Registry struct {
	catalog *Catalog
	obs     ports.Observability
}

func New(catalog *Catalog, obs ports.Observability) *Registry {
	if obs == nil {
		obs = observability.Nop{}
	}
	return &Registry{catalog: catalog, obs: obs}
}

// Build instantiates every selected module. A module that cannot be resolved
// or constructed is logged and skipped; Build never fails as a whole.
func (r *Registry) Build(sel Selection, opts map[string]BusinessOptions) *Set {
	set := newSet()
	for _, ref := range sel.Refs(r.catalog) {
		name, err := r.register(set, ref)
		if err != nil {
			err = domain.WithBusiness(err, ref.String())
			set.Skipped = append(set.Skipped, err)
			r.obs.LogError("business_skipped", err,
				ports.Field{Key: "module", Value: ref.String()},
				ports.Field{Key: "kind", Value: domain.KindOf(err).String()},
			)
			continue
		}
		set.Options[name] = opts[name]
		r.obs.LogInfo("business_registered",
			ports.Field{Key: "module", Value: ref.String()},
			ports.Field{Key: "business", Value: name},
		)
	}
	return set
}

func (r *Registry) register(set *Set, ref Ref) (string, error) {
	const op = "register"
	d, ok := r.catalog.Lookup(ref.Category, ref.ID)
	if !ok {
		return "", domain.Errorf(domain.KindValidationFailure, op, "module %s not found", ref)
	}
	if d.Builder == nil {
		return "", domain.Errorf(domain.KindValidationFailure, op, "module %s has no builder", ref)
	}
	b, err := construct[ports.Builder](d.Builder)
	if err != nil {
		return "", err
	}
	if isNil(b) {
		return "", domain.Errorf(domain.KindTypeMismatch, op, "module %s built a nil builder", ref)
	}

	name, err := builderName(b)
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", domain.Errorf(domain.KindValidationFailure, op, "module %s builder has an empty name", ref)
	}
	if _, dup := set.Builders[name]; dup {
		return "", domain.Errorf(domain.KindValidationFailure, op, "business name %q already registered", name)
	}
	if v, ok := b.(ports.Validator); ok {
		if err := validate(v); err != nil {
			return "", err
		}
	}

	set.Builders[name] = b
	set.Pipelines[name] = optional[ports.Pipeline](r, name, "pipeline", d.Pipeline, plugin.DefaultPipeline)
	set.BuilderMiddlewares[name] = optional[ports.BuilderMiddleware](r, name, "builder_middleware", d.BuilderMiddleware, plugin.DefaultBuilderMiddleware)
	set.DownloaderMiddlewares[name] = optional[ports.DownloaderMiddleware](r, name, "downloader_middleware", d.DownloaderMiddleware, plugin.DefaultDownloaderMiddleware)
	return name, nil
}

// optional constructs an optional component, substituting def when the
// module has none or its factory misbehaves.
func optional[T any](r *Registry, business, component string, f func() (T, error), def T) T {
	if f == nil {
		return def
	}
	v, err := construct(f)
	if err == nil && isNil(v) {
		err = domain.Errorf(domain.KindTypeMismatch, "register", "%s factory returned nil", component)
	}
	if err != nil {
		r.obs.LogWarn("default_component_substituted",
			ports.Field{Key: "business", Value: business},
			ports.Field{Key: "component", Value: component},
			ports.Field{Key: "error", Value: err},
		)
		return def
	}
	return v
}

// construct runs a factory, turning a panic into an Unclassified error.
func construct[T any](f func() (T, error)) (v T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = domain.Errorf(domain.KindUnclassified, "register", "factory panic: %v", rec)
		}
	}()
	return f()
}

func builderName(b ports.Builder) (name string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = domain.Errorf(domain.KindUnclassified, "register", "Name panic: %v", rec)
		}
	}()
	return b.Name(), nil
}

func validate(v ports.Validator) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = domain.Errorf(domain.KindUnclassified, "validate", "panic: %v", rec)
		}
	}()
	if err := v.Validate(); err != nil {
		if !domain.IsClassified(err) {
			return domain.Wrap(err, domain.KindValidationFailure, "validate")
		}
		return err
	}
	return nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
