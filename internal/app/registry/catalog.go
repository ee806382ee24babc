// Package registry turns a business selection into the four name-keyed maps
// the engine runs on: builders, pipelines and both middleware sides.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/DJune12138/Collection3/internal/domain"
	"github.com/DJune12138/Collection3/internal/ports"
)

// Factories construct one component of a business. They run once per Build.
type (
	BuilderFactory              func() (ports.Builder, error)
	PipelineFactory             func() (ports.Pipeline, error)
	BuilderMiddlewareFactory    func() (ports.BuilderMiddleware, error)
	DownloaderMiddlewareFactory func() (ports.DownloaderMiddleware, error)
)

// Descriptor describes one business module. Only Builder is required; the
// other factories fall back to the shared defaults.
type Descriptor struct {
	Builder              BuilderFactory
	Pipeline             PipelineFactory
	BuilderMiddleware    BuilderMiddlewareFactory
	DownloaderMiddleware DownloaderMiddlewareFactory
	Summary              string
}

// Catalog is the static index category -> module id -> Descriptor.
type Catalog struct {
	mu      sync.RWMutex
	modules map[string]map[string]Descriptor
}

func NewCatalog() *Catalog {
	return &Catalog{modules: make(map[string]map[string]Descriptor)}
}

// Register adds a module. Category and id may not contain the selection
// separators, and a module id is unique within its category.
func (c *Catalog) Register(category, id string, d Descriptor) error {
	const op = "catalog_register"
	category, id = strings.TrimSpace(category), strings.TrimSpace(id)
	if category == "" || id == "" {
		return domain.Missing(op, "category", "id")
	}
	if strings.ContainsAny(category+id, ",=*") {
		return domain.Errorf(domain.KindValidationFailure, op, "%s/%s contains a reserved character", category, id)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	mods, ok := c.modules[category]
	if !ok {
		mods = make(map[string]Descriptor)
		c.modules[category] = mods
	}
	if _, dup := mods[id]; dup {
		return domain.Errorf(domain.KindValidationFailure, op, "module %s/%s already registered", category, id)
	}
	mods[id] = d
	return nil
}

// MustRegister is Register for package init code.
func (c *Catalog) MustRegister(category, id string, d Descriptor) {
	if err := c.Register(category, id, d); err != nil {
		panic(err)
	}
}

func (c *Catalog) Lookup(category, id string) (Descriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.modules[category][id]
	return d, ok
}

// Categories lists categories, sorted.
func (c *Catalog) Categories() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.modules))
	for cat := range c.modules {
		out = append(out, cat)
	}
	sort.Strings(out)
	return out
}

// Modules lists the module ids of category, sorted.
func (c *Catalog) Modules(category string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.modules[category]))
	for id := range c.modules[category] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Ref names one selected module.
type Ref struct {
	Category string
	ID       string
}

func (r Ref) String() string { return r.Category + "/" + r.ID }

// Selection maps a category to "id1,id2" or "*".
type Selection map[string]string

// ParseSelection reads CLI-style "category=id1,id2" entries. Repeated
// categories are merged.
func ParseSelection(entries []string) (Selection, error) {
	sel := Selection{}
	for _, e := range entries {
		cat, ids, ok := strings.Cut(e, "=")
		cat, ids = strings.TrimSpace(cat), strings.TrimSpace(ids)
		if !ok || cat == "" || ids == "" {
			return nil, domain.Errorf(domain.KindValidationFailure, "selection", "%q is not category=ids", e)
		}
		if prev, seen := sel[cat]; seen {
			ids = prev + "," + ids
		}
		sel[cat] = ids
	}
	return sel, nil
}

// Refs expands the selection against c in a stable order: categories sorted,
// ids in the order written, "*" as every module of the category sorted.
// Repeated ids are collapsed.
func (s Selection) Refs(c *Catalog) []Ref {
	cats := make([]string, 0, len(s))
	for cat := range s {
		cats = append(cats, cat)
	}
	sort.Strings(cats)

	var refs []Ref
	seen := make(map[Ref]bool)
	for _, cat := range cats {
		for _, id := range strings.Split(s[cat], ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			ids := []string{id}
			if id == "*" {
				ids = c.Modules(cat)
			}
			for _, id := range ids {
				r := Ref{Category: cat, ID: id}
				if !seen[r] {
					seen[r] = true
					refs = append(refs, r)
				}
			}
		}
	}
	return refs
}

func (s Selection) String() string {
	parts := make([]string, 0, len(s))
	for cat, ids := range s {
		parts = append(parts, fmt.Sprintf("%s=%s", cat, ids))
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}
