package templates

import (
	"errors"
	"fmt"
	"hash/fnv"
	"reflect"
	"sort"
	"strings"
	"sync"
	"text/template"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// maxCompiled bounds the compile memo. A full memo is dropped and refilled.
const maxCompiled = 1024

// Registry holds the helpers and partials available to template strings.
// Registrations are last-writer-wins. Each Engine owns its own Registry.
type Registry struct {
	mu         sync.RWMutex
	helpers    template.FuncMap
	partials   map[string]string
	generation uint64

	memoMu  sync.Mutex
	memoGen uint64
	memo    map[compileKey]*template.Template
}

type compileKey struct {
	name     string
	text     string
	partials uint64
}

// NewRegistry constructs a registry with the built-in helpers registered.
func NewRegistry() *Registry {
	reg := &Registry{
		helpers:  make(template.FuncMap),
		partials: make(map[string]string),
		memo:     make(map[compileKey]*template.Template),
	}
	reg.registerBuiltins()
	return reg
}

// RegisterHelper adds or replaces a helper. fn must be a function returning
// one value, or a value and an error.
func (r *Registry) RegisterHelper(name string, fn any) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("helper name is required")
	}
	if err := checkHelper(fn); err != nil {
		return fmt.Errorf("helper %q: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.helpers[name] = fn
	r.generation++
	return nil
}

// RegisterPartial adds or replaces a named fragment. The fragment must parse
// against the helpers registered so far.
func (r *Registry) RegisterPartial(name, text string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("partial name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := template.New(name).Funcs(r.helpers).Parse(text); err != nil {
		return fmt.Errorf("partial %q: %w", name, err)
	}
	r.partials[name] = text
	r.generation++
	return nil
}

// Generation increases with every registration. Compiled strings are reused
// only while it is unchanged.
func (r *Registry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// HelperNames returns registered helper names in sorted order.
func (r *Registry) HelperNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.helpers))
	for name := range r.helpers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PartialNames returns registered partial names in sorted order.
func (r *Registry) PartialNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.partials)
}

// Compile parses text with the registry's current helpers and partials bound,
// plus local partials which take precedence over registered ones. The result
// is unaffected by later registrations.
func (r *Registry) Compile(name, text string, local map[string]string) (*template.Template, error) {
	r.mu.RLock()
	generation := r.generation
	funcs := make(template.FuncMap, len(r.helpers))
	for key, fn := range r.helpers {
		funcs[key] = fn
	}
	partials := make(map[string]string, len(r.partials)+len(local))
	for key, value := range r.partials {
		partials[key] = value
	}
	r.mu.RUnlock()

	key := compileKey{name: name, text: text, partials: digest(local)}
	if tmpl := r.memoized(generation, key); tmpl != nil {
		return tmpl, nil
	}

	for key, value := range local {
		partials[key] = value
	}

	root := template.New(name).Funcs(funcs).Option("missingkey=zero")
	for _, partial := range sortedKeys(partials) {
		if partial == name {
			continue
		}
		if _, err := root.New(partial).Parse(partials[partial]); err != nil {
			return nil, fmt.Errorf("parse partial %q: %w", partial, err)
		}
	}
	if _, err := root.Parse(text); err != nil {
		return nil, err
	}

	r.memoize(generation, key, root)
	return root, nil
}

func (r *Registry) memoized(generation uint64, key compileKey) *template.Template {
	r.memoMu.Lock()
	defer r.memoMu.Unlock()
	if r.memoGen != generation {
		return nil
	}
	return r.memo[key]
}

func (r *Registry) memoize(generation uint64, key compileKey, tmpl *template.Template) {
	r.memoMu.Lock()
	defer r.memoMu.Unlock()
	if generation < r.memoGen {
		return
	}
	if generation > r.memoGen {
		r.memo = make(map[compileKey]*template.Template)
		r.memoGen = generation
	}
	if len(r.memo) >= maxCompiled {
		r.memo = make(map[compileKey]*template.Template)
	}
	r.memo[key] = tmpl
}

// ResetCompiled drops every memoized compilation.
func (r *Registry) ResetCompiled() {
	r.memoMu.Lock()
	defer r.memoMu.Unlock()
	r.memo = make(map[compileKey]*template.Template)
}

// digest identifies a set of local partials for memoization.
func digest(partials map[string]string) uint64 {
	h := fnv.New64a()
	for _, name := range sortedKeys(partials) {
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write([]byte(partials[name]))
		h.Write([]byte{0})
	}
	return h.Sum64()
}

func checkHelper(fn any) error {
	if fn == nil {
		return errors.New("helper function is required")
	}
	typ := reflect.TypeOf(fn)
	if typ.Kind() != reflect.Func {
		return fmt.Errorf("expected a function, got %s", typ)
	}
	switch typ.NumOut() {
	case 1:
		return nil
	case 2:
		if typ.Out(1) == errorType {
			return nil
		}
		return errors.New("second return value must be an error")
	default:
		return fmt.Errorf("helpers must return 1 or 2 values, got %d", typ.NumOut())
	}
}
