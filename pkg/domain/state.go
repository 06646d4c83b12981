package domain

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// MergeStrategy decides how a new value for a key is combined with the old one.
type MergeStrategy int

const (
	// Replace overwrites the previous value.
	Replace MergeStrategy = iota
	// Append concatenates strings and appends slices.
	Append
)

func (m MergeStrategy) String() string {
	if m == Append {
		return "append"
	}
	return "replace"
}

// KeySpec declares a shared state key.
type KeySpec struct {
	Name     string
	Strategy MergeStrategy
	// Required keys must be present when read through Require.
	Required bool

	zero   func() any
	decode func(json.RawMessage) (any, error)
}

// Zero returns the documented default for the key.
func (k KeySpec) Zero() any {
	if k.zero == nil {
		return nil
	}
	return k.zero()
}

// Declare builds a KeySpec for values of type T.
func Declare[T any](name string, strategy MergeStrategy) KeySpec {
	return KeySpec{
		Name:     name,
		Strategy: strategy,
		zero: func() any {
			var v T
			return v
		},
		decode: func(raw json.RawMessage) (any, error) {
			var v T
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
			return v, nil
		},
	}
}

// Require marks the key as required.
func (k KeySpec) Require() KeySpec {
	k.Required = true
	return k
}

// Registry is the frozen set of declared keys.
// It is built once before the graph is compiled and never mutated afterwards.
type Registry struct {
	specs map[string]KeySpec
}

// NewRegistry validates and freezes the declared keys.
func NewRegistry(specs ...KeySpec) (*Registry, error) {
	r := &Registry{specs: make(map[string]KeySpec, len(specs))}
	for _, s := range specs {
		if s.Name == "" {
			return nil, fmt.Errorf("state key without a name")
		}
		if _, dup := r.specs[s.Name]; dup {
			return nil, fmt.Errorf("state key %q declared twice", s.Name)
		}
		if s.decode == nil {
			return nil, fmt.Errorf("state key %q must be declared with Declare", s.Name)
		}
		r.specs[s.Name] = s
	}
	return r, nil
}

// Spec returns the declaration of a key.
func (r *Registry) Spec(key string) (KeySpec, bool) {
	s, ok := r.specs[key]
	return s, ok
}

// Keys returns the declared key names in lexical order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.specs))
	for k := range r.specs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// NewState returns an empty state bound to the registry.
func (r *Registry) NewState() *State {
	return &State{reg: r, values: make(map[string]any)}
}

// Decode rebuilds a state from its JSON form, restoring concrete value types.
func (r *Registry) Decode(data []byte) (*State, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}
	st := r.NewState()
	for k, v := range raw {
		spec, ok := r.specs[k]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUndeclaredKey, k)
		}
		val, err := spec.decode(v)
		if err != nil {
			return nil, fmt.Errorf("failed to decode state key %q: %w", k, err)
		}
		st.values[k] = val
	}
	return st, nil
}

// Update is the delta a node returns. The driver commits it after the node finishes.
type Update map[string]any

// State is the shared key/value store threaded through the workflow.
// A State belongs to exactly one workflow instance.
type State struct {
	reg    *Registry
	values map[string]any
}

// Registry returns the registry the state is bound to.
func (s *State) Registry() *Registry {
	return s.reg
}

// Get returns the raw value of a key.
func (s *State) Get(key string) (any, bool) {
	v, ok := s.values[key]
	return v, ok
}

// GetOrDefault returns the value of key or def when it is absent.
func (s *State) GetOrDefault(key string, def any) any {
	if v, ok := s.values[key]; ok {
		return v
	}
	return def
}

// Has reports whether key holds a value.
func (s *State) Has(key string) bool {
	_, ok := s.values[key]
	return ok
}

// Set writes value under key, honouring the key's merge strategy.
// A nil value clears the key.
func (s *State) Set(key string, value any) error {
	spec, ok := s.reg.specs[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUndeclaredKey, key)
	}
	if value == nil {
		delete(s.values, key)
		return nil
	}
	if spec.Strategy == Replace {
		s.values[key] = value
		return nil
	}
	merged, err := appendValue(s.values[key], value)
	if err != nil {
		return fmt.Errorf("state key %q: %w", key, err)
	}
	s.values[key] = merged
	return nil
}

// Apply commits every entry of u. Keys are applied in lexical order so the
// outcome does not depend on map iteration.
func (s *State) Apply(u Update) error {
	keys := make([]string, 0, len(u))
	for k := range u {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := s.Set(k, u[k]); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a shallow copy. Values are shared, the map is not.
func (s *State) Clone() *State {
	out := &State{reg: s.reg, values: make(map[string]any, len(s.values))}
	for k, v := range s.values {
		out.values[k] = v
	}
	return out
}

// Snapshot returns a copy of the raw values, for diffs and inspection.
func (s *State) Snapshot() map[string]any {
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the state as a flat JSON object.
func (s *State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.values)
}

func appendValue(old, add any) (any, error) {
	if old == nil {
		return add, nil
	}
	if prev, ok := old.(string); ok {
		next, ok := add.(string)
		if !ok {
			return nil, fmt.Errorf("cannot append %T to string", add)
		}
		return prev + next, nil
	}
	ov := reflect.ValueOf(old)
	if ov.Kind() != reflect.Slice {
		return nil, fmt.Errorf("append strategy on non-slice value %T", old)
	}
	av := reflect.ValueOf(add)
	switch {
	case av.Kind() == reflect.Slice && av.Type().AssignableTo(ov.Type()):
		out := reflect.MakeSlice(ov.Type(), 0, ov.Len()+av.Len())
		out = reflect.AppendSlice(out, ov)
		return reflect.AppendSlice(out, av).Interface(), nil
	case av.Type().AssignableTo(ov.Type().Elem()):
		out := reflect.MakeSlice(ov.Type(), 0, ov.Len()+1)
		out = reflect.AppendSlice(out, ov)
		return reflect.Append(out, av).Interface(), nil
	}
	return nil, fmt.Errorf("cannot append %T to %T", add, old)
}

// Value returns the typed value of key.
func Value[T any](s *State, key string) (T, bool) {
	var zero T
	v, ok := s.values[key]
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// ValueOr returns the typed value of key or the key's declared default.
func ValueOr[T any](s *State, key string) T {
	if v, ok := Value[T](s, key); ok {
		return v
	}
	if spec, ok := s.reg.specs[key]; ok {
		if z, ok := spec.Zero().(T); ok {
			return z
		}
	}
	var zero T
	return zero
}

// Require returns the typed value of a required key or ErrMissingRequiredKey.
func Require[T any](s *State, key string) (T, error) {
	var zero T
	v, ok := s.values[key]
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrMissingRequiredKey, key)
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("state key %q holds %T", key, v)
	}
	return t, nil
}
