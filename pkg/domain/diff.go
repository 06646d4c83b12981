package domain

import (
	"reflect"
	"sort"
)

// StateDiff lists the keys whose values differ between two snapshots.
// Removed keys are present with a nil value.
type StateDiff map[string]any

// Diff calculates the difference between oldState and newState.
// If oldState is nil, every key of newState is reported.
func Diff(oldState, newState *State) StateDiff {
	if newState == nil {
		return nil
	}
	delta := make(StateDiff)
	if oldState == nil {
		for k, v := range newState.values {
			delta[k] = v
		}
		return delta.nilIfEmpty()
	}

	for k, newVal := range newState.values {
		oldVal, exists := oldState.values[k]
		if !exists || !reflect.DeepEqual(oldVal, newVal) {
			delta[k] = newVal
		}
	}
	for k := range oldState.values {
		if _, exists := newState.values[k]; !exists {
			delta[k] = nil
		}
	}
	return delta.nilIfEmpty()
}

func (d StateDiff) nilIfEmpty() StateDiff {
	if len(d) == 0 {
		return nil
	}
	return d
}

// Keys returns the changed keys in lexical order.
func (d StateDiff) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsEmpty checks if the diff contains any change.
func (d StateDiff) IsEmpty() bool {
	return len(d) == 0
}
