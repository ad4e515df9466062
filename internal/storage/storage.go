// Package storage provides the persistent key-value store that holds user
// options, and reports changes to subscribers the way a host storage area does.
package storage

import (
	"context"
	"sort"
)

// Change describes one key's transition. A nil Old means the key was added,
// a nil New means it was removed.
type Change struct {
	Old *string
	New *string
}

// Changes maps changed keys to their transitions.
type Changes map[string]Change

// Keys returns the changed keys in ascending order.
func (c Changes) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Listener receives change notifications. It is called synchronously after the
// write that produced the change has committed.
type Listener func(Changes)

// Store defines persistent key-value storage for options.
type Store interface {
	GetAll(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
	Subscribe(listener Listener)
	Close() error
}

// Diff computes the changes that turn before into after.
func Diff(before, after map[string]string) Changes {
	changes := make(Changes)
	for k, oldValue := range before {
		newValue, ok := after[k]
		if !ok {
			old := oldValue
			changes[k] = Change{Old: &old}
			continue
		}
		if newValue != oldValue {
			old, nv := oldValue, newValue
			changes[k] = Change{Old: &old, New: &nv}
		}
	}
	for k, newValue := range after {
		if _, ok := before[k]; !ok {
			nv := newValue
			changes[k] = Change{New: &nv}
		}
	}
	return changes
}
