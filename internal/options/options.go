// Package options provides lazy, cached access to the user's options and
// invalidates dependent caches when the underlying storage changes.
package options

import (
	"context"
	"sync"

	"pinmark/internal/storage"
	"pinmark/internal/utils"
)

// Recognized option keys.
const (
	KeyAPIToken         = "api_token"
	KeyAuthTokenValid   = "auth_token_valid"
	KeyPrivateDefault   = "private_default"
	KeyReadLaterDefault = "read_later_default"
	KeyTagSuggestions   = "tag_suggestions"
)

// Options holds the user's configuration as seen by the core.
type Options struct {
	APIToken         string `json:"api_token"`
	AuthTokenValid   bool   `json:"auth_token_valid"`
	PrivateDefault   bool   `json:"private_default"`
	ReadLaterDefault bool   `json:"read_later_default"`
	TagSuggestions   bool   `json:"tag_suggestions"`
}

// Defaults returns the options used for keys absent from storage.
func Defaults() Options {
	return Options{
		TagSuggestions: true,
	}
}

// HasToken reports whether an API token is configured.
func (o Options) HasToken() bool {
	return o.APIToken != ""
}

// TokenUsable reports whether remote calls should be made with the token.
func (o Options) TokenUsable() bool {
	return o.HasToken() && o.AuthTokenValid
}

// Keys returns the recognized option keys.
func Keys() []string {
	return []string{KeyAPIToken, KeyAuthTokenValid, KeyPrivateDefault, KeyReadLaterDefault, KeyTagSuggestions}
}

// IsRecognized reports whether key is one of the recognized option keys.
func IsRecognized(key string) bool {
	for _, k := range Keys() {
		if k == key {
			return true
		}
	}
	return false
}

// apply overwrites one recognized key from its stored string form. A nil value
// restores the default. Returns false for unrecognized keys.
func (o *Options) apply(key string, value *string) bool {
	defaults := Defaults()
	boolValue := func(fallback bool) bool {
		if value == nil {
			return fallback
		}
		b, ok := utils.ParseBool(*value)
		if !ok {
			return fallback
		}
		return b
	}

	switch key {
	case KeyAPIToken:
		if value == nil {
			o.APIToken = defaults.APIToken
		} else {
			o.APIToken = *value
		}
	case KeyAuthTokenValid:
		o.AuthTokenValid = boolValue(defaults.AuthTokenValid)
	case KeyPrivateDefault:
		o.PrivateDefault = boolValue(defaults.PrivateDefault)
	case KeyReadLaterDefault:
		o.ReadLaterDefault = boolValue(defaults.ReadLaterDefault)
	case KeyTagSuggestions:
		o.TagSuggestions = boolValue(defaults.TagSuggestions)
	default:
		return false
	}
	return true
}

// FromValues builds Options from stored values merged with defaults.
func FromValues(values map[string]string) Options {
	o := Defaults()
	for k, v := range values {
		v := v
		o.apply(k, &v)
	}
	return o
}

// ValidateValue checks that value is acceptable for key.
func ValidateValue(key, value string) error {
	if !IsRecognized(key) {
		return utils.ErrUnknownOption(key, Keys())
	}
	if key == KeyAPIToken {
		return nil
	}
	if _, ok := utils.ParseBool(value); !ok {
		return utils.ErrInvalidOptionValue(key, value)
	}
	return nil
}

// InvalidationHook is called after a recognized option changed.
type InvalidationHook func()

// Accessor lazily loads and caches Options from a storage.Store.
type Accessor struct {
	store storage.Store

	mu     sync.Mutex
	cached *Options
	hooks  []InvalidationHook
	// generation moves on every recognized change and on Invalidate. A load
	// that started in an older generation is returned but not cached.
	generation uint64
}

// NewAccessor creates an accessor over store. It does not subscribe to the
// store; call Watch or route notifications to HandleStorageChange.
func NewAccessor(store storage.Store) *Accessor {
	return &Accessor{store: store}
}

// Watch subscribes the accessor to the store's change notifications.
func (a *Accessor) Watch() {
	a.store.Subscribe(a.HandleStorageChange)
}

// OnInvalidate registers a hook run whenever a recognized option changes.
func (a *Accessor) OnInvalidate(hook InvalidationHook) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hooks = append(a.hooks, hook)
}

// Get returns the cached options, loading them on first use. A storage read
// failure is logged and yields defaults without caching them, so the next
// call retries.
func (a *Accessor) Get(ctx context.Context) Options {
	a.mu.Lock()
	if a.cached != nil {
		o := *a.cached
		a.mu.Unlock()
		return o
	}
	gen := a.generation
	a.mu.Unlock()

	values, err := a.store.GetAll(ctx)
	if err != nil {
		utils.Warnf("failed to load options, using defaults: %v", err)
		return Defaults()
	}
	loaded := FromValues(values)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.generation != gen {
		utils.Debugf("options changed during load, not caching the snapshot")
		return loaded
	}
	// A concurrent load may have won; keep whichever landed first.
	if a.cached == nil {
		a.cached = &loaded
	}
	return *a.cached
}

// Invalidate drops the cached options so the next Get reloads them.
func (a *Accessor) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cached = nil
	a.generation++
}

// HandleStorageChange applies a storage-changed notification. Recognized keys
// are overwritten in the cached options (if loaded); when at least one
// recognized key changed, the invalidation hooks run.
func (a *Accessor) HandleStorageChange(changes storage.Changes) {
	a.mu.Lock()
	recognized := 0
	for _, key := range changes.Keys() {
		if !IsRecognized(key) {
			continue
		}
		recognized++
		if a.cached != nil {
			a.cached.apply(key, changes[key].New)
		}
	}
	if recognized > 0 {
		a.generation++
	}
	hooks := append([]InvalidationHook(nil), a.hooks...)
	a.mu.Unlock()

	if recognized == 0 {
		utils.Debugf("ignoring storage change of unrecognized keys %v", changes.Keys())
		return
	}

	utils.Debugf("options changed (%d recognized keys), invalidating caches", recognized)
	for _, hook := range hooks {
		hook()
	}
}

// Set validates and persists option values.
func (a *Accessor) Set(ctx context.Context, values map[string]string) error {
	for k, v := range values {
		if err := ValidateValue(k, v); err != nil {
			return err
		}
	}
	return a.store.Set(ctx, values)
}
