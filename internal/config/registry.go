package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/tunetrace/pkg/audio"
	"github.com/MrWong99/tunetrace/pkg/provider/recognition"
)

// ErrProviderNotRegistered is returned by the Create* methods when no factory
// is registered under the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to constructors. It is safe for concurrent
// use.
type Registry struct {
	mu          sync.RWMutex
	decoder     map[string]func(ProviderEntry) (audio.Decoder, error)
	recognition map[string]func(ProviderEntry) (recognition.Provider, error)
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		decoder:     make(map[string]func(ProviderEntry) (audio.Decoder, error)),
		recognition: make(map[string]func(ProviderEntry) (recognition.Provider, error)),
	}
}

// RegisterDecoder registers an audio decoder factory under name. A later
// registration under the same name replaces the earlier one.
func (r *Registry) RegisterDecoder(name string, factory func(ProviderEntry) (audio.Decoder, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoder[name] = factory
}

// RegisterRecognition registers a recognition provider factory under name.
func (r *Registry) RegisterRecognition(name string, factory func(ProviderEntry) (recognition.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recognition[name] = factory
}

// CreateDecoder instantiates the decoder registered under entry.Name.
func (r *Registry) CreateDecoder(entry ProviderEntry) (audio.Decoder, error) {
	r.mu.RLock()
	factory, ok := r.decoder[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: decoder/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateRecognition instantiates the recognition provider registered under
// entry.Name.
func (r *Registry) CreateRecognition(entry ProviderEntry) (recognition.Provider, error) {
	r.mu.RLock()
	factory, ok := r.recognition[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: recognition/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// Names returns the registered names of each kind, sorted.
func (r *Registry) Names() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := map[string][]string{"decoder": nil, "recognition": nil}
	for name := range r.decoder {
		out["decoder"] = append(out["decoder"], name)
	}
	for name := range r.recognition {
		out["recognition"] = append(out["recognition"], name)
	}
	for _, names := range out {
		slices.Sort(names)
	}
	return out
}
