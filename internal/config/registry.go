package config

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/liamchens/quran-voice-buddy/internal/passage"
	"github.com/liamchens/quran-voice-buddy/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// PassageFactory opens a passage source. Sources holding connections also
// implement Close.
type PassageFactory func(ctx context.Context, src PassageSource) (passage.Provider, error)

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	stt      map[string]func(ProviderEntry) (stt.Provider, error)
	passages map[string]PassageFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:      make(map[string]func(ProviderEntry) (stt.Provider, error)),
		passages: make(map[string]PassageFactory),
	}
}

// RegisterSTT registers an STT provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterPassageSource registers a passage source factory under kind.
func (r *Registry) RegisterPassageSource(kind string, factory PassageFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.passages[kind] = factory
}

// CreateSTT instantiates an STT provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreatePassageSource opens the passage source registered under src.Source.
func (r *Registry) CreatePassageSource(ctx context.Context, src PassageSource) (passage.Provider, error) {
	r.mu.RLock()
	factory, ok := r.passages[src.Source]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: passages/%q", ErrProviderNotRegistered, src.Source)
	}
	return factory(ctx, src)
}

// Names returns the registered names of kind "stt" or "passages", sorted.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	switch kind {
	case "stt":
		for n := range r.stt {
			names = append(names, n)
		}
	case "passages":
		for n := range r.passages {
			names = append(names, n)
		}
	}
	slices.Sort(names)
	return names
}
