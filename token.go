// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hybrid

import (
	"errors"
	"math/rand/v2"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrNilInterface = errors.New("hybrid: nil HAL interface")
	ErrRegistryFull = errors.New("hybrid: token registry full")
)

// HalToken is an opaque 64-bit handle standing in for a live HAL
// interface reference. It has no internal structure meaningful to anyone
// but the registry that issued it, and is unique only while registered;
// token values may be reused after deletion.
type HalToken uint64

// TokenRegistry maps tokens to live HAL interface references. The
// registry's ownership is the only thing keeping a tokened reference
// reachable between Create and Retrieve/Delete, so callers that mint a
// token must arrange for its deletion; an undeleted token pins its
// reference for the registry's lifetime.
//
// All methods are safe for concurrent use.
type TokenRegistry struct {
	mu      sync.RWMutex
	entries map[HalToken]any
	next    uint64
	cap     int
	logger  *zap.Logger
}

// RegistryOption configures a TokenRegistry.
type RegistryOption func(*TokenRegistry)

// WithCapacity bounds the number of live entries. Zero or negative means
// unbounded (the default).
func WithCapacity(n int) RegistryOption {
	return func(r *TokenRegistry) { r.cap = n }
}

// WithRegistryLogger sets the registry's logger.
func WithRegistryLogger(l *zap.Logger) RegistryOption {
	return func(r *TokenRegistry) { r.logger = l }
}

// NewTokenRegistry creates an empty registry. Tests and embedders should
// prefer their own instance over the process-wide default.
func NewTokenRegistry(opts ...RegistryOption) *TokenRegistry {
	r := &TokenRegistry{
		entries: make(map[HalToken]any),
		next:    rand.Uint64(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create registers iface and returns a fresh token for it. iface must be
// non-nil. The only failure modes are a nil interface and storage
// exhaustion under a configured capacity; a stale or zero token is never
// returned silently.
func (r *TokenRegistry) Create(iface any) (HalToken, error) {
	if iface == nil {
		return 0, ErrNilInterface
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cap > 0 && len(r.entries) >= r.cap {
		r.logger.Error("token registry at capacity", zap.Int("capacity", r.cap))
		return 0, ErrRegistryFull
	}

	// Token 0 is reserved as the wire placeholder for failed creation.
	var token HalToken
	for {
		token = HalToken(r.next)
		r.next++
		if token == 0 {
			continue
		}
		if _, live := r.entries[token]; !live {
			break
		}
	}

	r.entries[token] = iface
	return token, nil
}

// Retrieve returns the reference registered under token, or nil if the
// token is unknown (deleted, expired, or never created). The entry is
// not removed.
func (r *TokenRegistry) Retrieve(token HalToken) any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[token]
}

// Delete removes the entry for token and reports whether one existed.
// Deleting an unknown token is not an error.
func (r *TokenRegistry) Delete(token HalToken) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[token]; !ok {
		return false
	}
	delete(r.entries, token)
	return true
}

// Len returns the number of live entries. Entries minted for clients
// that never complete the redemption round trip stay live until process
// teardown; Len makes such leaks observable.
func (r *TokenRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

var (
	defaultRegistryOnce sync.Once
	defaultRegistry     *TokenRegistry
)

// DefaultRegistry returns the process-wide registry used when a wrapper
// is constructed without WithRegistry.
func DefaultRegistry() *TokenRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewTokenRegistry()
	})
	return defaultRegistry
}

// CreateHalToken registers iface in the process-wide registry.
func CreateHalToken(iface any) (HalToken, error) {
	return DefaultRegistry().Create(iface)
}

// RetrieveHalInterface looks token up in the process-wide registry.
func RetrieveHalInterface(token HalToken) any {
	return DefaultRegistry().Retrieve(token)
}

// DeleteHalToken removes token from the process-wide registry.
func DeleteHalToken(token HalToken) bool {
	return DefaultRegistry().Delete(token)
}
