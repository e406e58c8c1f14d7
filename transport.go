// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hybrid

import (
	"context"
	"fmt"
	"sync"
)

// TransactionCode identifies a transaction on a channel. Codes for an
// interface's own methods are assigned by its generated stub; the token
// exchange uses one reserved code out of the same space.
type TransactionCode uint32

// FourCC packs a 4-character literal into a TransactionCode.
func FourCC(s string) TransactionCode {
	if len(s) != 4 {
		panic(fmt.Sprintf("hybrid: FourCC requires 4 bytes, got %q", s))
	}
	return TransactionCode(s[0])<<24 | TransactionCode(s[1])<<16 |
		TransactionCode(s[2])<<8 | TransactionCode(s[3])
}

// GetHalToken is the default reserved code for the token exchange
// ('_GTK'). Interface pairs whose own method codes collide with it can
// configure both wrappers with WithTransactionCode; the two ends must
// agree on the value.
var GetHalToken = FourCC("_GTK")

// Transactor is the client side of a transaction channel: a synchronous
// request/reply exchange identified by a transaction code. Transact
// blocks until the reply arrives, ctx is done, or the channel fails.
type Transactor interface {
	Transact(ctx context.Context, code TransactionCode, payload []byte) ([]byte, error)
	Close() error
}

// TransactionHandler is the receiving end of a channel (the stub side).
// The returned bytes become the reply frame; a returned error is carried
// back to the caller as a transaction failure.
type TransactionHandler interface {
	OnTransact(ctx context.Context, code TransactionCode, payload []byte) ([]byte, error)
}

// TransactionHandlerFunc is a function adapter for TransactionHandler.
type TransactionHandlerFunc func(ctx context.Context, code TransactionCode, payload []byte) ([]byte, error)

func (f TransactionHandlerFunc) OnTransact(ctx context.Context, code TransactionCode, payload []byte) ([]byte, error) {
	return f(ctx, code, payload)
}

// Transport types
const (
	TransportWire = "wire" // Framed TCP, default
	TransportJSON = "json" // JSON-RPC over HTTP
	TransportGRPC = "grpc" // Google RPC, requires build tag
)

// DefaultTransport is the default transport type.
const DefaultTransport = TransportWire

type dialFunc func(ctx context.Context, addr string, o *dialOptions) (Transactor, error)

var (
	transportsMu sync.RWMutex
	transports   = map[string]dialFunc{
		TransportWire: dialWire,
		TransportJSON: dialJSON,
	}
)

// registerTransport registers a new transport (used by build tags)
func registerTransport(name string, dial dialFunc) {
	transportsMu.Lock()
	defer transportsMu.Unlock()
	transports[name] = dial
}

// AvailableTransports returns list of available transport types
func AvailableTransports() []string {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	result := make([]string, 0, len(transports))
	for name := range transports {
		result = append(result, name)
	}
	return result
}

// HasTransport checks if a transport is available
func HasTransport(name string) bool {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	_, ok := transports[name]
	return ok
}
