// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hybrid

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"
)

// DialOption configures dialed channels
type DialOption func(*dialOptions)

type dialOptions struct {
	transport string // "wire", "json", "grpc"
	logger    *zap.Logger
}

// WithTransport explicitly sets the transport type
func WithTransport(t string) DialOption {
	return func(o *dialOptions) { o.transport = t }
}

// WithDialLogger sets the logger used by the dialed channel
func WithDialLogger(l *zap.Logger) DialOption {
	return func(o *dialOptions) { o.logger = l }
}

// ServerOption configures servers
type ServerOption func(*serverOptions)

type serverOptions struct {
	logger *zap.Logger
}

// WithServerLogger sets the server's logger
func WithServerLogger(l *zap.Logger) ServerOption {
	return func(o *serverOptions) { o.logger = l }
}

// Dial connects to a transaction channel server using the default
// transport (wire). Use WithTransport for transport selection.
func Dial(ctx context.Context, addr string, opts ...DialOption) (Transactor, error) {
	o := &dialOptions{
		transport: DefaultTransport,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}

	transportsMu.RLock()
	dial, ok := transports[o.transport]
	transportsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown transport: %s", o.transport)
	}
	return dial(ctx, addr, o)
}

// Listen creates a wire channel server on addr backed by handler.
func Listen(addr string, handler TransactionHandler, opts ...ServerOption) (*WireServer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewWireServer(listener, handler, opts...), nil
}

// dialWire creates a wire transactor
func dialWire(ctx context.Context, addr string, o *dialOptions) (Transactor, error) {
	return WireDial(ctx, addr)
}
