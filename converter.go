// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hybrid

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// ErrUnknownTransaction is returned by a stub that has no handler for a
// transaction code.
var ErrUnknownTransaction = errors.New("hybrid: unknown transaction code")

// WrapperOption configures either wrapper role. The server-side and
// client-side wrappers for one interface pair must agree on the
// transaction code and share a registry reachable from both (in
// practice, both live in the same process tree and use the process-wide
// default).
type WrapperOption func(*wrapperOptions)

type wrapperOptions struct {
	code       TransactionCode
	registry   *TokenRegistry
	logger     *zap.Logger
	descriptor string
}

func applyWrapperOptions(opts []WrapperOption) *wrapperOptions {
	o := &wrapperOptions{
		code:   GetHalToken,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = DefaultRegistry()
	}
	return o
}

// WithTransactionCode overrides the reserved token-exchange code. Use it
// when an interface's own method codes collide with the default '_GTK'.
func WithTransactionCode(code TransactionCode) WrapperOption {
	return func(o *wrapperOptions) { o.code = code }
}

// WithRegistry sets the token registry; defaults to DefaultRegistry.
func WithRegistry(r *TokenRegistry) WrapperOption {
	return func(o *wrapperOptions) { o.registry = r }
}

// WithWrapperLogger sets the wrapper's logger.
func WithWrapperLogger(l *zap.Logger) WrapperOption {
	return func(o *wrapperOptions) { o.logger = l }
}

// WithDescriptor sets the interface identity token the client wrapper
// writes with its token-exchange request.
func WithDescriptor(d string) WrapperOption {
	return func(o *wrapperOptions) { o.descriptor = d }
}

// H2BConverter is the server-side wrapper: it holds one HAL interface
// reference and installs in front of the interface's normal stub
// dispatch. The single behavior it adds is the reserved token-exchange
// transaction, which mints a registry token for the wrapped reference so
// a same-process-tree client can recover it directly. Everything else is
// delegated to next unchanged.
//
// Every token-exchange request mints a fresh registry entry, and that
// entry keeps the HAL reference alive until it is deleted. A client that
// never redeems or deletes its token leaks the entry for the registry's
// lifetime; well-behaved clients delete immediately after redemption.
type H2BConverter[H any] struct {
	base     H
	next     TransactionHandler
	code     TransactionCode
	registry *TokenRegistry
	logger   *zap.Logger
}

// NewH2BConverter wraps base. next is the stub serving the interface's
// own method codes; it may be nil for HAL-only channels, in which case
// non-reserved codes fail with ErrUnknownTransaction.
func NewH2BConverter[H any](base H, next TransactionHandler, opts ...WrapperOption) *H2BConverter[H] {
	o := applyWrapperOptions(opts)
	return &H2BConverter[H]{
		base:     base,
		next:     next,
		code:     o.code,
		registry: o.registry,
		logger:   o.logger,
	}
}

// HalInterface returns the wrapped HAL reference.
func (c *H2BConverter[H]) HalInterface() H { return c.base }

// OnTransact implements TransactionHandler. The reserved code is always
// answered with transport-level success; token-creation failure travels
// in the reply payload as tokenCreated=false, never as a transaction
// error.
func (c *H2BConverter[H]) OnTransact(ctx context.Context, code TransactionCode, payload []byte) ([]byte, error) {
	if code == c.code {
		token, err := c.registry.Create(c.base)
		if err != nil {
			c.logger.Error("failed to create HAL token", zap.Error(err))
			return appendTokenReply(false, 0), nil
		}
		return appendTokenReply(true, token), nil
	}
	if c.next == nil {
		return nil, ErrUnknownTransaction
	}
	return c.next.OnTransact(ctx, code, payload)
}
