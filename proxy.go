// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hybrid

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// HpInterface is the client-side wrapper. Resolution happens exactly
// once, inside Resolve; afterwards the wrapper is in one of two terminal
// states: Direct, where BaseInterface is a locally-built converter
// around the recovered HAL reference, or Fallback, where BaseInterface
// is the original RPC proxy and every call goes over the transport.
// A Fallback is never re-resolved, even when caused by a transient
// transport error.
type HpInterface[I any, H any] struct {
	proxy  I
	base   I
	hal    H
	direct bool
}

// Resolve performs the token exchange over tr and builds the wrapper for
// proxy. wrap is the per-interface conversion layer that adapts a direct
// HAL reference back to the RPC interface type; it is only invoked on a
// successful redemption.
//
// Resolve blocks for one transport round trip. It never fails: every
// error on the way to the direct path degrades to forwarding through
// proxy. The minted token is deleted immediately after the redemption
// attempt, success or not, so a registry entry lives only from mint to
// first redemption.
func Resolve[I any, H any](ctx context.Context, tr Transactor, proxy I, wrap func(H) I, opts ...WrapperOption) *HpInterface[I, H] {
	o := applyWrapperOptions(opts)
	hp := &HpInterface[I, H]{proxy: proxy, base: proxy}

	reply, err := tr.Transact(ctx, o.code, []byte(o.descriptor))
	if err != nil {
		o.logger.Warn("token exchange failed, forwarding through proxy", zap.Error(err))
		return hp
	}

	created, token, err := parseTokenReply(reply)
	if err != nil {
		o.logger.Warn("malformed token reply, forwarding through proxy", zap.Error(err))
		return hp
	}
	if !created {
		o.logger.Warn("sender failed to create HAL token")
		return hp
	}

	iface := o.registry.Retrieve(token)
	o.registry.Delete(token)
	if iface == nil {
		o.logger.Warn("cannot retrieve HAL interface from token",
			zap.Uint64("token", uint64(token)))
		return hp
	}

	hal, ok := iface.(H)
	if !ok {
		o.logger.Warn("token resolved to unexpected type",
			zap.String("type", fmt.Sprintf("%T", iface)))
		return hp
	}
	if wrap == nil {
		o.logger.Warn("no conversion layer supplied, forwarding through proxy")
		return hp
	}

	hp.hal = hal
	hp.base = wrap(hal)
	hp.direct = true
	return hp
}

// HalInterface returns the recovered direct HAL reference. ok is false
// in the Fallback state.
func (hp *HpInterface[I, H]) HalInterface() (hal H, ok bool) {
	return hp.hal, hp.direct
}

// BaseInterface returns the forwarding target all interface methods
// should delegate to: the local converter when Direct, the RPC proxy
// when Fallback. It is never nil-valued for a wrapper built by Resolve.
func (hp *HpInterface[I, H]) BaseInterface() I { return hp.base }

// Direct reports whether the direct path was resolved.
func (hp *HpInterface[I, H]) Direct() bool { return hp.direct }
