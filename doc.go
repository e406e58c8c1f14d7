// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package hybrid bridges HAL-style service interfaces onto the Lux RPC
// transaction transport.
//
// A HAL interface exposed through an RPC proxy normally pays for two
// layers of marshaling: once into the carrier transaction and once
// inside the HAL system itself. When the caller and the real
// implementation share a process tree, a direct HAL reference can be
// recovered instead: the server-side wrapper hands out an opaque 64-bit
// token for its wrapped reference, and the client-side wrapper redeems
// the token against the shared token registry. If any step fails the
// client silently falls back to full RPC forwarding, so the bridge never
// makes an interface unavailable — only slower.
//
// # Roles
//
// Suppose HCalc is a HAL interface and Calc is its RPC-facing twin.
//
// Server side, wrap the real implementation and serve it:
//
//	conv := hybrid.NewH2BConverter[HCalc](impl, calcStub)
//	srv, err := hybrid.Listen(":9000", conv)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	go srv.Serve(ctx)
//
// Client side, dial and resolve:
//
//	tr, err := hybrid.Dial(ctx, "localhost:9000")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	hp := hybrid.Resolve[Calc, HCalc](ctx, tr, proxy, wrapCalc)
//
//	if hal, ok := hp.HalInterface(); ok {
//	    // direct path: hal is the implementation itself
//	    _ = hal
//	}
//	target := hp.BaseInterface() // converter (direct) or proxy (fallback)
//
// The per-interface pieces — calcStub serving Calc's method codes,
// proxy speaking them over a Transactor, and wrapCalc adapting an HCalc
// back to a Calc — are ordinarily generated per interface pair and are
// not part of this package.
//
// # Token exchange
//
// The exchange rides one reserved transaction code, '_GTK' by default
// and configurable per pair via WithTransactionCode. The reply is one
// boolean (tokenCreated) followed by a big-endian uint64 token. Tokens
// are minted per request; the client deletes its token immediately after
// the redemption attempt. A client that crashes mid-protocol leaks the
// registry entry, and the reference it pins, until process teardown —
// an accepted limitation of the protocol, observable via
// TokenRegistry.Len.
//
// # Architecture
//
// The package separates concerns:
//
//   - token.go: TokenRegistry, the process-wide token ↔ reference table
//   - converter.go: H2BConverter, the server-side wrapper
//   - proxy.go: HpInterface and Resolve, the client-side wrapper
//   - transport.go: Transactor/TransactionHandler carrier abstractions
//   - wire.go: framed TCP transport implementation (default)
//   - json.go: JSON-RPC over HTTP transport
//   - dial_grpc.go: gRPC transport (requires -tags grpc)
//   - codec.go: payload codecs for generated stubs (JSON, CBOR, binary)
//
// Application code should only depend on the Transactor and
// TransactionHandler interfaces, making transport selection a
// deployment decision rather than a code change.
package hybrid
