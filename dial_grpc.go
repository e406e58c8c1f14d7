//go:build grpc

// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hybrid

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func init() {
	// Register gRPC transport when build tag is enabled
	registerTransport(TransportGRPC, dialGRPC)
}

func dialGRPC(ctx context.Context, addr string, o *dialOptions) (Transactor, error) {
	conn, err := grpc.DialContext(ctx, addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("grpc dial: %w", err)
	}
	return &grpcTransactor{conn: conn}, nil
}

// grpcTransactor carries transactions as unary calls on a fixed service;
// the transaction code becomes the method name, since gRPC has no binary
// method identifiers.
type grpcTransactor struct {
	conn *grpc.ClientConn
}

func (g *grpcTransactor) Transact(ctx context.Context, code TransactionCode, payload []byte) ([]byte, error) {
	method := fmt.Sprintf("/hybrid.Channel/T%08X", uint32(code))
	var resp []byte
	err := g.conn.Invoke(ctx, method, payload, &resp, grpc.ForceCodec(rawCodec{}))
	return resp, err
}

func (g *grpcTransactor) Close() error {
	return g.conn.Close()
}

// rawCodec passes request/reply bytes through unchanged.
type rawCodec struct{}

func (rawCodec) Marshal(v interface{}) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("rawCodec: expected []byte, got %T", v)
	}
	return b, nil
}

func (rawCodec) Unmarshal(data []byte, v interface{}) error {
	b, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("rawCodec: expected *[]byte, got %T", v)
	}
	*b = data
	return nil
}

func (rawCodec) Name() string { return "hybrid-raw" }
