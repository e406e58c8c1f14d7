// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hybrid

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestWireRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Echo handler
	server, err := Listen(":0", TransactionHandlerFunc(func(ctx context.Context, code TransactionCode, payload []byte) ([]byte, error) {
		return payload, nil
	}))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer server.Close()

	// Start server in background
	go server.Serve(ctx)

	// Give server time to start
	time.Sleep(10 * time.Millisecond)

	tr, err := Dial(ctx, server.Addr())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer tr.Close()

	payload := []byte("hello world")
	resp, err := tr.Transact(ctx, TransactionCode(7), payload)
	if err != nil {
		t.Fatalf("Transact: %v", err)
	}

	if string(resp) != string(payload) {
		t.Errorf("got %q, want %q", resp, payload)
	}
}

func TestWireCodeDispatch(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Handler replies with the code it saw
	server, err := Listen(":0", TransactionHandlerFunc(func(ctx context.Context, code TransactionCode, payload []byte) ([]byte, error) {
		return []byte{byte(code >> 24), byte(code >> 16), byte(code >> 8), byte(code)}, nil
	}))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer server.Close()

	go server.Serve(ctx)
	time.Sleep(10 * time.Millisecond)

	tr, err := Dial(ctx, server.Addr())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer tr.Close()

	resp, err := tr.Transact(ctx, GetHalToken, nil)
	if err != nil {
		t.Fatalf("Transact: %v", err)
	}
	if string(resp) != "_GTK" {
		t.Errorf("got %q, want %q", resp, "_GTK")
	}
}

func TestWireHandlerError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	server, err := Listen(":0", TransactionHandlerFunc(func(ctx context.Context, code TransactionCode, payload []byte) ([]byte, error) {
		return nil, errors.New("no such transaction")
	}))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer server.Close()

	go server.Serve(ctx)
	time.Sleep(10 * time.Millisecond)

	tr, err := Dial(ctx, server.Addr())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer tr.Close()

	_, err = tr.Transact(ctx, TransactionCode(9), nil)
	if err == nil {
		t.Fatal("Transact: expected error")
	}
	if !strings.Contains(err.Error(), "no such transaction") {
		t.Errorf("got %q, want handler error text", err)
	}
}

func TestWireTransactAfterClose(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	server, err := Listen(":0", TransactionHandlerFunc(func(ctx context.Context, code TransactionCode, payload []byte) ([]byte, error) {
		return payload, nil
	}))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer server.Close()

	go server.Serve(ctx)
	time.Sleep(10 * time.Millisecond)

	tr, err := Dial(ctx, server.Addr())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	tr.Close()

	if _, err := tr.Transact(ctx, TransactionCode(1), nil); !errors.Is(err, ErrWireClosed) {
		t.Errorf("got %v, want ErrWireClosed", err)
	}
}

func BenchmarkWireRoundTrip(b *testing.B) {
	ctx := context.Background()

	server, err := Listen(":0", TransactionHandlerFunc(func(ctx context.Context, code TransactionCode, payload []byte) ([]byte, error) {
		return payload, nil
	}))
	if err != nil {
		b.Fatalf("Listen: %v", err)
	}
	defer server.Close()

	go server.Serve(ctx)
	time.Sleep(10 * time.Millisecond)

	tr, err := Dial(ctx, server.Addr())
	if err != nil {
		b.Fatalf("Dial: %v", err)
	}
	defer tr.Close()

	payload := make([]byte, 1024)

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, err := tr.Transact(ctx, TransactionCode(1), payload)
		if err != nil {
			b.Fatal(err)
		}
	}
}
