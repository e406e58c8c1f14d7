// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hybrid

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	rpc "github.com/gorilla/rpc/v2/json2"
	"go.uber.org/zap"
)

const (
	maxRetries    = 3
	retryBaseWait = 500 * time.Millisecond
)

// jsonTransactMethod is the JSON-RPC method all transactions ride on;
// the transaction code travels in the params, since JSON-RPC has no
// notion of binary method identifiers.
const jsonTransactMethod = "Hybrid.Transact"

type jsonTransactArgs struct {
	Code    uint32 `json:"code"`
	Payload []byte `json:"payload,omitempty"`
}

type jsonTransactReply struct {
	Payload []byte `json:"payload,omitempty"`
}

// newHTTPClient creates a fresh HTTP client with disabled connection reuse.
// This avoids EOF errors that can occur with connection pooling in complex
// process hierarchies.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DisableKeepAlives: true, // Disable connection reuse to avoid EOF issues
		},
	}
}

// CleanlyCloseBody drains and closes an HTTP response body to prevent
// HTTP/2 GOAWAY errors caused by closing bodies with unread data.
// See: https://github.com/golang/go/issues/46071
func CleanlyCloseBody(body io.ReadCloser) error {
	if body == nil {
		return nil
	}
	// Drain any remaining data to allow connection reuse
	_, _ = io.Copy(io.Discard, body)
	return body.Close()
}

// isRetryableError checks if an error is transient and worth retrying
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// EOF errors are often transient connection issues
	if errors.Is(err, io.EOF) || strings.Contains(errStr, "EOF") {
		return true
	}
	// Connection reset/refused are also transient
	if strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "broken pipe") {
		return true
	}
	return false
}

// jsonTransactor carries transactions over HTTP JSON-RPC. It is the slow
// path: every transaction is an independent POST with retry on transient
// transport errors.
type jsonTransactor struct {
	uri    *url.URL
	logger *zap.Logger
}

// dialJSON creates a JSON-RPC transactor. addr may be a bare host:port
// (POSTs go to /rpc) or a full http(s) URL.
func dialJSON(ctx context.Context, addr string, o *dialOptions) (Transactor, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr + "/rpc"
	}
	uri, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("json dial: %w", err)
	}
	return &jsonTransactor{uri: uri, logger: o.logger}, nil
}

func (j *jsonTransactor) Transact(ctx context.Context, code TransactionCode, payload []byte) ([]byte, error) {
	args := &jsonTransactArgs{Code: uint32(code), Payload: payload}
	requestBodyBytes, err := rpc.EncodeClientRequest(jsonTransactMethod, args)
	if err != nil {
		return nil, fmt.Errorf("failed to encode client params: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 500ms, 1s, 2s
			waitTime := retryBaseWait * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(waitTime):
			}
		}

		// Create fresh request for each attempt (body buffer is consumed)
		request, err := http.NewRequestWithContext(
			ctx,
			http.MethodPost,
			j.uri.String(),
			bytes.NewBuffer(requestBodyBytes),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		request.Header.Set("Content-Type", "application/json")

		// Use a fresh HTTP client to avoid connection pooling issues
		client := newHTTPClient()
		resp, err := client.Do(request)
		if err != nil {
			lastErr = err
			j.logger.Warn("json transact attempt failed",
				zap.Int("attempt", attempt+1),
				zap.Bool("retryable", isRetryableError(err)),
				zap.Error(err))
			if isRetryableError(err) {
				continue // Retry on transient errors
			}
			return nil, fmt.Errorf("failed to issue request: %w", err)
		}

		// Return an error for any non successful status code
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			CleanlyCloseBody(resp.Body)
			return nil, fmt.Errorf("received status code: %d", resp.StatusCode)
		}

		var reply jsonTransactReply
		if err := rpc.DecodeClientResponse(resp.Body, &reply); err != nil {
			CleanlyCloseBody(resp.Body)
			return nil, fmt.Errorf("failed to decode client response: %w", err)
		}
		CleanlyCloseBody(resp.Body)
		return reply.Payload, nil
	}

	return nil, fmt.Errorf("failed to issue request after %d retries: %w", maxRetries, lastErr)
}

func (j *jsonTransactor) Close() error { return nil }
