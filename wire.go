// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hybrid

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrWireClosed      = errors.New("wire: channel closed")
	ErrWireInvalidResp = errors.New("wire: invalid response")
)

// MessageType identifies wire frame types
type MessageType uint8

const (
	MsgTransact MessageType = 0x01
	MsgReply    MessageType = 0x02
	MsgError    MessageType = 0x03
)

const maxFrameSize = 64 * 1024 * 1024 // 64MB max

// WireConn is the client end of a framed transaction channel. Concurrent
// transactions are multiplexed over one TCP connection by request ID.
type WireConn struct {
	conn     net.Conn
	writeMu  sync.Mutex
	pending  sync.Map // requestID -> chan *wireReply
	nextID   atomic.Uint32
	closed   atomic.Bool
	readDone chan struct{}
}

type wireReply struct {
	data []byte
	err  error
}

// WireDial connects to a wire channel server.
func WireDial(ctx context.Context, addr string) (*WireConn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("wire dial: %w", err)
	}

	wc := &WireConn{
		conn:     conn,
		readDone: make(chan struct{}),
	}
	go wc.readLoop()
	return wc, nil
}

// Transact sends one transaction and blocks for its reply.
func (w *WireConn) Transact(ctx context.Context, code TransactionCode, payload []byte) ([]byte, error) {
	if w.closed.Load() {
		return nil, ErrWireClosed
	}

	requestID := w.nextID.Add(1)
	replyCh := make(chan *wireReply, 1)
	w.pending.Store(requestID, replyCh)
	defer w.pending.Delete(requestID)

	// Encode: [4 len][1 type][4 reqID][4 code][payload]
	msgLen := 1 + 4 + 4 + len(payload)

	buf := make([]byte, 4+msgLen)
	binary.BigEndian.PutUint32(buf[0:4], uint32(msgLen))
	buf[4] = byte(MsgTransact)
	binary.BigEndian.PutUint32(buf[5:9], requestID)
	binary.BigEndian.PutUint32(buf[9:13], uint32(code))
	copy(buf[13:], payload)

	w.writeMu.Lock()
	_, err := w.conn.Write(buf)
	w.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("wire write: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case reply := <-replyCh:
		if reply.err != nil {
			return nil, reply.err
		}
		return reply.data, nil
	case <-w.readDone:
		return nil, ErrWireClosed
	}
}

func (w *WireConn) readLoop() {
	defer close(w.readDone)

	header := make([]byte, 4)
	for {
		if _, err := io.ReadFull(w.conn, header); err != nil {
			return
		}

		msgLen := binary.BigEndian.Uint32(header)
		if msgLen == 0 || msgLen > maxFrameSize {
			return
		}

		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(w.conn, msg); err != nil {
			return
		}

		if len(msg) < 5 {
			continue
		}

		msgType := MessageType(msg[0])
		requestID := binary.BigEndian.Uint32(msg[1:5])
		payload := msg[5:]

		if ch, ok := w.pending.Load(requestID); ok {
			replyCh := ch.(chan *wireReply)
			switch msgType {
			case MsgReply:
				replyCh <- &wireReply{data: payload}
			case MsgError:
				replyCh <- &wireReply{err: errors.New(string(payload))}
			}
		}
	}
}

// Close closes the connection
func (w *WireConn) Close() error {
	if w.closed.Swap(true) {
		return nil
	}
	return w.conn.Close()
}

// WireServer accepts wire channels and dispatches each incoming
// transaction to a single TransactionHandler, typically a server-side
// wrapper around a HAL implementation.
type WireServer struct {
	listener net.Listener
	handler  TransactionHandler
	logger   *zap.Logger
	conns    sync.Map
	closed   atomic.Bool
}

// NewWireServer creates a server on listener backed by handler.
func NewWireServer(listener net.Listener, handler TransactionHandler, opts ...ServerOption) *WireServer {
	o := &serverOptions{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	return &WireServer{
		listener: listener,
		handler:  handler,
		logger:   o.logger,
	}
}

// Serve starts serving transactions. It blocks until the server closes.
func (s *WireServer) Serve(ctx context.Context) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.closed.Load() {
				return nil
			}
			s.logger.Warn("wire accept failed", zap.Error(err))
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *WireServer) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	s.conns.Store(conn, struct{}{})
	defer s.conns.Delete(conn)

	header := make([]byte, 4)
	for {
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}

		msgLen := binary.BigEndian.Uint32(header)
		if msgLen == 0 || msgLen > maxFrameSize {
			return
		}

		msg := make([]byte, msgLen)
		if _, err := io.ReadFull(conn, msg); err != nil {
			return
		}

		if len(msg) < 9 || MessageType(msg[0]) != MsgTransact {
			continue
		}

		requestID := binary.BigEndian.Uint32(msg[1:5])
		code := TransactionCode(binary.BigEndian.Uint32(msg[5:9]))
		payload := msg[9:]

		go func() {
			reply, err := s.handler.OnTransact(ctx, code, payload)
			s.sendReply(conn, requestID, reply, err)
		}()
	}
}

func (s *WireServer) sendReply(conn net.Conn, requestID uint32, data []byte, err error) {
	var msgType MessageType
	var payload []byte
	if err != nil {
		msgType = MsgError
		payload = []byte(err.Error())
	} else {
		msgType = MsgReply
		payload = data
	}

	msgLen := 1 + 4 + len(payload)
	buf := make([]byte, 4+msgLen)
	binary.BigEndian.PutUint32(buf[0:4], uint32(msgLen))
	buf[4] = byte(msgType)
	binary.BigEndian.PutUint32(buf[5:9], requestID)
	copy(buf[9:], payload)

	conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
	if _, werr := conn.Write(buf); werr != nil {
		s.logger.Warn("wire reply write failed", zap.Uint32("request_id", requestID), zap.Error(werr))
	}
}

// Close closes the server
func (s *WireServer) Close() error {
	s.closed.Store(true)
	s.conns.Range(func(key, _ interface{}) bool {
		key.(net.Conn).Close()
		return true
	})
	return s.listener.Close()
}

// Addr returns the listener address
func (s *WireServer) Addr() string {
	return s.listener.Addr().String()
}
