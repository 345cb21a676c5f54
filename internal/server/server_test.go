package server

import (
	"context"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/klingon-exchange/klingon-v2/internal/auth"
	"github.com/klingon-exchange/klingon-v2/internal/dispatch"
	"github.com/klingon-exchange/klingon-v2/internal/hooks"
	"github.com/klingon-exchange/klingon-v2/internal/market"
	"github.com/klingon-exchange/klingon-v2/internal/protocol"
	"github.com/klingon-exchange/klingon-v2/internal/session"
	"github.com/klingon-exchange/klingon-v2/internal/store"
	"github.com/klingon-exchange/klingon-v2/internal/trade"
	"github.com/klingon-exchange/klingon-v2/internal/unbox"
	"github.com/klingon-exchange/klingon-v2/internal/workerpool"
)

func newTestServer(t *testing.T) (addr string, shutdown func()) {
	t.Helper()
	dir, err := os.MkdirTemp("", "klingoserver-server-*")
	if err != nil {
		t.Fatalf("MkdirTemp() error = %v", err)
	}

	s, err := store.New(&store.Config{DataDir: dir})
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}

	h := hooks.New(s)
	sessions := session.New(s)
	authSvc := auth.New(s, sessions, auth.LegacyHasher{}, h)
	marketEngine := market.New(s, h)
	tradeEngine := trade.New(s, h)
	unboxEngine := unbox.New(s, h)
	d := dispatch.New(s, authSvc, marketEngine, tradeEngine, unboxEngine, h)

	pool := workerpool.New(workerpool.Config{Workers: 2, QueueCapacity: 16})
	srv := New(Config{ListenAddr: "127.0.0.1:0", MaxConns: 10}, d, pool)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	srv.listener = ln
	addr = ln.Addr().String()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			srv.connWG.Add(1)
			go func() {
				defer srv.connWG.Done()
				srv.handleConn(ctx, conn)
			}()
		}
	}()

	shutdown = func() {
		cancel()
		ln.Close()
		_ = pool.Shutdown(context.Background())
		s.Close()
		os.RemoveAll(dir)
	}
	return addr, shutdown
}

func TestRegisterRoundTrip(t *testing.T) {
	addr, shutdown := newTestServer(t)
	defer shutdown()

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if err := protocol.WriteFrame(conn, protocol.MsgRegister, 1, []byte("alice:hunter12")); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	frame, err := protocol.ReadFrame(conn)
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if frame.Header.MsgType != protocol.MsgRegisterOK {
		t.Errorf("expected MsgRegisterOK, got %#x", frame.Header.MsgType)
	}
	if frame.Header.SequenceNum != 1 {
		t.Errorf("expected echoed sequence number 1, got %d", frame.Header.SequenceNum)
	}
}

func TestUnknownMessageTypeReturnsInvalidRequest(t *testing.T) {
	addr, shutdown := newTestServer(t)
	defer shutdown()

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if err := protocol.WriteFrame(conn, 0x7777, 5, nil); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	frame, err := protocol.ReadFrame(conn)
	if err != nil {
		t.Fatalf("ReadFrame() error = %v", err)
	}
	if frame.Header.MsgType != protocol.MsgError {
		t.Errorf("expected MsgError, got %#x", frame.Header.MsgType)
	}
	// "originating_msg_type:error_code": 0x7777 = 30583, INVALID_REQUEST = 12.
	if string(frame.Payload) != "30583:12" {
		t.Errorf("expected INVALID_REQUEST payload %q, got %q", "30583:12", frame.Payload)
	}
}

func TestLoginThenHeartbeat(t *testing.T) {
	addr, shutdown := newTestServer(t)
	defer shutdown()

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if err := protocol.WriteFrame(conn, protocol.MsgRegister, 1, []byte("bob:hunter12")); err != nil {
		t.Fatalf("WriteFrame(register) error = %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, err := protocol.ReadFrame(conn); err != nil {
		t.Fatalf("ReadFrame(register) error = %v", err)
	}

	if err := protocol.WriteFrame(conn, protocol.MsgLogin, 2, []byte("bob:hunter12")); err != nil {
		t.Fatalf("WriteFrame(login) error = %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	loginFrame, err := protocol.ReadFrame(conn)
	if err != nil {
		t.Fatalf("ReadFrame(login) error = %v", err)
	}
	if loginFrame.Header.MsgType != protocol.MsgLoginOK {
		t.Fatalf("expected MsgLoginOK, got %#x", loginFrame.Header.MsgType)
	}

	token := strings.SplitN(string(loginFrame.Payload), ":", 2)[0]
	if err := protocol.WriteFrame(conn, protocol.MsgHeartbeat, 3, []byte(token)); err != nil {
		t.Fatalf("WriteFrame(heartbeat) error = %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	hbFrame, err := protocol.ReadFrame(conn)
	if err != nil {
		t.Fatalf("ReadFrame(heartbeat) error = %v", err)
	}
	if hbFrame.Header.MsgType != protocol.MsgHeartbeat {
		t.Errorf("expected MsgHeartbeat echoed back, got %#x", hbFrame.Header.MsgType)
	}
}
