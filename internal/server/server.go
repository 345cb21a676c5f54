// Package server runs the trading protocol's TCP accept loop: one
// goroutine reads frames off each connection and submits their
// dispatch as a job to the worker pool, so a slow or malicious client
// can't starve other connections of CPU.
package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klingon-exchange/klingon-v2/internal/dispatch"
	"github.com/klingon-exchange/klingon-v2/internal/protocol"
	"github.com/klingon-exchange/klingon-v2/internal/workerpool"
	"github.com/klingon-exchange/klingon-v2/pkg/logging"
)

// ReadTimeout bounds how long a connection may sit idle without sending
// a full frame before it's dropped.
const ReadTimeout = 5 * time.Minute

// Server accepts trading protocol connections and dispatches their
// requests through a worker pool.
type Server struct {
	listenAddr string
	dispatcher *dispatch.Dispatcher
	pool       *workerpool.Pool
	maxConns   int
	log        *logging.Logger

	listener net.Listener
	connWG   sync.WaitGroup
	connN    int64
}

// Config controls the server's listen address and connection cap.
type Config struct {
	ListenAddr string
	MaxConns   int
}

// New returns a Server. dispatcher routes decoded requests; pool bounds
// the concurrency of in-flight dispatches.
func New(cfg Config, d *dispatch.Dispatcher, pool *workerpool.Pool) *Server {
	return &Server{
		listenAddr: cfg.ListenAddr,
		dispatcher: d,
		pool:       pool,
		maxConns:   cfg.MaxConns,
		log:        logging.GetDefault().Component("server"),
	}
}

// Serve opens the listener and accepts connections until ctx is
// cancelled or an unrecoverable accept error occurs.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.log.Info("listening", "addr", ln.Addr().String())

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			return err
		}

		if s.maxConns > 0 && atomic.LoadInt64(&s.connN) >= int64(s.maxConns) {
			s.log.Warn("connection limit reached, rejecting", "addr", conn.RemoteAddr())
			writeServerFull(conn)
			conn.Close()
			continue
		}

		atomic.AddInt64(&s.connN, 1)
		s.connWG.Add(1)
		go func() {
			defer s.connWG.Done()
			defer atomic.AddInt64(&s.connN, -1)
			s.handleConn(ctx, conn)
		}()
	}
}

// Shutdown stops accepting new connections and waits (up to the
// context deadline) for in-flight connections to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener != nil {
		s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.connWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func writeServerFull(conn net.Conn) {
	payload := []byte("0:9") // originating type unknown, ErrServerFull
	_ = protocol.WriteFrame(conn, protocol.MsgError, 0, payload)
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	addr := conn.RemoteAddr()
	s.log.Debug("connection opened", "addr", addr)
	defer s.log.Debug("connection closed", "addr", addr)

	var writeMu sync.Mutex

	for {
		if err := conn.SetReadDeadline(time.Now().Add(ReadTimeout)); err != nil {
			return
		}

		frame, err := protocol.ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debug("frame read error", "addr", addr, "error", err)
			}
			return
		}

		seq := frame.Header.SequenceNum
		msgType := frame.Header.MsgType
		payload := frame.Payload

		job := func(jobCtx context.Context) {
			resp := s.dispatcher.Dispatch(msgType, payload)

			writeMu.Lock()
			defer writeMu.Unlock()
			if err := conn.SetWriteDeadline(time.Now().Add(ReadTimeout)); err != nil {
				return
			}
			if err := protocol.WriteFrame(conn, resp.MsgType, seq, resp.Payload); err != nil {
				s.log.Debug("frame write error", "addr", addr, "error", err)
			}
		}

		if err := s.pool.Submit(ctx, job); err != nil {
			s.log.Debug("submit rejected, dropping connection", "addr", addr, "error", err)
			return
		}
	}
}
