// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/bureau-foundation/dhbridge/lib/buffer"
	"github.com/bureau-foundation/dhbridge/lib/netutil"
)

const (
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 10 * time.Second
)

// ListenerConfig configures a UnixListener. The zero value is usable.
type ListenerConfig struct {
	// Allocator supplies request buffers. Nil means buffer.Heap{}.
	Allocator buffer.Allocator

	// MaxBodySize caps the body a request may declare. Zero means
	// envelope.DefaultMaxBodySize.
	MaxBodySize uint64

	// AllowedUIDs, when non-empty, restricts clients to processes
	// running as one of these users. Other connections are closed
	// without reading.
	AllowedUIDs []uint32

	// ReadTimeout bounds how long a client may take to send its
	// request. Zero means 30 seconds.
	ReadTimeout time.Duration

	// WriteTimeout bounds writing the reply. Zero means 10 seconds.
	WriteTimeout time.Duration

	// Logger receives connection-level diagnostics. Nil means
	// slog.Default().
	Logger *slog.Logger
}

// UnixListener serves envelopes on a Unix stream socket, one request
// and one reply per connection.
type UnixListener struct {
	path     string
	listener net.Listener
	config   ListenerConfig

	// activeConnections lets Serve wait for in-flight handlers.
	activeConnections sync.WaitGroup
}

// NewUnixListener removes any stale socket at path and starts
// listening. The socket is created with mode 0600; widen it with
// os.Chmod if other users are listed in AllowedUIDs.
func NewUnixListener(path string, config ListenerConfig) (*UnixListener, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale socket %s: %w", path, err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("setting socket permissions on %s: %w", path, err)
	}
	if config.Allocator == nil {
		config.Allocator = buffer.Heap{}
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = defaultReadTimeout
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = defaultWriteTimeout
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &UnixListener{path: path, listener: listener, config: config}, nil
}

// Address returns the socket path.
func (l *UnixListener) Address() string { return l.path }

// Serve accepts connections and dispatches each request to handler.
// It blocks until ctx is cancelled or Close is called, then waits for
// in-flight handlers and removes the socket file. Returns nil on a
// clean shutdown.
func (l *UnixListener) Serve(ctx context.Context, handler Handler) error {
	defer os.Remove(l.path)

	stop := context.AfterFunc(ctx, func() { l.listener.Close() })
	defer stop()

	logger := l.config.Logger
	logger.Info("envelope listener started", "path", l.path)

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			logger.Error("accept failed", "error", err)
			continue
		}

		l.activeConnections.Add(1)
		go func() {
			defer l.activeConnections.Done()
			l.handleConnection(ctx, conn, handler)
		}()
	}

	l.activeConnections.Wait()
	logger.Info("envelope listener stopped", "path", l.path)
	return nil
}

// Close stops accepting connections. Serve returns once in-flight
// handlers finish.
func (l *UnixListener) Close() error {
	return l.listener.Close()
}

func (l *UnixListener) handleConnection(ctx context.Context, conn net.Conn, handler Handler) {
	defer conn.Close()
	logger := l.config.Logger

	if len(l.config.AllowedUIDs) > 0 {
		credentials, err := peerCredentials(conn)
		if err != nil {
			logger.Warn("reading peer credentials failed", "error", err)
			return
		}
		if !slices.Contains(l.config.AllowedUIDs, credentials.Uid) {
			logger.Warn("rejected connection from disallowed uid",
				"uid", credentials.Uid,
				"pid", credentials.Pid,
			)
			return
		}
	}

	conn.SetReadDeadline(time.Now().Add(l.config.ReadTimeout))
	request, err := ReadEnvelope(conn, l.config.Allocator, maxBody(l.config.MaxBodySize))
	if err != nil {
		if errors.Is(err, ErrNoReply) || netutil.IsExpectedCloseError(err) {
			logger.Debug("client sent no envelope", "error", err)
		} else {
			logger.Warn("reading request envelope failed", "error", err)
		}
		return
	}
	defer request.Release()

	reply, err := handler(ctx, request.Bytes())
	if err != nil {
		logger.Warn("handler failed, dropping connection", "error", err)
		return
	}

	conn.SetWriteDeadline(time.Now().Add(l.config.WriteTimeout))
	if err := WriteEnvelope(conn, reply); err != nil {
		if netutil.IsExpectedCloseError(err) {
			logger.Debug("client went away before the reply", "error", err)
			return
		}
		logger.Warn("writing reply envelope failed", "error", err)
	}
}
