// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/dhbridge/enclave"
	"github.com/bureau-foundation/dhbridge/lib/buffer"
	"github.com/bureau-foundation/dhbridge/lib/config"
	"github.com/bureau-foundation/dhbridge/lib/control"
	"github.com/bureau-foundation/dhbridge/lib/identity"
	"github.com/bureau-foundation/dhbridge/responder"
	"github.com/bureau-foundation/dhbridge/transport"
)

// daemon holds the responder and the two sockets it is served on.
type daemon struct {
	logger *slog.Logger

	envelopeBuffers *buffer.Tracker
	keyBuffers      *buffer.Tracker
	identity        *identity.Identity

	enclave   *enclave.Responder
	responder *responder.Responder
	listener  *transport.UnixListener
	control   *control.Server
}

// newDaemon unseals the identity and builds every component. The
// envelope socket is bound here so a bad path fails before serve.
func newDaemon(cfg *config.Config, logger *slog.Logger) (*daemon, error) {
	if cfg.Identity.KeyFile == "" {
		return nil, fmt.Errorf("identity.key_file is required for the responder")
	}
	if len(cfg.Identity.Trusted) == 0 {
		return nil, fmt.Errorf("identity.trusted must list at least one initiator key")
	}

	allocator, err := cfg.Buffers.NewAllocator()
	if err != nil {
		return nil, err
	}
	d := &daemon{
		logger:          logger,
		envelopeBuffers: buffer.NewTracker(allocator),
		keyBuffers:      buffer.NewTracker(allocator),
	}

	ageKey, err := identity.ReadAgeIdentity(cfg.Identity.AgeIdentityFile, d.keyBuffers)
	if err != nil {
		return nil, err
	}
	d.identity, err = identity.LoadSealed(cfg.Identity.KeyFile, ageKey.Bytes(), d.keyBuffers)
	ageKey.Release()
	if err != nil {
		return nil, err
	}

	trusted, err := identity.ParsePublicKeys(cfg.Identity.Trusted)
	if err != nil {
		d.close()
		return nil, fmt.Errorf("identity.trusted: %w", err)
	}
	for _, key := range trusted {
		logger.Info("trusting initiator", "fingerprint", identity.Fingerprint(key))
	}

	d.enclave, err = enclave.NewResponder(enclave.Config{
		Identity:     d.identity.PrivateKey(),
		Trusted:      trusted,
		KeyAllocator: d.keyBuffers,
	}, enclave.Echo)
	if err != nil {
		d.close()
		return nil, err
	}

	d.responder, err = responder.New(responder.Config{
		Enclave:     d.enclave,
		MaxSessions: cfg.Responder.MaxSessions,
		IdleTimeout: cfg.Responder.IdleTimeout.Std(),
		Buffers:     d.envelopeBuffers,
		Logger:      logger,
	})
	if err != nil {
		d.close()
		return nil, err
	}

	d.listener, err = transport.NewUnixListener(cfg.Responder.SocketPath, transport.ListenerConfig{
		Allocator:    d.envelopeBuffers,
		MaxBodySize:  uint64(cfg.Limits.MaxBodySize),
		AllowedUIDs:  cfg.Responder.AllowedUIDs,
		ReadTimeout:  cfg.Responder.ReadTimeout.Std(),
		WriteTimeout: cfg.Responder.WriteTimeout.Std(),
		Logger:       logger,
	})
	if err != nil {
		d.close()
		return nil, err
	}

	d.control = control.NewServer(cfg.Responder.ControlSocketPath, logger)
	control.RegisterResponder(d.control, d.responder)
	return d, nil
}

// serve runs the envelope listener, the control socket and the reaper
// until ctx is cancelled or one of them fails, then stops the others.
func (d *daemon) serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tasks := map[string]func(context.Context) error{
		"envelope listener": func(ctx context.Context) error {
			return d.listener.Serve(ctx, d.responder.HandleEnvelope)
		},
		"control socket": d.control.Serve,
		"reaper":         d.responder.Run,
	}

	type result struct {
		name string
		err  error
	}
	results := make(chan result, len(tasks))
	for name, task := range tasks {
		go func() {
			results <- result{name: name, err: task(ctx)}
		}()
	}

	var errs []error
	for range tasks {
		finished := <-results
		if finished.err != nil {
			d.logger.Error("component failed", "component", finished.name, "error", finished.err)
			errs = append(errs, fmt.Errorf("%s: %w", finished.name, finished.err))
			cancel()
		}
	}
	d.logger.Info("shutting down", "sessions", d.responder.Snapshot().Live)
	return errors.Join(errs...)
}

// close ends every live session, releases the identity and logs any
// buffers still outstanding.
func (d *daemon) close() {
	if d.responder != nil {
		for _, session := range d.responder.Sessions() {
			d.responder.EndSession(session.ID)
		}
	}
	if d.listener != nil {
		d.listener.Close()
	}
	if d.identity != nil {
		d.identity.Close()
	}

	for name, tracker := range map[string]*buffer.Tracker{
		"envelope": d.envelopeBuffers,
		"key":      d.keyBuffers,
	} {
		if stats := tracker.Stats(); stats.Leaked() {
			d.logger.Warn("buffers outstanding at shutdown",
				"pool", name,
				"outstanding_buffers", stats.OutstandingBuffers,
				"outstanding_bytes", stats.OutstandingBytes,
				"double_releases", stats.DoubleReleases,
			)
		}
	}
}
