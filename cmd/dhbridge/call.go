// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/dhbridge/bridge"
	"github.com/bureau-foundation/dhbridge/enclave"
	"github.com/bureau-foundation/dhbridge/initiator"
	"github.com/bureau-foundation/dhbridge/lib/buffer"
	"github.com/bureau-foundation/dhbridge/lib/config"
	"github.com/bureau-foundation/dhbridge/lib/identity"
	"github.com/bureau-foundation/dhbridge/lib/process"
	"github.com/bureau-foundation/dhbridge/transport"
)

type callOptions struct {
	configPath      string
	socketPath      string
	timeout         time.Duration
	maxResponseSize uint64
}

func callCommand(stdout io.Writer) *Command {
	var options callOptions
	return &Command{
		Name:    "call",
		Summary: "Open a session, send each argument as a request, print the replies",
		Usage:   "dhbridge call [flags] REQUEST...",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("call", pflag.ContinueOnError)
			flagSet.StringVar(&options.configPath, "config", "", "path to config file (default: $DHBRIDGE_CONFIG)")
			flagSet.StringVar(&options.socketPath, "socket", "", "responder socket (overrides initiator.socket_path)")
			flagSet.DurationVar(&options.timeout, "timeout", 0, "per round trip timeout (overrides initiator.timeout)")
			flagSet.Uint64Var(&options.maxResponseSize, "max-response-size", 0, "largest reply accepted in bytes (overrides initiator.max_response_size)")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("at least one request is required")
			}
			cfg, err := loadConfig(options.configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runCall(ctx, cfg, options, args, stdout)
		},
	}
}

func runCall(ctx context.Context, cfg *config.Config, options callOptions, requests []string, stdout io.Writer) error {
	if options.socketPath != "" {
		cfg.Initiator.SocketPath = options.socketPath
	}
	if options.timeout > 0 {
		cfg.Initiator.Timeout = config.Duration(options.timeout)
	}
	if options.maxResponseSize > 0 {
		cfg.Initiator.MaxResponseSize = config.ByteSize(options.maxResponseSize)
	}
	if cfg.Identity.KeyFile == "" {
		return fmt.Errorf("identity.key_file is required to call a responder")
	}

	level, _ := cfg.Level()
	logger := process.NewLogger(os.Stderr, level)

	allocator, err := cfg.Buffers.NewAllocator()
	if err != nil {
		return err
	}
	buffers := buffer.NewTracker(allocator)
	defer func() {
		if stats := buffers.Stats(); stats.Leaked() {
			logger.Warn("buffers outstanding at exit", "outstanding_buffers", stats.OutstandingBuffers)
		}
	}()

	ageKey, err := identity.ReadAgeIdentity(cfg.Identity.AgeIdentityFile, buffers)
	if err != nil {
		return err
	}
	id, err := identity.LoadSealed(cfg.Identity.KeyFile, ageKey.Bytes(), buffers)
	ageKey.Release()
	if err != nil {
		return err
	}
	defer id.Close()

	trusted, err := identity.ParsePublicKeys(cfg.Identity.Trusted)
	if err != nil {
		return fmt.Errorf("identity.trusted: %w", err)
	}
	handshaker, err := enclave.NewInitiator(enclave.Config{
		Identity:     id.PrivateKey(),
		Trusted:      trusted,
		KeyAllocator: buffers,
	})
	if err != nil {
		return err
	}

	b := &bridge.Bridge{
		Transport: transport.WithTimeout(&transport.Unix{
			SocketPath:  cfg.Initiator.SocketPath,
			MaxBodySize: uint64(cfg.Limits.MaxBodySize),
		}, cfg.Initiator.Timeout.Std(), nil),
		Allocator: buffers,
		Logger:    logger,
	}
	session := initiator.NewSession(b, handshaker, logger)
	if err := session.Establish(ctx); err != nil {
		return fmt.Errorf("establishing session: %w", err)
	}
	defer session.Close(context.WithoutCancel(ctx))

	for _, request := range requests {
		reply, err := session.Call(ctx, []byte(request), uint64(cfg.Initiator.MaxResponseSize))
		if err != nil {
			return fmt.Errorf("request %q: %w", request, err)
		}
		fmt.Fprintf(stdout, "%s\n", reply)
	}
	return nil
}
