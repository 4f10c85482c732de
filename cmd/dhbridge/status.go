// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/dhbridge/lib/codec"
	"github.com/bureau-foundation/dhbridge/lib/control"
)

type statusOptions struct {
	configPath string
	socketPath string
	sessions   bool
	raw        bool
}

func statusCommand(stdout io.Writer) *Command {
	var options statusOptions
	return &Command{
		Name:    "status",
		Summary: "Show a responder's session table",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("status", pflag.ContinueOnError)
			flagSet.StringVar(&options.configPath, "config", "", "path to config file (default: $DHBRIDGE_CONFIG)")
			flagSet.StringVar(&options.socketPath, "socket", "", "control socket (overrides responder.control_socket_path)")
			flagSet.BoolVar(&options.sessions, "sessions", false, "list live sessions")
			flagSet.BoolVar(&options.raw, "raw", false, "print the response in CBOR diagnostic notation")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			if options.socketPath == "" {
				cfg, err := loadConfig(options.configPath)
				if err != nil {
					return err
				}
				options.socketPath = cfg.Responder.ControlSocketPath
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return runStatus(ctx, control.NewClient(options.socketPath), options, stdout)
		},
	}
}

func runStatus(ctx context.Context, client *control.Client, options statusOptions, stdout io.Writer) error {
	action := control.ActionStatus
	if options.sessions {
		action = control.ActionListSessions
	}

	if options.raw {
		data, err := client.CallRaw(ctx, action, nil)
		if err != nil {
			return err
		}
		diagnostic, err := codec.Diagnose(data)
		if err != nil {
			return fmt.Errorf("formatting response: %w", err)
		}
		fmt.Fprintln(stdout, diagnostic)
		return nil
	}

	tw := tabwriter.NewWriter(stdout, 2, 0, 2, ' ', 0)
	defer tw.Flush()

	if options.sessions {
		sessions, err := client.ListSessions(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "ID\tSTATE\tAGE\tIDLE\tREQUESTS\n")
		for _, session := range sessions {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\n", session.ID, session.State,
				session.Age.Round(time.Second), session.Idle.Round(time.Second), session.Requests)
		}
		return nil
	}

	snapshot, err := client.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(tw, "live\t%d\n", snapshot.Live)
	fmt.Fprintf(tw, "pending\t%d\n", snapshot.Pending)
	fmt.Fprintf(tw, "established\t%d\n", snapshot.Established)
	fmt.Fprintf(tw, "opened\t%d\n", snapshot.Opened)
	fmt.Fprintf(tw, "closed\t%d\n", snapshot.Closed)
	fmt.Fprintf(tw, "reaped\t%d\n", snapshot.Reaped)
	fmt.Fprintf(tw, "rejected\t%d\n", snapshot.Rejected)
	fmt.Fprintf(tw, "failed\t%d\n", snapshot.Failed)
	if snapshot.Buffers != nil {
		fmt.Fprintf(tw, "buffers outstanding\t%d (%d bytes)\n",
			snapshot.Buffers.OutstandingBuffers, snapshot.Buffers.OutstandingBytes)
		fmt.Fprintf(tw, "allocation failures\t%d\n", snapshot.Buffers.Failures)
	}
	return nil
}
