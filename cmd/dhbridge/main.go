// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/bureau-foundation/dhbridge/lib/config"
	"github.com/bureau-foundation/dhbridge/lib/process"
	"github.com/bureau-foundation/dhbridge/lib/version"
)

func main() {
	if err := rootCommand(os.Stdout).Execute(os.Args[1:], os.Stderr); err != nil {
		process.Fatal(err)
	}
}

func rootCommand(stdout io.Writer) *Command {
	return &Command{
		Name:    "dhbridge",
		Summary: "Establish and inspect bridged secure sessions.",
		Subcommands: []*Command{
			keygenCommand(stdout),
			callCommand(stdout),
			statusCommand(stdout),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					version.Print(stdout, "dhbridge")
					return nil
				},
			},
		},
	}
}

// loadConfig loads path, or DHBRIDGE_CONFIG when path is empty, and
// validates it.
func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
