// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/dhbridge/lib/buffer"
	"github.com/bureau-foundation/dhbridge/lib/identity"
	"github.com/bureau-foundation/dhbridge/lib/sealed"
)

type keygenOptions struct {
	directory  string
	name       string
	recipients []string
	force      bool
}

func keygenCommand(stdout io.Writer) *Command {
	var options keygenOptions
	return &Command{
		Name:    "keygen",
		Summary: "Generate an ed25519 identity sealed with age",
		Usage:   "dhbridge keygen [--dir DIR] [--name NAME] [--recipient age1...]...",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
			flagSet.StringVar(&options.directory, "dir", ".", "directory to write key files into")
			flagSet.StringVar(&options.name, "name", "dhbridge", "base name of the key files")
			flagSet.StringArrayVar(&options.recipients, "recipient", nil,
				"age public key to seal the identity to (repeatable); without one, a new age identity is written to NAME.age")
			flagSet.BoolVar(&options.force, "force", false, "overwrite existing key files")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			return runKeygen(options, stdout)
		},
	}
}

func runKeygen(options keygenOptions, stdout io.Writer) error {
	keyPath := filepath.Join(options.directory, options.name+".key")
	agePath := filepath.Join(options.directory, options.name+".age")

	outputs := []string{keyPath, keyPath + identity.PublicKeySuffix}
	recipients := options.recipients
	if len(recipients) == 0 {
		outputs = append(outputs, agePath)
	}
	if !options.force {
		for _, path := range outputs {
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
		}
	}
	for _, recipient := range recipients {
		if err := sealed.ParsePublicKey(recipient); err != nil {
			return err
		}
	}

	allocator := buffer.Heap{}
	if len(recipients) == 0 {
		keypair, err := sealed.GenerateKeypair(allocator)
		if err != nil {
			return err
		}
		defer keypair.Close()
		if err := identity.WriteAgeIdentity(agePath, keypair); err != nil {
			return err
		}
		recipients = []string{keypair.PublicKey}
		fmt.Fprintf(stdout, "age identity: %s\n", agePath)
	}

	id, err := identity.Generate(allocator)
	if err != nil {
		return err
	}
	defer id.Close()
	if err := id.WriteSealed(keyPath, recipients); err != nil {
		return err
	}

	public := id.PublicKey()
	fmt.Fprintf(stdout, "sealed identity: %s\n", keyPath)
	fmt.Fprintf(stdout, "public key: %s\n", identity.EncodePublicKey(public))
	fmt.Fprintf(stdout, "fingerprint: %s\n", identity.Fingerprint(public))
	return nil
}
