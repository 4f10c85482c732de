// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sealed

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
	"filippo.io/age/armor"

	"github.com/bureau-foundation/dhbridge/lib/buffer"
)

// ErrNoRecipients is returned by Encrypt when no recipient keys are
// given.
var ErrNoRecipients = errors.New("sealed: at least one recipient is required")

// Keypair holds an age x25519 keypair. The private key lives in an
// allocator buffer; the public key is a plain string and safe to
// publish.
//
// The caller must call Close when the keypair is no longer needed.
type Keypair struct {
	// PrivateKey is the secret key in AGE-SECRET-KEY-1... format. Must
	// never be logged or passed on a command line.
	PrivateKey *buffer.Buffer

	// PublicKey is the corresponding public key in age1... format.
	PublicKey string
}

// Close releases the private key. Safe to call more than once.
func (k *Keypair) Close() error {
	if k.PrivateKey == nil || k.PrivateKey.Released() {
		return nil
	}
	return k.PrivateKey.Release()
}

// GenerateKeypair generates a new age x25519 keypair with the private
// key copied into a buffer from allocator.
func GenerateKeypair(allocator buffer.Allocator) (*Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating age keypair: %w", err)
	}

	// identity.String() leaves a heap copy behind; age offers no way
	// around that. The buffer is the copy the caller holds on to.
	privateKey, err := protect(allocator, []byte(identity.String()))
	if err != nil {
		return nil, fmt.Errorf("protecting private key: %w", err)
	}
	return &Keypair{
		PrivateKey: privateKey,
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// Encrypt encrypts plaintext to the given age public keys (age1...
// format) and returns armored ciphertext.
func Encrypt(plaintext []byte, recipientKeys []string) ([]byte, error) {
	if len(recipientKeys) == 0 {
		return nil, ErrNoRecipients
	}

	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var ciphertext bytes.Buffer
	armorWriter := armor.NewWriter(&ciphertext)
	writer, err := age.Encrypt(armorWriter, recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	if err := armorWriter.Close(); err != nil {
		return nil, fmt.Errorf("finalizing armor: %w", err)
	}
	return ciphertext.Bytes(), nil
}

// Decrypt decrypts armored ciphertext with privateKey and returns the
// plaintext in a buffer from allocator. privateKey is borrowed and not
// released.
func Decrypt(ciphertext, privateKey []byte, allocator buffer.Allocator) (*buffer.Buffer, error) {
	identity, err := age.ParseX25519Identity(string(privateKey))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	reader, err := age.Decrypt(armor.NewReader(bytes.NewReader(ciphertext)), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		clear(plaintext)
		return nil, fmt.Errorf("reading decrypted plaintext: %w", err)
	}

	result, err := protect(allocator, plaintext)
	if err != nil {
		return nil, fmt.Errorf("protecting decrypted plaintext: %w", err)
	}
	return result, nil
}

// ParsePublicKey validates an age public key string.
func ParsePublicKey(publicKey string) error {
	if _, err := age.ParseX25519Recipient(publicKey); err != nil {
		return fmt.Errorf("invalid age public key: %w", err)
	}
	return nil
}

// ParsePrivateKey validates an age private key.
func ParsePrivateKey(privateKey []byte) error {
	if _, err := age.ParseX25519Identity(string(privateKey)); err != nil {
		return fmt.Errorf("invalid age private key: %w", err)
	}
	return nil
}

// protect moves data into a buffer from allocator and zeroes the
// heap copy whether or not the allocation succeeds.
func protect(allocator buffer.Allocator, data []byte) (*buffer.Buffer, error) {
	defer clear(data)
	result, err := allocator.Allocate(len(data))
	if err != nil {
		return nil, err
	}
	copy(result.Bytes(), data)
	return result, nil
}
