// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/dhbridge/lib/buffer"
	"github.com/bureau-foundation/dhbridge/lib/sealed"
)

// PublicKeySuffix is appended to a sealed key file's path to name its
// public key file.
const PublicKeySuffix = ".pub"

// ErrInvalidPublicKey is returned when a public key string does not
// decode to an ed25519 public key.
var ErrInvalidPublicKey = errors.New("identity: invalid public key")

// Identity is a loaded ed25519 private key. Close releases it.
type Identity struct {
	key *buffer.Buffer
}

// Generate creates a new identity with its key held in a buffer from
// allocator.
func Generate(allocator buffer.Allocator) (*Identity, error) {
	seed := make([]byte, ed25519.SeedSize)
	defer clear(seed)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("generating seed: %w", err)
	}
	return fromSeed(seed, allocator)
}

func fromSeed(seed []byte, allocator buffer.Allocator) (*Identity, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("identity: seed is %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	expanded := ed25519.NewKeyFromSeed(seed)
	defer clear(expanded)

	key, err := allocator.Allocate(ed25519.PrivateKeySize)
	if err != nil {
		return nil, fmt.Errorf("allocating private key: %w", err)
	}
	copy(key.Bytes(), expanded)
	return &Identity{key: key}, nil
}

// PrivateKey returns the private key. The slice aliases the identity's
// buffer and is invalid after Close.
func (i *Identity) PrivateKey() ed25519.PrivateKey {
	return ed25519.PrivateKey(i.key.Bytes())
}

// PublicKey returns a copy of the public key.
func (i *Identity) PublicKey() ed25519.PublicKey {
	return bytes.Clone(i.PrivateKey().Public().(ed25519.PublicKey))
}

// Close zeroes and releases the private key. Safe to call more than
// once.
func (i *Identity) Close() error {
	if i.key.Released() {
		return nil
	}
	return i.key.Release()
}

// WriteSealed writes the identity's seed, age-encrypted to recipients,
// to path with mode 0600, and its public key to path+PublicKeySuffix.
func (i *Identity) WriteSealed(path string, recipients []string) error {
	ciphertext, err := sealed.Encrypt(i.PrivateKey().Seed(), recipients)
	if err != nil {
		return fmt.Errorf("sealing identity: %w", err)
	}
	if err := os.WriteFile(path, ciphertext, 0o600); err != nil {
		return fmt.Errorf("writing sealed identity: %w", err)
	}
	return WritePublicKey(path+PublicKeySuffix, i.PublicKey())
}

// LoadSealed decrypts the sealed seed at path with the age private key
// and returns the identity, held in a buffer from allocator.
func LoadSealed(path string, agePrivateKey []byte, allocator buffer.Allocator) (*Identity, error) {
	ciphertext, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sealed identity: %w", err)
	}
	seed, err := sealed.Decrypt(ciphertext, agePrivateKey, allocator)
	if err != nil {
		return nil, fmt.Errorf("unsealing %s: %w", path, err)
	}
	defer seed.Release()
	return fromSeed(seed.Bytes(), allocator)
}

// WriteAgeIdentity writes an age private key to path with mode 0600.
func WriteAgeIdentity(path string, keypair *sealed.Keypair) error {
	content := fmt.Appendf(nil, "# public key: %s\n%s\n", keypair.PublicKey, keypair.PrivateKey.Bytes())
	defer clear(content)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		return fmt.Errorf("writing age identity: %w", err)
	}
	return nil
}

// ReadAgeIdentity reads the first AGE-SECRET-KEY line of the file at
// path into a buffer from allocator. Comment lines are skipped.
func ReadAgeIdentity(path string, allocator buffer.Allocator) (*buffer.Buffer, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading age identity: %w", err)
	}
	defer clear(content)

	for line := range bytes.Lines(content) {
		line = bytes.TrimSpace(line)
		if !bytes.HasPrefix(line, []byte("AGE-SECRET-KEY-")) {
			continue
		}
		if err := sealed.ParsePrivateKey(line); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		key, err := allocator.Allocate(len(line))
		if err != nil {
			return nil, fmt.Errorf("allocating age identity: %w", err)
		}
		copy(key.Bytes(), line)
		return key, nil
	}
	return nil, fmt.Errorf("%s: no AGE-SECRET-KEY line", path)
}

// EncodePublicKey returns the hex form used in .pub files and config.
func EncodePublicKey(key ed25519.PublicKey) string {
	return hex.EncodeToString(key)
}

// ParsePublicKey decodes the hex form of a public key.
func ParsePublicKey(text string) (ed25519.PublicKey, error) {
	decoded, err := hex.DecodeString(strings.TrimSpace(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	if len(decoded) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: %d bytes, want %d", ErrInvalidPublicKey, len(decoded), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(decoded), nil
}

// ParsePublicKeys decodes every entry, reporting the index of the first
// bad one.
func ParsePublicKeys(texts []string) ([]ed25519.PublicKey, error) {
	keys := make([]ed25519.PublicKey, 0, len(texts))
	for index, text := range texts {
		key, err := ParsePublicKey(text)
		if err != nil {
			return nil, fmt.Errorf("key %d: %w", index, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// WritePublicKey writes key in hex to path with mode 0644.
func WritePublicKey(path string, key ed25519.PublicKey) error {
	if err := os.WriteFile(path, []byte(EncodePublicKey(key)+"\n"), 0o644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}
	return nil
}

// ReadPublicKey reads a .pub file.
func ReadPublicKey(path string) (ed25519.PublicKey, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	key, err := ParsePublicKey(string(content))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return key, nil
}

// Fingerprint returns a short, colon-grouped BLAKE3 digest of key for
// display, e.g. "3f9a:07c1:...".
func Fingerprint(key ed25519.PublicKey) string {
	digest := blake3.Sum256(key)
	encoded := hex.EncodeToString(digest[:8])
	groups := make([]string, 0, len(encoded)/4)
	for start := 0; start < len(encoded); start += 4 {
		groups = append(groups, encoded[start:start+4])
	}
	return strings.Join(groups, ":")
}
