// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

// Package chunkhash defines the content hash type used throughout the
// shared index cache: a 32-byte BLAKE3 digest in keyed mode with
// domain separation between file-content hashes and chunk-identifier
// digests.
package chunkhash

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest. Content hash enumerators store
// hashes of this size, and the dedup lookup path compares them
// byte-for-byte.
type Hash [32]byte

// domainKey is a 32-byte key for BLAKE3 keyed hashing. Domain
// separation ensures the same input bytes produce different hashes in
// different contexts.
type domainKey [32]byte

// Domain separation keys. Fixed constants — changing them invalidates
// every hash previously recorded in that domain. The byte values are
// the ASCII encoding of the domain name, zero-padded to 32 bytes, so
// the keys are inspectable in hex dumps without losing any
// cryptographic property (keyed BLAKE3 treats the key as opaque).
var (
	contentDomainKey = domainKey{
		'c', 'h', 'u', 'n', 'k', 'd', 'e', 'x', '.',
		'c', 'o', 'n', 't', 'e', 'n', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}

	descriptorDomainKey = domainKey{
		'c', 'h', 'u', 'n', 'k', 'd', 'e', 'x', '.',
		'd', 'e', 's', 'c', 'r', 'i', 'p', 't', 'o', 'r', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	}
)

// HashContent computes the content-domain hash of a file's bytes.
// This is the hash recorded in a chunk's content hash enumerator and
// matched by the dedup lookup.
func HashContent(data []byte) Hash {
	return keyedHash(contentDomainKey, data)
}

// HashDescriptor computes the descriptor-domain hash of a chunk's
// unique identifier string. Used when a stable fixed-width digest of
// a descriptor id is needed (manifest integrity, fragment naming).
func HashDescriptor(uniqueID string) Hash {
	return keyedHash(descriptorDomainKey, []byte(uniqueID))
}

func keyedHash(key domainKey, data []byte) Hash {
	hasher, err := blake3.NewKeyed(key[:])
	if err != nil {
		// NewKeyed fails only on a key length other than 32 bytes,
		// which the domainKey type rules out.
		panic(fmt.Sprintf("chunkhash: keyed hasher init: %v", err))
	}
	hasher.Write(data)

	var out Hash
	copy(out[:], hasher.Sum(nil))
	return out
}

// FormatHash renders a hash as 64 lowercase hex characters.
func FormatHash(h Hash) string {
	return hex.EncodeToString(h[:])
}

// ParseHash parses a 64-character hex string into a Hash.
func ParseHash(s string) (Hash, error) {
	if len(s) != 64 {
		return Hash{}, fmt.Errorf("invalid hash length %d, want 64 hex characters", len(s))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	var out Hash
	copy(out[:], raw)
	return out, nil
}
