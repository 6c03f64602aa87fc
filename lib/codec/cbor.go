// Copyright 2026 The Chunkdex Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding used for on-disk chunk
// metadata records. Encoding is Core Deterministic (RFC 8949 §4.2):
// sorted map keys, smallest integer encoding, no indefinite-length
// items. The same logical record always produces identical bytes, so
// a metadata entry inside the shared archive is reproducible across
// rebuilds of the same chunk.
package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var encMode cbor.EncMode
var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Metadata records never use non-string map keys. When the
		// decode target is any (version tag maps read generically),
		// the decoder must pick a concrete map type; the CBOR default
		// map[any]any is incompatible with most Go code, so force
		// map[string]any. Struct field decoding is unaffected.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v. Unknown fields are silently
// ignored for forward compatibility with metadata written by newer
// chunk builders.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
