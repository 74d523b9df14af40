// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

package wiretrace

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2), so the
// same record always produces the same bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("wiretrace: CBOR encoder initialization failed: " + err.Error())
	}

	// Unknown record fields are ignored so older dumpers read newer
	// traces.
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("wiretrace: CBOR decoder initialization failed: " + err.Error())
	}
}

func newEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

func newDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}
