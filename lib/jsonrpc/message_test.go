// Copyright 2026 The Kelivo Authors
// SPDX-License-Identifier: Apache-2.0

package jsonrpc

import "testing"

func TestDecodeClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		record       string
		request      bool
		notification bool
		response     bool
		idString     string
	}{
		{
			name:     "request with numeric id",
			record:   `{"jsonrpc":"2.0","id":1,"method":"invoke","params":{"prompt":"hi"}}`,
			request:  true,
			idString: "1",
		},
		{
			name:         "notification",
			record:       `{"jsonrpc":"2.0","method":"abort"}`,
			notification: true,
		},
		{
			name:     "response with result",
			record:   `{"jsonrpc":"2.0","id":"perm-1","result":{"behavior":"allow"}}`,
			response: true,
			idString: "perm-1",
		},
		{
			name:     "response with null result",
			record:   `{"jsonrpc":"2.0","id":"perm-2","result":null}`,
			response: true,
			idString: "perm-2",
		},
		{
			name:     "error response",
			record:   `{"jsonrpc":"2.0","id":"perm-3","error":{"code":-32603,"message":"boom"}}`,
			response: true,
			idString: "perm-3",
		},
		{
			name:         "null id is a notification",
			record:       `{"jsonrpc":"2.0","id":null,"method":"abort"}`,
			notification: true,
		},
		{
			name:     "id without result or method",
			record:   `{"jsonrpc":"2.0","id":7}`,
			idString: "7",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			message, err := Decode([]byte(test.record))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got := message.IsRequest(); got != test.request {
				t.Errorf("IsRequest() = %v, want %v", got, test.request)
			}
			if got := message.IsNotification(); got != test.notification {
				t.Errorf("IsNotification() = %v, want %v", got, test.notification)
			}
			if got := message.IsResponse(); got != test.response {
				t.Errorf("IsResponse() = %v, want %v", got, test.response)
			}
			if got := message.IDString(); got != test.idString {
				t.Errorf("IDString() = %q, want %q", got, test.idString)
			}
		})
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	t.Parallel()

	for _, record := range []string{`{"jsonrpc":`, `[1,2]`, `"text"`, `not json`} {
		if _, err := Decode([]byte(record)); err == nil {
			t.Errorf("Decode(%q) succeeded, want error", record)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	t.Parallel()

	err := &Error{Code: CodeMethodNotFound, Message: "Method not found: frob"}
	if got, want := err.Error(), "jsonrpc error -32601: Method not found: frob"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
