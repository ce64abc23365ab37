// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package stream

import (
	"bytes"
	"context"
	"testing"
)

func TestNewThrottledWriterBypassWhenDisabled(t *testing.T) {
	var buf bytes.Buffer
	w := NewThrottledWriter(context.Background(), &buf, 0)
	if _, ok := w.(*ThrottledWriter); ok {
		t.Fatal("expected bypass writer when bytesPerSec <= 0")
	}
}

func TestThrottledWriterWritesAllBytes(t *testing.T) {
	var buf bytes.Buffer
	w := NewThrottledWriter(context.Background(), &buf, 1<<20)
	data := bytes.Repeat([]byte{0x42}, 4096)

	n, err := w.Write(data)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len(data) {
		t.Fatalf("expected %d bytes written, got %d", len(data), n)
	}
	if !bytes.Equal(buf.Bytes(), data) {
		t.Fatal("throttled writer altered the byte stream")
	}
}

func TestParseDSCP(t *testing.T) {
	cases := map[string]int{
		"":     0,
		"ef":   46,
		"EF":   46,
		"AF41": 34,
		"CS6":  48,
	}
	for in, want := range cases {
		got, err := ParseDSCP(in)
		if err != nil {
			t.Fatalf("ParseDSCP(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseDSCP(%q) = %d, want %d", in, got, want)
		}
	}

	if _, err := ParseDSCP("bogus"); err == nil {
		t.Error("expected error for unknown DSCP name")
	}
}

func TestApplyDSCPNoopWhenZero(t *testing.T) {
	if err := ApplyDSCP(nil, 0); err != nil {
		t.Fatalf("expected nil conn with dscp=0 to be a no-op, got %v", err)
	}
}
