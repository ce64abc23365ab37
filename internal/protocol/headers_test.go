// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

import "testing"

func TestVideoHeaderRoundTrip(t *testing.T) {
	h := VideoHeader{TargetTimestampNs: 123456789, IsIDR: true}
	got, n, err := DecodeVideoHeader(h.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(h.Encode()) {
		t.Errorf("consumed %d, want %d", n, len(h.Encode()))
	}
	if got != h {
		t.Errorf("got %+v, want %+v", got, h)
	}
}

func TestAudioHeaderRoundTrip(t *testing.T) {
	h := AudioHeader{PacketIndex: 42, HadPacketLoss: true}
	got, _, err := DecodeAudioHeader(h.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != h {
		t.Errorf("got %+v, want %+v", got, h)
	}
}

func TestHeaderPlusPayload(t *testing.T) {
	h := TrackingHeader{TargetTimestampNs: 555}
	payload := []byte("tracking-blob")
	full := append(h.Encode(), payload...)

	got, n, err := DecodeTrackingHeader(full)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != h {
		t.Errorf("header mismatch: %+v", got)
	}
	if string(full[n:]) != string(payload) {
		t.Errorf("payload mismatch: %q", full[n:])
	}
}
