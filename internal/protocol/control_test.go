// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

import (
	"bytes"
	"testing"
)

func TestControlPacketRoundTrip(t *testing.T) {
	cases := []ControlPacket{
		StartStream(),
		StreamReadyPacket(),
		KeepAlivePacket(),
		RestartingPacket(),
		RequestIdrPacket(),
		VideoErrorReportPacket(),
		{Tag: TagDecoderConfig, Codec: 1, ConfigNAL: []byte{0, 0, 0, 1, 0x67}},
		{Tag: TagViewsConfig, IPDMeters: 0.063, FovLeft: [4]float32{-49, 45, 50, -50}, FovRight: [4]float32{-45, 49, 50, -50}},
		{Tag: TagBattery, DeviceID: 42, Gauge: 0.81, IsPlugged: true},
		{Tag: TagButtons, Buttons: []ButtonEntry{
			{PathID: 1, Binary: true, Bool: true},
			{PathID: 2, Binary: false, Scalar: 0.5},
		}},
		{Tag: TagPlayspaceSync, PlayspaceBounds: &Vec2{X: 2, Y: 2}},
		{Tag: TagPlayspaceSync},
		{Tag: TagReserved, ReservedPayload: "future-extension"},
		{Tag: TagLog, Level: LogWarn, Message: "decoder saturation"},
	}

	for i, want := range cases {
		enc := want.Encode()
		got, err := DecodeControlPacket(enc)
		if err != nil {
			t.Fatalf("case %d: decode: %v", i, err)
		}
		gotEnc := got.Encode()
		if !bytes.Equal(enc, gotEnc) {
			t.Errorf("case %d: round-trip mismatch: %v != %v", i, enc, gotEnc)
		}
	}
}

func TestWriteReadControlPacket(t *testing.T) {
	var buf bytes.Buffer
	pkt := ControlPacket{Tag: TagBattery, DeviceID: 7, Gauge: 0.5, IsPlugged: false}
	if err := WriteControlPacket(&buf, pkt); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := ReadControlPacket(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.DeviceID != 7 || got.Gauge != 0.5 || got.IsPlugged {
		t.Errorf("unexpected decoded packet: %+v", got)
	}
}

func TestDecodeControlPacketTruncated(t *testing.T) {
	if _, err := DecodeControlPacket([]byte{0, 0}); err == nil {
		t.Fatal("expected truncation error")
	}
}

func TestClientConnectionResultRoundTrip(t *testing.T) {
	caps := StreamingCapabilities{
		DefaultViewResolution: UVec2{X: 1832, Y: 1920},
		SupportedRefreshRates: []float32{72, 80, 90, 120},
		MicSampleRate:         48000,
		FoveatedEncoding:      true,
		HDR:                   false,
	}
	result := ClientConnectionResult{
		Accepted:              true,
		ClientProtocolID:      ProtocolID,
		DisplayName:           "Quest 3",
		ServerIP:              "192.168.1.10",
		StreamingCapabilities: &caps,
	}

	got, err := DecodeClientConnectionResult(result.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.DisplayName != result.DisplayName || got.ClientProtocolID != result.ClientProtocolID {
		t.Errorf("unexpected result: %+v", got)
	}
	if got.StreamingCapabilities == nil || len(got.StreamingCapabilities.SupportedRefreshRates) != 4 {
		t.Errorf("unexpected capabilities: %+v", got.StreamingCapabilities)
	}

	standby := ClientConnectionResult{Accepted: false}
	got2, err := DecodeClientConnectionResult(standby.Encode())
	if err != nil {
		t.Fatalf("decode standby: %v", err)
	}
	if got2.Accepted {
		t.Error("expected standby result to decode as not accepted")
	}
}

func TestStreamConfigPacketRoundTrip(t *testing.T) {
	p := StreamConfigPacket{
		SessionID: 99,
		Config: NegotiatedConfig{
			ViewResolution:         UVec2{X: 2432, Y: 2528},
			RefreshRate:            90,
			GameAudioSampleRate:    48000,
			EnableFoveatedEncoding: true,
			EncodingGamma:          1.0,
			EnableHDR:              false,
			Wired:                  false,
		},
	}
	got, err := DecodeStreamConfigPacket(p.Encode())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Config.RefreshRate != 90 || got.SessionID != 99 {
		t.Errorf("unexpected: %+v", got)
	}
}
