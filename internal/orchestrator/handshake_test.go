// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package orchestrator

import (
	"errors"
	"net"
	"path/filepath"
	"testing"

	"github.com/alvr-org/alvr-streamd/internal/config"
	"github.com/alvr-org/alvr-streamd/internal/protocol"
)

func TestPickRefreshRate(t *testing.T) {
	cases := []struct {
		supported []float32
		preferred float32
		want      float32
	}{
		{[]float32{72, 80, 90, 120}, 90, 90},
		{[]float32{72, 80, 90, 120}, 100, 90},
		{[]float32{72, 80, 90, 120}, 60, 72},
		{[]float32{72, 120}, 100, 120}, // nearest above beats farther below
		{nil, 90, 90},
	}
	for _, c := range cases {
		got := pickRefreshRate(c.supported, c.preferred)
		if got != c.want {
			t.Errorf("pickRefreshRate(%v, %v) = %v, want %v", c.supported, c.preferred, got, c.want)
		}
	}
}

func TestNegotiateConfigAppliesScaleAndFeatureAND(t *testing.T) {
	cfg := &config.ServerConfig{}
	cfg.Session.ResolutionScale = 1.5
	cfg.Session.PreferredRefreshRate = 90
	cfg.Session.GameAudioSampleRate = 48000
	cfg.Session.EnableFoveatedEncoding = true
	cfg.Session.EnableHDR = true

	caps := protocol.StreamingCapabilities{
		DefaultViewResolution: protocol.UVec2{X: 1000, Y: 1000},
		SupportedRefreshRates: []float32{90},
		FoveatedEncoding:      false, // client doesn't support it
		HDR:                   true,
	}

	got := negotiateConfig(cfg, caps)
	if got.ViewResolution.X != 1500 || got.ViewResolution.Y != 1500 {
		t.Errorf("expected scaled resolution 1500x1500, got %dx%d", got.ViewResolution.X, got.ViewResolution.Y)
	}
	if got.EnableFoveatedEncoding {
		t.Error("expected foveated encoding disabled when client doesn't support it")
	}
	if !got.EnableHDR {
		t.Error("expected HDR enabled when both sides support it")
	}
}

func TestResolveCodecDowngrade(t *testing.T) {
	cfg := &config.ServerConfig{}
	cfg.Session.Codec = "av1"

	codec, downgraded := resolveCodec(cfg, protocol.StreamingCapabilities{})
	if codec != CodecHEVC || !downgraded {
		t.Errorf("expected av1 to downgrade to hevc for a non-av1 client, got codec=%d downgraded=%v", codec, downgraded)
	}

	codec, downgraded = resolveCodec(cfg, protocol.StreamingCapabilities{AV1Encoding: true})
	if codec != CodecAV1 || downgraded {
		t.Errorf("expected av1 kept for an av1-capable client, got codec=%d downgraded=%v", codec, downgraded)
	}
}

func TestDriverConfigStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "driver-config.json")
	store := NewDriverConfigStore(path)

	negotiated := protocol.NegotiatedConfig{ViewResolution: protocol.UVec2{X: 1832, Y: 1920}, RefreshRate: 90}

	needs, err := store.NeedsRestart(negotiated)
	if err != nil {
		t.Fatalf("NeedsRestart: %v", err)
	}
	if !needs {
		t.Error("expected restart required before any record exists")
	}

	if err := store.Save(recordFromNegotiated(negotiated)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	needs, err = store.NeedsRestart(negotiated)
	if err != nil {
		t.Fatalf("NeedsRestart: %v", err)
	}
	if needs {
		t.Error("expected no restart required for an unchanged negotiated config")
	}

	negotiated.RefreshRate = 120
	needs, err = store.NeedsRestart(negotiated)
	if err != nil {
		t.Fatalf("NeedsRestart: %v", err)
	}
	if !needs {
		t.Error("expected restart required after refresh rate changed")
	}
}

func TestServerClientHandshakeEndToEnd(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	serverCfg := &config.ServerConfig{}
	serverCfg.Session.PreferredRefreshRate = 90
	serverCfg.Session.ResolutionScale = 1.0
	serverCfg.Session.GameAudioSampleRate = 48000

	clientCfg := &config.ClientConfig{}
	clientCfg.Client.DisplayName = "Test Headset"
	clientCfg.Capabilities.DefaultViewWidth = 1832
	clientCfg.Capabilities.DefaultViewHeight = 1920
	clientCfg.Capabilities.SupportedRefreshRates = []float32{72, 90}
	clientCfg.Capabilities.MicSampleRate = 48000

	store := NewDriverConfigStore(filepath.Join(t.TempDir(), "driver-config.json"))
	// Pre-seed the persisted record to match what this negotiation will
	// derive, so the handshake takes the normal (no-restart) path.
	preNegotiated := negotiateConfig(serverCfg, protocol.StreamingCapabilities{
		DefaultViewResolution: protocol.UVec2{X: clientCfg.Capabilities.DefaultViewWidth, Y: clientCfg.Capabilities.DefaultViewHeight},
		SupportedRefreshRates: clientCfg.Capabilities.SupportedRefreshRates,
	})
	if err := store.Save(recordFromNegotiated(preNegotiated)); err != nil {
		t.Fatalf("seeding driver config store: %v", err)
	}

	serverResult := make(chan error, 1)
	var serverSession Session
	go func() {
		var err error
		serverSession, err = ServerHandshake(serverConn, serverCfg, store)
		serverResult <- err
	}()

	clientSession, clientErr := ClientHandshake(clientConn, clientCfg)
	if clientErr != nil {
		t.Fatalf("ClientHandshake: %v", clientErr)
	}
	if err := <-serverResult; err != nil {
		t.Fatalf("ServerHandshake: %v", err)
	}

	if serverSession.ID != clientSession.ID {
		t.Errorf("session ID mismatch: server=%d client=%d", serverSession.ID, clientSession.ID)
	}
	if clientSession.Negotiated.RefreshRate != 90 {
		t.Errorf("expected negotiated refresh rate 90, got %v", clientSession.Negotiated.RefreshRate)
	}
	if serverSession.PeerDisplayName != "Test Headset" {
		t.Errorf("unexpected peer display name %q", serverSession.PeerDisplayName)
	}
	if serverSession.RefreshRateAdjusted {
		t.Error("expected no refresh-rate adjustment when the preferred rate is supported")
	}
}

// When the server's persisted driver config differs from the freshly
// negotiated one, it must send Restarting (not StartStream) and the
// client must surface that as ErrDriverRestartRequired instead of
// completing the handshake.
func TestServerClientHandshakeRestartsOnConfigChange(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	serverCfg := &config.ServerConfig{}
	serverCfg.Session.PreferredRefreshRate = 90
	serverCfg.Session.ResolutionScale = 1.0
	serverCfg.Session.GameAudioSampleRate = 48000

	clientCfg := &config.ClientConfig{}
	clientCfg.Client.DisplayName = "Test Headset"
	clientCfg.Capabilities.DefaultViewWidth = 1832
	clientCfg.Capabilities.DefaultViewHeight = 1920
	clientCfg.Capabilities.SupportedRefreshRates = []float32{72, 90}
	clientCfg.Capabilities.MicSampleRate = 48000

	store := NewDriverConfigStore(filepath.Join(t.TempDir(), "driver-config.json"))
	// Seed a record that disagrees with what this negotiation will
	// derive (72 vs. the 90 the client will be offered).
	stale := negotiateConfig(serverCfg, protocol.StreamingCapabilities{
		DefaultViewResolution: protocol.UVec2{X: clientCfg.Capabilities.DefaultViewWidth, Y: clientCfg.Capabilities.DefaultViewHeight},
		SupportedRefreshRates: []float32{72},
	})
	if err := store.Save(recordFromNegotiated(stale)); err != nil {
		t.Fatalf("seeding driver config store: %v", err)
	}

	serverResult := make(chan error, 1)
	go func() {
		_, err := ServerHandshake(serverConn, serverCfg, store)
		serverResult <- err
	}()

	_, clientErr := ClientHandshake(clientConn, clientCfg)
	if !errors.Is(clientErr, ErrDriverRestartRequired) {
		t.Fatalf("expected ClientHandshake to report ErrDriverRestartRequired, got %v", clientErr)
	}
	if err := <-serverResult; !errors.Is(err, ErrDriverRestartRequired) {
		t.Fatalf("expected ServerHandshake to report ErrDriverRestartRequired, got %v", err)
	}

	rec, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec.RefreshRate != 90 {
		t.Errorf("expected persisted record to reflect the newly negotiated refresh rate 90, got %v", rec.RefreshRate)
	}
}
