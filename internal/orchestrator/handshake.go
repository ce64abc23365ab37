// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package orchestrator

import (
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/alvr-org/alvr-streamd/internal/config"
	"github.com/alvr-org/alvr-streamd/internal/protocol"
)

// ErrProtocolMismatch is returned when the peer's protocol ID doesn't
// match ours; the versions are assumed wire-incompatible.
var ErrProtocolMismatch = errors.New("orchestrator: protocol ID mismatch")

// ErrClientStandby is returned by ServerHandshake when the client
// replies to the connection offer without accepting (e.g. headset
// asleep); the caller should retry discovery rather than treat it as
// a failure.
var ErrClientStandby = errors.New("orchestrator: client declined with standby")

// ErrDriverRestartRequired is returned by ServerHandshake when the
// negotiated config differs from the persisted driver config: the
// caller must trigger an external driver restart and return to
// discovery instead of opening a stream socket for this Session.
var ErrDriverRestartRequired = errors.New("orchestrator: driver restart required")

// ServerHandshake drives the host-PC side of the control-channel
// handshake: read the client's capabilities, compare
// against the persisted driver config, negotiate stream parameters,
// push them down, then wait for the client's StreamReady before the
// caller opens the shard-multiplexed stream socket.
func ServerHandshake(conn net.Conn, cfg *config.ServerConfig, store *DriverConfigStore) (Session, error) {
	timeouts := config.DefaultTimeouts()
	if err := conn.SetReadDeadline(time.Now().Add(timeouts.HandshakeAction)); err != nil {
		return Session{}, fmt.Errorf("orchestrator: setting handshake deadline: %w", err)
	}
	defer conn.SetReadDeadline(time.Time{})

	buf, err := protocol.ReadLengthPrefixed(conn)
	if err != nil {
		return Session{}, fmt.Errorf("orchestrator: reading client connection result: %w", err)
	}
	result, err := protocol.DecodeClientConnectionResult(buf)
	if err != nil {
		return Session{}, fmt.Errorf("orchestrator: decoding client connection result: %w", err)
	}
	if !result.Accepted {
		return Session{}, ErrClientStandby
	}
	if result.ClientProtocolID != protocol.ProtocolID {
		return Session{}, fmt.Errorf("%w: client=%d server=%d", ErrProtocolMismatch, result.ClientProtocolID, protocol.ProtocolID)
	}
	if result.StreamingCapabilities == nil {
		return Session{}, fmt.Errorf("orchestrator: accepted client connection carried no capabilities")
	}

	negotiated := negotiateConfig(cfg, *result.StreamingCapabilities)
	codec, codecDowngraded := resolveCodec(cfg, *result.StreamingCapabilities)

	restart, err := store.NeedsRestart(negotiated)
	if err != nil {
		return Session{}, err
	}

	sessionID := uint64(time.Now().UnixNano())
	streamCfg := protocol.StreamConfigPacket{SessionID: sessionID, Config: negotiated}
	if err := protocol.WriteLengthPrefixed(conn, streamCfg.Encode()); err != nil {
		return Session{}, fmt.Errorf("orchestrator: sending stream config: %w", err)
	}

	// A driver-config change can't take effect on a running driver, so
	// this pipeline exits here instead of proceeding to start-stream;
	// the caller is expected to trigger an external driver restart and
	// let the client loop back to discovery.
	if restart {
		if err := store.Save(recordFromNegotiated(negotiated)); err != nil {
			return Session{}, err
		}
		if err := protocol.WriteControlPacket(conn, protocol.RestartingPacket()); err != nil {
			return Session{}, fmt.Errorf("orchestrator: sending restarting: %w", err)
		}
		return Session{
			ID:                    sessionID,
			Negotiated:            negotiated,
			DriverRestartRequired: true,
			PeerDisplayName:       result.DisplayName,
		}, ErrDriverRestartRequired
	}

	if err := protocol.WriteControlPacket(conn, protocol.StartStream()); err != nil {
		return Session{}, fmt.Errorf("orchestrator: sending start-stream: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeouts.HandshakeAction)); err != nil {
		return Session{}, err
	}
	ready, err := protocol.ReadControlPacket(conn)
	if err != nil {
		return Session{}, fmt.Errorf("orchestrator: waiting for stream-ready: %w", err)
	}
	if ready.Tag != protocol.TagStreamReady {
		return Session{}, fmt.Errorf("orchestrator: expected stream-ready, got tag %d", ready.Tag)
	}

	return Session{
		ID:                  sessionID,
		Negotiated:          negotiated,
		Codec:               codec,
		CodecDowngraded:     codecDowngraded,
		RefreshRateAdjusted: negotiated.RefreshRate != cfg.Session.PreferredRefreshRate,
		PeerDisplayName:     result.DisplayName,
		MicSampleRate:       result.StreamingCapabilities.MicSampleRate,
	}, nil
}

// Wire codec identifiers carried in DecoderConfig.
const (
	CodecH264 uint32 = iota
	CodecHEVC
	CodecAV1
)

// resolveCodec maps the server's preferred codec onto what the client
// can decode, downgrading rather than failing: AV1 falls back to HEVC
// when unsupported, and HEVC is assumed universal. The reported flag
// tells the caller a preference was not honored so it can warn.
func resolveCodec(cfg *config.ServerConfig, caps protocol.StreamingCapabilities) (uint32, bool) {
	switch cfg.Session.Codec {
	case "av1":
		if caps.AV1Encoding {
			return CodecAV1, false
		}
		return CodecHEVC, true
	case "hevc":
		return CodecHEVC, false
	default:
		return CodecH264, false
	}
}

// negotiateConfig derives a NegotiatedConfig from the server's session
// defaults and the client's advertised capabilities: resolution scales
// the client's default view size, the refresh rate is the supported
// rate closest to the server's preference (see pickRefreshRate), and
// feature flags require both sides to agree.
func negotiateConfig(cfg *config.ServerConfig, caps protocol.StreamingCapabilities) protocol.NegotiatedConfig {
	scale := cfg.Session.ResolutionScale
	if scale <= 0 {
		scale = 1
	}

	refreshRate := pickRefreshRate(caps.SupportedRefreshRates, cfg.Session.PreferredRefreshRate)

	return protocol.NegotiatedConfig{
		ViewResolution: protocol.UVec2{
			X: uint32(float64(caps.DefaultViewResolution.X) * scale),
			Y: uint32(float64(caps.DefaultViewResolution.Y) * scale),
		},
		RefreshRate:            refreshRate,
		GameAudioSampleRate:    cfg.Session.GameAudioSampleRate,
		EnableFoveatedEncoding: cfg.Session.EnableFoveatedEncoding && caps.FoveatedEncoding,
		EncodingGamma:          cfg.Session.EncodingGamma,
		EnableHDR:              cfg.Session.EnableHDR && caps.HDR,
		Wired:                  false,
	}
}

// pickRefreshRate selects the supported rate closest to preferred; a
// preference outside the supported set is honored as nearly as
// possible rather than failing the handshake.
func pickRefreshRate(supported []float32, preferred float32) float32 {
	best := preferred
	bestDiff := float32(math.MaxFloat32)
	for _, r := range supported {
		diff := r - preferred
		if diff < 0 {
			diff = -diff
		}
		if diff < bestDiff {
			bestDiff = diff
			best = r
		}
	}
	return best
}

// ClientHandshake drives the headset side, symmetric to ServerHandshake:
// announce capabilities, receive the negotiated config, wait for
// start-stream, and acknowledge with stream-ready.
func ClientHandshake(conn net.Conn, cfg *config.ClientConfig) (Session, error) {
	timeouts := config.DefaultTimeouts()

	result := protocol.ClientConnectionResult{
		Accepted:         true,
		ClientProtocolID: protocol.ProtocolID,
		DisplayName:      cfg.Client.DisplayName,
		ServerIP:         "",
		StreamingCapabilities: &protocol.StreamingCapabilities{
			DefaultViewResolution: protocol.UVec2{X: cfg.Capabilities.DefaultViewWidth, Y: cfg.Capabilities.DefaultViewHeight},
			SupportedRefreshRates: cfg.Capabilities.SupportedRefreshRates,
			MicSampleRate:         cfg.Capabilities.MicSampleRate,
			FoveatedEncoding:      cfg.Capabilities.FoveatedEncoding,
			HighProfileEncoding:   cfg.Capabilities.HighProfileEncoding,
			TenBitEncoding:        cfg.Capabilities.TenBitEncoding,
			AV1Encoding:           cfg.Capabilities.AV1Encoding,
			HDR:                   cfg.Capabilities.HDR,
		},
	}
	if err := protocol.WriteLengthPrefixed(conn, result.Encode()); err != nil {
		return Session{}, fmt.Errorf("orchestrator: sending client connection result: %w", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(timeouts.HandshakeAction)); err != nil {
		return Session{}, err
	}
	defer conn.SetReadDeadline(time.Time{})

	buf, err := protocol.ReadLengthPrefixed(conn)
	if err != nil {
		return Session{}, fmt.Errorf("orchestrator: reading stream config: %w", err)
	}
	streamCfg, err := protocol.DecodeStreamConfigPacket(buf)
	if err != nil {
		return Session{}, fmt.Errorf("orchestrator: decoding stream config: %w", err)
	}

	start, err := protocol.ReadControlPacket(conn)
	if err != nil {
		return Session{}, fmt.Errorf("orchestrator: waiting for start-stream: %w", err)
	}
	if start.Tag == protocol.TagRestarting {
		// Server persisted a changed driver config and is restarting its
		// driver; this pipeline ends here, mirroring ServerHandshake's
		// early return. The caller should surface SERVER_RESTART to the
		// HUD and loop back to discovery.
		return Session{Negotiated: streamCfg.Config}, ErrDriverRestartRequired
	}
	if start.Tag != protocol.TagStartStream {
		return Session{}, fmt.Errorf("orchestrator: expected start-stream, got tag %d", start.Tag)
	}

	if err := protocol.WriteControlPacket(conn, protocol.StreamReadyPacket()); err != nil {
		return Session{}, fmt.Errorf("orchestrator: sending stream-ready: %w", err)
	}

	return Session{
		ID:         streamCfg.SessionID,
		Negotiated: streamCfg.Config,
	}, nil
}
