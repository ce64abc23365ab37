// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Command alvr-client runs the headset-side half of the streaming
// session: it dials the host PC's control channel, announces its
// capabilities, and drives the per-role worker goroutines (tracking
// send, video/audio receive, haptics receive) until disconnected, then
// loops back to discovery.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/alvr-org/alvr-streamd/internal/audio"
	"github.com/alvr-org/alvr-streamd/internal/config"
	"github.com/alvr-org/alvr-streamd/internal/geom"
	"github.com/alvr-org/alvr-streamd/internal/gesture"
	"github.com/alvr-org/alvr-streamd/internal/logging"
	"github.com/alvr-org/alvr-streamd/internal/orchestrator"
	"github.com/alvr-org/alvr-streamd/internal/pki"
	"github.com/alvr-org/alvr-streamd/internal/protocol"
	"github.com/alvr-org/alvr-streamd/internal/stream"
	"github.com/alvr-org/alvr-streamd/internal/telemetry"
	"github.com/alvr-org/alvr-streamd/internal/tracking"
)

func main() {
	configPath := flag.String("config", "/etc/alvr/client.yaml", "path to client config file")
	flag.Parse()

	cfg, err := config.LoadClientConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, closer := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer closer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("client error", "error", err)
		os.Exit(1)
	}
}

// run loops between discovery and streaming: each iteration dials one
// manual host, handshakes, streams until disconnect or server restart,
// then pauses for the minimum reconnect interval before trying again.
func run(ctx context.Context, cfg *config.ClientConfig, logger *slog.Logger) error {
	timeouts := config.DefaultTimeouts()

	tlsCfg, err := pki.NewClientTLSConfig(cfg.TLS.CACert, cfg.TLS.Cert, cfg.TLS.Key)
	if err != nil {
		return fmt.Errorf("building client tls config: %w", err)
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		host := discoverOne(ctx, cfg, logger, timeouts.DiscoveryRetryPause)
		if host == "" {
			continue
		}

		if err := connectAndStream(ctx, host, cfg, tlsCfg, logger); err != nil {
			logger.Warn("session ended", "host", host, "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(timeouts.RetryConnectMin):
		}
	}
}

// discoverOne tries every configured manual host once and returns the
// first one that accepts a TCP dial (not yet TLS-authenticated). If
// none answers it waits for pause (or ctx cancellation) and returns an
// empty result, so the caller can retry straight away.
func discoverOne(ctx context.Context, cfg *config.ClientConfig, logger *slog.Logger, pause time.Duration) string {
	for _, host := range cfg.Discovery.ManualHosts {
		dialCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		conn, err := (&net.Dialer{}).DialContext(dialCtx, "tcp", host)
		cancel()
		if err != nil {
			logger.Debug("discovery dial failed", "host", host, "error", err)
			continue
		}
		conn.Close()
		return host
	}
	select {
	case <-ctx.Done():
	case <-time.After(pause):
	}
	return ""
}

func connectAndStream(ctx context.Context, host string, cfg *config.ClientConfig, tlsCfg *tls.Config, logger *slog.Logger) error {
	control, err := tls.Dial("tcp", host, tlsCfg)
	if err != nil {
		return fmt.Errorf("dialing control channel: %w", err)
	}
	defer control.Close()

	session, err := orchestrator.ClientHandshake(control, cfg)
	if errors.Is(err, orchestrator.ErrDriverRestartRequired) {
		logger.Info("server restarting its driver; returning to discovery", "host", host)
		return nil
	}
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	logger.Info("connected", "host", host, "session_id", session.ID, "view_resolution", session.Negotiated.ViewResolution)

	serverHost, _, err := net.SplitHostPort(host)
	if err != nil {
		return fmt.Errorf("resolving server stream address: %w", err)
	}
	streamConn, err := openStreamTransport(cfg, serverHost)
	if err != nil {
		return fmt.Errorf("opening stream socket: %w", err)
	}
	defer streamConn.Close()

	tuneStreamConn(streamConn, &cfg.Stream, logger)

	sock := stream.NewSocket(streamConn, cfg.Stream.MaxPacketSize)
	defer sock.Close()

	audioRing := audio.NewRing(2, int(session.Negotiated.GameAudioSampleRate), 10, 50)

	connCtx := orchestrator.NewConnectionContext(logger, config.DefaultTimeouts(), control, sock, session, audioRing, nil)
	connCtx.SetState(orchestrator.StateStreaming)
	defer connCtx.Close()

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go sock.RecvLoop()
	go orchestrator.RunKeepAliveSender(streamCtx, connCtx)
	go orchestrator.RunHapticsReceiver(streamCtx, connCtx, nil)
	go orchestrator.RunAudioReceiver(streamCtx, connCtx) // game audio, resynced through audioRing
	go orchestrator.RunAudioSender(streamCtx, connCtx, micAudioSource)
	go orchestrator.RunStatisticsReceiver(streamCtx, connCtx, func(sentAtNs int64, payload []byte) {
		snap, err := telemetry.DecodeSnapshot(payload)
		if err != nil {
			logger.Debug("undecodable host telemetry", "error", err)
			return
		}
		logger.Debug("host telemetry received",
			"latency_ms", float64(time.Now().UnixNano()-sentAtNs)/1e6,
			"host_cpu_percent", snap.CPUPercent,
			"host_memory_percent", snap.MemoryPercent)
	})
	go orchestrator.RunVideoReceiver(streamCtx, connCtx, func(header protocol.VideoHeader, nal []byte, hadLoss bool) {
		if hadLoss {
			logger.Debug("video frame gap detected, requesting IDR")
			_ = connCtx.WriteControl(protocol.RequestIdrPacket())
		}
		// Handing nal to the hardware decoder is out of scope here;
		// this layer only reassembles it.
	})
	go orchestrator.RunTrackingSender(streamCtx, connCtx, localTrackingSource)
	go orchestrator.RunGestureButtonEmitter(streamCtx, connCtx, tracking.HandRight, gestureConfig(cfg.Gesture), 10*time.Millisecond, localHandSkeletonSource)

	if err := orchestrator.RunControlReceiver(streamCtx, connCtx, nil); err != nil {
		return fmt.Errorf("control channel: %w", err)
	}
	return nil
}

// openStreamTransport establishes the shard transport toward the host.
// On UDP both peers bind the stream port and connect to the other's,
// so neither has to learn an ephemeral port over the control channel;
// on TCP the headset dials the host's stream listener.
func openStreamTransport(cfg *config.ClientConfig, serverHost string) (net.Conn, error) {
	if cfg.Stream.Protocol == "tcp" {
		return net.DialTimeout("tcp",
			net.JoinHostPort(serverHost, strconv.Itoa(int(cfg.Stream.Port))),
			time.Duration(cfg.Stream.AcceptTimeoutMs)*time.Millisecond)
	}
	conn, err := net.DialUDP("udp",
		&net.UDPAddr{Port: int(cfg.Stream.Port)},
		&net.UDPAddr{IP: net.ParseIP(serverHost), Port: int(cfg.Stream.Port)})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// bufferedConn is satisfied by *net.UDPConn and *net.TCPConn.
type bufferedConn interface {
	SetReadBuffer(int) error
	SetWriteBuffer(int) error
}

// tuneStreamConn applies the configured socket buffer sizes and DSCP
// marking; failures degrade to defaults with a warning.
func tuneStreamConn(conn net.Conn, cfg *config.StreamTransportConfig, logger *slog.Logger) {
	if bc, ok := conn.(bufferedConn); ok {
		if err := bc.SetReadBuffer(cfg.RecvBufferBytes); err != nil {
			logger.Warn("setting stream recv buffer failed", "error", err)
		}
		if err := bc.SetWriteBuffer(cfg.SendBufferBytes); err != nil {
			logger.Warn("setting stream send buffer failed", "error", err)
		}
	}

	if dscp, err := stream.ParseDSCP(cfg.DSCP); err != nil {
		logger.Warn("invalid dscp configuration", "error", err)
	} else if err := stream.ApplyDSCP(conn, dscp); err != nil {
		logger.Warn("applying dscp failed", "error", err)
	}
}

// micAudioSource stands in for the headset's microphone capture
// device, which lives outside this module. It reports silence at a
// steady cadence so the mic stream's framing and pacing can be
// exercised without real hardware.
func micAudioSource(ctx context.Context) (samples []int16, hadLoss bool, err error) {
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case <-time.After(10 * time.Millisecond):
	}
	return make([]int16, 480), false, nil // 10ms @ 48kHz mono
}

// localTrackingSource stands in for the OpenXR/OpenVR pose source,
// which lives outside this module's scope; it reports a stationary
// identity head pose so the tracking stream stays alive end to end.
func localTrackingSource(ctx context.Context) (orchestrator.TrackingSample, error) {
	select {
	case <-ctx.Done():
		return orchestrator.TrackingSample{}, ctx.Err()
	case <-time.After(5 * time.Millisecond):
	}
	motions := map[uint64]tracking.DeviceMotion{
		tracking.HeadID: {Pose: geom.PoseIdentity},
	}
	return orchestrator.BuildTrackingSample(time.Duration(time.Now().UnixNano()), motions, nil, nil), nil
}

// localHandSkeletonSource stands in for the headset's hand-tracking
// runtime; a resting identity skeleton keeps the gesture pipeline live
// without activating any gesture.
func localHandSkeletonSource() (tracking.HandSkeleton, bool) {
	var skeleton tracking.HandSkeleton
	for i := range skeleton {
		skeleton[i] = geom.PoseIdentity
		skeleton[i].Position = geom.Vec3{X: float32(i) * 0.02}
	}
	return skeleton, true
}

// gestureConfig fills the recognizer's distance model with its stock
// thresholds and takes the dwell timings from the operator config.
func gestureConfig(cfg config.GestureConfig) gesture.Config {
	return gesture.Config{
		PinchTouchDistanceCM: 2,
		PinchClickDistanceCM: 0.5,
		CurlTouchDistanceCM:  6,
		CurlClickDistanceCM:  3,
		ActivationDelay:      time.Duration(cfg.ActivationDelayMs) * time.Millisecond,
		DeactivationDelay:    time.Duration(cfg.DeactivationDelayMs) * time.Millisecond,
		RepeatDelay:          time.Duration(cfg.RepeatDelayMs) * time.Millisecond,
		JoystickDeadzone:     float32(cfg.JoystickDeadzone),
	}
}
