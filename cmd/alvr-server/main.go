// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Command alvr-server runs the host-PC half of the streaming session:
// it accepts the headset's mTLS control connection, negotiates a
// stream configuration, and drives the per-role worker goroutines
// (tracking, video, audio, statistics, buttons) until the client
// disconnects.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/alvr-org/alvr-streamd/internal/audio"
	"github.com/alvr-org/alvr-streamd/internal/buttons"
	"github.com/alvr-org/alvr-streamd/internal/config"
	"github.com/alvr-org/alvr-streamd/internal/logging"
	"github.com/alvr-org/alvr-streamd/internal/orchestrator"
	"github.com/alvr-org/alvr-streamd/internal/pki"
	"github.com/alvr-org/alvr-streamd/internal/protocol"
	"github.com/alvr-org/alvr-streamd/internal/stream"
	"github.com/alvr-org/alvr-streamd/internal/telemetry"
	"github.com/alvr-org/alvr-streamd/internal/tracking"
)

func main() {
	configPath := flag.String("config", "/etc/alvr/server.yaml", "path to server config file")
	flag.Parse()

	cfg, err := config.LoadServerConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, closer := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	defer closer.Close()

	var live atomic.Pointer[config.ServerConfig]
	live.Store(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SIGHUP reloads session/audio/gesture/button tuning for the next
	// accepted connection without downtime; already-streaming
	// connections keep the config they negotiated with.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	go func() {
		for sig := range sigCh {
			if sig == syscall.SIGHUP {
				logger.Info("received SIGHUP, reloading config", "path", *configPath)
				newCfg, err := config.LoadServerConfig(*configPath)
				if err != nil {
					logger.Error("reload failed, keeping current config", "error", err)
					continue
				}
				live.Store(newCfg)
				logger.Info("config reloaded successfully")
				continue
			}
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			return
		}
	}()

	if err := run(ctx, &live, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, live *atomic.Pointer[config.ServerConfig], logger *slog.Logger) error {
	cfg := live.Load()
	tlsCfg, err := pki.NewServerTLSConfig(cfg.TLS.CACert, cfg.TLS.Cert, cfg.TLS.Key)
	if err != nil {
		return fmt.Errorf("building server tls config: %w", err)
	}

	listener, err := tls.Listen("tcp", cfg.Server.Listen, tlsCfg)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Server.Listen, err)
	}
	defer listener.Close()
	logger.Info("control channel listening", "addr", cfg.Server.Listen)

	store := orchestrator.NewDriverConfigStore(cfg.Persistence.DriverConfigFile)

	// Headsets that don't have this host configured find it by
	// broadcasting; the reply carries the control-channel address to
	// dial.
	if cfg.Discovery.BroadcastEnabled {
		_, portStr, err := net.SplitHostPort(cfg.Server.Listen)
		if err == nil {
			if port, perr := strconv.ParseUint(portStr, 10, 16); perr == nil {
				responder, rerr := orchestrator.NewBroadcastResponder(logger, uint16(port), []byte(cfg.Server.Listen))
				if rerr != nil {
					logger.Warn("discovery broadcast responder unavailable", "error", rerr)
				} else {
					defer responder.Close()
					go responder.Serve(ctx)
				}
			}
		}
	}

	// Manually configured headset addresses are probed on a schedule so
	// the operator can see from the logs when a known headset comes up,
	// even before it dials in.
	if len(cfg.Discovery.ManualClientIPs) > 0 {
		scheduler, err := orchestrator.NewDiscoveryScheduler(logger, cfg.Discovery.RetrySchedule, cfg.Discovery.ManualClientIPs,
			func(ctx context.Context, addr string) error {
				probe, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
				if err != nil {
					return err
				}
				return probe.Close()
			})
		if err != nil {
			logger.Warn("discovery scheduler unavailable", "error", err)
		} else {
			scheduler.Start()
			defer scheduler.Stop()
		}
	}

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("accept failed", "error", err)
			continue
		}
		go handleConnection(ctx, conn, live.Load(), store, logger)
	}
}

func handleConnection(ctx context.Context, conn net.Conn, cfg *config.ServerConfig, store *orchestrator.DriverConfigStore, logger *slog.Logger) {
	defer conn.Close()

	session, err := orchestrator.ServerHandshake(conn, cfg, store)
	if errors.Is(err, orchestrator.ErrDriverRestartRequired) {
		logger.Info("driver config changed, restarting driver instead of streaming", "remote", conn.RemoteAddr())
		// TODO: invoke the platform driver-restart hook once the OpenVR/OpenXR driver shim exists.
		return
	}
	if err != nil {
		logger.Warn("handshake failed", "error", err, "remote", conn.RemoteAddr())
		return
	}
	// Mirror this connection's lifecycle events into a dedicated
	// session log so one headset's history can be read in isolation.
	sessionLogger, sessionLogCloser, sessionLogPath, err := logging.NewSessionLogger(logger, cfg.Logging.SessionDir, session.PeerDisplayName, strconv.FormatUint(session.ID, 10))
	if err != nil {
		logger.Warn("session log unavailable, using process log only", "error", err)
	} else {
		logger = sessionLogger
		defer sessionLogCloser.Close()
	}
	logger.Info("client connected", "display_name", session.PeerDisplayName, "session_id", session.ID, "session_log", sessionLogPath)

	clientHost, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		logger.Error("resolving client stream address", "error", err)
		return
	}
	streamConn, err := openStreamTransport(cfg, clientHost)
	if err != nil {
		logger.Error("opening stream socket", "error", err)
		return
	}
	defer streamConn.Close()

	tuneStreamConn(streamConn, &cfg.Stream, logger)

	// An optional bandwidth cap paces every outgoing shard, keeping
	// the stream under the operator's network budget independent of
	// what the encoder produces.
	var transport io.ReadWriter = streamConn
	if cfg.Stream.BandwidthCapBytes > 0 {
		transport = struct {
			io.Reader
			io.Writer
		}{streamConn, stream.NewThrottledWriter(ctx, streamConn, int64(cfg.Stream.BandwidthCapBytes))}
	}

	sock := stream.NewSocket(transport, cfg.Stream.MaxPacketSize)
	defer sock.Close()

	micSampleRate := int(session.MicSampleRate)
	if micSampleRate == 0 {
		micSampleRate = 48000
	}
	// This ring resyncs the client's microphone stream, the direction
	// the server receives audio on; the game-audio stream the server
	// sends needs no ring since nothing here consumes it for playback.
	audioRing := audio.NewRing(1, micSampleRate, cfg.Audio.BatchMs, cfg.Audio.AverageBufferingMs)

	// The headset always reports touch-style physical inputs; the
	// emulated controller profile decides what the driver shim exposes
	// to the runtime.
	buttonMgr, ok := buttons.NewAutomaticForProfiles("touch", cfg.Buttons.EmulatedControllerProfile, buttons.DefaultAutoBindConfig())
	if !ok {
		logger.Warn("unknown emulated controller profile, passing buttons through unmapped", "profile", cfg.Buttons.EmulatedControllerProfile)
		buttonMgr = buttons.NewManual(nil)
	}

	connCtx := orchestrator.NewConnectionContext(logger, config.DefaultTimeouts(), conn, sock, session, audioRing, buttonMgr)
	connCtx.SetState(orchestrator.StateStreaming)
	defer connCtx.Close()

	monitor, err := telemetry.NewHostMonitor(logger, 2*time.Second)
	if err != nil {
		logger.Error("starting host monitor", "error", err)
		return
	}
	monitor.Start()
	defer monitor.Close()

	connICtx, cancel := context.WithCancel(ctx)
	defer cancel()

	headsetCfg := func() tracking.HeadsetConfig {
		return tracking.HeadsetConfig{
			ControllersEnabled:       cfg.Buttons.EmulatedControllerProfile != "",
			LinearVelocityCutoffDeg:  10,
			AngularVelocityCutoffDeg: 10,
		}
	}

	if session.CodecDowngraded {
		logger.Warn("preferred codec unsupported by client, downgraded", "preferred", cfg.Session.Codec, "codec", session.Codec)
	}
	if session.RefreshRateAdjusted {
		logger.Warn("preferred refresh rate unsupported by client, using nearest", "preferred", cfg.Session.PreferredRefreshRate, "refresh_rate", session.Negotiated.RefreshRate)
	}
	// The config NAL itself comes from the encoder pipeline once it
	// exists; an empty one still tells the client which codec to
	// prepare its decoder for.
	if err := connCtx.WriteControl(protocol.ControlPacket{Tag: protocol.TagDecoderConfig, Codec: session.Codec}); err != nil {
		logger.Warn("sending decoder config failed", "error", err)
	}

	go sock.RecvLoop()
	go orchestrator.RunKeepAliveSender(connICtx, connCtx)
	go orchestrator.RunStatisticsSender(connICtx, connCtx, 2*time.Second, monitor.EncodeLatest)
	go orchestrator.RunTrackingReceiver(connICtx, connCtx, headsetCfg)
	go orchestrator.RunAudioReceiver(connICtx, connCtx) // client microphone, resynced through audioRing
	go orchestrator.RunAudioSender(connICtx, connCtx, gameAudioSource)
	go orchestrator.RunVideoSender(connICtx, connCtx, videoFrameSource)

	if err := orchestrator.RunControlReceiver(connICtx, connCtx, func(entries []buttons.Entry) {
		var mapped []buttons.Entry
		for _, e := range entries {
			mapped = append(mapped, buttonMgr.MapButton(e)...)
		}
		if len(mapped) == 0 {
			return
		}
		// The mapped entries' sink is the emulated controller in the
		// OpenVR/OpenXR driver shim, which lives outside this module.
		logger.Debug("buttons mapped for emulated controller", "in", len(entries), "out", len(mapped))
	}); err != nil {
		logger.Info("connection ended", "error", err)
	}
}

// openStreamTransport establishes the shard transport toward the
// headset at clientHost. UDP connects the socket to the configured
// stream port at the headset's address (learned from the
// already-authenticated control connection) so the shard
// reader/writer can treat it as a plain
// io.ReadWriter; TCP instead accepts the headset's inbound dial,
// bounded by the configured accept timeout.
func openStreamTransport(cfg *config.ServerConfig, clientHost string) (net.Conn, error) {
	if cfg.Stream.Protocol == "tcp" {
		ln, err := net.ListenTCP("tcp", &net.TCPAddr{Port: int(cfg.Stream.Port)})
		if err != nil {
			return nil, fmt.Errorf("listening for stream connection: %w", err)
		}
		defer ln.Close()
		if err := ln.SetDeadline(time.Now().Add(time.Duration(cfg.Stream.AcceptTimeoutMs) * time.Millisecond)); err != nil {
			return nil, err
		}
		conn, err := ln.Accept()
		if err != nil {
			return nil, fmt.Errorf("accepting stream connection: %w", err)
		}
		return conn, nil
	}

	conn, err := net.DialUDP("udp",
		&net.UDPAddr{Port: int(cfg.Stream.Port)},
		&net.UDPAddr{IP: net.ParseIP(clientHost), Port: int(cfg.Stream.Port)})
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

// gameAudioSource stands in for the platform audio-device capture that
// mixes the running game's output; device enumeration and capture live
// outside this module. It reports silence at a steady cadence so the
// audio stream stays alive end to end.
func gameAudioSource(ctx context.Context) (samples []int16, hadLoss bool, err error) {
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case <-time.After(10 * time.Millisecond):
	}
	return make([]int16, 480*2), false, nil // 10ms @ 48kHz stereo
}

// videoFrameSource stands in for the GPU foveated-encode pipeline,
// which lives outside this module. It emits a zero-length IDR marker
// on a refresh-rate cadence so the video stream's framing and pacing
// can be exercised without a real encoder.
func videoFrameSource(ctx context.Context) (nal []byte, isIDR bool, err error) {
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case <-time.After(time.Second / 90):
	}
	return nil, true, nil
}
