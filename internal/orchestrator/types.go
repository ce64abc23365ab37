// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package orchestrator implements the connection lifecycle:
// the control-channel handshake state machine, per-role streaming
// worker goroutines, discovery/retry scheduling, and the on-disk
// driver-config persistence that decides whether a driver restart is
// required across reconnects.
package orchestrator

import (
	"log/slog"
	"net"
	"sync"

	"github.com/alvr-org/alvr-streamd/internal/audio"
	"github.com/alvr-org/alvr-streamd/internal/buttons"
	"github.com/alvr-org/alvr-streamd/internal/config"
	"github.com/alvr-org/alvr-streamd/internal/gesture"
	"github.com/alvr-org/alvr-streamd/internal/protocol"
	"github.com/alvr-org/alvr-streamd/internal/stream"
	"github.com/alvr-org/alvr-streamd/internal/tracking"
)

// LifecycleState is the coarse connection state surfaced to logging
// and the discovery scheduler: whether a session is worth retrying
// discovery for, or already owns a live streaming connection.
type LifecycleState int

const (
	StateIdle LifecycleState = iota
	StateHandshaking
	StateStreaming
	StateDisconnected
)

func (s LifecycleState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHandshaking:
		return "handshaking"
	case StateStreaming:
		return "streaming"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Session is the result of a completed handshake: the identifiers and
// negotiated parameters every worker goroutine needs.
type Session struct {
	ID                    uint64
	Negotiated            protocol.NegotiatedConfig
	Codec                 uint32 // wire codec id for DecoderConfig
	CodecDowngraded       bool   // the server's preferred codec was not honored
	RefreshRateAdjusted   bool   // the client had no exact match for the preferred refresh rate
	DriverRestartRequired bool
	PeerDisplayName       string
	MicSampleRate         uint32 // client-advertised mic rate, for sizing the server's mic resync ring
}

// ConnectionContext bundles everything a streaming connection's worker
// goroutines share: the shard-multiplexed transport, the always-on
// control channel, and the per-connection component instances the
// other C-modules own. One ConnectionContext exists per live peer
// connection; it does not outlive a disconnect.
type ConnectionContext struct {
	Logger   *slog.Logger
	Timeouts config.Timeouts

	Control net.Conn       // persistent TLS control-channel connection
	Sock    *stream.Socket // shard-multiplexed UDP/TCP transport

	Tracking *tracking.Manager
	Gestures *gesture.Manager
	Buttons  *buttons.Manager
	Audio    *audio.Ring

	Session Session

	controlWriteMu sync.Mutex

	mu    sync.Mutex
	state LifecycleState
}

// NewConnectionContext wires the per-connection component set for a
// just-completed handshake.
func NewConnectionContext(logger *slog.Logger, timeouts config.Timeouts, control net.Conn, sock *stream.Socket, session Session, audioRing *audio.Ring, buttonMgr *buttons.Manager) *ConnectionContext {
	return &ConnectionContext{
		Logger:   logger,
		Timeouts: timeouts,
		Control:  control,
		Sock:     sock,
		Tracking: tracking.NewManager(),
		Gestures: gesture.NewManager(),
		Buttons:  buttonMgr,
		Audio:    audioRing,
		Session:  session,
		state:    StateHandshaking,
	}
}

// WriteControl serializes concurrent control-packet writes (keepalive,
// button forwarding, IDR requests all share the one control conn) so a
// packet's length prefix and body are never interleaved on the wire.
func (cc *ConnectionContext) WriteControl(pkt protocol.ControlPacket) error {
	cc.controlWriteMu.Lock()
	defer cc.controlWriteMu.Unlock()
	return protocol.WriteControlPacket(cc.Control, pkt)
}

// SetState transitions the connection's lifecycle state, logging the
// change at debug level.
func (cc *ConnectionContext) SetState(s LifecycleState) {
	cc.mu.Lock()
	prev := cc.state
	cc.state = s
	cc.mu.Unlock()
	if cc.Logger != nil && prev != s {
		cc.Logger.Debug("connection state transition", "from", prev.String(), "to", s.String())
	}
}

// State reports the connection's current lifecycle state.
func (cc *ConnectionContext) State() LifecycleState {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.state
}

// Close tears down the control connection and stream socket. Safe to
// call more than once.
func (cc *ConnectionContext) Close() {
	cc.SetState(StateDisconnected)
	if cc.Sock != nil {
		cc.Sock.Close()
	}
	if cc.Control != nil {
		cc.Control.Close()
	}
}
