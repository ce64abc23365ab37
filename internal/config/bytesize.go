// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package config loads and validates the YAML configuration for the
// server (host PC) and client (headset) halves of the streaming
// session: negotiated stream defaults, recentering and gesture
// thresholds, button mapping profile, audio batch sizing, and mTLS
// control-channel credentials.
package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseByteSize converts human-readable sizes like "256mb", "1gb" into
// bytes. Accepts a bare integer as a byte count.
func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	type suffix struct {
		s string
		m int64
	}
	// Longest suffix first so "mb" isn't matched as "b".
	suffixes := []suffix{
		{"gb", 1024 * 1024 * 1024},
		{"mb", 1024 * 1024},
		{"kb", 1024},
		{"b", 1},
	}

	for _, sfx := range suffixes {
		if strings.HasSuffix(s, sfx.s) {
			numStr := strings.TrimSuffix(s, sfx.s)
			num, err := strconv.ParseInt(numStr, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid number %q: %w", numStr, err)
			}
			return num * sfx.m, nil
		}
	}

	num, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unknown size format %q", s)
	}
	return num, nil
}

// LoggingInfo configures the process-wide structured logger.
type LoggingInfo struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	SessionDir string `yaml:"session_dir"` // per-connection log mirror directory; "" disables
}

func (l *LoggingInfo) applyDefaults() {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "json"
	}
}

// TLSPair locates the mTLS material for one peer.
type TLSPair struct {
	CACert string `yaml:"ca_cert"`
	Cert   string `yaml:"cert"`
	Key    string `yaml:"key"`
}

func (t TLSPair) validate(who string) error {
	if t.CACert == "" {
		return fmt.Errorf("%s.tls.ca_cert is required", who)
	}
	if t.Cert == "" {
		return fmt.Errorf("%s.tls.cert is required", who)
	}
	if t.Key == "" {
		return fmt.Errorf("%s.tls.key is required", who)
	}
	return nil
}

// StreamTransportConfig is the configuration surface the stream socket
// recognizes: UDP or TCP, MTU-derived max_packet_size, socket buffer
// sizes, and DSCP marking.
type StreamTransportConfig struct {
	Protocol        string `yaml:"protocol"` // "udp" or "tcp"
	Port            uint16 `yaml:"port"`
	DSCP            string `yaml:"dscp"` // e.g. "EF", "AF41"; "" disables
	SendBuffer      string `yaml:"send_buffer"`
	RecvBuffer      string `yaml:"recv_buffer"`
	MaxPacketSize   uint32 `yaml:"max_packet_size"`
	AcceptTimeoutMs int    `yaml:"accept_timeout_ms"`
	BandwidthCap    string `yaml:"bandwidth_cap"` // bytes per second, e.g. "30mb"; "" disables

	SendBufferBytes   int `yaml:"-"`
	RecvBufferBytes   int `yaml:"-"`
	BandwidthCapBytes int `yaml:"-"`
}

func (t *StreamTransportConfig) applyDefaults() error {
	if t.Protocol == "" {
		t.Protocol = "udp"
	}
	t.Protocol = strings.ToLower(t.Protocol)
	if t.Protocol != "udp" && t.Protocol != "tcp" {
		return fmt.Errorf("stream.protocol must be udp or tcp, got %q", t.Protocol)
	}
	if t.Port == 0 {
		t.Port = 9944
	}
	if t.MaxPacketSize == 0 {
		t.MaxPacketSize = 1400 // common safe UDP MTU minus IP/UDP headers
	}
	if t.AcceptTimeoutMs <= 0 {
		t.AcceptTimeoutMs = 2000
	}
	if t.SendBuffer == "" {
		t.SendBuffer = "2mb"
	}
	if t.RecvBuffer == "" {
		t.RecvBuffer = "2mb"
	}
	sb, err := ParseByteSize(t.SendBuffer)
	if err != nil {
		return fmt.Errorf("stream.send_buffer: %w", err)
	}
	rb, err := ParseByteSize(t.RecvBuffer)
	if err != nil {
		return fmt.Errorf("stream.recv_buffer: %w", err)
	}
	t.SendBufferBytes = int(sb)
	t.RecvBufferBytes = int(rb)
	if t.BandwidthCap != "" {
		bc, err := ParseByteSize(t.BandwidthCap)
		if err != nil {
			return fmt.Errorf("stream.bandwidth_cap: %w", err)
		}
		t.BandwidthCapBytes = int(bc)
	}
	return nil
}

// AudioConfig configures the resync ring sizing.
type AudioConfig struct {
	BatchMs            int `yaml:"batch_ms"`
	AverageBufferingMs int `yaml:"average_buffering_ms"`
}

func (a *AudioConfig) applyDefaults() {
	if a.BatchMs <= 0 {
		a.BatchMs = 10
	}
	if a.AverageBufferingMs <= 0 {
		a.AverageBufferingMs = 50
	}
}

// RecenteringConfig selects the position/rotation recentering modes.
type RecenteringConfig struct {
	Position    string  `yaml:"position"` // disabled|local_floor|local
	ViewHeightM float64 `yaml:"view_height_m"`
	Rotation    string  `yaml:"rotation"` // disabled|yaw|tilted
}

func (r *RecenteringConfig) applyDefaults() {
	if r.Position == "" {
		r.Position = "local_floor"
	}
	if r.Rotation == "" {
		r.Rotation = "yaw"
	}
}

// GestureConfig configures the hand-gesture hysteresis timings, shared
// by both peers so client and server agree on feel even though
// recognition runs client-side against the raw skeleton.
type GestureConfig struct {
	RepeatDelayMs       int     `yaml:"repeat_delay_ms"`
	ActivationDelayMs   int     `yaml:"activation_delay_ms"`
	DeactivationDelayMs int     `yaml:"deactivation_delay_ms"`
	JoystickDeadzone    float64 `yaml:"joystick_deadzone"`
}

func (g *GestureConfig) applyDefaults() {
	if g.RepeatDelayMs <= 0 {
		g.RepeatDelayMs = 150
	}
	if g.ActivationDelayMs <= 0 {
		g.ActivationDelayMs = 50
	}
	if g.DeactivationDelayMs <= 0 {
		g.DeactivationDelayMs = 50
	}
	if g.JoystickDeadzone <= 0 {
		g.JoystickDeadzone = 0.1
	}
}

// ButtonMappingConfig names which controller emulation profile the
// button mapping manager should build automatic bindings toward.
type ButtonMappingConfig struct {
	EmulatedControllerProfile string `yaml:"emulated_controller_profile"` // e.g. "vive", "touch", "index"
}

func (b *ButtonMappingConfig) applyDefaults() {
	if b.EmulatedControllerProfile == "" {
		b.EmulatedControllerProfile = "vive"
	}
}
