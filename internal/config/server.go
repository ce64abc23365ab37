// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig is the host-PC-side configuration: listen address,
// session defaults it will negotiate down to what the client reports,
// and the discovery/control ambient stack.
type ServerConfig struct {
	Server      ServerListen          `yaml:"server"`
	TLS         TLSPair               `yaml:"tls"`
	Discovery   ServerDiscovery       `yaml:"discovery"`
	Session     SessionDefaults       `yaml:"session"`
	Stream      StreamTransportConfig `yaml:"stream"`
	Audio       AudioConfig           `yaml:"audio"`
	Recentering RecenteringConfig     `yaml:"recentering"`
	Gesture     GestureConfig         `yaml:"gesture"`
	Buttons     ButtonMappingConfig   `yaml:"buttons"`
	Persistence PersistenceConfig     `yaml:"persistence"`
	Logging     LoggingInfo           `yaml:"logging"`
}

// ServerListen is the control-channel TCP listen address.
type ServerListen struct {
	Listen string `yaml:"listen"`
}

// ServerDiscovery configures how the server looks for a client:
// broadcasting an announce response and/or dialing manual IPs on a
// cron-parsed retry schedule.
type ServerDiscovery struct {
	BroadcastEnabled bool     `yaml:"broadcast_enabled"`
	ManualClientIPs  []string `yaml:"manual_client_ips"`
	RetrySchedule    string   `yaml:"retry_schedule"` // cron expression, e.g. "@every 1s"
}

func (d *ServerDiscovery) applyDefaults() {
	if d.RetrySchedule == "" {
		d.RetrySchedule = "@every 1s"
	}
}

// SessionDefaults seeds the stream negotiation: what the server would
// prefer absent any client constraint.
type SessionDefaults struct {
	PreferredRefreshRate   float32 `yaml:"preferred_refresh_rate"`
	ResolutionScale        float64 `yaml:"resolution_scale"` // applied to the client's default view resolution
	Codec                  string  `yaml:"codec"`            // h264|hevc|av1
	EncoderProfile         string  `yaml:"encoder_profile"`
	Enable10Bit            bool    `yaml:"enable_10bit"`
	EnableHDR              bool    `yaml:"enable_hdr"`
	EnableFoveatedEncoding bool    `yaml:"enable_foveated_encoding"`
	EncodingGamma          float32 `yaml:"encoding_gamma"`
	GameAudioSampleRate    uint32  `yaml:"game_audio_sample_rate"`
}

func (s *SessionDefaults) applyDefaults() {
	if s.PreferredRefreshRate <= 0 {
		s.PreferredRefreshRate = 90
	}
	if s.ResolutionScale <= 0 {
		s.ResolutionScale = 1.0
	}
	if s.Codec == "" {
		s.Codec = "h264"
	}
	if s.EncoderProfile == "" {
		s.EncoderProfile = "high"
	}
	if s.EncodingGamma <= 0 {
		s.EncodingGamma = 1.0
	}
	if s.GameAudioSampleRate == 0 {
		s.GameAudioSampleRate = 48000
	}
}

// PersistenceConfig locates the on-disk record of the last-applied
// driver config, compared on every handshake to decide whether a
// driver restart is required.
type PersistenceConfig struct {
	DriverConfigFile string `yaml:"driver_config_file"`
}

func (p *PersistenceConfig) applyDefaults() {
	if p.DriverConfigFile == "" {
		p.DriverConfigFile = "driver-config.json"
	}
}

// LoadServerConfig reads and validates the server YAML at path.
func LoadServerConfig(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading server config: %w", err)
	}
	var cfg ServerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing server config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating server config: %w", err)
	}
	return &cfg, nil
}

func (c *ServerConfig) validate() error {
	if c.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if err := c.TLS.validate("server"); err != nil {
		return err
	}
	c.Discovery.applyDefaults()
	c.Session.applyDefaults()
	if err := c.Stream.applyDefaults(); err != nil {
		return err
	}
	c.Audio.applyDefaults()
	c.Recentering.applyDefaults()
	c.Gesture.applyDefaults()
	c.Buttons.applyDefaults()
	c.Persistence.applyDefaults()
	c.Logging.applyDefaults()
	return nil
}

// Timeouts collects the handshake and streaming pacing tunables;
// server and client share one set so both sides of the handshake agree
// on pacing without needing to negotiate it.
type Timeouts struct {
	HandshakeAction     time.Duration
	StreamingRecv       time.Duration
	KeepAliveInterval   time.Duration
	KeepAliveTimeout    time.Duration
	RetryConnectMin     time.Duration
	DiscoveryRetryPause time.Duration
}

// DefaultTimeouts returns the pacing both binaries ship with.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		HandshakeAction:     2 * time.Second,
		StreamingRecv:       500 * time.Millisecond,
		KeepAliveInterval:   1 * time.Second,
		KeepAliveTimeout:    5 * time.Second,
		RetryConnectMin:     1 * time.Second,
		DiscoveryRetryPause: 500 * time.Millisecond,
	}
}
