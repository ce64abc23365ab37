// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ClientConfig is the headset-side configuration: who to announce to,
// what hardware capabilities to advertise, and the ambient stack
// (TLS, logging, recentering/gesture feel).
type ClientConfig struct {
	Client       ClientIdentity           `yaml:"client"`
	Discovery    ClientDiscovery          `yaml:"discovery"`
	TLS          TLSPair                  `yaml:"tls"`
	Stream       StreamTransportConfig    `yaml:"stream"`
	Capabilities ClientCapabilitiesConfig `yaml:"capabilities"`
	Recentering  RecenteringConfig        `yaml:"recentering"`
	Gesture      GestureConfig            `yaml:"gesture"`
	Buttons      ButtonMappingConfig      `yaml:"buttons"`
	Logging      LoggingInfo              `yaml:"logging"`
}

// ClientIdentity names the headset for logs and the server's display.
type ClientIdentity struct {
	DisplayName string `yaml:"display_name"`
}

// ClientDiscovery lists how the client finds a server: the manual
// host:port entries it dials. ListenForBroadcast is parsed from the
// file, but cmd/alvr-client does not read it and starts no broadcast
// listener.
type ClientDiscovery struct {
	ManualHosts        []string `yaml:"manual_hosts"`
	ListenForBroadcast bool     `yaml:"listen_for_broadcast"`
}

// ClientCapabilitiesConfig is the headset's advertised hardware
// ceiling; mirrors protocol.StreamingCapabilities field-for-field so
// it can be copied into the handshake message without translation.
type ClientCapabilitiesConfig struct {
	DefaultViewWidth      uint32    `yaml:"default_view_width"`
	DefaultViewHeight     uint32    `yaml:"default_view_height"`
	SupportedRefreshRates []float32 `yaml:"supported_refresh_rates"`
	MicSampleRate         uint32    `yaml:"mic_sample_rate"`
	FoveatedEncoding      bool      `yaml:"foveated_encoding"`
	HighProfileEncoding   bool      `yaml:"high_profile_encoding"`
	TenBitEncoding        bool      `yaml:"ten_bit_encoding"`
	AV1Encoding           bool      `yaml:"av1_encoding"`
	HDR                   bool      `yaml:"hdr"`
}

func (c *ClientCapabilitiesConfig) applyDefaults() {
	if c.DefaultViewWidth == 0 {
		c.DefaultViewWidth = 1832
	}
	if c.DefaultViewHeight == 0 {
		c.DefaultViewHeight = 1920
	}
	if len(c.SupportedRefreshRates) == 0 {
		c.SupportedRefreshRates = []float32{72, 80, 90, 120}
	}
	if c.MicSampleRate == 0 {
		c.MicSampleRate = 48000
	}
}

// LoadClientConfig reads and validates the client YAML at path.
func LoadClientConfig(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading client config: %w", err)
	}
	var cfg ClientConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing client config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating client config: %w", err)
	}
	return &cfg, nil
}

func (c *ClientConfig) validate() error {
	if c.Client.DisplayName == "" {
		return fmt.Errorf("client.display_name is required")
	}
	if err := c.TLS.validate("client"); err != nil {
		return err
	}
	if err := c.Stream.applyDefaults(); err != nil {
		return err
	}
	c.Capabilities.applyDefaults()
	c.Recentering.applyDefaults()
	c.Gesture.applyDefaults()
	c.Buttons.applyDefaults()
	c.Logging.applyDefaults()
	return nil
}
