// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoadServerConfigDefaults(t *testing.T) {
	path := writeTempConfig(t, `
server:
  listen: "0.0.0.0:9943"
tls:
  ca_cert: ca.pem
  cert: server.pem
  key: server-key.pem
`)
	cfg, err := LoadServerConfig(path)
	if err != nil {
		t.Fatalf("LoadServerConfig: %v", err)
	}
	if cfg.Session.PreferredRefreshRate != 90 {
		t.Errorf("expected default refresh rate 90, got %v", cfg.Session.PreferredRefreshRate)
	}
	if cfg.Stream.Protocol != "udp" {
		t.Errorf("expected default protocol udp, got %q", cfg.Stream.Protocol)
	}
	if cfg.Audio.BatchMs != 10 || cfg.Audio.AverageBufferingMs != 50 {
		t.Errorf("unexpected audio defaults: %+v", cfg.Audio)
	}
	if cfg.Discovery.RetrySchedule != "@every 1s" {
		t.Errorf("unexpected discovery default: %q", cfg.Discovery.RetrySchedule)
	}
}

func TestLoadServerConfigMissingTLS(t *testing.T) {
	path := writeTempConfig(t, `
server:
  listen: "0.0.0.0:9943"
`)
	if _, err := LoadServerConfig(path); err == nil {
		t.Fatal("expected validation error for missing tls block")
	}
}

func TestLoadClientConfigDefaults(t *testing.T) {
	path := writeTempConfig(t, `
client:
  display_name: "Quest 3"
tls:
  ca_cert: ca.pem
  cert: client.pem
  key: client-key.pem
`)
	cfg, err := LoadClientConfig(path)
	if err != nil {
		t.Fatalf("LoadClientConfig: %v", err)
	}
	if cfg.Capabilities.MicSampleRate != 48000 {
		t.Errorf("unexpected mic sample rate default: %v", cfg.Capabilities.MicSampleRate)
	}
	if len(cfg.Capabilities.SupportedRefreshRates) == 0 {
		t.Error("expected default supported refresh rates")
	}
}

func TestParseByteSize(t *testing.T) {
	cases := map[string]int64{
		"256mb": 256 * 1024 * 1024,
		"1gb":   1024 * 1024 * 1024,
		"512kb": 512 * 1024,
		"100":   100,
	}
	for in, want := range cases {
		got, err := ParseByteSize(in)
		if err != nil {
			t.Fatalf("ParseByteSize(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseByteSize(%q) = %d, want %d", in, got, want)
		}
	}
	if _, err := ParseByteSize("not-a-size"); err == nil {
		t.Error("expected error for invalid size")
	}
}

func TestDefaultTimeouts(t *testing.T) {
	to := DefaultTimeouts()
	if to.KeepAliveTimeout <= to.KeepAliveInterval {
		t.Error("keepalive timeout should exceed the keepalive interval")
	}
}
