// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/alvr-org/alvr-streamd/internal/protocol"
)

// DriverConfigRecord is the on-disk shape of the last negotiated
// config applied to the virtual driver. The handshake compares the
// freshly negotiated config against this record to decide whether the
// driver needs restarting before streaming can resume.
type DriverConfigRecord struct {
	ViewWidth              uint32  `json:"view_width"`
	ViewHeight             uint32  `json:"view_height"`
	RefreshRate            float32 `json:"refresh_rate"`
	GameAudioSampleRate    uint32  `json:"game_audio_sample_rate"`
	EnableFoveatedEncoding bool    `json:"enable_foveated_encoding"`
	EnableHDR              bool    `json:"enable_hdr"`
}

func recordFromNegotiated(c protocol.NegotiatedConfig) DriverConfigRecord {
	return DriverConfigRecord{
		ViewWidth:              c.ViewResolution.X,
		ViewHeight:             c.ViewResolution.Y,
		RefreshRate:            c.RefreshRate,
		GameAudioSampleRate:    c.GameAudioSampleRate,
		EnableFoveatedEncoding: c.EnableFoveatedEncoding,
		EnableHDR:              c.EnableHDR,
	}
}

// DriverConfigStore persists DriverConfigRecord as JSON at a fixed
// path: load, compare, save, nothing else. This is the only state that
// survives across connections.
type DriverConfigStore struct {
	mu   sync.Mutex
	path string
}

// NewDriverConfigStore opens (without yet reading) the JSON record at path.
func NewDriverConfigStore(path string) *DriverConfigStore {
	return &DriverConfigStore{path: path}
}

// Load reads the persisted record. A missing file is not an error: it
// reports the zero record, which never equals a real negotiated
// config, forcing a restart on first connect.
func (s *DriverConfigStore) Load() (DriverConfigRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return DriverConfigRecord{}, nil
	}
	if err != nil {
		return DriverConfigRecord{}, fmt.Errorf("orchestrator: reading driver config record: %w", err)
	}
	var rec DriverConfigRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return DriverConfigRecord{}, fmt.Errorf("orchestrator: parsing driver config record: %w", err)
	}
	return rec, nil
}

// Save writes rec atomically enough for this single-writer use: write
// to a temp file in the same directory, then rename over the target.
func (s *DriverConfigStore) Save(rec DriverConfigRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("orchestrator: marshaling driver config record: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("orchestrator: writing driver config record: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("orchestrator: committing driver config record: %w", err)
	}
	return nil
}

// NeedsRestart reports whether negotiated differs from the persisted
// record, in which case the driver must restart before streaming.
func (s *DriverConfigStore) NeedsRestart(negotiated protocol.NegotiatedConfig) (bool, error) {
	prev, err := s.Load()
	if err != nil {
		return false, err
	}
	return prev != recordFromNegotiated(negotiated), nil
}
