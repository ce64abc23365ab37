// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package telemetry periodically samples host resource usage (CPU,
// memory, disk, load average) as the payload the host PC publishes on
// the statistics stream, so the headset HUD can surface encoder-host
// saturation without a side channel.
package telemetry

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// Snapshot holds one round of collected host metrics.
type Snapshot struct {
	CPUPercent       float64 `json:"cpu_percent"`
	MemoryPercent    float64 `json:"memory_percent"`
	DiskUsagePercent float64 `json:"disk_usage_percent"`
	LoadAverage1     float64 `json:"load_average_1"`
}

// HostMonitor collects Snapshot on a fixed interval and hands it to
// the statistics sender worker as a zstd-compressed JSON blob, keeping
// the statistics stream's bandwidth share far below video/audio's.
type HostMonitor struct {
	logger   *slog.Logger
	interval time.Duration
	encoder  *zstd.Encoder

	mu       sync.RWMutex
	snapshot Snapshot

	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewHostMonitor builds a monitor sampling every interval. Callers
// must call Close when done to release the zstd encoder.
func NewHostMonitor(logger *slog.Logger, interval time.Duration) (*HostMonitor, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("telemetry: creating zstd encoder: %w", err)
	}
	return &HostMonitor{
		logger:   logger.With("component", "host_monitor"),
		interval: interval,
		encoder:  enc,
		closeCh:  make(chan struct{}),
	}, nil
}

// Start begins periodic collection on its own goroutine.
func (m *HostMonitor) Start() {
	m.wg.Add(1)
	go m.run()
}

// Close stops collection and releases the zstd encoder.
func (m *HostMonitor) Close() {
	close(m.closeCh)
	m.wg.Wait()
	m.encoder.Close()
}

func (m *HostMonitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.collect()
	for {
		select {
		case <-m.closeCh:
			return
		case <-ticker.C:
			m.collect()
		}
	}
}

func (m *HostMonitor) collect() {
	var s Snapshot

	if percentages, err := cpu.Percent(0, false); err == nil && len(percentages) > 0 {
		s.CPUPercent = percentages[0]
	} else {
		m.logger.Debug("failed to collect cpu stats", "error", err)
	}

	if v, err := mem.VirtualMemory(); err == nil {
		s.MemoryPercent = v.UsedPercent
	} else {
		m.logger.Debug("failed to collect memory stats", "error", err)
	}

	if d, err := disk.Usage("/"); err == nil {
		s.DiskUsagePercent = d.UsedPercent
	} else {
		m.logger.Debug("failed to collect disk stats", "error", err)
	}

	if l, err := load.Avg(); err == nil {
		s.LoadAverage1 = l.Load1
	} else {
		m.logger.Debug("failed to collect load stats", "error", err)
	}

	m.mu.Lock()
	m.snapshot = s
	m.mu.Unlock()
}

// Latest returns the most recently collected snapshot.
func (m *HostMonitor) Latest() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// EncodeLatest returns the latest snapshot as zstd-compressed JSON,
// ready for StatisticsHeader framing.
func (m *HostMonitor) EncodeLatest() []byte {
	s := m.Latest()
	raw, err := json.Marshal(s)
	if err != nil {
		m.logger.Warn("failed to marshal host snapshot", "error", err)
		return nil
	}
	return m.encoder.EncodeAll(raw, nil)
}

// DecodeSnapshot reverses EncodeLatest on the receiving side.
func DecodeSnapshot(compressed []byte) (Snapshot, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("telemetry: creating zstd decoder: %w", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("telemetry: decompressing snapshot: %w", err)
	}

	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return Snapshot{}, fmt.Errorf("telemetry: unmarshaling snapshot: %w", err)
	}
	return s, nil
}
