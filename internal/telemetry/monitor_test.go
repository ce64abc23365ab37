// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package telemetry

import (
	"log/slog"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, nil))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestHostMonitorCollectsAndEncodes(t *testing.T) {
	m, err := NewHostMonitor(discardLogger(), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewHostMonitor: %v", err)
	}
	defer m.Close()

	m.Start()
	time.Sleep(100 * time.Millisecond)

	encoded := m.EncodeLatest()
	if len(encoded) == 0 {
		t.Fatal("expected non-empty encoded snapshot")
	}

	decoded, err := DecodeSnapshot(encoded)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if decoded.MemoryPercent < 0 || decoded.MemoryPercent > 100 {
		t.Errorf("unexpected memory percent: %v", decoded.MemoryPercent)
	}
}
