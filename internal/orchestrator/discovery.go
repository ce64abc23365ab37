// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/robfig/cron/v3"
)

func newCronLogger(logger *slog.Logger) cron.Logger {
	return cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))
}

// DiscoveryScheduler retries connecting to a closed set of manually
// configured peer addresses on a cron schedule, for dialing a
// headset/host that hasn't appeared on the network yet. The schedule
// expression is operator-tunable, hence cron rather than a plain
// ticker.
type DiscoveryScheduler struct {
	cron     *cron.Cron
	logger   *slog.Logger
	dial     func(ctx context.Context, addr string) error
	addrs    []string
	attempts map[string]int
}

// NewDiscoveryScheduler builds a scheduler that calls dial for each of
// addrs on every tick of schedule (a cron expression, e.g. "@every 1s").
func NewDiscoveryScheduler(logger *slog.Logger, schedule string, addrs []string, dial func(ctx context.Context, addr string) error) (*DiscoveryScheduler, error) {
	c := cron.New(cron.WithLogger(newCronLogger(logger)))
	s := &DiscoveryScheduler{cron: c, logger: logger, dial: dial, addrs: addrs, attempts: make(map[string]int)}

	_, err := c.AddFunc(schedule, s.tick)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: parsing discovery schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *DiscoveryScheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, addr := range s.addrs {
		s.attempts[addr]++
		if err := s.dial(ctx, addr); err != nil {
			s.logger.Debug("discovery dial failed", "addr", addr, "attempt", s.attempts[addr], "error", err)
			continue
		}
		s.logger.Info("discovery dial succeeded", "addr", addr)
	}
}

// Start begins the cron schedule; it returns immediately, ticking on
// its own goroutine until Stop is called.
func (s *DiscoveryScheduler) Start() { s.cron.Start() }

// Stop halts the schedule, waiting for any in-flight tick to finish.
func (s *DiscoveryScheduler) Stop() { <-s.cron.Stop().Done() }

// BroadcastResponder answers UDP broadcast discovery probes from
// clients that don't have the server's address configured, replying
// with the server's own control-channel address.
type BroadcastResponder struct {
	conn   *net.UDPConn
	logger *slog.Logger
	reply  []byte
}

// NewBroadcastResponder opens a UDP listener on port and prepares it
// to answer any datagram with replyPayload (typically the server's
// control-channel address, encoded by the caller).
func NewBroadcastResponder(logger *slog.Logger, port uint16, replyPayload []byte) (*BroadcastResponder, error) {
	addr := &net.UDPAddr{Port: int(port)}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: listening for discovery broadcasts: %w", err)
	}
	return &BroadcastResponder{conn: conn, logger: logger, reply: replyPayload}, nil
}

// Serve answers broadcast probes until ctx is canceled or the socket
// errors.
func (b *BroadcastResponder) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		b.conn.Close()
	}()

	buf := make([]byte, 1500)
	for {
		_, from, err := b.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("orchestrator: reading discovery broadcast: %w", err)
		}
		if _, err := b.conn.WriteToUDP(b.reply, from); err != nil {
			b.logger.Warn("discovery reply failed", "to", from, "error", err)
		}
	}
}

// Close releases the broadcast listener.
func (b *BroadcastResponder) Close() error { return b.conn.Close() }
