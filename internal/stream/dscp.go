// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package stream

import (
	"fmt"
	"net"
	"strings"
	"syscall"
)

// dscpValues maps DSCP names (RFC 2474/4594) to their 6-bit code
// point. The TOS byte a socket option actually wants is the code point
// shifted left two bits to leave room for the ECN field.
var dscpValues = map[string]int{
	"EF": 46,

	"AF11": 10, "AF12": 12, "AF13": 14,
	"AF21": 18, "AF22": 20, "AF23": 22,
	"AF31": 26, "AF32": 28, "AF33": 30,
	"AF41": 34, "AF42": 36, "AF43": 38,

	"CS0": 0, "CS1": 8, "CS2": 16, "CS3": 24,
	"CS4": 32, "CS5": 40, "CS6": 48, "CS7": 56,
}

// ParseDSCP converts a DSCP name ("AF41", "EF", ...) into its numeric
// code point. An empty name means DSCP marking is disabled and returns
// (0, nil).
func ParseDSCP(name string) (int, error) {
	name = strings.TrimSpace(strings.ToUpper(name))
	if name == "" {
		return 0, nil
	}
	val, ok := dscpValues[name]
	if !ok {
		return 0, fmt.Errorf("stream: unknown DSCP value %q (valid: EF, AF11..AF43, CS0..CS7)", name)
	}
	return val, nil
}

// syscallConn is satisfied by *net.TCPConn and *net.UDPConn, the two
// transports Socket wraps.
type syscallConn interface {
	SyscallConn() (syscall.RawConn, error)
}

// ApplyDSCP marks every outgoing packet on conn with the given DSCP
// code point, so a downstream router can prioritize video/audio
// shards over statistics traffic. dscp == 0 is a no-op.
func ApplyDSCP(conn net.Conn, dscp int) error {
	if dscp == 0 {
		return nil
	}

	sc, ok := conn.(syscallConn)
	if !ok {
		return fmt.Errorf("stream: cannot apply DSCP: conn is %T, not a raw-capable socket", conn)
	}

	rawConn, err := sc.SyscallConn()
	if err != nil {
		return fmt.Errorf("stream: getting raw conn for DSCP: %w", err)
	}

	tos := dscp << 2

	var sysErr error
	if err := rawConn.Control(func(fd uintptr) {
		sysErr = syscall.SetsockoptInt(int(fd), syscall.IPPROTO_IP, syscall.IP_TOS, tos)
	}); err != nil {
		return fmt.Errorf("stream: control fd for DSCP: %w", err)
	}
	if sysErr != nil {
		return fmt.Errorf("stream: setsockopt IP_TOS=%d: %w", tos, sysErr)
	}
	return nil
}
