// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package protocol implements the bincode-style binary encoding used for
// packet headers carried on every logical stream, and the tagged-union
// control packet exchanged on the always-TCP control channel.
package protocol

import "errors"

var (
	ErrTruncatedFrame = errors.New("protocol: truncated frame")
	ErrUnknownVariant = errors.New("protocol: unknown control packet variant")
	ErrStringTooLarge = errors.New("protocol: string length exceeds limit")
)

// ProtocolID identifies the wire-compatible handshake/control version.
// Bumped whenever a control packet variant's layout changes.
const ProtocolID uint64 = 7

// maxStringLen bounds the length prefix accepted for any bincode string
// field, guarding the reader against a corrupt or hostile length value
// turning into an enormous allocation.
const maxStringLen = 1 << 20
