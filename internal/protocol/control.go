// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// ControlTag identifies the active variant of a ControlPacket. Encoded
// as a bincode-style u32 ahead of the variant's payload.
type ControlTag uint32

const (
	TagStartStream ControlTag = iota
	TagStreamReady
	TagKeepAlive
	TagRestarting
	TagDecoderConfig
	TagRequestIdr
	TagViewsConfig
	TagBattery
	TagButtons
	TagPlayspaceSync
	TagVideoErrorReport
	TagReserved
	TagLog
)

// ButtonEntry is one source-side button event carried in a Buttons
// control packet: a path identifying the physical control, and either
// a binary or scalar value.
type ButtonEntry struct {
	PathID uint64
	Binary bool    // discriminates which of the two fields below is valid
	Bool   bool
	Scalar float32
}

func (b ButtonEntry) encode(e *Encoder) {
	e.PutU64(b.PathID)
	e.PutBool(b.Binary)
	if b.Binary {
		e.PutBool(b.Bool)
	} else {
		e.PutF32(b.Scalar)
	}
}

func decodeButtonEntry(d *Decoder) (ButtonEntry, error) {
	var b ButtonEntry
	var err error
	if b.PathID, err = d.GetU64(); err != nil {
		return b, err
	}
	if b.Binary, err = d.GetBool(); err != nil {
		return b, err
	}
	if b.Binary {
		if b.Bool, err = d.GetBool(); err != nil {
			return b, err
		}
	} else {
		if b.Scalar, err = d.GetF32(); err != nil {
			return b, err
		}
	}
	return b, nil
}

// LogLevel mirrors the severity tiers the client HUD distinguishes.
type LogLevel uint32

const (
	LogError LogLevel = iota
	LogWarn
	LogInfo
	LogDebug
)

// Vec2 is a plain 2D vector, used for PlayspaceSync bounds.
type Vec2 struct{ X, Y float32 }

// ControlPacket is the tagged union exchanged on the control stream
// after the handshake completes. Exactly one of the typed fields below
// is meaningful, selected by Tag.
type ControlPacket struct {
	Tag ControlTag

	// DecoderConfig
	Codec     uint32
	ConfigNAL []byte

	// ViewsConfig
	IPDMeters float32
	FovLeft   [4]float32 // left, right, top, bottom, per eye; right eye mirrors left
	FovRight  [4]float32

	// Battery
	DeviceID  uint64
	Gauge     float32
	IsPlugged bool

	// Buttons
	Buttons []ButtonEntry

	// PlayspaceSync
	PlayspaceBounds *Vec2 // nil encodes as Option::None

	// Reserved
	ReservedPayload string

	// Log
	Level   LogLevel
	Message string
}

// StartStream builds a zero-payload StartStream packet.
func StartStream() ControlPacket { return ControlPacket{Tag: TagStartStream} }

// StreamReadyPacket builds a zero-payload StreamReady packet.
func StreamReadyPacket() ControlPacket { return ControlPacket{Tag: TagStreamReady} }

// KeepAlivePacket builds a zero-payload KeepAlive packet.
func KeepAlivePacket() ControlPacket { return ControlPacket{Tag: TagKeepAlive} }

// RestartingPacket builds a zero-payload Restarting packet.
func RestartingPacket() ControlPacket { return ControlPacket{Tag: TagRestarting} }

// RequestIdrPacket builds a zero-payload RequestIdr packet.
func RequestIdrPacket() ControlPacket { return ControlPacket{Tag: TagRequestIdr} }

// VideoErrorReportPacket builds a zero-payload VideoErrorReport packet.
func VideoErrorReportPacket() ControlPacket { return ControlPacket{Tag: TagVideoErrorReport} }

// Encode serializes the packet's active variant as bincode-style
// little-endian bytes, tag first.
func (p ControlPacket) Encode() []byte {
	e := NewEncoder(32)
	e.PutU32(uint32(p.Tag))
	switch p.Tag {
	case TagStartStream, TagStreamReady, TagKeepAlive, TagRestarting, TagRequestIdr, TagVideoErrorReport:
		// no payload
	case TagDecoderConfig:
		e.PutU32(p.Codec)
		e.PutU64(uint64(len(p.ConfigNAL)))
		e.PutBytes(p.ConfigNAL)
	case TagViewsConfig:
		e.PutF32(p.IPDMeters)
		for _, v := range p.FovLeft {
			e.PutF32(v)
		}
		for _, v := range p.FovRight {
			e.PutF32(v)
		}
	case TagBattery:
		e.PutU64(p.DeviceID)
		e.PutF32(p.Gauge)
		e.PutBool(p.IsPlugged)
	case TagButtons:
		e.PutU64(uint64(len(p.Buttons)))
		for _, b := range p.Buttons {
			b.encode(e)
		}
	case TagPlayspaceSync:
		e.PutOptionSome(p.PlayspaceBounds != nil)
		if p.PlayspaceBounds != nil {
			e.PutF32(p.PlayspaceBounds.X)
			e.PutF32(p.PlayspaceBounds.Y)
		}
	case TagReserved:
		e.PutString(p.ReservedPayload)
	case TagLog:
		e.PutU32(uint32(p.Level))
		e.PutString(p.Message)
	}
	return e.Bytes()
}

// DecodeControlPacket parses a ControlPacket from buf, which must hold
// exactly one encoded packet (no trailing bytes are expected, but
// extras are silently ignored to tolerate future additive fields).
func DecodeControlPacket(buf []byte) (ControlPacket, error) {
	d := NewDecoder(buf)
	tagRaw, err := d.GetU32()
	if err != nil {
		return ControlPacket{}, err
	}
	tag := ControlTag(tagRaw)
	p := ControlPacket{Tag: tag}

	switch tag {
	case TagStartStream, TagStreamReady, TagKeepAlive, TagRestarting, TagRequestIdr, TagVideoErrorReport:
		// no payload
	case TagDecoderConfig:
		if p.Codec, err = d.GetU32(); err != nil {
			return p, err
		}
		n, err := d.GetU64()
		if err != nil {
			return p, err
		}
		nal, err := d.GetBytes(int(n))
		if err != nil {
			return p, err
		}
		p.ConfigNAL = append([]byte(nil), nal...)
	case TagViewsConfig:
		if p.IPDMeters, err = d.GetF32(); err != nil {
			return p, err
		}
		for i := range p.FovLeft {
			if p.FovLeft[i], err = d.GetF32(); err != nil {
				return p, err
			}
		}
		for i := range p.FovRight {
			if p.FovRight[i], err = d.GetF32(); err != nil {
				return p, err
			}
		}
	case TagBattery:
		if p.DeviceID, err = d.GetU64(); err != nil {
			return p, err
		}
		if p.Gauge, err = d.GetF32(); err != nil {
			return p, err
		}
		if p.IsPlugged, err = d.GetBool(); err != nil {
			return p, err
		}
	case TagButtons:
		n, err := d.GetU64()
		if err != nil {
			return p, err
		}
		p.Buttons = make([]ButtonEntry, 0, n)
		for i := uint64(0); i < n; i++ {
			b, err := decodeButtonEntry(d)
			if err != nil {
				return p, err
			}
			p.Buttons = append(p.Buttons, b)
		}
	case TagPlayspaceSync:
		some, err := d.GetBool()
		if err != nil {
			return p, err
		}
		if some {
			var v Vec2
			if v.X, err = d.GetF32(); err != nil {
				return p, err
			}
			if v.Y, err = d.GetF32(); err != nil {
				return p, err
			}
			p.PlayspaceBounds = &v
		}
	case TagReserved:
		if p.ReservedPayload, err = d.GetString(); err != nil {
			return p, err
		}
	case TagLog:
		lvl, err := d.GetU32()
		if err != nil {
			return p, err
		}
		p.Level = LogLevel(lvl)
		if p.Message, err = d.GetString(); err != nil {
			return p, err
		}
	default:
		return p, fmt.Errorf("%w: %d", ErrUnknownVariant, tag)
	}
	return p, nil
}

// WriteControlPacket frames p as a u32 little-endian length prefix
// followed by its bincode encoding, the format expected on the
// always-TCP control socket (distinct from the shard-framed logical
// streams, which use their own big-endian length prefix).
func WriteControlPacket(w io.Writer, p ControlPacket) error {
	payload := p.Encode()
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("protocol: writing control packet length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("protocol: writing control packet body: %w", err)
	}
	return nil
}

// ReadControlPacket reads one length-prefixed ControlPacket from r.
func ReadControlPacket(r io.Reader) (ControlPacket, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return ControlPacket{}, fmt.Errorf("protocol: reading control packet length: %w", err)
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > maxStringLen {
		return ControlPacket{}, fmt.Errorf("%w: control packet length %d", ErrStringTooLarge, n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return ControlPacket{}, fmt.Errorf("protocol: reading control packet body: %w", err)
	}
	return DecodeControlPacket(payload)
}
