// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

import (
	"fmt"
	"io"
)

// UVec2 is an unsigned 2D resolution or offset.
type UVec2 struct{ X, Y uint32 }

// StreamingCapabilities is the client's advertised hardware/software
// ceiling, sent as part of ClientConnectionResult.
type StreamingCapabilities struct {
	DefaultViewResolution UVec2
	SupportedRefreshRates []float32
	MicSampleRate         uint32
	FoveatedEncoding      bool
	HighProfileEncoding   bool
	TenBitEncoding        bool
	AV1Encoding           bool
	HDR                   bool
}

func (c StreamingCapabilities) encode(e *Encoder) {
	e.PutU32(c.DefaultViewResolution.X)
	e.PutU32(c.DefaultViewResolution.Y)
	e.PutU64(uint64(len(c.SupportedRefreshRates)))
	for _, r := range c.SupportedRefreshRates {
		e.PutF32(r)
	}
	e.PutU32(c.MicSampleRate)
	e.PutBool(c.FoveatedEncoding)
	e.PutBool(c.HighProfileEncoding)
	e.PutBool(c.TenBitEncoding)
	e.PutBool(c.AV1Encoding)
	e.PutBool(c.HDR)
}

func decodeStreamingCapabilities(d *Decoder) (StreamingCapabilities, error) {
	var c StreamingCapabilities
	var err error
	if c.DefaultViewResolution.X, err = d.GetU32(); err != nil {
		return c, err
	}
	if c.DefaultViewResolution.Y, err = d.GetU32(); err != nil {
		return c, err
	}
	n, err := d.GetU64()
	if err != nil {
		return c, err
	}
	c.SupportedRefreshRates = make([]float32, 0, n)
	for i := uint64(0); i < n; i++ {
		r, err := d.GetF32()
		if err != nil {
			return c, err
		}
		c.SupportedRefreshRates = append(c.SupportedRefreshRates, r)
	}
	if c.MicSampleRate, err = d.GetU32(); err != nil {
		return c, err
	}
	if c.FoveatedEncoding, err = d.GetBool(); err != nil {
		return c, err
	}
	if c.HighProfileEncoding, err = d.GetBool(); err != nil {
		return c, err
	}
	if c.TenBitEncoding, err = d.GetBool(); err != nil {
		return c, err
	}
	if c.AV1Encoding, err = d.GetBool(); err != nil {
		return c, err
	}
	if c.HDR, err = d.GetBool(); err != nil {
		return c, err
	}
	return c, nil
}

// ClientConnectionResult is the client's reply to the server's accept,
// either carrying full capabilities (ConnectionAccepted) or declining
// to stream yet (ClientStandby, e.g. headset asleep).
type ClientConnectionResult struct {
	Accepted              bool
	ClientProtocolID      uint64
	DisplayName           string
	ServerIP              string
	StreamingCapabilities *StreamingCapabilities // present only when Accepted
}

// Encode serializes the result as a one-byte discriminant followed by
// the accepted-variant fields, or nothing for standby.
func (r ClientConnectionResult) Encode() []byte {
	e := NewEncoder(64)
	e.PutBool(r.Accepted)
	if !r.Accepted {
		return e.Bytes()
	}
	e.PutU64(r.ClientProtocolID)
	e.PutString(r.DisplayName)
	e.PutString(r.ServerIP)
	e.PutOptionSome(r.StreamingCapabilities != nil)
	if r.StreamingCapabilities != nil {
		r.StreamingCapabilities.encode(e)
	}
	return e.Bytes()
}

// DecodeClientConnectionResult parses the wire form Encode produces.
func DecodeClientConnectionResult(buf []byte) (ClientConnectionResult, error) {
	d := NewDecoder(buf)
	var r ClientConnectionResult
	var err error
	if r.Accepted, err = d.GetBool(); err != nil {
		return r, err
	}
	if !r.Accepted {
		return r, nil
	}
	if r.ClientProtocolID, err = d.GetU64(); err != nil {
		return r, err
	}
	if r.DisplayName, err = d.GetString(); err != nil {
		return r, err
	}
	if r.ServerIP, err = d.GetString(); err != nil {
		return r, err
	}
	some, err := d.GetBool()
	if err != nil {
		return r, err
	}
	if some {
		caps, err := decodeStreamingCapabilities(d)
		if err != nil {
			return r, err
		}
		r.StreamingCapabilities = &caps
	}
	return r, nil
}

// NegotiatedConfig is the stream configuration the server derives from
// the client's capabilities and its own session settings, sent in a
// StreamConfigPacket.
type NegotiatedConfig struct {
	ViewResolution         UVec2
	RefreshRate            float32
	GameAudioSampleRate    uint32
	EnableFoveatedEncoding bool
	EncodingGamma          float32
	EnableHDR              bool
	Wired                  bool
}

func (c NegotiatedConfig) encode(e *Encoder) {
	e.PutU32(c.ViewResolution.X)
	e.PutU32(c.ViewResolution.Y)
	e.PutF32(c.RefreshRate)
	e.PutU32(c.GameAudioSampleRate)
	e.PutBool(c.EnableFoveatedEncoding)
	e.PutF32(c.EncodingGamma)
	e.PutBool(c.EnableHDR)
	e.PutBool(c.Wired)
}

func decodeNegotiatedConfig(d *Decoder) (NegotiatedConfig, error) {
	var c NegotiatedConfig
	var err error
	if c.ViewResolution.X, err = d.GetU32(); err != nil {
		return c, err
	}
	if c.ViewResolution.Y, err = d.GetU32(); err != nil {
		return c, err
	}
	if c.RefreshRate, err = d.GetF32(); err != nil {
		return c, err
	}
	if c.GameAudioSampleRate, err = d.GetU32(); err != nil {
		return c, err
	}
	if c.EnableFoveatedEncoding, err = d.GetBool(); err != nil {
		return c, err
	}
	if c.EncodingGamma, err = d.GetF32(); err != nil {
		return c, err
	}
	if c.EnableHDR, err = d.GetBool(); err != nil {
		return c, err
	}
	if c.Wired, err = d.GetBool(); err != nil {
		return c, err
	}
	return c, nil
}

// StreamConfigPacket is the server's sole handshake push to the
// client: the session identifier it negotiated under, plus the
// resolved NegotiatedConfig.
type StreamConfigPacket struct {
	SessionID uint64
	Config    NegotiatedConfig
}

func (p StreamConfigPacket) Encode() []byte {
	e := NewEncoder(48)
	e.PutU64(p.SessionID)
	p.Config.encode(e)
	return e.Bytes()
}

func DecodeStreamConfigPacket(buf []byte) (StreamConfigPacket, error) {
	d := NewDecoder(buf)
	var p StreamConfigPacket
	var err error
	if p.SessionID, err = d.GetU64(); err != nil {
		return p, err
	}
	if p.Config, err = decodeNegotiatedConfig(d); err != nil {
		return p, err
	}
	return p, nil
}

// WriteLengthPrefixed writes a u32 little-endian length followed by
// payload, the common framing for one-shot handshake messages
// exchanged before the shard-multiplexed streams exist.
func WriteLengthPrefixed(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	putU32LE(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("protocol: writing frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("protocol: writing frame body: %w", err)
	}
	return nil
}

// ReadLengthPrefixed reads one u32-length-prefixed payload from r.
func ReadLengthPrefixed(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("protocol: reading frame length: %w", err)
	}
	n := getU32LE(lenBuf[:])
	if n > maxStringLen {
		return nil, fmt.Errorf("%w: frame length %d", ErrStringTooLarge, n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("protocol: reading frame body: %w", err)
	}
	return payload, nil
}

func putU32LE(dst []byte, v uint32) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
	dst[3] = byte(v >> 24)
}

func getU32LE(src []byte) uint32 {
	return uint32(src[0]) | uint32(src[1])<<8 | uint32(src[2])<<16 | uint32(src[3])<<24
}
