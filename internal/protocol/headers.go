// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package protocol

// VideoHeader precedes each video packet's NAL payload on the video
// stream. IsIDR lets the receive worker drop frames following loss
// until the next keyframe without inspecting the bitstream.
type VideoHeader struct {
	TargetTimestampNs int64
	IsIDR             bool
}

func (h VideoHeader) Encode() []byte {
	e := NewEncoder(9)
	e.PutI64(h.TargetTimestampNs)
	e.PutBool(h.IsIDR)
	return e.Bytes()
}

func DecodeVideoHeader(buf []byte) (VideoHeader, int, error) {
	d := NewDecoder(buf)
	var h VideoHeader
	var err error
	if h.TargetTimestampNs, err = d.GetI64(); err != nil {
		return h, 0, err
	}
	if h.IsIDR, err = d.GetBool(); err != nil {
		return h, 0, err
	}
	return h, d.Pos(), nil
}

// AudioHeader precedes each audio packet's PCM payload. Game audio and
// microphone audio share the audio stream ID and travel in opposite
// directions (host to headset, headset to host), so the header only
// carries per-packet loss bookkeeping the resync buffer needs.
type AudioHeader struct {
	PacketIndex   uint64
	HadPacketLoss bool
}

func (h AudioHeader) Encode() []byte {
	e := NewEncoder(9)
	e.PutU64(h.PacketIndex)
	e.PutBool(h.HadPacketLoss)
	return e.Bytes()
}

func DecodeAudioHeader(buf []byte) (AudioHeader, int, error) {
	d := NewDecoder(buf)
	var h AudioHeader
	var err error
	if h.PacketIndex, err = d.GetU64(); err != nil {
		return h, 0, err
	}
	if h.HadPacketLoss, err = d.GetBool(); err != nil {
		return h, 0, err
	}
	return h, d.Pos(), nil
}

// HapticsHeader precedes a haptic vibration command's (currently
// empty) payload.
type HapticsHeader struct {
	DeviceID   uint64
	DurationNs int64
	Amplitude  float32
	Frequency  float32
}

func (h HapticsHeader) Encode() []byte {
	e := NewEncoder(24)
	e.PutU64(h.DeviceID)
	e.PutI64(h.DurationNs)
	e.PutF32(h.Amplitude)
	e.PutF32(h.Frequency)
	return e.Bytes()
}

func DecodeHapticsHeader(buf []byte) (HapticsHeader, int, error) {
	d := NewDecoder(buf)
	var h HapticsHeader
	var err error
	if h.DeviceID, err = d.GetU64(); err != nil {
		return h, 0, err
	}
	if h.DurationNs, err = d.GetI64(); err != nil {
		return h, 0, err
	}
	if h.Amplitude, err = d.GetF32(); err != nil {
		return h, 0, err
	}
	if h.Frequency, err = d.GetF32(); err != nil {
		return h, 0, err
	}
	return h, d.Pos(), nil
}

// TrackingHeader precedes a serialized Tracking payload (device
// motions plus hand skeletons), which the tracking package encodes
// independently of this framing header.
type TrackingHeader struct {
	TargetTimestampNs int64
}

func (h TrackingHeader) Encode() []byte {
	e := NewEncoder(8)
	e.PutI64(h.TargetTimestampNs)
	return e.Bytes()
}

func DecodeTrackingHeader(buf []byte) (TrackingHeader, int, error) {
	d := NewDecoder(buf)
	var h TrackingHeader
	var err error
	if h.TargetTimestampNs, err = d.GetI64(); err != nil {
		return h, 0, err
	}
	return h, d.Pos(), nil
}

// StatisticsHeader precedes a telemetry payload on the statistics
// stream (opaque to this header, which only timestamps it;
// cmd/alvr-server sends telemetry's zstd-compressed JSON snapshot).
type StatisticsHeader struct {
	SentAtNs int64
}

func (h StatisticsHeader) Encode() []byte {
	e := NewEncoder(8)
	e.PutI64(h.SentAtNs)
	return e.Bytes()
}

func DecodeStatisticsHeader(buf []byte) (StatisticsHeader, int, error) {
	d := NewDecoder(buf)
	var h StatisticsHeader
	var err error
	if h.SentAtNs, err = d.GetI64(); err != nil {
		return h, 0, err
	}
	return h, d.Pos(), nil
}
