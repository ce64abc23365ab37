// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package orchestrator

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/alvr-org/alvr-streamd/internal/buttons"
	"github.com/alvr-org/alvr-streamd/internal/gesture"
	"github.com/alvr-org/alvr-streamd/internal/protocol"
	"github.com/alvr-org/alvr-streamd/internal/shard"
	"github.com/alvr-org/alvr-streamd/internal/stream"
	"github.com/alvr-org/alvr-streamd/internal/tracking"
)

// RunControlReceiver reads and dispatches control packets until ctx is
// canceled or the connection errors. It owns the control connection's
// single reader, matching the "one reader per stream" rule the shard
// socket follows for its own multiplexed streams.
func RunControlReceiver(ctx context.Context, cc *ConnectionContext, onButtons func([]buttons.Entry)) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		cc.Control.SetReadDeadline(time.Now().Add(cc.Timeouts.KeepAliveTimeout))
		pkt, err := protocol.ReadControlPacket(cc.Control)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("orchestrator: reading control packet: %w", err)
		}

		switch pkt.Tag {
		case protocol.TagKeepAlive:
			cc.Logger.Debug("keepalive received")
		case protocol.TagDecoderConfig:
			// Handing the config NAL to the hardware decoder happens
			// outside this module; here it only gets acknowledged.
			cc.Logger.Info("decoder config received", "codec", pkt.Codec, "config_bytes", len(pkt.ConfigNAL))
		case protocol.TagLog:
			logControlMessage(cc, pkt)
		case protocol.TagBattery:
			cc.Logger.Info("battery report", "device_id", pkt.DeviceID, "gauge", pkt.Gauge, "plugged", pkt.IsPlugged)
		case protocol.TagButtons:
			if onButtons != nil {
				onButtons(toButtonEntries(pkt.Buttons))
			}
		case protocol.TagPlayspaceSync:
			cc.Logger.Debug("playspace sync", "bounds", pkt.PlayspaceBounds)
		case protocol.TagRequestIdr:
			cc.Logger.Info("IDR requested by peer")
		case protocol.TagVideoErrorReport:
			cc.Logger.Warn("peer reported a video error")
		case protocol.TagRestarting:
			cc.Logger.Info("peer is restarting")
			return nil
		default:
			cc.Logger.Debug("unhandled control packet", "tag", pkt.Tag)
		}
	}
}

func logControlMessage(cc *ConnectionContext, pkt protocol.ControlPacket) {
	switch pkt.Level {
	case protocol.LogError:
		cc.Logger.Error("peer log", "message", pkt.Message)
	case protocol.LogWarn:
		cc.Logger.Warn("peer log", "message", pkt.Message)
	case protocol.LogDebug:
		cc.Logger.Debug("peer log", "message", pkt.Message)
	default:
		cc.Logger.Info("peer log", "message", pkt.Message)
	}
}

func toButtonEntries(wire []protocol.ButtonEntry) []buttons.Entry {
	out := make([]buttons.Entry, 0, len(wire))
	for _, b := range wire {
		v := buttons.Scalar(b.Scalar)
		if b.Binary {
			v = buttons.Binary(b.Bool)
		}
		out = append(out, buttons.Entry{Path: buttons.PathID(b.PathID), Value: v})
	}
	return out
}

func fromButtonEntries(entries []buttons.Entry) []protocol.ButtonEntry {
	out := make([]protocol.ButtonEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, protocol.ButtonEntry{
			PathID: uint64(e.Path),
			Binary: e.Value.IsBinary,
			Bool:   e.Value.Binary,
			Scalar: e.Value.Scalar,
		})
	}
	return out
}

// SendButtons forwards mapped button events to the peer over the
// control channel.
func SendButtons(cc *ConnectionContext, entries []buttons.Entry) error {
	pkt := protocol.ControlPacket{Tag: protocol.TagButtons, Buttons: fromButtonEntries(entries)}
	return cc.WriteControl(pkt)
}

// RunKeepAliveSender sends a KeepAlive control packet every
// KeepAliveInterval until ctx is canceled; either peer noticing
// KeepAliveTimeout of silence tears down the connection.
func RunKeepAliveSender(ctx context.Context, cc *ConnectionContext) error {
	ticker := time.NewTicker(cc.Timeouts.KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := cc.WriteControl(protocol.KeepAlivePacket()); err != nil {
				return fmt.Errorf("orchestrator: sending keepalive: %w", err)
			}
		}
	}
}

// TrackingSample is one frame's worth of device motions and, when
// present, hand skeletons, ready for wire encoding.
type TrackingSample struct {
	TargetTimestamp time.Duration
	Payload         protocol.TrackingPayload
}

// RunTrackingSender pulls samples from source and streams them,
// typically run on the headset (client) side.
func RunTrackingSender(ctx context.Context, cc *ConnectionContext, source func(ctx context.Context) (TrackingSample, error)) error {
	sender := stream.RequestStream[protocol.TrackingHeader](cc.Sock, shard.StreamTracking)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sample, err := source(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("orchestrator: producing tracking sample: %w", err)
		}
		header := protocol.TrackingHeader{TargetTimestampNs: sample.TargetTimestamp.Nanoseconds()}
		if err := sender.Send(header, sample.Payload.Encode()); err != nil {
			return fmt.Errorf("orchestrator: sending tracking sample: %w", err)
		}
	}
}

// RunTrackingReceiver decodes incoming tracking samples and reports
// them into cc.Tracking, typically run on the host (server) side.
// headsetCfg is re-read on every packet so a mid-session settings
// change (e.g. toggling controller emulation) takes effect immediately.
func RunTrackingReceiver(ctx context.Context, cc *ConnectionContext, headsetCfg func() tracking.HeadsetConfig) error {
	receiver := stream.SubscribeStream[protocol.TrackingHeader](cc.Sock, shard.StreamTracking, 8, protocol.DecodeTrackingHeader)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		pkt, err := receiver.Recv()
		if err != nil {
			if errors.Is(err, stream.ErrSocketClosed) {
				return nil
			}
			return fmt.Errorf("orchestrator: receiving tracking sample: %w", err)
		}

		payload, err := protocol.DecodeTrackingPayload(pkt.Payload)
		header := pkt.Header
		pkt.Release()
		if err != nil {
			cc.Logger.Warn("dropping malformed tracking payload", "error", err)
			continue
		}

		ts := time.Duration(header.TargetTimestampNs)
		cc.Tracking.ReportDeviceMotions(headsetCfg(), ts, wireMotionsToDeviceMotions(payload.Motions))
		if payload.LeftHand != nil {
			cc.Tracking.ReportHandSkeleton(tracking.HandLeft, ts, wireHandToSkeleton(*payload.LeftHand))
		}
		if payload.RightHand != nil {
			cc.Tracking.ReportHandSkeleton(tracking.HandRight, ts, wireHandToSkeleton(*payload.RightHand))
		}
	}
}

// gestureButtonEntries maps derived gestures onto the touch-style
// input paths the hand emulates: thumb-index pinch drives the trigger,
// aggregate grip drives the squeeze, and the virtual thumbstick drives
// the stick axes.
func gestureButtonEntries(hand tracking.HandType, gs []gesture.Gesture) []buttons.Entry {
	h := buttons.LeftHand
	if hand == tracking.HandRight {
		h = buttons.RightHand
	}

	var out []buttons.Entry
	for _, g := range gs {
		switch g.ID {
		case gesture.ThumbIndexPinch:
			out = append(out,
				buttons.Entry{Path: h.Path("/trigger/click"), Value: buttons.Binary(g.Clicked)},
				buttons.Entry{Path: h.Path("/trigger/value"), Value: buttons.Scalar(g.Value)},
			)
		case gesture.GripCurl:
			out = append(out, buttons.Entry{Path: h.Path("/squeeze/value"), Value: buttons.Scalar(g.Value)})
		case gesture.JoystickX:
			out = append(out, buttons.Entry{Path: h.Path("/thumbstick/x"), Value: buttons.Scalar(g.Value)})
		case gesture.JoystickY:
			out = append(out, buttons.Entry{Path: h.Path("/thumbstick/y"), Value: buttons.Scalar(g.Value)})
		}
	}
	return out
}

// RunGestureButtonEmitter evaluates hand gestures against skeleton
// samples from source on a fixed cadence and forwards the derived
// button entries over the control channel. source reports ok == false
// when no skeleton is currently tracked.
func RunGestureButtonEmitter(ctx context.Context, cc *ConnectionContext, hand tracking.HandType, cfg gesture.Config, interval time.Duration, source func() (tracking.HandSkeleton, bool)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			skeleton, ok := source()
			if !ok {
				continue
			}
			gs := cc.Gestures.GetActiveGestures(hand, skeleton, cfg, time.Now())
			entries := gestureButtonEntries(hand, gs)
			if len(entries) == 0 {
				continue
			}
			if err := SendButtons(cc, entries); err != nil {
				return fmt.Errorf("orchestrator: forwarding gesture buttons: %w", err)
			}
		}
	}
}

// RunVideoSender frames encoded NAL units pulled from source onto the
// video stream. The encoder itself lives outside this module (GPU
// capture and hardware encode are external collaborators); this only
// handles the wire framing and bandwidth pacing via a ThrottledWriter
// the caller may have wrapped cc.Sock's transport with beforehand.
func RunVideoSender(ctx context.Context, cc *ConnectionContext, source func(ctx context.Context) (nal []byte, isIDR bool, err error)) error {
	sender := stream.RequestStream[protocol.VideoHeader](cc.Sock, shard.StreamVideo)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		nal, isIDR, err := source(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("orchestrator: producing video frame: %w", err)
		}
		header := protocol.VideoHeader{TargetTimestampNs: time.Now().UnixNano(), IsIDR: isIDR}
		if err := sender.Send(header, nal); err != nil {
			return fmt.Errorf("orchestrator: sending video frame: %w", err)
		}
	}
}

// RunVideoReceiver hands reassembled NAL units to onFrame for
// decoding, which (like encoding) is an external collaborator. A gap
// detected by the typed receiver (pkt.HadLoss) is surfaced so the
// decoder can drop frames until the next IDR instead of corrupting
// output, matching the "no reliable ordered delivery for video"
// non-goal: loss recovery happens above this layer via RequestIdr.
func RunVideoReceiver(ctx context.Context, cc *ConnectionContext, onFrame func(header protocol.VideoHeader, nal []byte, hadLoss bool)) error {
	receiver := stream.SubscribeStream[protocol.VideoHeader](cc.Sock, shard.StreamVideo, 4, protocol.DecodeVideoHeader)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		pkt, err := receiver.Recv()
		if err != nil {
			if errors.Is(err, stream.ErrSocketClosed) {
				return nil
			}
			return fmt.Errorf("orchestrator: receiving video frame: %w", err)
		}
		header, payload, hadLoss := pkt.Header, append([]byte(nil), pkt.Payload...), pkt.HadLoss
		pkt.Release()
		if onFrame != nil {
			onFrame(header, payload, hadLoss)
		}
	}
}

// RunHapticsSender emits a haptic vibration command to the headset.
func RunHapticsSender(cc *ConnectionContext, header protocol.HapticsHeader) error {
	sender := stream.RequestStream[protocol.HapticsHeader](cc.Sock, shard.StreamHaptics)
	return sender.Send(header, nil)
}

// RunHapticsReceiver delivers incoming haptic commands to onHaptic,
// typically run on the headset side.
func RunHapticsReceiver(ctx context.Context, cc *ConnectionContext, onHaptic func(protocol.HapticsHeader)) error {
	receiver := stream.SubscribeStream[protocol.HapticsHeader](cc.Sock, shard.StreamHaptics, 8, protocol.DecodeHapticsHeader)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		pkt, err := receiver.Recv()
		if err != nil {
			if errors.Is(err, stream.ErrSocketClosed) {
				return nil
			}
			return fmt.Errorf("orchestrator: receiving haptics: %w", err)
		}
		header := pkt.Header
		pkt.Release()
		if onHaptic != nil {
			onHaptic(header)
		}
	}
}

// RunAudioSender frames int16 PCM frames pulled from source onto the
// audio stream.
func RunAudioSender(ctx context.Context, cc *ConnectionContext, source func(ctx context.Context) (samples []int16, hadLoss bool, err error)) error {
	sender := stream.RequestStream[protocol.AudioHeader](cc.Sock, shard.StreamAudio)
	var index uint64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		samples, hadLoss, err := source(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("orchestrator: producing audio samples: %w", err)
		}
		header := protocol.AudioHeader{PacketIndex: index, HadPacketLoss: hadLoss}
		index++
		if err := sender.Send(header, encodePCM(samples)); err != nil {
			return fmt.Errorf("orchestrator: sending audio packet: %w", err)
		}
	}
}

// RunAudioReceiver decodes incoming audio packets into cc.Audio for
// the playback side to pull fixed-size batches from.
func RunAudioReceiver(ctx context.Context, cc *ConnectionContext) error {
	receiver := stream.SubscribeStream[protocol.AudioHeader](cc.Sock, shard.StreamAudio, 8, protocol.DecodeAudioHeader)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		pkt, err := receiver.Recv()
		if err != nil {
			if errors.Is(err, stream.ErrSocketClosed) {
				return nil
			}
			return fmt.Errorf("orchestrator: receiving audio packet: %w", err)
		}
		samples := decodePCM(pkt.Payload)
		hadLoss := pkt.HadLoss || pkt.Header.HadPacketLoss
		pkt.Release()
		cc.Audio.Push(samples, hadLoss)
	}
}

func encodePCM(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func decodePCM(buf []byte) []int16 {
	out := make([]int16, len(buf)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
	}
	return out
}

// RunStatisticsSender periodically sends a host-telemetry snapshot
// built by sample on the statistics stream.
func RunStatisticsSender(ctx context.Context, cc *ConnectionContext, interval time.Duration, sample func() []byte) error {
	sender := stream.RequestStream[protocol.StatisticsHeader](cc.Sock, shard.StreamStatistics)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			header := protocol.StatisticsHeader{SentAtNs: time.Now().UnixNano()}
			if err := sender.Send(header, sample()); err != nil {
				return fmt.Errorf("orchestrator: sending statistics: %w", err)
			}
		}
	}
}

// RunStatisticsReceiver delivers incoming telemetry snapshots to onStat.
func RunStatisticsReceiver(ctx context.Context, cc *ConnectionContext, onStat func(sentAtNs int64, payload []byte)) error {
	receiver := stream.SubscribeStream[protocol.StatisticsHeader](cc.Sock, shard.StreamStatistics, 8, protocol.DecodeStatisticsHeader)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		pkt, err := receiver.Recv()
		if err != nil {
			if errors.Is(err, stream.ErrSocketClosed) {
				return nil
			}
			return fmt.Errorf("orchestrator: receiving statistics: %w", err)
		}
		header, payload := pkt.Header, append([]byte(nil), pkt.Payload...)
		pkt.Release()
		if onStat != nil {
			onStat(header.SentAtNs, payload)
		}
	}
}
