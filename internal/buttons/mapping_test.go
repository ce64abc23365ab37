// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package buttons

import "testing"

const (
	srcClick PathID = iota + 1
	srcValue
	srcGate
	dstClick
	dstValue
)

func TestMapButtonPassthrough(t *testing.T) {
	m := NewManual(map[PathID][]Binding{
		srcClick: {PassthroughBinding(dstClick)},
	})

	out := m.MapButton(Entry{Path: srcClick, Value: Binary(true)})
	if len(out) != 1 || out[0].Path != dstClick || !out[0].Value.Binary {
		t.Fatalf("unexpected passthrough result: %+v", out)
	}
}

func TestMapButtonSuppressesDuplicateBinary(t *testing.T) {
	m := NewManual(map[PathID][]Binding{
		srcClick: {PassthroughBinding(dstClick)},
	})

	if out := m.MapButton(Entry{Path: srcClick, Value: Binary(true)}); len(out) != 1 {
		t.Fatalf("expected first press to map, got %+v", out)
	}
	if out := m.MapButton(Entry{Path: srcClick, Value: Binary(true)}); out != nil {
		t.Fatalf("expected duplicate press suppressed, got %+v", out)
	}
	if out := m.MapButton(Entry{Path: srcClick, Value: Binary(false)}); len(out) != 1 {
		t.Fatalf("expected release to map, got %+v", out)
	}
}

func TestMapButtonBinaryToScalar(t *testing.T) {
	m := NewManual(map[PathID][]Binding{
		srcClick: {BinaryToScalarBinding(dstValue, 0, 1)},
	})

	out := m.MapButton(Entry{Path: srcClick, Value: Binary(true)})
	if len(out) != 1 || out[0].Value.IsBinary || out[0].Value.Scalar != 1 {
		t.Fatalf("unexpected binary-to-scalar result: %+v", out)
	}
}

// A monotonic sweep from 0 up to 1 and back down must emit exactly two
// transitions: on above value+deviation, off below value-deviation.
func TestMapButtonHysteresisSweepEmitsTwoTransitions(t *testing.T) {
	m := NewManual(map[PathID][]Binding{
		srcValue: {HysteresisBinding(dstClick, 0.5, 0.1)},
	})

	var transitions []bool
	sweep := []float32{0, 0.2, 0.45, 0.55, 0.65, 0.8, 1, 0.8, 0.65, 0.55, 0.45, 0.2, 0}
	for _, v := range sweep {
		for _, e := range m.MapButton(Entry{Path: srcValue, Value: Scalar(v)}) {
			transitions = append(transitions, e.Value.Binary)
		}
	}

	if len(transitions) != 2 || !transitions[0] || transitions[1] {
		t.Fatalf("expected exactly [on, off], got %v", transitions)
	}
}

func TestMapButtonRemapClamps(t *testing.T) {
	m := NewManual(map[PathID][]Binding{
		srcValue: {RemapBinding(dstValue, 0.5, 1)},
	})

	cases := []struct{ in, want float32 }{
		{0.25, 0},
		{0.5, 0},
		{0.75, 0.5},
		{1, 1},
	}
	for _, c := range cases {
		out := m.MapButton(Entry{Path: srcValue, Value: Scalar(c.in)})
		if len(out) != 1 || out[0].Value.Scalar != c.want {
			t.Errorf("remap(%v) = %+v, want %v", c.in, out, c.want)
		}
	}
}

func TestMapButtonBinaryConditionsGate(t *testing.T) {
	m := NewManual(map[PathID][]Binding{
		srcClick: {PassthroughBinding(dstClick, srcGate)},
	})

	if out := m.MapButton(Entry{Path: srcClick, Value: Binary(true)}); out != nil {
		t.Fatalf("expected mapping skipped while gate is unlatched, got %+v", out)
	}

	m.MapButton(Entry{Path: srcGate, Value: Binary(true)})
	if out := m.MapButton(Entry{Path: srcClick, Value: Binary(false)}); len(out) != 1 {
		t.Fatalf("expected mapping to apply once gate is latched, got %+v", out)
	}
}

// findBinding reports the binding from src to dst, if any.
func findBinding(table map[PathID][]Binding, src, dst PathID) (Binding, bool) {
	for _, b := range table[src] {
		if b.Destination == dst {
			return b, true
		}
	}
	return Binding{}, false
}

// A touch-style source (A click/touch, analog trigger with touch)
// bound onto a wand-style destination (trackpad click/touch, boolean
// trigger click plus analog value) must pass the face button through,
// pass the trigger value through, and synthesize the trigger click via
// a hysteresis threshold.
func TestMapButtonPairAutomaticRichestTranslation(t *testing.T) {
	var (
		aClick        PathID = 10
		aTouch        PathID = 11
		trigValue     PathID = 12
		trigTouch     PathID = 13
		padClick      PathID = 20
		padTouch      PathID = 21
		trigClickDest PathID = 22
		trigValueDest PathID = 23
	)

	cfg := DefaultAutoBindConfig()

	face := MapButtonPairAutomatic(
		ClickTouch(aClick, aTouch),
		ClickTouch(padClick, padTouch),
		cfg,
	)
	if b, ok := findBinding(face, aClick, padClick); !ok || b.Type != Passthrough {
		t.Errorf("expected face click passthrough, got %+v (ok=%v)", b, ok)
	}
	if b, ok := findBinding(face, aTouch, padTouch); !ok || b.Type != Passthrough {
		t.Errorf("expected face touch passthrough, got %+v (ok=%v)", b, ok)
	}

	trigger := MapButtonPairAutomatic(
		Inputs{Touch: path(trigTouch), Value: path(trigValue)},
		Inputs{Click: path(trigClickDest), Value: path(trigValueDest)},
		cfg,
	)
	if b, ok := findBinding(trigger, trigValue, trigValueDest); !ok || b.Type != Passthrough {
		t.Errorf("expected trigger value passthrough, got %+v (ok=%v)", b, ok)
	}
	b, ok := findBinding(trigger, trigValue, trigClickDest)
	if !ok || b.Type != HysteresisThreshold {
		t.Fatalf("expected hysteresis trigger click synthesis, got %+v (ok=%v)", b, ok)
	}
	if b.ThresholdValue != cfg.ClickThresholdValue || b.ThresholdDeviation != cfg.ClickThresholdDeviation {
		t.Errorf("unexpected hysteresis thresholds: %+v", b)
	}
}

func TestNewAutomaticForProfiles(t *testing.T) {
	m, ok := NewAutomaticForProfiles("touch", "vive", DefaultAutoBindConfig())
	if !ok {
		t.Fatal("expected touch and vive profiles to be known")
	}

	rightA := HashPath("/user/hand/right/input/a/click")
	out := m.MapButton(Entry{Path: rightA, Value: Binary(true)})
	if len(out) == 0 {
		t.Fatal("expected the right A click to map onto the wand trackpad")
	}
	wantDest := HashPath("/user/hand/right/input/trackpad/click")
	if out[0].Path != wantDest {
		t.Errorf("A click mapped to %v, want trackpad click %v", out[0].Path, wantDest)
	}

	if _, ok := NewAutomaticForProfiles("touch", "nonexistent", DefaultAutoBindConfig()); ok {
		t.Error("expected unknown destination profile to report ok=false")
	}
}
