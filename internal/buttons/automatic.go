// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package buttons

// Inputs describes which input paths a physical (or emulated)
// controller button exposes on one side of a binding pair.
type Inputs struct {
	Click *PathID
	Touch *PathID
	Value *PathID
	Force *PathID
}

func path(id PathID) *PathID { return &id }

func Click(id PathID) Inputs      { return Inputs{Click: path(id)} }
func ClickTouch(click, touch PathID) Inputs {
	return Inputs{Click: path(click), Touch: path(touch)}
}
func ClickTouchValue(click, touch, value PathID) Inputs {
	return Inputs{Click: path(click), Touch: path(touch), Value: path(value)}
}

// AutoBindConfig carries the thresholds used by synthesized
// HysteresisThreshold and Remap bindings.
type AutoBindConfig struct {
	ClickThresholdValue     float32
	ClickThresholdDeviation float32
	TouchThresholdValue     float32
	TouchThresholdDeviation float32
	ForceThreshold          float32
}

func DefaultAutoBindConfig() AutoBindConfig {
	return AutoBindConfig{
		ClickThresholdValue:     0.5,
		ClickThresholdDeviation: 0.3,
		TouchThresholdValue:     0.1,
		TouchThresholdDeviation: 0.1,
		ForceThreshold:          0.5,
	}
}

// MapButtonPairAutomatic synthesizes the bindings for one physical
// button pair, keyed by source path, richest translation per
// available input on each side:
//
//   - both sides have click (or both have touch): passthrough.
//   - source has click, destination lacks it: synthesize a scalar
//     (BinaryToScalar) onto destination's value path, and, when
//     destination has touch but source does not, pass the click
//     through onto destination's touch path.
//   - source has value: passthrough onto destination's value path
//     (unless source has click and destination does not); when source
//     lacks click (or touch) and destination has it, a hysteresis
//     threshold onto destination's click (or touch, at the lower
//     threshold) path.
//   - destination has force, source does not: remap source's value
//     into [force_threshold, 1] onto destination's force path.
func MapButtonPairAutomatic(source, dest Inputs, cfg AutoBindConfig) map[PathID][]Binding {
	out := make(map[PathID][]Binding)
	add := func(src PathID, b Binding) { out[src] = append(out[src], b) }

	if source.Click != nil && dest.Click != nil {
		add(*source.Click, PassthroughBinding(*dest.Click))
	}
	if source.Touch != nil && dest.Touch != nil {
		add(*source.Touch, PassthroughBinding(*dest.Touch))
	}

	if source.Click != nil && dest.Click == nil {
		if dest.Value != nil {
			add(*source.Click, BinaryToScalarBinding(*dest.Value, 0, 1))
		}
		if dest.Touch != nil && source.Touch == nil {
			add(*source.Click, PassthroughBinding(*dest.Touch))
		}
	}

	if source.Value != nil {
		if dest.Value != nil && (source.Click == nil || dest.Click != nil) {
			add(*source.Value, PassthroughBinding(*dest.Value))
		}
		if dest.Click != nil && source.Click == nil {
			add(*source.Value, HysteresisBinding(*dest.Click, cfg.ClickThresholdValue, cfg.ClickThresholdDeviation))
		}
		if dest.Touch != nil && source.Touch == nil {
			add(*source.Value, HysteresisBinding(*dest.Touch, cfg.TouchThresholdValue, cfg.TouchThresholdDeviation))
		}
		if dest.Force != nil && source.Force == nil {
			add(*source.Value, RemapBinding(*dest.Force, cfg.ForceThreshold, 1))
		}
	}

	if source.Force != nil && dest.Force != nil {
		add(*source.Force, PassthroughBinding(*dest.Force))
	}

	return out
}

// mergeBindings combines per-pair binding maps into one table,
// appending when a source path already has bindings from another
// pair (which should not normally happen, since pairs use disjoint
// physical button slots).
func mergeBindings(maps ...map[PathID][]Binding) map[PathID][]Binding {
	out := make(map[PathID][]Binding)
	for _, m := range maps {
		for k, v := range m {
			out[k] = append(out[k], v...)
		}
	}
	return out
}

// ButtonSet names the physical button slots this package wires
// automatically: menu, A/X, B/Y, squeeze, trigger, thumbstick X/Y/
// click, and thumbrest touch. A controller profile need not populate
// every slot.
type ButtonSet struct {
	Menu        *Inputs
	AX          *Inputs
	BY          *Inputs
	Squeeze     *Inputs
	Trigger     *Inputs
	ThumbstickX *Inputs
	ThumbstickY *Inputs
	ThumbClick  *Inputs
	Thumbrest   *Inputs
}

// NewAutomatic synthesizes the full binding table between source and
// destination button sets, pairing each named slot present on both
// sides.
func NewAutomatic(source, dest ButtonSet, cfg AutoBindConfig) *Manager {
	pairs := []struct{ s, d *Inputs }{
		{source.Menu, dest.Menu},
		{source.AX, dest.AX},
		{source.BY, dest.BY},
		{source.Squeeze, dest.Squeeze},
		{source.Trigger, dest.Trigger},
		{source.ThumbstickX, dest.ThumbstickX},
		{source.ThumbstickY, dest.ThumbstickY},
		{source.ThumbClick, dest.ThumbClick},
		{source.Thumbrest, dest.Thumbrest},
	}

	var tables []map[PathID][]Binding
	for _, p := range pairs {
		if p.s == nil || p.d == nil {
			continue
		}
		tables = append(tables, MapButtonPairAutomatic(*p.s, *p.d, cfg))
	}

	return NewManual(mergeBindings(tables...))
}
