// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package buttons implements the button mapping manager: translation
// of source button events (binary, scalar, or force) onto a
// destination controller button set via passthrough, binary-to-scalar,
// hysteresis-threshold, and range-remap mapping types, plus automatic
// pairwise synthesis of that table from each side's available input
// paths.
package buttons

// PathID identifies a physical or emulated button input path. Both
// peers agree on a closed numeric ID space; this package treats it as
// opaque.
type PathID uint64

// Value is either a binary (click/touch/boolean) or scalar
// (analog/force) button reading.
type Value struct {
	IsBinary bool
	Binary   bool
	Scalar   float32
}

func Binary(b bool) Value    { return Value{IsBinary: true, Binary: b} }
func Scalar(v float32) Value { return Value{IsBinary: false, Scalar: v} }

// Entry is one button event on a source or destination stream.
type Entry struct {
	Path  PathID
	Value Value
}

// MappingType is the translation applied to a source value before it
// is emitted on the destination path.
type MappingType int

const (
	Passthrough MappingType = iota
	BinaryToScalar
	HysteresisThreshold
	Remap
)

// Binding is one destination emission rule for a source path.
type Binding struct {
	Destination        PathID
	Type               MappingType
	BinaryOff          float32 // BinaryToScalar: value when source is false
	BinaryOn           float32 // BinaryToScalar: value when source is true
	ThresholdValue     float32 // HysteresisThreshold: center
	ThresholdDeviation float32 // HysteresisThreshold: +/- band
	RemapMin           float32
	RemapMax           float32
	BinaryConditions   []PathID // all must be latched true or the binding is skipped
}

func PassthroughBinding(dest PathID, conditions ...PathID) Binding {
	return Binding{Destination: dest, Type: Passthrough, BinaryConditions: conditions}
}

func BinaryToScalarBinding(dest PathID, off, on float32, conditions ...PathID) Binding {
	return Binding{Destination: dest, Type: BinaryToScalar, BinaryOff: off, BinaryOn: on, BinaryConditions: conditions}
}

func HysteresisBinding(dest PathID, value, deviation float32, conditions ...PathID) Binding {
	return Binding{Destination: dest, Type: HysteresisThreshold, ThresholdValue: value, ThresholdDeviation: deviation, BinaryConditions: conditions}
}

func RemapBinding(dest PathID, min, max float32, conditions ...PathID) Binding {
	return Binding{Destination: dest, Type: Remap, RemapMin: min, RemapMax: max, BinaryConditions: conditions}
}

// Manager evaluates incoming source Entries against a mapping table,
// tracking per-source binary edge-suppression state and per-(source,
// dest) hysteresis latches.
type Manager struct {
	mappings          map[PathID][]Binding
	lastBinaryState   map[PathID]bool
	hysteresisLatched map[PathID]map[PathID]bool
}

// NewManual builds a Manager from an explicit mapping table.
func NewManual(mappings map[PathID][]Binding) *Manager {
	return &Manager{
		mappings:          mappings,
		lastBinaryState:   make(map[PathID]bool),
		hysteresisLatched: make(map[PathID]map[PathID]bool),
	}
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (m *Manager) conditionsMet(conds []PathID) bool {
	for _, c := range conds {
		if !m.lastBinaryState[c] {
			return false
		}
	}
	return true
}

// MapButton evaluates one source entry, returning zero or more
// destination entries. A duplicate binary value (same as the last
// recorded state for that source) is suppressed before evaluating any
// binding.
func (m *Manager) MapButton(source Entry) []Entry {
	if source.Value.IsBinary {
		if last, ok := m.lastBinaryState[source.Path]; ok && last == source.Value.Binary {
			return nil
		}
		m.lastBinaryState[source.Path] = source.Value.Binary
	}

	bindings, ok := m.mappings[source.Path]
	if !ok {
		return nil
	}

	var out []Entry
	for _, b := range bindings {
		if !m.conditionsMet(b.BinaryConditions) {
			continue
		}
		switch b.Type {
		case Passthrough:
			out = append(out, Entry{Path: b.Destination, Value: source.Value})

		case BinaryToScalar:
			if !source.Value.IsBinary {
				continue
			}
			v := b.BinaryOff
			if source.Value.Binary {
				v = b.BinaryOn
			}
			out = append(out, Entry{Path: b.Destination, Value: Scalar(v)})

		case HysteresisThreshold:
			if source.Value.IsBinary {
				continue
			}
			latched := m.hysteresisLatched[source.Path]
			if latched == nil {
				latched = make(map[PathID]bool)
				m.hysteresisLatched[source.Path] = latched
			}
			prev := latched[b.Destination]
			next := prev
			v := source.Value.Scalar
			if v > b.ThresholdValue+b.ThresholdDeviation {
				next = true
			} else if v < b.ThresholdValue-b.ThresholdDeviation {
				next = false
			}
			if next != prev {
				latched[b.Destination] = next
				out = append(out, Entry{Path: b.Destination, Value: Binary(next)})
			}

		case Remap:
			if source.Value.IsBinary {
				continue
			}
			span := b.RemapMax - b.RemapMin
			var v float32
			if span != 0 {
				v = clamp01((source.Value.Scalar - b.RemapMin) / span)
			}
			out = append(out, Entry{Path: b.Destination, Value: Scalar(v)})
		}
	}
	return out
}
