// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package buttons

import "hash/fnv"

// HashPath derives the numeric PathID both peers use for an OpenXR
// input path string ("/user/hand/left/input/trigger/value"). The ID
// space only has to be collision-free over the closed set of paths a
// controller profile names, and stable across both peers, which a
// 64-bit FNV-1a hash satisfies.
func HashPath(path string) PathID {
	h := fnv.New64a()
	h.Write([]byte(path))
	return PathID(h.Sum64())
}

// Hand selects which hand's path prefix a profile's button set uses.
type Hand int

const (
	LeftHand Hand = iota
	RightHand
)

func (h Hand) prefix() string {
	if h == LeftHand {
		return "/user/hand/left/input"
	}
	return "/user/hand/right/input"
}

// Path hashes an input-path suffix ("/trigger/value") under this
// hand's prefix.
func (h Hand) Path(suffix string) PathID { return HashPath(h.prefix() + suffix) }

// ProfileButtonSet returns the ButtonSet for a named controller
// emulation profile and hand. Supported profiles:
//
//   - "touch": Quest/Rift touch layout (A/B or X/Y, analog trigger and
//     squeeze with touch, thumbstick, thumbrest).
//   - "index": Valve Index layout (adds squeeze force).
//   - "vive": Vive wand layout (boolean trigger click plus analog
//     value, trackpad click/touch in both the A/X and thumbstick
//     slots, no B/Y button, no touch on menu or squeeze).
//
// Unknown names report ok == false.
func ProfileButtonSet(profile string, hand Hand) (ButtonSet, bool) {
	in := func(b Inputs) *Inputs { return &b }

	switch profile {
	case "touch":
		ax, by := "/a", "/b"
		if hand == LeftHand {
			ax, by = "/x", "/y"
		}
		return ButtonSet{
			Menu:        in(Click(hand.Path("/system/click"))),
			AX:          in(ClickTouch(hand.Path(ax+"/click"), hand.Path(ax+"/touch"))),
			BY:          in(ClickTouch(hand.Path(by+"/click"), hand.Path(by+"/touch"))),
			Squeeze:     in(Inputs{Value: path(hand.Path("/squeeze/value"))}),
			Trigger:     in(ClickTouchValue(hand.Path("/trigger/click"), hand.Path("/trigger/touch"), hand.Path("/trigger/value"))),
			ThumbstickX: in(Inputs{Value: path(hand.Path("/thumbstick/x"))}),
			ThumbstickY: in(Inputs{Value: path(hand.Path("/thumbstick/y"))}),
			ThumbClick:  in(ClickTouch(hand.Path("/thumbstick/click"), hand.Path("/thumbstick/touch"))),
			Thumbrest:   in(Inputs{Touch: path(hand.Path("/thumbrest/touch"))}),
		}, true

	case "index":
		ax := "/a"
		by := "/b"
		return ButtonSet{
			Menu:        in(Click(hand.Path("/system/click"))),
			AX:          in(ClickTouch(hand.Path(ax+"/click"), hand.Path(ax+"/touch"))),
			BY:          in(ClickTouch(hand.Path(by+"/click"), hand.Path(by+"/touch"))),
			Squeeze:     in(Inputs{Value: path(hand.Path("/squeeze/value")), Force: path(hand.Path("/squeeze/force"))}),
			Trigger:     in(ClickTouchValue(hand.Path("/trigger/click"), hand.Path("/trigger/touch"), hand.Path("/trigger/value"))),
			ThumbstickX: in(Inputs{Value: path(hand.Path("/thumbstick/x"))}),
			ThumbstickY: in(Inputs{Value: path(hand.Path("/thumbstick/y"))}),
			ThumbClick:  in(ClickTouch(hand.Path("/thumbstick/click"), hand.Path("/thumbstick/touch"))),
			Thumbrest:   nil,
		}, true

	case "vive":
		return ButtonSet{
			Menu:        in(Click(hand.Path("/application_menu/click"))),
			AX:          in(ClickTouch(hand.Path("/trackpad/click"), hand.Path("/trackpad/touch"))),
			BY:          nil,
			Squeeze:     in(Click(hand.Path("/squeeze/click"))),
			Trigger:     in(Inputs{Click: path(hand.Path("/trigger/click")), Value: path(hand.Path("/trigger/value"))}),
			ThumbstickX: in(Inputs{Value: path(hand.Path("/trackpad/x"))}),
			ThumbstickY: in(Inputs{Value: path(hand.Path("/trackpad/y"))}),
			ThumbClick:  in(ClickTouch(hand.Path("/trackpad/click"), hand.Path("/trackpad/touch"))),
			Thumbrest:   nil,
		}, true
	}
	return ButtonSet{}, false
}

// NewAutomaticForProfiles builds the button mapping manager translating
// sourceProfile's physical inputs (both hands) onto destProfile's
// emulated set. ok == false means one of the profile names is unknown.
func NewAutomaticForProfiles(sourceProfile, destProfile string, cfg AutoBindConfig) (*Manager, bool) {
	var tables []map[PathID][]Binding
	for _, hand := range []Hand{LeftHand, RightHand} {
		src, okS := ProfileButtonSet(sourceProfile, hand)
		dst, okD := ProfileButtonSet(destProfile, hand)
		if !okS || !okD {
			return nil, false
		}
		pairs := []struct{ s, d *Inputs }{
			{src.Menu, dst.Menu},
			{src.AX, dst.AX},
			{src.BY, dst.BY},
			{src.Squeeze, dst.Squeeze},
			{src.Trigger, dst.Trigger},
			{src.ThumbstickX, dst.ThumbstickX},
			{src.ThumbstickY, dst.ThumbstickY},
			{src.ThumbClick, dst.ThumbClick},
			{src.Thumbrest, dst.Thumbrest},
		}
		for _, p := range pairs {
			if p.s == nil || p.d == nil {
				continue
			}
			tables = append(tables, MapButtonPairAutomatic(*p.s, *p.d, cfg))
		}
	}
	return NewManual(mergeBindings(tables...)), true
}
