package main

import (
	"strings"
)

// ModMask is a set of hotkey modifiers.
type ModMask uint8

const (
	ModCtrl ModMask = 1 << iota
	ModAlt
	ModSuper
)

// modifierNames maps the names accepted in binding specifications to
// modifier bits. Mod1/Mod4 are kept as aliases for users coming from
// X11-style configurations.
var modifierNames = map[string]ModMask{
	"Control": ModCtrl,
	"Alt":     ModAlt,
	"Mod1":    ModAlt,
	"Super":   ModSuper,
	"Mod4":    ModSuper,
}

func (m ModMask) String() string {
	if m == 0 {
		return "none"
	}
	var parts []string
	if m&ModCtrl != 0 {
		parts = append(parts, "Control")
	}
	if m&ModAlt != 0 {
		parts = append(parts, "Alt")
	}
	if m&ModSuper != 0 {
		parts = append(parts, "Super")
	}
	return strings.Join(parts, "+")
}

// modifierForCode maps evdev keycodes of modifier keys to their mask bit.
func modifierForCode(code uint16) (ModMask, bool) {
	switch code {
	case keyLeftCtrl, keyRightCtrl:
		return ModCtrl, true
	case keyLeftAlt, keyRightAlt:
		return ModAlt, true
	case keyLeftMeta, keyRightMeta:
		return ModSuper, true
	}
	return 0, false
}

// applyModifier folds a modifier key transition into the current mask.
// Repeats keep the modifier held; releases clear it.
func applyModifier(mods ModMask, code uint16, value int32) (ModMask, bool) {
	m, ok := modifierForCode(code)
	if !ok {
		return mods, false
	}
	switch value {
	case evValuePress, evValueRepeat:
		mods |= m
	case evValueRelease:
		mods &^= m
	}
	return mods, true
}

// keyNames maps binding key names to evdev keycodes (from <linux/input.h>).
// Names are matched case-insensitively.
var keyNames = map[string]uint16{
	// digits
	"1": 2, "2": 3, "3": 4, "4": 5, "5": 6, "6": 7, "7": 8, "8": 9, "9": 10, "0": 11,

	// letters
	"q": 16, "w": 17, "e": 18, "r": 19, "t": 20, "y": 21, "u": 22, "i": 23, "o": 24, "p": 25,
	"a": 30, "s": 31, "d": 32, "f": 33, "g": 34, "h": 35, "j": 36, "k": 37, "l": 38,
	"z": 44, "x": 45, "c": 46, "v": 47, "b": 48, "n": 49, "m": 50,

	// punctuation rows
	"minus": 12, "equal": 13, "backspace": 14, "tab": 15,
	"leftbrace": 26, "rightbrace": 27, "enter": 28,
	"semicolon": 39, "apostrophe": 40, "grave": 41, "backslash": 43,
	"comma": 51, "dot": 52, "slash": 53, "space": 57,
	"escape": 1,

	// keypad; "plus" is the keypad plus, matching the classic default binding
	"plus": 78, "kpplus": 78, "kpminus": 74, "kpasterisk": 55, "kpslash": 98, "kpenter": 96,
	"kp0": 82, "kp1": 79, "kp2": 80, "kp3": 81, "kp4": 75, "kp5": 76, "kp6": 77, "kp7": 71, "kp8": 72, "kp9": 73,

	// function keys
	"f1": 59, "f2": 60, "f3": 61, "f4": 62, "f5": 63, "f6": 64,
	"f7": 65, "f8": 66, "f9": 67, "f10": 68, "f11": 87, "f12": 88,

	// navigation
	"up": 103, "down": 108, "left": 105, "right": 106,
	"home": 102, "end": 107, "pageup": 104, "pagedown": 109,
	"insert": 110, "delete": 111,

	// media keys
	"mute": 113, "volumedown": 114, "volumeup": 115,
	"playpause": 164, "nextsong": 163, "previoussong": 165, "stopcd": 166,
}

// lookupKey resolves a binding key name to an evdev keycode.
func lookupKey(name string) (uint16, bool) {
	code, ok := keyNames[strings.ToLower(name)]
	return code, ok
}
