package main

import (
	"fmt"
	"strings"
)

// Direction selects how a bound action adjusts its target control.
type Direction int

const (
	DirDecrement Direction = -1
	DirToggle    Direction = 0 // toggles switches, cycles selectors
	DirIncrement Direction = 1
)

func (d Direction) String() string {
	switch d {
	case DirIncrement:
		return "increment"
	case DirDecrement:
		return "decrement"
	default:
		return "toggle"
	}
}

// Binding associates a (modifier set, key) pair with a control adjustment.
type Binding struct {
	Mods       ModMask
	KeyName    string
	Code       uint16
	TargetName string
	TargetFunc string
	Dir        Direction
}

func (b *Binding) String() string {
	suffix := "!"
	switch b.Dir {
	case DirIncrement:
		suffix = "+"
	case DirDecrement:
		suffix = "-"
	}
	key := b.KeyName
	if b.Mods != 0 {
		key = b.Mods.String() + "+" + key
	}
	return fmt.Sprintf("%s:%s.%s%s", key, b.TargetName, b.TargetFunc, suffix)
}

// legacyActions are the historical short-form action names, kept for
// backward compatibility with old configurations.
var legacyActions = map[string]struct {
	name string
	fn   string
	dir  Direction
}{
	"inc_level": {"output", "level", DirIncrement},
	"dec_level": {"output", "level", DirDecrement},
	"cycle_dev": {"server", "device", DirToggle},
}

// ParseBinding parses a binding specification:
//
//	[modifier('+'modifier)*'+']key':'name'.'function('+'|'-'|'!')
//
// The trailing '+', '-' or '!' selects increment, decrement or
// toggle/cycle. The action part may also be one of the legacy names
// inc_level, dec_level, cycle_dev. Any malformed input is an error; binding
// configuration fails fast rather than degrading to a partial set.
func ParseBinding(spec string) (Binding, error) {
	keyPart, action, ok := strings.Cut(spec, ":")
	if !ok {
		return Binding{}, fmt.Errorf("%s: expected ':'", spec)
	}

	var b Binding
	parts := strings.Split(keyPart, "+")
	for _, mod := range parts[:len(parts)-1] {
		mask, ok := modifierNames[mod]
		if !ok {
			return Binding{}, fmt.Errorf("%s: bad modifier %q", spec, mod)
		}
		b.Mods |= mask
	}

	b.KeyName = parts[len(parts)-1]
	code, ok := lookupKey(b.KeyName)
	if !ok {
		return Binding{}, fmt.Errorf("%s: unknown key %q", spec, b.KeyName)
	}
	b.Code = code

	if legacy, ok := legacyActions[action]; ok {
		b.TargetName, b.TargetFunc, b.Dir = legacy.name, legacy.fn, legacy.dir
		return b, nil
	}

	if len(action) == 0 {
		return Binding{}, fmt.Errorf("%s: empty action", spec)
	}
	switch action[len(action)-1] {
	case '+':
		b.Dir = DirIncrement
	case '-':
		b.Dir = DirDecrement
	case '!':
		b.Dir = DirToggle
	default:
		return Binding{}, fmt.Errorf("%s: action must end in '+', '-' or '!'", spec)
	}

	target := action[:len(action)-1]
	name, fn, ok := strings.Cut(target, ".")
	if !ok || name == "" || fn == "" || strings.Contains(fn, ".") {
		return Binding{}, fmt.Errorf("%s: action target must be name.function", spec)
	}
	b.TargetName, b.TargetFunc = name, fn
	return b, nil
}

// BindingTable holds the registered bindings. It is built once at startup
// and read-only afterwards; the dispatch loop owns it exclusively.
type BindingTable struct {
	bindings []*Binding
}

// NewBindingTable returns an empty table.
func NewBindingTable() *BindingTable {
	return &BindingTable{}
}

// Register adds a binding, first removing any existing binding for the same
// (target name, target function, direction) triplet. Re-binding an action
// repoints it to the new key; binding two different actions to the same key
// is allowed and both fire on a press.
func (t *BindingTable) Register(b Binding) {
	kept := t.bindings[:0]
	for _, old := range t.bindings {
		if old.TargetName == b.TargetName && old.TargetFunc == b.TargetFunc && old.Dir == b.Dir {
			continue
		}
		kept = append(kept, old)
	}
	t.bindings = append(kept, &b)
}

// Match returns every binding whose modifier mask and keycode match
// exactly, in registration order.
func (t *BindingTable) Match(mods ModMask, code uint16) []*Binding {
	var out []*Binding
	for _, b := range t.bindings {
		if b.Mods == mods && b.Code == code {
			out = append(out, b)
		}
	}
	return out
}

// All returns the bindings in registration order.
func (t *BindingTable) All() []*Binding {
	return t.bindings
}

// GrabSpecs returns the grab requests for every registered binding.
func (t *BindingTable) GrabSpecs() []GrabSpec {
	specs := make([]GrabSpec, 0, len(t.bindings))
	for _, b := range t.bindings {
		specs = append(specs, GrabSpec{Name: b.KeyName, Code: b.Code, Mods: b.Mods})
	}
	return specs
}

// registerDefaultBindings installs the stock key bindings: volume up/down
// on Control+Alt+plus/minus and device cycling on Control+Alt+0.
func registerDefaultBindings(t *BindingTable) {
	for _, spec := range []string{
		"Control+Alt+plus:output.level+",
		"Control+Alt+minus:output.level-",
		"Control+Alt+0:server.device!",
	} {
		b, err := ParseBinding(spec)
		if err != nil {
			panic("default binding " + spec + ": " + err.Error())
		}
		t.Register(b)
	}
}
