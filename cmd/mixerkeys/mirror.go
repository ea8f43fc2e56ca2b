package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// ============================================================================
// Control Mirror
// ============================================================================
// The mirror is the daemon's local replica of the controls exposed by the
// mixer service. It is rebuilt from scratch on every connection, updated by
// asynchronous describe/value-change notifications, and consulted to answer
// "what is the current value of control X" and "what is the next selector
// option" without a round trip.
//
// Concurrency: the mirror is owned by the dispatch loop and must only be
// touched from the loop goroutine. Mutations never perform I/O; they return
// the Commands (outbound set-value calls) the loop should execute.
// ============================================================================

// ControlKind classifies a mixer control.
type ControlKind int

const (
	KindNumber ControlKind = iota
	KindSwitch
	KindSelector
	KindVector
	KindList
)

var kindNames = map[ControlKind]string{
	KindNumber:   "num",
	KindSwitch:   "sw",
	KindSelector: "sel",
	KindVector:   "vec",
	KindList:     "list",
}

func (k ControlKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalJSON encodes the kind using its wire name.
func (k ControlKind) MarshalJSON() ([]byte, error) {
	s, ok := kindNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown control kind %d", int(k))
	}
	return json.Marshal(s)
}

// UnmarshalJSON decodes the wire name of a kind.
func (k *ControlKind) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	for kind, name := range kindNames {
		if name == s {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown control kind %q", s)
}

// actionable reports whether this system can adjust controls of this kind.
// Vector and List controls are announced by the mixer but are not hotkey
// material, so the mirror drops them.
func (k ControlKind) actionable() bool {
	switch k {
	case KindNumber, KindSwitch, KindSelector:
		return true
	}
	return false
}

// ControlNode identifies one endpoint of a control. Unit is -1 when the
// control has no per-channel instance.
type ControlNode struct {
	Name string `json:"name"`
	Unit int    `json:"unit"`
}

// ControlDescriptor is the shape of a control as announced by the mixer on
// describe events. Addr is an opaque handle, unique per live control and
// recycled after removal. Node1 is only meaningful for selector controls,
// where it names the option the entry represents.
type ControlDescriptor struct {
	Addr     int         `json:"addr"`
	Group    string      `json:"group"`
	Node0    ControlNode `json:"node0"`
	Node1    ControlNode `json:"node1"`
	Func     string      `json:"func"`
	Kind     ControlKind `json:"kind"`
	MaxValue int         `json:"max_value"`
}

// Label renders a descriptor for log messages, e.g. "output.level" or
// "server.device:rsnd0".
func (d *ControlDescriptor) Label() string {
	n := d.Node0.Name
	if d.Group != "" {
		n = d.Group + "/" + n
	}
	if d.Node0.Unit >= 0 {
		n = fmt.Sprintf("%s[%d]", n, d.Node0.Unit)
	}
	s := n + "." + d.Func
	if d.Kind == KindSelector && d.Node1.Name != "" {
		s += ":" + d.Node1.Name
	}
	return s
}

// sameSelectorGroup reports whether two descriptors belong to the same
// selector group, i.e. represent mutually exclusive options of one logical
// choice. Exactly one member of such a group is active at a time.
func sameSelectorGroup(a, b *ControlDescriptor) bool {
	return a.Group == b.Group &&
		a.Node0.Name == b.Node0.Name &&
		a.Func == b.Func &&
		a.Node0.Unit == b.Node0.Unit
}

// compareDescriptors implements the mirror's total order:
// (group, node0 name, kind, func, node0 unit) and, for selectors, also
// (node1 name, node1 unit). The order keeps all entries of one logical
// control (e.g. the members of a device selector) contiguous.
func compareDescriptors(a, b *ControlDescriptor) int {
	if c := strings.Compare(a.Group, b.Group); c != 0 {
		return c
	}
	if c := strings.Compare(a.Node0.Name, b.Node0.Name); c != 0 {
		return c
	}
	if a.Kind != b.Kind {
		if a.Kind < b.Kind {
			return -1
		}
		return 1
	}
	if c := strings.Compare(a.Func, b.Func); c != 0 {
		return c
	}
	if a.Node0.Unit != b.Node0.Unit {
		if a.Node0.Unit < b.Node0.Unit {
			return -1
		}
		return 1
	}
	if a.Kind == KindSelector {
		if c := strings.Compare(a.Node1.Name, b.Node1.Name); c != 0 {
			return c
		}
		if a.Node1.Unit != b.Node1.Unit {
			if a.Node1.Unit < b.Node1.Unit {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Control is one mirrored entry: the descriptor plus the last known value
// (0/1 for switches and selector members, 0..MaxValue for numbers).
type Control struct {
	Desc  ControlDescriptor
	Value int
}

// ControlStatus is the snapshot form of a mirrored control, used by the IPC
// status reply.
type ControlStatus struct {
	Addr     int    `json:"addr"`
	Group    string `json:"group,omitempty"`
	Name     string `json:"name"`
	Unit     int    `json:"unit"`
	Func     string `json:"func"`
	Kind     string `json:"kind"`
	Option   string `json:"option,omitempty"`
	Value    int    `json:"value"`
	MaxValue int    `json:"max_value"`
}

// Mirror holds the ordered replica of the mixer's actionable controls.
type Mirror struct {
	entries []*Control
	byAddr  map[int]*Control
	logger  *slog.Logger
}

// NewMirror creates an empty mirror.
func NewMirror(logger *slog.Logger) *Mirror {
	return &Mirror{
		byAddr: make(map[int]*Control),
		logger: logger,
	}
}

// Len returns the number of mirrored controls.
func (m *Mirror) Len() int { return len(m.entries) }

// OnDescribe handles a describe event. A nil descriptor is the
// end-of-initial-dump sentinel and is ignored. A repeated address means the
// control was removed (and possibly recreated with a new shape), so any
// existing entry for the address is dropped first. Controls of
// non-actionable kinds are not mirrored.
func (m *Mirror) OnDescribe(desc *ControlDescriptor, value int) {
	if desc == nil {
		return
	}

	if old, ok := m.byAddr[desc.Addr]; ok {
		m.remove(old)
	}

	if !desc.Kind.actionable() {
		return
	}

	c := &Control{Desc: *desc, Value: value}
	i := sort.Search(len(m.entries), func(i int) bool {
		return compareDescriptors(&m.entries[i].Desc, &c.Desc) >= 0
	})
	m.entries = append(m.entries, nil)
	copy(m.entries[i+1:], m.entries[i:])
	m.entries[i] = c
	m.byAddr[desc.Addr] = c

	m.logger.Debug("control described", "control", c.Desc.Label(), "addr", desc.Addr, "value", value)
}

// OnValueChanged handles a value-change event. A stale address (control
// already removed) is a protocol race, not an error, and is ignored.
//
// For selector members the event means "this option became active": the
// mirror re-establishes group exclusivity itself rather than trusting the
// service, setting the changed member to 1 and all its group peers to 0.
// The reported value is ignored for selectors, matching the wire contract.
//
// The return value reports whether any mirrored value actually changed,
// which the dispatch loop uses for bell substitution.
func (m *Mirror) OnValueChanged(addr, value int) bool {
	c, ok := m.byAddr[addr]
	if !ok {
		m.logger.Debug("value change for unknown control", "addr", addr)
		return false
	}

	if c.Desc.Kind == KindSelector {
		changed := false
		for _, peer := range m.entries {
			if !sameSelectorGroup(&peer.Desc, &c.Desc) {
				continue
			}
			v := 0
			if peer.Desc.Addr == addr {
				v = 1
			}
			if peer.Value != v {
				peer.Value = v
				changed = true
			}
		}
		return changed
	}

	if c.Value == value {
		return false
	}
	c.Value = value
	return true
}

// FindByName returns all top-level controls matching the given entity name
// and function, in mirror order. The same logical control may yield several
// entries (per-channel instances, selector options); callers handle the
// group as a unit.
func (m *Mirror) FindByName(name, fn string) []*Control {
	var out []*Control
	for _, c := range m.entries {
		if c.Desc.Group == "" && c.Desc.Node0.Name == name && c.Desc.Func == fn {
			out = append(out, c)
		}
	}
	return out
}

// AdjustNumber steps or toggles a single control.
//
//   - MaxValue > 1 with a non-zero direction steps the value by
//     ceil(MaxValue/levelSteps), clamped to [0, MaxValue].
//   - MaxValue == 1 with direction 0 toggles a switch.
//   - Every other combination is a no-op.
//
// On an effective change the local value is updated and the outbound
// set-value command is returned; the second result reports whether the
// value changed (feedback pending).
func (m *Mirror) AdjustNumber(c *Control, dir Direction) ([]Command, bool) {
	switch {
	case c.Desc.MaxValue > 1 && dir != DirToggle:
		step := (c.Desc.MaxValue + levelSteps - 1) / levelSteps
		v := c.Value + int(dir)*step
		if v < 0 {
			v = 0
		}
		if v > c.Desc.MaxValue {
			v = c.Desc.MaxValue
		}
		if v == c.Value {
			return nil, false
		}
		m.logger.Debug("setting level", "control", c.Desc.Label(), "value", v)
		c.Value = v
		return []Command{CmdSetValue{Addr: c.Desc.Addr, Value: v}}, true

	case c.Desc.MaxValue == 1 && dir == DirToggle:
		v := 1 - c.Value
		m.logger.Debug("toggling switch", "control", c.Desc.Label(), "value", v)
		c.Value = v
		return []Command{CmdSetValue{Addr: c.Desc.Addr, Value: v}}, true
	}
	return nil, false
}

// AdvanceSelector cycles a selector group to its next option, wrapping to
// the first. The group slice must be the members of one selector group in
// mirror order. Selectors are cycled, never incremented, so any non-zero
// direction is a no-op.
//
// An empty current value or a single-member group is a recoverable protocol
// race: logged, nothing changes.
func (m *Mirror) AdvanceSelector(group []*Control, dir Direction) ([]Command, bool) {
	if dir != DirToggle || len(group) == 0 {
		return nil, false
	}

	cur := -1
	for i, c := range group {
		if c.Value == 1 {
			cur = i
			break
		}
	}
	if cur < 0 {
		m.logger.Warn("selector group has no current value", "control", group[0].Desc.Label())
		return nil, false
	}

	next := (cur + 1) % len(group)
	if next == cur {
		m.logger.Warn("selector group has no next value", "control", group[cur].Desc.Label())
		return nil, false
	}

	m.logger.Debug("setting selector", "control", group[next].Desc.Label())
	group[cur].Value = 0
	group[next].Value = 1
	return []Command{CmdSetValue{Addr: group[next].Desc.Addr, Value: 1}}, true
}

// Clear drops every mirrored control. Called on connection teardown; the
// mirror is rebuilt from the describe dump of the next connection.
func (m *Mirror) Clear() {
	m.entries = nil
	m.byAddr = make(map[int]*Control)
}

// Snapshot returns the mirrored controls in mirror order.
func (m *Mirror) Snapshot() []ControlStatus {
	out := make([]ControlStatus, 0, len(m.entries))
	for _, c := range m.entries {
		s := ControlStatus{
			Addr:     c.Desc.Addr,
			Group:    c.Desc.Group,
			Name:     c.Desc.Node0.Name,
			Unit:     c.Desc.Node0.Unit,
			Func:     c.Desc.Func,
			Kind:     c.Desc.Kind.String(),
			Value:    c.Value,
			MaxValue: c.Desc.MaxValue,
		}
		if c.Desc.Kind == KindSelector {
			s.Option = c.Desc.Node1.Name
		}
		out = append(out, s)
	}
	return out
}

func (m *Mirror) remove(c *Control) {
	for i, e := range m.entries {
		if e == c {
			m.entries = append(m.entries[:i], m.entries[i+1:]...)
			break
		}
	}
	delete(m.byAddr, c.Desc.Addr)
}
