package main

import (
	"context"
	"log/slog"
)

// ============================================================================
// Dispatch Loop - The Daemon Brain
// ============================================================================
// The dispatcher is the single owner of all mutable daemon state: the
// control mirror, the binding table, the mixer connection and the pending
// feedback flag. It multiplexes three sources:
//   - key events from the KeySource
//   - notifications from the mixer connection
//   - requests from the IPC server
//
// Only this goroutine touches the mirror or talks to the mixer. Other
// goroutines communicate exclusively through channels.
//
// Connection policy is lazy: a lost mixer connection flips the dispatcher
// to disconnected (and clears the mirror), and the next action that needs
// the mixer triggers exactly one reconnect attempt. Hotkeys stay grabbed
// while disconnected, so a press both proves liveness to the user and
// drives recovery.
// ============================================================================

// ConnState is the dispatcher's view of the mixer connection.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnected
)

func (s ConnState) String() string {
	if s == StateConnected {
		return "connected"
	}
	return "disconnected"
}

// Request is a command sent to the dispatcher by the IPC server.
type Request interface {
	requestMarker()
}

// AdjustRequest asks for the same control adjustment a key binding would
// perform.
type AdjustRequest struct {
	Name string
	Func string
	Dir  Direction
}

func (AdjustRequest) requestMarker() {}

// StatusRequest asks for a snapshot of the daemon state. The reply channel
// must be buffered; the dispatcher sends exactly one snapshot and never
// blocks on it.
type StatusRequest struct {
	Reply chan<- StatusSnapshot
}

func (StatusRequest) requestMarker() {}

// StatusSnapshot is the dispatcher state as reported over IPC.
type StatusSnapshot struct {
	State    string          `json:"state"`
	Bindings []string        `json:"bindings"`
	Controls []ControlStatus `json:"controls"`
}

// Dispatcher runs the daemon event loop.
type Dispatcher struct {
	logger   *slog.Logger
	keys     KeySource
	bindings *BindingTable
	mirror   *Mirror
	feedback Feedback
	bell     bool

	dial  func() (MixerConn, error)
	conn  MixerConn
	state ConnState

	requests chan Request

	feedbackPending bool
}

// NewDispatcher wires up a dispatcher. dial is invoked for every lazy
// reconnect attempt; it must not retry internally.
func NewDispatcher(
	logger *slog.Logger,
	keys KeySource,
	bindings *BindingTable,
	mirror *Mirror,
	feedback Feedback,
	bell bool,
	dial func() (MixerConn, error),
) *Dispatcher {
	return &Dispatcher{
		logger:   logger,
		keys:     keys,
		bindings: bindings,
		mirror:   mirror,
		feedback: feedback,
		bell:     bell,
		dial:     dial,
		requests: make(chan Request, 16),
	}
}

// Requests returns the channel the IPC server feeds.
func (s *Dispatcher) Requests() chan<- Request { return s.requests }

// Run grabs the bound keys and processes events until the context is
// cancelled or the key source closes. A nil return is an orderly shutdown.
func (s *Dispatcher) Run(ctx context.Context) error {
	if err := s.keys.Grab(s.bindings.GrabSpecs()); err != nil {
		return err
	}
	defer s.keys.UngrabAll()

	// Eager first connect so the mirror is warm before the first press.
	// Failure is tolerated; the daemon starts disconnected.
	s.ensureConnected()

	for {
		var notifs <-chan MixerNotification
		if s.conn != nil {
			notifs = s.conn.Notifications()
		}

		select {
		case <-ctx.Done():
			s.disconnect()
			return nil

		case ev, ok := <-s.keys.Events():
			if !ok {
				ev = KeySourceClosed{}
			}
			stop, err := s.handleKeyEvent(ev)
			if !stop {
				stop, err = s.drainKeys()
			}
			s.flushFeedback()
			if stop {
				s.disconnect()
				return err
			}

		case n, ok := <-notifs:
			if !ok {
				// Channel closed after the hangup was delivered.
				s.disconnect()
				continue
			}
			s.handleNotification(n)
			s.flushFeedback()

		case req := <-s.requests:
			s.handleRequest(req)
			s.flushFeedback()
		}
	}
}

// handleKeyEvent processes one key event. stop is true when the daemon
// should shut down; a non-nil error makes the shutdown a failure.
func (s *Dispatcher) handleKeyEvent(ev KeyEvent) (stop bool, err error) {
	switch e := ev.(type) {
	case KeyPress:
		for _, b := range s.bindings.Match(e.Mods, e.Code) {
			s.applyAdjust(b.TargetName, b.TargetFunc, b.Dir)
		}

	case KeyboardRemapped:
		s.logger.Info("keyboard mapping changed, re-acquiring grabs")
		s.keys.UngrabAll()
		if err := s.keys.Grab(s.bindings.GrabSpecs()); err != nil {
			return true, err
		}

	case KeySourceClosed:
		if e.Err != nil {
			s.logger.Warn("key source lost", "error", e.Err)
		} else {
			s.logger.Info("key source closed")
		}
		return true, nil
	}
	return false, nil
}

// drainKeys handles any already-buffered key events before feedback is
// flushed, so a burst of presses yields one tone.
func (s *Dispatcher) drainKeys() (stop bool, err error) {
	for {
		select {
		case ev, ok := <-s.keys.Events():
			if !ok {
				ev = KeySourceClosed{}
			}
			stop, err = s.handleKeyEvent(ev)
			if stop {
				return stop, err
			}
		default:
			return false, nil
		}
	}
}

// applyAdjust performs one named control adjustment: a step for numbers, a
// toggle for switches, a cycle for selectors. Unknown names and
// kind/direction mismatches are no-ops.
func (s *Dispatcher) applyAdjust(name, fn string, dir Direction) {
	if !s.ensureConnected() {
		return
	}

	group := s.mirror.FindByName(name, fn)
	if len(group) == 0 {
		s.logger.Debug("no matching control", "name", name, "func", fn)
		return
	}

	var cmds []Command
	changed := false
	if group[0].Desc.Kind == KindSelector {
		members := group[:0:0]
		for _, c := range group {
			if sameSelectorGroup(&c.Desc, &group[0].Desc) {
				members = append(members, c)
			}
		}
		cmds, changed = s.mirror.AdvanceSelector(members, dir)
	} else {
		// Per-channel instances of one logical control move together.
		for _, c := range group {
			cs, ch := s.mirror.AdjustNumber(c, dir)
			cmds = append(cmds, cs...)
			changed = changed || ch
		}
	}

	for _, cmd := range cmds {
		s.execute(cmd)
	}
	if changed {
		s.feedbackPending = true
	}
}

// execute performs one outbound command. A write failure means the
// connection is dead; the dispatcher flips to disconnected and the command
// is dropped (the mirror resyncs on the next connection).
func (s *Dispatcher) execute(cmd Command) {
	if s.conn == nil {
		return
	}
	switch c := cmd.(type) {
	case CmdSetValue:
		if err := s.conn.SetValue(c.Addr, c.Value); err != nil {
			s.logger.Warn("mixer write failed", "command", c.String(), "error", err)
			s.disconnect()
		}
	default:
		s.logger.Warn("unknown command", "command", cmd.String())
	}
}

// handleNotification processes one inbound mixer notification.
func (s *Dispatcher) handleNotification(n MixerNotification) {
	switch e := n.(type) {
	case DescribeNotification:
		s.mirror.OnDescribe(e.Desc, e.Value)

	case ValueChangedNotification:
		// Local adjustments update the mirror before the echo arrives, so
		// only changes made by other clients register here.
		if s.mirror.OnValueChanged(e.Addr, e.Value) && s.bell {
			s.feedbackPending = true
		}

	case MixerHangup:
		s.logger.Warn("mixer connection lost", "error", e.Err)
		s.disconnect()
	}
}

// handleRequest processes one IPC request.
func (s *Dispatcher) handleRequest(req Request) {
	switch r := req.(type) {
	case AdjustRequest:
		s.applyAdjust(r.Name, r.Func, r.Dir)

	case StatusRequest:
		snap := StatusSnapshot{
			State:    s.state.String(),
			Controls: s.mirror.Snapshot(),
		}
		for _, b := range s.bindings.All() {
			snap.Bindings = append(snap.Bindings, b.String())
		}
		select {
		case r.Reply <- snap:
		default:
		}
	}
}

// ensureConnected performs at most one reconnect attempt and reports
// whether a connection is available afterwards.
func (s *Dispatcher) ensureConnected() bool {
	if s.conn != nil {
		return true
	}
	conn, err := s.dial()
	if err != nil {
		s.logger.Warn("mixer unavailable", "error", err)
		return false
	}
	s.conn = conn
	s.state = StateConnected
	s.logger.Info("mixer connected")
	return true
}

// disconnect drops the mixer connection and clears the mirror. The mirror
// is rebuilt from the describe dump of the next connection.
func (s *Dispatcher) disconnect() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	if s.state != StateDisconnected {
		s.logger.Info("mixer disconnected")
	}
	s.state = StateDisconnected
	s.mirror.Clear()
}

// flushFeedback rings at most one tone per drained batch of events.
func (s *Dispatcher) flushFeedback() {
	if !s.feedbackPending {
		return
	}
	s.feedbackPending = false
	s.feedback.Ring()
}
