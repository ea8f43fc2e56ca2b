package main

import (
	"errors"
	"testing"
)

// fakeKeySource is a test double for KeySource.
type fakeKeySource struct {
	events      chan KeyEvent
	grabCalls   int
	ungrabCalls int
	grabErr     error
}

func newFakeKeySource() *fakeKeySource {
	return &fakeKeySource{events: make(chan KeyEvent, 16)}
}

func (f *fakeKeySource) Grab(specs []GrabSpec) error {
	f.grabCalls++
	return f.grabErr
}

func (f *fakeKeySource) UngrabAll()              { f.ungrabCalls++ }
func (f *fakeKeySource) Events() <-chan KeyEvent { return f.events }
func (f *fakeKeySource) Close() error            { return nil }

// fakeMixerConn is a test double for MixerConn.
type fakeMixerConn struct {
	notifs   chan MixerNotification
	setCalls []CmdSetValue
	setErr   error
	closed   bool
}

func newFakeMixerConn() *fakeMixerConn {
	return &fakeMixerConn{notifs: make(chan MixerNotification, 16)}
}

func (f *fakeMixerConn) SetValue(addr, value int) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.setCalls = append(f.setCalls, CmdSetValue{Addr: addr, Value: value})
	return nil
}

func (f *fakeMixerConn) Notifications() <-chan MixerNotification { return f.notifs }

func (f *fakeMixerConn) Close() error {
	f.closed = true
	return nil
}

// countingFeedback records how many tones were rung.
type countingFeedback struct {
	rings int
}

func (c *countingFeedback) Ring() { c.rings++ }

// testDispatcher wires a dispatcher with fakes and an already-established
// connection (unless dialErr is set).
func testDispatcher(t *testing.T, bell bool) (*Dispatcher, *fakeKeySource, *fakeMixerConn, *countingFeedback) {
	t.Helper()

	keys := newFakeKeySource()
	conn := newFakeMixerConn()
	feedback := &countingFeedback{}

	table := NewBindingTable()
	registerDefaultBindings(table)

	mirror := NewMirror(testLogger())
	disp := NewDispatcher(testLogger(), keys, table, mirror, feedback, bell,
		func() (MixerConn, error) { return conn, nil })
	disp.conn = conn
	disp.state = StateConnected
	return disp, keys, conn, feedback
}

func TestDispatcher_AdjustCoalescesFeedback(t *testing.T) {
	disp, _, conn, feedback := testDispatcher(t, false)
	disp.mirror.OnDescribe(numDesc(1, "output", -1, "level", 127), 0)

	// Two buffered adjustments drain before feedback flushes: two outbound
	// commands, one tone.
	disp.applyAdjust("output", "level", DirIncrement)
	disp.applyAdjust("output", "level", DirIncrement)
	disp.flushFeedback()

	if len(conn.setCalls) != 2 {
		t.Fatalf("expected 2 SetValue calls, got %d", len(conn.setCalls))
	}
	if feedback.rings != 1 {
		t.Errorf("expected 1 coalesced tone, got %d", feedback.rings)
	}

	// A later adjustment rings again.
	disp.applyAdjust("output", "level", DirDecrement)
	disp.flushFeedback()
	if feedback.rings != 2 {
		t.Errorf("expected second tone, got %d", feedback.rings)
	}
}

func TestDispatcher_NoFeedbackOnNoop(t *testing.T) {
	disp, _, conn, feedback := testDispatcher(t, false)
	disp.mirror.OnDescribe(numDesc(1, "output", -1, "level", 127), 127)

	// Already at the maximum: no command, no tone.
	disp.applyAdjust("output", "level", DirIncrement)
	disp.flushFeedback()

	if len(conn.setCalls) != 0 {
		t.Errorf("expected no SetValue calls, got %d", len(conn.setCalls))
	}
	if feedback.rings != 0 {
		t.Errorf("expected no tone, got %d", feedback.rings)
	}

	// Unknown control: same.
	disp.applyAdjust("nosuch", "level", DirIncrement)
	disp.flushFeedback()
	if feedback.rings != 0 {
		t.Errorf("expected no tone for unknown control, got %d", feedback.rings)
	}
}

func TestDispatcher_PerChannelInstancesMoveTogether(t *testing.T) {
	disp, _, conn, feedback := testDispatcher(t, false)
	disp.mirror.OnDescribe(numDesc(1, "input", 0, "level", 127), 10)
	disp.mirror.OnDescribe(numDesc(2, "input", 1, "level", 127), 10)

	disp.applyAdjust("input", "level", DirIncrement)
	disp.flushFeedback()

	if len(conn.setCalls) != 2 {
		t.Fatalf("expected both channels adjusted, got %d calls", len(conn.setCalls))
	}
	if feedback.rings != 1 {
		t.Errorf("expected one tone for the pair, got %d", feedback.rings)
	}
}

func TestDispatcher_SelectorCycle(t *testing.T) {
	disp, _, conn, _ := testDispatcher(t, false)
	disp.mirror.OnDescribe(selDesc(1, "server", "device", "rsnd0"), 1)
	disp.mirror.OnDescribe(selDesc(2, "server", "device", "rsnd1"), 0)

	disp.applyAdjust("server", "device", DirToggle)

	if len(conn.setCalls) != 1 {
		t.Fatalf("expected one SetValue, got %d", len(conn.setCalls))
	}
	if conn.setCalls[0].Addr != 2 || conn.setCalls[0].Value != 1 {
		t.Errorf("expected SetValue(2, 1), got %v", conn.setCalls[0])
	}
}

func TestDispatcher_LazyReconnect(t *testing.T) {
	keys := newFakeKeySource()
	feedback := &countingFeedback{}
	table := NewBindingTable()
	registerDefaultBindings(table)

	dials := 0
	dialErr := errors.New("connection refused")
	conn := newFakeMixerConn()
	disp := NewDispatcher(testLogger(), keys, table, NewMirror(testLogger()), feedback, false,
		func() (MixerConn, error) {
			dials++
			if dialErr != nil {
				return nil, dialErr
			}
			return conn, nil
		})

	// Disconnected: each action triggers exactly one dial attempt.
	disp.applyAdjust("output", "level", DirIncrement)
	disp.applyAdjust("output", "level", DirIncrement)
	if dials != 2 {
		t.Fatalf("expected one dial per action, got %d", dials)
	}
	if disp.state != StateDisconnected {
		t.Fatal("expected still disconnected after failed dials")
	}

	// Mixer back: next action connects, and later actions reuse the
	// connection.
	dialErr = nil
	disp.applyAdjust("output", "level", DirIncrement)
	disp.applyAdjust("output", "level", DirIncrement)
	if dials != 3 {
		t.Errorf("expected a single successful dial, got %d", dials)
	}
	if disp.state != StateConnected {
		t.Error("expected connected state")
	}
}

func TestDispatcher_HangupClearsMirror(t *testing.T) {
	disp, _, conn, _ := testDispatcher(t, false)
	disp.mirror.OnDescribe(numDesc(1, "output", -1, "level", 127), 50)

	disp.handleNotification(MixerHangup{Err: errors.New("gone")})

	if disp.state != StateDisconnected {
		t.Error("expected disconnected state after hangup")
	}
	if !conn.closed {
		t.Error("expected connection closed")
	}
	if disp.mirror.Len() != 0 {
		t.Errorf("expected mirror cleared, got %d entries", disp.mirror.Len())
	}
}

func TestDispatcher_WriteFailureDisconnects(t *testing.T) {
	disp, _, conn, _ := testDispatcher(t, false)
	disp.mirror.OnDescribe(numDesc(1, "output", -1, "level", 127), 50)
	conn.setErr = errors.New("broken pipe")

	disp.applyAdjust("output", "level", DirIncrement)

	if disp.state != StateDisconnected {
		t.Error("expected disconnect after write failure")
	}
	if disp.mirror.Len() != 0 {
		t.Error("expected mirror cleared after write failure")
	}
}

func TestDispatcher_BellOnExternalChange(t *testing.T) {
	disp, _, _, feedback := testDispatcher(t, true)
	disp.mirror.OnDescribe(numDesc(1, "output", -1, "level", 127), 50)

	// Another client moved the control.
	disp.handleNotification(ValueChangedNotification{Addr: 1, Value: 60})
	disp.flushFeedback()
	if feedback.rings != 1 {
		t.Fatalf("expected bell on external change, got %d rings", feedback.rings)
	}

	// Echo of a local adjustment: the mirror already holds the value, so
	// no second tone for the same change.
	disp.applyAdjust("output", "level", DirIncrement)
	disp.flushFeedback()
	rings := feedback.rings
	disp.handleNotification(ValueChangedNotification{Addr: 1, Value: 67})
	disp.flushFeedback()
	if feedback.rings != rings {
		t.Errorf("expected echo suppressed, got %d extra rings", feedback.rings-rings)
	}
}

func TestDispatcher_NoBellByDefault(t *testing.T) {
	disp, _, _, feedback := testDispatcher(t, false)
	disp.mirror.OnDescribe(numDesc(1, "output", -1, "level", 127), 50)

	disp.handleNotification(ValueChangedNotification{Addr: 1, Value: 60})
	disp.flushFeedback()
	if feedback.rings != 0 {
		t.Errorf("expected no bell without -bell, got %d rings", feedback.rings)
	}
}

func TestDispatcher_KeyPressDrivesBindings(t *testing.T) {
	disp, _, conn, _ := testDispatcher(t, false)
	disp.mirror.OnDescribe(numDesc(1, "output", -1, "level", 127), 50)

	stop, err := disp.handleKeyEvent(KeyPress{Code: keyNames["plus"], Mods: ModCtrl | ModAlt})
	if stop || err != nil {
		t.Fatalf("unexpected stop=%v err=%v", stop, err)
	}
	if len(conn.setCalls) != 1 {
		t.Fatalf("expected bound key to adjust, got %d calls", len(conn.setCalls))
	}

	// Unbound combination: nothing happens.
	disp.handleKeyEvent(KeyPress{Code: keyNames["plus"], Mods: ModCtrl})
	if len(conn.setCalls) != 1 {
		t.Errorf("expected unbound press ignored, got %d calls", len(conn.setCalls))
	}
}

func TestDispatcher_RemapReacquiresGrabs(t *testing.T) {
	disp, keys, _, _ := testDispatcher(t, false)

	stop, err := disp.handleKeyEvent(KeyboardRemapped{})
	if stop || err != nil {
		t.Fatalf("unexpected stop=%v err=%v", stop, err)
	}
	if keys.ungrabCalls != 1 || keys.grabCalls != 1 {
		t.Errorf("expected ungrab+grab, got %d/%d", keys.ungrabCalls, keys.grabCalls)
	}

	// A grab failure after remap is fatal.
	keys.grabErr = &GrabError{Key: "plus"}
	stop, err = disp.handleKeyEvent(KeyboardRemapped{})
	if !stop || err == nil {
		t.Errorf("expected fatal stop on grab failure, got stop=%v err=%v", stop, err)
	}
}

func TestDispatcher_KeySourceClosedStops(t *testing.T) {
	disp, _, _, _ := testDispatcher(t, false)

	stop, err := disp.handleKeyEvent(KeySourceClosed{})
	if !stop || err != nil {
		t.Errorf("expected orderly stop, got stop=%v err=%v", stop, err)
	}

	// A lost key source still shuts down cleanly.
	stop, err = disp.handleKeyEvent(KeySourceClosed{Err: errors.New("device gone")})
	if !stop || err != nil {
		t.Errorf("expected orderly stop on loss, got stop=%v err=%v", stop, err)
	}
}

func TestDispatcher_StatusRequest(t *testing.T) {
	disp, _, _, _ := testDispatcher(t, false)
	disp.mirror.OnDescribe(numDesc(1, "output", -1, "level", 127), 50)

	reply := make(chan StatusSnapshot, 1)
	disp.handleRequest(StatusRequest{Reply: reply})

	snap := <-reply
	if snap.State != "connected" {
		t.Errorf("expected connected state, got %q", snap.State)
	}
	if len(snap.Bindings) != 3 {
		t.Errorf("expected 3 default bindings, got %d", len(snap.Bindings))
	}
	if len(snap.Controls) != 1 || snap.Controls[0].Name != "output" {
		t.Errorf("unexpected controls: %v", snap.Controls)
	}
}

func TestDispatcher_AdjustRequest(t *testing.T) {
	disp, _, conn, feedback := testDispatcher(t, false)
	disp.mirror.OnDescribe(swDesc(1, "output", "mute"), 0)

	disp.handleRequest(AdjustRequest{Name: "output", Func: "mute", Dir: DirToggle})
	disp.flushFeedback()

	if len(conn.setCalls) != 1 || conn.setCalls[0].Value != 1 {
		t.Fatalf("expected mute toggled on, got %v", conn.setCalls)
	}
	if feedback.rings != 1 {
		t.Errorf("expected one tone, got %d", feedback.rings)
	}
}

func TestDispatcher_DescribeRebuildsAfterReconnect(t *testing.T) {
	disp, _, _, _ := testDispatcher(t, false)

	disp.handleNotification(DescribeNotification{Desc: numDesc(1, "output", -1, "level", 127), Value: 40})
	disp.handleNotification(DescribeNotification{Desc: nil})

	if disp.mirror.Len() != 1 {
		t.Fatalf("expected 1 control after dump, got %d", disp.mirror.Len())
	}
	got := disp.mirror.FindByName("output", "level")
	if len(got) != 1 || got[0].Value != 40 {
		t.Errorf("unexpected mirrored control: %v", got)
	}
}
