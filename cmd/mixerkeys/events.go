package main

// ============================================================================
// Event Types
// ============================================================================
// The dispatch loop multiplexes two event streams: key events from the
// input collaborator and notifications from the mixer collaborator. Both
// are modeled as small marker-interface hierarchies so the loop can switch
// over concrete types.
// ============================================================================

// KeyEvent is an event produced by a KeySource.
type KeyEvent interface {
	keyEventMarker()
}

// KeyPress reports a (possibly auto-repeated) press of a non-modifier key
// together with the modifier state at the time of the press.
type KeyPress struct {
	Code uint16
	Mods ModMask
}

func (KeyPress) keyEventMarker() {}

// KeyboardRemapped reports that the keyboard topology changed (a device
// appeared or disappeared). Key grabs must be released and re-acquired,
// since the set of devices backing them is no longer the same.
type KeyboardRemapped struct{}

func (KeyboardRemapped) keyEventMarker() {}

// KeySourceClosed reports that the key source is gone. This is the
// terminal event: the daemon begins orderly shutdown. Err is nil for a
// deliberate close.
type KeySourceClosed struct {
	Err error
}

func (KeySourceClosed) keyEventMarker() {}

// MixerNotification is an inbound notification from the mixer service.
type MixerNotification interface {
	mixerNotificationMarker()
}

// DescribeNotification reports that a control was added, changed shape, or
// removed. A nil descriptor marks the end of the initial dump.
type DescribeNotification struct {
	Desc  *ControlDescriptor
	Value int
}

func (DescribeNotification) mixerNotificationMarker() {}

// ValueChangedNotification reports that a control's value changed, locally
// or by another client.
type ValueChangedNotification struct {
	Addr  int
	Value int
}

func (ValueChangedNotification) mixerNotificationMarker() {}

// MixerHangup reports that the mixer connection is gone.
type MixerHangup struct {
	Err error
}

func (MixerHangup) mixerNotificationMarker() {}
