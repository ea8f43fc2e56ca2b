package main

// Linux input event types and codes (from <linux/input.h>)
const (
	evKey = 0x01

	keyLeftCtrl   = 29
	keyRightCtrl  = 97
	keyLeftAlt    = 56
	keyRightAlt   = 100
	keyLeftMeta   = 125
	keyRightMeta  = 126
	keyMaxKeycode = 0x2ff
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// evdev ioctl requests. x/sys/unix does not generate the EVIOC* family,
// so the ones we need are spelled out here.
//
//	EVIOCGRAB        = _IOW('E', 0x90, int)
//	EVIOCGBIT(EV_KEY) = _IOR('E', 0x20+EV_KEY, keyBitmapBytes)
const (
	eviocgrab      = 0x40044590
	keyBitmapBytes = keyMaxKeycode/8 + 1
	eviocgbitKey   = 2<<30 | keyBitmapBytes<<16 | 'E'<<8 | (0x20 + evKey)
)

// Daemon defaults
const (
	defaultMixerURL      = "ws://127.0.0.1:7770"
	defaultReadTimeoutMS = 500 // Timeout for mixer websocket writes/handshake (ms)
	defaultIPCSocket     = "/tmp/mixerkeys.sock"

	// Number of level steps between 0 and the control's maximum.
	levelSteps = 20

	// Feedback tone (matches the classic hotkey-daemon bell: 880 Hz, 50 ms).
	defaultToneHz         = 880
	defaultToneDurationMS = 50
)
