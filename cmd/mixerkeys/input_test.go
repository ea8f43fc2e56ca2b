package main

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestInputEventWireSize(t *testing.T) {
	// struct input_event on 64-bit Linux: timeval (16) + type (2) + code (2)
	// + value (4).
	if size := binary.Size(inputEvent{}); size != 24 {
		t.Fatalf("expected 24-byte input_event, got %d", size)
	}
}

func TestHasKeyBit(t *testing.T) {
	bits := make([]byte, keyBitmapBytes)
	bits[keyNames["a"]/8] |= 1 << (keyNames["a"] % 8)

	if !hasKeyBit(bits, keyNames["a"]) {
		t.Error("expected 'a' bit set")
	}
	if hasKeyBit(bits, keyNames["z"]) {
		t.Error("expected 'z' bit clear")
	}
	// Out-of-range codes never match.
	if hasKeyBit(bits[:1], 1000) {
		t.Error("expected out-of-range code to be clear")
	}
}

func TestGrabError_Messages(t *testing.T) {
	unsupported := &GrabError{Key: "plus"}
	if unsupported.Error() != `key "plus": not supported by any input device` {
		t.Errorf("unexpected message: %s", unsupported.Error())
	}

	cause := errors.New("device or resource busy")
	busy := &GrabError{Device: "/dev/input/event3", Err: cause}
	if !errors.Is(busy, cause) {
		t.Error("expected Unwrap to expose the cause")
	}
}
