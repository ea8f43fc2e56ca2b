package main

import "testing"

func TestDecodeNotification_Describe(t *testing.T) {
	msg := []byte(`{"type":"desc","data":{"desc":{"addr":3,"group":"","node0":{"name":"output","unit":-1},"node1":{"name":"","unit":-1},"func":"level","kind":"num","max_value":127},"value":95}}`)

	n, err := decodeNotification(msg)
	if err != nil {
		t.Fatalf("decodeNotification failed: %v", err)
	}
	d, ok := n.(DescribeNotification)
	if !ok {
		t.Fatalf("expected DescribeNotification, got %T", n)
	}
	if d.Desc == nil || d.Desc.Addr != 3 || d.Desc.Kind != KindNumber || d.Desc.MaxValue != 127 {
		t.Errorf("unexpected descriptor: %+v", d.Desc)
	}
	if d.Value != 95 {
		t.Errorf("expected value 95, got %d", d.Value)
	}
}

func TestDecodeNotification_EndOfDump(t *testing.T) {
	msg := []byte(`{"type":"desc","data":{"desc":null,"value":0}}`)

	n, err := decodeNotification(msg)
	if err != nil {
		t.Fatalf("decodeNotification failed: %v", err)
	}
	d, ok := n.(DescribeNotification)
	if !ok {
		t.Fatalf("expected DescribeNotification, got %T", n)
	}
	if d.Desc != nil {
		t.Errorf("expected nil descriptor for end of dump, got %+v", d.Desc)
	}
}

func TestDecodeNotification_ValueChanged(t *testing.T) {
	msg := []byte(`{"type":"val","data":{"addr":7,"value":1}}`)

	n, err := decodeNotification(msg)
	if err != nil {
		t.Fatalf("decodeNotification failed: %v", err)
	}
	v, ok := n.(ValueChangedNotification)
	if !ok {
		t.Fatalf("expected ValueChangedNotification, got %T", n)
	}
	if v.Addr != 7 || v.Value != 1 {
		t.Errorf("unexpected payload: %+v", v)
	}
}

func TestDecodeNotification_SelectorKind(t *testing.T) {
	msg := []byte(`{"type":"desc","data":{"desc":{"addr":9,"group":"","node0":{"name":"server","unit":-1},"node1":{"name":"rsnd0","unit":-1},"func":"device","kind":"sel","max_value":1},"value":1}}`)

	n, err := decodeNotification(msg)
	if err != nil {
		t.Fatalf("decodeNotification failed: %v", err)
	}
	d := n.(DescribeNotification)
	if d.Desc.Kind != KindSelector || d.Desc.Node1.Name != "rsnd0" {
		t.Errorf("unexpected selector descriptor: %+v", d.Desc)
	}
}

func TestDecodeNotification_Errors(t *testing.T) {
	bad := [][]byte{
		[]byte(`not json`),
		[]byte(`{"type":"bogus","data":{}}`),
		[]byte(`{"type":"val","data":"nope"}`),
		[]byte(`{"type":"desc","data":{"desc":{"kind":"unknown"}}}`),
	}
	for _, msg := range bad {
		if _, err := decodeNotification(msg); err == nil {
			t.Errorf("%s: expected error, got none", msg)
		}
	}
}
