package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// startIPC runs the IPC server on a temp socket and returns the socket path
// and the request channel the server feeds.
func startIPC(t *testing.T) (string, chan Request) {
	t.Helper()

	socketPath := filepath.Join(t.TempDir(), "mixerkeys.sock")
	requests := make(chan Request, 16)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := runIPCServer(ctx, socketPath, requests, testLogger()); err != nil {
			t.Errorf("runIPCServer: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Wait for the socket to appear.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(socketPath); err == nil {
			return socketPath, requests
		}
		if time.Now().After(deadline) {
			t.Fatal("ipc socket never appeared")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func ipcRoundTrip(t *testing.T, socketPath, line string) ipcResponse {
	t.Helper()

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
		t.Fatalf("send: %v", err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		t.Fatalf("no response: %v", scanner.Err())
	}
	var resp ipcResponse
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestIPC_Adjust(t *testing.T) {
	socketPath, requests := startIPC(t)

	resp := ipcRoundTrip(t, socketPath, `{"type":"adjust","data":{"name":"output","func":"level","dir":"increment"}}`)
	if resp.Status != "ok" {
		t.Fatalf("expected ok, got %+v", resp)
	}

	select {
	case req := <-requests:
		adj, ok := req.(AdjustRequest)
		if !ok {
			t.Fatalf("expected AdjustRequest, got %T", req)
		}
		if adj.Name != "output" || adj.Func != "level" || adj.Dir != DirIncrement {
			t.Errorf("unexpected request: %+v", adj)
		}
	case <-time.After(time.Second):
		t.Fatal("request never arrived")
	}
}

func TestIPC_Cycle(t *testing.T) {
	socketPath, requests := startIPC(t)

	resp := ipcRoundTrip(t, socketPath, `{"type":"cycle","data":{"name":"server","func":"device"}}`)
	if resp.Status != "ok" {
		t.Fatalf("expected ok, got %+v", resp)
	}

	req := <-requests
	adj := req.(AdjustRequest)
	if adj.Dir != DirToggle {
		t.Errorf("expected toggle direction for cycle, got %s", adj.Dir)
	}
}

func TestIPC_Status(t *testing.T) {
	socketPath, requests := startIPC(t)

	// Stand-in for the dispatch loop: answer one status request.
	go func() {
		req := <-requests
		sr, ok := req.(StatusRequest)
		if !ok {
			t.Errorf("expected StatusRequest, got %T", req)
			return
		}
		sr.Reply <- StatusSnapshot{
			State:    "connected",
			Bindings: []string{"Control+Alt+plus:output.level+"},
			Controls: []ControlStatus{{Addr: 1, Name: "output", Unit: -1, Func: "level", Kind: "num", Value: 95, MaxValue: 127}},
		}
	}()

	resp := ipcRoundTrip(t, socketPath, `{"type":"status"}`)
	if resp.Status != "ok" {
		t.Fatalf("expected ok, got %+v", resp)
	}
	if resp.State != "connected" {
		t.Errorf("expected connected, got %q", resp.State)
	}
	if len(resp.Bindings) != 1 || len(resp.Controls) != 1 {
		t.Errorf("unexpected payload: %+v", resp)
	}
	if resp.Controls[0].Value != 95 {
		t.Errorf("expected control value 95, got %d", resp.Controls[0].Value)
	}
}

func TestIPC_Errors(t *testing.T) {
	socketPath, _ := startIPC(t)

	cases := []string{
		`not json`,
		`{"type":"bogus"}`,
		`{"type":"adjust","data":{"name":"output","func":"level","dir":"sideways"}}`,
		`{"type":"adjust","data":{"func":"level","dir":"up"}}`,
	}
	for _, line := range cases {
		resp := ipcRoundTrip(t, socketPath, line)
		if resp.Status != "error" || resp.Error == "" {
			t.Errorf("%s: expected error response, got %+v", line, resp)
		}
	}
}

func TestIPC_MultipleRequestsOneConnection(t *testing.T) {
	socketPath, requests := startIPC(t)

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for i := 0; i < 3; i++ {
		if _, err := fmt.Fprintln(conn, `{"type":"adjust","data":{"name":"output","func":"level","dir":"up"}}`); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		if !scanner.Scan() {
			t.Fatalf("no response %d: %v", i, scanner.Err())
		}
	}

	for i := 0; i < 3; i++ {
		select {
		case <-requests:
		case <-time.After(time.Second):
			t.Fatalf("request %d never arrived", i)
		}
	}
}
