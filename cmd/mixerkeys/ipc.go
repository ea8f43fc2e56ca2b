package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// The IPC server lets external clients drive the same adjustments the key
// bindings perform and inspect daemon state. This enables:
//   - Remote control via the mixerkeys-ctl command-line tool
//   - Scripting and automation
//
// Protocol: line-delimited JSON.
//   Client sends: {"type": "adjust"|"cycle"|"status", "data": {...}}
//   Server responds: {"status": "ok", ...} or {"status": "error", "error": "msg"}
// ============================================================================

type ipcRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type ipcAdjustData struct {
	Name string `json:"name"`
	Func string `json:"func"`
	Dir  string `json:"dir"`
}

type ipcResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`

	// Status reply payload.
	State    string          `json:"state,omitempty"`
	Bindings []string        `json:"bindings,omitempty"`
	Controls []ControlStatus `json:"controls,omitempty"`
}

func parseIPCDirection(s string) (Direction, error) {
	switch s {
	case "increment", "up", "+":
		return DirIncrement, nil
	case "decrement", "down", "-":
		return DirDecrement, nil
	case "toggle", "cycle", "!":
		return DirToggle, nil
	}
	return DirToggle, fmt.Errorf("bad direction %q", s)
}

// runIPCServer serves IPC requests until the context is cancelled. It
// blocks; run it under the daemon's errgroup.
func runIPCServer(ctx context.Context, socketPath string, requests chan<- Request, logger *slog.Logger) error {
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer os.Remove(socketPath)

	// Make socket accessible (consider security implications in production)
	if err := os.Chmod(socketPath, 0666); err != nil {
		listener.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	logger.Debug("ipc listening", "socket", socketPath)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Warn("ipc accept error", "error", err)
			continue
		}
		go handleIPCConnection(conn, requests, logger)
	}
}

// handleIPCConnection processes a single IPC client connection.
func handleIPCConnection(conn net.Conn, requests chan<- Request, logger *slog.Logger) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	respondErr := func(format string, args ...any) {
		resp := ipcResponse{Status: "error", Error: fmt.Sprintf(format, args...)}
		if err := encoder.Encode(resp); err != nil {
			logger.Warn("ipc response failed", "error", err)
		}
	}

	for scanner.Scan() {
		var req ipcRequest
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			respondErr("parse request: %v", err)
			continue
		}

		switch req.Type {
		case "adjust", "cycle":
			var data ipcAdjustData
			if err := json.Unmarshal(req.Data, &data); err != nil {
				respondErr("parse %s data: %v", req.Type, err)
				continue
			}
			if data.Name == "" || data.Func == "" {
				respondErr("%s: name and func are required", req.Type)
				continue
			}
			dir := DirToggle
			if req.Type == "adjust" {
				var err error
				if dir, err = parseIPCDirection(data.Dir); err != nil {
					respondErr("adjust: %v", err)
					continue
				}
			}
			select {
			case requests <- AdjustRequest{Name: data.Name, Func: data.Func, Dir: dir}:
				encoder.Encode(ipcResponse{Status: "ok"})
			default:
				respondErr("request queue full")
			}

		case "status":
			reply := make(chan StatusSnapshot, 1)
			select {
			case requests <- StatusRequest{Reply: reply}:
			default:
				respondErr("request queue full")
				continue
			}
			select {
			case snap := <-reply:
				encoder.Encode(ipcResponse{
					Status:   "ok",
					State:    snap.State,
					Bindings: snap.Bindings,
					Controls: snap.Controls,
				})
			case <-time.After(2 * time.Second):
				respondErr("status timed out")
			}

		default:
			respondErr("unknown request type %q", req.Type)
		}
	}

	if err := scanner.Err(); err != nil {
		logger.Warn("ipc connection error", "error", err)
	}
}
