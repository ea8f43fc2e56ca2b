package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"
)

// ============================================================================
// mixerkeys-ctl - Command-line IPC Client
// ============================================================================
// This tool sends commands to the mixerkeys daemon via IPC.
//
// Usage:
//   mixerkeys-ctl volume-up
//   mixerkeys-ctl volume-down
//   mixerkeys-ctl mute
//   mixerkeys-ctl cycle-dev
//   mixerkeys-ctl adjust output.level+
//   mixerkeys-ctl status
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/mixerkeys.sock)
// ============================================================================

// Wire types (duplicated from the daemon for a standalone binary)
type ipcRequest struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type ipcAdjustData struct {
	Name string `json:"name"`
	Func string `json:"func"`
	Dir  string `json:"dir,omitempty"`
}

type controlStatus struct {
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

type ipcResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`

	State    string          `json:"state,omitempty"`
	Bindings []string        `json:"bindings,omitempty"`
	Controls []controlStatus `json:"controls,omitempty"`
}

func main() {
	socketPath := "/tmp/mixerkeys.sock"

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "-socket" || args[0] == "--socket" {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	var req ipcRequest

	switch args[0] {
	case "volume-up", "up":
		req = ipcRequest{Type: "adjust", Data: ipcAdjustData{Name: "output", Func: "level", Dir: "increment"}}

	case "volume-down", "down":
		req = ipcRequest{Type: "adjust", Data: ipcAdjustData{Name: "output", Func: "level", Dir: "decrement"}}

	case "mute", "toggle-mute":
		req = ipcRequest{Type: "adjust", Data: ipcAdjustData{Name: "output", Func: "mute", Dir: "toggle"}}

	case "cycle-dev", "cycle-device":
		req = ipcRequest{Type: "cycle", Data: ipcAdjustData{Name: "server", Func: "device"}}

	case "adjust":
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: adjust requires a target like output.level+\n")
			os.Exit(1)
		}
		data, err := parseAdjustTarget(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		req = ipcRequest{Type: "adjust", Data: data}

	case "status":
		req = ipcRequest{Type: "status"}

	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "error: unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}

	resp, err := sendRequest(socketPath, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if req.Type == "status" {
		printStatus(resp)
		return
	}
	fmt.Println("ok")
}

// parseAdjustTarget parses "name.func" followed by '+', '-' or '!'.
func parseAdjustTarget(s string) (ipcAdjustData, error) {
	if len(s) < 4 {
		return ipcAdjustData{}, fmt.Errorf("invalid target %q", s)
	}
	var dir string
	switch s[len(s)-1] {
	case '+':
		dir = "increment"
	case '-':
		dir = "decrement"
	case '!':
		dir = "toggle"
	default:
		return ipcAdjustData{}, fmt.Errorf("target %q must end in '+', '-' or '!'", s)
	}
	name, fn, ok := strings.Cut(s[:len(s)-1], ".")
	if !ok || name == "" || fn == "" {
		return ipcAdjustData{}, fmt.Errorf("target %q must be name.function", s)
	}
	return ipcAdjustData{Name: name, Func: fn, Dir: dir}, nil
}

func sendRequest(socketPath string, req ipcRequest) (*ipcResponse, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w (is mixerkeys running?)", socketPath, err)
	}
	defer conn.Close()

	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	// Line-delimited JSON
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	var resp ipcResponse
	decoder := json.NewDecoder(conn)
	if err := decoder.Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if resp.Status == "error" {
		return nil, fmt.Errorf("daemon error: %s", resp.Error)
	}
	return &resp, nil
}

func printStatus(resp *ipcResponse) {
	fmt.Printf("state: %s\n", resp.State)

	if len(resp.Bindings) > 0 {
		fmt.Println("bindings:")
		for _, b := range resp.Bindings {
			fmt.Printf("  %s\n", b)
		}
	}

	if len(resp.Controls) == 0 {
		fmt.Println("controls: (none)")
		return
	}
	fmt.Println("controls:")
	for _, c := range resp.Controls {
		label := c.Name
		if c.Group != "" {
			label = c.Group + "/" + label
		}
		if c.Unit >= 0 {
			label = fmt.Sprintf("%s[%d]", label, c.Unit)
		}
		label += "." + c.Func
		if c.Option != "" {
			label += ":" + c.Option
		}
		fmt.Printf("  %-32s %s  %d/%d\n", label, c.Kind, c.Value, c.MaxValue)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `mixerkeys-ctl - Control the mixerkeys daemon via IPC

Usage:
  mixerkeys-ctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: /tmp/mixerkeys.sock)

Commands:
  volume-up, up           Step output.level up
  volume-down, down       Step output.level down
  mute, toggle-mute       Toggle output.mute
  cycle-dev               Cycle server.device to the next option
  adjust <target>         Generic adjustment, e.g. output.level+ or app.mute!
  status                  Print connection state, bindings and mirrored controls
  help, -h, --help        Show this help message

Examples:
  mixerkeys-ctl volume-up
  mixerkeys-ctl adjust app.level-
  mixerkeys-ctl -socket /var/run/mixerkeys.sock status
`)
}
