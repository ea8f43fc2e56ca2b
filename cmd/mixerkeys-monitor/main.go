package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// mixerkeys-monitor - Mixer Service Protocol Monitor
// ============================================================================
// Debugging tool that connects to the mixer service websocket and prints
// every notification as it arrives: the initial describe dump, then live
// value changes. Optionally sends a single raw SetValue first, which is
// handy for poking controls while watching the echo.
// ============================================================================

type notificationEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type describePayload struct {
	Desc *struct {
		Addr  int    `json:"addr"`
		Group string `json:"group"`
		Node0 struct {
			Name string `json:"name"`
			Unit int    `json:"unit"`
		} `json:"node0"`
		Node1 struct {
			Name string `json:"name"`
			Unit int    `json:"unit"`
		} `json:"node1"`
		Func     string `json:"func"`
		Kind     string `json:"kind"`
		MaxValue int    `json:"max_value"`
	} `json:"desc"`
	Value int `json:"value"`
}

type valueChangedPayload struct {
	Addr  int `json:"addr"`
	Value int `json:"value"`
}

func main() {
	var (
		wsURL = flag.String("ws", "ws://127.0.0.1:7770", "Mixer service websocket URL")
		set   = flag.String("set", "", "Send a single SetValue first, as addr=value (e.g. '3=95')")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	var writeMu sync.Mutex

	if *set != "" {
		var addr, value int
		if _, err := fmt.Sscanf(*set, "%d=%d", &addr, &value); err != nil {
			log.Fatalf("invalid -set value %q: want addr=value", *set)
		}
		cmd := map[string]any{
			"SetValue": map[string]int{"addr": addr, "value": value},
		}
		payload, err := json.Marshal(cmd)
		if err != nil {
			log.Fatalf("marshal SetValue: %v", err)
		}
		writeMu.Lock()
		err = conn.WriteMessage(websocket.TextMessage, payload)
		writeMu.Unlock()
		if err != nil {
			log.Fatalf("send SetValue: %v", err)
		}
		log.Printf("sent SetValue addr=%d value=%d", addr, value)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			if messageType != websocket.TextMessage {
				fmt.Printf("[BINARY] %d bytes\n", len(message))
				continue
			}
			printNotification(message)
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

// printNotification renders one inbound notification on a single line.
func printNotification(message []byte) {
	var env notificationEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		fmt.Printf("[TEXT] %s\n", string(message))
		return
	}

	switch env.Type {
	case "desc":
		var p describePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			fmt.Printf("[DESC] bad payload: %v\n", err)
			return
		}
		if p.Desc == nil {
			fmt.Printf("[DESC] end of dump\n")
			return
		}
		label := p.Desc.Node0.Name
		if p.Desc.Group != "" {
			label = p.Desc.Group + "/" + label
		}
		if p.Desc.Node0.Unit >= 0 {
			label = fmt.Sprintf("%s[%d]", label, p.Desc.Node0.Unit)
		}
		label += "." + p.Desc.Func
		if p.Desc.Node1.Name != "" {
			label += ":" + p.Desc.Node1.Name
		}
		fmt.Printf("[DESC] addr=%d %s kind=%s value=%d max=%d\n",
			p.Desc.Addr, label, p.Desc.Kind, p.Value, p.Desc.MaxValue)

	case "val":
		var p valueChangedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			fmt.Printf("[VAL] bad payload: %v\n", err)
			return
		}
		fmt.Printf("[VAL] addr=%d value=%d\n", p.Addr, p.Value)

	default:
		prettyJSON, _ := json.MarshalIndent(env, "", "  ")
		fmt.Printf("[UNKNOWN]\n%s\n", string(prettyJSON))
	}
}
