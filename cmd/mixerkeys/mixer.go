package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ============================================================================
// Mixer Client - WebSocket Control Protocol
// ============================================================================
// The mixer service exposes its control set over a WebSocket JSON protocol:
//
// Inbound notifications (server -> daemon), enveloped with a type tag:
//   {"type": "desc", "data": {"desc": <descriptor-or-null>, "value": N}}
//   {"type": "val",  "data": {"addr": N, "value": N}}
//
// On connect the server dumps every control as a sequence of "desc"
// notifications terminated by one with a null descriptor.
//
// Outbound commands (daemon -> server):
//   {"SetValue": {"addr": N, "value": N}}
//
// SetValue is fire-and-forget; confirmation arrives as a regular "val"
// notification. Writes carry a deadline so a wedged peer cannot stall the
// dispatch loop.
// ============================================================================

// MixerConn is the dispatch loop's view of a mixer connection. It exists so
// tests can substitute a fake.
type MixerConn interface {
	SetValue(addr, value int) error
	Notifications() <-chan MixerNotification
	Close() error
}

// MixerClient manages one WebSocket connection to the mixer service.
type MixerClient struct {
	conn    *websocket.Conn
	logger  *slog.Logger
	timeout time.Duration

	writeMu sync.Mutex
	notifs  chan MixerNotification

	closeOnce sync.Once
}

// DialMixer connects to the mixer service and starts the notification
// reader. There is no retry here: the dispatch loop owns the lazy
// reconnect policy.
func DialMixer(wsURL string, logger *slog.Logger, timeoutMS int) (*MixerClient, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}

	d := websocket.Dialer{
		HandshakeTimeout: 2 * time.Second,
	}
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		return nil, err
	}

	c := &MixerClient{
		conn:    conn,
		logger:  logger,
		timeout: time.Duration(timeoutMS) * time.Millisecond,
		notifs:  make(chan MixerNotification, 64),
	}
	go c.readLoop()
	return c, nil
}

// Notifications returns the inbound notification channel. The channel is
// closed after a MixerHangup has been delivered.
func (c *MixerClient) Notifications() <-chan MixerNotification {
	return c.notifs
}

// SetValue sends an outbound set-value command.
func (c *MixerClient) SetValue(addr, value int) error {
	cmd := map[string]any{
		"SetValue": map[string]int{"addr": addr, "value": value},
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.timeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("set value: %w", err)
	}
	return nil
}

// Close closes the connection. The reader exits and delivers a hangup.
func (c *MixerClient) Close() error {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
	return nil
}

// readLoop pumps inbound notifications until the connection dies, then
// delivers a hangup and closes the channel.
func (c *MixerClient) readLoop() {
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			c.notifs <- MixerHangup{Err: err}
			close(c.notifs)
			return
		}

		n, err := decodeNotification(message)
		if err != nil {
			c.logger.Warn("bad mixer notification", "error", err)
			continue
		}
		c.notifs <- n
	}
}

// notificationEnvelope is the wire framing for inbound notifications.
type notificationEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type describePayload struct {
	Desc  *ControlDescriptor `json:"desc"`
	Value int                `json:"value"`
}

type valueChangedPayload struct {
	Addr  int `json:"addr"`
	Value int `json:"value"`
}

// decodeNotification deserializes one inbound notification.
func decodeNotification(data []byte) (MixerNotification, error) {
	var env notificationEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "desc":
		var p describePayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("unmarshal describe: %w", err)
		}
		return DescribeNotification{Desc: p.Desc, Value: p.Value}, nil

	case "val":
		var p valueChangedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("unmarshal value change: %w", err)
		}
		return ValueChangedNotification{Addr: p.Addr, Value: p.Value}, nil

	default:
		return nil, fmt.Errorf("unknown notification type: %q", env.Type)
	}
}
