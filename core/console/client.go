// Package console is a terminal client for a running ema-sense server. It
// shows broadcast events as they arrive and sends typed commands back.
package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-sense/core/broadcast"
)

const writeTimeout = 5 * time.Second

// Frame is any message the server sends: a broadcast event, or a control
// reply such as pong or error.
type Frame struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex
}

// WebsocketURL turns a host:port, or a full URL, into the server's
// websocket endpoint.
func WebsocketURL(addr string) (string, error) {
	if addr == "" {
		return "", errors.New("address is empty")
	}

	u, err := url.Parse(addr)
	if err != nil || u.Host == "" {
		u = &url.URL{Scheme: "ws", Host: addr}
	}
	if strings.HasPrefix(u.Host, ":") {
		u.Host = "localhost" + u.Host
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

func Dial(ctx context.Context, addr string) (*Client, error) {
	endpoint, err := WebsocketURL(addr)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}
	return &Client{conn: conn}, nil
}

// SendCommand asks the server to treat text as a spoken command.
func (c *Client) SendCommand(text string) error {
	return c.write(broadcast.Control{Type: "command", Text: text})
}

func (c *Client) Ping() error {
	return c.write(broadcast.Control{Type: "ping"})
}

func (c *Client) write(control broadcast.Control) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(control)
}

// Next blocks until the server sends a frame. Frames that are not JSON are
// skipped.
func (c *Client) Next() (Frame, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return Frame{}, err
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		return frame, nil
	}
}

// Close says goodbye to the server and drops the connection.
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	return c.conn.Close()
}
