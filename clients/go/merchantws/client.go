// Package merchantws provides a minimal merchant-side client for the relay
// socket endpoint.
package merchantws

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MeiCorl/mall-relay/internal/models"
)

// Client is one merchant connection to the relay.
type Client struct {
	conn *websocket.Conn
}

// Dial connects to the relay socket endpoint, presenting the access token
// as the handshake cookie. url is the full ws:// or wss:// endpoint.
func Dial(url, cookieName, token string) (*Client, error) {
	header := http.Header{}
	header.Add("Cookie", fmt.Sprintf("%s=%s", cookieName, token))

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(url, header)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Send writes one message as a single JSON text frame.
func (c *Client) Send(msg *models.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Receive blocks until the next frame arrives and decodes it.
func (c *Client) Receive() (*models.Message, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var msg models.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ReceiveRaw blocks until the next frame arrives and returns it undecoded.
func (c *Client) ReceiveRaw() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Close closes the connection with a normal closure frame.
func (c *Client) Close() error {
	deadline := time.Now().Add(time.Second)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return c.conn.Close()
}
