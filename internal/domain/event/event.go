package event

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Event names pushed to stream subscribers.
const (
	RequestTerminal = "request.terminal"
	RaceResolved    = "race.resolved"
	RaceCancelled   = "race.cancelled"
)

var (
	ErrClientNotFound = errors.New("stream client not found")
	ErrChannelFull    = errors.New("stream message channel full")
)

// Message is one server-sent event. A non-empty Wallet scopes delivery to
// clients subscribed for that wallet.
type Message struct {
	ID        string          `json:"id"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Wallet    string          `json:"-"`
	CreatedAt time.Time       `json:"createdAt"`
}

// NewMessage marshals payload into a message.
func NewMessage(name, wallet string, payload interface{}) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        uuid.New().String(),
		Event:     name,
		Data:      data,
		Wallet:    wallet,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Client is an active stream connection.
type Client struct {
	ClientID    string
	Wallet      *string
	ConnectedAt time.Time
	MessageChan chan *Message
}

// NewClient creates a client with a buffered channel.
func NewClient(clientID string, wallet *string) *Client {
	return &Client{
		ClientID:    clientID,
		Wallet:      wallet,
		ConnectedAt: time.Now().UTC(),
		MessageChan: make(chan *Message, 100),
	}
}

// Close closes the client's channel.
func (c *Client) Close() {
	close(c.MessageChan)
}

// Wants reports whether msg should be delivered to the client.
func (c *Client) Wants(msg *Message) bool {
	if msg.Wallet == "" {
		return true
	}
	return c.Wallet != nil && *c.Wallet == msg.Wallet
}

// Publisher delivers messages best-effort.
type Publisher interface {
	Publish(msg *Message)
}

// Discard is a Publisher that drops everything.
type Discard struct{}

func (Discard) Publish(*Message) {}
