package channel

import (
	"errors"
	"fmt"
	"time"
)

// Channel identifies the support channel a message arrived on.
type Channel string

const (
	Email Channel = "email"
	Slack Channel = "slack"
	Chat  Channel = "chat"
)

// Common errors.
var (
	ErrUnknownChannel = errors.New("unknown channel")
)

// Validate checks that the channel is one of the supported variants.
func (c Channel) Validate() error {
	switch c {
	case Email, Slack, Chat:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownChannel, c)
	}
}

func (c Channel) String() string {
	return string(c)
}

// ParseChannel converts a wire string into a Channel.
func ParseChannel(s string) (Channel, error) {
	c := Channel(s)
	if err := c.Validate(); err != nil {
		return "", err
	}
	return c, nil
}

// Message is a support message flowing through the pipeline. Messages are
// immutable once produced; a reply is a new Message, never a mutation of
// the original.
type Message struct {
	ID         string            `json:"id"`
	BusinessID string            `json:"business_id"`
	PersonaID  string            `json:"persona_id,omitempty"`
	Channel    Channel           `json:"channel"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Meta returns the metadata value for key, or the empty string.
func (m Message) Meta(key string) string {
	if m.Metadata == nil {
		return ""
	}
	return m.Metadata[key]
}
