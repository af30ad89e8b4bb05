package queue

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/supportd/internal/channel"
)

// ErrValidationFailed indicates a message failed schema validation. Raised
// before any enqueue attempt; nothing is sent.
var ErrValidationFailed = errors.New("message validation failed")

// Envelope wraps a message with its retry accounting. Produced with
// Retries=0; a failed delivery is resubmitted as a new envelope with the
// counter incremented.
type Envelope struct {
	Message channel.Message `json:"message"`
	Retries int             `json:"retries"`
}

// DeadLetter is a terminal failure record sent to the dead-letter queue.
// Never reprocessed automatically.
type DeadLetter struct {
	Envelope Envelope  `json:"envelope"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
	// RawPayload preserves the delivered bytes when they could not be
	// decoded into an Envelope, so the original content survives in the
	// record. Empty for decodable envelopes.
	RawPayload []byte `json:"raw_payload,omitempty"`
}

// ValidateMessage checks a message against the wire schema: required
// fields present, channel is a known variant, ids are UUID-shaped.
func ValidateMessage(msg channel.Message) error {
	if msg.ID == "" {
		return fmt.Errorf("%w: id required", ErrValidationFailed)
	}
	if _, err := uuid.Parse(msg.ID); err != nil {
		return fmt.Errorf("%w: id must be a UUID: %q", ErrValidationFailed, msg.ID)
	}
	if msg.BusinessID == "" {
		return fmt.Errorf("%w: business_id required", ErrValidationFailed)
	}
	if msg.PersonaID != "" {
		if _, err := uuid.Parse(msg.PersonaID); err != nil {
			return fmt.Errorf("%w: persona_id must be a UUID: %q", ErrValidationFailed, msg.PersonaID)
		}
	}
	if err := msg.Channel.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	if strings.TrimSpace(msg.Content) == "" {
		return fmt.Errorf("%w: content required", ErrValidationFailed)
	}
	return nil
}
