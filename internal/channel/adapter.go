package channel

import (
	"fmt"
	"strings"
)

// Metadata keys recognized by the adapters.
const (
	MetaSubject  = "subject"
	MetaFrom     = "from"
	MetaTo       = "to"
	MetaHTML     = "html"
	MetaChannel  = "channel"
	MetaThreadTS = "thread_ts"
	MetaUser     = "user"
	MetaSession  = "session_id"
	MetaThread   = "thread_id"
	MetaEvent    = "event"
)

// defaultSubject is used when an inbound email carries no subject.
const defaultSubject = "Support Request"

// defaultSender is the reply sender when the inbound message does not name
// a recipient address to reply from.
const defaultSender = "support@example.com"

// OutboundPayload is a channel-specific reply ready for delivery.
type OutboundPayload struct {
	Channel    Channel           `json:"channel"`
	BusinessID string            `json:"business_id"`
	PersonaID  string            `json:"persona_id,omitempty"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Adapter formats a generated response for one channel.
type Adapter interface {
	Format(original Message, responseText string) (OutboundPayload, error)
}

// AdapterFor returns the adapter for a channel. Every supported variant has
// an adapter; an unknown variant is an error, never a silent default.
func AdapterFor(c Channel) (Adapter, error) {
	switch c {
	case Email:
		return EmailAdapter{}, nil
	case Slack:
		return SlackAdapter{}, nil
	case Chat:
		return ChatAdapter{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, c)
	}
}

// EmailAdapter formats responses as reply emails. The reply subject is the
// original subject prefixed with "Re: ", sender and recipient are swapped,
// and the body is rendered as simple HTML.
type EmailAdapter struct{}

func (EmailAdapter) Format(original Message, responseText string) (OutboundPayload, error) {
	subject := original.Meta(MetaSubject)
	if subject == "" {
		subject = defaultSubject
	}

	from := original.Meta(MetaTo)
	if from == "" {
		from = defaultSender
	}

	return OutboundPayload{
		Channel:    Email,
		BusinessID: original.BusinessID,
		PersonaID:  original.PersonaID,
		Content:    responseText,
		Metadata: map[string]string{
			MetaSubject: "Re: " + subject,
			MetaFrom:    from,
			MetaTo:      original.Meta(MetaFrom),
			MetaHTML:    renderHTML(responseText),
		},
	}, nil
}

// renderHTML converts plain response text to a minimal HTML body.
func renderHTML(text string) string {
	return "<div>" + strings.ReplaceAll(text, "\n", "<br/>") + "</div>"
}

// SlackAdapter formats responses as Slack thread replies, preserving the
// channel, thread timestamp, and user identifiers of the original message.
type SlackAdapter struct{}

func (SlackAdapter) Format(original Message, responseText string) (OutboundPayload, error) {
	return OutboundPayload{
		Channel:    Slack,
		BusinessID: original.BusinessID,
		PersonaID:  original.PersonaID,
		Content:    responseText,
		Metadata: map[string]string{
			MetaChannel:  original.Meta(MetaChannel),
			MetaThreadTS: original.Meta(MetaThreadTS),
			MetaUser:     original.Meta(MetaUser),
		},
	}, nil
}

// ChatAdapter formats responses for the in-app chat widget. Session and
// thread identifiers pass through unchanged; no markup is applied.
type ChatAdapter struct{}

func (ChatAdapter) Format(original Message, responseText string) (OutboundPayload, error) {
	meta := make(map[string]string, len(original.Metadata))
	for k, v := range original.Metadata {
		meta[k] = v
	}
	return OutboundPayload{
		Channel:    Chat,
		BusinessID: original.BusinessID,
		PersonaID:  original.PersonaID,
		Content:    responseText,
		Metadata:   meta,
	}, nil
}
