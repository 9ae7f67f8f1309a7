// Package channel turns provider-specific webhook payloads into the canonical
// inbound message the intake pipeline works with.
package channel

import (
	"net/url"
	"strings"
	"time"
)

// InboundMessage is the canonical form of one inbound webhook delivery.
type InboundMessage struct {
	ExternalID  string
	FromAddress string
	ToAddress   string
	Body        string
	MediaURL    string
	MediaType   string
	ReceivedAt  time.Time
}

// Normalize parses a Twilio WhatsApp form payload. It never fails on
// malformed input: the second return value is false when the payload does not
// carry the minimum fields, and the caller acknowledges and drops it.
func Normalize(form url.Values) (InboundMessage, bool) {
	msg := InboundMessage{
		ExternalID:  strings.TrimSpace(form.Get("MessageSid")),
		FromAddress: StripScheme(form.Get("From")),
		ToAddress:   StripScheme(form.Get("To")),
		Body:        strings.TrimSpace(form.Get("Body")),
		ReceivedAt:  time.Now().UTC(),
	}

	if form.Get("NumMedia") != "" && form.Get("NumMedia") != "0" {
		msg.MediaURL = strings.TrimSpace(form.Get("MediaUrl0"))
		msg.MediaType = strings.TrimSpace(form.Get("MediaContentType0"))
	}

	if msg.ExternalID == "" || msg.FromAddress == "" || msg.ToAddress == "" {
		return InboundMessage{}, false
	}
	if msg.Body == "" && msg.MediaURL == "" {
		return InboundMessage{}, false
	}
	return msg, true
}

// StripScheme removes the transport scheme prefix Twilio puts on WhatsApp
// addresses ("whatsapp:+5511999999999" -> "+5511999999999").
func StripScheme(address string) string {
	address = strings.TrimSpace(address)
	address = strings.TrimPrefix(address, "whatsapp:")
	return strings.TrimSpace(address)
}
