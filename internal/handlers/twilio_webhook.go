// Package handlers exposes the HTTP surface of the intake service.
package handlers

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"condopilot/internal/channel"
)

// InboundProcessor runs the intake pipeline for one normalized message.
type InboundProcessor interface {
	ProcessInbound(ctx context.Context, in channel.InboundMessage) error
}

// TwilioWebhookHandler receives inbound WhatsApp webhooks from Twilio.
type TwilioWebhookHandler struct {
	intake InboundProcessor
}

// NewTwilioWebhookHandler creates the handler.
func NewTwilioWebhookHandler(intake InboundProcessor) *TwilioWebhookHandler {
	if intake == nil {
		log.Fatal().Msg("InboundProcessor cannot be nil for TwilioWebhookHandler")
	}
	return &TwilioWebhookHandler{intake: intake}
}

// Handle processes one webhook delivery. The response contract is
// unconditional: Twilio always gets an empty TwiML document with HTTP 200,
// whatever happened inside. An error status would make the provider retry and
// reprocess an already-partially-handled message, risking duplicate tickets
// and notifications.
func (h *TwilioWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("Webhook processing panicked")
		}
		writeEmptyTwiML(w)
	}()

	if err := r.ParseForm(); err != nil {
		log.Warn().Err(err).Msg("Unparseable webhook body, acknowledging and dropping")
		return
	}

	in, ok := channel.Normalize(r.PostForm)
	if !ok {
		log.Warn().Msg("Webhook payload missing required fields, acknowledging and dropping")
		return
	}

	log.Info().
		Str("externalID", in.ExternalID).
		Str("to", in.ToAddress).
		Msg("Received inbound message webhook")

	if err := h.intake.ProcessInbound(r.Context(), in); err != nil {
		// Persistence failures land here; the ack still goes out.
		log.Error().Err(err).Str("externalID", in.ExternalID).Msg("Inbound message processing failed")
	}
}

func writeEmptyTwiML(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Response></Response>`))
}
