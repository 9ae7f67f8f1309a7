package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"condopilot/internal/channel"
)

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

type stubProcessor struct {
	received []channel.InboundMessage
	err      error
	panics   bool
}

func (s *stubProcessor) ProcessInbound(_ context.Context, in channel.InboundMessage) error {
	if s.panics {
		panic("pipeline blew up")
	}
	s.received = append(s.received, in)
	return s.err
}

func postForm(t *testing.T, handler *TwilioWebhookHandler, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.Handle(rec, req)
	return rec
}

func validForm() url.Values {
	return url.Values{
		"MessageSid": {"SM123"},
		"From":       {"whatsapp:+5511988887777"},
		"To":         {"whatsapp:+5511900001111"},
		"Body":       {"La llave gotea"},
	}
}

func TestHandleAcknowledgesAndForwardsValidPayload(t *testing.T) {
	processor := &stubProcessor{}
	handler := NewTwilioWebhookHandler(processor)

	rec := postForm(t, handler, validForm())

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/xml", rec.Header().Get("Content-Type"))
	assert.Equal(t, emptyTwiML, rec.Body.String())

	require.Len(t, processor.received, 1)
	in := processor.received[0]
	assert.Equal(t, "SM123", in.ExternalID)
	assert.Equal(t, "+5511988887777", in.FromAddress)
	assert.Equal(t, "+5511900001111", in.ToAddress)
	assert.Equal(t, "La llave gotea", in.Body)
}

func TestHandleAcknowledgesPayloadMissingRequiredFields(t *testing.T) {
	processor := &stubProcessor{}
	handler := NewTwilioWebhookHandler(processor)

	rec := postForm(t, handler, url.Values{"Body": {"no sid, no addresses"}})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, emptyTwiML, rec.Body.String())
	assert.Empty(t, processor.received)
}

func TestHandleAcknowledgesUnparseableBody(t *testing.T) {
	processor := &stubProcessor{}
	handler := NewTwilioWebhookHandler(processor)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/twilio", strings.NewReader("%zz=broken"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.Handle(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, emptyTwiML, rec.Body.String())
	assert.Empty(t, processor.received)
}

func TestHandleAcknowledgesProcessorError(t *testing.T) {
	processor := &stubProcessor{err: fmt.Errorf("database unavailable")}
	handler := NewTwilioWebhookHandler(processor)

	rec := postForm(t, handler, validForm())

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, emptyTwiML, rec.Body.String())
}

func TestHandleAcknowledgesProcessorPanic(t *testing.T) {
	processor := &stubProcessor{panics: true}
	handler := NewTwilioWebhookHandler(processor)

	rec := postForm(t, handler, validForm())

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, emptyTwiML, rec.Body.String())
}
