// Package classifier calls the external AI service to classify an inbound
// resident message. Any failure degrades to a deterministic fallback result so
// classification unavailability never drops a message.
package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Priorities, closed enum.
const (
	PriorityLow       = "low"
	PriorityMedium    = "medium"
	PriorityHigh      = "high"
	PriorityEmergency = "emergency"
)

// RouteTo targets, closed enum.
const (
	RouteToOwner  = "owner"
	RouteToRenter = "renter"
	RouteToAdmin  = "admin"
	RouteToBoth   = "both"
)

// Intents are an open string enum; anything the model invents collapses to
// IntentOther downstream.
const (
	IntentMaintenance = "maintenance_request"
	IntentComplaint   = "complaint"
	IntentQuestion    = "question"
	IntentPayment     = "payment_inquiry"
	IntentEmergency   = "emergency"
	IntentOther       = "other"
)

// Result is the structured judgment for one message.
type Result struct {
	Intent              string            `json:"intent"`
	Priority            string            `json:"priority"`
	RouteTo             string            `json:"routeTo"`
	SuggestedResponse   string            `json:"suggestedResponse"`
	RequiresHumanReview bool              `json:"requiresHumanReview"`
	ExtractedData       map[string]string `json:"extractedData"`
}

// Request carries the message plus the context embedded into the prompt.
type Request struct {
	Body         string
	ResidentRole string
	Language     string
	BuildingName string
}

// Classifier is the injected dependency the intake pipeline depends on.
type Classifier interface {
	Classify(ctx context.Context, req Request) Result
}

// FallbackClassifier answers every message with the fallback result. It is
// wired when no AI credentials are configured so the pipeline still replies
// and routes to a human.
type FallbackClassifier struct{}

// Classify implements Classifier.
func (FallbackClassifier) Classify(_ context.Context, req Request) Result {
	return Fallback(req.Language)
}

// Fallback is the deterministic result used whenever the AI call fails in any
// way. It routes to the admin and forces human review.
func Fallback(language string) Result {
	return Result{
		Intent:              IntentOther,
		Priority:            PriorityMedium,
		RouteTo:             RouteToAdmin,
		SuggestedResponse:   fallbackAck(language),
		RequiresHumanReview: true,
		ExtractedData:       map[string]string{},
	}
}

func fallbackAck(language string) string {
	switch normalizeLanguage(language) {
	case "es":
		return "Hemos recibido tu mensaje. Un administrador te responderá pronto."
	case "pt":
		return "Recebemos a sua mensagem. Um administrador responderá em breve."
	default:
		return "We received your message. An administrator will get back to you shortly."
	}
}

func normalizeLanguage(language string) string {
	language = strings.ToLower(strings.TrimSpace(language))
	if len(language) > 2 {
		language = language[:2]
	}
	return language
}

// parseResult decodes the model output into a Result. Models occasionally wrap
// the JSON in a markdown code fence; strip it before parsing. Missing required
// fields are an error so the caller falls back.
func parseResult(raw string) (Result, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)

	var result Result
	if err := json.Unmarshal([]byte(clean), &result); err != nil {
		return Result{}, fmt.Errorf("classification output is not valid JSON: %w", err)
	}

	if result.Intent == "" || result.Priority == "" || result.RouteTo == "" {
		return Result{}, fmt.Errorf("classification output is missing required fields")
	}

	switch result.Priority {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityEmergency:
	default:
		return Result{}, fmt.Errorf("classification output has unknown priority %q", result.Priority)
	}
	switch result.RouteTo {
	case RouteToOwner, RouteToRenter, RouteToAdmin, RouteToBoth:
	default:
		return Result{}, fmt.Errorf("classification output has unknown routeTo %q", result.RouteTo)
	}

	if result.ExtractedData == nil {
		result.ExtractedData = map[string]string{}
	}
	return result, nil
}
