package services

import (
	"strings"

	"condopilot/internal/classifier"
	"condopilot/internal/models"
)

// RoutingDecision is the deterministic mapping from a classification and the
// sender's role to recipients and reply behavior.
type RoutingDecision struct {
	Priority            string
	Recipients          []string // subset of {admin, owner, renter}, stable order
	AutoReplyText       string
	RequiresHumanReview bool
}

// NotifiesAdmin reports whether the decision includes the administration.
func (d RoutingDecision) NotifiesAdmin() bool { return d.contains(classifier.RouteToAdmin) }

// ForwardsTo reports whether the decision forwards the message to the given
// role.
func (d RoutingDecision) ForwardsTo(role string) bool { return d.contains(role) }

func (d RoutingDecision) contains(target string) bool {
	for _, r := range d.Recipients {
		if r == target {
			return true
		}
	}
	return false
}

// Decide maps a classification plus the sender's role to a routing decision.
// It is a pure function with no hidden state so it is independently testable.
//
// Role-based forwarding only crosses roles: routeTo=owner fires only when the
// sender is a renter, routeTo=renter only when the sender is an owner; a
// same-role target is a no-op. routeTo=both adds the admin on top of whatever
// role-based forwarding applies. The administration is also pulled in whenever
// the message needs human review or is high/emergency priority.
//
// The AI's substantive suggested answer is only auto-sent for low-risk,
// non-reviewed classifications; anything needing review or flagged emergency
// gets a generic acknowledgment instead.
func Decide(c classifier.Result, residentRole, language string) RoutingDecision {
	decision := RoutingDecision{
		Priority:            c.Priority,
		RequiresHumanReview: c.RequiresHumanReview,
	}

	admin := c.RouteTo == classifier.RouteToAdmin || c.RouteTo == classifier.RouteToBoth ||
		c.RequiresHumanReview ||
		c.Priority == classifier.PriorityHigh || c.Priority == classifier.PriorityEmergency
	if admin {
		decision.Recipients = append(decision.Recipients, classifier.RouteToAdmin)
	}

	forward := c.RouteTo
	if forward == classifier.RouteToBoth {
		// Both: admin plus the cross-role counterpart of the sender.
		switch residentRole {
		case models.RoleRenter:
			forward = classifier.RouteToOwner
		case models.RoleOwner:
			forward = classifier.RouteToRenter
		default:
			forward = ""
		}
	}
	switch {
	case forward == classifier.RouteToOwner && residentRole == models.RoleRenter:
		decision.Recipients = append(decision.Recipients, classifier.RouteToOwner)
	case forward == classifier.RouteToRenter && residentRole == models.RoleOwner:
		decision.Recipients = append(decision.Recipients, classifier.RouteToRenter)
	}

	if c.RequiresHumanReview || c.Priority == classifier.PriorityEmergency {
		decision.AutoReplyText = acknowledgmentText(language)
	} else if strings.TrimSpace(c.SuggestedResponse) != "" {
		decision.AutoReplyText = c.SuggestedResponse
	} else {
		decision.AutoReplyText = acknowledgmentText(language)
	}

	return decision
}

func acknowledgmentText(language string) string {
	language = strings.ToLower(strings.TrimSpace(language))
	if len(language) > 2 {
		language = language[:2]
	}
	switch language {
	case "es":
		return "Gracias por tu mensaje. La administración lo revisará a la brevedad."
	case "pt":
		return "Obrigado pela sua mensagem. A administração irá analisá-la em breve."
	default:
		return "Thank you for your message. The administration will review it shortly."
	}
}
