package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"condopilot/internal/classifier"
	"condopilot/internal/models"
)

// TicketService materializes maintenance requests out of classified messages.
type TicketService struct {
	db *gorm.DB
}

// NewTicketService creates a TicketService.
func NewTicketService(db *gorm.DB) *TicketService {
	return &TicketService{db: db}
}

// MaybeCreateTicket creates a MaintenanceRequest when the classification
// indicates a maintenance issue: the maintenance intent, or an emergency the
// model tagged with a maintenance category (a burst pipe is both). Returns
// nil without error when the intent does not call for a ticket.
//
// One inbound message produces at most one ticket; the duplicate-delivery
// guard lives upstream on the message insert, so a redelivered webhook never
// reaches this code twice.
func (s *TicketService) MaybeCreateTicket(ctx context.Context, c classifier.Result, resident models.Resident, conv models.Conversation, description string) (*models.MaintenanceRequest, error) {
	materialize := c.Intent == classifier.IntentMaintenance ||
		(c.Intent == classifier.IntentEmergency && c.ExtractedData["category"] != "")
	if !materialize {
		return nil, nil
	}

	category := c.ExtractedData["category"]
	if category == "" {
		category = "other"
	}

	ticket := models.MaintenanceRequest{
		BuildingID:     resident.BuildingID,
		UnitID:         resident.UnitID,
		ResidentID:     resident.ID,
		ConversationID: conv.ID,
		Category:       category,
		Location:       c.ExtractedData["location"],
		Priority:       c.Priority,
		Description:    description,
		Status:         "open",
		ExtractedByAI:  true,
	}

	if err := s.db.WithContext(ctx).Create(&ticket).Error; err != nil {
		return nil, fmt.Errorf("maintenance request insert failed: %w", err)
	}

	log.Info().
		Str("ticketID", ticket.ID).
		Str("category", ticket.Category).
		Str("priority", ticket.Priority).
		Str("conversationID", conv.ID).
		Msg("Maintenance request created")
	return &ticket, nil
}
