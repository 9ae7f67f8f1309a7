package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"condopilot/internal/models"
)

// ConversationStore finds or creates the single active conversation for a
// (building, resident, channel) tuple and appends messages to it.
type ConversationStore struct {
	db *gorm.DB
}

// NewConversationStore creates a ConversationStore.
func NewConversationStore(db *gorm.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

// GetOrCreateActive returns the active conversation for the tuple, creating
// it when none exists. Duplicate webhook deliveries can race here: the
// partial unique index on (building_id, resident_id, channel) WHERE
// status='active' rejects the second insert, which is treated as "someone
// else just created it" and answered with a re-read instead of an error.
// Closed conversations are not reused; a new inbound after closing starts a
// fresh conversation.
func (s *ConversationStore) GetOrCreateActive(ctx context.Context, buildingID, residentID, channel string) (models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Where("building_id = ? AND resident_id = ? AND channel = ? AND status = ?",
			buildingID, residentID, channel, models.ConversationActive).
		First(&conv).Error
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Conversation{}, fmt.Errorf("conversation lookup failed: %w", err)
	}

	conv = models.Conversation{
		BuildingID:     buildingID,
		ResidentID:     residentID,
		Channel:        channel,
		Status:         models.ConversationActive,
		LastActivityAt: time.Now().UTC(),
	}
	createErr := s.db.WithContext(ctx).Create(&conv).Error
	if createErr == nil {
		log.Info().Str("conversationID", conv.ID).Str("residentID", residentID).Msg("Created conversation")
		return conv, nil
	}

	// Insert conflict: re-read before giving up.
	err = s.db.WithContext(ctx).
		Where("building_id = ? AND resident_id = ? AND channel = ? AND status = ?",
			buildingID, residentID, channel, models.ConversationActive).
		First(&conv).Error
	if err == nil {
		log.Debug().Str("conversationID", conv.ID).Msg("Lost conversation insert race, reusing winner")
		return conv, nil
	}

	return models.Conversation{}, fmt.Errorf("conversation create failed: %w", createErr)
}

// Touch bumps the conversation's last-activity timestamp. The dashboard
// orders conversations by it.
func (s *ConversationStore) Touch(ctx context.Context, conversationID string) error {
	return s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", conversationID).
		Update("last_activity_at", time.Now().UTC()).Error
}

// AppendInbound records the resident message. The unique index on
// (conversation_id, external_id) is the idempotency key: a redelivered
// webhook inserts zero rows and the pipeline stops with ErrDuplicateMessage.
func (s *ConversationStore) AppendInbound(ctx context.Context, conv models.Conversation, externalID, body, mediaURL string) (models.Message, error) {
	msg := models.Message{
		ConversationID: conv.ID,
		ExternalID:     &externalID,
		SenderType:     models.SenderResident,
		Content:        body,
		Channel:        conv.Channel,
	}
	if mediaURL != "" {
		msg.MediaURL = &mediaURL
	}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&msg)
	if result.Error != nil {
		return models.Message{}, fmt.Errorf("inbound message insert failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.Message{}, ErrDuplicateMessage
	}
	return msg, nil
}

// RecordClassification stores the classification metadata on the inbound
// message row after the AI call completes.
func (s *ConversationStore) RecordClassification(ctx context.Context, messageID, intent, priority, routeTo string, humanReview bool) error {
	return s.db.WithContext(ctx).Model(&models.Message{}).
		Where("id = ?", messageID).
		Updates(map[string]interface{}{
			"intent":       intent,
			"priority":     priority,
			"route_to":     routeTo,
			"human_review": humanReview,
		}).Error
}

// AppendOutbound records a successfully dispatched reply for audit. Failed
// sends are never persisted as sent messages.
func (s *ConversationStore) AppendOutbound(ctx context.Context, conv models.Conversation, senderType, body string) (models.Message, error) {
	msg := models.Message{
		ConversationID: conv.ID,
		SenderType:     senderType,
		Content:        body,
		Channel:        conv.Channel,
	}
	if err := s.db.WithContext(ctx).Create(&msg).Error; err != nil {
		return models.Message{}, fmt.Errorf("outbound message insert failed: %w", err)
	}
	return msg, nil
}
