package services

import (
	"context"
	"fmt"
	"html"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"condopilot/internal/classifier"
	"condopilot/internal/models"
)

// WhatsAppSender dispatches one message through the messaging gateway.
// Implemented by the twilio adapter; tests inject doubles.
type WhatsAppSender interface {
	SendWhatsApp(ctx context.Context, to, from, body string) error
}

// EmailSender dispatches one transactional email. Implemented by the resend
// adapter; nil when email credentials are not configured.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, html string) error
}

// NotificationEvent describes one urgency event for the administration.
type NotificationEvent struct {
	Priority         string
	Type             string // intent of the originating message
	ResidentName     string
	Unit             string
	Excerpt          string
	ConversationLink string
}

type notifyResult struct {
	admin   string
	channel string
	err     error
}

// NotifyService fans an event out to every eligible admin of a building.
// Each (admin, channel) attempt runs independently: one failure never blocks
// the siblings, and the service reports a success count instead of an error.
type NotifyService struct {
	db       *gorm.DB
	whatsapp WhatsAppSender
	email    EmailSender
	cache    *gocache.Cache
}

// NewNotifyService creates a NotifyService. email may be nil when no email
// provider is configured; whatsapp alerts still go out.
func NewNotifyService(db *gorm.DB, whatsapp WhatsAppSender, email EmailSender) *NotifyService {
	return &NotifyService{
		db:       db,
		whatsapp: whatsapp,
		email:    email,
		cache:    gocache.New(time.Minute, 5*time.Minute),
	}
}

// NotifyAdmins dispatches the event to every eligible admin over email and,
// for emergency/high priorities, WhatsApp. Returns the number of successful
// notifications for observability; partial failure is logged, never
// propagated.
func (s *NotifyService) NotifyAdmins(ctx context.Context, building models.Building, event NotificationEvent) int {
	admins, err := s.adminsForBuilding(ctx, building.ID)
	if err != nil {
		log.Error().Err(err).Str("buildingID", building.ID).Msg("Could not load admins for notification fanout")
		return 0
	}

	var wg sync.WaitGroup
	results := make(chan notifyResult, len(admins)*2)

	for _, admin := range admins {
		if !eligible(admin, event) {
			continue
		}

		if admin.Email != "" && s.email != nil {
			wg.Add(1)
			go func(a models.AdminProfile) {
				defer wg.Done()
				defer recoverToResult(results, a.ID, "email")
				subject, html := renderEmail(building, event)
				results <- notifyResult{admin: a.ID, channel: "email", err: s.email.SendEmail(ctx, a.Email, subject, html)}
			}(admin)
		}

		urgent := event.Priority == classifier.PriorityEmergency || event.Priority == classifier.PriorityHigh
		if urgent && admin.Phone != "" && building.WhatsAppNumber != "" {
			wg.Add(1)
			go func(a models.AdminProfile) {
				defer wg.Done()
				defer recoverToResult(results, a.ID, "whatsapp")
				body := renderWhatsApp(event)
				results <- notifyResult{admin: a.ID, channel: "whatsapp", err: s.whatsapp.SendWhatsApp(ctx, a.Phone, building.WhatsAppNumber, body)}
			}(admin)
		}
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	succeeded := 0
	for r := range results {
		if r.err != nil {
			log.Error().Err(r.err).Str("adminID", r.admin).Str("channel", r.channel).Msg("Admin notification failed")
			continue
		}
		succeeded++
		log.Debug().Str("adminID", r.admin).Str("channel", r.channel).Msg("Admin notified")
	}

	log.Info().
		Str("buildingID", building.ID).
		Str("priority", event.Priority).
		Int("succeeded", succeeded).
		Msg("Notification fanout completed")
	return succeeded
}

// eligible evaluates the per-admin preference policy. Emergency and high
// priorities have their own flags and bypass general-category gating;
// maintenance events check the maintenance flag; everything else checks the
// general flag.
func eligible(admin models.AdminProfile, event NotificationEvent) bool {
	switch event.Priority {
	case classifier.PriorityEmergency:
		return admin.NotifyEmergency
	case classifier.PriorityHigh:
		return admin.NotifyHigh
	}
	if event.Type == classifier.IntentMaintenance {
		return admin.NotifyMaintenance
	}
	return admin.NotifyGeneral
}

func (s *NotifyService) adminsForBuilding(ctx context.Context, buildingID string) ([]models.AdminProfile, error) {
	if cached, found := s.cache.Get("admins:" + buildingID); found {
		return cached.([]models.AdminProfile), nil
	}

	var admins []models.AdminProfile
	if err := s.db.WithContext(ctx).Where("building_id = ?", buildingID).Find(&admins).Error; err != nil {
		return nil, fmt.Errorf("admin lookup failed: %w", err)
	}
	s.cache.SetDefault("admins:"+buildingID, admins)
	return admins, nil
}

// recoverToResult converts a panic in a dispatch goroutine into a failed
// result so a broken sender cannot take down its siblings.
func recoverToResult(results chan<- notifyResult, adminID, channel string) {
	if r := recover(); r != nil {
		results <- notifyResult{admin: adminID, channel: channel, err: fmt.Errorf("dispatch panicked: %v", r)}
	}
}

func renderEmail(building models.Building, event NotificationEvent) (string, string) {
	subject := fmt.Sprintf("[%s] %s message from %s", building.Name, event.Priority, event.ResidentName)
	unit := event.Unit
	if unit == "" {
		unit = "-"
	}
	// Resident-controlled fields are escaped: message content must never land
	// in the email body as live markup.
	body := fmt.Sprintf(
		`<p><strong>%s</strong> (unit %s) sent a %s priority %s message:</p><blockquote>%s</blockquote><p><a href="%s">Open conversation</a></p>`,
		html.EscapeString(event.ResidentName),
		html.EscapeString(unit),
		html.EscapeString(event.Priority),
		html.EscapeString(event.Type),
		html.EscapeString(event.Excerpt),
		event.ConversationLink,
	)
	return subject, body
}

func renderWhatsApp(event NotificationEvent) string {
	prefix := "⚠️"
	if event.Priority == classifier.PriorityEmergency {
		prefix = "🚨"
	}
	return fmt.Sprintf("%s %s: %s (%s)\n%s", prefix, event.Priority, event.ResidentName, event.Excerpt, event.ConversationLink)
}
