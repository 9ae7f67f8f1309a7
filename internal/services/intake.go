package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"condopilot/internal/channel"
	"condopilot/internal/classifier"
	"condopilot/internal/events"
	"condopilot/internal/models"
)

// EventPublisher emits pipeline events for dashboard consumers. Failures are
// observability-only and never fail the pipeline.
type EventPublisher interface {
	PublishMessageProcessed(event events.MessageProcessed) error
}

// MediaArchiver stores an inbound attachment durably. nil disables archiving.
type MediaArchiver interface {
	Archive(ctx context.Context, buildingID, conversationID, externalID, mediaURL string) (string, error)
}

// IntakeService orchestrates one inbound message through the pipeline:
// resolve tenant and identity, ensure the conversation, classify, decide
// routing, then fan out ticket materialization, the auto-reply, role
// forwarding, and admin notifications concurrently.
type IntakeService struct {
	db            *gorm.DB
	resolver      *Resolver
	conversations *ConversationStore
	classifier    classifier.Classifier
	whatsapp      WhatsAppSender
	tickets       *TicketService
	notify        *NotifyService
	publisher     EventPublisher
	media         MediaArchiver
	dashboardURL  string
}

// NewIntakeService wires the pipeline. publisher and media may be nil.
func NewIntakeService(
	db *gorm.DB,
	resolver *Resolver,
	conversations *ConversationStore,
	cls classifier.Classifier,
	whatsapp WhatsAppSender,
	tickets *TicketService,
	notify *NotifyService,
	publisher EventPublisher,
	media MediaArchiver,
	dashboardURL string,
) (*IntakeService, error) {
	if db == nil || resolver == nil || conversations == nil || cls == nil || whatsapp == nil || tickets == nil || notify == nil {
		return nil, fmt.Errorf("intake service is missing a required dependency")
	}
	return &IntakeService{
		db:            db,
		resolver:      resolver,
		conversations: conversations,
		classifier:    cls,
		whatsapp:      whatsapp,
		tickets:       tickets,
		notify:        notify,
		publisher:     publisher,
		media:         media,
		dashboardURL:  dashboardURL,
	}, nil
}

// ProcessInbound runs the pipeline for one normalized inbound message.
//
// A nil return means "handled" in the webhook sense, including the terminal
// no-op outcomes: unknown tenant (silent), unknown sender (one fixed reply),
// duplicate delivery (already processed). Only persistence failures surface
// as errors, and the webhook handler still acknowledges those.
func (s *IntakeService) ProcessInbound(ctx context.Context, in channel.InboundMessage) error {
	building, err := s.resolver.ResolveTenant(ctx, in.ToAddress)
	if errors.Is(err, ErrTenantNotFound) {
		log.Warn().Str("toAddress", in.ToAddress).Msg("Inbound message for unknown tenant, dropping")
		return nil
	}
	if err != nil {
		return err
	}

	resident, err := s.resolver.ResolveResident(ctx, building, in.FromAddress)
	if errors.Is(err, ErrUnknownSender) {
		log.Info().Str("fromAddress", in.FromAddress).Str("buildingID", building.ID).Msg("Unknown sender, replying with rejection notice")
		if sendErr := s.whatsapp.SendWhatsApp(ctx, in.FromAddress, building.WhatsAppNumber, unknownSenderReply(building.Language)); sendErr != nil {
			log.Error().Err(sendErr).Str("fromAddress", in.FromAddress).Msg("Could not deliver unknown-sender reply")
		}
		return nil
	}
	if err != nil {
		return err
	}

	conv, err := s.conversations.GetOrCreateActive(ctx, building.ID, resident.ID, "whatsapp")
	if err != nil {
		return err
	}

	msg, err := s.conversations.AppendInbound(ctx, conv, in.ExternalID, in.Body, in.MediaURL)
	if errors.Is(err, ErrDuplicateMessage) {
		log.Info().Str("externalID", in.ExternalID).Str("conversationID", conv.ID).Msg("Duplicate webhook delivery, skipping")
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.conversations.Touch(ctx, conv.ID); err != nil {
		log.Error().Err(err).Str("conversationID", conv.ID).Msg("Could not bump conversation activity")
	}

	language := resident.Language
	if language == "" {
		language = building.Language
	}

	classification := s.classifier.Classify(ctx, classifier.Request{
		Body:         in.Body,
		ResidentRole: resident.Role,
		Language:     language,
		BuildingName: building.Name,
	})
	decision := Decide(classification, resident.Role, language)

	if err := s.conversations.RecordClassification(ctx, msg.ID, classification.Intent, decision.Priority, classification.RouteTo, decision.RequiresHumanReview); err != nil {
		log.Error().Err(err).Str("messageID", msg.ID).Msg("Could not record classification metadata")
	}

	log.Info().
		Str("messageID", msg.ID).
		Str("intent", classification.Intent).
		Str("priority", decision.Priority).
		Strs("recipients", decision.Recipients).
		Bool("humanReview", decision.RequiresHumanReview).
		Msg("Routing decision made")

	// The remaining paths are independent of one another; each runs in its
	// own goroutine and its failure is isolated.
	var wg sync.WaitGroup
	var ticketCreated bool
	var ticketMu sync.Mutex

	s.spawn(&wg, "ticket", func() {
		ticket, tErr := s.tickets.MaybeCreateTicket(ctx, classification, resident, conv, in.Body)
		if tErr != nil {
			log.Error().Err(tErr).Str("messageID", msg.ID).Msg("Ticket materialization failed")
			return
		}
		if ticket != nil {
			ticketMu.Lock()
			ticketCreated = true
			ticketMu.Unlock()
		}
	})

	s.spawn(&wg, "auto-reply", func() {
		s.sendAutoReply(ctx, building, resident, conv, decision)
	})

	if decision.NotifiesAdmin() {
		event := NotificationEvent{
			Priority:         decision.Priority,
			Type:             classification.Intent,
			ResidentName:     resident.Name,
			Unit:             s.unitLabel(ctx, resident),
			Excerpt:          excerpt(in.Body),
			ConversationLink: s.conversationLink(conv.ID),
		}
		s.spawn(&wg, "admin-fanout", func() {
			s.notify.NotifyAdmins(ctx, building, event)
		})
	}

	if decision.ForwardsTo(classifier.RouteToOwner) || decision.ForwardsTo(classifier.RouteToRenter) {
		s.spawn(&wg, "forwarding", func() {
			s.forwardToCounterparts(ctx, building, resident, conv, decision, in.Body)
		})
	}

	if in.MediaURL != "" && s.media != nil {
		s.spawn(&wg, "media-archive", func() {
			if _, aErr := s.media.Archive(ctx, building.ID, conv.ID, in.ExternalID, in.MediaURL); aErr != nil {
				log.Error().Err(aErr).Str("messageID", msg.ID).Msg("Media archiving failed")
			}
		})
	}

	wg.Wait()

	if s.publisher != nil {
		pubErr := s.publisher.PublishMessageProcessed(events.MessageProcessed{
			BuildingID:     building.ID,
			ConversationID: conv.ID,
			MessageID:      msg.ID,
			Intent:         classification.Intent,
			Priority:       decision.Priority,
			TicketCreated:  ticketCreated,
			ProcessedAt:    time.Now().UTC(),
		})
		if pubErr != nil {
			log.Error().Err(pubErr).Str("messageID", msg.ID).Msg("Could not publish processed event")
		}
	}

	return nil
}

// spawn runs fn on its own goroutine with panic isolation.
func (s *IntakeService) spawn(wg *sync.WaitGroup, name string, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", name).Msg("Pipeline path panicked")
			}
		}()
		fn()
	}()
}

func (s *IntakeService) sendAutoReply(ctx context.Context, building models.Building, resident models.Resident, conv models.Conversation, decision RoutingDecision) {
	if !resident.WhatsAppOptIn || decision.AutoReplyText == "" {
		return
	}
	to := resident.WhatsAppNumber
	if to == "" {
		to = resident.Phone
	}
	if to == "" {
		return
	}

	if err := s.whatsapp.SendWhatsApp(ctx, to, building.WhatsAppNumber, decision.AutoReplyText); err != nil {
		// Logged and counted; failed sends are not persisted as sent messages.
		log.Error().Err(err).Str("conversationID", conv.ID).Msg("Auto-reply dispatch failed")
		return
	}
	if _, err := s.conversations.AppendOutbound(ctx, conv, models.SenderAI, decision.AutoReplyText); err != nil {
		log.Error().Err(err).Str("conversationID", conv.ID).Msg("Could not persist auto-reply message")
	}
}

// forwardToCounterparts relays the message to the sender's cross-role
// counterparts in the same unit (renter -> owner, owner -> renter). Each
// successful dispatch is recorded on the originating conversation for audit,
// like the auto-reply path.
func (s *IntakeService) forwardToCounterparts(ctx context.Context, building models.Building, sender models.Resident, conv models.Conversation, decision RoutingDecision, body string) {
	if sender.UnitID == nil {
		log.Debug().Str("residentID", sender.ID).Msg("No unit on file, skipping role forwarding")
		return
	}

	targetRole := models.RoleOwner
	if decision.ForwardsTo(classifier.RouteToRenter) {
		targetRole = models.RoleRenter
	}

	var counterparts []models.Resident
	err := s.db.WithContext(ctx).
		Where("building_id = ? AND unit_id = ? AND role = ? AND id <> ? AND whatsapp_opt_in = ?",
			building.ID, *sender.UnitID, targetRole, sender.ID, true).
		Find(&counterparts).Error
	if err != nil {
		log.Error().Err(err).Str("residentID", sender.ID).Msg("Counterpart lookup failed")
		return
	}

	text := fmt.Sprintf("Message from %s (%s), unit %s:\n%s", sender.Name, sender.Role, s.unitLabel(ctx, sender), excerpt(body))
	for _, target := range counterparts {
		to := target.WhatsAppNumber
		if to == "" {
			to = target.Phone
		}
		if to == "" {
			continue
		}
		if sendErr := s.whatsapp.SendWhatsApp(ctx, to, building.WhatsAppNumber, text); sendErr != nil {
			log.Error().Err(sendErr).Str("targetID", target.ID).Msg("Role forwarding dispatch failed")
			continue
		}
		if _, err := s.conversations.AppendOutbound(ctx, conv, models.SenderAdmin, text); err != nil {
			log.Error().Err(err).Str("conversationID", conv.ID).Msg("Could not persist forwarded message copy")
		}
	}
}

func (s *IntakeService) unitLabel(ctx context.Context, resident models.Resident) string {
	if resident.UnitID == nil {
		return ""
	}
	var unit models.Unit
	if err := s.db.WithContext(ctx).First(&unit, "id = ?", *resident.UnitID).Error; err != nil {
		return ""
	}
	return unit.Label
}

func (s *IntakeService) conversationLink(conversationID string) string {
	base := strings.TrimSuffix(s.dashboardURL, "/")
	if base == "" {
		return ""
	}
	return base + "/conversations/" + conversationID
}

func excerpt(body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return "(media message)"
	}
	// Truncate on rune boundaries; a byte slice can sever a multi-byte
	// character and ship invalid UTF-8 into alerts and emails.
	const maxRunes = 160
	runes := []rune(body)
	if len(runes) <= maxRunes {
		return body
	}
	return string(runes[:maxRunes]) + "…"
}

func unknownSenderReply(language string) string {
	language = strings.ToLower(strings.TrimSpace(language))
	if len(language) > 2 {
		language = language[:2]
	}
	switch language {
	case "es":
		return "Tu número no está registrado en este edificio. Por favor contacta a tu administrador."
	case "pt":
		return "O seu número não está registado neste edifício. Entre em contato com o seu administrador."
	default:
		return "Your number is not registered with this building. Please contact your administrator."
	}
}
