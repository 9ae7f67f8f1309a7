package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Resident roles.
const (
	RoleOwner  = "owner"
	RoleRenter = "renter"
)

// Conversation statuses.
const (
	ConversationActive = "active"
	ConversationClosed = "closed"
)

// Message sender types.
const (
	SenderResident = "resident"
	SenderAI       = "ai"
	SenderAdmin    = "admin"
)

// Building is the tenant root. Created by admin onboarding in the dashboard;
// this service only reads it.
type Building struct {
	ID             string    `gorm:"type:uuid;primaryKey"`
	Name           string    `gorm:"not null"`
	WhatsAppNumber string    `gorm:"column:whatsapp_number;uniqueIndex;comment:inbound channel address for this tenant"`
	Language       string    `gorm:"default:'es'"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// Unit is an apartment within a building.
type Unit struct {
	ID         string `gorm:"type:uuid;primaryKey"`
	BuildingID string `gorm:"type:uuid;index;not null"`
	Label      string
}

// Resident is a person tied to a building and optionally a unit. Looked up by
// channel address; never created by this service.
type Resident struct {
	ID             string  `gorm:"type:uuid;primaryKey"`
	BuildingID     string  `gorm:"type:uuid;index;not null"`
	UnitID         *string `gorm:"type:uuid"`
	Name           string
	Role           string `gorm:"not null;default:'renter'"`
	Phone          string `gorm:"index"`
	WhatsAppNumber string `gorm:"column:whatsapp_number;index;comment:messaging identity when it differs from the on-file phone"`
	// No gorm default: a declared default on a bool makes an explicit false
	// fall back to the column default at insert.
	WhatsAppOptIn bool `gorm:"column:whatsapp_opt_in"`
	Language      string
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

// Conversation is the continuity context between a resident and a building on
// one channel. At most one active conversation may exist per
// (building, resident, channel); the guard index is created in db.Migrate.
type Conversation struct {
	ID             string    `gorm:"type:uuid;primaryKey"`
	BuildingID     string    `gorm:"type:uuid;index;not null"`
	ResidentID     string    `gorm:"type:uuid;index;not null"`
	Channel        string    `gorm:"not null;default:'whatsapp'"`
	Status         string    `gorm:"not null;default:'active'"`
	LastActivityAt time.Time `gorm:"index"`
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// Message is an append-only log entry in a conversation. Classification
// metadata is stored denormalized so the dashboard can render it without a
// join.
type Message struct {
	ID             string  `gorm:"type:uuid;primaryKey"`
	ConversationID string  `gorm:"type:uuid;index:ux_conv_external,unique,priority:1;not null"`
	// ExternalID is the provider message id and the idempotency key. Nullable:
	// outbound rows have no provider id and must not collide on the unique index.
	ExternalID  *string `gorm:"index:ux_conv_external,unique,priority:2"`
	SenderType  string  `gorm:"not null"`
	Content     string  `gorm:"type:text"`
	Channel     string  `gorm:"not null;default:'whatsapp'"`
	MediaURL    *string
	Intent      string
	Priority    string
	RouteTo     string
	HumanReview bool
	CreatedAt   time.Time `gorm:"autoCreateTime;index"`
}

// MaintenanceRequest is materialized when a classified message indicates a
// maintenance issue. The full status lifecycle is owned by the dashboard.
type MaintenanceRequest struct {
	ID             string  `gorm:"type:uuid;primaryKey"`
	BuildingID     string  `gorm:"type:uuid;index;not null"`
	UnitID         *string `gorm:"type:uuid"`
	ResidentID     string  `gorm:"type:uuid;not null"`
	ConversationID string  `gorm:"type:uuid;index"`
	Category       string
	Location       string
	Priority       string `gorm:"not null;default:'medium'"`
	Description    string `gorm:"type:text"`
	Status         string `gorm:"not null;default:'open'"`
	ExtractedByAI  bool
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// AdminProfile joins an admin account to a building along with notification
// preferences. Read-only to this service; the dashboard maintains it.
type AdminProfile struct {
	ID                string `gorm:"type:uuid;primaryKey"`
	BuildingID        string `gorm:"type:uuid;index;not null"`
	Name              string
	Email             string
	Phone             string
	Language          string
	NotifyEmergency   bool
	NotifyHigh        bool
	NotifyMaintenance bool
	NotifyGeneral     bool
	CreatedAt         time.Time `gorm:"autoCreateTime"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime"`
}

// BeforeCreate assigns UUIDs so the service works the same against postgres
// and the sqlite test database.
func (b *Building) BeforeCreate(*gorm.DB) error { b.ID = ensureID(b.ID); return nil }
func (u *Unit) BeforeCreate(*gorm.DB) error     { u.ID = ensureID(u.ID); return nil }
func (r *Resident) BeforeCreate(*gorm.DB) error { r.ID = ensureID(r.ID); return nil }
func (c *Conversation) BeforeCreate(*gorm.DB) error {
	c.ID = ensureID(c.ID)
	if c.LastActivityAt.IsZero() {
		c.LastActivityAt = time.Now().UTC()
	}
	return nil
}
func (m *Message) BeforeCreate(*gorm.DB) error            { m.ID = ensureID(m.ID); return nil }
func (mr *MaintenanceRequest) BeforeCreate(*gorm.DB) error { mr.ID = ensureID(mr.ID); return nil }
func (a *AdminProfile) BeforeCreate(*gorm.DB) error        { a.ID = ensureID(a.ID); return nil }

func ensureID(id string) string {
	if id == "" {
		return uuid.New().String()
	}
	return id
}
