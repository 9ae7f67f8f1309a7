package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"condopilot/internal/models"
)

// Resolver maps inbound addresses to tenants and residents. Building lookups
// are cached: every webhook of a tenant arrives on the same address, and
// building records change rarely.
type Resolver struct {
	db    *gorm.DB
	cache *gocache.Cache
}

// NewResolver creates a Resolver.
func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{
		db:    db,
		cache: gocache.New(5*time.Minute, 10*time.Minute),
	}
}

// ResolveTenant finds the building whose inbound channel address matches
// toAddress. Returns ErrTenantNotFound when no building matches.
func (r *Resolver) ResolveTenant(ctx context.Context, toAddress string) (models.Building, error) {
	if cached, found := r.cache.Get("building:" + toAddress); found {
		return cached.(models.Building), nil
	}

	var building models.Building
	err := r.db.WithContext(ctx).Where("whatsapp_number = ?", toAddress).First(&building).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Building{}, ErrTenantNotFound
	}
	if err != nil {
		return models.Building{}, fmt.Errorf("building lookup failed: %w", err)
	}

	r.cache.SetDefault("building:"+toAddress, building)
	log.Debug().Str("buildingID", building.ID).Str("toAddress", toAddress).Msg("Resolved tenant")
	return building, nil
}

// ResolveResident finds the resident of the building whose messaging identity
// matches fromAddress. Both the on-file phone and the WhatsApp-specific number
// are checked: residents often message from a number that differs from the one
// the administration has on file. Returns ErrUnknownSender when neither
// matches.
func (r *Resolver) ResolveResident(ctx context.Context, building models.Building, fromAddress string) (models.Resident, error) {
	var resident models.Resident
	err := r.db.WithContext(ctx).
		Where("building_id = ? AND (phone = ? OR whatsapp_number = ?)", building.ID, fromAddress, fromAddress).
		First(&resident).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Resident{}, ErrUnknownSender
	}
	if err != nil {
		return models.Resident{}, fmt.Errorf("resident lookup failed: %w", err)
	}

	log.Debug().Str("residentID", resident.ID).Str("buildingID", building.ID).Msg("Resolved resident")
	return resident, nil
}
