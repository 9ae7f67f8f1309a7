package db

import (
	"fmt"
	stlog "log"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"condopilot/internal/models"
)

// Open connects to the store identified by dsn. A postgres:// DSN selects the
// postgres driver; anything else is treated as a sqlite path, which the test
// suite uses with ":memory:".
func Open(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}

	gormLogLevel := gormlogger.Warn
	if log.Logger.GetLevel() <= 0 { // debug or trace
		gormLogLevel = gormlogger.Info
	}
	newLogger := gormlogger.New(
		stlog.New(log.Logger, "", 0),
		gormlogger.Config{
			LogLevel:                  gormLogLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{Logger: newLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info().Msg("Database connection established")
	return conn, nil
}

// Migrate runs AutoMigrate for every model plus the guard indexes GORM cannot
// express through tags: the partial unique index that enforces the single
// active conversation per (building, resident, channel).
func Migrate(conn *gorm.DB) error {
	err := conn.AutoMigrate(
		&models.Building{},
		&models.Unit{},
		&models.Resident{},
		&models.Conversation{},
		&models.Message{},
		&models.MaintenanceRequest{},
		&models.AdminProfile{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	// Partial indexes share syntax between postgres and sqlite.
	err = conn.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS ux_conversations_active
		ON conversations (building_id, resident_id, channel)
		WHERE status = 'active'`).Error
	if err != nil {
		return fmt.Errorf("failed to create active-conversation guard index: %w", err)
	}

	log.Info().Msg("Database migration completed")
	return nil
}
