package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"condopilot/internal/classifier"
	"condopilot/internal/db"
	"condopilot/internal/models"
)

// testDB opens a private in-memory sqlite database with the full schema. The
// pool is capped at one connection so concurrent test goroutines exercise the
// application-level race handling rather than sqlite's table locks.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	conn, err := db.Open(dsn)
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.Migrate(conn))
	return conn
}

func seedBuilding(t *testing.T, conn *gorm.DB) models.Building {
	t.Helper()
	building := models.Building{
		Name:           "Edificio Mirador",
		WhatsAppNumber: "+5511900001111",
		Language:       "es",
	}
	require.NoError(t, conn.Create(&building).Error)
	return building
}

func seedResident(t *testing.T, conn *gorm.DB, building models.Building, role, phone string) models.Resident {
	t.Helper()
	unit := models.Unit{BuildingID: building.ID, Label: "4B"}
	require.NoError(t, conn.Create(&unit).Error)

	resident := models.Resident{
		BuildingID:     building.ID,
		UnitID:         &unit.ID,
		Name:           "Ana Souza",
		Role:           role,
		Phone:          phone,
		WhatsAppOptIn:  true,
		Language:       "es",
	}
	require.NoError(t, conn.Create(&resident).Error)
	return resident
}

// fakeWhatsApp records sends and optionally fails them.
type fakeWhatsApp struct {
	mu    sync.Mutex
	sends []fakeSend
	fail  bool
}

type fakeSend struct {
	to, from, body string
}

func (f *fakeWhatsApp) SendWhatsApp(_ context.Context, to, from, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("gateway unavailable")
	}
	f.sends = append(f.sends, fakeSend{to: to, from: from, body: body})
	return nil
}

func (f *fakeWhatsApp) sent() []fakeSend {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fakeSend, len(f.sends))
	copy(out, f.sends)
	return out
}

// fakeEmail records sends and optionally fails them.
type fakeEmail struct {
	mu    sync.Mutex
	sends []string
	fail  bool
}

func (f *fakeEmail) SendEmail(_ context.Context, to, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return fmt.Errorf("email provider down")
	}
	f.sends = append(f.sends, to)
	return nil
}

func (f *fakeEmail) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sends))
	copy(out, f.sends)
	return out
}

// scriptedClassifier returns a fixed result.
type scriptedClassifier struct {
	result classifier.Result
}

func (s scriptedClassifier) Classify(context.Context, classifier.Request) classifier.Result {
	return s.result
}
