package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"condopilot/internal/classifier"
	"condopilot/internal/models"
)

func seedAdmin(t *testing.T, conn *gorm.DB, buildingID string, admin models.AdminProfile) models.AdminProfile {
	t.Helper()
	admin.BuildingID = buildingID
	require.NoError(t, conn.Create(&admin).Error)
	return admin
}

func TestNotifyAdminsEmergencyFanout(t *testing.T) {
	conn := testDB(t)
	building := seedBuilding(t, conn)

	// One admin has only email and the general flag; the other has only a
	// phone and the emergency flag.
	seedAdmin(t, conn, building.ID, models.AdminProfile{
		Name: "Email Admin", Email: "admin@mirador.example",
		NotifyEmergency: true, NotifyGeneral: true,
	})
	seedAdmin(t, conn, building.ID, models.AdminProfile{
		Name: "Phone Admin", Phone: "+5511977776666",
		NotifyEmergency: true,
	})

	whatsapp := &fakeWhatsApp{}
	email := &fakeEmail{}
	svc := NewNotifyService(conn, whatsapp, email)

	succeeded := svc.NotifyAdmins(context.Background(), building, NotificationEvent{
		Priority:     classifier.PriorityEmergency,
		Type:         classifier.IntentEmergency,
		ResidentName: "Ana Souza",
		Excerpt:      "Se rompió un caño en el 4B",
	})

	assert.Equal(t, 2, succeeded)
	require.Len(t, email.sent(), 1)
	assert.Equal(t, "admin@mirador.example", email.sent()[0])
	require.Len(t, whatsapp.sent(), 1)
	assert.Equal(t, "+5511977776666", whatsapp.sent()[0].to)
	assert.Equal(t, building.WhatsAppNumber, whatsapp.sent()[0].from)
}

func TestNotifyAdminsEmailFailureDoesNotBlockWhatsApp(t *testing.T) {
	conn := testDB(t)
	building := seedBuilding(t, conn)

	seedAdmin(t, conn, building.ID, models.AdminProfile{
		Name: "Email Admin", Email: "admin@mirador.example", NotifyEmergency: true,
	})
	seedAdmin(t, conn, building.ID, models.AdminProfile{
		Name: "Phone Admin", Phone: "+5511977776666", NotifyEmergency: true,
	})

	whatsapp := &fakeWhatsApp{}
	email := &fakeEmail{fail: true}
	svc := NewNotifyService(conn, whatsapp, email)

	succeeded := svc.NotifyAdmins(context.Background(), building, NotificationEvent{
		Priority: classifier.PriorityEmergency,
		Type:     classifier.IntentEmergency,
	})

	assert.Equal(t, 1, succeeded)
	assert.Len(t, whatsapp.sent(), 1)
}

func TestNotifyAdminsPreferenceGating(t *testing.T) {
	conn := testDB(t)
	building := seedBuilding(t, conn)

	// Maintenance flag off: a medium maintenance event must not reach them.
	seedAdmin(t, conn, building.ID, models.AdminProfile{
		Name: "Opted Out", Email: "optout@mirador.example",
		NotifyMaintenance: false, NotifyGeneral: true,
	})
	seedAdmin(t, conn, building.ID, models.AdminProfile{
		Name: "Maintenance Admin", Email: "mnt@mirador.example",
		NotifyMaintenance: true,
	})

	whatsapp := &fakeWhatsApp{}
	email := &fakeEmail{}
	svc := NewNotifyService(conn, whatsapp, email)

	succeeded := svc.NotifyAdmins(context.Background(), building, NotificationEvent{
		Priority: classifier.PriorityMedium,
		Type:     classifier.IntentMaintenance,
	})

	assert.Equal(t, 1, succeeded)
	require.Len(t, email.sent(), 1)
	assert.Equal(t, "mnt@mirador.example", email.sent()[0])
	// Medium priority never goes out over WhatsApp.
	assert.Empty(t, whatsapp.sent())
}

func TestRenderEmailEscapesResidentContent(t *testing.T) {
	building := models.Building{Name: "Edificio Mirador"}
	event := NotificationEvent{
		Priority:         classifier.PriorityHigh,
		Type:             classifier.IntentComplaint,
		ResidentName:     `Ana <script>alert(1)</script>`,
		Unit:             "4B",
		Excerpt:          `<a href="https://evil.example">click to fix your bill</a>`,
		ConversationLink: "https://app.condopilot.example/conversations/c1",
	}

	_, body := renderEmail(building, event)

	// Resident-supplied markup must arrive inert, not as live HTML.
	assert.NotContains(t, body, `<a href="https://evil.example">`)
	assert.NotContains(t, body, "<script>")
	assert.Contains(t, body, "&lt;a href=&#34;https://evil.example&#34;&gt;")
	assert.Contains(t, body, "&lt;script&gt;")
	// The service-generated link stays live.
	assert.Contains(t, body, `<a href="https://app.condopilot.example/conversations/c1">`)
}

func TestNotifyAdminsNoEmailProviderConfigured(t *testing.T) {
	conn := testDB(t)
	building := seedBuilding(t, conn)

	seedAdmin(t, conn, building.ID, models.AdminProfile{
		Name: "Email Only", Email: "admin@mirador.example", NotifyEmergency: true,
	})

	whatsapp := &fakeWhatsApp{}
	svc := NewNotifyService(conn, whatsapp, nil)

	succeeded := svc.NotifyAdmins(context.Background(), building, NotificationEvent{
		Priority: classifier.PriorityEmergency,
		Type:     classifier.IntentEmergency,
	})

	// Missing credentials are a soft failure: nothing crashes, nothing sends.
	assert.Equal(t, 0, succeeded)
}
