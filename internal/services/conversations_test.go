package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"condopilot/internal/models"
)

func TestGetOrCreateActiveReusesExisting(t *testing.T) {
	conn := testDB(t)
	building := seedBuilding(t, conn)
	resident := seedResident(t, conn, building, models.RoleRenter, "+551198")
	store := NewConversationStore(conn)
	ctx := context.Background()

	first, err := store.GetOrCreateActive(ctx, building.ID, resident.ID, "whatsapp")
	require.NoError(t, err)
	second, err := store.GetOrCreateActive(ctx, building.ID, resident.ID, "whatsapp")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, conn.Model(&models.Conversation{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGetOrCreateActiveConcurrentDuplicateDelivery(t *testing.T) {
	conn := testDB(t)
	building := seedBuilding(t, conn)
	resident := seedResident(t, conn, building, models.RoleRenter, "+551198")
	store := NewConversationStore(conn)

	const workers = 8
	ids := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv, err := store.GetOrCreateActive(context.Background(), building.ID, resident.ID, "whatsapp")
			ids[i], errs[i] = conv.ID, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}

	var count int64
	require.NoError(t, conn.Model(&models.Conversation{}).
		Where("status = ?", models.ConversationActive).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestGetOrCreateActiveIgnoresClosedConversations(t *testing.T) {
	conn := testDB(t)
	building := seedBuilding(t, conn)
	resident := seedResident(t, conn, building, models.RoleRenter, "+551198")
	store := NewConversationStore(conn)
	ctx := context.Background()

	first, err := store.GetOrCreateActive(ctx, building.ID, resident.ID, "whatsapp")
	require.NoError(t, err)

	// Admin closes the conversation in the dashboard.
	require.NoError(t, conn.Model(&models.Conversation{}).
		Where("id = ?", first.ID).Update("status", models.ConversationClosed).Error)

	reopened, err := store.GetOrCreateActive(ctx, building.ID, resident.ID, "whatsapp")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, reopened.ID)
	assert.Equal(t, models.ConversationActive, reopened.Status)
}

func TestAppendInboundIdempotency(t *testing.T) {
	conn := testDB(t)
	building := seedBuilding(t, conn)
	resident := seedResident(t, conn, building, models.RoleRenter, "+551198")
	store := NewConversationStore(conn)
	ctx := context.Background()

	conv, err := store.GetOrCreateActive(ctx, building.ID, resident.ID, "whatsapp")
	require.NoError(t, err)

	first, err := store.AppendInbound(ctx, conv, "SM100", "hay una fuga", "")
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)

	_, err = store.AppendInbound(ctx, conv, "SM100", "hay una fuga", "")
	assert.ErrorIs(t, err, ErrDuplicateMessage)

	var count int64
	require.NoError(t, conn.Model(&models.Message{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestAppendOutboundDoesNotCollideOnMissingExternalID(t *testing.T) {
	conn := testDB(t)
	building := seedBuilding(t, conn)
	resident := seedResident(t, conn, building, models.RoleRenter, "+551198")
	store := NewConversationStore(conn)
	ctx := context.Background()

	conv, err := store.GetOrCreateActive(ctx, building.ID, resident.ID, "whatsapp")
	require.NoError(t, err)

	_, err = store.AppendOutbound(ctx, conv, models.SenderAI, "ok")
	require.NoError(t, err)
	_, err = store.AppendOutbound(ctx, conv, models.SenderAI, "anything else?")
	require.NoError(t, err)

	var count int64
	require.NoError(t, conn.Model(&models.Message{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestTouchBumpsLastActivity(t *testing.T) {
	conn := testDB(t)
	building := seedBuilding(t, conn)
	resident := seedResident(t, conn, building, models.RoleRenter, "+551198")
	store := NewConversationStore(conn)
	ctx := context.Background()

	conv, err := store.GetOrCreateActive(ctx, building.ID, resident.ID, "whatsapp")
	require.NoError(t, err)

	require.NoError(t, store.Touch(ctx, conv.ID))

	var reloaded models.Conversation
	require.NoError(t, conn.First(&reloaded, "id = ?", conv.ID).Error)
	assert.False(t, reloaded.LastActivityAt.Before(conv.LastActivityAt))
}
