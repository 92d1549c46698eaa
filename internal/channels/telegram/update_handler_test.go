package telegram

import (
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aatumaykin/modbot/internal/bus"
	"github.com/aatumaykin/modbot/internal/logger"
)

func TestUpdateHandler_Message(t *testing.T) {
	b := newFakeBus()
	h := NewUpdateHandler(logger.Discard(), b)

	err := h.Handle(telego.Update{Message: &telego.Message{
		MessageID: 15,
		Date:      1790000000,
		Chat:      telego.Chat{ID: -1001234},
		From:      &telego.User{ID: 77, IsBot: false},
		Text:      "/clear 5",
	}})
	require.NoError(t, err)

	got := b.events()
	require.Len(t, got, 1)
	assert.Equal(t, bus.EventMessageCreated, got[0].Kind)
	assert.Equal(t, bus.ChannelTypeTelegram, got[0].ChannelType)
	assert.Equal(t, "-1001234", got[0].ChannelID)
	assert.Equal(t, "15", got[0].MessageID)
	assert.Equal(t, "77", got[0].UserID)
	assert.False(t, got[0].AuthorIsBot)
	assert.Equal(t, time.Unix(1790000000, 0), got[0].CreatedAt)
	assert.Equal(t, "/clear 5", got[0].Content)
	assert.Equal(t, "telegram:-1001234", got[0].Key())
}

func TestUpdateHandler_CaptionAndBotAuthor(t *testing.T) {
	b := newFakeBus()
	h := NewUpdateHandler(logger.Discard(), b)

	require.NoError(t, h.Handle(telego.Update{Message: &telego.Message{
		MessageID: 3,
		Chat:      telego.Chat{ID: 9},
		From:      &telego.User{ID: 1, IsBot: true},
		Caption:   "photo caption",
	}}))

	got := b.events()
	require.Len(t, got, 1)
	assert.True(t, got[0].AuthorIsBot)
	assert.Equal(t, "photo caption", got[0].Content)
}

func TestUpdateHandler_ChannelPost(t *testing.T) {
	b := newFakeBus()
	h := NewUpdateHandler(logger.Discard(), b)

	require.NoError(t, h.Handle(telego.Update{ChannelPost: &telego.Message{
		MessageID: 8,
		Chat:      telego.Chat{ID: -100500},
		Text:      "announcement",
	}}))

	got := b.events()
	require.Len(t, got, 1)
	assert.Equal(t, "8", got[0].MessageID)
	assert.Empty(t, got[0].UserID)
}

func TestUpdateHandler_PinServiceMessage(t *testing.T) {
	b := newFakeBus()
	h := NewUpdateHandler(logger.Discard(), b)

	require.NoError(t, h.Handle(telego.Update{Message: &telego.Message{
		MessageID:     20,
		Chat:          telego.Chat{ID: 9},
		From:          &telego.User{ID: 5},
		PinnedMessage: &telego.Message{MessageID: 12, Chat: telego.Chat{ID: 9}},
	}}))

	got := b.events()
	require.Len(t, got, 2)
	assert.Equal(t, bus.EventMessageUpdated, got[0].Kind)
	assert.Equal(t, "12", got[0].MessageID)
	assert.True(t, got[0].Pinned)
	assert.Equal(t, bus.EventMessageCreated, got[1].Kind)
	assert.Equal(t, "20", got[1].MessageID)
}

func TestUpdateHandler_IgnoresOtherUpdates(t *testing.T) {
	b := newFakeBus()
	h := NewUpdateHandler(logger.Discard(), b)

	require.NoError(t, h.Handle(telego.Update{UpdateID: 1}))
	assert.Empty(t, b.events())
}

func TestUpdateHandler_PublishError(t *testing.T) {
	b := newFakeBus()
	b.publishErr = bus.ErrQueueFull
	h := NewUpdateHandler(logger.Discard(), b)

	err := h.Handle(telego.Update{Message: &telego.Message{MessageID: 1, Chat: telego.Chat{ID: 9}}})
	assert.ErrorIs(t, err, bus.ErrQueueFull)
}
