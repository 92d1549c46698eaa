package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/aatumaykin/modbot/internal/autodelete"
	"github.com/aatumaykin/modbot/internal/bus"
	"github.com/aatumaykin/modbot/internal/logger"
)

type MockEvents struct {
	mock.Mock
}

func (m *MockEvents) HandleMessage(msg autodelete.TrackedMessage) {
	m.Called(msg)
}

func (m *MockEvents) HandlePinUpdate(key, messageID string, pinned bool) {
	m.Called(key, messageID, pinned)
}

func (m *MockEvents) HandleDelete(key, messageID string) {
	m.Called(key, messageID)
}

type MockCommands struct {
	mock.Mock
}

func (m *MockCommands) HandleMessage(ctx context.Context, msg bus.InboundMessage) (bool, error) {
	args := m.Called(ctx, msg)
	return args.Bool(0), args.Error(1)
}

func newLoopApp(events *MockEvents, cmds *MockCommands) *App {
	return &App{logger: logger.Discard(), events: events, commands: cmds}
}

func TestTrackedMessage(t *testing.T) {
	created := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	msg := bus.InboundMessage{
		ChannelType: bus.ChannelTypeDiscord,
		ChannelID:   "5",
		MessageID:   "100",
		AuthorIsBot: true,
		Pinned:      true,
		CreatedAt:   created,
	}

	assert.Equal(t, autodelete.TrackedMessage{
		ID:          "100",
		ChannelID:   "discord:5",
		AuthorIsBot: true,
		Pinned:      true,
		CreatedAt:   created,
	}, trackedMessage(msg))
}

func TestTrackedMessage_FallsBackToTimestamp(t *testing.T) {
	ts := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	msg := bus.InboundMessage{ChannelType: bus.ChannelTypeTelegram, ChannelID: "-1", MessageID: "1", Timestamp: ts}

	assert.Equal(t, ts, trackedMessage(msg).CreatedAt)
}

func TestProcessMessage_Created(t *testing.T) {
	events := new(MockEvents)
	cmds := new(MockCommands)
	a := newLoopApp(events, cmds)

	msg := bus.InboundMessage{
		Kind:        bus.EventMessageCreated,
		ChannelType: bus.ChannelTypeDiscord,
		ChannelID:   "5",
		MessageID:   "100",
		Content:     "~clear 5",
		CreatedAt:   time.Now(),
	}
	cmds.On("HandleMessage", mock.Anything, msg).Return(true, nil)
	events.On("HandleMessage", trackedMessage(msg)).Return()

	a.processMessage(context.Background(), msg)

	cmds.AssertExpectations(t)
	events.AssertExpectations(t)
}

func TestProcessMessage_CommandErrorStillTracks(t *testing.T) {
	events := new(MockEvents)
	cmds := new(MockCommands)
	a := newLoopApp(events, cmds)

	msg := bus.InboundMessage{Kind: bus.EventMessageCreated, ChannelType: bus.ChannelTypeTelegram, ChannelID: "-1", MessageID: "2", CreatedAt: time.Now()}
	cmds.On("HandleMessage", mock.Anything, msg).Return(true, errors.New("bus full"))
	events.On("HandleMessage", mock.Anything).Return()

	a.processMessage(context.Background(), msg)

	events.AssertCalled(t, "HandleMessage", trackedMessage(msg))
}

func TestProcessMessage_PinUpdate(t *testing.T) {
	events := new(MockEvents)
	a := newLoopApp(events, new(MockCommands))

	events.On("HandlePinUpdate", "discord:5", "100", true).Return()

	a.processMessage(context.Background(), bus.InboundMessage{
		Kind: bus.EventMessageUpdated, ChannelType: bus.ChannelTypeDiscord, ChannelID: "5", MessageID: "100", Pinned: true,
	})

	events.AssertExpectations(t)
}

func TestProcessMessage_Deleted(t *testing.T) {
	events := new(MockEvents)
	a := newLoopApp(events, new(MockCommands))

	events.On("HandleDelete", "telegram:-1", "7").Return()

	a.processMessage(context.Background(), bus.InboundMessage{
		Kind: bus.EventMessageDeleted, ChannelType: bus.ChannelTypeTelegram, ChannelID: "-1", MessageID: "7",
	})

	events.AssertExpectations(t)
}

func TestProcessMessage_UnknownKind(t *testing.T) {
	events := new(MockEvents)
	cmds := new(MockCommands)
	a := newLoopApp(events, cmds)

	a.processMessage(context.Background(), bus.InboundMessage{Kind: "reaction_added", ChannelType: bus.ChannelTypeDiscord, ChannelID: "5"})

	events.AssertNotCalled(t, "HandleMessage", mock.Anything)
	cmds.AssertNotCalled(t, "HandleMessage", mock.Anything, mock.Anything)
}

func TestEventLoop_ConsumesBus(t *testing.T) {
	events := new(MockEvents)
	a := newLoopApp(events, new(MockCommands))
	a.messageBus = bus.New(10, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	assert.NoError(t, a.messageBus.Start(ctx))
	defer a.messageBus.Stop()

	deleted := make(chan struct{}, 1)
	events.On("HandleDelete", "discord:5", "9").Run(func(mock.Arguments) { deleted <- struct{}{} }).Return()

	assert.NoError(t, a.StartMessageProcessing(ctx))
	assert.NoError(t, a.messageBus.PublishInbound(bus.InboundMessage{
		Kind: bus.EventMessageDeleted, ChannelType: bus.ChannelTypeDiscord, ChannelID: "5", MessageID: "9",
	}))

	select {
	case <-deleted:
	case <-time.After(time.Second):
		t.Fatal("event was not processed")
	}

	cancel()
	a.loopWG.Wait()
}
