// Package bus provides the message bus connecting platform connectors with
// the event loop. Connectors publish inbound message events (created, updated,
// deleted); the command handler publishes outbound replies that the
// connectors deliver.
//
// Supported channel types:
//   - Discord
//   - Telegram
package bus

import (
	"time"
)

// ChannelType represents the chat platform a message belongs to
type ChannelType string

const (
	ChannelTypeDiscord  ChannelType = "discord"
	ChannelTypeTelegram ChannelType = "telegram"
)

// EventKind - тип события о сообщении
type EventKind string

const (
	EventMessageCreated EventKind = "message_created"
	EventMessageUpdated EventKind = "message_updated"
	EventMessageDeleted EventKind = "message_deleted"
)

// InboundMessage represents a message event received from a platform.
// ChannelID is the platform-native id; Key() gives the qualified channel key.
type InboundMessage struct {
	Kind        EventKind      `json:"kind"`
	ChannelType ChannelType    `json:"channel_type"`
	ChannelID   string         `json:"channel_id"`
	MessageID   string         `json:"message_id"`
	UserID      string         `json:"user_id,omitempty"`
	AuthorIsBot bool           `json:"author_is_bot,omitempty"`
	Pinned      bool           `json:"pinned,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	Content     string         `json:"content,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Key возвращает ключ канала вида "<platform>:<id>"
func (m InboundMessage) Key() string {
	return string(m.ChannelType) + ":" + m.ChannelID
}

// OutboundMessage represents a reply to be sent to a platform channel
type OutboundMessage struct {
	ChannelType   ChannelType    `json:"channel_type"`
	ChannelID     string         `json:"channel_id"`
	ReplyTo       string         `json:"reply_to,omitempty"`
	Content       string         `json:"content"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// NewInboundMessage creates a message-created event with the current timestamp
func NewInboundMessage(channelType ChannelType, channelID, messageID, userID, content string) *InboundMessage {
	now := time.Now()
	return &InboundMessage{
		Kind:        EventMessageCreated,
		ChannelType: channelType,
		ChannelID:   channelID,
		MessageID:   messageID,
		UserID:      userID,
		Content:     content,
		CreatedAt:   now,
		Timestamp:   now,
	}
}

// NewOutboundMessage creates a reply with the current timestamp
func NewOutboundMessage(channelType ChannelType, channelID, replyTo, content, correlationID string) *OutboundMessage {
	return &OutboundMessage{
		ChannelType:   channelType,
		ChannelID:     channelID,
		ReplyTo:       replyTo,
		Content:       content,
		CorrelationID: correlationID,
		Timestamp:     time.Now(),
	}
}
