package crm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/audio-pipeline/internal/domain"
)

// MessageSender posts conversation messages
type MessageSender interface {
	SendMessage(ctx context.Context, msg Message) (*MessageResult, error)
}

// Messenger pushes a stored clip to a contact as a conversation message.
// It is never called by the pipeline itself. Channel session windows
// are not checked here.
type Messenger struct {
	sender  MessageSender
	channel string
	logger  *slog.Logger
}

// NewMessenger creates a new Messenger instance
func NewMessenger(sender MessageSender, channel string, logger *slog.Logger) *Messenger {
	return &Messenger{sender: sender, channel: channel, logger: logger}
}

// SendAudio sends audioURL as an attachment with an optional caption
func (m *Messenger) SendAudio(ctx context.Context, contactID, audioURL, caption string) (*MessageResult, error) {
	if contactID == "" || audioURL == "" {
		return nil, fmt.Errorf("%w: contact id and audio url are required", domain.ErrInvalidRequest)
	}

	result, err := m.sender.SendMessage(ctx, Message{
		Channel:     m.channel,
		ContactID:   contactID,
		Text:        caption,
		Attachments: []string{audioURL},
	})
	if err != nil {
		m.logger.Error("Failed to send audio message",
			slog.String("contact_id", contactID),
			slog.String("channel", m.channel),
			slog.Any("error", err),
		)
		return nil, err
	}

	m.logger.Info("Audio message sent",
		slog.String("contact_id", contactID),
		slog.String("channel", m.channel),
		slog.String("message_id", result.MessageID),
	)
	return result, nil
}
