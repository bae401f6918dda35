package delivery

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSender is a placeholder sender that logs the message instead of handing
// it to a provider. Used for channels whose provider integration is
// configured per deployment (email relay, SMS gateway, push service).
type LogSender struct {
	channel string
	logger  zerolog.Logger
}

// NewLogSender creates a logging sender for the given channel name.
func NewLogSender(channel string, logger zerolog.Logger) *LogSender {
	return &LogSender{channel: channel, logger: logger}
}

func (s *LogSender) Channel() string { return s.channel }

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.logger.Info().
		Str("channel", s.channel).
		Str("recipient_id", msg.RecipientID.String()).
		Str("recipient_name", msg.RecipientName).
		Str("title", msg.Title).
		Str("priority", msg.Priority).
		Msg("outbound notification")
	return nil
}

// FuncSender adapts a function into a ChannelSender. The database channel is
// wired this way, backed by the notification store.
type FuncSender struct {
	Name string
	Fn   func(ctx context.Context, msg Message) error
}

func (s *FuncSender) Channel() string { return s.Name }

func (s *FuncSender) Send(ctx context.Context, msg Message) error {
	return s.Fn(ctx, msg)
}
