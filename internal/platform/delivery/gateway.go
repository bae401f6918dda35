// Package delivery fans notifications out across communication channels.
// Channel senders register with the Gateway by name; callers ask for a set of
// channels and get a per-channel outcome back. A failing or panicking sender
// never takes down the others.
package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Known channel names.
const (
	ChannelDatabase = "database"
	ChannelEmail    = "email"
	ChannelSMS      = "sms"
	ChannelWhatsApp = "whatsapp"
	ChannelPush     = "push"
	ChannelVoice    = "voice"
)

// Message is the channel-agnostic payload handed to each sender.
type Message struct {
	RecipientID    uuid.UUID
	RecipientName  string
	RecipientEmail string
	RecipientPhone string
	Title          string
	Body           string
	Priority       string
	Category       string
	Data           map[string]any
}

// ChannelSender delivers a message over one concrete channel.
type ChannelSender interface {
	Channel() string
	Send(ctx context.Context, msg Message) error
}

// Result is the outcome of delivering one message across a set of channels.
type Result struct {
	// Success is true when every requested channel delivered.
	Success bool
	// PerChannel maps channel name to whether its send succeeded.
	PerChannel map[string]bool
	// Errors holds the failure reason for each failed channel.
	Errors map[string]string
}

// Gateway routes messages to registered channel senders.
type Gateway struct {
	senders     map[string]ChannelSender
	sendTimeout time.Duration
	logger      zerolog.Logger
}

// NewGateway creates a Gateway with the given per-channel send timeout.
func NewGateway(sendTimeout time.Duration, logger zerolog.Logger, senders ...ChannelSender) *Gateway {
	g := &Gateway{
		senders:     make(map[string]ChannelSender),
		sendTimeout: sendTimeout,
		logger:      logger,
	}
	for _, s := range senders {
		g.Register(s)
	}
	return g
}

// Register adds or replaces the sender for its channel.
func (g *Gateway) Register(sender ChannelSender) {
	g.senders[sender.Channel()] = sender
}

// Channels returns the names of all registered channels.
func (g *Gateway) Channels() []string {
	out := make([]string, 0, len(g.senders))
	for name := range g.senders {
		out = append(out, name)
	}
	return out
}

// Deliver sends msg over each requested channel in order. A channel with no
// registered sender counts as a failure for that channel. Sender panics are
// recovered and folded into the result.
func (g *Gateway) Deliver(ctx context.Context, channels []string, msg Message) Result {
	result := Result{
		Success:    true,
		PerChannel: make(map[string]bool, len(channels)),
		Errors:     make(map[string]string),
	}

	for _, channel := range channels {
		sender, ok := g.senders[channel]
		if !ok {
			result.Success = false
			result.PerChannel[channel] = false
			result.Errors[channel] = fmt.Sprintf("no sender registered for channel %q", channel)
			continue
		}

		err := g.sendSafe(ctx, sender, msg)
		if err != nil {
			result.Success = false
			result.PerChannel[channel] = false
			result.Errors[channel] = err.Error()
			g.logger.Warn().Err(err).
				Str("channel", channel).
				Str("recipient_id", msg.RecipientID.String()).
				Msg("channel delivery failed")
			continue
		}
		result.PerChannel[channel] = true
	}

	return result
}

func (g *Gateway) sendSafe(ctx context.Context, sender ChannelSender, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panicked: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, g.sendTimeout)
	defer cancel()

	return sender.Send(ctx, msg)
}
