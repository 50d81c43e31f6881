package delivery

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/flowsend/campaign-worker/internal/model"
)

// OutboundMessage is one message a conversational session wants delivered.
type OutboundMessage struct {
	To      string
	Type    string
	Content map[string]any
}

// SessionEngine runs the campaign's conversational flow for one recipient
// and yields the outbound messages the flow produces. The engine itself is
// an external collaborator.
type SessionEngine interface {
	StartSession(ctx context.Context, campaign *model.Campaign, phoneNumber string, variables map[string]any) ([]OutboundMessage, error)
}

// ChannelSender performs the actual provider call for one message and
// returns the provider message id used to correlate delivery receipts.
type ChannelSender interface {
	Send(ctx context.Context, campaign *model.Campaign, msg OutboundMessage) (messageID string, err error)
}

// StubSessionEngine yields a single templated message per recipient.
// TODO: replace with the chat-api session client once its endpoint is
// stable; the worker only depends on the interfaces above.
type StubSessionEngine struct{}

func (StubSessionEngine) StartSession(_ context.Context, campaign *model.Campaign, phoneNumber string, variables map[string]any) ([]OutboundMessage, error) {
	return []OutboundMessage{{
		To:      phoneNumber,
		Type:    "text",
		Content: map[string]any{"flowId": campaign.FlowID, "variables": variables},
	}}, nil
}

// StubChannelSender logs instead of calling the provider.
type StubChannelSender struct{}

func (StubChannelSender) Send(_ context.Context, _ *model.Campaign, msg OutboundMessage) (string, error) {
	log.Printf("📱 Sending message to: %s", msg.To)
	time.Sleep(100 * time.Millisecond)
	return uuid.NewString(), nil
}

var (
	_ SessionEngine = StubSessionEngine{}
	_ ChannelSender = StubChannelSender{}
)
