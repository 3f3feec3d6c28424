package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Topic carries every session event
const Topic = "docqa.session"

// Publisher is what the coordinator needs to announce state changes
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Bus is an in-process event bus on a watermill go channel.
// Publish blocks until every subscriber acked, so events are observed in order
// and before the publishing operation returns.
type Bus struct {
	pubSub *gochannel.GoChannel
}

var _ Publisher = &Bus{}

func NewBus(logger watermill.LoggerAdapter) *Bus {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Bus{
		pubSub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer:            16,
				BlockPublishUntilSubscriberAck: true,
			},
			logger,
		),
	}
}

func (b *Bus) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(BaseEvent{
		Type:       event.EventType(),
		Data:       event.Payload(),
		OccurredAt: event.Timestamp(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("event_type", event.EventType())
	msg.SetContext(ctx)

	if err := b.pubSub.Publish(Topic, msg); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.EventType(), err)
	}
	return nil
}

// Subscribe delivers decoded events until ctx is done or the bus is closed.
// The caller must keep draining the channel; each message is acked after hand-off.
func (b *Bus) Subscribe(ctx context.Context) (<-chan BaseEvent, error) {
	messages, err := b.pubSub.Subscribe(ctx, Topic)
	if err != nil {
		return nil, err
	}

	out := make(chan BaseEvent)
	go func() {
		defer close(out)
		for msg := range messages {
			var event BaseEvent
			if err := json.Unmarshal(msg.Payload, &event); err != nil {
				log.Printf("[ERROR] Failed to unmarshal event %s: %v", msg.UUID, err)
				msg.Ack() // Ack invalid messages to prevent redelivery
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				msg.Ack()
				return
			}
			msg.Ack()
		}
	}()

	return out, nil
}

func (b *Bus) Close() error {
	return b.pubSub.Close()
}
