package replies

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	pkgerrors "github.com/outflowhq/outflow-backend/pkg/errors"
	"github.com/outflowhq/outflow-backend/pkg/idempotency"
	"github.com/outflowhq/outflow-backend/pkg/logger"
)

const replyConsumerName = "reply-processor"

// Consumer drains the reply-event subscription and feeds the processor. The
// subscription delivers at least once; a Redis processed-marker plus the
// processor's keyed writes keep redelivery harmless.
type Consumer struct {
	processor    *Processor
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

// NewConsumer builds a reply-event consumer.
func NewConsumer(processor *Processor, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if processor == nil {
		return nil, fmt.Errorf("reply processor required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("reply subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		processor:    processor,
		subscription: subscription,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	logCtx := c.logg.WithField(ctx, "message_id", msg.ID)

	var event ReplyEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		c.logg.Error(logCtx, "failed to decode reply event", err)
		return processResult{ack: true}
	}

	eventID := event.EventID
	if eventID == "" {
		eventID = msg.ID
		event.EventID = eventID
	}
	logCtx = c.logg.WithField(logCtx, "event_id", eventID)

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, replyConsumerName, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "reply event already processed")
		return processResult{ack: true}
	}

	if err := c.processor.Process(ctx, event); err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			switch typed.Code() {
			case pkgerrors.CodeValidation, pkgerrors.CodeNotFound:
				// Permanent: redelivery cannot fix a malformed or orphaned event.
				c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "dropping unprocessable reply event")
				return processResult{ack: true}
			}
		}
		c.logg.Error(logCtx, "reply processing failed", err)
		_ = c.idempotency.Delete(ctx, replyConsumerName, eventID)
		return processResult{nack: true}
	}

	return processResult{ack: true}
}
