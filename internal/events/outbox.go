// Package events publishes order events from the transactional outbox. The
// checkout commit writes the event row in the same transaction as the order,
// so a published event always corresponds to a real paid order.
package events

import (
	"context"
	"log"
	"time"

	"github.com/fjod/go_storefront/internal/repository"
	"github.com/segmentio/kafka-go"
)

const Topic = "order-events"

// EventStore is the slice of the repository the poller needs.
type EventStore interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]repository.OrderEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int64) error
}

// Writer matches the subset of kafka.Writer the poller uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type OutboxPoller struct {
	tick      time.Duration
	batchSize int
	store     EventStore
	writer    Writer
}

func NewOutboxPoller(store EventStore, brokers ...string) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  Topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &OutboxPoller{
		tick:      time.Second,
		batchSize: 100,
		store:     store,
		writer:    w,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.store.GetUnprocessedEvents(ctx, p.batchSize)
	if err != nil {
		log.Printf("failed to fetch events %v", err)
		return
	}

	for _, event := range events {
		errPublish := p.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(event.OrderID.String()),
			Value: event.Payload,
		})
		if errPublish != nil {
			log.Printf("failed to publish event id = %v with error %v", event.ID, errPublish)
			continue
		}

		errMark := p.store.MarkEventAsProcessed(ctx, event.ID)
		if errMark != nil {
			log.Printf("failed to mark event as processed id = %v with error %v", event.ID, errMark)
			continue
		}
	}
}
