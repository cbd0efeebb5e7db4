package events

import (
	"context"
	"errors"
	"testing"

	"github.com/fjod/go_storefront/internal/repository"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

type mockStore struct {
	events    []repository.OrderEvent
	fetchErr  error
	processed []int64
	markErr   error
}

func (m *mockStore) GetUnprocessedEvents(context.Context, int) ([]repository.OrderEvent, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return m.events, nil
}

func (m *mockStore) MarkEventAsProcessed(_ context.Context, id int64) error {
	if m.markErr != nil {
		return m.markErr
	}
	m.processed = append(m.processed, id)
	return nil
}

type mockWriter struct {
	written []kafka.Message
	err     error
}

func (m *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if m.err != nil {
		return m.err
	}
	m.written = append(m.written, msgs...)
	return nil
}

func TestProcessUnpublishedEvents_PublishesAndMarks(t *testing.T) {
	store := &mockStore{events: []repository.OrderEvent{
		{ID: 1, OrderID: uuid.New(), Payload: []byte(`{"total":"270"}`)},
		{ID: 2, OrderID: uuid.New(), Payload: []byte(`{"total":"30"}`)},
	}}
	writer := &mockWriter{}
	p := &OutboxPoller{batchSize: 100, store: store, writer: writer}

	p.processUnpublishedEvents(context.Background())

	assert.Len(t, writer.written, 2)
	assert.Equal(t, []int64{1, 2}, store.processed)
}

func TestProcessUnpublishedEvents_PublishFailureLeavesEventUnprocessed(t *testing.T) {
	store := &mockStore{events: []repository.OrderEvent{
		{ID: 1, OrderID: uuid.New(), Payload: []byte(`{}`)},
	}}
	writer := &mockWriter{err: errors.New("broker down")}
	p := &OutboxPoller{batchSize: 100, store: store, writer: writer}

	p.processUnpublishedEvents(context.Background())

	assert.Empty(t, store.processed, "unpublished events must stay in the outbox")
}

func TestProcessUnpublishedEvents_FetchFailureIsSilent(t *testing.T) {
	store := &mockStore{fetchErr: errors.New("db down")}
	writer := &mockWriter{}
	p := &OutboxPoller{batchSize: 100, store: store, writer: writer}

	p.processUnpublishedEvents(context.Background())
	assert.Empty(t, writer.written)
}
