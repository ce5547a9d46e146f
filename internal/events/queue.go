// Package events publishes accepted feedback votes to Kafka so
// downstream consumers (analytics pipelines, moderation tooling) can see
// them without polling the backend.
package events

import (
	"context"
	"encoding/json"
	"time"

	"trustguard-client/internal/metrics"
	"trustguard-client/internal/models"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// Writer is the subset of kafka.Writer the queue needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

func NewKafkaWriter(brokerURL, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokerURL),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
	}
}

// FeedbackQueue buffers feedback events and publishes them to Kafka in
// batches. Enqueue never blocks the caller; a full queue drops the event
// with a warning.
type FeedbackQueue struct {
	events chan models.FeedbackEntry
	writer Writer
	logger *logrus.Logger
}

func NewFeedbackQueue(writer Writer, logger *logrus.Logger, bufferSize int) *FeedbackQueue {
	return &FeedbackQueue{
		events: make(chan models.FeedbackEntry, bufferSize),
		writer: writer,
		logger: logger,
	}
}

func (q *FeedbackQueue) Enqueue(entry models.FeedbackEntry) bool {
	select {
	case q.events <- entry:
		return true
	default:
		q.logger.Warn("Feedback event queue is full, dropping event")
		metrics.FeedbackEventsDropped.Inc()
		return false
	}
}

func (q *FeedbackQueue) StartProcessor(ctx context.Context) {
	batchSize := 100
	batchTimeout := 5 * time.Second
	batch := make([]models.FeedbackEntry, 0, batchSize)
	timer := time.NewTimer(batchTimeout)

	for {
		select {
		case <-ctx.Done():
			// Publish remaining events
			if len(batch) > 0 {
				q.publishBatch(context.Background(), batch)
			}
			return
		case entry := <-q.events:
			batch = append(batch, entry)
			if len(batch) >= batchSize {
				q.publishBatch(ctx, batch)
				batch = batch[:0]
				timer.Reset(batchTimeout)
			}
		case <-timer.C:
			if len(batch) > 0 {
				q.publishBatch(ctx, batch)
				batch = batch[:0]
			}
			timer.Reset(batchTimeout)
		}
	}
}

func (q *FeedbackQueue) publishBatch(ctx context.Context, entries []models.FeedbackEntry) {
	if len(entries) == 0 {
		return
	}

	messages := make([]kafka.Message, 0, len(entries))
	for _, entry := range entries {
		value, err := json.Marshal(entry)
		if err != nil {
			q.logger.WithError(err).Error("Failed to marshal feedback event")
			continue
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(entry.UserID),
			Value: value,
		})
	}

	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		if err := q.writer.WriteMessages(ctx, messages...); err != nil {
			q.logger.WithError(err).Warnf("Failed to publish batch (attempt %d/%d)", i+1, maxRetries)
			if i == maxRetries-1 {
				q.logger.WithError(err).Error("Failed to publish feedback events after all retries")
			}
			time.Sleep(time.Duration(i+1) * time.Second)
			continue
		}
		metrics.FeedbackEventsPublished.Add(float64(len(messages)))
		break
	}
}

func (q *FeedbackQueue) Pending() int {
	return len(q.events)
}
