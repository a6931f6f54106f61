// Package events publishes ingestion job lifecycle events. Delivery is best
// effort: callers log publish errors and carry on.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dmitrijs2005/docvault/internal/server/models"
	"github.com/segmentio/kafka-go"
)

// JobEvent is emitted on every job create and status change.
type JobEvent struct {
	JobID        string           `json:"jobId"`
	DocumentID   string           `json:"documentId"`
	Status       models.JobStatus `json:"status"`
	ErrorMessage string           `json:"errorMessage,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
}

// NewJobEvent snapshots job.
func NewJobEvent(job *models.IngestionJob) JobEvent {
	ev := JobEvent{
		JobID:      job.ID,
		DocumentID: job.DocumentID,
		Status:     job.Status,
		Timestamp:  job.UpdatedAt,
	}
	if job.ErrorMessage != nil {
		ev.ErrorMessage = *job.ErrorMessage
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return ev
}

type Publisher interface {
	PublishJobEvent(ctx context.Context, ev JobEvent) error
	Close() error
}

// messageWriter is the subset of *kafka.Writer used by KafkaPublisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// batchTimeout bounds how long a publish on the request path waits for a
// batch to fill.
const batchTimeout = 10 * time.Millisecond

type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           batchTimeout,
	}}
}

// PublishJobEvent keys messages by job id so one job's events stay ordered
// within a partition.
func (p *KafkaPublisher) PublishJobEvent(ctx context.Context, ev JobEvent) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.JobID),
		Value: value,
		Time:  ev.Timestamp,
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Noop drops every event. Used when no brokers are configured.
type Noop struct{}

func (Noop) PublishJobEvent(context.Context, JobEvent) error { return nil }
func (Noop) Close() error                                    { return nil }
