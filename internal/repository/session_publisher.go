package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/noah-isme/mooc-session-miner/internal/models"
)

const publishBatchSize = 500

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// SessionPublisher mirrors stored collections to Kafka, one topic per
// collection named <prefix>.<collection>. Messages are keyed by document id.
type SessionPublisher struct {
	writer messageWriter
	prefix string
	logger *zap.Logger
}

// NewSessionPublisher returns nil when no brokers are configured.
func NewSessionPublisher(brokers []string, prefix string, logger *zap.Logger) *SessionPublisher {
	if len(brokers) == 0 {
		return nil
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	return newSessionPublisher(writer, prefix, logger)
}

func newSessionPublisher(w messageWriter, prefix string, logger *zap.Logger) *SessionPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "mooc"
	}
	return &SessionPublisher{writer: w, prefix: prefix, logger: logger}
}

// Topic returns the topic a collection is published to.
func (p *SessionPublisher) Topic(collection string) string {
	return p.prefix + "." + collection
}

// Publish writes the documents of one collection of a run.
func (p *SessionPublisher) Publish(ctx context.Context, run, collection string, docs []models.Document) error {
	if p == nil || len(docs) == 0 {
		return nil
	}
	topic := p.Topic(collection)
	now := time.Now()
	batch := make([]kafka.Message, 0, publishBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.writer.WriteMessages(ctx, batch...); err != nil {
			return fmt.Errorf("publish %s: %w", topic, err)
		}
		batch = batch[:0]
		return nil
	}

	for _, doc := range docs {
		value, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("marshal %s document %s: %w", collection, doc.DocumentID(), err)
		}
		batch = append(batch, kafka.Message{
			Topic:   topic,
			Key:     []byte(doc.DocumentID()),
			Value:   value,
			Time:    now,
			Headers: []kafka.Header{{Key: "run", Value: []byte(run)}},
		})
		if len(batch) == publishBatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}
	p.logger.Debug("collection published", zap.String("topic", topic), zap.Int("documents", len(docs)))
	return nil
}

// Close flushes and closes the underlying writer.
func (p *SessionPublisher) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
