package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mooc-session-miner/internal/models"
)

type writerStub struct {
	calls [][]kafka.Message
	err   error
}

func (w *writerStub) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.calls = append(w.calls, append([]kafka.Message(nil), msgs...))
	return nil
}

func (w *writerStub) Close() error { return nil }

func TestSessionPublisherBatchesByCollection(t *testing.T) {
	w := &writerStub{}
	pub := newSessionPublisher(w, "edx", nil)

	docs := make([]models.Document, 0, publishBatchSize+1)
	for i := 0; i < publishBatchSize+1; i++ {
		docs = append(docs, models.ForumSession{SessionID: fmt.Sprintf("f%04d", i)})
	}
	require.NoError(t, pub.Publish(context.Background(), "EX101x", models.CollectionForumSessions, docs))

	require.Len(t, w.calls, 2)
	assert.Len(t, w.calls[0], publishBatchSize)
	assert.Len(t, w.calls[1], 1)
	first := w.calls[0][0]
	assert.Equal(t, "edx.forum_sessions", first.Topic)
	assert.Equal(t, "f0000", string(first.Key))
	assert.Equal(t, "EX101x", string(first.Headers[0].Value))
}

func TestSessionPublisherWrapsErrors(t *testing.T) {
	pub := newSessionPublisher(&writerStub{err: errors.New("broker down")}, "", nil)

	err := pub.Publish(context.Background(), "run", models.CollectionSessions, []models.Document{models.GeneralSession{SessionID: "s"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish mooc.sessions")
}

func TestSessionPublisherDisabledWithoutBrokers(t *testing.T) {
	pub := NewSessionPublisher(nil, "mooc", nil)
	assert.Nil(t, pub)
	assert.NoError(t, pub.Publish(context.Background(), "run", models.CollectionSessions, []models.Document{models.GeneralSession{SessionID: "s"}}))
	assert.NoError(t, pub.Close())
}
