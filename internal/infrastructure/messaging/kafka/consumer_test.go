package kafka

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/molecule-search/pkg/errors"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

func (r *fakeReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

func chatCompletedMessage(t *testing.T, offset int64, session string) kafka.Message {
	t.Helper()
	env, err := NewEventEnvelope(EventChatCompleted, ChatCompletedPayload{SessionID: session, Status: "completed"})
	require.NoError(t, err)
	value, err := json.Marshal(env)
	require.NoError(t, err)
	return kafka.Message{Topic: TopicChatCompleted, Offset: offset, HighWaterMark: 3, Value: value}
}

func testConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Brokers:      []string{"kafka:9092"},
		GroupID:      "audit",
		Topic:        TopicChatCompleted,
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	}
}

// runUntil runs c until the reader has committed n messages.
func runUntil(t *testing.T, c *Consumer, r *fakeReader, n int, h Handler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, h) }()

	assert.Eventually(t, func() bool { return r.commits() >= n }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestConsumer_DecodesAndCommits(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{
		chatCompletedMessage(t, 0, "s1"),
		{Topic: TopicChatCompleted, Offset: 1, Value: []byte("not json")},
		chatCompletedMessage(t, 2, "s2"),
	}}
	c := NewConsumerWithReader(r, testConsumerConfig(), nil)

	var sessions []string
	runUntil(t, c, r, 3, func(_ context.Context, env *EventEnvelope) error {
		var p ChatCompletedPayload
		require.NoError(t, env.DecodePayload(&p))
		sessions = append(sessions, p.SessionID)
		return nil
	})

	assert.Equal(t, []string{"s1", "s2"}, sessions)
	assert.Equal(t, []int64{0, 1, 2}, r.committed)
	m := c.Metrics()
	assert.Equal(t, int64(3), m.Consumed)
	assert.Equal(t, int64(2), m.Processed)
	assert.Equal(t, int64(1), m.Malformed)
	assert.Equal(t, int64(0), m.Lag)
}

func TestConsumer_FailingHandlerIsRetriedThenSkipped(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{chatCompletedMessage(t, 7, "s1")}}
	c := NewConsumerWithReader(r, testConsumerConfig(), nil)

	calls := 0
	runUntil(t, c, r, 1, func(context.Context, *EventEnvelope) error {
		calls++
		return stderrors.New("sink down")
	})

	assert.Equal(t, 3, calls)
	assert.Equal(t, []int64{7}, r.committed)
	assert.Equal(t, int64(1), c.Metrics().Failed)
}

func TestConsumer_RunTwice(t *testing.T) {
	r := &fakeReader{}
	c := NewConsumerWithReader(r, testConsumerConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx, func(context.Context, *EventEnvelope) error { return nil }) }()

	assert.Eventually(t, func() bool { return c.running.Load() }, time.Second, time.Millisecond)
	err := c.Run(ctx, func(context.Context, *EventEnvelope) error { return nil })
	assert.True(t, errors.IsCode(err, errors.ErrCodeConflict))

	cancel()
	require.NoError(t, c.Close())
	assert.True(t, r.closed)
}

func TestValidateConsumerConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ConsumerConfig)
		wantErr bool
	}{
		{"valid", func(*ConsumerConfig) {}, false},
		{"latest", func(c *ConsumerConfig) { c.StartOffset = OffsetLatest }, false},
		{"no brokers", func(c *ConsumerConfig) { c.Brokers = nil }, true},
		{"no group", func(c *ConsumerConfig) { c.GroupID = "" }, true},
		{"no topic", func(c *ConsumerConfig) { c.Topic = "" }, true},
		{"bad offset", func(c *ConsumerConfig) { c.StartOffset = "middle" }, true},
		{"negative retries", func(c *ConsumerConfig) { c.MaxRetries = -1 }, true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConsumerConfig()
			tt.mutate(&cfg)
			err := ValidateConsumerConfig(cfg)
			if tt.wantErr {
				assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
