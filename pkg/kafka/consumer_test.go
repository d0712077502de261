package kafka

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader serves queued messages, then blocks until ctx is done.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []kafka.Message
	closed    int
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		msg := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}

func (r *fakeReader) commits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

func eventMessage(t *testing.T, eventType string) kafka.Message {
	t.Helper()
	event, err := NewEvent(eventType, "u-1", "user", "auth-service", map[string]string{"userId": "u-1"})
	require.NoError(t, err)
	raw, err := event.Marshal()
	require.NoError(t, err)
	return kafka.Message{Topic: "accounts.user.registered", Value: raw}
}

func runUntilCommitted(t *testing.T, c *Consumer, r *fakeReader, want int) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return r.commits() >= want }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestConsumer_HandlesAndCommits(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{eventMessage(t, "user.registered")}}
	var seen atomic.Value
	c := newConsumer(r, "accounts.user.registered", "user-service", func(_ context.Context, e *Event) error {
		seen.Store(e.EventType)
		return nil
	}, discard())

	runUntilCommitted(t, c, r, 1)
	assert.Equal(t, "user.registered", seen.Load())
	assert.Equal(t, 1, r.closed)
}

func TestConsumer_RetriesThenDeadLetters(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{eventMessage(t, "user.registered")}}
	w := &fakeWriter{}
	var calls atomic.Int32
	c := newConsumer(r, "accounts.user.registered", "user-service", func(context.Context, *Event) error {
		calls.Add(1)
		return errors.New("db down")
	}, discard(), WithDLQ(&DLQProducer{writer: w, logger: discard()}), WithRetryBackoff(time.Millisecond))

	runUntilCommitted(t, c, r, 1)
	assert.Equal(t, int32(maxHandlerRetries), calls.Load())
	require.Len(t, w.written(), 1)
	assert.Equal(t, "db down", header(w.written()[0], "dlq.error"))
}

func TestConsumer_PermanentErrorSkipsRetries(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{eventMessage(t, "user.registered")}}
	var calls atomic.Int32
	c := newConsumer(r, "accounts.user.registered", "user-service", func(context.Context, *Event) error {
		calls.Add(1)
		return Permanent(errors.New("bad payload"))
	}, discard(), WithRetryBackoff(time.Millisecond))

	runUntilCommitted(t, c, r, 1)
	assert.Equal(t, int32(1), calls.Load())
}

func TestConsumer_UndecodableMessageIsCommitted(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{{Topic: "accounts.user.registered", Value: []byte("not json")}}}
	c := newConsumer(r, "accounts.user.registered", "user-service", func(context.Context, *Event) error {
		t.Error("handler must not run for undecodable messages")
		return nil
	}, discard())

	runUntilCommitted(t, c, r, 1)
}

func TestConsumer_CloseIsIdempotent(t *testing.T) {
	r := &fakeReader{}
	c := newConsumer(r, "t", "g", nil, discard())
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, r.closed)
}

func TestPermanent_Nil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
	err := Permanent(errors.New("x"))
	assert.EqualError(t, err, "x")
}
