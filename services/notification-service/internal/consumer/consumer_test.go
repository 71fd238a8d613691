package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ruralhealthconnect/telecare/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	done      chan struct{}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		msg := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	select {
	case r.done <- struct{}{}:
	default:
	}
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

func (r *fakeReader) Close() error { return nil }

type memInbox struct {
	seen map[string]bool
}

func (m *memInbox) Once(ctx context.Context, eventID, _ string, fn func(context.Context, pgx.Tx) error) (bool, error) {
	if m.seen[eventID] {
		return false, nil
	}
	if err := fn(ctx, nil); err != nil {
		return false, err
	}
	m.seen[eventID] = true
	return true, nil
}

func message(offset int64, eventID string) kafka.Message {
	return kafka.Message{
		Topic:   "appointment.created.v1",
		Offset:  offset,
		Headers: kafkax.EventMeta{EventID: eventID, EventType: "appointment.created.v1"}.Headers(),
	}
}

func runUntilDrained(t *testing.T, c *Consumer, reader *fakeReader) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(finished)
	}()
	select {
	case <-reader.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("consumer did not drain messages")
	}
	cancel()
	<-finished
}

func equalOffsets(got, want []int64) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range want {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestConsumerDedupesAndRetriesFailedEventInPlace(t *testing.T) {
	reader := &fakeReader{
		msgs: []kafka.Message{
			message(1, "evt-1"),
			message(2, "evt-1"),
			message(3, "evt-transient"),
			message(4, "evt-2"),
		},
		done: make(chan struct{}, 1),
	}
	var handled []int64
	failures := 2
	handler := func(_ context.Context, _ pgx.Tx, msg kafka.Message) error {
		if kafkax.ExtractEventMeta(msg).EventID == "evt-transient" && failures > 0 {
			failures--
			return errors.New("db unavailable")
		}
		handled = append(handled, msg.Offset)
		return nil
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := newConsumer(reader, logger, &memInbox{seen: map[string]bool{}}, handler)
	c.backoff = time.Millisecond
	c.maxBackoff = 2 * time.Millisecond

	runUntilDrained(t, c, reader)

	if want := []int64{1, 3, 4}; !equalOffsets(handled, want) {
		t.Fatalf("expected offsets %v handled, got %v", want, handled)
	}
	if want := []int64{1, 2, 3, 4}; !equalOffsets(reader.committed, want) {
		t.Fatalf("expected commits %v, got %v", want, reader.committed)
	}
}

func TestConsumerStopsRetryingOnShutdownWithoutCommitting(t *testing.T) {
	reader := &fakeReader{
		msgs: []kafka.Message{message(7, "evt-stuck"), message(8, "evt-after")},
		done: make(chan struct{}, 1),
	}
	attempts := make(chan struct{}, 16)
	handler := func(_ context.Context, _ pgx.Tx, _ kafka.Message) error {
		select {
		case attempts <- struct{}{}:
		default:
		}
		return errors.New("still failing")
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := newConsumer(reader, logger, &memInbox{seen: map[string]bool{}}, handler)
	c.backoff = time.Millisecond
	c.maxBackoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(finished)
	}()
	for i := 0; i < 3; i++ {
		select {
		case <-attempts:
		case <-time.After(2 * time.Second):
			t.Fatalf("expected repeated attempts on the failing event")
		}
	}
	cancel()
	<-finished

	reader.mu.Lock()
	defer reader.mu.Unlock()
	if len(reader.committed) != 0 {
		t.Fatalf("expected nothing committed, got %v", reader.committed)
	}
	if len(reader.msgs) != 1 || reader.msgs[0].Offset != 8 {
		t.Fatalf("expected the next offset to stay unfetched, got %v", reader.msgs)
	}
}

func TestConsumerOnAppliedSkipsDuplicates(t *testing.T) {
	reader := &fakeReader{
		msgs: []kafka.Message{message(1, "evt-1"), message(2, "evt-1"), message(3, "evt-2")},
		done: make(chan struct{}, 1),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := newConsumer(reader, logger, &memInbox{seen: map[string]bool{}}, func(context.Context, pgx.Tx, kafka.Message) error { return nil })
	var after []int64
	c.OnApplied(func(_ context.Context, msg kafka.Message) { after = append(after, msg.Offset) })

	runUntilDrained(t, c, reader)

	if want := []int64{1, 3}; !equalOffsets(after, want) {
		t.Fatalf("expected post-commit hook for %v, got %v", want, after)
	}
}
