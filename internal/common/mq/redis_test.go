package mq

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := NewRedisQueueWithClient(client, RedisConfig{
		ConsumerName: "worker-1",
		PollTimeout:  100 * time.Millisecond,
	})
	t.Cleanup(func() { _ = q.Close() })
	return q, mr
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestRedisQueuePublishConsume(t *testing.T) {
	q, mr := newTestRedisQueue(t)
	ctx := context.Background()

	var mu sync.Mutex
	var got []string
	err := q.Subscribe(ctx, "judging", func(ctx context.Context, m *Message) error {
		mu.Lock()
		got = append(got, string(m.Body))
		mu.Unlock()
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	for _, body := range []string{"a", "b", "c"} {
		msg := NewMessage([]byte(body))
		if err := q.Publish(ctx, "judging", msg); err != nil {
			t.Fatalf("publish failed: %v", err)
		}
		if msg.ID == "" {
			t.Fatalf("expected message id to be assigned")
		}
	}
	if err := q.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	})
	mu.Lock()
	if got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("messages out of FIFO order: %v", got)
	}
	mu.Unlock()

	waitFor(t, func() bool {
		n, _ := mr.List("queue:judging:processing:judging:worker-1")
		return len(n) == 0
	})
}

func TestRedisQueueBarePayload(t *testing.T) {
	q, mr := newTestRedisQueue(t)
	ctx := context.Background()

	if _, err := mr.Lpush("queue:judging", `{"submission_id":42}`); err != nil {
		t.Fatalf("lpush failed: %v", err)
	}
	bodies := make(chan string, 1)
	_ = q.Subscribe(ctx, "judging", func(ctx context.Context, m *Message) error {
		bodies <- string(m.Body)
		return nil
	}, nil)
	if err := q.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	select {
	case body := <-bodies:
		if body != `{"submission_id":42}` {
			t.Fatalf("unexpected body: %s", body)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("message not delivered")
	}
}

func TestRedisQueueRetryThenDeadLetter(t *testing.T) {
	q, _ := newTestRedisQueue(t)
	ctx := context.Background()

	var mu sync.Mutex
	attempts := 0
	_ = q.Subscribe(ctx, "judging", func(ctx context.Context, m *Message) error {
		mu.Lock()
		attempts++
		mu.Unlock()
		return errors.New("boom")
	}, &SubscribeOptions{MaxRetries: 2, RetryDelay: time.Millisecond, DeadLetterTopic: "judging-dead"})

	if err := q.Publish(ctx, "judging", NewMessage([]byte("x"))); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if err := q.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	waitFor(t, func() bool {
		n, _ := q.Len(ctx, "judging-dead")
		return n == 1
	})
	mu.Lock()
	defer mu.Unlock()
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRedisQueueRequeuesProcessingOnStart(t *testing.T) {
	q, mr := newTestRedisQueue(t)
	ctx := context.Background()

	// Left behind by a crashed run of the same consumer.
	if _, err := mr.Lpush("queue:judging:processing:judging:worker-1", `{"submission_id":7}`); err != nil {
		t.Fatalf("lpush failed: %v", err)
	}
	bodies := make(chan string, 1)
	_ = q.Subscribe(ctx, "judging", func(ctx context.Context, m *Message) error {
		bodies <- string(m.Body)
		return nil
	}, nil)
	if err := q.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	select {
	case body := <-bodies:
		if body != `{"submission_id":7}` {
			t.Fatalf("unexpected body: %s", body)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("orphaned message not redelivered")
	}
}

func TestRedisQueueReclaimsExpiredConsumers(t *testing.T) {
	q, mr := newTestRedisQueue(t)
	ctx := context.Background()

	if _, err := mr.Lpush("queue:judging:processing:judging:worker-dead", `{"submission_id":8}`); err != nil {
		t.Fatalf("lpush failed: %v", err)
	}
	if _, err := mr.Lpush("queue:judging:processing:judging:worker-live", `{"submission_id":9}`); err != nil {
		t.Fatalf("lpush failed: %v", err)
	}
	if err := mr.Set("queue:judging:processing:judging:worker-live:alive", "1"); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	bodies := make(chan string, 2)
	_ = q.Subscribe(ctx, "judging", func(ctx context.Context, m *Message) error {
		bodies <- string(m.Body)
		return nil
	}, nil)
	if err := q.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	select {
	case body := <-bodies:
		if body != `{"submission_id":8}` {
			t.Fatalf("unexpected body: %s", body)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("expired consumer's message not redelivered")
	}
	if live, _ := mr.List("queue:judging:processing:judging:worker-live"); len(live) != 1 {
		t.Fatalf("live consumer's processing list must be left alone, got %v", live)
	}
	if !mr.Exists("queue:judging:processing:judging:worker-1:alive") {
		t.Fatalf("expected own heartbeat key")
	}
}

func TestRedisQueueStopWaitsForRunningHandler(t *testing.T) {
	q, mr := newTestRedisQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	release := make(chan struct{})
	handlerErr := make(chan error, 1)
	_ = q.Subscribe(ctx, "judging", func(hctx context.Context, m *Message) error {
		close(started)
		<-release
		handlerErr <- hctx.Err()
		return nil
	}, nil)
	if err := q.Publish(ctx, "judging", NewMessage([]byte("x"))); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if err := q.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatalf("handler not started")
	}

	cancel()
	stopped := make(chan struct{})
	go func() {
		_ = q.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatalf("stop returned while a handler was still running")
	case <-time.After(100 * time.Millisecond):
	}
	close(release)
	select {
	case <-stopped:
	case <-time.After(3 * time.Second):
		t.Fatalf("stop did not return after handler finished")
	}
	if err := <-handlerErr; err != nil {
		t.Fatalf("handler context must survive shutdown, got %v", err)
	}
	if n, _ := mr.List("queue:judging:processing:judging:worker-1"); len(n) != 0 {
		t.Fatalf("finished job must be acknowledged, got %v", n)
	}
	if mr.Exists("queue:judging:processing:judging:worker-1:alive") {
		t.Fatalf("heartbeat key must be removed after stop")
	}
}

func TestDefaultConsumerNameIsPerProcess(t *testing.T) {
	name := defaultConsumerName()
	if !strings.HasSuffix(name, "-"+strconv.Itoa(os.Getpid())) {
		t.Fatalf("expected pid suffix, got %q", name)
	}
}

func TestRedisQueueValidation(t *testing.T) {
	q, _ := newTestRedisQueue(t)
	ctx := context.Background()
	if err := q.Publish(ctx, "", NewMessage(nil)); err == nil {
		t.Fatalf("expected error for empty topic")
	}
	if err := q.Publish(ctx, "judging", nil); err == nil {
		t.Fatalf("expected error for nil message")
	}
	if err := q.Subscribe(ctx, "judging", nil, nil); err == nil {
		t.Fatalf("expected error for nil handler")
	}
	if err := q.Ping(ctx); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}
