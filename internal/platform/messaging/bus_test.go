package messaging

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	contractsv1 "milestonepay/contracts/gen/events/v1"
)

func TestBusDeliversToTopicSubscribers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewBus(nil)
	received := make(chan contractsv1.Envelope, 1)
	if err := bus.Subscribe(ctx, "submission.reviewed", "test-cg", func(_ context.Context, event contractsv1.Envelope) error {
		received <- event
		return nil
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := bus.Publish(ctx, "dispute.opened", contractsv1.Envelope{EventID: "other"}); err != nil {
		t.Fatalf("publish other topic: %v", err)
	}
	if err := bus.Publish(ctx, "submission.reviewed", contractsv1.Envelope{EventID: "evt-1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case event := <-received:
		if event.EventID != "evt-1" {
			t.Fatalf("expected evt-1, got %s", event.EventID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestBusDeliversOncePerConsumerGroup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewBus(nil)
	var workers, audit atomic.Int32
	var wg sync.WaitGroup
	const events = 20
	wg.Add(2 * events)
	count := func(counter *atomic.Int32) func(context.Context, contractsv1.Envelope) error {
		return func(context.Context, contractsv1.Envelope) error {
			counter.Add(1)
			wg.Done()
			return nil
		}
	}
	for i := 0; i < 3; i++ {
		if err := bus.Subscribe(ctx, "verification.requested", "workers", count(&workers)); err != nil {
			t.Fatalf("subscribe worker %d: %v", i, err)
		}
	}
	if err := bus.Subscribe(ctx, "verification.requested", "audit", count(&audit)); err != nil {
		t.Fatalf("subscribe audit: %v", err)
	}

	for i := 0; i < events; i++ {
		if err := bus.Publish(ctx, "verification.requested", contractsv1.Envelope{EventID: fmt.Sprintf("evt-%d", i)}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("deliveries incomplete: workers=%d audit=%d", workers.Load(), audit.Load())
	}
	if workers.Load() != events || audit.Load() != events {
		t.Fatalf("expected %d deliveries per group, got workers=%d audit=%d", events, workers.Load(), audit.Load())
	}
}

func TestBusPublishFailsWhenQueueStaysFull(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewBus(nil)
	bus.queueSize = 1
	bus.publishTimeout = 20 * time.Millisecond

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	if err := bus.Subscribe(ctx, "payment.released", "slow", func(context.Context, contractsv1.Envelope) error {
		started <- struct{}{}
		<-release
		return nil
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer close(release)

	if err := bus.Publish(ctx, "payment.released", contractsv1.Envelope{EventID: "evt-1"}); err != nil {
		t.Fatalf("publish first: %v", err)
	}
	<-started
	if err := bus.Publish(ctx, "payment.released", contractsv1.Envelope{EventID: "evt-2"}); err != nil {
		t.Fatalf("publish into free slot: %v", err)
	}
	err := bus.Publish(ctx, "payment.released", contractsv1.Envelope{EventID: "evt-3"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected publish to fail while the queue is full, got %v", err)
	}
}

func TestBusRetriesFailedHandlerOnce(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewBus(nil)
	var attempts atomic.Int32
	delivered := make(chan string, 4)
	if err := bus.Subscribe(ctx, "dispute.resolved", "cg", func(_ context.Context, event contractsv1.Envelope) error {
		attempts.Add(1)
		delivered <- event.EventID
		if event.EventID == "poison" || attempts.Load() == 1 {
			return errors.New("handler failed")
		}
		return nil
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for _, id := range []string{"flaky", "poison", "after"} {
		if err := bus.Publish(ctx, "dispute.resolved", contractsv1.Envelope{EventID: id}); err != nil {
			t.Fatalf("publish %s: %v", id, err)
		}
	}

	want := []string{"flaky", "flaky", "poison", "poison", "after"}
	for i, id := range want {
		select {
		case got := <-delivered:
			if got != id {
				t.Fatalf("delivery %d: expected %s, got %s", i, id, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("delivery %d (%s) did not happen", i, id)
		}
	}
}

func TestBusStopsDeliveringAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := NewBus(nil)
	if err := bus.Subscribe(ctx, "t", "cg", func(context.Context, contractsv1.Envelope) error { return nil }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(bus.bound("t")) == 0 {
			if err := bus.Publish(context.Background(), "t", contractsv1.Envelope{EventID: "late"}); err != nil {
				t.Fatalf("publish to unbound topic: %v", err)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("consumer group was not removed after cancel")
}

func TestBusSubscribeRequiresConsumerGroup(t *testing.T) {
	bus := NewBus(nil)
	if err := bus.Subscribe(context.Background(), "t", " ", func(context.Context, contractsv1.Envelope) error { return nil }); err == nil {
		t.Fatal("expected an error without a consumer group")
	}
}
