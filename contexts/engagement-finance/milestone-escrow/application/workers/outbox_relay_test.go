package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"milestonepay/contexts/engagement-finance/milestone-escrow/adapters/memory"
	application "milestonepay/contexts/engagement-finance/milestone-escrow/application"
	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/entities"
	"milestonepay/contexts/engagement-finance/milestone-escrow/ports"
)

type capturingPublisher struct {
	topics []string
	events []ports.EventEnvelope
	err    error
}

func (p *capturingPublisher) Publish(_ context.Context, topic string, event ports.EventEnvelope) error {
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.events = append(p.events, event)
	return nil
}

func seedOutbox(t *testing.T, store *memory.Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	milestone, err := store.GetMilestone(ctx, "milestone-1")
	if err != nil {
		t.Fatalf("get milestone: %v", err)
	}
	started := milestone.Next(now)
	started.Status = entities.MilestoneStatusInProgress

	first, err := application.NewOutboxMessage(ctx, store, application.EventMilestoneStarted, "milestone-1", map[string]any{"milestone_id": "milestone-1"}, now)
	if err != nil {
		t.Fatalf("build outbox message: %v", err)
	}
	second, err := application.NewOutboxMessage(ctx, store, application.EventMilestoneFunded, "milestone-1", map[string]any{"milestone_id": "milestone-1"}, now)
	if err != nil {
		t.Fatalf("build outbox message: %v", err)
	}
	if err := store.Commit(ctx, ports.Mutation{
		Milestone: &ports.MilestoneWrite{Milestone: started, ExpectedVersion: milestone.Version},
		Outbox:    []ports.OutboxMessage{first, second},
	}); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func newRelayStore() *memory.Store {
	return memory.NewStore(memory.Seed{
		Projects:   []entities.Project{{ProjectID: "project-1", Title: "p", EmployerID: "employer-1"}},
		Milestones: []entities.Milestone{{MilestoneID: "milestone-1", ProjectID: "project-1", Title: "m", Amount: 100, Currency: "usd"}},
	})
}

func TestOutboxRelayPublishesAndMarksSent(t *testing.T) {
	store := newRelayStore()
	seedOutbox(t, store)
	publisher := &capturingPublisher{}
	relay := OutboxRelay{Outbox: store, Publisher: publisher, Clock: store, BatchSize: 10}

	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(publisher.topics) != 2 {
		t.Fatalf("expected two published events, got %d", len(publisher.topics))
	}
	if publisher.topics[0] != application.EventMilestoneStarted || publisher.topics[1] != application.EventMilestoneFunded {
		t.Fatalf("expected events in commit order, got %v", publisher.topics)
	}
	if publisher.events[0].PartitionKey != "milestone-1" || publisher.events[0].SourceService != application.SourceService {
		t.Fatalf("unexpected envelope: %+v", publisher.events[0])
	}

	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected outbox drained, got %d pending", len(pending))
	}
	if err := relay.RunOnce(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(publisher.topics) != 2 {
		t.Fatalf("expected no republish, got %d events", len(publisher.topics))
	}
}

func TestOutboxRelayKeepsRowsWhenPublishFails(t *testing.T) {
	store := newRelayStore()
	seedOutbox(t, store)
	relay := OutboxRelay{Outbox: store, Publisher: &capturingPublisher{err: errors.New("broker down")}, Clock: store}

	if err := relay.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected publish error")
	}
	pending, err := store.ListPendingOutbox(context.Background(), 10)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected rows to stay pending, got %d", len(pending))
	}
}
