package application

import (
	"context"
	"encoding/json"
	"time"

	"milestonepay/contexts/engagement-finance/milestone-escrow/ports"
)

const (
	SourceService = "milestone-escrow-service"

	EventMilestoneFunded       = "milestone.funded"
	EventMilestoneStarted      = "milestone.started"
	EventSubmissionCreated     = "submission.created"
	EventVerificationRequested = "verification.requested"
	EventSubmissionReviewed    = "submission.reviewed"
	EventPaymentReleased       = "payment.released"
	EventPaymentRefunded       = "payment.refunded"
	EventDisputeOpened         = "dispute.opened"
	EventDisputeResolved       = "dispute.resolved"
	EventDisputeClosed         = "dispute.closed"
)

// VerificationRequested is the task consumed by the verification worker.
// MilestoneVersion is the aggregate version written together with the submission.
type VerificationRequested struct {
	SubmissionID     string `json:"submission_id"`
	MilestoneID      string `json:"milestone_id"`
	ProjectID        string `json:"project_id"`
	MilestoneVersion int64  `json:"milestone_version"`
}

// NewOutboxMessage wraps data in the canonical envelope, partitioned by milestone id.
func NewOutboxMessage(
	ctx context.Context,
	ids ports.IDGenerator,
	eventType string,
	milestoneID string,
	data any,
	now time.Time,
) (ports.OutboxMessage, error) {
	eventID, err := ids.NewID(ctx)
	if err != nil {
		return ports.OutboxMessage{}, err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return ports.OutboxMessage{}, err
	}
	envelope := ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       now.UTC(),
		SourceService:    SourceService,
		SchemaVersion:    1,
		PartitionKeyPath: "milestone_id",
		PartitionKey:     milestoneID,
		Data:             raw,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return ports.OutboxMessage{}, err
	}
	return ports.OutboxMessage{
		OutboxID:     eventID,
		EventType:    eventType,
		PartitionKey: milestoneID,
		Payload:      payload,
		CreatedAt:    now.UTC(),
	}, nil
}
