package commands

import (
	"context"
	"log/slog"
	"strings"

	application "milestonepay/contexts/engagement-finance/milestone-escrow/application"
	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/entities"
	domainerrors "milestonepay/contexts/engagement-finance/milestone-escrow/domain/errors"
	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/services"
	"milestonepay/contexts/engagement-finance/milestone-escrow/ports"
)

type CloseDisputeCommand struct {
	Caller    entities.Caller
	DisputeID string
	Note      string
}

type CloseDisputeResult struct {
	Dispute   entities.Dispute
	Milestone entities.Milestone
}

// CloseDisputeUseCase withdraws a dispute without a ruling and returns the
// milestone to the status the dispute interrupted.
type CloseDisputeUseCase struct {
	Milestones  ports.MilestoneRepository
	Disputes    ports.DisputeRepository
	Writer      ports.AggregateWriter
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Metrics     ports.Metrics
	Logger      *slog.Logger
}

func (u CloseDisputeUseCase) Execute(ctx context.Context, cmd CloseDisputeCommand) (CloseDisputeResult, error) {
	logger := application.ResolveLogger(u.Logger)
	disputeID := strings.TrimSpace(cmd.DisputeID)
	if disputeID == "" {
		return CloseDisputeResult{}, domainerrors.ErrInvalidDisputeInput
	}
	if !cmd.Caller.Valid() {
		return CloseDisputeResult{}, domainerrors.ErrInvalidCaller
	}

	dispute, err := u.Disputes.GetDispute(ctx, disputeID)
	if err != nil {
		return CloseDisputeResult{}, err
	}
	if !cmd.Caller.IsAdmin() && dispute.RaisedBy != cmd.Caller.UserID {
		return CloseDisputeResult{}, domainerrors.ErrCannotCloseDispute
	}
	if !dispute.Status.Active() {
		return CloseDisputeResult{}, domainerrors.ErrDisputeNotActive
	}
	milestone, err := u.Milestones.GetMilestone(ctx, dispute.MilestoneID)
	if err != nil {
		return CloseDisputeResult{}, err
	}

	now := resolveNow(u.Clock)
	next, err := services.Transition(milestone, services.EventDisputeWithdrawn, now)
	if err != nil {
		return CloseDisputeResult{}, err
	}
	closed := dispute
	closed.Status = entities.DisputeStatusClosed
	closed.ClosedAt = &now
	closed.UpdatedAt = now

	write := &ports.DisputeWrite{Dispute: closed, ExpectedStatus: dispute.Status}
	if note := strings.TrimSpace(cmd.Note); note != "" {
		write.AppendMessages = []entities.DisputeMessage{{SenderID: cmd.Caller.UserID, Message: note, SentAt: now}}
	}
	outbox, err := application.NewOutboxMessage(ctx, u.IDGenerator, application.EventDisputeClosed, milestone.MilestoneID, map[string]any{
		"dispute_id":       closed.DisputeID,
		"milestone_id":     milestone.MilestoneID,
		"project_id":       closed.ProjectID,
		"closed_by":        cmd.Caller.UserID,
		"milestone_status": string(next.Status),
	}, now)
	if err != nil {
		return CloseDisputeResult{}, err
	}
	mutation := ports.Mutation{
		Milestone: &ports.MilestoneWrite{Milestone: next, ExpectedVersion: milestone.Version},
		Dispute:   write,
		Outbox:    []ports.OutboxMessage{outbox},
	}
	if delta := services.CompletionDelta(milestone, next); delta != 0 {
		mutation.ProjectDelta = &ports.ProjectDelta{ProjectID: milestone.ProjectID, CompletedMilestones: delta}
	}
	if err := commitObserved(ctx, u.Writer, application.ResolveMetrics(u.Metrics), "close_dispute", mutation); err != nil {
		return CloseDisputeResult{}, err
	}

	logger.Info("dispute closed",
		"event", "milestone_escrow_dispute_closed",
		"module", application.ModuleName,
		"layer", "application",
		"dispute_id", closed.DisputeID,
		"milestone_id", milestone.MilestoneID,
		"milestone_status", string(next.Status),
	)
	return CloseDisputeResult{Dispute: closed, Milestone: next}, nil
}
