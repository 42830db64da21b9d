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

type AddDisputeMessageCommand struct {
	Caller    entities.Caller
	DisputeID string
	Message   string
}

type AddDisputeMessageUseCase struct {
	Projects ports.ProjectRepository
	Disputes ports.DisputeRepository
	Writer   ports.AggregateWriter
	Clock    ports.Clock
	Metrics  ports.Metrics
	Logger   *slog.Logger
}

func (u AddDisputeMessageUseCase) Execute(ctx context.Context, cmd AddDisputeMessageCommand) (entities.Dispute, error) {
	logger := application.ResolveLogger(u.Logger)
	disputeID := strings.TrimSpace(cmd.DisputeID)
	message := strings.TrimSpace(cmd.Message)
	if disputeID == "" {
		return entities.Dispute{}, domainerrors.ErrInvalidDisputeInput
	}
	if message == "" {
		return entities.Dispute{}, domainerrors.ErrMessageRequired
	}

	dispute, err := u.Disputes.GetDispute(ctx, disputeID)
	if err != nil {
		return entities.Dispute{}, err
	}
	project, err := u.Projects.GetProject(ctx, dispute.ProjectID)
	if err != nil {
		return entities.Dispute{}, err
	}
	if err := services.RequireDisputeParticipant(cmd.Caller, project, dispute); err != nil {
		return entities.Dispute{}, err
	}
	if !dispute.Status.Active() {
		return entities.Dispute{}, domainerrors.ErrDisputeNotActive
	}

	now := resolveNow(u.Clock)
	header := dispute
	header.UpdatedAt = now
	if err := commitObserved(ctx, u.Writer, application.ResolveMetrics(u.Metrics), "add_dispute_message", ports.Mutation{
		Dispute: &ports.DisputeWrite{
			Dispute:        header,
			ExpectedStatus: dispute.Status,
			AppendMessages: []entities.DisputeMessage{{SenderID: cmd.Caller.UserID, Message: message, SentAt: now}},
		},
	}); err != nil {
		return entities.Dispute{}, err
	}

	updated, err := u.Disputes.GetDispute(ctx, disputeID)
	if err != nil {
		return entities.Dispute{}, err
	}
	logger.Info("dispute message added",
		"event", "milestone_escrow_dispute_message_added",
		"module", application.ModuleName,
		"layer", "application",
		"dispute_id", disputeID,
		"sender_id", cmd.Caller.UserID,
		"messages", len(updated.Conversation),
	)
	return updated, nil
}
