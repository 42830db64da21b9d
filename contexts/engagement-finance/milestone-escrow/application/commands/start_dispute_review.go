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

type StartDisputeReviewCommand struct {
	Caller    entities.Caller
	DisputeID string
}

type StartDisputeReviewUseCase struct {
	Disputes ports.DisputeRepository
	Writer   ports.AggregateWriter
	Clock    ports.Clock
	Metrics  ports.Metrics
	Logger   *slog.Logger
}

func (u StartDisputeReviewUseCase) Execute(ctx context.Context, cmd StartDisputeReviewCommand) (entities.Dispute, error) {
	logger := application.ResolveLogger(u.Logger)
	disputeID := strings.TrimSpace(cmd.DisputeID)
	if disputeID == "" {
		return entities.Dispute{}, domainerrors.ErrInvalidDisputeInput
	}
	if err := services.RequireAdmin(cmd.Caller); err != nil {
		return entities.Dispute{}, err
	}

	dispute, err := u.Disputes.GetDispute(ctx, disputeID)
	if err != nil {
		return entities.Dispute{}, err
	}
	if dispute.Status != entities.DisputeStatusOpen {
		return entities.Dispute{}, domainerrors.ErrDisputeNotOpen
	}

	now := resolveNow(u.Clock)
	next := dispute
	next.Status = entities.DisputeStatusUnderReview
	if next.AssignedAdminID == "" {
		next.AssignedAdminID = cmd.Caller.UserID
	}
	next.UpdatedAt = now
	if err := commitObserved(ctx, u.Writer, application.ResolveMetrics(u.Metrics), "start_dispute_review", ports.Mutation{
		Dispute: &ports.DisputeWrite{Dispute: next, ExpectedStatus: entities.DisputeStatusOpen},
	}); err != nil {
		return entities.Dispute{}, err
	}

	logger.Info("dispute review started",
		"event", "milestone_escrow_dispute_review_started",
		"module", application.ModuleName,
		"layer", "application",
		"dispute_id", disputeID,
		"admin_id", next.AssignedAdminID,
	)
	return next, nil
}
