package queries

import (
	"context"
	"strings"

	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/entities"
	domainerrors "milestonepay/contexts/engagement-finance/milestone-escrow/domain/errors"
	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/services"
	"milestonepay/contexts/engagement-finance/milestone-escrow/ports"
)

type DisputeQueries struct {
	Projects ports.ProjectRepository
	Disputes ports.DisputeRepository
}

type ListDisputesQuery struct {
	Status entities.DisputeStatus
	// AssignedToMe restricts an admin's listing to disputes assigned to them.
	AssignedToMe bool
	Limit        int
}

func (q DisputeQueries) GetDispute(ctx context.Context, caller entities.Caller, disputeID string) (entities.Dispute, error) {
	disputeID = strings.TrimSpace(disputeID)
	if disputeID == "" {
		return entities.Dispute{}, domainerrors.ErrDisputeNotFound
	}
	dispute, err := q.Disputes.GetDispute(ctx, disputeID)
	if err != nil {
		return entities.Dispute{}, err
	}
	project, err := q.Projects.GetProject(ctx, dispute.ProjectID)
	if err != nil {
		return entities.Dispute{}, err
	}
	if err := services.RequireDisputeParticipant(caller, project, dispute); err != nil {
		return entities.Dispute{}, err
	}
	return dispute, nil
}

// ListDisputes returns disputes newest first. Admins see all disputes, other
// callers only those on projects they take part in.
func (q DisputeQueries) ListDisputes(ctx context.Context, caller entities.Caller, query ListDisputesQuery) ([]entities.Dispute, error) {
	if !caller.Valid() {
		return nil, domainerrors.ErrInvalidCaller
	}
	switch query.Status {
	case "", entities.DisputeStatusOpen, entities.DisputeStatusUnderReview,
		entities.DisputeStatusResolved, entities.DisputeStatusClosed:
	default:
		return nil, domainerrors.ErrInvalidDisputeInput
	}

	filter := ports.DisputeFilter{Status: query.Status, Limit: clampLimit(query.Limit)}
	if caller.IsAdmin() {
		if query.AssignedToMe {
			filter.AssignedAdminID = caller.UserID
		}
	} else {
		filter.ParticipantID = caller.UserID
	}
	return q.Disputes.ListDisputes(ctx, filter)
}
