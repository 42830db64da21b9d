package commands

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "milestonepay/contexts/engagement-finance/milestone-escrow/application"
	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/entities"
	domainerrors "milestonepay/contexts/engagement-finance/milestone-escrow/domain/errors"
	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/services"
	"milestonepay/contexts/engagement-finance/milestone-escrow/ports"
)

type OpenDisputeCommand struct {
	IdempotencyKey string
	Caller         entities.Caller
	MilestoneID    string
	Reason         string
	Description    string
	Attachments    []entities.Attachment
}

// OpenDisputeUseCase freezes a milestone behind a new dispute and assigns an
// admin through the configured assignment policy.
type OpenDisputeUseCase struct {
	Projects    ports.ProjectRepository
	Milestones  ports.MilestoneRepository
	Payments    ports.PaymentRepository
	Accounts    ports.AccountDirectory
	Writer      ports.AggregateWriter
	Assigner    services.AdminAssigner
	Idempotency ports.IdempotencyStore
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Metrics     ports.Metrics
	Logger      *slog.Logger

	IdempotencyTTL time.Duration
}

func (u OpenDisputeUseCase) Execute(ctx context.Context, cmd OpenDisputeCommand) (entities.Dispute, error) {
	logger := application.ResolveLogger(u.Logger)
	now := resolveNow(u.Clock)

	if !cmd.Caller.Valid() {
		return entities.Dispute{}, domainerrors.ErrInvalidCaller
	}
	draft := entities.Dispute{
		MilestoneID: strings.TrimSpace(cmd.MilestoneID),
		RaisedBy:    cmd.Caller.UserID,
		Reason:      strings.TrimSpace(cmd.Reason),
		Description: strings.TrimSpace(cmd.Description),
		Attachments: cloneAttachments(cmd.Attachments),
	}
	if !draft.ValidateCreate() {
		return entities.Dispute{}, domainerrors.ErrInvalidDisputeInput
	}

	requestHash := hashRequest("open_dispute", cmd.Caller.UserID, draft.MilestoneID, draft.Reason, draft.Description)
	if replayed, ok, err := replayIdempotent[entities.Dispute](ctx, u.Idempotency, cmd.IdempotencyKey, requestHash, now); err != nil {
		return entities.Dispute{}, err
	} else if ok {
		return replayed, nil
	}

	milestone, project, err := loadMilestoneAndProject(ctx, u.Milestones, u.Projects, draft.MilestoneID)
	if err != nil {
		return entities.Dispute{}, err
	}
	if err := services.RequireParticipant(cmd.Caller, project); err != nil {
		return entities.Dispute{}, err
	}
	next, err := services.Transition(milestone, services.EventDisputeOpened, now)
	if err != nil {
		logger.Warn("dispute rejected by milestone state",
			"event", "milestone_escrow_dispute_rejected",
			"module", application.ModuleName,
			"layer", "application",
			"milestone_id", milestone.MilestoneID,
			"status", string(milestone.Status),
			"error", err.Error(),
		)
		return entities.Dispute{}, err
	}
	if payment, hasPayment, err := activePayment(ctx, u.Payments, milestone); err != nil {
		return entities.Dispute{}, err
	} else if hasPayment {
		draft.PaymentID = payment.PaymentID
	}

	disputeID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return entities.Dispute{}, err
	}
	draft.DisputeID = disputeID
	draft.ProjectID = project.ProjectID
	draft.Status = entities.DisputeStatusOpen
	draft.AssignedAdminID = u.assignAdmin(ctx)
	draft.Conversation = []entities.DisputeMessage{{
		Sequence: 1,
		SenderID: cmd.Caller.UserID,
		Message:  draft.Description,
		SentAt:   now,
	}}
	draft.CreatedAt = now
	draft.UpdatedAt = now

	event, err := application.NewOutboxMessage(ctx, u.IDGenerator, application.EventDisputeOpened, milestone.MilestoneID, map[string]any{
		"dispute_id":        draft.DisputeID,
		"milestone_id":      milestone.MilestoneID,
		"project_id":        project.ProjectID,
		"raised_by":         draft.RaisedBy,
		"reason":            draft.Reason,
		"assigned_admin_id": draft.AssignedAdminID,
	}, now)
	if err != nil {
		return entities.Dispute{}, err
	}
	if err := commitObserved(ctx, u.Writer, application.ResolveMetrics(u.Metrics), "open_dispute", ports.Mutation{
		Milestone: &ports.MilestoneWrite{Milestone: next, ExpectedVersion: milestone.Version},
		Dispute:   &ports.DisputeWrite{Dispute: draft, Insert: true},
		Outbox:    []ports.OutboxMessage{event},
	}); err != nil {
		logger.Warn("dispute commit rejected",
			"event", "milestone_escrow_dispute_commit_failed",
			"module", application.ModuleName,
			"layer", "application",
			"milestone_id", milestone.MilestoneID,
			"error", err.Error(),
		)
		return entities.Dispute{}, err
	}

	if err := storeIdempotent(ctx, u.Idempotency, cmd.IdempotencyKey, requestHash, draft, now, u.IdempotencyTTL); err != nil {
		logger.Warn("idempotency record not stored",
			"event", "milestone_escrow_idempotency_store_failed",
			"module", application.ModuleName,
			"layer", "application",
			"dispute_id", draft.DisputeID,
			"error", err.Error(),
		)
	}

	logger.Info("dispute opened",
		"event", "milestone_escrow_dispute_opened",
		"module", application.ModuleName,
		"layer", "application",
		"dispute_id", draft.DisputeID,
		"milestone_id", milestone.MilestoneID,
		"raised_by", draft.RaisedBy,
		"assigned_admin_id", draft.AssignedAdminID,
	)
	return draft, nil
}

// assignAdmin picks an admin for a new dispute. Assignment is best effort: a
// dispute without admins available stays unassigned until an admin claims it.
func (u OpenDisputeUseCase) assignAdmin(ctx context.Context) string {
	loads, err := u.Accounts.ListAdminLoads(ctx)
	if err != nil {
		application.ResolveLogger(u.Logger).Warn("admin load lookup failed",
			"event", "milestone_escrow_admin_lookup_failed",
			"module", application.ModuleName,
			"layer", "application",
			"error", err.Error(),
		)
		return ""
	}
	assigner := u.Assigner
	if assigner == nil {
		assigner = services.LeastLoadedAssigner{}
	}
	adminID, ok := assigner.Assign(loads)
	if !ok {
		return ""
	}
	return adminID
}
