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

type ResolveDisputeCommand struct {
	Caller    entities.Caller
	DisputeID string
	Decision  entities.DisputeDecision
	// Amount is required for partial decisions, in minor units.
	Amount int64
	Reason string
}

type ResolveDisputeResult struct {
	Dispute   entities.Dispute
	Milestone entities.Milestone
	Payment   entities.Payment
}

// ResolveDisputeUseCase applies a binding admin decision. The decision is
// locked onto the milestone and the dispute moves to under-review before any
// funds move. Once locked, only the same decision can finish the resolution:
// retries replay it with the same provider keys, anything else conflicts.
type ResolveDisputeUseCase struct {
	Projects    ports.ProjectRepository
	Milestones  ports.MilestoneRepository
	Payments    ports.PaymentRepository
	Disputes    ports.DisputeRepository
	Accounts    ports.AccountDirectory
	Writer      ports.AggregateWriter
	Funds       ports.FundsService
	Fees        services.FeePolicy
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Metrics     ports.Metrics
	Logger      *slog.Logger
}

func (u ResolveDisputeUseCase) Execute(ctx context.Context, cmd ResolveDisputeCommand) (ResolveDisputeResult, error) {
	logger := application.ResolveLogger(u.Logger)
	metrics := application.ResolveMetrics(u.Metrics)
	now := resolveNow(u.Clock)

	disputeID := strings.TrimSpace(cmd.DisputeID)
	if disputeID == "" {
		return ResolveDisputeResult{}, domainerrors.ErrInvalidDisputeInput
	}
	if !cmd.Decision.Valid() {
		return ResolveDisputeResult{}, domainerrors.ErrInvalidDisputeDecision
	}
	if cmd.Decision == entities.DecisionPartial && cmd.Amount <= 0 {
		return ResolveDisputeResult{}, domainerrors.ErrPartialAmountOutOfRange
	}
	if err := services.RequireAdmin(cmd.Caller); err != nil {
		return ResolveDisputeResult{}, err
	}

	dispute, err := u.Disputes.GetDispute(ctx, disputeID)
	if err != nil {
		return ResolveDisputeResult{}, err
	}
	if !dispute.Status.Active() {
		return ResolveDisputeResult{}, domainerrors.ErrDisputeNotActive
	}
	milestone, project, err := loadMilestoneAndProject(ctx, u.Milestones, u.Projects, dispute.MilestoneID)
	if err != nil {
		return ResolveDisputeResult{}, err
	}
	if cmd.Decision == entities.DecisionPartial && cmd.Amount > milestone.Amount {
		return ResolveDisputeResult{}, domainerrors.ErrPartialAmountOutOfRange
	}
	payment, hasPayment, err := activePayment(ctx, u.Payments, milestone)
	if err != nil {
		return ResolveDisputeResult{}, err
	}
	if !hasPayment {
		return ResolveDisputeResult{}, domainerrors.ErrPaymentNotFound
	}
	if payment.Settled() {
		return ResolveDisputeResult{}, domainerrors.ErrPaymentSettled
	}

	outcomeAmount := milestone.Amount
	if cmd.Decision == entities.DecisionPartial {
		outcomeAmount = cmd.Amount
	}
	event := services.EventResolvedFreelancer
	if cmd.Decision == entities.DecisionFullEmployer {
		event = services.EventResolvedEmployer
	}
	if _, err := services.Transition(milestone, event, now); err != nil {
		return ResolveDisputeResult{}, err
	}

	claimed, locked, err := u.lock(ctx, metrics, cmd, milestone, dispute, payment, outcomeAmount, now)
	if err != nil {
		return ResolveDisputeResult{}, err
	}
	next, err := services.Transition(claimed, event, now)
	if err != nil {
		return ResolveDisputeResult{}, err
	}

	funds := ledger{funds: u.Funds, accounts: u.Accounts, fees: u.Fees, metrics: metrics}
	settled, credit, err := u.applyLedger(ctx, funds, cmd, claimed, project, payment, now)
	if err != nil {
		logger.Error("dispute ledger effect failed",
			"event", "milestone_escrow_dispute_ledger_failed",
			"module", application.ModuleName,
			"layer", "application",
			"dispute_id", dispute.DisputeID,
			"milestone_id", milestone.MilestoneID,
			"decision", string(cmd.Decision),
			"error", err.Error(),
		)
		return ResolveDisputeResult{}, err
	}
	if settled.Status == entities.PaymentStatusCompleted {
		next.Amount = settled.Amount
		next.PaidOutAt = &now
	}

	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		reason = entities.DefaultResolutionReason
	}
	resolved := locked
	resolved.PaymentID = payment.PaymentID
	resolved.Status = entities.DisputeStatusResolved
	resolved.Outcome = &entities.DisputeOutcome{Decision: cmd.Decision, Amount: outcomeAmount, Reason: reason}
	resolved.ResolvedBy = cmd.Caller.UserID
	resolved.ResolvedAt = &now
	resolved.UpdatedAt = now

	outbox, err := application.NewOutboxMessage(ctx, u.IDGenerator, application.EventDisputeResolved, milestone.MilestoneID, map[string]any{
		"dispute_id":     resolved.DisputeID,
		"milestone_id":   milestone.MilestoneID,
		"project_id":     project.ProjectID,
		"payment_id":     settled.PaymentID,
		"decision":       string(cmd.Decision),
		"amount":         outcomeAmount,
		"payment_status": string(settled.Status),
		"resolved_by":    cmd.Caller.UserID,
	}, now)
	if err != nil {
		return ResolveDisputeResult{}, err
	}
	paymentEvent := application.EventPaymentReleased
	if settled.Status == entities.PaymentStatusRefunded {
		paymentEvent = application.EventPaymentRefunded
	}
	paymentOutbox, err := application.NewOutboxMessage(ctx, u.IDGenerator, paymentEvent, milestone.MilestoneID, map[string]any{
		"milestone_id": milestone.MilestoneID,
		"project_id":   project.ProjectID,
		"payment_id":   settled.PaymentID,
		"amount":       settled.Amount,
		"platform_fee": settled.PlatformFee,
		"net_amount":   settled.NetAmount,
		"currency":     settled.Currency,
		"transfer_id":  settled.TransferID,
		"refund_id":    settled.RefundID,
	}, now)
	if err != nil {
		return ResolveDisputeResult{}, err
	}

	mutation := ports.Mutation{
		Milestone:    &ports.MilestoneWrite{Milestone: next, ExpectedVersion: claimed.Version},
		Payment:      &ports.PaymentWrite{Payment: settled, ExpectedStatus: payment.Status},
		Dispute:      &ports.DisputeWrite{Dispute: resolved, ExpectedStatus: locked.Status},
		WalletCredit: credit,
		Outbox:       []ports.OutboxMessage{outbox, paymentOutbox},
	}
	if delta := services.CompletionDelta(milestone, next); delta != 0 {
		mutation.ProjectDelta = &ports.ProjectDelta{ProjectID: project.ProjectID, CompletedMilestones: delta}
	}
	if err := commitObserved(ctx, u.Writer, metrics, "resolve_dispute", mutation); err != nil {
		logger.Error("dispute resolution commit failed",
			"event", "milestone_escrow_dispute_resolve_commit_failed",
			"module", application.ModuleName,
			"layer", "application",
			"dispute_id", dispute.DisputeID,
			"milestone_id", milestone.MilestoneID,
			"error", err.Error(),
		)
		return ResolveDisputeResult{}, err
	}

	logger.Info("dispute resolved",
		"event", "milestone_escrow_dispute_resolved",
		"module", application.ModuleName,
		"layer", "application",
		"dispute_id", resolved.DisputeID,
		"milestone_id", milestone.MilestoneID,
		"decision", string(cmd.Decision),
		"amount", outcomeAmount,
		"payment_status", string(settled.Status),
		"milestone_status", string(next.Status),
	)
	return ResolveDisputeResult{Dispute: resolved, Milestone: next, Payment: settled}, nil
}

// lock commits the decision onto the milestone together with moving the
// dispute under review. A lock from an earlier attempt is reused only when it
// names the same dispute, decision and amount.
func (u ResolveDisputeUseCase) lock(
	ctx context.Context,
	metrics ports.Metrics,
	cmd ResolveDisputeCommand,
	milestone entities.Milestone,
	dispute entities.Dispute,
	payment entities.Payment,
	amount int64,
	now time.Time,
) (entities.Milestone, entities.Dispute, error) {
	if current := milestone.Settlement; current != nil {
		if !current.Matches(entities.SettlementResolution, payment.PaymentID, dispute.DisputeID, cmd.Decision, amount) {
			return entities.Milestone{}, entities.Dispute{}, domainerrors.ErrResolutionLocked
		}
		return milestone, dispute, nil
	}

	reviewing := dispute
	reviewing.Status = entities.DisputeStatusUnderReview
	if reviewing.AssignedAdminID == "" {
		reviewing.AssignedAdminID = cmd.Caller.UserID
	}
	reviewing.UpdatedAt = now
	claimed, err := claimSettlement(ctx, u.Writer, metrics, "resolve_dispute_lock", milestone, entities.Settlement{
		Kind:      entities.SettlementResolution,
		PaymentID: payment.PaymentID,
		DisputeID: dispute.DisputeID,
		Decision:  cmd.Decision,
		Amount:    amount,
		ClaimedAt: now,
	}, ports.Mutation{
		Dispute: &ports.DisputeWrite{Dispute: reviewing, ExpectedStatus: dispute.Status},
	})
	if err != nil {
		return entities.Milestone{}, entities.Dispute{}, err
	}
	return claimed, reviewing, nil
}

// applyLedger performs the external funds movement for the decision and
// returns the settled payment plus the wallet credit to commit with it.
func (u ResolveDisputeUseCase) applyLedger(
	ctx context.Context,
	funds ledger,
	cmd ResolveDisputeCommand,
	milestone entities.Milestone,
	project entities.Project,
	payment entities.Payment,
	now time.Time,
) (entities.Payment, *ports.WalletCredit, error) {
	if cmd.Decision == entities.DecisionFullEmployer {
		refundID, err := funds.refund(ctx, milestone, project, payment, payment.Amount)
		if err != nil {
			return entities.Payment{}, nil, err
		}
		refunded := payment
		refunded.Status = entities.PaymentStatusRefunded
		refunded.RefundID = refundID
		refunded.RefundedAt = &now
		refunded.UpdatedAt = now
		return refunded, nil, nil
	}

	amount := payment.Amount
	partial := cmd.Decision == entities.DecisionPartial
	if partial {
		amount = cmd.Amount
	}
	destination, err := funds.payoutDestination(ctx, project)
	if err != nil {
		return entities.Payment{}, nil, err
	}
	result, err := funds.release(ctx, milestone, project, payment, destination, amount, partial)
	if err != nil {
		return entities.Payment{}, nil, err
	}
	released := completedPayment(payment, amount, result, now)
	if remainder := payment.Amount - amount; remainder > 0 {
		refundID, err := funds.refund(ctx, milestone, project, payment, remainder)
		if err != nil {
			return entities.Payment{}, nil, err
		}
		released.RefundID = refundID
	}

	var credit *ports.WalletCredit
	if released.NetAmount > 0 {
		credit = &ports.WalletCredit{UserID: project.FreelancerID, Currency: released.Currency, Amount: released.NetAmount}
	}
	return released, credit, nil
}
