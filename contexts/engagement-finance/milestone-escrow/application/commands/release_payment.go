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

type ReleasePaymentCommand struct {
	IdempotencyKey string
	Caller         entities.Caller
	MilestoneID    string
}

// ReleasePaymentUseCase pays a completed milestone out to the freelancer. The
// escrowed funds are claimed on the milestone before the transfer, so no
// dispute can be opened against them while money is moving. A failed
// transfer releases the claim; a failed final commit keeps it and the next
// attempt resumes with the same transfer key.
type ReleasePaymentUseCase struct {
	Projects    ports.ProjectRepository
	Milestones  ports.MilestoneRepository
	Payments    ports.PaymentRepository
	Accounts    ports.AccountDirectory
	Writer      ports.AggregateWriter
	Funds       ports.FundsService
	Fees        services.FeePolicy
	Idempotency ports.IdempotencyStore
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Metrics     ports.Metrics
	Logger      *slog.Logger

	IdempotencyTTL time.Duration
}

func (u ReleasePaymentUseCase) Execute(ctx context.Context, cmd ReleasePaymentCommand) (entities.Payment, error) {
	logger := application.ResolveLogger(u.Logger)
	metrics := application.ResolveMetrics(u.Metrics)
	now := resolveNow(u.Clock)

	milestoneID := strings.TrimSpace(cmd.MilestoneID)
	if milestoneID == "" {
		return entities.Payment{}, domainerrors.ErrInvalidMilestoneInput
	}
	requestHash := hashRequest("release_payment", cmd.Caller.UserID, milestoneID)
	if replayed, ok, err := replayIdempotent[entities.Payment](ctx, u.Idempotency, cmd.IdempotencyKey, requestHash, now); err != nil {
		return entities.Payment{}, err
	} else if ok {
		return replayed, nil
	}

	milestone, project, err := loadMilestoneAndProject(ctx, u.Milestones, u.Projects, milestoneID)
	if err != nil {
		return entities.Payment{}, err
	}
	if err := services.RequireOwner(cmd.Caller, project); err != nil {
		return entities.Payment{}, err
	}
	switch {
	case milestone.Status == entities.MilestoneStatusDisputed:
		return entities.Payment{}, domainerrors.ErrMilestoneDisputed
	case milestone.IsPaidOut():
		return entities.Payment{}, domainerrors.ErrMilestonePaidOut
	case milestone.Status != entities.MilestoneStatusCompleted:
		return entities.Payment{}, domainerrors.ErrMilestoneNotCompleted
	}
	payment, hasPayment, err := activePayment(ctx, u.Payments, milestone)
	if err != nil {
		return entities.Payment{}, err
	}
	if !hasPayment {
		return entities.Payment{}, domainerrors.ErrMilestoneNoPayment
	}
	if payment.Settled() {
		return entities.Payment{}, domainerrors.ErrPaymentSettled
	}

	funds := ledger{funds: u.Funds, accounts: u.Accounts, fees: u.Fees, metrics: metrics}
	destination, err := funds.payoutDestination(ctx, project)
	if err != nil {
		return entities.Payment{}, err
	}
	claimed, err := u.claim(ctx, metrics, milestone, payment, now)
	if err != nil {
		return entities.Payment{}, err
	}
	result, err := funds.release(ctx, claimed, project, payment, destination, payment.Amount, false)
	if err != nil {
		logger.Error("payment release transfer failed",
			"event", "milestone_escrow_release_transfer_failed",
			"module", application.ModuleName,
			"layer", "application",
			"milestone_id", milestone.MilestoneID,
			"payment_id", payment.PaymentID,
			"error", err.Error(),
		)
		u.releaseClaim(ctx, logger, metrics, claimed, now)
		return entities.Payment{}, err
	}

	released := completedPayment(payment, payment.Amount, result, now)
	next := claimed.Next(now)
	next.Settlement = nil
	next.PaidOutAt = &now

	event, err := application.NewOutboxMessage(ctx, u.IDGenerator, application.EventPaymentReleased, milestone.MilestoneID, map[string]any{
		"milestone_id":  milestone.MilestoneID,
		"project_id":    project.ProjectID,
		"payment_id":    released.PaymentID,
		"freelancer_id": project.FreelancerID,
		"amount":        released.Amount,
		"platform_fee":  released.PlatformFee,
		"net_amount":    released.NetAmount,
		"currency":      released.Currency,
		"transfer_id":   released.TransferID,
	}, now)
	if err != nil {
		return entities.Payment{}, err
	}
	if err := commitObserved(ctx, u.Writer, metrics, "release_payment", ports.Mutation{
		Milestone:    &ports.MilestoneWrite{Milestone: next, ExpectedVersion: claimed.Version},
		Payment:      &ports.PaymentWrite{Payment: released, ExpectedStatus: payment.Status},
		WalletCredit: &ports.WalletCredit{UserID: project.FreelancerID, Currency: released.Currency, Amount: released.NetAmount},
		Outbox:       []ports.OutboxMessage{event},
	}); err != nil {
		logger.Error("payment release commit failed after transfer",
			"event", "milestone_escrow_release_commit_failed",
			"module", application.ModuleName,
			"layer", "application",
			"milestone_id", milestone.MilestoneID,
			"payment_id", payment.PaymentID,
			"transfer_id", result.TransferID,
			"error", err.Error(),
		)
		return entities.Payment{}, err
	}

	if err := storeIdempotent(ctx, u.Idempotency, cmd.IdempotencyKey, requestHash, released, now, u.IdempotencyTTL); err != nil {
		logger.Warn("idempotency record not stored",
			"event", "milestone_escrow_idempotency_store_failed",
			"module", application.ModuleName,
			"layer", "application",
			"milestone_id", milestone.MilestoneID,
			"error", err.Error(),
		)
	}

	logger.Info("payment released",
		"event", "milestone_escrow_payment_released",
		"module", application.ModuleName,
		"layer", "application",
		"milestone_id", milestone.MilestoneID,
		"payment_id", released.PaymentID,
		"platform_fee", released.PlatformFee,
		"net_amount", released.NetAmount,
		"transfer_id", released.TransferID,
	)
	return released, nil
}

// claim reserves the escrowed funds for this release. A claim left behind by
// an earlier attempt on the same payment is resumed rather than taken again.
func (u ReleasePaymentUseCase) claim(
	ctx context.Context,
	metrics ports.Metrics,
	milestone entities.Milestone,
	payment entities.Payment,
	now time.Time,
) (entities.Milestone, error) {
	if current := milestone.Settlement; current != nil {
		if current.Kind == entities.SettlementRelease && current.PaymentID == payment.PaymentID {
			return milestone, nil
		}
		return entities.Milestone{}, domainerrors.ErrSettlementInProgress
	}
	return claimSettlement(ctx, u.Writer, metrics, "release_payment_claim", milestone, entities.Settlement{
		Kind:      entities.SettlementRelease,
		PaymentID: payment.PaymentID,
		Amount:    payment.Amount,
		ClaimedAt: now,
	}, ports.Mutation{})
}

func (u ReleasePaymentUseCase) releaseClaim(
	ctx context.Context,
	logger *slog.Logger,
	metrics ports.Metrics,
	claimed entities.Milestone,
	now time.Time,
) {
	cleared := claimed.Next(now)
	cleared.Settlement = nil
	if err := commitObserved(context.WithoutCancel(ctx), u.Writer, metrics, "release_payment_unclaim", ports.Mutation{
		Milestone: &ports.MilestoneWrite{Milestone: cleared, ExpectedVersion: claimed.Version},
	}); err != nil {
		logger.Error("payment release claim not cleared",
			"event", "milestone_escrow_release_unclaim_failed",
			"module", application.ModuleName,
			"layer", "application",
			"milestone_id", claimed.MilestoneID,
			"error", err.Error(),
		)
	}
}
