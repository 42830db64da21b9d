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

type ConfirmFundingCommand struct {
	Caller    entities.Caller
	PaymentID string
}

// ConfirmFundingUseCase records that the payer's intent succeeded and the
// funds are now held in escrow.
type ConfirmFundingUseCase struct {
	Payments ports.PaymentRepository
	Writer   ports.AggregateWriter
	Clock    ports.Clock
	Metrics  ports.Metrics
	Logger   *slog.Logger
}

func (u ConfirmFundingUseCase) Execute(ctx context.Context, cmd ConfirmFundingCommand) (entities.Payment, error) {
	logger := application.ResolveLogger(u.Logger)
	if strings.TrimSpace(cmd.PaymentID) == "" {
		return entities.Payment{}, domainerrors.ErrPaymentNotFound
	}
	if err := services.RequireAdmin(cmd.Caller); err != nil {
		return entities.Payment{}, err
	}

	payment, err := u.Payments.GetPayment(ctx, strings.TrimSpace(cmd.PaymentID))
	if err != nil {
		return entities.Payment{}, err
	}
	if payment.Status == entities.PaymentStatusEscrowHeld {
		return payment, nil
	}
	if payment.Status != entities.PaymentStatusPending {
		return entities.Payment{}, domainerrors.ErrPaymentNotPending
	}

	now := resolveNow(u.Clock)
	next := payment
	next.Status = entities.PaymentStatusEscrowHeld
	next.FundedAt = &now
	next.UpdatedAt = now
	if err := commitObserved(ctx, u.Writer, application.ResolveMetrics(u.Metrics), "confirm_funding", ports.Mutation{
		Payment: &ports.PaymentWrite{Payment: next, ExpectedStatus: entities.PaymentStatusPending},
	}); err != nil {
		return entities.Payment{}, err
	}

	logger.Info("escrow funding confirmed",
		"event", "milestone_escrow_funding_confirmed",
		"module", application.ModuleName,
		"layer", "application",
		"payment_id", next.PaymentID,
		"milestone_id", next.MilestoneID,
	)
	return next, nil
}
