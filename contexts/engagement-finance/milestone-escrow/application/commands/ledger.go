package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/entities"
	domainerrors "milestonepay/contexts/engagement-finance/milestone-escrow/domain/errors"
	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/services"
	"milestonepay/contexts/engagement-finance/milestone-escrow/ports"
)

// ledger moves funds for a milestone payment. Every call is keyed by
// milestone and payment so a retried release or resolution reuses the
// provider's first result.
type ledger struct {
	funds    ports.FundsService
	accounts ports.AccountDirectory
	fees     services.FeePolicy
	metrics  ports.Metrics
}

type payout struct {
	Fee        int64
	Net        int64
	TransferID string
}

func (l ledger) payoutDestination(ctx context.Context, project entities.Project) (string, error) {
	account, err := l.accounts.GetAccount(ctx, project.FreelancerID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			return "", domainerrors.ErrNoPayoutDestination
		}
		return "", err
	}
	destination := strings.TrimSpace(account.PayoutDestination)
	if destination == "" || !account.Active {
		return "", domainerrors.ErrNoPayoutDestination
	}
	return destination, nil
}

// release transfers amount less the platform fee to destination.
func (l ledger) release(
	ctx context.Context,
	milestone entities.Milestone,
	project entities.Project,
	payment entities.Payment,
	destination string,
	amount int64,
	partial bool,
) (payout, error) {
	fee, net := l.fees.Split(amount, partial)
	result := payout{Fee: fee, Net: net}
	if net <= 0 {
		return result, nil
	}
	transferID, err := l.funds.Transfer(ctx, ports.TransferRequest{
		Amount:         net,
		Currency:       payment.Currency,
		Destination:    destination,
		Description:    fmt.Sprintf("Payment for milestone: %s", milestone.Title),
		Metadata:       reconciliationMetadata(milestone, project, payment.PaymentID),
		IdempotencyKey: payoutKey(milestone.MilestoneID, payment.PaymentID),
	})
	l.metrics.ObserveFundsOperation("transfer", err)
	if err != nil {
		return payout{}, wrapUpstream("transfer to freelancer", err)
	}
	result.TransferID = transferID
	return result, nil
}

// refund returns amount of the payment's intent to the payer.
func (l ledger) refund(
	ctx context.Context,
	milestone entities.Milestone,
	project entities.Project,
	payment entities.Payment,
	amount int64,
) (string, error) {
	if amount <= 0 {
		return "", nil
	}
	refundID, err := l.funds.Refund(ctx, ports.RefundRequest{
		IntentID:       payment.IntentID,
		Amount:         amount,
		Currency:       payment.Currency,
		Metadata:       reconciliationMetadata(milestone, project, payment.PaymentID),
		IdempotencyKey: refundKey(milestone.MilestoneID, payment.PaymentID),
	})
	l.metrics.ObserveFundsOperation("refund", err)
	if err != nil {
		return "", wrapUpstream("refund to payer", err)
	}
	return refundID, nil
}

func completedPayment(payment entities.Payment, amount int64, result payout, now time.Time) entities.Payment {
	next := payment
	next.Amount = amount
	next.Status = entities.PaymentStatusCompleted
	next.PlatformFee = result.Fee
	next.NetAmount = result.Net
	next.TransferID = result.TransferID
	next.ReleasedAt = &now
	next.UpdatedAt = now
	return next
}

// claimSettlement commits settlement on the milestone at Version+1 before any
// money moves. Writes in with land in the same commit as the claim.
func claimSettlement(
	ctx context.Context,
	writer ports.AggregateWriter,
	metrics ports.Metrics,
	operation string,
	milestone entities.Milestone,
	settlement entities.Settlement,
	with ports.Mutation,
) (entities.Milestone, error) {
	claimed := milestone.Next(settlement.ClaimedAt)
	claimed.Settlement = &settlement
	with.Milestone = &ports.MilestoneWrite{Milestone: claimed, ExpectedVersion: milestone.Version}
	if err := commitObserved(ctx, writer, metrics, operation, with); err != nil {
		return entities.Milestone{}, err
	}
	return claimed, nil
}
