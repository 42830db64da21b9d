package queries

import (
	"context"
	"strings"

	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/entities"
	domainerrors "milestonepay/contexts/engagement-finance/milestone-escrow/domain/errors"
	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/services"
	"milestonepay/contexts/engagement-finance/milestone-escrow/ports"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

type LedgerQueries struct {
	Projects ports.ProjectRepository
	Payments ports.PaymentRepository
	Wallets  ports.WalletRepository
}

func (q LedgerQueries) GetPayment(ctx context.Context, caller entities.Caller, paymentID string) (entities.Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return entities.Payment{}, domainerrors.ErrPaymentNotFound
	}
	payment, err := q.Payments.GetPayment(ctx, paymentID)
	if err != nil {
		return entities.Payment{}, err
	}
	project, err := q.Projects.GetProject(ctx, payment.ProjectID)
	if err != nil {
		return entities.Payment{}, err
	}
	if err := services.RequireParticipant(caller, project); err != nil {
		return entities.Payment{}, err
	}
	return payment, nil
}

// ListPayments returns the caller's payments as employer or freelancer,
// newest first. Admins see every payment.
func (q LedgerQueries) ListPayments(ctx context.Context, caller entities.Caller, limit int) ([]entities.Payment, error) {
	if !caller.Valid() {
		return nil, domainerrors.ErrInvalidCaller
	}
	filter := ports.PaymentFilter{Limit: clampLimit(limit)}
	if !caller.IsAdmin() {
		filter.UserID = caller.UserID
	}
	return q.Payments.ListPayments(ctx, filter)
}

// GetWallet returns the caller's internal balances, one per currency.
func (q LedgerQueries) GetWallet(ctx context.Context, caller entities.Caller) ([]entities.WalletBalance, error) {
	if !caller.Valid() {
		return nil, domainerrors.ErrInvalidCaller
	}
	return q.Wallets.ListWalletBalances(ctx, caller.UserID)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
