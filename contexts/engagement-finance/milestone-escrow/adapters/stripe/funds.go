package stripeadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	domainerrors "milestonepay/contexts/engagement-finance/milestone-escrow/domain/errors"
	"milestonepay/contexts/engagement-finance/milestone-escrow/ports"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// FundsService moves money through Stripe. Every request forwards the caller's
// idempotency key so a retried call returns the original object.
type FundsService struct {
	api    *client.API
	logger *slog.Logger
}

func NewFundsService(secretKey string, logger *slog.Logger) (*FundsService, error) {
	if strings.TrimSpace(secretKey) == "" {
		return nil, errors.New("stripe secret key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FundsService{
		api:    client.New(secretKey, nil),
		logger: logger,
	}, nil
}

func (s *FundsService) CreatePayerProfile(ctx context.Context, req ports.PayerProfileRequest) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(req.Email),
		Name:  stripe.String(req.Name),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	params.AddMetadata("user_id", req.UserID)

	customer, err := s.api.Customers.New(params)
	if err != nil {
		return "", s.fail("create payer profile", err)
	}
	return customer.ID, nil
}

func (s *FundsService) CreateIntent(ctx context.Context, req ports.IntentRequest) (ports.Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(req.Amount),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Description: stripe.String(req.Description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if req.PayerProfileID != "" {
		params.Customer = stripe.String(req.PayerProfileID)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}

	intent, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return ports.Intent{}, s.fail("create intent", err)
	}
	return ports.Intent{IntentID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

func (s *FundsService) Transfer(ctx context.Context, req ports.TransferRequest) (string, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(req.Amount),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Destination: stripe.String(req.Destination),
		Description: stripe.String(req.Description),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}

	transfer, err := s.api.Transfers.New(params)
	if err != nil {
		return "", s.fail("transfer", err)
	}
	return transfer.ID, nil
}

func (s *FundsService) Refund(ctx context.Context, req ports.RefundRequest) (string, error) {
	if strings.TrimSpace(req.IntentID) == "" {
		return "", domainerrors.Upstream("refund", errors.New("payment intent id is required"))
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.IntentID),
		Amount:        stripe.Int64(req.Amount),
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}

	refund, err := s.api.Refunds.New(params)
	if err != nil {
		return "", s.fail("refund", err)
	}
	return refund.ID, nil
}

func (s *FundsService) fail(op string, err error) error {
	attrs := []any{
		"event", "milestone_escrow_stripe_call_failed",
		"module", "engagement-finance/milestone-escrow",
		"layer", "adapter",
		"operation", op,
		"error", err.Error(),
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		attrs = append(attrs,
			"stripe_code", string(stripeErr.Code),
			"stripe_type", string(stripeErr.Type),
			"http_status", stripeErr.HTTPStatusCode,
		)
	}
	s.logger.Warn("stripe call failed", attrs...)
	return domainerrors.Upstream(op, fmt.Errorf("stripe: %w", err))
}
