package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	application "milestonepay/contexts/engagement-finance/milestone-escrow/application"
	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/entities"
	domainerrors "milestonepay/contexts/engagement-finance/milestone-escrow/domain/errors"
	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/services"
	"milestonepay/contexts/engagement-finance/milestone-escrow/ports"
)

type CreateEscrowCommand struct {
	IdempotencyKey string
	Caller         entities.Caller
	MilestoneID    string
}

// CreateEscrowUseCase funds a milestone: it opens a transfer intent at the
// funds service and records the pending payment against the milestone.
type CreateEscrowUseCase struct {
	Projects    ports.ProjectRepository
	Milestones  ports.MilestoneRepository
	Payments    ports.PaymentRepository
	Accounts    ports.AccountDirectory
	Writer      ports.AggregateWriter
	Funds       ports.FundsService
	PayerCache  ports.PayerProfileCache
	Idempotency ports.IdempotencyStore
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Metrics     ports.Metrics
	Logger      *slog.Logger

	IdempotencyTTL time.Duration
}

func (u CreateEscrowUseCase) Execute(ctx context.Context, cmd CreateEscrowCommand) (entities.Payment, error) {
	logger := application.ResolveLogger(u.Logger)
	metrics := application.ResolveMetrics(u.Metrics)
	now := resolveNow(u.Clock)

	milestoneID := strings.TrimSpace(cmd.MilestoneID)
	if milestoneID == "" {
		return entities.Payment{}, domainerrors.ErrInvalidMilestoneInput
	}
	requestHash := hashRequest("create_escrow", cmd.Caller.UserID, milestoneID)
	if replayed, ok, err := replayIdempotent[entities.Payment](ctx, u.Idempotency, cmd.IdempotencyKey, requestHash, now); err != nil {
		return entities.Payment{}, err
	} else if ok {
		logger.Debug("escrow replayed from idempotency key",
			"event", "milestone_escrow_escrow_replayed",
			"module", application.ModuleName,
			"layer", "application",
			"milestone_id", milestoneID,
			"payment_id", replayed.PaymentID,
		)
		return replayed, nil
	}

	milestone, project, err := loadMilestoneAndProject(ctx, u.Milestones, u.Projects, milestoneID)
	if err != nil {
		return entities.Payment{}, err
	}
	if err := services.RequireOwner(cmd.Caller, project); err != nil {
		return entities.Payment{}, err
	}
	if _, hasPayment, err := activePayment(ctx, u.Payments, milestone); err != nil {
		return entities.Payment{}, err
	} else if hasPayment {
		return entities.Payment{}, domainerrors.ErrMilestoneHasPayment
	}
	next, err := services.Transition(milestone, services.EventFunded, now)
	if err != nil {
		return entities.Payment{}, err
	}

	payerProfileID, err := u.resolvePayerProfile(ctx, cmd.Caller, project)
	if err != nil {
		return entities.Payment{}, err
	}

	paymentID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return entities.Payment{}, err
	}
	intent, err := u.Funds.CreateIntent(ctx, ports.IntentRequest{
		Amount:         milestone.Amount,
		Currency:       milestone.Currency,
		Description:    fmt.Sprintf("Escrow for milestone: %s", milestone.Title),
		PayerProfileID: payerProfileID,
		Metadata:       reconciliationMetadata(milestone, project, ""),
		IdempotencyKey: fmt.Sprintf("escrow:%s:v%d", milestone.MilestoneID, milestone.Version),
	})
	metrics.ObserveFundsOperation("intent", err)
	if err != nil {
		logger.Error("transfer intent failed",
			"event", "milestone_escrow_intent_failed",
			"module", application.ModuleName,
			"layer", "application",
			"milestone_id", milestone.MilestoneID,
			"error", err.Error(),
		)
		return entities.Payment{}, wrapUpstream("create transfer intent", err)
	}

	payment := entities.Payment{
		PaymentID:    paymentID,
		MilestoneID:  milestone.MilestoneID,
		ProjectID:    project.ProjectID,
		EmployerID:   project.EmployerID,
		FreelancerID: project.FreelancerID,
		Amount:       milestone.Amount,
		Currency:     milestone.Currency,
		Status:       entities.PaymentStatusPending,
		IntentID:     intent.IntentID,
		ClientSecret: intent.ClientSecret,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	next.PaymentID = payment.PaymentID

	event, err := application.NewOutboxMessage(ctx, u.IDGenerator, application.EventMilestoneFunded, milestone.MilestoneID, map[string]any{
		"milestone_id": milestone.MilestoneID,
		"project_id":   project.ProjectID,
		"payment_id":   payment.PaymentID,
		"amount":       payment.Amount,
		"currency":     payment.Currency,
	}, now)
	if err != nil {
		return entities.Payment{}, err
	}
	if err := commitObserved(ctx, u.Writer, metrics, "create_escrow", ports.Mutation{
		Milestone: &ports.MilestoneWrite{Milestone: next, ExpectedVersion: milestone.Version},
		Payment:   &ports.PaymentWrite{Payment: payment, Insert: true},
		Outbox:    []ports.OutboxMessage{event},
	}); err != nil {
		logger.Warn("escrow commit rejected",
			"event", "milestone_escrow_escrow_commit_failed",
			"module", application.ModuleName,
			"layer", "application",
			"milestone_id", milestone.MilestoneID,
			"intent_id", intent.IntentID,
			"error", err.Error(),
		)
		return entities.Payment{}, err
	}

	if err := storeIdempotent(ctx, u.Idempotency, cmd.IdempotencyKey, requestHash, payment, now, u.IdempotencyTTL); err != nil {
		logger.Warn("idempotency record not stored",
			"event", "milestone_escrow_idempotency_store_failed",
			"module", application.ModuleName,
			"layer", "application",
			"milestone_id", milestone.MilestoneID,
			"error", err.Error(),
		)
	}

	logger.Info("milestone escrow created",
		"event", "milestone_escrow_escrow_created",
		"module", application.ModuleName,
		"layer", "application",
		"milestone_id", milestone.MilestoneID,
		"payment_id", payment.PaymentID,
		"intent_id", payment.IntentID,
		"amount", payment.Amount,
		"currency", payment.Currency,
	)
	return payment, nil
}

// resolvePayerProfile returns the employer's payer profile, creating it at the
// funds service on first use. Lookups go cache, directory, then funds service.
func (u CreateEscrowUseCase) resolvePayerProfile(
	ctx context.Context,
	caller entities.Caller,
	project entities.Project,
) (string, error) {
	logger := application.ResolveLogger(u.Logger)
	metrics := application.ResolveMetrics(u.Metrics)
	employerID := project.EmployerID

	if u.PayerCache != nil {
		profileID, found, err := u.PayerCache.GetPayerProfile(ctx, employerID)
		if err != nil {
			logger.Warn("payer profile cache read failed",
				"event", "milestone_escrow_payer_cache_read_failed",
				"module", application.ModuleName,
				"layer", "application",
				"user_id", employerID,
				"error", err.Error(),
			)
		} else if found && profileID != "" {
			return profileID, nil
		}
	}

	account, err := u.Accounts.GetAccount(ctx, employerID)
	if err != nil && !errors.Is(err, domainerrors.ErrNotFound) {
		return "", err
	}
	if err == nil && account.PayerProfileID != "" {
		u.cachePayerProfile(ctx, employerID, account.PayerProfileID)
		return account.PayerProfileID, nil
	}

	email, name := account.Email, account.Name
	if caller.UserID == employerID {
		if email == "" {
			email = caller.Email
		}
		if name == "" {
			name = caller.Name
		}
	}
	profileID, err := u.Funds.CreatePayerProfile(ctx, ports.PayerProfileRequest{
		UserID:         employerID,
		Email:          email,
		Name:           name,
		IdempotencyKey: "payer:" + employerID,
	})
	metrics.ObserveFundsOperation("payer_profile", err)
	if err != nil {
		return "", wrapUpstream("create payer profile", err)
	}
	if err := u.Accounts.SetPayerProfile(ctx, employerID, profileID); err != nil &&
		!errors.Is(err, domainerrors.ErrNotFound) {
		return "", err
	}
	u.cachePayerProfile(ctx, employerID, profileID)
	return profileID, nil
}

func (u CreateEscrowUseCase) cachePayerProfile(ctx context.Context, userID string, profileID string) {
	if u.PayerCache == nil {
		return
	}
	if err := u.PayerCache.PutPayerProfile(ctx, userID, profileID); err != nil {
		application.ResolveLogger(u.Logger).Warn("payer profile cache write failed",
			"event", "milestone_escrow_payer_cache_write_failed",
			"module", application.ModuleName,
			"layer", "application",
			"user_id", userID,
			"error", err.Error(),
		)
	}
}
