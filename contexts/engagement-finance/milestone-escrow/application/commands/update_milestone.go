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

// UpdateMilestoneCommand patches the fields that are set; nil leaves a field unchanged.
type UpdateMilestoneCommand struct {
	Caller           entities.Caller
	MilestoneID      string
	Title            *string
	Description      *string
	Amount           *int64
	Currency         *string
	DeliverableTypes []string
}

type UpdateMilestoneUseCase struct {
	Projects   ports.ProjectRepository
	Milestones ports.MilestoneRepository
	Payments   ports.PaymentRepository
	Writer     ports.AggregateWriter
	Clock      ports.Clock
	Logger     *slog.Logger
}

func (u UpdateMilestoneUseCase) Execute(ctx context.Context, cmd UpdateMilestoneCommand) (entities.Milestone, error) {
	logger := application.ResolveLogger(u.Logger)
	if strings.TrimSpace(cmd.MilestoneID) == "" {
		return entities.Milestone{}, domainerrors.ErrInvalidMilestoneInput
	}

	milestone, project, err := loadMilestoneAndProject(ctx, u.Milestones, u.Projects, cmd.MilestoneID)
	if err != nil {
		return entities.Milestone{}, err
	}
	if err := services.RequireOwner(cmd.Caller, project); err != nil {
		return entities.Milestone{}, err
	}
	if milestone.Settling() {
		return entities.Milestone{}, domainerrors.ErrSettlementInProgress
	}

	next := milestone.Next(resolveNow(u.Clock))
	if cmd.Title != nil {
		next.Title = strings.TrimSpace(*cmd.Title)
	}
	if cmd.Description != nil {
		next.Description = strings.TrimSpace(*cmd.Description)
	}
	if cmd.DeliverableTypes != nil {
		next.DeliverableTypes = normalizeDeliverables(cmd.DeliverableTypes)
	}
	if cmd.Amount != nil {
		next.Amount = *cmd.Amount
	}
	if cmd.Currency != nil {
		next.Currency = normalizeCurrency(*cmd.Currency, milestone.Currency)
	}
	if !next.ValidateCreate() {
		return entities.Milestone{}, domainerrors.ErrInvalidMilestoneInput
	}

	if next.Amount != milestone.Amount || next.Currency != milestone.Currency {
		_, hasPayment, err := activePayment(ctx, u.Payments, milestone)
		if err != nil {
			return entities.Milestone{}, err
		}
		if hasPayment {
			return entities.Milestone{}, domainerrors.ErrMilestoneAmountLocked
		}
		if milestone.Status == entities.MilestoneStatusDisputed {
			return entities.Milestone{}, domainerrors.ErrMilestoneDisputed
		}
	}

	if err := u.Writer.Commit(ctx, ports.Mutation{
		Milestone: &ports.MilestoneWrite{Milestone: next, ExpectedVersion: milestone.Version},
	}); err != nil {
		logger.Warn("milestone update rejected",
			"event", "milestone_escrow_milestone_update_failed",
			"module", application.ModuleName,
			"layer", "application",
			"milestone_id", milestone.MilestoneID,
			"error", err.Error(),
		)
		return entities.Milestone{}, err
	}
	return next, nil
}
