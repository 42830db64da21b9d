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

type DeleteMilestoneCommand struct {
	Caller      entities.Caller
	MilestoneID string
}

type DeleteMilestoneUseCase struct {
	Projects   ports.ProjectRepository
	Milestones ports.MilestoneRepository
	Payments   ports.PaymentRepository
	Writer     ports.AggregateWriter
	Logger     *slog.Logger
}

func (u DeleteMilestoneUseCase) Execute(ctx context.Context, cmd DeleteMilestoneCommand) error {
	logger := application.ResolveLogger(u.Logger)
	if strings.TrimSpace(cmd.MilestoneID) == "" {
		return domainerrors.ErrInvalidMilestoneInput
	}

	milestone, project, err := loadMilestoneAndProject(ctx, u.Milestones, u.Projects, cmd.MilestoneID)
	if err != nil {
		return err
	}
	if err := services.RequireOwner(cmd.Caller, project); err != nil {
		return err
	}
	if milestone.Status != entities.MilestoneStatusPending {
		return domainerrors.ErrMilestoneNotDeletable
	}
	if _, hasPayment, err := activePayment(ctx, u.Payments, milestone); err != nil {
		return err
	} else if hasPayment {
		return domainerrors.ErrMilestoneNotDeletable
	}

	if err := u.Writer.Commit(ctx, ports.Mutation{
		Milestone:    &ports.MilestoneWrite{Milestone: milestone, ExpectedVersion: milestone.Version, Delete: true},
		ProjectDelta: &ports.ProjectDelta{ProjectID: project.ProjectID, TotalMilestones: -1},
	}); err != nil {
		return err
	}

	logger.Info("milestone deleted",
		"event", "milestone_escrow_milestone_deleted",
		"module", application.ModuleName,
		"layer", "application",
		"milestone_id", milestone.MilestoneID,
		"project_id", project.ProjectID,
	)
	return nil
}
