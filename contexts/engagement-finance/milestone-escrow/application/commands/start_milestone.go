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

type StartMilestoneCommand struct {
	Caller      entities.Caller
	MilestoneID string
}

// StartMilestoneUseCase lets the assigned freelancer begin unfunded work.
type StartMilestoneUseCase struct {
	Projects    ports.ProjectRepository
	Milestones  ports.MilestoneRepository
	Writer      ports.AggregateWriter
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Logger      *slog.Logger
}

func (u StartMilestoneUseCase) Execute(ctx context.Context, cmd StartMilestoneCommand) (entities.Milestone, error) {
	logger := application.ResolveLogger(u.Logger)
	if strings.TrimSpace(cmd.MilestoneID) == "" {
		return entities.Milestone{}, domainerrors.ErrInvalidMilestoneInput
	}
	now := resolveNow(u.Clock)

	milestone, project, err := loadMilestoneAndProject(ctx, u.Milestones, u.Projects, cmd.MilestoneID)
	if err != nil {
		return entities.Milestone{}, err
	}
	if err := services.RequireAssignedFreelancer(cmd.Caller, project, true); err != nil {
		return entities.Milestone{}, err
	}
	next, err := services.Transition(milestone, services.EventStarted, now)
	if err != nil {
		return entities.Milestone{}, err
	}

	event, err := application.NewOutboxMessage(ctx, u.IDGenerator, application.EventMilestoneStarted, milestone.MilestoneID, map[string]any{
		"milestone_id": milestone.MilestoneID,
		"project_id":   project.ProjectID,
		"started_by":   cmd.Caller.UserID,
	}, now)
	if err != nil {
		return entities.Milestone{}, err
	}
	if err := u.Writer.Commit(ctx, ports.Mutation{
		Milestone: &ports.MilestoneWrite{Milestone: next, ExpectedVersion: milestone.Version},
		Outbox:    []ports.OutboxMessage{event},
	}); err != nil {
		logger.Warn("milestone start rejected",
			"event", "milestone_escrow_milestone_start_failed",
			"module", application.ModuleName,
			"layer", "application",
			"milestone_id", milestone.MilestoneID,
			"error", err.Error(),
		)
		return entities.Milestone{}, err
	}

	logger.Info("milestone started",
		"event", "milestone_escrow_milestone_started",
		"module", application.ModuleName,
		"layer", "application",
		"milestone_id", milestone.MilestoneID,
		"caller_id", cmd.Caller.UserID,
	)
	return next, nil
}
