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

type CreateMilestoneCommand struct {
	Caller           entities.Caller
	ProjectID        string
	Title            string
	Description      string
	Amount           int64
	Currency         string
	DeliverableTypes []string
}

type CreateMilestoneUseCase struct {
	Projects    ports.ProjectRepository
	Milestones  ports.MilestoneRepository
	Writer      ports.AggregateWriter
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Logger      *slog.Logger
}

func (u CreateMilestoneUseCase) Execute(ctx context.Context, cmd CreateMilestoneCommand) (entities.Milestone, error) {
	logger := application.ResolveLogger(u.Logger)
	now := resolveNow(u.Clock)

	draft := entities.Milestone{
		ProjectID:        strings.TrimSpace(cmd.ProjectID),
		Title:            strings.TrimSpace(cmd.Title),
		Description:      strings.TrimSpace(cmd.Description),
		Amount:           cmd.Amount,
		Currency:         normalizeCurrency(cmd.Currency, "usd"),
		DeliverableTypes: normalizeDeliverables(cmd.DeliverableTypes),
	}
	if !draft.ValidateCreate() {
		return entities.Milestone{}, domainerrors.ErrInvalidMilestoneInput
	}

	project, err := u.Projects.GetProject(ctx, draft.ProjectID)
	if err != nil {
		return entities.Milestone{}, err
	}
	if err := services.RequireOwner(cmd.Caller, project); err != nil {
		return entities.Milestone{}, err
	}
	if strings.TrimSpace(cmd.Currency) == "" {
		draft.Currency = normalizeCurrency(project.Currency, "usd")
	}

	existing, err := u.Milestones.ListMilestones(ctx, project.ProjectID)
	if err != nil {
		return entities.Milestone{}, err
	}
	order := 0
	for _, item := range existing {
		if item.Order > order {
			order = item.Order
		}
	}

	milestoneID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return entities.Milestone{}, err
	}
	draft.MilestoneID = milestoneID
	draft.Order = order + 1
	draft.Status = entities.MilestoneStatusPending
	draft.Version = 1
	draft.CreatedAt = now
	draft.UpdatedAt = now

	if err := u.Writer.Commit(ctx, ports.Mutation{
		Milestone:    &ports.MilestoneWrite{Milestone: draft, Insert: true},
		ProjectDelta: &ports.ProjectDelta{ProjectID: project.ProjectID, TotalMilestones: 1},
	}); err != nil {
		logger.Error("milestone create failed",
			"event", "milestone_escrow_milestone_create_failed",
			"module", application.ModuleName,
			"layer", "application",
			"project_id", project.ProjectID,
			"error", err.Error(),
		)
		return entities.Milestone{}, err
	}

	logger.Info("milestone created",
		"event", "milestone_escrow_milestone_created",
		"module", application.ModuleName,
		"layer", "application",
		"milestone_id", draft.MilestoneID,
		"project_id", draft.ProjectID,
		"order", draft.Order,
		"amount", draft.Amount,
		"currency", draft.Currency,
	)
	return draft, nil
}

func normalizeDeliverables(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		value := strings.ToLower(strings.TrimSpace(item))
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
