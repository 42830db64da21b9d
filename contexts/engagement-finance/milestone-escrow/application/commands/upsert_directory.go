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

type UpsertProjectCommand struct {
	Caller       entities.Caller
	ProjectID    string
	Title        string
	Description  string
	EmployerID   string
	FreelancerID string
	Currency     string
	Requirements []string
	Brand        entities.BrandSpec
}

// UpsertProjectUseCase records project membership published by the project service.
type UpsertProjectUseCase struct {
	Projects ports.ProjectRepository
	Clock    ports.Clock
	Logger   *slog.Logger
}

func (u UpsertProjectUseCase) Execute(ctx context.Context, cmd UpsertProjectCommand) (entities.Project, error) {
	logger := application.ResolveLogger(u.Logger)
	now := resolveNow(u.Clock)

	project := entities.Project{
		ProjectID:    strings.TrimSpace(cmd.ProjectID),
		Title:        strings.TrimSpace(cmd.Title),
		Description:  strings.TrimSpace(cmd.Description),
		EmployerID:   strings.TrimSpace(cmd.EmployerID),
		FreelancerID: strings.TrimSpace(cmd.FreelancerID),
		Currency:     normalizeCurrency(cmd.Currency, ""),
		Requirements: append([]string(nil), cmd.Requirements...),
		Brand:        cmd.Brand,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if !project.ValidateUpsert() {
		return entities.Project{}, domainerrors.ErrInvalidProjectInput
	}
	if err := services.RequireAdmin(cmd.Caller); err != nil {
		return entities.Project{}, err
	}

	stored, err := u.Projects.UpsertProject(ctx, project)
	if err != nil {
		logger.Error("project upsert failed",
			"event", "milestone_escrow_project_upsert_failed",
			"module", application.ModuleName,
			"layer", "application",
			"project_id", project.ProjectID,
			"error", err.Error(),
		)
		return entities.Project{}, err
	}
	logger.Info("project upserted",
		"event", "milestone_escrow_project_upserted",
		"module", application.ModuleName,
		"layer", "application",
		"project_id", stored.ProjectID,
		"employer_id", stored.EmployerID,
		"freelancer_id", stored.FreelancerID,
	)
	return stored, nil
}

type UpsertAccountCommand struct {
	Caller            entities.Caller
	UserID            string
	Role              entities.Role
	Email             string
	Name              string
	PayoutDestination string
	Active            bool
}

type UpsertAccountUseCase struct {
	Accounts ports.AccountDirectory
	Logger   *slog.Logger
}

func (u UpsertAccountUseCase) Execute(ctx context.Context, cmd UpsertAccountCommand) (entities.Account, error) {
	logger := application.ResolveLogger(u.Logger)
	account := entities.Account{
		UserID:            strings.TrimSpace(cmd.UserID),
		Role:              cmd.Role,
		Email:             strings.TrimSpace(cmd.Email),
		Name:              strings.TrimSpace(cmd.Name),
		PayoutDestination: strings.TrimSpace(cmd.PayoutDestination),
		Active:            cmd.Active,
	}
	if account.UserID == "" || !account.Role.Valid() {
		return entities.Account{}, domainerrors.ErrInvalidAccountInput
	}
	if err := services.RequireAdmin(cmd.Caller); err != nil {
		return entities.Account{}, err
	}

	if existing, err := u.Accounts.GetAccount(ctx, account.UserID); err == nil {
		account.PayerProfileID = existing.PayerProfileID
	}
	if err := u.Accounts.UpsertAccount(ctx, account); err != nil {
		logger.Error("account upsert failed",
			"event", "milestone_escrow_account_upsert_failed",
			"module", application.ModuleName,
			"layer", "application",
			"user_id", account.UserID,
			"error", err.Error(),
		)
		return entities.Account{}, err
	}
	return account, nil
}
