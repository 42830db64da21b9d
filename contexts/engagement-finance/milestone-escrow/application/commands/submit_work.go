package commands

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	application "milestonepay/contexts/engagement-finance/milestone-escrow/application"
	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/entities"
	domainerrors "milestonepay/contexts/engagement-finance/milestone-escrow/domain/errors"
	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/services"
	"milestonepay/contexts/engagement-finance/milestone-escrow/ports"
)

type SubmitWorkCommand struct {
	IdempotencyKey string
	Caller         entities.Caller
	MilestoneID    string
	Description    string
	Attachments    []entities.Attachment
}

// SubmitWorkUseCase records a deliverable and queues it for verification.
// Verification runs out of band; the submission is accepted regardless of
// its outcome.
type SubmitWorkUseCase struct {
	Projects    ports.ProjectRepository
	Milestones  ports.MilestoneRepository
	Writer      ports.AggregateWriter
	Idempotency ports.IdempotencyStore
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Metrics     ports.Metrics
	Logger      *slog.Logger

	IdempotencyTTL time.Duration
}

func (u SubmitWorkUseCase) Execute(ctx context.Context, cmd SubmitWorkCommand) (entities.Submission, error) {
	logger := application.ResolveLogger(u.Logger)
	now := resolveNow(u.Clock)

	if !cmd.Caller.Valid() {
		return entities.Submission{}, domainerrors.ErrInvalidCaller
	}
	draft := entities.Submission{
		MilestoneID:  strings.TrimSpace(cmd.MilestoneID),
		FreelancerID: cmd.Caller.UserID,
		Description:  strings.TrimSpace(cmd.Description),
		Attachments:  cloneAttachments(cmd.Attachments),
	}
	if !draft.ValidateCreate() {
		return entities.Submission{}, domainerrors.ErrInvalidSubmissionInput
	}

	hashParts := []string{"submit_work", cmd.Caller.UserID, draft.MilestoneID, draft.Description}
	for _, attachment := range draft.Attachments {
		hashParts = append(hashParts, attachment.URL, strconv.FormatInt(attachment.Size, 10))
	}
	requestHash := hashRequest(hashParts...)
	if replayed, ok, err := replayIdempotent[entities.Submission](ctx, u.Idempotency, cmd.IdempotencyKey, requestHash, now); err != nil {
		return entities.Submission{}, err
	} else if ok {
		return replayed, nil
	}

	milestone, project, err := loadMilestoneAndProject(ctx, u.Milestones, u.Projects, draft.MilestoneID)
	if err != nil {
		return entities.Submission{}, err
	}
	if err := services.RequireAssignedFreelancer(cmd.Caller, project, false); err != nil {
		return entities.Submission{}, err
	}
	next, err := services.Transition(milestone, services.EventSubmitted, now)
	if err != nil {
		logger.Warn("submission rejected by milestone state",
			"event", "milestone_escrow_submission_rejected",
			"module", application.ModuleName,
			"layer", "application",
			"milestone_id", milestone.MilestoneID,
			"status", string(milestone.Status),
			"error", err.Error(),
		)
		return entities.Submission{}, err
	}

	submissionID, err := u.IDGenerator.NewID(ctx)
	if err != nil {
		return entities.Submission{}, err
	}
	draft.SubmissionID = submissionID
	draft.ProjectID = project.ProjectID
	draft.Status = entities.SubmissionStatusPending
	draft.CreatedAt = now
	draft.UpdatedAt = now
	next.CurrentSubmissionID = submissionID

	created, err := application.NewOutboxMessage(ctx, u.IDGenerator, application.EventSubmissionCreated, milestone.MilestoneID, map[string]any{
		"submission_id":    submissionID,
		"milestone_id":     milestone.MilestoneID,
		"project_id":       project.ProjectID,
		"freelancer_id":    cmd.Caller.UserID,
		"attachment_count": len(draft.Attachments),
	}, now)
	if err != nil {
		return entities.Submission{}, err
	}
	task, err := application.NewOutboxMessage(ctx, u.IDGenerator, application.EventVerificationRequested, milestone.MilestoneID, application.VerificationRequested{
		SubmissionID:     submissionID,
		MilestoneID:      milestone.MilestoneID,
		ProjectID:        project.ProjectID,
		MilestoneVersion: next.Version,
	}, now)
	if err != nil {
		return entities.Submission{}, err
	}

	if err := commitObserved(ctx, u.Writer, application.ResolveMetrics(u.Metrics), "submit_work", ports.Mutation{
		Milestone:  &ports.MilestoneWrite{Milestone: next, ExpectedVersion: milestone.Version},
		Submission: &ports.SubmissionWrite{Submission: draft, Insert: true},
		Outbox:     []ports.OutboxMessage{created, task},
	}); err != nil {
		logger.Warn("submission commit rejected",
			"event", "milestone_escrow_submission_commit_failed",
			"module", application.ModuleName,
			"layer", "application",
			"milestone_id", milestone.MilestoneID,
			"error", err.Error(),
		)
		return entities.Submission{}, err
	}

	if err := storeIdempotent(ctx, u.Idempotency, cmd.IdempotencyKey, requestHash, draft, now, u.IdempotencyTTL); err != nil {
		logger.Warn("idempotency record not stored",
			"event", "milestone_escrow_idempotency_store_failed",
			"module", application.ModuleName,
			"layer", "application",
			"submission_id", draft.SubmissionID,
			"error", err.Error(),
		)
	}

	logger.Info("work submitted",
		"event", "milestone_escrow_work_submitted",
		"module", application.ModuleName,
		"layer", "application",
		"submission_id", draft.SubmissionID,
		"milestone_id", milestone.MilestoneID,
		"milestone_version", next.Version,
		"attachments", len(draft.Attachments),
	)
	return draft, nil
}
