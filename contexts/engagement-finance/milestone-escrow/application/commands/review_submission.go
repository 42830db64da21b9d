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

type ReviewSubmissionCommand struct {
	Caller       entities.Caller
	MilestoneID  string
	SubmissionID string
	Decision     entities.ReviewDecision
	Feedback     string
}

type ReviewSubmissionResult struct {
	Submission entities.Submission
	Milestone  entities.Milestone
}

// ReviewSubmissionUseCase applies a manual review decision.
type ReviewSubmissionUseCase struct {
	Projects    ports.ProjectRepository
	Milestones  ports.MilestoneRepository
	Submissions ports.SubmissionRepository
	Writer      ports.AggregateWriter
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Metrics     ports.Metrics
	Logger      *slog.Logger
}

func (u ReviewSubmissionUseCase) Execute(ctx context.Context, cmd ReviewSubmissionCommand) (ReviewSubmissionResult, error) {
	logger := application.ResolveLogger(u.Logger)
	now := resolveNow(u.Clock)

	milestoneID := strings.TrimSpace(cmd.MilestoneID)
	submissionID := strings.TrimSpace(cmd.SubmissionID)
	if milestoneID == "" || submissionID == "" {
		return ReviewSubmissionResult{}, domainerrors.ErrInvalidSubmissionInput
	}
	if !cmd.Decision.Valid() {
		return ReviewSubmissionResult{}, domainerrors.ErrInvalidReviewDecision
	}

	milestone, project, err := loadMilestoneAndProject(ctx, u.Milestones, u.Projects, milestoneID)
	if err != nil {
		return ReviewSubmissionResult{}, err
	}
	if err := services.RequireOwner(cmd.Caller, project); err != nil {
		return ReviewSubmissionResult{}, err
	}
	submission, err := u.Submissions.GetSubmission(ctx, submissionID)
	if err != nil {
		return ReviewSubmissionResult{}, err
	}
	if submission.MilestoneID != milestone.MilestoneID {
		return ReviewSubmissionResult{}, domainerrors.ErrSubmissionMilestoneMismatch
	}
	if submission.IsReviewed() {
		return ReviewSubmissionResult{}, domainerrors.ErrSubmissionAlreadyReviewed
	}

	event := services.EventRejected
	status := entities.SubmissionStatusRejected
	switch cmd.Decision {
	case entities.ReviewApproved:
		event = services.EventApproved
		status = entities.SubmissionStatusApproved
	case entities.ReviewRevisionRequested:
		status = entities.SubmissionStatusRevisionRequested
	}
	next, err := services.Transition(milestone, event, now)
	if err != nil {
		return ReviewSubmissionResult{}, err
	}
	if milestone.CurrentSubmissionID != "" && milestone.CurrentSubmissionID != submission.SubmissionID {
		return ReviewSubmissionResult{}, domainerrors.ErrSubmissionNotCurrent
	}

	reviewed := submission
	reviewed.Status = status
	reviewed.ReviewFeedback = strings.TrimSpace(cmd.Feedback)
	reviewed.ReviewedBy = cmd.Caller.UserID
	reviewed.ReviewedAt = &now
	reviewed.UpdatedAt = now

	outbox, err := application.NewOutboxMessage(ctx, u.IDGenerator, application.EventSubmissionReviewed, milestone.MilestoneID, map[string]any{
		"submission_id": reviewed.SubmissionID,
		"milestone_id":  milestone.MilestoneID,
		"project_id":    project.ProjectID,
		"decision":      string(cmd.Decision),
		"reviewed_by":   cmd.Caller.UserID,
	}, now)
	if err != nil {
		return ReviewSubmissionResult{}, err
	}
	mutation := ports.Mutation{
		Milestone:  &ports.MilestoneWrite{Milestone: next, ExpectedVersion: milestone.Version},
		Submission: &ports.SubmissionWrite{Submission: reviewed, ExpectedStatus: entities.SubmissionStatusPending},
		Outbox:     []ports.OutboxMessage{outbox},
	}
	if delta := services.CompletionDelta(milestone, next); delta != 0 {
		mutation.ProjectDelta = &ports.ProjectDelta{ProjectID: project.ProjectID, CompletedMilestones: delta}
	}
	if err := commitObserved(ctx, u.Writer, application.ResolveMetrics(u.Metrics), "review_submission", mutation); err != nil {
		logger.Warn("submission review rejected",
			"event", "milestone_escrow_review_commit_failed",
			"module", application.ModuleName,
			"layer", "application",
			"submission_id", submission.SubmissionID,
			"milestone_id", milestone.MilestoneID,
			"error", err.Error(),
		)
		return ReviewSubmissionResult{}, err
	}

	logger.Info("submission reviewed",
		"event", "milestone_escrow_submission_reviewed",
		"module", application.ModuleName,
		"layer", "application",
		"submission_id", reviewed.SubmissionID,
		"milestone_id", milestone.MilestoneID,
		"decision", string(cmd.Decision),
		"milestone_status", string(next.Status),
	)
	return ReviewSubmissionResult{Submission: reviewed, Milestone: next}, nil
}
