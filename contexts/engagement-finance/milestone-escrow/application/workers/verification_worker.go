package workers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
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

const (
	defaultVerificationConsumerGroup = "milestone-escrow-verification-cg"
	defaultVerifyTimeout             = 90 * time.Second
	systemReviewer                   = "system"

	outcomeDiscarded     = "discarded"
	outcomeVerifierError = "verifier-error"
)

// VerificationWorker consumes verification tasks and applies the automated
// decision. A result is only applied while the milestone is still at the
// version the task was issued for; anything else is discarded.
type VerificationWorker struct {
	Subscriber  ports.EventSubscriber
	Dedup       ports.EventDedupStore
	Projects    ports.ProjectRepository
	Milestones  ports.MilestoneRepository
	Submissions ports.SubmissionRepository
	Writer      ports.AggregateWriter
	Verifier    ports.Verifier
	Blobs       ports.BlobStore
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Metrics     ports.Metrics
	Logger      *slog.Logger

	ConsumerGroup string
	Threshold     float64
	VerifyTimeout time.Duration
	DedupTTL      time.Duration
}

func (w VerificationWorker) Start(ctx context.Context) error {
	group := strings.TrimSpace(w.ConsumerGroup)
	if group == "" {
		group = defaultVerificationConsumerGroup
	}
	return w.Subscriber.Subscribe(ctx, application.EventVerificationRequested, group, w.Handle)
}

// Handle applies one verification task. The dedup reservation is given back
// when handling fails so the redelivered task runs again.
func (w VerificationWorker) Handle(ctx context.Context, event ports.EventEnvelope) (err error) {
	logger := application.ResolveLogger(w.Logger)
	metrics := application.ResolveMetrics(w.Metrics)

	var task application.VerificationRequested
	if err := json.Unmarshal(event.Data, &task); err != nil {
		return fmt.Errorf("decode verification.requested payload: %w", err)
	}
	if strings.TrimSpace(task.SubmissionID) == "" || strings.TrimSpace(task.MilestoneID) == "" {
		return fmt.Errorf("verification.requested payload missing submission_id or milestone_id")
	}

	if w.Dedup != nil {
		alreadyProcessed, err := w.Dedup.ReserveEvent(ctx, event.EventID, hashPayload(event.Data), w.now().Add(w.dedupTTL()))
		if err != nil {
			logger.Error("verification task dedupe failed",
				"event", "milestone_escrow_verification_dedupe_failed",
				"module", application.ModuleName,
				"layer", "worker",
				"event_id", event.EventID,
				"error", err.Error(),
			)
			return err
		}
		if alreadyProcessed {
			logger.Debug("verification task already processed",
				"event", "milestone_escrow_verification_replayed",
				"module", application.ModuleName,
				"layer", "worker",
				"event_id", event.EventID,
				"submission_id", task.SubmissionID,
			)
			return nil
		}
		defer func() {
			if err != nil {
				w.releaseReservation(ctx, event.EventID, err)
			}
		}()
	}

	submission, milestone, project, ok, err := w.load(ctx, task)
	if err != nil {
		return err
	}
	if !ok {
		w.discard(task, "aggregate moved on before verification")
		metrics.ObserveVerification(outcomeDiscarded, 0)
		return nil
	}

	started := time.Now()
	result, outcome, verifierErr := w.evaluate(ctx, submission, milestone, project)
	elapsed := time.Since(started)
	if verifierErr != nil {
		logger.Warn("verification capability failed, escalating to manual review",
			"event", "milestone_escrow_verification_upstream_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"submission_id", submission.SubmissionID,
			"error", verifierErr.Error(),
		)
		metrics.ObserveVerification(outcomeVerifierError, elapsed)
	}

	// The capability is slow; re-read so the decision applies to current state.
	submission, milestone, project, ok, err = w.load(ctx, task)
	if err != nil {
		return err
	}
	if !ok {
		w.discard(task, "aggregate changed during verification")
		metrics.ObserveVerification(outcomeDiscarded, elapsed)
		return nil
	}

	mutation, err := w.buildMutation(ctx, submission, milestone, project, result, outcome)
	if err != nil {
		return err
	}
	if err := w.Writer.Commit(ctx, mutation); err != nil {
		if errors.Is(err, domainerrors.ErrConflict) {
			w.discard(task, err.Error())
			metrics.ObserveVerification(outcomeDiscarded, elapsed)
			return nil
		}
		logger.Error("verification commit failed",
			"event", "milestone_escrow_verification_commit_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"submission_id", submission.SubmissionID,
			"error", err.Error(),
		)
		return err
	}

	metrics.ObserveVerification(string(outcome), elapsed)
	logger.Info("verification applied",
		"event", "milestone_escrow_verification_applied",
		"module", application.ModuleName,
		"layer", "worker",
		"submission_id", submission.SubmissionID,
		"milestone_id", milestone.MilestoneID,
		"result", string(result.Status),
		"confidence", result.Confidence,
		"outcome", string(outcome),
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return nil
}

// load returns ok=false when the task no longer matches the aggregate: the
// submission was reviewed or annotated, or the milestone moved past the
// version the task was issued for.
func (w VerificationWorker) load(
	ctx context.Context,
	task application.VerificationRequested,
) (entities.Submission, entities.Milestone, entities.Project, bool, error) {
	submission, err := w.Submissions.GetSubmission(ctx, task.SubmissionID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			return entities.Submission{}, entities.Milestone{}, entities.Project{}, false, nil
		}
		return entities.Submission{}, entities.Milestone{}, entities.Project{}, false, err
	}
	milestone, err := w.Milestones.GetMilestone(ctx, task.MilestoneID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			return entities.Submission{}, entities.Milestone{}, entities.Project{}, false, nil
		}
		return entities.Submission{}, entities.Milestone{}, entities.Project{}, false, err
	}
	project, err := w.Projects.GetProject(ctx, milestone.ProjectID)
	if err != nil {
		return entities.Submission{}, entities.Milestone{}, entities.Project{}, false, err
	}

	current := submission.Status == entities.SubmissionStatusPending &&
		submission.AIVerification == nil &&
		submission.MilestoneID == milestone.MilestoneID &&
		milestone.Status == entities.MilestoneStatusUnderReview &&
		milestone.Version == task.MilestoneVersion &&
		milestone.CurrentSubmissionID == submission.SubmissionID
	return submission, milestone, project, current, nil
}

func (w VerificationWorker) evaluate(
	ctx context.Context,
	submission entities.Submission,
	milestone entities.Milestone,
	project entities.Project,
) (entities.VerificationResult, services.VerificationOutcome, error) {
	if w.Verifier == nil {
		return services.FailedVerification(), services.OutcomeEscalate, errors.New("verifier not configured")
	}
	verifyCtx, cancel := context.WithTimeout(ctx, w.verifyTimeout())
	defer cancel()

	result, err := w.Verifier.Evaluate(
		verifyCtx,
		services.ExtractRequirements(milestone, project),
		services.ExtractDeliverables(submission),
		w.fetchImages(verifyCtx, submission),
	)
	if err != nil {
		return services.FailedVerification(), services.OutcomeEscalate, err
	}
	result = services.NormalizeResult(result)
	return result, services.DecideVerification(result, w.Threshold), nil
}

// fetchImages loads image attachments for the verifier. An attachment that
// cannot be fetched is left out rather than failing the verification.
func (w VerificationWorker) fetchImages(ctx context.Context, submission entities.Submission) []entities.AttachmentBlob {
	if w.Blobs == nil {
		return nil
	}
	blobs := make([]entities.AttachmentBlob, 0, len(submission.Attachments))
	for _, attachment := range submission.Attachments {
		if !attachment.IsImage() {
			continue
		}
		data, err := w.Blobs.Fetch(ctx, attachment.URL)
		if err != nil {
			application.ResolveLogger(w.Logger).Warn("attachment fetch failed",
				"event", "milestone_escrow_attachment_fetch_failed",
				"module", application.ModuleName,
				"layer", "worker",
				"submission_id", submission.SubmissionID,
				"url", attachment.URL,
				"error", err.Error(),
			)
			continue
		}
		blobs = append(blobs, entities.AttachmentBlob{Name: attachment.Name, MIMEType: attachment.MIMEType, Data: data})
	}
	return blobs
}

func (w VerificationWorker) buildMutation(
	ctx context.Context,
	submission entities.Submission,
	milestone entities.Milestone,
	project entities.Project,
	result entities.VerificationResult,
	outcome services.VerificationOutcome,
) (ports.Mutation, error) {
	now := w.now()
	annotated := submission
	annotated.AIVerification = &entities.AIVerification{
		Result:                result.Status,
		Confidence:            result.Confidence,
		Feedback:              result.Feedback,
		RequirementsSatisfied: result.RequirementsSatisfied,
		RecommendedAction:     result.RecommendedAction,
		EscalatedToManual:     outcome == services.OutcomeEscalate,
		VerifiedAt:            now,
	}
	annotated.UpdatedAt = now
	submissionWrite := &ports.SubmissionWrite{
		Submission:        annotated,
		ExpectedStatus:    entities.SubmissionStatusPending,
		RequireUnverified: true,
	}

	if outcome == services.OutcomeEscalate {
		return ports.Mutation{
			Milestone:  &ports.MilestoneWrite{Milestone: milestone, ExpectedVersion: milestone.Version, GuardOnly: true},
			Submission: submissionWrite,
		}, nil
	}

	event := services.EventRejected
	annotated.Status = entities.SubmissionStatusRejected
	decision := entities.ReviewRejected
	if outcome == services.OutcomeAutoApprove {
		event = services.EventApproved
		annotated.Status = entities.SubmissionStatusApproved
		decision = entities.ReviewApproved
	}
	annotated.ReviewedBy = systemReviewer
	annotated.ReviewedAt = &now
	annotated.ReviewFeedback = summarizeFeedback(result.Feedback)
	submissionWrite.Submission = annotated

	next, err := services.Transition(milestone, event, now)
	if err != nil {
		return ports.Mutation{}, err
	}
	outbox, err := application.NewOutboxMessage(ctx, w.IDGenerator, application.EventSubmissionReviewed, milestone.MilestoneID, map[string]any{
		"submission_id": annotated.SubmissionID,
		"milestone_id":  milestone.MilestoneID,
		"project_id":    project.ProjectID,
		"decision":      string(decision),
		"reviewed_by":   systemReviewer,
		"confidence":    result.Confidence,
	}, now)
	if err != nil {
		return ports.Mutation{}, err
	}
	mutation := ports.Mutation{
		Milestone:  &ports.MilestoneWrite{Milestone: next, ExpectedVersion: milestone.Version},
		Submission: submissionWrite,
		Outbox:     []ports.OutboxMessage{outbox},
	}
	if delta := services.CompletionDelta(milestone, next); delta != 0 {
		mutation.ProjectDelta = &ports.ProjectDelta{ProjectID: project.ProjectID, CompletedMilestones: delta}
	}
	return mutation, nil
}

func (w VerificationWorker) releaseReservation(ctx context.Context, eventID string, cause error) {
	if releaseErr := w.Dedup.ReleaseEvent(context.WithoutCancel(ctx), eventID); releaseErr != nil {
		application.ResolveLogger(w.Logger).Error("verification task reservation not released",
			"event", "milestone_escrow_verification_unreserve_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"event_id", eventID,
			"cause", cause.Error(),
			"error", releaseErr.Error(),
		)
	}
}

func (w VerificationWorker) discard(task application.VerificationRequested, reason string) {
	application.ResolveLogger(w.Logger).Debug("verification result discarded",
		"event", "milestone_escrow_verification_discarded",
		"module", application.ModuleName,
		"layer", "worker",
		"submission_id", task.SubmissionID,
		"milestone_id", task.MilestoneID,
		"milestone_version", task.MilestoneVersion,
		"reason", reason,
	)
}

func summarizeFeedback(feedback entities.Feedback) string {
	parts := make([]string, 0, 2)
	if len(feedback.Issues) > 0 {
		parts = append(parts, "Issues: "+strings.Join(feedback.Issues, "; "))
	}
	if len(feedback.Suggestions) > 0 {
		parts = append(parts, "Suggestions: "+strings.Join(feedback.Suggestions, "; "))
	}
	if len(parts) == 0 && len(feedback.Strengths) > 0 {
		parts = append(parts, "Strengths: "+strings.Join(feedback.Strengths, "; "))
	}
	return strings.Join(parts, "\n")
}

func (w VerificationWorker) verifyTimeout() time.Duration {
	if w.VerifyTimeout <= 0 {
		return defaultVerifyTimeout
	}
	return w.VerifyTimeout
}

func (w VerificationWorker) dedupTTL() time.Duration {
	if w.DedupTTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return w.DedupTTL
}

func (w VerificationWorker) now() time.Time {
	if w.Clock != nil {
		return w.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func hashPayload(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
