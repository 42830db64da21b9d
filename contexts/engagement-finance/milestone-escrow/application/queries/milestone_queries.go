package queries

import (
	"context"
	"strings"

	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/entities"
	domainerrors "milestonepay/contexts/engagement-finance/milestone-escrow/domain/errors"
	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/services"
	"milestonepay/contexts/engagement-finance/milestone-escrow/ports"
)

// MilestoneQueries serves project, milestone and submission reads to
// project participants and admins.
type MilestoneQueries struct {
	Projects    ports.ProjectRepository
	Milestones  ports.MilestoneRepository
	Submissions ports.SubmissionRepository
}

func (q MilestoneQueries) GetProject(ctx context.Context, caller entities.Caller, projectID string) (entities.Project, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return entities.Project{}, domainerrors.ErrProjectNotFound
	}
	project, err := q.Projects.GetProject(ctx, projectID)
	if err != nil {
		return entities.Project{}, err
	}
	if err := services.RequireParticipant(caller, project); err != nil {
		return entities.Project{}, err
	}
	return project, nil
}

func (q MilestoneQueries) GetMilestone(ctx context.Context, caller entities.Caller, milestoneID string) (entities.Milestone, error) {
	milestoneID = strings.TrimSpace(milestoneID)
	if milestoneID == "" {
		return entities.Milestone{}, domainerrors.ErrMilestoneNotFound
	}
	milestone, err := q.Milestones.GetMilestone(ctx, milestoneID)
	if err != nil {
		return entities.Milestone{}, err
	}
	if _, err := q.GetProject(ctx, caller, milestone.ProjectID); err != nil {
		return entities.Milestone{}, err
	}
	return milestone, nil
}

// ListMilestones returns the project's milestones ordered by Order.
func (q MilestoneQueries) ListMilestones(ctx context.Context, caller entities.Caller, projectID string) ([]entities.Milestone, error) {
	project, err := q.GetProject(ctx, caller, projectID)
	if err != nil {
		return nil, err
	}
	return q.Milestones.ListMilestones(ctx, project.ProjectID)
}

func (q MilestoneQueries) GetSubmission(ctx context.Context, caller entities.Caller, submissionID string) (entities.Submission, error) {
	submissionID = strings.TrimSpace(submissionID)
	if submissionID == "" {
		return entities.Submission{}, domainerrors.ErrSubmissionNotFound
	}
	submission, err := q.Submissions.GetSubmission(ctx, submissionID)
	if err != nil {
		return entities.Submission{}, err
	}
	if _, err := q.GetProject(ctx, caller, submission.ProjectID); err != nil {
		return entities.Submission{}, err
	}
	return submission, nil
}

// ListSubmissions returns the milestone's submission history, oldest first.
func (q MilestoneQueries) ListSubmissions(ctx context.Context, caller entities.Caller, milestoneID string) ([]entities.Submission, error) {
	milestone, err := q.GetMilestone(ctx, caller, milestoneID)
	if err != nil {
		return nil, err
	}
	return q.Submissions.ListSubmissions(ctx, milestone.MilestoneID)
}
