package services

import (
	"time"

	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/entities"
	domainerrors "milestonepay/contexts/engagement-finance/milestone-escrow/domain/errors"
)

// MilestoneEvent names what caused a milestone transition.
type MilestoneEvent string

const (
	EventFunded             MilestoneEvent = "funded"
	EventStarted            MilestoneEvent = "started"
	EventSubmitted          MilestoneEvent = "submitted"
	EventApproved           MilestoneEvent = "approved"
	EventRejected           MilestoneEvent = "rejected"
	EventDisputeOpened      MilestoneEvent = "dispute_opened"
	EventResolvedFreelancer MilestoneEvent = "resolved_freelancer"
	EventResolvedEmployer   MilestoneEvent = "resolved_employer"
	EventDisputeWithdrawn   MilestoneEvent = "dispute_withdrawn"
)

// Transition is the single writer of Milestone.Status. It returns the next
// milestone state at Version+1, or a conflict naming the violated guard.
// A claimed settlement only yields to the resolution that holds it.
func Transition(m entities.Milestone, event MilestoneEvent, now time.Time) (entities.Milestone, error) {
	if err := settlementGuard(m, event); err != nil {
		return m, err
	}
	next := m.Next(now)

	switch event {
	case EventFunded:
		if m.Status == entities.MilestoneStatusDisputed {
			return m, domainerrors.ErrMilestoneDisputed
		}
		if m.IsPaidOut() {
			return m, domainerrors.ErrMilestonePaidOut
		}
		if m.Status == entities.MilestoneStatusPending {
			next.Status = entities.MilestoneStatusInProgress
			next.StartedAt = &now
		}
	case EventStarted:
		if m.Status != entities.MilestoneStatusPending {
			return m, domainerrors.ErrMilestoneNotPending
		}
		next.Status = entities.MilestoneStatusInProgress
		next.StartedAt = &now
	case EventSubmitted:
		if m.Status == entities.MilestoneStatusDisputed {
			return m, domainerrors.ErrMilestoneDisputed
		}
		if m.Status != entities.MilestoneStatusInProgress {
			return m, domainerrors.ErrMilestoneNotInProgress
		}
		next.Status = entities.MilestoneStatusUnderReview
	case EventApproved, EventRejected:
		if m.Status == entities.MilestoneStatusDisputed {
			return m, domainerrors.ErrMilestoneDisputed
		}
		if m.Status != entities.MilestoneStatusUnderReview {
			return m, domainerrors.ErrMilestoneNotUnderReview
		}
		next.CurrentSubmissionID = ""
		if event == EventApproved {
			next.Status = entities.MilestoneStatusCompleted
			next.CompletedAt = &now
		} else {
			next.Status = entities.MilestoneStatusInProgress
		}
	case EventDisputeOpened:
		if m.Status == entities.MilestoneStatusDisputed {
			return m, domainerrors.ErrActiveDisputeExists
		}
		if m.IsPaidOut() {
			return m, domainerrors.ErrMilestonePaidOut
		}
		next.DisputedFrom = m.Status
		next.Status = entities.MilestoneStatusDisputed
	case EventResolvedFreelancer, EventResolvedEmployer, EventDisputeWithdrawn:
		if m.Status != entities.MilestoneStatusDisputed {
			return m, domainerrors.ErrDisputeNotActive
		}
		switch event {
		case EventResolvedFreelancer:
			next.Status = entities.MilestoneStatusCompleted
			if next.CompletedAt == nil {
				next.CompletedAt = &now
			}
		case EventResolvedEmployer:
			next.Status = entities.MilestoneStatusInProgress
			next.CompletedAt = nil
		default:
			next.Status = m.DisputedFrom
			if !next.Status.Valid() || next.Status == entities.MilestoneStatusDisputed {
				next.Status = entities.MilestoneStatusInProgress
			}
		}
		next.CurrentSubmissionID = restoreSubmissionPointer(m, next.Status)
		next.DisputedFrom = ""
		next.Settlement = nil
	default:
		return m, domainerrors.ErrConflict
	}
	return next, nil
}

func settlementGuard(m entities.Milestone, event MilestoneEvent) error {
	if m.Settlement == nil {
		return nil
	}
	switch event {
	case EventResolvedFreelancer, EventResolvedEmployer:
		if m.Settlement.Kind == entities.SettlementResolution {
			return nil
		}
	}
	return domainerrors.ErrSettlementInProgress
}

// restoreSubmissionPointer keeps the pending submission reachable only when the
// milestone goes back to under-review.
func restoreSubmissionPointer(m entities.Milestone, status entities.MilestoneStatus) string {
	if status == entities.MilestoneStatusUnderReview {
		return m.CurrentSubmissionID
	}
	return ""
}

// EffectiveStatus is the status a disputed milestone will fall back to.
func EffectiveStatus(m entities.Milestone) entities.MilestoneStatus {
	if m.Status == entities.MilestoneStatusDisputed && m.DisputedFrom != "" {
		return m.DisputedFrom
	}
	return m.Status
}

// CompletionDelta is the change to Project.CompletedMilestones implied by a
// transition from before to after. Disputed milestones count as their
// pre-dispute status so a dispute never double counts.
func CompletionDelta(before entities.Milestone, after entities.Milestone) int {
	delta := 0
	if EffectiveStatus(after) == entities.MilestoneStatusCompleted {
		delta++
	}
	if EffectiveStatus(before) == entities.MilestoneStatusCompleted {
		delta--
	}
	return delta
}
