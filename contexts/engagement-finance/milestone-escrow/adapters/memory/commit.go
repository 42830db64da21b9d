package memory

import (
	"context"

	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/entities"
	domainerrors "milestonepay/contexts/engagement-finance/milestone-escrow/domain/errors"
	"milestonepay/contexts/engagement-finance/milestone-escrow/ports"
)

// Commit applies mutation atomically. Every condition is checked before the
// first write, so a failed condition leaves the store untouched.
func (s *Store) Commit(_ context.Context, mutation ports.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLocked(mutation); err != nil {
		return err
	}
	s.applyLocked(mutation)
	return nil
}

func (s *Store) checkLocked(mutation ports.Mutation) error {
	if write := mutation.Milestone; write != nil {
		stored, exists := s.milestones[write.Milestone.MilestoneID]
		switch {
		case write.Insert:
			if exists {
				return domainerrors.ErrConcurrentModification
			}
			if _, ok := s.projects[write.Milestone.ProjectID]; !ok {
				return domainerrors.ErrProjectNotFound
			}
		case !exists:
			return domainerrors.ErrMilestoneNotFound
		case stored.Version != write.ExpectedVersion:
			return domainerrors.ErrConcurrentModification
		}
	}

	if write := mutation.Payment; write != nil {
		stored, exists := s.payments[write.Payment.PaymentID]
		if write.Insert {
			if exists {
				return domainerrors.ErrConcurrentModification
			}
			for _, other := range s.payments {
				if other.MilestoneID == write.Payment.MilestoneID && other.Active() {
					return domainerrors.ErrMilestoneHasPayment
				}
			}
		} else {
			if !exists {
				return domainerrors.ErrPaymentNotFound
			}
			if stored.Status != write.ExpectedStatus {
				return domainerrors.ErrConcurrentModification
			}
		}
	}

	if write := mutation.Submission; write != nil {
		stored, exists := s.submissions[write.Submission.SubmissionID]
		if write.Insert {
			if exists {
				return domainerrors.ErrConcurrentModification
			}
		} else {
			if !exists {
				return domainerrors.ErrSubmissionNotFound
			}
			if stored.Status != write.ExpectedStatus {
				return domainerrors.ErrConcurrentModification
			}
			if write.RequireUnverified && stored.AIVerification != nil {
				return domainerrors.ErrVerificationAlreadyApplied
			}
		}
	}

	if write := mutation.Dispute; write != nil {
		stored, exists := s.disputes[write.Dispute.DisputeID]
		if write.Insert {
			if exists {
				return domainerrors.ErrConcurrentModification
			}
			for _, other := range s.disputes {
				if other.MilestoneID == write.Dispute.MilestoneID && other.Status.Active() {
					return domainerrors.ErrActiveDisputeExists
				}
			}
		} else {
			if !exists {
				return domainerrors.ErrDisputeNotFound
			}
			if stored.Status != write.ExpectedStatus {
				return domainerrors.ErrConcurrentModification
			}
		}
	}

	if delta := mutation.ProjectDelta; delta != nil {
		if _, ok := s.projects[delta.ProjectID]; !ok {
			return domainerrors.ErrProjectNotFound
		}
	}
	return nil
}

func (s *Store) applyLocked(mutation ports.Mutation) {
	if write := mutation.Milestone; write != nil && !write.GuardOnly {
		switch {
		case write.Delete:
			delete(s.milestones, write.Milestone.MilestoneID)
		case write.Insert:
			milestone := cloneMilestone(write.Milestone)
			if milestone.Version == 0 {
				milestone.Version = 1
			}
			s.milestones[milestone.MilestoneID] = milestone
		default:
			milestone := cloneMilestone(write.Milestone)
			milestone.Version = write.ExpectedVersion + 1
			s.milestones[milestone.MilestoneID] = milestone
		}
	}

	if write := mutation.Payment; write != nil {
		s.payments[write.Payment.PaymentID] = write.Payment
	}

	if write := mutation.Submission; write != nil {
		s.submissions[write.Submission.SubmissionID] = cloneSubmission(write.Submission)
	}

	if write := mutation.Dispute; write != nil {
		dispute := cloneDispute(write.Dispute)
		if !write.Insert {
			dispute.Conversation = append([]entities.DisputeMessage(nil), s.disputes[dispute.DisputeID].Conversation...)
		}
		for _, message := range write.AppendMessages {
			message.Sequence = len(dispute.Conversation) + 1
			dispute.Conversation = append(dispute.Conversation, message)
		}
		s.disputes[dispute.DisputeID] = dispute
	}

	if delta := mutation.ProjectDelta; delta != nil {
		project := s.projects[delta.ProjectID]
		project.TotalMilestones = clampCounter(project.TotalMilestones + delta.TotalMilestones)
		project.CompletedMilestones = clampCounter(project.CompletedMilestones + delta.CompletedMilestones)
		s.projects[delta.ProjectID] = project
	}

	if credit := mutation.WalletCredit; credit != nil && credit.Amount != 0 {
		key := walletKey(credit.UserID, credit.Currency)
		balance := s.wallets[key]
		balance.UserID = credit.UserID
		balance.Currency = credit.Currency
		balance.Balance += credit.Amount
		s.wallets[key] = balance
	}

	for _, message := range mutation.Outbox {
		s.outbox = append(s.outbox, outboxRow{message: message})
	}
}

func clampCounter(value int) int {
	if value < 0 {
		return 0
	}
	return value
}
