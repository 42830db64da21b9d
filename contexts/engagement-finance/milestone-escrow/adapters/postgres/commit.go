package postgresadapter

import (
	"context"
	"errors"
	"strings"

	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/entities"
	domainerrors "milestonepay/contexts/engagement-finance/milestone-escrow/domain/errors"
	"milestonepay/contexts/engagement-finance/milestone-escrow/ports"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Commit applies mutation in one transaction. Every conditional write checks
// its expected version or status in the UPDATE itself; a miss rolls back the
// whole transaction.
func (r *Repository) Commit(ctx context.Context, mutation ports.Mutation) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := commitMilestone(tx, mutation.Milestone); err != nil {
			return err
		}
		if err := commitPayment(tx, mutation.Payment); err != nil {
			return err
		}
		if err := commitSubmission(tx, mutation.Submission); err != nil {
			return err
		}
		if err := commitDispute(tx, mutation.Dispute); err != nil {
			return err
		}
		if err := commitProjectDelta(tx, mutation.ProjectDelta); err != nil {
			return err
		}
		if err := commitWalletCredit(tx, mutation.WalletCredit); err != nil {
			return err
		}
		return commitOutbox(tx, mutation.Outbox)
	})
	if err != nil && domainerrors.KindOf(err) == nil {
		r.logger.Error("milestone escrow commit failed",
			"event", "milestone_escrow_commit_failed",
			"module", "engagement-finance/milestone-escrow",
			"layer", "adapter",
			"error", err.Error(),
		)
	}
	return err
}

func commitMilestone(tx *gorm.DB, write *ports.MilestoneWrite) error {
	if write == nil {
		return nil
	}
	milestoneID := strings.TrimSpace(write.Milestone.MilestoneID)
	switch {
	case write.Insert:
		row := milestoneModelFromEntity(write.Milestone)
		if row.Version == 0 {
			row.Version = 1
		}
		var projects int64
		if err := tx.Model(&projectModel{}).Where("project_id = ?", row.ProjectID).Count(&projects).Error; err != nil {
			return err
		}
		if projects == 0 {
			return domainerrors.ErrProjectNotFound
		}
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrConcurrentModification
			}
			return err
		}
		return nil
	case write.GuardOnly:
		var row milestoneModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("milestone_id", "version").
			Where("milestone_id = ?", milestoneID).
			First(&row).
			Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domainerrors.ErrMilestoneNotFound
			}
			return err
		}
		if row.Version != write.ExpectedVersion {
			return domainerrors.ErrConcurrentModification
		}
		return nil
	case write.Delete:
		result := tx.
			Where("milestone_id = ? AND version = ?", milestoneID, write.ExpectedVersion).
			Delete(&milestoneModel{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return missingOrConflict(tx, &milestoneModel{}, "milestone_id", milestoneID, domainerrors.ErrMilestoneNotFound)
		}
		return nil
	default:
		result := tx.Model(&milestoneModel{}).
			Where("milestone_id = ? AND version = ?", milestoneID, write.ExpectedVersion).
			Updates(milestoneUpdates(write.Milestone, write.ExpectedVersion+1))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return missingOrConflict(tx, &milestoneModel{}, "milestone_id", milestoneID, domainerrors.ErrMilestoneNotFound)
		}
		return nil
	}
}

func commitPayment(tx *gorm.DB, write *ports.PaymentWrite) error {
	if write == nil {
		return nil
	}
	if write.Insert {
		row := paymentModelFromEntity(write.Payment)
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrMilestoneHasPayment
			}
			return err
		}
		return nil
	}
	paymentID := strings.TrimSpace(write.Payment.PaymentID)
	result := tx.Model(&paymentModel{}).
		Where("payment_id = ? AND status = ?", paymentID, string(write.ExpectedStatus)).
		Updates(paymentUpdates(write.Payment))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return missingOrConflict(tx, &paymentModel{}, "payment_id", paymentID, domainerrors.ErrPaymentNotFound)
	}
	return nil
}

func commitSubmission(tx *gorm.DB, write *ports.SubmissionWrite) error {
	if write == nil {
		return nil
	}
	row, err := submissionModelFromEntity(write.Submission)
	if err != nil {
		return err
	}
	if write.Insert {
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrConcurrentModification
			}
			return err
		}
		return nil
	}

	query := tx.Model(&submissionModel{}).
		Where("submission_id = ? AND status = ?", row.SubmissionID, string(write.ExpectedStatus))
	if write.RequireUnverified {
		query = query.Where("ai_verification IS NULL")
	}
	result := query.Updates(map[string]any{
		"status":          row.Status,
		"ai_verification": row.AIVerification,
		"review_feedback": row.ReviewFeedback,
		"reviewed_by":     row.ReviewedBy,
		"reviewed_at":     row.ReviewedAt,
		"updated_at":      row.UpdatedAt,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	var stored submissionModel
	err = tx.Select("submission_id", "status", "ai_verification").
		Where("submission_id = ?", row.SubmissionID).
		First(&stored).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domainerrors.ErrSubmissionNotFound
		}
		return err
	}
	if stored.Status == string(write.ExpectedStatus) && write.RequireUnverified && len(stored.AIVerification) > 0 {
		return domainerrors.ErrVerificationAlreadyApplied
	}
	return domainerrors.ErrConcurrentModification
}

func commitDispute(tx *gorm.DB, write *ports.DisputeWrite) error {
	if write == nil {
		return nil
	}
	disputeID := strings.TrimSpace(write.Dispute.DisputeID)
	nextSequence := 1
	if write.Insert {
		row, err := disputeModelFromEntity(write.Dispute)
		if err != nil {
			return err
		}
		if err := tx.Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return domainerrors.ErrActiveDisputeExists
			}
			return err
		}
		for _, message := range write.Dispute.Conversation {
			if err := insertDisputeMessage(tx, disputeID, nextSequence, message); err != nil {
				return err
			}
			nextSequence++
		}
	} else {
		// The conditional UPDATE takes the row lock, which serializes appends.
		result := tx.Model(&disputeModel{}).
			Where("dispute_id = ? AND status = ?", disputeID, string(write.ExpectedStatus)).
			Updates(disputeUpdates(write.Dispute))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return missingOrConflict(tx, &disputeModel{}, "dispute_id", disputeID, domainerrors.ErrDisputeNotFound)
		}
		if len(write.AppendMessages) > 0 {
			var maxSequence int
			err := tx.Model(&disputeMessageModel{}).
				Where("dispute_id = ?", disputeID).
				Select("COALESCE(MAX(sequence), 0)").
				Scan(&maxSequence).
				Error
			if err != nil {
				return err
			}
			nextSequence = maxSequence + 1
		}
	}
	for _, message := range write.AppendMessages {
		if err := insertDisputeMessage(tx, disputeID, nextSequence, message); err != nil {
			return err
		}
		nextSequence++
	}
	return nil
}

func commitProjectDelta(tx *gorm.DB, delta *ports.ProjectDelta) error {
	if delta == nil {
		return nil
	}
	result := tx.Model(&projectModel{}).
		Where("project_id = ?", strings.TrimSpace(delta.ProjectID)).
		Updates(map[string]any{
			"total_milestones":     gorm.Expr("GREATEST(total_milestones + ?, 0)", delta.TotalMilestones),
			"completed_milestones": gorm.Expr("GREATEST(completed_milestones + ?, 0)", delta.CompletedMilestones),
			"updated_at":           nowUTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrProjectNotFound
	}
	return nil
}

func commitWalletCredit(tx *gorm.DB, credit *ports.WalletCredit) error {
	if credit == nil || credit.Amount == 0 {
		return nil
	}
	row := walletModel{
		UserID:    strings.TrimSpace(credit.UserID),
		Currency:  strings.TrimSpace(credit.Currency),
		Balance:   credit.Amount,
		UpdatedAt: nowUTC(),
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "currency"}},
		DoUpdates: clause.Assignments(map[string]any{
			"balance":    gorm.Expr("escrow_wallets.balance + ?", credit.Amount),
			"updated_at": row.UpdatedAt,
		}),
	}).Create(&row).Error
}

func commitOutbox(tx *gorm.DB, messages []ports.OutboxMessage) error {
	for _, message := range messages {
		row := outboxModel{
			OutboxID:     message.OutboxID,
			EventType:    message.EventType,
			PartitionKey: message.PartitionKey,
			Payload:      append([]byte(nil), message.Payload...),
			Status:       outboxStatusPending,
			CreatedAt:    message.CreatedAt.UTC(),
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
	}
	return nil
}

func insertDisputeMessage(tx *gorm.DB, disputeID string, sequence int, message entities.DisputeMessage) error {
	sentAt := message.SentAt.UTC()
	if sentAt.IsZero() {
		sentAt = nowUTC()
	}
	row := disputeMessageModel{
		DisputeID: disputeID,
		Sequence:  sequence,
		SenderID:  message.SenderID,
		Message:   message.Message,
		SentAt:    sentAt,
	}
	return tx.Create(&row).Error
}

// missingOrConflict tells a vanished row apart from a failed condition.
func missingOrConflict(tx *gorm.DB, model any, column string, id string, notFound error) error {
	var count int64
	if err := tx.Model(model).Where(column+" = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return notFound
	}
	return domainerrors.ErrConcurrentModification
}
