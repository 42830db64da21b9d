package httpadapter

import (
	"time"

	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/entities"
	httptransport "milestonepay/contexts/engagement-finance/milestone-escrow/transport/http"
)

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(time.RFC3339)
}

func formatOptionalTime(value *time.Time) string {
	if value == nil {
		return ""
	}
	return formatTime(*value)
}

func copyStrings(items []string) []string {
	if items == nil {
		return []string{}
	}
	return append([]string(nil), items...)
}

func brandFromDTO(dto httptransport.BrandSpecDTO) entities.BrandSpec {
	return entities.BrandSpec{
		BrandName:        dto.BrandName,
		ColorScheme:      dto.ColorScheme,
		StylePreferences: dto.StylePreferences,
		Industry:         dto.Industry,
		TargetAudience:   dto.TargetAudience,
	}
}

func mapProject(item entities.Project) httptransport.ProjectDTO {
	return httptransport.ProjectDTO{
		ProjectID:    item.ProjectID,
		Title:        item.Title,
		Description:  item.Description,
		EmployerID:   item.EmployerID,
		FreelancerID: item.FreelancerID,
		Currency:     item.Currency,
		Requirements: copyStrings(item.Requirements),
		Brand: httptransport.BrandSpecDTO{
			BrandName:        item.Brand.BrandName,
			ColorScheme:      item.Brand.ColorScheme,
			StylePreferences: item.Brand.StylePreferences,
			Industry:         item.Brand.Industry,
			TargetAudience:   item.Brand.TargetAudience,
		},
		TotalMilestones:     item.TotalMilestones,
		CompletedMilestones: item.CompletedMilestones,
		CreatedAt:           formatTime(item.CreatedAt),
		UpdatedAt:           formatTime(item.UpdatedAt),
	}
}

func mapMilestone(item entities.Milestone) httptransport.MilestoneDTO {
	return httptransport.MilestoneDTO{
		MilestoneID:         item.MilestoneID,
		ProjectID:           item.ProjectID,
		Title:               item.Title,
		Description:         item.Description,
		Amount:              item.Amount,
		Currency:            item.Currency,
		Order:               item.Order,
		Status:              string(item.Status),
		DeliverableTypes:    copyStrings(item.DeliverableTypes),
		PaymentID:           item.PaymentID,
		CurrentSubmissionID: item.CurrentSubmissionID,
		Settling:            item.Settling(),
		Version:             item.Version,
		StartedAt:           formatOptionalTime(item.StartedAt),
		CompletedAt:         formatOptionalTime(item.CompletedAt),
		PaidOutAt:           formatOptionalTime(item.PaidOutAt),
		CreatedAt:           formatTime(item.CreatedAt),
		UpdatedAt:           formatTime(item.UpdatedAt),
	}
}

// mapPayment exposes the client secret only on the response that created the intent.
func mapPayment(item entities.Payment, withSecret bool) httptransport.PaymentDTO {
	dto := httptransport.PaymentDTO{
		PaymentID:    item.PaymentID,
		MilestoneID:  item.MilestoneID,
		ProjectID:    item.ProjectID,
		EmployerID:   item.EmployerID,
		FreelancerID: item.FreelancerID,
		Amount:       item.Amount,
		Currency:     item.Currency,
		Status:       string(item.Status),
		IntentID:     item.IntentID,
		TransferID:   item.TransferID,
		RefundID:     item.RefundID,
		PlatformFee:  item.PlatformFee,
		NetAmount:    item.NetAmount,
		CreatedAt:    formatTime(item.CreatedAt),
		FundedAt:     formatOptionalTime(item.FundedAt),
		ReleasedAt:   formatOptionalTime(item.ReleasedAt),
		RefundedAt:   formatOptionalTime(item.RefundedAt),
	}
	if withSecret {
		dto.ClientSecret = item.ClientSecret
	}
	return dto
}

func mapAttachment(item entities.Attachment) httptransport.AttachmentDTO {
	return httptransport.AttachmentDTO{
		Name:     item.Name,
		URL:      item.URL,
		MIMEType: item.MIMEType,
		Size:     item.Size,
	}
}

func attachmentsFromDTO(items []httptransport.AttachmentDTO) []entities.Attachment {
	result := make([]entities.Attachment, 0, len(items))
	for _, item := range items {
		result = append(result, entities.Attachment{
			Name:     item.Name,
			URL:      item.URL,
			MIMEType: item.MIMEType,
			Size:     item.Size,
		})
	}
	return result
}

func mapAttachments(items []entities.Attachment) []httptransport.AttachmentDTO {
	result := make([]httptransport.AttachmentDTO, 0, len(items))
	for _, item := range items {
		result = append(result, mapAttachment(item))
	}
	return result
}

func mapSubmission(item entities.Submission) httptransport.SubmissionDTO {
	dto := httptransport.SubmissionDTO{
		SubmissionID:   item.SubmissionID,
		MilestoneID:    item.MilestoneID,
		ProjectID:      item.ProjectID,
		FreelancerID:   item.FreelancerID,
		Description:    item.Description,
		Attachments:    mapAttachments(item.Attachments),
		Status:         string(item.Status),
		ReviewFeedback: item.ReviewFeedback,
		ReviewedBy:     item.ReviewedBy,
		ReviewedAt:     formatOptionalTime(item.ReviewedAt),
		CreatedAt:      formatTime(item.CreatedAt),
	}
	if verification := item.AIVerification; verification != nil {
		dto.AIVerification = &httptransport.AIVerificationDTO{
			Result:     string(verification.Result),
			Confidence: verification.Confidence,
			Feedback: httptransport.FeedbackDTO{
				Strengths:   copyStrings(verification.Feedback.Strengths),
				Issues:      copyStrings(verification.Feedback.Issues),
				Suggestions: copyStrings(verification.Feedback.Suggestions),
			},
			RequirementsSatisfied: verification.RequirementsSatisfied,
			RecommendedAction:     verification.RecommendedAction,
			EscalatedToManual:     verification.EscalatedToManual,
			VerifiedAt:            formatTime(verification.VerifiedAt),
		}
	}
	return dto
}

func mapDispute(item entities.Dispute) httptransport.DisputeDTO {
	dto := httptransport.DisputeDTO{
		DisputeID:       item.DisputeID,
		ProjectID:       item.ProjectID,
		MilestoneID:     item.MilestoneID,
		PaymentID:       item.PaymentID,
		RaisedBy:        item.RaisedBy,
		Reason:          item.Reason,
		Description:     item.Description,
		Attachments:     mapAttachments(item.Attachments),
		Status:          string(item.Status),
		AssignedAdminID: item.AssignedAdminID,
		Conversation:    make([]httptransport.DisputeMessageDTO, 0, len(item.Conversation)),
		ResolvedBy:      item.ResolvedBy,
		ResolvedAt:      formatOptionalTime(item.ResolvedAt),
		ClosedAt:        formatOptionalTime(item.ClosedAt),
		CreatedAt:       formatTime(item.CreatedAt),
	}
	for _, message := range item.Conversation {
		dto.Conversation = append(dto.Conversation, httptransport.DisputeMessageDTO{
			Sequence: message.Sequence,
			SenderID: message.SenderID,
			Message:  message.Message,
			SentAt:   formatTime(message.SentAt),
		})
	}
	if item.Outcome != nil {
		dto.Outcome = &httptransport.DisputeOutcomeDTO{
			Decision: string(item.Outcome.Decision),
			Amount:   item.Outcome.Amount,
			Reason:   item.Outcome.Reason,
		}
	}
	return dto
}
