package services

import (
	"math"
	"strings"

	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/entities"
)

const DefaultAutoVerifyThreshold = 0.85

type VerificationOutcome string

const (
	OutcomeAutoApprove VerificationOutcome = "auto-approved"
	OutcomeAutoReject  VerificationOutcome = "auto-rejected"
	OutcomeEscalate    VerificationOutcome = "manual-review"
)

// DecideVerification maps a verification result onto the milestone decision.
// Only a confident approved/rejected result acts automatically; everything
// else, including engine errors, goes to manual review.
func DecideVerification(result entities.VerificationResult, threshold float64) VerificationOutcome {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultAutoVerifyThreshold
	}
	if math.IsNaN(result.Confidence) || result.Confidence < threshold {
		return OutcomeEscalate
	}
	switch result.Status {
	case entities.VerificationApproved:
		return OutcomeAutoApprove
	case entities.VerificationRejected:
		return OutcomeAutoReject
	default:
		return OutcomeEscalate
	}
}

// NormalizeResult clamps confidence into [0,1] and folds unknown statuses into uncertain.
// A confidence that is not a number counts as zero.
func NormalizeResult(result entities.VerificationResult) entities.VerificationResult {
	if math.IsNaN(result.Confidence) || result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}
	switch entities.VerificationStatus(strings.ToLower(strings.TrimSpace(string(result.Status)))) {
	case entities.VerificationApproved:
		result.Status = entities.VerificationApproved
	case entities.VerificationRejected:
		result.Status = entities.VerificationRejected
	case entities.VerificationError:
		result.Status = entities.VerificationError
	default:
		result.Status = entities.VerificationUncertain
	}
	return result
}

// FailedVerification is recorded when the verification capability could not be reached.
func FailedVerification() entities.VerificationResult {
	return entities.VerificationResult{
		Status:     entities.VerificationError,
		Confidence: 0,
		Feedback: entities.Feedback{
			Strengths:   []string{},
			Issues:      []string{"AI verification service encountered an error"},
			Suggestions: []string{"Please wait for manual review"},
		},
		RecommendedAction: "manual-review",
	}
}

// UnparseableVerification is recorded when the capability answered but its output could not be read.
func UnparseableVerification() entities.VerificationResult {
	return entities.VerificationResult{
		Status:     entities.VerificationUncertain,
		Confidence: 0.5,
		Feedback: entities.Feedback{
			Strengths:   []string{},
			Issues:      []string{"Could not analyze submission properly"},
			Suggestions: []string{"Please perform manual review"},
		},
		RecommendedAction: "manual-review",
	}
}

// ExtractRequirements builds the verification input from a milestone and its project.
func ExtractRequirements(milestone entities.Milestone, project entities.Project) entities.Requirements {
	return entities.Requirements{
		Title:               milestone.Title,
		Description:         milestone.Description,
		ProjectTitle:        project.Title,
		ProjectDescription:  project.Description,
		ProjectRequirements: append([]string(nil), project.Requirements...),
		DeliverableTypes:    append([]string(nil), milestone.DeliverableTypes...),
		Brand:               project.Brand,
	}
}

func ExtractDeliverables(submission entities.Submission) entities.Deliverables {
	deliverables := entities.Deliverables{
		Description:     submission.Description,
		AttachmentCount: len(submission.Attachments),
		AttachmentTypes: make([]string, 0, len(submission.Attachments)),
		AttachmentNames: make([]string, 0, len(submission.Attachments)),
	}
	for _, attachment := range submission.Attachments {
		deliverables.AttachmentTypes = append(deliverables.AttachmentTypes, attachment.MIMEType)
		deliverables.AttachmentNames = append(deliverables.AttachmentNames, attachment.Name)
	}
	return deliverables
}
