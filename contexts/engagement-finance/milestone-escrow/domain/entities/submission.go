package entities

import (
	"strings"
	"time"
)

type SubmissionStatus string

const (
	SubmissionStatusPending           SubmissionStatus = "pending"
	SubmissionStatusApproved          SubmissionStatus = "approved"
	SubmissionStatusRejected          SubmissionStatus = "rejected"
	SubmissionStatusRevisionRequested SubmissionStatus = "revision-requested"
)

type ReviewDecision string

const (
	ReviewApproved          ReviewDecision = "approved"
	ReviewRejected          ReviewDecision = "rejected"
	ReviewRevisionRequested ReviewDecision = "revision-requested"
)

func (d ReviewDecision) Valid() bool {
	switch d {
	case ReviewApproved, ReviewRejected, ReviewRevisionRequested:
		return true
	default:
		return false
	}
}

type Attachment struct {
	Name     string
	URL      string
	MIMEType string
	Size     int64
}

func (a Attachment) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(a.MIMEType), "image/")
}

type VerificationStatus string

const (
	VerificationApproved  VerificationStatus = "approved"
	VerificationRejected  VerificationStatus = "rejected"
	VerificationUncertain VerificationStatus = "uncertain"
	VerificationError     VerificationStatus = "error"
)

type Feedback struct {
	Strengths   []string
	Issues      []string
	Suggestions []string
}

// AIVerification is written at most once per submission by the verification worker.
type AIVerification struct {
	Result                VerificationStatus
	Confidence            float64
	Feedback              Feedback
	RequirementsSatisfied bool
	RecommendedAction     string
	EscalatedToManual     bool
	VerifiedAt            time.Time
}

type Submission struct {
	SubmissionID   string
	MilestoneID    string
	ProjectID      string
	FreelancerID   string
	Description    string
	Attachments    []Attachment
	Status         SubmissionStatus
	AIVerification *AIVerification
	ReviewFeedback string
	ReviewedBy     string
	ReviewedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (s Submission) ValidateCreate() bool {
	if strings.TrimSpace(s.MilestoneID) == "" ||
		strings.TrimSpace(s.FreelancerID) == "" ||
		strings.TrimSpace(s.Description) == "" {
		return false
	}
	for _, attachment := range s.Attachments {
		if strings.TrimSpace(attachment.Name) == "" ||
			strings.TrimSpace(attachment.URL) == "" ||
			attachment.Size < 0 {
			return false
		}
	}
	return true
}

func (s Submission) IsReviewed() bool {
	return s.Status != SubmissionStatusPending
}
