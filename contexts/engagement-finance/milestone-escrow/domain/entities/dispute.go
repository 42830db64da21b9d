package entities

import (
	"strings"
	"time"
)

type DisputeStatus string

const (
	DisputeStatusOpen        DisputeStatus = "open"
	DisputeStatusUnderReview DisputeStatus = "under-review"
	DisputeStatusResolved    DisputeStatus = "resolved"
	DisputeStatusClosed      DisputeStatus = "closed"
)

func (s DisputeStatus) Active() bool {
	return s == DisputeStatusOpen || s == DisputeStatusUnderReview
}

type DisputeDecision string

const (
	DecisionFullEmployer   DisputeDecision = "full-employer"
	DecisionFullFreelancer DisputeDecision = "full-freelancer"
	DecisionPartial        DisputeDecision = "partial"
)

func (d DisputeDecision) Valid() bool {
	switch d {
	case DecisionFullEmployer, DecisionFullFreelancer, DecisionPartial:
		return true
	default:
		return false
	}
}

const (
	MinDisputeDescriptionLength = 10
	DefaultResolutionReason     = "Administrative decision"
)

type DisputeMessage struct {
	Sequence int
	SenderID string
	Message  string
	SentAt   time.Time
}

type DisputeOutcome struct {
	Decision DisputeDecision
	Amount   int64
	Reason   string
}

type Dispute struct {
	DisputeID       string
	ProjectID       string
	MilestoneID     string
	PaymentID       string
	RaisedBy        string
	Reason          string
	Description     string
	Attachments     []Attachment
	Status          DisputeStatus
	AssignedAdminID string
	Conversation    []DisputeMessage
	Outcome         *DisputeOutcome
	ResolvedBy      string
	ResolvedAt      *time.Time
	ClosedAt        *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (d Dispute) ValidateCreate() bool {
	return strings.TrimSpace(d.MilestoneID) != "" &&
		strings.TrimSpace(d.RaisedBy) != "" &&
		strings.TrimSpace(d.Reason) != "" &&
		len(strings.TrimSpace(d.Description)) >= MinDisputeDescriptionLength
}
