package entities

import (
	"strings"
	"time"
)

type MilestoneStatus string

const (
	MilestoneStatusPending     MilestoneStatus = "pending"
	MilestoneStatusInProgress  MilestoneStatus = "in-progress"
	MilestoneStatusUnderReview MilestoneStatus = "under-review"
	MilestoneStatusCompleted   MilestoneStatus = "completed"
	MilestoneStatusDisputed    MilestoneStatus = "disputed"
)

func (s MilestoneStatus) Valid() bool {
	switch s {
	case MilestoneStatusPending,
		MilestoneStatusInProgress,
		MilestoneStatusUnderReview,
		MilestoneStatusCompleted,
		MilestoneStatusDisputed:
		return true
	default:
		return false
	}
}

// Milestone is a unit of work within a Project. Version increases on every
// committed write and is the optimistic concurrency token for the aggregate.
type Milestone struct {
	MilestoneID         string
	ProjectID           string
	Title               string
	Description         string
	Amount              int64
	Currency            string
	Order               int
	Status              MilestoneStatus
	DeliverableTypes    []string
	PaymentID           string
	CurrentSubmissionID string
	DisputedFrom        MilestoneStatus
	Settlement          *Settlement
	Version             int64
	StartedAt           *time.Time
	CompletedAt         *time.Time
	PaidOutAt           *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (m Milestone) ValidateCreate() bool {
	return strings.TrimSpace(m.ProjectID) != "" &&
		strings.TrimSpace(m.Title) != "" &&
		m.Amount > 0 &&
		len(strings.TrimSpace(m.Currency)) == 3
}

func (m Milestone) IsPaidOut() bool {
	return m.PaidOutAt != nil
}

func (m Milestone) Settling() bool {
	return m.Settlement != nil
}

// Next returns a copy prepared for a conditional write at the following version.
func (m Milestone) Next(now time.Time) Milestone {
	next := m
	next.DeliverableTypes = append([]string(nil), m.DeliverableTypes...)
	if m.Settlement != nil {
		settlement := *m.Settlement
		next.Settlement = &settlement
	}
	next.Version = m.Version + 1
	next.UpdatedAt = now
	return next
}

type SettlementKind string

const (
	SettlementRelease    SettlementKind = "release"
	SettlementResolution SettlementKind = "resolution"
)

// Settlement is a claim on the milestone's escrowed funds, committed before
// any money moves and cleared by the commit that records the outcome. While
// it is set, the milestone rejects every transition that could spend the
// same funds differently.
type Settlement struct {
	Kind      SettlementKind
	PaymentID string
	DisputeID string
	Decision  DisputeDecision
	Amount    int64
	ClaimedAt time.Time
}

// Matches reports whether a retried resolution asks for exactly what was claimed.
func (s Settlement) Matches(kind SettlementKind, paymentID string, disputeID string, decision DisputeDecision, amount int64) bool {
	return s.Kind == kind &&
		s.PaymentID == paymentID &&
		s.DisputeID == disputeID &&
		s.Decision == decision &&
		s.Amount == amount
}
