package services

import (
	"errors"
	"math"
	"testing"
	"time"

	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/entities"
	domainerrors "milestonepay/contexts/engagement-finance/milestone-escrow/domain/errors"
)

func TestFeePolicySplit(t *testing.T) {
	policy := DefaultFeePolicy()

	fee, net := policy.Split(1000, false)
	if fee != 100 || net != 900 {
		t.Fatalf("expected fee 100 and net 900, got %d and %d", fee, net)
	}
	fee, net = policy.Split(1005, false)
	if fee+net != 1005 {
		t.Fatalf("expected fee and net to add up to the amount, got %d + %d", fee, net)
	}
	if fee, net = policy.Split(0, false); fee != 0 || net != 0 {
		t.Fatalf("expected zero split for zero amount, got %d and %d", fee, net)
	}

	noPartialFee := FeePolicy{Rate: 0.10, ApplyToPartial: false}
	if fee, net = noPartialFee.Split(500, true); fee != 0 || net != 500 {
		t.Fatalf("expected partial payout without fee, got %d and %d", fee, net)
	}

	broken := FeePolicy{Rate: 1.5}
	if fee, _ = broken.Split(1000, false); fee != 100 {
		t.Fatalf("expected out-of-range rate to fall back to default, got fee %d", fee)
	}
}

func TestDecideVerificationThreshold(t *testing.T) {
	cases := []struct {
		name   string
		result entities.VerificationResult
		want   VerificationOutcome
	}{
		{"approved below threshold", entities.VerificationResult{Status: entities.VerificationApproved, Confidence: 0.84}, OutcomeEscalate},
		{"approved at threshold", entities.VerificationResult{Status: entities.VerificationApproved, Confidence: 0.85}, OutcomeAutoApprove},
		{"approved above threshold", entities.VerificationResult{Status: entities.VerificationApproved, Confidence: 0.90}, OutcomeAutoApprove},
		{"rejected above threshold", entities.VerificationResult{Status: entities.VerificationRejected, Confidence: 0.95}, OutcomeAutoReject},
		{"uncertain is never automatic", entities.VerificationResult{Status: entities.VerificationUncertain, Confidence: 1}, OutcomeEscalate},
		{"error is never automatic", entities.VerificationResult{Status: entities.VerificationError, Confidence: 1}, OutcomeEscalate},
	}
	for _, tc := range cases {
		if got := DecideVerification(tc.result, DefaultAutoVerifyThreshold); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestNormalizeResult(t *testing.T) {
	got := NormalizeResult(entities.VerificationResult{Status: "Approved ", Confidence: 1.7})
	if got.Status != entities.VerificationApproved || got.Confidence != 1 {
		t.Fatalf("expected approved with confidence 1, got %s %v", got.Status, got.Confidence)
	}
	got = NormalizeResult(entities.VerificationResult{Status: "maybe", Confidence: -2})
	if got.Status != entities.VerificationUncertain || got.Confidence != 0 {
		t.Fatalf("expected uncertain with confidence 0, got %s %v", got.Status, got.Confidence)
	}
}

func TestNaNConfidenceNeverActsAutomatically(t *testing.T) {
	got := NormalizeResult(entities.VerificationResult{Status: entities.VerificationApproved, Confidence: math.NaN()})
	if got.Confidence != 0 {
		t.Fatalf("expected NaN confidence clamped to 0, got %v", got.Confidence)
	}
	if outcome := DecideVerification(got, DefaultAutoVerifyThreshold); outcome != OutcomeEscalate {
		t.Fatalf("expected manual review for NaN confidence, got %s", outcome)
	}
	raw := entities.VerificationResult{Status: entities.VerificationRejected, Confidence: math.NaN()}
	if outcome := DecideVerification(raw, DefaultAutoVerifyThreshold); outcome != OutcomeEscalate {
		t.Fatalf("expected unnormalized NaN to escalate, got %s", outcome)
	}
}

func TestTransitionHappyPath(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m := entities.Milestone{MilestoneID: "m-1", Status: entities.MilestoneStatusPending, Version: 1}

	funded, err := Transition(m, EventFunded, now)
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if funded.Status != entities.MilestoneStatusInProgress || funded.Version != 2 || funded.StartedAt == nil {
		t.Fatalf("unexpected funded milestone: %+v", funded)
	}
	submitted, err := Transition(funded, EventSubmitted, now)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if submitted.Status != entities.MilestoneStatusUnderReview {
		t.Fatalf("expected under-review, got %s", submitted.Status)
	}
	approved, err := Transition(submitted, EventApproved, now)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != entities.MilestoneStatusCompleted || approved.CompletedAt == nil {
		t.Fatalf("unexpected approved milestone: %+v", approved)
	}
	if delta := CompletionDelta(submitted, approved); delta != 1 {
		t.Fatalf("expected completion delta 1, got %d", delta)
	}
}

func TestTransitionGuards(t *testing.T) {
	now := time.Now().UTC()

	pending := entities.Milestone{Status: entities.MilestoneStatusPending, Version: 1}
	if _, err := Transition(pending, EventSubmitted, now); !errors.Is(err, domainerrors.ErrMilestoneNotInProgress) {
		t.Fatalf("expected not in-progress conflict, got %v", err)
	}

	disputed := entities.Milestone{Status: entities.MilestoneStatusDisputed, DisputedFrom: entities.MilestoneStatusUnderReview, Version: 3}
	if _, err := Transition(disputed, EventSubmitted, now); !errors.Is(err, domainerrors.ErrMilestoneDisputed) {
		t.Fatalf("expected disputed conflict, got %v", err)
	}
	if _, err := Transition(disputed, EventDisputeOpened, now); !errors.Is(err, domainerrors.ErrActiveDisputeExists) {
		t.Fatalf("expected active dispute conflict, got %v", err)
	}
	if _, err := Transition(disputed, EventFunded, now); !errors.Is(err, domainerrors.ErrConflict) {
		t.Fatalf("expected conflict when funding a disputed milestone, got %v", err)
	}

	paid := entities.Milestone{Status: entities.MilestoneStatusCompleted, PaidOutAt: &now, Version: 5}
	if _, err := Transition(paid, EventDisputeOpened, now); !errors.Is(err, domainerrors.ErrMilestonePaidOut) {
		t.Fatalf("expected paid-out conflict, got %v", err)
	}
}

func TestTransitionDisputeWithdrawalRestoresStatus(t *testing.T) {
	now := time.Now().UTC()
	underReview := entities.Milestone{Status: entities.MilestoneStatusUnderReview, CurrentSubmissionID: "s-1", Version: 4}

	disputed, err := Transition(underReview, EventDisputeOpened, now)
	if err != nil {
		t.Fatalf("open dispute: %v", err)
	}
	if disputed.DisputedFrom != entities.MilestoneStatusUnderReview {
		t.Fatalf("expected disputed-from under-review, got %s", disputed.DisputedFrom)
	}
	withdrawn, err := Transition(disputed, EventDisputeWithdrawn, now)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if withdrawn.Status != entities.MilestoneStatusUnderReview || withdrawn.CurrentSubmissionID != "s-1" {
		t.Fatalf("expected under-review with submission pointer, got %s %q", withdrawn.Status, withdrawn.CurrentSubmissionID)
	}

	employer, err := Transition(disputed, EventResolvedEmployer, now)
	if err != nil {
		t.Fatalf("resolve for employer: %v", err)
	}
	if employer.Status != entities.MilestoneStatusInProgress || employer.CurrentSubmissionID != "" {
		t.Fatalf("expected in-progress without submission, got %s %q", employer.Status, employer.CurrentSubmissionID)
	}
}

func TestCompletionDeltaIgnoresDisputeOfCompletedMilestone(t *testing.T) {
	now := time.Now().UTC()
	completed := entities.Milestone{Status: entities.MilestoneStatusCompleted, Version: 2}
	disputed, err := Transition(completed, EventDisputeOpened, now)
	if err != nil {
		t.Fatalf("open dispute: %v", err)
	}
	if delta := CompletionDelta(completed, disputed); delta != 0 {
		t.Fatalf("expected no delta on dispute, got %d", delta)
	}
	resolved, err := Transition(disputed, EventResolvedEmployer, now)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if delta := CompletionDelta(disputed, resolved); delta != -1 {
		t.Fatalf("expected delta -1 when employer wins, got %d", delta)
	}
}

func TestAdminAssigners(t *testing.T) {
	loads := []AdminLoad{{AdminID: "admin-b", ActiveDisputes: 1}, {AdminID: "admin-a", ActiveDisputes: 3}, {AdminID: "admin-c", ActiveDisputes: 1}}

	if got, _ := NewAdminAssigner(AssignmentLeastLoaded).Assign(loads); got != "admin-b" {
		t.Fatalf("least-loaded: expected admin-b, got %s", got)
	}
	if got, _ := NewAdminAssigner(AssignmentFirstAvailable).Assign(loads); got != "admin-a" {
		t.Fatalf("first-available: expected admin-a, got %s", got)
	}
	rr := NewAdminAssigner(AssignmentRoundRobin)
	first, _ := rr.Assign(loads)
	second, _ := rr.Assign(loads)
	if first != "admin-a" || second != "admin-b" {
		t.Fatalf("round-robin: expected admin-a then admin-b, got %s then %s", first, second)
	}
	if _, ok := (LeastLoadedAssigner{}).Assign(nil); ok {
		t.Fatalf("expected no assignment without candidates")
	}
}

func TestAccessPolicy(t *testing.T) {
	project := entities.Project{ProjectID: "p-1", EmployerID: "emp", FreelancerID: "free"}
	employer := entities.Caller{UserID: "emp", Role: entities.RoleEmployer}
	freelancer := entities.Caller{UserID: "free", Role: entities.RoleFreelancer}
	stranger := entities.Caller{UserID: "x", Role: entities.RoleEmployer}
	admin := entities.Caller{UserID: "root", Role: entities.RoleAdmin}

	if err := RequireOwner(employer, project); err != nil {
		t.Fatalf("employer should own project: %v", err)
	}
	if err := RequireOwner(freelancer, project); !errors.Is(err, domainerrors.ErrForbidden) {
		t.Fatalf("expected forbidden for freelancer, got %v", err)
	}
	if err := RequireAssignedFreelancer(admin, project, false); !errors.Is(err, domainerrors.ErrNotAssignedFreelancer) {
		t.Fatalf("expected admin rejected without allowAdmin, got %v", err)
	}
	if err := RequireParticipant(stranger, project); !errors.Is(err, domainerrors.ErrNotProjectParticipant) {
		t.Fatalf("expected stranger rejected, got %v", err)
	}
	if err := RequireAdmin(entities.Caller{}); !errors.Is(err, domainerrors.ErrInvalidCaller) {
		t.Fatalf("expected invalid caller, got %v", err)
	}
}

func TestTransitionHonorsSettlementClaim(t *testing.T) {
	now := time.Now().UTC()
	releasing := entities.Milestone{
		Status:     entities.MilestoneStatusCompleted,
		Settlement: &entities.Settlement{Kind: entities.SettlementRelease, PaymentID: "p-1", Amount: 1000},
		Version:    6,
	}
	for _, event := range []MilestoneEvent{EventDisputeOpened, EventFunded, EventResolvedEmployer} {
		if _, err := Transition(releasing, event, now); !errors.Is(err, domainerrors.ErrSettlementInProgress) {
			t.Fatalf("%s: expected settlement in progress, got %v", event, err)
		}
	}

	resolving := entities.Milestone{
		Status:       entities.MilestoneStatusDisputed,
		DisputedFrom: entities.MilestoneStatusUnderReview,
		Settlement: &entities.Settlement{
			Kind:      entities.SettlementResolution,
			PaymentID: "p-1",
			DisputeID: "d-1",
			Decision:  entities.DecisionPartial,
			Amount:    400,
		},
		Version: 8,
	}
	if _, err := Transition(resolving, EventDisputeWithdrawn, now); !errors.Is(err, domainerrors.ErrSettlementInProgress) {
		t.Fatalf("expected withdrawal blocked by resolution claim, got %v", err)
	}
	resolved, err := Transition(resolving, EventResolvedFreelancer, now)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Settlement != nil || resolved.Status != entities.MilestoneStatusCompleted || resolved.Version != 9 {
		t.Fatalf("expected claim cleared on resolution, got %+v", resolved)
	}
	if resolving.Settlement == nil {
		t.Fatal("expected source milestone untouched")
	}
}
