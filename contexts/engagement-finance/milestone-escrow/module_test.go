package milestoneescrow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"milestonepay/contexts/engagement-finance/milestone-escrow/adapters/memory"
	application "milestonepay/contexts/engagement-finance/milestone-escrow/application"
	"milestonepay/contexts/engagement-finance/milestone-escrow/application/commands"
	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/entities"
	domainerrors "milestonepay/contexts/engagement-finance/milestone-escrow/domain/errors"
	"milestonepay/contexts/engagement-finance/milestone-escrow/ports"
)

var (
	employer   = entities.Caller{UserID: "employer-1", Role: entities.RoleEmployer, Email: "boss@example.com", Name: "Boss"}
	freelancer = entities.Caller{UserID: "freelancer-1", Role: entities.RoleFreelancer}
	admin      = entities.Caller{UserID: "admin-1", Role: entities.RoleAdmin}
)

func testSeed() memory.Seed {
	return memory.Seed{
		Projects: []entities.Project{{
			ProjectID:    "project-1",
			Title:        "Logo refresh",
			Description:  "New logo for a coffee brand",
			EmployerID:   employer.UserID,
			FreelancerID: freelancer.UserID,
			Currency:     "usd",
			Requirements: []string{"vector source", "dark and light variants"},
		}},
		Accounts: []entities.Account{
			{UserID: employer.UserID, Role: entities.RoleEmployer, Email: employer.Email, Name: employer.Name, Active: true},
			{UserID: freelancer.UserID, Role: entities.RoleFreelancer, PayoutDestination: "acct_freelancer_1", Active: true},
			{UserID: admin.UserID, Role: entities.RoleAdmin, Active: true},
		},
		Milestones: []entities.Milestone{{
			MilestoneID:      "milestone-1",
			ProjectID:        "project-1",
			Title:            "First concepts",
			Description:      "Three logo concepts",
			Amount:           1000,
			Currency:         "usd",
			Order:            1,
			DeliverableTypes: []string{"png"},
		}},
	}
}

func newTestModule() Module {
	return NewInMemoryModule(testSeed(), nil)
}

func fundMilestone(t *testing.T, module Module) entities.Payment {
	t.Helper()
	ctx := context.Background()
	payment, err := module.Handler.CreateEscrow.Execute(ctx, commands.CreateEscrowCommand{
		Caller:      employer,
		MilestoneID: "milestone-1",
	})
	if err != nil {
		t.Fatalf("create escrow: %v", err)
	}
	funded, err := module.Handler.ConfirmFunding.Execute(ctx, commands.ConfirmFundingCommand{
		Caller:    admin,
		PaymentID: payment.PaymentID,
	})
	if err != nil {
		t.Fatalf("confirm funding: %v", err)
	}
	return funded
}

func submitWork(t *testing.T, module Module) entities.Submission {
	t.Helper()
	submission, err := module.Handler.SubmitWork.Execute(context.Background(), commands.SubmitWorkCommand{
		Caller:      freelancer,
		MilestoneID: "milestone-1",
		Description: "Concepts attached",
		Attachments: []entities.Attachment{{Name: "concepts.png", URL: "memory://blobs/x/concepts.png", MIMEType: "image/png", Size: 42}},
	})
	if err != nil {
		t.Fatalf("submit work: %v", err)
	}
	return submission
}

func pendingEvents(t *testing.T, module Module, eventType string) []ports.EventEnvelope {
	t.Helper()
	rows, err := module.Store.ListPendingOutbox(context.Background(), 1000)
	if err != nil {
		t.Fatalf("list outbox: %v", err)
	}
	events := make([]ports.EventEnvelope, 0)
	for _, row := range rows {
		if row.EventType != eventType {
			continue
		}
		var event ports.EventEnvelope
		if err := json.Unmarshal(row.Payload, &event); err != nil {
			t.Fatalf("decode outbox payload: %v", err)
		}
		events = append(events, event)
	}
	return events
}

func verificationTask(t *testing.T, module Module) ports.EventEnvelope {
	t.Helper()
	tasks := pendingEvents(t, module, application.EventVerificationRequested)
	if len(tasks) == 0 {
		t.Fatalf("expected a verification task in the outbox")
	}
	return tasks[len(tasks)-1]
}

func getMilestone(t *testing.T, module Module) entities.Milestone {
	t.Helper()
	milestone, err := module.Store.GetMilestone(context.Background(), "milestone-1")
	if err != nil {
		t.Fatalf("get milestone: %v", err)
	}
	return milestone
}

func TestCreateEscrowTwiceConflicts(t *testing.T) {
	module := newTestModule()
	ctx := context.Background()

	first, err := module.Handler.CreateEscrow.Execute(ctx, commands.CreateEscrowCommand{Caller: employer, MilestoneID: "milestone-1"})
	if err != nil {
		t.Fatalf("first escrow: %v", err)
	}
	if first.Status != entities.PaymentStatusPending || first.ClientSecret == "" {
		t.Fatalf("expected pending payment with client secret, got %+v", first)
	}
	_, err = module.Handler.CreateEscrow.Execute(ctx, commands.CreateEscrowCommand{Caller: employer, MilestoneID: "milestone-1"})
	if !errors.Is(err, domainerrors.ErrConflict) {
		t.Fatalf("expected conflict on second escrow, got %v", err)
	}

	payments, err := module.Store.ListPaymentsByMilestone(ctx, "milestone-1")
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(payments) != 1 {
		t.Fatalf("expected exactly one payment, got %d", len(payments))
	}
	if milestone := getMilestone(t, module); milestone.Status != entities.MilestoneStatusInProgress || milestone.PaymentID != first.PaymentID {
		t.Fatalf("expected in-progress milestone pointing at payment, got %s %q", milestone.Status, milestone.PaymentID)
	}
}

func TestCreateEscrowReplaysIdempotencyKey(t *testing.T) {
	module := newTestModule()
	ctx := context.Background()
	cmd := commands.CreateEscrowCommand{IdempotencyKey: "escrow-key-1", Caller: employer, MilestoneID: "milestone-1"}

	first, err := module.Handler.CreateEscrow.Execute(ctx, cmd)
	if err != nil {
		t.Fatalf("first escrow: %v", err)
	}
	second, err := module.Handler.CreateEscrow.Execute(ctx, cmd)
	if err != nil {
		t.Fatalf("replayed escrow: %v", err)
	}
	if first.PaymentID != second.PaymentID {
		t.Fatalf("expected replay to return the same payment, got %s and %s", first.PaymentID, second.PaymentID)
	}

	_, err = module.Handler.CreateEscrow.Execute(ctx, commands.CreateEscrowCommand{
		IdempotencyKey: "escrow-key-1",
		Caller:         admin,
		MilestoneID:    "milestone-1",
	})
	if !errors.Is(err, domainerrors.ErrIdempotencyKeyConflict) {
		t.Fatalf("expected key conflict for a different request, got %v", err)
	}
}

func TestCreateEscrowRejectsNonOwner(t *testing.T) {
	module := newTestModule()
	_, err := module.Handler.CreateEscrow.Execute(context.Background(), commands.CreateEscrowCommand{Caller: freelancer, MilestoneID: "milestone-1"})
	if !errors.Is(err, domainerrors.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestConcurrentEscrowCreatesOnePayment(t *testing.T) {
	module := newTestModule()
	ctx := context.Background()

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := module.Handler.CreateEscrow.Execute(ctx, commands.CreateEscrowCommand{Caller: employer, MilestoneID: "milestone-1"})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, domainerrors.ErrConflict) {
				t.Errorf("expected conflict for losing request, got %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Fatalf("expected exactly one successful escrow, got %d", succeeded)
	}
	payments, err := module.Store.ListPaymentsByMilestone(ctx, "milestone-1")
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(payments) != 1 {
		t.Fatalf("expected one payment, got %d", len(payments))
	}
}

func TestSubmitWorkRequiresInProgressMilestone(t *testing.T) {
	module := newTestModule()
	_, err := module.Handler.SubmitWork.Execute(context.Background(), commands.SubmitWorkCommand{
		Caller:      freelancer,
		MilestoneID: "milestone-1",
		Description: "too early",
	})
	if !errors.Is(err, domainerrors.ErrMilestoneNotInProgress) {
		t.Fatalf("expected not in-progress conflict, got %v", err)
	}
}

func TestVerificationBelowThresholdEscalates(t *testing.T) {
	module := newTestModule()
	ctx := context.Background()
	fundMilestone(t, module)
	submission := submitWork(t, module)

	module.Verifier.Respond(entities.VerificationResult{Status: entities.VerificationApproved, Confidence: 0.84})
	if err := module.Verification.Handle(ctx, verificationTask(t, module)); err != nil {
		t.Fatalf("handle verification: %v", err)
	}

	if milestone := getMilestone(t, module); milestone.Status != entities.MilestoneStatusUnderReview {
		t.Fatalf("expected milestone to stay under-review, got %s", milestone.Status)
	}
	stored, err := module.Store.GetSubmission(ctx, submission.SubmissionID)
	if err != nil {
		t.Fatalf("get submission: %v", err)
	}
	if stored.Status != entities.SubmissionStatusPending {
		t.Fatalf("expected submission to stay pending, got %s", stored.Status)
	}
	if stored.AIVerification == nil || !stored.AIVerification.EscalatedToManual {
		t.Fatalf("expected escalated verification record, got %+v", stored.AIVerification)
	}

	// Manual review still works after escalation.
	result, err := module.Handler.ReviewSubmission.Execute(ctx, commands.ReviewSubmissionCommand{
		Caller:       employer,
		MilestoneID:  "milestone-1",
		SubmissionID: submission.SubmissionID,
		Decision:     entities.ReviewApproved,
	})
	if err != nil {
		t.Fatalf("manual review: %v", err)
	}
	if result.Milestone.Status != entities.MilestoneStatusCompleted {
		t.Fatalf("expected completed milestone, got %s", result.Milestone.Status)
	}
}

func TestVerificationAppliesOnceForDuplicateDelivery(t *testing.T) {
	module := newTestModule()
	ctx := context.Background()
	fundMilestone(t, module)
	submitWork(t, module)

	module.Verifier.Respond(entities.VerificationResult{Status: entities.VerificationApproved, Confidence: 0.90})
	task := verificationTask(t, module)
	for i := 0; i < 2; i++ {
		if err := module.Verification.Handle(ctx, task); err != nil {
			t.Fatalf("delivery %d: %v", i+1, err)
		}
	}

	if milestone := getMilestone(t, module); milestone.Status != entities.MilestoneStatusCompleted {
		t.Fatalf("expected auto-approved milestone, got %s", milestone.Status)
	}
	project, err := module.Store.GetProject(ctx, "project-1")
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if project.CompletedMilestones != 1 {
		t.Fatalf("expected one completed milestone, got %d", project.CompletedMilestones)
	}
	if calls := module.Verifier.Calls(); calls != 1 {
		t.Fatalf("expected a single verifier call, got %d", calls)
	}
}

func TestVerificationDiscardedAfterManualReview(t *testing.T) {
	module := newTestModule()
	ctx := context.Background()
	fundMilestone(t, module)
	submission := submitWork(t, module)

	if _, err := module.Handler.ReviewSubmission.Execute(ctx, commands.ReviewSubmissionCommand{
		Caller:       employer,
		MilestoneID:  "milestone-1",
		SubmissionID: submission.SubmissionID,
		Decision:     entities.ReviewRejected,
		Feedback:     "colors are off",
	}); err != nil {
		t.Fatalf("manual review: %v", err)
	}

	module.Verifier.Respond(entities.VerificationResult{Status: entities.VerificationApproved, Confidence: 0.99})
	if err := module.Verification.Handle(ctx, verificationTask(t, module)); err != nil {
		t.Fatalf("handle verification: %v", err)
	}
	if milestone := getMilestone(t, module); milestone.Status != entities.MilestoneStatusInProgress {
		t.Fatalf("expected stale verification to be discarded, got %s", milestone.Status)
	}
	if calls := module.Verifier.Calls(); calls != 0 {
		t.Fatalf("expected verifier not to be called for a stale task, got %d", calls)
	}
}

func TestVerifierFailureEscalatesToManualReview(t *testing.T) {
	module := newTestModule()
	ctx := context.Background()
	fundMilestone(t, module)
	submission := submitWork(t, module)

	module.Verifier.Fail(fmt.Errorf("model unavailable"))
	if err := module.Verification.Handle(ctx, verificationTask(t, module)); err != nil {
		t.Fatalf("handle verification: %v", err)
	}
	stored, err := module.Store.GetSubmission(ctx, submission.SubmissionID)
	if err != nil {
		t.Fatalf("get submission: %v", err)
	}
	if stored.AIVerification == nil || stored.AIVerification.Result != entities.VerificationError {
		t.Fatalf("expected error verification record, got %+v", stored.AIVerification)
	}
	if milestone := getMilestone(t, module); milestone.Status != entities.MilestoneStatusUnderReview {
		t.Fatalf("expected milestone to stay under-review, got %s", milestone.Status)
	}
}

func TestEndToEndReleaseCreditsWallet(t *testing.T) {
	module := newTestModule()
	ctx := context.Background()
	fundMilestone(t, module)
	submitWork(t, module)

	module.Verifier.Respond(entities.VerificationResult{Status: entities.VerificationApproved, Confidence: 0.92})
	if err := module.Verification.Handle(ctx, verificationTask(t, module)); err != nil {
		t.Fatalf("handle verification: %v", err)
	}

	released, err := module.Handler.ReleasePayment.Execute(ctx, commands.ReleasePaymentCommand{Caller: employer, MilestoneID: "milestone-1"})
	if err != nil {
		t.Fatalf("release payment: %v", err)
	}
	if released.Status != entities.PaymentStatusCompleted || released.PlatformFee != 100 || released.NetAmount != 900 {
		t.Fatalf("expected completed payment with fee 100 and net 900, got %+v", released)
	}
	transfers := module.Funds.Transfers()
	if len(transfers) != 1 || transfers[0].Amount != 900 || transfers[0].Destination != "acct_freelancer_1" {
		t.Fatalf("expected one transfer of 900, got %+v", transfers)
	}

	balances, err := module.Handler.Ledger.GetWallet(ctx, freelancer)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if len(balances) != 1 || balances[0].Balance != 900 || balances[0].Currency != "usd" {
		t.Fatalf("expected wallet balance 900 usd, got %+v", balances)
	}

	_, err = module.Handler.ReleasePayment.Execute(ctx, commands.ReleasePaymentCommand{Caller: employer, MilestoneID: "milestone-1"})
	if !errors.Is(err, domainerrors.ErrMilestonePaidOut) {
		t.Fatalf("expected second release to conflict, got %v", err)
	}
	if len(module.Funds.Transfers()) != 1 {
		t.Fatalf("expected no second transfer")
	}
}

func TestUncertainVerificationThenManualReviewCycle(t *testing.T) {
	module := newTestModule()
	ctx := context.Background()
	fundMilestone(t, module)
	first := submitWork(t, module)

	module.Verifier.Respond(entities.VerificationResult{Status: entities.VerificationUncertain, Confidence: 0.4})
	if err := module.Verification.Handle(ctx, verificationTask(t, module)); err != nil {
		t.Fatalf("handle verification: %v", err)
	}
	rejected, err := module.Handler.ReviewSubmission.Execute(ctx, commands.ReviewSubmissionCommand{
		Caller:       employer,
		MilestoneID:  "milestone-1",
		SubmissionID: first.SubmissionID,
		Decision:     entities.ReviewRejected,
		Feedback:     "needs a dark variant",
	})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Milestone.Status != entities.MilestoneStatusInProgress {
		t.Fatalf("expected in-progress after rejection, got %s", rejected.Milestone.Status)
	}

	_, err = module.Handler.ReviewSubmission.Execute(ctx, commands.ReviewSubmissionCommand{
		Caller:       employer,
		MilestoneID:  "milestone-1",
		SubmissionID: first.SubmissionID,
		Decision:     entities.ReviewApproved,
	})
	if !errors.Is(err, domainerrors.ErrConflict) {
		t.Fatalf("expected reviewed submission to be immutable, got %v", err)
	}

	second := submitWork(t, module)
	approved, err := module.Handler.ReviewSubmission.Execute(ctx, commands.ReviewSubmissionCommand{
		Caller:       employer,
		MilestoneID:  "milestone-1",
		SubmissionID: second.SubmissionID,
		Decision:     entities.ReviewApproved,
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Milestone.Status != entities.MilestoneStatusCompleted {
		t.Fatalf("expected completed milestone, got %s", approved.Milestone.Status)
	}
	project, err := module.Store.GetProject(ctx, "project-1")
	if err != nil {
		t.Fatalf("get project: %v", err)
	}
	if project.CompletedMilestones != 1 {
		t.Fatalf("expected one completed milestone, got %d", project.CompletedMilestones)
	}
}

func TestReleaseRequiresCompletedMilestone(t *testing.T) {
	module := newTestModule()
	fundMilestone(t, module)
	_, err := module.Handler.ReleasePayment.Execute(context.Background(), commands.ReleasePaymentCommand{Caller: employer, MilestoneID: "milestone-1"})
	if !errors.Is(err, domainerrors.ErrMilestoneNotCompleted) {
		t.Fatalf("expected not completed conflict, got %v", err)
	}
}

func TestOpenDisputeFreezesMilestone(t *testing.T) {
	module := newTestModule()
	ctx := context.Background()
	payment := fundMilestone(t, module)

	dispute, err := module.Handler.OpenDispute.Execute(ctx, commands.OpenDisputeCommand{
		Caller:      freelancer,
		MilestoneID: "milestone-1",
		Reason:      "scope change",
		Description: "The employer keeps adding requirements.",
	})
	if err != nil {
		t.Fatalf("open dispute: %v", err)
	}
	if dispute.AssignedAdminID != admin.UserID || dispute.PaymentID != payment.PaymentID {
		t.Fatalf("expected dispute assigned to admin and tied to payment, got %+v", dispute)
	}
	if len(dispute.Conversation) != 1 {
		t.Fatalf("expected opening message in conversation, got %d", len(dispute.Conversation))
	}

	_, err = module.Handler.OpenDispute.Execute(ctx, commands.OpenDisputeCommand{
		Caller:      employer,
		MilestoneID: "milestone-1",
		Reason:      "quality",
		Description: "The work does not match the brief.",
	})
	if !errors.Is(err, domainerrors.ErrConflict) {
		t.Fatalf("expected conflict for second dispute, got %v", err)
	}

	_, err = module.Handler.SubmitWork.Execute(ctx, commands.SubmitWorkCommand{
		Caller:      freelancer,
		MilestoneID: "milestone-1",
		Description: "sneaking in a submission",
	})
	if !errors.Is(err, domainerrors.ErrMilestoneDisputed) {
		t.Fatalf("expected disputed conflict on submit, got %v", err)
	}
}

func TestOpenDisputeRejectsShortDescription(t *testing.T) {
	module := newTestModule()
	_, err := module.Handler.OpenDispute.Execute(context.Background(), commands.OpenDisputeCommand{
		Caller:      employer,
		MilestoneID: "milestone-1",
		Reason:      "quality",
		Description: "bad",
	})
	if !errors.Is(err, domainerrors.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func openDispute(t *testing.T, module Module) entities.Dispute {
	t.Helper()
	dispute, err := module.Handler.OpenDispute.Execute(context.Background(), commands.OpenDisputeCommand{
		Caller:      employer,
		MilestoneID: "milestone-1",
		Reason:      "quality",
		Description: "The work does not match the brief.",
	})
	if err != nil {
		t.Fatalf("open dispute: %v", err)
	}
	return dispute
}

func TestResolvePartialSplitsFunds(t *testing.T) {
	module := newTestModule()
	ctx := context.Background()
	fundMilestone(t, module)
	dispute := openDispute(t, module)

	result, err := module.Handler.ResolveDispute.Execute(ctx, commands.ResolveDisputeCommand{
		Caller:    admin,
		DisputeID: dispute.DisputeID,
		Decision:  entities.DecisionPartial,
		Amount:    600,
	})
	if err != nil {
		t.Fatalf("resolve dispute: %v", err)
	}
	if result.Payment.Status != entities.PaymentStatusCompleted || result.Payment.NetAmount != 540 || result.Payment.PlatformFee != 60 {
		t.Fatalf("expected completed payment with net 540 and fee 60, got %+v", result.Payment)
	}
	if result.Dispute.Status != entities.DisputeStatusResolved || result.Dispute.Outcome == nil || result.Dispute.Outcome.Reason != entities.DefaultResolutionReason {
		t.Fatalf("unexpected resolved dispute: %+v", result.Dispute)
	}
	if result.Milestone.Status != entities.MilestoneStatusCompleted || !result.Milestone.IsPaidOut() {
		t.Fatalf("expected completed paid-out milestone, got %+v", result.Milestone)
	}
	refunds := module.Funds.Refunds()
	if len(refunds) != 1 || refunds[0].Amount != 400 {
		t.Fatalf("expected refund of the 400 remainder, got %+v", refunds)
	}
	balances, err := module.Handler.Ledger.GetWallet(ctx, freelancer)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if len(balances) != 1 || balances[0].Balance != 540 {
		t.Fatalf("expected wallet balance 540, got %+v", balances)
	}
}

func TestResolvePartialRejectsAmountAboveMilestone(t *testing.T) {
	module := newTestModule()
	fundMilestone(t, module)
	dispute := openDispute(t, module)

	_, err := module.Handler.ResolveDispute.Execute(context.Background(), commands.ResolveDisputeCommand{
		Caller:    admin,
		DisputeID: dispute.DisputeID,
		Decision:  entities.DecisionPartial,
		Amount:    1001,
	})
	if !errors.Is(err, domainerrors.ErrPartialAmountOutOfRange) {
		t.Fatalf("expected amount out of range, got %v", err)
	}
}

func TestResolveForEmployerRefunds(t *testing.T) {
	module := newTestModule()
	ctx := context.Background()
	fundMilestone(t, module)
	dispute := openDispute(t, module)

	result, err := module.Handler.ResolveDispute.Execute(ctx, commands.ResolveDisputeCommand{
		Caller:    admin,
		DisputeID: dispute.DisputeID,
		Decision:  entities.DecisionFullEmployer,
		Reason:    "deliverable never arrived",
	})
	if err != nil {
		t.Fatalf("resolve dispute: %v", err)
	}
	if result.Payment.Status != entities.PaymentStatusRefunded || result.Payment.RefundID == "" {
		t.Fatalf("expected refunded payment, got %+v", result.Payment)
	}
	if result.Milestone.Status != entities.MilestoneStatusInProgress || result.Milestone.IsPaidOut() {
		t.Fatalf("expected milestone back in progress, got %+v", result.Milestone)
	}

	// A refunded payment no longer blocks a new escrow.
	if _, err := module.Handler.CreateEscrow.Execute(ctx, commands.CreateEscrowCommand{Caller: employer, MilestoneID: "milestone-1"}); err != nil {
		t.Fatalf("expected new escrow after refund, got %v", err)
	}
}

func TestCloseDisputeRestoresMilestone(t *testing.T) {
	module := newTestModule()
	ctx := context.Background()
	fundMilestone(t, module)
	dispute := openDispute(t, module)

	_, err := module.Handler.CloseDispute.Execute(ctx, commands.CloseDisputeCommand{Caller: freelancer, DisputeID: dispute.DisputeID})
	if !errors.Is(err, domainerrors.ErrForbidden) {
		t.Fatalf("expected non-raiser to be forbidden, got %v", err)
	}
	result, err := module.Handler.CloseDispute.Execute(ctx, commands.CloseDisputeCommand{Caller: employer, DisputeID: dispute.DisputeID})
	if err != nil {
		t.Fatalf("close dispute: %v", err)
	}
	if result.Dispute.Status != entities.DisputeStatusClosed {
		t.Fatalf("expected closed dispute, got %s", result.Dispute.Status)
	}
	if result.Milestone.Status != entities.MilestoneStatusInProgress {
		t.Fatalf("expected milestone restored to in-progress, got %s", result.Milestone.Status)
	}
}

func TestDisputeConversationAppends(t *testing.T) {
	module := newTestModule()
	ctx := context.Background()
	fundMilestone(t, module)
	dispute := openDispute(t, module)

	updated, err := module.Handler.AddDisputeMessage.Execute(ctx, commands.AddDisputeMessageCommand{
		Caller:    freelancer,
		DisputeID: dispute.DisputeID,
		Message:   "I delivered what was agreed.",
	})
	if err != nil {
		t.Fatalf("add message: %v", err)
	}
	if len(updated.Conversation) != 2 || updated.Conversation[1].Sequence != 2 {
		t.Fatalf("expected second message with sequence 2, got %+v", updated.Conversation)
	}

	_, err = module.Handler.AddDisputeMessage.Execute(ctx, commands.AddDisputeMessageCommand{
		Caller:    entities.Caller{UserID: "outsider", Role: entities.RoleFreelancer},
		DisputeID: dispute.DisputeID,
		Message:   "hello",
	})
	if !errors.Is(err, domainerrors.ErrForbidden) {
		t.Fatalf("expected outsider to be forbidden, got %v", err)
	}
}
