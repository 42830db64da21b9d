package milestoneescrow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"milestonepay/contexts/engagement-finance/milestone-escrow/adapters/memory"
	application "milestonepay/contexts/engagement-finance/milestone-escrow/application"
	"milestonepay/contexts/engagement-finance/milestone-escrow/application/commands"
	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/entities"
	domainerrors "milestonepay/contexts/engagement-finance/milestone-escrow/domain/errors"
	"milestonepay/contexts/engagement-finance/milestone-escrow/ports"
)

// failingWriter passes commits through until armed, then lets skip more
// commits succeed and fails the next one like a dropped database connection.
type failingWriter struct {
	ports.AggregateWriter
	armed atomic.Bool
	skip  atomic.Int32
}

func (w *failingWriter) arm(skip int32) {
	w.skip.Store(skip)
	w.armed.Store(true)
}

func (w *failingWriter) Commit(ctx context.Context, mutation ports.Mutation) error {
	if w.armed.Load() && w.skip.Add(-1) < 0 {
		w.armed.Store(false)
		return errors.New("write tcp 10.0.0.4:5432: connection reset by peer")
	}
	return w.AggregateWriter.Commit(ctx, mutation)
}

func TestVerificationRedeliveredAfterCommitFailureIsApplied(t *testing.T) {
	store := memory.NewStore(testSeed())
	writer := &failingWriter{AggregateWriter: store}
	module := newWiredModule(store, func(deps *Dependencies) { deps.Writer = writer })
	ctx := context.Background()
	fundMilestone(t, module)
	submission := submitWork(t, module)

	module.Verifier.Respond(entities.VerificationResult{Status: entities.VerificationUncertain, Confidence: 0.4})
	task := verificationTask(t, module)

	writer.arm(0)
	if err := module.Verification.Handle(ctx, task); err == nil {
		t.Fatal("expected the first delivery to fail")
	}
	stored, err := store.GetSubmission(ctx, submission.SubmissionID)
	if err != nil {
		t.Fatalf("get submission: %v", err)
	}
	if stored.AIVerification != nil {
		t.Fatalf("expected no annotation after the failed commit, got %+v", stored.AIVerification)
	}

	if err := module.Verification.Handle(ctx, task); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	stored, err = store.GetSubmission(ctx, submission.SubmissionID)
	if err != nil {
		t.Fatalf("get submission: %v", err)
	}
	if stored.AIVerification == nil || stored.AIVerification.Result != entities.VerificationUncertain || !stored.AIVerification.EscalatedToManual {
		t.Fatalf("expected escalated annotation after redelivery, got %+v", stored.AIVerification)
	}
	if calls := module.Verifier.Calls(); calls != 2 {
		t.Fatalf("expected the verifier to run again on redelivery, got %d calls", calls)
	}

	if err := module.Verification.Handle(ctx, task); err != nil {
		t.Fatalf("third delivery: %v", err)
	}
	if calls := module.Verifier.Calls(); calls != 2 {
		t.Fatalf("expected the applied task to stay deduplicated, got %d calls", calls)
	}
}

func TestVerificationDiscardedAfterDisputeOpened(t *testing.T) {
	module := newTestModule()
	ctx := context.Background()
	fundMilestone(t, module)
	submission := submitWork(t, module)
	task := verificationTask(t, module)
	openDispute(t, module)
	before := getMilestone(t, module)

	module.Verifier.Respond(entities.VerificationResult{Status: entities.VerificationApproved, Confidence: 0.99})
	if err := module.Verification.Handle(ctx, task); err != nil {
		t.Fatalf("handle verification: %v", err)
	}

	after := getMilestone(t, module)
	if after.Status != entities.MilestoneStatusDisputed || after.Version != before.Version {
		t.Fatalf("expected disputed milestone untouched, got %s v%d", after.Status, after.Version)
	}
	stored, err := module.Store.GetSubmission(ctx, submission.SubmissionID)
	if err != nil {
		t.Fatalf("get submission: %v", err)
	}
	if stored.AIVerification != nil || stored.Status != entities.SubmissionStatusPending {
		t.Fatalf("expected submission left for the dispute, got %+v", stored)
	}
	if calls := module.Verifier.Calls(); calls != 0 {
		t.Fatalf("expected verifier skipped for a disputed milestone, got %d", calls)
	}
	if events := pendingEvents(t, module, application.EventSubmissionReviewed); len(events) != 0 {
		t.Fatalf("expected no review event, got %d", len(events))
	}
}

func TestSubmitAndOpenDisputeRaceSettlesConsistently(t *testing.T) {
	for i := 0; i < 50; i++ {
		module := newTestModule()
		ctx := context.Background()
		fundMilestone(t, module)

		var (
			wg         sync.WaitGroup
			start      = make(chan struct{})
			submitted  entities.Submission
			submitErr  error
			disputeErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			submitted, submitErr = module.Handler.SubmitWork.Execute(ctx, commands.SubmitWorkCommand{
				Caller:      freelancer,
				MilestoneID: "milestone-1",
				Description: "Concepts attached",
			})
		}()
		go func() {
			defer wg.Done()
			<-start
			_, disputeErr = module.Handler.OpenDispute.Execute(ctx, commands.OpenDisputeCommand{
				Caller:      employer,
				MilestoneID: "milestone-1",
				Reason:      "quality",
				Description: "The work does not match the brief.",
			})
		}()
		close(start)
		wg.Wait()

		if submitErr != nil && !errors.Is(submitErr, domainerrors.ErrConflict) {
			t.Fatalf("run %d: submit failed with a non-conflict error: %v", i, submitErr)
		}
		if disputeErr != nil && !errors.Is(disputeErr, domainerrors.ErrConflict) {
			t.Fatalf("run %d: dispute failed with a non-conflict error: %v", i, disputeErr)
		}
		if submitErr != nil && disputeErr != nil {
			t.Fatalf("run %d: expected at least one side to win, got %v and %v", i, submitErr, disputeErr)
		}

		milestone := getMilestone(t, module)
		submissions, err := module.Store.ListSubmissions(ctx, "milestone-1")
		if err != nil {
			t.Fatalf("list submissions: %v", err)
		}
		active, err := module.Store.ListDisputes(ctx, ports.DisputeFilter{Status: entities.DisputeStatusOpen})
		if err != nil {
			t.Fatalf("list disputes: %v", err)
		}

		switch {
		case submitErr == nil && disputeErr == nil:
			if milestone.Status != entities.MilestoneStatusDisputed || milestone.DisputedFrom != entities.MilestoneStatusUnderReview {
				t.Fatalf("run %d: expected dispute over the submission, got %s from %s", i, milestone.Status, milestone.DisputedFrom)
			}
			if milestone.CurrentSubmissionID != submitted.SubmissionID {
				t.Fatalf("run %d: expected submission pointer kept, got %q", i, milestone.CurrentSubmissionID)
			}
		case submitErr == nil:
			if milestone.Status != entities.MilestoneStatusUnderReview || len(active) != 0 {
				t.Fatalf("run %d: expected only the submission, got %s with %d disputes", i, milestone.Status, len(active))
			}
		default:
			if milestone.Status != entities.MilestoneStatusDisputed || milestone.DisputedFrom != entities.MilestoneStatusInProgress {
				t.Fatalf("run %d: expected only the dispute, got %s from %s", i, milestone.Status, milestone.DisputedFrom)
			}
			if len(submissions) != 0 || milestone.CurrentSubmissionID != "" {
				t.Fatalf("run %d: expected the losing submission to leave no trace, got %d", i, len(submissions))
			}
		}
		if disputeErr == nil && len(active) != 1 {
			t.Fatalf("run %d: expected exactly one open dispute, got %d", i, len(active))
		}
	}
}

// escrowOp is one step of a random lifecycle run. It returns the error the
// module reported, or nil when the step did not apply.
type escrowOp struct {
	name string
	run  func(ctx context.Context, module Module, rng *rand.Rand) error
}

func escrowOps() []escrowOp {
	return []escrowOp{
		{"create-escrow", func(ctx context.Context, module Module, _ *rand.Rand) error {
			_, err := module.Handler.CreateEscrow.Execute(ctx, commands.CreateEscrowCommand{Caller: employer, MilestoneID: "milestone-1"})
			return err
		}},
		{"confirm-funding", func(ctx context.Context, module Module, _ *rand.Rand) error {
			payments, err := module.Store.ListPaymentsByMilestone(ctx, "milestone-1")
			if err != nil {
				return err
			}
			for _, payment := range payments {
				if payment.Status == entities.PaymentStatusPending {
					_, err := module.Handler.ConfirmFunding.Execute(ctx, commands.ConfirmFundingCommand{Caller: admin, PaymentID: payment.PaymentID})
					return err
				}
			}
			return nil
		}},
		{"submit", func(ctx context.Context, module Module, _ *rand.Rand) error {
			_, err := module.Handler.SubmitWork.Execute(ctx, commands.SubmitWorkCommand{
				Caller:      freelancer,
				MilestoneID: "milestone-1",
				Description: "Another round of concepts",
			})
			return err
		}},
		{"verify", func(ctx context.Context, module Module, rng *rand.Rand) error {
			rows, err := module.Store.ListPendingOutbox(ctx, 0)
			if err != nil {
				return err
			}
			var task *ports.OutboxMessage
			for i := range rows {
				if rows[i].EventType == application.EventVerificationRequested {
					task = &rows[i]
				}
			}
			if task == nil {
				return nil
			}
			results := []entities.VerificationResult{
				{Status: entities.VerificationApproved, Confidence: 0.95},
				{Status: entities.VerificationRejected, Confidence: 0.95},
				{Status: entities.VerificationUncertain, Confidence: 0.5},
			}
			var event ports.EventEnvelope
			if err := json.Unmarshal(task.Payload, &event); err != nil {
				return err
			}
			module.Verifier.Respond(results[rng.Intn(len(results))])
			return module.Verification.Handle(ctx, event)
		}},
		{"review", func(ctx context.Context, module Module, rng *rand.Rand) error {
			submissions, err := module.Store.ListSubmissions(ctx, "milestone-1")
			if err != nil {
				return err
			}
			for _, submission := range submissions {
				if submission.Status != entities.SubmissionStatusPending {
					continue
				}
				decision := entities.ReviewApproved
				if rng.Intn(2) == 0 {
					decision = entities.ReviewRejected
				}
				_, err := module.Handler.ReviewSubmission.Execute(ctx, commands.ReviewSubmissionCommand{
					Caller:       employer,
					MilestoneID:  "milestone-1",
					SubmissionID: submission.SubmissionID,
					Decision:     decision,
					Feedback:     "reviewed",
				})
				return err
			}
			return nil
		}},
		{"open-dispute", func(ctx context.Context, module Module, rng *rand.Rand) error {
			caller := employer
			if rng.Intn(2) == 0 {
				caller = freelancer
			}
			_, err := module.Handler.OpenDispute.Execute(ctx, commands.OpenDisputeCommand{
				Caller:      caller,
				MilestoneID: "milestone-1",
				Reason:      "quality",
				Description: "We disagree about the deliverable.",
			})
			return err
		}},
		{"resolve", func(ctx context.Context, module Module, rng *rand.Rand) error {
			dispute, ok, err := activeDispute(ctx, module)
			if err != nil || !ok {
				return err
			}
			cmd := commands.ResolveDisputeCommand{Caller: admin, DisputeID: dispute.DisputeID}
			switch rng.Intn(3) {
			case 0:
				cmd.Decision = entities.DecisionFullEmployer
			case 1:
				cmd.Decision = entities.DecisionFullFreelancer
			default:
				cmd.Decision = entities.DecisionPartial
				cmd.Amount = rng.Int63n(1000) + 1
			}
			_, err = module.Handler.ResolveDispute.Execute(ctx, cmd)
			return err
		}},
		{"close-dispute", func(ctx context.Context, module Module, _ *rand.Rand) error {
			dispute, ok, err := activeDispute(ctx, module)
			if err != nil || !ok {
				return err
			}
			_, err = module.Handler.CloseDispute.Execute(ctx, commands.CloseDisputeCommand{
				Caller:    entities.Caller{UserID: dispute.RaisedBy, Role: roleOf(dispute.RaisedBy)},
				DisputeID: dispute.DisputeID,
			})
			return err
		}},
		{"release", func(ctx context.Context, module Module, _ *rand.Rand) error {
			_, err := module.Handler.ReleasePayment.Execute(ctx, commands.ReleasePaymentCommand{Caller: employer, MilestoneID: "milestone-1"})
			return err
		}},
	}
}

func TestRandomLifecycleKeepsOneLivePaymentPerMilestone(t *testing.T) {
	ops := escrowOps()
	for seed := int64(1); seed <= 25; seed++ {
		t.Run(fmt.Sprintf("seed-%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewSource(seed))
			module := newTestModule()
			ctx := context.Background()

			for step := 0; step < 120; step++ {
				op := ops[rng.Intn(len(ops))]
				if err := op.run(ctx, module, rng); err != nil && !isRejection(err) {
					t.Fatalf("step %d %s: unexpected error: %v", step, op.name, err)
				}
				assertLedgerConsistent(t, ctx, module, fmt.Sprintf("step %d %s", step, op.name))
			}
		})
	}
}

func assertLedgerConsistent(t *testing.T, ctx context.Context, module Module, where string) {
	t.Helper()
	payments, err := module.Store.ListPaymentsByMilestone(ctx, "milestone-1")
	if err != nil {
		t.Fatalf("%s: list payments: %v", where, err)
	}
	live := 0
	for _, payment := range payments {
		if payment.Status != entities.PaymentStatusRefunded {
			live++
		}
	}
	if live > 1 {
		t.Fatalf("%s: expected at most one non-refunded payment, got %d: %+v", where, live, payments)
	}

	var transferred int64
	for _, transfer := range module.Funds.Transfers() {
		transferred += transfer.Amount
	}
	balances, err := module.Store.ListWalletBalances(ctx, freelancer.UserID)
	if err != nil {
		t.Fatalf("%s: list wallet: %v", where, err)
	}
	var credited int64
	for _, balance := range balances {
		credited += balance.Balance
	}
	if transferred != credited {
		t.Fatalf("%s: transferred %d but credited %d", where, transferred, credited)
	}

	milestone := getMilestone(t, module)
	if milestone.Settling() {
		t.Fatalf("%s: settlement claim left behind: %+v", where, milestone.Settlement)
	}
	if milestone.IsPaidOut() && len(module.Funds.Transfers()) == 0 {
		t.Fatalf("%s: milestone paid out without a transfer", where)
	}
}

func isRejection(err error) bool {
	return errors.Is(err, domainerrors.ErrConflict) ||
		errors.Is(err, domainerrors.ErrValidation) ||
		errors.Is(err, domainerrors.ErrNotFound) ||
		errors.Is(err, domainerrors.ErrForbidden)
}

func activeDispute(ctx context.Context, module Module) (entities.Dispute, bool, error) {
	disputes, err := module.Store.ListDisputes(ctx, ports.DisputeFilter{})
	if err != nil {
		return entities.Dispute{}, false, err
	}
	for _, dispute := range disputes {
		if dispute.MilestoneID == "milestone-1" && dispute.Status.Active() {
			return dispute, true, nil
		}
	}
	return entities.Dispute{}, false, nil
}

func roleOf(userID string) entities.Role {
	if userID == freelancer.UserID {
		return entities.RoleFreelancer
	}
	return entities.RoleEmployer
}
