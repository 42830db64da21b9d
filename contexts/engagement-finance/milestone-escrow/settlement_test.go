package milestoneescrow

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"milestonepay/contexts/engagement-finance/milestone-escrow/adapters/memory"
	"milestonepay/contexts/engagement-finance/milestone-escrow/application/commands"
	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/entities"
	domainerrors "milestonepay/contexts/engagement-finance/milestone-escrow/domain/errors"
	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/services"
	"milestonepay/contexts/engagement-finance/milestone-escrow/ports"
)

// newWiredModule builds the in-memory module around store and lets a test
// swap individual dependencies.
func newWiredModule(store *memory.Store, adjust func(*Dependencies)) Module {
	deps := Dependencies{
		Projects:              store,
		Accounts:              store,
		Milestones:            store,
		Payments:              store,
		Submissions:           store,
		Disputes:              store,
		Wallets:               store,
		Writer:                store,
		Idempotency:           store,
		Dedup:                 store,
		Outbox:                store,
		Funds:                 memory.NewFundsSandbox(),
		Verifier:              memory.NewScriptedVerifier(),
		Blobs:                 memory.NewBlobStore(),
		Clock:                 store,
		IDGenerator:           store,
		Fees:                  services.DefaultFeePolicy(),
		Assigner:              services.LeastLoadedAssigner{},
		VerificationThreshold: services.DefaultAutoVerifyThreshold,
		IdempotencyTTL:        time.Hour,
		DedupTTL:              time.Hour,
	}
	if adjust != nil {
		adjust(&deps)
	}
	module := NewModule(deps)
	module.Store = store
	if sandbox, ok := deps.Funds.(*memory.FundsSandbox); ok {
		module.Funds = sandbox
	}
	if verifier, ok := deps.Verifier.(*memory.ScriptedVerifier); ok {
		module.Verifier = verifier
	}
	return module
}

// flakyFunds moves money like the sandbox until told to fail.
type flakyFunds struct {
	*memory.FundsSandbox
	failTransfers atomic.Bool
	failRefunds   atomic.Bool
}

func (f *flakyFunds) Transfer(ctx context.Context, req ports.TransferRequest) (string, error) {
	if f.failTransfers.Load() {
		return "", errors.New("transfer endpoint unavailable")
	}
	return f.FundsSandbox.Transfer(ctx, req)
}

func (f *flakyFunds) Refund(ctx context.Context, req ports.RefundRequest) (string, error) {
	if f.failRefunds.Load() {
		return "", errors.New("refund endpoint unavailable")
	}
	return f.FundsSandbox.Refund(ctx, req)
}

// gatedFunds holds every transfer until the test lets it through.
type gatedFunds struct {
	*memory.FundsSandbox
	entered chan struct{}
	proceed chan struct{}
}

func (g *gatedFunds) Transfer(ctx context.Context, req ports.TransferRequest) (string, error) {
	g.entered <- struct{}{}
	select {
	case <-g.proceed:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return g.FundsSandbox.Transfer(ctx, req)
}

func approveWork(t *testing.T, module Module) {
	t.Helper()
	submission := submitWork(t, module)
	if _, err := module.Handler.ReviewSubmission.Execute(context.Background(), commands.ReviewSubmissionCommand{
		Caller:       employer,
		MilestoneID:  "milestone-1",
		SubmissionID: submission.SubmissionID,
		Decision:     entities.ReviewApproved,
	}); err != nil {
		t.Fatalf("approve submission: %v", err)
	}
}

func TestReleaseClaimBlocksDisputeDuringTransfer(t *testing.T) {
	store := memory.NewStore(testSeed())
	funds := &gatedFunds{
		FundsSandbox: memory.NewFundsSandbox(),
		entered:      make(chan struct{}, 1),
		proceed:      make(chan struct{}),
	}
	module := newWiredModule(store, func(deps *Dependencies) { deps.Funds = funds })
	ctx := context.Background()
	fundMilestone(t, module)
	approveWork(t, module)

	released := make(chan error, 1)
	go func() {
		_, err := module.Handler.ReleasePayment.Execute(ctx, commands.ReleasePaymentCommand{Caller: employer, MilestoneID: "milestone-1"})
		released <- err
	}()
	<-funds.entered

	if milestone := getMilestone(t, module); !milestone.Settling() {
		t.Fatalf("expected funds claimed before the transfer, got %+v", milestone)
	}
	_, err := module.Handler.OpenDispute.Execute(ctx, commands.OpenDisputeCommand{
		Caller:      employer,
		MilestoneID: "milestone-1",
		Reason:      "quality",
		Description: "The work does not match the brief.",
	})
	if !errors.Is(err, domainerrors.ErrSettlementInProgress) {
		close(funds.proceed)
		t.Fatalf("expected dispute rejected while releasing, got %v", err)
	}
	close(funds.proceed)
	if err := <-released; err != nil {
		t.Fatalf("release payment: %v", err)
	}

	if transfers := funds.Transfers(); len(transfers) != 1 {
		t.Fatalf("expected exactly one transfer, got %d", len(transfers))
	}
	if refunds := funds.Refunds(); len(refunds) != 0 {
		t.Fatalf("expected no refund, got %+v", refunds)
	}
	milestone := getMilestone(t, module)
	if milestone.Settling() || !milestone.IsPaidOut() {
		t.Fatalf("expected paid-out milestone with claim cleared, got %+v", milestone)
	}
	if _, err := module.Handler.OpenDispute.Execute(ctx, commands.OpenDisputeCommand{
		Caller:      employer,
		MilestoneID: "milestone-1",
		Reason:      "quality",
		Description: "The work does not match the brief.",
	}); !errors.Is(err, domainerrors.ErrMilestonePaidOut) {
		t.Fatalf("expected paid-out conflict after release, got %v", err)
	}
}

func TestReleaseClearsClaimWhenTransferFails(t *testing.T) {
	store := memory.NewStore(testSeed())
	funds := &flakyFunds{FundsSandbox: memory.NewFundsSandbox()}
	module := newWiredModule(store, func(deps *Dependencies) { deps.Funds = funds })
	ctx := context.Background()
	fundMilestone(t, module)
	approveWork(t, module)

	funds.failTransfers.Store(true)
	_, err := module.Handler.ReleasePayment.Execute(ctx, commands.ReleasePaymentCommand{Caller: employer, MilestoneID: "milestone-1"})
	if !errors.Is(err, domainerrors.ErrUpstream) {
		t.Fatalf("expected upstream failure, got %v", err)
	}
	milestone := getMilestone(t, module)
	if milestone.Settling() || milestone.IsPaidOut() || milestone.Status != entities.MilestoneStatusCompleted {
		t.Fatalf("expected completed unpaid milestone without claim, got %+v", milestone)
	}

	funds.failTransfers.Store(false)
	released, err := module.Handler.ReleasePayment.Execute(ctx, commands.ReleasePaymentCommand{Caller: employer, MilestoneID: "milestone-1"})
	if err != nil {
		t.Fatalf("retry release: %v", err)
	}
	if released.Status != entities.PaymentStatusCompleted || len(funds.Transfers()) != 1 {
		t.Fatalf("expected one completed transfer after retry, got %+v and %d transfers", released, len(funds.Transfers()))
	}
}

func TestReleaseResumesClaimLeftByFailedCommit(t *testing.T) {
	store := memory.NewStore(testSeed())
	writer := &failingWriter{AggregateWriter: store}
	module := newWiredModule(store, func(deps *Dependencies) { deps.Writer = writer })
	ctx := context.Background()
	fundMilestone(t, module)
	approveWork(t, module)

	// The claim commit goes through; the commit after the transfer fails.
	writer.arm(1)
	if _, err := module.Handler.ReleasePayment.Execute(ctx, commands.ReleasePaymentCommand{Caller: employer, MilestoneID: "milestone-1"}); err == nil {
		t.Fatal("expected release commit failure")
	}
	if milestone := getMilestone(t, module); !milestone.Settling() || milestone.IsPaidOut() {
		t.Fatalf("expected claim kept after failed commit, got %+v", milestone)
	}

	released, err := module.Handler.ReleasePayment.Execute(ctx, commands.ReleasePaymentCommand{Caller: employer, MilestoneID: "milestone-1"})
	if err != nil {
		t.Fatalf("resume release: %v", err)
	}
	transfers := module.Funds.Transfers()
	if len(transfers) != 1 || released.TransferID == "" {
		t.Fatalf("expected the original transfer reused, got %d transfers and %+v", len(transfers), released)
	}
	if milestone := getMilestone(t, module); milestone.Settling() || !milestone.IsPaidOut() {
		t.Fatalf("expected claim cleared after resume, got %+v", milestone)
	}
}

func TestResolvePartialLeavesStateWhenRefundFails(t *testing.T) {
	store := memory.NewStore(testSeed())
	funds := &flakyFunds{FundsSandbox: memory.NewFundsSandbox()}
	module := newWiredModule(store, func(deps *Dependencies) { deps.Funds = funds })
	ctx := context.Background()

	fundMilestone(t, module)
	dispute := openDispute(t, module)

	funds.failRefunds.Store(true)
	_, err := module.Handler.ResolveDispute.Execute(ctx, commands.ResolveDisputeCommand{
		Caller:    admin,
		DisputeID: dispute.DisputeID,
		Decision:  entities.DecisionPartial,
		Amount:    600,
	})
	if !errors.Is(err, domainerrors.ErrUpstream) {
		t.Fatalf("expected upstream failure, got %v", err)
	}

	if transfers := funds.Transfers(); len(transfers) != 1 || transfers[0].Amount != 540 {
		t.Fatalf("expected the partial transfer to have gone out, got %+v", transfers)
	}
	locked := getMilestone(t, module)
	if locked.Status != entities.MilestoneStatusDisputed || locked.Settlement == nil {
		t.Fatalf("expected disputed milestone holding the resolution lock, got %+v", locked)
	}
	if locked.Settlement.Decision != entities.DecisionPartial || locked.Settlement.Amount != 600 {
		t.Fatalf("expected lock on partial 600, got %+v", locked.Settlement)
	}
	stored, err := store.GetDispute(ctx, dispute.DisputeID)
	if err != nil {
		t.Fatalf("get dispute: %v", err)
	}
	if stored.Status != entities.DisputeStatusUnderReview || stored.Outcome != nil {
		t.Fatalf("expected dispute under review without outcome, got %+v", stored)
	}
	payment, err := store.GetPayment(ctx, locked.PaymentID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if payment.Status != entities.PaymentStatusEscrowHeld {
		t.Fatalf("expected payment still held, got %s", payment.Status)
	}
	balances, err := store.ListWalletBalances(ctx, freelancer.UserID)
	if err != nil {
		t.Fatalf("list wallet: %v", err)
	}
	if len(balances) != 0 {
		t.Fatalf("expected no wallet credit, got %+v", balances)
	}

	funds.failRefunds.Store(false)
	_, err = module.Handler.ResolveDispute.Execute(ctx, commands.ResolveDisputeCommand{
		Caller:    admin,
		DisputeID: dispute.DisputeID,
		Decision:  entities.DecisionFullEmployer,
	})
	if !errors.Is(err, domainerrors.ErrResolutionLocked) || !errors.Is(err, domainerrors.ErrConflict) {
		t.Fatalf("expected a different decision to conflict, got %v", err)
	}
	_, err = module.Handler.ResolveDispute.Execute(ctx, commands.ResolveDisputeCommand{
		Caller:    admin,
		DisputeID: dispute.DisputeID,
		Decision:  entities.DecisionPartial,
		Amount:    700,
	})
	if !errors.Is(err, domainerrors.ErrResolutionLocked) {
		t.Fatalf("expected a different amount to conflict, got %v", err)
	}
	if _, err := module.Handler.CloseDispute.Execute(ctx, commands.CloseDisputeCommand{Caller: employer, DisputeID: dispute.DisputeID}); !errors.Is(err, domainerrors.ErrSettlementInProgress) {
		t.Fatalf("expected withdrawal blocked by the lock, got %v", err)
	}
	if refunds := funds.Refunds(); len(refunds) != 0 {
		t.Fatalf("expected rejected decisions to move no money, got %+v", refunds)
	}

	result, err := module.Handler.ResolveDispute.Execute(ctx, commands.ResolveDisputeCommand{
		Caller:    admin,
		DisputeID: dispute.DisputeID,
		Decision:  entities.DecisionPartial,
		Amount:    600,
	})
	if err != nil {
		t.Fatalf("retry locked decision: %v", err)
	}
	if transfers := funds.Transfers(); len(transfers) != 1 {
		t.Fatalf("expected the retry to reuse the first transfer, got %d", len(transfers))
	}
	if refunds := funds.Refunds(); len(refunds) != 1 || refunds[0].Amount != 400 {
		t.Fatalf("expected refund of the 400 remainder, got %+v", refunds)
	}
	if result.Milestone.Settling() || result.Milestone.Status != entities.MilestoneStatusCompleted || !result.Milestone.IsPaidOut() {
		t.Fatalf("expected completed paid-out milestone without lock, got %+v", result.Milestone)
	}
	if result.Dispute.Status != entities.DisputeStatusResolved || result.Dispute.Outcome.Amount != 600 {
		t.Fatalf("unexpected resolved dispute: %+v", result.Dispute)
	}
	balances, err = store.ListWalletBalances(ctx, freelancer.UserID)
	if err != nil {
		t.Fatalf("list wallet: %v", err)
	}
	if len(balances) != 1 || balances[0].Balance != 540 {
		t.Fatalf("expected wallet balance 540, got %+v", balances)
	}
}

func TestUpdateMilestoneRejectedWhileSettling(t *testing.T) {
	store := memory.NewStore(testSeed())
	funds := &flakyFunds{FundsSandbox: memory.NewFundsSandbox()}
	module := newWiredModule(store, func(deps *Dependencies) { deps.Funds = funds })
	ctx := context.Background()
	fundMilestone(t, module)
	dispute := openDispute(t, module)

	funds.failRefunds.Store(true)
	if _, err := module.Handler.ResolveDispute.Execute(ctx, commands.ResolveDisputeCommand{
		Caller:    admin,
		DisputeID: dispute.DisputeID,
		Decision:  entities.DecisionFullEmployer,
	}); !errors.Is(err, domainerrors.ErrUpstream) {
		t.Fatalf("expected upstream failure, got %v", err)
	}

	title := "Renamed mid-settlement"
	if _, err := module.Handler.UpdateMilestone.Execute(ctx, commands.UpdateMilestoneCommand{
		Caller:      employer,
		MilestoneID: "milestone-1",
		Title:       &title,
	}); !errors.Is(err, domainerrors.ErrSettlementInProgress) {
		t.Fatalf("expected update rejected while settling, got %v", err)
	}
}
