package milestoneescrow

import (
	"log/slog"
	"time"

	httpadapter "milestonepay/contexts/engagement-finance/milestone-escrow/adapters/http"
	"milestonepay/contexts/engagement-finance/milestone-escrow/adapters/memory"
	"milestonepay/contexts/engagement-finance/milestone-escrow/application/commands"
	"milestonepay/contexts/engagement-finance/milestone-escrow/application/queries"
	"milestonepay/contexts/engagement-finance/milestone-escrow/application/workers"
	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/services"
	"milestonepay/contexts/engagement-finance/milestone-escrow/ports"
)

type Module struct {
	Handler      httpadapter.Handler
	Verification workers.VerificationWorker
	OutboxRelay  workers.OutboxRelay

	// Set by NewInMemoryModule only.
	Store    *memory.Store
	Funds    *memory.FundsSandbox
	Verifier *memory.ScriptedVerifier
}

type Dependencies struct {
	Projects    ports.ProjectRepository
	Accounts    ports.AccountDirectory
	Milestones  ports.MilestoneRepository
	Payments    ports.PaymentRepository
	Submissions ports.SubmissionRepository
	Disputes    ports.DisputeRepository
	Wallets     ports.WalletRepository
	Writer      ports.AggregateWriter
	Idempotency ports.IdempotencyStore
	Dedup       ports.EventDedupStore
	Outbox      ports.OutboxRepository
	Funds       ports.FundsService
	PayerCache  ports.PayerProfileCache
	Verifier    ports.Verifier
	Blobs       ports.BlobStore
	Publisher   ports.EventPublisher
	Subscriber  ports.EventSubscriber
	Clock       ports.Clock
	IDGenerator ports.IDGenerator
	Metrics     ports.Metrics
	Logger      *slog.Logger

	Fees                  services.FeePolicy
	Assigner              services.AdminAssigner
	VerificationThreshold float64
	VerifyTimeout         time.Duration
	IdempotencyTTL        time.Duration
	DedupTTL              time.Duration
	OutboxBatchSize       int
}

func NewModule(deps Dependencies) Module {
	upsertProject := commands.UpsertProjectUseCase{
		Projects: deps.Projects,
		Clock:    deps.Clock,
		Logger:   deps.Logger,
	}
	upsertAccount := commands.UpsertAccountUseCase{
		Accounts: deps.Accounts,
		Logger:   deps.Logger,
	}
	createMilestone := commands.CreateMilestoneUseCase{
		Projects:    deps.Projects,
		Milestones:  deps.Milestones,
		Writer:      deps.Writer,
		Clock:       deps.Clock,
		IDGenerator: deps.IDGenerator,
		Logger:      deps.Logger,
	}
	updateMilestone := commands.UpdateMilestoneUseCase{
		Projects:   deps.Projects,
		Milestones: deps.Milestones,
		Payments:   deps.Payments,
		Writer:     deps.Writer,
		Clock:      deps.Clock,
		Logger:     deps.Logger,
	}
	deleteMilestone := commands.DeleteMilestoneUseCase{
		Projects:   deps.Projects,
		Milestones: deps.Milestones,
		Payments:   deps.Payments,
		Writer:     deps.Writer,
		Logger:     deps.Logger,
	}
	startMilestone := commands.StartMilestoneUseCase{
		Projects:    deps.Projects,
		Milestones:  deps.Milestones,
		Writer:      deps.Writer,
		Clock:       deps.Clock,
		IDGenerator: deps.IDGenerator,
		Logger:      deps.Logger,
	}
	createEscrow := commands.CreateEscrowUseCase{
		Projects:       deps.Projects,
		Milestones:     deps.Milestones,
		Payments:       deps.Payments,
		Accounts:       deps.Accounts,
		Writer:         deps.Writer,
		Funds:          deps.Funds,
		PayerCache:     deps.PayerCache,
		Idempotency:    deps.Idempotency,
		Clock:          deps.Clock,
		IDGenerator:    deps.IDGenerator,
		Metrics:        deps.Metrics,
		Logger:         deps.Logger,
		IdempotencyTTL: deps.IdempotencyTTL,
	}
	confirmFunding := commands.ConfirmFundingUseCase{
		Payments: deps.Payments,
		Writer:   deps.Writer,
		Clock:    deps.Clock,
		Metrics:  deps.Metrics,
		Logger:   deps.Logger,
	}
	releasePayment := commands.ReleasePaymentUseCase{
		Projects:       deps.Projects,
		Milestones:     deps.Milestones,
		Payments:       deps.Payments,
		Accounts:       deps.Accounts,
		Writer:         deps.Writer,
		Funds:          deps.Funds,
		Fees:           deps.Fees,
		Idempotency:    deps.Idempotency,
		Clock:          deps.Clock,
		IDGenerator:    deps.IDGenerator,
		Metrics:        deps.Metrics,
		Logger:         deps.Logger,
		IdempotencyTTL: deps.IdempotencyTTL,
	}
	submitWork := commands.SubmitWorkUseCase{
		Projects:       deps.Projects,
		Milestones:     deps.Milestones,
		Writer:         deps.Writer,
		Idempotency:    deps.Idempotency,
		Clock:          deps.Clock,
		IDGenerator:    deps.IDGenerator,
		Metrics:        deps.Metrics,
		Logger:         deps.Logger,
		IdempotencyTTL: deps.IdempotencyTTL,
	}
	reviewSubmission := commands.ReviewSubmissionUseCase{
		Projects:    deps.Projects,
		Milestones:  deps.Milestones,
		Submissions: deps.Submissions,
		Writer:      deps.Writer,
		Clock:       deps.Clock,
		IDGenerator: deps.IDGenerator,
		Metrics:     deps.Metrics,
		Logger:      deps.Logger,
	}
	uploadAttachment := commands.UploadAttachmentUseCase{
		Blobs:  deps.Blobs,
		Logger: deps.Logger,
	}
	openDispute := commands.OpenDisputeUseCase{
		Projects:       deps.Projects,
		Milestones:     deps.Milestones,
		Payments:       deps.Payments,
		Accounts:       deps.Accounts,
		Writer:         deps.Writer,
		Assigner:       deps.Assigner,
		Idempotency:    deps.Idempotency,
		Clock:          deps.Clock,
		IDGenerator:    deps.IDGenerator,
		Metrics:        deps.Metrics,
		Logger:         deps.Logger,
		IdempotencyTTL: deps.IdempotencyTTL,
	}
	addDisputeMessage := commands.AddDisputeMessageUseCase{
		Projects: deps.Projects,
		Disputes: deps.Disputes,
		Writer:   deps.Writer,
		Clock:    deps.Clock,
		Metrics:  deps.Metrics,
		Logger:   deps.Logger,
	}
	startDisputeReview := commands.StartDisputeReviewUseCase{
		Disputes: deps.Disputes,
		Writer:   deps.Writer,
		Clock:    deps.Clock,
		Metrics:  deps.Metrics,
		Logger:   deps.Logger,
	}
	resolveDispute := commands.ResolveDisputeUseCase{
		Projects:    deps.Projects,
		Milestones:  deps.Milestones,
		Payments:    deps.Payments,
		Disputes:    deps.Disputes,
		Accounts:    deps.Accounts,
		Writer:      deps.Writer,
		Funds:       deps.Funds,
		Fees:        deps.Fees,
		Clock:       deps.Clock,
		IDGenerator: deps.IDGenerator,
		Metrics:     deps.Metrics,
		Logger:      deps.Logger,
	}
	closeDispute := commands.CloseDisputeUseCase{
		Milestones:  deps.Milestones,
		Disputes:    deps.Disputes,
		Writer:      deps.Writer,
		Clock:       deps.Clock,
		IDGenerator: deps.IDGenerator,
		Metrics:     deps.Metrics,
		Logger:      deps.Logger,
	}

	return Module{
		Handler: httpadapter.Handler{
			UpsertProject:      upsertProject,
			UpsertAccount:      upsertAccount,
			CreateMilestone:    createMilestone,
			UpdateMilestone:    updateMilestone,
			DeleteMilestone:    deleteMilestone,
			StartMilestone:     startMilestone,
			CreateEscrow:       createEscrow,
			ConfirmFunding:     confirmFunding,
			ReleasePayment:     releasePayment,
			SubmitWork:         submitWork,
			ReviewSubmission:   reviewSubmission,
			UploadAttachment:   uploadAttachment,
			OpenDispute:        openDispute,
			AddDisputeMessage:  addDisputeMessage,
			StartDisputeReview: startDisputeReview,
			ResolveDispute:     resolveDispute,
			CloseDispute:       closeDispute,
			Milestones: queries.MilestoneQueries{
				Projects:    deps.Projects,
				Milestones:  deps.Milestones,
				Submissions: deps.Submissions,
			},
			Ledger: queries.LedgerQueries{
				Projects: deps.Projects,
				Payments: deps.Payments,
				Wallets:  deps.Wallets,
			},
			Disputes: queries.DisputeQueries{
				Projects: deps.Projects,
				Disputes: deps.Disputes,
			},
			Logger: deps.Logger,
		},
		Verification: workers.VerificationWorker{
			Subscriber:    deps.Subscriber,
			Dedup:         deps.Dedup,
			Projects:      deps.Projects,
			Milestones:    deps.Milestones,
			Submissions:   deps.Submissions,
			Writer:        deps.Writer,
			Verifier:      deps.Verifier,
			Blobs:         deps.Blobs,
			Clock:         deps.Clock,
			IDGenerator:   deps.IDGenerator,
			Metrics:       deps.Metrics,
			Logger:        deps.Logger,
			Threshold:     deps.VerificationThreshold,
			VerifyTimeout: deps.VerifyTimeout,
			DedupTTL:      deps.DedupTTL,
		},
		OutboxRelay: workers.OutboxRelay{
			Outbox:    deps.Outbox,
			Publisher: deps.Publisher,
			Clock:     deps.Clock,
			BatchSize: deps.OutboxBatchSize,
			Logger:    deps.Logger,
		},
	}
}

// NewInMemoryModule wires every port to one in-memory store, a funds sandbox
// and a scripted verifier. Publisher and Subscriber stay nil; callers that
// run the workers set them.
func NewInMemoryModule(seed memory.Seed, logger *slog.Logger) Module {
	store := memory.NewStore(seed)
	funds := memory.NewFundsSandbox()
	verifier := memory.NewScriptedVerifier()
	module := NewModule(Dependencies{
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
		Funds:                 funds,
		Verifier:              verifier,
		Blobs:                 memory.NewBlobStore(),
		Clock:                 store,
		IDGenerator:           store,
		Logger:                logger,
		Fees:                  services.DefaultFeePolicy(),
		Assigner:              services.LeastLoadedAssigner{},
		VerificationThreshold: services.DefaultAutoVerifyThreshold,
		IdempotencyTTL:        7 * 24 * time.Hour,
		DedupTTL:              7 * 24 * time.Hour,
	})
	module.Store = store
	module.Funds = funds
	module.Verifier = verifier
	return module
}
