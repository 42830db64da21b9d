package ports

import (
	"context"
	"time"

	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/entities"
	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/services"
	contractsv1 "milestonepay/contracts/gen/events/v1"
)

// ProjectRepository stores the project membership projection. UpsertProject
// never overwrites the milestone counters of an existing project.
type ProjectRepository interface {
	GetProject(ctx context.Context, projectID string) (entities.Project, error)
	UpsertProject(ctx context.Context, project entities.Project) (entities.Project, error)
}

// AccountDirectory is the local view of the identity provider.
type AccountDirectory interface {
	GetAccount(ctx context.Context, userID string) (entities.Account, error)
	UpsertAccount(ctx context.Context, account entities.Account) error
	SetPayerProfile(ctx context.Context, userID string, payerProfileID string) error
	ListAdminLoads(ctx context.Context) ([]services.AdminLoad, error)
}

type MilestoneRepository interface {
	GetMilestone(ctx context.Context, milestoneID string) (entities.Milestone, error)
	ListMilestones(ctx context.Context, projectID string) ([]entities.Milestone, error)
}

type PaymentFilter struct {
	// UserID restricts to payments where the user is employer or freelancer; empty lists all.
	UserID string
	Limit  int
}

type PaymentRepository interface {
	GetPayment(ctx context.Context, paymentID string) (entities.Payment, error)
	ListPaymentsByMilestone(ctx context.Context, milestoneID string) ([]entities.Payment, error)
	ListPayments(ctx context.Context, filter PaymentFilter) ([]entities.Payment, error)
}

type SubmissionRepository interface {
	GetSubmission(ctx context.Context, submissionID string) (entities.Submission, error)
	ListSubmissions(ctx context.Context, milestoneID string) ([]entities.Submission, error)
}

type DisputeFilter struct {
	Status          entities.DisputeStatus
	AssignedAdminID string
	// ParticipantID restricts to disputes on projects where the user is employer or freelancer.
	ParticipantID string
	Limit         int
}

type DisputeRepository interface {
	GetDispute(ctx context.Context, disputeID string) (entities.Dispute, error)
	ListDisputes(ctx context.Context, filter DisputeFilter) ([]entities.Dispute, error)
}

type WalletRepository interface {
	ListWalletBalances(ctx context.Context, userID string) ([]entities.WalletBalance, error)
}

// MilestoneWrite inserts, conditionally updates or deletes a milestone.
// Updates and deletes apply only when the stored version equals ExpectedVersion.
// GuardOnly checks the version without writing anything.
type MilestoneWrite struct {
	Milestone       entities.Milestone
	ExpectedVersion int64
	Insert          bool
	Delete          bool
	GuardOnly       bool
}

// PaymentWrite inserts a payment or updates it only while it is in ExpectedStatus.
type PaymentWrite struct {
	Payment        entities.Payment
	Insert         bool
	ExpectedStatus entities.PaymentStatus
}

// SubmissionWrite inserts a submission or updates it only while it is in
// ExpectedStatus and, with RequireUnverified, has no verification annotation.
type SubmissionWrite struct {
	Submission        entities.Submission
	Insert            bool
	ExpectedStatus    entities.SubmissionStatus
	RequireUnverified bool
}

// DisputeWrite inserts a dispute (with its initial conversation) or updates its
// header only while it is in ExpectedStatus. AppendMessages are added after the
// existing conversation in the given order.
type DisputeWrite struct {
	Dispute        entities.Dispute
	Insert         bool
	ExpectedStatus entities.DisputeStatus
	AppendMessages []entities.DisputeMessage
}

type ProjectDelta struct {
	ProjectID           string
	TotalMilestones     int
	CompletedMilestones int
}

type WalletCredit struct {
	UserID   string
	Currency string
	Amount   int64
}

// Mutation is one atomic change set against a milestone aggregate. All
// conditions are checked before any write; a failed condition is a conflict
// and nothing is persisted.
type Mutation struct {
	Milestone    *MilestoneWrite
	Payment      *PaymentWrite
	Submission   *SubmissionWrite
	Dispute      *DisputeWrite
	ProjectDelta *ProjectDelta
	WalletCredit *WalletCredit
	Outbox       []OutboxMessage
}

type AggregateWriter interface {
	Commit(ctx context.Context, mutation Mutation) error
}

// IdempotencyRecord captures the first response for a client idempotency key.
type IdempotencyRecord struct {
	Key             string
	RequestHash     string
	ResponsePayload []byte
	ExpiresAt       time.Time
}

type IdempotencyStore interface {
	GetRecord(ctx context.Context, key string, now time.Time) (IdempotencyRecord, bool, error)
	PutRecord(ctx context.Context, record IdempotencyRecord) error
}

// EventDedupStore provides idempotent processing guarantees for consumed events.
// ReleaseEvent drops a reservation whose handling failed so a redelivery is processed.
type EventDedupStore interface {
	ReserveEvent(ctx context.Context, eventID string, payloadHash string, expiresAt time.Time) (bool, error)
	ReleaseEvent(ctx context.Context, eventID string) error
}

type OutboxMessage struct {
	OutboxID     string
	EventType    string
	PartitionKey string
	Payload      []byte
	CreatedAt    time.Time
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxSent(ctx context.Context, outboxID string, sentAt time.Time) error
}

// EventEnvelope reuses the canonical cross-runtime envelope contract.
type EventEnvelope = contractsv1.Envelope

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type EventSubscriber interface {
	Subscribe(
		ctx context.Context,
		topic string,
		consumerGroup string,
		handler func(context.Context, EventEnvelope) error,
	) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

type PayerProfileRequest struct {
	UserID         string
	Email          string
	Name           string
	IdempotencyKey string
}

type IntentRequest struct {
	Amount         int64
	Currency       string
	Description    string
	PayerProfileID string
	Metadata       map[string]string
	IdempotencyKey string
}

type Intent struct {
	IntentID     string
	ClientSecret string
}

type TransferRequest struct {
	Amount         int64
	Currency       string
	Destination    string
	Description    string
	Metadata       map[string]string
	IdempotencyKey string
}

type RefundRequest struct {
	IntentID       string
	Amount         int64
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}

// FundsService is the external funds-transfer collaborator. Every call is
// keyed so a retry with the same key never moves money twice.
type FundsService interface {
	CreatePayerProfile(ctx context.Context, req PayerProfileRequest) (string, error)
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	Transfer(ctx context.Context, req TransferRequest) (string, error)
	Refund(ctx context.Context, req RefundRequest) (string, error)
}

// PayerProfileCache caches payer profile ids by user.
type PayerProfileCache interface {
	GetPayerProfile(ctx context.Context, userID string) (string, bool, error)
	PutPayerProfile(ctx context.Context, userID string, payerProfileID string) error
}

// Verifier is the external verification capability. It is slow and fallible.
type Verifier interface {
	Evaluate(
		ctx context.Context,
		requirements entities.Requirements,
		deliverables entities.Deliverables,
		blobs []entities.AttachmentBlob,
	) (entities.VerificationResult, error)
}

// BlobStore stores opaque files and returns a retrievable URL.
type BlobStore interface {
	Store(ctx context.Context, name string, mimeType string, data []byte) (string, error)
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Metrics receives operational counters; implementations must be safe for concurrent use.
type Metrics interface {
	ObserveVerification(outcome string, elapsed time.Duration)
	ObserveFundsOperation(operation string, err error)
	ObserveCommit(operation string, err error)
}
