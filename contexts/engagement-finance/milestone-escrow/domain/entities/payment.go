package entities

import "time"

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusEscrowHeld PaymentStatus = "escrow-held"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

// Payment is the escrow ledger entry tied to one milestone. Amounts are minor units.
type Payment struct {
	PaymentID    string
	MilestoneID  string
	ProjectID    string
	EmployerID   string
	FreelancerID string
	Amount       int64
	Currency     string
	Status       PaymentStatus
	IntentID     string
	ClientSecret string
	TransferID   string
	RefundID     string
	PlatformFee  int64
	NetAmount    int64
	CreatedAt    time.Time
	FundedAt     *time.Time
	ReleasedAt   *time.Time
	RefundedAt   *time.Time
	UpdatedAt    time.Time
}

// Active reports whether the payment still counts as the milestone's payment.
func (p Payment) Active() bool {
	return p.Status != PaymentStatusRefunded
}

func (p Payment) Settled() bool {
	return p.Status == PaymentStatusCompleted || p.Status == PaymentStatusRefunded
}
