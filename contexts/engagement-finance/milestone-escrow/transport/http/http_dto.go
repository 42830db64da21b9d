package http

// Amounts are integer minor units of Currency throughout.

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type BrandSpecDTO struct {
	BrandName        string `json:"brand_name,omitempty"`
	ColorScheme      string `json:"color_scheme,omitempty"`
	StylePreferences string `json:"style_preferences,omitempty"`
	Industry         string `json:"industry,omitempty"`
	TargetAudience   string `json:"target_audience,omitempty"`
}

type UpsertProjectRequest struct {
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	EmployerID   string       `json:"employer_id"`
	FreelancerID string       `json:"freelancer_id"`
	Currency     string       `json:"currency"`
	Requirements []string     `json:"requirements"`
	Brand        BrandSpecDTO `json:"brand"`
}

type ProjectDTO struct {
	ProjectID           string       `json:"project_id"`
	Title               string       `json:"title"`
	Description         string       `json:"description"`
	EmployerID          string       `json:"employer_id"`
	FreelancerID        string       `json:"freelancer_id,omitempty"`
	Currency            string       `json:"currency"`
	Requirements        []string     `json:"requirements"`
	Brand               BrandSpecDTO `json:"brand"`
	TotalMilestones     int          `json:"total_milestones"`
	CompletedMilestones int          `json:"completed_milestones"`
	CreatedAt           string       `json:"created_at"`
	UpdatedAt           string       `json:"updated_at"`
}

type UpsertAccountRequest struct {
	Role              string `json:"role"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	PayoutDestination string `json:"payout_destination"`
	Active            *bool  `json:"active"`
}

type AccountDTO struct {
	UserID            string `json:"user_id"`
	Role              string `json:"role"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	HasPayerProfile   bool   `json:"has_payer_profile"`
	PayoutDestination string `json:"payout_destination,omitempty"`
	Active            bool   `json:"active"`
}

type CreateMilestoneRequest struct {
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Amount           int64    `json:"amount"`
	Currency         string   `json:"currency"`
	DeliverableTypes []string `json:"deliverable_types"`
}

type UpdateMilestoneRequest struct {
	Title            *string  `json:"title"`
	Description      *string  `json:"description"`
	Amount           *int64   `json:"amount"`
	Currency         *string  `json:"currency"`
	DeliverableTypes []string `json:"deliverable_types"`
}

type MilestoneDTO struct {
	MilestoneID         string   `json:"milestone_id"`
	ProjectID           string   `json:"project_id"`
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	Amount              int64    `json:"amount"`
	Currency            string   `json:"currency"`
	Order               int      `json:"order"`
	Status              string   `json:"status"`
	DeliverableTypes    []string `json:"deliverable_types"`
	PaymentID           string   `json:"payment_id,omitempty"`
	CurrentSubmissionID string   `json:"current_submission_id,omitempty"`
	Settling            bool     `json:"settling,omitempty"`
	Version             int64    `json:"version"`
	StartedAt           string   `json:"started_at,omitempty"`
	CompletedAt         string   `json:"completed_at,omitempty"`
	PaidOutAt           string   `json:"paid_out_at,omitempty"`
	CreatedAt           string   `json:"created_at"`
	UpdatedAt           string   `json:"updated_at"`
}

type ListMilestonesResponse struct {
	Items []MilestoneDTO `json:"items"`
}

type PaymentDTO struct {
	PaymentID    string `json:"payment_id"`
	MilestoneID  string `json:"milestone_id"`
	ProjectID    string `json:"project_id"`
	EmployerID   string `json:"employer_id"`
	FreelancerID string `json:"freelancer_id"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
	IntentID     string `json:"intent_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	TransferID   string `json:"transfer_id,omitempty"`
	RefundID     string `json:"refund_id,omitempty"`
	PlatformFee  int64  `json:"platform_fee"`
	NetAmount    int64  `json:"net_amount"`
	CreatedAt    string `json:"created_at"`
	FundedAt     string `json:"funded_at,omitempty"`
	ReleasedAt   string `json:"released_at,omitempty"`
	RefundedAt   string `json:"refunded_at,omitempty"`
}

type ListPaymentsResponse struct {
	Items []PaymentDTO `json:"items"`
}

type WalletBalanceDTO struct {
	Currency string `json:"currency"`
	Balance  int64  `json:"balance"`
}

type WalletResponse struct {
	UserID   string             `json:"user_id"`
	Balances []WalletBalanceDTO `json:"balances"`
}

type AttachmentDTO struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	MIMEType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

type SubmitWorkRequest struct {
	Description string          `json:"description"`
	Attachments []AttachmentDTO `json:"attachments"`
}

type ReviewSubmissionRequest struct {
	Decision string `json:"decision"`
	Feedback string `json:"feedback"`
}

type FeedbackDTO struct {
	Strengths   []string `json:"strengths"`
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions"`
}

type AIVerificationDTO struct {
	Result                string      `json:"result"`
	Confidence            float64     `json:"confidence"`
	Feedback              FeedbackDTO `json:"feedback"`
	RequirementsSatisfied bool        `json:"requirements_satisfied"`
	RecommendedAction     string      `json:"recommended_action,omitempty"`
	EscalatedToManual     bool        `json:"escalated_to_manual"`
	VerifiedAt            string      `json:"verified_at"`
}

type SubmissionDTO struct {
	SubmissionID   string             `json:"submission_id"`
	MilestoneID    string             `json:"milestone_id"`
	ProjectID      string             `json:"project_id"`
	FreelancerID   string             `json:"freelancer_id"`
	Description    string             `json:"description"`
	Attachments    []AttachmentDTO    `json:"attachments"`
	Status         string             `json:"status"`
	AIVerification *AIVerificationDTO `json:"ai_verification,omitempty"`
	ReviewFeedback string             `json:"review_feedback,omitempty"`
	ReviewedBy     string             `json:"reviewed_by,omitempty"`
	ReviewedAt     string             `json:"reviewed_at,omitempty"`
	CreatedAt      string             `json:"created_at"`
}

type ListSubmissionsResponse struct {
	Items []SubmissionDTO `json:"items"`
}

type ReviewSubmissionResponse struct {
	Submission SubmissionDTO `json:"submission"`
	Milestone  MilestoneDTO  `json:"milestone"`
}

type OpenDisputeRequest struct {
	MilestoneID string          `json:"milestone_id"`
	Reason      string          `json:"reason"`
	Description string          `json:"description"`
	Attachments []AttachmentDTO `json:"attachments"`
}

type AddDisputeMessageRequest struct {
	Message string `json:"message"`
}

type ResolveDisputeRequest struct {
	Decision string `json:"decision"`
	Amount   int64  `json:"amount"`
	Reason   string `json:"reason"`
}

type CloseDisputeRequest struct {
	Note string `json:"note"`
}

type DisputeMessageDTO struct {
	Sequence int    `json:"sequence"`
	SenderID string `json:"sender_id"`
	Message  string `json:"message"`
	SentAt   string `json:"sent_at"`
}

type DisputeOutcomeDTO struct {
	Decision string `json:"decision"`
	Amount   int64  `json:"amount"`
	Reason   string `json:"reason"`
}

type DisputeDTO struct {
	DisputeID       string              `json:"dispute_id"`
	ProjectID       string              `json:"project_id"`
	MilestoneID     string              `json:"milestone_id"`
	PaymentID       string              `json:"payment_id,omitempty"`
	RaisedBy        string              `json:"raised_by"`
	Reason          string              `json:"reason"`
	Description     string              `json:"description"`
	Attachments     []AttachmentDTO     `json:"attachments"`
	Status          string              `json:"status"`
	AssignedAdminID string              `json:"assigned_admin_id,omitempty"`
	Conversation    []DisputeMessageDTO `json:"conversation"`
	Outcome         *DisputeOutcomeDTO  `json:"outcome,omitempty"`
	ResolvedBy      string              `json:"resolved_by,omitempty"`
	ResolvedAt      string              `json:"resolved_at,omitempty"`
	ClosedAt        string              `json:"closed_at,omitempty"`
	CreatedAt       string              `json:"created_at"`
}

type ListDisputesResponse struct {
	Items []DisputeDTO `json:"items"`
}

type ResolveDisputeResponse struct {
	Dispute   DisputeDTO   `json:"dispute"`
	Milestone MilestoneDTO `json:"milestone"`
	Payment   PaymentDTO   `json:"payment"`
}

type CloseDisputeResponse struct {
	Dispute   DisputeDTO   `json:"dispute"`
	Milestone MilestoneDTO `json:"milestone"`
}
