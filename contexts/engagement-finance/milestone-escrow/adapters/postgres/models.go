package postgresadapter

import (
	"encoding/json"
	"time"

	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/entities"

	"gorm.io/gorm"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
)

// AutoMigrate creates the escrow tables plus the partial unique indexes that
// back the one-active-payment and one-active-dispute rules.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&projectModel{},
		&accountModel{},
		&milestoneModel{},
		&paymentModel{},
		&submissionModel{},
		&disputeModel{},
		&disputeMessageModel{},
		&walletModel{},
		&idempotencyModel{},
		&outboxModel{},
		&eventDedupModel{},
	); err != nil {
		return err
	}
	statements := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS escrow_payments_one_active
			ON escrow_payments (milestone_id) WHERE status <> 'refunded'`,
		`CREATE UNIQUE INDEX IF NOT EXISTS escrow_disputes_one_active
			ON escrow_disputes (milestone_id) WHERE status IN ('open', 'under-review')`,
	}
	for _, statement := range statements {
		if err := db.Exec(statement).Error; err != nil {
			return err
		}
	}
	return nil
}

type projectModel struct {
	ProjectID           string    `gorm:"column:project_id;primaryKey"`
	Title               string    `gorm:"column:title"`
	Description         string    `gorm:"column:description"`
	EmployerID          string    `gorm:"column:employer_id;index"`
	FreelancerID        string    `gorm:"column:freelancer_id;index"`
	Currency            string    `gorm:"column:currency"`
	Requirements        []string  `gorm:"column:requirements;type:text[]"`
	BrandName           string    `gorm:"column:brand_name"`
	ColorScheme         string    `gorm:"column:color_scheme"`
	StylePreferences    string    `gorm:"column:style_preferences"`
	Industry            string    `gorm:"column:industry"`
	TargetAudience      string    `gorm:"column:target_audience"`
	TotalMilestones     int       `gorm:"column:total_milestones"`
	CompletedMilestones int       `gorm:"column:completed_milestones"`
	CreatedAt           time.Time `gorm:"column:created_at"`
	UpdatedAt           time.Time `gorm:"column:updated_at"`
}

func (projectModel) TableName() string {
	return "escrow_projects"
}

func projectModelFromEntity(item entities.Project) projectModel {
	return projectModel{
		ProjectID:           item.ProjectID,
		Title:               item.Title,
		Description:         item.Description,
		EmployerID:          item.EmployerID,
		FreelancerID:        item.FreelancerID,
		Currency:            item.Currency,
		Requirements:        copyOrEmpty(item.Requirements),
		BrandName:           item.Brand.BrandName,
		ColorScheme:         item.Brand.ColorScheme,
		StylePreferences:    item.Brand.StylePreferences,
		Industry:            item.Brand.Industry,
		TargetAudience:      item.Brand.TargetAudience,
		TotalMilestones:     item.TotalMilestones,
		CompletedMilestones: item.CompletedMilestones,
		CreatedAt:           item.CreatedAt.UTC(),
		UpdatedAt:           item.UpdatedAt.UTC(),
	}
}

func (m projectModel) toEntity() entities.Project {
	return entities.Project{
		ProjectID:    m.ProjectID,
		Title:        m.Title,
		Description:  m.Description,
		EmployerID:   m.EmployerID,
		FreelancerID: m.FreelancerID,
		Currency:     m.Currency,
		Requirements: copyOrEmpty(m.Requirements),
		Brand: entities.BrandSpec{
			BrandName:        m.BrandName,
			ColorScheme:      m.ColorScheme,
			StylePreferences: m.StylePreferences,
			Industry:         m.Industry,
			TargetAudience:   m.TargetAudience,
		},
		TotalMilestones:     m.TotalMilestones,
		CompletedMilestones: m.CompletedMilestones,
		CreatedAt:           m.CreatedAt.UTC(),
		UpdatedAt:           m.UpdatedAt.UTC(),
	}
}

type accountModel struct {
	UserID            string `gorm:"column:user_id;primaryKey"`
	Role              string `gorm:"column:role;index"`
	Email             string `gorm:"column:email"`
	Name              string `gorm:"column:name"`
	PayerProfileID    string `gorm:"column:payer_profile_id"`
	PayoutDestination string `gorm:"column:payout_destination"`
	Active            bool   `gorm:"column:active"`
}

func (accountModel) TableName() string {
	return "escrow_accounts"
}

func (m accountModel) toEntity() entities.Account {
	return entities.Account{
		UserID:            m.UserID,
		Role:              entities.Role(m.Role),
		Email:             m.Email,
		Name:              m.Name,
		PayerProfileID:    m.PayerProfileID,
		PayoutDestination: m.PayoutDestination,
		Active:            m.Active,
	}
}

type milestoneModel struct {
	MilestoneID         string     `gorm:"column:milestone_id;primaryKey"`
	ProjectID           string     `gorm:"column:project_id;index"`
	Title               string     `gorm:"column:title"`
	Description         string     `gorm:"column:description"`
	Amount              int64      `gorm:"column:amount"`
	Currency            string     `gorm:"column:currency"`
	SortOrder           int        `gorm:"column:sort_order"`
	Status              string     `gorm:"column:status"`
	DeliverableTypes    []string   `gorm:"column:deliverable_types;type:text[]"`
	PaymentID           string     `gorm:"column:payment_id"`
	CurrentSubmissionID string     `gorm:"column:current_submission_id"`
	DisputedFrom        string     `gorm:"column:disputed_from"`
	SettlementKind      string     `gorm:"column:settlement_kind"`
	SettlementPaymentID string     `gorm:"column:settlement_payment_id"`
	SettlementDisputeID string     `gorm:"column:settlement_dispute_id"`
	SettlementDecision  string     `gorm:"column:settlement_decision"`
	SettlementAmount    int64      `gorm:"column:settlement_amount"`
	SettlementClaimedAt *time.Time `gorm:"column:settlement_claimed_at"`
	Version             int64      `gorm:"column:version"`
	StartedAt           *time.Time `gorm:"column:started_at"`
	CompletedAt         *time.Time `gorm:"column:completed_at"`
	PaidOutAt           *time.Time `gorm:"column:paid_out_at"`
	CreatedAt           time.Time  `gorm:"column:created_at"`
	UpdatedAt           time.Time  `gorm:"column:updated_at"`
}

func (milestoneModel) TableName() string {
	return "escrow_milestones"
}

func milestoneModelFromEntity(item entities.Milestone) milestoneModel {
	model := milestoneModel{
		MilestoneID:         item.MilestoneID,
		ProjectID:           item.ProjectID,
		Title:               item.Title,
		Description:         item.Description,
		Amount:              item.Amount,
		Currency:            item.Currency,
		SortOrder:           item.Order,
		Status:              string(item.Status),
		DeliverableTypes:    copyOrEmpty(item.DeliverableTypes),
		PaymentID:           item.PaymentID,
		CurrentSubmissionID: item.CurrentSubmissionID,
		DisputedFrom:        string(item.DisputedFrom),
		Version:             item.Version,
		StartedAt:           normalizeOptionalTime(item.StartedAt),
		CompletedAt:         normalizeOptionalTime(item.CompletedAt),
		PaidOutAt:           normalizeOptionalTime(item.PaidOutAt),
		CreatedAt:           item.CreatedAt.UTC(),
		UpdatedAt:           item.UpdatedAt.UTC(),
	}
	if item.Settlement != nil {
		claimedAt := item.Settlement.ClaimedAt.UTC()
		model.SettlementKind = string(item.Settlement.Kind)
		model.SettlementPaymentID = item.Settlement.PaymentID
		model.SettlementDisputeID = item.Settlement.DisputeID
		model.SettlementDecision = string(item.Settlement.Decision)
		model.SettlementAmount = item.Settlement.Amount
		model.SettlementClaimedAt = &claimedAt
	}
	return model
}

// milestoneUpdates lists every mutable column. Explicit maps make gorm write
// zero values such as a cleared payment pointer.
func milestoneUpdates(item entities.Milestone, version int64) map[string]any {
	settlement := milestoneModelFromEntity(item)
	return map[string]any{
		"title":                 item.Title,
		"description":           item.Description,
		"amount":                item.Amount,
		"currency":              item.Currency,
		"status":                string(item.Status),
		"deliverable_types":     copyOrEmpty(item.DeliverableTypes),
		"payment_id":            item.PaymentID,
		"current_submission_id": item.CurrentSubmissionID,
		"disputed_from":         string(item.DisputedFrom),
		"settlement_kind":       settlement.SettlementKind,
		"settlement_payment_id": settlement.SettlementPaymentID,
		"settlement_dispute_id": settlement.SettlementDisputeID,
		"settlement_decision":   settlement.SettlementDecision,
		"settlement_amount":     settlement.SettlementAmount,
		"settlement_claimed_at": settlement.SettlementClaimedAt,
		"version":               version,
		"started_at":            normalizeOptionalTime(item.StartedAt),
		"completed_at":          normalizeOptionalTime(item.CompletedAt),
		"paid_out_at":           normalizeOptionalTime(item.PaidOutAt),
		"updated_at":            item.UpdatedAt.UTC(),
	}
}

func (m milestoneModel) toEntity() entities.Milestone {
	item := entities.Milestone{
		MilestoneID:         m.MilestoneID,
		ProjectID:           m.ProjectID,
		Title:               m.Title,
		Description:         m.Description,
		Amount:              m.Amount,
		Currency:            m.Currency,
		Order:               m.SortOrder,
		Status:              entities.MilestoneStatus(m.Status),
		DeliverableTypes:    copyOrEmpty(m.DeliverableTypes),
		PaymentID:           m.PaymentID,
		CurrentSubmissionID: m.CurrentSubmissionID,
		DisputedFrom:        entities.MilestoneStatus(m.DisputedFrom),
		Version:             m.Version,
		StartedAt:           normalizeOptionalTime(m.StartedAt),
		CompletedAt:         normalizeOptionalTime(m.CompletedAt),
		PaidOutAt:           normalizeOptionalTime(m.PaidOutAt),
		CreatedAt:           m.CreatedAt.UTC(),
		UpdatedAt:           m.UpdatedAt.UTC(),
	}
	if m.SettlementKind != "" {
		settlement := entities.Settlement{
			Kind:      entities.SettlementKind(m.SettlementKind),
			PaymentID: m.SettlementPaymentID,
			DisputeID: m.SettlementDisputeID,
			Decision:  entities.DisputeDecision(m.SettlementDecision),
			Amount:    m.SettlementAmount,
		}
		if m.SettlementClaimedAt != nil {
			settlement.ClaimedAt = m.SettlementClaimedAt.UTC()
		}
		item.Settlement = &settlement
	}
	return item
}

type paymentModel struct {
	PaymentID    string     `gorm:"column:payment_id;primaryKey"`
	MilestoneID  string     `gorm:"column:milestone_id;index"`
	ProjectID    string     `gorm:"column:project_id"`
	EmployerID   string     `gorm:"column:employer_id;index"`
	FreelancerID string     `gorm:"column:freelancer_id;index"`
	Amount       int64      `gorm:"column:amount"`
	Currency     string     `gorm:"column:currency"`
	Status       string     `gorm:"column:status"`
	IntentID     string     `gorm:"column:intent_id"`
	ClientSecret string     `gorm:"column:client_secret"`
	TransferID   string     `gorm:"column:transfer_id"`
	RefundID     string     `gorm:"column:refund_id"`
	PlatformFee  int64      `gorm:"column:platform_fee"`
	NetAmount    int64      `gorm:"column:net_amount"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	FundedAt     *time.Time `gorm:"column:funded_at"`
	ReleasedAt   *time.Time `gorm:"column:released_at"`
	RefundedAt   *time.Time `gorm:"column:refunded_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at"`
}

func (paymentModel) TableName() string {
	return "escrow_payments"
}

func paymentModelFromEntity(item entities.Payment) paymentModel {
	return paymentModel{
		PaymentID:    item.PaymentID,
		MilestoneID:  item.MilestoneID,
		ProjectID:    item.ProjectID,
		EmployerID:   item.EmployerID,
		FreelancerID: item.FreelancerID,
		Amount:       item.Amount,
		Currency:     item.Currency,
		Status:       string(item.Status),
		IntentID:     item.IntentID,
		ClientSecret: item.ClientSecret,
		TransferID:   item.TransferID,
		RefundID:     item.RefundID,
		PlatformFee:  item.PlatformFee,
		NetAmount:    item.NetAmount,
		CreatedAt:    item.CreatedAt.UTC(),
		FundedAt:     normalizeOptionalTime(item.FundedAt),
		ReleasedAt:   normalizeOptionalTime(item.ReleasedAt),
		RefundedAt:   normalizeOptionalTime(item.RefundedAt),
		UpdatedAt:    item.UpdatedAt.UTC(),
	}
}

func paymentUpdates(item entities.Payment) map[string]any {
	return map[string]any{
		"amount":       item.Amount,
		"status":       string(item.Status),
		"transfer_id":  item.TransferID,
		"refund_id":    item.RefundID,
		"platform_fee": item.PlatformFee,
		"net_amount":   item.NetAmount,
		"funded_at":    normalizeOptionalTime(item.FundedAt),
		"released_at":  normalizeOptionalTime(item.ReleasedAt),
		"refunded_at":  normalizeOptionalTime(item.RefundedAt),
		"updated_at":   item.UpdatedAt.UTC(),
	}
}

func (m paymentModel) toEntity() entities.Payment {
	return entities.Payment{
		PaymentID:    m.PaymentID,
		MilestoneID:  m.MilestoneID,
		ProjectID:    m.ProjectID,
		EmployerID:   m.EmployerID,
		FreelancerID: m.FreelancerID,
		Amount:       m.Amount,
		Currency:     m.Currency,
		Status:       entities.PaymentStatus(m.Status),
		IntentID:     m.IntentID,
		ClientSecret: m.ClientSecret,
		TransferID:   m.TransferID,
		RefundID:     m.RefundID,
		PlatformFee:  m.PlatformFee,
		NetAmount:    m.NetAmount,
		CreatedAt:    m.CreatedAt.UTC(),
		FundedAt:     normalizeOptionalTime(m.FundedAt),
		ReleasedAt:   normalizeOptionalTime(m.ReleasedAt),
		RefundedAt:   normalizeOptionalTime(m.RefundedAt),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}
}

type submissionModel struct {
	SubmissionID   string     `gorm:"column:submission_id;primaryKey"`
	MilestoneID    string     `gorm:"column:milestone_id;index"`
	ProjectID      string     `gorm:"column:project_id"`
	FreelancerID   string     `gorm:"column:freelancer_id"`
	Description    string     `gorm:"column:description"`
	Attachments    []byte     `gorm:"column:attachments;type:jsonb"`
	Status         string     `gorm:"column:status"`
	AIVerification []byte     `gorm:"column:ai_verification;type:jsonb"`
	ReviewFeedback string     `gorm:"column:review_feedback"`
	ReviewedBy     string     `gorm:"column:reviewed_by"`
	ReviewedAt     *time.Time `gorm:"column:reviewed_at"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at"`
}

func (submissionModel) TableName() string {
	return "escrow_submissions"
}

type attachmentJSON struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	MIMEType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

type verificationJSON struct {
	Result                string    `json:"result"`
	Confidence            float64   `json:"confidence"`
	Strengths             []string  `json:"strengths"`
	Issues                []string  `json:"issues"`
	Suggestions           []string  `json:"suggestions"`
	RequirementsSatisfied bool      `json:"requirements_satisfied"`
	RecommendedAction     string    `json:"recommended_action"`
	EscalatedToManual     bool      `json:"escalated_to_manual"`
	VerifiedAt            time.Time `json:"verified_at"`
}

func encodeAttachments(items []entities.Attachment) ([]byte, error) {
	rows := make([]attachmentJSON, 0, len(items))
	for _, item := range items {
		rows = append(rows, attachmentJSON{Name: item.Name, URL: item.URL, MIMEType: item.MIMEType, Size: item.Size})
	}
	return json.Marshal(rows)
}

func decodeAttachments(raw []byte) ([]entities.Attachment, error) {
	if len(raw) == 0 {
		return []entities.Attachment{}, nil
	}
	var rows []attachmentJSON
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	items := make([]entities.Attachment, 0, len(rows))
	for _, row := range rows {
		items = append(items, entities.Attachment{Name: row.Name, URL: row.URL, MIMEType: row.MIMEType, Size: row.Size})
	}
	return items, nil
}

func encodeVerification(item *entities.AIVerification) ([]byte, error) {
	if item == nil {
		return nil, nil
	}
	return json.Marshal(verificationJSON{
		Result:                string(item.Result),
		Confidence:            item.Confidence,
		Strengths:             copyOrEmpty(item.Feedback.Strengths),
		Issues:                copyOrEmpty(item.Feedback.Issues),
		Suggestions:           copyOrEmpty(item.Feedback.Suggestions),
		RequirementsSatisfied: item.RequirementsSatisfied,
		RecommendedAction:     item.RecommendedAction,
		EscalatedToManual:     item.EscalatedToManual,
		VerifiedAt:            item.VerifiedAt.UTC(),
	})
}

func decodeVerification(raw []byte) (*entities.AIVerification, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var row verificationJSON
	if err := json.Unmarshal(raw, &row); err != nil {
		return nil, err
	}
	return &entities.AIVerification{
		Result:     entities.VerificationStatus(row.Result),
		Confidence: row.Confidence,
		Feedback: entities.Feedback{
			Strengths:   row.Strengths,
			Issues:      row.Issues,
			Suggestions: row.Suggestions,
		},
		RequirementsSatisfied: row.RequirementsSatisfied,
		RecommendedAction:     row.RecommendedAction,
		EscalatedToManual:     row.EscalatedToManual,
		VerifiedAt:            row.VerifiedAt.UTC(),
	}, nil
}

func submissionModelFromEntity(item entities.Submission) (submissionModel, error) {
	attachments, err := encodeAttachments(item.Attachments)
	if err != nil {
		return submissionModel{}, err
	}
	verification, err := encodeVerification(item.AIVerification)
	if err != nil {
		return submissionModel{}, err
	}
	return submissionModel{
		SubmissionID:   item.SubmissionID,
		MilestoneID:    item.MilestoneID,
		ProjectID:      item.ProjectID,
		FreelancerID:   item.FreelancerID,
		Description:    item.Description,
		Attachments:    attachments,
		Status:         string(item.Status),
		AIVerification: verification,
		ReviewFeedback: item.ReviewFeedback,
		ReviewedBy:     item.ReviewedBy,
		ReviewedAt:     normalizeOptionalTime(item.ReviewedAt),
		CreatedAt:      item.CreatedAt.UTC(),
		UpdatedAt:      item.UpdatedAt.UTC(),
	}, nil
}

func (m submissionModel) toEntity() (entities.Submission, error) {
	attachments, err := decodeAttachments(m.Attachments)
	if err != nil {
		return entities.Submission{}, err
	}
	verification, err := decodeVerification(m.AIVerification)
	if err != nil {
		return entities.Submission{}, err
	}
	return entities.Submission{
		SubmissionID:   m.SubmissionID,
		MilestoneID:    m.MilestoneID,
		ProjectID:      m.ProjectID,
		FreelancerID:   m.FreelancerID,
		Description:    m.Description,
		Attachments:    attachments,
		Status:         entities.SubmissionStatus(m.Status),
		AIVerification: verification,
		ReviewFeedback: m.ReviewFeedback,
		ReviewedBy:     m.ReviewedBy,
		ReviewedAt:     normalizeOptionalTime(m.ReviewedAt),
		CreatedAt:      m.CreatedAt.UTC(),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}, nil
}

type disputeModel struct {
	DisputeID       string     `gorm:"column:dispute_id;primaryKey"`
	ProjectID       string     `gorm:"column:project_id;index"`
	MilestoneID     string     `gorm:"column:milestone_id;index"`
	PaymentID       string     `gorm:"column:payment_id"`
	RaisedBy        string     `gorm:"column:raised_by"`
	Reason          string     `gorm:"column:reason"`
	Description     string     `gorm:"column:description"`
	Attachments     []byte     `gorm:"column:attachments;type:jsonb"`
	Status          string     `gorm:"column:status;index"`
	AssignedAdminID string     `gorm:"column:assigned_admin_id;index"`
	OutcomeDecision string     `gorm:"column:outcome_decision"`
	OutcomeAmount   int64      `gorm:"column:outcome_amount"`
	OutcomeReason   string     `gorm:"column:outcome_reason"`
	ResolvedBy      string     `gorm:"column:resolved_by"`
	ResolvedAt      *time.Time `gorm:"column:resolved_at"`
	ClosedAt        *time.Time `gorm:"column:closed_at"`
	CreatedAt       time.Time  `gorm:"column:created_at"`
	UpdatedAt       time.Time  `gorm:"column:updated_at"`
}

func (disputeModel) TableName() string {
	return "escrow_disputes"
}

func disputeModelFromEntity(item entities.Dispute) (disputeModel, error) {
	attachments, err := encodeAttachments(item.Attachments)
	if err != nil {
		return disputeModel{}, err
	}
	row := disputeModel{
		DisputeID:       item.DisputeID,
		ProjectID:       item.ProjectID,
		MilestoneID:     item.MilestoneID,
		PaymentID:       item.PaymentID,
		RaisedBy:        item.RaisedBy,
		Reason:          item.Reason,
		Description:     item.Description,
		Attachments:     attachments,
		Status:          string(item.Status),
		AssignedAdminID: item.AssignedAdminID,
		ResolvedBy:      item.ResolvedBy,
		ResolvedAt:      normalizeOptionalTime(item.ResolvedAt),
		ClosedAt:        normalizeOptionalTime(item.ClosedAt),
		CreatedAt:       item.CreatedAt.UTC(),
		UpdatedAt:       item.UpdatedAt.UTC(),
	}
	if item.Outcome != nil {
		row.OutcomeDecision = string(item.Outcome.Decision)
		row.OutcomeAmount = item.Outcome.Amount
		row.OutcomeReason = item.Outcome.Reason
	}
	return row, nil
}

func disputeUpdates(item entities.Dispute) map[string]any {
	updates := map[string]any{
		"payment_id":        item.PaymentID,
		"status":            string(item.Status),
		"assigned_admin_id": item.AssignedAdminID,
		"resolved_by":       item.ResolvedBy,
		"resolved_at":       normalizeOptionalTime(item.ResolvedAt),
		"closed_at":         normalizeOptionalTime(item.ClosedAt),
		"updated_at":        item.UpdatedAt.UTC(),
	}
	if item.Outcome != nil {
		updates["outcome_decision"] = string(item.Outcome.Decision)
		updates["outcome_amount"] = item.Outcome.Amount
		updates["outcome_reason"] = item.Outcome.Reason
	}
	return updates
}

func (m disputeModel) toEntity(messages []disputeMessageModel) (entities.Dispute, error) {
	attachments, err := decodeAttachments(m.Attachments)
	if err != nil {
		return entities.Dispute{}, err
	}
	item := entities.Dispute{
		DisputeID:       m.DisputeID,
		ProjectID:       m.ProjectID,
		MilestoneID:     m.MilestoneID,
		PaymentID:       m.PaymentID,
		RaisedBy:        m.RaisedBy,
		Reason:          m.Reason,
		Description:     m.Description,
		Attachments:     attachments,
		Status:          entities.DisputeStatus(m.Status),
		AssignedAdminID: m.AssignedAdminID,
		Conversation:    make([]entities.DisputeMessage, 0, len(messages)),
		ResolvedBy:      m.ResolvedBy,
		ResolvedAt:      normalizeOptionalTime(m.ResolvedAt),
		ClosedAt:        normalizeOptionalTime(m.ClosedAt),
		CreatedAt:       m.CreatedAt.UTC(),
		UpdatedAt:       m.UpdatedAt.UTC(),
	}
	if m.OutcomeDecision != "" {
		item.Outcome = &entities.DisputeOutcome{
			Decision: entities.DisputeDecision(m.OutcomeDecision),
			Amount:   m.OutcomeAmount,
			Reason:   m.OutcomeReason,
		}
	}
	for _, message := range messages {
		item.Conversation = append(item.Conversation, entities.DisputeMessage{
			Sequence: message.Sequence,
			SenderID: message.SenderID,
			Message:  message.Message,
			SentAt:   message.SentAt.UTC(),
		})
	}
	return item, nil
}

type disputeMessageModel struct {
	DisputeID string    `gorm:"column:dispute_id;primaryKey"`
	Sequence  int       `gorm:"column:sequence;primaryKey"`
	SenderID  string    `gorm:"column:sender_id"`
	Message   string    `gorm:"column:message"`
	SentAt    time.Time `gorm:"column:sent_at"`
}

func (disputeMessageModel) TableName() string {
	return "escrow_dispute_messages"
}

type walletModel struct {
	UserID    string    `gorm:"column:user_id;primaryKey"`
	Currency  string    `gorm:"column:currency;primaryKey"`
	Balance   int64     `gorm:"column:balance"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (walletModel) TableName() string {
	return "escrow_wallets"
}

type idempotencyModel struct {
	Key             string    `gorm:"column:key;primaryKey"`
	RequestHash     string    `gorm:"column:request_hash"`
	ResponsePayload []byte    `gorm:"column:response_payload"`
	ExpiresAt       time.Time `gorm:"column:expires_at"`
}

func (idempotencyModel) TableName() string {
	return "escrow_idempotency"
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status;index"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	SentAt       *time.Time `gorm:"column:sent_at"`
}

func (outboxModel) TableName() string {
	return "escrow_outbox"
}

type eventDedupModel struct {
	EventID     string    `gorm:"column:event_id;primaryKey"`
	PayloadHash string    `gorm:"column:payload_hash"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
	ProcessedAt time.Time `gorm:"column:processed_at"`
}

func (eventDedupModel) TableName() string {
	return "escrow_event_dedup"
}

func copyOrEmpty(items []string) []string {
	if len(items) == 0 {
		return []string{}
	}
	return append([]string(nil), items...)
}

func normalizeOptionalTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	timestamp := value.UTC()
	return &timestamp
}
