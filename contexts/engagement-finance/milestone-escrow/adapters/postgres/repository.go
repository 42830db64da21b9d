package postgresadapter

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/entities"
	domainerrors "milestonepay/contexts/engagement-finance/milestone-escrow/domain/errors"
	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/services"
	"milestonepay/contexts/engagement-finance/milestone-escrow/ports"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) GetProject(ctx context.Context, projectID string) (entities.Project, error) {
	var row projectModel
	err := r.db.WithContext(ctx).
		Where("project_id = ?", strings.TrimSpace(projectID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Project{}, domainerrors.ErrProjectNotFound
		}
		return entities.Project{}, err
	}
	return row.toEntity(), nil
}

// UpsertProject refreshes membership fields and leaves counters and
// created_at untouched on an existing row.
func (r *Repository) UpsertProject(ctx context.Context, project entities.Project) (entities.Project, error) {
	row := projectModelFromEntity(project)
	row.TotalMilestones = 0
	row.CompletedMilestones = 0
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "project_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"title",
				"description",
				"employer_id",
				"freelancer_id",
				"currency",
				"requirements",
				"brand_name",
				"color_scheme",
				"style_preferences",
				"industry",
				"target_audience",
				"updated_at",
			}),
		}).
		Create(&row).
		Error
	if err != nil {
		return entities.Project{}, err
	}
	return r.GetProject(ctx, project.ProjectID)
}

func (r *Repository) GetAccount(ctx context.Context, userID string) (entities.Account, error) {
	var row accountModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", strings.TrimSpace(userID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Account{}, domainerrors.ErrAccountNotFound
		}
		return entities.Account{}, err
	}
	return row.toEntity(), nil
}

// UpsertAccount keeps a previously stored payer profile when the incoming
// record has none.
func (r *Repository) UpsertAccount(ctx context.Context, account entities.Account) error {
	row := accountModel{
		UserID:            strings.TrimSpace(account.UserID),
		Role:              string(account.Role),
		Email:             account.Email,
		Name:              account.Name,
		PayerProfileID:    account.PayerProfileID,
		PayoutDestination: account.PayoutDestination,
		Active:            account.Active,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"role":               row.Role,
				"email":              row.Email,
				"name":               row.Name,
				"payout_destination": row.PayoutDestination,
				"active":             row.Active,
				"payer_profile_id": gorm.Expr(
					"COALESCE(NULLIF(?, ''), escrow_accounts.payer_profile_id)",
					row.PayerProfileID,
				),
			}),
		}).
		Create(&row).
		Error
}

func (r *Repository) SetPayerProfile(ctx context.Context, userID string, payerProfileID string) error {
	result := r.db.WithContext(ctx).
		Model(&accountModel{}).
		Where("user_id = ?", strings.TrimSpace(userID)).
		Update("payer_profile_id", strings.TrimSpace(payerProfileID))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrAccountNotFound
	}
	return nil
}

func (r *Repository) ListAdminLoads(ctx context.Context) ([]services.AdminLoad, error) {
	type loadRow struct {
		AdminID        string `gorm:"column:admin_id"`
		ActiveDisputes int    `gorm:"column:active_disputes"`
	}
	var rows []loadRow
	err := r.db.WithContext(ctx).
		Raw(`SELECT a.user_id AS admin_id, COUNT(d.dispute_id) AS active_disputes
			FROM escrow_accounts a
			LEFT JOIN escrow_disputes d
				ON d.assigned_admin_id = a.user_id AND d.status IN ?
			WHERE a.role = ? AND a.active
			GROUP BY a.user_id
			ORDER BY a.user_id ASC`,
			activeDisputeStatuses(), string(entities.RoleAdmin)).
		Scan(&rows).
		Error
	if err != nil {
		return nil, err
	}
	items := make([]services.AdminLoad, 0, len(rows))
	for _, row := range rows {
		items = append(items, services.AdminLoad{AdminID: row.AdminID, ActiveDisputes: row.ActiveDisputes})
	}
	return items, nil
}

func (r *Repository) GetMilestone(ctx context.Context, milestoneID string) (entities.Milestone, error) {
	var row milestoneModel
	err := r.db.WithContext(ctx).
		Where("milestone_id = ?", strings.TrimSpace(milestoneID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Milestone{}, domainerrors.ErrMilestoneNotFound
		}
		return entities.Milestone{}, err
	}
	return row.toEntity(), nil
}

func (r *Repository) ListMilestones(ctx context.Context, projectID string) ([]entities.Milestone, error) {
	var rows []milestoneModel
	err := r.db.WithContext(ctx).
		Where("project_id = ?", strings.TrimSpace(projectID)).
		Order("sort_order ASC").
		Order("created_at ASC").
		Find(&rows).
		Error
	if err != nil {
		return nil, err
	}
	items := make([]entities.Milestone, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) GetPayment(ctx context.Context, paymentID string) (entities.Payment, error) {
	var row paymentModel
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", strings.TrimSpace(paymentID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Payment{}, domainerrors.ErrPaymentNotFound
		}
		return entities.Payment{}, err
	}
	return row.toEntity(), nil
}

func (r *Repository) ListPaymentsByMilestone(ctx context.Context, milestoneID string) ([]entities.Payment, error) {
	var rows []paymentModel
	err := r.db.WithContext(ctx).
		Where("milestone_id = ?", strings.TrimSpace(milestoneID)).
		Order("created_at DESC").
		Find(&rows).
		Error
	if err != nil {
		return nil, err
	}
	return paymentsFromRows(rows), nil
}

func (r *Repository) ListPayments(ctx context.Context, filter ports.PaymentFilter) ([]entities.Payment, error) {
	query := r.db.WithContext(ctx).Model(&paymentModel{})
	if userID := strings.TrimSpace(filter.UserID); userID != "" {
		query = query.Where("employer_id = ? OR freelancer_id = ?", userID, userID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var rows []paymentModel
	if err := query.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return paymentsFromRows(rows), nil
}

func (r *Repository) GetSubmission(ctx context.Context, submissionID string) (entities.Submission, error) {
	var row submissionModel
	err := r.db.WithContext(ctx).
		Where("submission_id = ?", strings.TrimSpace(submissionID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Submission{}, domainerrors.ErrSubmissionNotFound
		}
		return entities.Submission{}, err
	}
	return row.toEntity()
}

func (r *Repository) ListSubmissions(ctx context.Context, milestoneID string) ([]entities.Submission, error) {
	var rows []submissionModel
	err := r.db.WithContext(ctx).
		Where("milestone_id = ?", strings.TrimSpace(milestoneID)).
		Order("created_at ASC").
		Order("submission_id ASC").
		Find(&rows).
		Error
	if err != nil {
		return nil, err
	}
	items := make([]entities.Submission, 0, len(rows))
	for _, row := range rows {
		item, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *Repository) GetDispute(ctx context.Context, disputeID string) (entities.Dispute, error) {
	var row disputeModel
	err := r.db.WithContext(ctx).
		Where("dispute_id = ?", strings.TrimSpace(disputeID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Dispute{}, domainerrors.ErrDisputeNotFound
		}
		return entities.Dispute{}, err
	}
	items, err := r.withMessages(ctx, []disputeModel{row})
	if err != nil {
		return entities.Dispute{}, err
	}
	return items[0], nil
}

func (r *Repository) ListDisputes(ctx context.Context, filter ports.DisputeFilter) ([]entities.Dispute, error) {
	query := r.db.WithContext(ctx).Model(&disputeModel{})
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if adminID := strings.TrimSpace(filter.AssignedAdminID); adminID != "" {
		query = query.Where("assigned_admin_id = ?", adminID)
	}
	if participantID := strings.TrimSpace(filter.ParticipantID); participantID != "" {
		query = query.Where(
			`raised_by = ? OR project_id IN (
				SELECT project_id FROM escrow_projects WHERE employer_id = ? OR freelancer_id = ?
			)`,
			participantID, participantID, participantID,
		)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	var rows []disputeModel
	if err := query.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return r.withMessages(ctx, rows)
}

func (r *Repository) withMessages(ctx context.Context, rows []disputeModel) ([]entities.Dispute, error) {
	if len(rows) == 0 {
		return []entities.Dispute{}, nil
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.DisputeID)
	}
	var messages []disputeMessageModel
	err := r.db.WithContext(ctx).
		Where("dispute_id IN ?", ids).
		Order("dispute_id ASC").
		Order("sequence ASC").
		Find(&messages).
		Error
	if err != nil {
		return nil, err
	}
	byDispute := make(map[string][]disputeMessageModel, len(rows))
	for _, message := range messages {
		byDispute[message.DisputeID] = append(byDispute[message.DisputeID], message)
	}
	items := make([]entities.Dispute, 0, len(rows))
	for _, row := range rows {
		item, err := row.toEntity(byDispute[row.DisputeID])
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *Repository) ListWalletBalances(ctx context.Context, userID string) ([]entities.WalletBalance, error) {
	var rows []walletModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", strings.TrimSpace(userID)).
		Order("currency ASC").
		Find(&rows).
		Error
	if err != nil {
		return nil, err
	}
	items := make([]entities.WalletBalance, 0, len(rows))
	for _, row := range rows {
		items = append(items, entities.WalletBalance{UserID: row.UserID, Currency: row.Currency, Balance: row.Balance})
	}
	return items, nil
}

func paymentsFromRows(rows []paymentModel) []entities.Payment {
	items := make([]entities.Payment, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items
}

func activeDisputeStatuses() []string {
	return []string{string(entities.DisputeStatusOpen), string(entities.DisputeStatusUnderReview)}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
