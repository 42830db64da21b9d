package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/entities"
	domainerrors "milestonepay/contexts/engagement-finance/milestone-escrow/domain/errors"
	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/services"
	"milestonepay/contexts/engagement-finance/milestone-escrow/ports"

	"github.com/google/uuid"
)

// Seed preloads the directory and milestones for dev runs and tests.
type Seed struct {
	Projects   []entities.Project
	Accounts   []entities.Account
	Milestones []entities.Milestone
}

type outboxRow struct {
	message ports.OutboxMessage
	sentAt  *time.Time
}

type dedupRow struct {
	payloadHash string
	expiresAt   time.Time
}

// Store keeps every milestone aggregate behind one lock. Commit holds the
// write lock for the whole mutation so conditions and writes are atomic.
type Store struct {
	mu sync.RWMutex

	projects    map[string]entities.Project
	accounts    map[string]entities.Account
	milestones  map[string]entities.Milestone
	payments    map[string]entities.Payment
	submissions map[string]entities.Submission
	disputes    map[string]entities.Dispute
	wallets     map[string]entities.WalletBalance
	idempotency map[string]ports.IdempotencyRecord
	dedup       map[string]dedupRow
	outbox      []outboxRow
}

func NewStore(seed Seed) *Store {
	store := &Store{
		projects:    make(map[string]entities.Project, len(seed.Projects)),
		accounts:    make(map[string]entities.Account, len(seed.Accounts)),
		milestones:  make(map[string]entities.Milestone, len(seed.Milestones)),
		payments:    make(map[string]entities.Payment),
		submissions: make(map[string]entities.Submission),
		disputes:    make(map[string]entities.Dispute),
		wallets:     make(map[string]entities.WalletBalance),
		idempotency: make(map[string]ports.IdempotencyRecord),
		dedup:       make(map[string]dedupRow),
	}
	for _, item := range seed.Projects {
		store.projects[item.ProjectID] = cloneProject(item)
	}
	for _, item := range seed.Accounts {
		store.accounts[item.UserID] = item
	}
	for _, item := range seed.Milestones {
		if item.Version == 0 {
			item.Version = 1
		}
		if item.Status == "" {
			item.Status = entities.MilestoneStatusPending
		}
		store.milestones[item.MilestoneID] = cloneMilestone(item)
		if project, ok := store.projects[item.ProjectID]; ok {
			project.TotalMilestones++
			if item.Status == entities.MilestoneStatusCompleted {
				project.CompletedMilestones++
			}
			store.projects[item.ProjectID] = project
		}
	}
	return store
}

func (s *Store) GetProject(_ context.Context, projectID string) (entities.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.projects[strings.TrimSpace(projectID)]
	if !ok {
		return entities.Project{}, domainerrors.ErrProjectNotFound
	}
	return cloneProject(item), nil
}

func (s *Store) UpsertProject(_ context.Context, project entities.Project) (entities.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.projects[project.ProjectID]; ok {
		project.TotalMilestones = existing.TotalMilestones
		project.CompletedMilestones = existing.CompletedMilestones
		project.CreatedAt = existing.CreatedAt
	}
	s.projects[project.ProjectID] = cloneProject(project)
	return cloneProject(project), nil
}

func (s *Store) GetAccount(_ context.Context, userID string) (entities.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.accounts[strings.TrimSpace(userID)]
	if !ok {
		return entities.Account{}, domainerrors.ErrAccountNotFound
	}
	return item, nil
}

func (s *Store) UpsertAccount(_ context.Context, account entities.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[account.UserID] = account
	return nil
}

func (s *Store) SetPayerProfile(_ context.Context, userID string, payerProfileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.accounts[strings.TrimSpace(userID)]
	if !ok {
		return domainerrors.ErrAccountNotFound
	}
	item.PayerProfileID = payerProfileID
	s.accounts[item.UserID] = item
	return nil
}

func (s *Store) ListAdminLoads(_ context.Context) ([]services.AdminLoad, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	loads := make(map[string]int)
	for _, account := range s.accounts {
		if account.Role == entities.RoleAdmin && account.Active {
			loads[account.UserID] = 0
		}
	}
	for _, dispute := range s.disputes {
		if !dispute.Status.Active() {
			continue
		}
		if _, ok := loads[dispute.AssignedAdminID]; ok {
			loads[dispute.AssignedAdminID]++
		}
	}
	items := make([]services.AdminLoad, 0, len(loads))
	for adminID, active := range loads {
		items = append(items, services.AdminLoad{AdminID: adminID, ActiveDisputes: active})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].AdminID < items[j].AdminID })
	return items, nil
}

func (s *Store) GetMilestone(_ context.Context, milestoneID string) (entities.Milestone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.milestones[strings.TrimSpace(milestoneID)]
	if !ok {
		return entities.Milestone{}, domainerrors.ErrMilestoneNotFound
	}
	return cloneMilestone(item), nil
}

func (s *Store) ListMilestones(_ context.Context, projectID string) ([]entities.Milestone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	projectID = strings.TrimSpace(projectID)
	items := make([]entities.Milestone, 0)
	for _, item := range s.milestones {
		if item.ProjectID == projectID {
			items = append(items, cloneMilestone(item))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Order == items[j].Order {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].Order < items[j].Order
	})
	return items, nil
}

func (s *Store) GetPayment(_ context.Context, paymentID string) (entities.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.payments[strings.TrimSpace(paymentID)]
	if !ok {
		return entities.Payment{}, domainerrors.ErrPaymentNotFound
	}
	return item, nil
}

func (s *Store) ListPaymentsByMilestone(_ context.Context, milestoneID string) ([]entities.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	milestoneID = strings.TrimSpace(milestoneID)
	items := make([]entities.Payment, 0)
	for _, item := range s.payments {
		if item.MilestoneID == milestoneID {
			items = append(items, item)
		}
	}
	sortPaymentsNewestFirst(items)
	return items, nil
}

func (s *Store) ListPayments(_ context.Context, filter ports.PaymentFilter) ([]entities.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID := strings.TrimSpace(filter.UserID)
	items := make([]entities.Payment, 0)
	for _, item := range s.payments {
		if userID != "" && item.EmployerID != userID && item.FreelancerID != userID {
			continue
		}
		items = append(items, item)
	}
	sortPaymentsNewestFirst(items)
	if filter.Limit > 0 && len(items) > filter.Limit {
		items = items[:filter.Limit]
	}
	return items, nil
}

func (s *Store) GetSubmission(_ context.Context, submissionID string) (entities.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.submissions[strings.TrimSpace(submissionID)]
	if !ok {
		return entities.Submission{}, domainerrors.ErrSubmissionNotFound
	}
	return cloneSubmission(item), nil
}

func (s *Store) ListSubmissions(_ context.Context, milestoneID string) ([]entities.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	milestoneID = strings.TrimSpace(milestoneID)
	items := make([]entities.Submission, 0)
	for _, item := range s.submissions {
		if item.MilestoneID == milestoneID {
			items = append(items, cloneSubmission(item))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].SubmissionID < items[j].SubmissionID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items, nil
}

func (s *Store) GetDispute(_ context.Context, disputeID string) (entities.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.disputes[strings.TrimSpace(disputeID)]
	if !ok {
		return entities.Dispute{}, domainerrors.ErrDisputeNotFound
	}
	return cloneDispute(item), nil
}

func (s *Store) ListDisputes(_ context.Context, filter ports.DisputeFilter) ([]entities.Dispute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	participantID := strings.TrimSpace(filter.ParticipantID)
	items := make([]entities.Dispute, 0)
	for _, item := range s.disputes {
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		if filter.AssignedAdminID != "" && item.AssignedAdminID != filter.AssignedAdminID {
			continue
		}
		if participantID != "" && item.RaisedBy != participantID {
			project, ok := s.projects[item.ProjectID]
			if !ok || !project.IsParticipant(participantID) {
				continue
			}
		}
		items = append(items, cloneDispute(item))
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	if filter.Limit > 0 && len(items) > filter.Limit {
		items = items[:filter.Limit]
	}
	return items, nil
}

func (s *Store) ListWalletBalances(_ context.Context, userID string) ([]entities.WalletBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID = strings.TrimSpace(userID)
	items := make([]entities.WalletBalance, 0)
	for _, item := range s.wallets {
		if item.UserID == userID {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Currency < items[j].Currency })
	return items, nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func sortPaymentsNewestFirst(items []entities.Payment) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].PaymentID > items[j].PaymentID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

func walletKey(userID string, currency string) string {
	return userID + "|" + strings.ToLower(currency)
}

func cloneProject(item entities.Project) entities.Project {
	item.Requirements = append([]string(nil), item.Requirements...)
	return item
}

func cloneMilestone(item entities.Milestone) entities.Milestone {
	item.DeliverableTypes = append([]string(nil), item.DeliverableTypes...)
	if item.Settlement != nil {
		settlement := *item.Settlement
		item.Settlement = &settlement
	}
	return item
}

func cloneSubmission(item entities.Submission) entities.Submission {
	item.Attachments = append([]entities.Attachment(nil), item.Attachments...)
	if item.AIVerification != nil {
		verification := *item.AIVerification
		verification.Feedback = entities.Feedback{
			Strengths:   append([]string(nil), verification.Feedback.Strengths...),
			Issues:      append([]string(nil), verification.Feedback.Issues...),
			Suggestions: append([]string(nil), verification.Feedback.Suggestions...),
		}
		item.AIVerification = &verification
	}
	return item
}

func cloneDispute(item entities.Dispute) entities.Dispute {
	item.Attachments = append([]entities.Attachment(nil), item.Attachments...)
	item.Conversation = append([]entities.DisputeMessage(nil), item.Conversation...)
	if item.Outcome != nil {
		outcome := *item.Outcome
		item.Outcome = &outcome
	}
	return item
}
