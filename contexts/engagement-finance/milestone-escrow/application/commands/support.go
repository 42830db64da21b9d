package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/entities"
	domainerrors "milestonepay/contexts/engagement-finance/milestone-escrow/domain/errors"
	"milestonepay/contexts/engagement-finance/milestone-escrow/ports"
)

const defaultIdempotencyTTL = 7 * 24 * time.Hour

func resolveNow(clock ports.Clock) time.Time {
	if clock == nil {
		return time.Now().UTC()
	}
	return clock.Now().UTC()
}

func hashRequest(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func resolveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return defaultIdempotencyTTL
	}
	return ttl
}

// replayIdempotent returns the stored response for key when one exists. A key
// reused for a different request is a conflict.
func replayIdempotent[T any](
	ctx context.Context,
	store ports.IdempotencyStore,
	key string,
	requestHash string,
	now time.Time,
) (T, bool, error) {
	var zero T
	if store == nil || strings.TrimSpace(key) == "" {
		return zero, false, nil
	}
	record, found, err := store.GetRecord(ctx, strings.TrimSpace(key), now)
	if err != nil || !found {
		return zero, false, err
	}
	if record.RequestHash != requestHash {
		return zero, false, domainerrors.ErrIdempotencyKeyConflict
	}
	var replayed T
	if err := json.Unmarshal(record.ResponsePayload, &replayed); err != nil {
		return zero, false, err
	}
	return replayed, true, nil
}

func storeIdempotent(
	ctx context.Context,
	store ports.IdempotencyStore,
	key string,
	requestHash string,
	response any,
	now time.Time,
	ttl time.Duration,
) error {
	if store == nil || strings.TrimSpace(key) == "" {
		return nil
	}
	payload, err := json.Marshal(response)
	if err != nil {
		return err
	}
	return store.PutRecord(ctx, ports.IdempotencyRecord{
		Key:             strings.TrimSpace(key),
		RequestHash:     requestHash,
		ResponsePayload: payload,
		ExpiresAt:       now.Add(resolveTTL(ttl)),
	})
}

// activePayment loads the milestone's payment when it still counts as active.
func activePayment(
	ctx context.Context,
	payments ports.PaymentRepository,
	milestone entities.Milestone,
) (entities.Payment, bool, error) {
	if strings.TrimSpace(milestone.PaymentID) == "" {
		return entities.Payment{}, false, nil
	}
	payment, err := payments.GetPayment(ctx, milestone.PaymentID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			return entities.Payment{}, false, nil
		}
		return entities.Payment{}, false, err
	}
	if !payment.Active() {
		return payment, false, nil
	}
	return payment, true, nil
}

func loadMilestoneAndProject(
	ctx context.Context,
	milestones ports.MilestoneRepository,
	projects ports.ProjectRepository,
	milestoneID string,
) (entities.Milestone, entities.Project, error) {
	milestone, err := milestones.GetMilestone(ctx, strings.TrimSpace(milestoneID))
	if err != nil {
		return entities.Milestone{}, entities.Project{}, err
	}
	project, err := projects.GetProject(ctx, milestone.ProjectID)
	if err != nil {
		return entities.Milestone{}, entities.Project{}, err
	}
	return milestone, project, nil
}

func reconciliationMetadata(milestone entities.Milestone, project entities.Project, paymentID string) map[string]string {
	metadata := map[string]string{
		"milestoneId":  milestone.MilestoneID,
		"projectId":    project.ProjectID,
		"employerId":   project.EmployerID,
		"freelancerId": project.FreelancerID,
	}
	if paymentID != "" {
		metadata["paymentId"] = paymentID
	}
	return metadata
}

func payoutKey(milestoneID string, paymentID string) string {
	return "payout:" + milestoneID + ":" + paymentID
}

func refundKey(milestoneID string, paymentID string) string {
	return "refund:" + milestoneID + ":" + paymentID
}

func cloneAttachments(items []entities.Attachment) []entities.Attachment {
	if len(items) == 0 {
		return []entities.Attachment{}
	}
	out := make([]entities.Attachment, 0, len(items))
	for _, item := range items {
		out = append(out, entities.Attachment{
			Name:     strings.TrimSpace(item.Name),
			URL:      strings.TrimSpace(item.URL),
			MIMEType: strings.TrimSpace(item.MIMEType),
			Size:     item.Size,
		})
	}
	return out
}

func normalizeCurrency(currency string, fallback string) string {
	value := strings.ToLower(strings.TrimSpace(currency))
	if value == "" {
		value = strings.ToLower(strings.TrimSpace(fallback))
	}
	if value == "" {
		value = "usd"
	}
	return value
}

// wrapUpstream marks provider failures as UpstreamFailure without wrapping twice.
func wrapUpstream(op string, err error) error {
	if err == nil || errors.Is(err, domainerrors.ErrUpstream) {
		return err
	}
	return domainerrors.Upstream(op, err)
}

func commitObserved(
	ctx context.Context,
	writer ports.AggregateWriter,
	metrics ports.Metrics,
	operation string,
	mutation ports.Mutation,
) error {
	err := writer.Commit(ctx, mutation)
	metrics.ObserveCommit(operation, err)
	return err
}
