package memory

import (
	"context"
	"strings"
	"time"

	domainerrors "milestonepay/contexts/engagement-finance/milestone-escrow/domain/errors"
	"milestonepay/contexts/engagement-finance/milestone-escrow/ports"
)

func (s *Store) GetRecord(_ context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.idempotency[strings.TrimSpace(key)]
	if !ok || !now.Before(record.ExpiresAt) {
		return ports.IdempotencyRecord{}, false, nil
	}
	record.ResponsePayload = append([]byte(nil), record.ResponsePayload...)
	return record, true, nil
}

func (s *Store) PutRecord(_ context.Context, record ports.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.idempotency[record.Key]; ok && existing.RequestHash != record.RequestHash &&
		time.Now().UTC().Before(existing.ExpiresAt) {
		return domainerrors.ErrIdempotencyKeyConflict
	}
	record.ResponsePayload = append([]byte(nil), record.ResponsePayload...)
	s.idempotency[record.Key] = record
	return nil
}

// ReserveEvent reports true when eventID was already reserved and is still live.
func (s *Store) ReserveEvent(_ context.Context, eventID string, payloadHash string, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	eventID = strings.TrimSpace(eventID)
	if existing, ok := s.dedup[eventID]; ok && time.Now().UTC().Before(existing.expiresAt) {
		return true, nil
	}
	s.dedup[eventID] = dedupRow{payloadHash: payloadHash, expiresAt: expiresAt}
	return false, nil
}

func (s *Store) ReleaseEvent(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.dedup, strings.TrimSpace(eventID))
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]ports.OutboxMessage, 0)
	for _, row := range s.outbox {
		if row.sentAt != nil {
			continue
		}
		items = append(items, row.message)
		if limit > 0 && len(items) >= limit {
			break
		}
	}
	return items, nil
}

func (s *Store) MarkOutboxSent(_ context.Context, outboxID string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.outbox {
		if s.outbox[i].message.OutboxID == outboxID {
			sent := sentAt.UTC()
			s.outbox[i].sentAt = &sent
			return nil
		}
	}
	return domainerrors.ErrNotFound
}
