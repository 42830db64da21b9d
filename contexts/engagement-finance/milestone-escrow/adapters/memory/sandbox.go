package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	domainerrors "milestonepay/contexts/engagement-finance/milestone-escrow/domain/errors"
	"milestonepay/contexts/engagement-finance/milestone-escrow/ports"

	"github.com/google/uuid"
)

// FundsSandbox is an in-process funds service for dev and tests. A repeated
// idempotency key returns the first result without moving money again.
type FundsSandbox struct {
	mu sync.Mutex

	results   map[string]string
	secrets   map[string]string
	transfers []ports.TransferRequest
	refunds   []ports.RefundRequest
}

func NewFundsSandbox() *FundsSandbox {
	return &FundsSandbox{
		results: make(map[string]string),
		secrets: make(map[string]string),
	}
}

func (f *FundsSandbox) CreatePayerProfile(_ context.Context, req ports.PayerProfileRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keyedLocked(req.IdempotencyKey, "cus_"), nil
}

func (f *FundsSandbox) CreateIntent(_ context.Context, req ports.IntentRequest) (ports.Intent, error) {
	if req.Amount <= 0 {
		return ports.Intent{}, domainerrors.Upstream("create intent", fmt.Errorf("amount must be positive"))
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	intentID := f.keyedLocked(req.IdempotencyKey, "pi_")
	secret, ok := f.secrets[intentID]
	if !ok {
		secret = intentID + "_secret_" + uuid.NewString()[:8]
		f.secrets[intentID] = secret
	}
	return ports.Intent{IntentID: intentID, ClientSecret: secret}, nil
}

func (f *FundsSandbox) Transfer(_ context.Context, req ports.TransferRequest) (string, error) {
	if strings.TrimSpace(req.Destination) == "" {
		return "", domainerrors.Upstream("transfer", fmt.Errorf("destination required"))
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if id, ok := f.results[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return id, nil
	}
	f.transfers = append(f.transfers, req)
	return f.keyedLocked(req.IdempotencyKey, "tr_"), nil
}

func (f *FundsSandbox) Refund(_ context.Context, req ports.RefundRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if id, ok := f.results[req.IdempotencyKey]; ok && req.IdempotencyKey != "" {
		return id, nil
	}
	f.refunds = append(f.refunds, req)
	return f.keyedLocked(req.IdempotencyKey, "re_"), nil
}

// Transfers returns the transfers that actually moved money.
func (f *FundsSandbox) Transfers() []ports.TransferRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ports.TransferRequest(nil), f.transfers...)
}

// Refunds returns the refunds that actually moved money.
func (f *FundsSandbox) Refunds() []ports.RefundRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ports.RefundRequest(nil), f.refunds...)
}

func (f *FundsSandbox) keyedLocked(key string, prefix string) string {
	if key != "" {
		if id, ok := f.results[key]; ok {
			return id
		}
	}
	id := prefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	if key != "" {
		f.results[key] = id
	}
	return id
}

// BlobStore keeps uploaded files in memory under memory:// URLs.
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string][]byte)}
}

func (b *BlobStore) Store(_ context.Context, name string, _ string, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	url := "memory://blobs/" + uuid.NewString() + "/" + strings.TrimSpace(name)
	b.blobs[url] = append([]byte(nil), data...)
	return url, nil
}

func (b *BlobStore) Fetch(_ context.Context, url string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data, ok := b.blobs[url]
	if !ok {
		return nil, domainerrors.ErrBlobNotFound
	}
	return append([]byte(nil), data...), nil
}
