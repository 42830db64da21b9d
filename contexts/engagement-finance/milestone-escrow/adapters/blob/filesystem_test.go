package blobadapter

import (
	"context"
	"errors"
	"strings"
	"testing"

	domainerrors "milestonepay/contexts/engagement-finance/milestone-escrow/domain/errors"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://localhost:8080/files")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	url, err := store.Store(context.Background(), "../../logo.png", "image/png", []byte("png-bytes"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if !strings.HasPrefix(url, "http://localhost:8080/files/") || !strings.HasSuffix(url, "/logo.png") {
		t.Fatalf("unexpected url %q", url)
	}
	data, err := store.Fetch(context.Background(), url)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Fatalf("unexpected content %q", data)
	}
}

func TestFileStoreMissingBlob(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), "http://localhost:8080/files")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	_, err = store.Fetch(context.Background(), "http://localhost:8080/files/missing/file.png")
	if !errors.Is(err, domainerrors.ErrBlobNotFound) {
		t.Fatalf("expected blob not found, got %v", err)
	}
	_, err = store.Fetch(context.Background(), "ftp://elsewhere/file.png")
	if !errors.Is(err, domainerrors.ErrBlobNotFound) {
		t.Fatalf("expected blob not found for unsupported scheme, got %v", err)
	}
}
