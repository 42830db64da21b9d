package blobadapter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	domainerrors "milestonepay/contexts/engagement-finance/milestone-escrow/domain/errors"

	"github.com/google/uuid"
)

const maxRemoteBytes = 20 << 20

// FileStore writes uploads under a root directory and hands out URLs below
// PublicBaseURL. Fetch also follows plain http(s) URLs so externally hosted
// attachments can be verified.
type FileStore struct {
	root    string
	baseURL string
	client  *http.Client
}

func NewFileStore(root string, publicBaseURL string) (*FileStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("blob root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{
		root:    root,
		baseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Root is the directory served under the public base URL.
func (s *FileStore) Root() string {
	return s.root
}

func (s *FileStore) Store(_ context.Context, name string, _ string, data []byte) (string, error) {
	fileName := sanitizeName(name)
	key := path.Join(uuid.NewString(), fileName)
	target := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", err
	}
	return s.baseURL + "/" + key, nil
}

func (s *FileStore) Fetch(ctx context.Context, url string) ([]byte, error) {
	if s.baseURL != "" && strings.HasPrefix(url, s.baseURL+"/") {
		key := strings.TrimPrefix(url, s.baseURL+"/")
		cleaned := path.Clean("/" + key)
		data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(cleaned)))
		if os.IsNotExist(err) {
			return nil, domainerrors.ErrBlobNotFound
		}
		return data, err
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, domainerrors.ErrBlobNotFound
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, domainerrors.Upstream("fetch attachment", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, domainerrors.ErrBlobNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domainerrors.Upstream("fetch attachment", fmt.Errorf("status %d", resp.StatusCode))
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxRemoteBytes))
}

func sanitizeName(name string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if base == "." || base == "/" || base == "" {
		return "upload.bin"
	}
	return base
}
