package httpserver

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	milestoneescrow "milestonepay/contexts/engagement-finance/milestone-escrow"
	"milestonepay/contexts/engagement-finance/milestone-escrow/adapters/memory"
	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/entities"
	escrowhttp "milestonepay/contexts/engagement-finance/milestone-escrow/transport/http"

	"github.com/prometheus/client_golang/prometheus"
)

const testSecret = "test-secret"

var (
	employer   = entities.Caller{UserID: "employer-1", Role: entities.RoleEmployer}
	freelancer = entities.Caller{UserID: "freelancer-1", Role: entities.RoleFreelancer}
	outsider   = entities.Caller{UserID: "employer-2", Role: entities.RoleEmployer}
)

func newTestServer() *Server {
	return newTestServerWithOptions(Options{Addr: ":0", JWTSecret: testSecret, Gatherer: prometheus.NewRegistry()})
}

func newTestServerWithOptions(opts Options) *Server {
	seed := memory.Seed{
		Projects: []entities.Project{{
			ProjectID:    "project-1",
			Title:        "Brand refresh",
			EmployerID:   employer.UserID,
			FreelancerID: freelancer.UserID,
			Currency:     "usd",
		}},
		Accounts: []entities.Account{
			{UserID: employer.UserID, Role: entities.RoleEmployer, Email: "employer@example.com", Active: true},
			{UserID: freelancer.UserID, Role: entities.RoleFreelancer, PayoutDestination: "acct_1", Active: true},
		},
		Milestones: []entities.Milestone{{
			MilestoneID: "milestone-1",
			ProjectID:   "project-1",
			Title:       "Logo",
			Amount:      1000,
			Currency:    "usd",
			Order:       1,
		}},
	}
	module := milestoneescrow.NewInMemoryModule(seed, slog.Default())
	return New(module, opts, slog.Default())
}

func bearer(t *testing.T, caller entities.Caller) string {
	t.Helper()
	token, err := SignToken(testSecret, caller, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return "Bearer " + token
}

func serve(server *Server, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	server.mux.ServeHTTP(rr, req)
	return rr
}

func TestRoutesRequireBearerToken(t *testing.T) {
	server := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/v1/milestones/milestone-1", nil)

	rr := serve(server, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestRoutesRejectTokenSignedWithOtherSecret(t *testing.T) {
	server := newTestServer()
	token, err := SignToken("other-secret", employer, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/v1/milestones/milestone-1", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rr := serve(server, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	server := newTestServer()
	for _, path := range []string{"/healthz", "/metrics"} {
		rr := serve(server, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rr.Code)
		}
	}
}

func TestGetMilestoneForParticipant(t *testing.T) {
	server := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/v1/milestones/milestone-1", nil)
	req.Header.Set("Authorization", bearer(t, freelancer))

	rr := serve(server, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	var dto escrowhttp.MilestoneDTO
	if err := json.Unmarshal(rr.Body.Bytes(), &dto); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dto.Status != string(entities.MilestoneStatusPending) || dto.Amount != 1000 {
		t.Fatalf("unexpected milestone: %+v", dto)
	}
}

func TestErrorKindsMapToStatus(t *testing.T) {
	server := newTestServer()

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		caller entities.Caller
		status int
	}{
		{"missing milestone", http.MethodGet, "/v1/milestones/missing", "", employer, http.StatusNotFound},
		{"non participant", http.MethodGet, "/v1/milestones/milestone-1", "", outsider, http.StatusForbidden},
		{"submit before start", http.MethodPost, "/v1/milestones/milestone-1/submissions", `{"description":"first draft"}`, freelancer, http.StatusConflict},
		{"invalid milestone input", http.MethodPost, "/v1/projects/project-1/milestones", `{"title":"","amount":0,"currency":"usd"}`, employer, http.StatusBadRequest},
		{"malformed json", http.MethodPost, "/v1/projects/project-1/milestones", `{`, employer, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var body *bytes.Reader
			if tc.body != "" {
				body = bytes.NewReader([]byte(tc.body))
			} else {
				body = bytes.NewReader(nil)
			}
			req := httptest.NewRequest(tc.method, tc.path, body)
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", bearer(t, tc.caller))

			rr := serve(server, req)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d body=%s", tc.status, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestCreateEscrowTwiceConflicts(t *testing.T) {
	server := newTestServer()

	first := httptest.NewRequest(http.MethodPost, "/v1/milestones/milestone-1/escrow", nil)
	first.Header.Set("Authorization", bearer(t, employer))
	rr := serve(server, first)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
	var payment escrowhttp.PaymentDTO
	if err := json.Unmarshal(rr.Body.Bytes(), &payment); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payment.ClientSecret == "" {
		t.Fatalf("expected client secret on create response")
	}

	second := httptest.NewRequest(http.MethodPost, "/v1/milestones/milestone-1/escrow", nil)
	second.Header.Set("Authorization", bearer(t, employer))
	rr = serve(server, second)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestStoredFilesRequireBearerToken(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "abc"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "abc", "concepts.png"), []byte("png-bytes"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	server := newTestServerWithOptions(Options{
		Addr:      ":0",
		JWTSecret: testSecret,
		Gatherer:  prometheus.NewRegistry(),
		BlobRoot:  root,
	})

	rr := serve(server, httptest.NewRequest(http.MethodGet, "/files/abc/concepts.png", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/files/abc/concepts.png", nil)
	req.Header.Set("Authorization", bearer(t, freelancer))
	rr = serve(server, req)
	if rr.Code != http.StatusOK || rr.Body.String() != "png-bytes" {
		t.Fatalf("expected file contents with a token, got %d body=%q", rr.Code, rr.Body.String())
	}
}
