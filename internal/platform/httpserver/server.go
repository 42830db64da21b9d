package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	milestoneescrow "milestonepay/contexts/engagement-finance/milestone-escrow"
	domainerrors "milestonepay/contexts/engagement-finance/milestone-escrow/domain/errors"
	escrowhttp "milestonepay/contexts/engagement-finance/milestone-escrow/transport/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	_ "milestonepay/internal/platform/httpserver/docs"
)

const maxJSONBodyBytes = 1 << 20

type Options struct {
	Addr      string
	JWTSecret string
	// BlobRoot is served read-only under /files when set.
	BlobRoot string
	Gatherer prometheus.Gatherer
}

type Server struct {
	mux       chi.Router
	logger    *slog.Logger
	addr      string
	jwtSecret string
	escrow    milestoneescrow.Module
	http      *http.Server
}

func New(escrow milestoneescrow.Module, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}

	s := &Server{
		mux:       chi.NewRouter(),
		logger:    logger,
		addr:      opts.Addr,
		jwtSecret: opts.JWTSecret,
		escrow:    escrow,
	}
	s.registerRoutes(opts)
	s.http = &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) registerRoutes(opts Options) {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Handle("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	if strings.TrimSpace(opts.BlobRoot) != "" {
		r.With(s.requireCaller).Handle("/files/*", http.StripPrefix("/files/", http.FileServer(http.Dir(opts.BlobRoot))))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.requireCaller)

		r.Put("/projects/{project_id}", s.handleUpsertProject)
		r.Get("/projects/{project_id}", s.handleGetProject)
		r.Put("/accounts/{user_id}", s.handleUpsertAccount)

		r.Post("/projects/{project_id}/milestones", s.handleCreateMilestone)
		r.Get("/projects/{project_id}/milestones", s.handleListMilestones)
		r.Get("/milestones/{milestone_id}", s.handleGetMilestone)
		r.Patch("/milestones/{milestone_id}", s.handleUpdateMilestone)
		r.Delete("/milestones/{milestone_id}", s.handleDeleteMilestone)
		r.Post("/milestones/{milestone_id}/start", s.handleStartMilestone)

		r.Post("/milestones/{milestone_id}/escrow", s.handleCreateEscrow)
		r.Post("/milestones/{milestone_id}/release", s.handleReleasePayment)
		r.Post("/payments/{payment_id}/confirm", s.handleConfirmFunding)
		r.Get("/payments/{payment_id}", s.handleGetPayment)
		r.Get("/payments", s.handleListPayments)
		r.Get("/wallet", s.handleGetWallet)

		r.Post("/milestones/{milestone_id}/submissions", s.handleSubmitWork)
		r.Get("/milestones/{milestone_id}/submissions", s.handleListSubmissions)
		r.Get("/submissions/{submission_id}", s.handleGetSubmission)
		r.Post("/milestones/{milestone_id}/submissions/{submission_id}/review", s.handleReviewSubmission)
		r.Post("/attachments", s.handleUploadAttachment)

		r.Post("/disputes", s.handleOpenDispute)
		r.Get("/disputes", s.handleListDisputes)
		r.Get("/disputes/{dispute_id}", s.handleGetDispute)
		r.Post("/disputes/{dispute_id}/messages", s.handleAddDisputeMessage)
		r.Post("/disputes/{dispute_id}/review", s.handleStartDisputeReview)
		r.Post("/disputes/{dispute_id}/resolve", s.handleResolveDispute)
		r.Post("/disputes/{dispute_id}/close", s.handleCloseDispute)
	})
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return false
	}
	return true
}

// writeDomainError maps the error kind to a status. Anything that is not a
// domain error is logged and hidden behind a 500.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch domainerrors.KindOf(err) {
	case domainerrors.ErrNotFound:
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case domainerrors.ErrForbidden:
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case domainerrors.ErrConflict:
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case domainerrors.ErrValidation:
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case domainerrors.ErrUpstream:
		writeError(w, http.StatusBadGateway, "upstream_failure", err.Error())
	default:
		s.logger.Error("unhandled request error",
			"event", "http_request_failed",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err.Error(),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, escrowhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
