package httpserver

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/entities"
	escrowhttp "milestonepay/contexts/engagement-finance/milestone-escrow/transport/http"

	"github.com/go-chi/chi/v5"
)

const maxUploadBytes = 25 << 20

func requestCaller(w http.ResponseWriter, r *http.Request) (entities.Caller, bool) {
	caller, ok := callerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authorization bearer token is required")
		return entities.Caller{}, false
	}
	return caller, true
}

func idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("Idempotency-Key"))
}

func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
		return 0, false
	}
	return limit, true
}

func (s *Server) handleUpsertProject(w http.ResponseWriter, r *http.Request) {
	caller, ok := requestCaller(w, r)
	if !ok {
		return
	}
	var req escrowhttp.UpsertProjectRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.escrow.Handler.UpsertProjectHandler(r.Context(), caller, chi.URLParam(r, "project_id"), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	caller, ok := requestCaller(w, r)
	if !ok {
		return
	}
	resp, err := s.escrow.Handler.GetProjectHandler(r.Context(), caller, chi.URLParam(r, "project_id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpsertAccount(w http.ResponseWriter, r *http.Request) {
	caller, ok := requestCaller(w, r)
	if !ok {
		return
	}
	var req escrowhttp.UpsertAccountRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.escrow.Handler.UpsertAccountHandler(r.Context(), caller, chi.URLParam(r, "user_id"), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateMilestone(w http.ResponseWriter, r *http.Request) {
	caller, ok := requestCaller(w, r)
	if !ok {
		return
	}
	var req escrowhttp.CreateMilestoneRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.escrow.Handler.CreateMilestoneHandler(r.Context(), caller, chi.URLParam(r, "project_id"), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListMilestones(w http.ResponseWriter, r *http.Request) {
	caller, ok := requestCaller(w, r)
	if !ok {
		return
	}
	resp, err := s.escrow.Handler.ListMilestonesHandler(r.Context(), caller, chi.URLParam(r, "project_id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetMilestone(w http.ResponseWriter, r *http.Request) {
	caller, ok := requestCaller(w, r)
	if !ok {
		return
	}
	resp, err := s.escrow.Handler.GetMilestoneHandler(r.Context(), caller, chi.URLParam(r, "milestone_id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateMilestone(w http.ResponseWriter, r *http.Request) {
	caller, ok := requestCaller(w, r)
	if !ok {
		return
	}
	var req escrowhttp.UpdateMilestoneRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.escrow.Handler.UpdateMilestoneHandler(r.Context(), caller, chi.URLParam(r, "milestone_id"), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteMilestone(w http.ResponseWriter, r *http.Request) {
	caller, ok := requestCaller(w, r)
	if !ok {
		return
	}
	if err := s.escrow.Handler.DeleteMilestoneHandler(r.Context(), caller, chi.URLParam(r, "milestone_id")); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStartMilestone(w http.ResponseWriter, r *http.Request) {
	caller, ok := requestCaller(w, r)
	if !ok {
		return
	}
	resp, err := s.escrow.Handler.StartMilestoneHandler(r.Context(), caller, chi.URLParam(r, "milestone_id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateEscrow(w http.ResponseWriter, r *http.Request) {
	caller, ok := requestCaller(w, r)
	if !ok {
		return
	}
	resp, err := s.escrow.Handler.CreateEscrowHandler(r.Context(), caller, idempotencyKey(r), chi.URLParam(r, "milestone_id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleConfirmFunding(w http.ResponseWriter, r *http.Request) {
	caller, ok := requestCaller(w, r)
	if !ok {
		return
	}
	resp, err := s.escrow.Handler.ConfirmFundingHandler(r.Context(), caller, chi.URLParam(r, "payment_id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReleasePayment(w http.ResponseWriter, r *http.Request) {
	caller, ok := requestCaller(w, r)
	if !ok {
		return
	}
	resp, err := s.escrow.Handler.ReleasePaymentHandler(r.Context(), caller, idempotencyKey(r), chi.URLParam(r, "milestone_id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	caller, ok := requestCaller(w, r)
	if !ok {
		return
	}
	resp, err := s.escrow.Handler.GetPaymentHandler(r.Context(), caller, chi.URLParam(r, "payment_id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	caller, ok := requestCaller(w, r)
	if !ok {
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	resp, err := s.escrow.Handler.ListPaymentsHandler(r.Context(), caller, limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	caller, ok := requestCaller(w, r)
	if !ok {
		return
	}
	resp, err := s.escrow.Handler.GetWalletHandler(r.Context(), caller)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSubmitWork(w http.ResponseWriter, r *http.Request) {
	caller, ok := requestCaller(w, r)
	if !ok {
		return
	}
	var req escrowhttp.SubmitWorkRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.escrow.Handler.SubmitWorkHandler(r.Context(), caller, idempotencyKey(r), chi.URLParam(r, "milestone_id"), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	caller, ok := requestCaller(w, r)
	if !ok {
		return
	}
	resp, err := s.escrow.Handler.ListSubmissionsHandler(r.Context(), caller, chi.URLParam(r, "milestone_id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	caller, ok := requestCaller(w, r)
	if !ok {
		return
	}
	resp, err := s.escrow.Handler.GetSubmissionHandler(r.Context(), caller, chi.URLParam(r, "submission_id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleReviewSubmission(w http.ResponseWriter, r *http.Request) {
	caller, ok := requestCaller(w, r)
	if !ok {
		return
	}
	var req escrowhttp.ReviewSubmissionRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.escrow.Handler.ReviewSubmissionHandler(
		r.Context(),
		caller,
		chi.URLParam(r, "milestone_id"),
		chi.URLParam(r, "submission_id"),
		req,
	)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleUploadAttachment takes a multipart form with a single "file" part.
func (s *Server) handleUploadAttachment(w http.ResponseWriter, r *http.Request) {
	caller, ok := requestCaller(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_upload", "request must be multipart/form-data within the size limit")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_upload", "file part is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_upload", "file could not be read")
		return
	}
	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	resp, err := s.escrow.Handler.UploadAttachmentHandler(r.Context(), caller, header.Filename, mimeType, data)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleOpenDispute(w http.ResponseWriter, r *http.Request) {
	caller, ok := requestCaller(w, r)
	if !ok {
		return
	}
	var req escrowhttp.OpenDisputeRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.escrow.Handler.OpenDisputeHandler(r.Context(), caller, idempotencyKey(r), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListDisputes(w http.ResponseWriter, r *http.Request) {
	caller, ok := requestCaller(w, r)
	if !ok {
		return
	}
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	assignedToMe := false
	if raw := query.Get("assigned_to_me"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_filter", "assigned_to_me must be a boolean")
			return
		}
		assignedToMe = parsed
	}
	resp, err := s.escrow.Handler.ListDisputesHandler(r.Context(), caller, query.Get("status"), assignedToMe, limit)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetDispute(w http.ResponseWriter, r *http.Request) {
	caller, ok := requestCaller(w, r)
	if !ok {
		return
	}
	resp, err := s.escrow.Handler.GetDisputeHandler(r.Context(), caller, chi.URLParam(r, "dispute_id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAddDisputeMessage(w http.ResponseWriter, r *http.Request) {
	caller, ok := requestCaller(w, r)
	if !ok {
		return
	}
	var req escrowhttp.AddDisputeMessageRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.escrow.Handler.AddDisputeMessageHandler(r.Context(), caller, chi.URLParam(r, "dispute_id"), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStartDisputeReview(w http.ResponseWriter, r *http.Request) {
	caller, ok := requestCaller(w, r)
	if !ok {
		return
	}
	resp, err := s.escrow.Handler.StartDisputeReviewHandler(r.Context(), caller, chi.URLParam(r, "dispute_id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResolveDispute(w http.ResponseWriter, r *http.Request) {
	caller, ok := requestCaller(w, r)
	if !ok {
		return
	}
	var req escrowhttp.ResolveDisputeRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.escrow.Handler.ResolveDisputeHandler(r.Context(), caller, chi.URLParam(r, "dispute_id"), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCloseDispute(w http.ResponseWriter, r *http.Request) {
	caller, ok := requestCaller(w, r)
	if !ok {
		return
	}
	var req escrowhttp.CloseDisputeRequest
	if r.ContentLength != 0 && !s.decodeJSON(w, r, &req) {
		return
	}
	resp, err := s.escrow.Handler.CloseDisputeHandler(r.Context(), caller, chi.URLParam(r, "dispute_id"), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
