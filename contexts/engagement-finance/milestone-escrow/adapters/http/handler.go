package httpadapter

import (
	"context"
	"log/slog"

	"milestonepay/contexts/engagement-finance/milestone-escrow/application/commands"
	"milestonepay/contexts/engagement-finance/milestone-escrow/application/queries"
	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/entities"
	httptransport "milestonepay/contexts/engagement-finance/milestone-escrow/transport/http"
)

type Handler struct {
	UpsertProject      commands.UpsertProjectUseCase
	UpsertAccount      commands.UpsertAccountUseCase
	CreateMilestone    commands.CreateMilestoneUseCase
	UpdateMilestone    commands.UpdateMilestoneUseCase
	DeleteMilestone    commands.DeleteMilestoneUseCase
	StartMilestone     commands.StartMilestoneUseCase
	CreateEscrow       commands.CreateEscrowUseCase
	ConfirmFunding     commands.ConfirmFundingUseCase
	ReleasePayment     commands.ReleasePaymentUseCase
	SubmitWork         commands.SubmitWorkUseCase
	ReviewSubmission   commands.ReviewSubmissionUseCase
	UploadAttachment   commands.UploadAttachmentUseCase
	OpenDispute        commands.OpenDisputeUseCase
	AddDisputeMessage  commands.AddDisputeMessageUseCase
	StartDisputeReview commands.StartDisputeReviewUseCase
	ResolveDispute     commands.ResolveDisputeUseCase
	CloseDispute       commands.CloseDisputeUseCase
	Milestones         queries.MilestoneQueries
	Ledger             queries.LedgerQueries
	Disputes           queries.DisputeQueries
	Logger             *slog.Logger
}

func (h Handler) UpsertProjectHandler(
	ctx context.Context,
	caller entities.Caller,
	projectID string,
	req httptransport.UpsertProjectRequest,
) (httptransport.ProjectDTO, error) {
	project, err := h.UpsertProject.Execute(ctx, commands.UpsertProjectCommand{
		Caller:       caller,
		ProjectID:    projectID,
		Title:        req.Title,
		Description:  req.Description,
		EmployerID:   req.EmployerID,
		FreelancerID: req.FreelancerID,
		Currency:     req.Currency,
		Requirements: append([]string(nil), req.Requirements...),
		Brand:        brandFromDTO(req.Brand),
	})
	if err != nil {
		return httptransport.ProjectDTO{}, err
	}
	return mapProject(project), nil
}

func (h Handler) GetProjectHandler(ctx context.Context, caller entities.Caller, projectID string) (httptransport.ProjectDTO, error) {
	project, err := h.Milestones.GetProject(ctx, caller, projectID)
	if err != nil {
		return httptransport.ProjectDTO{}, err
	}
	return mapProject(project), nil
}

func (h Handler) UpsertAccountHandler(
	ctx context.Context,
	caller entities.Caller,
	userID string,
	req httptransport.UpsertAccountRequest,
) (httptransport.AccountDTO, error) {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	account, err := h.UpsertAccount.Execute(ctx, commands.UpsertAccountCommand{
		Caller:            caller,
		UserID:            userID,
		Role:              entities.Role(req.Role),
		Email:             req.Email,
		Name:              req.Name,
		PayoutDestination: req.PayoutDestination,
		Active:            active,
	})
	if err != nil {
		return httptransport.AccountDTO{}, err
	}
	return httptransport.AccountDTO{
		UserID:            account.UserID,
		Role:              string(account.Role),
		Email:             account.Email,
		Name:              account.Name,
		HasPayerProfile:   account.PayerProfileID != "",
		PayoutDestination: account.PayoutDestination,
		Active:            account.Active,
	}, nil
}

func (h Handler) CreateMilestoneHandler(
	ctx context.Context,
	caller entities.Caller,
	projectID string,
	req httptransport.CreateMilestoneRequest,
) (httptransport.MilestoneDTO, error) {
	milestone, err := h.CreateMilestone.Execute(ctx, commands.CreateMilestoneCommand{
		Caller:           caller,
		ProjectID:        projectID,
		Title:            req.Title,
		Description:      req.Description,
		Amount:           req.Amount,
		Currency:         req.Currency,
		DeliverableTypes: append([]string(nil), req.DeliverableTypes...),
	})
	if err != nil {
		return httptransport.MilestoneDTO{}, err
	}
	return mapMilestone(milestone), nil
}

func (h Handler) ListMilestonesHandler(
	ctx context.Context,
	caller entities.Caller,
	projectID string,
) (httptransport.ListMilestonesResponse, error) {
	items, err := h.Milestones.ListMilestones(ctx, caller, projectID)
	if err != nil {
		return httptransport.ListMilestonesResponse{}, err
	}
	result := make([]httptransport.MilestoneDTO, 0, len(items))
	for _, item := range items {
		result = append(result, mapMilestone(item))
	}
	return httptransport.ListMilestonesResponse{Items: result}, nil
}

func (h Handler) GetMilestoneHandler(ctx context.Context, caller entities.Caller, milestoneID string) (httptransport.MilestoneDTO, error) {
	milestone, err := h.Milestones.GetMilestone(ctx, caller, milestoneID)
	if err != nil {
		return httptransport.MilestoneDTO{}, err
	}
	return mapMilestone(milestone), nil
}

func (h Handler) UpdateMilestoneHandler(
	ctx context.Context,
	caller entities.Caller,
	milestoneID string,
	req httptransport.UpdateMilestoneRequest,
) (httptransport.MilestoneDTO, error) {
	milestone, err := h.UpdateMilestone.Execute(ctx, commands.UpdateMilestoneCommand{
		Caller:           caller,
		MilestoneID:      milestoneID,
		Title:            req.Title,
		Description:      req.Description,
		Amount:           req.Amount,
		Currency:         req.Currency,
		DeliverableTypes: req.DeliverableTypes,
	})
	if err != nil {
		return httptransport.MilestoneDTO{}, err
	}
	return mapMilestone(milestone), nil
}

func (h Handler) DeleteMilestoneHandler(ctx context.Context, caller entities.Caller, milestoneID string) error {
	return h.DeleteMilestone.Execute(ctx, commands.DeleteMilestoneCommand{
		Caller:      caller,
		MilestoneID: milestoneID,
	})
}

func (h Handler) StartMilestoneHandler(ctx context.Context, caller entities.Caller, milestoneID string) (httptransport.MilestoneDTO, error) {
	milestone, err := h.StartMilestone.Execute(ctx, commands.StartMilestoneCommand{
		Caller:      caller,
		MilestoneID: milestoneID,
	})
	if err != nil {
		return httptransport.MilestoneDTO{}, err
	}
	return mapMilestone(milestone), nil
}

func (h Handler) CreateEscrowHandler(
	ctx context.Context,
	caller entities.Caller,
	idempotencyKey string,
	milestoneID string,
) (httptransport.PaymentDTO, error) {
	payment, err := h.CreateEscrow.Execute(ctx, commands.CreateEscrowCommand{
		IdempotencyKey: idempotencyKey,
		Caller:         caller,
		MilestoneID:    milestoneID,
	})
	if err != nil {
		return httptransport.PaymentDTO{}, err
	}
	return mapPayment(payment, true), nil
}

func (h Handler) ConfirmFundingHandler(ctx context.Context, caller entities.Caller, paymentID string) (httptransport.PaymentDTO, error) {
	payment, err := h.ConfirmFunding.Execute(ctx, commands.ConfirmFundingCommand{
		Caller:    caller,
		PaymentID: paymentID,
	})
	if err != nil {
		return httptransport.PaymentDTO{}, err
	}
	return mapPayment(payment, false), nil
}

func (h Handler) ReleasePaymentHandler(
	ctx context.Context,
	caller entities.Caller,
	idempotencyKey string,
	milestoneID string,
) (httptransport.PaymentDTO, error) {
	payment, err := h.ReleasePayment.Execute(ctx, commands.ReleasePaymentCommand{
		IdempotencyKey: idempotencyKey,
		Caller:         caller,
		MilestoneID:    milestoneID,
	})
	if err != nil {
		return httptransport.PaymentDTO{}, err
	}
	return mapPayment(payment, false), nil
}

func (h Handler) GetPaymentHandler(ctx context.Context, caller entities.Caller, paymentID string) (httptransport.PaymentDTO, error) {
	payment, err := h.Ledger.GetPayment(ctx, caller, paymentID)
	if err != nil {
		return httptransport.PaymentDTO{}, err
	}
	return mapPayment(payment, false), nil
}

func (h Handler) ListPaymentsHandler(ctx context.Context, caller entities.Caller, limit int) (httptransport.ListPaymentsResponse, error) {
	items, err := h.Ledger.ListPayments(ctx, caller, limit)
	if err != nil {
		return httptransport.ListPaymentsResponse{}, err
	}
	result := make([]httptransport.PaymentDTO, 0, len(items))
	for _, item := range items {
		result = append(result, mapPayment(item, false))
	}
	return httptransport.ListPaymentsResponse{Items: result}, nil
}

func (h Handler) GetWalletHandler(ctx context.Context, caller entities.Caller) (httptransport.WalletResponse, error) {
	balances, err := h.Ledger.GetWallet(ctx, caller)
	if err != nil {
		return httptransport.WalletResponse{}, err
	}
	result := make([]httptransport.WalletBalanceDTO, 0, len(balances))
	for _, balance := range balances {
		result = append(result, httptransport.WalletBalanceDTO{Currency: balance.Currency, Balance: balance.Balance})
	}
	return httptransport.WalletResponse{UserID: caller.UserID, Balances: result}, nil
}

func (h Handler) SubmitWorkHandler(
	ctx context.Context,
	caller entities.Caller,
	idempotencyKey string,
	milestoneID string,
	req httptransport.SubmitWorkRequest,
) (httptransport.SubmissionDTO, error) {
	submission, err := h.SubmitWork.Execute(ctx, commands.SubmitWorkCommand{
		IdempotencyKey: idempotencyKey,
		Caller:         caller,
		MilestoneID:    milestoneID,
		Description:    req.Description,
		Attachments:    attachmentsFromDTO(req.Attachments),
	})
	if err != nil {
		return httptransport.SubmissionDTO{}, err
	}
	return mapSubmission(submission), nil
}

func (h Handler) ListSubmissionsHandler(
	ctx context.Context,
	caller entities.Caller,
	milestoneID string,
) (httptransport.ListSubmissionsResponse, error) {
	items, err := h.Milestones.ListSubmissions(ctx, caller, milestoneID)
	if err != nil {
		return httptransport.ListSubmissionsResponse{}, err
	}
	result := make([]httptransport.SubmissionDTO, 0, len(items))
	for _, item := range items {
		result = append(result, mapSubmission(item))
	}
	return httptransport.ListSubmissionsResponse{Items: result}, nil
}

func (h Handler) GetSubmissionHandler(ctx context.Context, caller entities.Caller, submissionID string) (httptransport.SubmissionDTO, error) {
	submission, err := h.Milestones.GetSubmission(ctx, caller, submissionID)
	if err != nil {
		return httptransport.SubmissionDTO{}, err
	}
	return mapSubmission(submission), nil
}

func (h Handler) ReviewSubmissionHandler(
	ctx context.Context,
	caller entities.Caller,
	milestoneID string,
	submissionID string,
	req httptransport.ReviewSubmissionRequest,
) (httptransport.ReviewSubmissionResponse, error) {
	result, err := h.ReviewSubmission.Execute(ctx, commands.ReviewSubmissionCommand{
		Caller:       caller,
		MilestoneID:  milestoneID,
		SubmissionID: submissionID,
		Decision:     entities.ReviewDecision(req.Decision),
		Feedback:     req.Feedback,
	})
	if err != nil {
		return httptransport.ReviewSubmissionResponse{}, err
	}
	return httptransport.ReviewSubmissionResponse{
		Submission: mapSubmission(result.Submission),
		Milestone:  mapMilestone(result.Milestone),
	}, nil
}

func (h Handler) UploadAttachmentHandler(
	ctx context.Context,
	caller entities.Caller,
	name string,
	mimeType string,
	data []byte,
) (httptransport.AttachmentDTO, error) {
	attachment, err := h.UploadAttachment.Execute(ctx, commands.UploadAttachmentCommand{
		Caller:   caller,
		Name:     name,
		MIMEType: mimeType,
		Data:     data,
	})
	if err != nil {
		return httptransport.AttachmentDTO{}, err
	}
	return mapAttachment(attachment), nil
}

func (h Handler) OpenDisputeHandler(
	ctx context.Context,
	caller entities.Caller,
	idempotencyKey string,
	req httptransport.OpenDisputeRequest,
) (httptransport.DisputeDTO, error) {
	dispute, err := h.OpenDispute.Execute(ctx, commands.OpenDisputeCommand{
		IdempotencyKey: idempotencyKey,
		Caller:         caller,
		MilestoneID:    req.MilestoneID,
		Reason:         req.Reason,
		Description:    req.Description,
		Attachments:    attachmentsFromDTO(req.Attachments),
	})
	if err != nil {
		return httptransport.DisputeDTO{}, err
	}
	return mapDispute(dispute), nil
}

func (h Handler) ListDisputesHandler(
	ctx context.Context,
	caller entities.Caller,
	status string,
	assignedToMe bool,
	limit int,
) (httptransport.ListDisputesResponse, error) {
	items, err := h.Disputes.ListDisputes(ctx, caller, queries.ListDisputesQuery{
		Status:       entities.DisputeStatus(status),
		AssignedToMe: assignedToMe,
		Limit:        limit,
	})
	if err != nil {
		return httptransport.ListDisputesResponse{}, err
	}
	result := make([]httptransport.DisputeDTO, 0, len(items))
	for _, item := range items {
		result = append(result, mapDispute(item))
	}
	return httptransport.ListDisputesResponse{Items: result}, nil
}

func (h Handler) GetDisputeHandler(ctx context.Context, caller entities.Caller, disputeID string) (httptransport.DisputeDTO, error) {
	dispute, err := h.Disputes.GetDispute(ctx, caller, disputeID)
	if err != nil {
		return httptransport.DisputeDTO{}, err
	}
	return mapDispute(dispute), nil
}

func (h Handler) AddDisputeMessageHandler(
	ctx context.Context,
	caller entities.Caller,
	disputeID string,
	req httptransport.AddDisputeMessageRequest,
) (httptransport.DisputeDTO, error) {
	dispute, err := h.AddDisputeMessage.Execute(ctx, commands.AddDisputeMessageCommand{
		Caller:    caller,
		DisputeID: disputeID,
		Message:   req.Message,
	})
	if err != nil {
		return httptransport.DisputeDTO{}, err
	}
	return mapDispute(dispute), nil
}

func (h Handler) StartDisputeReviewHandler(ctx context.Context, caller entities.Caller, disputeID string) (httptransport.DisputeDTO, error) {
	dispute, err := h.StartDisputeReview.Execute(ctx, commands.StartDisputeReviewCommand{
		Caller:    caller,
		DisputeID: disputeID,
	})
	if err != nil {
		return httptransport.DisputeDTO{}, err
	}
	return mapDispute(dispute), nil
}

func (h Handler) ResolveDisputeHandler(
	ctx context.Context,
	caller entities.Caller,
	disputeID string,
	req httptransport.ResolveDisputeRequest,
) (httptransport.ResolveDisputeResponse, error) {
	result, err := h.ResolveDispute.Execute(ctx, commands.ResolveDisputeCommand{
		Caller:    caller,
		DisputeID: disputeID,
		Decision:  entities.DisputeDecision(req.Decision),
		Amount:    req.Amount,
		Reason:    req.Reason,
	})
	if err != nil {
		return httptransport.ResolveDisputeResponse{}, err
	}
	return httptransport.ResolveDisputeResponse{
		Dispute:   mapDispute(result.Dispute),
		Milestone: mapMilestone(result.Milestone),
		Payment:   mapPayment(result.Payment, false),
	}, nil
}

func (h Handler) CloseDisputeHandler(
	ctx context.Context,
	caller entities.Caller,
	disputeID string,
	req httptransport.CloseDisputeRequest,
) (httptransport.CloseDisputeResponse, error) {
	result, err := h.CloseDispute.Execute(ctx, commands.CloseDisputeCommand{
		Caller:    caller,
		DisputeID: disputeID,
		Note:      req.Note,
	})
	if err != nil {
		return httptransport.CloseDisputeResponse{}, err
	}
	return httptransport.CloseDisputeResponse{
		Dispute:   mapDispute(result.Dispute),
		Milestone: mapMilestone(result.Milestone),
	}, nil
}
