package errors

import (
	"errors"
	"fmt"
)

// Kinds. Every error returned by the module matches exactly one of these via errors.Is.
var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
	ErrUpstream   = errors.New("upstream failure")
)

// DomainError carries the violated invariant as its message and its kind for matching.
type DomainError struct {
	kind error
	msg  string
}

func (e *DomainError) Error() string {
	return e.msg
}

func (e *DomainError) Is(target error) bool {
	return target == e.kind
}

func (e *DomainError) Kind() error {
	return e.kind
}

func notFound(msg string) *DomainError   { return &DomainError{kind: ErrNotFound, msg: msg} }
func forbidden(msg string) *DomainError  { return &DomainError{kind: ErrForbidden, msg: msg} }
func conflict(msg string) *DomainError   { return &DomainError{kind: ErrConflict, msg: msg} }
func validation(msg string) *DomainError { return &DomainError{kind: ErrValidation, msg: msg} }

var (
	ErrProjectNotFound    = notFound("project not found")
	ErrMilestoneNotFound  = notFound("milestone not found")
	ErrPaymentNotFound    = notFound("payment not found")
	ErrSubmissionNotFound = notFound("submission not found")
	ErrDisputeNotFound    = notFound("dispute not found")
	ErrAccountNotFound    = notFound("account not found")
	ErrBlobNotFound       = notFound("blob not found")
)

var (
	ErrInvalidCaller         = forbidden("caller identity is missing or invalid")
	ErrNotProjectOwner       = forbidden("caller is not the project employer or an admin")
	ErrNotAssignedFreelancer = forbidden("caller is not the assigned freelancer")
	ErrNotProjectParticipant = forbidden("caller is not a project participant")
	ErrAdminRequired         = forbidden("caller is not an admin")
	ErrNotDisputeParticipant = forbidden("caller is not a participant of this dispute")
	ErrCannotCloseDispute    = forbidden("only the raiser or an admin may close a dispute")
)

var (
	ErrMilestoneNotPending        = conflict("milestone is not pending")
	ErrMilestoneNotInProgress     = conflict("milestone is not in-progress")
	ErrMilestoneNotUnderReview    = conflict("milestone is not under-review")
	ErrMilestoneNotCompleted      = conflict("milestone is not completed")
	ErrMilestoneDisputed          = conflict("milestone is disputed")
	ErrMilestonePaidOut           = conflict("milestone payment has already been released")
	ErrMilestoneHasPayment        = conflict("milestone already has an active payment")
	ErrMilestoneAmountLocked      = conflict("milestone amount is locked by an active payment")
	ErrMilestoneNotDeletable      = conflict("milestone can only be deleted while pending without a payment")
	ErrMilestoneNoPayment         = conflict("milestone has no active payment")
	ErrPaymentSettled             = conflict("payment is already completed or refunded")
	ErrPaymentNotPending          = conflict("payment is not pending")
	ErrSubmissionAlreadyReviewed  = conflict("submission has already been reviewed")
	ErrSubmissionNotCurrent       = conflict("submission is not the milestone's current submission")
	ErrActiveDisputeExists        = conflict("milestone already has an active dispute")
	ErrDisputeNotActive           = conflict("dispute is not open or under-review")
	ErrDisputeNotOpen             = conflict("dispute is not open")
	ErrNoPayoutDestination        = conflict("freelancer has no payout destination")
	ErrConcurrentModification     = conflict("aggregate was modified concurrently")
	ErrIdempotencyKeyConflict     = conflict("idempotency key reused with a different request")
	ErrVerificationAlreadyApplied = conflict("submission verification has already been recorded")
	ErrSettlementInProgress       = conflict("milestone funds are being settled")
	ErrResolutionLocked           = conflict("dispute resolution is locked to the decision already being executed")
)

var (
	ErrInvalidProjectInput         = validation("project requires id, title and employer")
	ErrInvalidAccountInput         = validation("account requires user id and a valid role")
	ErrInvalidMilestoneInput       = validation("milestone requires title, positive amount and a 3-letter currency")
	ErrInvalidSubmissionInput      = validation("submission requires a description and well-formed attachments")
	ErrInvalidReviewDecision       = validation("review decision must be approved, rejected or revision-requested")
	ErrSubmissionMilestoneMismatch = validation("submission does not belong to the milestone")
	ErrInvalidDisputeInput         = validation("dispute requires a reason and a description of at least 10 characters")
	ErrInvalidDisputeDecision      = validation("decision must be full-employer, full-freelancer or partial")
	ErrPartialAmountOutOfRange     = validation("partial amount must be greater than 0 and at most the milestone amount")
	ErrMessageRequired             = validation("message is required")
	ErrInvalidUpload               = validation("upload requires a file name and content")
)

// UpstreamError reports a failed call to the funds-transfer service, the
// verification capability or another external collaborator.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	if e.Err == nil {
		return e.Op + ": upstream failure"
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err.Error())
}

func (e *UpstreamError) Unwrap() []error {
	return []error{ErrUpstream, e.Err}
}

func Upstream(op string, err error) error {
	return &UpstreamError{Op: op, Err: err}
}

// KindOf returns the base kind of err, or nil when err is not a domain error.
func KindOf(err error) error {
	for _, kind := range []error{ErrNotFound, ErrForbidden, ErrConflict, ErrValidation, ErrUpstream} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
