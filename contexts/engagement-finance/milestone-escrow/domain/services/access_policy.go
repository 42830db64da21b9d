package services

import (
	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/entities"
	domainerrors "milestonepay/contexts/engagement-finance/milestone-escrow/domain/errors"
)

// RequireOwner admits the project employer and admins.
func RequireOwner(caller entities.Caller, project entities.Project) error {
	if !caller.Valid() {
		return domainerrors.ErrInvalidCaller
	}
	if caller.IsAdmin() || project.IsEmployer(caller.UserID) {
		return nil
	}
	return domainerrors.ErrNotProjectOwner
}

// RequireAssignedFreelancer admits the project's freelancer and, when allowAdmin is set, admins.
func RequireAssignedFreelancer(caller entities.Caller, project entities.Project, allowAdmin bool) error {
	if !caller.Valid() {
		return domainerrors.ErrInvalidCaller
	}
	if project.IsFreelancer(caller.UserID) || (allowAdmin && caller.IsAdmin()) {
		return nil
	}
	return domainerrors.ErrNotAssignedFreelancer
}

// RequireParticipant admits employer, freelancer and admins.
func RequireParticipant(caller entities.Caller, project entities.Project) error {
	if !caller.Valid() {
		return domainerrors.ErrInvalidCaller
	}
	if caller.IsAdmin() || project.IsParticipant(caller.UserID) {
		return nil
	}
	return domainerrors.ErrNotProjectParticipant
}

func RequireAdmin(caller entities.Caller) error {
	if !caller.Valid() {
		return domainerrors.ErrInvalidCaller
	}
	if !caller.IsAdmin() {
		return domainerrors.ErrAdminRequired
	}
	return nil
}

// RequireDisputeParticipant admits project participants, the assigned admin and any admin.
func RequireDisputeParticipant(caller entities.Caller, project entities.Project, dispute entities.Dispute) error {
	if !caller.Valid() {
		return domainerrors.ErrInvalidCaller
	}
	if caller.IsAdmin() ||
		project.IsParticipant(caller.UserID) ||
		dispute.AssignedAdminID == caller.UserID ||
		dispute.RaisedBy == caller.UserID {
		return nil
	}
	return domainerrors.ErrNotDisputeParticipant
}
