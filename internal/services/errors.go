package services

import "errors"

// Sentinel errors returned by the membership and assignment services; handlers
// map these onto HTTP statuses.
var (
	ErrNotFound       = errors.New("record not found")
	ErrNotAMember     = errors.New("user is not a member of this project")
	ErrAlreadyMember  = errors.New("user is already a member of this project")
	ErrAlreadyLinked  = errors.New("user is already linked to this vulnerability")
	ErrNoOpTransition = errors.New("user already has this project role")
	ErrEmailTaken     = errors.New("email already registered")
	ErrForbidden      = errors.New("insufficient project role for this action")
	ErrConflict       = errors.New("concurrent modification detected, please retry")
)
