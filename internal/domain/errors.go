package domain

import "errors"

var (
	ErrRejectedTarget      = errors.New("target rejected")
	ErrCollaboratorFailure = errors.New("collaborator failure")
	ErrAllProvidersFailed  = errors.New("all providers failed")
	ErrEmptyStreamResult   = errors.New("no result produced")
	ErrUnknownProvider     = errors.New("unknown provider")
	ErrNotFound            = errors.New("not found")
)
