package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error categories. Every error returned by the services wraps exactly one of
// these so the request boundary can classify it with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrInvalidState     = errors.New("invalid state")
	ErrForbidden        = errors.New("forbidden")
	ErrSelfReference    = errors.New("self reference")
	ErrFatalConsistency = errors.New("fatal consistency failure")
	ErrValidation       = errors.New("validation failed")
)

var (
	ErrAccountNotFound    = fmt.Errorf("account %w", ErrNotFound)
	ErrPostNotFound       = fmt.Errorf("post %w", ErrNotFound)
	ErrCommentNotFound    = fmt.Errorf("comment %w", ErrNotFound)
	ErrNotSaved           = fmt.Errorf("post not in saved list: %w", ErrNotFound)
	ErrTokenNotRegistered = fmt.Errorf("no local account for token: %w", ErrNotFound)

	ErrAlreadyFollowing = fmt.Errorf("already following this account: %w", ErrAlreadyExists)
	ErrAlreadyLiked     = fmt.Errorf("post already liked: %w", ErrAlreadyExists)
	ErrAlreadySaved     = fmt.Errorf("post already saved: %w", ErrAlreadyExists)
	ErrHandleTaken      = fmt.Errorf("handle already taken: %w", ErrAlreadyExists)
	ErrSubjectTaken     = fmt.Errorf("identity already registered: %w", ErrAlreadyExists)

	ErrNotFollowing = fmt.Errorf("not following this account: %w", ErrInvalidState)
	ErrNotLiked     = fmt.Errorf("post not liked: %w", ErrInvalidState)

	ErrNotCommentAuthor = fmt.Errorf("only the author may delete a comment: %w", ErrForbidden)

	ErrSelfFollow = fmt.Errorf("cannot follow or unfollow yourself: %w", ErrSelfReference)
)

// ConsistencyError reports a two-record relationship write that stopped after
// the first record was persisted. The graph is left one-sided until repaired.
type ConsistencyError struct {
	Op     string
	Actor  uuid.UUID
	Target uuid.UUID
	Err    error
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("%s %s -> %s: mirror write failed, edge is one-sided: %v", e.Op, e.Actor, e.Target, e.Err)
}

func (e *ConsistencyError) Unwrap() error {
	return e.Err
}

// Is makes every ConsistencyError match ErrFatalConsistency.
func (e *ConsistencyError) Is(target error) bool {
	return target == ErrFatalConsistency
}

// ValidationError carries a client-correctable input problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
