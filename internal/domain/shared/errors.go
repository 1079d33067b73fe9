// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")
	ErrInvalidEntity = errors.New("invalid entity")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")
	ErrInvalidFormat   = errors.New("invalid format")

	// State errors
	ErrInvalidState     = errors.New("invalid state")
	ErrStateTransition  = errors.New("invalid state transition")
	ErrAlreadyProcessed = errors.New("already processed")
	ErrExpired          = errors.New("expired")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Business precondition errors
	ErrPrecondition    = errors.New("precondition failed")
	ErrInsufficientExp = errors.New("insufficient exp")

	// Conflict errors
	ErrConflict               = errors.New("conflict")
	ErrDuplicate              = errors.New("duplicate request")
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// External dependency errors
	ErrDependency         = errors.New("dependency error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrCircuitOpen        = errors.New("circuit open")

	// Internal errors
	ErrInternal = errors.New("internal error")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "progression", "battle", "matchmaking"
	Op      string // Operation that failed, e.g., "RecordAttempt", "Submit"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Progression domain errors
var (
	ErrStatsNotFound       = NewDomainError("progression", "Find", ErrNotFound, "student statistics not found")
	ErrExpOutOfRange       = NewDomainError("progression", "Validate", ErrValueOutOfRange, "exp must be within [0, 10000]")
	ErrInvalidRankIndex    = NewDomainError("progression", "Validate", ErrValueOutOfRange, "rank index must be within [0, 9]")
	ErrAchievementNotFound = NewDomainError("progression", "FindAchievement", ErrNotFound, "achievement not found")
	ErrNotEnoughExp        = NewDomainError("progression", "Debit", ErrInsufficientExp, "not enough exp")
)

// Puzzle domain errors
var (
	ErrLevelNotFound      = NewDomainError("puzzle", "FindLevel", ErrNotFound, "level not found")
	ErrProgressNotFound   = NewDomainError("puzzle", "FindProgress", ErrNotFound, "progress row not found")
	ErrDuplicateAttempt   = NewDomainError("puzzle", "RecordAttempt", ErrDuplicate, "attempt already recorded")
	ErrInvalidTheta       = NewDomainError("puzzle", "Validate", ErrValueOutOfRange, "theta must be within [-3, 3]")
	ErrInvalidBeta        = NewDomainError("puzzle", "Validate", ErrValueOutOfRange, "beta must be within [0.1, 1.0]")
	ErrInvalidAttemptTime = NewDomainError("puzzle", "Validate", ErrValueOutOfRange, "attempt time must be within [0, 3600] seconds")
)

// Battle domain errors
var (
	ErrMatchNotFound       = NewDomainError("battle", "FindMatch", ErrNotFound, "match not found")
	ErrNotParticipant      = NewDomainError("battle", "Authorize", ErrForbidden, "user is not a match participant")
	ErrMatchNotPending     = NewDomainError("battle", "Transition", ErrStateTransition, "match is not pending")
	ErrMatchNotActive      = NewDomainError("battle", "Transition", ErrStateTransition, "match is not active")
	ErrMatchAlreadySettled = NewDomainError("battle", "Settle", ErrAlreadyProcessed, "match already settled")
	ErrChallengeNotFound   = NewDomainError("battle", "FindChallenge", ErrNotFound, "challenge not found")
	ErrChallengeNotPending = NewDomainError("battle", "Respond", ErrInvalidState, "challenge is not pending")
	ErrChallengeExpired    = NewDomainError("battle", "Respond", ErrExpired, "challenge expired")
	ErrSelfChallenge       = NewDomainError("battle", "CreateChallenge", ErrInvalidInput, "cannot challenge yourself")
)

// Matchmaking domain errors
var (
	ErrQueueEntryExists  = NewDomainError("matchmaking", "Join", ErrAlreadyExists, "player already queued")
	ErrQueueExpRequired  = NewDomainError("matchmaking", "Join", ErrInsufficientExp, "minimum 100 exp required to queue")
	ErrInvalidMatchSize  = NewDomainError("matchmaking", "Validate", ErrValueOutOfRange, "ranked match size must be within [3, 5]")
	ErrNotEnoughPlayers  = NewDomainError("matchmaking", "FormMatch", ErrPrecondition, "not enough compatible players")
	ErrMatchScoreTooLow  = NewDomainError("matchmaking", "FormMatch", ErrPrecondition, "cluster match score below threshold")
)

// Session domain errors
var (
	ErrSessionNotFound     = NewDomainError("session", "Find", ErrNotFound, "session not found")
	ErrSessionAlreadyEnded = NewDomainError("session", "Close", ErrInvalidState, "session already ended")
	ErrNoOpenSession       = NewDomainError("session", "Close", ErrNotFound, "no open session")
)

// Leaderboard domain errors
var (
	ErrBoardNotFound  = NewDomainError("leaderboard", "Find", ErrNotFound, "leaderboard not found")
	ErrInvalidBoard   = NewDomainError("leaderboard", "Validate", ErrInvalidInput, "invalid board type")
	ErrSnapshotStale  = NewDomainError("leaderboard", "Read", ErrExpired, "leaderboard snapshot is stale")
)

// Kernel (adaptive computation service) errors
var (
	ErrKernelUnavailable     = NewDomainError("kernel", "Call", ErrServiceUnavailable, "adaptive kernel is unavailable")
	ErrKernelTimeout         = NewDomainError("kernel", "Call", ErrTimeout, "adaptive kernel request timeout")
	ErrKernelCircuitOpen     = NewDomainError("kernel", "Call", ErrCircuitOpen, "adaptive kernel circuit is open")
	ErrKernelInvalidResponse = NewDomainError("kernel", "Parse", ErrInvalidFormat, "invalid response from adaptive kernel")
	ErrKernelRejected        = NewDomainError("kernel", "Call", ErrInvalidInput, "adaptive kernel rejected the request")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsConflict checks if the error describes a uniqueness or idempotency conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrDuplicate) ||
		errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrConcurrentModification)
}

// IsPrecondition checks if the error is a failed business precondition.
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrPrecondition) ||
		errors.Is(err, ErrInsufficientExp)
}

// IsUnauthorized checks if the error is an authentication failure.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsForbidden checks if the error is an authorization failure.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsDependency checks if the error originates from an external dependency.
func IsDependency(err error) bool {
	return errors.Is(err, ErrDependency) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrCircuitOpen)
}

// IsTimeout checks if the error is a timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConcurrentModification)
}
