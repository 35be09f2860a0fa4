package domain

import "errors"

// Domain errors
var (
	// Validation failures: the request itself is malformed.
	ErrInvalidChoice      = errors.New("choice outside the bearish/neutral/bullish enumeration")
	ErrNoChoice           = errors.New("no choice selected")
	ErrNameTaken          = errors.New("player name already registered")
	ErrInsufficientPoints = errors.New("not enough points to enter the round")
	ErrInvalidRequest     = errors.New("invalid request")

	// State failures: the request is well-formed but the round won't take it.
	ErrRoundClosed = errors.New("round no longer accepts predictions")
	ErrRoundExists = errors.New("a round already exists for this start time")

	// Not-found failures.
	ErrRoundNotFound  = errors.New("round not found")
	ErrPlayerNotFound = errors.New("player not found")

	ErrInternalError = errors.New("internal server error")
)

// IsValidationError checks if an error is a validation type error.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidChoice) ||
		errors.Is(err, ErrNoChoice) ||
		errors.Is(err, ErrNameTaken) ||
		errors.Is(err, ErrInsufficientPoints) ||
		errors.Is(err, ErrInvalidRequest)
}

// IsStateError checks if an error is a round-state type error.
func IsStateError(err error) bool {
	return errors.Is(err, ErrRoundClosed) || errors.Is(err, ErrRoundExists)
}

// IsNotFoundError checks if an error is a not-found type error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrRoundNotFound) || errors.Is(err, ErrPlayerNotFound)
}
