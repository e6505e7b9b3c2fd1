package main

import (
	"errors"
	"fmt"
)

// Rate matching failures. Both indicate malformed upstream rate data for the
// tariff being evaluated, never a reason to abort the whole run.
var (
	ErrNoMatchingRate = errors.New("no matching rate window")
	ErrAmbiguousRate  = errors.New("multiple rate windows match")
)

// APIError represents a transport or HTTP-level failure talking to the
// Octopus API.
type APIError struct {
	StatusCode int
	Endpoint   string
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("API error at %s: %s: %v", e.Endpoint, e.Message, e.Err)
	}
	return fmt.Sprintf("API error at %s (status %d): %s", e.Endpoint, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// AuthError represents a failure to obtain or use a Kraken API token.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication error: %s", e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// EvalError marks a single candidate tariff as unpriceable. The comparator
// records it and carries on with the remaining candidates.
type EvalError struct {
	TariffID string
	Err      error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluating tariff %s: %v", e.TariffID, e.Err)
}

func (e *EvalError) Unwrap() error {
	return e.Err
}

// StageError names the switch-protocol stage that failed. Completed stages
// are never rolled back; a submitted switch cannot be un-submitted.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("switch stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
