package domain

import "errors"

var (
	// ErrInsufficientCredits is returned when a balance check or guarded
	// debit finds the user cannot cover the requested amount.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrMissingInput is returned when a job payload lacks a required field.
	ErrMissingInput = errors.New("missing required input")

	// ErrUpstream is returned when the text-generation API fails at the
	// transport level or returns a malformed payload.
	ErrUpstream = errors.New("text generation upstream error")

	// ErrJobNotFound is returned when no job record exists for an id.
	ErrJobNotFound = errors.New("job not found")

	// ErrUserNotFound is returned when no user record exists for an id.
	ErrUserNotFound = errors.New("user not found")
)
