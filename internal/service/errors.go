package service

import "errors"

// Common service errors
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
)

// Matchmaking errors
var (
	ErrAlreadyQueued = errors.New("subject already queued for this mode")
	ErrNotQueued     = errors.New("subject is not in the queue")
)

// Match engine errors
var (
	ErrMatchNotFound = errors.New("match not found")
	ErrInvalidState  = errors.New("invalid match state transition")
	ErrMatchNotLive  = errors.New("match is not live")
)

// Judging errors
var (
	ErrProblemNotInMatch  = errors.New("problem does not belong to match")
	ErrNotParticipant     = errors.New("subject does not play in this match")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrJudgingBusy        = errors.New("judging queue is full")
)

// User service errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserAlreadyExists  = errors.New("user already exists")
)
