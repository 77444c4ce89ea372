// Package service provides business logic for assistants, sessions and turns.
package service

import "errors"

var (
	// ErrNotAuthorized is returned when the caller has neither ownership of
	// the session's assistant nor a matching share token.
	ErrNotAuthorized = errors.New("not authorized for session")

	// ErrSessionNotRunning is returned when a turn or reset targets a
	// stopped session.
	ErrSessionNotRunning = errors.New("session is not running")

	// ErrEmptyMessage is returned when the message text is empty after
	// trimming whitespace.
	ErrEmptyMessage = errors.New("message text is empty")

	// ErrConfigurationMissing is returned when the assistant lacks the
	// configuration a turn needs, for example an API key.
	ErrConfigurationMissing = errors.New("assistant configuration missing")

	// ErrModelCallFailed wraps provider failures. No turn row is written
	// when the model call fails.
	ErrModelCallFailed = errors.New("model call failed")

	// ErrPersistFailed wraps storage failures after a successful model call.
	ErrPersistFailed = errors.New("persisting turn failed")

	// ErrThreadInitializationFailed wraps failures binding a viewer to a
	// thread.
	ErrThreadInitializationFailed = errors.New("thread initialization failed")
)
