package session

import "errors"

var (
	// ErrRunActive is returned by StartRun while the session has a non-terminal run.
	ErrRunActive = errors.New("a run is already in progress for this session")

	// ErrSessionNotFound is returned for unknown session IDs.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNoActiveRun is returned when a run operation targets a session without one.
	ErrNoActiveRun = errors.New("session has no active run")

	// ErrUnsupportedLanguage is returned when a run names a language outside the catalogue.
	ErrUnsupportedLanguage = errors.New("unsupported language")
)
