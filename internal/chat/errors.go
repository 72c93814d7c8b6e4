package chat

import "errors"

var (
	// ErrEmptyMessage means the caller sent a missing or blank message.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrSessionNotFound is returned on explicit history reads only;
	// SendMessage treats an unknown id as "start a new session".
	ErrSessionNotFound = errors.New("session not found")
	// ErrUnknownModel means a model id outside the configured list.
	ErrUnknownModel = errors.New("unknown model")
)
