package capture

import "errors"

// Failure taxonomy of a capture attempt. All of these are local and
// recoverable: the session always returns to idle and the user may start a
// new capture. None are retried automatically.
var (
	// ErrPermissionDenied means the delegated facility exists but refused
	// to record.
	ErrPermissionDenied = errors.New("capture permission denied")

	// ErrBackendUnavailable means the configured capture facility or the
	// local audio backend is not present or not usable.
	ErrBackendUnavailable = errors.New("capture backend unavailable")

	// ErrNoMutualFormat means format negotiation was exhausted and even
	// the raw fallback is unavailable. Reaching this is itself a defect,
	// since raw capture only requires sample access.
	ErrNoMutualFormat = errors.New("no mutually supported capture format")

	// ErrEmptyPayload means the capture reported success but produced no
	// usable bytes. Empty records are never persisted.
	ErrEmptyPayload = errors.New("capture produced an empty payload")

	// ErrMalformedPayload means a delegated facility returned a payload
	// that failed base64 normalization or decoding.
	ErrMalformedPayload = errors.New("malformed capture payload")

	// ErrPersistenceFailure means the payload or index write failed.
	ErrPersistenceFailure = errors.New("unable to persist record")
)
