package common

import "errors"

// Sentinel errors for the core. Callers test with errors.Is; producers wrap
// with fmt.Errorf("...: %w", err) to add context.
var (
	// ErrNotFound reports an unknown document or entity id.
	ErrNotFound = errors.New("not found")

	// ErrVersionMismatch reports an attempt to compare embedding vectors
	// produced by different model versions.
	ErrVersionMismatch = errors.New("embedding model version mismatch")

	// ErrUpstreamUnavailable reports a text model timeout or failure. It is
	// always recoverable: callers fall back to their degraded mode.
	ErrUpstreamUnavailable = errors.New("text model unavailable")

	// ErrAmbiguousResolution reports an entity name that resolves to more
	// than one candidate above the similarity threshold. The caller must
	// disambiguate; the registry never guesses.
	ErrAmbiguousResolution = errors.New("ambiguous entity resolution")
)
