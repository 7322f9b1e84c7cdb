/*
errors.go - Error types for the reconstruction engine

PURPOSE:
  All error types in one place. Malformed events never abort a batch; they
  become Diagnostic values (see diagnostics.go) whose Unwrap returns one of
  the sentinels below, so consumers can branch with errors.Is.

ERROR CATEGORIES:
  1. Malformed events - missing vehicle, missing term, unknown kind
  2. Unresolved references - missing or unmatched original policy
  3. Archive errors - batch lookup and duplicate writes

SEE ALSO:
  - diagnostics.go: Diagnostic wraps these sentinels
  - store/memory.go: Uses the archive errors
*/
package history

import "errors"

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMissingVehicle is reported when a created event has no usable
	// vehicle descriptor. The event is dropped.
	ErrMissingVehicle = errors.New("created event has no resolvable vehicle")

	// ErrMissingOriginalPolicy is reported when an extension carries no
	// original policy id.
	ErrMissingOriginalPolicy = errors.New("extension has no original policy id")

	// ErrUnmatchedReference is reported when an extension or cancellation
	// targets a policy that is not part of the batch.
	ErrUnmatchedReference = errors.New("event references an unknown policy")

	// ErrMissingTerm is reported when a created or extended event lacks a
	// start or end date.
	ErrMissingTerm = errors.New("event has no start or end date")

	// ErrUnknownEventKind is returned when a wire kind cannot be parsed.
	ErrUnknownEventKind = errors.New("unknown event kind")

	// ErrBatchNotFound is returned when an archive holds no matching batch.
	ErrBatchNotFound = errors.New("batch not found")

	// ErrDuplicateBatch is returned when a batch id is archived twice.
	ErrDuplicateBatch = errors.New("duplicate batch id")
)

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsUnresolvedReference returns true if err is about a policy reference
// that could not be followed.
func IsUnresolvedReference(err error) bool {
	return errors.Is(err, ErrMissingOriginalPolicy) ||
		errors.Is(err, ErrUnmatchedReference)
}

// IsMalformedEvent returns true if err is about an event missing a field
// the engine needs.
func IsMalformedEvent(err error) bool {
	return errors.Is(err, ErrMissingVehicle) ||
		errors.Is(err, ErrMissingTerm) ||
		errors.Is(err, ErrUnknownEventKind)
}

// IsNotFound returns true if the error indicates a missing batch.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBatchNotFound)
}
