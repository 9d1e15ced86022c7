package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeNotMember         = "not_member"
	ErrCodeForbidden         = "forbidden"
	ErrCodeNotFound          = "not_found"
	ErrCodeInvalidContent    = "invalid_content"
	ErrCodeInvalidMembership = "invalid_membership"
	ErrCodeConflictRace      = "conflict_race"
	ErrCodeBadRequest        = "bad_request"
	ErrCodeUnauthorized      = "unauthorized"
	ErrCodeInternal          = "internal"
)

// Domain errors. Wrap them with fmt.Errorf("%w: ...") to add detail and
// classify with errors.Is.
var (
	// ErrNotMember is returned when a member-only resource is accessed by a non-member.
	ErrNotMember = coreError(ErrCodeNotMember, "not a member of this conversation")
	// ErrForbidden is returned when the actor may not perform the mutation.
	ErrForbidden = coreError(ErrCodeForbidden, "forbidden")
	// ErrNotFound is returned for unknown ids.
	ErrNotFound = coreError(ErrCodeNotFound, "not found")
	// ErrInvalidContent is returned when text input violates constraints.
	ErrInvalidContent = coreError(ErrCodeInvalidContent, "invalid content")
	// ErrInvalidMembership is returned when a member set violates constraints.
	ErrInvalidMembership = coreError(ErrCodeInvalidMembership, "invalid membership")
	// ErrBadRequest is returned for malformed request parameters such as page tokens.
	ErrBadRequest = coreError(ErrCodeBadRequest, "bad request")
	// ErrConflictRace marks a lost direct-conversation insert race. It is
	// resolved internally and never returned to callers.
	ErrConflictRace = coreError(ErrCodeConflictRace, "concurrent conversation creation")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// CodeOf returns the domain code carried by err, or ErrCodeInternal.
func CodeOf(err error) string {
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrCodeInternal
}
