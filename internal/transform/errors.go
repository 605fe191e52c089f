package transform

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingGUID is returned when a record without a guid is transformed.
	ErrMissingGUID = errors.New("entry must include a guid field")
	// ErrMissingOwnerID is returned when a record without an ownerId is transformed.
	ErrMissingOwnerID = errors.New("entry must include an ownerId field")
	// ErrMissingUser is returned when no user is supplied.
	ErrMissingUser = errors.New("must supply a user")
	// ErrMissingTarget is returned when untransform has no target account.
	ErrMissingTarget = errors.New("must supply a target account")

	// ErrNoMatch means a reverse lookup found nothing under the target account.
	ErrNoMatch = errors.New("could not find an entry")
	// ErrAmbiguousMatch means a reverse lookup found more than one entry.
	ErrAmbiguousMatch = errors.New("service returned too many entries")
	// ErrUnresolved is returned when a sentinel recording a failed forward
	// lookup reaches untransform.
	ErrUnresolved = errors.New("unresolved reference")
)

// LookupError describes a failed reverse lookup.
type LookupError struct {
	// By is "guid" or "qualified field name".
	By  string
	Key string
	Err error
}

func (e *LookupError) Error() string {
	switch {
	case errors.Is(e.Err, ErrNoMatch):
		return fmt.Sprintf("could not find an entry by %s: %s", e.By, e.Key)
	case errors.Is(e.Err, ErrAmbiguousMatch):
		return fmt.Sprintf("service returned too many entries on %s: %s", e.By, e.Key)
	default:
		return fmt.Sprintf("lookup by %s %s: %v", e.By, e.Key, e.Err)
	}
}

func (e *LookupError) Unwrap() error { return e.Err }
