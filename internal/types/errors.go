package types

import (
	"errors"
	"fmt"
)

type SourceErrorKind int

const (
	// Transient covers every fetch failure that may succeed on a later cycle.
	Transient SourceErrorKind = iota
	NotFound
)

func (k SourceErrorKind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	default:
		return "transient"
	}
}

type SourceError struct {
	Platform string
	Subject  string
	Kind     SourceErrorKind
	Err      error
}

func (e *SourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s: %s", e.Platform, e.Subject, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s: %v", e.Platform, e.Subject, e.Kind, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

func NewNotFoundError(platform, subject string) *SourceError {
	return &SourceError{
		Platform: platform,
		Subject:  subject,
		Kind:     NotFound,
	}
}

func NewTransientError(platform, subject string, err error) *SourceError {
	return &SourceError{
		Platform: platform,
		Subject:  subject,
		Kind:     Transient,
		Err:      err,
	}
}

func IsNotFound(err error) bool {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Kind == NotFound
	}
	return false
}
