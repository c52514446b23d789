/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package backend

import (
	"errors"
	"fmt"

	"github.com/tschaefer/filterctl/internal/compiler"
	"github.com/tschaefer/filterctl/internal/rule"
)

// Backend opens sessions on a filtering engine.
type Backend interface {
	Name() string
	Open() (Session, error)
}

// Session installs and removes units. Sessions are not safe for concurrent
// use.
type Session interface {
	Submit(unit compiler.Unit) (rule.FilterID, error)
	Delete(id rule.FilterID) error
	Close() error
	String() string
}

var (
	ErrSessionOpen  = errors.New("failed to open filter engine session")
	ErrSessionClose = errors.New("failed to close filter engine session")
	ErrDelete       = errors.New("failed to delete filter")
	ErrUnavailable  = errors.New("filter engine not available on this platform")
)

// Reason classifies a failed submission.
type Reason int

const (
	ReasonUnknown Reason = iota
	ReasonAccessDenied
	ReasonInvalidParameter
	ReasonNotSupported
	ReasonAlreadyExists
	ReasonNotFound
)

func (r Reason) String() string {
	switch r {
	case ReasonAccessDenied:
		return "access_denied"
	case ReasonInvalidParameter:
		return "invalid_parameter"
	case ReasonNotSupported:
		return "not_supported"
	case ReasonAlreadyExists:
		return "already_exists"
	case ReasonNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Message is the operator facing explanation of a reason.
func (r Reason) Message() string {
	switch r {
	case ReasonAccessDenied:
		return "access denied, administrator privileges required"
	case ReasonInvalidParameter:
		return "invalid parameter, check filter conditions and layer compatibility"
	case ReasonNotSupported:
		return "operation not supported by the filter engine"
	case ReasonAlreadyExists:
		return "filter already exists"
	case ReasonNotFound:
		return "layer or sublayer not found"
	default:
		return "unknown error"
	}
}

type SubmitError struct {
	Reason Reason
	Err    error
}

func (e *SubmitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("failed to submit filter: %s", e.Reason.Message())
	}
	return fmt.Sprintf("failed to submit filter: %s: %v", e.Reason.Message(), e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

// ReasonOf returns the reason of a submission error, ReasonUnknown for any
// other error.
func ReasonOf(err error) Reason {
	var se *SubmitError
	if errors.As(err, &se) {
		return se.Reason
	}
	if errors.Is(err, compiler.ErrNotSupported) {
		return ReasonNotSupported
	}
	return ReasonUnknown
}
