// Package backend implements the HTTP contracts of the external scoring
// services: the fused missense service, the foundation-model service and the
// Ensembl-style sequence service.
package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrNotApplicable reports that a backend cannot score this variant
	// (precondition unmet or no coverage). It is not a failure.
	ErrNotApplicable = errors.New("not applicable")

	// ErrRejected reports that a backend rejected the request input, e.g.
	// an unsupported chromosome naming. Rejections are not retried.
	ErrRejected = errors.New("request rejected")

	// ErrBudgetExhausted reports that the per-request backend call cap was hit.
	ErrBudgetExhausted = errors.New("backend call budget exhausted")
)

// UnavailableError reports a network failure, timeout or 5xx response.
type UnavailableError struct {
	Backend string
	Op      string
	Status  int // HTTP status, 0 for transport errors
	Err     error
}

func (e *UnavailableError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s unavailable: status %d: %v", e.Backend, e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s unavailable: %v", e.Backend, e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

// IsUnavailable returns true if err is (or wraps) an UnavailableError.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}
