// ABOUTME: Backend capability interface consumed by the update engine.
// ABOUTME: Defines zone secret lookup and atomic batch application.

package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/mauromedda/dnsupd/internal/record"
)

// ErrZoneNotFound is returned by GetZoneSecret for zones the backend does
// not manage or has not enabled updates for.
var ErrZoneNotFound = errors.New("zone not found")

// Reason classifies why a batch was rejected.
type Reason uint8

const (
	// ReasonConflict means an op contradicted the existing record set.
	ReasonConflict Reason = iota
	// ReasonTimeout means the backend did not answer within the bound.
	ReasonTimeout
	// ReasonUnavailable covers every unclassified backend fault.
	ReasonUnavailable
)

// String returns the canonical name of the reason.
func (r Reason) String() string {
	switch r {
	case ReasonConflict:
		return "conflict"
	case ReasonTimeout:
		return "timeout"
	case ReasonUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("Reason(%d)", r)
	}
}

// RejectError reports a rejected batch. OpIndex is the position of the
// failing op, or -1 when the failure is not attributable to one op.
type RejectError struct {
	Reason  Reason
	OpIndex int
	Err     error
}

func (e *RejectError) Error() string {
	if e.OpIndex >= 0 {
		return fmt.Sprintf("batch rejected (%s) at op %d: %v", e.Reason, e.OpIndex, e.Err)
	}
	return fmt.Sprintf("batch rejected (%s): %v", e.Reason, e.Err)
}

func (e *RejectError) Unwrap() error { return e.Err }

// Backend is the entire contract the update engine requires of a storage
// layer. Apply must be atomic per call: either every op lands or none does.
type Backend interface {
	// GetZoneSecret returns the zone's current update secret, or
	// ErrZoneNotFound when updates are not enabled for the zone.
	GetZoneSecret(ctx context.Context, zone string) (string, error)

	// Apply commits the ordered batch against the zone. A nil return means
	// every op landed. A *RejectError return means nothing landed.
	Apply(ctx context.Context, zone string, ops []record.Op) error
}
