// ABOUTME: Zone authentication against the backend's current secret.
// ABOUTME: Uses constant-time comparison; a TSIG-verified credential skips the compare only.

package engine

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/mauromedda/dnsupd/internal/backend"
)

// AuthResult is the outcome of a credential check.
type AuthResult uint8

const (
	// Authorized means the presented credential is the zone's current secret.
	Authorized AuthResult = iota
	// UnknownZone means the backend manages no such zone.
	UnknownZone
	// BadCredential means the zone exists but the credential does not match.
	BadCredential
)

// String returns the canonical name of the result.
func (r AuthResult) String() string {
	switch r {
	case Authorized:
		return "authorized"
	case UnknownZone:
		return "unknown-zone"
	case BadCredential:
		return "bad-credential"
	default:
		return fmt.Sprintf("AuthResult(%d)", r)
	}
}

// Credential is what a request presented as proof of authority over a zone.
// Verified is set by the DNS front end after TSIG validation, which already
// proved possession of the backend secret; the zone lookup still happens so
// an unknown zone is reported as such.
type Credential struct {
	Secret   string
	Verified bool
}

// Authenticator validates credentials against the backend.
type Authenticator struct {
	backend backend.Backend
}

// NewAuthenticator creates an authenticator over the given backend.
func NewAuthenticator(b backend.Backend) *Authenticator {
	return &Authenticator{backend: b}
}

// Authenticate checks the credential for the zone. A non-nil error means the
// backend could not answer; the AuthResult is then meaningless.
func (a *Authenticator) Authenticate(ctx context.Context, zone string, cred Credential) (AuthResult, error) {
	secret, err := a.backend.GetZoneSecret(ctx, zone)
	if errors.Is(err, backend.ErrZoneNotFound) {
		return UnknownZone, nil
	}
	if err != nil {
		return BadCredential, fmt.Errorf("fetching secret for %s: %w", zone, err)
	}

	if cred.Verified {
		return Authorized, nil
	}
	if constantTimeEqual(cred.Secret, secret) {
		return Authorized, nil
	}
	return BadCredential, nil
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
