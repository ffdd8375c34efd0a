// ABOUTME: TSIG provider resolving key secrets through the backend.
// ABOUTME: Key names are zone names; verification is constant-time HMAC.

package dnsfront

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"hash"
	"time"

	"github.com/miekg/dns"

	"github.com/mauromedda/dnsupd/internal/backend"
	"github.com/mauromedda/dnsupd/internal/record"
)

// zoneTsigProvider implements dns.TsigProvider. The TSIG key name must equal
// the zone being updated; its secret is whatever the backend reports as the
// zone's current update secret.
type zoneTsigProvider struct {
	backend backend.Backend
	timeout time.Duration
}

func (p *zoneTsigProvider) secretFor(keyName string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	secret, err := p.backend.GetZoneSecret(ctx, record.Canonical(keyName))
	if err != nil {
		return "", dns.ErrSecret
	}
	return secret, nil
}

// Generate computes the request or response MAC over the message buffer the
// library prepares (TSIG variables included).
func (p *zoneTsigProvider) Generate(msg []byte, t *dns.TSIG) ([]byte, error) {
	secret, err := p.secretFor(t.Hdr.Name)
	if err != nil {
		return nil, err
	}
	raw, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return nil, dns.ErrSecret
	}

	var h hash.Hash
	switch dns.CanonicalName(t.Algorithm) {
	case dns.HmacSHA1:
		h = hmac.New(sha1.New, raw)
	case dns.HmacSHA224:
		h = hmac.New(sha256.New224, raw)
	case dns.HmacSHA256:
		h = hmac.New(sha256.New, raw)
	case dns.HmacSHA384:
		h = hmac.New(sha512.New384, raw)
	case dns.HmacSHA512:
		h = hmac.New(sha512.New, raw)
	default:
		return nil, dns.ErrKeyAlg
	}
	h.Write(msg)
	return h.Sum(nil), nil
}

// Verify checks the MAC carried in the TSIG record against a fresh
// computation. hmac.Equal keeps the comparison constant-time.
func (p *zoneTsigProvider) Verify(msg []byte, t *dns.TSIG) error {
	want, err := p.Generate(msg, t)
	if err != nil {
		return err
	}
	got, err := hex.DecodeString(t.MAC)
	if err != nil {
		return err
	}
	if !hmac.Equal(want, got) {
		return dns.ErrSig
	}
	return nil
}

var _ dns.TsigProvider = (*zoneTsigProvider)(nil)
