// ABOUTME: Record data model with per-type structural validation and dns.RR conversion.
// ABOUTME: Supports the A, AAAA, CNAME, MX, SRV and TXT record types.

package record

import (
	"fmt"
	"net"
	"strings"

	"github.com/miekg/dns"
)

const (
	// DefaultTTL is applied to additions that carry no TTL.
	DefaultTTL = 300
	// DefaultMinTTL is the floor applied when no minimum is configured.
	DefaultMinTTL = 120

	txtChunk = 255
)

// supportedTypes enumerates the record types updates may target.
var supportedTypes = map[string]bool{
	"A": true, "AAAA": true, "CNAME": true, "MX": true, "SRV": true, "TXT": true,
}

// Supported reports whether rtype names a record type updates may target.
func Supported(rtype string) bool {
	return supportedTypes[strings.ToUpper(rtype)]
}

// MissingFieldError reports a structurally incomplete addition.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}

// Record is one DNS resource record, or a partial reference used to
// narrow a deletion. Names are stored canonical: lowercase, no final dot.
type Record struct {
	Name     string `json:"dns_name"`
	Type     string `json:"type,omitempty"`
	TTL      uint32 `json:"ttl,omitempty"`
	Value    string `json:"data,omitempty"`
	Priority uint16 `json:"priority,omitempty"`
	Weight   uint16 `json:"weight,omitempty"`
	Port     uint16 `json:"port,omitempty"`
}

// Canonical lowercases a DNS name and strips the final dot, producing the
// form records are stored and compared in.
func Canonical(name string) string {
	return strings.TrimSuffix(strings.ToLower(name), ".")
}

// InZone reports whether name equals zone or is a subdomain of it.
// Both arguments are compared in canonical form.
func InZone(zone, name string) bool {
	zone, name = Canonical(zone), Canonical(name)
	if zone == "" {
		return false
	}
	return name == zone || strings.HasSuffix(name, "."+zone)
}

// ValidateForAdd checks that the record is fully specified for an addition.
// It normalises Type to uppercase and applies the default TTL when unset.
// minTTL of 0 means DefaultMinTTL.
func (r *Record) ValidateForAdd(minTTL uint32) error {
	if r.Name == "" {
		return &MissingFieldError{Field: "dns_name"}
	}
	r.Name = Canonical(r.Name)

	r.Type = strings.ToUpper(r.Type)
	if r.Type == "" {
		return &MissingFieldError{Field: "type"}
	}
	if !supportedTypes[r.Type] {
		return fmt.Errorf("unsupported record type %q", r.Type)
	}

	if minTTL == 0 {
		minTTL = DefaultMinTTL
	}
	if r.TTL == 0 {
		r.TTL = DefaultTTL
	}
	if r.TTL < minTTL {
		return fmt.Errorf("TTL %d below minimum %d", r.TTL, minTTL)
	}

	if r.Value == "" {
		return &MissingFieldError{Field: "data"}
	}

	switch r.Type {
	case "A":
		ip := net.ParseIP(r.Value)
		if ip == nil || ip.To4() == nil {
			return fmt.Errorf("data %q is not a valid IPv4 address", r.Value)
		}
	case "AAAA":
		ip := net.ParseIP(r.Value)
		if ip == nil || ip.To4() != nil {
			return fmt.Errorf("data %q is not a valid IPv6 address", r.Value)
		}
	case "CNAME":
		if !validHostname(r.Value) {
			return fmt.Errorf("invalid CNAME target %q", r.Value)
		}
	case "MX":
		if r.Priority == 0 {
			return &MissingFieldError{Field: "priority"}
		}
		if !validHostname(r.Value) {
			return fmt.Errorf("invalid MX target %q", r.Value)
		}
	case "SRV":
		if r.Port == 0 {
			return &MissingFieldError{Field: "port"}
		}
		if !validHostname(r.Value) {
			return fmt.Errorf("invalid SRV target %q", r.Value)
		}
	case "TXT":
		// Any non-empty payload is acceptable.
	}
	return nil
}

// ValidateForDelete normalises a deletion reference. Partial references are
// always legal, so this never fails.
func (r *Record) ValidateForDelete() {
	r.Name = Canonical(r.Name)
	r.Type = strings.ToUpper(r.Type)
}

// validHostname accepts dotted label names, with or without a final dot.
func validHostname(s string) bool {
	s = strings.TrimSuffix(s, ".")
	if s == "" {
		return false
	}
	for _, label := range strings.Split(s, ".") {
		if label == "" {
			return false
		}
		for _, c := range label {
			if c != '-' && c != '_' &&
				(c < 'a' || c > 'z') && (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
				return false
			}
		}
	}
	return true
}

// ToRR converts a fully specified record into a miekg/dns RR. The record
// should have passed ValidateForAdd first.
func (r Record) ToRR() (dns.RR, error) {
	hdr := dns.RR_Header{
		Name:   dns.Fqdn(r.Name),
		Rrtype: dns.StringToType[r.Type],
		Class:  dns.ClassINET,
		Ttl:    r.TTL,
	}

	switch r.Type {
	case "A":
		return &dns.A{Hdr: hdr, A: net.ParseIP(r.Value).To4()}, nil
	case "AAAA":
		return &dns.AAAA{Hdr: hdr, AAAA: net.ParseIP(r.Value)}, nil
	case "CNAME":
		return &dns.CNAME{Hdr: hdr, Target: dns.Fqdn(r.Value)}, nil
	case "TXT":
		return &dns.TXT{Hdr: hdr, Txt: splitTXT(r.Value)}, nil
	case "MX":
		return &dns.MX{Hdr: hdr, Preference: r.Priority, Mx: dns.Fqdn(r.Value)}, nil
	case "SRV":
		return &dns.SRV{Hdr: hdr, Priority: r.Priority, Weight: r.Weight, Port: r.Port, Target: dns.Fqdn(r.Value)}, nil
	default:
		return nil, fmt.Errorf("unsupported record type %q", r.Type)
	}
}

// splitTXT breaks a TXT value into 255-byte chunks as required by RFC 4408.
func splitTXT(s string) []string {
	if len(s) <= txtChunk {
		return []string{s}
	}
	var chunks []string
	for len(s) > 0 {
		end := txtChunk
		if end > len(s) {
			end = len(s)
		}
		chunks = append(chunks, s[:end])
		s = s[end:]
	}
	return chunks
}
