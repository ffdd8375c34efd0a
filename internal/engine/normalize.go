// ABOUTME: Normalizers converging both wire formats on one ordered op sequence.
// ABOUTME: RFC2136 update sections and JSON update lists reduce to []record.Op.

package engine

import (
	"fmt"
	"strings"

	"github.com/miekg/dns"

	"github.com/mauromedda/dnsupd/internal/record"
)

// CrossZoneError reports an op whose owner name is outside the batch's zone.
type CrossZoneError struct {
	Zone string
	Name string
}

func (e *CrossZoneError) Error() string {
	return fmt.Sprintf("name %q is not in zone %q", e.Name, e.Zone)
}

// InvalidOpError reports the first structurally invalid op in a batch.
// No partial normalization is returned alongside it.
type InvalidOpError struct {
	Index int
	Err   error
}

func (e *InvalidOpError) Error() string {
	return fmt.Sprintf("invalid op %d: %v", e.Index, e.Err)
}

func (e *InvalidOpError) Unwrap() error { return e.Err }

// UpdateRequest is one entry of the JSON update list. Numeric fields are
// pointers so a missing field is distinguishable from an explicit zero.
type UpdateRequest struct {
	Op       string  `json:"op"`
	DNSName  string  `json:"dns_name"`
	Type     string  `json:"type,omitempty"`
	TTL      uint32  `json:"ttl,omitempty"`
	Data     string  `json:"data,omitempty"`
	Priority *uint16 `json:"priority,omitempty"`
	Weight   *uint16 `json:"weight,omitempty"`
	Port     *uint16 `json:"port,omitempty"`
}

// Normalizer converts either input shape into an ordered op sequence,
// applying the record model's structural rules and the zone-scoping check.
type Normalizer struct {
	// MinTTL is the lowest TTL accepted on additions. 0 means the default.
	MinTTL uint32
}

// FromJSON converts a JSON update list into ops. It fails fast on the first
// invalid entry.
func (n *Normalizer) FromJSON(zone string, updates []UpdateRequest) ([]record.Op, error) {
	if len(updates) == 0 {
		return nil, &InvalidOpError{Index: 0, Err: fmt.Errorf("need a list of updates")}
	}

	ops := make([]record.Op, 0, len(updates))
	for i, u := range updates {
		op, err := n.jsonOp(zone, u)
		if err != nil {
			if cz, ok := err.(*CrossZoneError); ok {
				return nil, cz
			}
			return nil, &InvalidOpError{Index: i, Err: err}
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func (n *Normalizer) jsonOp(zone string, u UpdateRequest) (record.Op, error) {
	if u.DNSName == "" {
		return record.Op{}, &record.MissingFieldError{Field: "dns_name"}
	}
	if !record.InZone(zone, u.DNSName) {
		return record.Op{}, &CrossZoneError{Zone: record.Canonical(zone), Name: record.Canonical(u.DNSName)}
	}

	r := record.Record{
		Name:  u.DNSName,
		Type:  u.Type,
		TTL:   u.TTL,
		Value: u.Data,
	}
	if u.Priority != nil {
		r.Priority = *u.Priority
	}
	if u.Weight != nil {
		r.Weight = *u.Weight
	}
	if u.Port != nil {
		r.Port = *u.Port
	}

	switch u.Op {
	case "add":
		if err := requireTypeParams(u); err != nil {
			return record.Op{}, err
		}
		if err := r.ValidateForAdd(n.MinTTL); err != nil {
			return record.Op{}, err
		}
		return record.Op{Action: record.ActionAdd, Record: r}, nil

	case "delete":
		if r.Type != "" && !record.Supported(r.Type) {
			return record.Op{}, fmt.Errorf("unsupported record type %q", r.Type)
		}
		r.ValidateForDelete()
		// An untyped delete of the apex would wipe the whole zone.
		if r.Type == "" && r.Name == record.Canonical(zone) {
			return record.Op{}, fmt.Errorf("refusing to delete entire zone %s", r.Name)
		}
		return record.Op{Action: record.ActionDelete, Record: r}, nil

	default:
		return record.Op{}, fmt.Errorf("unknown op %q", u.Op)
	}
}

// requireTypeParams enforces presence of per-type numeric parameters that
// the record model cannot distinguish from explicit zeros.
func requireTypeParams(u UpdateRequest) error {
	switch strings.ToUpper(u.Type) {
	case "MX":
		if u.Priority == nil {
			return &record.MissingFieldError{Field: "priority"}
		}
	case "SRV":
		if u.Priority == nil {
			return &record.MissingFieldError{Field: "priority"}
		}
		if u.Weight == nil {
			return &record.MissingFieldError{Field: "weight"}
		}
		if u.Port == nil {
			return &record.MissingFieldError{Field: "port"}
		}
	}
	return nil
}

// FromWire converts an RFC2136 update section into ops, mapping the
// section 2.5 class conventions: class ANY with type ANY deletes a name,
// class ANY deletes an rrset, class NONE deletes one record, class IN adds.
func (n *Normalizer) FromWire(zone string, updates []dns.RR) ([]record.Op, error) {
	if len(updates) == 0 {
		return nil, &InvalidOpError{Index: 0, Err: fmt.Errorf("empty update section")}
	}

	ops := make([]record.Op, 0, len(updates))
	for i, rr := range updates {
		op, err := n.wireOp(zone, rr)
		if err != nil {
			if cz, ok := err.(*CrossZoneError); ok {
				return nil, cz
			}
			return nil, &InvalidOpError{Index: i, Err: err}
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func (n *Normalizer) wireOp(zone string, rr dns.RR) (record.Op, error) {
	hdr := rr.Header()
	name := record.Canonical(hdr.Name)
	if !record.InZone(zone, name) {
		return record.Op{}, &CrossZoneError{Zone: record.Canonical(zone), Name: name}
	}

	switch hdr.Class {
	case dns.ClassANY:
		if hdr.Rrtype == dns.TypeANY {
			if name == record.Canonical(zone) {
				return record.Op{}, fmt.Errorf("refusing to delete entire zone %s", name)
			}
			r := record.Record{Name: name}
			return record.Op{Action: record.ActionDelete, Record: r}, nil
		}
		rtype := dns.TypeToString[hdr.Rrtype]
		if !record.Supported(rtype) {
			return record.Op{}, fmt.Errorf("unsupported record type %q", rtype)
		}
		r := record.Record{Name: name, Type: rtype}
		return record.Op{Action: record.ActionDelete, Record: r}, nil

	case dns.ClassNONE:
		r, err := fromRR(rr)
		if err != nil {
			return record.Op{}, err
		}
		return record.Op{Action: record.ActionDelete, Record: r}, nil

	case dns.ClassINET:
		r, err := fromRR(rr)
		if err != nil {
			return record.Op{}, err
		}
		r.TTL = hdr.Ttl
		if err := r.ValidateForAdd(n.MinTTL); err != nil {
			return record.Op{}, err
		}
		return record.Op{Action: record.ActionAdd, Record: r}, nil

	default:
		return record.Op{}, fmt.Errorf("unexpected class %d in update section", hdr.Class)
	}
}

// fromRR extracts the type-specific data of a wire record.
func fromRR(rr dns.RR) (record.Record, error) {
	hdr := rr.Header()
	r := record.Record{
		Name: record.Canonical(hdr.Name),
		Type: dns.TypeToString[hdr.Rrtype],
	}

	switch v := rr.(type) {
	case *dns.A:
		r.Value = v.A.String()
	case *dns.AAAA:
		r.Value = v.AAAA.String()
	case *dns.CNAME:
		r.Value = record.Canonical(v.Target)
	case *dns.TXT:
		r.Value = strings.Join(v.Txt, "")
	case *dns.MX:
		r.Priority = v.Preference
		r.Value = record.Canonical(v.Mx)
	case *dns.SRV:
		r.Priority = v.Priority
		r.Weight = v.Weight
		r.Port = v.Port
		r.Value = record.Canonical(v.Target)
	default:
		return record.Record{}, fmt.Errorf("unsupported record type %q", dns.TypeToString[hdr.Rrtype])
	}
	return r, nil
}
