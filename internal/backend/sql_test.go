// ABOUTME: Tests for the SQL backend against an in-memory sqlite database.

package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/mauromedda/dnsupd/internal/record"
)

func newTestSQL(t *testing.T) *SQL {
	t.Helper()
	s, err := OpenSQL("sqlite::memory:")
	if err != nil {
		t.Fatalf("OpenSQL: %v", err)
	}
	if err := s.CreateZone(context.Background(), "example.org", "s3cret"); err != nil {
		t.Fatalf("CreateZone: %v", err)
	}
	return s
}

func TestOpenSQL_UnsupportedScheme(t *testing.T) {
	t.Parallel()

	if _, err := OpenSQL("postgres://localhost/dnsupd"); err == nil {
		t.Fatal("want error for unsupported scheme")
	}
}

func TestSQL_GetZoneSecret(t *testing.T) {
	t.Parallel()

	s := newTestSQL(t)
	ctx := context.Background()

	secret, err := s.GetZoneSecret(ctx, "Example.ORG.")
	if err != nil || secret != "s3cret" {
		t.Errorf("got (%q, %v), want (s3cret, nil)", secret, err)
	}
	if _, err := s.GetZoneSecret(ctx, "nosuch.org"); !errors.Is(err, ErrZoneNotFound) {
		t.Errorf("unknown zone: got %v, want ErrZoneNotFound", err)
	}
}

func TestSQL_CreateZoneUpserts(t *testing.T) {
	t.Parallel()

	s := newTestSQL(t)
	ctx := context.Background()

	if err := s.CreateZone(ctx, "example.org", "rotated"); err != nil {
		t.Fatalf("CreateZone: %v", err)
	}
	secret, err := s.GetZoneSecret(ctx, "example.org")
	if err != nil || secret != "rotated" {
		t.Errorf("got (%q, %v), want (rotated, nil)", secret, err)
	}
}

func TestSQL_ApplyAddAndDelete(t *testing.T) {
	t.Parallel()

	s := newTestSQL(t)
	ctx := context.Background()

	err := s.Apply(ctx, "example.org", []record.Op{
		add("www.example.org", "A", "10.0.0.1"),
		add("www.example.org", "A", "10.0.0.2"),
		add("www.example.org", "TXT", "hello"),
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	recs, err := s.Records(ctx, "example.org", "www.example.org")
	if err != nil || len(recs) != 3 {
		t.Fatalf("Records: (%d, %v), want 3", len(recs), err)
	}

	if err := s.Apply(ctx, "example.org", []record.Op{del("www.example.org", "A", "10.0.0.1")}); err != nil {
		t.Fatalf("Apply record delete: %v", err)
	}
	if err := s.Apply(ctx, "example.org", []record.Op{del("www.example.org", "A", "")}); err != nil {
		t.Fatalf("Apply rrset delete: %v", err)
	}
	recs, err = s.Records(ctx, "example.org", "www.example.org")
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Type != "TXT" {
		t.Errorf("after deletes: %+v, want one TXT", recs)
	}

	if err := s.Apply(ctx, "example.org", []record.Op{del("www.example.org", "", "")}); err != nil {
		t.Fatalf("Apply name delete: %v", err)
	}
	recs, _ = s.Records(ctx, "example.org", "www.example.org")
	if len(recs) != 0 {
		t.Errorf("after name delete: %+v, want none", recs)
	}

	serial, err := s.Serial(ctx, "example.org")
	if err != nil {
		t.Fatal(err)
	}
	if serial != 5 {
		t.Errorf("serial = %d, want 5", serial)
	}
}

func TestSQL_ApplyConflictRollsBack(t *testing.T) {
	t.Parallel()

	s := newTestSQL(t)
	ctx := context.Background()

	if err := s.Apply(ctx, "example.org", []record.Op{add("www.example.org", "A", "10.0.0.1")}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	before, _ := s.Serial(ctx, "example.org")

	err := s.Apply(ctx, "example.org", []record.Op{
		add("new.example.org", "A", "10.0.0.9"),
		add("www.example.org", "A", "10.0.0.1"), // duplicate
	})
	var rej *RejectError
	if !errors.As(err, &rej) {
		t.Fatalf("got %v, want *RejectError", err)
	}
	if rej.Reason != ReasonConflict || rej.OpIndex != 1 {
		t.Errorf("got (%v, %d), want (conflict, 1)", rej.Reason, rej.OpIndex)
	}

	// The transaction rolled back: no partial state, serial untouched.
	recs, _ := s.Records(ctx, "example.org", "new.example.org")
	if len(recs) != 0 {
		t.Errorf("partial batch applied: %+v", recs)
	}
	after, _ := s.Serial(ctx, "example.org")
	if after != before {
		t.Errorf("serial changed %d -> %d on a failed batch", before, after)
	}
}

func TestSQL_ApplyPreservesRdata(t *testing.T) {
	t.Parallel()

	s := newTestSQL(t)
	ctx := context.Background()

	op := record.Op{
		Action: record.ActionAdd,
		Record: record.Record{
			Name: "_sip._tcp.example.org", Type: "SRV", TTL: 600,
			Priority: 10, Weight: 5, Port: 5060, Value: "sip.example.org",
		},
	}
	if err := s.Apply(ctx, "example.org", []record.Op{op}); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	recs, err := s.Records(ctx, "example.org", "_sip._tcp.example.org")
	if err != nil || len(recs) != 1 {
		t.Fatalf("Records: (%d, %v), want 1", len(recs), err)
	}
	got := recs[0]
	if got.Priority != 10 || got.Weight != 5 || got.Port != 5060 || got.TTL != 600 {
		t.Errorf("round-tripped record = %+v", got)
	}
}
