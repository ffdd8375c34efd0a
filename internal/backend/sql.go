// ABOUTME: SQL backend over GORM with the sqlite driver.
// ABOUTME: Applies update batches in one transaction and bumps the zone serial.

package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mauromedda/dnsupd/internal/record"
)

// ZoneRow is one managed zone and its current update secret.
type ZoneRow struct {
	Name   string `gorm:"primaryKey"`
	Secret string
	Serial uint32
}

// RecordRow is one resource record owned by a zone.
type RecordRow struct {
	ID       uint   `gorm:"primaryKey"`
	Zone     string `gorm:"index:idx_zone_name"`
	Name     string `gorm:"index:idx_zone_name"`
	Type     string
	TTL      uint32
	Priority uint16
	Weight   uint16
	Port     uint16
	Data     string
}

// SQL implements Backend on a relational database.
type SQL struct {
	db *gorm.DB
}

// OpenSQL opens a backend from a db-url string. Supported:
//   - sqlite:<dsn>  e.g., sqlite:./dnsupd.db or sqlite::memory:
func OpenSQL(dbURL string) (*SQL, error) {
	dsn, ok := strings.CutPrefix(dbURL, "sqlite:")
	if !ok {
		return nil, fmt.Errorf("unsupported db scheme: %s", dbURL)
	}
	if dsn == "" {
		dsn = "./dnsupd.db"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", dbURL, err)
	}
	if err := db.AutoMigrate(&ZoneRow{}, &RecordRow{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &SQL{db: db}, nil
}

// CreateZone registers a zone with its update secret. Secret rotation is an
// operator concern; this simply upserts the current value.
func (s *SQL) CreateZone(ctx context.Context, zone, secret string) error {
	zone = record.Canonical(zone)
	row := ZoneRow{Name: zone, Secret: secret, Serial: 1}
	return s.db.WithContext(ctx).Save(&row).Error
}

// GetZoneSecret implements Backend.
func (s *SQL) GetZoneSecret(ctx context.Context, zone string) (string, error) {
	var row ZoneRow
	err := s.db.WithContext(ctx).First(&row, "name = ?", record.Canonical(zone)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrZoneNotFound
	}
	if err != nil {
		return "", fmt.Errorf("looking up zone %s: %w", zone, err)
	}
	return row.Secret, nil
}

// Records returns every record for a name, in insertion order.
func (s *SQL) Records(ctx context.Context, zone, name string) ([]record.Record, error) {
	var rows []RecordRow
	err := s.db.WithContext(ctx).
		Where("zone = ? AND name = ?", record.Canonical(zone), record.Canonical(name)).
		Order("id ASC").Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]record.Record, 0, len(rows))
	for i := range rows {
		out = append(out, rowToRecord(&rows[i]))
	}
	return out, nil
}

// Serial returns the zone's current serial number.
func (s *SQL) Serial(ctx context.Context, zone string) (uint32, error) {
	var row ZoneRow
	if err := s.db.WithContext(ctx).First(&row, "name = ?", record.Canonical(zone)).Error; err != nil {
		return 0, err
	}
	return row.Serial, nil
}

// Apply implements Backend. The whole batch runs in one transaction; any
// failing op rolls everything back.
func (s *SQL) Apply(ctx context.Context, zone string, ops []record.Op) error {
	zone = record.Canonical(zone)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, op := range ops {
			if err := applyOne(tx, zone, op); err != nil {
				var rej *RejectError
				if errors.As(err, &rej) {
					rej.OpIndex = i
					return rej
				}
				return err
			}
		}
		// Signal secondaries via the serial, the SQL analogue of NOTIFY.
		res := tx.Model(&ZoneRow{}).Where("name = ?", zone).
			Update("serial", gorm.Expr("(serial % 4294967295) + 1"))
		if res.Error != nil {
			return res.Error
		}
		return nil
	})
	if err == nil {
		return nil
	}
	var rej *RejectError
	if errors.As(err, &rej) {
		return rej
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &RejectError{Reason: ReasonTimeout, OpIndex: -1, Err: err}
	}
	return &RejectError{Reason: ReasonUnavailable, OpIndex: -1, Err: err}
}

func applyOne(tx *gorm.DB, zone string, op record.Op) error {
	r := op.Record
	if op.Action == record.ActionDelete {
		q := tx.Where("zone = ? AND name = ?", zone, r.Name)
		switch op.Scope() {
		case record.ScopeRRset:
			q = q.Where("type = ?", r.Type)
		case record.ScopeRecord:
			q = q.Where("type = ? AND data = ?", r.Type, r.Value)
		}
		return q.Delete(&RecordRow{}).Error
	}

	// Duplicate additions contradict the record set rather than extend it.
	var n int64
	err := tx.Model(&RecordRow{}).
		Where("zone = ? AND name = ? AND type = ? AND data = ?", zone, r.Name, r.Type, r.Value).
		Count(&n).Error
	if err != nil {
		return err
	}
	if n > 0 {
		return &RejectError{
			Reason: ReasonConflict,
			Err:    fmt.Errorf("record %s %s %q already exists", r.Name, r.Type, r.Value),
		}
	}
	row := RecordRow{
		Zone: zone, Name: r.Name, Type: r.Type, TTL: r.TTL,
		Priority: r.Priority, Weight: r.Weight, Port: r.Port, Data: r.Value,
	}
	return tx.Create(&row).Error
}

func rowToRecord(row *RecordRow) record.Record {
	return record.Record{
		Name: row.Name, Type: row.Type, TTL: row.TTL, Value: row.Data,
		Priority: row.Priority, Weight: row.Weight, Port: row.Port,
	}
}

var _ Backend = (*SQL)(nil)
