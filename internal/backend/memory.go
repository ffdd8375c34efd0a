// ABOUTME: In-memory backend with atomic JSON file persistence and auto-reload.
// ABOUTME: Apply stages the batch on a copy of the zone and swaps it in on success.

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mauromedda/dnsupd/internal/record"
)

// ZoneData is the persisted form of one zone.
type ZoneData struct {
	Name    string          `json:"name"`
	Secret  string          `json:"secret"`
	Serial  uint32          `json:"serial"`
	Records []record.Record `json:"records,omitempty"`
}

// memoryFile is the JSON envelope for the backing file.
type memoryFile struct {
	Zones []ZoneData `json:"zones"`
}

// Memory implements Backend in process memory with optional JSON file
// backing. External edits to the file are picked up by mtime polling.
type Memory struct {
	mu       sync.RWMutex
	zones    map[string]*ZoneData // key: canonical zone name
	filePath string
	reload   time.Duration
	lastMod  time.Time
	stopCh   chan struct{}
	logger   *slog.Logger

	persistMu  sync.Mutex // serializes file writes, independent of mu
	generation uint64     // incremented on each mutation (under mu)
	persisted  uint64     // generation of last successful persist
}

// MemoryOption configures optional Memory behaviour.
type MemoryOption func(*Memory)

// WithReload enables mtime-based auto-reload at the given interval.
func WithReload(d time.Duration) MemoryOption {
	return func(m *Memory) { m.reload = d }
}

// WithMemoryLogger sets the logger used for reload and persist faults.
func WithMemoryLogger(l *slog.Logger) MemoryOption {
	return func(m *Memory) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMemory creates a backend backed by the given file path. If the file
// exists its zones are loaded; if not, an empty file is created. An empty
// path keeps everything in memory only.
func NewMemory(filePath string, opts ...MemoryOption) (*Memory, error) {
	m := &Memory{
		zones:    make(map[string]*ZoneData),
		filePath: filePath,
		stopCh:   make(chan struct{}),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}

	if filePath != "" {
		if err := m.loadOrCreate(); err != nil {
			return nil, fmt.Errorf("initialising backend from %s: %w", filePath, err)
		}
		if m.reload > 0 {
			go m.run()
		}
	}
	return m, nil
}

// Stop terminates the auto-reload goroutine.
func (m *Memory) Stop() {
	select {
	case <-m.stopCh:
	default:
		close(m.stopCh)
	}
}

// CreateZone registers a zone with its update secret.
func (m *Memory) CreateZone(zone, secret string) error {
	zone = record.Canonical(zone)
	m.mu.Lock()
	if _, ok := m.zones[zone]; !ok {
		m.zones[zone] = &ZoneData{Name: zone, Secret: secret, Serial: 1}
	} else {
		m.zones[zone].Secret = secret
	}
	m.generation++
	snapshot, gen := m.collectLocked(), m.generation
	m.mu.Unlock()
	return m.persistSnapshot(snapshot, gen)
}

// GetZoneSecret implements Backend.
func (m *Memory) GetZoneSecret(_ context.Context, zone string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	z, ok := m.zones[record.Canonical(zone)]
	if !ok {
		return "", ErrZoneNotFound
	}
	return z.Secret, nil
}

// Records returns a copy of the records for a name within a zone.
func (m *Memory) Records(zone, name string) []record.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	z, ok := m.zones[record.Canonical(zone)]
	if !ok {
		return nil
	}
	name = record.Canonical(name)
	var out []record.Record
	for _, r := range z.Records {
		if r.Name == name {
			out = append(out, r)
		}
	}
	return out
}

// Serial returns the zone's current serial number.
func (m *Memory) Serial(zone string) uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if z, ok := m.zones[record.Canonical(zone)]; ok {
		return z.Serial
	}
	return 0
}

// Apply implements Backend. The batch is staged against a copy of the
// zone's records; the copy replaces the live set only when every op lands.
func (m *Memory) Apply(ctx context.Context, zone string, ops []record.Op) error {
	if err := ctx.Err(); err != nil {
		return &RejectError{Reason: ReasonTimeout, OpIndex: -1, Err: err}
	}

	m.mu.Lock()
	z, ok := m.zones[record.Canonical(zone)]
	if !ok {
		m.mu.Unlock()
		return &RejectError{Reason: ReasonUnavailable, OpIndex: -1, Err: ErrZoneNotFound}
	}

	staged := make([]record.Record, len(z.Records))
	copy(staged, z.Records)

	for i, op := range ops {
		var err error
		staged, err = stageOne(staged, op)
		if err != nil {
			m.mu.Unlock()
			var rej *RejectError
			if errors.As(err, &rej) {
				rej.OpIndex = i
				return rej
			}
			return &RejectError{Reason: ReasonUnavailable, OpIndex: i, Err: err}
		}
	}

	z.Records = staged
	z.Serial = z.Serial%4294967295 + 1
	m.generation++
	snapshot, gen := m.collectLocked(), m.generation
	m.mu.Unlock()

	if m.filePath == "" {
		return nil
	}
	if err := m.persistSnapshot(snapshot, gen); err != nil {
		// The in-memory state is committed; persistence catches up on the
		// next successful write.
		m.logger.Error("persisting backend state", "path", m.filePath, "error", err)
	}
	return nil
}

func stageOne(recs []record.Record, op record.Op) ([]record.Record, error) {
	r := op.Record
	if op.Action == record.ActionDelete {
		scope := op.Scope()
		out := recs[:0]
		for _, have := range recs {
			if have.Name != r.Name {
				out = append(out, have)
				continue
			}
			switch scope {
			case record.ScopeName:
				// drop
			case record.ScopeRRset:
				if have.Type != r.Type {
					out = append(out, have)
				}
			case record.ScopeRecord:
				if have.Type != r.Type || have.Value != r.Value {
					out = append(out, have)
				}
			}
		}
		return out, nil
	}

	for _, have := range recs {
		if have.Name == r.Name && have.Type == r.Type && have.Value == r.Value {
			return nil, &RejectError{
				Reason: ReasonConflict,
				Err:    fmt.Errorf("record %s %s %q already exists", r.Name, r.Type, r.Value),
			}
		}
	}
	return append(recs, r), nil
}

// persistSnapshot writes the given zones to the backing file atomically.
// Serialized by persistMu; skips if a newer generation was already persisted.
// Must NOT be called with m.mu held.
func (m *Memory) persistSnapshot(zones []ZoneData, gen uint64) error {
	if m.filePath == "" {
		return nil
	}
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	if gen > 0 && gen <= m.persisted {
		return nil
	}

	raw, err := json.MarshalIndent(memoryFile{Zones: zones}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling backend state: %w", err)
	}

	dir := filepath.Dir(m.filePath)
	tmp, err := os.CreateTemp(dir, "dnsupd-*.json.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, m.filePath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming temp to %s: %w", m.filePath, err)
	}

	m.mu.Lock()
	m.persisted = gen
	if info, err := os.Stat(m.filePath); err == nil {
		m.lastMod = info.ModTime()
	}
	m.mu.Unlock()
	return nil
}

// collectLocked returns a deep copy of all zones. Caller must hold m.mu.
func (m *Memory) collectLocked() []ZoneData {
	out := make([]ZoneData, 0, len(m.zones))
	for _, z := range m.zones {
		zc := *z
		zc.Records = make([]record.Record, len(z.Records))
		copy(zc.Records, z.Records)
		out = append(out, zc)
	}
	return out
}

func (m *Memory) loadOrCreate() error {
	raw, err := os.ReadFile(m.filePath)
	if os.IsNotExist(err) {
		m.zones = make(map[string]*ZoneData)
		return m.persistSnapshot(nil, 0)
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", m.filePath, err)
	}
	return m.loadFromBytes(raw)
}

func (m *Memory) loadFromBytes(raw []byte) error {
	var data memoryFile
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("parsing JSON: %w", err)
	}

	zones := make(map[string]*ZoneData)
	for i := range data.Zones {
		z := data.Zones[i]
		z.Name = record.Canonical(z.Name)
		for j := range z.Records {
			z.Records[j].Name = record.Canonical(z.Records[j].Name)
			z.Records[j].Type = strings.ToUpper(z.Records[j].Type)
		}
		zones[z.Name] = &z
	}
	m.zones = zones

	if info, err := os.Stat(m.filePath); err == nil {
		m.lastMod = info.ModTime()
	}
	return nil
}

// run is the auto-reload goroutine polling the file mtime.
func (m *Memory) run() {
	ticker := time.NewTicker(m.reload)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.checkReload()
		}
	}
}

func (m *Memory) checkReload() {
	// Skip while a persist is running to avoid clobbering in-flight writes.
	if !m.persistMu.TryLock() {
		return
	}
	m.persistMu.Unlock()

	m.mu.RLock()
	if m.generation > m.persisted {
		m.mu.RUnlock()
		return
	}
	lastMod := m.lastMod
	m.mu.RUnlock()

	info, err := os.Stat(m.filePath)
	if err != nil {
		return
	}
	if !info.ModTime().After(lastMod) {
		return
	}

	raw, err := os.ReadFile(m.filePath)
	if err != nil {
		m.logger.Error("reloading backend state", "path", m.filePath, "error", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// A mutation may have landed while we were reading; skip if so.
	if m.generation > m.persisted {
		return
	}
	if !info.ModTime().After(m.lastMod) {
		return
	}
	if err := m.loadFromBytes(raw); err != nil {
		m.logger.Error("reloading backend state", "path", m.filePath, "error", err)
	}
}

var _ Backend = (*Memory)(nil)
