package builder

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Audit statuses.
const (
	AuditStatusOK     = "ok"
	AuditStatusFailed = "failed"
)

// AuditEvent records one build.
type AuditEvent struct {
	BuildID    string
	GraphID    string
	Mode       string
	Base       string
	Model      string
	Status     string
	Nodes      int
	Edges      int
	Skipped    []Diagnostic
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
}

// AuditStore persists build audit events.
type AuditStore interface {
	Record(ctx context.Context, event AuditEvent) error
	List(ctx context.Context, filter AuditFilter) ([]AuditEvent, error)
}

// AuditFilter limits audit event queries.
type AuditFilter struct {
	BuildID string
	Model   string
	Status  string
	Limit   int
}

func (f AuditFilter) match(ev AuditEvent) bool {
	if f.BuildID != "" && ev.BuildID != f.BuildID {
		return false
	}
	if f.Model != "" && ev.Model != f.Model {
		return false
	}
	if f.Status != "" && ev.Status != f.Status {
		return false
	}
	return true
}

// MemoryAuditStore keeps audit events in memory.
type MemoryAuditStore struct {
	mu     sync.Mutex
	events []AuditEvent
}

// NewMemoryAuditStore returns an in-memory audit store.
func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{}
}

// Record appends an audit event.
func (s *MemoryAuditStore) Record(_ context.Context, event AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

// List returns filtered audit events in recording order.
func (s *MemoryAuditStore) List(_ context.Context, filter AuditFilter) ([]AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEvent, 0, len(s.events))
	for _, ev := range s.events {
		if !filter.match(ev) {
			continue
		}
		out = append(out, ev)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func encodeSkipped(diags []Diagnostic) ([]byte, error) {
	if len(diags) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(diags)
}

func decodeSkipped(raw []byte) ([]Diagnostic, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var out []Diagnostic
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

// normalizeAuditTime ensures timestamps are in UTC.
func normalizeAuditTime(value time.Time) time.Time {
	if value.IsZero() {
		return value
	}
	return value.UTC()
}
