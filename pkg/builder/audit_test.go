package builder

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/jllopis/canvasgraph/pkg/errors"
)

func sampleAuditEvent(buildID, status string) AuditEvent {
	return AuditEvent{
		BuildID: buildID,
		GraphID: GraphID,
		Mode:    "txt2img",
		Base:    "sd-1",
		Model:   "sd15",
		Status:  status,
		Nodes:   9,
		Edges:   12,
		Skipped: []Diagnostic{{
			Code:       errors.CodeUnsupportedCapability,
			Capability: CapabilityControlNet,
			Entity:     "canny",
			Reason:     "controlnet is not supported",
		}},
		StartedAt:  time.Now().UTC(),
		FinishedAt: time.Now().UTC(),
	}
}

func TestMemoryAuditStore(t *testing.T) {
	store := NewMemoryAuditStore()
	for _, ev := range []AuditEvent{
		sampleAuditEvent("build-1", AuditStatusOK),
		sampleAuditEvent("build-2", AuditStatusFailed),
		sampleAuditEvent("build-3", AuditStatusOK),
	} {
		if err := store.Record(context.Background(), ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter AuditFilter
		want   []string
	}{
		{name: "all", want: []string{"build-1", "build-2", "build-3"}},
		{name: "by build", filter: AuditFilter{BuildID: "build-2"}, want: []string{"build-2"}},
		{name: "by status", filter: AuditFilter{Status: AuditStatusOK}, want: []string{"build-1", "build-3"}},
		{name: "limit", filter: AuditFilter{Limit: 1}, want: []string{"build-1"}},
		{name: "no match", filter: AuditFilter{Model: "other"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := store.List(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(events) != len(tt.want) {
				t.Fatalf("expected %d events, got %d", len(tt.want), len(events))
			}
			for i, id := range tt.want {
				if events[i].BuildID != id {
					t.Errorf("event %d: expected %s, got %s", i, id, events[i].BuildID)
				}
			}
		})
	}
}

func TestSQLiteAuditStore(t *testing.T) {
	db, err := sql.Open("sqlite", "file:build_audit_test?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()

	store, err := NewSQLiteAuditStore(db)
	if err != nil {
		t.Fatalf("new sqlite store: %v", err)
	}
	if err := store.Record(context.Background(), sampleAuditEvent("build-1", AuditStatusOK)); err != nil {
		t.Fatalf("record: %v", err)
	}
	failed := sampleAuditEvent("build-2", AuditStatusFailed)
	failed.Skipped = nil
	failed.Error = "[MODEL_NOT_FOUND] model \"nope\" not found"
	if err := store.Record(context.Background(), failed); err != nil {
		t.Fatalf("record: %v", err)
	}

	events, err := store.List(context.Background(), AuditFilter{BuildID: "build-1", Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.Nodes != 9 || ev.Edges != 12 || ev.Model != "sd15" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if len(ev.Skipped) != 1 || ev.Skipped[0].Capability != CapabilityControlNet || ev.Skipped[0].Code != errors.CodeUnsupportedCapability {
		t.Fatalf("unexpected skipped %+v", ev.Skipped)
	}

	events, err = store.List(context.Background(), AuditFilter{Status: AuditStatusFailed})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 || events[0].Error == "" || events[0].Skipped != nil {
		t.Fatalf("unexpected failed events %+v", events)
	}
}

func TestNewSQLiteAuditStoreRejectsNilDB(t *testing.T) {
	if _, err := NewSQLiteAuditStore(nil); err == nil {
		t.Fatal("expected error for nil db")
	}
}

func TestBuilderWithSQLiteAudit(t *testing.T) {
	store, err := OpenSQLiteAuditStore("file:builder_sqlite_audit?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()

	res, err := newTestBuilder(WithAuditStore(store)).Build(context.Background(), baseState("sd15"))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	events, err := store.List(context.Background(), AuditFilter{BuildID: res.BuildID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 || events[0].Status != AuditStatusOK || events[0].GraphID != GraphID {
		t.Fatalf("unexpected events %+v", events)
	}
}
