package app

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hylla/stamp/internal/domain"
)

// TestSnapshotRoundTrip verifies export and import keep ids across both encodings.
func TestSnapshotRoundTrip(t *testing.T) {
	svc, _, clock := newTestService(t)
	ctx := context.Background()
	tag := mustTag(t, svc, "work")
	task := mustTask(t, svc, "report", tag.ID)
	if _, err := svc.StartTimer(ctx, task.ID); err != nil {
		t.Fatalf("StartTimer() error = %v", err)
	}
	clock.now = clock.now.Add(time.Hour)
	if _, err := svc.StopTimer(ctx, task.ID); err != nil {
		t.Fatalf("StopTimer() error = %v", err)
	}

	snap, err := svc.ExportSnapshot(ctx)
	if err != nil {
		t.Fatalf("ExportSnapshot() error = %v", err)
	}
	if snap.Version != SnapshotVersion || len(snap.Tags) != 1 || len(snap.Tasks) != 1 || len(snap.Events) != 2 {
		t.Fatalf("unexpected snapshot %#v", snap)
	}

	for _, format := range []SnapshotFormat{SnapshotJSON, SnapshotYAML} {
		var buf bytes.Buffer
		if err := EncodeSnapshot(&buf, snap, format); err != nil {
			t.Fatalf("EncodeSnapshot(%s) error = %v", format, err)
		}
		decoded, err := DecodeSnapshot(&buf, format)
		if err != nil {
			t.Fatalf("DecodeSnapshot(%s) error = %v", format, err)
		}

		target, repo, _ := newTestService(t)
		if err := target.ImportSnapshot(ctx, decoded); err != nil {
			t.Fatalf("ImportSnapshot(%s) error = %v", format, err)
		}
		got, ok := repo.tasks[task.ID]
		if !ok || got.Name != "report" || !got.Tags.Contains(tag.ID) {
			t.Fatalf("%s: unexpected imported task %#v", format, got)
		}
		if len(repo.events) != 2 {
			t.Fatalf("%s: expected 2 imported events, got %d", format, len(repo.events))
		}
		if err := target.ImportSnapshot(ctx, decoded); err != nil {
			t.Fatalf("ImportSnapshot(%s) second pass error = %v", format, err)
		}
		if len(repo.events) != 2 || len(repo.tasks) != 1 {
			t.Fatalf("%s: expected import to be idempotent", format)
		}
	}
}

// TestSnapshotValidate verifies dangling references and bad versions are refused.
func TestSnapshotValidate(t *testing.T) {
	at := time.Date(2026, 2, 21, 9, 0, 0, 0, time.UTC)
	cases := map[string]Snapshot{
		"version":     {Version: "other"},
		"unknown tag": {Tasks: []SnapshotTask{{ID: 1, Name: "a", Tags: []domain.TagID{3}}}},
		"unknown task": {
			Events: []SnapshotEvent{{ID: 1, Task: 4, Timestamp: at, Type: "start"}},
		},
		"bad type": {
			Tasks:  []SnapshotTask{{ID: 1, Name: "a"}},
			Events: []SnapshotEvent{{ID: 1, Task: 1, Timestamp: at, Type: "pause"}},
		},
		"duplicate tag": {Tags: []SnapshotTag{{ID: 1, Name: "a"}, {ID: 1, Name: "b"}}},
	}
	for name, snap := range cases {
		if err := snap.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	if _, err := ParseSnapshotFormat("toml"); err == nil {
		t.Fatal("expected unsupported format error")
	}
}

// TestExportSnapshotPropagatesError verifies store read failures surface as ErrStore.
func TestExportSnapshotPropagatesError(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.listErr = errors.New("boom")
	if _, err := svc.ExportSnapshot(context.Background()); !errors.Is(err, ErrStore) {
		t.Fatalf("expected ErrStore, got %v", err)
	}
}

// TestImportSnapshotUpdatesExisting verifies ids already present are overwritten in place.
func TestImportSnapshotUpdatesExisting(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()
	task := mustTask(t, svc, "draft")
	at := time.Date(2026, 2, 21, 9, 0, 0, 0, time.UTC)

	snap := Snapshot{
		Version: SnapshotVersion,
		Tags:    []SnapshotTag{{ID: 7, Name: " client "}},
		Tasks:   []SnapshotTask{{ID: task.ID, Name: "final", Tags: []domain.TagID{7}}},
		Events:  []SnapshotEvent{{ID: 40, Task: task.ID, Timestamp: at, Type: "1"}},
	}
	if err := svc.ImportSnapshot(ctx, snap); err != nil {
		t.Fatalf("ImportSnapshot() error = %v", err)
	}
	if got := repo.tasks[task.ID]; got.Name != "final" || !got.Tags.Contains(7) {
		t.Fatalf("unexpected task after import %#v", got)
	}
	if got := repo.tags[7]; got.Name != "client" {
		t.Fatalf("expected trimmed tag name, got %q", got.Name)
	}
	if got := repo.events[40]; got.Type != domain.EventStop || !got.Timestamp.Equal(at) {
		t.Fatalf("unexpected imported event %#v", got)
	}
	if got := repo.tasks[task.ID].CreatedAt; got.IsZero() {
		t.Fatal("expected a created_at fallback")
	}
}

// TestDecodeSnapshotRejectsUnknownJSONFields verifies strict JSON decoding.
func TestDecodeSnapshotRejectsUnknownJSONFields(t *testing.T) {
	if _, err := DecodeSnapshot(strings.NewReader(`{"version":"stamp.snapshot.v1","projects":[]}`), SnapshotJSON); err == nil {
		t.Fatal("expected unknown field error")
	}
	for raw, want := range map[string]SnapshotFormat{"": SnapshotJSON, "JSON": SnapshotJSON, "yml": SnapshotYAML} {
		got, err := ParseSnapshotFormat(raw)
		if err != nil || got != want {
			t.Fatalf("ParseSnapshotFormat(%q) = %q, %v", raw, got, err)
		}
	}
}
