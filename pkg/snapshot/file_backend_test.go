package snapshot

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func TestFileBackend_SaveLoadListDelete(t *testing.T) {
	dir := t.TempDir()
	backend, err := NewFileBackend(filepath.Join(dir, "exports"))
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })

	ctx := context.Background()
	doc := &Document{Agents: map[string][]AgentRecord{
		"walker": {{ID: 0, Attributes: map[string]any{"x": 1.0}}},
	}}
	meta := ExportMetadata{ID: "run-1", Step: 10, CreatedAt: time.Now().UTC()}

	if err := backend.SaveExport(ctx, meta, doc); err != nil {
		t.Fatalf("SaveExport: %v", err)
	}

	loaded, err := backend.LoadExport(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadExport: %v", err)
	}
	if len(loaded.Agents["walker"]) != 1 {
		t.Fatalf("loaded document missing walker records")
	}

	list, err := backend.ListExports(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("ListExports: %v", err)
	}
	if len(list) != 1 || list[0].ID != "run-1" {
		t.Fatalf("ListExports = %+v, want one entry run-1", list)
	}

	if err := backend.DeleteExport(ctx, "run-1"); err != nil {
		t.Fatalf("DeleteExport: %v", err)
	}
	if _, err := backend.LoadExport(ctx, "run-1"); !errors.Is(err, ErrExportNotFound) {
		t.Fatalf("LoadExport after delete = %v, want ErrExportNotFound", err)
	}
}

func TestFileBackend_RejectsPathTraversal(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })

	meta := ExportMetadata{ID: "../evil", CreatedAt: time.Now().UTC()}
	if err := backend.SaveExport(context.Background(), meta, &Document{}); !errors.Is(err, ErrInvalidPathComponent) {
		t.Fatalf("SaveExport with traversal id = %v, want ErrInvalidPathComponent", err)
	}
}

func TestFileBackend_OperationsAfterCloseFail(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	if err := backend.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	meta := ExportMetadata{ID: "run-1", CreatedAt: time.Now().UTC()}
	if err := backend.SaveExport(context.Background(), meta, &Document{}); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("SaveExport after close = %v, want ErrStoreClosed", err)
	}
}
