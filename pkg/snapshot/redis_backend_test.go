package snapshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupMiniredis(t *testing.T) *RedisBackend {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	backend := NewRedisBackendFromClient(client, "test:", 0)
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func TestRedisBackend_SaveAndLoadExport(t *testing.T) {
	backend := setupMiniredis(t)
	ctx := context.Background()

	doc := &Document{Agents: map[string][]AgentRecord{
		"walker": {{ID: 0, Attributes: map[string]any{"x": 1.0}}},
	}}
	meta := ExportMetadata{ID: "run-1", Step: 3, CreatedAt: time.Now().UTC()}

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
}

func TestRedisBackend_LoadMissingReturnsErrExportNotFound(t *testing.T) {
	backend := setupMiniredis(t)
	if _, err := backend.LoadExport(context.Background(), "missing"); !errors.Is(err, ErrExportNotFound) {
		t.Fatalf("LoadExport(missing) = %v, want ErrExportNotFound", err)
	}
}

func TestRedisBackend_ListExportsMostRecentFirst(t *testing.T) {
	backend := setupMiniredis(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := backend.SaveExport(ctx, ExportMetadata{ID: "older", CreatedAt: now.Add(-time.Hour)}, &Document{}); err != nil {
		t.Fatalf("SaveExport: %v", err)
	}
	if err := backend.SaveExport(ctx, ExportMetadata{ID: "newer", CreatedAt: now}, &Document{}); err != nil {
		t.Fatalf("SaveExport: %v", err)
	}

	list, err := backend.ListExports(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("ListExports: %v", err)
	}
	if len(list) != 2 || list[0].ID != "newer" || list[1].ID != "older" {
		t.Fatalf("ListExports order = %+v, want [newer, older]", list)
	}
}

func TestRedisBackend_DeleteExportRemovesFromIndex(t *testing.T) {
	backend := setupMiniredis(t)
	ctx := context.Background()

	meta := ExportMetadata{ID: "run-1", CreatedAt: time.Now().UTC()}
	if err := backend.SaveExport(ctx, meta, &Document{}); err != nil {
		t.Fatalf("SaveExport: %v", err)
	}
	if err := backend.DeleteExport(ctx, "run-1"); err != nil {
		t.Fatalf("DeleteExport: %v", err)
	}

	list, err := backend.ListExports(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("ListExports: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("ListExports after delete = %+v, want empty", list)
	}
	if _, err := backend.LoadExport(ctx, "run-1"); !errors.Is(err, ErrExportNotFound) {
		t.Fatalf("LoadExport after delete = %v, want ErrExportNotFound", err)
	}
}
