package config

import (
	"context"
	"testing"

	"github.com/marmos91/dittosync/pkg/index"
	"github.com/marmos91/dittosync/pkg/index/memory"
)

func TestCreateIndex_Memory(t *testing.T) {
	cfg := GetDefaultConfig()

	idx, closer, err := CreateIndex(context.Background(), &cfg.Index)
	if err != nil {
		t.Fatalf("Failed to create memory index: %v", err)
	}
	defer idx.Close()

	if closer != nil {
		t.Error("Expected no backing catalog for a memory index")
	}
}

func TestCreateIndex_BadgerInMemory(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Index.Type = "badger"
	cfg.Index.Badger = map[string]any{"in_memory": true}

	idx, closer, err := CreateIndex(context.Background(), &cfg.Index)
	if err != nil {
		t.Fatalf("Failed to create badger-backed index: %v", err)
	}
	defer idx.Close()

	if closer == nil {
		t.Fatal("Expected a backing catalog to close")
	}
	defer closer.Close()

	idx.SetItem(index.Item{Path: "a.txt", DownloadStatus: index.StatusCurrent})
	if _, ok := idx.Get("a.txt"); !ok {
		t.Error("Expected write-through index to serve the item")
	}
}

func TestCreateIndex_BadgerSeedsFromCatalog(t *testing.T) {
	dir := t.TempDir()
	cfg := &IndexConfig{Type: "badger", Badger: map[string]any{"dir": dir}}

	idx, closer, err := CreateIndex(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create badger-backed index: %v", err)
	}
	idx.SetItem(index.Item{Path: "durable.txt", DownloadStatus: index.StatusCurrent})
	idx.Close()
	closer.Close()

	reopened, recloser, err := CreateIndex(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to reopen badger-backed index: %v", err)
	}
	defer reopened.Close()
	defer recloser.Close()

	if _, ok := reopened.Get("durable.txt"); !ok {
		t.Error("Expected reopened index to be seeded from the catalog")
	}
}

func TestCreateIndex_UnknownType(t *testing.T) {
	cfg := &IndexConfig{Type: "etcd"}

	if _, _, err := CreateIndex(context.Background(), cfg); err == nil {
		t.Fatal("Expected error for unknown index type")
	}
}

func TestCreateCoordinator_Filesystem(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Remote.Filesystem["root"] = t.TempDir()

	idx := memory.New()
	defer idx.Close()

	coord, err := CreateCoordinator(context.Background(), &cfg.Remote, &cfg.Engine, idx)
	if err != nil {
		t.Fatalf("Failed to create filesystem coordinator: %v", err)
	}

	ok, err := coord.Exists(context.Background(), "anything.txt")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if ok {
		t.Error("Expected empty container to report no items")
	}
}

func TestCreateCoordinator_FilesystemRequiresRoot(t *testing.T) {
	cfg := &RemoteConfig{Type: "filesystem", Filesystem: map[string]any{}}
	engineCfg := &GetDefaultConfig().Engine

	idx := memory.New()
	defer idx.Close()

	if _, err := CreateCoordinator(context.Background(), cfg, engineCfg, idx); err == nil {
		t.Fatal("Expected error for filesystem coordinator without root")
	}
}

func TestCreateCoordinator_UnknownType(t *testing.T) {
	cfg := &RemoteConfig{Type: "gopher"}
	engineCfg := &GetDefaultConfig().Engine

	idx := memory.New()
	defer idx.Close()

	if _, err := CreateCoordinator(context.Background(), cfg, engineCfg, idx); err == nil {
		t.Fatal("Expected error for unknown remote type")
	}
}
