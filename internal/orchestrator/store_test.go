package orchestrator

import (
	"context"
	"testing"
)

func TestInMemoryStore_LoadSave(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	if _, ok, err := store.Load(ctx, "s1"); ok || err != nil {
		t.Errorf("expected not found for empty store, ok=%v err=%v", ok, err)
	}

	data := []byte(`{"playlistType":"live"}`)
	if err := store.Save(ctx, "s1", data); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data[0] = 'x'

	got, ok, err := store.Load(ctx, "s1")
	if !ok || err != nil || string(got) != `{"playlistType":"live"}` {
		t.Errorf("Load: ok=%v err=%v got %s", ok, err, got)
	}
}

func TestInMemoryStore_List_and_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	_ = store.Save(ctx, "b", []byte("1"))
	_ = store.Save(ctx, "a", []byte("2"))

	keys, err := store.List(ctx)
	if err != nil || len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("List: %v err=%v", keys, err)
	}

	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, "missing"); err != nil {
		t.Errorf("deleting a missing key should not fail: %v", err)
	}
	keys, _ = store.List(ctx)
	if len(keys) != 1 || keys[0] != "b" {
		t.Errorf("after delete: %v", keys)
	}
}
