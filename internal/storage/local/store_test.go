package local

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/flightqa/flightqa/internal/storage"
)

func TestPutThenGet(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	payload := []byte("Cabin baggage: 7 kg.")

	info, err := store.Put(ctx, "/policies/indigo_policy.txt", bytes.NewReader(payload), int64(len(payload)), storage.PutOptions{})
	if err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if info.Key != "policies/indigo_policy.txt" || info.Size != int64(len(payload)) || info.ETag == "" {
		t.Fatalf("Put() info = %+v", info)
	}

	got, err := storage.ReadAll(ctx, store, "policies/indigo_policy.txt")
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("ReadAll() = %q", got)
	}

	if _, err := store.Get(ctx, "policies/vietjet_policy.txt"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Get() of missing object error = %v", err)
	}
}

func TestPutRejectsPathTraversal(t *testing.T) {
	store, _ := New(t.TempDir())
	if _, err := store.Put(context.Background(), "../escape.txt", bytes.NewBufferString("x"), 1, storage.PutOptions{}); err == nil {
		t.Fatal("expected path traversal validation error")
	}
}

func TestPutLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	store, _ := New(root)
	if _, err := store.Put(context.Background(), "a.json", bytes.NewBufferString("{}"), 2, storage.PutOptions{}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "a.json" {
		t.Fatalf("unexpected directory contents: %v", entries)
	}
}

func TestListFiltersByPrefix(t *testing.T) {
	root := t.TempDir()
	store, _ := New(root)
	ctx := context.Background()
	for _, key := range []string{"policies/vietjet_policy.txt", "policies/indigo_policy.txt", "embeddings/indigo_embeddings.json"} {
		if _, err := store.Put(ctx, key, bytes.NewBufferString(key), int64(len(key)), storage.PutOptions{}); err != nil {
			t.Fatalf("Put(%q) error = %v", key, err)
		}
	}

	objects, err := store.List(ctx, "policies/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(objects) != 2 || objects[0].Key != "policies/indigo_policy.txt" || objects[1].Key != "policies/vietjet_policy.txt" {
		t.Fatalf("List() = %+v", objects)
	}
}

func TestListMissingRoot(t *testing.T) {
	store, _ := New(filepath.Join(t.TempDir(), "absent"))
	objects, err := store.List(context.Background(), "")
	if err != nil || len(objects) != 0 {
		t.Fatalf("List() = %+v, %v", objects, err)
	}
}

func TestGetReturnsReadableFile(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "doc.txt"), []byte("hello"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	store, _ := New(root)
	reader, err := store.Get(context.Background(), "doc.txt")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	defer func() { _ = reader.Close() }()
	body, _ := io.ReadAll(reader)
	if string(body) != "hello" {
		t.Fatalf("body = %q", body)
	}
}
