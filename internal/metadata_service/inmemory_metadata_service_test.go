package metadata_service

import (
	"testing"

	"github.com/AnishMulay/namestore/internal/fspath"
	"github.com/AnishMulay/namestore/internal/log_service"
	"github.com/AnishMulay/namestore/internal/storage_registry"
)

type nopLogService struct{}

func (nopLogService) Debug(log_service.LogEvent) {}
func (nopLogService) Info(log_service.LogEvent)  {}
func (nopLogService) Warn(log_service.LogEvent)  {}
func (nopLogService) Error(log_service.LogEvent) {}

func mustPath(t *testing.T, raw string) fspath.Path {
	t.Helper()
	p, err := fspath.New(raw)
	if err != nil {
		t.Fatalf("fspath.New(%q) error = %v", raw, err)
	}
	return p
}

var stub1 = storage_registry.StorageStub{Address: "localhost:9001"}
var stub2 = storage_registry.StorageStub{Address: "localhost:9003"}

func TestRootAlwaysPresent(t *testing.T) {
	ms := NewInMemoryMetadataService(nopLogService{})

	isDir, err := ms.IsDirectory(fspath.Root())
	if err != nil {
		t.Fatalf("IsDirectory(/) error = %v", err)
	}
	if !isDir {
		t.Error("IsDirectory(/) = false, want true")
	}

	if _, ok := ms.Lock(fspath.Root()); !ok {
		t.Error("Lock(/) missing")
	}
	if ms.RootLock() == nil {
		t.Error("RootLock() = nil")
	}
}

func TestCreateFile(t *testing.T) {
	ms := NewInMemoryMetadataService(nopLogService{})

	created, err := ms.CreateFile(mustPath(t, "/a.txt"), stub1)
	if err != nil {
		t.Fatalf("CreateFile() error = %v", err)
	}
	if !created {
		t.Fatal("CreateFile() = false, want true")
	}

	// Second create on the same path reports existing.
	created, err = ms.CreateFile(mustPath(t, "/a.txt"), stub1)
	if err != nil {
		t.Fatalf("CreateFile() error = %v", err)
	}
	if created {
		t.Error("CreateFile() on existing path = true, want false")
	}

	isDir, err := ms.IsDirectory(mustPath(t, "/a.txt"))
	if err != nil {
		t.Fatalf("IsDirectory() error = %v", err)
	}
	if isDir {
		t.Error("IsDirectory(file) = true, want false")
	}

	replicas, ok := ms.Replicas(mustPath(t, "/a.txt"))
	if !ok || len(replicas) != 1 || replicas[0] != stub1 {
		t.Errorf("Replicas() = %v, %v; want [stub1], true", replicas, ok)
	}

	if _, ok := ms.Lock(mustPath(t, "/a.txt")); !ok {
		t.Error("file lock missing")
	}

	names, err := ms.ListDirectory(fspath.Root())
	if err != nil {
		t.Fatalf("ListDirectory(/) error = %v", err)
	}
	if len(names) != 1 || names[0] != "a.txt" {
		t.Errorf("ListDirectory(/) = %v, want [a.txt]", names)
	}
}

func TestCreateFileMissingParent(t *testing.T) {
	ms := NewInMemoryMetadataService(nopLogService{})

	if _, err := ms.CreateFile(mustPath(t, "/missing/a.txt"), stub1); err != ErrParentNotDirectory {
		t.Errorf("CreateFile() error = %v, want ErrParentNotDirectory", err)
	}
}

func TestCreateFileUnderFileParent(t *testing.T) {
	ms := NewInMemoryMetadataService(nopLogService{})

	if _, err := ms.CreateFile(mustPath(t, "/f"), stub1); err != nil {
		t.Fatalf("CreateFile(/f) error = %v", err)
	}
	if _, err := ms.CreateFile(mustPath(t, "/f/child"), stub1); err != ErrParentNotDirectory {
		t.Errorf("CreateFile(/f/child) error = %v, want ErrParentNotDirectory", err)
	}
}

func TestCreateDirectory(t *testing.T) {
	ms := NewInMemoryMetadataService(nopLogService{})

	created, err := ms.CreateDirectory(mustPath(t, "/dir"))
	if err != nil {
		t.Fatalf("CreateDirectory() error = %v", err)
	}
	if !created {
		t.Fatal("CreateDirectory() = false, want true")
	}

	created, err = ms.CreateDirectory(mustPath(t, "/dir"))
	if err != nil {
		t.Fatalf("CreateDirectory() error = %v", err)
	}
	if created {
		t.Error("CreateDirectory() on existing path = true, want false")
	}

	// A file may not shadow a directory and vice versa.
	created, err = ms.CreateFile(mustPath(t, "/dir"), stub1)
	if err != nil {
		t.Fatalf("CreateFile(/dir) error = %v", err)
	}
	if created {
		t.Error("CreateFile() over a directory = true, want false")
	}
}

func TestDeleteSubtree(t *testing.T) {
	ms := NewInMemoryMetadataService(nopLogService{})

	if _, err := ms.CreateDirectory(mustPath(t, "/a")); err != nil {
		t.Fatalf("CreateDirectory(/a) error = %v", err)
	}
	if _, err := ms.CreateDirectory(mustPath(t, "/a/b")); err != nil {
		t.Fatalf("CreateDirectory(/a/b) error = %v", err)
	}
	if _, err := ms.CreateFile(mustPath(t, "/a/b/c.txt"), stub1); err != nil {
		t.Fatalf("CreateFile(/a/b/c.txt) error = %v", err)
	}

	deleted, err := ms.DeletePath(mustPath(t, "/a"))
	if err != nil {
		t.Fatalf("DeletePath(/a) error = %v", err)
	}
	if !deleted {
		t.Fatal("DeletePath(/a) = false, want true")
	}

	for _, raw := range []string{"/a", "/a/b", "/a/b/c.txt"} {
		if ms.Exists(mustPath(t, raw)) {
			t.Errorf("Exists(%q) = true after delete", raw)
		}
		if _, ok := ms.Lock(mustPath(t, raw)); ok {
			t.Errorf("lock for %q survived delete", raw)
		}
	}

	names, err := ms.ListDirectory(fspath.Root())
	if err != nil {
		t.Fatalf("ListDirectory(/) error = %v", err)
	}
	if len(names) != 0 {
		t.Errorf("ListDirectory(/) = %v, want empty", names)
	}

	if _, err := ms.DeletePath(mustPath(t, "/a")); err != ErrPathNotFound {
		t.Errorf("DeletePath(missing) error = %v, want ErrPathNotFound", err)
	}

	deleted, err = ms.DeletePath(fspath.Root())
	if err != nil {
		t.Fatalf("DeletePath(/) error = %v", err)
	}
	if deleted {
		t.Error("DeletePath(/) = true, want false")
	}
}

func TestRegisterFileSynthesizesAncestors(t *testing.T) {
	ms := NewInMemoryMetadataService(nopLogService{})

	if !ms.RegisterFile(mustPath(t, "/x/y/z.txt"), stub1) {
		t.Fatal("RegisterFile() = false, want true")
	}

	for _, raw := range []string{"/x", "/x/y"} {
		isDir, err := ms.IsDirectory(mustPath(t, raw))
		if err != nil {
			t.Fatalf("IsDirectory(%q) error = %v", raw, err)
		}
		if !isDir {
			t.Errorf("IsDirectory(%q) = false, want true", raw)
		}
		if _, ok := ms.Lock(mustPath(t, raw)); !ok {
			t.Errorf("lock for %q missing", raw)
		}
	}

	names, err := ms.ListDirectory(mustPath(t, "/x/y"))
	if err != nil {
		t.Fatalf("ListDirectory(/x/y) error = %v", err)
	}
	if len(names) != 1 || names[0] != "z.txt" {
		t.Errorf("ListDirectory(/x/y) = %v, want [z.txt]", names)
	}

	// The same path from another server is a duplicate.
	if ms.RegisterFile(mustPath(t, "/x/y/z.txt"), stub2) {
		t.Error("RegisterFile() duplicate = true, want false")
	}
	replicas, _ := ms.Replicas(mustPath(t, "/x/y/z.txt"))
	if len(replicas) != 1 || replicas[0] != stub1 {
		t.Errorf("Replicas() = %v, want original owner only", replicas)
	}
}

func TestReplicaSet(t *testing.T) {
	ms := NewInMemoryMetadataService(nopLogService{})

	p := mustPath(t, "/r.txt")
	if _, err := ms.CreateFile(p, stub1); err != nil {
		t.Fatalf("CreateFile() error = %v", err)
	}

	if err := ms.AddReplica(p, stub2); err != nil {
		t.Fatalf("AddReplica() error = %v", err)
	}
	// Adding the same replica twice is a no-op.
	if err := ms.AddReplica(p, stub2); err != nil {
		t.Fatalf("AddReplica() error = %v", err)
	}

	replicas, _ := ms.Replicas(p)
	if len(replicas) != 2 {
		t.Fatalf("Replicas() = %v, want 2 entries", replicas)
	}

	if err := ms.RemoveReplica(p, stub1); err != nil {
		t.Fatalf("RemoveReplica() error = %v", err)
	}
	replicas, _ = ms.Replicas(p)
	if len(replicas) != 1 || replicas[0] != stub2 {
		t.Errorf("Replicas() = %v, want [stub2]", replicas)
	}

	if err := ms.AddReplica(mustPath(t, "/missing"), stub1); err != ErrPathNotFound {
		t.Errorf("AddReplica(missing) error = %v, want ErrPathNotFound", err)
	}
}

func TestInterruptAll(t *testing.T) {
	ms := NewInMemoryMetadataService(nopLogService{})

	if _, err := ms.CreateFile(mustPath(t, "/a.txt"), stub1); err != nil {
		t.Fatalf("CreateFile() error = %v", err)
	}

	ms.InterruptAll()

	lock, ok := ms.Lock(mustPath(t, "/a.txt"))
	if !ok {
		t.Fatal("lock missing")
	}
	if err := lock.AcquireRead(); err == nil {
		t.Error("AcquireRead() after InterruptAll succeeded, want ErrStopped")
	}
}
