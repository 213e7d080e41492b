package storage_service

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/AnishMulay/namestore/internal/fspath"
	"github.com/AnishMulay/namestore/internal/log_service"
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

func newService(t *testing.T) *LocalDiscStorageService {
	t.Helper()
	return NewLocalDiscStorageService(t.TempDir(), nopLogService{})
}

func TestCreate(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		want    bool
		prepare func(ss *LocalDiscStorageService)
	}{
		{
			name: "new file",
			path: "/a.txt",
			want: true,
		},
		{
			name: "nested file makes parents",
			path: "/deep/dir/b.txt",
			want: true,
		},
		{
			name: "existing file",
			path: "/a.txt",
			want: false,
			prepare: func(ss *LocalDiscStorageService) {
				ss.Create(mustPath(t, "/a.txt"))
			},
		},
		{
			name: "root",
			path: "/",
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ss := newService(t)
			if tt.prepare != nil {
				tt.prepare(ss)
			}

			created, err := ss.Create(mustPath(t, tt.path))
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if created != tt.want {
				t.Errorf("Create() = %v, want %v", created, tt.want)
			}
		})
	}
}

func TestSizeAndRead(t *testing.T) {
	ss := newService(t)
	p := mustPath(t, "/data.bin")

	if _, err := ss.Create(p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	content := []byte("hello, storage")
	if err := ss.Write(p, 0, content); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	size, err := ss.Size(p)
	if err != nil {
		t.Fatalf("Size() error = %v", err)
	}
	if size != int64(len(content)) {
		t.Errorf("Size() = %d, want %d", size, len(content))
	}

	data, err := ss.Read(p, 7, 7)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Equal(data, []byte("storage")) {
		t.Errorf("Read() = %q, want %q", data, "storage")
	}

	// Whole-file read ending exactly at the end.
	data, err = ss.Read(p, 0, size)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Errorf("Read() = %q, want %q", data, content)
	}
}

func TestReadErrors(t *testing.T) {
	ss := newService(t)
	p := mustPath(t, "/data.bin")

	if _, err := ss.Read(p, 0, 1); err != ErrFileNotFound {
		t.Errorf("Read(missing) error = %v, want ErrFileNotFound", err)
	}

	if _, err := ss.Create(p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := ss.Write(p, 0, []byte("abc")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	tests := []struct {
		name   string
		offset int64
		length int64
	}{
		{"negative offset", -1, 1},
		{"negative length", 0, -1},
		{"past end", 2, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ss.Read(p, tt.offset, tt.length); err != ErrOutOfRange {
				t.Errorf("Read(%d, %d) error = %v, want ErrOutOfRange", tt.offset, tt.length, err)
			}
		})
	}
}

func TestWriteSemantics(t *testing.T) {
	ss := newService(t)
	p := mustPath(t, "/w.bin")

	if _, err := ss.Create(p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Writing at the end extends the file.
	if err := ss.Write(p, 0, []byte("abc")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := ss.Write(p, 3, []byte("def")); err != nil {
		t.Fatalf("Write() at end error = %v", err)
	}

	data, err := ss.Read(p, 0, 6)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !bytes.Equal(data, []byte("abcdef")) {
		t.Errorf("Read() = %q, want %q", data, "abcdef")
	}

	// Overwriting in the middle works.
	if err := ss.Write(p, 1, []byte("XY")); err != nil {
		t.Fatalf("Write() overwrite error = %v", err)
	}
	data, _ = ss.Read(p, 0, 6)
	if !bytes.Equal(data, []byte("aXYdef")) {
		t.Errorf("Read() = %q, want %q", data, "aXYdef")
	}

	// Writing past the end is rejected rather than leaving a hole.
	if err := ss.Write(p, 100, []byte("z")); err != ErrOutOfRange {
		t.Errorf("Write(past end) error = %v, want ErrOutOfRange", err)
	}
	if err := ss.Write(p, -1, []byte("z")); err != ErrOutOfRange {
		t.Errorf("Write(negative) error = %v, want ErrOutOfRange", err)
	}

	if err := ss.Write(mustPath(t, "/missing"), 0, []byte("z")); err != ErrFileNotFound {
		t.Errorf("Write(missing) error = %v, want ErrFileNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	ss := newService(t)

	if _, err := ss.Create(mustPath(t, "/d/one.txt")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := ss.Create(mustPath(t, "/d/two.txt")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	deleted, err := ss.Delete(mustPath(t, "/d"))
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !deleted {
		t.Error("Delete() = false, want true")
	}

	if _, err := ss.Size(mustPath(t, "/d/one.txt")); err != ErrFileNotFound {
		t.Errorf("Size() after delete error = %v, want ErrFileNotFound", err)
	}

	deleted, err = ss.Delete(mustPath(t, "/d"))
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if deleted {
		t.Error("Delete(missing) = true, want false")
	}

	deleted, err = ss.Delete(fspath.Root())
	if err != nil {
		t.Fatalf("Delete(/) error = %v", err)
	}
	if deleted {
		t.Error("Delete(/) = true, want false")
	}
}

func TestPruneEmptyDirs(t *testing.T) {
	root := t.TempDir()
	ss := NewLocalDiscStorageService(root, nopLogService{})

	if _, err := ss.Create(mustPath(t, "/keep/file.txt")); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "empty/nested"), 0755); err != nil {
		t.Fatalf("mkdir error = %v", err)
	}

	if err := ss.PruneEmptyDirs(); err != nil {
		t.Fatalf("PruneEmptyDirs() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(root, "empty")); !os.IsNotExist(err) {
		t.Error("empty directory tree survived pruning")
	}
	if _, err := os.Stat(filepath.Join(root, "keep/file.txt")); err != nil {
		t.Errorf("non-empty directory was pruned: %v", err)
	}
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root was pruned: %v", err)
	}
}
