package metadata_service

import (
	"github.com/AnishMulay/namestore/internal/fspath"
	"github.com/AnishMulay/namestore/internal/rwlock"
	"github.com/AnishMulay/namestore/internal/storage_registry"
)

// MetadataService owns the naming server's view of the directory tree: which
// paths are files and where their replicas live, which paths are directories
// and what they contain, and the per-path lock used for hierarchical locking.
//
// Three invariants hold between any two calls: a path is a file or a
// directory, never both; every non-root path has its parent present as a
// directory listing it as a child; and every known path (plus all of its
// ancestors) has a lock. The root is always present as a directory.
type MetadataService interface {
	// Tree queries
	Exists(p fspath.Path) bool
	IsDirectory(p fspath.Path) (bool, error)
	ListDirectory(p fspath.Path) ([]string, error)

	// Tree mutations
	CreateFile(p fspath.Path, s storage_registry.StorageStub) (bool, error)
	CreateDirectory(p fspath.Path) (bool, error)
	DeletePath(p fspath.Path) (bool, error)
	RegisterFile(p fspath.Path, s storage_registry.StorageStub) bool

	// Replica sets
	Replicas(p fspath.Path) ([]storage_registry.StorageStub, bool)
	AddReplica(p fspath.Path, s storage_registry.StorageStub) error
	RemoveReplica(p fspath.Path, s storage_registry.StorageStub) error

	// Locks
	Lock(p fspath.Path) (*rwlock.Lock, bool)
	RootLock() *rwlock.Lock
	InterruptAll()
}
