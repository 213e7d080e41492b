package naming_service

import (
	"github.com/AnishMulay/namestore/internal/fspath"
	"github.com/AnishMulay/namestore/internal/storage_registry"
)

// NamingService is the naming server's application surface: the client-facing
// service operations plus the storage-server-facing registration operation.
//
// Every operation synchronizes through hierarchical path locking: the lock
// chain for a path is its subpath sequence from the root, ancestors are taken
// shared, and only the target is taken in the requested mode. Lock and Unlock
// expose that mechanism to clients directly; the remaining operations use it
// internally around their own critical sections.
type NamingService interface {
	Lock(p fspath.Path, exclusive bool) error
	Unlock(p fspath.Path, exclusive bool) error

	IsDirectory(p fspath.Path) (bool, error)
	List(p fspath.Path) ([]string, error)
	CreateFile(p fspath.Path) (bool, error)
	CreateDirectory(p fspath.Path) (bool, error)
	Delete(p fspath.Path) (bool, error)
	GetStorage(p fspath.Path) (storage_registry.StorageStub, error)

	Register(storage storage_registry.StorageStub, command storage_registry.CommandStub, paths []fspath.Path) ([]fspath.Path, error)

	// Interrupt stops every path lock so blocked callers unwind during
	// shutdown.
	Interrupt()
}
