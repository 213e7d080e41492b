package storage_service

import "github.com/AnishMulay/namestore/internal/fspath"

// StorageService is a storage server's local view of its files: plain byte
// reads and writes plus the mutations the naming server drives through the
// command interface.
type StorageService interface {
	Size(p fspath.Path) (int64, error)
	Read(p fspath.Path, offset, length int64) ([]byte, error)
	Write(p fspath.Path, offset int64, data []byte) error

	Create(p fspath.Path) (bool, error)
	Delete(p fspath.Path) (bool, error)

	// PruneEmptyDirs removes directories left empty after duplicate cleanup.
	PruneEmptyDirs() error
}
