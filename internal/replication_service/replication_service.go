package replication_service

import (
	"github.com/AnishMulay/namestore/internal/fspath"
	"github.com/AnishMulay/namestore/internal/storage_registry"
)

// Task describes one pending copy of a file onto a new replica. Sources is a
// snapshot of the replica set taken while the caller held the file's read
// lock.
type Task struct {
	ID            string
	Path          fspath.Path
	Target        storage_registry.StorageStub
	TargetCommand storage_registry.CommandStub
	Sources       []storage_registry.StorageStub
}

// ReplicationService copies read-hot files onto additional storage servers in
// the background. Enqueue never blocks: when the queue is full the task is
// dropped and a later read will retry.
type ReplicationService interface {
	Enqueue(path fspath.Path, target storage_registry.StorageStub, targetCommand storage_registry.CommandStub, sources []storage_registry.StorageStub) error
	Stop()
}
