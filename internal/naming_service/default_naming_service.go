package naming_service

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/exp/rand"

	"github.com/AnishMulay/namestore/internal/fspath"
	"github.com/AnishMulay/namestore/internal/log_service"
	"github.com/AnishMulay/namestore/internal/metadata_service"
	"github.com/AnishMulay/namestore/internal/replication_service"
	"github.com/AnishMulay/namestore/internal/rwlock"
	"github.com/AnishMulay/namestore/internal/storage_client"
	"github.com/AnishMulay/namestore/internal/storage_registry"
)

// DefaultReplicationThreshold is the number of read grants after which a
// shared lock on a file seeds a copy onto one more storage server.
const DefaultReplicationThreshold = 20

const rpcTimeout = 30 * time.Second

type DefaultNamingService struct {
	md         metadata_service.MetadataService
	registry   storage_registry.StorageRegistry
	replicator replication_service.ReplicationService
	commands   *storage_client.CommandClient
	ls         log_service.LogService
	threshold  int
}

func NewDefaultNamingService(md metadata_service.MetadataService, registry storage_registry.StorageRegistry, replicator replication_service.ReplicationService, commands *storage_client.CommandClient, ls log_service.LogService, threshold int) *DefaultNamingService {
	if threshold <= 0 {
		threshold = DefaultReplicationThreshold
	}

	return &DefaultNamingService{
		md:         md,
		registry:   registry,
		replicator: replicator,
		commands:   commands,
		ls:         ls,
		threshold:  threshold,
	}
}

// Lock acquires the full subpath chain for p: every ancestor shared, p itself
// in the requested mode. A shared grant on a hot file seeds replication; an
// exclusive grant on a replicated file shrinks its replica set to one so the
// writer cannot leave stale copies behind.
func (ns *DefaultNamingService) Lock(p fspath.Path, exclusive bool) error {
	if !ns.md.Exists(p) {
		return metadata_service.ErrPathNotFound
	}

	chain := p.Subpaths()
	acquired := make([]*rwlock.Lock, 0, len(chain))

	for i, sp := range chain {
		lock, ok := ns.md.Lock(sp)
		if !ok {
			// The path vanished between the existence check and here.
			ns.rollback(acquired, false)
			return metadata_service.ErrPathNotFound
		}

		last := i == len(chain)-1
		var err error
		if last && exclusive {
			err = lock.AcquireWrite()
		} else {
			err = lock.AcquireRead()
		}
		if err != nil {
			ns.rollback(acquired, false)
			return err
		}

		acquired = append(acquired, lock)
	}

	if exclusive {
		return ns.invalidateStaleReplicas(p)
	}

	ns.maybeReplicate(p, acquired[len(acquired)-1])
	return nil
}

// Unlock releases the chain in the same direction it was acquired.
func (ns *DefaultNamingService) Unlock(p fspath.Path, exclusive bool) error {
	if !ns.md.Exists(p) {
		return fmt.Errorf("%w: unlock of unknown path %s", ErrBadArgument, p.String())
	}

	chain := p.Subpaths()
	for i, sp := range chain {
		lock, ok := ns.md.Lock(sp)
		if !ok {
			return fmt.Errorf("%w: unlock of unknown path %s", ErrBadArgument, p.String())
		}

		if i == len(chain)-1 && exclusive {
			lock.ReleaseWrite()
		} else {
			lock.ReleaseRead()
		}
	}

	return nil
}

// rollback releases locks acquired so far, in reverse. The final element is
// released as a write grant when lastWasWrite is set.
func (ns *DefaultNamingService) rollback(acquired []*rwlock.Lock, lastWasWrite bool) {
	for i := len(acquired) - 1; i >= 0; i-- {
		if i == len(acquired)-1 && lastWasWrite {
			acquired[i].ReleaseWrite()
			continue
		}
		acquired[i].ReleaseRead()
	}
}

// maybeReplicate seeds a replication task when a file has absorbed enough
// reads and some registered server has no copy yet. Called with the file's
// read lock held; enqueueing never blocks.
func (ns *DefaultNamingService) maybeReplicate(p fspath.Path, lock *rwlock.Lock) {
	replicas, ok := ns.md.Replicas(p)
	if !ok {
		return
	}
	if lock.ReadsGranted() < ns.threshold {
		return
	}

	target, ok := ns.pickAbsentStorage(replicas)
	if !ok {
		return
	}
	targetCommand, err := ns.registry.Command(target)
	if err != nil {
		return
	}

	if err := ns.replicator.Enqueue(p, target, targetCommand, replicas); err != nil {
		ns.ls.Debug(log_service.LogEvent{
			Message:  "Could not enqueue replication task",
			Metadata: map[string]any{"path": p.String(), "error": err.Error()},
		})
	}
}

// pickAbsentStorage returns any registered storage server that holds no
// replica yet.
func (ns *DefaultNamingService) pickAbsentStorage(replicas []storage_registry.StorageStub) (storage_registry.StorageStub, bool) {
	present := make(map[storage_registry.StorageStub]struct{}, len(replicas))
	for _, r := range replicas {
		present[r] = struct{}{}
	}

	for _, s := range ns.registry.Storages() {
		if _, ok := present[s]; !ok {
			return s, true
		}
	}
	return storage_registry.StorageStub{}, false
}

// invalidateStaleReplicas shrinks a replicated file to a single copy before
// the writer proceeds. The kept replica is the first by iteration order; every
// other server is told to delete its copy. Removal is recorded even when the
// RPC fails, and the failure surfaces as an internal error.
func (ns *DefaultNamingService) invalidateStaleReplicas(p fspath.Path) error {
	if p.IsRoot() {
		return nil
	}

	replicas, ok := ns.md.Replicas(p)
	if !ok || len(replicas) <= 1 {
		return nil
	}

	var firstErr error
	for _, stale := range replicas[1:] {
		command, err := ns.registry.Command(stale)
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
			_, err = ns.commands.Delete(ctx, command, p)
			cancel()
		}

		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%w: invalidating %s on %s: %v", ErrInternal, p.String(), stale.Address, err)
		}

		if removeErr := ns.md.RemoveReplica(p, stale); removeErr != nil && firstErr == nil {
			firstErr = fmt.Errorf("%w: %v", ErrInternal, removeErr)
		}
	}

	if firstErr != nil {
		ns.ls.Error(log_service.LogEvent{
			Message:  "Invalidation pass failed",
			Metadata: map[string]any{"path": p.String(), "error": firstErr.Error()},
		})
	}

	return firstErr
}

func (ns *DefaultNamingService) IsDirectory(p fspath.Path) (bool, error) {
	if err := ns.Lock(p, false); err != nil {
		return false, err
	}
	defer ns.Unlock(p, false)

	return ns.md.IsDirectory(p)
}

func (ns *DefaultNamingService) List(p fspath.Path) ([]string, error) {
	if err := ns.Lock(p, false); err != nil {
		return nil, err
	}
	defer ns.Unlock(p, false)

	return ns.md.ListDirectory(p)
}

func (ns *DefaultNamingService) CreateFile(p fspath.Path) (bool, error) {
	if p.IsRoot() {
		return false, nil
	}

	parent, err := p.Parent()
	if err != nil {
		return false, err
	}

	if err := ns.Lock(parent, true); err != nil {
		return false, err
	}
	defer ns.Unlock(parent, true)

	isDir, err := ns.md.IsDirectory(parent)
	if err != nil {
		return false, err
	}
	if !isDir {
		return false, metadata_service.ErrPathNotFound
	}

	if ns.registry.Len() == 0 {
		return false, ErrNoStorageServers
	}

	if ns.md.Exists(p) {
		return false, nil
	}

	storage, ok := ns.pickAnyStorage()
	if !ok {
		return false, ErrNoStorageServers
	}
	command, err := ns.registry.Command(storage)
	if err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
	created, err := ns.commands.Create(ctx, command, p)
	cancel()
	if err != nil {
		return false, err
	}

	if created {
		if _, err := ns.md.CreateFile(p, storage); err != nil {
			return false, err
		}
	}

	ns.ls.Info(log_service.LogEvent{
		Message:  "Created file",
		Metadata: map[string]any{"path": p.String(), "storage": storage.Address, "created": created},
	})

	return created, nil
}

func (ns *DefaultNamingService) CreateDirectory(p fspath.Path) (bool, error) {
	if p.IsRoot() {
		return false, nil
	}

	parent, err := p.Parent()
	if err != nil {
		return false, err
	}

	if err := ns.Lock(parent, true); err != nil {
		return false, err
	}
	defer ns.Unlock(parent, true)

	isDir, err := ns.md.IsDirectory(parent)
	if err != nil {
		return false, err
	}
	if !isDir {
		return false, metadata_service.ErrPathNotFound
	}

	if ns.md.Exists(p) {
		return false, nil
	}

	return ns.md.CreateDirectory(p)
}

// Delete removes a file or directory tree. Every registered command endpoint
// is told to delete the path, since a directory's contents may be spread
// across servers; the result is the logical OR of the remote results. The
// local index is updated even when a remote delete fails.
func (ns *DefaultNamingService) Delete(p fspath.Path) (bool, error) {
	if p.IsRoot() {
		return false, nil
	}

	parent, err := p.Parent()
	if err != nil {
		return false, err
	}

	if err := ns.Lock(parent, true); err != nil {
		return false, err
	}
	defer ns.Unlock(parent, true)

	if !ns.md.Exists(p) {
		return false, metadata_service.ErrPathNotFound
	}

	deleted := false
	var rpcErr error
	for _, command := range ns.registry.Commands() {
		ctx, cancel := context.WithTimeout(context.Background(), rpcTimeout)
		ok, err := ns.commands.Delete(ctx, command, p)
		cancel()
		if err != nil {
			if rpcErr == nil {
				rpcErr = err
			}
			continue
		}
		deleted = deleted || ok
	}

	if _, err := ns.md.DeletePath(p); err != nil {
		return false, err
	}

	ns.ls.Info(log_service.LogEvent{
		Message:  "Deleted path",
		Metadata: map[string]any{"path": p.String(), "deleted": deleted},
	})

	if rpcErr != nil {
		return deleted, rpcErr
	}
	return deleted, nil
}

func (ns *DefaultNamingService) GetStorage(p fspath.Path) (storage_registry.StorageStub, error) {
	if err := ns.Lock(p, false); err != nil {
		return storage_registry.StorageStub{}, err
	}
	defer ns.Unlock(p, false)

	replicas, ok := ns.md.Replicas(p)
	if !ok {
		return storage_registry.StorageStub{}, metadata_service.ErrPathNotFound
	}

	return replicas[rand.Intn(len(replicas))], nil
}

// Register records a new storage server and splices its files into the tree.
// Paths the naming server already knows about, and paths that would sit below
// a known file, come back as duplicates; the caller owns deleting those local
// copies. Each splice happens under the root
// write lock so it serializes against in-flight tree operations.
func (ns *DefaultNamingService) Register(storage storage_registry.StorageStub, command storage_registry.CommandStub, paths []fspath.Path) ([]fspath.Path, error) {
	if storage.Address == "" || command.Address == "" {
		return nil, fmt.Errorf("%w: stub without address", ErrBadArgument)
	}

	if err := ns.registry.Add(storage, command); err != nil {
		return nil, err
	}

	duplicates := make([]fspath.Path, 0)
	for _, p := range paths {
		if p.IsRoot() {
			continue
		}

		rootLock := ns.md.RootLock()
		if err := rootLock.AcquireWrite(); err != nil {
			return nil, err
		}
		inserted := ns.md.RegisterFile(p, storage)
		rootLock.ReleaseWrite()

		if !inserted {
			duplicates = append(duplicates, p)
		}
	}

	ns.ls.Info(log_service.LogEvent{
		Message:  "Registered storage server",
		Metadata: map[string]any{"storage": storage.Address, "command": command.Address, "paths": len(paths), "duplicates": len(duplicates)},
	})

	return duplicates, nil
}

func (ns *DefaultNamingService) Interrupt() {
	ns.md.InterruptAll()
}

func (ns *DefaultNamingService) pickAnyStorage() (storage_registry.StorageStub, bool) {
	storages := ns.registry.Storages()
	if len(storages) == 0 {
		return storage_registry.StorageStub{}, false
	}
	return storages[rand.Intn(len(storages))], true
}
