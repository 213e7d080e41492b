package metadata_service

import (
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/AnishMulay/namestore/internal/fspath"
	"github.com/AnishMulay/namestore/internal/log_service"
	"github.com/AnishMulay/namestore/internal/rwlock"
	"github.com/AnishMulay/namestore/internal/storage_registry"
)

// InMemoryMetadataService keeps the whole tree in three maps keyed by
// canonical path strings. The mutex guards individual map mutations;
// cross-operation consistency comes from the path locks the naming service
// acquires before calling in.
type InMemoryMetadataService struct {
	mu    sync.RWMutex
	ls    log_service.LogService
	files map[string][]storage_registry.StorageStub
	dirs  map[string]map[string]struct{}
	locks map[string]*rwlock.Lock
}

func NewInMemoryMetadataService(ls log_service.LogService) *InMemoryMetadataService {
	ms := &InMemoryMetadataService{
		ls:    ls,
		files: make(map[string][]storage_registry.StorageStub),
		dirs:  make(map[string]map[string]struct{}),
		locks: make(map[string]*rwlock.Lock),
	}

	root := fspath.Root().String()
	ms.dirs[root] = make(map[string]struct{})
	ms.locks[root] = rwlock.New()

	return ms
}

func (ms *InMemoryMetadataService) Exists(p fspath.Path) bool {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	key := p.String()
	if _, ok := ms.files[key]; ok {
		return true
	}
	_, ok := ms.dirs[key]
	return ok
}

func (ms *InMemoryMetadataService) IsDirectory(p fspath.Path) (bool, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	key := p.String()
	if _, ok := ms.dirs[key]; ok {
		return true, nil
	}
	if _, ok := ms.files[key]; ok {
		return false, nil
	}
	return false, ErrPathNotFound
}

func (ms *InMemoryMetadataService) ListDirectory(p fspath.Path) ([]string, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	children, ok := ms.dirs[p.String()]
	if !ok {
		if _, isFile := ms.files[p.String()]; isFile {
			return nil, ErrNotDirectory
		}
		return nil, ErrPathNotFound
	}

	names := maps.Keys(children)
	slices.Sort(names)
	return names, nil
}

func (ms *InMemoryMetadataService) CreateFile(p fspath.Path, s storage_registry.StorageStub) (bool, error) {
	if p.IsRoot() {
		return false, nil
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	key := p.String()
	if _, ok := ms.files[key]; ok {
		return false, nil
	}
	if _, ok := ms.dirs[key]; ok {
		return false, nil
	}

	parent, err := p.Parent()
	if err != nil {
		return false, err
	}
	children, ok := ms.dirs[parent.String()]
	if !ok {
		return false, ErrParentNotDirectory
	}

	name, err := p.Last()
	if err != nil {
		return false, err
	}

	ms.files[key] = []storage_registry.StorageStub{s}
	ms.locks[key] = rwlock.New()
	children[name] = struct{}{}

	return true, nil
}

func (ms *InMemoryMetadataService) CreateDirectory(p fspath.Path) (bool, error) {
	if p.IsRoot() {
		return false, nil
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	key := p.String()
	if _, ok := ms.files[key]; ok {
		return false, nil
	}
	if _, ok := ms.dirs[key]; ok {
		return false, nil
	}

	parent, err := p.Parent()
	if err != nil {
		return false, err
	}
	children, ok := ms.dirs[parent.String()]
	if !ok {
		return false, ErrParentNotDirectory
	}

	name, err := p.Last()
	if err != nil {
		return false, err
	}

	ms.dirs[key] = make(map[string]struct{})
	ms.locks[key] = rwlock.New()
	children[name] = struct{}{}

	return true, nil
}

func (ms *InMemoryMetadataService) DeletePath(p fspath.Path) (bool, error) {
	if p.IsRoot() {
		return false, nil
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	key := p.String()
	_, isFile := ms.files[key]
	_, isDir := ms.dirs[key]
	if !isFile && !isDir {
		return false, ErrPathNotFound
	}

	ms.removeSubtree(p)

	parent, err := p.Parent()
	if err != nil {
		return false, err
	}
	name, err := p.Last()
	if err != nil {
		return false, err
	}
	if children, ok := ms.dirs[parent.String()]; ok {
		delete(children, name)
	}

	return true, nil
}

// removeSubtree deletes p and everything below it from all three maps. Caller
// holds ms.mu.
func (ms *InMemoryMetadataService) removeSubtree(p fspath.Path) {
	key := p.String()

	if children, ok := ms.dirs[key]; ok {
		for name := range children {
			child, err := fspath.Append(p, name)
			if err != nil {
				continue
			}
			ms.removeSubtree(child)
		}
	}

	delete(ms.files, key)
	delete(ms.dirs, key)
	delete(ms.locks, key)
}

func (ms *InMemoryMetadataService) RegisterFile(p fspath.Path, s storage_registry.StorageStub) bool {
	if p.IsRoot() {
		return false
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	key := p.String()
	if _, ok := ms.files[key]; ok {
		return false
	}
	if _, ok := ms.dirs[key]; ok {
		return false
	}

	// A file already standing where an ancestor directory belongs makes the
	// path unplaceable; report it like a duplicate.
	chain := p.Subpaths()
	for i := 0; i < len(chain)-1; i++ {
		if _, ok := ms.files[chain[i].String()]; ok {
			return false
		}
	}

	// Synthesize any missing ancestor directories, then splice the file in.
	for i := 0; i < len(chain)-1; i++ {
		dirKey := chain[i].String()
		if _, ok := ms.dirs[dirKey]; !ok {
			ms.dirs[dirKey] = make(map[string]struct{})
			ms.locks[dirKey] = rwlock.New()
		}

		childName, err := chain[i+1].Last()
		if err != nil {
			continue
		}
		ms.dirs[dirKey][childName] = struct{}{}
	}

	ms.files[key] = []storage_registry.StorageStub{s}
	ms.locks[key] = rwlock.New()

	return true
}

func (ms *InMemoryMetadataService) Replicas(p fspath.Path) ([]storage_registry.StorageStub, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	replicas, ok := ms.files[p.String()]
	if !ok {
		return nil, false
	}

	out := make([]storage_registry.StorageStub, len(replicas))
	copy(out, replicas)
	return out, true
}

func (ms *InMemoryMetadataService) AddReplica(p fspath.Path, s storage_registry.StorageStub) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	key := p.String()
	replicas, ok := ms.files[key]
	if !ok {
		return ErrPathNotFound
	}

	if slices.Contains(replicas, s) {
		return nil
	}

	ms.files[key] = append(replicas, s)
	return nil
}

func (ms *InMemoryMetadataService) RemoveReplica(p fspath.Path, s storage_registry.StorageStub) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	key := p.String()
	replicas, ok := ms.files[key]
	if !ok {
		return ErrPathNotFound
	}

	for i, replica := range replicas {
		if replica == s {
			ms.files[key] = append(replicas[:i], replicas[i+1:]...)
			return nil
		}
	}

	return nil
}

func (ms *InMemoryMetadataService) Lock(p fspath.Path) (*rwlock.Lock, bool) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	lock, ok := ms.locks[p.String()]
	return lock, ok
}

func (ms *InMemoryMetadataService) RootLock() *rwlock.Lock {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	return ms.locks[fspath.Root().String()]
}

// InterruptAll stops every path lock so blocked operations unwind during
// shutdown.
func (ms *InMemoryMetadataService) InterruptAll() {
	ms.mu.RLock()
	locks := maps.Values(ms.locks)
	ms.mu.RUnlock()

	for _, lock := range locks {
		lock.Interrupt()
	}

	ms.ls.Info(log_service.LogEvent{
		Message:  "Interrupted all path locks",
		Metadata: map[string]any{"count": len(locks)},
	})
}
