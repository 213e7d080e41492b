package naming_service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnishMulay/namestore/internal/communication"
	"github.com/AnishMulay/namestore/internal/fspath"
	"github.com/AnishMulay/namestore/internal/log_service"
	"github.com/AnishMulay/namestore/internal/metadata_service"
	"github.com/AnishMulay/namestore/internal/replication_service"
	"github.com/AnishMulay/namestore/internal/storage_client"
	"github.com/AnishMulay/namestore/internal/storage_registry"
)

type nopLogService struct{}

func (nopLogService) Debug(log_service.LogEvent) {}
func (nopLogService) Info(log_service.LogEvent)  {}
func (nopLogService) Warn(log_service.LogEvent)  {}
func (nopLogService) Error(log_service.LogEvent) {}

type sentCall struct {
	To   string
	Type string
}

// fakeComm plays the storage-server side of every command RPC and records the
// calls it saw.
type fakeComm struct {
	mu    sync.Mutex
	calls []sentCall
	fail  bool
}

func (f *fakeComm) Start(communication.MessageHandler) error { return nil }
func (f *fakeComm) Stop() error                              { return nil }
func (f *fakeComm) Address() string                          { return "fake:0" }

func (f *fakeComm) Send(_ context.Context, to string, msg communication.Message) (*communication.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, sentCall{To: to, Type: msg.Type})
	fail := f.fail
	f.mu.Unlock()

	if fail {
		return nil, errors.New("connection refused")
	}

	var body []byte
	switch msg.Type {
	case communication.MessageTypeCommandCreate:
		body, _ = json.Marshal(communication.CommandCreateResponse{Created: true})
	case communication.MessageTypeCommandDelete:
		body, _ = json.Marshal(communication.CommandDeleteResponse{Deleted: true})
	case communication.MessageTypeCommandCopy:
		body, _ = json.Marshal(communication.CommandCopyResponse{Copied: true})
	}

	return &communication.Response{Code: communication.CodeOK, Body: body}, nil
}

func (f *fakeComm) callsOfType(msgType string) []sentCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []sentCall
	for _, c := range f.calls {
		if c.Type == msgType {
			out = append(out, c)
		}
	}
	return out
}

type fixture struct {
	md         *metadata_service.InMemoryMetadataService
	registry   *storage_registry.InMemoryStorageRegistry
	replicator replication_service.ReplicationService
	comm       *fakeComm
	ns         *DefaultNamingService
}

func newFixture(t *testing.T, threshold int) *fixture {
	t.Helper()

	comm := &fakeComm{}
	md := metadata_service.NewInMemoryMetadataService(nopLogService{})
	registry := storage_registry.NewInMemoryStorageRegistry()
	commands := storage_client.NewCommandClient(comm)
	replicator := replication_service.NewDefaultReplicationService(commands, md, nopLogService{}, 2, 16)
	t.Cleanup(replicator.Stop)

	ns := NewDefaultNamingService(md, registry, replicator, commands, nopLogService{}, threshold)

	return &fixture{md: md, registry: registry, replicator: replicator, comm: comm, ns: ns}
}

var (
	s1 = storage_registry.StorageStub{Address: "localhost:9001"}
	c1 = storage_registry.CommandStub{Address: "localhost:9002"}
	s2 = storage_registry.StorageStub{Address: "localhost:9003"}
	c2 = storage_registry.CommandStub{Address: "localhost:9004"}
)

func path(t *testing.T, raw string) fspath.Path {
	t.Helper()
	p, err := fspath.New(raw)
	require.NoError(t, err)
	return p
}

func TestRegisterDuplicates(t *testing.T) {
	f := newFixture(t, 0)

	dups, err := f.ns.Register(s1, c1, []fspath.Path{path(t, "/a/b.txt")})
	require.NoError(t, err)
	assert.Empty(t, dups)

	dups, err = f.ns.Register(s2, c2, []fspath.Path{path(t, "/a/b.txt"), path(t, "/a/c.txt")})
	require.NoError(t, err)
	require.Len(t, dups, 1)
	assert.Equal(t, "/a/b.txt", dups[0].String())

	// The original owner keeps the duplicate file.
	replicas, ok := f.md.Replicas(path(t, "/a/b.txt"))
	require.True(t, ok)
	assert.Equal(t, []storage_registry.StorageStub{s1}, replicas)

	// The non-duplicate file was spliced in for the new server.
	replicas, ok = f.md.Replicas(path(t, "/a/c.txt"))
	require.True(t, ok)
	assert.Equal(t, []storage_registry.StorageStub{s2}, replicas)
}

func TestRegisterRejectsDuplicateServer(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.ns.Register(s1, c1, nil)
	require.NoError(t, err)

	_, err = f.ns.Register(s1, c1, nil)
	assert.ErrorIs(t, err, storage_registry.ErrAlreadyRegistered)
}

func TestRegisterRejectsEmptyStub(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.ns.Register(storage_registry.StorageStub{}, c1, nil)
	assert.ErrorIs(t, err, ErrBadArgument)
}

func TestCreateFileWithoutStorageServers(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.ns.CreateFile(path(t, "/a"))
	assert.ErrorIs(t, err, ErrNoStorageServers)
}

func TestCreateFile(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.ns.Register(s1, c1, nil)
	require.NoError(t, err)

	created, err := f.ns.CreateFile(path(t, "/a.txt"))
	require.NoError(t, err)
	assert.True(t, created)

	require.Len(t, f.comm.callsOfType(communication.MessageTypeCommandCreate), 1)
	assert.Equal(t, c1.Address, f.comm.callsOfType(communication.MessageTypeCommandCreate)[0].To)

	replicas, ok := f.md.Replicas(path(t, "/a.txt"))
	require.True(t, ok)
	assert.Equal(t, []storage_registry.StorageStub{s1}, replicas)

	// Creating an existing path reports false and issues no RPC.
	created, err = f.ns.CreateFile(path(t, "/a.txt"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Len(t, f.comm.callsOfType(communication.MessageTypeCommandCreate), 1)
}

func TestCreateFileMissingParent(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.ns.Register(s1, c1, nil)
	require.NoError(t, err)

	_, err = f.ns.CreateFile(path(t, "/missing/a.txt"))
	assert.ErrorIs(t, err, metadata_service.ErrPathNotFound)
}

func TestCreateDirectoryIdempotence(t *testing.T) {
	f := newFixture(t, 0)

	created, err := f.ns.CreateDirectory(path(t, "/dir"))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = f.ns.CreateDirectory(path(t, "/dir"))
	require.NoError(t, err)
	assert.False(t, created)
}

func TestIsDirectoryAndList(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.ns.Register(s1, c1, []fspath.Path{path(t, "/docs/a.txt"), path(t, "/docs/b.txt")})
	require.NoError(t, err)

	isDir, err := f.ns.IsDirectory(path(t, "/docs"))
	require.NoError(t, err)
	assert.True(t, isDir)

	isDir, err = f.ns.IsDirectory(path(t, "/docs/a.txt"))
	require.NoError(t, err)
	assert.False(t, isDir)

	_, err = f.ns.IsDirectory(path(t, "/nope"))
	assert.ErrorIs(t, err, metadata_service.ErrPathNotFound)

	names, err := f.ns.List(path(t, "/docs"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, names)

	_, err = f.ns.List(path(t, "/docs/a.txt"))
	assert.ErrorIs(t, err, metadata_service.ErrNotDirectory)
}

func TestDeleteRoot(t *testing.T) {
	f := newFixture(t, 0)

	deleted, err := f.ns.Delete(fspath.Root())
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestDeleteFansOutToAllServers(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.ns.Register(s1, c1, []fspath.Path{path(t, "/a/b")})
	require.NoError(t, err)
	_, err = f.ns.Register(s2, c2, nil)
	require.NoError(t, err)

	deleted, err := f.ns.Delete(path(t, "/a"))
	require.NoError(t, err)
	assert.True(t, deleted)

	calls := f.comm.callsOfType(communication.MessageTypeCommandDelete)
	require.Len(t, calls, 2)
	addrs := []string{calls[0].To, calls[1].To}
	assert.Contains(t, addrs, c1.Address)
	assert.Contains(t, addrs, c2.Address)

	assert.False(t, f.md.Exists(path(t, "/a")))
	assert.False(t, f.md.Exists(path(t, "/a/b")))

	_, err = f.ns.Delete(path(t, "/a"))
	assert.ErrorIs(t, err, metadata_service.ErrPathNotFound)
}

func TestGetStorage(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.ns.Register(s1, c1, []fspath.Path{path(t, "/x")})
	require.NoError(t, err)

	stub, err := f.ns.GetStorage(path(t, "/x"))
	require.NoError(t, err)
	assert.Equal(t, s1, stub)

	_, err = f.ns.GetStorage(path(t, "/missing"))
	assert.ErrorIs(t, err, metadata_service.ErrPathNotFound)

	// Directories have no storage.
	require.NoError(t, func() error { _, err := f.ns.CreateDirectory(path(t, "/d")); return err }())
	_, err = f.ns.GetStorage(path(t, "/d"))
	assert.ErrorIs(t, err, metadata_service.ErrPathNotFound)
}

func TestLockUnknownPath(t *testing.T) {
	f := newFixture(t, 0)

	err := f.ns.Lock(path(t, "/ghost"), false)
	assert.ErrorIs(t, err, metadata_service.ErrPathNotFound)

	err = f.ns.Unlock(path(t, "/ghost"), false)
	assert.ErrorIs(t, err, ErrBadArgument)
}

func TestExclusiveLockInvalidatesStaleReplicas(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.ns.Register(s1, c1, []fspath.Path{path(t, "/x")})
	require.NoError(t, err)
	_, err = f.ns.Register(s2, c2, nil)
	require.NoError(t, err)
	require.NoError(t, f.md.AddReplica(path(t, "/x"), s2))

	require.NoError(t, f.ns.Lock(path(t, "/x"), true))

	replicas, ok := f.md.Replicas(path(t, "/x"))
	require.True(t, ok)
	require.Len(t, replicas, 1)
	assert.Equal(t, s1, replicas[0])

	calls := f.comm.callsOfType(communication.MessageTypeCommandDelete)
	require.Len(t, calls, 1)
	assert.Equal(t, c2.Address, calls[0].To)

	require.NoError(t, f.ns.Unlock(path(t, "/x"), true))
}

func TestSharedLockSeedsReplication(t *testing.T) {
	threshold := 3
	f := newFixture(t, threshold)

	_, err := f.ns.Register(s1, c1, []fspath.Path{path(t, "/hot")})
	require.NoError(t, err)
	_, err = f.ns.Register(s2, c2, nil)
	require.NoError(t, err)

	for i := 0; i < threshold; i++ {
		require.NoError(t, f.ns.Lock(path(t, "/hot"), false))
		require.NoError(t, f.ns.Unlock(path(t, "/hot"), false))
	}

	// The task runs in the background; wait for the replica set to grow.
	deadline := time.After(5 * time.Second)
	for {
		replicas, ok := f.md.Replicas(path(t, "/hot"))
		require.True(t, ok)
		if len(replicas) == 2 {
			assert.Contains(t, replicas, s1)
			assert.Contains(t, replicas, s2)
			break
		}

		select {
		case <-deadline:
			t.Fatalf("replica set never grew: %v", replicas)
		case <-time.After(10 * time.Millisecond):
		}
	}

	calls := f.comm.callsOfType(communication.MessageTypeCommandCopy)
	require.NotEmpty(t, calls)
	assert.Equal(t, c2.Address, calls[0].To)

	// A successful task resets the read counter.
	lock, ok := f.md.Lock(path(t, "/hot"))
	require.True(t, ok)
	assert.Equal(t, 0, lock.ReadsGranted())
}

func TestInterruptUnblocksWaiters(t *testing.T) {
	f := newFixture(t, 0)

	_, err := f.ns.Register(s1, c1, []fspath.Path{path(t, "/x")})
	require.NoError(t, err)

	require.NoError(t, f.ns.Lock(path(t, "/x"), true))

	errCh := make(chan error, 1)
	go func() { errCh <- f.ns.Lock(path(t, "/x"), false) }()

	time.Sleep(50 * time.Millisecond)
	f.ns.Interrupt()

	select {
	case err := <-errCh:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("waiter never unblocked after Interrupt")
	}
}
