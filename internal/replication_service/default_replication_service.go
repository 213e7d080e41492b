package replication_service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/rand"

	"github.com/AnishMulay/namestore/internal/fspath"
	"github.com/AnishMulay/namestore/internal/log_service"
	"github.com/AnishMulay/namestore/internal/metadata_service"
	"github.com/AnishMulay/namestore/internal/storage_client"
	"github.com/AnishMulay/namestore/internal/storage_registry"
)

const copyTimeout = 30 * time.Second

type DefaultReplicationService struct {
	commands *storage_client.CommandClient
	md       metadata_service.MetadataService
	ls       log_service.LogService

	mu      sync.Mutex
	tasks   chan Task
	stopped bool
	wg      sync.WaitGroup
}

// NewDefaultReplicationService starts a pool of workers draining the task
// queue. The queue holds at most queueSize tasks; a full queue sheds load
// instead of blocking the read path.
func NewDefaultReplicationService(commands *storage_client.CommandClient, md metadata_service.MetadataService, ls log_service.LogService, workers, queueSize int) *DefaultReplicationService {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}

	rs := &DefaultReplicationService{
		commands: commands,
		md:       md,
		ls:       ls,
		tasks:    make(chan Task, queueSize),
	}

	for i := 0; i < workers; i++ {
		rs.wg.Add(1)
		go rs.worker()
	}

	return rs
}

func (rs *DefaultReplicationService) Enqueue(path fspath.Path, target storage_registry.StorageStub, targetCommand storage_registry.CommandStub, sources []storage_registry.StorageStub) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.stopped {
		return ErrStopped
	}

	task := Task{
		ID:            uuid.NewString(),
		Path:          path,
		Target:        target,
		TargetCommand: targetCommand,
		Sources:       sources,
	}

	select {
	case rs.tasks <- task:
		rs.ls.Debug(log_service.LogEvent{
			Message:  "Enqueued replication task",
			Metadata: map[string]any{"task": task.ID, "path": path.String(), "target": target.Address},
		})
		return nil
	default:
		rs.ls.Warn(log_service.LogEvent{
			Message:  "Replication queue full, dropping task",
			Metadata: map[string]any{"path": path.String(), "target": target.Address},
		})
		return ErrQueueFull
	}
}

// Stop closes the queue and waits for in-flight tasks to finish.
func (rs *DefaultReplicationService) Stop() {
	rs.mu.Lock()
	if rs.stopped {
		rs.mu.Unlock()
		return
	}
	rs.stopped = true
	close(rs.tasks)
	rs.mu.Unlock()

	rs.wg.Wait()
}

func (rs *DefaultReplicationService) worker() {
	defer rs.wg.Done()
	for task := range rs.tasks {
		rs.run(task)
	}
}

// run performs one copy. Failures are swallowed: the file stays
// under-replicated and a later read re-triggers the policy.
func (rs *DefaultReplicationService) run(task Task) {
	if len(task.Sources) == 0 {
		return
	}

	source := task.Sources[rand.Intn(len(task.Sources))]

	ctx, cancel := context.WithTimeout(context.Background(), copyTimeout)
	defer cancel()

	copied, err := rs.commands.Copy(ctx, task.TargetCommand, task.Path, source)
	if err != nil || !copied {
		rs.ls.Debug(log_service.LogEvent{
			Message:  "Replication task failed",
			Metadata: map[string]any{"task": task.ID, "path": task.Path.String(), "error": errString(err)},
		})
		return
	}

	if err := rs.md.AddReplica(task.Path, task.Target); err != nil {
		// The file was deleted while the copy ran; nothing to record.
		return
	}

	if lock, ok := rs.md.Lock(task.Path); ok {
		lock.ResetReadCount()
	}

	rs.ls.Info(log_service.LogEvent{
		Message:  "Replicated file",
		Metadata: map[string]any{"task": task.ID, "path": task.Path.String(), "target": task.Target.Address},
	})
}

func errString(err error) string {
	if err == nil {
		return "copy returned false"
	}
	return err.Error()
}
