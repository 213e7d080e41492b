package server

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/AnishMulay/namestore/internal/communication"
	"github.com/AnishMulay/namestore/internal/fspath"
	"github.com/AnishMulay/namestore/internal/log_service"
	"github.com/AnishMulay/namestore/internal/storage_client"
	"github.com/AnishMulay/namestore/internal/storage_registry"
	"github.com/AnishMulay/namestore/internal/storage_service"
)

// DefaultCopyChunkSize bounds how much of a file one replication read moves.
const DefaultCopyChunkSize = int64(8 * 1024 * 1024)

const registerTimeout = 30 * time.Second

// StorageServer serves file bytes to clients on the storage communicator and
// naming-server mutations on the command communicator. On Start it announces
// its local files to the naming server and deletes whatever the naming server
// already knows from elsewhere.
type StorageServer struct {
	storageComm communication.Communicator
	commandComm communication.Communicator
	ss          storage_service.StorageService
	peers       *storage_client.StorageClient
	registrar   *storage_client.RegistrationClient
	ls          log_service.LogService

	namingAddress string
	root          string
	chunkSize     int64

	storageHandlers map[string]*TypedHandler
	commandHandlers map[string]*TypedHandler

	// OnStopped is invoked exactly once after Stop completes.
	OnStopped func(err error)
	stopOnce  sync.Once
}

func NewStorageServer(storageComm, commandComm communication.Communicator, ss storage_service.StorageService, namingAddress, root string, ls log_service.LogService) *StorageServer {
	s := &StorageServer{
		storageComm:     storageComm,
		commandComm:     commandComm,
		ss:              ss,
		peers:           storage_client.NewStorageClient(storageComm),
		registrar:       storage_client.NewRegistrationClient(storageComm),
		ls:              ls,
		namingAddress:   namingAddress,
		root:            root,
		chunkSize:       DefaultCopyChunkSize,
		storageHandlers: make(map[string]*TypedHandler),
		commandHandlers: make(map[string]*TypedHandler),
	}

	s.storageHandlers[communication.MessageTypeStorageSize] = &TypedHandler{
		Handler: s.HandleSizeMessage, PayloadType: reflect.TypeOf((*communication.StorageSizeRequest)(nil)).Elem(),
	}
	s.storageHandlers[communication.MessageTypeStorageRead] = &TypedHandler{
		Handler: s.HandleReadMessage, PayloadType: reflect.TypeOf((*communication.StorageReadRequest)(nil)).Elem(),
	}
	s.storageHandlers[communication.MessageTypeStorageWrite] = &TypedHandler{
		Handler: s.HandleWriteMessage, PayloadType: reflect.TypeOf((*communication.StorageWriteRequest)(nil)).Elem(),
	}

	s.commandHandlers[communication.MessageTypeCommandCreate] = &TypedHandler{
		Handler: s.HandleCreateMessage, PayloadType: reflect.TypeOf((*communication.CommandCreateRequest)(nil)).Elem(),
	}
	s.commandHandlers[communication.MessageTypeCommandDelete] = &TypedHandler{
		Handler: s.HandleDeleteMessage, PayloadType: reflect.TypeOf((*communication.CommandDeleteRequest)(nil)).Elem(),
	}
	s.commandHandlers[communication.MessageTypeCommandCopy] = &TypedHandler{
		Handler: s.HandleCopyMessage, PayloadType: reflect.TypeOf((*communication.CommandCopyRequest)(nil)).Elem(),
	}

	return s
}

// Start brings both endpoints online and registers with the naming server.
// Files the naming server reports as duplicates are deleted locally, along
// with any directories that emptied out.
func (s *StorageServer) Start() error {
	if err := s.storageComm.Start(func(msg communication.Message) (*communication.Response, error) {
		return dispatch(s.storageHandlers, msg)
	}); err != nil {
		return err
	}
	if err := s.commandComm.Start(func(msg communication.Message) (*communication.Response, error) {
		return dispatch(s.commandHandlers, msg)
	}); err != nil {
		s.storageComm.Stop()
		return err
	}

	paths, err := fspath.List(s.root)
	if err != nil {
		s.stopComms()
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), registerTimeout)
	defer cancel()

	duplicates, err := s.registrar.Register(ctx, s.namingAddress,
		storage_registry.StorageStub{Address: s.storageComm.Address()},
		storage_registry.CommandStub{Address: s.commandComm.Address()},
		paths,
	)
	if err != nil {
		s.stopComms()
		return fmt.Errorf("registration with naming server failed: %w", err)
	}

	for _, p := range duplicates {
		if _, err := s.ss.Delete(p); err != nil {
			s.ls.Warn(log_service.LogEvent{
				Message:  "Failed to delete duplicate file",
				Metadata: map[string]any{"path": p.String(), "error": err.Error()},
			})
		}
	}
	if err := s.ss.PruneEmptyDirs(); err != nil {
		s.ls.Warn(log_service.LogEvent{
			Message:  "Failed to prune empty directories",
			Metadata: map[string]any{"error": err.Error()},
		})
	}

	s.ls.Info(log_service.LogEvent{
		Message: "Storage server started",
		Metadata: map[string]any{
			"storage":    s.storageComm.Address(),
			"command":    s.commandComm.Address(),
			"naming":     s.namingAddress,
			"files":      len(paths),
			"duplicates": len(duplicates),
		},
	})

	return nil
}

func (s *StorageServer) stopComms() error {
	var firstErr error
	if err := s.storageComm.Stop(); err != nil {
		firstErr = err
	}
	if err := s.commandComm.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (s *StorageServer) Stop() error {
	err := s.stopComms()

	s.ls.Info(log_service.LogEvent{
		Message: "Storage server stopped",
	})

	s.stopOnce.Do(func() {
		if s.OnStopped != nil {
			s.OnStopped(err)
		}
	})

	return err
}

func (s *StorageServer) HandleSizeMessage(msg communication.Message) (*communication.Response, error) {
	request := msg.Payload.(communication.StorageSizeRequest)

	p, err := fspath.New(request.Path)
	if err != nil {
		return errorResponse(err)
	}

	size, err := s.ss.Size(p)
	if err != nil {
		return errorResponse(err)
	}

	return okResponse(communication.StorageSizeResponse{Size: size})
}

func (s *StorageServer) HandleReadMessage(msg communication.Message) (*communication.Response, error) {
	request := msg.Payload.(communication.StorageReadRequest)

	p, err := fspath.New(request.Path)
	if err != nil {
		return errorResponse(err)
	}

	data, err := s.ss.Read(p, request.Offset, request.Length)
	if err != nil {
		return errorResponse(err)
	}

	return okResponse(communication.StorageReadResponse{Data: data})
}

func (s *StorageServer) HandleWriteMessage(msg communication.Message) (*communication.Response, error) {
	request := msg.Payload.(communication.StorageWriteRequest)

	p, err := fspath.New(request.Path)
	if err != nil {
		return errorResponse(err)
	}

	if err := s.ss.Write(p, request.Offset, request.Data); err != nil {
		return errorResponse(err)
	}

	return okResponse(nil)
}

func (s *StorageServer) HandleCreateMessage(msg communication.Message) (*communication.Response, error) {
	request := msg.Payload.(communication.CommandCreateRequest)

	p, err := fspath.New(request.Path)
	if err != nil {
		return errorResponse(err)
	}

	created, err := s.ss.Create(p)
	if err != nil {
		return errorResponse(err)
	}

	return okResponse(communication.CommandCreateResponse{Created: created})
}

func (s *StorageServer) HandleDeleteMessage(msg communication.Message) (*communication.Response, error) {
	request := msg.Payload.(communication.CommandDeleteRequest)

	p, err := fspath.New(request.Path)
	if err != nil {
		return errorResponse(err)
	}

	deleted, err := s.ss.Delete(p)
	if err != nil {
		return errorResponse(err)
	}

	return okResponse(communication.CommandDeleteResponse{Deleted: deleted})
}

// HandleCopyMessage pulls a file from another storage server chunk by chunk,
// verifying each chunk by reading it back before moving on.
func (s *StorageServer) HandleCopyMessage(msg communication.Message) (*communication.Response, error) {
	request := msg.Payload.(communication.CommandCopyRequest)

	p, err := fspath.New(request.Path)
	if err != nil {
		return errorResponse(err)
	}
	source := storage_registry.StorageStub{Address: request.SourceAddress}

	ctx, cancel := context.WithTimeout(context.Background(), registerTimeout)
	defer cancel()

	size, err := s.peers.Size(ctx, source, p)
	if err != nil {
		return errorResponse(err)
	}

	// Replace whatever partial copy may exist.
	if _, err := s.ss.Delete(p); err != nil {
		return errorResponse(err)
	}
	if _, err := s.ss.Create(p); err != nil {
		return errorResponse(err)
	}

	success := true
	var offset int64
	bytesLeft := size
	for bytesLeft > 0 {
		chunk := bytesLeft
		if chunk > s.chunkSize {
			chunk = s.chunkSize
		}

		data, err := s.peers.Read(ctx, source, p, offset, chunk)
		if err != nil {
			return errorResponse(err)
		}
		if err := s.ss.Write(p, offset, data); err != nil {
			return errorResponse(err)
		}

		local, err := s.ss.Read(p, offset, chunk)
		if err != nil {
			return errorResponse(err)
		}
		success = success && bytes.Equal(data, local)

		offset += chunk
		bytesLeft -= chunk
	}

	s.ls.Info(log_service.LogEvent{
		Message:  "Copied file from peer",
		Metadata: map[string]any{"path": p.String(), "source": source.Address, "size": size, "verified": success},
	})

	return okResponse(communication.CommandCopyResponse{Copied: success})
}
