package server

import (
	"reflect"
	"sync"

	"github.com/AnishMulay/namestore/internal/communication"
	"github.com/AnishMulay/namestore/internal/fspath"
	"github.com/AnishMulay/namestore/internal/log_service"
	"github.com/AnishMulay/namestore/internal/naming_service"
	"github.com/AnishMulay/namestore/internal/storage_registry"
)

// NamingServer exposes the naming service over two communicators: one for the
// client-facing service operations and one for storage-server registration.
// The split mirrors the two well-known ports of the system.
type NamingServer struct {
	serviceComm      communication.Communicator
	registrationComm communication.Communicator
	svc              naming_service.NamingService
	ls               log_service.LogService

	serviceHandlers      map[string]*TypedHandler
	registrationHandlers map[string]*TypedHandler

	// OnStopped is invoked exactly once after Stop completes, with the root
	// cause of an abnormal shutdown or nil on a clean one.
	OnStopped func(err error)
	stopOnce  sync.Once
}

func NewNamingServer(serviceComm, registrationComm communication.Communicator, svc naming_service.NamingService, ls log_service.LogService) *NamingServer {
	s := &NamingServer{
		serviceComm:          serviceComm,
		registrationComm:     registrationComm,
		svc:                  svc,
		ls:                   ls,
		serviceHandlers:      make(map[string]*TypedHandler),
		registrationHandlers: make(map[string]*TypedHandler),
	}

	s.RegisterServiceHandler(communication.MessageTypeLock, reflect.TypeOf((*communication.LockRequest)(nil)).Elem(), s.HandleLockMessage)
	s.RegisterServiceHandler(communication.MessageTypeUnlock, reflect.TypeOf((*communication.UnlockRequest)(nil)).Elem(), s.HandleUnlockMessage)
	s.RegisterServiceHandler(communication.MessageTypeIsDirectory, reflect.TypeOf((*communication.IsDirectoryRequest)(nil)).Elem(), s.HandleIsDirectoryMessage)
	s.RegisterServiceHandler(communication.MessageTypeList, reflect.TypeOf((*communication.ListRequest)(nil)).Elem(), s.HandleListMessage)
	s.RegisterServiceHandler(communication.MessageTypeCreateFile, reflect.TypeOf((*communication.CreateFileRequest)(nil)).Elem(), s.HandleCreateFileMessage)
	s.RegisterServiceHandler(communication.MessageTypeCreateDirectory, reflect.TypeOf((*communication.CreateDirectoryRequest)(nil)).Elem(), s.HandleCreateDirectoryMessage)
	s.RegisterServiceHandler(communication.MessageTypeDelete, reflect.TypeOf((*communication.DeleteRequest)(nil)).Elem(), s.HandleDeleteMessage)
	s.RegisterServiceHandler(communication.MessageTypeGetStorage, reflect.TypeOf((*communication.GetStorageRequest)(nil)).Elem(), s.HandleGetStorageMessage)

	s.RegisterRegistrationHandler(communication.MessageTypeRegister, reflect.TypeOf((*communication.RegisterRequest)(nil)).Elem(), s.HandleRegisterMessage)

	return s
}

func (s *NamingServer) RegisterServiceHandler(msgType string, payloadType reflect.Type, handler func(msg communication.Message) (*communication.Response, error)) {
	s.serviceHandlers[msgType] = &TypedHandler{Handler: handler, PayloadType: payloadType}
}

func (s *NamingServer) RegisterRegistrationHandler(msgType string, payloadType reflect.Type, handler func(msg communication.Message) (*communication.Response, error)) {
	s.registrationHandlers[msgType] = &TypedHandler{Handler: handler, PayloadType: payloadType}
}

func (s *NamingServer) Start() error {
	if err := s.serviceComm.Start(s.handleServiceMessage); err != nil {
		return err
	}
	if err := s.registrationComm.Start(s.handleRegistrationMessage); err != nil {
		s.serviceComm.Stop()
		return err
	}

	s.ls.Info(log_service.LogEvent{
		Message: "Naming server started",
		Metadata: map[string]any{
			"service":      s.serviceComm.Address(),
			"registration": s.registrationComm.Address(),
		},
	})

	return nil
}

// Stop drains both listeners, then interrupts every path lock so in-flight
// lock and unlock calls unwind before the hook fires.
func (s *NamingServer) Stop() error {
	var firstErr error
	if err := s.serviceComm.Stop(); err != nil {
		firstErr = err
	}
	if err := s.registrationComm.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}

	s.svc.Interrupt()

	s.ls.Info(log_service.LogEvent{
		Message: "Naming server stopped",
	})

	s.stopOnce.Do(func() {
		if s.OnStopped != nil {
			s.OnStopped(firstErr)
		}
	})

	return firstErr
}

func (s *NamingServer) handleServiceMessage(msg communication.Message) (*communication.Response, error) {
	return dispatch(s.serviceHandlers, msg)
}

func (s *NamingServer) handleRegistrationMessage(msg communication.Message) (*communication.Response, error) {
	return dispatch(s.registrationHandlers, msg)
}

func (s *NamingServer) HandleLockMessage(msg communication.Message) (*communication.Response, error) {
	request := msg.Payload.(communication.LockRequest)

	p, err := fspath.New(request.Path)
	if err != nil {
		return errorResponse(err)
	}

	if err := s.svc.Lock(p, request.Exclusive); err != nil {
		return errorResponse(err)
	}

	return okResponse(nil)
}

func (s *NamingServer) HandleUnlockMessage(msg communication.Message) (*communication.Response, error) {
	request := msg.Payload.(communication.UnlockRequest)

	p, err := fspath.New(request.Path)
	if err != nil {
		return errorResponse(err)
	}

	if err := s.svc.Unlock(p, request.Exclusive); err != nil {
		return errorResponse(err)
	}

	return okResponse(nil)
}

func (s *NamingServer) HandleIsDirectoryMessage(msg communication.Message) (*communication.Response, error) {
	request := msg.Payload.(communication.IsDirectoryRequest)

	p, err := fspath.New(request.Path)
	if err != nil {
		return errorResponse(err)
	}

	isDir, err := s.svc.IsDirectory(p)
	if err != nil {
		return errorResponse(err)
	}

	return okResponse(communication.IsDirectoryResponse{IsDirectory: isDir})
}

func (s *NamingServer) HandleListMessage(msg communication.Message) (*communication.Response, error) {
	request := msg.Payload.(communication.ListRequest)

	p, err := fspath.New(request.Path)
	if err != nil {
		return errorResponse(err)
	}

	names, err := s.svc.List(p)
	if err != nil {
		return errorResponse(err)
	}

	return okResponse(communication.ListResponse{Names: names})
}

func (s *NamingServer) HandleCreateFileMessage(msg communication.Message) (*communication.Response, error) {
	request := msg.Payload.(communication.CreateFileRequest)

	p, err := fspath.New(request.Path)
	if err != nil {
		return errorResponse(err)
	}

	created, err := s.svc.CreateFile(p)
	if err != nil {
		return errorResponse(err)
	}

	return okResponse(communication.CreateFileResponse{Created: created})
}

func (s *NamingServer) HandleCreateDirectoryMessage(msg communication.Message) (*communication.Response, error) {
	request := msg.Payload.(communication.CreateDirectoryRequest)

	p, err := fspath.New(request.Path)
	if err != nil {
		return errorResponse(err)
	}

	created, err := s.svc.CreateDirectory(p)
	if err != nil {
		return errorResponse(err)
	}

	return okResponse(communication.CreateDirectoryResponse{Created: created})
}

func (s *NamingServer) HandleDeleteMessage(msg communication.Message) (*communication.Response, error) {
	request := msg.Payload.(communication.DeleteRequest)

	p, err := fspath.New(request.Path)
	if err != nil {
		return errorResponse(err)
	}

	deleted, err := s.svc.Delete(p)
	if err != nil {
		return errorResponse(err)
	}

	return okResponse(communication.DeleteResponse{Deleted: deleted})
}

func (s *NamingServer) HandleGetStorageMessage(msg communication.Message) (*communication.Response, error) {
	request := msg.Payload.(communication.GetStorageRequest)

	p, err := fspath.New(request.Path)
	if err != nil {
		return errorResponse(err)
	}

	stub, err := s.svc.GetStorage(p)
	if err != nil {
		return errorResponse(err)
	}

	return okResponse(communication.GetStorageResponse{Address: stub.Address})
}

func (s *NamingServer) HandleRegisterMessage(msg communication.Message) (*communication.Response, error) {
	request := msg.Payload.(communication.RegisterRequest)

	paths := make([]fspath.Path, 0, len(request.Paths))
	for _, raw := range request.Paths {
		p, err := fspath.New(raw)
		if err != nil {
			return errorResponse(err)
		}
		paths = append(paths, p)
	}

	duplicates, err := s.svc.Register(
		storage_registry.StorageStub{Address: request.StorageAddress},
		storage_registry.CommandStub{Address: request.CommandAddress},
		paths,
	)
	if err != nil {
		return errorResponse(err)
	}

	rawDuplicates := make([]string, len(duplicates))
	for i, p := range duplicates {
		rawDuplicates[i] = p.String()
	}

	return okResponse(communication.RegisterResponse{Duplicates: rawDuplicates})
}
