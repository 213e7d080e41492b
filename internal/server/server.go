package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"

	"github.com/AnishMulay/namestore/internal/communication"
	"github.com/AnishMulay/namestore/internal/fspath"
	"github.com/AnishMulay/namestore/internal/metadata_service"
	"github.com/AnishMulay/namestore/internal/naming_service"
	"github.com/AnishMulay/namestore/internal/rwlock"
	"github.com/AnishMulay/namestore/internal/storage_client"
	"github.com/AnishMulay/namestore/internal/storage_registry"
	"github.com/AnishMulay/namestore/internal/storage_service"
)

// TypedHandler pairs a message handler with the payload type it expects. The
// communicator decodes payloads by message type; the server double-checks the
// decoded type before dispatch.
type TypedHandler struct {
	Handler     func(msg communication.Message) (*communication.Response, error)
	PayloadType reflect.Type
}

func dispatch(handlers map[string]*TypedHandler, msg communication.Message) (*communication.Response, error) {
	typed, exists := handlers[msg.Type]
	if !exists {
		return &communication.Response{
			Code: communication.CodeBadRequest,
			Body: []byte(fmt.Sprintf("No handler registered for message type: %s", msg.Type)),
		}, nil
	}

	if msg.Payload != nil {
		actualType := reflect.TypeOf(msg.Payload)
		if actualType != typed.PayloadType {
			return &communication.Response{
				Code: communication.CodeBadRequest,
				Body: []byte(fmt.Sprintf("Invalid payload type for %s: expected %s, got %s", msg.Type, typed.PayloadType, actualType)),
			}, nil
		}
	}

	return typed.Handler(msg)
}

func okResponse(v any) (*communication.Response, error) {
	if v == nil {
		return &communication.Response{Code: communication.CodeOK}, nil
	}

	body, err := json.Marshal(v)
	if err != nil {
		return &communication.Response{
			Code: communication.CodeInternal,
			Body: []byte(err.Error()),
		}, nil
	}

	return &communication.Response{Code: communication.CodeOK, Body: body}, nil
}

func errorResponse(err error) (*communication.Response, error) {
	return &communication.Response{
		Code: codeFor(err),
		Body: []byte(err.Error()),
	}, nil
}

// codeFor maps the sentinel errors of every layer onto wire codes.
func codeFor(err error) communication.Code {
	switch {
	case errors.Is(err, fspath.ErrBadPath),
		errors.Is(err, naming_service.ErrBadArgument),
		errors.Is(err, storage_registry.ErrBadStub):
		return communication.CodeBadRequest
	case errors.Is(err, metadata_service.ErrPathNotFound),
		errors.Is(err, metadata_service.ErrNotDirectory),
		errors.Is(err, metadata_service.ErrParentNotDirectory),
		errors.Is(err, fspath.ErrDirNotFound),
		errors.Is(err, fspath.ErrNotDirectory),
		errors.Is(err, storage_service.ErrFileNotFound),
		errors.Is(err, storage_client.ErrFileNotFound):
		return communication.CodeNotFound
	case errors.Is(err, naming_service.ErrNoStorageServers),
		errors.Is(err, storage_registry.ErrAlreadyRegistered):
		return communication.CodeConflict
	case errors.Is(err, storage_service.ErrOutOfRange),
		errors.Is(err, storage_client.ErrOutOfRange):
		return communication.CodeOutOfRange
	case errors.Is(err, rwlock.ErrStopped):
		return communication.CodeUnavailable
	default:
		return communication.CodeInternal
	}
}
