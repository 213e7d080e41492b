// Package namelib is a thin client library for the naming and storage
// servers. It wraps the message transport with typed calls and turns wire
// codes back into errors.
package namelib

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AnishMulay/namestore/internal/communication"
)

var (
	ErrBadRequest  = errors.New("server rejected the request")
	ErrNotFound    = errors.New("path not found")
	ErrConflict    = errors.New("operation conflicts with server state")
	ErrOutOfRange  = errors.New("offset or length out of range")
	ErrUnavailable = errors.New("server is shutting down")
	ErrRemote      = errors.New("server reported an internal error")
)

func codeError(resp *communication.Response) error {
	var base error
	switch resp.Code {
	case communication.CodeBadRequest:
		base = ErrBadRequest
	case communication.CodeNotFound:
		base = ErrNotFound
	case communication.CodeConflict:
		base = ErrConflict
	case communication.CodeOutOfRange:
		base = ErrOutOfRange
	case communication.CodeUnavailable:
		base = ErrUnavailable
	default:
		base = ErrRemote
	}

	if len(resp.Body) > 0 {
		return fmt.Errorf("%w: %s", base, resp.Body)
	}
	return base
}

// NamingClient talks to a naming server's service endpoint.
type NamingClient struct {
	ServerAddr string
	Comm       communication.Communicator
}

func NewNamingClient(serverAddr string, comm communication.Communicator) *NamingClient {
	return &NamingClient{ServerAddr: serverAddr, Comm: comm}
}

func (c *NamingClient) call(ctx context.Context, msgType string, payload any, out any) error {
	resp, err := c.Comm.Send(ctx, c.ServerAddr, communication.Message{
		Type:    msgType,
		Payload: payload,
	})
	if err != nil {
		return err
	}
	if resp.Code != communication.CodeOK {
		return codeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(resp.Body, out)
}

func (c *NamingClient) Lock(ctx context.Context, path string, exclusive bool) error {
	return c.call(ctx, communication.MessageTypeLock, communication.LockRequest{Path: path, Exclusive: exclusive}, nil)
}

func (c *NamingClient) Unlock(ctx context.Context, path string, exclusive bool) error {
	return c.call(ctx, communication.MessageTypeUnlock, communication.UnlockRequest{Path: path, Exclusive: exclusive}, nil)
}

func (c *NamingClient) IsDirectory(ctx context.Context, path string) (bool, error) {
	var out communication.IsDirectoryResponse
	if err := c.call(ctx, communication.MessageTypeIsDirectory, communication.IsDirectoryRequest{Path: path}, &out); err != nil {
		return false, err
	}
	return out.IsDirectory, nil
}

func (c *NamingClient) List(ctx context.Context, path string) ([]string, error) {
	var out communication.ListResponse
	if err := c.call(ctx, communication.MessageTypeList, communication.ListRequest{Path: path}, &out); err != nil {
		return nil, err
	}
	return out.Names, nil
}

func (c *NamingClient) CreateFile(ctx context.Context, path string) (bool, error) {
	var out communication.CreateFileResponse
	if err := c.call(ctx, communication.MessageTypeCreateFile, communication.CreateFileRequest{Path: path}, &out); err != nil {
		return false, err
	}
	return out.Created, nil
}

func (c *NamingClient) CreateDirectory(ctx context.Context, path string) (bool, error) {
	var out communication.CreateDirectoryResponse
	if err := c.call(ctx, communication.MessageTypeCreateDirectory, communication.CreateDirectoryRequest{Path: path}, &out); err != nil {
		return false, err
	}
	return out.Created, nil
}

func (c *NamingClient) Delete(ctx context.Context, path string) (bool, error) {
	var out communication.DeleteResponse
	if err := c.call(ctx, communication.MessageTypeDelete, communication.DeleteRequest{Path: path}, &out); err != nil {
		return false, err
	}
	return out.Deleted, nil
}

// GetStorage returns the data address of a storage server holding the file.
func (c *NamingClient) GetStorage(ctx context.Context, path string) (string, error) {
	var out communication.GetStorageResponse
	if err := c.call(ctx, communication.MessageTypeGetStorage, communication.GetStorageRequest{Path: path}, &out); err != nil {
		return "", err
	}
	return out.Address, nil
}

// StorageClient talks to a storage server's data endpoint, usually one
// discovered through NamingClient.GetStorage.
type StorageClient struct {
	Comm communication.Communicator
}

func NewStorageClient(comm communication.Communicator) *StorageClient {
	return &StorageClient{Comm: comm}
}

func (c *StorageClient) call(ctx context.Context, addr, msgType string, payload any, out any) error {
	resp, err := c.Comm.Send(ctx, addr, communication.Message{
		Type:    msgType,
		Payload: payload,
	})
	if err != nil {
		return err
	}
	if resp.Code != communication.CodeOK {
		return codeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(resp.Body, out)
}

func (c *StorageClient) Size(ctx context.Context, addr, path string) (int64, error) {
	var out communication.StorageSizeResponse
	if err := c.call(ctx, addr, communication.MessageTypeStorageSize, communication.StorageSizeRequest{Path: path}, &out); err != nil {
		return 0, err
	}
	return out.Size, nil
}

func (c *StorageClient) Read(ctx context.Context, addr, path string, offset, length int64) ([]byte, error) {
	var out communication.StorageReadResponse
	if err := c.call(ctx, addr, communication.MessageTypeStorageRead, communication.StorageReadRequest{Path: path, Offset: offset, Length: length}, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

func (c *StorageClient) Write(ctx context.Context, addr, path string, offset int64, data []byte) error {
	return c.call(ctx, addr, communication.MessageTypeStorageWrite, communication.StorageWriteRequest{Path: path, Offset: offset, Data: data}, nil)
}
