package storage_client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/AnishMulay/namestore/internal/communication"
	"github.com/AnishMulay/namestore/internal/fspath"
	"github.com/AnishMulay/namestore/internal/storage_registry"
)

// CommandClient issues mutation RPCs to a storage server's command endpoint.
// One client serves any number of endpoints; the stub is passed per call.
type CommandClient struct {
	comm communication.Communicator
}

func NewCommandClient(comm communication.Communicator) *CommandClient {
	return &CommandClient{comm: comm}
}

func (c *CommandClient) Create(ctx context.Context, stub storage_registry.CommandStub, p fspath.Path) (bool, error) {
	resp, err := c.comm.Send(ctx, stub.Address, communication.Message{
		Type:    communication.MessageTypeCommandCreate,
		Payload: communication.CommandCreateRequest{Path: p.String()},
	})
	if err != nil {
		return false, err
	}
	if resp.Code != communication.CodeOK {
		return false, remoteError(resp)
	}

	var out communication.CommandCreateResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return false, ErrBadResponse
	}
	return out.Created, nil
}

func (c *CommandClient) Delete(ctx context.Context, stub storage_registry.CommandStub, p fspath.Path) (bool, error) {
	resp, err := c.comm.Send(ctx, stub.Address, communication.Message{
		Type:    communication.MessageTypeCommandDelete,
		Payload: communication.CommandDeleteRequest{Path: p.String()},
	})
	if err != nil {
		return false, err
	}
	if resp.Code != communication.CodeOK {
		return false, remoteError(resp)
	}

	var out communication.CommandDeleteResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return false, ErrBadResponse
	}
	return out.Deleted, nil
}

func (c *CommandClient) Copy(ctx context.Context, stub storage_registry.CommandStub, p fspath.Path, source storage_registry.StorageStub) (bool, error) {
	resp, err := c.comm.Send(ctx, stub.Address, communication.Message{
		Type: communication.MessageTypeCommandCopy,
		Payload: communication.CommandCopyRequest{
			Path:          p.String(),
			SourceAddress: source.Address,
		},
	})
	if err != nil {
		return false, err
	}
	if resp.Code != communication.CodeOK {
		return false, remoteError(resp)
	}

	var out communication.CommandCopyResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return false, ErrBadResponse
	}
	return out.Copied, nil
}

// StorageClient issues data RPCs to a storage server's data endpoint.
type StorageClient struct {
	comm communication.Communicator
}

func NewStorageClient(comm communication.Communicator) *StorageClient {
	return &StorageClient{comm: comm}
}

func (c *StorageClient) Size(ctx context.Context, stub storage_registry.StorageStub, p fspath.Path) (int64, error) {
	resp, err := c.comm.Send(ctx, stub.Address, communication.Message{
		Type:    communication.MessageTypeStorageSize,
		Payload: communication.StorageSizeRequest{Path: p.String()},
	})
	if err != nil {
		return 0, err
	}
	if resp.Code != communication.CodeOK {
		return 0, remoteError(resp)
	}

	var out communication.StorageSizeResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return 0, ErrBadResponse
	}
	return out.Size, nil
}

func (c *StorageClient) Read(ctx context.Context, stub storage_registry.StorageStub, p fspath.Path, offset, length int64) ([]byte, error) {
	resp, err := c.comm.Send(ctx, stub.Address, communication.Message{
		Type: communication.MessageTypeStorageRead,
		Payload: communication.StorageReadRequest{
			Path:   p.String(),
			Offset: offset,
			Length: length,
		},
	})
	if err != nil {
		return nil, err
	}
	if resp.Code != communication.CodeOK {
		return nil, remoteError(resp)
	}

	var out communication.StorageReadResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, ErrBadResponse
	}
	return out.Data, nil
}

func (c *StorageClient) Write(ctx context.Context, stub storage_registry.StorageStub, p fspath.Path, offset int64, data []byte) error {
	resp, err := c.comm.Send(ctx, stub.Address, communication.Message{
		Type: communication.MessageTypeStorageWrite,
		Payload: communication.StorageWriteRequest{
			Path:   p.String(),
			Offset: offset,
			Data:   data,
		},
	})
	if err != nil {
		return err
	}
	if resp.Code != communication.CodeOK {
		return remoteError(resp)
	}
	return nil
}

func remoteError(resp *communication.Response) error {
	switch resp.Code {
	case communication.CodeNotFound:
		return ErrFileNotFound
	case communication.CodeOutOfRange:
		return ErrOutOfRange
	default:
		return fmt.Errorf("%w: %s", ErrRemoteFailed, resp.Code)
	}
}
