package storage_client

import (
	"context"
	"encoding/json"

	"github.com/AnishMulay/namestore/internal/communication"
	"github.com/AnishMulay/namestore/internal/fspath"
	"github.com/AnishMulay/namestore/internal/storage_registry"
)

// RegistrationClient is the storage server's view of the naming server's
// registration endpoint.
type RegistrationClient struct {
	comm communication.Communicator
}

func NewRegistrationClient(comm communication.Communicator) *RegistrationClient {
	return &RegistrationClient{comm: comm}
}

// Register announces a storage server and its files to the naming server and
// returns the paths the naming server already knew about. The storage server
// must delete those local copies.
func (c *RegistrationClient) Register(ctx context.Context, namingAddress string, storage storage_registry.StorageStub, command storage_registry.CommandStub, paths []fspath.Path) ([]fspath.Path, error) {
	rawPaths := make([]string, len(paths))
	for i, p := range paths {
		rawPaths[i] = p.String()
	}

	resp, err := c.comm.Send(ctx, namingAddress, communication.Message{
		Type: communication.MessageTypeRegister,
		Payload: communication.RegisterRequest{
			StorageAddress: storage.Address,
			CommandAddress: command.Address,
			Paths:          rawPaths,
		},
	})
	if err != nil {
		return nil, err
	}
	if resp.Code != communication.CodeOK {
		return nil, remoteError(resp)
	}

	var out communication.RegisterResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, ErrBadResponse
	}

	duplicates := make([]fspath.Path, 0, len(out.Duplicates))
	for _, raw := range out.Duplicates {
		p, err := fspath.New(raw)
		if err != nil {
			return nil, ErrBadResponse
		}
		duplicates = append(duplicates, p)
	}
	return duplicates, nil
}
