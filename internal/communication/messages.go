package communication

import "reflect"

// Message type constants. Each remote interface gets its own prefix: naming_*
// is the client-facing service port, registration_* is the storage-server
// facing port, command_* is a storage server's mutation port, and storage_* is
// its data port.
const (
	// Naming service operations (client -> naming)
	MessageTypeLock            = "naming_lock"
	MessageTypeUnlock          = "naming_unlock"
	MessageTypeIsDirectory     = "naming_is_directory"
	MessageTypeList            = "naming_list"
	MessageTypeCreateFile      = "naming_create_file"
	MessageTypeCreateDirectory = "naming_create_directory"
	MessageTypeDelete          = "naming_delete"
	MessageTypeGetStorage      = "naming_get_storage"

	// Registration operations (storage -> naming)
	MessageTypeRegister = "registration_register"

	// Command operations (naming -> storage)
	MessageTypeCommandCreate = "command_create"
	MessageTypeCommandDelete = "command_delete"
	MessageTypeCommandCopy   = "command_copy"

	// Storage data operations (client -> storage)
	MessageTypeStorageSize  = "storage_size"
	MessageTypeStorageRead  = "storage_read"
	MessageTypeStorageWrite = "storage_write"
)

// --- Naming service payloads ---

type LockRequest struct {
	Path      string `json:"path"`
	Exclusive bool   `json:"exclusive"`
}

type UnlockRequest struct {
	Path      string `json:"path"`
	Exclusive bool   `json:"exclusive"`
}

type IsDirectoryRequest struct {
	Path string `json:"path"`
}

type IsDirectoryResponse struct {
	IsDirectory bool `json:"isDirectory"`
}

type ListRequest struct {
	Path string `json:"path"`
}

type ListResponse struct {
	Names []string `json:"names"`
}

type CreateFileRequest struct {
	Path string `json:"path"`
}

type CreateFileResponse struct {
	Created bool `json:"created"`
}

type CreateDirectoryRequest struct {
	Path string `json:"path"`
}

type CreateDirectoryResponse struct {
	Created bool `json:"created"`
}

type DeleteRequest struct {
	Path string `json:"path"`
}

type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}

type GetStorageRequest struct {
	Path string `json:"path"`
}

type GetStorageResponse struct {
	Address string `json:"address"`
}

// --- Registration payloads ---

type RegisterRequest struct {
	StorageAddress string   `json:"storageAddress"`
	CommandAddress string   `json:"commandAddress"`
	Paths          []string `json:"paths"`
}

type RegisterResponse struct {
	Duplicates []string `json:"duplicates"`
}

// --- Command payloads ---

type CommandCreateRequest struct {
	Path string `json:"path"`
}

type CommandCreateResponse struct {
	Created bool `json:"created"`
}

type CommandDeleteRequest struct {
	Path string `json:"path"`
}

type CommandDeleteResponse struct {
	Deleted bool `json:"deleted"`
}

type CommandCopyRequest struct {
	Path          string `json:"path"`
	SourceAddress string `json:"sourceAddress"`
}

type CommandCopyResponse struct {
	Copied bool `json:"copied"`
}

// --- Storage data payloads ---

type StorageSizeRequest struct {
	Path string `json:"path"`
}

type StorageSizeResponse struct {
	Size int64 `json:"size"`
}

type StorageReadRequest struct {
	Path   string `json:"path"`
	Offset int64  `json:"offset"`
	Length int64  `json:"length"`
}

type StorageReadResponse struct {
	Data []byte `json:"data"`
}

type StorageWriteRequest struct {
	Path   string `json:"path"`
	Offset int64  `json:"offset"`
	Data   []byte `json:"data"`
}

// DefaultPayloadTypes maps every message type to the struct its payload
// decodes into. Communicator implementations seed their payload registry from
// this table.
func DefaultPayloadTypes() map[string]reflect.Type {
	return map[string]reflect.Type{
		MessageTypeLock:            reflect.TypeOf((*LockRequest)(nil)).Elem(),
		MessageTypeUnlock:          reflect.TypeOf((*UnlockRequest)(nil)).Elem(),
		MessageTypeIsDirectory:     reflect.TypeOf((*IsDirectoryRequest)(nil)).Elem(),
		MessageTypeList:            reflect.TypeOf((*ListRequest)(nil)).Elem(),
		MessageTypeCreateFile:      reflect.TypeOf((*CreateFileRequest)(nil)).Elem(),
		MessageTypeCreateDirectory: reflect.TypeOf((*CreateDirectoryRequest)(nil)).Elem(),
		MessageTypeDelete:          reflect.TypeOf((*DeleteRequest)(nil)).Elem(),
		MessageTypeGetStorage:      reflect.TypeOf((*GetStorageRequest)(nil)).Elem(),
		MessageTypeRegister:        reflect.TypeOf((*RegisterRequest)(nil)).Elem(),
		MessageTypeCommandCreate:   reflect.TypeOf((*CommandCreateRequest)(nil)).Elem(),
		MessageTypeCommandDelete:   reflect.TypeOf((*CommandDeleteRequest)(nil)).Elem(),
		MessageTypeCommandCopy:     reflect.TypeOf((*CommandCopyRequest)(nil)).Elem(),
		MessageTypeStorageSize:     reflect.TypeOf((*StorageSizeRequest)(nil)).Elem(),
		MessageTypeStorageRead:     reflect.TypeOf((*StorageReadRequest)(nil)).Elem(),
		MessageTypeStorageWrite:    reflect.TypeOf((*StorageWriteRequest)(nil)).Elem(),
	}
}
