package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Well-known naming server ports. Storage and command ports are picked
// dynamically unless configured.
const (
	DefaultServicePort      = 6000
	DefaultRegistrationPort = 6001
)

type LogConfig struct {
	Type  string `yaml:"type"`  // "localdisc" or "zap"
	Dir   string `yaml:"dir"`   // log directory for the localdisc logger
	Level string `yaml:"level"` // DEBUG, INFO, WARN, ERROR
}

type ReplicationConfig struct {
	Threshold int `yaml:"threshold"` // read grants before a file replicates
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

type NamingConfig struct {
	NodeID              string            `yaml:"node_id"`
	ServiceAddress      string            `yaml:"service_address"`
	RegistrationAddress string            `yaml:"registration_address"`
	Communicator        string            `yaml:"communicator"` // "http" or "grpc"
	Log                 LogConfig         `yaml:"log"`
	Replication         ReplicationConfig `yaml:"replication"`
}

type StorageConfig struct {
	NodeID         string    `yaml:"node_id"`
	Root           string    `yaml:"root"`
	StorageAddress string    `yaml:"storage_address"`
	CommandAddress string    `yaml:"command_address"`
	NamingAddress  string    `yaml:"naming_address"` // naming server registration endpoint
	Communicator   string    `yaml:"communicator"`
	Log            LogConfig `yaml:"log"`
}

func DefaultNamingConfig() *NamingConfig {
	return &NamingConfig{
		NodeID:              "naming",
		ServiceAddress:      fmt.Sprintf(":%d", DefaultServicePort),
		RegistrationAddress: fmt.Sprintf(":%d", DefaultRegistrationPort),
		Communicator:        "http",
		Log:                 LogConfig{Type: "localdisc", Dir: "./logs", Level: "INFO"},
		Replication:         ReplicationConfig{Threshold: 20, Workers: 4, QueueSize: 64},
	}
}

func DefaultStorageConfig() *StorageConfig {
	return &StorageConfig{
		NodeID:         "storage",
		Root:           "./data",
		StorageAddress: ":0",
		CommandAddress: ":0",
		NamingAddress:  fmt.Sprintf("localhost:%d", DefaultRegistrationPort),
		Communicator:   "http",
		Log:            LogConfig{Type: "localdisc", Dir: "./logs", Level: "INFO"},
	}
}

// LoadNamingConfig reads a naming server config, falling back to defaults for
// an empty path.
func LoadNamingConfig(path string) (*NamingConfig, error) {
	cfg := DefaultNamingConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}

	return cfg, nil
}

// LoadStorageConfig reads a storage server config, falling back to defaults
// for an empty path.
func LoadStorageConfig(path string) (*StorageConfig, error) {
	cfg := DefaultStorageConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseFailed, err)
	}

	return cfg, nil
}
