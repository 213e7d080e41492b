package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"gopkg.in/yaml.v3"

	namelib "github.com/AnishMulay/namestore/clients/library"
	grpccomm "github.com/AnishMulay/namestore/internal/communication/grpc"
	httpcomm "github.com/AnishMulay/namestore/internal/communication/http"
	"github.com/AnishMulay/namestore/internal/config"
	"github.com/AnishMulay/namestore/internal/log_service"
	"github.com/AnishMulay/namestore/internal/log_service/zaplog"
)

type MCPConfig struct {
	Communicator  string `yaml:"communicator"`
	NamingAddress string `yaml:"naming_address"`
}

func LoadConfig(path string) (*MCPConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		defaultConfig := &MCPConfig{
			Communicator:  "http",
			NamingAddress: fmt.Sprintf("localhost:%d", config.DefaultServicePort),
		}

		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %v", err)
		}

		data, err := yaml.Marshal(defaultConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal default config: %v", err)
		}

		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write default config: %v", err)
		}

		return defaultConfig, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}

	cfg := &MCPConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %v", err)
	}

	return cfg, nil
}

func newClient(cfg *MCPConfig) *namelib.NamingClient {
	ls := zaplog.NewZapLogService("mcp", log_service.ErrorLevel)

	if cfg.Communicator == "grpc" {
		return namelib.NewNamingClient(cfg.NamingAddress, grpccomm.NewGRPCCommunicator("127.0.0.1:0", ls))
	}
	return namelib.NewNamingClient(cfg.NamingAddress, httpcomm.NewHTTPCommunicator("127.0.0.1:0", ls))
}

func addTools(s *server.MCPServer, client *namelib.NamingClient) {
	listTool := mcp.NewTool("list_directory",
		mcp.WithDescription("List the entries of a directory in the distributed filesystem"),
		mcp.WithString("path", mcp.Required(), mcp.Description("Directory path, e.g. /docs")),
	)
	s.AddTool(listTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := request.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		names, err := client.List(ctx, path)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to list %s: %v", path, err)), nil
		}

		result := fmt.Sprintf("Entries of %s:\n", path)
		for _, name := range names {
			result += fmt.Sprintf("- %s\n", name)
		}
		return mcp.NewToolResultText(result), nil
	})

	isDirTool := mcp.NewTool("is_directory",
		mcp.WithDescription("Check whether a path is a directory"),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path to check")),
	)
	s.AddTool(isDirTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := request.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		isDir, err := client.IsDirectory(ctx, path)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to check %s: %v", path, err)), nil
		}

		if isDir {
			return mcp.NewToolResultText(fmt.Sprintf("%s is a directory", path)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("%s is a file", path)), nil
	})

	createFileTool := mcp.NewTool("create_file",
		mcp.WithDescription("Create an empty file on some storage server"),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path to create")),
	)
	s.AddTool(createFileTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := request.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		created, err := client.CreateFile(ctx, path)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to create %s: %v", path, err)), nil
		}
		if !created {
			return mcp.NewToolResultText(fmt.Sprintf("%s already exists", path)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Created %s", path)), nil
	})

	createDirTool := mcp.NewTool("create_directory",
		mcp.WithDescription("Create a directory in the naming server's tree"),
		mcp.WithString("path", mcp.Required(), mcp.Description("Directory path to create")),
	)
	s.AddTool(createDirTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := request.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		created, err := client.CreateDirectory(ctx, path)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to create %s: %v", path, err)), nil
		}
		if !created {
			return mcp.NewToolResultText(fmt.Sprintf("%s already exists", path)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Created directory %s", path)), nil
	})

	deleteTool := mcp.NewTool("delete_path",
		mcp.WithDescription("Delete a file or directory tree from every storage server"),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path to delete")),
	)
	s.AddTool(deleteTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := request.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		deleted, err := client.Delete(ctx, path)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to delete %s: %v", path, err)), nil
		}
		if !deleted {
			return mcp.NewToolResultText(fmt.Sprintf("%s was not deleted", path)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Deleted %s", path)), nil
	})

	getStorageTool := mcp.NewTool("get_storage",
		mcp.WithDescription("Find which storage server holds a file"),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path to locate")),
	)
	s.AddTool(getStorageTool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path, err := request.RequireString("path")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		addr, err := client.GetStorage(ctx, path)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Failed to locate %s: %v", path, err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("%s is stored on %s", path, addr)), nil
	})
}

func main() {
	configPath := os.Getenv("NAMESTORE_MCP_CONFIG")
	if configPath == "" {
		home, _ := os.UserHomeDir()
		configPath = filepath.Join(home, ".namestore", "mcp.yaml")
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"namestore",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	addTools(s, newClient(cfg))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
	}
}
