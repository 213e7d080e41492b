package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	namelib "github.com/AnishMulay/namestore/clients/library"
	"github.com/AnishMulay/namestore/internal/communication"
	grpccomm "github.com/AnishMulay/namestore/internal/communication/grpc"
	httpcomm "github.com/AnishMulay/namestore/internal/communication/http"
	"github.com/AnishMulay/namestore/internal/config"
	"github.com/AnishMulay/namestore/internal/log_service"
	"github.com/AnishMulay/namestore/internal/log_service/localdisc"
	"github.com/AnishMulay/namestore/internal/log_service/zaplog"
	"github.com/AnishMulay/namestore/internal/metadata_service"
	"github.com/AnishMulay/namestore/internal/naming_service"
	"github.com/AnishMulay/namestore/internal/replication_service"
	"github.com/AnishMulay/namestore/internal/server"
	"github.com/AnishMulay/namestore/internal/storage_client"
	"github.com/AnishMulay/namestore/internal/storage_registry"
	"github.com/AnishMulay/namestore/internal/storage_service"
)

var (
	configFile string
	namingAddr string
	verbose    bool
)

const clientTimeout = 30 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:   "namestore",
		Short: "Distributed filesystem naming service",
		Long: `A naming server that maintains a global directory tree over a set of
storage servers, with hierarchical locking, read-driven replication, and
write-time invalidation. Run the naming server, storage servers, and the
client commands from this one binary.`,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&namingAddr, "naming", "n", fmt.Sprintf("localhost:%d", config.DefaultServicePort), "naming server service address")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	rootCmd.AddCommand(
		namingCmd(),
		storageCmd(),
		lsCmd(),
		mkdirCmd(),
		touchCmd(),
		rmCmd(),
		statCmd(),
		locateCmd(),
		catCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogService(cfg config.LogConfig, nodeID string) log_service.LogService {
	level := cfg.Level
	if verbose {
		level = log_service.DebugLevel
	}

	if cfg.Type == "zap" {
		return zaplog.NewZapLogService(nodeID, level)
	}

	dir := cfg.Dir
	if dir == "" {
		dir = "./logs"
	}
	return localdisc.NewLocalDiscLogService(dir, nodeID, level)
}

func newCommunicator(kind, addr string, ls log_service.LogService) communication.Communicator {
	if kind == "grpc" {
		return grpccomm.NewGRPCCommunicator(addr, ls)
	}
	return httpcomm.NewHTTPCommunicator(addr, ls)
}

func namingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "naming",
		Short: "Run the naming server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadNamingConfig(configFile)
			if err != nil {
				return err
			}

			ls := newLogService(cfg.Log, cfg.NodeID)
			serviceComm := newCommunicator(cfg.Communicator, cfg.ServiceAddress, ls)
			registrationComm := newCommunicator(cfg.Communicator, cfg.RegistrationAddress, ls)

			md := metadata_service.NewInMemoryMetadataService(ls)
			registry := storage_registry.NewInMemoryStorageRegistry()
			commands := storage_client.NewCommandClient(serviceComm)
			replicator := replication_service.NewDefaultReplicationService(commands, md, ls, cfg.Replication.Workers, cfg.Replication.QueueSize)
			svc := naming_service.NewDefaultNamingService(md, registry, replicator, commands, ls, cfg.Replication.Threshold)

			srv := server.NewNamingServer(serviceComm, registrationComm, svc, ls)
			srv.OnStopped = func(err error) {
				if err != nil {
					fmt.Fprintf(os.Stderr, "naming server stopped: %v\n", err)
				}
			}

			if err := srv.Start(); err != nil {
				return err
			}
			fmt.Printf("naming server listening on %s (service) and %s (registration)\n",
				serviceComm.Address(), registrationComm.Address())

			waitForSignal()

			replicator.Stop()
			return srv.Stop()
		},
	}
}

func storageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "storage",
		Short: "Run a storage server and register it with the naming server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadStorageConfig(configFile)
			if err != nil {
				return err
			}

			ls := newLogService(cfg.Log, cfg.NodeID)
			storageComm := newCommunicator(cfg.Communicator, cfg.StorageAddress, ls)
			commandComm := newCommunicator(cfg.Communicator, cfg.CommandAddress, ls)

			if err := os.MkdirAll(cfg.Root, 0755); err != nil {
				return err
			}
			ss := storage_service.NewLocalDiscStorageService(cfg.Root, ls)

			srv := server.NewStorageServer(storageComm, commandComm, ss, cfg.NamingAddress, cfg.Root, ls)
			srv.OnStopped = func(err error) {
				if err != nil {
					fmt.Fprintf(os.Stderr, "storage server stopped: %v\n", err)
				}
			}

			if err := srv.Start(); err != nil {
				return err
			}
			fmt.Printf("storage server listening on %s (storage) and %s (command), serving %s\n",
				storageComm.Address(), commandComm.Address(), cfg.Root)

			waitForSignal()

			return srv.Stop()
		},
	}
}

func waitForSignal() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}

func newClient() (*namelib.NamingClient, *namelib.StorageClient) {
	ls := zaplog.NewZapLogService("client", log_service.ErrorLevel)
	comm := httpcomm.NewHTTPCommunicator("127.0.0.1:0", ls)
	return namelib.NewNamingClient(namingAddr, comm), namelib.NewStorageClient(comm)
}

func lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <path>",
		Short: "List a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _ := newClient()
			ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
			defer cancel()

			names, err := client.List(ctx, args[0])
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}
}

func mkdirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <path>",
		Short: "Create a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _ := newClient()
			ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
			defer cancel()

			created, err := client.CreateDirectory(ctx, args[0])
			if err != nil {
				return err
			}
			if !created {
				fmt.Printf("%s already exists\n", args[0])
			}
			return nil
		},
	}
}

func touchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "touch <path>",
		Short: "Create an empty file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _ := newClient()
			ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
			defer cancel()

			created, err := client.CreateFile(ctx, args[0])
			if err != nil {
				return err
			}
			if !created {
				fmt.Printf("%s already exists\n", args[0])
			}
			return nil
		},
	}
}

func rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a file or directory tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _ := newClient()
			ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
			defer cancel()

			deleted, err := client.Delete(ctx, args[0])
			if err != nil {
				return err
			}
			if !deleted {
				fmt.Printf("%s was not deleted\n", args[0])
			}
			return nil
		},
	}
}

func statCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Show whether a path is a file or directory, and its size",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, storage := newClient()
			ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
			defer cancel()

			isDir, err := client.IsDirectory(ctx, args[0])
			if err != nil {
				return err
			}
			if isDir {
				fmt.Printf("%s: directory\n", args[0])
				return nil
			}

			addr, err := client.GetStorage(ctx, args[0])
			if err != nil {
				return err
			}
			size, err := storage.Size(ctx, addr, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s: file, %d bytes on %s\n", args[0], size, addr)
			return nil
		},
	}
}

func locateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "locate <path>",
		Short: "Print the storage server address holding a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _ := newClient()
			ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
			defer cancel()

			addr, err := client.GetStorage(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Println(addr)
			return nil
		},
	}
}

func catCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path>",
		Short: "Print a file's contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, storage := newClient()
			ctx, cancel := context.WithTimeout(context.Background(), clientTimeout)
			defer cancel()

			addr, err := client.GetStorage(ctx, args[0])
			if err != nil {
				return err
			}
			size, err := storage.Size(ctx, addr, args[0])
			if err != nil {
				return err
			}
			data, err := storage.Read(ctx, addr, args[0], 0, size)
			if err != nil {
				return err
			}
			os.Stdout.Write(data)
			return nil
		},
	}
}
