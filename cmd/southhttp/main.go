// Command southhttp runs the HTTP South Listener: an ingestion endpoint that
// accepts readings over HTTP and inserts them into storage.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/weinenglong/foglamp-sendprocess/internal/procconfig"
	"github.com/weinenglong/foglamp-sendprocess/internal/south"
	"github.com/weinenglong/foglamp-sendprocess/internal/statistics"
	"github.com/weinenglong/foglamp-sendprocess/internal/storageclient"
	"github.com/weinenglong/foglamp-sendprocess/pkg/logging"
)

var (
	storageAddress string
	storagePort    int
	listenHost     string
	listenPort     int
	uri            string
	maxInFlight    int
	configFile     string
)

func main() {
	root := &cobra.Command{
		Use:   "southhttp",
		Short: "Run the HTTP South Listener",
		RunE:  run,
	}

	root.Flags().StringVar(&storageAddress, "storage-address", "localhost", "storage microservice address")
	root.Flags().IntVar(&storagePort, "storage-port", 0, "storage microservice port (required)")
	root.Flags().StringVar(&listenHost, "host", "0.0.0.0", "host to bind the listener to")
	root.Flags().IntVar(&listenPort, "port", 6683, "port to bind the listener to")
	root.Flags().StringVar(&uri, "uri", "/sensor-reading", "ingest URI")
	root.Flags().IntVar(&maxInFlight, "max-in-flight", 100, "maximum concurrent ingest requests before back-pressure")
	root.Flags().StringVar(&configFile, "config", "", "path to a procconfig file")
	root.MarkFlagRequired("storage-port")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	bootCfg, err := procconfig.Load(configFile)
	if err != nil {
		return err
	}

	logger := logging.New(logging.Config{Name: "southhttp", Debug: logging.LevelInfo, JSON: bootCfg.Log.JSON})

	storage := storageclient.NewHTTPClient(storageAddress, storagePort)
	listener := south.NewListener(storage, statistics.NewRecorder(storage), logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return listener.Start(ctx, south.Settings{
		Host:        listenHost,
		Port:        listenPort,
		URI:         uri,
		MaxInFlight: maxInFlight,
	})
}
