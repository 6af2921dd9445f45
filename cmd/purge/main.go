// Command purge runs one Purge Task cycle against the storage microservice:
// age-based then size-based removal of readings, bounded by the slowest
// stream's last confirmed position.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/weinenglong/foglamp-sendprocess/internal/audit"
	"github.com/weinenglong/foglamp-sendprocess/internal/config"
	"github.com/weinenglong/foglamp-sendprocess/internal/procconfig"
	"github.com/weinenglong/foglamp-sendprocess/internal/purge"
	"github.com/weinenglong/foglamp-sendprocess/internal/statistics"
	"github.com/weinenglong/foglamp-sendprocess/internal/storageclient"
	"github.com/weinenglong/foglamp-sendprocess/internal/streams"
	"github.com/weinenglong/foglamp-sendprocess/pkg/logging"
)

var (
	address    string
	port       int
	configFile string
	jsonLog    bool
)

func main() {
	root := &cobra.Command{
		Use:   "purge",
		Short: "Run one Purge Task cycle",
		RunE:  run,
	}

	root.Flags().StringVar(&address, "address", "localhost", "storage microservice address")
	root.Flags().IntVar(&port, "port", 0, "storage microservice port (required)")
	root.Flags().StringVar(&configFile, "config", "", "path to a procconfig file")
	root.Flags().BoolVar(&jsonLog, "json", false, "emit JSON-formatted logs")
	root.MarkFlagRequired("port")

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

	logger := logging.New(logging.Config{Name: "purge", Debug: logging.LevelInfo, JSON: jsonLog || bootCfg.Log.JSON})

	storageAddress := address
	if !cmd.Flags().Changed("address") && bootCfg.Storage.Address != "" {
		storageAddress = bootCfg.Storage.Address
	}
	storagePort := port
	if !cmd.Flags().Changed("port") {
		storagePort = bootCfg.Storage.Port
	}

	storage := storageclient.NewHTTPClient(storageAddress, storagePort)
	auditLogger := audit.New(storage, logger)
	manager, err := config.New(storage, auditLogger, logger)
	if err != nil {
		return err
	}

	task := purge.NewTask(storage, streams.NewRepository(storage), statistics.NewRecorder(storage), auditLogger, manager, logger)
	return task.Run(cmd.Context())
}
