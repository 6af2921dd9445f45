// Command sendprocess runs the Sending Process for a single stream: it
// fetches readings and drives them through a configured North plugin until
// the stream's configured duration elapses or it is signalled to stop. The
// statistics and audit sources yield no rows; only the readings source
// sends data.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/weinenglong/foglamp-sendprocess/internal/audit"
	"github.com/weinenglong/foglamp-sendprocess/internal/config"
	_ "github.com/weinenglong/foglamp-sendprocess/internal/plugin/httpnorth"
	"github.com/weinenglong/foglamp-sendprocess/internal/plugin/registry"
	"github.com/weinenglong/foglamp-sendprocess/internal/procconfig"
	"github.com/weinenglong/foglamp-sendprocess/internal/sendprocess"
	"github.com/weinenglong/foglamp-sendprocess/internal/statistics"
	"github.com/weinenglong/foglamp-sendprocess/internal/storageclient"
	"github.com/weinenglong/foglamp-sendprocess/internal/streams"
	"github.com/weinenglong/foglamp-sendprocess/pkg/logging"
)

var (
	name           string
	address        string
	port           int
	streamIDFlag   string
	performanceLog bool
	debugLevel     int
	configFile     string
)

func main() {
	root := &cobra.Command{
		Use:   "sendprocess",
		Short: "Run the FogLAMP Sending Process for one stream",
		RunE:  run,
	}

	root.Flags().StringVar(&name, "name", "", "process name, used for logging and the SEND_PR_<id> category description")
	root.Flags().IntVar(&port, "port", 0, "storage microservice port (required)")
	root.Flags().StringVar(&address, "address", "localhost", "storage microservice address")
	root.Flags().StringVar(&streamIDFlag, "stream_id", "", "numeric stream id to send (required)")
	root.Flags().BoolVar(&performanceLog, "performance_log", false, "enable debug-level performance logging")
	root.Flags().IntVar(&debugLevel, "debug_level", 0, "0=warn 1=info 2=debug 3=debug+source")
	root.Flags().StringVar(&configFile, "config", "", "path to a procconfig file")

	root.MarkFlagRequired("port")
	root.MarkFlagRequired("stream_id")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	streamID, err := strconv.ParseInt(streamIDFlag, 10, 64)
	if err != nil {
		return fmt.Errorf("--stream_id must be numeric: %w", err)
	}

	bootCfg, err := procconfig.Load(configFile)
	if err != nil {
		return err
	}

	debug := logging.DebugLevel(debugLevel)
	if performanceLog && debug < logging.LevelDebug {
		debug = logging.LevelDebug
	}
	component := "sendprocess"
	if name != "" {
		component = name
	}
	logger := logging.New(logging.Config{
		Name:     component,
		Debug:    debug,
		JSON:     bootCfg.Log.JSON,
		Filename: bootCfg.Log.Filename,
	})

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

	proc := sendprocess.New(
		sendprocess.Params{
			Name:           name,
			StreamID:       streamID,
			Address:        storageAddress,
			Port:           storagePort,
			PerformanceLog: performanceLog,
			DebugLevel:     debugLevel,
		},
		storage,
		streams.NewRepository(storage),
		statistics.NewRecorder(storage),
		auditLogger,
		manager,
		registry.New,
		logger,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return proc.Run(ctx)
}
