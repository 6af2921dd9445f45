// Package sendprocess implements the Sending Process Core (spec §4.1): a
// fetcher coroutine and a sender coroutine handshaking over a bounded ring
// buffer, with position checkpointing, exponential backoff on failure, and
// duration-bounded graceful shutdown.
package sendprocess

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/weinenglong/foglamp-sendprocess/internal/audit"
	"github.com/weinenglong/foglamp-sendprocess/internal/config"
	"github.com/weinenglong/foglamp-sendprocess/internal/errtypes"
	"github.com/weinenglong/foglamp-sendprocess/internal/plugin"
	"github.com/weinenglong/foglamp-sendprocess/internal/resilience"
	"github.com/weinenglong/foglamp-sendprocess/internal/statistics"
	"github.com/weinenglong/foglamp-sendprocess/internal/storageclient"
	"github.com/weinenglong/foglamp-sendprocess/internal/streams"
	"github.com/weinenglong/foglamp-sendprocess/internal/transform"
)

// categoryDefaults is the SEND_PR_<stream_id> schema (spec §4.4), merged
// with any operator overrides at startup via config.Manager.CreateCategory.
func categoryDefaults(streamID int64) map[string]map[string]string {
	return map[string]map[string]string{
		"enable": {
			"description": "whether this Sending Process runs at all",
			"type":        "boolean",
			"default":     "true",
		},
		"source": {
			"description": "data source to send: readings, statistics, or audit",
			"type":        "string",
			"default":     "readings",
		},
		"blockSize": {
			"description": "number of rows fetched per batch",
			"type":        "integer",
			"default":     "500",
		},
		"memory_buffer_size": {
			"description": "number of in-flight batches the ring buffer holds",
			"type":        "integer",
			"default":     "10",
		},
		"duration": {
			"description": "seconds to run before a clean exit, 0 runs until terminated",
			"type":        "integer",
			"default":     "60",
		},
		"sleepInterval": {
			"description": "upper bound in seconds on the fetcher's backoff wait before polling again after an empty fetch",
			"type":        "integer",
			"default":     "1",
		},
		"north": {
			"description": "name of the registered North plugin to load",
			"type":        "string",
			"default":     "http_north",
		},
		"stream_id": {
			"description": "stream this process sends, fixed at category creation",
			"type":        "integer",
			"default":     strconv.FormatInt(streamID, 10),
		},
		"applyFilter": {
			"description": "whether to apply filterRule to each batch before it is placed in the ring buffer",
			"type":        "boolean",
			"default":     "false",
		},
		"filterRule": {
			"description": "JQ rule applied by the fetcher to a batch when applyFilter is true",
			"type":        "JSON",
			"default":     transform.DefaultRule,
		},
	}
}

// Params are the command-line parameters spec §6 requires.
type Params struct {
	Name            string
	StreamID        int64
	Address         string
	Port            int
	PerformanceLog  bool
	DebugLevel      int
}

// settings holds the SEND_PR_<stream_id> category's current values, parsed.
type settings struct {
	enabled       bool
	source        string
	blockSize     int
	bufferSize    int
	duration      time.Duration
	sleepInterval time.Duration
	pluginName    string
	filter        *transform.Filter
}

// Process is one running instance of the Sending Process for a single
// stream.
type Process struct {
	params   Params
	storage  storageclient.Client
	streams  *streams.Repository
	stats    *statistics.Recorder
	audit    *audit.Logger
	manager  *config.Manager
	registry func(name string) (plugin.NorthPlugin, error)
	logger   *slog.Logger
}

// New wires a Process from its collaborators. registryLookup resolves a
// configured plugin name to an instance; passing registry.New directly from
// internal/plugin/registry satisfies this.
func New(
	params Params,
	storage storageclient.Client,
	streamRepo *streams.Repository,
	stats *statistics.Recorder,
	auditLogger *audit.Logger,
	manager *config.Manager,
	registryLookup func(name string) (plugin.NorthPlugin, error),
	logger *slog.Logger,
) *Process {
	return &Process{
		params:   params,
		storage:  storage,
		streams:  streamRepo,
		stats:    stats,
		audit:    auditLogger,
		manager:  manager,
		registry: registryLookup,
		logger:   logger,
	}
}

const (
	// checkpointEvery mirrors TASK_SEND_UPDATE_POSITION_MAX: the stream
	// position is persisted every N successful sends, or sooner if the
	// buffer runs dry, so a crash never loses more than this many batches
	// of already-sent progress.
	checkpointEvery = 10
)

// Run executes the full startup sequence then the fetcher/sender pair until
// ctx is cancelled or the category's configured duration elapses, whichever
// comes first. Returns nil on a clean exit (including a disabled stream,
// which exits immediately with no error) and a non-nil error for any fatal
// startup failure.
func (p *Process) Run(ctx context.Context) error {
	stream, err := p.streams.Get(ctx, p.params.StreamID)
	if err != nil {
		return err
	}
	if !stream.Active {
		p.logger.Info("stream disabled, exiting", "stream_id", p.params.StreamID)
		return nil
	}

	categoryName := fmt.Sprintf("SEND_PR_%d", p.params.StreamID)
	cat, err := p.manager.CreateCategory(ctx, categoryName, categoryDefaults(p.params.StreamID), "Sending Process "+p.params.Name, true)
	if err != nil {
		return err
	}
	cfg, err := resolveSettings(cat.Items)
	if err != nil {
		return err
	}
	if !cfg.enabled {
		p.logger.Info("sending process disabled, exiting", "stream_id", p.params.StreamID)
		return nil
	}

	northPlugin, err := p.registry(cfg.pluginName)
	if err != nil {
		return err
	}

	pluginCategoryName := categoryName + "_" + cfg.pluginName
	pluginCat, err := p.manager.CreateCategory(ctx, pluginCategoryName, northPlugin.Info().ConfigSchema, "plugin configuration for "+cfg.pluginName, true)
	if err != nil {
		return err
	}

	handle, err := northPlugin.Init(ctx, pluginCat.Items)
	if err != nil {
		return &errtypes.PluginInitFailed{Plugin: cfg.pluginName, Cause: err}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if cfg.duration > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cfg.duration)
		defer cancel()
	}

	buf := newRingBuffer(cfg.bufferSize)
	checkpoint := newCheckpointTracker(stream.LastObject)

	errc := make(chan error, 2)

	go func() {
		errc <- p.fetch(runCtx, cfg, buf, stream.LastObject)
	}()
	go func() {
		errc <- p.send(runCtx, northPlugin, handle, buf, checkpoint)
	}()

	var runErr error
	for i := 0; i < 2; i++ {
		if err := <-errc; err != nil && runErr == nil {
			runErr = err
		}
	}

	if err := p.finalCheckpoint(context.Background(), checkpoint); err != nil {
		p.logger.Error("final checkpoint failed", "error", err)
	}

	shutdownBound := 30 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownBound)
	defer shutdownCancel()
	if err := northPlugin.Shutdown(shutdownCtx, handle); err != nil {
		p.logger.Error("plugin shutdown failed", "plugin", cfg.pluginName, "error", err)
		p.audit.Failure(context.Background(), "STRMN", map[string]interface{}{"stream_id": p.params.StreamID, "error": err.Error()})
		if shutdownCtx.Err() != nil {
			return &errtypes.ShutdownTimeout{Plugin: cfg.pluginName, Bound: shutdownBound.String()}
		}
	}

	return runErr
}

func resolveSettings(items map[string]config.Item) (settings, error) {
	enabled, err := strconv.ParseBool(items["enable"].Value)
	if err != nil {
		return settings{}, &errtypes.ConfigError{Op: "resolve_settings", Detail: "enable must be a boolean", Cause: err}
	}
	blockSize, err := strconv.Atoi(items["blockSize"].Value)
	if err != nil {
		return settings{}, &errtypes.ConfigError{Op: "resolve_settings", Detail: "blockSize must be an integer", Cause: err}
	}
	bufferSize, err := strconv.Atoi(items["memory_buffer_size"].Value)
	if err != nil {
		return settings{}, &errtypes.ConfigError{Op: "resolve_settings", Detail: "memory_buffer_size must be an integer", Cause: err}
	}
	durationSec, err := strconv.Atoi(items["duration"].Value)
	if err != nil {
		return settings{}, &errtypes.ConfigError{Op: "resolve_settings", Detail: "duration must be an integer", Cause: err}
	}
	sleepSec, err := strconv.Atoi(items["sleepInterval"].Value)
	if err != nil {
		return settings{}, &errtypes.ConfigError{Op: "resolve_settings", Detail: "sleepInterval must be an integer", Cause: err}
	}

	var filter *transform.Filter
	if items["applyFilter"].Value == "true" {
		filter, err = transform.Compile(items["filterRule"].Value)
		if err != nil {
			return settings{}, err
		}
	}

	return settings{
		enabled:       enabled,
		source:        items["source"].Value,
		blockSize:     blockSize,
		bufferSize:    bufferSize,
		duration:      time.Duration(durationSec) * time.Second,
		sleepInterval: time.Duration(sleepSec) * time.Second,
		pluginName:    items["north"].Value,
		filter:        filter,
	}, nil
}

// fetch loads batches in order starting after the stream's last checkpoint,
// applying backoff when the source is exhausted or the storage call fails,
// and resetting the backoff whenever it makes progress.
func (p *Process) fetch(ctx context.Context, cfg settings, buf *ringBuffer, startAfter int64) error {
	backoffPolicy := resilience.NewBackoff(500*time.Millisecond, 4)
	lastFetched := startAfter
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		batch, err := p.loadBatch(ctx, cfg, lastFetched)
		if err != nil {
			p.logger.Warn("fetch failed, backing off", "error", err)
			if !sleepOrDone(ctx, backoffPolicy.Next()) {
				return nil
			}
			continue
		}

		if len(batch) == 0 {
			if !sleepOrDone(ctx, minDuration(cfg.sleepInterval, backoffPolicy.Next())) {
				return nil
			}
			continue
		}

		if cfg.filter != nil {
			filtered, err := cfg.filter.Apply(ctx, batch)
			if err != nil {
				p.logger.Warn("filter failed, backing off", "error", err)
				if !sleepOrDone(ctx, backoffPolicy.Next()) {
					return nil
				}
				continue
			}
			batch = filtered
		}

		backoffPolicy.Reset()
		if !buf.Put(ctx, batch) {
			return nil
		}
		lastFetched = batch[len(batch)-1].ID
	}
}

// loadBatch dispatches on the configured source. statistics/audit sources
// are reserved for a later data-path extension: they return an empty batch
// today rather than fabricating a fetch the storage service does not yet
// expose per-id pagination for.
func (p *Process) loadBatch(ctx context.Context, cfg settings, fromIDExclusive int64) ([]storageclient.Reading, error) {
	if cfg.source != "readings" {
		return nil, nil
	}
	return p.storage.Fetch(ctx, fromIDExclusive, cfg.blockSize)
}

// send delivers batches in order, retrying the same slot on failure with
// backoff (at-least-once delivery), and checkpoints the stream position
// every checkpointEvery sends or when the buffer runs dry.
func (p *Process) send(ctx context.Context, north plugin.NorthPlugin, handle plugin.Handle, buf *ringBuffer, checkpoint *checkpointTracker) error {
	backoffPolicy := resilience.NewBackoff(500*time.Millisecond, 4)
	sinceCheckpoint := 0

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		batch, ok := buf.TryPeek()
		if !ok {
			if sinceCheckpoint > 0 {
				if err := p.commitCheckpoint(ctx, checkpoint); err != nil {
					p.logger.Error("checkpoint failed", "error", err)
				}
				sinceCheckpoint = 0
			}
			batch, ok = buf.Peek(ctx)
			if !ok {
				return nil
			}
		}

		ok2, lastID, count, err := north.Send(ctx, handle, batch, int(p.params.StreamID))
		if err != nil || !ok2 {
			p.logger.Warn("send failed, retrying same batch", "stream_id", p.params.StreamID, "error", err)
			if !sleepOrDone(ctx, backoffPolicy.Next()) {
				return nil
			}
			continue
		}

		backoffPolicy.Reset()
		buf.Advance()
		checkpoint.record(lastID, int64(count))
		sinceCheckpoint++

		if sinceCheckpoint >= checkpointEvery {
			if err := p.commitCheckpoint(ctx, checkpoint); err != nil {
				p.logger.Error("checkpoint failed", "error", err)
			}
			sinceCheckpoint = 0
		}
	}
}

func (p *Process) commitCheckpoint(ctx context.Context, checkpoint *checkpointTracker) error {
	lastID, sentCount := checkpoint.snapshot()
	if sentCount == 0 {
		return nil
	}

	if err := p.streams.UpdatePosition(ctx, p.params.StreamID, lastID); err != nil {
		return err
	}
	statKey := fmt.Sprintf("SENT_%d", p.params.StreamID)
	if err := p.stats.Update(ctx, statKey, "readings sent to stream "+p.params.Name, sentCount); err != nil {
		p.logger.Error("statistics update failed", "error", err)
	}
	p.audit.Information(ctx, "STRMN", map[string]interface{}{
		"stream_id":  p.params.StreamID,
		"last_object": lastID,
		"sent":       sentCount,
	})
	checkpoint.commit()
	return nil
}

func (p *Process) finalCheckpoint(ctx context.Context, checkpoint *checkpointTracker) error {
	return p.commitCheckpoint(ctx, checkpoint)
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
