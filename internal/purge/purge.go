// Package purge implements the Purge Task (spec §4.5): age-based then
// size-based removal of readings, bounded below by the slowest stream's
// last confirmed position, with retain-vs-purge handling of rows no stream
// has sent yet.
package purge

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/weinenglong/foglamp-sendprocess/internal/audit"
	"github.com/weinenglong/foglamp-sendprocess/internal/config"
	"github.com/weinenglong/foglamp-sendprocess/internal/errtypes"
	"github.com/weinenglong/foglamp-sendprocess/internal/statistics"
	"github.com/weinenglong/foglamp-sendprocess/internal/storageclient"
	"github.com/weinenglong/foglamp-sendprocess/internal/streams"
)

const categoryName = "PURGE_READ"

// CategoryDefaults is the PURGE_READ schema (spec §4.5).
func CategoryDefaults() map[string]map[string]string {
	return map[string]map[string]string{
		"age": {
			"description": "hours of readings to retain; 0 disables age-based purge",
			"type":        "integer",
			"default":     "72",
		},
		"size": {
			"description": "maximum number of readings to retain; 0 disables size-based purge",
			"type":        "integer",
			"default":     "1000000",
		},
		"retainUnsent": {
			"description": "when true, never purge a reading no stream has sent yet",
			"type":        "boolean",
			"default":     "false",
		},
	}
}

type settings struct {
	ageHours     int
	maxRows      int
	retainUnsent bool
}

// Task runs one purge cycle.
type Task struct {
	storage storageclient.Client
	streams *streams.Repository
	stats   *statistics.Recorder
	audit   *audit.Logger
	manager *config.Manager
	logger  *slog.Logger
}

func NewTask(storage storageclient.Client, streamRepo *streams.Repository, stats *statistics.Recorder, auditLogger *audit.Logger, manager *config.Manager, logger *slog.Logger) *Task {
	return &Task{storage: storage, streams: streamRepo, stats: stats, audit: auditLogger, manager: manager, logger: logger}
}

// Run executes one purge cycle: resolve settings, compute the safety floor,
// purge age-then-size, update statistics, audit only if anything was
// actually removed, then roll statistics up into statistics_history — the
// same periodic-maintenance tick the original co-locates with purging.
func (t *Task) Run(ctx context.Context) error {
	cat, err := t.manager.CreateCategory(ctx, categoryName, CategoryDefaults(), "Purge Task", true)
	if err != nil {
		return err
	}
	cfg, err := resolveSettings(cat.Items)
	if err != nil {
		return err
	}

	sentID, _, err := t.streams.MinLastObject(ctx)
	if err != nil {
		return err
	}

	flag := storageclient.PurgeFlagPurge
	if cfg.retainUnsent {
		flag = storageclient.PurgeFlagRetain
	}

	var totalRemoved, totalUnsentPurged int64

	if cfg.ageHours > 0 {
		result, ok, err := t.purgeOnce(ctx, storageclient.PurgeRequest{
			AgeHours: cfg.ageHours,
			SentID:   sentID,
			Flag:     flag,
		})
		if err != nil {
			return err
		}
		if ok {
			totalRemoved += result.Removed
			totalUnsentPurged += result.UnsentPurged
		}
	}

	if cfg.maxRows > 0 {
		result, ok, err := t.purgeOnce(ctx, storageclient.PurgeRequest{
			MaxRows: cfg.maxRows,
			SentID:  sentID,
			Flag:    flag,
		})
		if err != nil {
			return err
		}
		if ok {
			totalRemoved += result.Removed
			totalUnsentPurged += result.UnsentPurged
		}
	}

	if totalRemoved > 0 {
		if err := t.stats.Update(ctx, "PURGED", "readings purged", totalRemoved); err != nil {
			t.logger.Error("statistics update failed", "key", "PURGED", "error", err)
		}
		if totalUnsentPurged > 0 {
			if err := t.stats.Update(ctx, "UNSNPURGED", "unsent readings purged", totalUnsentPurged); err != nil {
				t.logger.Error("statistics update failed", "key", "UNSNPURGED", "error", err)
			}
		}
		t.audit.Information(ctx, "PURGE", map[string]interface{}{
			"removed":       totalRemoved,
			"unsentPurged":  totalUnsentPurged,
			"retainUnsent":  cfg.retainUnsent,
		})
	}

	if err := t.stats.RollUp(ctx); err != nil {
		t.logger.Error("statistics roll-up failed", "error", err)
	}

	return nil
}

// purgeOnce issues one storage Purge call, treating a semantic 409 as a
// non-fatal deferral to the next cycle rather than a failure.
func (t *Task) purgeOnce(ctx context.Context, req storageclient.PurgeRequest) (*storageclient.PurgeResult, bool, error) {
	result, err := t.storage.Purge(ctx, req)
	if err != nil {
		var conflict *errtypes.StorageConflict
		if errors.As(err, &conflict) {
			t.logger.Info("purge deferred: storage reported a conflict", "detail", conflict.Message)
			return nil, false, nil
		}
		return nil, false, err
	}
	return result, true, nil
}

func resolveSettings(items map[string]config.Item) (settings, error) {
	age, err := strconv.Atoi(items["age"].Value)
	if err != nil {
		return settings{}, &errtypes.ConfigError{Op: "resolve_settings", Detail: "age must be an integer", Cause: err}
	}
	size, err := strconv.Atoi(items["size"].Value)
	if err != nil {
		return settings{}, &errtypes.ConfigError{Op: "resolve_settings", Detail: "size must be an integer", Cause: err}
	}
	return settings{
		ageHours:     age,
		maxRows:      size,
		retainUnsent: items["retainUnsent"].Value == "true",
	}, nil
}
