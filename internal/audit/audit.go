// Package audit implements the append-only audit log (spec §3): every
// configuration change, sending-process checkpoint, and purge run writes one
// entry here. The storage service owns the log table; this package only
// knows how to shape and insert an entry.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/weinenglong/foglamp-sendprocess/internal/storageclient"
)

type Level string

const (
	LevelInfo Level = "INFO"
	LevelWarn Level = "WARN"
	LevelFail Level = "FAIL"
)

// Entry is one audit record. Code is 4-5 characters by convention (CONAD,
// CONCH, STRMN, PURGE, ...).
type Entry struct {
	Code  string      `json:"code"`
	Level Level       `json:"level"`
	Data  interface{} `json:"data"`
	TS    time.Time   `json:"ts"`
}

// Logger writes audit entries to the storage service. It never fails the
// caller's operation: insert errors are logged, not propagated, matching
// spec §4.2's "callback failures are logged but do not roll back the
// update" posture extended to audit writes in general.
type Logger struct {
	storage storageclient.Client
	logger  *slog.Logger
}

func New(storage storageclient.Client, logger *slog.Logger) *Logger {
	return &Logger{storage: storage, logger: logger}
}

func (l *Logger) Information(ctx context.Context, code string, data interface{}) {
	l.write(ctx, code, LevelInfo, data)
}

func (l *Logger) Warning(ctx context.Context, code string, data interface{}) {
	l.write(ctx, code, LevelWarn, data)
}

func (l *Logger) Failure(ctx context.Context, code string, data interface{}) {
	l.write(ctx, code, LevelFail, data)
}

func (l *Logger) write(ctx context.Context, code string, level Level, data interface{}) {
	entry := Entry{Code: code, Level: level, Data: data, TS: time.Now().UTC()}

	payload, err := json.Marshal(map[string]interface{}{
		"code":  entry.Code,
		"level": entry.Level,
		"log":   entry.Data,
		"ts":    entry.TS,
	})
	if err != nil {
		l.logger.Error("failed to encode audit entry", "code", code, "error", err)
		return
	}

	if _, err := l.storage.InsertIntoTbl(ctx, "log", payload); err != nil {
		l.logger.Error("failed to write audit entry", "code", code, "error", fmt.Errorf("insert: %w", err))
	}
}
