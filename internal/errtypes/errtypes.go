// Package errtypes defines the error taxonomy every FogLAMP component
// returns: fatal startup errors, retryable storage errors, and plugin
// lifecycle errors, matching the classification a caller needs to decide
// whether to retry, back off, or exit.
package errtypes

import "fmt"

// ConfigError covers bad command-line parameters, invalid category schema,
// an unknown register_interest callback, or a stream id that's missing,
// duplicated, or inactive. Always fatal during startup.
type ConfigError struct {
	Op     string
	Detail string
	Cause  error
}

func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("config error in %s: %s: %v", e.Op, e.Detail, e.Cause)
	}
	return fmt.Sprintf("config error in %s: %s", e.Op, e.Detail)
}

func (e *ConfigError) Unwrap() error { return e.Cause }

// StorageTransient wraps a connection or timeout failure talking to the
// storage service. Callers retry with backoff; it is never fatal on its own.
type StorageTransient struct {
	Op    string
	Cause error
}

func (e *StorageTransient) Error() string {
	return fmt.Sprintf("storage transient error during %s: %v", e.Op, e.Cause)
}

func (e *StorageTransient) Unwrap() error { return e.Cause }

// StorageConflict is a 409 semantic rejection from the storage service, e.g.
// a purge request racing another purge. Non-fatal; the caller skips this
// cycle and retries on the next one.
type StorageConflict struct {
	Op      string
	Message string
}

func (e *StorageConflict) Error() string {
	return fmt.Sprintf("storage conflict during %s: %s", e.Op, e.Message)
}

// PluginInitFailed is raised from plugin.Init. Fatal: the process exits 1
// after auditing the failure.
type PluginInitFailed struct {
	Plugin string
	Cause  error
}

func (e *PluginInitFailed) Error() string {
	return fmt.Sprintf("plugin %q failed to initialize: %v", e.Plugin, e.Cause)
}

func (e *PluginInitFailed) Unwrap() error { return e.Cause }

// PluginSendFailed means a batch was rejected after the plugin's own internal
// retry gave up. Non-fatal: the sender audits it and backs off before
// retrying the same slot.
type PluginSendFailed struct {
	StreamID int
	Cause    error
}

func (e *PluginSendFailed) Error() string {
	return fmt.Sprintf("plugin send failed for stream %d: %v", e.StreamID, e.Cause)
}

func (e *PluginSendFailed) Unwrap() error { return e.Cause }

// TransformFailed means the filter rule produced an error evaluating a
// batch. Treated as a fetcher failure: audited, backed off, retried.
type TransformFailed struct {
	Rule  string
	Cause error
}

func (e *TransformFailed) Error() string {
	return fmt.Sprintf("transform rule %q failed: %v", e.Rule, e.Cause)
}

func (e *TransformFailed) Unwrap() error { return e.Cause }

// ShutdownTimeout means plugin.Shutdown exceeded its bound. Logged and
// audited; the process still exits.
type ShutdownTimeout struct {
	Plugin string
	Bound  string
}

func (e *ShutdownTimeout) Error() string {
	return fmt.Sprintf("plugin %q shutdown exceeded bound %s", e.Plugin, e.Bound)
}
