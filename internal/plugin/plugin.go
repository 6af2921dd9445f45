// Package plugin defines the Plugin Contract (spec §4.7): the
// {info, init, send, shutdown} lifecycle every North destination
// implements, plus the registry the Sending Process resolves a configured
// plugin name through.
package plugin

import (
	"context"

	"github.com/weinenglong/foglamp-sendprocess/internal/config"
	"github.com/weinenglong/foglamp-sendprocess/internal/storageclient"
)

// Info is the static descriptor a plugin returns from Info(), used to
// validate it is a North plugin before the Sending Process calls Init.
type Info struct {
	Name        string
	Version     string
	Type        string // must be "north"
	Interface   string
	ConfigSchema map[string]map[string]string
}

// Handle is an opaque value a plugin's Init returns and every later call
// receives back; its shape is private to the plugin implementation.
type Handle interface{}

// NorthPlugin is the contract every destination plugin implements.
type NorthPlugin interface {
	Info() Info

	// Init receives the plugin's merged configuration category and
	// returns a handle passed to every subsequent call.
	Init(ctx context.Context, cfg map[string]config.Item) (Handle, error)

	// Send delivers one batch for streamID. ok indicates whether the
	// destination accepted the whole batch; lastID/count report how much of
	// the batch was confirmed, since a plugin may partially succeed before
	// failing.
	Send(ctx context.Context, handle Handle, batch []storageclient.Reading, streamID int) (ok bool, lastID int64, count int, err error)

	Shutdown(ctx context.Context, handle Handle) error
}

// Reconfigurable is an optional interface a plugin may additionally
// implement to receive live configuration changes without a restart,
// matching the register_interest callback the Configuration Manager offers.
type Reconfigurable interface {
	Reconfigure(ctx context.Context, handle Handle, cfg map[string]config.Item) (Handle, error)
}
