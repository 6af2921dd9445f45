// Package registry resolves a configured plugin name to a constructor, the
// "load plugin by name" step of the Sending Process startup sequence (spec
// §4.1).
package registry

import (
	"sort"
	"sync"

	"github.com/weinenglong/foglamp-sendprocess/internal/errtypes"
	"github.com/weinenglong/foglamp-sendprocess/internal/plugin"
)

// Factory constructs a fresh plugin instance. Plugins are stateless between
// streams, so New() is called once per Sending Process startup.
type Factory func() plugin.NorthPlugin

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register adds name to the registry. Intended to be called from an init()
// in the plugin's own package.
func Register(name string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[name] = factory
}

// New constructs the named plugin, validating it declares info.type=="north"
// (spec §4.7 invariant) before returning it.
func New(name string) (plugin.NorthPlugin, error) {
	mu.RLock()
	factory, ok := factories[name]
	mu.RUnlock()
	if !ok {
		return nil, &errtypes.PluginInitFailed{Plugin: name, Cause: errUnknownPlugin(name)}
	}

	p := factory()
	info := p.Info()
	if info.Type != "north" {
		return nil, &errtypes.PluginInitFailed{Plugin: name, Cause: errWrongType(info.Type)}
	}
	return p, nil
}

// Names returns every registered plugin name, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type pluginError string

func (e pluginError) Error() string { return string(e) }

func errUnknownPlugin(name string) error {
	return pluginError("unknown plugin: " + name)
}

func errWrongType(t string) error {
	return pluginError("plugin is not a north plugin, got type: " + t)
}
