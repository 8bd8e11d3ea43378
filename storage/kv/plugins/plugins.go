package plugins

import (
	"github.com/jrife/roost/storage/kv"
	"github.com/jrife/roost/storage/kv/plugins/badger"
	"github.com/jrife/roost/storage/kv/plugins/bbolt"
	"github.com/jrife/roost/storage/kv/plugins/leveldb"
	"github.com/jrife/roost/storage/kv/plugins/memory"
)

var plugins []kv.Plugin

func init() {
	plugins = append(plugins, bbolt.Plugins()...)
	plugins = append(plugins, badger.Plugins()...)
	plugins = append(plugins, leveldb.Plugins()...)
	plugins = append(plugins, memory.Plugins()...)
}

// Plugin returns the plugin whose name matches the given name.
// It returns nil if no such plugin is found.
func Plugin(name string) kv.Plugin {
	for _, plugin := range plugins {
		if plugin.Name() == name {
			return plugin
		}
	}

	return nil
}

// Plugins lists all the plugins that are available
func Plugins() []kv.Plugin {
	return plugins
}
