package daemon

import (
	"fmt"

	"github.com/golang/glog"

	mapping "github.com/openshift/clockpm-daemon/addons"
	"github.com/openshift/clockpm-daemon/pkg/plugin"
)

// RegisterPlugins builds the named plugins. Unknown names are errors since
// the daemon can not run without its chip.
func RegisterPlugins(plugins []string) (*plugin.PluginManager, error) {
	glog.Infof("Begin plugin registration...")
	manager := plugin.NewPluginManager()
	for _, name := range plugins {
		currentPlugin, currentData := registerPlugin(name)
		if currentPlugin == nil {
			return nil, fmt.Errorf("plugin %s not found", name)
		}
		manager.Add(currentPlugin, currentData)
	}
	return manager, nil
}

func registerPlugin(name string) (*plugin.Plugin, *interface{}) {
	glog.Infof("Trying to register plugin: " + name)
	for mName, mConstructor := range mapping.PluginMapping {
		if mName == name {
			return mConstructor(name)
		}
	}
	glog.Errorf("Plugin not found: " + name)
	return nil, nil
}
