package plugin

import (
	"fmt"
	"sort"

	"github.com/openshift/clockpm-daemon/pkg/clock"
	"github.com/openshift/clockpm-daemon/pkg/config"
	"github.com/openshift/clockpm-daemon/pkg/cpm"
)

// Plugin type
type Plugin struct {
	Name    string
	Options interface{}
	// Chip is set by plugins that drive the system clock
	Chip                clock.Chip
	OnBoardConfigChange OnBoardConfigChange
	AfterClockChange    AfterClockChange
	Describe            Describe
}

// PluginManager type
type PluginManager struct { //nolint:revive
	Plugins map[string]*Plugin
	Data    map[string]*interface{}
}

// New type
type New func(string) (*Plugin, *interface{})

// OnBoardConfigChange type
type OnBoardConfigChange func(*interface{}, *config.Board) error

// AfterClockChange type
type AfterClockChange func(*interface{}, cpm.Change)

// Describe type
type Describe func(*interface{}) []string

// NewPluginManager ...
func NewPluginManager() *PluginManager {
	return &PluginManager{
		Plugins: make(map[string]*Plugin),
		Data:    make(map[string]*interface{}),
	}
}

// Add registers a constructed plugin under its name
func (pm *PluginManager) Add(p *Plugin, data *interface{}) {
	pm.Plugins[p.Name] = p
	pm.Data[p.Name] = data
}

// Chip returns the clock of the single chip plugin
func (pm *PluginManager) Chip() (clock.Chip, string, error) {
	var (
		chip clock.Chip
		name string
	)
	for _, n := range pm.names() {
		p := pm.Plugins[n]
		if p.Chip == nil {
			continue
		}
		if chip != nil {
			return nil, "", fmt.Errorf("plugins %s and %s both provide a chip", name, n)
		}
		chip, name = p.Chip, n
	}
	if chip == nil {
		return nil, "", fmt.Errorf("no chip plugin loaded")
	}
	return chip, name, nil
}

// OnBoardConfigChange is plugin interface
func (pm *PluginManager) OnBoardConfigChange(board *config.Board) error {
	for _, pluginName := range pm.names() {
		pluginFunc := pm.Plugins[pluginName].OnBoardConfigChange
		if pluginFunc != nil {
			if err := pluginFunc(pm.Data[pluginName], board); err != nil {
				return fmt.Errorf("plugin %s: %w", pluginName, err)
			}
		}
	}
	return nil
}

// AfterClockChange is plugin interface
func (pm *PluginManager) AfterClockChange(c cpm.Change) {
	for _, pluginName := range pm.names() {
		pluginFunc := pm.Plugins[pluginName].AfterClockChange
		if pluginFunc != nil {
			pluginFunc(pm.Data[pluginName], c)
		}
	}
}

// Describe is plugin interface
func (pm *PluginManager) Describe() map[string][]string {
	ret := make(map[string][]string)
	for pluginName, pluginObject := range pm.Plugins {
		pluginFunc := pluginObject.Describe
		if pluginFunc != nil {
			ret[pluginName] = pluginFunc(pm.Data[pluginName])
		}
	}
	return ret
}

// names returns the plugin names in a stable order
func (pm *PluginManager) names() []string {
	out := make([]string, 0, len(pm.Plugins))
	for n := range pm.Plugins {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
