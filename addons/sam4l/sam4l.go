// Package sam4l simulates the clock tree of the Atmel SAM4L.
package sam4l

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/openshift/clockpm-daemon/pkg/clock"
	"github.com/openshift/clockpm-daemon/pkg/config"
	"github.com/openshift/clockpm-daemon/pkg/cpm"
	"github.com/openshift/clockpm-daemon/pkg/plugin"
	"github.com/openshift/clockpm-daemon/pkg/utils"
)

// PluginName ...
const PluginName = "sam4l"

// Sources in power order
const (
	RCSYS clock.Source = iota
	RC1M
	RCFAST4M
	RCFAST8M
	RCFAST12M
	EXTOSC
	RC80M
	DFLL
	PLL
)

var sources = []clock.SourceInfo{
	{Name: "RCSYS", Frequency: 115200},
	{Name: "RC1M", Frequency: 1000000},
	{Name: "RCFAST4M", Frequency: 4300000},
	{Name: "RCFAST8M", Frequency: 8200000},
	{Name: "RCFAST12M", Frequency: 12000000},
	{Name: "EXTOSC", Frequency: 16000000},
	{Name: "RC80M", Frequency: 40000000},
	{Name: "DFLL", Frequency: 48000000},
	{Name: "PLL", Frequency: 48000000},
}

// startup times of the oscillators; RCSYS never stops
var settle = map[clock.Source]time.Duration{
	RC1M:      20 * time.Microsecond,
	RCFAST4M:  10 * time.Microsecond,
	RCFAST8M:  10 * time.Microsecond,
	RCFAST12M: 10 * time.Microsecond,
	EXTOSC:    100 * time.Microsecond,
	RC80M:     10 * time.Microsecond,
	DFLL:      200 * time.Microsecond,
	PLL:       150 * time.Microsecond,
}

// NewTable returns the SAM4L clock table with its compute and idle policy.
// RCFAST has a single oscillator, so moving between its frequencies
// retunes it while the core runs from RCSYS.
func NewTable() *clock.Table {
	tbl := clock.MustNewTable(sources)
	mustPolicy(tbl.SetCompute("RC80M"))
	mustPolicy(tbl.SetIdle("RC80M"))
	rcfast := []string{"RCFAST4M", "RCFAST8M", "RCFAST12M"}
	for i, from := range rcfast {
		ends := make([]string, 0, len(rcfast)-1)
		ends = append(ends, rcfast[:i]...)
		ends = append(ends, rcfast[i+1:]...)
		mustPolicy(tbl.AddTransition([]string{from}, []string{"RCSYS"}, ends))
	}
	return tbl
}

func mustPolicy(err error) {
	if err != nil {
		panic(err)
	}
}

// Chip is the simulated SAM4L power manager. Switching waits for the target
// oscillator to report ready and stops the one left behind.
type Chip struct {
	*clock.Simulated

	mu      sync.Mutex
	running clock.Mask
	sleep   func(time.Duration)
	SysTick *SysTick
}

// NewChip returns a chip running from RCSYS, as after reset
func NewChip() *Chip {
	return newChip(time.Sleep)
}

func newChip(sleep func(time.Duration)) *Chip {
	c := &Chip{
		Simulated: clock.NewSimulated(NewTable(), RCSYS),
		running:   RCSYS.Bit(),
		sleep:     sleep,
	}
	c.SysTick = NewSysTick(DefaultTickHertz, c.Simulated.SystemFrequency())
	return c
}

// ApplySystemClock ...
func (c *Chip) ApplySystemClock(s clock.Source) {
	prev := c.Active()
	c.enable(s)
	c.Simulated.ApplySystemClock(s)
	if prev != s && prev != RCSYS {
		c.disable(prev)
	}
}

func (c *Chip) enable(s clock.Source) {
	c.mu.Lock()
	if c.running.Has(s) {
		c.mu.Unlock()
		return
	}
	c.running |= s.Bit()
	c.mu.Unlock()
	if d := settle[s]; d > 0 {
		glog.V(3).Infof("sam4l: waiting %s for %s", d, c.Sources().Name(s))
		c.sleep(d)
	}
}

func (c *Chip) disable(s clock.Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = c.running.Without(s.Bit())
}

// Oscillators returns the sources currently powered
func (c *Chip) Oscillators() clock.Mask {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// SAM4L is the plugin constructor
func SAM4L(name string) (*plugin.Plugin, *interface{}) {
	if name != PluginName {
		glog.Errorf("Plugin must be initialized as '%s'", PluginName)
		return nil, nil
	}
	chip := NewChip()
	var data interface{} = chip
	_plugin := plugin.Plugin{Name: PluginName,
		Chip:                chip,
		OnBoardConfigChange: onBoardConfigChange,
		AfterClockChange:    afterClockChange,
		Describe:            describe,
	}
	return &_plugin, &data
}

func onBoardConfigChange(_ *interface{}, board *config.Board) error {
	if board.ChipDescriptor != nil {
		glog.Warningf("board %s: the SAM4L clock tree is fixed, chipDescriptor ignored", board.Name)
	}
	return nil
}

func afterClockChange(data *interface{}, c cpm.Change) {
	if data == nil {
		return
	}
	chip, ok := (*data).(*Chip)
	if !ok {
		glog.Errorf("sam4l: unexpected plugin data %T", *data)
		return
	}
	chip.SysTick.SetHertz(c.ToFrequency)
}

func describe(data *interface{}) []string {
	chip := (*data).(*Chip)
	tbl := chip.Sources()
	return []string{
		fmt.Sprintf("active %s at %s", tbl.Name(chip.Active()), utils.FormatFrequency(chip.SystemFrequency())),
		"oscillators " + tbl.Names(chip.Oscillators()),
		fmt.Sprintf("systick reload %d for %d Hz", chip.SysTick.Reload(), chip.SysTick.TickHertz()),
		fmt.Sprintf("switches %d", chip.Applied()),
	}
}
