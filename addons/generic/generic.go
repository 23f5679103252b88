package generic

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/golang/glog"

	"github.com/openshift/clockpm-daemon/pkg/clock"
	"github.com/openshift/clockpm-daemon/pkg/config"
	"github.com/openshift/clockpm-daemon/pkg/cpm"
	"github.com/openshift/clockpm-daemon/pkg/plugin"
	"github.com/openshift/clockpm-daemon/pkg/utils"
)

// Embedded chip descriptors baked into the binary.

//go:embed descriptors/reference.yaml
var referenceYAML []byte

// embeddedDescriptors maps plugin name -> raw YAML contents
var embeddedDescriptors = map[string][]byte{
	"reference": referenceYAML,
}

// Chip is a simulated chip built from a descriptor. A board file may replace
// the descriptor until the chip's table has been handed out.
type Chip struct {
	mu     sync.Mutex
	desc   *config.ChipDescriptor
	sim    *clock.Simulated
	frozen bool
}

// NewChip builds a chip from desc
func NewChip(desc *config.ChipDescriptor) (*Chip, error) {
	c := &Chip{}
	if err := c.Load(desc); err != nil {
		return nil, err
	}
	return c, nil
}

// Load replaces the descriptor. It fails once Sources has been called.
func (c *Chip) Load(desc *config.ChipDescriptor) error {
	tbl, err := desc.Table()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.frozen {
		return fmt.Errorf("chip %s is in use, restart to load %s", c.desc.Name, desc.Name)
	}
	c.desc = desc
	c.sim = clock.NewSimulated(tbl, desc.BootSource(tbl))
	glog.Infof("generic chip %s: %d sources, boots from %s", desc.Name, tbl.Len(), tbl.Name(desc.BootSource(tbl)))
	return nil
}

func (c *Chip) simulated() *clock.Simulated {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sim
}

// Sources freezes the descriptor
func (c *Chip) Sources() *clock.Table {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frozen = true
	return c.sim.Sources()
}

func (c *Chip) MaxFrequency() uint32               { return c.simulated().MaxFrequency() }
func (c *Chip) FrequencyFor(s clock.Source) uint32 { return c.simulated().FrequencyFor(s) }
func (c *Chip) ApplySystemClock(s clock.Source)    { c.simulated().ApplySystemClock(s) }
func (c *Chip) SystemFrequency() uint32            { return c.simulated().SystemFrequency() }

func (c *Chip) Intermediates(current clock.Mask) []clock.Transition {
	return c.simulated().Intermediates(current)
}

// Name of the loaded descriptor
func (c *Chip) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.desc.Name
}

// LoadDescriptor returns an embedded descriptor by name
func LoadDescriptor(name string) (*config.ChipDescriptor, error) {
	data, ok := embeddedDescriptors[name]
	if !ok || len(data) == 0 {
		return nil, fmt.Errorf("no embedded chip descriptor %q", name)
	}
	d, err := config.ParseChipDescriptor(data)
	if err != nil {
		return nil, fmt.Errorf("embedded:%s: %w", name, err)
	}
	return d, nil
}

func onBoardConfigChangeGeneric(data *interface{}, board *config.Board) error {
	if board.ChipDescriptor == nil {
		return nil
	}
	chip := (*data).(*Chip)
	if err := chip.Load(board.ChipDescriptor); err != nil {
		glog.Warningf("board %s: %v", board.Name, err)
	}
	return nil
}

func afterClockChangeGeneric(data *interface{}, c cpm.Change) {
	chip := (*data).(*Chip)
	glog.V(2).Infof("%s: now at %s", chip.Name(), utils.FormatFrequency(c.ToFrequency))
}

func describeGeneric(data *interface{}) []string {
	chip := (*data).(*Chip)
	sim := chip.simulated()
	tbl := sim.Sources()
	return []string{
		fmt.Sprintf("descriptor %s", chip.Name()),
		fmt.Sprintf("active %s at %s", tbl.Name(sim.Active()), utils.FormatFrequency(sim.SystemFrequency())),
		fmt.Sprintf("switches %d", sim.Applied()),
	}
}

// Reference is the plugin constructor for the embedded reference chip
func Reference(name string) (*plugin.Plugin, *interface{}) {
	if name != "reference" {
		glog.Errorf("Plugin must be initialized as 'reference'")
		return nil, nil
	}
	desc, err := LoadDescriptor(name)
	if err != nil {
		glog.Errorf("reference plugin: %v", err)
		return nil, nil
	}
	chip, err := NewChip(desc)
	if err != nil {
		glog.Errorf("reference plugin: %v", err)
		return nil, nil
	}
	var data interface{} = chip
	_plugin := plugin.Plugin{Name: "reference",
		Chip:                chip,
		OnBoardConfigChange: onBoardConfigChangeGeneric,
		AfterClockChange:    afterClockChangeGeneric,
		Describe:            describeGeneric,
	}
	return &_plugin, &data
}
