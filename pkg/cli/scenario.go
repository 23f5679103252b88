// Package cli holds the cpmctl subcommands: describe prints a chip's clock
// table and simulate replays a scripted scenario against a clock manager.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/golang/glog"
	"sigs.k8s.io/yaml"

	"github.com/openshift/clockpm-daemon/pkg/clock"
	"github.com/openshift/clockpm-daemon/pkg/config"
	"github.com/openshift/clockpm-daemon/pkg/cpm"
	"github.com/openshift/clockpm-daemon/pkg/daemon"
	"github.com/openshift/clockpm-daemon/pkg/debug"
	"github.com/openshift/clockpm-daemon/pkg/utils"
)

// Scenario is a scripted sequence of client requests
type Scenario struct {
	Chip     string                `json:"chip"`
	Capacity int                   `json:"capacity,omitempty"`
	Clients  []config.ClientConfig `json:"clients"`
	Steps    []Step                `json:"steps"`
}

// Step is one action. Exactly one field is set.
type Step struct {
	Enable  string `json:"enable,omitempty"`
	Disable string `json:"disable,omitempty"`
	// Set replaces the parameters of the named client
	Set     *config.ClientConfig `json:"set,omitempty"`
	Compute *bool                `json:"compute,omitempty"`
	// Expect fails the run unless the named source is selected
	Expect string `json:"expect,omitempty"`
}

func (s Step) String() string {
	switch {
	case s.Enable != "":
		return "enable " + s.Enable
	case s.Disable != "":
		return "disable " + s.Disable
	case s.Set != nil:
		return "set " + s.Set.Name
	case s.Compute != nil:
		return fmt.Sprintf("compute %t", *s.Compute)
	case s.Expect != "":
		return "expect " + s.Expect
	}
	return "noop"
}

func (s Step) validate() error {
	n := 0
	for _, set := range []bool{s.Enable != "", s.Disable != "", s.Set != nil, s.Compute != nil, s.Expect != ""} {
		if set {
			n++
		}
	}
	if n != 1 {
		return fmt.Errorf("step must have exactly one action, has %d", n)
	}
	return nil
}

// StepResult is the manager state after a step and the callbacks it caused
type StepResult struct {
	Step      string
	Source    string
	Frequency uint32
	LockCount uint32
	Pending   bool
	Callbacks []string
}

// LoadScenario reads a scenario file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseScenario(data)
}

// ParseScenario decodes and checks a scenario
func ParseScenario(data []byte) (*Scenario, error) {
	sc := &Scenario{}
	if err := yaml.UnmarshalStrict(data, sc); err != nil {
		return nil, fmt.Errorf("unmarshal scenario: %w", err)
	}
	if sc.Chip == "" {
		sc.Chip = config.DefaultChip
	}
	if sc.Capacity == 0 {
		sc.Capacity = config.DefaultCapacity
	}
	for i, s := range sc.Steps {
		if err := s.validate(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}
	return sc, nil
}

// scriptClient logs every callback it receives
type scriptClient struct {
	name string
	log  *[]string
}

func (c *scriptClient) Name() string   { return c.name }
func (c *scriptClient) ClockEnabled()  { *c.log = append(*c.log, c.name+":enabled") }
func (c *scriptClient) ClockDisabled() { *c.log = append(*c.log, c.name+":disabled") }
func (c *scriptClient) ConfigureClock(frequency uint32) {
	*c.log = append(*c.log, fmt.Sprintf("%s:configure:%s", c.name, utils.FormatFrequency(frequency)))
}

// changeLog records switches in the same log as the client callbacks
type changeLog struct {
	tbl *clock.Table
	log *[]string
}

func (o *changeLog) ClockChanged(c cpm.Change) {
	*o.log = append(*o.log, fmt.Sprintf("switch:%s->%s", o.tbl.Names(c.From), o.tbl.Name(c.To)))
}

func (o *changeLog) PassCompleted(cpm.Pass) {}

// Run replays sc on the named chip plugin. When trace is not nil the manager
// tree is printed after every step. It stops at the first failing step and
// returns the results up to it.
func Run(sc *Scenario, trace io.Writer) ([]StepResult, error) {
	pm, err := daemon.RegisterPlugins([]string{sc.Chip})
	if err != nil {
		return nil, err
	}
	chip, _, err := pm.Chip()
	if err != nil {
		return nil, err
	}

	var log []string
	obs := &changeLog{log: &log}
	m := cpm.New(chip, sc.Capacity, obs)
	obs.tbl = m.Sources()

	handles := make(map[string]cpm.Handle, len(sc.Clients))
	for _, c := range sc.Clients {
		h, err := m.Register(&scriptClient{name: c.Name, log: &log})
		if err != nil {
			return nil, err
		}
		p, err := c.Resolve(m.Sources())
		if err != nil {
			return nil, err
		}
		if err := p.Apply(m, h); err != nil {
			return nil, err
		}
		handles[c.Name] = h
	}
	handle := func(name string) (cpm.Handle, error) {
		h, ok := handles[name]
		if !ok {
			return cpm.Handle{}, fmt.Errorf("unknown client %s", name)
		}
		return h, nil
	}

	results := make([]StepResult, 0, len(sc.Steps))
	for i, s := range sc.Steps {
		log = nil
		if err := runStep(m, s, handle); err != nil {
			return results, fmt.Errorf("step %d (%s): %w", i, s, err)
		}
		snap := m.Snapshot()
		res := StepResult{
			Step:      s.String(),
			Source:    snap.Sources.Names(snap.Current),
			Frequency: snap.Frequency,
			LockCount: snap.LockCount,
			Pending:   snap.Pending,
			Callbacks: log,
		}
		results = append(results, res)
		glog.V(2).Infof("step %d %s: %s", i, res.Step, strings.Join(res.Callbacks, " "))
		if trace != nil {
			fmt.Fprintf(trace, "# %d %s\n", i, res.Step)
			for _, cb := range res.Callbacks {
				fmt.Fprintf(trace, "  %s\n", cb)
			}
			debug.PrintTree(trace, snap)
		}
		if s.Expect != "" && res.Source != s.Expect {
			return results, fmt.Errorf("step %d: expected %s, clock is on %s", i, s.Expect, res.Source)
		}
	}
	return results, nil
}

func runStep(m *cpm.Manager, s Step, handle func(string) (cpm.Handle, error)) error {
	switch {
	case s.Enable != "":
		h, err := handle(s.Enable)
		if err != nil {
			return err
		}
		_, err = m.EnableClock(h)
		return err
	case s.Disable != "":
		h, err := handle(s.Disable)
		if err != nil {
			return err
		}
		return m.DisableClock(h)
	case s.Set != nil:
		h, err := handle(s.Set.Name)
		if err != nil {
			return err
		}
		p, err := s.Set.Resolve(m.Sources())
		if err != nil {
			return err
		}
		return p.Apply(m, h)
	case s.Compute != nil:
		m.SetComputeMode(*s.Compute)
	}
	return nil
}
