package config

import (
	"fmt"

	"sigs.k8s.io/yaml"

	"github.com/openshift/clockpm-daemon/pkg/clock"
	"github.com/openshift/clockpm-daemon/pkg/utils"
)

// ChipDescriptor describes a chip's clock tree for the generic plugin.
// Sources are listed in power order, lowest first.
type ChipDescriptor struct {
	Name        string             `json:"name"`
	Boot        string             `json:"boot,omitempty"`
	Sources     []SourceConfig     `json:"sources"`
	Compute     []string           `json:"compute,omitempty"`
	Idle        string             `json:"idle,omitempty"`
	Transitions []TransitionConfig `json:"transitions,omitempty"`
}

// SourceConfig ...
type SourceConfig struct {
	Name      string `json:"name"`
	Frequency string `json:"frequency"`
}

// TransitionConfig says that leaving any of From for any of Ends passes
// through Via first.
type TransitionConfig struct {
	From []string `json:"from"`
	Via  []string `json:"via"`
	Ends []string `json:"ends"`
}

// ParseChipDescriptor decodes a descriptor and checks that it builds a table
func ParseChipDescriptor(data []byte) (*ChipDescriptor, error) {
	d := &ChipDescriptor{}
	if err := yaml.UnmarshalStrict(data, d); err != nil {
		return nil, fmt.Errorf("unmarshal chip descriptor: %w", err)
	}
	if _, err := d.Table(); err != nil {
		return nil, err
	}
	return d, nil
}

// Table builds the clock table with its compute, idle and transition rules
func (d *ChipDescriptor) Table() (*clock.Table, error) {
	entries := make([]clock.SourceInfo, 0, len(d.Sources))
	for _, s := range d.Sources {
		hz, err := utils.ParseFrequency(s.Frequency)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", s.Name, err)
		}
		entries = append(entries, clock.SourceInfo{Name: s.Name, Frequency: hz})
	}
	tbl, err := clock.NewTable(entries)
	if err != nil {
		return nil, fmt.Errorf("chip %s: %w", d.Name, err)
	}
	if len(d.Compute) > 0 {
		if err := tbl.SetCompute(d.Compute...); err != nil {
			return nil, fmt.Errorf("chip %s: %w", d.Name, err)
		}
	}
	if d.Idle != "" {
		if err := tbl.SetIdle(d.Idle); err != nil {
			return nil, fmt.Errorf("chip %s: %w", d.Name, err)
		}
	}
	for _, tr := range d.Transitions {
		if err := tbl.AddTransition(tr.From, tr.Via, tr.Ends); err != nil {
			return nil, fmt.Errorf("chip %s: %w", d.Name, err)
		}
	}
	if d.Boot != "" {
		if _, ok := tbl.Lookup(d.Boot); !ok {
			return nil, fmt.Errorf("chip %s: unknown boot source %q", d.Name, d.Boot)
		}
	}
	return tbl, nil
}

// BootSource returns the source the chip starts from, the first one unless
// Boot names another.
func (d *ChipDescriptor) BootSource(tbl *clock.Table) clock.Source {
	if s, ok := tbl.Lookup(d.Boot); ok {
		return s
	}
	return 0
}
