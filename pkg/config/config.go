// Package config holds the daemon defaults and the board file: the chip
// plugin to load and the peripheral clients wired to it.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/golang/glog"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"

	"github.com/openshift/clockpm-daemon/pkg/clock"
	"github.com/openshift/clockpm-daemon/pkg/cpm"
	"github.com/openshift/clockpm-daemon/pkg/utils"
)

const (
	DefaultBoardPath   = "/etc/clockpm/board.yaml"
	DefaultBoardName   = "devboard"
	DefaultChip        = "sam4l"
	DefaultCapacity    = 10
	DefaultMetricsAddr = ":9091"
	DefaultReadyAddr   = ":8081"
)

// client kinds
const (
	KindSPI     = "spi"
	KindSampler = "sampler"
	KindCompute = "compute"
)

// Board is the parsed board file
type Board struct {
	Name     string   `json:"name"`
	Chip     string   `json:"chip"`
	Plugins  []string `json:"plugins,omitempty"`
	Capacity int      `json:"capacity,omitempty"`
	// ChipDescriptor replaces the embedded table of a generic chip
	ChipDescriptor *ChipDescriptor `json:"chipDescriptor,omitempty"`
	Clients        []ClientConfig  `json:"clients"`
}

// ClientConfig describes one simulated peripheral and its clock needs
type ClientConfig struct {
	Name         string          `json:"name"`
	Kind         string          `json:"kind"`
	Sources      []string        `json:"sources,omitempty"`
	Preferred    []string        `json:"preferred,omitempty"`
	MinFrequency string          `json:"minFrequency,omitempty"`
	MaxFrequency string          `json:"maxFrequency,omitempty"`
	NeedLock     *bool           `json:"needLock,omitempty"`
	Period       metav1.Duration `json:"period,omitempty"`
	Busy         metav1.Duration `json:"busy,omitempty"`
	// BaudRate is the bus rate an SPI client derives its divider for
	BaudRate uint32 `json:"baudRate,omitempty"`
}

// ClientParams are the manager settings of a client resolved against a table
type ClientParams struct {
	Sources      clock.Mask
	Preferred    clock.Mask
	MinFrequency uint32
	MaxFrequency uint32
	NeedLock     bool
}

// Load reads and validates a board file
func Load(path string) (*Board, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read board file: %w", err)
	}
	b, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	glog.Infof("board %s loaded from %s: chip %s, %d clients", b.Name, path, b.Chip, len(b.Clients))
	return b, nil
}

// Parse decodes a board from YAML and fills defaults
func Parse(data []byte) (*Board, error) {
	b := &Board{}
	if err := yaml.UnmarshalStrict(data, b); err != nil {
		return nil, fmt.Errorf("unmarshal board: %w", err)
	}
	b.setDefaults()
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// Default is the board used when no board file is given
func Default() *Board {
	b := &Board{}
	b.setDefaults()
	return b
}

func (b *Board) setDefaults() {
	if b.Name == "" {
		b.Name = DefaultBoardName
	}
	if b.Chip == "" {
		b.Chip = DefaultChip
	}
	if b.Capacity == 0 {
		b.Capacity = DefaultCapacity
	}
	for i := range b.Clients {
		c := &b.Clients[i]
		if c.NeedLock == nil {
			needLock := c.Kind != KindSampler
			c.NeedLock = &needLock
		}
	}
}

// Validate checks what can be checked without the chip table
func (b *Board) Validate() error {
	if b.Capacity < 0 {
		return fmt.Errorf("capacity %d is negative", b.Capacity)
	}
	if len(b.Clients) > b.Capacity {
		return fmt.Errorf("%d clients do not fit capacity %d", len(b.Clients), b.Capacity)
	}
	seen := make(map[string]bool, len(b.Clients))
	for _, c := range b.Clients {
		if c.Name == "" {
			return fmt.Errorf("client without a name")
		}
		if seen[c.Name] {
			return fmt.Errorf("client %s declared twice", c.Name)
		}
		seen[c.Name] = true
		switch c.Kind {
		case KindSPI, KindSampler, KindCompute:
		default:
			return fmt.Errorf("client %s: unknown kind %q", c.Name, c.Kind)
		}
		if c.Period.Duration < 0 || c.Busy.Duration < 0 {
			return fmt.Errorf("client %s: negative period or busy time", c.Name)
		}
	}
	if b.ChipDescriptor != nil {
		if _, err := b.ChipDescriptor.Table(); err != nil {
			return fmt.Errorf("chip descriptor: %w", err)
		}
	}
	return nil
}

// Client returns the named client config
func (b *Board) Client(name string) (ClientConfig, bool) {
	for _, c := range b.Clients {
		if c.Name == name {
			return c, true
		}
	}
	return ClientConfig{}, false
}

// Resolve maps source names and frequency strings onto tbl. An empty source
// list means every source, an empty maximum means the fastest source.
func (c ClientConfig) Resolve(tbl *clock.Table) (ClientParams, error) {
	p := ClientParams{
		Sources:      tbl.All(),
		MaxFrequency: tbl.MaxFrequency(),
		NeedLock:     c.NeedLock == nil || *c.NeedLock,
	}
	var err error
	if len(c.Sources) > 0 {
		if p.Sources, err = tbl.MaskByName(c.Sources...); err != nil {
			return p, fmt.Errorf("client %s: %w", c.Name, err)
		}
	}
	if p.Preferred, err = tbl.MaskByName(c.Preferred...); err != nil {
		return p, fmt.Errorf("client %s preferred: %w", c.Name, err)
	}
	if c.MinFrequency != "" {
		if p.MinFrequency, err = utils.ParseFrequency(c.MinFrequency); err != nil {
			return p, fmt.Errorf("client %s: %w", c.Name, err)
		}
	}
	if c.MaxFrequency != "" {
		if p.MaxFrequency, err = utils.ParseFrequency(c.MaxFrequency); err != nil {
			return p, fmt.Errorf("client %s: %w", c.Name, err)
		}
	}
	return p, nil
}

// Apply pushes p to the client behind h. Sources go last so the mask is
// only recomputed against the final frequency range.
func (p ClientParams) Apply(m *cpm.Manager, h cpm.Handle) error {
	return errors.Join(
		m.SetNeedLock(h, p.NeedLock),
		m.SetPreferred(h, p.Preferred),
		m.SetMinFrequency(h, p.MinFrequency),
		m.SetMaxFrequency(h, p.MaxFrequency),
		m.SetAcceptableSources(h, p.Sources),
	)
}
