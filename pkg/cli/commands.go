package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/google/subcommands"

	"github.com/openshift/clockpm-daemon/pkg/clock"
	"github.com/openshift/clockpm-daemon/pkg/config"
	"github.com/openshift/clockpm-daemon/pkg/daemon"
	"github.com/openshift/clockpm-daemon/pkg/utils"
)

// Describe implements subcommands.Command for the "describe" command.
type Describe struct {
	chip string
	out  io.Writer
}

// Name implements subcommands.Command.Name.
func (*Describe) Name() string {
	return "describe"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Describe) Synopsis() string {
	return "print the clock sources of a chip plugin"
}

// Usage implements subcommands.Command.Usage.
func (*Describe) Usage() string {
	return "describe [-chip <plugin>]\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (d *Describe) SetFlags(f *flag.FlagSet) {
	f.StringVar(&d.chip, "chip", config.DefaultChip, "chip plugin to describe")
}

// Execute implements subcommands.Command.Execute.
func (d *Describe) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	out := d.out
	if out == nil {
		out = os.Stdout
	}
	if err := DescribeChip(out, d.chip); err != nil {
		fmt.Fprintf(os.Stderr, "describe: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// DescribeChip prints the table of the chip plugin name in power order
func DescribeChip(w io.Writer, name string) error {
	pm, err := daemon.RegisterPlugins([]string{name})
	if err != nil {
		return err
	}
	chip, _, err := pm.Chip()
	if err != nil {
		return err
	}
	tbl := chip.Sources()
	idle, hasIdle := tbl.Idle()
	fmt.Fprintf(w, "chip %s, %d sources\n", name, tbl.Len())
	for i, e := range tbl.Entries() {
		s := clock.Source(i)
		var tags []string
		if tbl.Compute().Has(s) {
			tags = append(tags, "compute")
		}
		if hasIdle && idle == s {
			tags = append(tags, "idle")
		}
		line := fmt.Sprintf("%3d  %-12s %10s", i, e.Name, utils.FormatFrequency(e.Frequency))
		if len(tags) > 0 {
			line += "  " + strings.Join(tags, ",")
		}
		fmt.Fprintln(w, line)
	}
	for _, tr := range tbl.Intermediates(tbl.All()) {
		fmt.Fprintf(w, "from %s via %s to %s\n", tbl.Names(tr.From), tbl.Names(tr.Via), tbl.Names(tr.Ends))
	}
	desc := pm.Describe()
	names := make([]string, 0, len(desc))
	for n := range desc {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		for _, l := range desc[n] {
			fmt.Fprintf(w, "%s: %s\n", n, l)
		}
	}
	return nil
}

// Simulate implements subcommands.Command for the "simulate" command.
type Simulate struct {
	quiet bool
	out   io.Writer
}

// Name implements subcommands.Command.Name.
func (*Simulate) Name() string {
	return "simulate"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Simulate) Synopsis() string {
	return "replay a scenario file against a clock manager"
}

// Usage implements subcommands.Command.Usage.
func (*Simulate) Usage() string {
	return "simulate [-quiet] <scenario.yaml>\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Simulate) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&s.quiet, "quiet", false, "print one line per step instead of the manager tree")
}

// Execute implements subcommands.Command.Execute.
func (s *Simulate) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	out := s.out
	if out == nil {
		out = os.Stdout
	}
	sc, err := LoadScenario(f.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "simulate: %v\n", err)
		return subcommands.ExitFailure
	}
	var trace io.Writer
	if !s.quiet {
		trace = out
	}
	results, err := Run(sc, trace)
	if s.quiet {
		for _, r := range results {
			fmt.Fprintf(out, "%-24s %-10s %10s lock=%d pending=%t\n",
				r.Step, r.Source, utils.FormatFrequency(r.Frequency), r.LockCount, r.Pending)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "simulate: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
