// Binary cpmctl inspects chip plugins and replays clock manager scenarios
// without running the daemon.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/golang/glog"
	"github.com/google/subcommands"

	"github.com/openshift/clockpm-daemon/pkg/cli"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(cli.Describe), "")
	subcommands.Register(new(cli.Simulate), "")

	flag.Parse()
	status := subcommands.Execute(context.Background())
	glog.Flush()
	os.Exit(int(status))
}
