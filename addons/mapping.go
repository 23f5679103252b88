package mapping

import (
	"github.com/openshift/clockpm-daemon/addons/generic"
	"github.com/openshift/clockpm-daemon/addons/sam4l"
	"github.com/openshift/clockpm-daemon/pkg/plugin"
)

var PluginMapping = map[string]plugin.New{
	"reference": generic.Reference,
	"sam4l":     sam4l.SAM4L,
}
