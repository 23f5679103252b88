package debug

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/openshift/clockpm-daemon/pkg/clock"
	"github.com/openshift/clockpm-daemon/pkg/cpm"
	"github.com/openshift/clockpm-daemon/pkg/utils"
)

var (
	iconRunning  = "Running"
	iconWaiting  = "Waiting"
	iconDisabled = "Disabled"
	iconSelected = "*"
)

// Node is one line of the tree with its children
type Node struct {
	name     string
	state    string
	detail   string
	children []Node
}

func clientState(c cpm.ClientState) string {
	switch {
	case c.Served():
		return iconRunning
	case c.Enabled:
		return iconWaiting
	}
	return iconDisabled
}

// Build turns a snapshot into a tree rooted at the system clock
func Build(s cpm.Snapshot) Node {
	tbl := s.Sources
	root := Node{
		name:  "system clock " + tbl.Names(s.Current),
		state: utils.FormatFrequency(s.Frequency),
		detail: fmt.Sprintf("lock=%d pending=%t change=%s lockfree=%s compute=%d passes=%d",
			s.LockCount, s.Pending, tbl.Names(s.ChangeMask), tbl.Names(s.LockFreeMask), s.ComputeCount, s.Passes),
	}

	sources := Node{name: "sources"}
	for i, e := range tbl.Entries() {
		n := Node{name: e.Name, state: utils.FormatFrequency(e.Frequency)}
		if s.Current.Has(clock.Source(i)) {
			n.name += " " + iconSelected
		}
		sources.children = append(sources.children, n)
	}

	clients := Node{name: "clients"}
	for i, c := range s.Clients {
		n := Node{name: c.Name, state: clientState(c)}
		parts := []string{"mask=" + tbl.Names(c.Acceptable)}
		if c.NeedLock {
			parts = append(parts, "lock")
		}
		if !c.Preferred.Empty() {
			parts = append(parts, "prefers="+tbl.Names(c.Preferred))
		}
		if i == s.Cursor {
			parts = append(parts, "cursor")
		}
		n.detail = strings.Join(parts, " ")
		clients.children = append(clients.children, n)
	}

	root.children = []Node{sources, clients}
	return root
}

// printTreeNode prints a node and its children below indent
func printTreeNode(w io.Writer, n Node, indent string, isLast bool) {
	connector := "├──"
	childIndent := indent + "│   "
	if isLast {
		connector = "└──"
		childIndent = indent + "    "
	}
	fmt.Fprintf(w, "%s%s %s\n", indent, connector, n.line())
	for i, c := range n.children {
		printTreeNode(w, c, childIndent, i == len(n.children)-1)
	}
}

func (n Node) line() string {
	var b strings.Builder
	b.WriteString(n.name)
	if n.state != "" {
		fmt.Fprintf(&b, " (State:%s)", n.state)
	}
	if n.detail != "" {
		b.WriteString(" ")
		b.WriteString(n.detail)
	}
	return b.String()
}

// PrintTree writes the tree of s to w
func PrintTree(w io.Writer, s cpm.Snapshot) {
	root := Build(s)
	fmt.Fprintln(w, root.line())
	for i, c := range root.children {
		printTreeNode(w, c, "", i == len(root.children)-1)
	}
}

// Tree prints a snapshot only when its rendering changed since the last call
type Tree struct {
	mu   sync.Mutex
	out  io.Writer
	last string
}

// NewTree ...
func NewTree(out io.Writer) *Tree {
	return &Tree{out: out}
}

// Update prints s if it differs from the previous snapshot and reports
// whether it did.
func (t *Tree) Update(s cpm.Snapshot) bool {
	var b strings.Builder
	// pass counts change on every arbitration, leave them out of the comparison
	s.Passes = 0
	PrintTree(&b, s)
	t.mu.Lock()
	defer t.mu.Unlock()
	if b.String() == t.last {
		return false
	}
	t.last = b.String()
	io.WriteString(t.out, t.last) //nolint:errcheck
	return true
}
