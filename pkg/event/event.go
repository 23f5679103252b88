package event

import (
	"time"

	"github.com/openshift/clockpm-daemon/pkg/cpm"
)

// Topic selects which events a Subscriber receives
type Topic string

const (
	// NIL subscribers receive nothing until they are given a topic
	NIL Topic = ""
	// ClockChange is published after every switch of the system clock
	ClockChange Topic = "clock-change"
	// PassCompleted is published after every arbitration pass
	PassCompleted Topic = "pass-completed"
)

// ClockEvent is what subscribers receive. Only the field matching Topic is
// meaningful.
type ClockEvent struct {
	Topic  Topic
	Time   time.Time
	Change cpm.Change
	Pass   cpm.Pass
	// FromName and ToName are the source names of a change
	FromName string
	ToName   string
}
