package event

import (
	"fmt"
	"sync"
)

type Subscriber interface {
	Notify(ev ClockEvent)
	Topic() Topic
	ID() string
}

type Notifier interface {
	Register(s Subscriber)
	Unregister(s Subscriber)
	Publish(ev ClockEvent)
}

// StateNotifier fans clock events out to subscribers. Notify is called
// synchronously and in publication order.
type StateNotifier struct {
	sync.Mutex
	Subscribers map[string]Subscriber
}

func (n *StateNotifier) Register(s Subscriber) {
	id := fmt.Sprintf("%s_%s", s.Topic(), s.ID())
	n.Lock()
	defer n.Unlock()
	n.Subscribers[id] = s
}

func (n *StateNotifier) Unregister(s Subscriber) {
	id := fmt.Sprintf("%s_%s", s.Topic(), s.ID())
	n.Lock()
	defer n.Unlock()
	delete(n.Subscribers, id)
}

func (n *StateNotifier) Publish(ev ClockEvent) {
	n.Lock()
	defer n.Unlock()
	for _, o := range n.Subscribers {
		if o.Topic() == ev.Topic && o.Topic() != NIL {
			o.Notify(ev)
		}
	}
}

func NewStateNotifier() *StateNotifier {
	return &StateNotifier{
		Subscribers: make(map[string]Subscriber),
	}
}
