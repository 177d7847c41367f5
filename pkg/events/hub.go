// Package events fans daemon events out to any number of subscribers, such as SSE
// clients.
package events

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"
)

const subscriberBuffer = 64

type subscriber struct {
	dropped int
}

// EventHub delivers published events to every subscriber without blocking the
// publisher: a subscriber that falls behind loses events.
//
// While a job runs, the hub keeps its job.started event and the latest
// session.transition, and replays them to new subscribers so they can pick a
// running job up mid-way.
type EventHub struct {
	mu   sync.RWMutex
	subs map[chan Event]*subscriber

	started    *Event
	transition *Event
}

func NewEventHub() *EventHub { return &EventHub{subs: make(map[chan Event]*subscriber)} }

func (h *EventHub) Subscribe() chan Event {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[ch] = &subscriber{}
	for _, ev := range []*Event{h.started, h.transition} {
		if ev != nil {
			ch <- *ev
		}
	}
	return ch
}

func (h *EventHub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub, ok := h.subs[ch]
	if !ok {
		return
	}
	if sub.dropped > 0 {
		logrus.WithField("dropped", sub.dropped).Debug("slow event subscriber lost events")
	}
	delete(h.subs, ch)
	close(ch)
}

// Subscribers returns the number of live subscriptions.
func (h *EventHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *EventHub) Publish(name string, payload any) {
	if h == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		logrus.WithError(err).WithField("event", name).Error("failed to marshal event")
		return
	}
	msg := Event{Name: name, Data: b}

	h.mu.Lock()
	defer h.mu.Unlock()

	switch name {
	case JobStarted:
		h.started, h.transition = &msg, nil
	case SessionTransition:
		if h.started != nil {
			h.transition = &msg
		}
	case JobFinished:
		h.started, h.transition = nil, nil
	}

	for ch, sub := range h.subs {
		select {
		case ch <- msg:
		default:
			sub.dropped++
		}
	}
}
