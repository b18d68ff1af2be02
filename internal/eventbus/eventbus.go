// Package eventbus provides an in-process pub/sub bus broadcasting mesh
// events (agent status transitions, scan-result arrivals, deletion-report
// outcomes) to Server-Sent-Events subscribers on the admin API.
//
// Adapted from the teacher's internal/bus.MessageBus: topic-prefix
// matching and fan-out are unchanged, but the message catalogue and
// topic namespace are specific to the fleet quarantine domain.
package eventbus

import (
	"encoding/json"
	"sync"
	"time"
)

// Event is one bus message.
type Event struct {
	Topic     string          `json:"topic"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
	Seq       int64           `json:"seq"`
}

// Event type constants.
const (
	TypeAgentRegistered  = "agent_registered"
	TypeAgentStatus      = "agent_status"
	TypeAgentOffline     = "agent_offline"
	TypeScanResults      = "scan_results"
	TypeDeletionReport   = "deletion_report"
	TypeDeleteDispatched = "delete_dispatched"
	TypeScanDispatched   = "scan_dispatched"
)

// Topic constants. Subscribers filter by prefix: "agent" matches
// "agent.status"/"agent.registered"/..., "*" matches everything.
const (
	TopicAgent    = "agent"
	TopicScan     = "scan"
	TopicDeletion = "deletion"
	TopicAll      = "*"
)

// Subscriber receives events matching Filter.
type Subscriber struct {
	ID     string
	Filter string
	Ch     chan Event
}

// Bus is the process-wide event bus. One instance is shared between the
// connection handler, task dispatcher, result collector, and the admin
// API's /events SSE handler.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	seq         int64
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[string]*Subscriber)}
}

// Publish fan-outs msg to every subscriber whose filter matches its
// topic. Seq assignment and fan-out happen under the same lock so
// delivered order always matches Seq order. A subscriber with a full
// channel buffer drops the message rather than blocking the publisher.
func (b *Bus) Publish(topic, typ string, payload any) {
	raw, _ := json.Marshal(payload)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	evt := Event{
		Topic:     topic,
		Type:      typ,
		Payload:   raw,
		Timestamp: time.Now(),
		Seq:       b.seq,
	}
	for _, sub := range b.subscribers {
		if matchTopic(sub.Filter, topic) {
			select {
			case sub.Ch <- evt:
			default:
			}
		}
	}
}

// Subscribe registers a new subscriber. filter is a topic prefix
// ("agent", "scan", "*"...).
func (b *Bus) Subscribe(id, filter string) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &Subscriber{ID: id, Filter: filter, Ch: make(chan Event, 64)}
	b.subscribers[id] = sub
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subscribers[id]; ok {
		close(sub.Ch)
		delete(b.subscribers, id)
	}
}

// SubscriberCount reports the current subscriber count.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

func matchTopic(filter, topic string) bool {
	if filter == TopicAll {
		return true
	}
	if topic == filter {
		return true
	}
	if len(topic) > len(filter) && topic[:len(filter)] == filter && topic[len(filter)] == '.' {
		return true
	}
	return false
}
