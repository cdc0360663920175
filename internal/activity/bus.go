package activity

import (
	"sync"
)

// Topics carried by the bus. Balance changes are keyed per wallet so a user
// stream only sees its own ledger; entity topics feed admin views.
const (
	TopicDeposits    = "deposits"
	TopicWithdrawals = "withdrawals"
	TopicConversions = "conversions"
	TopicTrades      = "trades"
)

func BalanceTopic(wallet string) string {
	return "balance:" + wallet
}

type Event struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
	Data  any    `json:"data"`
}

type Subscriber struct {
	C      chan Event
	topics map[string]struct{}
}

func (s *Subscriber) wants(topic string) bool {
	if len(s.topics) == 0 {
		return true
	}
	_, ok := s.topics[topic]
	return ok
}

// Bus fans events out to subscribers. Publishing never blocks and never
// fails the caller: a slow subscriber just drops events, and publishing on
// a closed bus is a no-op. Constructed at process start, Close on drain.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	closed bool
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscriber]struct{})}
}

// Subscribe registers a subscriber for the given topics; no topics means
// every topic.
func (b *Bus) Subscribe(topics ...string) *Subscriber {
	sub := &Subscriber{C: make(chan Event, 100)}
	if len(topics) > 0 {
		sub.topics = make(map[string]struct{}, len(topics))
		for _, t := range topics {
			sub.topics[t] = struct{}{}
		}
	}
	b.mu.Lock()
	if !b.closed {
		b.subs[sub] = struct{}{}
	} else {
		close(sub.C)
	}
	b.mu.Unlock()
	return sub
}

func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub.C)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(topic, evtType string, data any) {
	evt := Event{Topic: topic, Type: evtType, Data: data}
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	for sub := range b.subs {
		if !sub.wants(topic) {
			continue
		}
		select {
		case sub.C <- evt:
		default:
		}
	}
	b.mu.RUnlock()
}

func (b *Bus) Close() {
	b.mu.Lock()
	if !b.closed {
		b.closed = true
		for sub := range b.subs {
			delete(b.subs, sub)
			close(sub.C)
		}
	}
	b.mu.Unlock()
}
