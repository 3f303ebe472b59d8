package eventBusTypes

import (
	"context"
	"sync"

	"github.com/Layr-Labs/agentpay/pkg/storage"
)

const (
	Event_ReceiptRecorded = "receipt_recorded"
)

type Event struct {
	Name string
	Data any
}

type ConsumerId string

// Consumer receives every published event its Filter accepts. A nil Filter accepts everything.
type Consumer struct {
	Id      ConsumerId
	Context context.Context
	Channel chan *Event
	Filter  func(event *Event) bool
}

func (c *Consumer) Wants(event *Event) bool {
	if c.Context != nil && c.Context.Err() != nil {
		return false
	}
	return c.Filter == nil || c.Filter(event)
}

// ConsumerList is keyed by consumer id; subscribing an id twice replaces the earlier consumer.
type ConsumerList struct {
	mu        sync.RWMutex
	consumers map[ConsumerId]*Consumer
}

func NewConsumerList() *ConsumerList {
	return &ConsumerList{
		consumers: make(map[ConsumerId]*Consumer),
	}
}

func (cl *ConsumerList) Add(consumer *Consumer) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	cl.consumers[consumer.Id] = consumer
}

func (cl *ConsumerList) Remove(consumer *Consumer) {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	delete(cl.consumers, consumer.Id)
}

func (cl *ConsumerList) Len() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.consumers)
}

// Snapshot returns the current consumers so publishers can iterate while others subscribe or leave.
func (cl *ConsumerList) Snapshot() []*Consumer {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	out := make([]*Consumer, 0, len(cl.consumers))
	for _, c := range cl.consumers {
		out = append(out, c)
	}
	return out
}

type IEventBus interface {
	Subscribe(consumer *Consumer)
	Unsubscribe(consumer *Consumer)
	Publish(event *Event) int
}

// ReceiptRecordedData is published once per newly written receipt. Duplicates are never published.
type ReceiptRecordedData struct {
	Receipt *storage.Receipt
}

// ReceiptsForUser accepts receipt_recorded events belonging to userId.
func ReceiptsForUser(userId string) func(event *Event) bool {
	return func(event *Event) bool {
		if event.Name != Event_ReceiptRecorded {
			return false
		}
		data, ok := event.Data.(*ReceiptRecordedData)
		return ok && data.Receipt != nil && data.Receipt.UserId == userId
	}
}
