package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"votingapp/contexts/elections/ballot-engine/ports"
)

var (
	ErrChannelClosed  = errors.New("broker channel is closed")
	ErrBrokerOffline  = errors.New("broker is offline")
	ErrQueueNotFound  = errors.New("queue not found")
	ErrQueueExclusive = errors.New("queue is exclusive to another channel")
)

var _ ports.MessageBroker = (*MemoryBroker)(nil)

// MemoryBroker is an in-process queue broker with the delivery semantics the
// vote RPC relies on: durable and server-named exclusive queues, manual acks
// with a prefetch of one per consumer, and redelivery of unacked messages
// when their channel closes.
type MemoryBroker struct {
	mu          sync.Mutex
	queues      map[string]*memoryQueue
	channels    map[*memoryChannel]struct{}
	nameSeq     int
	offline     bool
	failPublish error
	logger      *slog.Logger
}

type memoryQueue struct {
	spec      ports.QueueSpec
	owner     *memoryChannel
	ready     []ports.Message
	consumers []*memoryConsumer
	next      int
}

type memoryConsumer struct {
	channel  *memoryChannel
	queue    string
	tag      string
	out      chan ports.Delivery
	inFlight int
}

type unacked struct {
	queue    string
	consumer *memoryConsumer
	message  ports.Message
}

type memoryChannel struct {
	broker    *MemoryBroker
	closed    bool
	nextTag   uint64
	unacked   map[uint64]unacked
	consumers []*memoryConsumer
}

func NewMemoryBroker(logger *slog.Logger) *MemoryBroker {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryBroker{
		queues:   make(map[string]*memoryQueue),
		channels: make(map[*memoryChannel]struct{}),
		logger:   logger,
	}
}

func (b *MemoryBroker) OpenChannel(ctx context.Context) (ports.BrokerChannel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.offline {
		return nil, ErrBrokerOffline
	}
	ch := &memoryChannel{broker: b, unacked: make(map[uint64]unacked)}
	b.channels[ch] = struct{}{}
	return ch, nil
}

// Disconnect drops every open channel as a lost connection would. Unacked
// messages return to their queues and consumers see their delivery streams
// close.
func (b *MemoryBroker) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.channels {
		b.closeChannelLocked(ch)
	}
	b.logger.Warn("memory broker connection dropped",
		"event", "memory_broker_disconnected",
		"module", "internal/platform/messaging",
		"layer", "platform",
	)
}

// SetOffline makes OpenChannel fail until it is called again with false.
func (b *MemoryBroker) SetOffline(offline bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.offline = offline
}

// FailNextPublish makes the next Publish on any channel return err.
func (b *MemoryBroker) FailNextPublish(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failPublish = err
}

// QueueDepth reports ready plus unacked messages in queue.
func (b *MemoryBroker) QueueDepth(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		return 0
	}
	depth := len(q.ready)
	for ch := range b.channels {
		for _, item := range ch.unacked {
			if item.queue == name {
				depth++
			}
		}
	}
	return depth
}

func (b *MemoryBroker) HasQueue(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.queues[name]
	return ok
}

func (c *memoryChannel) DeclareQueue(ctx context.Context, spec ports.QueueSpec) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if c.closed {
		return "", ErrChannelClosed
	}
	name := strings.TrimSpace(spec.Name)
	if name == "" {
		b.nameSeq++
		name = fmt.Sprintf("amq.gen-%d", b.nameSeq)
	}
	if existing, ok := b.queues[name]; ok {
		if existing.spec.Exclusive && existing.owner != c {
			return "", ErrQueueExclusive
		}
		return name, nil
	}
	spec.Name = name
	q := &memoryQueue{spec: spec}
	if spec.Exclusive {
		q.owner = c
	}
	b.queues[name] = q
	return name, nil
}

func (c *memoryChannel) Publish(ctx context.Context, queue string, msg ports.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	if err := b.failPublish; err != nil {
		b.failPublish = nil
		return err
	}
	q, ok := b.queues[queue]
	if !ok {
		// Unroutable messages on the default exchange are dropped.
		b.logger.Debug("dropping unroutable message",
			"event", "memory_broker_publish_unroutable",
			"module", "internal/platform/messaging",
			"layer", "platform",
			"queue", queue,
			"correlation_id", msg.CorrelationID,
		)
		return nil
	}
	msg.Body = append([]byte(nil), msg.Body...)
	q.ready = append(q.ready, msg)
	b.dispatchLocked(q)
	return nil
}

func (c *memoryChannel) Consume(ctx context.Context, queue string, consumer string) (<-chan ports.Delivery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if c.closed {
		return nil, ErrChannelClosed
	}
	q, ok := b.queues[queue]
	if !ok {
		return nil, ErrQueueNotFound
	}
	if q.spec.Exclusive && q.owner != c {
		return nil, ErrQueueExclusive
	}
	sub := &memoryConsumer{
		channel: c,
		queue:   queue,
		tag:     consumer,
		out:     make(chan ports.Delivery, 1),
	}
	q.consumers = append(q.consumers, sub)
	c.consumers = append(c.consumers, sub)
	b.dispatchLocked(q)
	return sub.out, nil
}

func (c *memoryChannel) Ack(_ context.Context, deliveryTag uint64) error {
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	item, ok := c.unacked[deliveryTag]
	if !ok {
		return fmt.Errorf("unknown delivery tag %d", deliveryTag)
	}
	delete(c.unacked, deliveryTag)
	item.consumer.inFlight--
	if q, ok := b.queues[item.queue]; ok {
		b.dispatchLocked(q)
	}
	return nil
}

func (c *memoryChannel) Close() error {
	b := c.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeChannelLocked(c)
	return nil
}

func (b *MemoryBroker) closeChannelLocked(c *memoryChannel) {
	if c.closed {
		return
	}
	c.closed = true
	delete(b.channels, c)

	requeued := make(map[string][]ports.Message)
	for tag := uint64(1); tag <= c.nextTag; tag++ {
		if item, ok := c.unacked[tag]; ok {
			requeued[item.queue] = append(requeued[item.queue], item.message)
		}
	}
	c.unacked = nil

	for _, sub := range c.consumers {
		if q, ok := b.queues[sub.queue]; ok {
			q.consumers = removeConsumer(q.consumers, sub)
			if q.spec.AutoDelete && len(q.consumers) == 0 {
				delete(b.queues, sub.queue)
			}
		}
		// A delivery still buffered was requeued above.
		select {
		case <-sub.out:
		default:
		}
		close(sub.out)
	}
	c.consumers = nil

	for name, q := range b.queues {
		if q.owner == c {
			delete(b.queues, name)
			continue
		}
		if msgs, ok := requeued[name]; ok {
			q.ready = append(msgs, q.ready...)
			b.dispatchLocked(q)
		}
	}
}

// dispatchLocked hands ready messages to consumers with free capacity in
// round-robin order. Each consumer holds at most one unacked delivery, so
// the send on its buffered channel never blocks.
func (b *MemoryBroker) dispatchLocked(q *memoryQueue) {
	for len(q.ready) > 0 && len(q.consumers) > 0 {
		var target *memoryConsumer
		for i := 0; i < len(q.consumers); i++ {
			candidate := q.consumers[(q.next+i)%len(q.consumers)]
			if candidate.inFlight == 0 {
				target = candidate
				q.next = (q.next + i + 1) % len(q.consumers)
				break
			}
		}
		if target == nil {
			return
		}
		msg := q.ready[0]
		q.ready = q.ready[1:]
		ch := target.channel
		ch.nextTag++
		ch.unacked[ch.nextTag] = unacked{queue: q.spec.Name, consumer: target, message: msg}
		target.inFlight++
		target.out <- ports.Delivery{Message: msg, DeliveryTag: ch.nextTag}
	}
}

func removeConsumer(items []*memoryConsumer, target *memoryConsumer) []*memoryConsumer {
	filtered := make([]*memoryConsumer, 0, len(items))
	for _, item := range items {
		if item != target {
			filtered = append(filtered, item)
		}
	}
	return filtered
}
