package rpc

import (
	"errors"
	"sync"

	rpcv1 "votingapp/contracts/gen/rpc/v1"
)

var errDuplicateCorrelation = errors.New("correlation id already pending")

// pendingRegistry maps correlation ids to the single reply slot of the call
// waiting on them. Each slot resolves at most once.
type pendingRegistry struct {
	mu      sync.Mutex
	waiters map[string]chan rpcv1.VoteReply
}

func newPendingRegistry() *pendingRegistry {
	return &pendingRegistry{waiters: make(map[string]chan rpcv1.VoteReply)}
}

func (r *pendingRegistry) register(correlationID string) (<-chan rpcv1.VoteReply, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.waiters[correlationID]; exists {
		return nil, errDuplicateCorrelation
	}
	slot := make(chan rpcv1.VoteReply, 1)
	r.waiters[correlationID] = slot
	return slot, nil
}

// resolve hands reply to its waiter and reports whether one was pending.
func (r *pendingRegistry) resolve(reply rpcv1.VoteReply) bool {
	r.mu.Lock()
	slot, ok := r.waiters[reply.CorrelationID]
	if ok {
		delete(r.waiters, reply.CorrelationID)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	slot <- reply
	return true
}

func (r *pendingRegistry) release(correlationID string) {
	r.mu.Lock()
	delete(r.waiters, correlationID)
	r.mu.Unlock()
}

func (r *pendingRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}
