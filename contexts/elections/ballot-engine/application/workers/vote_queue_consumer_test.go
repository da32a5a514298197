package workers_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"votingapp/contexts/elections/ballot-engine/adapters/memory"
	"votingapp/contexts/elections/ballot-engine/application/commands"
	"votingapp/contexts/elections/ballot-engine/application/rpc"
	"votingapp/contexts/elections/ballot-engine/application/workers"
	"votingapp/contexts/elections/ballot-engine/domain/entities"
	"votingapp/contexts/elections/ballot-engine/ports"
	rpcv1 "votingapp/contracts/gen/rpc/v1"
	"votingapp/internal/platform/messaging"
)

const testQueue = "vote-queue"

type harness struct {
	store  *memory.Store
	broker *messaging.MemoryBroker
	states chan workers.ConsumerState
	done   chan error
	cancel context.CancelFunc
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.NewStore()
	for _, seed := range []struct {
		email string
		role  entities.Role
	}{
		{"v@x.com", entities.RoleVoter},
		{"c@x.com", entities.RoleCandidate},
	} {
		if _, err := store.RegisterUser(context.Background(), seed.email, seed.role); err != nil {
			t.Fatalf("register %s failed: %v", seed.email, err)
		}
	}
	return &harness{
		store:  store,
		broker: messaging.NewMemoryBroker(nil),
		states: make(chan workers.ConsumerState, 64),
	}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	consumer := workers.VoteQueueConsumer{
		Broker: h.broker,
		Engine: commands.Engine{
			Store:     h.store,
			Clock:     h.store,
			IDGen:     h.store,
			VoteLimit: 3,
		},
		Queue:          testQueue,
		ReconnectDelay: 10 * time.Millisecond,
		OnStateChange: func(state workers.ConsumerState) {
			h.states <- state
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan error, 1)
	go func() {
		h.done <- consumer.Run(ctx)
	}()
	t.Cleanup(h.stop)
	h.waitForState(t, workers.StateConnected)
}

func (h *harness) stop() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	<-h.done
	h.cancel = nil
}

func (h *harness) waitForState(t *testing.T, want workers.ConsumerState) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case state := <-h.states:
			if state == want {
				return
			}
		case <-deadline:
			t.Fatalf("consumer never reached state %s", want)
		}
	}
}

type requester struct {
	channel    ports.BrokerChannel
	replyQueue string
	replies    <-chan ports.Delivery
}

func newRequester(t *testing.T, broker ports.MessageBroker) *requester {
	t.Helper()
	ctx := context.Background()
	channel, err := broker.OpenChannel(ctx)
	if err != nil {
		t.Fatalf("open requester channel failed: %v", err)
	}
	t.Cleanup(func() { _ = channel.Close() })
	if _, err := channel.DeclareQueue(ctx, ports.QueueSpec{Name: testQueue, Durable: true}); err != nil {
		t.Fatalf("declare vote queue failed: %v", err)
	}
	replyQueue, err := channel.DeclareQueue(ctx, ports.QueueSpec{Exclusive: true, AutoDelete: true})
	if err != nil {
		t.Fatalf("declare reply queue failed: %v", err)
	}
	replies, err := channel.Consume(ctx, replyQueue, "")
	if err != nil {
		t.Fatalf("consume reply queue failed: %v", err)
	}
	return &requester{channel: channel, replyQueue: replyQueue, replies: replies}
}

func (r *requester) send(t *testing.T, msg rpcv1.VoteMessage) {
	t.Helper()
	body, _ := json.Marshal(msg)
	if err := r.channel.Publish(context.Background(), testQueue, ports.Message{
		Body:          body,
		ContentType:   rpcv1.ContentTypeJSON,
		CorrelationID: msg.CorrelationID,
		ReplyTo:       r.replyQueue,
		Persistent:    true,
	}); err != nil {
		t.Fatalf("publish vote message failed: %v", err)
	}
}

func (r *requester) await(t *testing.T) rpcv1.VoteReply {
	t.Helper()
	select {
	case delivery := <-r.replies:
		_ = r.channel.Ack(context.Background(), delivery.DeliveryTag)
		var reply rpcv1.VoteReply
		if err := json.Unmarshal(delivery.Body, &reply); err != nil {
			t.Fatalf("decode reply failed: %v", err)
		}
		return reply
	case <-time.After(2 * time.Second):
		t.Fatalf("no reply received")
	}
	return rpcv1.VoteReply{}
}

func (r *requester) expectSilence(t *testing.T, wait time.Duration) {
	t.Helper()
	select {
	case delivery := <-r.replies:
		t.Fatalf("unexpected extra reply %s", string(delivery.Body))
	case <-time.After(wait):
	}
}

func TestVoteQueueConsumerServesClientRequests(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	client := rpc.NewClient(rpc.ClientConfig{Broker: h.broker, IDGen: h.store, Queue: testQueue, Timeout: 2 * time.Second})

	result, err := client.CastVote(context.Background(), "v@x.com", "c@x.com")
	if err != nil {
		t.Fatalf("cast vote failed: %v", err)
	}
	if !result.Success || result.Message != entities.MessageVoteAdded {
		t.Fatalf("expected vote added, got %+v", result)
	}
	result, err = client.CastVote(context.Background(), "v@x.com", "c@x.com")
	if err != nil {
		t.Fatalf("second cast failed: %v", err)
	}
	if result.Failure != entities.FailureDuplicateVote {
		t.Fatalf("expected duplicate_vote, got %+v", result)
	}
	user, _, _ := h.store.FindUserByEmail(context.Background(), "c@x.com")
	if user.VoteCount != 1 {
		t.Fatalf("expected candidate count 1, got %d", user.VoteCount)
	}
	if depth := h.broker.QueueDepth(testQueue); depth != 0 {
		t.Fatalf("expected every delivery acked, depth=%d", depth)
	}
}

func TestVoteQueueConsumerRepliesUnhandledForUnknownAction(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	req := newRequester(t, h.broker)

	req.send(t, rpcv1.VoteMessage{VoterEmail: "v@x.com", Action: "Bogus", CorrelationID: "corr-unknown"})
	reply := req.await(t)

	if reply.Status != rpcv1.StatusUnhandled {
		t.Fatalf("expected unhandled status, got %+v", reply)
	}
	if reply.Message != "The request could not be handled. Action: 'Bogus'" {
		t.Fatalf("unexpected message %q", reply.Message)
	}
	if reply.CorrelationID != "corr-unknown" {
		t.Fatalf("expected correlation id echoed, got %q", reply.CorrelationID)
	}
	if depth := h.broker.QueueDepth(testQueue); depth != 0 {
		t.Fatalf("expected unknown action acked, depth=%d", depth)
	}
}

func TestVoteQueueConsumerRepliesUnavailableWhenStoreDown(t *testing.T) {
	h := newHarness(t)
	h.store.SetUnavailable(errors.New("database is down"))
	h.start(t)
	req := newRequester(t, h.broker)

	req.send(t, rpcv1.VoteMessage{VoterEmail: "v@x.com", CandidateEmail: "c@x.com", Action: rpcv1.ActionAdd, CorrelationID: "corr-down"})
	reply := req.await(t)

	if reply.Status != rpcv1.StatusFailed || reply.Reason != rpcv1.ReasonUnavailable {
		t.Fatalf("expected unavailable failure, got %+v", reply)
	}
	if depth := h.broker.QueueDepth(testQueue); depth != 0 {
		t.Fatalf("expected failed delivery acked, depth=%d", depth)
	}
}

func TestVoteQueueConsumerReconnectsAfterConnectionLoss(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.broker.Disconnect()
	h.waitForState(t, workers.StateDisconnected)
	h.waitForState(t, workers.StateReconnecting)
	h.waitForState(t, workers.StateConnected)

	req := newRequester(t, h.broker)
	req.send(t, rpcv1.VoteMessage{VoterEmail: "v@x.com", Action: rpcv1.ActionSwitchToCandidate, CorrelationID: "corr-after"})
	reply := req.await(t)
	if reply.Status != rpcv1.StatusSuccess || reply.Message != entities.MessageBecameCandidate {
		t.Fatalf("expected switch success after reconnect, got %+v", reply)
	}
}

func TestVoteQueueConsumerKeepsDeliveryWhenReplyFails(t *testing.T) {
	h := newHarness(t)
	req := newRequester(t, h.broker)
	req.send(t, rpcv1.VoteMessage{VoterEmail: "v@x.com", CandidateEmail: "c@x.com", Action: rpcv1.ActionAdd, CorrelationID: "corr-retry"})
	h.broker.FailNextPublish(errors.New("channel flow blocked"))

	h.start(t)
	h.waitForState(t, workers.StateDisconnected)
	h.waitForState(t, workers.StateConnected)

	// The first execution committed before its reply was lost, so the
	// redelivered request observes its own ballot.
	reply := req.await(t)
	if reply.CorrelationID != "corr-retry" {
		t.Fatalf("expected redelivered correlation id, got %+v", reply)
	}
	if reply.Reason != string(entities.FailureDuplicateVote) {
		t.Fatalf("expected duplicate_vote on re-execution, got %+v", reply)
	}
	req.expectSilence(t, 50*time.Millisecond)

	user, _, _ := h.store.FindUserByEmail(context.Background(), "v@x.com")
	if user.VoteCount != 1 {
		t.Fatalf("expected voter count 1 after redelivery, got %d", user.VoteCount)
	}
	if depth := h.broker.QueueDepth(testQueue); depth != 0 {
		t.Fatalf("expected redelivered message acked, depth=%d", depth)
	}
}

func TestVoteQueueConsumerStopsOnCancel(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	h.stop()
	h.waitForState(t, workers.StateStopped)
}

func TestVoteQueueConsumerDisabled(t *testing.T) {
	consumer := workers.VoteQueueConsumer{Disabled: true}
	if err := consumer.Run(context.Background()); err != nil {
		t.Fatalf("disabled consumer returned %v", err)
	}
}
