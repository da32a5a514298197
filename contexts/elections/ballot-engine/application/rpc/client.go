package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	application "votingapp/contexts/elections/ballot-engine/application"
	"votingapp/contexts/elections/ballot-engine/domain/entities"
	domainerrors "votingapp/contexts/elections/ballot-engine/domain/errors"
	"votingapp/contexts/elections/ballot-engine/ports"
	rpcv1 "votingapp/contracts/gen/rpc/v1"
)

const (
	DefaultQueue        = "vote-queue"
	DefaultReplyTimeout = 3 * time.Second
)

var _ ports.Dispatcher = (*Client)(nil)

// Client publishes operations to the vote queue and waits for the matching
// reply. Each call gets its own correlation id and its own exclusive reply
// queue, so concurrent callers never observe each other's replies.
type Client struct {
	broker  ports.MessageBroker
	idGen   ports.IDGenerator
	queue   string
	timeout time.Duration
	logger  *slog.Logger
	pending *pendingRegistry
}

type ClientConfig struct {
	Broker  ports.MessageBroker
	IDGen   ports.IDGenerator
	Queue   string
	Timeout time.Duration
	Logger  *slog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	queue := strings.TrimSpace(cfg.Queue)
	if queue == "" {
		queue = DefaultQueue
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultReplyTimeout
	}
	return &Client{
		broker:  cfg.Broker,
		idGen:   cfg.IDGen,
		queue:   queue,
		timeout: timeout,
		logger:  application.ResolveLogger(cfg.Logger),
		pending: newPendingRegistry(),
	}
}

func (c *Client) CastVote(ctx context.Context, voterEmail string, candidateEmail string) (entities.Result, error) {
	return c.Publish(ctx, rpcv1.VoteMessage{
		VoterEmail:     voterEmail,
		CandidateEmail: candidateEmail,
		Action:         rpcv1.ActionAdd,
	})
}

func (c *Client) RetractVote(ctx context.Context, voterEmail string, candidateEmail string) (entities.Result, error) {
	return c.Publish(ctx, rpcv1.VoteMessage{
		VoterEmail:     voterEmail,
		CandidateEmail: candidateEmail,
		Action:         rpcv1.ActionRemove,
	})
}

func (c *Client) SwitchToCandidate(ctx context.Context, email string) (entities.Result, error) {
	return c.Publish(ctx, rpcv1.VoteMessage{
		VoterEmail: email,
		Action:     rpcv1.ActionSwitchToCandidate,
	})
}

func (c *Client) SwitchToVoter(ctx context.Context, email string) (entities.Result, error) {
	return c.Publish(ctx, rpcv1.VoteMessage{
		VoterEmail: email,
		Action:     rpcv1.ActionSwitchToVoter,
	})
}

// Pending reports how many calls are waiting for a reply.
func (c *Client) Pending() int {
	return c.pending.len()
}

// Publish sends msg with a fresh correlation id and waits for its reply.
// A missing reply after the timeout yields a Timeout result; the worker may
// still execute the request later and its reply is then discarded.
func (c *Client) Publish(ctx context.Context, msg rpcv1.VoteMessage) (entities.Result, error) {
	correlationID, err := c.idGen.NewID(ctx)
	if err != nil {
		return entities.Result{}, fmt.Errorf("generate correlation id: %w", err)
	}
	msg.CorrelationID = correlationID
	body, err := json.Marshal(msg)
	if err != nil {
		return entities.Result{}, fmt.Errorf("encode vote message: %w", err)
	}

	channel, err := c.broker.OpenChannel(ctx)
	if err != nil {
		return entities.Result{}, c.logError("rpc_client_channel_open_failed", err, msg)
	}
	defer func() {
		_ = channel.Close()
	}()

	replyQueue, err := channel.DeclareQueue(ctx, ports.QueueSpec{Exclusive: true, AutoDelete: true})
	if err != nil {
		return entities.Result{}, c.logError("rpc_client_reply_queue_declare_failed", err, msg)
	}
	if _, err := channel.DeclareQueue(ctx, ports.QueueSpec{Name: c.queue, Durable: true}); err != nil {
		return entities.Result{}, c.logError("rpc_client_queue_declare_failed", err, msg)
	}
	replies, err := channel.Consume(ctx, replyQueue, "")
	if err != nil {
		return entities.Result{}, c.logError("rpc_client_reply_consume_failed", err, msg)
	}

	waiter, err := c.pending.register(correlationID)
	if err != nil {
		return entities.Result{}, err
	}
	defer c.pending.release(correlationID)
	go c.forwardReplies(ctx, channel, replies)

	if err := channel.Publish(ctx, c.queue, ports.Message{
		Body:          body,
		ContentType:   rpcv1.ContentTypeJSON,
		CorrelationID: correlationID,
		ReplyTo:       replyQueue,
		Persistent:    true,
	}); err != nil {
		return entities.Result{}, c.logError("rpc_client_publish_failed", err, msg)
	}
	c.logger.Debug("vote message published",
		"event", "rpc_client_published",
		"module", "elections/ballot-engine",
		"layer", "application",
		"action", msg.Action,
		"correlation_id", correlationID,
		"reply_queue", replyQueue,
	)

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case reply := <-waiter:
		return c.toResult(reply)
	case <-timer.C:
		c.logger.Warn("vote reply timed out",
			"event", "rpc_client_reply_timeout",
			"module", "elections/ballot-engine",
			"layer", "application",
			"action", msg.Action,
			"correlation_id", correlationID,
			"timeout", c.timeout.String(),
		)
		result := entities.Rejected(entities.FailureTimeout)
		result.CorrelationID = correlationID
		return result, nil
	case <-ctx.Done():
		return entities.Result{}, ctx.Err()
	}
}

// forwardReplies drains the reply queue until the channel closes. Replies
// whose correlation id is no longer pending are dropped.
func (c *Client) forwardReplies(ctx context.Context, channel ports.BrokerChannel, replies <-chan ports.Delivery) {
	for delivery := range replies {
		_ = channel.Ack(ctx, delivery.DeliveryTag)
		var reply rpcv1.VoteReply
		if err := json.Unmarshal(delivery.Body, &reply); err != nil {
			c.logger.Warn("vote reply decode failed",
				"event", "rpc_client_reply_decode_failed",
				"module", "elections/ballot-engine",
				"layer", "application",
				"correlation_id", delivery.CorrelationID,
				"error", err.Error(),
			)
			continue
		}
		if strings.TrimSpace(reply.CorrelationID) == "" {
			reply.CorrelationID = delivery.CorrelationID
		}
		if !c.pending.resolve(reply) {
			c.logger.Debug("unclaimed vote reply dropped",
				"event", "rpc_client_reply_unclaimed",
				"module", "elections/ballot-engine",
				"layer", "application",
				"correlation_id", reply.CorrelationID,
			)
		}
	}
}

func (c *Client) toResult(reply rpcv1.VoteReply) (entities.Result, error) {
	switch reply.Status {
	case rpcv1.StatusSuccess:
		return entities.Result{
			Success:       true,
			Message:       reply.Message,
			CorrelationID: reply.CorrelationID,
		}, nil
	case rpcv1.StatusFailed:
		if reply.Reason == rpcv1.ReasonUnavailable {
			return entities.Result{}, fmt.Errorf("%w: %s", domainerrors.ErrBackendUnavailable, reply.Message)
		}
		return entities.Result{
			Failure:       entities.ParseFailure(reply.Reason),
			Message:       reply.Message,
			CorrelationID: reply.CorrelationID,
		}, nil
	default:
		return entities.Result{
			Failure:       entities.FailureUnhandled,
			Message:       reply.Message,
			CorrelationID: reply.CorrelationID,
		}, nil
	}
}

func (c *Client) logError(event string, err error, msg rpcv1.VoteMessage) error {
	c.logger.Error("vote rpc call failed",
		"event", event,
		"module", "elections/ballot-engine",
		"layer", "application",
		"action", msg.Action,
		"correlation_id", msg.CorrelationID,
		"error", err.Error(),
	)
	return err
}
