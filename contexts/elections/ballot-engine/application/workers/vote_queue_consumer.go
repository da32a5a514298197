package workers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	application "votingapp/contexts/elections/ballot-engine/application"
	"votingapp/contexts/elections/ballot-engine/application/commands"
	"votingapp/contexts/elections/ballot-engine/domain/entities"
	"votingapp/contexts/elections/ballot-engine/ports"
	rpcv1 "votingapp/contracts/gen/rpc/v1"
)

const (
	defaultVoteQueue      = "vote-queue"
	defaultConsumerTag    = "ballot-engine-vote-consumer"
	defaultReconnectDelay = time.Second
)

type ConsumerState string

const (
	StateConnecting   ConsumerState = "connecting"
	StateConnected    ConsumerState = "connected"
	StateDisconnected ConsumerState = "disconnected"
	StateReconnecting ConsumerState = "reconnecting"
	StateStopped      ConsumerState = "stopped"
)

var errDeliveriesClosed = errors.New("vote queue delivery stream closed")

// VoteQueueConsumer is the server side of the vote RPC. It handles one
// delivery at a time, which makes it the serialization point for every
// broker-dispatched operation; transactions therefore run read committed.
//
// Every delivery gets exactly one reply followed by exactly one ack. A reply
// that cannot be published leaves the delivery unacked and forces a
// reconnect so the broker redelivers it.
type VoteQueueConsumer struct {
	Broker         ports.MessageBroker
	Engine         commands.Engine
	Queue          string
	ConsumerTag    string
	BackOff        ports.BackOff
	ReconnectDelay time.Duration
	OnStateChange  func(ConsumerState)
	Disabled       bool
	Logger         *slog.Logger
}

// Run consumes until ctx is cancelled, reconnecting whenever the delivery
// stream is lost.
func (c VoteQueueConsumer) Run(ctx context.Context) error {
	logger := application.ResolveLogger(c.Logger)
	if c.Disabled {
		logger.Info("vote queue consumer disabled by feature flag",
			"event", "ballot_vote_consumer_disabled",
			"module", "elections/ballot-engine",
			"layer", "worker",
		)
		return nil
	}
	queue := c.queue()
	c.transition(logger, StateConnecting, queue)
	for {
		err := c.consumeSession(ctx, logger, queue)
		if ctx.Err() != nil {
			c.transition(logger, StateStopped, queue)
			return nil
		}
		wait := c.nextDelay()
		logger.Warn("vote queue session lost",
			"event", "ballot_vote_consumer_session_lost",
			"module", "elections/ballot-engine",
			"layer", "worker",
			"queue", queue,
			"retry_in", wait.String(),
			"error", errString(err),
		)
		c.transition(logger, StateDisconnected, queue)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.transition(logger, StateStopped, queue)
			return nil
		case <-timer.C:
		}
		c.transition(logger, StateReconnecting, queue)
	}
}

func (c VoteQueueConsumer) consumeSession(ctx context.Context, logger *slog.Logger, queue string) error {
	channel, err := c.Broker.OpenChannel(ctx)
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() {
		_ = channel.Close()
	}()

	if _, err := channel.DeclareQueue(ctx, ports.QueueSpec{Name: queue, Durable: true}); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	deliveries, err := channel.Consume(ctx, queue, c.consumerTag())
	if err != nil {
		return fmt.Errorf("consume queue %s: %w", queue, err)
	}
	if c.BackOff != nil {
		c.BackOff.Reset()
	}
	c.transition(logger, StateConnected, queue)

	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return errDeliveriesClosed
			}
			if err := c.handleDelivery(ctx, logger, channel, delivery); err != nil {
				return err
			}
		}
	}
}

func (c VoteQueueConsumer) handleDelivery(
	ctx context.Context,
	logger *slog.Logger,
	channel ports.BrokerChannel,
	delivery ports.Delivery,
) error {
	reply, err := c.process(ctx, logger, delivery)
	if err != nil {
		// Cancelled mid-operation; leave the delivery for redelivery.
		return err
	}
	body, err := json.Marshal(reply)
	if err != nil {
		return fmt.Errorf("encode vote reply: %w", err)
	}
	if strings.TrimSpace(delivery.ReplyTo) != "" {
		if err := channel.Publish(ctx, delivery.ReplyTo, ports.Message{
			Body:          body,
			ContentType:   rpcv1.ContentTypeJSON,
			CorrelationID: reply.CorrelationID,
		}); err != nil {
			logger.Error("vote reply publish failed",
				"event", "ballot_vote_consumer_reply_failed",
				"module", "elections/ballot-engine",
				"layer", "worker",
				"correlation_id", reply.CorrelationID,
				"reply_to", delivery.ReplyTo,
				"error", err.Error(),
			)
			return fmt.Errorf("publish reply: %w", err)
		}
	} else {
		logger.Warn("vote message has no reply queue",
			"event", "ballot_vote_consumer_reply_missing",
			"module", "elections/ballot-engine",
			"layer", "worker",
			"correlation_id", reply.CorrelationID,
		)
	}
	if err := channel.Ack(ctx, delivery.DeliveryTag); err != nil {
		return fmt.Errorf("ack delivery: %w", err)
	}
	logger.Debug("vote message handled",
		"event", "ballot_vote_consumer_handled",
		"module", "elections/ballot-engine",
		"layer", "worker",
		"correlation_id", reply.CorrelationID,
		"status", reply.Status,
		"reason", reply.Reason,
	)
	return nil
}

func (c VoteQueueConsumer) process(
	ctx context.Context,
	logger *slog.Logger,
	delivery ports.Delivery,
) (rpcv1.VoteReply, error) {
	var msg rpcv1.VoteMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		logger.Warn("vote message decode failed",
			"event", "ballot_vote_consumer_decode_failed",
			"module", "elections/ballot-engine",
			"layer", "worker",
			"correlation_id", delivery.CorrelationID,
			"error", err.Error(),
		)
		return unhandledReply(delivery.CorrelationID, ""), nil
	}
	correlationID := strings.TrimSpace(delivery.CorrelationID)
	if correlationID == "" {
		correlationID = strings.TrimSpace(msg.CorrelationID)
	}

	var (
		result entities.Result
		err    error
	)
	switch msg.Action {
	case rpcv1.ActionAdd:
		result, err = c.Engine.CastVote(ctx, sql.LevelReadCommitted, msg.VoterEmail, msg.CandidateEmail)
	case rpcv1.ActionRemove:
		result, err = c.Engine.RetractVote(ctx, sql.LevelReadCommitted, msg.VoterEmail, msg.CandidateEmail)
	case rpcv1.ActionSwitchToCandidate:
		result, err = c.Engine.SwitchToCandidate(ctx, sql.LevelReadCommitted, msg.VoterEmail)
	case rpcv1.ActionSwitchToVoter:
		result, err = c.Engine.SwitchToVoter(ctx, sql.LevelReadCommitted, msg.VoterEmail)
	default:
		logger.Warn("vote message action unknown",
			"event", "ballot_vote_consumer_action_unknown",
			"module", "elections/ballot-engine",
			"layer", "worker",
			"correlation_id", correlationID,
			"action", msg.Action,
		)
		return unhandledReply(correlationID, msg.Action), nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return rpcv1.VoteReply{}, ctx.Err()
		}
		return rpcv1.VoteReply{
			CorrelationID: correlationID,
			Status:        rpcv1.StatusFailed,
			Message:       "Ballot store unavailable",
			Reason:        rpcv1.ReasonUnavailable,
		}, nil
	}
	if result.Success {
		return rpcv1.VoteReply{
			CorrelationID: correlationID,
			Status:        rpcv1.StatusSuccess,
			Message:       result.Message,
		}, nil
	}
	return rpcv1.VoteReply{
		CorrelationID: correlationID,
		Status:        rpcv1.StatusFailed,
		Message:       result.Message,
		Reason:        string(result.Failure),
	}, nil
}

func unhandledReply(correlationID string, action string) rpcv1.VoteReply {
	return rpcv1.VoteReply{
		CorrelationID: correlationID,
		Status:        rpcv1.StatusUnhandled,
		Message:       fmt.Sprintf("The request could not be handled. Action: '%s'", action),
		Reason:        string(entities.FailureUnhandled),
	}
}

func (c VoteQueueConsumer) transition(logger *slog.Logger, state ConsumerState, queue string) {
	logger.Info("vote queue consumer state changed",
		"event", "ballot_vote_consumer_state",
		"module", "elections/ballot-engine",
		"layer", "worker",
		"queue", queue,
		"state", string(state),
	)
	if c.OnStateChange != nil {
		c.OnStateChange(state)
	}
}

func (c VoteQueueConsumer) nextDelay() time.Duration {
	if c.BackOff != nil {
		if wait := c.BackOff.NextBackOff(); wait >= 0 {
			return wait
		}
	}
	if c.ReconnectDelay > 0 {
		return c.ReconnectDelay
	}
	return defaultReconnectDelay
}

func (c VoteQueueConsumer) queue() string {
	if queue := strings.TrimSpace(c.Queue); queue != "" {
		return queue
	}
	return defaultVoteQueue
}

func (c VoteQueueConsumer) consumerTag() string {
	if tag := strings.TrimSpace(c.ConsumerTag); tag != "" {
		return tag
	}
	return defaultConsumerTag
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
