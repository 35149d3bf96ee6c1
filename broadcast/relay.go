package broadcast

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/Resized/todo-list/domain"
)

const (
	// DefaultRelayChannel is the pub/sub channel shared by server instances.
	DefaultRelayChannel = "tasks:changes"
	relayPublishTimeout = 2 * time.Second
	relayRetryDelay     = time.Second
)

type relayEnvelope struct {
	Instance   string           `json:"instance"`
	Originator string           `json:"originator,omitempty"`
	Kind       domain.EventKind `json:"kind"`
	Task       domain.Task      `json:"task"`
}

// Relay broadcasts changes to the local registry and forwards them through
// Redis pub/sub so streams connected to other server instances receive them
// too. The originator filter travels with the change.
type Relay struct {
	local    *Broadcaster
	rc       *redis.Client
	channel  string
	instance string
	logger   *log.Logger
}

func NewRelay(local *Broadcaster, rc *redis.Client, channel string, logger *log.Logger) *Relay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Relay{
		local:    local,
		rc:       rc,
		channel:  channel,
		instance: uuid.NewString(),
		logger:   logger,
	}
}

// Publish implements domain.Notifier.
func (r *Relay) Publish(ev domain.ChangeEvent, originator string) {
	r.local.Broadcast(ev, originator)

	data, err := sonic.Marshal(relayEnvelope{
		Instance:   r.instance,
		Originator: originator,
		Kind:       ev.Kind,
		Task:       ev.Task,
	})
	if err != nil {
		r.logger.WithError(err).Error("marshal relay envelope")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), relayPublishTimeout)
	defer cancel()
	if err := r.rc.Publish(ctx, r.channel, data).Err(); err != nil {
		r.logger.WithError(err).WithField("channel", r.channel).Error("relay publish failed")
	}
}

// Run forwards changes published by other instances to local streams until
// ctx is cancelled. Lost subscriptions are re-established.
func (r *Relay) Run(ctx context.Context) {
	for {
		sub := r.rc.Subscribe(ctx, r.channel)
		if _, err := sub.Receive(ctx); err != nil {
			_ = sub.Close()
			if ctx.Err() != nil {
				return
			}
			r.logger.WithError(err).Error("relay subscribe failed, retrying")
			if !sleepCtx(ctx, relayRetryDelay) {
				return
			}
			continue
		}
		r.consume(ctx, sub.Channel())
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		r.logger.Error("relay channel closed, reconnecting")
		if !sleepCtx(ctx, relayRetryDelay) {
			return
		}
	}
}

func (r *Relay) consume(ctx context.Context, ch <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env relayEnvelope
			if err := sonic.UnmarshalString(msg.Payload, &env); err != nil {
				r.logger.Errorf("unable to parse relayed change: %v", err)
				continue
			}
			if env.Instance == r.instance {
				continue
			}
			if env.Kind.StreamName() == "" {
				r.logger.Warnf("Received unknown change kind %s in %s channel - ignoring it", env.Kind, r.channel)
				continue
			}
			r.local.Broadcast(domain.ChangeEvent{Kind: env.Kind, Task: env.Task}, env.Originator)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
