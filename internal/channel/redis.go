package channel

import (
	"context"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/mattjoyce/relaybus/internal/command"
	"github.com/mattjoyce/relaybus/internal/log"
)

// Redis moves envelopes over redis pub/sub. PUBLISH already has the contract
// this transport needs: no acknowledgment, no persistence, subscribers that
// are absent simply miss the message.
type Redis struct {
	client *redis.Client
	name   string
	logger *slog.Logger

	queue chan command.Command

	closeOnce sync.Once
	done      chan struct{}
}

// NewRedis connects to addr and publishes envelopes on the named channel.
func NewRedis(addr, name string) *Redis {
	r := &Redis{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		name:   name,
		logger: log.WithComponent("channel"),
		queue:  make(chan command.Command, pipeQueueDepth),
		done:   make(chan struct{}),
	}
	go r.publishLoop()
	return r
}

func (r *Redis) Send(cmd command.Command) {
	select {
	case <-r.done:
	case r.queue <- cmd:
	default:
	}
}

// Close stops the publisher and releases the client connection.
func (r *Redis) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		_ = r.client.Close()
	})
}

func (r *Redis) publishLoop() {
	ctx := context.Background()
	for {
		select {
		case <-r.done:
			return
		case cmd := <-r.queue:
			data, err := command.Encode(cmd)
			if err != nil {
				continue
			}
			// Fire-and-forget: publish errors are absorbed.
			_ = r.client.Publish(ctx, r.name, data).Err()
		}
	}
}

// Receive subscribes to the channel and feeds decoded commands to sink until
// ctx is cancelled. Arrival order within the subscription is preserved.
func (r *Redis) Receive(ctx context.Context, sink Sink) error {
	pubsub := r.client.Subscribe(ctx, r.name)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			cmd, err := command.Decode([]byte(msg.Payload))
			if err != nil {
				r.logger.Warn("rejected inbound envelope", "error", err)
				continue
			}
			sink.Dispatch(cmd)
		}
	}
}
