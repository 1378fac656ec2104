package hub

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/tidecast/tidecast/internal/trip"
)

// envelope wraps a republished event with the originating instance ID so
// an instance can skip events it already fanned out locally.
type envelope struct {
	Origin string           `json:"origin"`
	Event  trip.UpdateEvent `json:"event"`
}

// Bridge republishes broadcasts over Redis pub/sub so a multi-instance
// deployment can fan events out beyond one process. One process-wide
// registry only covers local connections; the bridge is the answer to
// that scaling gap.
type Bridge struct {
	rdb        *redis.Client
	channel    string
	instanceID string
	logger     *slog.Logger
}

// NewBridge creates a bridge publishing on the given channel. instanceID
// must be unique per process (a UUID).
func NewBridge(rdb *redis.Client, channel, instanceID string, logger *slog.Logger) *Bridge {
	return &Bridge{rdb: rdb, channel: channel, instanceID: instanceID, logger: logger}
}

// Publish republishes a locally-broadcast event for other instances.
// Failures are logged, not propagated; local delivery already happened.
func (b *Bridge) Publish(ev trip.UpdateEvent) {
	payload, err := json.Marshal(envelope{Origin: b.instanceID, Event: ev})
	if err != nil {
		b.logger.Error("bridge: marshal envelope", "error", err)
		return
	}
	if err := b.rdb.Publish(context.Background(), b.channel, payload).Err(); err != nil {
		b.logger.Warn("bridge: publish failed", "channel", b.channel, "error", err)
	}
}

// Run subscribes to the bridge channel and fans remote events out to the
// local hub. It blocks until ctx is cancelled; call it in a goroutine.
func (b *Bridge) Run(ctx context.Context, h *Hub) {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	b.logger.Info("bridge: listening", "channel", b.channel, "instance_id", b.instanceID)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.dispatch([]byte(msg.Payload), h)
		}
	}
}

// dispatch fans one received envelope out to the local hub. Envelopes
// this instance published are skipped: local delivery happened in
// Broadcast before the republish. Returns the local delivery count.
func (b *Bridge) dispatch(payload []byte, h *Hub) int {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		b.logger.Warn("bridge: bad envelope", "error", err)
		return 0
	}
	if env.Origin == b.instanceID {
		return 0
	}
	return h.broadcastLocal(env.Event)
}
