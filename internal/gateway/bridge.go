package gateway

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const bridgeChannel = "chatsphere:events"

// Bridge mirrors locally produced gateway events to Redis pub/sub and
// replays events produced by other instances, so fan-out spans every
// instance sharing the store. Purely best-effort: a Redis hiccup loses
// live events, never persisted state.
type Bridge struct {
	hub        *Hub
	rdb        *redis.Client
	instanceID string
	log        zerolog.Logger
}

type bridgeEnvelope struct {
	Origin         string          `json:"origin"`
	Scope          string          `json:"scope"`
	ConversationID int64           `json:"conversation_id,omitempty"`
	UserID         int64           `json:"user_id,omitempty"`
	ExcludeUserID  int64           `json:"exclude_user_id,omitempty"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
}

func newBridge(hub *Hub, rdb *redis.Client, log zerolog.Logger) *Bridge {
	id := make([]byte, 8)
	rand.Read(id)
	return &Bridge{
		hub:        hub,
		rdb:        rdb,
		instanceID: hex.EncodeToString(id),
		log:        log.With().Str("component", "gateway-bridge").Logger(),
	}
}

func (b *Bridge) publish(d delivery) {
	env := bridgeEnvelope{
		Origin:         b.instanceID,
		Scope:          d.scope,
		ConversationID: d.conversationID,
		UserID:         d.userID,
		ExcludeUserID:  d.excludeUserID,
		EventType:      d.eventType,
		Payload:        d.payload,
	}
	data, err := json.Marshal(env)
	if err != nil {
		b.log.Error().Err(err).Msg("encode bridge envelope")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.rdb.Publish(ctx, bridgeChannel, data).Err(); err != nil {
		b.log.Error().Err(err).Msg("bridge publish failed")
	}
}

// run replays events from other instances into the local hub.
func (b *Bridge) run(ctx context.Context) {
	pubsub := b.rdb.Subscribe(ctx, bridgeChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env bridgeEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.log.Warn().Err(err).Msg("malformed bridge envelope dropped")
				continue
			}
			if env.Origin == b.instanceID {
				continue
			}
			b.hub.deliveries <- delivery{
				scope:          env.Scope,
				conversationID: env.ConversationID,
				userID:         env.UserID,
				excludeUserID:  env.ExcludeUserID,
				eventType:      env.EventType,
				payload:        env.Payload,
				remote:         true,
			}
		case <-ctx.Done():
			return
		}
	}
}
