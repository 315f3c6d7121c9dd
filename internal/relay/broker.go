package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const publishTimeout = 2 * time.Second

// Broker fans relay messages out across API instances over Redis
// pub/sub. Every instance subscribes to one channel and delivers each
// received frame to its local connections, so a user's sockets get the
// message no matter which instance handled the triggering request.
type Broker struct {
	rdb     *redis.Client
	hub     *Hub
	channel string
	log     *slog.Logger
}

type brokerFrame struct {
	UserID string  `json:"user_id,omitempty"`
	All    bool    `json:"all,omitempty"`
	Msg    Message `json:"msg"`
}

func NewBroker(rdb *redis.Client, hub *Hub, log *slog.Logger) *Broker {
	if log == nil {
		log = slog.Default()
	}
	b := &Broker{
		rdb:     rdb,
		hub:     hub,
		channel: "softphone:relay",
		log:     log,
	}
	hub.setPublisher(b.publishFrame)
	return b
}

func (b *Broker) publishFrame(userID string, all bool, msg Message) error {
	payload, err := json.Marshal(brokerFrame{UserID: userID, All: all, Msg: msg})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return b.rdb.Publish(ctx, b.channel, payload).Err()
}

// Run consumes the pub/sub channel until ctx is cancelled.
func (b *Broker) Run(ctx context.Context) {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			var frame brokerFrame
			if err := json.Unmarshal([]byte(m.Payload), &frame); err != nil {
				b.log.Warn("relay broker frame parse failed", "err", err)
				continue
			}
			b.hub.deliver(frame.UserID, frame.All, frame.Msg)
		}
	}
}
