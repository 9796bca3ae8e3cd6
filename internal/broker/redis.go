package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MeiCorl/mall-relay/internal/metrics"
	"github.com/MeiCorl/mall-relay/internal/models"
)

// Options names the broker topics and queues. Names are configuration,
// not protocol.
type Options struct {
	MerchantNotifyTopic string // "new merchant-bound message" notifications
	MerchantQueue       string // serialized Messages awaiting routing to merchants
	ConsumerNotifyTopic string
	ConsumerQueue       string
	OfflinePrefix       string // per-merchant offline list, e.g. "offline:<id>"
}

// Broker connects the relay to the consumer backend over Redis: a pub/sub
// notification topic plus a work queue per direction, and a per-merchant
// offline list for undeliverable messages.
type Broker struct {
	client *redis.Client
	opts   Options
}

// New creates a broker from a Redis URL and verifies the connection.
func New(ctx context.Context, redisURL string, opts Options) (*Broker, error) {
	ropts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(ropts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Broker{client: client, opts: opts}, nil
}

// NewWithClient wraps an existing client. Used by tests.
func NewWithClient(client *redis.Client, opts Options) *Broker {
	return &Broker{client: client, opts: opts}
}

// Close closes the Redis connection.
func (b *Broker) Close() error {
	return b.client.Close()
}

// Ping checks the Redis connection.
func (b *Broker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// offlineKey returns the key for a merchant's offline backlog list.
func (b *Broker) offlineKey(merchantID int64) string {
	return fmt.Sprintf("%s%d", b.opts.OfflinePrefix, merchantID)
}

// PushConsumerBound enqueues a raw merchant-authored frame for the consumer
// backend and publishes a wake-up notification. The payload is forwarded
// verbatim; no acknowledgment is awaited.
func (b *Broker) PushConsumerBound(ctx context.Context, raw []byte) error {
	return b.push(ctx, b.opts.ConsumerQueue, b.opts.ConsumerNotifyTopic, raw)
}

// PushMerchantBound enqueues a consumer-authored message for routing to a
// merchant. A ULID and timestamp are assigned if the producer left them
// empty.
func (b *Broker) PushMerchantBound(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.push(ctx, b.opts.MerchantQueue, b.opts.MerchantNotifyTopic, raw)
}

func (b *Broker) push(ctx context.Context, queue, topic string, raw []byte) error {
	start := time.Now()

	pipe := b.client.Pipeline()
	pipe.LPush(ctx, queue, raw)
	pipe.Publish(ctx, topic, "new")
	_, err := pipe.Exec(ctx)

	metrics.RedisLatency.Observe(time.Since(start).Seconds())
	return err
}

// PopMerchantBound pops the oldest not-yet-routed merchant-bound message.
// An empty queue yields (nil, nil): a spurious wake or another consumer
// already drained it.
func (b *Broker) PopMerchantBound(ctx context.Context) ([]byte, error) {
	return b.pop(ctx, b.opts.MerchantQueue)
}

// PopConsumerBound pops the oldest consumer-bound message. The consumer
// backend calls the mirror of this on its side; it exists here for the
// symmetric API and for tests.
func (b *Broker) PopConsumerBound(ctx context.Context) ([]byte, error) {
	return b.pop(ctx, b.opts.ConsumerQueue)
}

func (b *Broker) pop(ctx context.Context, queue string) ([]byte, error) {
	raw, err := b.client.RPop(ctx, queue).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// SubscribeMerchantNotify subscribes to the merchant-bound notification
// topic. The caller consumes pubsub.Channel(), which carries message events
// only (subscribe acknowledgments are filtered by the client).
func (b *Broker) SubscribeMerchantNotify(ctx context.Context) *redis.PubSub {
	return b.client.Subscribe(ctx, b.opts.MerchantNotifyTopic)
}

// AppendOffline appends a raw serialized message to a merchant's offline
// backlog. The list is created implicitly on first append.
func (b *Broker) AppendOffline(ctx context.Context, merchantID int64, raw []byte) error {
	start := time.Now()
	err := b.client.RPush(ctx, b.offlineKey(merchantID), raw).Err()
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
	return err
}

// PrependOffline puts drained entries back at the head of a merchant's
// offline backlog, preserving their original order ahead of anything
// appended meanwhile. Used when a backlog flush fails partway: AppendOffline
// would land the older entries behind newer redirects and break FIFO.
func (b *Broker) PrependOffline(ctx context.Context, merchantID int64, raws [][]byte) error {
	if len(raws) == 0 {
		return nil
	}

	// LPUSH pushes left-to-right, each value becoming the new head, so the
	// slice goes in reversed to come back out in order. One command, atomic.
	vals := make([]interface{}, len(raws))
	for i, raw := range raws {
		vals[len(raws)-1-i] = raw
	}

	start := time.Now()
	err := b.client.LPush(ctx, b.offlineKey(merchantID), vals...).Err()
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
	return err
}

// drainScript reads the whole offline list and trims exactly the entries it
// read, in one atomic step. Entries appended concurrently with the drain
// stay on the list for the next drain or notification tick.
var drainScript = redis.NewScript(`
local items = redis.call('LRANGE', KEYS[1], 0, -1)
if #items > 0 then
  redis.call('LTRIM', KEYS[1], #items, -1)
end
return items
`)

// DrainOffline atomically removes and returns a merchant's entire offline
// backlog in FIFO order.
func (b *Broker) DrainOffline(ctx context.Context, merchantID int64) ([][]byte, error) {
	start := time.Now()
	res, err := drainScript.Run(ctx, b.client, []string{b.offlineKey(merchantID)}).Result()
	metrics.RedisLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	items, ok := res.([]interface{})
	if !ok {
		return nil, fmt.Errorf("drain: unexpected reply type %T", res)
	}

	out := make([][]byte, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("drain: unexpected entry type %T", item)
		}
		out = append(out, []byte(s))
	}
	return out, nil
}

// OfflineLen returns the current depth of a merchant's offline backlog.
func (b *Broker) OfflineLen(ctx context.Context, merchantID int64) (int64, error) {
	return b.client.LLen(ctx, b.offlineKey(merchantID)).Result()
}

// QueueLens returns the merchant-bound and consumer-bound work queue depths.
func (b *Broker) QueueLens(ctx context.Context) (merchant, consumer int64, err error) {
	merchant, err = b.client.LLen(ctx, b.opts.MerchantQueue).Result()
	if err != nil {
		return 0, 0, err
	}
	consumer, err = b.client.LLen(ctx, b.opts.ConsumerQueue).Result()
	if err != nil {
		return 0, 0, err
	}
	return merchant, consumer, nil
}

// Client exposes the underlying redis client for middleware that shares the
// connection (rate limiting).
func (b *Broker) Client() *redis.Client {
	return b.client
}
