// messaging/redis_client.go
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"wildfire-analytics/internal/domain"
)

const (
	DefaultPrefix        = "wildfire"
	DefaultConsumerGroup = "analytics-workers"

	defaultBlock        = 5 * time.Second
	defaultPromoteEvery = time.Second
	maintenanceBatch    = 100
)

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, url, password string, db int) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:         url,
		Password:     password,
		DB:           db,
		PoolSize:     20,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

type RedisBrokerOptions struct {
	Prefix        string
	ConsumerGroup string
	// ConsumerName defaults to a random per-process name.
	ConsumerName string
	Block        time.Duration
	// ClaimIdle is how long a delivery may stay unacknowledged before another
	// consumer takes it over.
	ClaimIdle time.Duration
}

// RedisBroker keeps one stream per queue, read through a single consumer
// group. Delayed messages wait in a sorted set scored by due time.
type RedisBroker struct {
	client   *redis.Client
	prefix   string
	group    string
	consumer string
	block    time.Duration
	idle     time.Duration
	logger   *zap.Logger

	// XREADGROUP returns up to one entry per stream; extras wait here.
	mu       sync.Mutex
	buffered []*Delivery

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

func NewRedisBroker(ctx context.Context, client *redis.Client, opts RedisBrokerOptions, logger *zap.Logger) (*RedisBroker, error) {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.ConsumerGroup == "" {
		opts.ConsumerGroup = DefaultConsumerGroup
	}
	if opts.ConsumerName == "" {
		opts.ConsumerName = "consumer-" + uuid.NewString()
	}
	if opts.Block <= 0 {
		opts.Block = defaultBlock
	}
	if opts.ClaimIdle <= 0 {
		opts.ClaimIdle = 30 * time.Minute
	}

	b := &RedisBroker{
		client:   client,
		prefix:   opts.Prefix,
		group:    opts.ConsumerGroup,
		consumer: opts.ConsumerName,
		block:    opts.Block,
		idle:     opts.ClaimIdle,
		logger:   logger.Named("redis-broker"),
		stop:     make(chan struct{}),
	}

	for _, q := range domain.QueueNames() {
		if err := b.createConsumerGroup(ctx, b.streamKey(q)); err != nil {
			return nil, err
		}
	}

	b.logger.Info("Redis broker initialized",
		zap.String("prefix", b.prefix),
		zap.String("group", b.group),
		zap.String("consumer", b.consumer))
	return b, nil
}

func (b *RedisBroker) streamKey(q domain.QueueName) string {
	return b.prefix + ":queue:" + string(q)
}

func (b *RedisBroker) delayedKey() string {
	return b.prefix + ":delayed"
}

func (b *RedisBroker) deadKey() string {
	return b.prefix + ":dead"
}

func (b *RedisBroker) createConsumerGroup(ctx context.Context, stream string) error {
	err := b.client.XGroupCreateMkStream(ctx, stream, b.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group on %s: %w", stream, err)
	}
	return nil
}

func (b *RedisBroker) Publish(ctx context.Context, msg *TaskMessage) error {
	data, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	return b.add(ctx, msg.Queue, msg.TaskID, string(data))
}

func (b *RedisBroker) add(ctx context.Context, queue domain.QueueName, taskID, data string) error {
	id, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.streamKey(queue),
		Values: map[string]interface{}{
			"task_id": taskID,
			"data":    data,
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to Redis Stream: %w", err)
	}

	b.logger.Debug("Task published",
		zap.String("task_id", taskID),
		zap.String("queue", string(queue)),
		zap.String("stream_id", id))
	return nil
}

// PublishDelayed parks msg until delay has passed; PromoteDue moves it onto
// its stream afterwards.
func (b *RedisBroker) PublishDelayed(ctx context.Context, msg *TaskMessage, delay time.Duration) error {
	if delay <= 0 {
		return b.Publish(ctx, msg)
	}
	data, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	due := time.Now().Add(delay).UnixMilli()
	if err := b.client.ZAdd(ctx, b.delayedKey(), redis.Z{Score: float64(due), Member: string(data)}).Err(); err != nil {
		return fmt.Errorf("failed to schedule delayed message: %w", err)
	}
	return nil
}

func (b *RedisBroker) Consume(ctx context.Context, queues []domain.QueueName) (*Delivery, error) {
	if len(queues) == 0 {
		return nil, errors.New("no queues to consume from")
	}
	streams := make([]string, 0, 2*len(queues))
	for _, q := range queues {
		streams = append(streams, b.streamKey(q))
	}
	for range queues {
		streams = append(streams, ">")
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.stop:
			return nil, ErrBrokerClosed
		default:
		}

		if d := b.takeBuffered(queues); d != nil {
			return d, nil
		}

		res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    b.group,
			Consumer: b.consumer,
			Streams:  streams,
			Count:    1,
			Block:    b.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, redis.ErrClosed) {
				return nil, ErrBrokerClosed
			}
			return nil, fmt.Errorf("failed to read from Redis Stream: %w", err)
		}

		var first *Delivery
		for _, stream := range res {
			for _, m := range stream.Messages {
				queue := b.queueFromStream(stream.Stream)
				d, err := b.toDelivery(queue, m)
				if err != nil {
					b.deadLetter(ctx, stream.Stream, m, err)
					continue
				}
				if first == nil {
					first = d
					continue
				}
				b.mu.Lock()
				b.buffered = append(b.buffered, d)
				b.mu.Unlock()
			}
		}
		if first != nil {
			return first, nil
		}
	}
}

func (b *RedisBroker) takeBuffered(queues []domain.QueueName) *Delivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, d := range b.buffered {
		for _, q := range queues {
			if d.Queue == q {
				b.buffered = append(b.buffered[:i], b.buffered[i+1:]...)
				return d
			}
		}
	}
	return nil
}

func (b *RedisBroker) queueFromStream(stream string) domain.QueueName {
	return domain.QueueName(strings.TrimPrefix(stream, b.prefix+":queue:"))
}

func (b *RedisBroker) toDelivery(queue domain.QueueName, m redis.XMessage) (*Delivery, error) {
	raw, ok := m.Values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: no data field", ErrMalformedMessage)
	}
	msg, err := decodeMessage([]byte(raw))
	if err != nil {
		return nil, err
	}
	return &Delivery{ID: m.ID, Queue: queue, Message: msg}, nil
}

// deadLetter parks an undecodable entry for inspection and acknowledges it so
// it is never delivered again.
func (b *RedisBroker) deadLetter(ctx context.Context, stream string, m redis.XMessage, cause error) {
	b.logger.Warn("Dead-lettering malformed message",
		zap.String("stream", stream),
		zap.String("stream_id", m.ID),
		zap.Error(cause))

	values := map[string]interface{}{
		"stream":    stream,
		"stream_id": m.ID,
		"error":     cause.Error(),
	}
	if raw, ok := m.Values["data"].(string); ok {
		values["data"] = raw
	}
	if err := b.client.XAdd(ctx, &redis.XAddArgs{Stream: b.deadKey(), Values: values}).Err(); err != nil {
		b.logger.Error("Failed to dead-letter message", zap.String("stream_id", m.ID), zap.Error(err))
	}
	if err := b.client.XAck(ctx, stream, b.group, m.ID).Err(); err != nil {
		b.logger.Error("Failed to ACK dead-lettered message", zap.String("stream_id", m.ID), zap.Error(err))
	}
}

func (b *RedisBroker) Ack(ctx context.Context, d *Delivery) error {
	if err := b.client.XAck(ctx, b.streamKey(d.Queue), b.group, d.ID).Err(); err != nil {
		return fmt.Errorf("failed to ACK message %s: %w", d.ID, err)
	}
	return nil
}

// promoteScript moves one delayed member onto its stream. XADD runs before
// ZREM, so a failed XADD aborts the script with the member still parked.
var promoteScript = redis.NewScript(`
if not redis.call('ZSCORE', KEYS[1], ARGV[1]) then
  return 0
end
redis.call('XADD', KEYS[2], '*', 'task_id', ARGV[2], 'data', ARGV[1])
redis.call('ZREM', KEYS[1], ARGV[1])
return 1
`)

// PromoteDue publishes every delayed message whose due time is not after now
// and returns how many it moved. Each move runs as one script, so a member
// is never lost between the zset and the stream and concurrent promoters
// never publish it twice.
func (b *RedisBroker) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	members, err := b.client.ZRangeByScore(ctx, b.delayedKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: maintenanceBatch,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read delayed messages: %w", err)
	}

	moved := 0
	for _, member := range members {
		msg, err := decodeMessage([]byte(member))
		if err != nil {
			b.logger.Warn("Dropping malformed delayed message", zap.Error(err))
			if err := b.client.ZRem(ctx, b.delayedKey(), member).Err(); err != nil {
				return moved, fmt.Errorf("failed to drop delayed message: %w", err)
			}
			continue
		}
		keys := []string{b.delayedKey(), b.streamKey(msg.Queue)}
		n, err := promoteScript.Run(ctx, b.client, keys, member, msg.TaskID).Int()
		if err != nil {
			return moved, fmt.Errorf("failed to promote delayed task %s: %w", msg.TaskID, err)
		}
		moved += n
	}
	return moved, nil
}

// ReclaimStale re-publishes deliveries that have been pending longer than the
// claim idle time, typically because their consumer died mid-task.
func (b *RedisBroker) ReclaimStale(ctx context.Context) (int, error) {
	reclaimed := 0
	for _, q := range domain.QueueNames() {
		stream := b.streamKey(q)
		pending, err := b.client.XPendingExt(ctx, &redis.XPendingExtArgs{
			Stream: stream,
			Group:  b.group,
			Idle:   b.idle,
			Start:  "-",
			End:    "+",
			Count:  maintenanceBatch,
		}).Result()
		if err != nil {
			return reclaimed, fmt.Errorf("failed to list pending messages on %s: %w", stream, err)
		}
		if len(pending) == 0 {
			continue
		}

		ids := make([]string, 0, len(pending))
		for _, p := range pending {
			ids = append(ids, p.ID)
		}
		claimed, err := b.client.XClaim(ctx, &redis.XClaimArgs{
			Stream:   stream,
			Group:    b.group,
			Consumer: b.consumer,
			MinIdle:  b.idle,
			Messages: ids,
		}).Result()
		if err != nil {
			return reclaimed, fmt.Errorf("failed to claim pending messages on %s: %w", stream, err)
		}

		for _, m := range claimed {
			raw, _ := m.Values["data"].(string)
			taskID, _ := m.Values["task_id"].(string)
			if raw != "" {
				if err := b.add(ctx, q, taskID, raw); err != nil {
					return reclaimed, err
				}
			}
			if err := b.client.XAck(ctx, stream, b.group, m.ID).Err(); err != nil {
				return reclaimed, fmt.Errorf("failed to ACK reclaimed message %s: %w", m.ID, err)
			}
			reclaimed++
			b.logger.Warn("Reclaimed stale delivery",
				zap.String("task_id", taskID),
				zap.String("queue", string(q)),
				zap.String("stream_id", m.ID))
		}
	}
	return reclaimed, nil
}

// Start runs delayed-message promotion and stale-delivery reclaim until ctx
// is done or the broker is closed.
func (b *RedisBroker) Start(ctx context.Context) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		promote := time.NewTicker(defaultPromoteEvery)
		defer promote.Stop()
		reclaimEvery := b.idle / 4
		if reclaimEvery < time.Second {
			reclaimEvery = time.Second
		}
		reclaim := time.NewTicker(reclaimEvery)
		defer reclaim.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-b.stop:
				return
			case now := <-promote.C:
				if _, err := b.PromoteDue(ctx, now); err != nil && ctx.Err() == nil {
					b.logger.Error("Delayed message promotion failed", zap.Error(err))
				}
			case <-reclaim.C:
				if _, err := b.ReclaimStale(ctx); err != nil && ctx.Err() == nil {
					b.logger.Error("Stale delivery reclaim failed", zap.Error(err))
				}
			}
		}
	}()
}

func (b *RedisBroker) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("Redis ping failed: %w", err)
	}
	return nil
}

// QueueDepth returns the number of entries in the queue's stream.
func (b *RedisBroker) QueueDepth(ctx context.Context, q domain.QueueName) (int64, error) {
	return b.client.XLen(ctx, b.streamKey(q)).Result()
}

// Close stops the maintenance loop. The Redis client belongs to the caller.
func (b *RedisBroker) Close() error {
	b.stopOnce.Do(func() { close(b.stop) })
	b.wg.Wait()
	return nil
}
