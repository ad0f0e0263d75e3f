package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const aliveSuffix = ":alive"

// RedisConfig defines configuration for the Redis list queue.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"poolSize"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`

	// KeyPrefix is prepended to every topic. Default: "queue:"
	KeyPrefix string `yaml:"keyPrefix"`
	// ConsumerName identifies this process's processing list. Default: hostname-pid
	ConsumerName string `yaml:"consumerName"`
	// PollTimeout bounds one blocking pop so Stop is observed promptly. Default: 2s
	PollTimeout time.Duration `yaml:"pollTimeout"`
	// HeartbeatInterval refreshes this consumer's liveness key, which expires after three
	// intervals. Processing lists without a live key are reclaimed on Start. Default: 5s
	HeartbeatInterval time.Duration `yaml:"heartbeatInterval"`
}

// RedisQueue implements MessageQueue on Redis lists.
// Producers LPUSH; consumers move each element into a per-consumer processing list with
// BRPOPLPUSH and remove it once the handler has finished. On Start a consumer pushes back
// its own leftovers and those of any consumer whose heartbeat expired.
type RedisQueue struct {
	client *redis.Client
	config RedisConfig

	mu            sync.Mutex
	subscriptions []*redisSubscription
	started       bool
	closed        bool
}

type redisSubscription struct {
	topic   string
	handler HandlerFunc
	opts    SubscribeOptions
	baseCtx context.Context

	// ctx stops fetching; handlerCtx is never canceled by Stop so a dequeued job runs to completion.
	ctx        context.Context
	cancel     context.CancelFunc
	handlerCtx context.Context
	wg         sync.WaitGroup
	limiter    *TokenLimiter
	done       chan struct{}
	beating    sync.WaitGroup
}

// NewRedisQueue creates a Redis-backed message queue.
func NewRedisQueue(cfg RedisConfig) (*RedisQueue, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 10
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 3 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 3 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	return NewRedisQueueWithClient(client, cfg), nil
}

// NewRedisQueueWithClient wraps an existing client.
func NewRedisQueueWithClient(client *redis.Client, cfg RedisConfig) *RedisQueue {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "queue:"
	}
	if cfg.ConsumerName == "" {
		cfg.ConsumerName = defaultConsumerName()
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 2 * time.Second
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 5 * time.Second
	}
	return &RedisQueue{client: client, config: cfg}
}

// Publish pushes a message onto the topic list.
func (r *RedisQueue) Publish(ctx context.Context, topic string, message *Message) error {
	if message == nil {
		return errors.New("message is nil")
	}
	if topic == "" {
		return errors.New("topic is required")
	}
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode message failed: %w", err)
	}
	if err := r.client.LPush(ctx, r.listKey(topic), payload).Err(); err != nil {
		return fmt.Errorf("lpush failed: %w", err)
	}
	return nil
}

// Subscribe registers a handler for topic.
func (r *RedisQueue) Subscribe(ctx context.Context, topic string, handler HandlerFunc, opts *SubscribeOptions) error {
	if topic == "" {
		return errors.New("topic is required")
	}
	if handler == nil {
		return errors.New("handler is required")
	}
	var options SubscribeOptions
	if opts != nil {
		options = *opts
	}
	options.SetDefaults()
	if options.ConsumerGroup == "" {
		options.ConsumerGroup = topic
	}
	if ctx == nil {
		ctx = context.Background()
	}

	sub := &redisSubscription{
		topic:   topic,
		handler: handler,
		opts:    options,
		baseCtx: ctx,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("message queue is closed")
	}
	r.subscriptions = append(r.subscriptions, sub)
	if r.started {
		return r.startSubscription(sub)
	}
	return nil
}

// Start starts consuming messages for all subscriptions.
func (r *RedisQueue) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("message queue is closed")
	}
	if r.started {
		return nil
	}
	for _, sub := range r.subscriptions {
		if err := r.startSubscription(sub); err != nil {
			return err
		}
	}
	r.started = true
	return nil
}

func (r *RedisQueue) startSubscription(sub *redisSubscription) error {
	sub.ctx, sub.cancel = context.WithCancel(sub.baseCtx)
	sub.handlerCtx = context.WithoutCancel(sub.baseCtx)
	sub.limiter = NewTokenLimiter(sub.opts.Concurrency)
	sub.done = make(chan struct{})

	src := r.listKey(sub.topic)
	processing := r.processingKey(sub)
	if err := r.beat(sub.ctx, processing); err != nil {
		sub.cancel()
		return err
	}
	if err := r.requeueProcessing(sub.ctx, processing, src); err != nil {
		sub.cancel()
		return err
	}
	if err := r.reclaimOrphans(sub.ctx, sub, src); err != nil {
		sub.cancel()
		return err
	}
	sub.beating.Add(1)
	go r.heartbeat(sub, processing)

	sub.wg.Add(1)
	go func() {
		defer sub.wg.Done()
		for {
			if err := sub.limiter.Acquire(sub.ctx); err != nil {
				return
			}
			raw, err := r.client.BRPopLPush(sub.ctx, src, processing, r.config.PollTimeout).Result()
			if err != nil {
				sub.limiter.Release()
				if errors.Is(err, redis.Nil) {
					continue
				}
				if sub.ctx.Err() != nil {
					return
				}
				time.Sleep(100 * time.Millisecond)
				continue
			}
			sub.wg.Add(1)
			go func(raw string) {
				defer sub.wg.Done()
				defer sub.limiter.Release()
				r.handleMessage(sub, processing, raw)
			}(raw)
		}
	}()
	return nil
}

// requeueProcessing moves elements left in this consumer's processing list back to the topic.
func (r *RedisQueue) requeueProcessing(ctx context.Context, processing, src string) error {
	for {
		err := r.client.RPopLPush(ctx, processing, src).Err()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("requeue processing list failed: %w", err)
		}
	}
}

// reclaimOrphans requeues processing lists of the same topic and group whose owner stopped beating.
func (r *RedisQueue) reclaimOrphans(ctx context.Context, sub *redisSubscription, src string) error {
	own := r.processingKey(sub)
	pattern := r.config.KeyPrefix + sub.topic + ":processing:" + sub.opts.ConsumerGroup + ":*"
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if key == own || strings.HasSuffix(key, aliveSuffix) {
			continue
		}
		alive, err := r.client.Exists(ctx, key+aliveSuffix).Result()
		if err != nil {
			return fmt.Errorf("check consumer heartbeat failed: %w", err)
		}
		if alive > 0 {
			continue
		}
		if err := r.requeueProcessing(ctx, key, src); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan processing lists failed: %w", err)
	}
	return nil
}

func (r *RedisQueue) beat(ctx context.Context, processing string) error {
	if err := r.client.Set(ctx, processing+aliveSuffix, "1", 3*r.config.HeartbeatInterval).Err(); err != nil {
		return fmt.Errorf("consumer heartbeat failed: %w", err)
	}
	return nil
}

// heartbeat keeps the liveness key fresh until Stop has drained every handler.
func (r *RedisQueue) heartbeat(sub *redisSubscription, processing string) {
	defer sub.beating.Done()
	ticker := time.NewTicker(r.config.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-sub.done:
			return
		case <-ticker.C:
			_ = r.beat(sub.handlerCtx, processing)
		}
	}
}

func (r *RedisQueue) handleMessage(sub *redisSubscription, processing, raw string) {
	// Background context: the acknowledgement must land even while stopping.
	defer r.client.LRem(context.Background(), processing, 1, raw)

	m := decodeRedisMessage(raw)
	if m.MaxRetries == 0 {
		m.MaxRetries = sub.opts.MaxRetries
	}
	err := sub.handler(sub.handlerCtx, m)
	if err == nil {
		return
	}
	if m.ShouldRetry() && sub.ctx.Err() == nil {
		m.RetryCount++
		select {
		case <-time.After(sub.opts.RetryDelay):
		case <-sub.ctx.Done():
		}
		_ = r.Publish(context.Background(), sub.topic, m)
		return
	}
	if sub.opts.DeadLetterTopic != "" {
		_ = r.Publish(context.Background(), sub.opts.DeadLetterTopic, m)
	}
}

// Stop stops fetching and waits for in-flight handlers to finish.
func (r *RedisQueue) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sub := range r.subscriptions {
		if sub.cancel != nil {
			sub.cancel()
		}
	}
	for _, sub := range r.subscriptions {
		sub.wg.Wait()
		if sub.done != nil {
			close(sub.done)
			sub.done = nil
			sub.beating.Wait()
			r.client.Del(context.Background(), r.processingKey(sub)+aliveSuffix)
		}
	}
	r.started = false
	return nil
}

// Ping verifies the Redis connection.
func (r *RedisQueue) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close stops consumers and closes the client.
func (r *RedisQueue) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	_ = r.Stop()
	return r.client.Close()
}

// Len returns the number of pending messages on topic.
func (r *RedisQueue) Len(ctx context.Context, topic string) (int64, error) {
	return r.client.LLen(ctx, r.listKey(topic)).Result()
}

// defaultConsumerName is unique per process so two workers on one host never share
// (and requeue) each other's processing list.
func defaultConsumerName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return uuid.NewString()
	}
	return host + "-" + strconv.Itoa(os.Getpid())
}

func (r *RedisQueue) listKey(topic string) string {
	return r.config.KeyPrefix + topic
}

func (r *RedisQueue) processingKey(sub *redisSubscription) string {
	return r.config.KeyPrefix + sub.topic + ":processing:" + sub.opts.ConsumerGroup + ":" + r.config.ConsumerName
}

// decodeRedisMessage accepts both the JSON envelope written by Publish and a bare payload
// pushed by a foreign producer.
func decodeRedisMessage(raw string) *Message {
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err == nil && m.Body != nil {
		if m.Headers == nil {
			m.Headers = make(map[string]string)
		}
		return &m
	}
	return &Message{
		Body:      []byte(raw),
		Headers:   make(map[string]string),
		Timestamp: time.Now(),
	}
}
