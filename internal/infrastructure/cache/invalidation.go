package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Constants for broadcaster configuration
const (
	DefaultInvalidationChannel = "orchard:report:invalidation"
	defaultCloseTimeout        = 5 * time.Second
)

// MessageAction identifies what changed on the publishing instance
type MessageAction string

const (
	// ActionEntryRefreshed means a report entry was replaced in the shared store
	ActionEntryRefreshed MessageAction = "entry_refreshed"
	// ActionVersionBumped means a report type moved to a new schema version
	ActionVersionBumped MessageAction = "version_bumped"
)

// CacheMessage is published on every shared cache change
type CacheMessage struct {
	Action     MessageAction `json:"action"`
	Key        string        `json:"key,omitempty"`
	ReportType string        `json:"report_type,omitempty"`
	Sequence   int64         `json:"sequence,omitempty"`
	Timestamp  int64         `json:"timestamp"`
	// Source is the publishing instance; receivers skip their own messages
	Source     string        `json:"source,omitempty"`
}

// MessageHandler receives broadcast messages
type MessageHandler func(msg CacheMessage)

// Broadcaster fans cache changes out to the other instances
type Broadcaster interface {
	Publish(ctx context.Context, msg CacheMessage) error
}

// RedisBroadcaster implements Broadcaster using Redis Pub/Sub
type RedisBroadcaster struct {
	client    *redis.Client
	channel   string
	logger    *zap.Logger
	cancelFn  context.CancelFunc
	doneCh    chan struct{}
	doneOnce  sync.Once
	mu        sync.Mutex
	isRunning bool
}

// RedisBroadcasterOption is a functional option for configuring the broadcaster
type RedisBroadcasterOption func(*RedisBroadcaster)

// WithBroadcastChannel sets the Pub/Sub channel name
func WithBroadcastChannel(channel string) RedisBroadcasterOption {
	return func(b *RedisBroadcaster) {
		b.channel = channel
	}
}

// WithBroadcastLogger sets the logger for the broadcaster
func WithBroadcastLogger(logger *zap.Logger) RedisBroadcasterOption {
	return func(b *RedisBroadcaster) {
		b.logger = logger
	}
}

// NewRedisBroadcaster creates a broadcaster on an existing Redis client.
// The caller retains ownership of the client.
func NewRedisBroadcaster(client *redis.Client, opts ...RedisBroadcasterOption) *RedisBroadcaster {
	b := &RedisBroadcaster{
		client:  client,
		channel: DefaultInvalidationChannel,
		logger:  zap.NewNop(),
		doneCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish sends a message to all subscribers
func (b *RedisBroadcaster) Publish(ctx context.Context, msg CacheMessage) error {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixNano()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish cache message",
			zap.String("channel", b.channel),
			zap.Error(err))
		return fmt.Errorf("failed to publish message: %w", err)
	}

	b.logger.Debug("Published cache message",
		zap.String("action", string(msg.Action)),
		zap.String("key", msg.Key),
		zap.String("report_type", msg.ReportType))
	return nil
}

// Subscribe listens for messages and dispatches each one to every handler.
// It blocks until ctx is cancelled or Close is called.
func (b *RedisBroadcaster) Subscribe(ctx context.Context, handlers ...MessageHandler) error {
	b.mu.Lock()
	if b.isRunning {
		b.mu.Unlock()
		return fmt.Errorf("subscription already running")
	}
	b.isRunning = true
	subCtx, cancel := context.WithCancel(ctx)
	b.cancelFn = cancel
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.isRunning = false
		b.mu.Unlock()
		b.markDone()
	}()

	pubsub := b.client.Subscribe(subCtx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(subCtx); err != nil {
		return fmt.Errorf("failed to subscribe to channel: %w", err)
	}

	b.logger.Info("Subscribed to report cache channel", zap.String("channel", b.channel))

	ch := pubsub.Channel()
	for {
		select {
		case <-subCtx.Done():
			b.logger.Info("Report cache subscription stopped")
			return subCtx.Err()
		case raw, ok := <-ch:
			if !ok {
				b.logger.Warn("Report cache channel closed")
				return nil
			}

			var msg CacheMessage
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				b.logger.Error("Failed to unmarshal cache message",
					zap.String("payload", raw.Payload),
					zap.Error(err))
				continue
			}
			b.dispatch(msg, handlers)
		}
	}
}

func (b *RedisBroadcaster) dispatch(msg CacheMessage, handlers []MessageHandler) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Panic in cache message handler", zap.Any("panic", r))
		}
	}()
	for _, h := range handlers {
		h(msg)
	}
}

func (b *RedisBroadcaster) markDone() {
	b.doneOnce.Do(func() {
		close(b.doneCh)
	})
}

// Close stops a running subscription
func (b *RedisBroadcaster) Close() error {
	b.mu.Lock()
	cancelFn := b.cancelFn
	b.mu.Unlock()

	if cancelFn != nil {
		cancelFn()
		select {
		case <-b.doneCh:
		case <-time.After(defaultCloseTimeout):
			b.logger.Warn("Timeout waiting for subscription to stop")
		}
	}
	return nil
}

// Ensure RedisBroadcaster implements Broadcaster
var _ Broadcaster = (*RedisBroadcaster)(nil)
