package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Alwanly/dify-indexing-watch/pkg/logger"
	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type redisPubSub struct {
	client *redis.Client
	logger *logger.CanonicalLogger

	mu     sync.Mutex
	subs   []*redis.PubSub
	cancel []context.CancelFunc
	wg     sync.WaitGroup
}

// NewRedisPubSub connects to redis and verifies the connection with a ping.
func NewRedisPubSub(ctx context.Context, cfg RedisConfig, log *logger.CanonicalLogger) (PubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	log.Info("redis client initialized", logger.String("addr", cfg.Addr))

	return &redisPubSub{
		client: client,
		logger: log,
	}, nil
}

// Publish publishes a message to a Redis channel
func (r *redisPubSub) Publish(ctx context.Context, channel string, message string) error {
	if err := r.client.Publish(ctx, channel, message).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

// Subscribe subscribes to channels. The returned channel is closed when ctx
// ends, the subscription breaks, or Close is called.
func (r *redisPubSub) Subscribe(ctx context.Context, channels ...string) (<-chan Message, error) {
	if len(channels) == 0 {
		return nil, errors.New("no channels to subscribe to")
	}

	sub := r.client.Subscribe(ctx, channels...)
	// Receive waits for the subscription confirmation so errors surface here
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	listenCtx, cancel := context.WithCancel(ctx)
	out := make(chan Message, 16)

	r.mu.Lock()
	r.subs = append(r.subs, sub)
	r.cancel = append(r.cancel, cancel)
	r.mu.Unlock()

	r.wg.Add(1)
	go r.listen(listenCtx, sub, out)

	r.logger.Info("subscribed to redis channels", logger.String("channels", fmt.Sprint(channels)))
	return out, nil
}

// Close stops every listener and closes the client.
func (r *redisPubSub) Close() error {
	r.mu.Lock()
	for _, cancel := range r.cancel {
		cancel()
	}
	for _, sub := range r.subs {
		_ = sub.Close()
	}
	r.cancel, r.subs = nil, nil
	r.mu.Unlock()

	r.wg.Wait()

	if err := r.client.Close(); err != nil {
		r.logger.WithError(err).Error("failed to close redis client")
		return err
	}
	return nil
}

func (r *redisPubSub) listen(ctx context.Context, sub *redis.PubSub, out chan<- Message) {
	defer r.wg.Done()
	defer close(out)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				r.logger.Info("redis pubsub channel closed")
				return
			}
			select {
			case out <- Message{Channel: m.Channel, Payload: m.Payload}:
			case <-ctx.Done():
				return
			}
		}
	}
}
