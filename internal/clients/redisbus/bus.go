package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/repolens/repolens-backend/internal/logger"
	"github.com/repolens/repolens-backend/internal/sse"
	"github.com/repolens/repolens-backend/internal/utils"
)

// Bus mirrors orchestrator events over a redis pub/sub channel so external
// consumers (dashboards, other processes) can observe runs. Entirely
// optional: the in-process hub is the source of truth and the constructor
// errors out cleanly when redis is not configured.
type Bus interface {
	Publish(ctx context.Context, event sse.LogEvent) error
	StartForwarder(ctx context.Context, onEvent func(sse.LogEvent)) error
	Close() error
}

type bus struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

func New(log *logger.Logger) (Bus, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}

	addr := strings.TrimSpace(utils.GetEnv("REDIS_ADDR", "", log))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	channel := utils.GetEnv("REDIS_CHANNEL", "repolens-events", log)

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &bus{
		log:     log.With("service", "RedisEventBus"),
		rdb:     rdb,
		channel: channel,
	}, nil
}

func (b *bus) Publish(ctx context.Context, event sse.LogEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *bus) StartForwarder(ctx context.Context, onEvent func(sse.LogEvent)) error {
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var event sse.LogEvent
				if err := json.Unmarshal([]byte(m.Payload), &event); err != nil {
					b.log.Warn("Bad redis event payload", "error", err)
					continue
				}
				onEvent(event)
			}
		}
	}()

	return nil
}

func (b *bus) Close() error {
	return b.rdb.Close()
}
