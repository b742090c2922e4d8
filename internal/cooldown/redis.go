package cooldown

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

const redisKey = "shortscout:cooldowns"

// RedisConfig configures the Redis-backed store.
type RedisConfig struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// RedisStore keeps cooldowns in a single Redis hash (symbol → unix expiry).
// Useful when several scanner instances must share cooldown state.
type RedisStore struct {
	client *goredis.Client
}

// NewRedis creates a Redis store and pings the server.
func NewRedis(cfg RedisConfig) (*RedisStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cooldown redis ping: %w", err)
	}

	log.Printf("[cooldown] connected to redis at %s", cfg.Addr)
	return &RedisStore{client: client}, nil
}

// Load reads the cooldown hash. Unreachable Redis or malformed fields are
// treated as an empty store and logged: fail-open to "not cooling down".
func (s *RedisStore) Load(ctx context.Context) map[string]time.Time {
	cooldowns := make(map[string]time.Time)

	fields, err := s.client.HGetAll(ctx, redisKey).Result()
	if err != nil {
		log.Printf("[cooldown] WARNING: redis load failed, treating store as empty (duplicate alerts possible): %v", err)
		return cooldowns
	}

	for symbol, raw := range fields {
		unix, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			log.Printf("[cooldown] WARNING: dropping corrupt entry %s=%q: %v", symbol, raw, err)
			continue
		}
		cooldowns[symbol] = time.Unix(unix, 0).UTC()
	}
	return cooldowns
}

// Save replaces the hash atomically: DEL + HSET in one transaction.
func (s *RedisStore) Save(ctx context.Context, cooldowns map[string]time.Time) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, redisKey)
	if len(cooldowns) > 0 {
		fields := make(map[string]interface{}, len(cooldowns))
		for symbol, expiry := range cooldowns {
			fields[symbol] = strconv.FormatInt(expiry.Unix(), 10)
		}
		pipe.HSet(ctx, redisKey, fields)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cooldown redis save: %w", err)
	}
	return nil
}

// Client exposes the underlying client for health probes.
func (s *RedisStore) Client() *goredis.Client {
	return s.client
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
