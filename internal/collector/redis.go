package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mattjoyce/warden/internal/config"
	"github.com/mattjoyce/warden/internal/job"
)

// Redis stores each result as JSON under <prefix>ret:<jid>:<id> and indexes
// job ids by time in the <prefix>jids sorted set.
type Redis struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

func openRedis(ctx context.Context, cfg *config.Config) (Collector, error) {
	rc := cfg.Collectors.Redis
	client := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedis(client, rc.KeyPrefix, rc.TTL), nil
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, keyPrefix string, ttl time.Duration) *Redis {
	if keyPrefix == "" {
		keyPrefix = "warden:"
	}
	return &Redis{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

// Name returns "redis".
func (c *Redis) Name() string { return "redis" }

// ReturnKey is the key a result is stored under.
func (c *Redis) ReturnKey(jid, id string) string {
	return c.keyPrefix + "ret:" + jid + ":" + id
}

// IndexKey is the sorted set of collected job ids.
func (c *Redis) IndexKey() string {
	return c.keyPrefix + "jids"
}

// Collect stores r as JSON under ReturnKey with the configured TTL and adds
// its job id to the IndexKey sorted set, scored by collection time.
func (c *Redis) Collect(ctx context.Context, r job.Result) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, c.ReturnKey(r.JID, r.ID), data, c.ttl)
	pipe.ZAdd(ctx, c.IndexKey(), redis.Z{Score: float64(time.Now().Unix()), Member: r.JID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store result: %w", err)
	}
	return nil
}

// Lookup reads every stored result for jid.
func (c *Redis) Lookup(ctx context.Context, jid string) ([]job.Result, error) {
	var out []job.Result
	iter := c.client.Scan(ctx, 0, c.ReturnKey(jid, "*"), 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if !strings.HasPrefix(key, c.keyPrefix+"ret:"+jid+":") {
			continue
		}
		raw, err := c.client.Get(ctx, key).Bytes()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", key, err)
		}
		var r job.Result
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", key, err)
		}
		out = append(out, r)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the client.
func (c *Redis) Close() error { return c.client.Close() }
