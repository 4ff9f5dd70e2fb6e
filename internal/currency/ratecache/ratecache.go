// Package ratecache stores live exchange rates per organization, in Redis when
// it is configured and in process memory otherwise.
package ratecache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/obrapay/internal/cache"
	"github.com/smallbiznis/obrapay/internal/config"
	"github.com/smallbiznis/obrapay/internal/currency/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	keyLiveRates   = "currency:rates:%s"
	defaultRateTTL = 15 * time.Minute
)

// New returns a Redis-backed cache when REDIS_ADDR is set, else an in-memory one.
func New(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) domain.RateCache {
	ttl := cfg.Redis.RateTTL
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		log.Info("REDIS_ADDR not set, live exchange rates are kept in memory")
		return NewMemory(ttl)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.Redis.Password),
		DB:       cfg.Redis.DB,
	})
	if lc != nil {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := client.Ping(ctx).Err(); err != nil {
					log.Warn("redis ping failed", zap.String("addr", addr), zap.Error(err))
				}
				return nil
			},
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
	}
	return NewRedis(client, ttl)
}

type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = defaultRateTTL
	}
	return &Redis{client: client, ttl: ttl}
}

// Rates returns every live rate of the organization. Unparsable fields are skipped.
func (r *Redis) Rates(ctx context.Context, orgID string) (map[string]float64, error) {
	values, err := r.client.HGetAll(ctx, rateKey(orgID)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(values))
	for code, raw := range values {
		rate, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		out[code] = rate
	}
	return out, nil
}

// SetRate writes the rate and refreshes the expiry of the organization's rate set.
func (r *Redis) SetRate(ctx context.Context, orgID, code string, rate float64) error {
	key := rateKey(orgID)
	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key, normalizeCode(code), strconv.FormatFloat(rate, 'f', -1, 64))
	pipe.Expire(ctx, key, r.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

type Memory struct {
	mu    sync.Mutex
	rates cache.Cache[string, map[string]float64]
	ttl   time.Duration
}

func NewMemory(ttl time.Duration) *Memory {
	return newMemory(cache.NewTTLCache[string, map[string]float64](), ttl)
}

func newMemory(c cache.Cache[string, map[string]float64], ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = defaultRateTTL
	}
	return &Memory{rates: c, ttl: ttl}
}

func (m *Memory) Rates(_ context.Context, orgID string) (map[string]float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, _ := m.rates.Get(cache.Key(orgID))
	out := make(map[string]float64, len(current))
	for code, rate := range current {
		out[code] = rate
	}
	return out, nil
}

func (m *Memory) SetRate(_ context.Context, orgID, code string, rate float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := cache.Key(orgID)
	current, _ := m.rates.Get(key)
	next := make(map[string]float64, len(current)+1)
	for c, r := range current {
		next[c] = r
	}
	next[normalizeCode(code)] = rate
	m.rates.Set(key, next, m.ttl)
	return nil
}

func rateKey(orgID string) string {
	return fmt.Sprintf(keyLiveRates, strings.TrimSpace(orgID))
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
