package ratelimit

import (
	"context"
	"math"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// MemoryLimiter aplica um token bucket por chave no próprio processo.
// Buckets sem uso por alguns períodos são descartados.
type MemoryLimiter struct {
	config  LimitConfig
	every   rate.Limit
	buckets *cache.Cache
}

// NewMemoryLimiter cria um limitador local
func NewMemoryLimiter(config LimitConfig) (*MemoryLimiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	idle := 10 * config.Period
	return &MemoryLimiter{
		config:  config,
		every:   rate.Every(config.Period / time.Duration(config.Limit)),
		buckets: cache.New(idle, idle),
	}, nil
}

// Allow consome um token do bucket da chave
func (m *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	lim := m.bucket(key)
	now := time.Now()

	decision := Decision{Limit: m.config.Limit}
	r := lim.ReserveN(now, 1)
	if delay := r.DelayFrom(now); !r.OK() || delay > 0 {
		r.CancelAt(now)
		decision.ResetAfter = delay
	} else {
		decision.Allowed = true
		decision.ResetAfter = time.Duration(float64(time.Second) / float64(m.every))
	}
	decision.Remaining = max(int(math.Floor(lim.TokensAt(now))), 0)
	return decision, nil
}

func (m *MemoryLimiter) bucket(key string) *rate.Limiter {
	if v, ok := m.buckets.Get(key); ok {
		m.buckets.SetDefault(key, v)
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(m.every, m.config.BurstLimit())
	if err := m.buckets.Add(key, lim, cache.DefaultExpiration); err != nil {
		// outra goroutine criou o bucket primeiro
		if v, ok := m.buckets.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}
