package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const keyPrefix = "fastgate:ratelimit:"

// janela fixa: INCR na chave do período, expirando no fim da janela
var windowScript = redis.NewScript(`
local key = KEYS[1]
local expireAt = tonumber(ARGV[1])
local now = tonumber(ARGV[2])

local count = redis.call('INCR', key)
if count == 1 then
    redis.call('EXPIREAT', key, expireAt)
end

return {count, expireAt - now}
`)

// RedisLimiter implementa rate limiting compartilhado entre instâncias usando Redis
type RedisLimiter struct {
	client *redis.Client
	config LimitConfig
	logger *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// NewRedisLimiter cria um novo limitador baseado em Redis
func NewRedisLimiter(client *redis.Client, config LimitConfig, logger *zap.Logger) (*RedisLimiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &RedisLimiter{
		client: client,
		config: config,
		logger: logger,
		tracer: otel.GetTracerProvider().Tracer("fastgate.ratelimit"),
		now:    time.Now,
	}, nil
}

// Allow verifica se a requisição é permitida dentro do limite de taxa.
// Em caso de erro do Redis a decisão devolvida permite a requisição.
func (r *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	ctx, span := r.tracer.Start(ctx, "RedisLimiter.Allow",
		trace.WithAttributes(
			attribute.String("ratelimit.key", key),
			attribute.Int("ratelimit.limit", r.config.Limit),
			attribute.Int64("ratelimit.period_ms", r.config.Period.Milliseconds()),
			attribute.Float64("ratelimit.burst_factor", r.config.BurstFactor),
		),
	)
	defer span.End()

	now := r.now().Unix()
	periodSeconds := max(int64(r.config.Period.Seconds()), 1)
	windowStart := now - (now % periodSeconds)
	expireAt := windowStart + periodSeconds
	burstLimit := r.config.BurstLimit()

	failOpen := Decision{
		Allowed:    true,
		Limit:      r.config.Limit,
		Remaining:  burstLimit,
		ResetAfter: time.Duration(expireAt-now) * time.Second,
	}

	redisKey := fmt.Sprintf("%s%s:%d", keyPrefix, key, windowStart)
	result, err := windowScript.Run(ctx, r.client, []string{redisKey}, expireAt, now).Result()
	if err != nil {
		r.logger.Error("erro ao executar script de rate limit", zap.Error(err))
		span.SetStatus(codes.Error, "redis script error")
		span.SetAttributes(
			attribute.Bool("error", true),
			attribute.String("error.message", err.Error()),
		)
		return failOpen, err
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 2 {
		err := errors.New("resultado inválido do Redis")
		r.logger.Error("resultado inesperado do script de rate limit", zap.Any("result", result))
		span.SetStatus(codes.Error, "unexpected result")
		span.SetAttributes(attribute.Bool("error", true))
		return failOpen, err
	}

	count, _ := strconv.Atoi(fmt.Sprintf("%v", values[0]))
	ttl, _ := strconv.ParseInt(fmt.Sprintf("%v", values[1]), 10, 64)

	decision := Decision{
		Allowed:    count <= burstLimit,
		Limit:      r.config.Limit,
		Remaining:  max(burstLimit-count, 0),
		ResetAfter: time.Duration(ttl) * time.Second,
	}

	span.SetAttributes(
		attribute.Int("ratelimit.count", count),
		attribute.Int("ratelimit.remaining", decision.Remaining),
		attribute.Int("ratelimit.burst_limit", burstLimit),
		attribute.Bool("ratelimit.allowed", decision.Allowed),
	)
	if decision.Allowed {
		span.SetStatus(codes.Ok, "")
	} else {
		span.SetStatus(codes.Error, "rate limit exceeded")
	}

	return decision, nil
}
