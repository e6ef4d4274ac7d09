package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RedisOptions contém os parâmetros de conexão com o Redis
type RedisOptions struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
	IdleTimeout  time.Duration
	MaxConnAge   time.Duration
}

// NewRedisClient cria um cliente Redis e valida a conexão
func NewRedisClient(ctx context.Context, opts RedisOptions, logger *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Address,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: opts.MinIdleConns,
		MaxRetries:   opts.MaxRetries,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		PoolTimeout:  opts.PoolTimeout,
		IdleTimeout:  opts.IdleTimeout,
		MaxConnAge:   opts.MaxConnAge,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Error("Falha ao conectar ao Redis",
			zap.String("addr", opts.Address),
			zap.Error(err))
		_ = client.Close()
		return nil, err
	}

	logger.Info("Conexão com Redis estabelecida com sucesso",
		zap.String("addr", opts.Address),
		zap.Int("db", opts.DB))

	return client, nil
}

// RedisCache implementa a interface Cache usando Redis
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
	tracer trace.Tracer
}

// NewRedisCache cria um cache sobre um cliente Redis já conectado
func NewRedisCache(client *redis.Client, logger *zap.Logger) *RedisCache {
	return &RedisCache{
		client: client,
		logger: logger,
		tracer: otel.GetTracerProvider().Tracer("fastgate.cache.redis"),
	}
}

func (c *RedisCache) start(ctx context.Context, op, key string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "RedisCache."+op,
		trace.WithAttributes(
			attribute.String("cache.operation", op),
			attribute.String("cache.key", key),
		),
	)
}

func failSpan(span trace.Span, status string, err error) {
	span.SetStatus(codes.Error, status)
	span.SetAttributes(
		attribute.Bool("error", true),
		attribute.String("error.message", err.Error()),
	)
}

// Set armazena um valor no cache
func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	ctx, span := c.start(ctx, "Set", key)
	defer span.End()

	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("falha ao serializar para cache", zap.Error(err))
		failSpan(span, "serialization failure", err)
		return err
	}
	span.SetAttributes(attribute.Int("cache.data_size_bytes", len(data)))

	if err := c.client.Set(ctx, KeyPrefix+key, data, expiration).Err(); err != nil {
		c.logger.Error("falha ao armazenar no Redis",
			zap.String("key", key),
			zap.Error(err))
		failSpan(span, "redis error", err)
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Get recupera um valor do cache
func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	ctx, span := c.start(ctx, "Get", key)
	defer span.End()

	data, err := c.client.Get(ctx, KeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			span.SetAttributes(attribute.Bool("cache.hit", false))
			span.SetStatus(codes.Ok, "cache miss")
			return false, nil
		}
		c.logger.Error("falha ao recuperar do cache",
			zap.String("key", key),
			zap.Error(err))
		failSpan(span, "redis error", err)
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Error("falha ao deserializar do cache",
			zap.String("key", key),
			zap.Error(err))
		failSpan(span, "deserialization failure", err)
		return false, err
	}

	span.SetAttributes(
		attribute.Bool("cache.hit", true),
		attribute.Int("cache.data_size_bytes", len(data)),
	)
	span.SetStatus(codes.Ok, "cache hit")
	return true, nil
}

// Delete remove um valor do cache
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	ctx, span := c.start(ctx, "Delete", key)
	defer span.End()

	removed, err := c.client.Del(ctx, KeyPrefix+key).Result()
	if err != nil {
		c.logger.Error("falha ao remover do cache",
			zap.String("key", key),
			zap.Error(err))
		failSpan(span, "redis error", err)
		return err
	}

	span.SetAttributes(attribute.Int64("cache.keys_removed", removed))
	span.SetStatus(codes.Ok, "")
	return nil
}

// Clear remove todas as chaves do gateway, iterando com SCAN
func (c *RedisCache) Clear(ctx context.Context) error {
	ctx, span := c.start(ctx, "Clear", KeyPrefix+"*")
	defer span.End()

	var removed int64
	iter := c.client.Scan(ctx, 0, KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n, err := c.client.Del(ctx, iter.Val()).Result()
		if err != nil {
			failSpan(span, "redis delete error", err)
			return err
		}
		removed += n
	}
	if err := iter.Err(); err != nil {
		c.logger.Error("falha ao listar chaves do cache", zap.Error(err))
		failSpan(span, "redis scan error", err)
		return err
	}

	span.SetAttributes(attribute.Int64("cache.keys_removed", removed))
	span.SetStatus(codes.Ok, "")
	return nil
}

// Ping verifica se o Redis está acessível
func (c *RedisCache) Ping(ctx context.Context) error {
	ctx, span := c.start(ctx, "Ping", "")
	defer span.End()

	if err := c.client.Ping(ctx).Err(); err != nil {
		c.logger.Error("falha ao fazer ping no Redis", zap.Error(err))
		failSpan(span, "redis ping failure", err)
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}
