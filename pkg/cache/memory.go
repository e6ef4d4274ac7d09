package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// MemoryCache implementa a interface Cache usando go-cache.
// Os valores são guardados já serializados, com a mesma semântica do Redis.
type MemoryCache struct {
	cache    *cache.Cache
	logger   *zap.Logger
	hits     atomic.Int64
	misses   atomic.Int64
	observer HitRatioObserver
}

// NewMemoryCache cria uma nova instância de MemoryCache
func NewMemoryCache(defaultExpiration, cleanupInterval time.Duration, observer HitRatioObserver, logger *zap.Logger) *MemoryCache {
	return &MemoryCache{
		cache:    cache.New(defaultExpiration, cleanupInterval),
		logger:   logger,
		observer: observer,
	}
}

// Set armazena um valor no cache
func (c *MemoryCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("falha ao serializar para cache", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("falha ao serializar para cache: %w", err)
	}
	c.cache.Set(KeyPrefix+key, data, expiration)
	return nil
}

// Get recupera um valor do cache
func (c *MemoryCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	value, found := c.cache.Get(KeyPrefix + key)
	if !found {
		c.misses.Add(1)
		c.report()
		return false, nil
	}
	c.hits.Add(1)
	c.report()

	data, ok := value.([]byte)
	if !ok {
		return false, fmt.Errorf("valor inesperado no cache para %s", key)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Error("falha ao deserializar do cache", zap.String("key", key), zap.Error(err))
		return false, err
	}
	return true, nil
}

// Delete remove um valor do cache
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.cache.Delete(KeyPrefix + key)
	return nil
}

// Clear remove todos os valores do cache
func (c *MemoryCache) Clear(ctx context.Context) error {
	c.cache.Flush()
	return nil
}

// Ping verifica se o cache está funcionando
func (c *MemoryCache) Ping(ctx context.Context) error {
	return nil
}

// HitRatio retorna a taxa de acertos acumulada
func (c *MemoryCache) HitRatio() float64 {
	hits, misses := c.hits.Load(), c.misses.Load()
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

func (c *MemoryCache) report() {
	if c.observer != nil {
		c.observer("memory", c.HitRatio())
	}
}
