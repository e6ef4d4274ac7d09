package cache

import (
	"context"
	"time"
)

// KeyPrefix é aplicado a todas as chaves gravadas pelo gateway
const KeyPrefix = "fastgate:"

// Cache define a interface para operações de cache.
// Valores são serializados em JSON; Get desserializa em dest.
type Cache interface {
	// Set armazena um valor no cache com tempo de expiração
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error

	// Get recupera um valor do cache
	Get(ctx context.Context, key string, dest interface{}) (bool, error)

	// Delete remove um valor do cache
	Delete(ctx context.Context, key string) error

	// Clear remove todos os valores do cache
	Clear(ctx context.Context) error

	// Ping verifica se o cache está acessível
	Ping(ctx context.Context) error
}

// HitRatioObserver recebe a taxa de acertos atualizada
type HitRatioObserver func(cacheType string, ratio float64)

// RouteKey monta a chave de cache de uma rota
func RouteKey(routeID string) string {
	return "route:" + routeID
}
