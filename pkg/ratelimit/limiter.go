package ratelimit

import (
	"context"
	"errors"
	"time"
)

var (
	errInvalidLimit  = errors.New("limite deve ser maior que zero")
	errInvalidPeriod = errors.New("período deve ser maior que zero")
)

// LimitConfig configura o comportamento do limitador
type LimitConfig struct {
	Limit       int           // Número máximo de requisições
	Period      time.Duration // Período de tempo para o limite
	BurstFactor float64       // Fator para permitir rajadas (1.0 = sem rajada)
}

// Validate verifica os parâmetros e aplica o fator de rajada padrão
func (c *LimitConfig) Validate() error {
	if c.Limit <= 0 {
		return errInvalidLimit
	}
	if c.Period <= 0 {
		return errInvalidPeriod
	}
	if c.BurstFactor < 1 {
		c.BurstFactor = 1.0
	}
	return nil
}

// BurstLimit é o número de requisições aceitas no pico
func (c LimitConfig) BurstLimit() int {
	return int(float64(c.Limit) * c.BurstFactor)
}

// Decision é o resultado de uma verificação de limite
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAfter time.Duration
}

// Limiter decide se uma requisição identificada por key pode prosseguir
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}
