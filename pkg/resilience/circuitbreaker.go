package resilience

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

var (
	// ErrCircuitOpen é retornado quando o circuit breaker está aberto
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// CircuitBreakerConfig contém a configuração do circuit breaker
type CircuitBreakerConfig struct {
	MaxRequestsFail int           // Falhas consecutivas antes de abrir o circuito
	Interval        time.Duration // Intervalo no qual contar falhas no estado fechado
	Timeout         time.Duration // Tempo que o circuito fica aberto antes de tentar half-open
	MaxRequests     int           // Requisições permitidas no estado half-open
}

// StateChangeHook é notificado a cada transição de estado
type StateChangeHook func(name, from, to string)

// CircuitBreaker envolve gobreaker.CircuitBreaker
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker
}

// NewCircuitBreaker cria um novo circuit breaker
func NewCircuitBreaker(name string, config CircuitBreakerConfig, logger *zap.Logger, hook StateChangeHook) *CircuitBreaker {
	if config.MaxRequestsFail <= 0 {
		config.MaxRequestsFail = 5
	}
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRequests <= 0 {
		config.MaxRequests = 1
	}

	threshold := uint32(config.MaxRequestsFail)
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(config.MaxRequests),
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("circuit breaker mudou de estado",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			if hook != nil {
				hook(name, from.String(), to.String())
			}
		},
	}

	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute executa fn através do circuit breaker. Um erro devolvido por fn
// conta como falha; o resultado é repassado mesmo nesse caso.
func (c *CircuitBreaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := c.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrCircuitOpen
	}
	return result, err
}

// State retorna o estado atual (closed, open, half-open)
func (c *CircuitBreaker) State() string {
	return c.cb.State().String()
}

// Registry mantém um circuit breaker por nome, criado sob demanda
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	config   CircuitBreakerConfig
	logger   *zap.Logger
	hook     StateChangeHook
}

// NewRegistry cria um registro de circuit breakers
func NewRegistry(config CircuitBreakerConfig, logger *zap.Logger, hook StateChangeHook) *Registry {
	return &Registry{
		breakers: make(map[string]*CircuitBreaker),
		config:   config,
		logger:   logger,
		hook:     hook,
	}
}

// Get obtém ou cria o circuit breaker de um nome
func (r *Registry) Get(name string) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok = r.breakers[name]; ok {
		return cb
	}
	cb = NewCircuitBreaker(name, r.config, r.logger, r.hook)
	r.breakers[name] = cb
	return cb
}

// States retorna o estado de todos os circuit breakers conhecidos
func (r *Registry) States() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make(map[string]string, len(r.breakers))
	for name, cb := range r.breakers {
		states[name] = cb.State()
	}
	return states
}
