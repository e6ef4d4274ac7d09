package http

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/diillson/fastgate/internal/engine/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger é implementado por dependências verificáveis (banco, cache)
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependency representa um componente do qual o sistema depende
type Dependency struct {
	Name     string
	Check    func(context.Context) error
	Critical bool // falha deste componente derruba a prontidão
}

// BreakerStates expõe o estado dos circuit breakers por host de destino
type BreakerStates interface {
	States() map[string]string
}

// HealthChecker implementa endpoints de health check
type HealthChecker struct {
	router       *router.Router
	breakers     BreakerStates
	logger       *zap.Logger
	dependencies []Dependency
	started      time.Time
}

// NewHealthChecker cria um novo health checker. cache pode ser nil.
func NewHealthChecker(rt *router.Router, db Pinger, cache Pinger, logger *zap.Logger) *HealthChecker {
	hc := &HealthChecker{
		router:  rt,
		logger:  logger,
		started: time.Now(),
	}
	if db != nil {
		hc.dependencies = append(hc.dependencies, Dependency{Name: "database", Check: db.Ping, Critical: true})
	}
	if cache != nil {
		hc.dependencies = append(hc.dependencies, Dependency{Name: "cache", Check: cache.Ping, Critical: false})
	}
	return hc
}

// WithBreakers inclui os circuit breakers do proxy na saúde detalhada.
// Um circuito aberto marca o componente como DEGRADED sem derrubar o status.
func (h *HealthChecker) WithBreakers(b BreakerStates) *HealthChecker {
	h.breakers = b
	return h
}

// RegisterRoutes monta os endpoints de saúde
func (h *HealthChecker) RegisterRoutes(r gin.IRoutes) {
	r.GET("/health", h.DetailedHealth)
	r.GET("/health/liveness", h.LivenessCheck)
	r.GET("/health/readiness", h.ReadinessCheck)
}

// LivenessCheck verifica se o processo está vivo
func (h *HealthChecker) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "UP",
		"time":   time.Now(),
	})
}

// ReadinessCheck verifica se o gateway está pronto para receber tráfego
func (h *HealthChecker) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks, healthy := h.runChecks(ctx, false)
	checks["router"] = gin.H{
		"status":        "UP",
		"active_routes": h.router.Snapshot().Len(),
	}

	status, label := http.StatusOK, "UP"
	if !healthy {
		status, label = http.StatusServiceUnavailable, "DOWN"
	}
	c.JSON(status, gin.H{
		"status": label,
		"time":   time.Now(),
		"checks": checks,
	})
}

// DetailedHealth fornece informações detalhadas sobre o sistema
func (h *HealthChecker) DetailedHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	checks, healthy := h.runChecks(ctx, true)
	snap := h.router.Snapshot()
	checks["router"] = gin.H{
		"status":         "UP",
		"active_routes":  snap.Len(),
		"skipped_routes": len(snap.Skipped()),
	}
	if h.breakers != nil {
		checks["circuit_breakers"] = breakerCheck(h.breakers.States())
	}

	status, label := http.StatusOK, "UP"
	if !healthy {
		status, label = http.StatusServiceUnavailable, "DOWN"
	}
	c.JSON(status, gin.H{
		"status":      label,
		"time":        time.Now(),
		"uptime":      time.Since(h.started).Round(time.Second).String(),
		"version":     getVersion(),
		"environment": getEnvironment(),
		"checks":      checks,
		"system":      getSystemInfo(),
	})
}

// runChecks executa as verificações em paralelo
func (h *HealthChecker) runChecks(ctx context.Context, withErrors bool) (map[string]interface{}, bool) {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		healthy = true
		checks  = make(map[string]interface{}, len(h.dependencies)+1)
	)

	for _, dep := range h.dependencies {
		wg.Add(1)
		go func(d Dependency) {
			defer wg.Done()

			start := time.Now()
			err := d.Check(ctx)
			result := gin.H{
				"status":   "UP",
				"time":     time.Since(start).String(),
				"critical": d.Critical,
			}
			if err != nil {
				result["status"] = "DOWN"
				if withErrors {
					result["error"] = err.Error()
				}
				h.logger.Error("health check falhou",
					zap.String("dependency", d.Name),
					zap.Error(err))
			}

			mu.Lock()
			defer mu.Unlock()
			checks[d.Name] = result
			if err != nil && d.Critical {
				healthy = false
			}
		}(dep)
	}

	wg.Wait()
	return checks, healthy
}

func breakerCheck(states map[string]string) gin.H {
	open := 0
	for _, state := range states {
		if state == "open" {
			open++
		}
	}
	status := "UP"
	if open > 0 {
		status = "DEGRADED"
	}
	return gin.H{
		"status": status,
		"open":   open,
		"hosts":  states,
	}
}

func getVersion() string {
	if v := os.Getenv("FG_VERSION"); v != "" {
		return v
	}
	return "dev"
}

func getEnvironment() string {
	env := os.Getenv("FG_ENVIRONMENT")
	if env == "" {
		return "development"
	}
	return env
}

func getSystemInfo() gin.H {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return gin.H{
		"go_version":    runtime.Version(),
		"num_cpu":       runtime.NumCPU(),
		"num_goroutine": runtime.NumGoroutine(),
		"memory": gin.H{
			"alloc_mb": float64(m.Alloc) / 1024 / 1024,
			"sys_mb":   float64(m.Sys) / 1024 / 1024,
			"num_gc":   m.NumGC,
		},
	}
}
