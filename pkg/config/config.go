package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config representa a configuração completa da aplicação
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Cache     CacheConfig
	Admin     AdminConfig
	Proxy     ProxyConfig
	RateLimit RateLimitConfig
	Metrics   MetricsConfig
	Logging   LoggingConfig
	Tracing   TracingConfig
	Routes    RoutesConfig
}

// ServerConfig contém configurações do servidor HTTP
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxHeaderBytes  int
	TLS             bool
	CertFile        string
	KeyFile         string
	AutoCert        bool
	CertCacheDir    string
	Domains         []string
}

// Addr retorna o endereço de escuta
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig contém configurações do banco de dados
type DatabaseConfig struct {
	Driver          string
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        string
	SlowThreshold   time.Duration
	SkipMigrations  bool
	ConnectTimeout  time.Duration
}

// RedisOptions contém configurações específicas para Redis
type RedisOptions struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	DialTimeout  time.Duration
	PoolTimeout  time.Duration
	IdleTimeout  time.Duration
	MaxConnAge   time.Duration
}

// CacheConfig contém configurações do cache de rotas
type CacheConfig struct {
	Enabled         bool
	Type            string // redis, memory
	TTL             time.Duration
	CleanupInterval time.Duration
	Redis           RedisOptions
}

// AdminConfig contém as credenciais da API administrativa
type AdminConfig struct {
	Token           string
	JWTSecret       string
	TokenExpiration time.Duration
	AllowedOrigins  []string // origens CORS; vazio aceita qualquer origem
}

// CircuitBreakerConfig configura o circuit breaker por host de upstream
type CircuitBreakerConfig struct {
	Enabled          bool
	MaxFailures      int
	Interval         time.Duration
	Timeout          time.Duration
	HalfOpenRequests int
}

// ProxyConfig contém configurações do encaminhamento ao upstream
type ProxyConfig struct {
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	MaxBodyBytes         int64
	ProxiedBy            string
	UserAgent            string
	AuditLog             bool // grava um registro por requisição encaminhada
	CircuitBreaker       CircuitBreakerConfig
}

// RateLimitConfig contém configurações do limite por IP do tráfego encaminhado
type RateLimitConfig struct {
	Enabled     bool
	Backend     string // memory, redis
	Limit       int
	Period      time.Duration
	BurstFactor float64
}

// MetricsConfig contém configurações de métricas
type MetricsConfig struct {
	Enabled        bool
	PrometheusPath string
}

// LoggingConfig contém configurações de logging
type LoggingConfig struct {
	Level      string
	Format     string // json, console
	OutputPath string // stdout, file path
	ErrorPath  string
	Production bool
}

// TracingConfig contém configurações de rastreamento
type TracingConfig struct {
	Enabled       bool
	Endpoint      string
	ServiceName   string
	Environment   string
	SamplingRatio float64
}

// RoutesConfig controla a origem e a atualização da tabela de rotas
type RoutesConfig struct {
	BootstrapFile   string
	RefreshInterval time.Duration // 0 desabilita a recarga periódica
}

// LoadConfig carrega a configuração de diversas fontes (arquivos, env, defaults)
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/fastgate")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("erro ao ler arquivo de configuração: %w", err)
		}
	}

	// Variáveis de ambiente com prefixo FG_, ex.: FG_ADMIN_TOKEN
	v.SetEnvPrefix("FG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("erro ao mapear configuração: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// SetDefaults define valores padrão para a configuração
func SetDefaults(v *viper.Viper) {
	// Servidor
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.readTimeout", "15s")
	v.SetDefault("server.writeTimeout", "320s") // acima do timeout máximo de rota
	v.SetDefault("server.idleTimeout", "60s")
	v.SetDefault("server.shutdownTimeout", "30s")
	v.SetDefault("server.maxHeaderBytes", 1<<20) // 1 MB
	v.SetDefault("server.tls", false)
	v.SetDefault("server.autoCert", false)
	v.SetDefault("server.certCacheDir", "./certs")
	v.SetDefault("server.domains", []string{})

	// Banco de dados
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/fastgate.db")
	v.SetDefault("database.maxIdleConns", 10)
	v.SetDefault("database.maxOpenConns", 50)
	v.SetDefault("database.connMaxLifetime", "1h")
	v.SetDefault("database.logLevel", "warn")
	v.SetDefault("database.slowThreshold", "200ms")
	v.SetDefault("database.skipMigrations", false)
	v.SetDefault("database.connectTimeout", "30s")

	// Cache
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.ttl", "5m")
	v.SetDefault("cache.cleanupInterval", "10m")

	// Redis
	v.SetDefault("cache.redis.address", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.poolSize", 10)
	v.SetDefault("cache.redis.minIdleConns", 5)
	v.SetDefault("cache.redis.maxRetries", 3)
	v.SetDefault("cache.redis.readTimeout", "3s")
	v.SetDefault("cache.redis.writeTimeout", "3s")
	v.SetDefault("cache.redis.dialTimeout", "5s")
	v.SetDefault("cache.redis.poolTimeout", "4s")
	v.SetDefault("cache.redis.idleTimeout", "5m")
	v.SetDefault("cache.redis.maxConnAge", "30m")

	// Administração
	v.SetDefault("admin.token", "")
	v.SetDefault("admin.jwtSecret", "")
	v.SetDefault("admin.tokenExpiration", "24h")
	v.SetDefault("admin.allowedOrigins", []string{})

	// Encaminhamento
	v.SetDefault("proxy.retryInitialInterval", "100ms")
	v.SetDefault("proxy.retryMaxInterval", "2s")
	v.SetDefault("proxy.maxBodyBytes", 10<<20) // 10 MB
	v.SetDefault("proxy.proxiedBy", "FastGate")
	v.SetDefault("proxy.userAgent", "FastGate/1.0")
	v.SetDefault("proxy.auditLog", true)
	v.SetDefault("proxy.circuitBreaker.enabled", true)
	v.SetDefault("proxy.circuitBreaker.maxFailures", 5)
	v.SetDefault("proxy.circuitBreaker.interval", "1m")
	v.SetDefault("proxy.circuitBreaker.timeout", "30s")
	v.SetDefault("proxy.circuitBreaker.halfOpenRequests", 1)

	// Rate limiting
	v.SetDefault("rateLimit.enabled", false)
	v.SetDefault("rateLimit.backend", "memory")
	v.SetDefault("rateLimit.limit", 100)
	v.SetDefault("rateLimit.period", "1m")
	v.SetDefault("rateLimit.burstFactor", 1.5)

	// Métricas
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.prometheusPath", "/metrics")

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
	v.SetDefault("logging.errorPath", "stderr")
	v.SetDefault("logging.production", true)

	// Tracing
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.serviceName", "fastgate")
	v.SetDefault("tracing.environment", "")
	v.SetDefault("tracing.samplingRatio", 0.1)

	// Rotas
	v.SetDefault("routes.bootstrapFile", "")
	v.SetDefault("routes.refreshInterval", "0s")
}

// validateConfig valida a configuração
func validateConfig(config *Config) error {
	if config.Server.TLS && !config.Server.AutoCert {
		if config.Server.CertFile == "" || config.Server.KeyFile == "" {
			return fmt.Errorf("TLS habilitado, mas CertFile ou KeyFile não estão definidos")
		}
	}
	if config.Server.AutoCert && len(config.Server.Domains) == 0 {
		return fmt.Errorf("autoCert requer ao menos um domínio")
	}

	validDrivers := map[string]bool{"sqlite": true, "mysql": true, "postgres": true}
	if !validDrivers[config.Database.Driver] {
		return fmt.Errorf("driver de banco de dados inválido: %s", config.Database.Driver)
	}

	if config.Cache.Enabled {
		validTypes := map[string]bool{"memory": true, "redis": true}
		if !validTypes[config.Cache.Type] {
			return fmt.Errorf("tipo de cache inválido: %s", config.Cache.Type)
		}
		if config.Cache.Type == "redis" && config.Cache.Redis.Address == "" {
			return fmt.Errorf("tipo de cache redis requer um endereço")
		}
	}

	if config.RateLimit.Enabled {
		if config.RateLimit.Backend != "memory" && config.RateLimit.Backend != "redis" {
			return fmt.Errorf("backend de rate limit inválido: %s", config.RateLimit.Backend)
		}
		if config.RateLimit.Limit <= 0 || config.RateLimit.Period <= 0 {
			return fmt.Errorf("rate limit requer limite e período positivos")
		}
	}

	if config.Admin.JWTSecret != "" && len(config.Admin.JWTSecret) < 32 {
		return fmt.Errorf("admin.jwtSecret precisa ter ao menos 32 caracteres")
	}

	if config.Tracing.SamplingRatio < 0 || config.Tracing.SamplingRatio > 1 {
		return fmt.Errorf("tracing.samplingRatio deve estar entre 0 e 1")
	}

	return nil
}
