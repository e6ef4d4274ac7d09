package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/diillson/fastgate/internal/domain/model"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dialects = map[string]func(dsn string) gorm.Dialector{
	"sqlite":   sqlite.Open,
	"mysql":    mysql.Open,
	"postgres": postgres.Open,
}

// ErrUnsupportedDriver é retornado para drivers fora de sqlite, mysql e postgres
var ErrUnsupportedDriver = errors.New("driver de banco de dados não suportado")

// Config contém configurações para o banco de dados
type Config struct {
	Driver          string
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	LogLevel        logger.LogLevel
	SlowThreshold   time.Duration
	SkipMigrations  bool
	// ConnectTimeout limita as tentativas de conexão na inicialização; zero tenta uma vez
	ConnectTimeout time.Duration
}

// ParseLogLevel converte o nível textual da configuração para o nível do GORM
func ParseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// SupportedDrivers lista os drivers registrados, em ordem alfabética
func SupportedDrivers() []string {
	drivers := make([]string, 0, len(dialects))
	for name := range dialects {
		drivers = append(drivers, name)
	}
	sort.Strings(drivers)
	return drivers
}

// Database encapsula a conexão GORM usada pelo repositório de rotas
type Database struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewDatabase abre a conexão, aplica o pool e migra a tabela de rotas.
// Bancos que ainda não aceitam conexões são tentados novamente com backoff
// exponencial até ConnectTimeout.
func NewDatabase(ctx context.Context, config Config, zapLogger *zap.Logger) (*Database, error) {
	open, ok := dialects[strings.ToLower(config.Driver)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDriver, config.Driver)
	}

	gormConfig := &gorm.Config{
		Logger: logger.New(zapWriter{zapLogger}, logger.Config{
			SlowThreshold:             config.SlowThreshold,
			LogLevel:                  config.LogLevel,
			IgnoreRecordNotFoundError: true,
		}),
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		PrepareStmt:                              true,
	}

	var db *gorm.DB
	connect := func() error {
		conn, err := gorm.Open(open(config.DSN), gormConfig)
		if err != nil {
			return err
		}
		sqlDB, err := conn.DB()
		if err != nil {
			return backoff.Permanent(err)
		}
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
		if err := sqlDB.PingContext(ctx); err != nil {
			sqlDB.Close()
			return err
		}
		db = conn
		return nil
	}

	var policy backoff.BackOff = &backoff.StopBackOff{}
	if config.ConnectTimeout > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.MaxElapsedTime = config.ConnectTimeout
		policy = exp
	}
	notify := func(err error, wait time.Duration) {
		zapLogger.Warn("Banco de dados indisponível, nova tentativa agendada",
			zap.String("driver", config.Driver),
			zap.Duration("wait", wait),
			zap.Error(err))
	}
	if err := backoff.RetryNotify(connect, backoff.WithContext(policy, ctx), notify); err != nil {
		return nil, fmt.Errorf("falha ao conectar ao banco de dados: %w", err)
	}

	database := &Database{db: db, logger: zapLogger}

	if config.SkipMigrations {
		zapLogger.Info("Migrações desabilitadas na configuração")
		return database, nil
	}
	if err := database.Migrate(ctx); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

// DB retorna a instância do GORM DB
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Ping verifica a conexão com o banco de dados
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close fecha a conexão com o banco de dados
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate garante que as tabelas de rotas e de auditoria estão atualizadas
func (d *Database) Migrate(ctx context.Context) error {
	tables := []interface {
		TableName() string
	}{&model.RouteEntity{}, &model.AuditLog{}}

	for _, table := range tables {
		if err := d.db.WithContext(ctx).AutoMigrate(table); err != nil {
			return fmt.Errorf("falha ao migrar %s: %w", table.TableName(), err)
		}
		d.logger.Info("Esquema migrado", zap.String("table", table.TableName()))
	}
	return nil
}

// zapWriter encaminha a saída do logger do GORM para o zap em nível debug
type zapWriter struct {
	logger *zap.Logger
}

func (w zapWriter) Printf(format string, args ...interface{}) {
	w.logger.Debug(fmt.Sprintf(format, args...), zap.String("component", "gorm"))
}
