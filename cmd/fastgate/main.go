package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/diillson/fastgate/internal/app"
	"github.com/diillson/fastgate/pkg/config"
	"github.com/diillson/fastgate/pkg/logging"
	"github.com/diillson/fastgate/pkg/telemetry"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"
)

// setupServer configura o servidor HTTP ou HTTPS conforme a configuração
func setupServer(handler http.Handler, cfg *config.Config, logger *zap.Logger) *http.Server {
	server := &http.Server{
		Addr:           cfg.Server.Addr(),
		Handler:        handler,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	if !cfg.Server.TLS && !cfg.Server.AutoCert {
		return server
	}

	server.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.Server.AutoCert {
		email := os.Getenv("FG_LETSENCRYPT_EMAIL")
		if email == "" {
			logger.Warn("Email para Let's Encrypt não configurado")
		}

		certManager := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(cfg.Server.Domains...),
			Cache:      autocert.DirCache(cfg.Server.CertCacheDir),
			Email:      email,
		}
		server.TLSConfig.GetCertificate = certManager.GetCertificate
		server.TLSConfig.NextProtos = append(server.TLSConfig.NextProtos, "h2", "http/1.1", "acme-tls/1")

		// desafios HTTP-01 e redirecionamento para HTTPS
		go func() {
			httpServer := &http.Server{
				Addr:    ":80",
				Handler: certManager.HTTPHandler(http.HandlerFunc(redirectHTTPS)),
			}
			logger.Info("Iniciando servidor HTTP para desafios Let's Encrypt", zap.String("addr", httpServer.Addr))
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Erro no servidor HTTP para Let's Encrypt", zap.Error(err))
			}
		}()

		logger.Info("Let's Encrypt configurado", zap.Strings("domains", cfg.Server.Domains))
	}

	return server
}

// redirectHTTPS redireciona HTTP -> HTTPS
func redirectHTTPS(w http.ResponseWriter, r *http.Request) {
	target := "https://" + r.Host + r.URL.Path
	if len(r.URL.RawQuery) > 0 {
		target += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, target, http.StatusMovedPermanently)
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./config", "Diretório do arquivo config.yaml")
	flag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Erro ao carregar configuração: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(logging.Options{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Outputs:    []string{cfg.Logging.OutputPath},
		ErrorPaths: []string{cfg.Logging.ErrorPath},
		Production: cfg.Logging.Production,
	})
	if err != nil {
		fmt.Printf("Erro ao inicializar logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Logging.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		tp, err := telemetry.NewTracerProvider(ctx, telemetry.Options{
			ServiceName:   cfg.Tracing.ServiceName,
			Environment:   cfg.Tracing.Environment,
			Endpoint:      cfg.Tracing.Endpoint,
			SamplingRatio: cfg.Tracing.SamplingRatio,
		}, logger)
		if err != nil {
			logger.Error("Falha ao inicializar tracer", zap.Error(err))
		} else {
			defer tp.Shutdown(context.Background())
		}
	}

	application, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Falha ao inicializar aplicação", zap.Error(err))
	}
	defer application.Close()

	server := setupServer(application.Engine(), cfg, logger)

	if err := application.Run(ctx, server); err != nil {
		logger.Error("Servidor encerrado com erro", zap.Error(err))
		return
	}

	logger.Info("Servidor encerrado com sucesso")
}
