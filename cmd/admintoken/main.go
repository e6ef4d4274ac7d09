package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/diillson/fastgate/pkg/config"
	"github.com/diillson/fastgate/pkg/security"
	"go.uber.org/zap"
)

func main() {
	var (
		configPath string
		subject    string
		expiration time.Duration
	)

	flag.StringVar(&configPath, "config", "./config", "Diretório do arquivo config.yaml")
	flag.StringVar(&subject, "subject", "", "Identificação do operador (ex.: e-mail)")
	flag.DurationVar(&expiration, "expiration", 0, "Validade do token (padrão: admin.tokenExpiration)")
	flag.Parse()

	if subject == "" {
		fmt.Println("Erro: informe o operador com -subject.")
		fmt.Println("Uso: admintoken -subject=<operador> [-expiration=24h]")
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Erro ao carregar configuração: %v\n", err)
		os.Exit(1)
	}
	if cfg.Admin.JWTSecret == "" {
		fmt.Println("Erro: admin.jwtSecret não configurado (ou FG_ADMIN_JWTSECRET).")
		os.Exit(1)
	}
	if expiration <= 0 {
		expiration = cfg.Admin.TokenExpiration
	}

	keys, err := security.NewKeyManager(cfg.Admin.JWTSecret, zap.NewNop())
	if err != nil {
		fmt.Printf("Erro ao inicializar chaves: %v\n", err)
		os.Exit(1)
	}

	token, err := keys.GenerateToken(subject, security.RoleAdmin, expiration)
	if err != nil {
		fmt.Printf("Erro ao gerar token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nToken JWT gerado:")
	fmt.Println("------------------------------------------")
	fmt.Println(token)
	fmt.Println("------------------------------------------")
	fmt.Printf("Operador: %s\n", subject)
	fmt.Printf("Papel: %s\n", security.RoleAdmin)
	fmt.Printf("Expira em: %s\n", time.Now().Add(expiration).Format(time.RFC3339))
	fmt.Println("\nUse este token no cabeçalho Authorization:")
	fmt.Printf("Authorization: Bearer %s\n", token)
}
