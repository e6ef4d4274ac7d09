package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/diillson/fastgate/pkg/config"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func main() {
	var (
		outputPath string
		force      bool
		adminToken string
	)

	flag.StringVar(&outputPath, "output", "config.yaml", "Caminho para o arquivo de configuração de saída")
	flag.BoolVar(&force, "force", false, "Sobrescrever arquivo se existir")
	flag.StringVar(&adminToken, "admin-token", "", "Token estático da API administrativa")
	flag.Parse()

	if _, err := os.Stat(outputPath); err == nil && !force {
		fmt.Printf("Erro: arquivo %s já existe. Use --force para sobrescrever.\n", outputPath)
		os.Exit(1)
	}

	// Mesmos valores padrão usados por LoadConfig
	v := viper.New()
	config.SetDefaults(v)
	if adminToken != "" {
		v.Set("admin.token", adminToken)
	}

	data, err := yaml.Marshal(v.AllSettings())
	if err != nil {
		fmt.Printf("Erro ao serializar configuração: %v\n", err)
		os.Exit(1)
	}

	header := "# Configuração do FastGate. Variáveis FG_<SEÇÃO>_<CHAVE> sobrescrevem estes valores.\n"
	if err := os.WriteFile(outputPath, append([]byte(header), data...), 0o600); err != nil {
		fmt.Printf("Erro ao escrever arquivo: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Arquivo de configuração gerado em: %s\n", outputPath)
}
