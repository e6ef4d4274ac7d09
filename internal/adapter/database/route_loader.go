package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/diillson/fastgate/internal/domain/model"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// RouteFileLoader lê definições de rotas de um arquivo JSON ou YAML
type RouteFileLoader struct {
	logger *zap.Logger
}

// NewRouteFileLoader cria um novo carregador de arquivo de rotas
func NewRouteFileLoader(logger *zap.Logger) *RouteFileLoader {
	return &RouteFileLoader{logger: logger}
}

// Load lê o arquivo e devolve as definições na ordem em que aparecem.
// Um arquivo inexistente não é erro: não há rotas a semear.
func (l *RouteFileLoader) Load(filePath string) ([]model.RouteInput, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			l.logger.Warn("Arquivo de rotas não encontrado", zap.String("path", filePath))
			return nil, nil
		}
		return nil, fmt.Errorf("erro ao ler arquivo de rotas: %w", err)
	}

	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		data, err = yamlToJSON(data)
		if err != nil {
			return nil, fmt.Errorf("erro ao interpretar YAML de rotas: %w", err)
		}
	}

	var inputs []model.RouteInput
	if err := json.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("erro ao deserializar arquivo de rotas: %w", err)
	}

	l.logger.Info("Rotas lidas do arquivo",
		zap.String("path", filePath),
		zap.Int("count", len(inputs)))

	return inputs, nil
}

// yamlToJSON converte o documento YAML em JSON para reaproveitar os
// decodificadores JSON do modelo
func yamlToJSON(data []byte) ([]byte, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	normalized, err := normalizeYAML(doc)
	if err != nil {
		return nil, err
	}
	return json.Marshal(normalized)
}

func normalizeYAML(v interface{}) (interface{}, error) {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			n, err := normalizeYAML(val)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("chave não textual no YAML: %v", k)
			}
			n, err := normalizeYAML(val)
			if err != nil {
				return nil, err
			}
			out[key] = n
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			n, err := normalizeYAML(val)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		return v, nil
	}
}
