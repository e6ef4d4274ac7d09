package model

import (
	"time"
)

// RouteEntity é a representação de banco de dados de uma rota.
// Campos de mapa e objeto são armazenados como JSON serializado.
type RouteEntity struct {
	ID                  uint   `gorm:"primaryKey"`
	RouteID             string `gorm:"column:route_id;uniqueIndex;size:64;not null"`
	Name                string `gorm:"column:route_name;size:255;not null"`
	Description         string `gorm:"type:text"`
	Priority            int    `gorm:"index;not null"`
	IsActive            bool   `gorm:"index;not null"`
	MatchMethod         string `gorm:"size:64;not null"`
	MatchPath           string `gorm:"size:512;not null"`
	MatchHeadersJSON    string `gorm:"column:match_headers;type:text"`
	MatchBodySchemaJSON string `gorm:"column:match_body_schema;type:text"`
	TargetProtocol      string `gorm:"size:8;not null"`
	TargetHost          string `gorm:"size:255;not null"`
	TargetPath          string `gorm:"size:512;not null"`
	StripPathPrefix     bool
	AddHeadersJSON      string `gorm:"column:add_headers;type:text"`
	RemoveHeadersJSON   string `gorm:"column:remove_headers;type:text"`
	AddBodyFieldsJSON   string `gorm:"column:add_body_fields;type:text"`
	Timeout             int    `gorm:"default:30"`
	RetryCount          int    `gorm:"default:0"`
	CallCount           int64  `gorm:"default:0"`
	ErrorCount          int64  `gorm:"default:0"`
	TotalResponse       int64  `gorm:"default:0"` // Armazenado em nanossegundos
	LastCalledAt        *time.Time
	CreatedAt           time.Time `gorm:"index"`
	UpdatedAt           time.Time
}

// TableName define o nome da tabela
func (RouteEntity) TableName() string {
	return "proxy_routes"
}
