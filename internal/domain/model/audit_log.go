package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AuditLog registra uma requisição encaminhada: quem chamou, para onde foi
// e como o upstream respondeu
type AuditLog struct {
	ID             string    `gorm:"primaryKey;size:32" json:"id"`
	RequestID      string    `gorm:"index;size:64;not null" json:"request_id"`
	RouteID        string    `gorm:"index;size:64" json:"route_id,omitempty"`
	Method         string    `gorm:"size:16;not null" json:"method"`
	Path           string    `gorm:"size:512;not null" json:"path"`
	TargetURL      string    `gorm:"size:1024" json:"target_url,omitempty"`
	StatusCode     int       `gorm:"index;not null" json:"status_code"`
	ResponseTimeMs int64     `gorm:"not null" json:"response_time_ms"`
	RequestSize    int64     `json:"request_size"`
	ResponseSize   int64     `json:"response_size"`
	UserAgent      string    `gorm:"size:512" json:"user_agent,omitempty"`
	IPAddress      string    `gorm:"size:64" json:"ip_address,omitempty"`
	ErrorMessage   string    `gorm:"type:text" json:"error_message,omitempty"`
	IsStream       bool      `gorm:"index;not null" json:"is_stream"`
	StreamChunks   int       `json:"stream_chunks"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

// NewAuditLogID gera identificadores no formato log_<12 hex>
func NewAuditLogID() string {
	return "log_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// NewRequestID gera identificadores no formato req_<12 hex>
func NewRequestID() string {
	return "req_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// AuditLogFilter restringe a consulta de auditoria; campos vazios não filtram
type AuditLogFilter struct {
	RouteID    string
	Method     string
	StatusCode int
	Since      time.Time
	Until      time.Time
	Offset     int
	Limit      int
}
