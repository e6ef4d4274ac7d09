package model

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// MethodAny é o método coringa que aceita qualquer verbo HTTP
	MethodAny = "ANY"

	DefaultPriority   = 100
	DefaultTimeout    = 30
	DefaultRetryCount = 0
	DefaultProtocol   = "http"

	MinPriority   = 1
	MaxPriority   = 1000
	MinTimeout    = 1
	MaxTimeout    = 300
	MaxRetryCount = 5
)

var (
	allowedMethods = map[string]bool{
		http.MethodGet:     true,
		http.MethodPost:    true,
		http.MethodPut:     true,
		http.MethodDelete:  true,
		http.MethodPatch:   true,
		http.MethodHead:    true,
		http.MethodOptions: true,
		MethodAny:          true,
	}
	allowedProtocols = map[string]bool{"http": true, "https": true}
	headerNameRe     = regexp.MustCompile("^[!#$%&'*+\\-.^_`|~0-9A-Za-z]+$")
)

// Route é a representação de domínio de uma regra de roteamento
type Route struct {
	ID          string `json:"route_id"`
	Name        string `json:"route_name"`
	Description string `json:"description,omitempty"`
	Priority    int    `json:"priority"`
	IsActive    bool   `json:"is_active"`

	// Regra de correspondência
	MatchMethod     string            `json:"match_method"`
	MatchPath       string            `json:"match_path"`
	MatchHeaders    map[string]string `json:"match_headers,omitempty"`
	MatchBodySchema Object            `json:"match_body_schema,omitempty"`

	// Destino
	TargetProtocol  string `json:"target_protocol"`
	TargetHost      string `json:"target_host"`
	TargetPath      string `json:"target_path"`
	StripPathPrefix bool   `json:"strip_path_prefix"`

	// Transformações
	AddHeaders    map[string]string `json:"add_headers,omitempty"`
	RemoveHeaders []string          `json:"remove_headers,omitempty"`
	AddBodyFields Object            `json:"add_body_fields,omitempty"`

	Timeout    int `json:"timeout"`     // segundos
	RetryCount int `json:"retry_count"` // tentativas adicionais após a primeira falha

	// Contadores de uso, mantidos pelo encaminhamento
	CallCount         int64         `json:"call_count"`
	ErrorCount        int64         `json:"error_count"`
	TotalResponse     time.Duration `json:"-"`
	AverageResponseMs float64       `json:"average_response_ms"`
	LastCalledAt      *time.Time    `json:"last_called_at,omitempty"`

	// Seq é a sequência de inserção no armazenamento, usada no desempate
	Seq       uint      `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RouteInput é o payload completo de criação ou substituição de uma rota.
// Campos opcionais são ponteiros para distinguir ausência de valor zero.
type RouteInput struct {
	ID              string            `json:"route_id,omitempty"`
	Name            string            `json:"route_name"`
	Description     string            `json:"description,omitempty"`
	Priority        *int              `json:"priority,omitempty"`
	IsActive        *bool             `json:"is_active,omitempty"`
	MatchMethod     string            `json:"match_method,omitempty"`
	MatchPath       string            `json:"match_path"`
	MatchHeaders    map[string]string `json:"match_headers,omitempty"`
	MatchBodySchema Object            `json:"match_body_schema,omitempty"`
	TargetProtocol  string            `json:"target_protocol,omitempty"`
	TargetHost      string            `json:"target_host"`
	TargetPath      string            `json:"target_path"`
	StripPathPrefix bool              `json:"strip_path_prefix"`
	AddHeaders      map[string]string `json:"add_headers,omitempty"`
	RemoveHeaders   []string          `json:"remove_headers,omitempty"`
	AddBodyFields   Object            `json:"add_body_fields,omitempty"`
	Timeout         *int              `json:"timeout,omitempty"`
	RetryCount      *int              `json:"retry_count,omitempty"`
}

// NewRouteID gera um identificador de rota no formato route_<12 hex>
func NewRouteID() string {
	return "route_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// ToRoute converte o payload em rota aplicando os valores padrão
func (in *RouteInput) ToRoute() *Route {
	r := &Route{
		ID:              strings.TrimSpace(in.ID),
		Name:            strings.TrimSpace(in.Name),
		Description:     in.Description,
		Priority:        DefaultPriority,
		IsActive:        true,
		MatchMethod:     in.MatchMethod,
		MatchPath:       strings.TrimSpace(in.MatchPath),
		MatchHeaders:    in.MatchHeaders,
		MatchBodySchema: in.MatchBodySchema,
		TargetProtocol:  strings.ToLower(strings.TrimSpace(in.TargetProtocol)),
		TargetHost:      strings.TrimSpace(in.TargetHost),
		TargetPath:      strings.TrimSpace(in.TargetPath),
		StripPathPrefix: in.StripPathPrefix,
		AddHeaders:      in.AddHeaders,
		RemoveHeaders:   in.RemoveHeaders,
		AddBodyFields:   in.AddBodyFields,
		Timeout:         DefaultTimeout,
		RetryCount:      DefaultRetryCount,
	}
	if in.Priority != nil {
		r.Priority = *in.Priority
	}
	if in.IsActive != nil {
		r.IsActive = *in.IsActive
	}
	if in.Timeout != nil {
		r.Timeout = *in.Timeout
	}
	if in.RetryCount != nil {
		r.RetryCount = *in.RetryCount
	}
	r.MatchMethod = NormalizeMethods(r.MatchMethod)
	if r.TargetProtocol == "" {
		r.TargetProtocol = DefaultProtocol
	}
	return r
}

// NormalizeMethods padroniza a lista de métodos: maiúsculas, sem espaços,
// ANY quando vazia
func NormalizeMethods(method string) string {
	parts := strings.Split(method, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return MethodAny
	}
	return strings.Join(out, ",")
}

// Methods retorna os métodos aceitos pela rota
func (r *Route) Methods() []string {
	return strings.Split(NormalizeMethods(r.MatchMethod), ",")
}

// TimeoutDuration retorna o timeout configurado como time.Duration
func (r *Route) TimeoutDuration() time.Duration {
	return time.Duration(r.Timeout) * time.Second
}

// AverageResponseTime calcula o tempo médio de resposta
func (r *Route) AverageResponseTime() time.Duration {
	if r.CallCount == 0 {
		return 0
	}
	return r.TotalResponse / time.Duration(r.CallCount)
}

// Validate verifica a estrutura da rota e acumula todos os problemas encontrados.
// Padrões de caminho, expressões de cabeçalho e esquemas de corpo são
// verificados na compilação do matcher.
func (r *Route) Validate() error {
	verr := &ValidationError{}

	if r.Name == "" {
		verr.Add("route_name", "é obrigatório")
	}
	if r.MatchPath == "" {
		verr.Add("match_path", "é obrigatório")
	} else if !strings.HasPrefix(r.MatchPath, "/") {
		verr.Add("match_path", "deve começar com /")
	}
	for _, m := range r.Methods() {
		if !allowedMethods[m] {
			verr.Add("match_method", fmt.Sprintf("método inválido: %s", m))
		}
	}
	for name := range r.MatchHeaders {
		if !headerNameRe.MatchString(name) {
			verr.Add("match_headers", fmt.Sprintf("nome de cabeçalho inválido: %q", name))
		}
	}
	if !allowedProtocols[r.TargetProtocol] {
		verr.Add("target_protocol", fmt.Sprintf("protocolo inválido: %s", r.TargetProtocol))
	}
	switch {
	case r.TargetHost == "":
		verr.Add("target_host", "é obrigatório")
	case strings.Contains(r.TargetHost, "://") || strings.ContainsAny(r.TargetHost, "/ "):
		verr.Add("target_host", "deve conter apenas host[:porta]")
	}
	if r.TargetPath == "" {
		verr.Add("target_path", "é obrigatório")
	} else if !strings.HasPrefix(r.TargetPath, "/") {
		verr.Add("target_path", "deve começar com /")
	}
	for name := range r.AddHeaders {
		if !headerNameRe.MatchString(name) {
			verr.Add("add_headers", fmt.Sprintf("nome de cabeçalho inválido: %q", name))
		}
	}
	for _, name := range r.RemoveHeaders {
		if !headerNameRe.MatchString(name) {
			verr.Add("remove_headers", fmt.Sprintf("nome de cabeçalho inválido: %q", name))
		}
	}
	if r.Priority < MinPriority || r.Priority > MaxPriority {
		verr.Add("priority", fmt.Sprintf("deve estar entre %d e %d", MinPriority, MaxPriority))
	}
	if r.Timeout < MinTimeout || r.Timeout > MaxTimeout {
		verr.Add("timeout", fmt.Sprintf("deve estar entre %d e %d segundos", MinTimeout, MaxTimeout))
	}
	if r.RetryCount < 0 || r.RetryCount > MaxRetryCount {
		verr.Add("retry_count", fmt.Sprintf("deve estar entre 0 e %d", MaxRetryCount))
	}

	return verr.OrNil()
}

// Less define a ordem total de resolução: prioridade, criação, sequência
func (r *Route) Less(other *Route) bool {
	if r.Priority != other.Priority {
		return r.Priority < other.Priority
	}
	if !r.CreatedAt.Equal(other.CreatedAt) {
		return r.CreatedAt.Before(other.CreatedAt)
	}
	return r.Seq < other.Seq
}

// Clone devolve uma cópia profunda da rota
func (r *Route) Clone() *Route {
	c := *r
	c.MatchHeaders = cloneStringMap(r.MatchHeaders)
	c.AddHeaders = cloneStringMap(r.AddHeaders)
	c.MatchBodySchema = r.MatchBodySchema.Clone()
	c.AddBodyFields = r.AddBodyFields.Clone()
	if r.RemoveHeaders != nil {
		c.RemoveHeaders = append([]string(nil), r.RemoveHeaders...)
	}
	if r.LastCalledAt != nil {
		t := *r.LastCalledAt
		c.LastCalledAt = &t
	}
	return &c
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
