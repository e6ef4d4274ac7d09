package model

import "net/http"

// TestRequest descreve a requisição sintética de um teste de rota
type TestRequest struct {
	Method  string            `json:"test_method"`
	Headers map[string]string `json:"test_headers"`
	Body    *Value            `json:"test_body"`
	Timeout int               `json:"timeout"` // segundos; 0 usa o timeout da rota
}

// Build monta a requisição sintética aplicando os padrões:
// POST, Content-Type application/json e corpo {}
func (t *TestRequest) Build(path string) (*Request, error) {
	method := NormalizeMethods(t.Method)
	if t.Method == "" {
		method = http.MethodPost
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	for k, v := range t.Headers {
		header.Set(k, v)
	}

	body := []byte("{}")
	if t.Body != nil {
		data, err := t.Body.MarshalJSON()
		if err != nil {
			return nil, err
		}
		body = data
	}

	return &Request{
		Method: method,
		Path:   path,
		Header: header,
		Body:   body,
	}, nil
}

// TestBreakdown separa o diagnóstico de cada etapa do teste
type TestBreakdown struct {
	RequestSent      bool `json:"request_sent"`
	ResponseReceived bool `json:"response_received"`
	HeadersApplied   bool `json:"headers_applied"`
	BodyModified     bool `json:"body_modified"`
}

// TestReport é o resultado estruturado de um teste de rota
type TestReport struct {
	RouteID         string            `json:"route_id,omitempty"`
	Success         bool              `json:"success"`
	Matched         bool              `json:"matched"`
	StatusCode      *int              `json:"status_code,omitempty"`
	ResponseTimeMs  float64           `json:"response_time_ms"`
	TargetURL       string            `json:"target_url,omitempty"`
	ErrorMessage    string            `json:"error_message,omitempty"`
	Attempts        int               `json:"attempts"`
	ResponseHeaders map[string]string `json:"response_headers,omitempty"`
	ResponseBody    string            `json:"response_body,omitempty"`
	TestResult      TestBreakdown     `json:"test_result"`
}
