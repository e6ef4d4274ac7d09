package model

import (
	"net/http"
)

// Request é a visão de uma requisição de entrada usada na correspondência
// e na transformação. O corpo já foi lido por completo.
type Request struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
}

// NewRequestFromHTTP captura uma requisição HTTP com o corpo já lido.
// O net/http tira Host de r.Header; ele volta para a visão para que
// match_headers possa usá-lo.
func NewRequestFromHTTP(r *http.Request, body []byte) *Request {
	header := r.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if r.Host != "" && header.Get("Host") == "" {
		header.Set("Host", r.Host)
	}
	return &Request{
		Method:   r.Method,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Header:   header,
		Body:     body,
	}
}

// HasBody indica se o método carrega corpo para fins de correspondência
func HasBody(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}
