package transform

import (
	"net/http"
	"strings"

	"github.com/diillson/fastgate/internal/domain/model"
	"github.com/diillson/fastgate/internal/engine/matcher"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Request é a requisição já reescrita, pronta para o upstream
type Request struct {
	Method         string
	URL            string
	Path           string
	Header         http.Header
	Body           []byte
	HeadersApplied bool
	BodyModified   bool
}

// Apply aplica as transformações da rota sobre uma cópia da requisição.
// A requisição de entrada não é alterada.
func Apply(rule *matcher.Rule, req *model.Request) *Request {
	route := rule.Route()

	header, headersApplied := ApplyHeaders(route, req.Header)
	body, bodyModified := ApplyBody(route, req.Body)
	path := RewritePath(rule.Path(), route, req.Path)

	url := route.TargetProtocol + "://" + route.TargetHost + path
	if req.RawQuery != "" {
		url += "?" + req.RawQuery
	}

	return &Request{
		Method:         req.Method,
		URL:            url,
		Path:           path,
		Header:         header,
		Body:           body,
		HeadersApplied: headersApplied,
		BodyModified:   bodyModified,
	}
}

// ApplyHeaders remove os cabeçalhos listados e depois adiciona os configurados;
// os adicionados prevalecem. Aplicar duas vezes produz o mesmo resultado.
func ApplyHeaders(route *model.Route, in http.Header) (http.Header, bool) {
	out := in.Clone()
	if out == nil {
		out = http.Header{}
	}

	for _, name := range route.RemoveHeaders {
		out.Del(name)
	}
	for name, value := range route.AddHeaders {
		out.Set(name, value)
	}

	return out, len(route.RemoveHeaders) > 0 || len(route.AddHeaders) > 0
}

// ApplyBody mescla add_body_fields no nível raiz do corpo quando ele é um
// objeto JSON. Outros corpos passam sem alteração.
func ApplyBody(route *model.Route, body []byte) ([]byte, bool) {
	if len(route.AddBodyFields) == 0 {
		return body, false
	}
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		return body, false
	}

	out := body
	for _, key := range route.AddBodyFields.Keys() {
		raw, err := route.AddBodyFields[key].MarshalJSON()
		if err != nil {
			return body, false
		}
		out, err = sjson.SetRawBytes(out, gjson.Escape(key), raw)
		if err != nil {
			return body, false
		}
	}
	return out, true
}

// RewritePath calcula o caminho final no upstream. Com strip_path_prefix o
// prefixo fixo do match_path é removido e o restante é unido ao target_path
// sem barras repetidas; sem ele o target_path é usado como está.
func RewritePath(pattern *matcher.PathPattern, route *model.Route, incoming string) string {
	if !route.StripPathPrefix {
		return route.TargetPath
	}
	return JoinPath(route.TargetPath, pattern.StripPrefix(incoming))
}

// JoinPath une dois trechos de caminho com exatamente uma barra na junção
func JoinPath(base, rest string) string {
	rest = strings.TrimLeft(rest, "/")
	if rest == "" {
		return base
	}
	return strings.TrimRight(base, "/") + "/" + rest
}
