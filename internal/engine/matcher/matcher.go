package matcher

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/diillson/fastgate/internal/domain/model"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// RegexPrefix marca um valor de match_headers como expressão regular
const RegexPrefix = "regex:"

// SchemaKey identifica um match_body_schema que é um documento JSON Schema
// completo em vez de um modelo de subconjunto
const SchemaKey = "$schema"

// Rule é a forma compilada da regra de correspondência de uma rota.
// É imutável e segura para uso concorrente.
type Rule struct {
	route     *model.Route
	anyMethod bool
	methods   map[string]struct{}
	path      *PathPattern
	headers   []headerRule
	body      bodyPredicate
}

type headerRule struct {
	name  string
	value string
	re    *regexp.Regexp
}

func (h headerRule) match(header http.Header) bool {
	for _, got := range header.Values(h.name) {
		if h.re != nil {
			if h.re.MatchString(got) {
				return true
			}
			continue
		}
		if got == h.value {
			return true
		}
	}
	return false
}

type bodyPredicate interface {
	match(body []byte) bool
}

// templatePredicate exige que o corpo contenha o modelo como subconjunto
type templatePredicate struct {
	tmpl model.Object
}

func (p templatePredicate) match(body []byte) bool {
	doc, err := model.ParseObject(body)
	if err != nil {
		return false
	}
	return doc.Contains(p.tmpl)
}

// schemaPredicate valida o corpo contra um JSON Schema compilado
type schemaPredicate struct {
	schema *jsonschema.Schema
}

func (p schemaPredicate) match(body []byte) bool {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return false
	}
	return p.schema.Validate(doc) == nil
}

// Compile compila a regra da rota. Padrão de caminho, expressões de
// cabeçalho e esquema de corpo inválidos resultam em *model.ValidationError.
func Compile(route *model.Route) (*Rule, error) {
	verr := &model.ValidationError{}

	rule := &Rule{
		route:   route,
		methods: make(map[string]struct{}),
	}

	for _, m := range route.Methods() {
		if m == model.MethodAny {
			rule.anyMethod = true
			continue
		}
		rule.methods[m] = struct{}{}
	}

	path, err := CompilePath(route.MatchPath)
	if err != nil {
		verr.Add("match_path", err.Error())
	}
	rule.path = path

	for name, value := range route.MatchHeaders {
		hr := headerRule{name: http.CanonicalHeaderKey(name), value: value}
		if expr, ok := strings.CutPrefix(value, RegexPrefix); ok {
			re, err := regexp.Compile(expr)
			if err != nil {
				verr.Add("match_headers", fmt.Sprintf("expressão inválida para %s: %v", name, err))
				continue
			}
			hr.re = re
		}
		rule.headers = append(rule.headers, hr)
	}

	if route.MatchBodySchema != nil {
		body, err := compileBody(route.MatchBodySchema)
		if err != nil {
			verr.Add("match_body_schema", err.Error())
		}
		rule.body = body
	}

	if err := verr.OrNil(); err != nil {
		return nil, err
	}
	return rule, nil
}

func compileBody(schema model.Object) (bodyPredicate, error) {
	if _, ok := schema[SchemaKey]; !ok {
		return templatePredicate{tmpl: schema}, nil
	}

	data, err := schema.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var schemaDoc interface{}
	if err := json.Unmarshal(data, &schemaDoc); err != nil {
		return nil, fmt.Errorf("falha ao interpretar JSON Schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("falha ao registrar JSON Schema: %w", err)
	}
	compiled, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("falha ao compilar JSON Schema: %w", err)
	}
	return schemaPredicate{schema: compiled}, nil
}

// Validate verifica a estrutura da rota e compila sua regra, devolvendo
// todos os problemas em um único *model.ValidationError
func Validate(route *model.Route) error {
	verr := &model.ValidationError{}
	if err := route.Validate(); err != nil {
		verr.Merge(err.(*model.ValidationError))
	}
	if route.MatchPath != "" {
		if _, err := Compile(route); err != nil {
			verr.Merge(err.(*model.ValidationError))
		}
	}
	return verr.OrNil()
}

// Route retorna a rota de origem da regra
func (r *Rule) Route() *model.Route {
	return r.route
}

// Path retorna o padrão de caminho compilado
func (r *Rule) Path() *PathPattern {
	return r.path
}

// Match avalia a regra. Nunca falha: qualquer divergência estrutural,
// inclusive corpo não JSON, resulta em false.
func (r *Rule) Match(req *model.Request) bool {
	return r.MatchMethod(req.Method) &&
		r.path.Match(req.Path) &&
		r.matchHeaders(req.Header) &&
		r.matchBody(req.Method, req.Body)
}

// MatchMethod verifica apenas o método
func (r *Rule) MatchMethod(method string) bool {
	if r.anyMethod {
		return true
	}
	_, ok := r.methods[strings.ToUpper(method)]
	return ok
}

func (r *Rule) matchHeaders(header http.Header) bool {
	for _, h := range r.headers {
		if !h.match(header) {
			return false
		}
	}
	return true
}

func (r *Rule) matchBody(method string, body []byte) bool {
	if r.body == nil || !model.HasBody(strings.ToUpper(method)) {
		return true
	}
	return r.body.match(body)
}

// Matches compila a regra e avalia a requisição. Rotas com configuração
// inválida nunca correspondem.
func Matches(route *model.Route, req *model.Request) bool {
	rule, err := Compile(route)
	if err != nil {
		return false
	}
	return rule.Match(req)
}
