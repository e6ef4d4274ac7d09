package matcher_test

import (
	"net/http"
	"testing"

	"github.com/diillson/fastgate/internal/domain/model"
	"github.com/diillson/fastgate/internal/engine/matcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRoute(t *testing.T, method, path string) *model.Route {
	t.Helper()
	in := model.RouteInput{
		Name:        "r",
		MatchMethod: method,
		MatchPath:   path,
		TargetHost:  "backend:8080",
		TargetPath:  "/",
	}
	return in.ToRoute()
}

func request(method, path string, header http.Header, body string) *model.Request {
	if header == nil {
		header = http.Header{}
	}
	return &model.Request{Method: method, Path: path, Header: header, Body: []byte(body)}
}

func TestPathPattern_Match(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"/health", "/health", true},
		{"/health", "/health/", false},
		{"/users/*", "/users/42", true},
		{"/users/*", "/users/42/orders", false},
		{"/users/{id}", "/users/42", true},
		{"/users/{id}/orders", "/users/42/orders", true},
		{"/api/**", "/api", true},
		{"/api/**", "/api/v1/items", true},
		{"/api/**", "/apiv1", false},
		{"/files/*.json", "/files/report.json", true},
		{"/files/*.json", "/files/report.xml", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+" "+tt.path, func(t *testing.T) {
			p, err := matcher.CompilePath(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Match(tt.path))
		})
	}
}

func TestPathPattern_StripPrefix(t *testing.T) {
	p, err := matcher.CompilePath("/v1/foo/**")
	require.NoError(t, err)

	assert.Equal(t, "/v1/foo", p.Prefix())
	assert.Equal(t, "/bar", p.StripPrefix("/v1/foo/bar"))
	assert.Equal(t, "", p.StripPrefix("/v1/foo"))
	assert.Equal(t, "/v1/foobar", p.StripPrefix("/v1/foobar"))

	literal, err := matcher.CompilePath("/v1/foo")
	require.NoError(t, err)
	assert.True(t, literal.Literal())
	assert.Equal(t, "", literal.StripPrefix("/v1/foo"))
}

func TestPathPattern_Sample(t *testing.T) {
	tests := map[string]string{
		"/health":             "/health",
		"/users/{id}":         "/users/test",
		"/api/**":             "/api/test",
		"/files/*.json":       "/files/test.json",
		"/v1/*/orders/{oid}":  "/v1/test/orders/test",
		"/api/{v1,v2}/x":      "/api/v1/x",
		"/img/logo.{png,jpg}": "/img/logo.png",
	}
	for pattern, want := range tests {
		p, err := matcher.CompilePath(pattern)
		require.NoError(t, err)
		assert.Equal(t, want, p.Sample(), pattern)
		assert.True(t, p.Match(p.Sample()), "sample must match %s", pattern)
	}
}

func TestCompilePath_Invalid(t *testing.T) {
	_, err := matcher.CompilePath("/files/[a-")
	assert.Error(t, err)
}

func TestRule_Match_Method(t *testing.T) {
	route := newRoute(t, "GET,POST", "/items")

	assert.True(t, matcher.Matches(route, request(http.MethodGet, "/items", nil, "")))
	assert.True(t, matcher.Matches(route, request("post", "/items", nil, "{}")))
	assert.False(t, matcher.Matches(route, request(http.MethodDelete, "/items", nil, "")))

	anyRoute := newRoute(t, "", "/items")
	assert.True(t, matcher.Matches(anyRoute, request(http.MethodDelete, "/items", nil, "")))
}

func TestRule_Match_Headers(t *testing.T) {
	route := newRoute(t, "", "/items")
	route.MatchHeaders = map[string]string{
		"x-api-version": "2",
		"X-Client":      "regex:^mobile-(ios|android)$",
	}

	h := http.Header{}
	h.Set("X-Api-Version", "2")
	h.Set("X-Client", "mobile-ios")
	assert.True(t, matcher.Matches(route, request(http.MethodGet, "/items", h, "")))

	h.Set("X-Client", "desktop")
	assert.False(t, matcher.Matches(route, request(http.MethodGet, "/items", h, "")))

	h.Set("X-Client", "mobile-android")
	h.Del("X-Api-Version")
	assert.False(t, matcher.Matches(route, request(http.MethodGet, "/items", h, "")))
}

func TestRule_Match_BodyTemplate(t *testing.T) {
	route := newRoute(t, "", "/events")
	route.MatchBodySchema = model.Object{
		"type": model.String("order"),
		"meta": model.ObjectValue(model.Object{"region": model.String("eu")}),
	}

	assert.True(t, matcher.Matches(route, request(http.MethodPost, "/events",
		nil, `{"type":"order","meta":{"region":"eu","zone":"b"},"id":1}`)))
	assert.False(t, matcher.Matches(route, request(http.MethodPost, "/events",
		nil, `{"type":"order","meta":{"region":"us"}}`)))
	assert.False(t, matcher.Matches(route, request(http.MethodPost, "/events", nil, `not json`)))
	assert.False(t, matcher.Matches(route, request(http.MethodPut, "/events", nil, `[1,2]`)))

	// métodos sem corpo ignoram o predicado
	assert.True(t, matcher.Matches(route, request(http.MethodGet, "/events", nil, "")))
}

func TestRule_Match_BodyJSONSchema(t *testing.T) {
	route := newRoute(t, "POST", "/payments")
	schema, err := model.ParseObject([]byte(`{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["amount"],
		"properties": {"amount": {"type": "number", "minimum": 1}}
	}`))
	require.NoError(t, err)
	route.MatchBodySchema = schema

	assert.True(t, matcher.Matches(route, request(http.MethodPost, "/payments", nil, `{"amount":10}`)))
	assert.False(t, matcher.Matches(route, request(http.MethodPost, "/payments", nil, `{"amount":0}`)))
	assert.False(t, matcher.Matches(route, request(http.MethodPost, "/payments", nil, `{}`)))
}

func TestValidate(t *testing.T) {
	t.Run("valid route", func(t *testing.T) {
		assert.NoError(t, matcher.Validate(newRoute(t, "GET", "/v1/{id}")))
	})

	t.Run("invalid header expression and schema", func(t *testing.T) {
		route := newRoute(t, "GET", "/v1")
		route.MatchHeaders = map[string]string{"X-Id": "regex:(unclosed"}
		route.MatchBodySchema = model.Object{
			"$schema": model.String("https://json-schema.org/draft/2020-12/schema"),
			"type":    model.Number(12),
		}

		err := matcher.Validate(route)
		require.Error(t, err)

		var fields []string
		for _, fe := range err.(*model.ValidationError).Errors {
			fields = append(fields, fe.Field)
		}
		assert.Contains(t, fields, "match_headers")
		assert.Contains(t, fields, "match_body_schema")
	})

	t.Run("structural and pattern errors together", func(t *testing.T) {
		route := newRoute(t, "GET", "/files/[a-")
		route.Name = ""

		err := matcher.Validate(route)
		require.Error(t, err)
		assert.Len(t, err.(*model.ValidationError).Errors, 2)
	})
}
