package matcher

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const globMeta = "*?[{\\"

// paramSegment reconhece segmentos nomeados como {id}; alternativas do
// doublestar ({a,b}) têm vírgula e não casam aqui
var paramSegment = regexp.MustCompile(`\{[A-Za-z_][A-Za-z0-9_]*\}`)

// PathPattern é um padrão de caminho compilado.
//
//   - sem metacaracteres: igualdade literal
//   - *: exatamente um segmento ({nome} é um apelido)
//   - **: zero ou mais segmentos
type PathPattern struct {
	raw     string
	glob    string
	literal bool
	prefix  string
}

// CompilePath valida e compila um padrão de caminho
func CompilePath(pattern string) (*PathPattern, error) {
	glob := paramSegment.ReplaceAllString(pattern, "*")
	if !doublestar.ValidatePattern(glob) {
		return nil, fmt.Errorf("padrão de caminho inválido: %s", pattern)
	}

	p := &PathPattern{
		raw:     pattern,
		glob:    glob,
		literal: !strings.ContainsAny(glob, globMeta),
	}
	p.prefix = staticPrefix(glob, p.literal)
	return p, nil
}

// staticPrefix devolve a parte fixa do padrão antes do primeiro
// metacaractere, limitada a uma fronteira de segmento e sem / final
func staticPrefix(glob string, literal bool) string {
	if literal {
		return strings.TrimRight(glob, "/")
	}
	static := glob[:strings.IndexAny(glob, globMeta)]
	if !strings.HasSuffix(static, "/") {
		static = static[:strings.LastIndex(static, "/")+1]
	}
	return strings.TrimRight(static, "/")
}

// String retorna o padrão original
func (p *PathPattern) String() string {
	return p.raw
}

// Literal indica se o padrão não contém curingas
func (p *PathPattern) Literal() bool {
	return p.literal
}

// Prefix retorna o prefixo removido quando strip_path_prefix está ativo
func (p *PathPattern) Prefix() string {
	return p.prefix
}

// Match verifica se o caminho inteiro corresponde ao padrão
func (p *PathPattern) Match(path string) bool {
	if p.literal {
		return path == p.raw
	}
	// "/api/**" também aceita o próprio "/api"
	if base, ok := strings.CutSuffix(p.glob, "/**"); ok {
		if ok, _ := doublestar.Match(base, path); ok {
			return true
		}
	}
	ok, _ := doublestar.Match(p.glob, path)
	return ok
}

// StripPrefix remove o prefixo fixo do caminho, apenas em fronteira de segmento.
// Caminhos que não começam pelo prefixo são devolvidos sem alteração.
func (p *PathPattern) StripPrefix(path string) string {
	if p.prefix == "" {
		return path
	}
	if path == p.prefix {
		return ""
	}
	if strings.HasPrefix(path, p.prefix+"/") {
		return path[len(p.prefix):]
	}
	return path
}

// Sample gera um caminho concreto para o padrão: alternativas {a,b} viram a
// primeira opção e os demais curingas viram "test"
func (p *PathPattern) Sample() string {
	if p.literal {
		return p.raw
	}
	segments := strings.Split(p.glob, "/")
	for i, seg := range segments {
		if seg == "**" {
			segments[i] = "test"
			continue
		}
		seg = firstAlternatives(seg)
		switch {
		case strings.ContainsAny(seg, "?[\\"):
			segments[i] = "test"
		case strings.Contains(seg, "*"):
			segments[i] = strings.ReplaceAll(seg, "*", "test")
		default:
			segments[i] = seg
		}
	}
	return strings.Join(segments, "/")
}

// firstAlternatives troca cada grupo {a,b,...} pela primeira alternativa
func firstAlternatives(seg string) string {
	for {
		open := strings.IndexByte(seg, '{')
		if open < 0 {
			return seg
		}
		depth, end := 0, -1
		for j := open; j < len(seg) && end < 0; j++ {
			switch seg[j] {
			case '{':
				depth++
			case '}':
				depth--
				if depth == 0 {
					end = j
				}
			}
		}
		if end < 0 {
			return seg
		}
		group := seg[open+1 : end]
		first := group
		depth = 0
		for j := 0; j < len(group); j++ {
			switch group[j] {
			case '{':
				depth++
			case '}':
				depth--
			case ',':
				if depth == 0 {
					first = group[:j]
					j = len(group)
				}
			}
		}
		seg = seg[:open] + first + seg[end+1:]
	}
}
