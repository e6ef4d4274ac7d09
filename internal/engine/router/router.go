package router

import (
	"errors"
	"sort"
	"sync/atomic"

	"github.com/diillson/fastgate/internal/domain/model"
	"github.com/diillson/fastgate/internal/engine/matcher"
	"go.uber.org/zap"
)

// ErrNoRoute indica que nenhuma rota ativa corresponde à requisição
var ErrNoRoute = errors.New("nenhuma rota corresponde à requisição")

// Snapshot é um conjunto imutável de regras compiladas, já ordenado
// por prioridade, data de criação e sequência
type Snapshot struct {
	rules   []*matcher.Rule
	skipped []string
}

// NewSnapshot compila as rotas ativas e as ordena. Rotas inativas ficam de
// fora; rotas cuja regra não compila são ignoradas e listadas em Skipped.
func NewSnapshot(routes []*model.Route) *Snapshot {
	active := make([]*model.Route, 0, len(routes))
	for _, r := range routes {
		if r.IsActive {
			active = append(active, r.Clone())
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Less(active[j])
	})

	s := &Snapshot{rules: make([]*matcher.Rule, 0, len(active))}
	for _, r := range active {
		rule, err := matcher.Compile(r)
		if err != nil {
			s.skipped = append(s.skipped, r.ID)
			continue
		}
		s.rules = append(s.rules, rule)
	}
	return s
}

// Len retorna o número de regras resolvíveis
func (s *Snapshot) Len() int {
	return len(s.rules)
}

// Skipped retorna os ids das rotas ignoradas por configuração inválida
func (s *Snapshot) Skipped() []string {
	return s.skipped
}

// Resolve devolve a primeira regra que corresponde à requisição
func (s *Snapshot) Resolve(req *model.Request) (*matcher.Rule, error) {
	for _, rule := range s.rules {
		if rule.Match(req) {
			return rule, nil
		}
	}
	return nil, ErrNoRoute
}

// Routes retorna as rotas do snapshot na ordem de resolução
func (s *Snapshot) Routes() []*model.Route {
	out := make([]*model.Route, len(s.rules))
	for i, rule := range s.rules {
		out[i] = rule.Route()
	}
	return out
}

// Router mantém o snapshot corrente. Leituras não bloqueiam; escritas
// substituem o snapshot inteiro de forma atômica.
type Router struct {
	current atomic.Pointer[Snapshot]
	logger  *zap.Logger
}

// New cria um roteador com um snapshot vazio
func New(logger *zap.Logger) *Router {
	r := &Router{logger: logger}
	r.current.Store(&Snapshot{})
	return r
}

// Load constrói um novo snapshot a partir das rotas e o publica
func (r *Router) Load(routes []*model.Route) *Snapshot {
	snap := NewSnapshot(routes)
	for _, id := range snap.skipped {
		r.logger.Warn("Rota ignorada por configuração inválida", zap.String("route_id", id))
	}
	r.current.Store(snap)
	r.logger.Info("Tabela de rotas atualizada", zap.Int("active_routes", snap.Len()))
	return snap
}

// Snapshot retorna o snapshot corrente
func (r *Router) Snapshot() *Snapshot {
	return r.current.Load()
}

// Resolve encontra a rota vencedora para a requisição
func (r *Router) Resolve(req *model.Request) (*model.Route, error) {
	rule, err := r.ResolveRule(req)
	if err != nil {
		return nil, err
	}
	return rule.Route(), nil
}

// ResolveRule é como Resolve, mas devolve a regra compilada, usada pelo
// encaminhamento para reescrever o caminho
func (r *Router) ResolveRule(req *model.Request) (*matcher.Rule, error) {
	return r.current.Load().Resolve(req)
}
