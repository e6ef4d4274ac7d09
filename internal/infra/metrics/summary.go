package metrics

import (
	"sort"
	"strconv"
	"sync"
	"time"
)

const (
	defaultMaxPaths = 1000
	topPathsLimit   = 10
)

// PathCount é a contagem de requisições de um caminho
type PathCount struct {
	Path  string `json:"path"`
	Count int64  `json:"count"`
}

// SummarySnapshot é a visão agregada exposta em /admin/metrics
type SummarySnapshot struct {
	TotalRequests       int64            `json:"total_requests"`
	TotalErrors         int64            `json:"total_errors"`
	SuccessRate         float64          `json:"success_rate"`
	AverageResponseTime float64          `json:"average_response_time"` // ms
	ActiveRoutes        int              `json:"active_routes"`
	TotalRoutes         int              `json:"total_routes"`
	StatusDistribution  map[string]int64 `json:"status_distribution"`
	TopPaths            []PathCount      `json:"top_paths"`
	Since               time.Time        `json:"since"`
}

// Summary acumula contadores do tráfego encaminhado desde o início do processo
type Summary struct {
	mu            sync.Mutex
	maxPaths      int
	totalRequests int64
	totalErrors   int64
	totalDuration time.Duration
	statuses      map[int]int64
	paths         map[string]int64
	since         time.Time
}

// NewSummary cria um agregador; caminhos distintos além de maxPaths não são
// contabilizados individualmente
func NewSummary(maxPaths int) *Summary {
	return &Summary{
		maxPaths: maxPaths,
		statuses: make(map[int]int64),
		paths:    make(map[string]int64),
		since:    time.Now(),
	}
}

// Record registra uma requisição encaminhada
func (s *Summary) Record(path string, status int, d time.Duration, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalRequests++
	s.totalDuration += d
	if failed {
		s.totalErrors++
	}
	s.statuses[status]++
	if _, ok := s.paths[path]; ok || len(s.paths) < s.maxPaths {
		s.paths[path]++
	}
}

// Snapshot calcula a visão agregada
func (s *Summary) Snapshot(activeRoutes, totalRoutes int) SummarySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := SummarySnapshot{
		TotalRequests:      s.totalRequests,
		TotalErrors:        s.totalErrors,
		SuccessRate:        100,
		ActiveRoutes:       activeRoutes,
		TotalRoutes:        totalRoutes,
		StatusDistribution: make(map[string]int64, len(s.statuses)),
		TopPaths:           make([]PathCount, 0, topPathsLimit),
		Since:              s.since,
	}

	if s.totalRequests > 0 {
		snap.SuccessRate = float64(s.totalRequests-s.totalErrors) / float64(s.totalRequests) * 100
		snap.AverageResponseTime = float64(s.totalDuration) / float64(s.totalRequests) / float64(time.Millisecond)
	}

	for status, count := range s.statuses {
		snap.StatusDistribution[strconv.Itoa(status)] = count
	}

	for path, count := range s.paths {
		snap.TopPaths = append(snap.TopPaths, PathCount{Path: path, Count: count})
	}
	sort.Slice(snap.TopPaths, func(i, j int) bool {
		if snap.TopPaths[i].Count != snap.TopPaths[j].Count {
			return snap.TopPaths[i].Count > snap.TopPaths[j].Count
		}
		return snap.TopPaths[i].Path < snap.TopPaths[j].Path
	})
	if len(snap.TopPaths) > topPathsLimit {
		snap.TopPaths = snap.TopPaths[:topPathsLimit]
	}

	return snap
}
