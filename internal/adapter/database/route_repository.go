package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/diillson/fastgate/internal/domain/model"
	"github.com/diillson/fastgate/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const routeOrder = "priority ASC, created_at ASC, id ASC"

// RouteRepository implementa repository.RouteRepository
type RouteRepository struct {
	db     *gorm.DB
	logger *zap.Logger
	tracer trace.Tracer
}

// NewRouteRepository cria um novo repositório de rotas
func NewRouteRepository(db *gorm.DB, logger *zap.Logger) repository.RouteRepository {
	return &RouteRepository{
		db:     db,
		logger: logger,
		tracer: otel.GetTracerProvider().Tracer("fastgate.repository.route"),
	}
}

// GetRoutes retorna todas as rotas
func (r *RouteRepository) GetRoutes(ctx context.Context) ([]*model.Route, error) {
	return r.findRoutes(ctx, "RouteRepository.GetRoutes", false)
}

// GetActiveRoutes retorna as rotas ativas
func (r *RouteRepository) GetActiveRoutes(ctx context.Context) ([]*model.Route, error) {
	return r.findRoutes(ctx, "RouteRepository.GetActiveRoutes", true)
}

func (r *RouteRepository) findRoutes(ctx context.Context, op string, activeOnly bool) ([]*model.Route, error) {
	ctx, span := r.tracer.Start(ctx, op,
		trace.WithAttributes(
			attribute.String("db.operation", "select"),
			attribute.String("db.table", model.RouteEntity{}.TableName()),
			attribute.Bool("routes.active_only", activeOnly),
		),
	)
	defer span.End()

	query := r.db.WithContext(ctx).Order(routeOrder)
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}

	var entities []model.RouteEntity
	if err := query.Find(&entities).Error; err != nil {
		r.logger.Error("falha ao buscar rotas", zap.Error(err))
		recordSpanError(span, "database error", err)
		return nil, fmt.Errorf("falha ao buscar rotas: %w", err)
	}

	routes := make([]*model.Route, 0, len(entities))
	for i := range entities {
		route, err := entityToModel(&entities[i])
		if err != nil {
			// Uma linha corrompida não deve derrubar a listagem inteira
			r.logger.Error("falha ao converter entidade para modelo",
				zap.String("route_id", entities[i].RouteID),
				zap.Error(err))
			span.AddEvent("error.conversion",
				trace.WithAttributes(
					attribute.String("route.id", entities[i].RouteID),
					attribute.String("error.message", err.Error()),
				),
			)
			continue
		}
		routes = append(routes, route)
	}

	span.SetAttributes(attribute.Int("routes.count", len(routes)))
	span.SetStatus(codes.Ok, "")
	return routes, nil
}

// GetRouteByID obtém uma rota pelo identificador
func (r *RouteRepository) GetRouteByID(ctx context.Context, routeID string) (*model.Route, error) {
	ctx, span := r.tracer.Start(ctx, "RouteRepository.GetRouteByID",
		trace.WithAttributes(
			attribute.String("db.operation", "select"),
			attribute.String("route.id", routeID),
		),
	)
	defer span.End()

	var entity model.RouteEntity
	if err := r.db.WithContext(ctx).Where("route_id = ?", routeID).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "route not found")
			span.SetAttributes(attribute.Bool("route.found", false))
			return nil, repository.ErrRouteNotFound
		}
		r.logger.Error("falha ao buscar rota",
			zap.String("route_id", routeID),
			zap.Error(err))
		recordSpanError(span, "database error", err)
		return nil, fmt.Errorf("falha ao buscar rota: %w", err)
	}

	route, err := entityToModel(&entity)
	if err != nil {
		recordSpanError(span, "conversion error", err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Bool("route.found", true),
		attribute.Bool("route.is_active", route.IsActive),
		attribute.Int("route.priority", route.Priority),
	)
	span.SetStatus(codes.Ok, "")
	return route, nil
}

// AddRoute adiciona uma nova rota
func (r *RouteRepository) AddRoute(ctx context.Context, route *model.Route) error {
	ctx, span := r.tracer.Start(ctx, "RouteRepository.AddRoute",
		trace.WithAttributes(
			attribute.String("db.operation", "insert"),
			attribute.String("route.id", route.ID),
			attribute.String("route.match_path", route.MatchPath),
		),
	)
	defer span.End()

	var existing int64
	if err := r.db.WithContext(ctx).Model(&model.RouteEntity{}).
		Where("route_id = ?", route.ID).Count(&existing).Error; err != nil {
		recordSpanError(span, "database error", err)
		return fmt.Errorf("falha ao verificar rota existente: %w", err)
	}
	if existing > 0 {
		span.SetStatus(codes.Error, "route exists")
		return repository.ErrRouteExists
	}

	entity, err := modelToEntity(route)
	if err != nil {
		recordSpanError(span, "conversion error", err)
		return fmt.Errorf("falha ao converter modelo para entidade: %w", err)
	}

	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		r.logger.Error("falha ao adicionar rota",
			zap.String("route_id", route.ID),
			zap.Error(err))
		recordSpanError(span, "database error", err)
		return fmt.Errorf("falha ao adicionar rota: %w", err)
	}

	route.Seq = entity.ID
	route.CreatedAt = entity.CreatedAt
	route.UpdatedAt = entity.UpdatedAt

	span.SetStatus(codes.Ok, "")
	return nil
}

// UpdateRoute substitui todos os campos editáveis. Identificador, data de
// criação e contadores de uso são preservados.
func (r *RouteRepository) UpdateRoute(ctx context.Context, route *model.Route) error {
	ctx, span := r.tracer.Start(ctx, "RouteRepository.UpdateRoute",
		trace.WithAttributes(
			attribute.String("db.operation", "update"),
			attribute.String("route.id", route.ID),
			attribute.Bool("route.is_active", route.IsActive),
		),
	)
	defer span.End()

	entity, err := modelToEntity(route)
	if err != nil {
		recordSpanError(span, "conversion error", err)
		return fmt.Errorf("falha ao converter modelo para entidade: %w", err)
	}

	now := time.Now()
	result := r.db.WithContext(ctx).Model(&model.RouteEntity{}).
		Where("route_id = ?", route.ID).
		Updates(map[string]interface{}{
			"route_name":        entity.Name,
			"description":       entity.Description,
			"priority":          entity.Priority,
			"is_active":         entity.IsActive,
			"match_method":      entity.MatchMethod,
			"match_path":        entity.MatchPath,
			"match_headers":     entity.MatchHeadersJSON,
			"match_body_schema": entity.MatchBodySchemaJSON,
			"target_protocol":   entity.TargetProtocol,
			"target_host":       entity.TargetHost,
			"target_path":       entity.TargetPath,
			"strip_path_prefix": entity.StripPathPrefix,
			"add_headers":       entity.AddHeadersJSON,
			"remove_headers":    entity.RemoveHeadersJSON,
			"add_body_fields":   entity.AddBodyFieldsJSON,
			"timeout":           entity.Timeout,
			"retry_count":       entity.RetryCount,
			"updated_at":        now,
		})
	if result.Error != nil {
		r.logger.Error("falha ao atualizar rota",
			zap.String("route_id", route.ID),
			zap.Error(result.Error))
		recordSpanError(span, "database error", result.Error)
		return fmt.Errorf("falha ao atualizar rota: %w", result.Error)
	}

	span.SetAttributes(attribute.Int64("db.rows_affected", result.RowsAffected))
	if result.RowsAffected == 0 {
		span.SetStatus(codes.Error, "no rows affected")
		return repository.ErrRouteNotFound
	}

	route.UpdatedAt = now
	span.SetStatus(codes.Ok, "")
	return nil
}

// DeleteRoute remove uma rota pelo identificador
func (r *RouteRepository) DeleteRoute(ctx context.Context, routeID string) error {
	ctx, span := r.tracer.Start(ctx, "RouteRepository.DeleteRoute",
		trace.WithAttributes(
			attribute.String("db.operation", "delete"),
			attribute.String("route.id", routeID),
		),
	)
	defer span.End()

	result := r.db.WithContext(ctx).Where("route_id = ?", routeID).Delete(&model.RouteEntity{})
	if result.Error != nil {
		r.logger.Error("falha ao excluir rota",
			zap.String("route_id", routeID),
			zap.Error(result.Error))
		recordSpanError(span, "database error", result.Error)
		return fmt.Errorf("falha ao excluir rota: %w", result.Error)
	}

	span.SetAttributes(attribute.Int64("db.rows_affected", result.RowsAffected))
	if result.RowsAffected == 0 {
		span.SetStatus(codes.Error, "no rows affected")
		return repository.ErrRouteNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// SetRouteActive altera o estado de ativação de uma rota
func (r *RouteRepository) SetRouteActive(ctx context.Context, routeID string, active bool) error {
	ctx, span := r.tracer.Start(ctx, "RouteRepository.SetRouteActive",
		trace.WithAttributes(
			attribute.String("db.operation", "update"),
			attribute.String("route.id", routeID),
			attribute.Bool("route.is_active", active),
		),
	)
	defer span.End()

	result := r.db.WithContext(ctx).Model(&model.RouteEntity{}).
		Where("route_id = ?", routeID).
		Updates(map[string]interface{}{
			"is_active":  active,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		recordSpanError(span, "database error", result.Error)
		return fmt.Errorf("falha ao alterar estado da rota: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		span.SetStatus(codes.Error, "no rows affected")
		return repository.ErrRouteNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// UpdateMetrics incrementa os contadores de uso de forma atômica no banco
func (r *RouteRepository) UpdateMetrics(ctx context.Context, routeID string, responseTime time.Duration, failed bool) error {
	ctx, span := r.tracer.Start(ctx, "RouteRepository.UpdateMetrics",
		trace.WithAttributes(
			attribute.String("db.operation", "update"),
			attribute.String("route.id", routeID),
			attribute.Int64("metrics.response_time_ns", int64(responseTime)),
			attribute.Bool("metrics.failed", failed),
		),
	)
	defer span.End()

	errorInc := 0
	if failed {
		errorInc = 1
	}

	// updated_at fica de fora: ele marca apenas alterações de definição
	result := r.db.WithContext(ctx).Model(&model.RouteEntity{}).
		Where("route_id = ?", routeID).
		UpdateColumns(map[string]interface{}{
			"call_count":     gorm.Expr("call_count + ?", 1),
			"error_count":    gorm.Expr("error_count + ?", errorInc),
			"total_response": gorm.Expr("total_response + ?", int64(responseTime)),
			"last_called_at": time.Now(),
		})
	if result.Error != nil {
		r.logger.Error("falha ao atualizar métricas",
			zap.String("route_id", routeID),
			zap.Error(result.Error))
		recordSpanError(span, "database error", result.Error)
		return fmt.Errorf("falha ao atualizar métricas: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		span.SetStatus(codes.Error, "no rows affected")
		return repository.ErrRouteNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

func recordSpanError(span trace.Span, status string, err error) {
	span.SetStatus(codes.Error, status)
	span.SetAttributes(
		attribute.Bool("error", true),
		attribute.String("error.message", err.Error()),
	)
}

// entityToModel converte uma entidade em um modelo
func entityToModel(entity *model.RouteEntity) (*model.Route, error) {
	route := &model.Route{
		ID:              entity.RouteID,
		Name:            entity.Name,
		Description:     entity.Description,
		Priority:        entity.Priority,
		IsActive:        entity.IsActive,
		MatchMethod:     entity.MatchMethod,
		MatchPath:       entity.MatchPath,
		TargetProtocol:  entity.TargetProtocol,
		TargetHost:      entity.TargetHost,
		TargetPath:      entity.TargetPath,
		StripPathPrefix: entity.StripPathPrefix,
		Timeout:         entity.Timeout,
		RetryCount:      entity.RetryCount,
		CallCount:       entity.CallCount,
		ErrorCount:      entity.ErrorCount,
		TotalResponse:   time.Duration(entity.TotalResponse),
		LastCalledAt:    entity.LastCalledAt,
		Seq:             entity.ID,
		CreatedAt:       entity.CreatedAt,
		UpdatedAt:       entity.UpdatedAt,
	}
	route.AverageResponseMs = float64(route.AverageResponseTime()) / float64(time.Millisecond)

	if err := decodeColumn(entity.MatchHeadersJSON, &route.MatchHeaders); err != nil {
		return nil, fmt.Errorf("match_headers: %w", err)
	}
	if err := decodeColumn(entity.MatchBodySchemaJSON, &route.MatchBodySchema); err != nil {
		return nil, fmt.Errorf("match_body_schema: %w", err)
	}
	if err := decodeColumn(entity.AddHeadersJSON, &route.AddHeaders); err != nil {
		return nil, fmt.Errorf("add_headers: %w", err)
	}
	if err := decodeColumn(entity.RemoveHeadersJSON, &route.RemoveHeaders); err != nil {
		return nil, fmt.Errorf("remove_headers: %w", err)
	}
	if err := decodeColumn(entity.AddBodyFieldsJSON, &route.AddBodyFields); err != nil {
		return nil, fmt.Errorf("add_body_fields: %w", err)
	}

	return route, nil
}

// modelToEntity converte um modelo em uma entidade
func modelToEntity(route *model.Route) (*model.RouteEntity, error) {
	entity := &model.RouteEntity{
		RouteID:         route.ID,
		Name:            route.Name,
		Description:     route.Description,
		Priority:        route.Priority,
		IsActive:        route.IsActive,
		MatchMethod:     route.MatchMethod,
		MatchPath:       route.MatchPath,
		TargetProtocol:  route.TargetProtocol,
		TargetHost:      route.TargetHost,
		TargetPath:      route.TargetPath,
		StripPathPrefix: route.StripPathPrefix,
		Timeout:         route.Timeout,
		RetryCount:      route.RetryCount,
		CallCount:       route.CallCount,
		ErrorCount:      route.ErrorCount,
		TotalResponse:   int64(route.TotalResponse),
		LastCalledAt:    route.LastCalledAt,
	}

	var err error
	if entity.MatchHeadersJSON, err = encodeColumn(len(route.MatchHeaders) > 0, route.MatchHeaders); err != nil {
		return nil, err
	}
	if entity.MatchBodySchemaJSON, err = encodeColumn(route.MatchBodySchema != nil, route.MatchBodySchema); err != nil {
		return nil, err
	}
	if entity.AddHeadersJSON, err = encodeColumn(len(route.AddHeaders) > 0, route.AddHeaders); err != nil {
		return nil, err
	}
	if entity.RemoveHeadersJSON, err = encodeColumn(len(route.RemoveHeaders) > 0, route.RemoveHeaders); err != nil {
		return nil, err
	}
	if entity.AddBodyFieldsJSON, err = encodeColumn(len(route.AddBodyFields) > 0, route.AddBodyFields); err != nil {
		return nil, err
	}

	return entity, nil
}

func encodeColumn(present bool, v interface{}) (string, error) {
	if !present {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeColumn(raw string, dest interface{}) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dest)
}
