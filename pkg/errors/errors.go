package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/diillson/fastgate/internal/domain/model"
	"github.com/diillson/fastgate/internal/domain/repository"
)

// APIError é o corpo de erro devolvido pela API administrativa e pelos
// middlewares: {"error": "...", "details": ...}
type APIError struct {
	Code        int         `json:"-"`
	Message     string      `json:"error"`
	Details     interface{} `json:"details,omitempty"`
	OriginalErr error       `json:"-"`
}

func (e *APIError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.OriginalErr)
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.OriginalErr
}

// WithDetails anexa informação estruturada ao corpo do erro
func (e *APIError) WithDetails(details interface{}) *APIError {
	e.Details = details
	return e
}

func newError(code int, message, fallback string, err error) *APIError {
	if message == "" {
		message = fallback
	}
	return &APIError{Code: code, Message: message, OriginalErr: err}
}

func NotFound(resource string, err error) *APIError {
	return newError(http.StatusNotFound, resource+" não encontrada", "", err)
}

func BadRequest(message string, err error) *APIError {
	return newError(http.StatusBadRequest, message, "Requisição inválida", err)
}

func Conflict(message string, err error) *APIError {
	return newError(http.StatusConflict, message, "Recurso já existe", err)
}

func Unauthorized(message string, err error) *APIError {
	return newError(http.StatusUnauthorized, message, "Autenticação necessária", err)
}

func Forbidden(message string, err error) *APIError {
	return newError(http.StatusForbidden, message, "Acesso negado", err)
}

func TooManyRequests(message string) *APIError {
	return newError(http.StatusTooManyRequests, message, "Taxa de requisições excedida", nil)
}

// InternalServer nunca expõe err no corpo; a mensagem padrão é genérica
func InternalServer(message string, err error) *APIError {
	return newError(http.StatusInternalServerError, message, "Erro interno do servidor", err)
}

// FromDomain traduz erros das camadas de domínio e armazenamento para APIError.
// Erros desconhecidos viram 500 sem expor a mensagem original.
func FromDomain(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var verr *model.ValidationError
	if errors.As(err, &verr) {
		return BadRequest(verr.Error(), err).WithDetails(verr.Errors)
	}

	switch {
	case errors.Is(err, repository.ErrRouteNotFound):
		return NotFound("Rota", err)
	case errors.Is(err, repository.ErrRouteExists):
		return Conflict("Rota já existe", err)
	default:
		return InternalServer("", err)
	}
}
