package model

import (
	"strings"
)

// FieldError descreve um problema em um campo da rota
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError agrega os problemas encontrados em uma definição de rota.
// Uma rota inválida nunca é aplicada parcialmente.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

// NewValidationError cria um erro de validação com um único problema
func NewValidationError(field, message string) *ValidationError {
	verr := &ValidationError{}
	verr.Add(field, message)
	return verr
}

// Add registra um problema
func (e *ValidationError) Add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// Merge incorpora os problemas de outro erro de validação
func (e *ValidationError) Merge(other *ValidationError) {
	if other != nil {
		e.Errors = append(e.Errors, other.Errors...)
	}
}

// OrNil retorna nil quando nenhum problema foi registrado
func (e *ValidationError) OrNil() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// Error implementa a interface error
func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "rota inválida: " + strings.Join(parts, "; ")
}
