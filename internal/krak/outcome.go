package krak

import (
	"errors"

	"github.com/elsanchez/krakguard/internal/domain"
	"github.com/elsanchez/krakguard/internal/optimizer"
)

// ClassifyStatus mapea un código de rechazo del API a un Outcome.
// Códigos desconocidos fallan abiertos a nivel de item (SkipItem).
func ClassifyStatus(status domain.APIStatus) domain.Outcome {
	switch status {
	// Credenciales, request o cuota rotos: el resto del batch fallaría igual
	case domain.APIStatusBadRequest,
		domain.APIStatusUnauthorized,
		domain.APIStatusForbidden,
		domain.APIStatusRequestLimitReached,
		domain.APIStatusUnexpectedError:
		return domain.OutcomeAbortBatch

	// Problemas propios de este archivo
	case domain.APIStatusFileTooLarge,
		domain.APIStatusUnsupportedMediaType,
		domain.APIStatusUnprocessableEntity:
		return domain.OutcomeSkipItem

	default:
		return domain.OutcomeSkipItem
	}
}

// ClassifyOutcome clasifica el resultado de una llamada a Compress.
// Errores que no son *optimizer.APIError (transporte, timeout) se tratan como
// UnexpectedError.
func ClassifyOutcome(result *optimizer.Result, err error) domain.Outcome {
	if err != nil {
		return ClassifyStatus(ErrorStatus(err))
	}
	if result == nil || !result.Success {
		return domain.OutcomeSkipItem
	}
	return domain.OutcomeApply
}

// ErrorStatus extrae el código de estado de un error de Compress
func ErrorStatus(err error) domain.APIStatus {
	if err == nil {
		return domain.APIStatusOk
	}
	var apiErr *optimizer.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return domain.APIStatusUnexpectedError
}
