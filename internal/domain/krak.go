package domain

import "fmt"

// KrakStatus representa la elegibilidad de un media para el optimizador
type KrakStatus string

const (
	StatusKrakable   KrakStatus = "krakable"   // nunca procesado, elegible
	StatusKraked     KrakStatus = "kraked"     // ya procesado, solo si cambió
	StatusIneligible KrakStatus = "ineligible" // excluido explícitamente
)

// Outcome es la clasificación del resultado de una llamada externa
type Outcome string

const (
	OutcomeApply      Outcome = "apply"
	OutcomeSkipItem   Outcome = "skip_item"
	OutcomeAbortBatch Outcome = "abort_batch"

	// OutcomePending no es respuesta del API: un media ya optimizado cuyo
	// archivo cambió quedó sin enviar porque el lote se abortó.
	OutcomePending Outcome = "pending"
)

// BatchState representa los estados de un batch en el coordinador
type BatchState string

const (
	BatchRunning   BatchState = "running"
	BatchAborted   BatchState = "aborted"
	BatchCompleted BatchState = "completed"
)

// IsTerminal retorna true si el batch ya terminó
func (s BatchState) IsTerminal() bool {
	return s == BatchAborted || s == BatchCompleted
}

// APIStatus es el código de estado que devuelve el optimizador.
// Los valores coinciden con el código HTTP de la respuesta.
type APIStatus int

const (
	APIStatusOk                   APIStatus = 200
	APIStatusBadRequest           APIStatus = 400
	APIStatusUnauthorized         APIStatus = 401
	APIStatusForbidden            APIStatus = 403
	APIStatusFileTooLarge         APIStatus = 413
	APIStatusUnsupportedMediaType APIStatus = 415
	APIStatusUnprocessableEntity  APIStatus = 422
	APIStatusRequestLimitReached  APIStatus = 429
	APIStatusUnexpectedError      APIStatus = 500
)

var apiStatusNames = map[APIStatus]string{
	APIStatusOk:                   "Ok",
	APIStatusBadRequest:           "BadRequest",
	APIStatusUnauthorized:         "Unauthorized",
	APIStatusForbidden:            "Forbidden",
	APIStatusFileTooLarge:         "FileTooLarge",
	APIStatusUnsupportedMediaType: "UnsupportedMediaType",
	APIStatusUnprocessableEntity:  "UnprocessableEntity",
	APIStatusRequestLimitReached:  "RequestLimitReached",
	APIStatusUnexpectedError:      "UnexpectedError",
}

func (s APIStatus) String() string {
	if name, ok := apiStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}
