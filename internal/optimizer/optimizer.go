package optimizer

import (
	"context"
	"fmt"

	"github.com/elsanchez/krakguard/internal/domain"
)

// Optimizer define la interfaz de la llamada externa de optimización
type Optimizer interface {
	// Compress envía el archivo del asset al optimizador.
	// Los rechazos del API se devuelven como *APIError.
	Compress(ctx context.Context, asset domain.Asset) (*Result, error)
}

// Applier persiste el resultado optimizado de vuelta en el host
type Applier interface {
	// Save aplica result sobre asset. wasFileChanged indica que el archivo
	// original cambió desde el último krak.
	Save(ctx context.Context, asset domain.Asset, result *Result, wasFileChanged bool) error
}

// Result contiene la respuesta de una llamada exitosa al optimizador
type Result struct {
	Success      bool   `json:"success"`
	FileName     string `json:"file_name,omitempty"`
	OriginalSize int64  `json:"original_size,omitempty"`
	KrakedSize   int64  `json:"kraked_size,omitempty"`
	SavedBytes   int64  `json:"saved_bytes,omitempty"`
	KrakedURL    string `json:"kraked_url,omitempty"`
	Message      string `json:"message,omitempty"`
}

// APIError es un rechazo clasificado del optimizador
type APIError struct {
	Status  domain.APIStatus
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("optimizer: %s", e.Status)
	}
	return fmt.Sprintf("optimizer: %s: %s", e.Status, e.Message)
}
