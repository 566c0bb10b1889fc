// Package krak decide si un media es elegible para el optimizador y cómo
// tratar cada respuesta del API.
package krak

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/elsanchez/krakguard/internal/domain"
)

// Marcadores de krakStatus
const (
	MarkerKraked   = "kraked"
	MarkerFailed   = "failed"
	MarkerDisabled = "disabled"
)

// DefaultExtensions son los formatos que acepta el optimizador
var DefaultExtensions = []string{"jpg", "jpeg", "png", "gif"}

// StatusClassifier clasifica media según sus metadatos actuales
type StatusClassifier struct {
	extensions map[string]bool
}

// NewStatusClassifier crea un clasificador con la allow-list dada.
// Una lista vacía usa DefaultExtensions.
func NewStatusClassifier(extensions []string) *StatusClassifier {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	allowed := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			allowed[ext] = true
		}
	}
	return &StatusClassifier{extensions: allowed}
}

// Classify retorna Krakable, Kraked o Ineligible. No tiene efectos secundarios.
func (c *StatusClassifier) Classify(asset domain.Asset) domain.KrakStatus {
	if asset == nil {
		return domain.StatusIneligible
	}

	if v, ok := asset.GetValue(domain.PropertyKrakSkip); ok && isTruthy(v) {
		return domain.StatusIneligible
	}

	if !c.Supports(extensionOf(asset)) {
		return domain.StatusIneligible
	}

	marker := ""
	if v, ok := asset.GetValue(domain.PropertyKrakStatus); ok {
		marker, _ = v.(string)
		marker = strings.TrimSpace(marker)
	}

	switch {
	case marker == "":
		return domain.StatusKrakable
	case strings.EqualFold(marker, MarkerFailed), strings.EqualFold(marker, MarkerDisabled):
		return domain.StatusIneligible
	case isSuccessMarker(marker):
		return domain.StatusKraked
	default:
		// Marcador inválido: se trata como nunca procesado
		return domain.StatusKrakable
	}
}

// Supports indica si la extensión está en la allow-list
func (c *StatusClassifier) Supports(ext string) bool {
	return c.extensions[strings.ToLower(ext)]
}

func extensionOf(asset domain.Asset) string {
	if m, ok := asset.(*domain.Media); ok {
		return m.Extension()
	}
	if v, ok := asset.GetValue(domain.PropertyExtension); ok {
		if s, ok := v.(string); ok && s != "" {
			return strings.ToLower(strings.TrimPrefix(s, "."))
		}
	}
	return domain.FileExtension(asset.FileRef())
}

func isSuccessMarker(marker string) bool {
	if strings.EqualFold(marker, MarkerKraked) {
		return true
	}
	_, err := time.Parse(time.RFC3339, marker)
	return err == nil
}

func isTruthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "1", "true", "yes", "on":
			return true
		}
		return false
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case json.Number:
		n, err := t.Float64()
		return err == nil && n != 0
	default:
		return false
	}
}
