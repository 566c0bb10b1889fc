package domain

import (
	"path"
	"strings"
	"time"
)

// Aliases de propiedades que el host expone en cada media
const (
	PropertyFile      = "umbracoFile"
	PropertyWidth     = "umbracoWidth"
	PropertyHeight    = "umbracoHeight"
	PropertySize      = "umbracoBytes"
	PropertyExtension = "umbracoExtension"

	// Marcadores propios del guard
	PropertyKrakStatus   = "krakStatus"
	PropertyKrakSkip     = "krakSkip"
	PropertyOriginalSize = "krakOriginalSize"
	PropertySavedBytes   = "krakSavedBytes"
)

// Asset es la vista mínima de un media que necesita el guard
type Asset interface {
	// AssetID retorna el ID estable (0 si todavía no fue persistido)
	AssetID() int64

	// GetValue lee una propiedad tipada; ok=false si no existe
	GetValue(alias string) (value any, ok bool)

	// FileRef retorna la referencia al binario almacenado
	FileRef() string
}

// Media representa un item de la librería de media del host
type Media struct {
	ID         int64          `json:"id"`
	Name       string         `json:"name"`
	ParentID   int64          `json:"parent_id,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	CreatedAt  time.Time      `json:"created_at,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at,omitempty"`
}

// Compiletime check: Media implementa Asset
var _ Asset = (*Media)(nil)

// AssetID implementa Asset
func (m *Media) AssetID() int64 {
	if m == nil {
		return 0
	}
	return m.ID
}

// GetValue implementa Asset
func (m *Media) GetValue(alias string) (any, bool) {
	if m == nil || m.Properties == nil {
		return nil, false
	}
	v, ok := m.Properties[alias]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// SetValue asigna una propiedad, creando el mapa si hace falta
func (m *Media) SetValue(alias string, value any) {
	if m.Properties == nil {
		m.Properties = make(map[string]any)
	}
	m.Properties[alias] = value
}

// FileRef implementa Asset
func (m *Media) FileRef() string {
	v, ok := m.GetValue(PropertyFile)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Extension retorna la extensión en minúsculas y sin punto.
// Usa umbracoExtension y si no existe la del archivo.
func (m *Media) Extension() string {
	if v, ok := m.GetValue(PropertyExtension); ok {
		if s, ok := v.(string); ok && s != "" {
			return strings.ToLower(strings.TrimPrefix(s, "."))
		}
	}
	return FileExtension(m.FileRef())
}

// Clone retorna una copia con su propio mapa de propiedades
func (m *Media) Clone() *Media {
	if m == nil {
		return nil
	}
	c := *m
	if m.Properties != nil {
		c.Properties = make(map[string]any, len(m.Properties))
		for k, v := range m.Properties {
			c.Properties[k] = v
		}
	}
	return &c
}

// FileExtension extrae la extensión de una referencia de archivo
func FileExtension(ref string) string {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	return strings.ToLower(strings.TrimPrefix(path.Ext(ref), "."))
}
