// Package snapshot registra el estado de los assets antes de guardar, para
// saber después si el archivo cambió.
package snapshot

import "github.com/elsanchez/krakguard/internal/domain"

// AssetSnapshot son los atributos de un asset en un momento dado. El valor
// cero es un snapshot válido de un asset vacío.
type AssetSnapshot struct {
	id      int64
	fileRef string
	height  int64
	width   int64
	size    int64
}

// Take captura los atributos actuales. Nunca falla: lo ilegible vale 0 y un
// asset nil da el snapshot cero.
func Take(asset domain.Asset) AssetSnapshot {
	if asset == nil {
		return AssetSnapshot{}
	}
	return AssetSnapshot{
		id:      asset.AssetID(),
		fileRef: asset.FileRef(),
		height:  ReadInt(asset, domain.PropertyHeight),
		width:   ReadInt(asset, domain.PropertyWidth),
		size:    ReadInt(asset, domain.PropertySize),
	}
}

func (s AssetSnapshot) ID() int64       { return s.id }
func (s AssetSnapshot) FileRef() string { return s.fileRef }
func (s AssetSnapshot) Height() int64   { return s.height }
func (s AssetSnapshot) Width() int64    { return s.width }
func (s AssetSnapshot) Size() int64     { return s.size }

// Differs compara archivo, alto, ancho y tamaño (no el id)
func (s AssetSnapshot) Differs(other AssetSnapshot) bool {
	return s.fileRef != other.fileRef ||
		s.height != other.height ||
		s.width != other.width ||
		s.size != other.size
}

// Set son los snapshots previos de un lote, en orden. Solo lectura una vez
// armado; no debe sobrevivir a su lote.
type Set struct {
	snapshots []AssetSnapshot
}

// Build toma un snapshot por asset en orden, salteando los nil
func Build(assets []domain.Asset) *Set {
	set := &Set{snapshots: make([]AssetSnapshot, 0, len(assets))}
	for _, a := range assets {
		if a == nil {
			continue
		}
		set.snapshots = append(set.snapshots, Take(a))
	}
	return set
}

// Len retorna la cantidad de snapshots
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.snapshots)
}

// Lookup retorna el primer snapshot registrado para id
func (s *Set) Lookup(id int64) (AssetSnapshot, bool) {
	if s == nil {
		return AssetSnapshot{}, false
	}
	for _, snap := range s.snapshots {
		if snap.id == id {
			return snap, true
		}
	}
	return AssetSnapshot{}, false
}

// HasChanged indica si el asset difiere de su snapshot previo. Sin snapshot
// (asset nuevo, captura fallida) nunca cuenta como cambiado.
func (s *Set) HasChanged(asset domain.Asset) bool {
	if asset == nil {
		return false
	}
	before, ok := s.Lookup(asset.AssetID())
	if !ok {
		return false
	}
	return before.Differs(Take(asset))
}
