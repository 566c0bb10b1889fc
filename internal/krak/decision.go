package krak

import "github.com/elsanchez/krakguard/internal/domain"

// ShouldProcess combina elegibilidad y cambio:
// Krakable siempre, Kraked solo si cambió, Ineligible nunca.
func ShouldProcess(status domain.KrakStatus, hasChanged bool) bool {
	switch status {
	case domain.StatusKrakable:
		return true
	case domain.StatusKraked:
		return hasChanged
	default:
		return false
	}
}
