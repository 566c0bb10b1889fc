package domain

import "time"

// KrakLogEntry registra un intento de llamada al optimizador
type KrakLogEntry struct {
	ID           int64      `json:"id"`
	BatchID      string     `json:"batch_id"`
	MediaID      int64      `json:"media_id"`
	Status       KrakStatus `json:"status"`
	Changed      bool       `json:"changed"`
	Outcome      Outcome    `json:"outcome"`
	APIStatus    APIStatus  `json:"api_status"`
	Applied      bool       `json:"applied"`
	OriginalSize int64      `json:"original_size,omitempty"`
	KrakedSize   int64      `json:"kraked_size,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
