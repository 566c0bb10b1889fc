package client

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"
)

// GetDefaultSocketPath retorna el path del socket usando XDG_RUNTIME_DIR
func GetDefaultSocketPath() string {
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		// Fallback: construir con UID
		uid := os.Getuid()
		runtimeDir = fmt.Sprintf("/run/user/%d", uid)
	}

	return filepath.Join(runtimeDir, "krakguard.sock")
}

// Client representa un cliente del daemon
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient crea un cliente con socket path personalizado
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath, timeout: 5 * time.Minute}
}

// NewDefaultClient crea un cliente con el socket path por defecto
func NewDefaultClient() *Client {
	return NewClient(GetDefaultSocketPath())
}

// Request representa una petición al daemon
type Request struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

// Response representa una respuesta del daemon
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Send envía una petición al daemon y retorna la respuesta
func (c *Client) Send(req *Request) (*Response, error) {
	conn, err := net.Dial("unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w (is krakd running?)", err)
	}
	defer conn.Close()

	if c.timeout > 0 {
		conn.SetDeadline(time.Now().Add(c.timeout))
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &resp, nil
}

// call envía action con payload y decodifica Data en out (si no es nil)
func (c *Client) call(action string, payload interface{}, out interface{}) error {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		raw = b
	}

	resp, err := c.Send(&Request{Action: action, Payload: raw})
	if err != nil {
		return err
	}

	if !resp.Success {
		return fmt.Errorf("%s failed: %s", action, resp.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

// Media es la vista de un media que expone el daemon
type Media struct {
	ID         int64                  `json:"id"`
	Name       string                 `json:"name"`
	ParentID   int64                  `json:"parent_id,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	CreatedAt  time.Time              `json:"created_at,omitempty"`
	UpdatedAt  time.Time              `json:"updated_at,omitempty"`
}

// ItemReport describe lo que pasó con un media del lote
type ItemReport struct {
	MediaID   int64  `json:"media_id"`
	Status    string `json:"status"`
	Changed   bool   `json:"changed"`
	Due       bool   `json:"due"`
	Processed bool   `json:"processed"`
	Outcome   string `json:"outcome,omitempty"`
	APIStatus int    `json:"api_status,omitempty"`
	Applied   bool   `json:"applied"`
	Error     string `json:"error,omitempty"`
}

// Report es el resultado de un lote
type Report struct {
	BatchID     string       `json:"batch_id"`
	State       string       `json:"state"`
	Disabled    bool         `json:"disabled,omitempty"`
	Fault       string       `json:"fault,omitempty"`
	AbortStatus int          `json:"abort_status,omitempty"`
	Items       []ItemReport `json:"items"`
	Calls       int          `json:"calls"`
	Applied     int          `json:"applied"`
	Skipped     int          `json:"skipped"`
}

// SaveResult es la respuesta de Save
type SaveResult struct {
	Media  []Media `json:"media"`
	Report *Report `json:"report,omitempty"`
}

// Ping verifica que el daemon responde
func (c *Client) Ping() error {
	return c.call("ping", nil, nil)
}

// Save guarda un lote de media en el daemon
func (c *Client) Save(media []Media) (*SaveResult, error) {
	var result SaveResult
	if err := c.call("save", map[string]interface{}{"media": media}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// MediaStatus es la respuesta de Get
type MediaStatus struct {
	Media      Media  `json:"media"`
	KrakStatus string `json:"krak_status"`
}

// Get obtiene un media y su estado krak
func (c *Client) Get(id int64) (*MediaStatus, error) {
	var result MediaStatus
	if err := c.call("get", map[string]int64{"id": id}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// MediaSummary es una fila de List
type MediaSummary struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	File       string    `json:"file"`
	KrakStatus string    `json:"krak_status"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// List lista los media recientes
func (c *Client) List(limit int) ([]MediaSummary, error) {
	var result struct {
		Media []MediaSummary `json:"media"`
	}
	if err := c.call("list", map[string]int{"limit": limit}, &result); err != nil {
		return nil, err
	}
	return result.Media, nil
}

// HistoryEntry es una entrada del historial de llamadas
type HistoryEntry struct {
	ID           int64     `json:"id"`
	BatchID      string    `json:"batch_id"`
	MediaID      int64     `json:"media_id"`
	Status       string    `json:"status"`
	Changed      bool      `json:"changed"`
	Outcome      string    `json:"outcome"`
	APIStatus    int       `json:"api_status"`
	Applied      bool      `json:"applied"`
	OriginalSize int64     `json:"original_size,omitempty"`
	KrakedSize   int64     `json:"kraked_size,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// History obtiene el historial de un media (mediaID 0 = global)
func (c *Client) History(mediaID int64, limit int) ([]HistoryEntry, error) {
	var result struct {
		Entries []HistoryEntry `json:"entries"`
	}
	payload := map[string]int64{"media_id": mediaID, "limit": int64(limit)}
	if err := c.call("history", payload, &result); err != nil {
		return nil, err
	}
	return result.Entries, nil
}

// Stats obtiene las estadísticas del daemon
func (c *Client) Stats() (map[string]int, error) {
	var result map[string]int
	if err := c.call("stats", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// SweepResult es la respuesta de Sweep
type SweepResult struct {
	Ran         bool      `json:"ran"`
	Report      *Report   `json:"report"`
	PausedUntil time.Time `json:"paused_until"`
}

// Sweep fuerza un reintento de los media pendientes
func (c *Client) Sweep() (*SweepResult, error) {
	var result SweepResult
	if err := c.call("sweep", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Uninstall avisa al daemon que un paquete se desinstala
func (c *Client) Uninstall(packageName string) (bool, error) {
	var result struct {
		Detached bool `json:"detached"`
	}
	if err := c.call("uninstall", map[string]string{"package": packageName}, &result); err != nil {
		return false, err
	}
	return result.Detached, nil
}
