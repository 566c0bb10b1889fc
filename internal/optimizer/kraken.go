package optimizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elsanchez/krakguard/internal/domain"
)

const maxResponseBytes = 1 << 20

// ClientConfig contiene la configuración de KrakenClient
type ClientConfig struct {
	BaseURL        string
	APIKey         string
	APISecret      string
	Lossy          bool
	MediaBaseURL   string // URL pública desde donde el API descarga los archivos
	RequestTimeout time.Duration
}

// KrakenClient implementa Optimizer contra el API HTTP de Kraken
type KrakenClient struct {
	http   *http.Client
	config ClientConfig
}

// Compiletime check: asegura que implementa la interfaz
var _ Optimizer = (*KrakenClient)(nil)

// NewKrakenClient crea un cliente; BaseURL y credenciales son obligatorios
func NewKrakenClient(cfg ClientConfig) (*KrakenClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("BaseURL is required")
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, errors.New("API key and secret are required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	return &KrakenClient{
		http:   &http.Client{Timeout: cfg.RequestTimeout},
		config: cfg,
	}, nil
}

type krakRequest struct {
	Auth struct {
		APIKey    string `json:"api_key"`
		APISecret string `json:"api_secret"`
	} `json:"auth"`
	URL   string `json:"url"`
	Wait  bool   `json:"wait"`
	Lossy bool   `json:"lossy"`
}

// Compress implementa Optimizer.Compress
func (c *KrakenClient) Compress(ctx context.Context, asset domain.Asset) (*Result, error) {
	ref := asset.FileRef()
	if ref == "" {
		return nil, &APIError{Status: domain.APIStatusUnprocessableEntity, Message: "asset has no stored file"}
	}

	var body krakRequest
	body.Auth.APIKey = c.config.APIKey
	body.Auth.APISecret = c.config.APISecret
	body.URL = c.fileURL(ref)
	body.Wait = true
	body.Lossy = c.config.Lossy

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := strings.TrimRight(c.config.BaseURL, "/") + "/v1/url"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var failure struct {
			Message string `json:"message"`
		}
		msg := truncate(raw, 200)
		if json.Unmarshal(raw, &failure) == nil && failure.Message != "" {
			msg = failure.Message
		}
		return nil, &APIError{Status: StatusFromHTTP(resp.StatusCode), Message: msg}
	}

	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &result, nil
}

func (c *KrakenClient) fileURL(ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	return strings.TrimRight(c.config.MediaBaseURL, "/") + "/" + strings.TrimLeft(ref, "/")
}

// StatusFromHTTP traduce el código HTTP al estado del API.
// Cualquier 5xx es UnexpectedError; códigos desconocidos se conservan.
func StatusFromHTTP(code int) domain.APIStatus {
	if code >= 500 && code <= 599 {
		return domain.APIStatusUnexpectedError
	}
	return domain.APIStatus(code)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
