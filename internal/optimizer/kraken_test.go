package optimizer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elsanchez/krakguard/internal/domain"
)

// newTestClient crea un KrakenClient apuntando al servidor de prueba
func newTestClient(t *testing.T, baseURL string) *KrakenClient {
	t.Helper()
	c, err := NewKrakenClient(ClientConfig{
		BaseURL:        baseURL,
		APIKey:         "key",
		APISecret:      "secret",
		Lossy:          true,
		MediaBaseURL:   "https://cms.example.com/",
		RequestTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return c
}

func mediaWithFile(ref string) *domain.Media {
	m := &domain.Media{ID: 1}
	m.SetValue(domain.PropertyFile, ref)
	return m
}

func TestNewKrakenClient_Validation(t *testing.T) {
	_, err := NewKrakenClient(ClientConfig{APIKey: "k", APISecret: "s"})
	assert.Error(t, err)

	_, err = NewKrakenClient(ClientConfig{BaseURL: "http://x"})
	assert.Error(t, err)
}

func TestCompress_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/url", r.URL.Path)

		var body krakRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "key", body.Auth.APIKey)
		assert.Equal(t, "secret", body.Auth.APISecret)
		assert.Equal(t, "https://cms.example.com/media/1001/a.jpg", body.URL)
		assert.True(t, body.Wait)
		assert.True(t, body.Lossy)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"file_name":"a.jpg","original_size":5000,"kraked_size":3000,"saved_bytes":2000,"kraked_url":"https://dl.kraken.io/a.jpg"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	res, err := c.Compress(context.Background(), mediaWithFile("/media/1001/a.jpg"))
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.True(t, res.Success)
	assert.Equal(t, int64(5000), res.OriginalSize)
	assert.Equal(t, int64(3000), res.KrakedSize)
	assert.Equal(t, int64(2000), res.SavedBytes)
	assert.Equal(t, "https://dl.kraken.io/a.jpg", res.KrakedURL)
}

func TestCompress_SuccessFalseIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"message":"nothing to do"}`))
	}))
	defer srv.Close()

	res, err := newTestClient(t, srv.URL).Compress(context.Background(), mediaWithFile("a.jpg"))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "nothing to do", res.Message)
}

func TestCompress_HTTPStatusMapping(t *testing.T) {
	tests := []struct {
		code int
		want domain.APIStatus
	}{
		{400, domain.APIStatusBadRequest},
		{401, domain.APIStatusUnauthorized},
		{403, domain.APIStatusForbidden},
		{413, domain.APIStatusFileTooLarge},
		{415, domain.APIStatusUnsupportedMediaType},
		{422, domain.APIStatusUnprocessableEntity},
		{429, domain.APIStatusRequestLimitReached},
		{500, domain.APIStatusUnexpectedError},
		{503, domain.APIStatusUnexpectedError},
		{418, domain.APIStatus(418)},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(`{"success":false,"message":"rejected"}`))
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv.URL).Compress(context.Background(), mediaWithFile("a.jpg"))
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr), "expected *APIError, got %v", err)
			assert.Equal(t, tt.want, apiErr.Status)
			assert.Equal(t, "rejected", apiErr.Message)
		})
	}
}

func TestCompress_NoFileReference(t *testing.T) {
	c := newTestClient(t, "http://unused")
	_, err := c.Compress(context.Background(), &domain.Media{ID: 3})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, domain.APIStatusUnprocessableEntity, apiErr.Status)
}

func TestCompress_TransportErrorIsPlain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestClient(t, url).Compress(context.Background(), mediaWithFile("a.jpg"))
	require.Error(t, err)

	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}

func TestFileURL(t *testing.T) {
	c := newTestClient(t, "http://unused")
	assert.Equal(t, "https://cms.example.com/media/a.jpg", c.fileURL("media/a.jpg"))
	assert.Equal(t, "https://cdn.example.com/a.jpg", c.fileURL("https://cdn.example.com/a.jpg"))
}
