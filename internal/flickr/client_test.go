package flickr

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/photorama/internal/config"
	"github.com/pders01/photorama/internal/storage"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	cfg := config.TestConfig(t.TempDir())
	cfg.API.BaseURL = baseURL
	cfg.API.FeedURL = baseURL + "/feed"
	return NewClient(cfg)
}

func TestClient_Get(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	body, err := client.Get(context.Background(), server.URL+"/anything")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(body))
	assert.Equal(t, "photorama-test/1.0", gotUA)
}

func TestClient_GetHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Get(context.Background(), server.URL)

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, http.StatusNotFound, transportErr.StatusCode)
	assert.Equal(t, server.URL, transportErr.URL)
}

func TestClient_GetNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := server.URL
	server.Close()

	client := newTestClient(t, addr)
	_, err := client.Get(context.Background(), addr)

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Zero(t, transportErr.StatusCode)
}

func TestClient_GetTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	cfg := config.TestConfig(t.TempDir())
	cfg.API.HTTPTimeout = 50 * time.Millisecond
	client := NewClient(cfg)

	_, err := client.Get(context.Background(), server.URL)
	var transportErr *TransportError
	assert.True(t, errors.As(err, &transportErr))
}

func TestClient_GetBodyTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer server.Close()

	cfg := config.TestConfig(t.TempDir())
	cfg.API.MaxImageBytes = 1024
	client := NewClient(cfg)

	_, err := client.Get(context.Background(), server.URL)
	assert.True(t, errors.Is(err, ErrTooLarge))
}

func TestClient_GetErrorsHideAPIKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	closed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	closed.Close()

	for name, base := range map[string]string{"http status": server.URL, "network": closed.URL} {
		t.Run(name, func(t *testing.T) {
			cfg := config.TestConfig(t.TempDir())
			cfg.API.BaseURL = base
			cfg.API.Key = "SECRETKEY123"
			client := NewClient(cfg)

			_, err := client.Get(context.Background(), client.BuildListingURL(Interesting))
			require.Error(t, err)
			assert.NotContains(t, err.Error(), "SECRETKEY123")
			assert.Contains(t, err.Error(), "REDACTED")

			var transportErr *TransportError
			require.True(t, errors.As(err, &transportErr))
			assert.NotContains(t, transportErr.URL, "SECRETKEY123")
		})
	}
}

func TestImageURL(t *testing.T) {
	u, ok := ImageURL(&storage.Photo{ID: "1", RemoteURL: "https://live.staticflickr.com/1/1_z.jpg"})
	assert.True(t, ok)
	assert.Equal(t, "https://live.staticflickr.com/1/1_z.jpg", u)

	_, ok = ImageURL(&storage.Photo{ID: "2"})
	assert.False(t, ok)

	_, ok = ImageURL(nil)
	assert.False(t, ok)
}

func TestRedact(t *testing.T) {
	client := newTestClient(t, "https://api.flickr.com/services/rest")
	raw := client.BuildListingURL(Recent)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.NotContains(t, redact(u), "test-key")
	assert.Contains(t, redact(u), "REDACTED")
}
