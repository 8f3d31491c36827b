package httpclient

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizforge/server/internal/infra/config"
)

func TestNew(t *testing.T) {
	cfg := config.HTTPClientConfig{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		ResponseTimeout:     3 * time.Second,
	}

	t.Run("plain transport", func(t *testing.T) {
		c := New(cfg)
		assert.Equal(t, 3*time.Second, c.Timeout)

		tr, ok := c.Transport.(*http.Transport)
		require.True(t, ok)
		assert.Equal(t, 10, tr.MaxIdleConns)
		assert.Equal(t, 2, tr.MaxIdleConnsPerHost)
	})

	t.Run("traced transport still serves requests", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		c := New(cfg, WithTracing(true))
		_, plain := c.Transport.(*http.Transport)
		assert.False(t, plain)

		resp, err := c.Get(srv.URL)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	})
}
