package collyfetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFetch_ReturnsBodyAndStatus(t *testing.T) {
	t.Parallel()

	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		gotUA = r.UserAgent()
		w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "release-crawler-test", Timeout: 5 * time.Second})
	resp, err := f.Fetch(context.Background(), srv.URL+"/page")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(resp.Body), "hello")
	require.Equal(t, "release-crawler-test", gotUA)
}

func TestFetch_HTTPErrorStatusIsNotAnError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := New(Config{Timeout: 5 * time.Second})
	resp, err := f.Fetch(context.Background(), srv.URL+"/page")
	require.NoError(t, err)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestFetch_TransportFailure(t *testing.T) {
	t.Parallel()

	f := New(Config{Timeout: time.Second})
	// Nothing listens on this port.
	_, err := f.Fetch(context.Background(), "http://127.0.0.1:1/page")
	require.Error(t, err)
}

func TestFetch_CanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := New(Config{PerDomainRPS: 0.001})
	_, err := f.Fetch(ctx, "http://example.com/")
	require.ErrorIs(t, err, context.Canceled)
}
