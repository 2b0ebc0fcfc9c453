package fetcher

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/policywatch/policywatch/internal/errors"
)

func newTestFetcher(timeout time.Duration) *HTTPFetcher {
	return NewHTTPFetcher(&http.Client{}, slog.Default(), timeout)
}

func TestFetch_PlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("We keep   your data\n\nsafe."))
	}))
	defer srv.Close()

	content, err := newTestFetcher(2 * time.Second).Fetch(context.Background(), srv.URL)

	require.NoError(t, err)
	assert.Equal(t, "We keep your data safe.", content)
}

func TestFetch_HTMLIsReducedToText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><style>p{color:red}</style><script>alert(1)</script></head>` +
			`<body><h1>Privacy Policy</h1><p>We collect data.</p></body></html>`))
	}))
	defer srv.Close()

	content, err := newTestFetcher(2 * time.Second).Fetch(context.Background(), srv.URL)

	require.NoError(t, err)
	assert.Equal(t, "Privacy Policy We collect data.", content)
	assert.NotContains(t, content, "alert")
	assert.NotContains(t, content, "color:red")
}

func TestFetch_HTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestFetcher(2 * time.Second).Fetch(context.Background(), srv.URL)

	require.Error(t, err)
	require.True(t, apperrors.IsFetchError(err))
	var fe *apperrors.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, apperrors.FetchHTTPError, fe.Kind)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
}

func TestFetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := newTestFetcher(50 * time.Millisecond).Fetch(context.Background(), srv.URL)

	require.Error(t, err)
	var fe *apperrors.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, apperrors.FetchTimeout, fe.Kind)
}

func TestFetch_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listening anymore

	_, err := newTestFetcher(2 * time.Second).Fetch(context.Background(), srv.URL)

	require.Error(t, err)
	var fe *apperrors.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, apperrors.FetchUnreachable, fe.Kind)
}
