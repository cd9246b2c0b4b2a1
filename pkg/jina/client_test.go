package jina

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huntred/circle/internal/resilience"
)

func fastGuard() *resilience.Guard {
	return &resilience.Guard{Policy: resilience.Policy{Attempts: 3, Backoff: time.Millisecond}}
}

func TestRead_Success(t *testing.T) {
	t.Parallel()

	want := ReadResponse{
		Code: 200,
		Data: ReadData{
			Title:   "Grupo Bimbo careers",
			URL:     "https://careers.grupobimbo.com",
			Content: "# Careers\n\nDirector de Finanzas",
			Usage:   Usage{Tokens: 2150},
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "markdown", r.Header.Get("X-Return-Format"))
		assert.Equal(t, "/https://careers.grupobimbo.com", r.URL.Path)
		json.NewEncoder(w).Encode(want) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	got, err := client.Read(context.Background(), "https://careers.grupobimbo.com")
	require.NoError(t, err)
	assert.Equal(t, want.Data.Title, got.Data.Title)
	assert.Equal(t, want.Data.Content, got.Data.Content)
	assert.Equal(t, 2150, got.Data.Usage.Tokens)
}

func TestRead_ClientErrorNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`blocked`)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithGuard(fastGuard()))
	_, err := client.Read(context.Background(), "https://example.com")
	require.Error(t, err)

	var se *resilience.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusForbidden, se.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRead_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"code":200,"data":{"title":"ok"}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithGuard(fastGuard()))
	got, err := client.Read(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Equal(t, "ok", got.Data.Title)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRead_WithoutGuardFailsOnce(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	_, err := client.Read(context.Background(), "https://example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Equal(t, int32(1), calls.Load())
}

func TestRead_BadJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`)) //nolint:errcheck
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).Read(context.Background(), "https://example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestSearch_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/director financiero", r.URL.Path)
		assert.Equal(t, "occ.com.mx", r.URL.Query().Get("site"))
		json.NewEncoder(w).Encode(SearchResponse{ //nolint:errcheck
			Code: 200,
			Data: []SearchResult{
				{Title: "Director Financiero - Acme", URL: "https://occ.com.mx/1", Usage: Usage{Tokens: 300}},
				{Title: "CFO - Beta", URL: "https://occ.com.mx/2", Usage: Usage{Tokens: 200}},
			},
		})
	}))
	defer srv.Close()

	client := NewClient("k", WithSearchBaseURL(srv.URL))
	got, err := client.Search(context.Background(), "director financiero", WithSite("occ.com.mx"))
	require.NoError(t, err)
	require.Len(t, got.Data, 2)
	assert.Equal(t, "CFO - Beta", got.Data[1].Title)
	assert.Equal(t, 500, got.Tokens())
}

func TestSearch_NoResults(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.RawQuery)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	got, err := NewClient("k", WithSearchBaseURL(srv.URL)).Search(context.Background(), "nothing", WithSite(""))
	require.NoError(t, err)
	assert.Empty(t, got.Data)
	assert.Equal(t, 0, got.Tokens())
}

func TestSearch_ContextCancelled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewClient("k", WithSearchBaseURL(srv.URL), WithGuard(fastGuard())).Search(ctx, "q")
	require.Error(t, err)
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	c := NewClient("k", WithRateLimit(5)).(*httpClient)
	require.NotNil(t, c.limiter)
	assert.InDelta(t, 5, float64(c.limiter.Limit()), 0.001)

	c = NewClient("k", WithRateLimit(5), WithRateLimit(0)).(*httpClient)
	assert.Nil(t, c.limiter)
}
