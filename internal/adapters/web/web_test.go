package web

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/DJune12138/Collection3/internal/domain"
)

func testFetcher() *Fetcher {
	cfg := DefaultConfig()
	cfg.RetryInterval = time.Millisecond
	cfg.Timeout = 2 * time.Second
	return New(cfg)
}

func TestFetchShapes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/json":
			_, _ = io.WriteString(w, `{"count": 2}`)
		case "/csv":
			_, _ = io.WriteString(w, "a,b\n1,2\n")
		case "/html":
			_, _ = io.WriteString(w, "<html><body><p>hi</p></body></html>")
		default:
			_, _ = io.WriteString(w, "plain")
		}
	}))
	defer srv.Close()

	f := testFetcher()
	ctx := context.Background()

	got, err := f.Fetch(ctx, map[string]any{"url": srv.URL + "/json"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"count": float64(2)}, got)

	got, err = f.Fetch(ctx, map[string]any{"url": srv.URL + "/csv", "response_shape": "csv"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, got)

	got, err = f.Fetch(ctx, map[string]any{"url": srv.URL + "/html", "response_shape": "markup"})
	require.NoError(t, err)
	_, isNode := got.(*html.Node)
	assert.True(t, isNode)

	got, err = f.Fetch(ctx, map[string]any{"url": srv.URL + "/text", "response_shape": "TEXT"})
	require.NoError(t, err)
	assert.Equal(t, "plain", got)

	got, err = f.Fetch(ctx, map[string]any{"url": srv.URL + "/text", "response_shape": "raw"})
	require.NoError(t, err)
	raw := got.(*RawResponse)
	assert.Equal(t, http.StatusOK, raw.Status)
	assert.Equal(t, []byte("plain"), raw.Body)
}

func TestFetchPostsJSONBody(t *testing.T) {
	var gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	_, err := testFetcher().Fetch(context.Background(), map[string]any{
		"url":            srv.URL,
		"method":         "post",
		"body":           map[string]any{"id": 1},
		"headers":        map[string]any{"X-Token": "t"},
		"response_shape": "text",
	})
	require.NoError(t, err)
	assert.Equal(t, "application/json", gotType)
	assert.JSONEq(t, `{"id":1}`, gotBody)
}

func TestFetchRetriesFixedCount(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testFetcher().Fetch(context.Background(), map[string]any{"url": srv.URL, "retry": 3})
	require.Error(t, err)
	assert.Equal(t, int32(3), hits.Load())

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.Status)
	assert.False(t, domain.IsClassified(err), "I/O failures stay unclassified for the error callback")
}

func TestFetchRecoversOnRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `[1,2]`)
	}))
	defer srv.Close()

	got, err := testFetcher().Fetch(context.Background(), map[string]any{"url": srv.URL, "retry": 2})
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), float64(2)}, got)
}

func TestFetchParameterErrors(t *testing.T) {
	f := testFetcher()
	tests := []struct {
		name   string
		params map[string]any
		kind   domain.Kind
	}{
		{"missing url", map[string]any{}, domain.KindMissingParameter},
		{"bad method", map[string]any{"url": "http://x", "method": "DELETE"}, domain.KindUnknownParameter},
		{"bad shape", map[string]any{"url": "http://x", "response_shape": "xml"}, domain.KindUnknownParameter},
		{"url not string", map[string]any{"url": 5}, domain.KindTypeMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Fetch(context.Background(), tt.params)
			assert.Equal(t, tt.kind, domain.KindOf(err))
		})
	}
}

func TestLimiterFirstPassExempt(t *testing.T) {
	l := NewLimiters()
	ctx := context.Background()
	every := 80 * time.Millisecond

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "k", every, true))
	assert.Less(t, time.Since(start), every/2, "first caller passes immediately")

	require.NoError(t, l.Wait(ctx, "k", every, true))
	assert.GreaterOrEqual(t, time.Since(start), every-10*time.Millisecond, "second caller waits")
}

func TestLimiterWithoutFirstPass(t *testing.T) {
	l := NewLimiters()
	every := 60 * time.Millisecond

	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), "strict", every, false))
	assert.GreaterOrEqual(t, time.Since(start), every-10*time.Millisecond)
}

func TestLimiterNoKeyNoWait(t *testing.T) {
	l := NewLimiters()
	require.NoError(t, l.Wait(context.Background(), "", time.Hour, false))
	assert.Zero(t, l.Len())
}

func TestLimiterHonoursContext(t *testing.T) {
	l := NewLimiters()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, l.Wait(ctx, "k", time.Hour, true))
	cancel()
	assert.Error(t, l.Wait(ctx, "k", time.Hour, true))
}

func TestLimiterLaterCallerWaitsAfterIdleKey(t *testing.T) {
	l := NewLimiters()
	ctx := context.Background()
	every := 100 * time.Millisecond

	require.NoError(t, l.Wait(ctx, "idle", every, true))
	time.Sleep(250 * time.Millisecond)

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "idle", every, true))
	assert.GreaterOrEqual(t, time.Since(start), every-10*time.Millisecond, "later caller sleeps the interval even when the key was idle")
}

func TestLimiterSpacesConcurrentCallers(t *testing.T) {
	l := NewLimiters()
	ctx := context.Background()
	every := 50 * time.Millisecond

	require.NoError(t, l.Wait(ctx, "busy", every, true))
	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Wait(ctx, "busy", every, true))
		}()
	}
	wg.Wait()
	assert.GreaterOrEqual(t, time.Since(start), 3*every-10*time.Millisecond)
}
