package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/workpass-app/workpass/internal/logging"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestAccessToken_CachedAcrossCalls(t *testing.T) {
	var tokenFetches int64
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&tokenFetches, 1)
		fmt.Fprint(w, `{"access_token":"tok-1","expires_in":7200}`)
	})
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok-1", r.URL.Query().Get("access_token"))
		fmt.Fprint(w, `{"errcode":0,"value":"ok"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL+"/token", testLogger())
	url := srv.URL + "/api?access_token=" + TokenPlaceholder

	var out struct {
		Value string `json:"value"`
	}
	require.NoError(t, c.Get(context.Background(), url, &out))
	require.NoError(t, c.Get(context.Background(), url, &out))

	assert.Equal(t, "ok", out.Value)
	assert.Equal(t, int64(1), atomic.LoadInt64(&tokenFetches))
}

func TestInvalidToken_IsResetAndRetried(t *testing.T) {
	var tokenFetches int64
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&tokenFetches, 1)
		fmt.Fprintf(w, `{"access_token":"tok-%d"}`, n)
	})
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("access_token") == "tok-1" {
			fmt.Fprint(w, `{"errcode":40001,"errmsg":"invalid credential"}`)
			return
		}
		fmt.Fprint(w, `{"errcode":0}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL+"/token", testLogger())
	url := srv.URL + "/api?access_token=" + TokenPlaceholder

	require.NoError(t, c.Get(context.Background(), url, nil))
	assert.Equal(t, int64(2), atomic.LoadInt64(&tokenFetches))
}

func TestSystemBusy_RetriedThenSucceeds(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) < 3 {
			fmt.Fprint(w, `{"errcode":-1,"errmsg":"system busy"}`)
			return
		}
		fmt.Fprint(w, `{"errcode":0}`)
	}))
	defer srv.Close()

	c := NewClient("", testLogger())
	require.NoError(t, c.Get(context.Background(), srv.URL, nil))
	assert.Equal(t, int64(3), atomic.LoadInt64(&calls))
}

func TestSystemBusy_GivesUpAfterRetries(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		fmt.Fprint(w, `{"errcode":-1,"errmsg":"system busy"}`)
	}))
	defer srv.Close()

	c := NewClient("", testLogger())
	err := c.Get(context.Background(), srv.URL, nil)
	assert.ErrorIs(t, err, ErrSystemBusy)
	assert.Equal(t, int64(3), atomic.LoadInt64(&calls))
}

func TestOtherErrcode_IsFinal(t *testing.T) {
	var calls int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		fmt.Fprint(w, `{"errcode":50002,"errmsg":"no permission"}`)
	}))
	defer srv.Close()

	c := NewClient("", testLogger())
	err := c.Get(context.Background(), srv.URL, nil)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 50002, apiErr.Code)
	assert.Equal(t, "no permission", apiErr.Msg)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls), "non-retryable errors must not be retried")
}

func TestPost_SendsJSONPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body["content"])

		fmt.Fprint(w, `{"errcode":0}`)
	}))
	defer srv.Close()

	c := NewClient("", testLogger())
	payload := map[string]string{"content": "hello"}
	require.NoError(t, c.Post(context.Background(), srv.URL, payload, nil))
}
