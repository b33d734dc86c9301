package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(retries int) *HTTPGateway {
	log := logrus.New()
	log.SetOutput(io.Discard)
	g := NewHTTPGateway(Options{Timeout: time.Second, MaxRetries: retries}, log)
	g.sleep = func(context.Context, time.Duration) error { return nil }
	return g
}

func TestFetch_SendsTokenAndReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "plaid-token", r.Header.Get("Authorization"))
		w.Write([]byte(`{"bank_balance":10000}`))
	}))
	defer srv.Close()

	raw, err := newTestGateway(0).Fetch(context.Background(), srv.URL, "plaid-token")
	require.NoError(t, err)
	assert.JSONEq(t, `{"bank_balance":10000}`, string(raw))
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := newTestGateway(2).Fetch(context.Background(), srv.URL, "t")
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetch_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestGateway(3).Fetch(context.Background(), srv.URL, "bad")
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "fetch", te.Op)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetch_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestGateway(1).Fetch(context.Background(), url, "t")
	var te *TransportError
	assert.True(t, errors.As(err, &te))
}

func TestSubmit_ReturnsAnyStatus(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusBadRequest, http.StatusInternalServerError} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "key-1", r.Header.Get("Idempotency-Key"))
			body, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"amount":2000}`, string(body))
			w.WriteHeader(status)
			w.Write([]byte("ok"))
		}))

		resp, err := newTestGateway(2).Submit(context.Background(), srv.URL, "key-1", []byte(`{"amount":2000}`))
		srv.Close()
		require.NoError(t, err)
		assert.Equal(t, status, resp.StatusCode)
		assert.Equal(t, "ok", string(resp.Body))
	}
}

func TestSubmit_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := newTestGateway(0).Submit(context.Background(), url, "", []byte(`{}`))
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "submit", te.Op)
}

func TestFetch_OversizedBody(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"bank_balance":1,"credit_history":[]}`))
	}))
	defer srv.Close()

	g := newTestGateway(2)
	g.maxBody = 16

	raw, err := g.Fetch(context.Background(), srv.URL, "t")
	assert.Nil(t, raw)
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.ErrorIs(t, err, ErrBodyTooLarge)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetch_BodyAtLimit(t *testing.T) {
	body := `{"bank_balance":1}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	g := newTestGateway(0)
	g.maxBody = int64(len(body))

	raw, err := g.Fetch(context.Background(), srv.URL, "t")
	require.NoError(t, err)
	assert.Equal(t, body, string(raw))
}

func TestSubmit_OversizedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), 64))
	}))
	defer srv.Close()

	g := newTestGateway(0)
	g.maxBody = 32

	_, err := g.Submit(context.Background(), srv.URL, "k", []byte(`{}`))
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}
