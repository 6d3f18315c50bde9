package submitter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aescanero/quizsolver/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestSubmitter(retries int) *Submitter {
	s := New(http.DefaultClient, retries, zap.NewNop())
	s.minDelay = time.Millisecond
	s.maxDelay = 5 * time.Millisecond
	return s
}

func TestSubmitSendsPayload(t *testing.T) {
	var got domain.Submission
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"correct": true, "url": "http://next/2", "reason": ""}`))
	}))
	defer srv.Close()

	res, err := newTestSubmitter(0).Submit(context.Background(), srv.URL, &domain.Submission{
		Email: "a@b.c", Secret: "s", URL: "http://quiz/1", Answer: 42,
	})
	require.NoError(t, err)
	assert.True(t, res.Correct)
	assert.Equal(t, "http://next/2", res.URL)
	assert.Equal(t, "a@b.c", got.Email)
	assert.Equal(t, float64(42), got.Answer)
}

func TestSubmitDecodesClientErrorVerdict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"correct": false, "reason": "Wrong sum"}`))
	}))
	defer srv.Close()

	res, err := newTestSubmitter(0).Submit(context.Background(), srv.URL, &domain.Submission{Answer: 1})
	require.NoError(t, err)
	assert.False(t, res.Correct)
	assert.Equal(t, "Wrong sum", res.Reason)
}

func TestSubmitRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"correct": true}`))
	}))
	defer srv.Close()

	res, err := newTestSubmitter(2).Submit(context.Background(), srv.URL, &domain.Submission{Answer: "x"})
	require.NoError(t, err)
	assert.True(t, res.Correct)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSubmitGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newTestSubmitter(2).Submit(context.Background(), srv.URL, &domain.Submission{Answer: "x"})
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSubmitRejectsLargePayload(t *testing.T) {
	_, err := newTestSubmitter(0).Submit(context.Background(), "http://unused", &domain.Submission{
		Answer: strings.Repeat("a", MaxPayloadBytes),
	})
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}
