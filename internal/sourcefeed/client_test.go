package sourcefeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchPage_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tickets":[{"external_id":"t1","updated_at":"2026-01-01T00:00:00Z"}],"page":1,"total_pages":2}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	page, err := c.FetchPage(context.Background(), "tenant-a", 1)
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Tickets, 1)
	assert.Equal(t, "t1", page.Tickets[0].ExternalID)
}

func TestFetchPage_RetriesOn500ThenSucceeds(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tickets":[],"page":1,"total_pages":1}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	page, err := c.FetchPage(context.Background(), "tenant-a", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalPages)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestFetchPage_FailsAfterMaxAttemptsOn500(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.FetchPage(context.Background(), "tenant-a", 1)
	assert.Error(t, err)
}

func TestFetchPage_HonoursRetryAfterOn429(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tickets":[],"page":1,"total_pages":1}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	page, err := c.FetchPage(ctx, "tenant-a", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalPages)
	assert.GreaterOrEqual(t, attempts.Load(), int32(2))
}

func TestFetchPage_NonRetryableStatusFailsImmediately(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.FetchPage(context.Background(), "tenant-a", 1)
	assert.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
}
