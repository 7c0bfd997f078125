package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

// TestNewClient tests client construction with various options.
func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("https://history.example.com/history-data", "test-token")

		if c.baseURL != "https://history.example.com/history-data" {
			t.Errorf("baseURL = %q, want %q", c.baseURL, "https://history.example.com/history-data")
		}
		if c.token != "test-token" {
			t.Errorf("token = %q, want %q", c.token, "test-token")
		}
		if c.httpClient.Timeout != 5*time.Minute {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 5*time.Minute)
		}
		if c.limiter != nil {
			t.Error("limiter should be nil by default")
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("with timeout option", func(t *testing.T) {
		c := NewClient("https://history.example.com", "", WithTimeout(5*time.Second))
		if c.httpClient.Timeout != 5*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 5*time.Second)
		}
	})

	t.Run("with request rate option", func(t *testing.T) {
		c := NewClient("https://history.example.com", "", WithRequestRate(2))
		if c.limiter == nil {
			t.Fatal("limiter not set")
		}
		if c.limiter.Limit() != 2 {
			t.Errorf("Limit = %v, want 2", c.limiter.Limit())
		}

		c = NewClient("https://history.example.com", "", WithRequestRate(0))
		if c.limiter != nil {
			t.Error("zero rate should leave limiter nil")
		}
	})

	t.Run("with logger option", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		c := NewClient("https://history.example.com", "", WithLogger(logger))
		if c.logger != logger {
			t.Error("logger not set correctly")
		}
	})

	t.Run("with custom HTTP client", func(t *testing.T) {
		customClient := &http.Client{Timeout: 10 * time.Second}
		c := NewClient("https://history.example.com", "", WithHTTPClient(customClient))
		if c.httpClient != customClient {
			t.Error("custom HTTP client not set")
		}
	})
}

func TestHistoryURL(t *testing.T) {
	c := NewClient("https://history.example.com/history-data", "")

	got := c.HistoryURL("BBG004730N88", 2021)
	want := "https://history.example.com/history-data?figi=BBG004730N88&year=2021"
	if got != want {
		t.Errorf("HistoryURL() = %q, want %q", got, want)
	}
}

// TestGetHistory tests the archive request.
func TestGetHistory(t *testing.T) {
	t.Run("successful request", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer test-token" {
				t.Errorf("Authorization header = %q, want %q", r.Header.Get("Authorization"), "Bearer test-token")
			}
			if r.URL.Query().Get("figi") != "BBG000B9XRY4" {
				t.Errorf("figi = %q, want %q", r.URL.Query().Get("figi"), "BBG000B9XRY4")
			}
			if r.URL.Query().Get("year") != "2022" {
				t.Errorf("year = %q, want %q", r.URL.Query().Get("year"), "2022")
			}
			w.Header().Set(HeaderRateLimitRemaining, "29")
			w.Header().Set(HeaderRateLimitReset, "41")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("PK"))
		}))
		defer server.Close()

		c := NewClient(server.URL, "test-token")
		resp, err := c.GetHistory(context.Background(), "BBG000B9XRY4", 2022)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusOK)
		}
		if resp.Header.Get(HeaderRateLimitRemaining) != "29" {
			t.Errorf("remaining header = %q, want %q", resp.Header.Get(HeaderRateLimitRemaining), "29")
		}
		body, _ := io.ReadAll(resp.Body)
		if string(body) != "PK" {
			t.Errorf("body = %q, want %q", body, "PK")
		}
	})

	t.Run("request without token", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "" {
				t.Errorf("Authorization header should be empty, got %q", r.Header.Get("Authorization"))
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		c := NewClient(server.URL, "")
		resp, err := c.GetHistory(context.Background(), "X", 2020)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		resp.Body.Close()
	})

	t.Run("error status is a response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		resp, err := c.GetHistory(context.Background(), "X", 1999)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("StatusCode = %d, want %d", resp.StatusCode, http.StatusNotFound)
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(100 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		c := NewClient(server.URL, "key")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := c.GetHistory(ctx, "X", 2020)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("error = %v, want context.Canceled", err)
		}
	})

	t.Run("request rate caps calls", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		c := NewClient(server.URL, "key", WithRequestRate(20))
		start := time.Now()
		for i := 0; i < 3; i++ {
			resp, err := c.GetHistory(context.Background(), "X", 2020)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			resp.Body.Close()
		}

		if calls.Load() != 3 {
			t.Errorf("calls = %d, want 3", calls.Load())
		}
		// Burst of one: the second and third calls wait 50ms each.
		if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
			t.Errorf("elapsed = %v, want >= 90ms", elapsed)
		}
	})
}

func TestIsNoData(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{http.StatusNotFound, true},
		{http.StatusInternalServerError, true},
		{http.StatusOK, false},
		{http.StatusTooManyRequests, false},
		{http.StatusBadGateway, false},
	}

	for _, tt := range tests {
		if got := IsNoData(tt.status); got != tt.want {
			t.Errorf("IsNoData(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
