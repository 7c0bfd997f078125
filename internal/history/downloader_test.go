package history

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/candled/internal/api"
	"github.com/rickgao/candled/internal/model"
)

// fakeSession records the rows copied into it.
type fakeSession struct {
	copied    bytes.Buffer
	copyErr   error
	closeErr  error
	existing  int64 // rows already in the table, not added on commit
	committed bool
	closed    bool
}

func (s *fakeSession) Copy(ctx context.Context, r io.Reader) (int64, error) {
	n, err := io.Copy(&s.copied, r)
	if err != nil {
		return n, err
	}
	if s.copyErr != nil {
		return n, s.copyErr
	}
	return n, nil
}

func (s *fakeSession) Commit(context.Context) (int64, error) {
	s.committed = true
	rows := int64(bytes.Count(s.copied.Bytes(), []byte{'\n'}))
	return rows - s.existing, nil
}

func (s *fakeSession) Close(context.Context) error {
	s.closed = true
	return s.closeErr
}

func (s *fakeSession) opener() SessionOpener {
	return func(context.Context) (LoadSession, error) {
		return s, nil
	}
}

func archiveRows(t *testing.T, n int) []byte {
	t.Helper()
	var sb strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "3fa85f64-5717-4562-b3fc-2c963f66afa6;2020-01-03T09:%02d:00;100.0;101.5;102.0;99.5;%d;\n", i, i)
	}
	return buildZip(t, zipFile{name: "3fa85f64_2020.csv", body: sb.String()})
}

func newTestDownloader(t *testing.T, handler http.HandlerFunc, session *fakeSession) *Downloader {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := api.NewClient(server.URL, "token", api.WithTimeout(2*time.Second))
	return NewDownloader(client, session.opener(), 512, nil, nil)
}

var testInstrument = model.Instrument{ID: 7, Name: "SBER", AssetType: model.AssetTypeShare, FIGI: "BBG004730N88"}

func TestDownloadSuccess(t *testing.T) {
	archive := archiveRows(t, 30)
	session := &fakeSession{existing: 10}
	d := newTestDownloader(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(api.HeaderRateLimitRemaining, "29")
		w.Header().Set(api.HeaderRateLimitReset, "40")
		w.Header().Set("Content-Type", "application/zip")
		w.Write(archive)
	}, session)

	res, err := d.Download(context.Background(), testInstrument, 2020)
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}

	if res.Outcome != Success {
		t.Fatalf("Outcome = %v, want %v (err %v)", res.Outcome, Success, res.Err)
	}
	if res.Read != 30 {
		t.Errorf("Read = %d, want 30", res.Read)
	}
	if res.Added != 20 {
		t.Errorf("Added = %d, want 20", res.Added)
	}
	if res.RateLimit.Remaining != 29 || res.RateLimit.Degraded {
		t.Errorf("RateLimit = %+v, want 29 remaining", res.RateLimit)
	}
	if !session.committed || !session.closed {
		t.Errorf("session committed=%v closed=%v, want both", session.committed, session.closed)
	}

	minutes, err := model.ToMinutes(time.Date(2020, time.January, 3, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ToMinutes() error: %v", err)
	}
	first, _, _ := strings.Cut(session.copied.String(), "\n")
	if want := fmt.Sprintf("7;%d;100.0;101.5;102.0;99.5;0", minutes); first != want {
		t.Errorf("first row = %q, want %q", first, want)
	}
}

func TestDownloadStatusClassification(t *testing.T) {
	tests := []struct {
		status      int
		wantOutcome Outcome
	}{
		{http.StatusNotFound, BoundaryReached},
		{http.StatusInternalServerError, BoundaryReached},
		{http.StatusTooManyRequests, TransientFailure},
		{http.StatusBadGateway, TransientFailure},
		{http.StatusUnauthorized, TransientFailure},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			session := &fakeSession{}
			d := newTestDownloader(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set(api.HeaderRateLimitRemaining, "0")
				w.Header().Set(api.HeaderRateLimitReset, "12")
				w.WriteHeader(tt.status)
			}, session)

			res, err := d.Download(context.Background(), testInstrument, 1999)
			if err != nil {
				t.Fatalf("Download() error: %v", err)
			}
			if res.Outcome != tt.wantOutcome {
				t.Errorf("Outcome = %v, want %v", res.Outcome, tt.wantOutcome)
			}
			if res.StatusCode() != tt.status {
				t.Errorf("StatusCode = %d, want %d", res.StatusCode(), tt.status)
			}
			if res.RateLimit.Remaining != 0 || res.RateLimit.Degraded {
				t.Errorf("RateLimit = %+v, want parsed headers", res.RateLimit)
			}
			if session.committed || session.closed {
				t.Error("load session opened for a failed response")
			}
		})
	}
}

func TestDownloadTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	client := api.NewClient(server.URL, "token", api.WithTimeout(50*time.Millisecond))
	d := NewDownloader(client, (&fakeSession{}).opener(), 512, nil, nil)

	res, err := d.Download(context.Background(), testInstrument, 2020)
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	if res.Outcome != TransientFailure {
		t.Errorf("Outcome = %v, want %v", res.Outcome, TransientFailure)
	}
	if res.StatusCode() != StatusTimeout {
		t.Errorf("StatusCode = %d, want %d", res.StatusCode(), StatusTimeout)
	}
	if res.Err == nil {
		t.Error("Err = nil, want the timeout")
	}
}

func TestDownloadConnectionFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	client := api.NewClient(url, "token")
	d := NewDownloader(client, (&fakeSession{}).opener(), 512, nil, nil)

	res, err := d.Download(context.Background(), testInstrument, 2020)
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	if res.Outcome != TransientFailure || res.StatusCode() != StatusUnknown {
		t.Errorf("result = %v/%d, want %v/%d", res.Outcome, res.StatusCode(), TransientFailure, StatusUnknown)
	}
}

func TestDownloadProtocolViolation(t *testing.T) {
	tests := []struct {
		name    string
		body    func(t *testing.T) []byte
		wantErr error
	}{
		{
			name: "malformed row",
			body: func(t *testing.T) []byte {
				return buildZip(t, zipFile{name: "a.csv", body: sampleRow + "\ngarbage\n"})
			},
			wantErr: ErrMalformedRow,
		},
		{
			name: "row too long",
			body: func(t *testing.T) []byte {
				long := "3fa85f64-5717-4562-b3fc-2c963f66afa6;2020-01-03T09:30:00;" + strings.Repeat("1", 200) + ";\n"
				return buildZip(t, zipFile{name: "a.csv", body: long})
			},
			wantErr: ErrRowTooLong,
		},
		{
			name: "corrupt archive",
			body: func(t *testing.T) []byte {
				return []byte("this is not a zip archive")
			},
			wantErr: ErrCorruptArchive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := tt.body(t)
			session := &fakeSession{}
			d := newTestDownloader(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write(body)
			}, session)

			res, err := d.Download(context.Background(), testInstrument, 2020)
			if err != nil {
				t.Fatalf("Download() error: %v", err)
			}
			if res.Outcome != TransientFailure || res.StatusCode() != StatusUnknown {
				t.Errorf("result = %v/%d, want %v/%d", res.Outcome, res.StatusCode(), TransientFailure, StatusUnknown)
			}
			if !errors.Is(res.Err, tt.wantErr) {
				t.Errorf("Err = %v, want %v", res.Err, tt.wantErr)
			}
			if session.committed {
				t.Error("session committed after protocol violation")
			}
			if !session.closed {
				t.Error("session not closed")
			}
		})
	}
}

func TestDownloadStoreRejection(t *testing.T) {
	archive := archiveRows(t, 5)
	rejected := errors.New(`new row violates check constraint "candle_open_range"`)
	session := &fakeSession{copyErr: rejected}
	d := newTestDownloader(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}, session)

	res, err := d.Download(context.Background(), testInstrument, 2020)
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	if res.Outcome != TransientFailure {
		t.Errorf("Outcome = %v, want %v", res.Outcome, TransientFailure)
	}
	if !errors.Is(res.Err, rejected) {
		t.Errorf("Err = %v, want %v", res.Err, rejected)
	}
	if session.committed || !session.closed {
		t.Errorf("session committed=%v closed=%v, want rolled back", session.committed, session.closed)
	}
}

func TestDownloadRollbackFailureLogged(t *testing.T) {
	archive := archiveRows(t, 5)
	session := &fakeSession{
		copyErr:  errors.New("connection reset"),
		closeErr: errors.New("rollback: conn closed"),
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer server.Close()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn}))
	d := NewDownloader(api.NewClient(server.URL, "token"), session.opener(), 512, nil, logger)

	res, err := d.Download(context.Background(), testInstrument, 2020)
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	if res.Outcome != TransientFailure {
		t.Errorf("Outcome = %v, want %v", res.Outcome, TransientFailure)
	}

	out := logs.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "close load session") ||
		!strings.Contains(out, "rollback: conn closed") {
		t.Errorf("logs = %q, want a warning with the rollback error", out)
	}
}

func TestDownloadCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	client := api.NewClient(server.URL, "token")
	d := NewDownloader(client, (&fakeSession{}).opener(), 512, nil, nil)

	go func() {
		<-started
		cancel()
	}()

	_, err := d.Download(ctx, testInstrument, 2020)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestOutcomeString(t *testing.T) {
	tests := []struct {
		o    Outcome
		want string
	}{
		{Success, "success"},
		{BoundaryReached, "boundary"},
		{TransientFailure, "transient_failure"},
		{Outcome(7), "outcome(7)"},
	}
	for _, tt := range tests {
		if got := tt.o.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
