package notify

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vigilcam/vigil-agent/internal/clip"
	"github.com/vigilcam/vigil-agent/internal/config"
)

func testTelegram(t *testing.T, handler http.HandlerFunc) (*Telegram, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.Config{TelegramToken: "test-token-123456", TelegramChatID: "42"}
	tg := NewTelegram(cfg, slog.Default())
	tg.baseURL = srv.URL
	tg.backoff = time.Millisecond
	return tg, srv
}

func testFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, []byte("video"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTelegram_SendClip(t *testing.T) {
	var gotPath string
	var gotChatID string
	tg, _ := testTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("bad multipart form: %v", err)
		}
		gotChatID = r.FormValue("chat_id")
		if _, _, err := r.FormFile("video"); err != nil {
			t.Errorf("missing video part: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	})

	c := &clip.File{Path: testFile(t), Duration: 6}
	if err := tg.SendClip(context.Background(), c); err != nil {
		t.Fatalf("SendClip() error = %v", err)
	}
	if gotPath != "/bottest-token-123456/sendVideo" {
		t.Errorf("request path = %q", gotPath)
	}
	if gotChatID != "42" {
		t.Errorf("chat_id = %q, want 42", gotChatID)
	}
}

func TestTelegram_RetriesServerErrors(t *testing.T) {
	attempts := 0
	tg, _ := testTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	if err := tg.SendPhoto(context.Background(), testFile(t), "snapshot"); err != nil {
		t.Fatalf("SendPhoto() error = %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestTelegram_ClientErrorIsPermanent(t *testing.T) {
	attempts := 0
	tg, _ := testTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusForbidden)
	})

	err := tg.SendPhoto(context.Background(), testFile(t), "")
	if err == nil {
		t.Fatal("SendPhoto() should fail on 403")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no retry on client error)", attempts)
	}
	sendErr, ok := err.(*SendError)
	if !ok {
		t.Fatalf("error type = %T, want *SendError", err)
	}
	if sendErr.IsRetryable() {
		t.Error("403 must not be retryable")
	}
}

func TestTelegram_BoundedAttempts(t *testing.T) {
	attempts := 0
	tg, _ := testTelegram(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	})

	if err := tg.SendPhoto(context.Background(), testFile(t), ""); err == nil {
		t.Fatal("SendPhoto() should give up on persistent failure")
	}
	if attempts != maxSendAttempts {
		t.Errorf("attempts = %d, want %d", attempts, maxSendAttempts)
	}
}

func TestStub_RecordsSends(t *testing.T) {
	s := NewStub(nil)
	if err := s.SendPhoto(context.Background(), "/tmp/p.png", ""); err != nil {
		t.Fatal(err)
	}
	if err := s.SendClip(context.Background(), &clip.File{Path: "/tmp/c.mp4"}); err != nil {
		t.Fatal(err)
	}
	if len(s.Photos) != 1 || len(s.Clips) != 1 {
		t.Errorf("stub recorded %d photos, %d clips", len(s.Photos), len(s.Clips))
	}
}
