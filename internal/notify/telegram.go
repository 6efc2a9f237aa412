package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/vigilcam/vigil-agent/internal/clip"
	"github.com/vigilcam/vigil-agent/internal/config"
	"github.com/vigilcam/vigil-agent/internal/logging"
)

const (
	telegramBaseURL = "https://api.telegram.org"
	maxSendAttempts = 3
	retryBackoff    = 2 * time.Second
)

// Telegram delivers photos and clips through the Telegram Bot API. Each
// send is attempted a bounded number of times; permanent (4xx) failures
// stop retrying immediately.
type Telegram struct {
	baseURL    string
	token      string
	chatID     string
	backoff    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

// NewTelegram creates a Telegram notifier from the validated configuration.
func NewTelegram(cfg *config.Config, logger *slog.Logger) *Telegram {
	logger.Info("telegram notifier enabled",
		"chat_id", cfg.TelegramChatID,
		"token", logging.SanitizeToken(cfg.TelegramToken),
	)
	return &Telegram{
		baseURL: telegramBaseURL,
		token:   cfg.TelegramToken,
		chatID:  cfg.TelegramChatID,
		backoff: retryBackoff,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
	}
}

func (t *Telegram) SendPhoto(ctx context.Context, path, caption string) error {
	return t.sendFile(ctx, "sendPhoto", "photo", path, caption)
}

func (t *Telegram) SendClip(ctx context.Context, c *clip.File) error {
	caption := fmt.Sprintf("motion clip, %.1fs", c.Duration)
	return t.sendFile(ctx, "sendVideo", "video", c.Path, caption)
}

func (t *Telegram) sendFile(ctx context.Context, method, field, path, caption string) error {
	var lastErr error
	for attempt := 1; attempt <= maxSendAttempts; attempt++ {
		lastErr = t.post(ctx, method, field, path, caption)
		if lastErr == nil {
			return nil
		}
		if sendErr, ok := lastErr.(*SendError); ok && !sendErr.IsRetryable() {
			return lastErr
		}
		t.logger.Warn("notify send failed",
			"method", method, "attempt", attempt, "error", lastErr)
		if attempt < maxSendAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(t.backoff * time.Duration(attempt)):
			}
		}
	}
	return fmt.Errorf("notify: giving up after %d attempts: %w", maxSendAttempts, lastErr)
}

func (t *Telegram) post(ctx context.Context, method, field, path, caption string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("notify: open %s: %w", path, err)
	}
	defer file.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("chat_id", t.chatID); err != nil {
		return fmt.Errorf("notify: write chat_id: %w", err)
	}
	if caption != "" {
		if err := mw.WriteField("caption", caption); err != nil {
			return fmt.Errorf("notify: write caption: %w", err)
		}
	}
	part, err := mw.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("notify: create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("notify: read %s: %w", path, err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("notify: finalize form: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return fmt.Errorf("notify: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notify: http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &SendError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	t.logger.Info("notification sent", "method", method, "path", path)
	return nil
}
