// Package openai implements the AI client against an OpenAI-compatible API.
package openai

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"log/slog"

	"github.com/pitchpractice/pitchpractice/internal/adapter/observability"
	"github.com/pitchpractice/pitchpractice/internal/config"
	"github.com/pitchpractice/pitchpractice/internal/domain"
)

// Client implements domain.AIClient using the chat completions and audio
// transcription endpoints of an OpenAI-compatible provider.
type Client struct {
	cfg          config.Config
	chatHC       *http.Client
	transcribeHC *http.Client
}

// New constructs an AI client with sensible timeouts. Outbound calls carry
// spans via the otelhttp transport.
func New(cfg config.Config) *Client {
	chatTimeout := 60 * time.Second
	transcribeTimeout := 120 * time.Second // Whisper on long recordings is slow
	transport := otelhttp.NewTransport(http.DefaultTransport)

	return &Client{
		cfg:          cfg,
		chatHC:       &http.Client{Timeout: chatTimeout, Transport: transport},
		transcribeHC: &http.Client{Timeout: transcribeTimeout, Transport: transport},
	}
}

// getBackoffConfig returns a configured ExponentialBackOff based on the current environment.
func (c *Client) getBackoffConfig() *backoff.ExponentialBackOff {
	expo := backoff.NewExponentialBackOff()

	maxElapsedTime, initialInterval, maxInterval, multiplier := c.cfg.GetAIBackoffConfig()
	expo.MaxElapsedTime = maxElapsedTime
	expo.InitialInterval = initialInterval
	expo.MaxInterval = maxInterval
	expo.Multiplier = multiplier

	return expo
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ChatJSON calls the chat completions endpoint in JSON mode and returns the
// message content of the first choice.
func (c *Client) ChatJSON(ctx domain.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	if c.cfg.AIAPIKey == "" {
		slog.Error("AI API key missing", slog.String("provider", "openai"))
		return "", fmt.Errorf("%w: AI_API_KEY missing", domain.ErrInvalidArgument)
	}
	body := map[string]any{
		"model":           c.cfg.ChatModel,
		"temperature":     0.2,
		"max_tokens":      maxTokens,
		"response_format": map[string]string{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
	}
	return c.chat(ctx, "chat", body)
}

// ChatJSONWithImage calls the chat completions endpoint with the image inlined
// as a data URL. Used for rubric extraction from screenshots.
func (c *Client) ChatJSONWithImage(ctx domain.Context, systemPrompt, userPrompt, imageMIME string, image []byte, maxTokens int) (string, error) {
	if c.cfg.AIAPIKey == "" {
		slog.Error("AI API key missing", slog.String("provider", "openai"))
		return "", fmt.Errorf("%w: AI_API_KEY missing", domain.ErrInvalidArgument)
	}
	dataURL := "data:" + imageMIME + ";base64," + base64.StdEncoding.EncodeToString(image)
	body := map[string]any{
		"model":           c.cfg.ChatModel,
		"temperature":     0.2,
		"max_tokens":      maxTokens,
		"response_format": map[string]string{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": []map[string]any{
				{"type": "text", "text": userPrompt},
				{"type": "image_url", "image_url": map[string]string{"url": dataURL}},
			}},
		},
	}
	return c.chat(ctx, "chat_image", body)
}

func (c *Client) chat(ctx domain.Context, opName string, body map[string]any) (string, error) {
	b, _ := json.Marshal(body)
	endpoint := c.cfg.AIBaseURL + "/chat/completions"

	slog.Info("calling chat completions", slog.String("provider", "openai"), slog.String("op", opName), slog.String("model", c.cfg.ChatModel))

	var out chatResponse
	op := func() error {
		start := time.Now()
		// Recreate request each attempt to avoid reusing consumed bodies
		r, _ := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
		r.Header.Set("Authorization", "Bearer "+c.cfg.AIAPIKey)
		r.Header.Set("Content-Type", "application/json")
		resp, err := c.chatHC.Do(r)
		observability.AIRequestsTotal.WithLabelValues("openai", opName).Inc()
		observability.AIRequestDuration.WithLabelValues("openai", opName).Observe(time.Since(start).Seconds())
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			slog.Error("failed to read response body", slog.String("provider", "openai"), slog.Any("error", err))
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			// Retryable: let backoff handle retries
			slog.Warn("ai provider rate limited", slog.String("provider", "openai"), slog.String("op", opName), slog.Int("status", resp.StatusCode), slog.String("x_request_id", resp.Header.Get("X-Request-Id")))
			return fmt.Errorf("%w: status 429", domain.ErrUpstreamRateLimit)
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			// Client error: non-retryable
			slog.Warn("ai provider 4xx", slog.String("provider", "openai"), slog.String("op", opName), slog.Int("status", resp.StatusCode), slog.String("model", c.cfg.ChatModel), slog.String("endpoint", endpoint), slog.String("x_request_id", resp.Header.Get("X-Request-Id")), slog.String("body", snippet(bodyBytes, 512)))
			return backoff.Permanent(fmt.Errorf("chat status %d", resp.StatusCode))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			// 5xx and others: retryable
			slog.Error("ai provider non-2xx", slog.String("provider", "openai"), slog.String("op", opName), slog.Int("status", resp.StatusCode), slog.String("model", c.cfg.ChatModel), slog.String("endpoint", endpoint), slog.String("x_request_id", resp.Header.Get("X-Request-Id")), slog.String("body", snippet(bodyBytes, 512)))
			return fmt.Errorf("chat status %d", resp.StatusCode)
		}
		if err := json.Unmarshal(bodyBytes, &out); err != nil {
			slog.Error("ai provider decode error", slog.String("provider", "openai"), slog.String("op", opName), slog.String("endpoint", endpoint), slog.Any("error", err))
			return err
		}
		return nil
	}

	expo := c.getBackoffConfig()
	bo := backoff.WithContext(expo, ctx)
	if err := backoff.Retry(op, bo); err != nil {
		slog.Error("chat completions failed after retries", slog.String("provider", "openai"), slog.String("op", opName), slog.Any("error", err))
		return "", fmt.Errorf("chat completions: %w", err)
	}

	if len(out.Choices) == 0 {
		slog.Error("chat completions returned empty choices", slog.String("provider", "openai"), slog.String("op", opName))
		return "", errors.New("empty choices from chat completions")
	}
	return out.Choices[0].Message.Content, nil
}

// Transcribe sends the audio to the transcription endpoint and returns the
// transcript text along with the spoken duration in seconds.
func (c *Client) Transcribe(ctx domain.Context, filename string, audio []byte) (domain.Transcription, error) {
	if c.cfg.AIAPIKey == "" {
		slog.Error("AI API key missing", slog.String("provider", "openai"))
		return domain.Transcription{}, fmt.Errorf("%w: AI_API_KEY missing", domain.ErrInvalidArgument)
	}
	endpoint := c.cfg.AIBaseURL + "/audio/transcriptions"

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return domain.Transcription{}, fmt.Errorf("build multipart: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return domain.Transcription{}, fmt.Errorf("build multipart: %w", err)
	}
	_ = mw.WriteField("model", c.cfg.TranscribeModel)
	// verbose_json carries the audio duration alongside the text.
	_ = mw.WriteField("response_format", "verbose_json")
	if err := mw.Close(); err != nil {
		return domain.Transcription{}, fmt.Errorf("build multipart: %w", err)
	}
	formBytes := form.Bytes()

	slog.Info("calling transcription", slog.String("provider", "openai"), slog.String("model", c.cfg.TranscribeModel), slog.Int("audio_bytes", len(audio)))

	var out struct {
		Text     string  `json:"text"`
		Duration float64 `json:"duration"`
	}
	op := func() error {
		start := time.Now()
		r, _ := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(formBytes))
		r.Header.Set("Authorization", "Bearer "+c.cfg.AIAPIKey)
		r.Header.Set("Content-Type", mw.FormDataContentType())
		resp, err := c.transcribeHC.Do(r)
		observability.AIRequestsTotal.WithLabelValues("openai", "transcribe").Inc()
		observability.AIRequestDuration.WithLabelValues("openai", "transcribe").Observe(time.Since(start).Seconds())
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			slog.Error("failed to read response body", slog.String("provider", "openai"), slog.Any("error", err))
			return err
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			slog.Warn("ai provider rate limited", slog.String("provider", "openai"), slog.String("op", "transcribe"), slog.Int("status", resp.StatusCode), slog.String("x_request_id", resp.Header.Get("X-Request-Id")))
			return fmt.Errorf("%w: status 429", domain.ErrUpstreamRateLimit)
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			slog.Warn("ai provider 4xx", slog.String("provider", "openai"), slog.String("op", "transcribe"), slog.Int("status", resp.StatusCode), slog.String("model", c.cfg.TranscribeModel), slog.String("endpoint", endpoint), slog.String("x_request_id", resp.Header.Get("X-Request-Id")), slog.String("body", snippet(bodyBytes, 512)))
			return backoff.Permanent(fmt.Errorf("transcribe status %d", resp.StatusCode))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			slog.Error("ai provider non-2xx", slog.String("provider", "openai"), slog.String("op", "transcribe"), slog.Int("status", resp.StatusCode), slog.String("model", c.cfg.TranscribeModel), slog.String("endpoint", endpoint), slog.String("x_request_id", resp.Header.Get("X-Request-Id")), slog.String("body", snippet(bodyBytes, 512)))
			return fmt.Errorf("transcribe status %d", resp.StatusCode)
		}
		if err := json.Unmarshal(bodyBytes, &out); err != nil {
			slog.Error("ai provider decode error", slog.String("provider", "openai"), slog.String("op", "transcribe"), slog.String("endpoint", endpoint), slog.Any("error", err))
			return err
		}
		return nil
	}

	expo := c.getBackoffConfig()
	bo := backoff.WithContext(expo, ctx)
	if err := backoff.Retry(op, bo); err != nil {
		slog.Error("transcription failed after retries", slog.String("provider", "openai"), slog.Any("error", err))
		return domain.Transcription{}, fmt.Errorf("transcription: %w", err)
	}

	slog.Info("transcription successful", slog.String("provider", "openai"), slog.Int("text_len", len(out.Text)), slog.Float64("duration_seconds", out.Duration))
	return domain.Transcription{Text: out.Text, DurationSeconds: out.Duration}, nil
}

// Check verifies the provider is reachable. Used by the readiness probe.
func (c *Client) Check(ctx domain.Context) error {
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.AIBaseURL+"/models", nil)
	if err != nil {
		return err
	}
	r.Header.Set("Authorization", "Bearer "+c.cfg.AIAPIKey)
	resp, err := c.chatHC.Do(r)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ai provider status %d", resp.StatusCode)
	}
	return nil
}

func snippet(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
