package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/text/language"

	"github.com/nclamvn/prismy-production-sub017/pkg/config"
)

// Translator produces translated text for a language pair. The provider is a
// configurable collaborator; StaticTranslator is the default.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}

// NormalizeLanguage canonicalizes a language code ("EN-us" → "en") through
// BCP 47 parsing. Empty input is rejected.
func NormalizeLanguage(code string) (string, error) {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return "", fmt.Errorf("language code is empty")
	}
	tag, err := language.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid language code %q: %w", code, err)
	}
	base, _ := tag.Base()
	return base.String(), nil
}

// NewTranslatorFromConfig selects the provider implementation.
func NewTranslatorFromConfig(cfg config.TranslatorConfig) (Translator, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "static":
		return StaticTranslator{}, nil
	case "http":
		return NewHTTPTranslator(cfg)
	default:
		return nil, fmt.Errorf("unknown translator provider %q", cfg.Provider)
	}
}

// StaticTranslator tags the input with the target language instead of
// translating. It keeps the pipeline runnable without a provider.
type StaticTranslator struct{}

func (StaticTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	target, err := NormalizeLanguage(targetLang)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("[%s] %s", target, text), nil
}

// HTTPTranslator calls an external translation endpoint. The provider call is
// the only place in the pipeline with automatic retries: bounded exponential
// backoff on transport errors and 5xx responses.
type HTTPTranslator struct {
	endpoint   string
	apiKey     string
	client     *http.Client
	maxRetries uint64
}

// NewHTTPTranslator constructs the HTTP provider from config.
func NewHTTPTranslator(cfg config.TranslatorConfig) (*HTTPTranslator, error) {
	endpoint := strings.TrimSpace(cfg.EndpointURL)
	if endpoint == "" {
		return nil, fmt.Errorf("translator endpoint url required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &HTTPTranslator{
		endpoint:   endpoint,
		apiKey:     cfg.APIKey,
		client:     &http.Client{Timeout: timeout},
		maxRetries: uint64(maxRetries),
	}, nil
}

type translateRequest struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
}

type translateResponse struct {
	TranslatedText string `json:"translated_text"`
}

func (t *HTTPTranslator) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	source, err := NormalizeLanguage(sourceLang)
	if err != nil {
		source = "und"
	}
	target, err := NormalizeLanguage(targetLang)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(translateRequest{
		Text:           text,
		SourceLanguage: source,
		TargetLanguage: target,
	})
	if err != nil {
		return "", fmt.Errorf("encode translate request: %w", err)
	}

	backoff := retry.WithMaxRetries(t.maxRetries, retry.NewExponential(500*time.Millisecond))

	var translated string
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if t.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+t.apiKey)
		}

		resp, err := t.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		if err != nil {
			return retry.RetryableError(fmt.Errorf("read translate response: %w", err))
		}

		if resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("translation provider returned %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("translation provider returned %d", resp.StatusCode)
		}

		var decoded translateResponse
		if err := json.Unmarshal(body, &decoded); err != nil {
			return fmt.Errorf("decode translate response: %w", err)
		}
		if decoded.TranslatedText == "" {
			return fmt.Errorf("translation provider returned empty text")
		}
		translated = decoded.TranslatedText
		return nil
	})
	if err != nil {
		return "", err
	}
	return translated, nil
}
