package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"time"

	"jaguar-racing/internal/apperr"

	"github.com/tidwall/gjson"
)

// Completer devolve o texto bruto da resposta do modelo para a conversa completa.
type Completer interface {
	Complete(ctx context.Context, msgs []Message) (string, error)
}

// AzureConfig aponta para um deployment do Azure OpenAI.
type AzureConfig struct {
	Endpoint    string
	APIKey      string
	Deployment  string
	APIVersion  string
	MaxTokens   int
	Temperature float64
}

func (c AzureConfig) Params() Params {
	return Params{Deployment: c.Deployment, MaxTokens: c.MaxTokens, Temperature: c.Temperature}
}

type AzureClient struct {
	cfg  AzureConfig
	http *http.Client
}

func NewAzureClient(cfg AzureConfig, hc *http.Client) *AzureClient {
	if hc == nil {
		hc = &http.Client{}
	}
	return &AzureClient{cfg: cfg, http: hc}
}

type completionRequest struct {
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature"`
}

func (c *AzureClient) url() string {
	base := strings.TrimRight(c.cfg.Endpoint, "/")
	q := url.Values{}
	q.Set("api-version", c.cfg.APIVersion)
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?%s",
		base, url.PathEscape(c.cfg.Deployment), q.Encode())
}

// Complete faz uma única tentativa. O erro já vem classificado (apperr.Kind).
func (c *AzureClient) Complete(ctx context.Context, msgs []Message) (string, error) {
	body, err := json.Marshal(completionRequest{
		Messages:    msgs,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(), bytes.NewReader(body))
	if err != nil {
		return "", apperr.Wrap(apperr.KindInternal, "", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", classifyTransportError(ctx, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", classifyStatus(resp.StatusCode, raw)
	}

	content := gjson.GetBytes(raw, "choices.0.message.content")
	if !content.Exists() {
		reason := gjson.GetBytes(raw, "choices.0.finish_reason").String()
		return "", apperr.Wrap(apperr.KindUpstreamTransient, "",
			fmt.Errorf("completion without content (finish_reason=%q)", reason))
	}
	return content.String(), nil
}

// StatusError é a resposta não-2xx do upstream.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upstream status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Message)
}

func classifyStatus(status int, body []byte) error {
	se := &StatusError{
		Status:  status,
		Code:    gjson.GetBytes(body, "error.code").String(),
		Message: gjson.GetBytes(body, "error.message").String(),
	}
	if se.Message == "" {
		se.Message = http.StatusText(status)
	}

	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperr.Wrap(apperr.KindUpstreamAuth, "", se)
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return apperr.Wrap(apperr.KindUpstreamTransient, "", se)
	}
	return apperr.Wrap(apperr.KindInternal, "", se)
}

func classifyTransportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return apperr.Wrap(apperr.KindUpstreamTimeout, "", err)
		}
		return apperr.Wrap(apperr.KindInternal, "", err)
	}

	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNREFUSED):
		return apperr.Wrap(apperr.KindUpstreamTransient, "", err)
	case errors.As(err, &netErr):
		return apperr.Wrap(apperr.KindUpstreamTransient, "", err)
	}
	return apperr.Wrap(apperr.KindInternal, "", err)
}

// Retryable: só falhas transitórias voltam para o loop.
func Retryable(err error) bool {
	return apperr.KindOf(err) == apperr.KindUpstreamTransient
}

// RetryPolicy define tentativas extras e a base do backoff exponencial.
type RetryPolicy struct {
	Retries int
	Base    time.Duration
	// Jitter devolve um atraso extra aleatório em [0, d); nil desliga.
	Jitter func(d time.Duration) time.Duration
}

// Backoff para a tentativa n (1 = primeiro retry): base·2^(n-1) + jitter.
func (p RetryPolicy) Backoff(n int) time.Duration {
	if n < 1 || p.Base <= 0 {
		return 0
	}
	d := p.Base * time.Duration(1<<uint(n-1))
	if p.Jitter != nil {
		d += p.Jitter(p.Base / 2)
	}
	return d
}

// Do executa fn até dar certo, falhar de forma não-transitória ou esgotar os retries.
// O sono entre tentativas respeita o ctx.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	var err error
	for attempt := 0; attempt <= p.Retries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(p.Backoff(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return classifyTransportError(ctx, errors.Join(ctx.Err(), err))
			case <-timer.C:
			}
		}

		err = fn(ctx, attempt)
		if err == nil || !Retryable(err) {
			return err
		}
	}
	return err
}
