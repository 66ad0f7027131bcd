// Package llm talks to the local text-generation service. A call either yields
// the model's text or a *GatewayError; transport failures never escape in any
// other form.
package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/health-recorder-ai/health-recorder/internal/prompt"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	// DefaultEndpoint is the local generation endpoint.
	DefaultEndpoint = "http://localhost:11434/api/generate"

	// FallbackResponse is returned when the service answers without a
	// "response" field: reachable, but nothing to say.
	FallbackResponse = "回答を取得できませんでした。"

	maxErrorBodyLog = 512
)

// Call outcomes reported to the Observer.
const (
	OutcomeOK       = "ok"
	OutcomeEmpty    = "empty"
	OutcomeError    = "error"
	OutcomeHTTPFail = "http_error"
)

// GatewayError reports a failed generation call.
type GatewayError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("generation endpoint %s returned status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("generation endpoint %s: %v", e.Endpoint, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// IsGatewayError reports whether err is a *GatewayError.
func IsGatewayError(err error) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr)
}

// Config configures a Gateway.
type Config struct {
	Endpoint string
	// Timeout bounds a whole call. Zero keeps the transport default.
	Timeout  time.Duration
	ProxyURL string
	// Observer, when set, receives the outcome and latency of every call.
	Observer func(outcome string, elapsed time.Duration)
	// HTTPClient overrides the client built from Timeout and ProxyURL.
	HTTPClient *http.Client
}

// Gateway sends prompts to the generation endpoint. One attempt per call.
type Gateway struct {
	endpoint string
	client   *http.Client
	observer func(string, time.Duration)
}

// NewGateway validates cfg and builds the HTTP client.
func NewGateway(cfg Config) (*Gateway, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	client := cfg.HTTPClient
	if client == nil {
		var err error
		client, err = newProxyAwareHTTPClient(cfg.ProxyURL, cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("llm gateway: %w", err)
		}
	}
	return &Gateway{endpoint: endpoint, client: client, observer: cfg.Observer}, nil
}

// Endpoint returns the configured generation URL.
func (g *Gateway) Endpoint() string { return g.endpoint }

// Generate runs a non-streaming generation. A reachable endpoint that omits
// the "response" field yields FallbackResponse and a nil error.
func (g *Gateway) Generate(ctx context.Context, p prompt.Prompt) (text string, err error) {
	start := time.Now()
	outcome := OutcomeOK
	defer func() {
		if g.observer != nil {
			g.observer(outcome, time.Since(start))
		}
	}()

	body, err := requestBody(p)
	if err != nil {
		outcome = OutcomeError
		return "", g.fail(p, 0, fmt.Errorf("build request body: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		outcome = OutcomeError
		return "", g.fail(p, 0, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		outcome = OutcomeError
		return "", g.fail(p, 0, err)
	}
	defer func() {
		if errClose := httpResp.Body.Close(); errClose != nil {
			log.Errorf("llm gateway: close response body error: %v", errClose)
		}
	}()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		outcome = OutcomeError
		return "", g.fail(p, 0, fmt.Errorf("read response body: %w", err))
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		outcome = OutcomeHTTPFail
		log.Debugf("llm gateway: error status %d, body: %s", httpResp.StatusCode, summarizeBody(data))
		return "", g.fail(p, httpResp.StatusCode, errors.New(http.StatusText(httpResp.StatusCode)))
	}

	res := gjson.GetBytes(data, "response")
	if !res.Exists() || res.Type == gjson.Null {
		outcome = OutcomeEmpty
		log.WithField("endpoint", g.endpoint).Warn("llm gateway: response field missing")
		return FallbackResponse, nil
	}
	return res.String(), nil
}

func (g *Gateway) fail(p prompt.Prompt, status int, cause error) error {
	gwErr := &GatewayError{Endpoint: g.endpoint, StatusCode: status, Err: cause}
	log.WithError(cause).WithFields(log.Fields{
		"endpoint": g.endpoint,
		"model":    p.Model,
		"status":   status,
	}).Error("llm gateway: generation failed")
	return gwErr
}

// requestBody renders {"model", "prompt", "stream": false}.
func requestBody(p prompt.Prompt) ([]byte, error) {
	body := []byte(`{}`)
	var err error
	if body, err = sjson.SetBytes(body, "model", p.Model); err != nil {
		return nil, err
	}
	if body, err = sjson.SetBytes(body, "prompt", p.Text); err != nil {
		return nil, err
	}
	return sjson.SetBytes(body, "stream", false)
}

func summarizeBody(b []byte) string {
	s := strings.TrimSpace(string(b))
	if msg := gjson.Get(s, "error"); msg.Exists() && msg.Type == gjson.String {
		s = msg.String()
	}
	if len(s) > maxErrorBodyLog {
		s = s[:maxErrorBodyLog] + "..."
	}
	return s
}
