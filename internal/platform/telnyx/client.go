package telnyx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cfgpkg "github.com/voxloop/trialguard/pkg/config"
	"github.com/voxloop/trialguard/pkg/types"
)

// API is the narrow contract the blocking service needs from the provider.
type API interface {
	// UpdateNumberVoiceSettings repoints where the provider routes inbound
	// calls for the given provider-assigned number id.
	UpdateNumberVoiceSettings(ctx context.Context, numberID string, cfg types.VoiceWebhookConfig) error
	// DialCall places an outbound call; used by the metered call path.
	DialCall(ctx context.Context, req DialRequest) (*DialResponse, error)
}

type DialRequest struct {
	To           string `json:"to"`
	From         string `json:"from"`
	ConnectionID string `json:"connection_id"`
}

type DialResponse struct {
	CallControlID string `json:"call_control_id"`
	CallSessionID string `json:"call_session_id"`
}

// Client talks to the Telnyx v2 REST API with bearer auth. All calls go
// through a circuit breaker so a provider outage trips fast instead of
// stalling every sweep worker on timeouts.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	log     *zap.SugaredLogger
}

func NewClient(cfg *cfgpkg.Config, log *zap.SugaredLogger) *Client {
	timeout := cfg.Telnyx.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxFailures := cfg.Telnyx.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	openTimeout := cfg.Telnyx.BreakerOpenTimeout
	if openTimeout <= 0 {
		openTimeout = time.Minute
	}

	settings := gobreaker.Settings{
		Name:    "telnyx",
		Timeout: openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnw("telnyx_breaker_state", "from", from.String(), "to", to.String())
		},
	}

	return &Client{
		baseURL: cfg.Telnyx.BaseURL,
		apiKey:  cfg.Telnyx.APIKey,
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker[[]byte](settings),
		log:     log,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	return c.breaker.Execute(func() ([]byte, error) {
		var reader io.Reader
		if body != nil {
			raw, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("failed to encode request: %w", err)
			}
			reader = bytes.NewReader(raw)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("telnyx request failed: %w", err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read telnyx response: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("telnyx %s %s: status %d: %s", method, path, resp.StatusCode, truncate(raw, 256))
		}
		return raw, nil
	})
}

func (c *Client) UpdateNumberVoiceSettings(ctx context.Context, numberID string, cfg types.VoiceWebhookConfig) error {
	path := fmt.Sprintf("/phone_numbers/%s/voice", numberID)
	if _, err := c.do(ctx, http.MethodPatch, path, cfg); err != nil {
		return fmt.Errorf("failed to update voice settings for %s: %w", numberID, err)
	}
	return nil
}

func (c *Client) DialCall(ctx context.Context, req DialRequest) (*DialResponse, error) {
	raw, err := c.do(ctx, http.MethodPost, "/calls", req)
	if err != nil {
		return nil, fmt.Errorf("failed to dial call: %w", err)
	}
	var envelope struct {
		Data DialResponse `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode dial response: %w", err)
	}
	return &envelope.Data, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

var Module = fx.Options(
	fx.Provide(
		fx.Annotate(NewClient, fx.As(new(API))),
	),
)
