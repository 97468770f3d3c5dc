// Package eligibility calls the external gift-rule evaluator.
package eligibility

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_cart/giftcart-service/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	ErrUnexpectedStatus = errors.New("eligibility: unexpected status")
	ErrMalformedBody    = errors.New("eligibility: malformed response")
	ErrRejected         = errors.New("eligibility: evaluator reported failure")
)

// maxBodySize bounds how much of a response is read.
const maxBodySize = 1 << 20

type Config struct {
	Endpoint string
	Timeout  time.Duration
	// FailureThreshold consecutive failures open the breaker for OpenTimeout.
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

type Client struct {
	endpoint   string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*domain.Eligibility]
	logger     *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker[*domain.Eligibility](gobreaker.Settings{
		Name:        "gift-eligibility",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &Client{
		endpoint: cfg.Endpoint,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   cfg.Timeout,
		},
		breaker: breaker,
		logger:  logger,
	}
}

type checkRequest struct {
	CartTotal json.Number `json:"cart_total"`
	ItemCount int         `json:"item_count"`
}

type variation struct {
	Price *decimal.Decimal `json:"price"`
}

type giftProductDTO struct {
	ID         flexibleID       `json:"id"`
	Name       string           `json:"name"`
	Price      *decimal.Decimal `json:"price"`
	Image      string           `json:"image"`
	InStock    *bool            `json:"in_stock"`
	Variations []variation      `json:"variations"`
}

type checkResponse struct {
	Success      *bool            `json:"success"`
	Eligible     bool             `json:"eligible"`
	GiftProducts []giftProductDTO `json:"gift_products"`
}

// Check asks the evaluator which gifts a cart with the given non-gift total
// and item count qualifies for. Any transport, status or decoding problem is
// returned as an error.
func (c *Client) Check(ctx context.Context, total decimal.Decimal, count int) (*domain.Eligibility, error) {
	return c.breaker.Execute(func() (*domain.Eligibility, error) {
		return c.check(ctx, total, count)
	})
}

func (c *Client) check(ctx context.Context, total decimal.Decimal, count int) (*domain.Eligibility, error) {
	c.logger.DebugContext(ctx, "checking gift eligibility", "cart_total", total.String(), "item_count", count)

	body, err := json.Marshal(checkRequest{
		CartTotal: json.Number(total.String()),
		ItemCount: count,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal eligibility request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build eligibility request failed: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("eligibility request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var payload checkResponse
	dec := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize))
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	// the body must hold exactly one JSON value
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after response", ErrMalformedBody)
	}
	if payload.Success == nil {
		return nil, fmt.Errorf("%w: missing success flag", ErrMalformedBody)
	}
	if !*payload.Success {
		return nil, ErrRejected
	}

	return toEligibility(payload)
}

func toEligibility(payload checkResponse) (*domain.Eligibility, error) {
	out := &domain.Eligibility{Eligible: payload.Eligible, GiftProducts: []domain.GiftProduct{}}
	if !payload.Eligible {
		return out, nil
	}

	for _, p := range payload.GiftProducts {
		if p.ID == "" {
			return nil, fmt.Errorf("%w: gift product without id", ErrMalformedBody)
		}
		out.GiftProducts = append(out.GiftProducts, domain.GiftProduct{
			ID:      string(p.ID),
			Name:    p.Name,
			Price:   representativePrice(p),
			Image:   p.Image,
			InStock: p.InStock == nil || *p.InStock,
		})
	}
	return out, nil
}

// representativePrice is the first variation's price, else the base price.
func representativePrice(p giftProductDTO) decimal.Decimal {
	if len(p.Variations) > 0 && p.Variations[0].Price != nil {
		return *p.Variations[0].Price
	}
	if p.Price != nil {
		return *p.Price
	}
	return decimal.Zero
}

// flexibleID accepts both JSON strings and numbers.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = flexibleID(n.String())
	return nil
}
