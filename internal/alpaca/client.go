package alpaca

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/IvanovOleg/alpaca-markets-terminal/internal/domain"
	"github.com/IvanovOleg/alpaca-markets-terminal/internal/infra"
)

const (
	headerKeyID     = "APCA-API-KEY-ID"
	headerSecretKey = "APCA-API-SECRET-KEY"

	maxAttempts = 3
)

// APIError is a non-2xx response from Alpaca with its decoded body.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("alpaca: %d (code %d): %s", e.StatusCode, e.Code, e.Message)
}

// retryable reports whether another attempt can change the outcome.
// Client errors are final; throttling and server trouble are not.
func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return true // network-level failure
}

// OrderRequest is the payload of POST /v2/orders.
type OrderRequest struct {
	Symbol        string              `json:"symbol"`
	Qty           decimal.Decimal     `json:"qty"`
	Side          domain.Side         `json:"side"`
	Type          domain.OrderType    `json:"type"`
	TimeInForce   domain.TimeInForce  `json:"time_in_force"`
	LimitPrice    decimal.NullDecimal `json:"limit_price"`
	ClientOrderID string              `json:"client_order_id,omitempty"`
}

// Client talks to the Alpaca trading and market data REST APIs. Every
// call passes the shared rate limiter, then circuit breaker admission,
// and records the outcome on the breaker. Transient failures retry with
// capped exponential backoff.
type Client struct {
	apiBase     string
	dataBase    string
	keyID       string
	secretKey   string
	feed        string
	httpClient  *http.Client
	limiter     *infra.RateLimiter
	dataLimiter *infra.RateLimiter
	breaker     *infra.CircuitBreaker
	backoff     func(attempt int) time.Duration
}

// NewClient creates a REST client bound to the endpoints the config
// resolves (paper vs live host is a config concern, not a client one).
func NewClient(cfg *infra.Config) *Client {
	return &Client{
		apiBase:     cfg.APIBaseURL(),
		dataBase:    cfg.DataBaseURL(),
		keyID:       cfg.Alpaca.KeyID,
		secretKey:   cfg.Alpaca.SecretKey,
		feed:        cfg.Alpaca.Feed,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		limiter:     infra.GetAlpacaTradingLimiter(),
		dataLimiter: infra.GetAlpacaDataLimiter(),
		breaker:     infra.NewCircuitBreaker(infra.DefaultCircuitBreakerConfig("alpaca-rest")),
		backoff:     infra.Backoff,
	}
}

// GetAccount fetches the current account state.
func (c *Client) GetAccount(ctx context.Context) (domain.AccountSnapshot, error) {
	var dto accountDTO
	if err := c.get(ctx, c.apiBase+"/v2/account", &dto); err != nil {
		return domain.AccountSnapshot{}, err
	}
	return dto.toDomain()
}

// ListOpenOrders fetches up to 50 working orders, newest first.
func (c *Client) ListOpenOrders(ctx context.Context) ([]domain.Order, error) {
	q := url.Values{}
	q.Set("status", "open")
	q.Set("limit", "50")
	q.Set("direction", "desc")

	var dtos []orderDTO
	if err := c.get(ctx, c.apiBase+"/v2/orders?"+q.Encode(), &dtos); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(dtos))
	for _, dto := range dtos {
		ord, err := dto.toDomain()
		if err != nil {
			slog.Warn("Skipping malformed order", "id", dto.ID, "err", err)
			continue
		}
		orders = append(orders, ord)
	}
	return orders, nil
}

// ListPositions fetches all open positions.
func (c *Client) ListPositions(ctx context.Context) ([]domain.Position, error) {
	var dtos []positionDTO
	if err := c.get(ctx, c.apiBase+"/v2/positions", &dtos); err != nil {
		return nil, err
	}

	positions := make([]domain.Position, 0, len(dtos))
	for _, dto := range dtos {
		pos, err := dto.toDomain()
		if err != nil {
			slog.Warn("Skipping malformed position", "symbol", dto.Symbol, "err", err)
			continue
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

// SubmitOrder places an order. A client_order_id is generated when the
// caller does not provide one, so resubmits after a timeout stay
// idempotent on the broker side.
func (c *Client) SubmitOrder(ctx context.Context, req OrderRequest) (domain.Order, error) {
	if req.ClientOrderID == "" {
		req.ClientOrderID = uuid.NewString()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return domain.Order{}, fmt.Errorf("marshal order: %w", err)
	}

	var dto orderDTO
	if err := c.do(ctx, http.MethodPost, c.apiBase+"/v2/orders", body, &dto); err != nil {
		return domain.Order{}, err
	}
	return dto.toDomain()
}

// CancelOrder requests cancellation of a working order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	return c.do(ctx, http.MethodDelete, c.apiBase+"/v2/orders/"+url.PathEscape(orderID), nil, nil)
}

// ClosePosition liquidates the whole position with a market order and
// returns the closing order.
func (c *Client) ClosePosition(ctx context.Context, symbol string) (domain.Order, error) {
	var dto orderDTO
	err := c.do(ctx, http.MethodDelete, c.apiBase+"/v2/positions/"+url.PathEscape(symbol), nil, &dto)
	if err != nil {
		return domain.Order{}, err
	}
	return dto.toDomain()
}

// GetBars fetches up to limit historical bars for one symbol, oldest
// first, for chart backfill.
func (c *Client) GetBars(ctx context.Context, symbol string, tf domain.Timeframe, limit int) ([]domain.Candle, error) {
	q := url.Values{}
	q.Set("timeframe", string(tf))
	q.Set("limit", strconv.Itoa(limit))
	q.Set("feed", c.feed)
	q.Set("adjustment", "split")

	u := c.dataBase + "/v2/stocks/" + url.PathEscape(symbol) + "/bars?" + q.Encode()

	var page barsPage
	if err := c.get(ctx, u, &page); err != nil {
		return nil, err
	}

	candles := make([]domain.Candle, 0, len(page.Bars))
	for _, dto := range page.Bars {
		candle, err := dto.toDomain()
		if err != nil {
			slog.Warn("Skipping malformed bar", "symbol", symbol, "err", err)
			continue
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

func (c *Client) get(ctx context.Context, url string, out interface{}) error {
	return c.do(ctx, http.MethodGet, url, nil, out)
}

// do runs one API call with retries. Order of gates per attempt:
// rate limiter (so retries also pay a token), breaker admission,
// then the HTTP round trip.
func (c *Client) do(ctx context.Context, method, url string, body []byte, out interface{}) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt - 1)
			slog.Info("Retrying Alpaca request",
				"method", method, "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := c.doOnce(ctx, method, url, body, out)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, method, url string, body []byte, out interface{}) error {
	// Trading and market data endpoints are throttled separately.
	lim := c.limiter
	if strings.HasPrefix(url, c.dataBase) {
		lim = c.dataLimiter
	}
	if err := lim.Wait(ctx); err != nil {
		return err
	}
	if !c.breaker.Allow() {
		return fmt.Errorf("alpaca: circuit breaker open")
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set(headerKeyID, c.keyID)
	req.Header.Set(headerSecretKey, c.secretKey)
	req.Header.Set("User-Agent", infra.DefaultUserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.breaker.RecordFailure()
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Throttling and server errors count against the breaker;
		// a plain 4xx is the caller's problem, not the endpoint's.
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			c.breaker.RecordFailure()
		} else {
			c.breaker.RecordSuccess()
		}

		var apiErr apiErrorBody
		_ = json.Unmarshal(respBody, &apiErr)
		return &APIError{
			StatusCode: resp.StatusCode,
			Code:       apiErr.Code,
			Message:    apiErr.Message,
		}
	}

	c.breaker.RecordSuccess()

	if out == nil || len(respBody) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(respBody))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
