package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Record is one instrument as published by the market summary endpoint.
type Record struct {
	Symbol      string       `json:"COD_SIMB"`
	Description string       `json:"DESC_SIMB"`
	Price       LocaleNumber `json:"PRECIO"`
	AbsChange   LocaleNumber `json:"VAR_ABS"`
	RelChange   LocaleNumber `json:"VAR_REL"`
	Volume      LocaleNumber `json:"VOLUMEN"`
	CashAmount  LocaleNumber `json:"MONTO_EFECTIVO"`
	Time        string       `json:"HORA"`
	Icon        string       `json:"ICON"`
}

// Source fetches the current instrument list.
type Source interface {
	Fetch(ctx context.Context) ([]Record, error)
}

// Client fetches the market summary over HTTP. Consecutive failures open a
// circuit breaker so an unreachable upstream is not hammered every tick.
type Client struct {
	url     string
	http    *resty.Client
	breaker *gobreaker.CircuitBreaker
}

func NewClient(url string, timeout time.Duration, log *zap.SugaredLogger) *Client {
	http := resty.New()
	http.SetTimeout(timeout)
	http.SetHeader("Accept", "application/json")
	http.SetHeader("User-Agent", "bolsaingest/1.0")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "bolsa-upstream",
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Infow("Circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String())
		},
	})

	return &Client{url: url, http: http, breaker: breaker}
}

// Fetch returns the decoded records. Transport errors, non-2xx statuses,
// undecodable bodies and an open breaker all surface as errors.
func (c *Client) Fetch(ctx context.Context) ([]Record, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx)
	})
	if err != nil {
		return nil, err
	}
	return out.([]Record), nil
}

func (c *Client) fetch(ctx context.Context) ([]Record, error) {
	resp, err := c.http.R().SetContext(ctx).Get(c.url)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("unexpected status %d from upstream", resp.StatusCode())
	}

	// The endpoint does not always label its body as JSON, so decode by hand
	var records []Record
	if err := json.Unmarshal(resp.Body(), &records); err != nil {
		return nil, fmt.Errorf("invalid upstream payload: %w", err)
	}
	return records, nil
}
