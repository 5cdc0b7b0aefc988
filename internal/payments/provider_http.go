package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// HTTPProvider talks to the external payment gateway's refund endpoint.
// Capture results never flow through here; they arrive asynchronously on
// the results topic.
type HTTPProvider struct {
	client *resty.Client
}

func NewHTTPProvider(baseURL string) *HTTPProvider {
	return &HTTPProvider{
		client: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(10 * time.Second).
			SetRetryCount(2),
	}
}

func (p *HTTPProvider) Refund(ctx context.Context, payment *Payment, amount decimal.Decimal, reason string) (Result, error) {
	var out Result
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(map[string]any{
			"payment_reference": payment.ExternalRef,
			"amount":            amount.String(),
			"currency":          payment.Currency,
			"reason":            reason,
		}).
		SetResult(&out).
		Post("/refunds")
	if err != nil {
		return Result{}, err
	}
	if resp.IsError() {
		return Result{}, fmt.Errorf("provider returned %s", resp.Status())
	}
	return out, nil
}
