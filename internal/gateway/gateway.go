package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"hftcore/internal/events"
	"hftcore/internal/order"
	"hftcore/pkg/fixedpoint"
)

// newOrderRequest mirrors the §6 send_new wire shape.
type newOrderRequest struct {
	ClientOrderID string `json:"client_order_id"`
	InstrumentID  string `json:"instrument_id"`
	Side          string `json:"side"`
	Price         string `json:"price"`
	Quantity      string `json:"quantity"`
	OrderType     string `json:"order_type"`
	PostOnly      bool   `json:"post_only"`
}

type replaceOrderRequest struct {
	ClientOrderID   string `json:"client_order_id"`
	ExchangeOrderID string `json:"exchange_order_id"`
	Price           string `json:"price"`
	Quantity        string `json:"quantity"`
}

type cancelOrderRequest struct {
	ClientOrderID   string `json:"client_order_id"`
	ExchangeOrderID string `json:"exchange_order_id"`
}

type orderResultEnvelope struct {
	OK              bool   `json:"ok"`
	ExchangeOrderID string `json:"exchange_order_id"`
	FailureReason   string `json:"failure_reason"`
	Status          string `json:"status"`
}

// Gateway is the resty-backed REST implementation of quote.Gateway: every
// method suspends only at the HTTP round trip, is rate-limited per §6's
// category split, and retried on 5xx per the teacher's resty retry policy.
type Gateway struct {
	http   *resty.Client
	auth   *Auth
	rl     *RateLimiter
	tick   fixedpoint.TickSize
	dryRun bool
	logger *slog.Logger
}

// New constructs a Gateway against baseURL. tick converts the fixed-point
// prices/quantities the core works in back to the decimal strings the wire
// protocol expects.
func New(baseURL string, auth *Auth, rl *RateLimiter, tick fixedpoint.TickSize, dryRun bool, logger *slog.Logger) *Gateway {
	if rl == nil {
		rl = DefaultRateLimiter()
	}
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Gateway{http: httpClient, auth: auth, rl: rl, tick: tick, dryRun: dryRun, logger: logger.With("component", "gateway")}
}

func orderKindString(k order.OrderKind) string {
	if k == order.IOC {
		return "IOC"
	}
	return "GTC"
}

func sideString(s events.Side) string {
	if s == events.Buy {
		return "buy"
	}
	return "sell"
}

// SubmitOrder places a new order via send_new and applies the resulting
// report to o synchronously.
func (g *Gateway) SubmitOrder(ctx context.Context, o *order.Order) error {
	if g.dryRun {
		g.logger.Info("dry-run submit", "client_order_id", o.ClientOrderID, "price", o.Price, "qty", o.Quantity)
		o.OnReport(events.OrderStatusReport{
			ClientOrderID:   o.ClientOrderID,
			ExchangeOrderID: "dry-" + o.ClientOrderID,
			Status:          events.ReportAck,
			Ts:              time.Now(),
		})
		return nil
	}
	if err := g.rl.waitOrder(ctx); err != nil {
		return err
	}

	req := newOrderRequest{
		ClientOrderID: o.ClientOrderID,
		InstrumentID:  o.InstrumentID,
		Side:          sideString(o.Side),
		Price:         o.Price.Decimal(g.tick).String(),
		Quantity:      o.Quantity.Decimal().String(),
		OrderType:     orderKindString(o.Kind),
		PostOnly:      o.PostOnly,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal new order: %w", err)
	}
	headers, err := g.auth.Headers(http.MethodPost, "/orders", string(body))
	if err != nil {
		return fmt.Errorf("sign new order: %w", err)
	}

	var result orderResultEnvelope
	resp, err := g.http.R().SetContext(ctx).SetHeaders(headers).SetBody(req).SetResult(&result).Post("/orders")
	if err != nil {
		return fmt.Errorf("submit order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK || !result.OK {
		o.OnReport(events.OrderStatusReport{ClientOrderID: o.ClientOrderID, Status: events.ReportRejected, Reason: result.FailureReason, Ts: time.Now()})
		return nil
	}

	o.OnReport(events.OrderStatusReport{
		ClientOrderID:   o.ClientOrderID,
		ExchangeOrderID: result.ExchangeOrderID,
		Status:          events.ReportAck,
		Ts:              time.Now(),
	})
	return nil
}

// ReplaceOrder sends send_replace for a resting order.
func (g *Gateway) ReplaceOrder(ctx context.Context, o *order.Order, price fixedpoint.Price, qty fixedpoint.Quantity) error {
	if g.dryRun {
		o.OnReport(events.OrderStatusReport{ClientOrderID: o.ClientOrderID, Status: events.ReportAck, Ts: time.Now()})
		return nil
	}
	if err := g.rl.waitOrder(ctx); err != nil {
		return err
	}

	req := replaceOrderRequest{
		ClientOrderID:   o.ClientOrderID,
		ExchangeOrderID: o.ExchangeOrderID,
		Price:           price.Decimal(g.tick).String(),
		Quantity:        qty.Decimal().String(),
	}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal replace: %w", err)
	}
	headers, err := g.auth.Headers(http.MethodPut, "/orders", string(body))
	if err != nil {
		return fmt.Errorf("sign replace: %w", err)
	}

	var result orderResultEnvelope
	resp, err := g.http.R().SetContext(ctx).SetHeaders(headers).SetBody(req).SetResult(&result).Put("/orders")
	if err != nil {
		return fmt.Errorf("replace order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK || !result.OK {
		return fmt.Errorf("replace order: rejected: %s", result.FailureReason)
	}

	o.OnReport(events.OrderStatusReport{ClientOrderID: o.ClientOrderID, Status: events.ReportAck, Ts: time.Now()})
	return nil
}

// CancelOrder sends send_cancel for a resting order.
func (g *Gateway) CancelOrder(ctx context.Context, o *order.Order) error {
	if g.dryRun {
		o.OnReport(events.OrderStatusReport{ClientOrderID: o.ClientOrderID, Status: events.ReportCancelled, Ts: time.Now()})
		return nil
	}
	if err := g.rl.waitCancel(ctx); err != nil {
		return err
	}

	req := cancelOrderRequest{ClientOrderID: o.ClientOrderID, ExchangeOrderID: o.ExchangeOrderID}
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal cancel: %w", err)
	}
	headers, err := g.auth.Headers(http.MethodDelete, "/orders", string(body))
	if err != nil {
		return fmt.Errorf("sign cancel: %w", err)
	}

	var result orderResultEnvelope
	resp, err := g.http.R().SetContext(ctx).SetHeaders(headers).SetBody(req).SetResult(&result).Delete("/orders")
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK || !result.OK {
		return fmt.Errorf("cancel order: rejected: %s", result.FailureReason)
	}

	o.OnReport(events.OrderStatusReport{ClientOrderID: o.ClientOrderID, Status: events.ReportCancelled, Ts: time.Now()})
	return nil
}
