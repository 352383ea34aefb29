package square

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/fueldrop-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/fueldrop-backend/pkg/errors"
	"github.com/angelmondragon/fueldrop-backend/pkg/logger"
)

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"
)

var (
	errAccessTokenRequired = errors.New("square access token is required")
	errLocationRequired    = errors.New("square location id is required")
	errInvalidSquareEnv    = fmt.Errorf("square environment must be %q or %q", sandboxEnv, productionEnv)
	errLoggerRequired      = errors.New("square logger is required")
)

var baseURLs = map[string]string{
	sandboxEnv:    "https://connect.squareupsandbox.com",
	productionEnv: "https://connect.squareup.com",
}

// Client exposes the Square payment primitives with centralized auth, logging and error mapping.
type Client struct {
	sdk         *sqclient.Client
	environment string
	locationID  string
	logger      *logger.Logger
}

// Payment is the provider-neutral view of a Square payment or refund.
type Payment struct {
	ID     string
	Status string
}

// NewClient initializes the Square wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}
	accessToken := strings.TrimSpace(cfg.AccessToken)
	if accessToken == "" {
		return nil, errAccessTokenRequired
	}
	locationID := strings.TrimSpace(cfg.LocationID)
	if locationID == "" {
		return nil, errLocationRequired
	}

	sdk := sqclient.NewClient(
		sqoption.WithBaseURL(baseURLs[env]),
		sqoption.WithToken(accessToken),
	)

	logg.Info(ctx, "square client initialized")
	return &Client{sdk: sdk, environment: env, locationID: locationID, logger: logg}, nil
}

// Environment reports the normalized Square environment.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// CreatePayment captures funds. Square replays the original result when the
// idempotency key repeats, so callers derive the key from the order.
func (c *Client) CreatePayment(ctx context.Context, params PaymentCreateParams) (Payment, error) {
	if strings.TrimSpace(params.IdempotencyKey) == "" {
		return Payment{}, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is required")
	}
	if params.LocationID == "" {
		params.LocationID = c.locationID
	}
	c.log(ctx, "request", "create_payment", map[string]any{
		"reference_id": params.ReferenceID,
		"amount":       params.AmountCents,
		"source_token": params.SourceID,
	})

	resp, err := c.sdk.Payments.Create(ctx, params.toSquareRequest())
	if err != nil {
		c.log(ctx, "error", "create_payment", map[string]any{"error": err.Error()})
		return Payment{}, c.mapSquareError(err, "create payment")
	}

	payment, err := decodePayment(resp.GetPayment())
	if err != nil {
		return Payment{}, pkgerrors.Wrap(pkgerrors.CodePaymentProvider, err, "decode square payment")
	}
	c.log(ctx, "response", "create_payment", map[string]any{"payment_id": payment.ID, "status": payment.Status})
	return payment, nil
}

// RefundPayment returns funds for a previously captured payment.
func (c *Client) RefundPayment(ctx context.Context, params RefundParams) (Payment, error) {
	if strings.TrimSpace(params.IdempotencyKey) == "" {
		return Payment{}, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is required")
	}
	c.log(ctx, "request", "refund_payment", map[string]any{
		"payment_id": params.PaymentID,
		"amount":     params.AmountCents,
	})

	resp, err := c.sdk.Refunds.RefundPayment(ctx, params.toSquareRequest())
	if err != nil {
		c.log(ctx, "error", "refund_payment", map[string]any{"error": err.Error()})
		return Payment{}, c.mapSquareError(err, "refund payment")
	}

	refund, err := decodePayment(resp.GetRefund())
	if err != nil {
		return Payment{}, pkgerrors.Wrap(pkgerrors.CodePaymentProvider, err, "decode square refund")
	}
	c.log(ctx, "response", "refund_payment", map[string]any{"refund_id": refund.ID, "status": refund.Status})
	return refund, nil
}

// decodePayment reads id/status from the SDK object through its JSON form,
// which is stable across SDK releases.
func decodePayment(obj any) (Payment, error) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return Payment{}, err
	}
	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return Payment{}, err
	}
	if out.ID == "" {
		return Payment{}, errors.New("square response missing id")
	}
	return Payment{ID: out.ID, Status: out.Status}, nil
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{"operation": op, "phase": phase}
	for k, v := range fields {
		logFields[k] = redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("square %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("square %s", phase))
	}
}

func redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"card", "nonce", "token", "cvv", "cvc", "secret", "email", "phone"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

func (c *Client) mapSquareError(err error, op string) error {
	if err == nil {
		return nil
	}
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("square %s failed", op))
	}

	code := domainCodeForStatus(apiErr.StatusCode)
	message := fmt.Sprintf("square %s failed", op)
	for _, sqErr := range extractSquareErrors(apiErr) {
		if sqErr == nil {
			continue
		}
		if sqErr.Code == sq.ErrorCodeIdempotencyKeyReused {
			code = pkgerrors.CodeIdempotency
			break
		}
		if sqErr.Category == sq.ErrorCategoryAuthenticationError {
			code = pkgerrors.CodeDependency
			break
		}
		if detail := sqErr.GetDetail(); detail != nil && *detail != "" {
			message = *detail
		}
	}
	return pkgerrors.Wrap(code, err, message)
}

func extractSquareErrors(apiErr *sqcore.APIError) []*sq.Error {
	if apiErr == nil {
		return nil
	}
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	raw := strings.TrimSpace(inner.Error())
	if raw == "" {
		return nil
	}
	var payload struct {
		Errors []*sq.Error `json:"errors"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil
	}
	return payload.Errors
}

// Declines and bad requests surface as provider errors so the customer sees
// the provider message; transport-level failures are dependency errors.
func domainCodeForStatus(status int) pkgerrors.Code {
	switch {
	case status == http.StatusTooManyRequests:
		return pkgerrors.CodeDependency
	case status == http.StatusConflict:
		return pkgerrors.CodeIdempotency
	case status >= 400 && status < 500:
		return pkgerrors.CodePaymentProvider
	default:
		return pkgerrors.CodeDependency
	}
}

func normalizeEnv(raw string) (string, error) {
	env := strings.TrimSpace(strings.ToLower(raw))
	if env == "" {
		env = sandboxEnv
	}
	switch env {
	case sandboxEnv, productionEnv:
		return env, nil
	default:
		return "", errInvalidSquareEnv
	}
}
