package backend

import (
	"context"
	"net/http"
)

// Gateway response codes that mean a verified, settled payment.
const (
	ZarinCodeOK              = 100
	ZarinCodeAlreadyVerified = 101
)

// ZarinMetadata travels with a payment request so the gateway callback can
// be correlated with the order.
type ZarinMetadata struct {
	UserID  string `json:"user_id"`
	OrderID string `json:"order_id"`
}

// ZarinRequest asks the gateway (proxied by the backend) to open a payment.
type ZarinRequest struct {
	MerchantID  string        `json:"merchant_id"`
	Amount      int64         `json:"amount"`
	Description string        `json:"description"`
	CallbackURL string        `json:"callback_url"`
	Metadata    ZarinMetadata `json:"metadata"`
}

// ZarinVerify confirms a payment after the gateway redirected back.
type ZarinVerify struct {
	MerchantID string `json:"merchant_id"`
	Amount     int64  `json:"amount"`
	Authority  string `json:"authority"`
}

// ZarinData is the payload of a gateway response.
type ZarinData struct {
	Authority string `json:"authority"`
	Code      int    `json:"code"`
	RefID     int64  `json:"ref_id"`
	Fee       int64  `json:"fee"`
	Message   string `json:"message"`
}

// ZarinError is one gateway error entry.
type ZarinError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ZarinResponse wraps every gateway reply.
type ZarinResponse struct {
	Data   ZarinData    `json:"data"`
	Errors []ZarinError `json:"errors,omitempty"`
}

// RequestPayment opens a payment attempt and returns the gateway response
// carrying the authority token.
func (c *Client) RequestPayment(ctx context.Context, req ZarinRequest) (*ZarinResponse, error) {
	var resp ZarinResponse
	if err := c.do(ctx, http.MethodPost, "/api/zarin/request", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// VerifyPayment confirms a payment attempt identified by its authority.
func (c *Client) VerifyPayment(ctx context.Context, req ZarinVerify) (*ZarinResponse, error) {
	var resp ZarinResponse
	if err := c.do(ctx, http.MethodPost, "/api/zarin/verify", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
