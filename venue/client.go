// Package venue implements the client for the external conversion venue used
// to exchange collected fees into the secondary settlement asset. Only the
// venue's success/failure contract matters here; its pricing and execution
// logic is opaque.
package venue

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"
)

const defaultTimeout = 15 * time.Second

// Client talks to the conversion venue over HTTP.
type Client struct {
	client *resty.Client
}

// NewClient constructs a client for the venue at the given base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second)
	return &Client{client: client}
}

type convertRequest struct {
	Amount    string `json:"amount"`
	Recipient string `json:"recipient"`
}

type convertResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Convert asks the venue to sell amount of the settlement asset and forward
// the proceeds to the recipient. Any non-2xx response or transport error is a
// conversion failure.
func (c *Client) Convert(ctx context.Context, amount *big.Int, recipient [20]byte) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("venue: amount must be positive")
	}
	body := convertRequest{
		Amount:    amount.String(),
		Recipient: ethcommon.BytesToAddress(recipient[:]).Hex(),
	}
	var out convertResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/v1/convert")
	if err != nil {
		return fmt.Errorf("venue: convert request: %w", err)
	}
	if resp.IsError() {
		if out.Error != "" {
			return fmt.Errorf("venue: convert rejected: %s", out.Error)
		}
		return fmt.Errorf("venue: convert rejected: status %d", resp.StatusCode())
	}
	return nil
}
