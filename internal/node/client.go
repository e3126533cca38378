package node

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	connectTimeout = 10 * time.Second
	callTimeout    = 30 * time.Second

	maxResponseBytes = 1 << 20
)

// RPCError is a structured failure returned by the node's RPC endpoint.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("node rpc error %d: %s", e.Code, e.Message)
}

// Client queries the node daemon over its local RPC endpoint.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient builds a client for the endpoint, which may be a bare host:port.
func NewClient(endpoint string) *Client {
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	return &Client{
		baseURL: strings.TrimSuffix(endpoint, "/"),
		client: &http.Client{
			Timeout: callTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connectTimeout}).DialContext,
			},
		},
	}
}

type tipResponse struct {
	Height uint64    `json:"height"`
	Error  *RPCError `json:"error,omitempty"`
}

// Tip returns the node's current chain height.
func (c *Client) Tip(ctx context.Context) (uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/chain/tip", nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("node unreachable: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, fmt.Errorf("reading tip response: %w", err)
	}

	var tip tipResponse
	if err := json.Unmarshal(body, &tip); err != nil {
		if resp.StatusCode != http.StatusOK {
			return 0, fmt.Errorf("node rpc status %d", resp.StatusCode)
		}
		return 0, fmt.Errorf("decoding tip response: %w", err)
	}
	if tip.Error != nil {
		return 0, tip.Error
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("node rpc status %d", resp.StatusCode)
	}

	return tip.Height, nil
}
