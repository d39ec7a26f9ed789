package mcpbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tiancaiamao/hostbridge/pkg/rpc"
)

// RelayClient posts tool calls to the relay's /run-tool endpoint.
type RelayClient struct {
	URL    string
	HTTP   *http.Client
	Retry  RetryConfig
	Policy RetryPolicy
	log    *slog.Logger
}

// NewRelayClient creates a client for the relay at baseURL.
func NewRelayClient(baseURL string, log *slog.Logger) *RelayClient {
	if log == nil {
		log = slog.Default()
	}
	return &RelayClient{
		URL:    strings.TrimRight(baseURL, "/"),
		HTTP:   &http.Client{Timeout: 30 * time.Second},
		Retry:  DefaultRetryConfig(),
		Policy: DefaultRetryPolicy(),
		log:    log.With("component", "relayclient"),
	}
}

type runToolRequest struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params"`
}

// RunTool sends one command. Any relay reply carrying a Response body is
// returned without error, whatever its HTTP status.
func (c *RelayClient) RunTool(ctx context.Context, cmdType string, params json.RawMessage) (rpc.Response, error) {
	if len(bytes.TrimSpace(params)) == 0 || bytes.Equal(bytes.TrimSpace(params), []byte("null")) {
		params = json.RawMessage("{}")
	}
	body, err := json.Marshal(runToolRequest{Type: cmdType, Params: params})
	if err != nil {
		return rpc.Response{}, err
	}

	var resp rpc.Response
	policy := c.Policy
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	err = retry(ctx, c.Retry, policy, c.log, cmdType, func() error {
		var err error
		resp, err = c.post(ctx, body)
		return err
	})
	return resp, err
}

func (c *RelayClient) post(ctx context.Context, body []byte) (rpc.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL+"/run-tool", bytes.NewReader(body))
	if err != nil {
		return rpc.Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.HTTP.Do(req)
	if err != nil {
		return rpc.Response{}, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return rpc.Response{}, err
	}
	var resp rpc.Response
	if err := json.Unmarshal(data, &resp); err != nil || resp.Status == "" {
		return rpc.Response{}, fmt.Errorf("relay returned %d: %s", httpResp.StatusCode, strings.TrimSpace(string(data)))
	}
	return resp, nil
}
