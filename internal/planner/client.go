package planner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"gridrover.ai/internal/protocol"
)

// HTTPSolver talks to the external solver service over HTTP JSON.
// The per-request deadline comes from the caller's context; the client
// timeout is only a transport backstop.
type HTTPSolver struct {
	endpoint   string
	httpClient *http.Client
}

func NewHTTPSolver(endpoint string) (*HTTPSolver, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("empty solver endpoint")
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "http://" + endpoint
	}
	return &HTTPSolver{
		endpoint: strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}, nil
}

func (c *HTTPSolver) Solve(ctx context.Context, req protocol.PlanRequestMsg) (protocol.PlanResponseMsg, error) {
	var resp protocol.PlanResponseMsg

	body, err := json.Marshal(req)
	if err != nil {
		return resp, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/plan", bytes.NewReader(body))
	if err != nil {
		return resp, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return resp, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return resp, fmt.Errorf("solver status %d", httpResp.StatusCode)
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return resp, fmt.Errorf("decode plan response: %w", err)
	}
	return resp, nil
}
