package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/codeclash/codeclash-backend/pkg/logger"
)

// Client talks to the sandboxed execution service over HTTP. The sandbox
// itself is an external collaborator; this client only ships code and test
// cases across and maps the response back.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient Executor 클라이언트 생성
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// TestCase 실행용 테스트 케이스
type TestCase struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
}

// ExecuteRequest Executor에 보낼 요청
type ExecuteRequest struct {
	SubmissionID  string     `json:"submissionId"`
	Code          string     `json:"code"`
	Language      string     `json:"language"`
	TimeLimitMs   int        `json:"timeLimitMs"`
	MemoryLimitKb int        `json:"memoryLimitKb"`
	TestCases     []TestCase `json:"testCases"`
}

// ExecuteResponse Executor로부터 받는 응답
type ExecuteResponse struct {
	SubmissionID    string `json:"submissionId"`
	Verdict         string `json:"verdict"` // "AC", "WA", "TLE", "MLE", "RE", "CE"
	ExecutionTimeMs int    `json:"executionTimeMs"`
	MemoryKb        int    `json:"memoryKb"`
	Stdout          string `json:"stdout,omitempty"`
	Stderr          string `json:"stderr,omitempty"`
}

// Execute 코드 실행 요청
// Transport and non-2xx failures are returned as errors so the caller can
// treat them as infrastructure failures and retry.
func (c *Client) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal execute request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build execute request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("executor request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("executor returned status %d: %s", resp.StatusCode, string(data))
	}

	var result ExecuteResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode executor response: %w", err)
	}

	logger.Debug("Execution completed",
		"submissionId", req.SubmissionID,
		"verdict", result.Verdict,
		"latency", time.Since(start),
	)

	return &result, nil
}

// HealthCheck Executor 상태 확인
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executor health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("executor is not healthy (status %d)", resp.StatusCode)
	}

	return nil
}
