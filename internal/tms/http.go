package tms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rafagois03/EmbarquesTMSLincros/internal/common"
)

// StatusError carries a non-2xx answer verbatim.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tms status %d: %s", e.StatusCode, e.Body)
}

// postJSON sends body to path and returns the raw response body. Non-2xx answers
// return the body together with a *StatusError.
func (c *Client) postJSON(ctx context.Context, path string, body any, headers map[string]string) ([]byte, int, error) {
	reqID := uuid.New().String()
	start := time.Now()
	url := strings.TrimRight(c.cfg.BaseURL, "/") + path
	runID := common.RunIDFromContext(ctx)

	bs, err := json.Marshal(body)
	if err != nil {
		c.logger.Error("tms.http.encode_error", "req_id", reqID, "error", err)
		return nil, 0, fmt.Errorf("encode json: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		c.logger.Error("tms.http.build_request_error", "req_id", reqID, "error", err)
		return nil, 0, fmt.Errorf("build request: %w", err)
	}

	// Default headers; allow caller overrides.
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	c.logger.Info("tms.http.request",
		"req_id", reqID,
		"run_id", runID,
		"url", url,
		"content_length", len(bs),
	)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Error("tms.http.send_error", "req_id", reqID, "run_id", runID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, 0, err
	}
	defer func(Body io.ReadCloser) {
		err := Body.Close()
		if err != nil {
			c.logger.Warn("tms.http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("tms.http.read_error", "req_id", reqID, "run_id", runID, "error", err)
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	c.logger.Info("tms.http.response",
		"req_id", reqID,
		"run_id", runID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return raw, resp.StatusCode, &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return raw, resp.StatusCode, nil
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}
