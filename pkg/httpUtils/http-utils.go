package http_utils

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

// StatusError reports a response outside the 2xx range.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("received status code: %d", e.Code)
}

// HasBody reports whether requests with the given method carry a payload.
func HasBody(method string) bool {
	return method != http.MethodGet && method != http.MethodDelete
}

// SendJSON issues an HTTP request with a JSON body. The body is omitted for
// GET and DELETE. A non-2xx response is returned as *StatusError.
func SendJSON(ctx context.Context, client *http.Client, method, url string, body []byte) (int, error) {
	var reader io.Reader
	if HasBody(method) {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}
	return resp.StatusCode, nil
}
