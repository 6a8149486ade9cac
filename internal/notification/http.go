package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const httpTimeout = 10 * time.Second

// StatusError is returned when an alert endpoint answers with a non-2xx code.
type StatusError struct {
	Backend string
	Code    int
	Detail  string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: unexpected status %d: %s", e.Backend, e.Code, e.Detail)
	}
	return fmt.Sprintf("%s: unexpected status %d", e.Backend, e.Code)
}

// postJSON sends v as a JSON body and returns the response body of a 2xx
// answer. Up to 512 bytes of a failed response are kept in the error.
func postJSON(ctx context.Context, client *http.Client, backend, url string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal: %w", backend, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", backend, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: send: %w", backend, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(data) > 512 {
			data = data[:512]
		}
		return nil, &StatusError{Backend: backend, Code: resp.StatusCode, Detail: string(bytes.TrimSpace(data))}
	}
	return data, nil
}
