package facesearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// requestPipeline runs one JSON round trip: encode the parameters, send,
// then decode the body with postProcess.
type requestPipeline struct {
	client      *http.Client
	postProcess func(responseBody []byte) (any, error)
}

const maxResponseBytes = 4 << 20

func (r requestPipeline) execute(ctx context.Context, method, url string, params any) (any, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("error during prepare: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error during request prepare: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("error during request sending: %w", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("error during body response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(payload))}
	}
	if r.postProcess == nil {
		return payload, nil
	}
	return r.postProcess(payload)
}

// StatusError is a non-200 answer from the search host.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}
